// Package speedwire decodes the multicast telemetry datagrams broadcast
// by the SMA Home Manager 2.0 / Energy Meter into engineering-unit
// measurements. Decoding is pure and stateless: one datagram in, one
// Record out, no state kept between calls.
package speedwire

import (
	"encoding/binary"

	"github.com/rs/zerolog"
)

// Record is one decoded datagram: a string-keyed set of scaled values.
// A Record is either empty (keep-alive or unrecognized input) or
// contains at least "serial" and "timestamp". For each known actual
// channel it holds "<name>" (float64) and "<name>unit" (string); for
// each known counter channel "<name>counter" and "<name>counterunit";
// the version pseudo-channel contributes a single formatted string.
type Record map[string]any

const (
	headerMagic = "SMA"

	lengthOffset    = 12
	serialOffset    = 20
	timestampOffset = 24
	blockStart      = 28

	// The 16-bit length field counts from after the protocol header.
	lengthBias = 16

	// A declared total length of exactly 54 is a keep-alive telegram
	// carrying no measurement blocks.
	keepAliveLength = 54

	obisHeaderLen = 4
)

// blockKind classifies one OBIS block by its raw type code.
type blockKind int

const (
	kindActual  blockKind = iota // type 4: signed int32 instantaneous value
	kindCounter                  // type 8: uint64 cumulative counter
	kindVersion                  // type 0 on the version channel
	// kindUnknown blocks are skipped with a fixed 4-byte body. A
	// genuinely variable-length unknown block would desynchronize the
	// iterator; the device has never been observed to send one.
	kindUnknown
)

// bodyLen is the fixed body length per kind; the cursor always advances
// by obisHeaderLen + bodyLen so iteration terminates even on
// unrecognized content.
func (k blockKind) bodyLen() int {
	if k == kindCounter {
		return 8
	}
	return 4
}

// Decoder turns raw Speedwire datagrams into Records. It carries only a
// logger and is safe for concurrent use on independent buffers.
type Decoder struct {
	logger zerolog.Logger
}

// NewDecoder creates a Decoder logging diagnostics to the given logger.
func NewDecoder(logger zerolog.Logger) *Decoder {
	return &Decoder{logger: logger.With().Str("component", "speedwire").Logger()}
}

// decodeOBISHeader splits a 4-byte OBIS block header into the
// measurement identifier and the decoded kind.
func (d *Decoder) decodeOBISHeader(hdr []byte) (uint16, blockKind) {
	measurement := binary.BigEndian.Uint16(hdr[0:2])
	rawType := hdr[2]

	switch {
	case rawType == 4:
		return measurement, kindActual
	case rawType == 8:
		return measurement, kindCounter
	case rawType == 0 && measurement == VersionChannelID:
		return measurement, kindVersion
	default:
		d.logger.Warn().
			Uint16("measurement", measurement).
			Uint8("raw_type", rawType).
			Msg("Unknown OBIS datatype, skipping block")
		return measurement, kindUnknown
	}
}

// Decode parses one datagram. Non-data input (wrong magic marker,
// keep-alive telegrams, truncated headers) yields an empty Record; a
// bad block never aborts decoding of the blocks after it.
func (d *Decoder) Decode(datagram []byte) Record {
	rec := Record{}

	if len(datagram) < blockStart || string(datagram[:3]) != headerMagic {
		return rec
	}

	datalen := int(binary.BigEndian.Uint16(datagram[lengthOffset:lengthOffset+2])) + lengthBias
	if datalen == keepAliveLength {
		return rec
	}
	if datalen > len(datagram) {
		d.logger.Warn().
			Int("declared_len", datalen).
			Int("buffer_len", len(datagram)).
			Msg("Datagram shorter than declared length, decoding available bytes")
		datalen = len(datagram)
	}

	rec["serial"] = binary.BigEndian.Uint32(datagram[serialOffset : serialOffset+4])
	rec["timestamp"] = binary.BigEndian.Uint32(datagram[timestampOffset : timestampOffset+4])

	pos := blockStart
	for pos+obisHeaderLen <= datalen {
		measurement, kind := d.decodeOBISHeader(datagram[pos : pos+obisHeaderLen])
		body := datagram[pos+obisHeaderLen:]
		if len(body) < kind.bodyLen() {
			d.logger.Warn().
				Uint16("measurement", measurement).
				Int("pos", pos).
				Msg("Truncated OBIS block, stopping iteration")
			break
		}
		body = body[:kind.bodyLen()]
		pos += obisHeaderLen + kind.bodyLen()

		switch kind {
		case kindActual:
			ch, ok := LookupChannel(measurement)
			if !ok || ch.ActualUnit == "" {
				continue
			}
			div, ok := DivisorFor(ch.ActualUnit)
			if !ok {
				continue
			}
			raw := int32(binary.BigEndian.Uint32(body))
			rec[ch.Name] = float64(raw) / float64(div)
			rec[ch.Name+"unit"] = ch.ActualUnit

		case kindCounter:
			ch, ok := LookupChannel(measurement)
			if !ok || ch.TotalUnit == "" {
				continue
			}
			div, ok := DivisorFor(ch.TotalUnit)
			if !ok {
				continue
			}
			raw := binary.BigEndian.Uint64(body)
			rec[ch.Name+"counter"] = float64(raw) / float64(div)
			rec[ch.Name+"counterunit"] = ch.TotalUnit

		case kindVersion:
			ch, ok := LookupChannel(measurement)
			if !ok {
				continue
			}
			rec[ch.Name] = formatVersion(body)

		case kindUnknown:
			// Header diagnostic already logged; fixed-size skip.
		}
	}

	for _, adj := range deriveSignedCurrents(rec) {
		if adj.Applied {
			continue
		}
		d.logger.Debug().
			Int("phase", adj.Phase).
			Str("reason", adj.Reason).
			Msg("Signed current not derived for phase")
	}

	return rec
}
