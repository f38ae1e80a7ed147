package speedwire

// Channel describes one measurement channel broadcast by the SMA Home
// Manager / Energy Meter family. ActualUnit applies to instantaneous
// readings, TotalUnit to the cumulative counter. An empty unit means
// that half of the channel does not exist on the wire (the version
// pseudo-channel has neither).
type Channel struct {
	ID         uint16
	Name       string
	ActualUnit string
	TotalUnit  string
}

// VersionChannelID is the pseudo-channel carrying the firmware version.
const VersionChannelID uint16 = 36864

// channels maps the OBIS measurement identifier to its definition.
var channels = map[uint16]Channel{
	// Totals
	1:  {1, "pconsume", "W", "kWh"},
	2:  {2, "psupply", "W", "kWh"},
	3:  {3, "qconsume", "VAr", "kVArh"},
	4:  {4, "qsupply", "VAr", "kVArh"},
	9:  {9, "sconsume", "VA", "kVAh"},
	10: {10, "ssupply", "VA", "kVAh"},
	13: {13, "cosphi", "°", ""},
	14: {14, "frequency", "Hz", ""},
	// Phase 1
	21: {21, "p1consume", "W", "kWh"},
	22: {22, "p1supply", "W", "kWh"},
	23: {23, "q1consume", "VAr", "kVArh"},
	24: {24, "q1supply", "VAr", "kVArh"},
	29: {29, "s1consume", "VA", "kVAh"},
	30: {30, "s1supply", "VA", "kVAh"},
	31: {31, "i1", "A", ""},
	32: {32, "u1", "V", ""},
	33: {33, "cosphi1", "°", ""},
	// Phase 2
	41: {41, "p2consume", "W", "kWh"},
	42: {42, "p2supply", "W", "kWh"},
	43: {43, "q2consume", "VAr", "kVArh"},
	44: {44, "q2supply", "VAr", "kVArh"},
	49: {49, "s2consume", "VA", "kVAh"},
	50: {50, "s2supply", "VA", "kVAh"},
	51: {51, "i2", "A", ""},
	52: {52, "u2", "V", ""},
	53: {53, "cosphi2", "°", ""},
	// Phase 3
	61: {61, "p3consume", "W", "kWh"},
	62: {62, "p3supply", "W", "kWh"},
	63: {63, "q3consume", "VAr", "kVArh"},
	64: {64, "q3supply", "VAr", "kVArh"},
	69: {69, "s3consume", "VA", "kVAh"},
	70: {70, "s3supply", "VA", "kVAh"},
	71: {71, "i3", "A", ""},
	72: {72, "u3", "V", ""},
	73: {73, "cosphi3", "°", ""},
	// Common
	VersionChannelID: {VersionChannelID, "speedwire-version", "", ""},
}

// unitDivisors maps a unit symbol to the divisor that turns the raw
// integer reading into the engineering value for that unit.
var unitDivisors = map[string]int64{
	"W":     10,
	"VA":    10,
	"VAr":   10,
	"kWh":   3_600_000,
	"kVAh":  3_600_000,
	"kVArh": 3_600_000,
	"A":     1_000,
	"V":     1_000,
	"°":     1_000,
	"Hz":    1_000,
}

// LookupChannel returns the definition for a measurement identifier.
func LookupChannel(id uint16) (Channel, bool) {
	ch, ok := channels[id]
	return ch, ok
}

// DivisorFor returns the scaling divisor for a unit symbol.
func DivisorFor(unit string) (int64, bool) {
	d, ok := unitDivisors[unit]
	return d, ok
}

// Channels returns a copy of the channel table, keyed by identifier.
func Channels() map[uint16]Channel {
	out := make(map[uint16]Channel, len(channels))
	for id, ch := range channels {
		out[id] = ch
	}
	return out
}
