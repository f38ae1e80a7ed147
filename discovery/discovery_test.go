package discovery

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/homewire/sma2mqtt/speedwire"
)

func sampleRecord() speedwire.Record {
	return speedwire.Record{
		"serial":              uint32(3012345678),
		"timestamp":           uint32(99),
		"pconsume":            234.5,
		"pconsumeunit":        "W",
		"pconsumecounter":     12.345,
		"pconsumecounterunit": "kWh",
		"speedwire-version":   "1.2.3.S|010203",
	}
}

func findMessage(t *testing.T, messages []Message, topic string) sensorConfig {
	t.Helper()
	for _, msg := range messages {
		if msg.Topic == topic {
			var cfg sensorConfig
			require.NoError(t, json.Unmarshal(msg.Payload, &cfg))
			return cfg
		}
	}
	t.Fatalf("no message for topic %s", topic)
	return sensorConfig{}
}

func TestBuildMessages(t *testing.T) {
	messages, err := BuildMessages(sampleRecord(), DefaultConfig())
	require.NoError(t, err)

	// serial, timestamp, pconsume, pconsumecounter, speedwire-version;
	// the two unit keys are folded, not emitted.
	assert.Len(t, messages, 5, "unit companion keys must not become sensors")
	for _, msg := range messages {
		assert.True(t, msg.Retained, "discovery configs must be retained")
	}

	t.Run("SensorWithUnit", func(t *testing.T) {
		cfg := findMessage(t, messages, "homeassistant/sensor/sma_3012345678/pconsume/config")
		assert.Equal(t, "Pconsume", cfg.Name)
		assert.Equal(t, "sma/data/3012345678/pconsume", cfg.StateTopic)
		assert.Equal(t, "sma_3012345678_pconsume", cfg.UniqueID)
		assert.Equal(t, "W", cfg.UnitOfMeasurement)
		assert.Empty(t, cfg.DeviceClass, "instantaneous power is not an energy counter")
		assert.Equal(t, []string{"sma_3012345678"}, cfg.Device.Identifiers)
		assert.Equal(t, "SMA", cfg.Device.Manufacturer)
	})

	t.Run("EnergyCounter", func(t *testing.T) {
		cfg := findMessage(t, messages, "homeassistant/sensor/sma_3012345678/pconsumecounter/config")
		assert.Equal(t, "energy", cfg.DeviceClass)
		assert.Equal(t, "total_increasing", cfg.StateClass)
		assert.Equal(t, "kWh", cfg.UnitOfMeasurement)
	})

	t.Run("UnitlessSensor", func(t *testing.T) {
		cfg := findMessage(t, messages, "homeassistant/sensor/sma_3012345678/speedwire-version/config")
		assert.Empty(t, cfg.UnitOfMeasurement)
		assert.Empty(t, cfg.DeviceClass)
	})
}

func TestBuildMessagesRequiresSerial(t *testing.T) {
	_, err := BuildMessages(speedwire.Record{"pconsume": 1.0}, DefaultConfig())
	assert.ErrorIs(t, err, ErrNoSerial)
}

func TestBuildMessagesFromLoadedSample(t *testing.T) {
	// Round trip through the sample file: JSON turns the serial into a
	// float64, which must still produce the same topics.
	path := filepath.Join(t.TempDir(), "sampledata.json")
	require.NoError(t, WriteSample(path, sampleRecord()))

	rec, err := LoadSample(path)
	require.NoError(t, err)

	messages, err := BuildMessages(rec, DefaultConfig())
	require.NoError(t, err)
	assert.Len(t, messages, 5)
	findMessage(t, messages, "homeassistant/sensor/sma_3012345678/pconsume/config")
}

func TestLoadSampleMissingFile(t *testing.T) {
	_, err := LoadSample(filepath.Join(t.TempDir(), "nope.json"))
	assert.Error(t, err)
}

// fakePublisher records published messages.
type fakePublisher struct {
	topics   []string
	retained int
	err      error
}

func (f *fakePublisher) PublishRaw(_ context.Context, topic string, _ []byte, retained bool) error {
	if f.err != nil {
		return f.err
	}
	f.topics = append(f.topics, topic)
	if retained {
		f.retained++
	}
	return nil
}

func TestPublish(t *testing.T) {
	pub := &fakePublisher{}
	n, err := Publish(context.Background(), pub, sampleRecord(), DefaultConfig(), zerolog.Nop())

	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Len(t, pub.topics, 5)
	assert.Equal(t, 5, pub.retained, "every discovery message must be retained")
}

func TestCapitalize(t *testing.T) {
	assert.Equal(t, "Pconsume", capitalize("pconsume"))
	assert.Equal(t, "I1", capitalize("i1"))
	assert.Equal(t, "", capitalize(""))
}
