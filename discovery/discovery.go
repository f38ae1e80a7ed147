// Package discovery generates Home Assistant MQTT discovery
// configuration from a decoded meter record. One retained config
// message is published per sensor; Home Assistant picks them up under
// its discovery prefix and creates the entities automatically.
package discovery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/homewire/sma2mqtt/speedwire"
)

// ErrNoSerial is returned when the record carries no serial number; the
// serial anchors both the device identifier and the state topics.
var ErrNoSerial = errors.New("record has no serial number")

// Config controls how discovery messages are generated.
type Config struct {
	// Prefix is the Home Assistant discovery prefix ("homeassistant").
	Prefix string
	// StateTopicPrefix is where the bridge publishes values, e.g.
	// "sma/data"; state topics become <prefix>/<serial>/<key>.
	StateTopicPrefix string
	DeviceName       string
	Manufacturer     string
	Model            string
}

// DefaultConfig matches the topics the bridge publishes by default.
func DefaultConfig() Config {
	return Config{
		Prefix:           "homeassistant",
		StateTopicPrefix: "sma/data",
		DeviceName:       "SMA Energy Meter",
		Manufacturer:     "SMA",
		Model:            "Energy Meter",
	}
}

// Message is one discovery config message ready to publish.
type Message struct {
	Topic    string
	Payload  []byte
	Retained bool
}

// deviceInfo is the device block shared by all sensors of one meter.
type deviceInfo struct {
	Identifiers  []string `json:"identifiers"`
	Manufacturer string   `json:"manufacturer"`
	Model        string   `json:"model"`
	Name         string   `json:"name"`
}

// sensorConfig is the per-sensor discovery payload.
type sensorConfig struct {
	Name              string     `json:"name"`
	StateTopic        string     `json:"state_topic"`
	UniqueID          string     `json:"unique_id"`
	Device            deviceInfo `json:"device"`
	DeviceClass       string     `json:"device_class,omitempty"`
	StateClass        string     `json:"state_class,omitempty"`
	UnitOfMeasurement string     `json:"unit_of_measurement,omitempty"`
}

// BuildMessages renders one retained config message per sensor in the
// record. Unit companion keys ("<name>unit") are folded into their
// sensor's unit_of_measurement and never emitted themselves; energy
// counters are flagged so Home Assistant feeds them into the energy
// dashboard.
func BuildMessages(rec speedwire.Record, cfg Config) ([]Message, error) {
	serial, ok := rec.SerialString()
	if !ok {
		return nil, ErrNoSerial
	}
	deviceID := "sma_" + serial

	device := deviceInfo{
		Identifiers:  []string{deviceID},
		Manufacturer: cfg.Manufacturer,
		Model:        cfg.Model,
		Name:         cfg.DeviceName,
	}

	var messages []Message
	for key := range rec {
		// Unit keys are attributes of their sensor, not sensors.
		if strings.HasSuffix(key, "unit") {
			continue
		}

		unit, _ := rec[key+"unit"].(string)
		sensor := sensorConfig{
			Name:       capitalize(key),
			StateTopic: fmt.Sprintf("%s/%s/%s", cfg.StateTopicPrefix, serial, key),
			UniqueID:   fmt.Sprintf("%s_%s", deviceID, key),
			Device:     device,
		}
		if strings.Contains(key, "counter") {
			sensor.DeviceClass = "energy"
			sensor.StateClass = "total_increasing"
			sensor.UnitOfMeasurement = unit
		} else if unit != "" {
			sensor.UnitOfMeasurement = unit
		}

		payload, err := json.Marshal(sensor)
		if err != nil {
			return nil, fmt.Errorf("marshal discovery config for %s: %w", key, err)
		}
		messages = append(messages, Message{
			Topic:    fmt.Sprintf("%s/sensor/%s/%s/config", cfg.Prefix, deviceID, key),
			Payload:  payload,
			Retained: true,
		})
	}

	sort.Slice(messages, func(i, j int) bool { return messages[i].Topic < messages[j].Topic })
	return messages, nil
}

// Publisher is the subset of the MQTT publisher discovery needs.
type Publisher interface {
	PublishRaw(ctx context.Context, topic string, payload []byte, retained bool) error
}

// Publish builds and publishes all discovery messages for a record.
// It returns the number of messages published.
func Publish(ctx context.Context, pub Publisher, rec speedwire.Record, cfg Config, logger zerolog.Logger) (int, error) {
	messages, err := BuildMessages(rec, cfg)
	if err != nil {
		return 0, err
	}
	for _, msg := range messages {
		if err := pub.PublishRaw(ctx, msg.Topic, msg.Payload, msg.Retained); err != nil {
			return 0, fmt.Errorf("publish %s: %w", msg.Topic, err)
		}
	}
	logger.Info().Int("sensors", len(messages)).Msg("Home Assistant discovery messages published")
	return len(messages), nil
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
