package bridge

import (
	"context"

	"github.com/homewire/sma2mqtt/speedwire"
)

// MessagePublisher delivers decoded meter records to a downstream
// system. Implementations exist for MQTT (per-key topics, the bridge's
// native output) and Google Cloud Pub/Sub (whole-record JSON).
type MessagePublisher interface {
	Publish(ctx context.Context, rec speedwire.Record) error
	Stop() // For releasing resources
}
