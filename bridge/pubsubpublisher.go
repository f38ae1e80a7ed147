package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"

	"cloud.google.com/go/pubsub"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"

	"github.com/homewire/sma2mqtt/speedwire"
)

// PubSubPublisherConfig holds configuration for the optional Google
// Cloud Pub/Sub backend.
type PubSubPublisherConfig struct {
	ProjectID       string `mapstructure:"project_id"`
	TopicID         string `mapstructure:"topic_id"`
	CredentialsFile string `mapstructure:"credentials_file"`
}

// PubSubPublisher implements MessagePublisher for Google Cloud Pub/Sub.
// Unlike the MQTT backend it publishes each record as one JSON message
// with serial and timestamp attributes, for cloud-side ingestion.
type PubSubPublisher struct {
	client *pubsub.Client
	topic  *pubsub.Topic
	logger zerolog.Logger
}

// NewPubSubPublisher creates a new publisher for Google Cloud Pub/Sub.
// PUBSUB_EMULATOR_HOST redirects it to a local emulator.
func NewPubSubPublisher(ctx context.Context, cfg *PubSubPublisherConfig, logger zerolog.Logger) (*PubSubPublisher, error) {
	if cfg.ProjectID == "" {
		return nil, errors.New("pub/sub project ID missing")
	}
	if cfg.TopicID == "" {
		return nil, errors.New("pub/sub topic ID missing")
	}

	log := logger.With().Str("component", "pubsub_publisher").Logger()

	var opts []option.ClientOption
	if emulatorHost := os.Getenv("PUBSUB_EMULATOR_HOST"); emulatorHost != "" {
		log.Info().Str("emulator_host", emulatorHost).Msg("Using Pub/Sub emulator")
		opts = append(opts, option.WithEndpoint(emulatorHost), option.WithoutAuthentication())
	} else if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
		log.Info().Str("credentials_file", cfg.CredentialsFile).Msg("Using credentials file for Pub/Sub")
	} else {
		log.Info().Msg("Using Application Default Credentials (ADC) for Pub/Sub")
	}

	client, err := pubsub.NewClient(ctx, cfg.ProjectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("pubsub.NewClient: %w", err)
	}

	topic := client.Topic(cfg.TopicID)
	log.Info().Str("project_id", cfg.ProjectID).Str("topic_id", cfg.TopicID).Msg("PubSubPublisher initialized")
	return &PubSubPublisher{client: client, topic: topic, logger: log}, nil
}

// Publish marshals the record to JSON and publishes it.
func (p *PubSubPublisher) Publish(ctx context.Context, rec speedwire.Record) error {
	serial, ok := rec.SerialString()
	if !ok {
		return ErrNoSerial
	}

	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}

	attrs := map[string]string{"serial": serial}
	if ts, ok := rec["timestamp"].(uint32); ok {
		attrs["timestamp"] = strconv.FormatUint(uint64(ts), 10)
	}

	result := p.topic.Publish(ctx, &pubsub.Message{Data: payload, Attributes: attrs})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("pubsub publish: %w", err)
	}
	return nil
}

// Stop flushes pending messages and closes the client.
func (p *PubSubPublisher) Stop() {
	p.logger.Info().Msg("Stopping PubSubPublisher...")
	if p.topic != nil {
		p.topic.Stop()
	}
	if p.client != nil {
		if err := p.client.Close(); err != nil {
			p.logger.Warn().Err(err).Msg("Error closing Pub/Sub client")
		}
	}
}
