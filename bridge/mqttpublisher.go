package bridge

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/homewire/sma2mqtt/speedwire"
)

// ErrNoSerial is returned when a record carries no serial number and
// therefore cannot be mapped onto the per-device topic tree.
var ErrNoSerial = errors.New("record has no serial number")

// MQTTPublisherConfig holds the broker connection settings.
type MQTTPublisherConfig struct {
	BrokerURL          string        `mapstructure:"broker_url"`
	TopicPrefix        string        `mapstructure:"topic_prefix"`
	ClientIDPrefix     string        `mapstructure:"client_id_prefix"`
	Username           string        `mapstructure:"username"`
	Password           string        `mapstructure:"password"`
	KeepAlive          time.Duration `mapstructure:"keep_alive"`
	ConnectTimeout     time.Duration `mapstructure:"connect_timeout"`
	ReconnectWaitMax   time.Duration `mapstructure:"reconnect_wait_max"`
	CACertFile         string        `mapstructure:"ca_cert_file"`
	ClientCertFile     string        `mapstructure:"client_cert_file"`
	ClientKeyFile      string        `mapstructure:"client_key_file"`
	InsecureSkipVerify bool          `mapstructure:"insecure_skip_verify"`
}

// MQTTPublisher implements MessagePublisher over a paho MQTT client.
// Every record key is published as its own message under
// <topic_prefix>/<serial>/<key>, matching what downstream dashboards
// and the discovery configs subscribe to.
type MQTTPublisher struct {
	cfg    *MQTTPublisherConfig
	client mqtt.Client
	logger zerolog.Logger
}

// NewMQTTPublisher creates the paho client and connects to the broker.
func NewMQTTPublisher(cfg *MQTTPublisherConfig, logger zerolog.Logger) (*MQTTPublisher, error) {
	if cfg.BrokerURL == "" {
		return nil, errors.New("MQTT broker URL missing")
	}

	p := &MQTTPublisher{
		cfg:    cfg,
		logger: logger.With().Str("component", "mqtt_publisher").Logger(),
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.BrokerURL)
	opts.SetClientID(fmt.Sprintf("%s%s", cfg.ClientIDPrefix, uuid.NewString()[:8]))
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)
	opts.SetKeepAlive(cfg.KeepAlive)
	opts.SetConnectTimeout(cfg.ConnectTimeout)
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(cfg.ReconnectWaitMax)
	opts.SetOnConnectHandler(p.onConnect)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		p.logger.Error().Err(err).Msg("Lost MQTT connection")
	})

	if needsTLS(cfg.BrokerURL) {
		tlsConfig, err := newTLSConfig(cfg, p.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create TLS config: %w", err)
		}
		opts.SetTLSConfig(tlsConfig)
		p.logger.Info().Msg("TLS configured for MQTT client.")
	}

	p.client = mqtt.NewClient(opts)
	p.logger.Info().Str("broker", cfg.BrokerURL).Str("client_id", opts.ClientID).Msg("Connecting MQTT client...")
	if token := p.client.Connect(); token.WaitTimeout(cfg.ConnectTimeout) && token.Error() != nil {
		return nil, fmt.Errorf("MQTT connect: %w", token.Error())
	}
	return p, nil
}

// onConnect announces the bridge on the status topic so consumers can
// tell a silent meter from a disconnected bridge.
func (p *MQTTPublisher) onConnect(client mqtt.Client) {
	p.logger.Info().Str("broker", p.cfg.BrokerURL).Msg("MQTT client connected")
	topic := p.cfg.TopicPrefix + "/Status"
	if token := client.Publish(topic, 0, true, "connected"); token.Wait() && token.Error() != nil {
		p.logger.Warn().Err(token.Error()).Str("topic", topic).Msg("Failed to publish status message")
	}
}

// Publish writes every key of the record to its per-device topic.
func (p *MQTTPublisher) Publish(ctx context.Context, rec speedwire.Record) error {
	serial, ok := rec.SerialString()
	if !ok {
		return ErrNoSerial
	}

	var firstErr error
	for key, value := range rec {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		topic := fmt.Sprintf("%s/%s/%s", p.cfg.TopicPrefix, serial, key)
		token := p.client.Publish(topic, 0, false, formatValue(value))
		if token.Wait() && token.Error() != nil {
			p.logger.Error().Err(token.Error()).Str("topic", topic).Msg("Failed to publish value")
			if firstErr == nil {
				firstErr = fmt.Errorf("publish %s: %w", topic, token.Error())
			}
		}
	}
	return firstErr
}

// PublishRaw publishes an arbitrary payload, used by the discovery
// package for retained config messages.
func (p *MQTTPublisher) PublishRaw(ctx context.Context, topic string, payload []byte, retained bool) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	if token := p.client.Publish(topic, 0, retained, payload); token.Wait() && token.Error() != nil {
		return fmt.Errorf("publish %s: %w", topic, token.Error())
	}
	return nil
}

// Stop disconnects from the broker.
func (p *MQTTPublisher) Stop() {
	if p.client != nil && p.client.IsConnected() {
		p.logger.Info().Msg("Disconnecting MQTT client...")
		p.client.Disconnect(250)
	}
}

// formatValue renders a record value as an MQTT payload.
func formatValue(value any) string {
	switch v := value.(type) {
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case uint32:
		return strconv.FormatUint(uint64(v), 10)
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

func needsTLS(brokerURL string) bool {
	lower := strings.ToLower(brokerURL)
	return strings.HasPrefix(lower, "tls://") || strings.HasPrefix(lower, "ssl://") || strings.HasSuffix(lower, ":8883")
}

// newTLSConfig creates a TLS configuration for the MQTT client.
func newTLSConfig(cfg *MQTTPublisherConfig, logger zerolog.Logger) (*tls.Config, error) {
	tlsConfig := &tls.Config{
		InsecureSkipVerify: cfg.InsecureSkipVerify,
	}

	if cfg.CACertFile != "" {
		caCert, err := os.ReadFile(cfg.CACertFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA certificate file %s: %w", cfg.CACertFile, err)
		}
		caCertPool := x509.NewCertPool()
		if !caCertPool.AppendCertsFromPEM(caCert) {
			return nil, fmt.Errorf("failed to append CA certificate from %s to pool", cfg.CACertFile)
		}
		tlsConfig.RootCAs = caCertPool
		logger.Info().Str("ca_cert_file", cfg.CACertFile).Msg("CA certificate loaded")
	}

	if cfg.ClientCertFile != "" && cfg.ClientKeyFile != "" {
		cert, err := tls.LoadX509KeyPair(cfg.ClientCertFile, cfg.ClientKeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load client certificate/key pair: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
		logger.Info().Msg("Client certificate and key loaded for mTLS")
	} else if cfg.ClientCertFile != "" || cfg.ClientKeyFile != "" {
		logger.Warn().Msg("Client certificate or key file provided without its pair; mTLS will not be configured.")
	}

	return tlsConfig, nil
}
