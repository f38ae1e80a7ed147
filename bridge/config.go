package bridge

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/homewire/sma2mqtt/listener"
)

// DiscoveryConfig controls Home Assistant autodiscovery publishing.
type DiscoveryConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	Prefix     string `mapstructure:"prefix"`
	DeviceName string `mapstructure:"device_name"`
	SamplePath string `mapstructure:"sample_path"`
}

// Config holds all configuration for the bridge binary, grouped per
// component.
type Config struct {
	// LogLevel for the application-wide logger ("debug", "info", ...).
	LogLevel string `mapstructure:"log_level"`

	// Publisher selects the backend: "mqtt" or "pubsub".
	Publisher string `mapstructure:"publisher"`

	Listener  listener.Config       `mapstructure:"listener"`
	MQTT      MQTTPublisherConfig   `mapstructure:"mqtt"`
	PubSub    PubSubPublisherConfig `mapstructure:"pubsub"`
	Service   ServiceConfig         `mapstructure:"service"`
	Discovery DiscoveryConfig       `mapstructure:"discovery"`
}

// LoadConfig initializes and loads the application configuration:
// defaults first, then the optional YAML file, then SMA2MQTT_*
// environment variables, then command-line flags.
func LoadConfig(configFile string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	// --- Defaults ---
	v.SetDefault("log_level", "info")
	v.SetDefault("publisher", "mqtt")

	lst := listener.DefaultConfig()
	v.SetDefault("listener.group", lst.Group)
	v.SetDefault("listener.port", lst.Port)
	v.SetDefault("listener.interface", lst.Interface)
	v.SetDefault("listener.read_buffer", lst.ReadBuffer)
	v.SetDefault("listener.max_datagram_size", lst.MaxDatagramSize)
	v.SetDefault("listener.chan_capacity", lst.ChanCapacity)

	v.SetDefault("mqtt.broker_url", "tcp://127.0.0.1:1883")
	v.SetDefault("mqtt.topic_prefix", "sma/data")
	v.SetDefault("mqtt.client_id_prefix", "sma2mqtt-")
	v.SetDefault("mqtt.username", "")
	v.SetDefault("mqtt.password", "")
	v.SetDefault("mqtt.keep_alive", 60*time.Second)
	v.SetDefault("mqtt.connect_timeout", 10*time.Second)
	v.SetDefault("mqtt.reconnect_wait_max", 2*time.Minute)
	v.SetDefault("mqtt.ca_cert_file", "")
	v.SetDefault("mqtt.client_cert_file", "")
	v.SetDefault("mqtt.client_key_file", "")
	v.SetDefault("mqtt.insecure_skip_verify", false)

	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic_id", "")
	v.SetDefault("pubsub.credentials_file", "")

	svc := DefaultServiceConfig()
	v.SetDefault("service.num_workers", svc.NumWorkers)
	v.SetDefault("service.publish_timeout", svc.PublishTimeout)

	v.SetDefault("discovery.enabled", false)
	v.SetDefault("discovery.prefix", "homeassistant")
	v.SetDefault("discovery.device_name", "SMA Energy Meter")
	v.SetDefault("discovery.sample_path", "sampledata.json")

	// --- Optional config file ---
	if configFile != "" {
		v.SetConfigFile(configFile)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", configFile, err)
		}
	}

	// --- Environment variables ---
	// e.g. SMA2MQTT_MQTT_BROKER_URL overrides mqtt.broker_url.
	v.SetEnvPrefix("SMA2MQTT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	// --- Command-line overrides ---
	// Flags are registered by the cobra command with empty defaults;
	// only flags the user actually set win over file and env values.
	if flags != nil {
		applyFlagOverrides(&cfg, flags)
	}

	if cfg.Publisher != "mqtt" && cfg.Publisher != "pubsub" {
		return nil, fmt.Errorf("unknown publisher %q (want mqtt or pubsub)", cfg.Publisher)
	}
	return &cfg, nil
}

func applyFlagOverrides(cfg *Config, flags *pflag.FlagSet) {
	override := map[string]func(string){
		"log-level":    func(s string) { cfg.LogLevel = s },
		"publisher":    func(s string) { cfg.Publisher = s },
		"group":        func(s string) { cfg.Listener.Group = s },
		"interface":    func(s string) { cfg.Listener.Interface = s },
		"broker":       func(s string) { cfg.MQTT.BrokerURL = s },
		"topic-prefix": func(s string) { cfg.MQTT.TopicPrefix = s },
	}
	for name, apply := range override {
		if f := flags.Lookup(name); f != nil && f.Changed {
			apply(f.Value.String())
		}
	}
	if f := flags.Lookup("port"); f != nil && f.Changed {
		if port, err := flags.GetInt("port"); err == nil {
			cfg.Listener.Port = port
		}
	}
	if f := flags.Lookup("discover"); f != nil && f.Changed {
		if enabled, err := flags.GetBool("discover"); err == nil {
			cfg.Discovery.Enabled = enabled
		}
	}
}
