package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/homewire/sma2mqtt/bridge"
	"github.com/homewire/sma2mqtt/discovery"
	"github.com/homewire/sma2mqtt/listener"
	"github.com/homewire/sma2mqtt/speedwire"
)

// runCmd starts the bridge daemon.
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the meter-to-MQTT bridge",
	Long: `Joins the Speedwire multicast group, decodes every datagram the
meter broadcasts, and publishes the measurements to the configured
backend until interrupted.`,
	Example: `  sma2mqtt run --broker tcp://broker.lan:1883
  sma2mqtt run -c /etc/sma2mqtt/config.yaml --discover`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := bridge.LoadConfig(cfgFile, cmd.Flags())
		if err != nil {
			return fmt.Errorf("load configuration: %w", err)
		}
		if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
			zerolog.SetGlobalLevel(level)
		}
		log.Info().
			Str("group", cfg.Listener.Group).
			Int("port", cfg.Listener.Port).
			Str("publisher", cfg.Publisher).
			Msg("Starting sma2mqtt bridge")

		ctx := context.Background()

		var publisher bridge.MessagePublisher
		var mqttPublisher *bridge.MQTTPublisher
		switch cfg.Publisher {
		case "mqtt":
			mqttPublisher, err = bridge.NewMQTTPublisher(&cfg.MQTT, log.Logger)
			if err != nil {
				return fmt.Errorf("connect MQTT publisher: %w", err)
			}
			publisher = mqttPublisher
		case "pubsub":
			publisher, err = bridge.NewPubSubPublisher(ctx, &cfg.PubSub, log.Logger)
			if err != nil {
				return fmt.Errorf("create Pub/Sub publisher: %w", err)
			}
		}

		lst := listener.New(cfg.Listener, log.Logger)
		svc := bridge.NewService(publisher, lst.Datagrams, log.Logger, cfg.Service)

		if cfg.Discovery.Enabled {
			if mqttPublisher == nil {
				log.Warn().Msg("Discovery is only supported with the MQTT publisher, skipping")
			} else {
				svc.RecordHook = firstRecordHook(ctx, cfg, mqttPublisher)
			}
		}

		if err := svc.Start(); err != nil {
			return fmt.Errorf("start bridge service: %w", err)
		}
		if err := lst.Start(); err != nil {
			svc.Stop()
			return fmt.Errorf("start listener: %w", err)
		}

		// Surface publish errors without stopping the bridge.
		go func() {
			for err := range svc.ErrorChan {
				log.Warn().Err(err).Msg("Publish error")
			}
		}()

		sigs := make(chan os.Signal, 1)
		signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigs
		log.Info().Str("signal", sig.String()).Msg("Shutdown signal received, exiting...")

		lst.Stop()
		svc.Stop()
		return nil
	},
}

// firstRecordHook writes the first decoded record to the sample file
// and publishes the Home Assistant discovery configs once.
func firstRecordHook(ctx context.Context, cfg *bridge.Config, publisher *bridge.MQTTPublisher) func(speedwire.Record) {
	var once sync.Once
	return func(rec speedwire.Record) {
		once.Do(func() {
			if err := discovery.WriteSample(cfg.Discovery.SamplePath, rec); err != nil {
				log.Warn().Err(err).Str("path", cfg.Discovery.SamplePath).Msg("Could not write sample record")
			}
			discoveryCfg := discovery.Config{
				Prefix:           cfg.Discovery.Prefix,
				StateTopicPrefix: cfg.MQTT.TopicPrefix,
				DeviceName:       cfg.Discovery.DeviceName,
				Manufacturer:     "SMA",
				Model:            "Energy Meter",
			}
			if _, err := discovery.Publish(ctx, publisher, rec, discoveryCfg, log.Logger); err != nil {
				log.Warn().Err(err).Msg("Could not publish discovery configuration")
			}
		})
	}
}

func init() {
	runCmd.Flags().String("broker", "", "MQTT broker URL (overrides config)")
	runCmd.Flags().String("topic-prefix", "", "MQTT topic prefix (overrides config)")
	runCmd.Flags().String("publisher", "", "Publisher backend: mqtt or pubsub (overrides config)")
	runCmd.Flags().String("group", "", "Multicast group to join (overrides config)")
	runCmd.Flags().Int("port", 0, "Multicast port (overrides config)")
	runCmd.Flags().String("interface", "", "Network interface to listen on (overrides config)")
	runCmd.Flags().Bool("discover", false, "Publish Home Assistant discovery configs after the first datagram")
	rootCmd.AddCommand(runCmd)
}
