package cmd

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/homewire/sma2mqtt/bridge"
	"github.com/homewire/sma2mqtt/discovery"
)

// discoverCmd publishes Home Assistant discovery configs from a sample
// record without needing a live meter.
var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Publish Home Assistant discovery configs from a sample record",
	Long: `Reads a sample record previously captured by 'run' (or written by
hand) and publishes one retained discovery config message per sensor, so
Home Assistant creates the meter's entities without waiting for the
bridge to see a datagram.`,
	Example: `  sma2mqtt discover --broker tcp://broker.lan:1883
  sma2mqtt discover --sample /var/lib/sma2mqtt/sampledata.json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := bridge.LoadConfig(cfgFile, cmd.Flags())
		if err != nil {
			return fmt.Errorf("load configuration: %w", err)
		}

		samplePath := cfg.Discovery.SamplePath
		if flagPath, err := cmd.Flags().GetString("sample"); err == nil && flagPath != "" {
			samplePath = flagPath
		}

		rec, err := discovery.LoadSample(samplePath)
		if err != nil {
			return err
		}

		publisher, err := bridge.NewMQTTPublisher(&cfg.MQTT, log.Logger)
		if err != nil {
			return fmt.Errorf("connect MQTT publisher: %w", err)
		}
		defer publisher.Stop()

		discoveryCfg := discovery.Config{
			Prefix:           cfg.Discovery.Prefix,
			StateTopicPrefix: cfg.MQTT.TopicPrefix,
			DeviceName:       cfg.Discovery.DeviceName,
			Manufacturer:     "SMA",
			Model:            "Energy Meter",
		}
		n, err := discovery.Publish(context.Background(), publisher, rec, discoveryCfg, log.Logger)
		if err != nil {
			return err
		}
		log.Info().Int("sensors", n).Str("sample", samplePath).Msg("Discovery configuration published")
		return nil
	},
}

func init() {
	discoverCmd.Flags().String("sample", "", "Path to the sample record JSON (defaults to discovery.sample_path)")
	discoverCmd.Flags().String("broker", "", "MQTT broker URL (overrides config)")
	discoverCmd.Flags().String("topic-prefix", "", "MQTT topic prefix (overrides config)")
	rootCmd.AddCommand(discoverCmd)
}
