package cmd

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	// cfgFile points at the optional YAML configuration file; flags and
	// SMA2MQTT_* environment variables override its values.
	cfgFile string

	// logLevel controls the verbosity of the logger.
	logLevel string
)

// rootCmd is the entry point for the sma2mqtt binary.
var rootCmd = &cobra.Command{
	Use:   "sma2mqtt",
	Short: "Bridge SMA Energy Meter multicast telemetry to MQTT.",
	Long: `sma2mqtt listens for Speedwire datagrams broadcast by an SMA
Home Manager 2.0 / Energy Meter on the local network, decodes them into
engineering-unit measurements, and publishes every value to MQTT.

It can also generate Home Assistant MQTT discovery configuration so the
meter's sensors appear automatically.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs
		consoleWriter := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
		log.Logger = zerolog.New(consoleWriter).With().Timestamp().Logger()

		level, err := zerolog.ParseLevel(logLevel)
		if err != nil {
			log.Warn().Str("provided_level", logLevel).Msg("Invalid log level provided. Defaulting to 'info'.")
			zerolog.SetGlobalLevel(zerolog.InfoLevel)
		} else {
			zerolog.SetGlobalLevel(level)
		}
		return nil
	},
}

// Execute runs the root command; called from cmd/cli.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "Path to the YAML configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Set the logging level (trace, debug, info, warn, error)")
}
