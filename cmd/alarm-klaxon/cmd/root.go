package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oshokin/alarm-klaxon/internal/service/daemon"
	"github.com/oshokin/alarm-klaxon/internal/version"
)

var (
	// configPath to the configuration YAML file.
	configPath string
	// metricsAddress overrides the Prometheus listen address.
	metricsAddress string
	// logLevel overrides the configured log level.
	logLevel string
	// skipInstanceCheck allows a second daemon on the same host.
	skipInstanceCheck bool

	// rootCmd represents the base command for running the delivery daemon.
	rootCmd = &cobra.Command{
		Use:   "alarm-klaxon [listen-address]",
		Short: "Run the alarm delivery daemon.",
		Long: `Starts the daemon that rings alarms: it plays the alarm sound with a rising
volume, vibrates, shows notifications and reacts to snooze, dismiss and phone calls.

The scheduler delivers fire events over gRPC; the notification surface watches
the outbound stream and sends user actions back. Snoozes are persisted to a JSON
file or an SQLite database. Listen address can be provided as argument to
override config (e.g., 127.0.0.1:50071).`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			var listenAddress string
			if len(args) > 0 {
				listenAddress = args[0]
			}

			return daemon.Run(ctx, &daemon.Options{
				ConfigPath:        configPath,
				ListenAddress:     listenAddress,
				MetricsAddress:    metricsAddress,
				LogLevel:          logLevel,
				SkipInstanceCheck: skipInstanceCheck,
			})
		},
	}
)

// Execute runs the alarm-klaxon CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "", "path to configuration file (defaults apply when the standard file is missing)")
	rootCmd.Flags().StringVarP(&metricsAddress, "metrics", "m", "", "Prometheus listen address override")
	rootCmd.Flags().StringVarP(&logLevel, "log-level", "l", "", "log level override (debug, info, warn, error)")

	// Hidden flag for running several daemons on one host in tests.
	rootCmd.Flags().BoolVar(&skipInstanceCheck, "skip-instance-check", false, "allow more than one daemon per host")

	err := rootCmd.Flags().MarkHidden("skip-instance-check")
	if err != nil {
		panic(err)
	}
}
