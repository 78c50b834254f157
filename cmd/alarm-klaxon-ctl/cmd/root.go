package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oshokin/alarm-klaxon/internal/service/control"
	"github.com/oshokin/alarm-klaxon/internal/version"
)

var (
	// cfgPath stores the configuration file path.
	cfgPath string
	// serverAddress overrides the daemon address from config.
	serverAddress string

	// rootCmd represents the base command for talking to the daemon.
	rootCmd = &cobra.Command{
		Use:   "alarm-klaxon-ctl",
		Short: "Control a running alarm-klaxon daemon.",
		Long: `Sends fire events, call state changes and user actions to the alarm-klaxon
daemon, and prints delivery state or the outbound stream as JSON lines.

This is what a scheduler or a notification surface would call; it is also handy
for ringing an alarm by hand.`,
		SilenceUsage: true,
	}
)

// Execute runs the alarm-klaxon-ctl CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// withSession runs fn against a daemon session bound to a signal-aware context.
func withSession(opts control.Options, fn func(ctx context.Context, s *control.Session) error) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	opts.ConfigPath = cfgPath
	opts.ServerAddress = serverAddress

	session, err := control.Open(ctx, &opts)
	if err != nil {
		return err
	}

	defer func() {
		_ = session.Close()
	}()

	return fn(ctx, session)
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "path to configuration file")
	rootCmd.PersistentFlags().StringVarP(&serverAddress, "server", "s", "", "daemon address override")

	rootCmd.AddCommand(fireCmd, callCmd, cancelSnoozeCmd, invokeCmd, stateCmd, watchCmd)

	for _, action := range []string{"snooze", "dismiss", "open"} {
		rootCmd.AddCommand(newActionCmd(action))
	}
}
