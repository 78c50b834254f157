package cmd

import (
	"context"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/oshokin/alarm-klaxon/internal/domain/alarm"
	"github.com/oshokin/alarm-klaxon/internal/service/control"
)

// fireFlags holds the fire event fields given on the command line.
//
//nolint:gochecknoglobals // Cobra flag storage.
var fireFlags struct {
	at            string
	label         string
	alert         string
	vibrate       bool
	silent        bool
	repeating     bool
	powerOffAlarm bool
	retry         time.Duration
}

//nolint:gochecknoglobals // Cobra command tree.
var fireCmd = &cobra.Command{
	Use:   "fire <alarm-id>",
	Short: "Deliver a fire event.",
	Long: `Delivers one alarm occurrence, as the scheduler would when the alarm is due.
The scheduled time defaults to now; events more than thirty minutes late are dropped.`,
	Args: cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		id, err := strconv.Atoi(args[0])
		if err != nil {
			return err
		}

		scheduledAt, err := control.ParseTime(fireFlags.at)
		if err != nil {
			return err
		}

		event := &alarm.FireEvent{
			ID:            id,
			ScheduledAt:   scheduledAt,
			Label:         fireFlags.label,
			Alert:         fireFlags.alert,
			Vibrate:       fireFlags.vibrate,
			Silent:        fireFlags.silent,
			Repeating:     fireFlags.repeating,
			PowerOffAlarm: fireFlags.powerOffAlarm,
		}

		return withSession(control.Options{RetryInterval: fireFlags.retry},
			func(ctx context.Context, s *control.Session) error {
				return s.Fire(ctx, event)
			})
	},
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	flags := fireCmd.Flags()
	flags.StringVar(&fireFlags.at, "at", "", "scheduled time, RFC 3339 (default now)")
	flags.StringVar(&fireFlags.label, "label", "", "alarm label")
	flags.StringVar(&fireFlags.alert, "alert", "", "sound reference (default alarm sound)")
	flags.BoolVar(&fireFlags.vibrate, "vibrate", false, "vibrate while ringing")
	flags.BoolVar(&fireFlags.silent, "silent", false, "ring without sound")
	flags.BoolVar(&fireFlags.repeating, "repeating", false, "alarm recurs on some weekdays")
	flags.BoolVar(&fireFlags.powerOffAlarm, "power-off-alarm", false, "power the host off when the alarm times out")
	flags.DurationVar(&fireFlags.retry, "retry", 0, "retry interval while the daemon is unavailable (0 disables)")
}
