package cmd

import (
	"context"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/oshokin/alarm-klaxon/internal/domain/alarm"
	"github.com/oshokin/alarm-klaxon/internal/service/control"
)

// newActionCmd builds the snooze, dismiss and open commands.
func newActionCmd(action string) *cobra.Command {
	return &cobra.Command{
		Use:   action + " <alarm-id>",
		Short: "Apply the " + action + " action to an alarm.",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			id, err := strconv.Atoi(args[0])
			if err != nil {
				return err
			}

			return withSession(control.Options{}, func(ctx context.Context, s *control.Session) error {
				return s.Action(ctx, id, action)
			})
		},
	}
}

//nolint:gochecknoglobals // Cobra command tree.
var (
	callCmd = &cobra.Command{
		Use:       "call <idle|active>",
		Short:     "Report a phone call state change.",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{alarm.CallIdle.String(), alarm.CallActive.String()},
		RunE: func(_ *cobra.Command, args []string) error {
			return withSession(control.Options{}, func(ctx context.Context, s *control.Session) error {
				return s.Call(ctx, args[0])
			})
		},
	}

	cancelSnoozeCmd = &cobra.Command{
		Use:   "cancel-snooze [alarm-id]",
		Short: "Cancel the snooze of one alarm, or of every alarm.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			id, err := optionalID(args)
			if err != nil {
				return err
			}

			return withSession(control.Options{}, func(ctx context.Context, s *control.Session) error {
				return s.CancelSnooze(ctx, id)
			})
		},
	}

	invokeCmd = &cobra.Command{
		Use:   "invoke <handle>",
		Short: "Invoke a notification action handle.",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return withSession(control.Options{}, func(ctx context.Context, s *control.Session) error {
				return s.Invoke(ctx, args[0])
			})
		},
	}

	stateCmd = &cobra.Command{
		Use:   "state [alarm-id]",
		Short: "Print the delivery state of one alarm, or of every known alarm.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			id, err := optionalID(args)
			if err != nil {
				return err
			}

			return withSession(control.Options{}, func(ctx context.Context, s *control.Session) error {
				return s.State(ctx, id)
			})
		},
	}

	watchCmd = &cobra.Command{
		Use:   "watch [alarm-id]",
		Short: "Stream outbound notifications and events until interrupted.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			id, err := optionalID(args)
			if err != nil {
				return err
			}

			return withSession(control.Options{}, func(ctx context.Context, s *control.Session) error {
				return s.Watch(ctx, id)
			})
		},
	}
)

// optionalID parses the first argument as an alarm id; no argument means all alarms.
func optionalID(args []string) (int, error) {
	if len(args) == 0 {
		return alarm.InvalidID, nil
	}

	return strconv.Atoi(args[0])
}
