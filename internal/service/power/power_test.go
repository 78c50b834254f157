package power

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestHook_PowerOff checks the hook only shuts down when enabled.
func TestHook_PowerOff(t *testing.T) {
	t.Parallel()

	var calls int

	hook := NewHook(false)
	hook.shutdown = func(context.Context) error {
		calls++

		return nil
	}

	require.NoError(t, hook.PowerOff(context.Background()))
	require.Zero(t, calls)

	hook.Enabled = true
	require.NoError(t, hook.PowerOff(context.Background()))
	require.Equal(t, 1, calls)

	failure := errors.New("permission denied")
	hook.shutdown = func(context.Context) error { return failure }

	require.ErrorIs(t, hook.PowerOff(context.Background()), failure)
}
