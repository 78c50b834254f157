package playback

import (
	"context"
	"time"

	"github.com/oshokin/alarm-klaxon/internal/domain/alarm"
)

const (
	// DefaultSound is the platform default alarm sound.
	DefaultSound = "builtin:alarm"
	// InCallSound is the quiet sound used while a call is active.
	InCallSound = "builtin:in-call"
)

// Mixer controls the alarm output stream volume.
type Mixer interface {
	// StreamVolume returns the current alarm stream volume.
	StreamVolume() int
	// SetStreamVolume changes the alarm stream volume.
	SetStreamVolume(volume int)
	// MaxVolume returns the top of the device volume range.
	MaxVolume() int
}

// Engine opens audio players for sound references.
type Engine interface {
	Open(ctx context.Context, sound string) (Player, error)
}

// Player is one opened audio source.
type Player interface {
	// SetGain scales the player output, 1 is unchanged.
	SetGain(gain float64)
	// Start begins playback.
	Start(loop bool) error
	// Stop halts playback.
	Stop()
	// Release frees the player. It must not be used afterwards.
	Release()
}

// Vibrator drives the vibration actuator.
type Vibrator interface {
	// Vibrate plays the on/off pattern, repeating from index repeat (-1 for no repeat).
	Vibrate(pattern []time.Duration, repeat int)
	// Cancel stops any vibration.
	Cancel()
}

// Listener receives sessions that stopped without a Stop call.
type Listener interface {
	OnKilled(ctx context.Context, killed alarm.Killed)
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(ctx context.Context, killed alarm.Killed)

// OnKilled implements Listener.
func (f ListenerFunc) OnKilled(ctx context.Context, killed alarm.Killed) {
	f(ctx, killed)
}
