package playback

import (
	"context"
	"time"

	"github.com/oshokin/alarm-klaxon/internal/domain/alarm"
)

// session is one active playback. It is only touched under Controller.mu.
type session struct {
	// id identifies the session.
	id uint64
	// event is the alarm being played.
	event *alarm.FireEvent
	// ctx carries the session logger.
	ctx context.Context //nolint:containedctx // Timer callbacks have no caller context.
	// startedAt is when playback started.
	startedAt time.Time
	// deadline is when the auto-kill timer fires, zero when disabled.
	deadline time.Time
	// baselineCall is the call state when the session started.
	baselineCall alarm.CallState

	// player is the open audio player, nil when no audio plays.
	player Player
	// target is the stream volume recorded at session start.
	target int
	// volume is the current output volume.
	volume int
	// steps counts ramp steps taken.
	steps int
	// ramping is true while the ramp has not reached target.
	ramping bool
	// vibrating is true while vibration runs.
	vibrating bool

	// rampTimer, vibrateTimer and killTimer are the session timers.
	rampTimer    *time.Timer
	vibrateTimer *time.Timer
	killTimer    *time.Timer
	// stopped is set once the session was torn down.
	stopped bool
}
