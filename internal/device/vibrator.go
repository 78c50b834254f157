package device

import (
	"context"
	"sync"
	"time"

	"github.com/oshokin/alarm-klaxon/internal/logger"
)

// LogVibrator stands in for a vibration actuator on hosts without one.
// It records the requested pattern and logs every change.
type LogVibrator struct {
	// ctx carries the logger.
	ctx context.Context //nolint:containedctx // Used for logging only.
	// mu protects the fields below.
	mu sync.Mutex
	// pattern is the pattern being played, nil when idle.
	pattern []time.Duration
	// repeat is the repeat index of the pattern.
	repeat int
}

// NewLogVibrator creates a LogVibrator.
func NewLogVibrator(ctx context.Context) *LogVibrator {
	return &LogVibrator{ctx: logger.WithName(ctx, "vibrator")}
}

// Vibrate starts the pattern, replacing any running one.
func (v *LogVibrator) Vibrate(pattern []time.Duration, repeat int) {
	v.mu.Lock()
	v.pattern = append([]time.Duration(nil), pattern...)
	v.repeat = repeat
	v.mu.Unlock()

	logger.DebugKV(v.ctx, "Vibration started", "pattern", pattern, "repeat", repeat)
}

// Cancel stops vibration.
func (v *LogVibrator) Cancel() {
	v.mu.Lock()
	wasActive := v.pattern != nil
	v.pattern = nil
	v.mu.Unlock()

	if wasActive {
		logger.DebugKV(v.ctx, "Vibration cancelled")
	}
}

// Active reports whether a pattern is running.
func (v *LogVibrator) Active() bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	return v.pattern != nil
}
