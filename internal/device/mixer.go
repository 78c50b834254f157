package device

import (
	"context"
	"sync"

	"github.com/oshokin/alarm-klaxon/internal/logger"
)

// Mixer keeps the alarm stream volume in a device-defined range [0, max].
type Mixer struct {
	// ctx carries the logger.
	ctx context.Context //nolint:containedctx // Used for logging only.
	// max is the top of the volume range.
	max int
	// mu protects volume.
	mu sync.RWMutex
	// volume is the current alarm stream volume.
	volume int
}

// NewMixer creates a mixer with the given range and initial volume.
func NewMixer(ctx context.Context, maxVolume, volume int) *Mixer {
	if maxVolume < 1 {
		maxVolume = 1
	}

	return &Mixer{
		ctx:    logger.WithName(ctx, "mixer"),
		max:    maxVolume,
		volume: clamp(volume, 0, maxVolume),
	}
}

// StreamVolume returns the current alarm stream volume.
func (m *Mixer) StreamVolume() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.volume
}

// SetStreamVolume sets the alarm stream volume, clamped to the range.
func (m *Mixer) SetStreamVolume(volume int) {
	m.mu.Lock()
	m.volume = clamp(volume, 0, m.max)
	current := m.volume
	m.mu.Unlock()

	logger.DebugKV(m.ctx, "Alarm stream volume changed", "volume", current, "max", m.max)
}

// MaxVolume returns the top of the volume range.
func (m *Mixer) MaxVolume() int {
	return m.max
}

// Fraction returns the current volume as a share of the range.
func (m *Mixer) Fraction() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return float64(m.volume) / float64(m.max)
}

func clamp(v, lo, hi int) int {
	return max(lo, min(v, hi))
}
