package audio

import (
	"context"

	"github.com/oshokin/alarm-klaxon/internal/logger"
	"github.com/oshokin/alarm-klaxon/internal/playback"
)

// NullEngine resolves clips like a real engine but produces no sound.
// It is used on hosts without an audio server.
type NullEngine struct {
	// library resolves sound references.
	library *Library
}

// NewNullEngine creates a NullEngine.
func NewNullEngine(library *Library) *NullEngine {
	return &NullEngine{library: library}
}

// Open validates the sound and returns a player that only logs.
//
//nolint:ireturn // Engines hand out players through the playback interface.
func (e *NullEngine) Open(ctx context.Context, sound string) (playback.Player, error) {
	clip, err := e.library.Load(sound)
	if err != nil {
		return nil, err
	}

	return &nullPlayer{ctx: logger.WithKV(ctx, "sound", clip.Name), gain: 1}, nil
}

// nullPlayer logs lifecycle calls.
type nullPlayer struct {
	// ctx carries the logger.
	ctx context.Context //nolint:containedctx // Used for logging only.
	// gain is the last gain set.
	gain float64
}

func (p *nullPlayer) SetGain(gain float64) { p.gain = gain }

func (p *nullPlayer) Start(loop bool) error {
	logger.InfoKV(p.ctx, "Alarm sound started (no audio output)", "loop", loop, "gain", p.gain)

	return nil
}

func (p *nullPlayer) Stop() {
	logger.DebugKV(p.ctx, "Alarm sound stopped")
}

func (p *nullPlayer) Release() {}
