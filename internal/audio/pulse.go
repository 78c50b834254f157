package audio

import (
	"context"
	"fmt"
	"math"
	"sync"
	"sync/atomic"

	"github.com/jfreymuth/pulse"

	"github.com/oshokin/alarm-klaxon/internal/logger"
	"github.com/oshokin/alarm-klaxon/internal/playback"
)

// playbackLatency is the requested stream latency in seconds.
const playbackLatency = 0.1

// VolumeSource reports the alarm stream volume as a share of its range.
type VolumeSource interface {
	Fraction() float64
}

// PulseEngine plays clips through a PulseAudio server.
type PulseEngine struct {
	// client is the connection to the PulseAudio server.
	client *pulse.Client
	// library resolves sound references.
	library *Library
	// volume scales every player by the alarm stream volume.
	volume VolumeSource
}

// NewPulseEngine connects to the PulseAudio server.
func NewPulseEngine(library *Library, volume VolumeSource) (*PulseEngine, error) {
	client, err := pulse.NewClient()
	if err != nil {
		return nil, fmt.Errorf("connect to pulseaudio: %w", err)
	}

	return &PulseEngine{
		client:  client,
		library: library,
		volume:  volume,
	}, nil
}

// Open creates a playback stream for the sound.
//
//nolint:ireturn // Engines hand out players through the playback interface.
func (e *PulseEngine) Open(ctx context.Context, sound string) (playback.Player, error) {
	clip, err := e.library.Load(sound)
	if err != nil {
		return nil, err
	}

	p := newClipReader(clip, e.volume)

	stream, err := e.client.NewPlayback(
		pulse.Int16Reader(p.read),
		pulse.PlaybackStereo,
		pulse.PlaybackSampleRate(SampleRate),
		pulse.PlaybackLatency(playbackLatency),
	)
	if err != nil {
		return nil, fmt.Errorf("create playback stream: %w", err)
	}

	logger.DebugKV(ctx, "Pulse stream opened", "sound", clip.Name, "samples", len(clip.Samples))

	return &pulsePlayer{clipReader: p, stream: stream}, nil
}

// Close disconnects from the server.
func (e *PulseEngine) Close() {
	e.client.Close()
}

// pulsePlayer is a clip bound to a PulseAudio stream.
type pulsePlayer struct {
	*clipReader

	// stream is the PulseAudio playback stream.
	stream *pulse.PlaybackStream
}

// Start begins playback.
func (p *pulsePlayer) Start(loop bool) error {
	p.setLoop(loop)
	p.stream.Start()

	return nil
}

// Stop halts playback.
func (p *pulsePlayer) Stop() {
	p.stream.Stop()
}

// Release closes the stream.
func (p *pulsePlayer) Release() {
	p.stream.Close()
}

// clipReader feeds a clip to an audio stream, applying gain and looping.
type clipReader struct {
	// clip is the audio being played.
	clip *Clip
	// volume scales the output by the stream volume, may be nil.
	volume VolumeSource
	// gain holds the float64 bits of the player gain.
	gain atomic.Uint64

	// mu protects the fields below.
	mu sync.Mutex
	// pos is the next sample index.
	pos int
	// loop restarts the clip at its end.
	loop bool
}

func newClipReader(clip *Clip, volume VolumeSource) *clipReader {
	r := &clipReader{clip: clip, volume: volume}
	r.SetGain(1)

	return r
}

// SetGain scales the output.
func (r *clipReader) SetGain(gain float64) {
	r.gain.Store(math.Float64bits(gain))
}

func (r *clipReader) setLoop(loop bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.loop = loop
}

// read fills buf with the next samples.
func (r *clipReader) read(buf []int16) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	gain := math.Float64frombits(r.gain.Load())
	if r.volume != nil {
		gain *= r.volume.Fraction()
	}

	samples := r.clip.Samples
	n := 0

	for n < len(buf) {
		if r.pos >= len(samples) {
			if !r.loop {
				break
			}

			r.pos = 0
		}

		buf[n] = int16(float64(samples[r.pos]) * gain)
		n++
		r.pos++
	}

	if n == 0 {
		return 0, pulse.EndOfData
	}

	return n, nil
}
