package playback

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/oshokin/alarm-klaxon/internal/domain/alarm"
)

var errTestMissing = errors.New("test: sound missing")

// fakeMixer records every volume change.
type fakeMixer struct {
	// mu protects the fields below.
	mu sync.Mutex
	// volume is the current stream volume.
	volume int
	// max is the top of the range.
	max int
	// history lists every SetStreamVolume argument.
	history []int
}

func newFakeMixer(volume int) *fakeMixer {
	return &fakeMixer{volume: volume, max: 7}
}

func (m *fakeMixer) StreamVolume() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.volume
}

func (m *fakeMixer) SetStreamVolume(v int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.volume = v
	m.history = append(m.history, v)
}

func (m *fakeMixer) MaxVolume() int { return m.max }

func (m *fakeMixer) snapshot() (int, []int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.volume, append([]int(nil), m.history...)
}

// fakePlayer tracks its lifecycle.
type fakePlayer struct {
	// sound is the opened reference.
	sound string
	// gain is the last SetGain value.
	gain float64
	// started, stopped and released track lifecycle calls.
	started, stopped, released bool
	// startErr is returned by Start.
	startErr error
}

func (p *fakePlayer) SetGain(g float64) { p.gain = g }

func (p *fakePlayer) Start(bool) error {
	if p.startErr != nil {
		return p.startErr
	}

	p.started = true

	return nil
}

func (p *fakePlayer) Stop()    { p.stopped = true }
func (p *fakePlayer) Release() { p.released = true }

// fakeEngine opens fake players and can fail chosen sounds.
type fakeEngine struct {
	// mu protects the fields below.
	mu sync.Mutex
	// fail lists sounds whose Open fails.
	fail map[string]bool
	// failStart lists sounds whose Start fails.
	failStart map[string]bool
	// players lists every opened player in order.
	players []*fakePlayer
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{fail: map[string]bool{}, failStart: map[string]bool{}}
}

func (e *fakeEngine) Open(_ context.Context, sound string) (Player, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.fail[sound] {
		return nil, errTestMissing
	}

	p := &fakePlayer{sound: sound}
	if e.failStart[sound] {
		p.startErr = errTestMissing
	}

	e.players = append(e.players, p)

	return p, nil
}

func (e *fakeEngine) opened() []*fakePlayer {
	e.mu.Lock()
	defer e.mu.Unlock()

	return append([]*fakePlayer(nil), e.players...)
}

// fakeVibrator records vibration calls.
type fakeVibrator struct {
	// mu protects the fields below.
	mu sync.Mutex
	// patterns lists every pattern passed to Vibrate.
	patterns [][]time.Duration
	// cancels counts Cancel calls.
	cancels int
	// active is true between Vibrate and Cancel.
	active bool
}

func (v *fakeVibrator) Vibrate(pattern []time.Duration, _ int) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.patterns = append(v.patterns, pattern)
	v.active = true
}

func (v *fakeVibrator) Cancel() {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.cancels++
	v.active = false
}

func (v *fakeVibrator) state() (int, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()

	return len(v.patterns), v.active
}

// recordingListener collects kill notifications.
type recordingListener struct {
	// mu protects killed.
	mu sync.Mutex
	// killed lists received notifications.
	killed []alarm.Killed
}

func (l *recordingListener) OnKilled(_ context.Context, k alarm.Killed) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.killed = append(l.killed, k)
}

func (l *recordingListener) all() []alarm.Killed {
	l.mu.Lock()
	defer l.mu.Unlock()

	return append([]alarm.Killed(nil), l.killed...)
}
