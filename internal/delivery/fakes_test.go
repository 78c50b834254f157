package delivery

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/oshokin/alarm-klaxon/internal/domain/alarm"
	"github.com/oshokin/alarm-klaxon/internal/playback"
)

// fakePlayer records playback requests.
type fakePlayer struct {
	mu          sync.Mutex
	next        uint64
	active      uint64
	plays       []*alarm.FireEvent
	stopped     []uint64
	calls       []alarm.CallState
	panicOnPlay bool
}

func (p *fakePlayer) Play(_ context.Context, event *alarm.FireEvent) (playback.Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.panicOnPlay {
		panic("audio stack exploded")
	}

	p.next++
	p.active = p.next
	p.plays = append(p.plays, event)

	return playback.Result{SessionID: p.next, Audio: playback.AudioPlaying}, nil
}

func (p *fakePlayer) StopSession(_ context.Context, id uint64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stopped = append(p.stopped, id)

	if p.active != id {
		return false
	}

	p.active = 0

	return true
}

func (p *fakePlayer) CallStateChanged(_ context.Context, state alarm.CallState) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.calls = append(p.calls, state)
}

func (p *fakePlayer) playCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return len(p.plays)
}

func (p *fakePlayer) stoppedSessions() []uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	return append([]uint64(nil), p.stopped...)
}

func (p *fakePlayer) callStates() []alarm.CallState {
	p.mu.Lock()
	defer p.mu.Unlock()

	return append([]alarm.CallState(nil), p.calls...)
}

// recordingPublisher keeps every outbound message.
type recordingPublisher struct {
	mu       sync.Mutex
	messages []alarm.Outbound
}

func (p *recordingPublisher) Publish(_ context.Context, msg alarm.Outbound) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.messages = append(p.messages, msg)
}

func (p *recordingPublisher) all() []alarm.Outbound {
	p.mu.Lock()
	defer p.mu.Unlock()

	return append([]alarm.Outbound(nil), p.messages...)
}

// of returns the messages of kind for alarmID.
func (p *recordingPublisher) of(kind alarm.OutboundKind, alarmID int) []alarm.Outbound {
	var matched []alarm.Outbound

	for _, msg := range p.all() {
		if msg.Kind == kind && msg.AlarmID == alarmID {
			matched = append(matched, msg)
		}
	}

	return matched
}

// notifications counts show and cancel messages for alarmID.
func (p *recordingPublisher) notifications(alarmID int) int {
	return len(p.of(alarm.OutShowNotification, alarmID)) + len(p.of(alarm.OutCancelNotification, alarmID))
}

// lastNotification returns the most recently shown notification of alarmID.
func (p *recordingPublisher) lastNotification(alarmID int) *alarm.Notification {
	shown := p.of(alarm.OutShowNotification, alarmID)
	if len(shown) == 0 {
		return nil
	}

	return shown[len(shown)-1].Notification
}

// memoryRepository is an in-memory snooze repository.
type memoryRepository struct {
	mu      sync.Mutex
	records map[int]time.Time
	failing bool
}

var errRepositoryDown = errors.New("repository down")

func newMemoryRepository() *memoryRepository {
	return &memoryRepository{records: make(map[int]time.Time)}
}

func (r *memoryRepository) Load(context.Context) (map[int]time.Time, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	copied := make(map[int]time.Time, len(r.records))
	for id, until := range r.records {
		copied[id] = until
	}

	return copied, nil
}

func (r *memoryRepository) Save(_ context.Context, id int, until time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.failing {
		return errRepositoryDown
	}

	r.records[id] = until

	return nil
}

func (r *memoryRepository) Clear(_ context.Context, id int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.records, id)

	return nil
}

func (r *memoryRepository) ClearAll(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	clear(r.records)

	return nil
}

func (r *memoryRepository) get(id int) (time.Time, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	until, ok := r.records[id]

	return until, ok
}

// fakePower counts power-off requests.
type fakePower struct {
	mu    sync.Mutex
	calls int
}

func (p *fakePower) PowerOff(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.calls++

	return nil
}

func (p *fakePower) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.calls
}
