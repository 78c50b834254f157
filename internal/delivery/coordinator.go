package delivery

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/oshokin/alarm-klaxon/internal/domain/alarm"
	"github.com/oshokin/alarm-klaxon/internal/logger"
	"github.com/oshokin/alarm-klaxon/internal/metrics"
	"github.com/oshokin/alarm-klaxon/internal/repository/snooze"
)

var (
	// ErrClosed is returned once the coordinator is closed.
	ErrClosed = errors.New("delivery coordinator is closed")
	// ErrInvalidAlarmID is returned for a non-positive alarm id.
	ErrInvalidAlarmID = errors.New("invalid alarm id")
	// ErrInvalidAction is returned for an unknown user action.
	ErrInvalidAction = errors.New("invalid user action")
	// ErrNoTransition is returned when an action does not apply to the current state.
	ErrNoTransition = errors.New("action does not apply in the current state")
	// errHandlerPanic is reported to the caller when a handler panicked.
	errHandlerPanic = errors.New("delivery handler failed")
)

// Coordinator runs the per-id delivery state machines.
type Coordinator struct {
	// ctx is the base logging context of every mailbox.
	ctx context.Context
	// player drives audio and vibration.
	player Player
	// publisher receives outbound messages.
	publisher Publisher
	// snoozes persists snoozed-until times.
	snoozes snooze.Repository
	// wake keeps the host awake during delivery.
	wake WakeLock
	// opts holds timings and feature switches.
	opts Options
	// actions maps notification handles to user actions.
	actions *actionRegistry

	// callMu orders call state changes so playback sees them in the order
	// they were recorded.
	callMu sync.Mutex

	// mu protects the fields below.
	mu sync.Mutex
	// mailboxes holds one mailbox per alarm id that is not idle, or is busy.
	mailboxes map[int]*mailbox
	// callState is the last reported call state.
	callState alarm.CallState
	// closed is set by Close.
	closed bool
	// done is closed by Close to release waiting callers.
	done chan struct{}
	// wg tracks mailbox goroutines.
	wg sync.WaitGroup
}

// New creates a coordinator. The caller must register it as the playback
// listener so kills reach the state machines.
func New(
	ctx context.Context,
	player Player,
	publisher Publisher,
	snoozes snooze.Repository,
	wake WakeLock,
	opts Options,
) *Coordinator {
	return &Coordinator{
		ctx:       logger.WithName(ctx, "delivery"),
		player:    player,
		publisher: publisher,
		snoozes:   snoozes,
		wake:      wake,
		opts:      opts.withDefaults(),
		actions:   newActionRegistry(),
		mailboxes: make(map[int]*mailbox),
		done:      make(chan struct{}),
	}
}

// Fire delivers an alarm that became due. Stale events return ErrStaleEvent
// after the scheduler bookkeeping; malformed ones are reported and rejected.
func (c *Coordinator) Fire(ctx context.Context, event *alarm.FireEvent) error {
	if err := event.Validate(); err != nil {
		c.ReportMalformed(ctx, err)

		return err
	}

	msg := &fireEvent{replier: newReplier(), event: event.Clone()}

	return c.send(ctx, event.ID, msg, msg.reply)
}

// CallStateChanged records the call state and hands it to playback before
// returning, so a session started afterwards takes it as its baseline. A
// call-interrupt kill reaches the owning alarm through its mailbox.
func (c *Coordinator) CallStateChanged(ctx context.Context, state alarm.CallState) {
	c.callMu.Lock()
	defer c.callMu.Unlock()

	c.mu.Lock()
	c.callState = state
	c.mu.Unlock()

	logger.InfoKV(ctx, "Call state changed", "state", state.String())

	c.player.CallStateChanged(ctx, state)
}

// UserAction applies a snooze, dismiss or open action to an alarm.
func (c *Coordinator) UserAction(ctx context.Context, id int, action alarm.Action) error {
	if id <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidAlarmID, id)
	}

	if action < alarm.ActionSnooze || action > alarm.ActionOpen {
		return fmt.Errorf("%w: %d", ErrInvalidAction, action)
	}

	msg := &actionEvent{replier: newReplier(), action: action}

	return c.send(ctx, id, msg, msg.reply)
}

// CancelSnooze cancels the snooze of id. A non-positive id cancels every
// snooze and requests the next alert once.
func (c *Coordinator) CancelSnooze(ctx context.Context, id int) error {
	if id > 0 {
		msg := &cancelSnoozeEvent{replier: newReplier()}

		return c.send(ctx, id, msg, msg.reply)
	}

	if err := c.snoozes.ClearAll(ctx); err != nil {
		logger.ErrorKV(ctx, "Failed to clear snoozes", "error", err)
	}

	for _, alarmID := range c.ids() {
		msg := &cancelSnoozeEvent{replier: newReplier(), all: true}
		if err := c.send(ctx, alarmID, msg, msg.reply); err != nil {
			return err
		}
	}

	c.publish(ctx, alarm.Outbound{Kind: alarm.OutNextAlertRequested, AlarmID: alarm.InvalidID})
	c.publish(ctx, alarm.Outbound{Kind: alarm.OutSnoozeCancelled, AlarmID: alarm.InvalidID})

	return nil
}

// InvokeAction resolves a notification action handle and applies it.
func (c *Coordinator) InvokeAction(ctx context.Context, handle string) error {
	target, err := c.actions.resolve(handle)
	if err != nil {
		return err
	}

	return c.UserAction(ctx, target.alarmID, target.action)
}

// State returns a snapshot of id. Unknown ids are idle.
func (c *Coordinator) State(ctx context.Context, id int) (Snapshot, error) {
	if id <= 0 {
		return Snapshot{}, fmt.Errorf("%w: %d", ErrInvalidAlarmID, id)
	}

	c.mu.Lock()
	closed := c.closed
	_, known := c.mailboxes[id]
	c.mu.Unlock()

	if closed {
		return Snapshot{}, ErrClosed
	}

	if !known {
		return Snapshot{AlarmID: id, State: alarm.StateIdle}, nil
	}

	var snapshot Snapshot

	msg := &stateQuery{replier: newReplier(), snapshot: &snapshot}
	if err := c.send(ctx, id, msg, msg.reply); err != nil {
		return Snapshot{}, err
	}

	return snapshot, nil
}

// States returns snapshots of every known id ordered by id.
func (c *Coordinator) States(ctx context.Context) ([]Snapshot, error) {
	ids := c.ids()
	snapshots := make([]Snapshot, 0, len(ids))

	for _, id := range ids {
		snapshot, err := c.State(ctx, id)
		if err != nil {
			return nil, err
		}

		snapshots = append(snapshots, snapshot)
	}

	return snapshots, nil
}

// ReportMalformed counts an undecodable alarm payload and asks the scheduler
// to continue with the next alert.
func (c *Coordinator) ReportMalformed(ctx context.Context, err error) {
	metrics.MalformedEvents.Inc()
	logger.WarnKV(ctx, "Malformed alarm event", "error", err)

	c.publish(ctx, alarm.Outbound{Kind: alarm.OutNextAlertRequested, AlarmID: alarm.InvalidID})
}

// OnKilled implements playback.Listener.
func (c *Coordinator) OnKilled(_ context.Context, killed alarm.Killed) {
	if killed.Event == nil {
		return
	}

	c.post(killed.Event.ID, &killedEvent{killed: killed})
}

// Close stops every mailbox, then stops playback, hold timers and wake locks
// still owned by the state machines. It is idempotent.
func (c *Coordinator) Close(ctx context.Context) {
	c.mu.Lock()

	if c.closed {
		c.mu.Unlock()

		return
	}

	c.closed = true
	close(c.done)

	boxes := make([]*mailbox, 0, len(c.mailboxes))
	for _, m := range c.mailboxes {
		boxes = append(boxes, m)
	}

	c.mu.Unlock()

	for _, m := range boxes {
		close(m.done)
	}

	c.wg.Wait()

	for _, m := range boxes {
		rec := m.rec

		c.cancelHold(rec)

		if rec.session != 0 {
			c.player.StopSession(ctx, rec.session)
			rec.session = 0
		}

		c.releaseWake(rec)
	}

	logger.InfoKV(ctx, "Delivery coordinator closed", "alarms", len(boxes))
}

// send posts a synchronous event and waits for its reply.
func (c *Coordinator) send(ctx context.Context, id int, ev event, reply <-chan error) error {
	if err := c.enqueue(id, ev); err != nil {
		return err
	}

	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return ErrClosed
	}
}

// post enqueues an asynchronous event. Events after Close are dropped.
func (c *Coordinator) post(id int, ev event) {
	_ = c.enqueue(id, ev)
}

// enqueue posts ev to the mailbox of id. A mailbox retired between lookup
// and post is replaced by a fresh one.
func (c *Coordinator) enqueue(id int, ev event) error {
	for {
		m, err := c.mailbox(id)
		if err != nil {
			return err
		}

		if m.post(ev) {
			return nil
		}
	}
}

// mailbox returns the mailbox of id, starting it on first use.
func (c *Coordinator) mailbox(id int) (*mailbox, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrClosed
	}

	if m, ok := c.mailboxes[id]; ok {
		return m, nil
	}

	m := newMailbox(&record{
		id:    id,
		ctx:   logger.WithKV(c.ctx, "alarm_id", id),
		state: alarm.StateIdle,
	})
	c.mailboxes[id] = m

	c.wg.Go(func() {
		m.run(c.handle, c.reap)
	})

	return m, nil
}

// reap retires the mailbox of an idle record with nothing queued, so ids
// that finished delivery do not keep a goroutine.
func (c *Coordinator) reap(m *mailbox) bool {
	if !m.rec.settled() {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || c.mailboxes[m.rec.id] != m || !m.retire() {
		return false
	}

	delete(c.mailboxes, m.rec.id)

	return true
}

// ids returns the known alarm ids in ascending order.
func (c *Coordinator) ids() []int {
	c.mu.Lock()
	defer c.mu.Unlock()

	ids := make([]int, 0, len(c.mailboxes))
	for id := range c.mailboxes {
		ids = append(ids, id)
	}

	slices.Sort(ids)

	return ids
}

func (c *Coordinator) callActive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.callState == alarm.CallActive
}
