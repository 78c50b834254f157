package delivery

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/oshokin/alarm-klaxon/internal/domain/alarm"
	"github.com/oshokin/alarm-klaxon/internal/logger"
	"github.com/oshokin/alarm-klaxon/internal/metrics"
)

// record is the delivery state of one alarm id. It is only touched by the
// goroutine draining the id's mailbox, and by Close once that goroutine exited.
type record struct {
	// id is the alarm id.
	id int
	// ctx carries the alarm_id logging field.
	ctx context.Context
	// state is the delivery state.
	state alarm.DeliveryState
	// event is the last delivered or held event.
	event *alarm.FireEvent
	// session is the playback session while alerting.
	session uint64
	// notification is the displayed notification, nil when none.
	notification *alarm.Notification
	// snoozedUntil is the persisted snooze time while snoozed or held.
	snoozedUntil time.Time
	// holdTimer re-delivers the alarm while held for a call.
	holdTimer *time.Timer
	// holdGen invalidates re-deliveries armed by an earlier hold.
	holdGen uint64
	// wakeHeld tells whether this alarm holds the wake lock.
	wakeHeld bool
}

func (r *record) snapshot() Snapshot {
	var notification *alarm.Notification

	if r.notification != nil {
		copied := *r.notification
		copied.Actions = slices.Clone(r.notification.Actions)
		notification = &copied
	}

	return Snapshot{
		AlarmID:      r.id,
		State:        r.state,
		SessionID:    r.session,
		Event:        r.event.Clone(),
		Notification: notification,
		SnoozedUntil: r.snoozedUntil,
	}
}

// settled reports whether the record holds nothing: idle, no notification,
// no pending hold, playback or snooze, and no wake lock.
func (r *record) settled() bool {
	return r.state == alarm.StateIdle &&
		r.notification == nil &&
		r.holdTimer == nil &&
		r.session == 0 &&
		r.snoozedUntil.IsZero() &&
		!r.wakeHeld
}

// wakeTag names the wake lock holder of an alarm.
func (r *record) wakeTag() string {
	return fmt.Sprintf("alarm-%d", r.id)
}

// handle processes one mailbox event. A panic forces the alarm back to idle
// and releases everything it holds.
func (c *Coordinator) handle(rec *record, ev event) {
	defer func() {
		if r := recover(); r != nil {
			metrics.CallbackPanics.WithLabelValues("delivery").Inc()
			logger.ErrorKV(rec.ctx, "Delivery handler failed, forcing idle", "panic", r)

			c.forceIdle(rec)
			ev.respond(errHandlerPanic)
		}
	}()

	ev.respond(c.dispatch(rec, ev))
}

func (c *Coordinator) dispatch(rec *record, ev event) error {
	switch e := ev.(type) {
	case *fireEvent:
		return c.onFire(rec, e)
	case *killedEvent:
		c.onKilled(rec, e.killed)
	case *actionEvent:
		return c.onAction(rec, e.action)
	case *cancelSnoozeEvent:
		c.onCancelSnooze(rec, e.all)
	case *stateQuery:
		*e.snapshot = rec.snapshot()
	}

	return nil
}

func (c *Coordinator) onFire(rec *record, e *fireEvent) error {
	if e.redelivery {
		if rec.state != alarm.StateHeldForCall || e.holdGen != rec.holdGen {
			return nil
		}

		// A hold re-delivery keeps the original schedule and is never stale.
		return c.holdOrDeliver(rec, rec.event)
	}

	if now := time.Now(); e.event.IsStale(now, c.opts.StaleWindow) {
		return c.dropStale(rec, e.event, now)
	}

	if rec.state == alarm.StateHeldForCall {
		return c.holdOrDeliver(rec, e.event)
	}

	if c.opts.CallHold && rec.state != alarm.StateAlerting && c.callActive() {
		return c.hold(rec, e.event)
	}

	return c.deliver(rec, e.event)
}

// dropStale does the scheduler bookkeeping of an overdue event and nothing
// else. A record that is not idle keeps its snooze and notification.
func (c *Coordinator) dropStale(rec *record, event *alarm.FireEvent, now time.Time) error {
	if rec.state == alarm.StateIdle {
		c.clearSnooze(rec)
	}

	c.updateSchedule(rec.ctx, event)

	metrics.StaleEvents.Inc()
	logger.WarnKV(rec.ctx, "Ignoring stale alarm",
		"scheduled_at", event.ScheduledAt,
		"late_by", now.Sub(event.ScheduledAt).String(),
		"state", rec.state.String(),
	)

	return fmt.Errorf("alarm %d: %w", rec.id, alarm.ErrStaleEvent)
}

func (c *Coordinator) holdOrDeliver(rec *record, event *alarm.FireEvent) error {
	if c.callActive() {
		return c.hold(rec, event)
	}

	return c.deliver(rec, event)
}

// hold postpones delivery while a call is active.
func (c *Coordinator) hold(rec *record, event *alarm.FireEvent) error {
	prev := rec.state
	until := time.Now().Add(c.opts.HoldInterval)

	c.cancelHold(rec)
	c.saveSnooze(rec, until)

	rec.event = event
	rec.state = alarm.StateHeldForCall

	c.acquireWake(rec)
	c.showNotification(rec, c.snoozedNotification(rec, until))

	gen := rec.holdGen
	rec.holdTimer = time.AfterFunc(c.opts.HoldInterval, func() {
		c.post(rec.id, &fireEvent{event: event, redelivery: true, holdGen: gen})
	})

	c.transitioned(rec, prev)

	return nil
}

// deliver starts playback and shows the ongoing notification.
func (c *Coordinator) deliver(rec *record, event *alarm.FireEvent) error {
	prev := rec.state

	c.cancelHold(rec)
	c.clearSnooze(rec)
	c.updateSchedule(rec.ctx, event)
	c.acquireWake(rec)

	result, err := c.player.Play(rec.ctx, event)
	if err != nil {
		c.forceIdle(rec)

		return fmt.Errorf("play alarm %d: %w", rec.id, err)
	}

	rec.event = event
	rec.session = result.SessionID
	rec.state = alarm.StateAlerting

	c.showNotification(rec, c.ongoingNotification(rec, event))
	c.publish(rec.ctx, alarm.Outbound{Kind: alarm.OutFullScreen, AlarmID: rec.id})

	logger.InfoKV(rec.ctx, "Alarm delivered",
		"session_id", result.SessionID,
		"audio", result.Audio,
		"label", event.LabelOrDefault(),
	)

	c.transitioned(rec, prev)

	return nil
}

// onKilled handles playback stopping on its own. Kills of sessions this
// record no longer owns are ignored.
func (c *Coordinator) onKilled(rec *record, killed alarm.Killed) {
	if rec.state != alarm.StateAlerting || rec.session != killed.SessionID {
		logger.DebugKV(rec.ctx, "Ignoring kill of inactive session",
			"session_id", killed.SessionID,
			"reason", killed.Reason.String(),
		)

		return
	}

	prev := rec.state

	rec.session = 0
	rec.state = alarm.StateIdle

	c.showNotification(rec, c.silencedNotification(rec, killed.ElapsedMinutes))
	c.publish(rec.ctx, alarm.Outbound{Kind: alarm.OutKilled, AlarmID: rec.id, Killed: &killed})
	c.finish(rec)
	c.transitioned(rec, prev)

	if killed.Reason == alarm.KillTimeout && killed.Event.PowerOffAlarm && c.opts.Power != nil {
		logger.InfoKV(rec.ctx, "Power-off alarm timed out, shutting down")

		if err := c.opts.Power.PowerOff(rec.ctx); err != nil {
			logger.ErrorKV(rec.ctx, "Failed to power off", "error", err)
		}
	}
}

func (c *Coordinator) onAction(rec *record, action alarm.Action) error {
	switch action {
	case alarm.ActionSnooze:
		if rec.state == alarm.StateAlerting || rec.state == alarm.StateHeldForCall {
			c.snooze(rec)

			return nil
		}
	case alarm.ActionDismiss:
		switch {
		case rec.state == alarm.StateAlerting || rec.state == alarm.StateHeldForCall:
			c.dismiss(rec)

			return nil
		case rec.state == alarm.StateSnoozed:
			c.onCancelSnooze(rec, false)

			return nil
		case rec.notification != nil:
			c.cancelNotification(rec)

			return nil
		}
	case alarm.ActionOpen:
		if rec.state == alarm.StateAlerting || rec.state == alarm.StateHeldForCall {
			c.publish(rec.ctx, alarm.Outbound{Kind: alarm.OutFullScreen, AlarmID: rec.id})

			return nil
		}
	}

	return fmt.Errorf("%s alarm %d in state %s: %w", action, rec.id, rec.state, ErrNoTransition)
}

func (c *Coordinator) snooze(rec *record) {
	prev := rec.state
	until := time.Now().Add(c.opts.SnoozeDuration)

	c.cancelHold(rec)
	c.stopPlayback(rec)
	c.saveSnooze(rec, until)

	rec.state = alarm.StateSnoozed

	c.showNotification(rec, c.snoozedNotification(rec, until))
	c.finish(rec)

	logger.InfoKV(rec.ctx, "Alarm snoozed", "until", until)
	c.transitioned(rec, prev)
}

func (c *Coordinator) dismiss(rec *record) {
	prev := rec.state

	c.cancelHold(rec)
	c.stopPlayback(rec)
	c.clearSnooze(rec)

	// A held alarm never reached the scheduler bookkeeping of a delivery.
	if prev == alarm.StateHeldForCall && rec.event != nil {
		c.updateSchedule(rec.ctx, rec.event)
	}

	rec.state = alarm.StateIdle

	c.cancelNotification(rec)
	c.finish(rec)

	logger.InfoKV(rec.ctx, "Alarm dismissed")
	c.transitioned(rec, prev)
}

// onCancelSnooze cancels a snooze or call hold. With all set the persisted
// records and the scheduler request are handled once by the caller.
func (c *Coordinator) onCancelSnooze(rec *record, all bool) {
	prev := rec.state

	if prev == alarm.StateSnoozed || prev == alarm.StateHeldForCall {
		c.cancelHold(rec)

		rec.state = alarm.StateIdle

		c.cancelNotification(rec)
		c.finish(rec)
	}

	if all {
		rec.snoozedUntil = time.Time{}
		c.transitioned(rec, prev)

		return
	}

	c.clearSnooze(rec)
	c.publish(rec.ctx, alarm.Outbound{Kind: alarm.OutNextAlertRequested, AlarmID: rec.id})
	c.publish(rec.ctx, alarm.Outbound{Kind: alarm.OutSnoozeCancelled, AlarmID: rec.id})
	c.transitioned(rec, prev)
}

// forceIdle tears everything down after a failure.
func (c *Coordinator) forceIdle(rec *record) {
	defer func() {
		if r := recover(); r != nil {
			logger.ErrorKV(rec.ctx, "Forced teardown failed", "panic", r)
		}
	}()

	prev := rec.state

	c.cancelHold(rec)
	c.stopPlayback(rec)

	rec.state = alarm.StateIdle

	if rec.notification != nil {
		c.cancelNotification(rec)
	}

	c.finish(rec)
	c.transitioned(rec, prev)
}

// updateSchedule tells the scheduler to disable a one-shot alarm or to
// compute the next occurrence of a repeating one.
func (c *Coordinator) updateSchedule(ctx context.Context, event *alarm.FireEvent) {
	kind := alarm.OutNextAlertRequested
	if !event.Repeating {
		kind = alarm.OutAlarmDisabled
	}

	c.publish(ctx, alarm.Outbound{Kind: kind, AlarmID: event.ID})
}

func (c *Coordinator) stopPlayback(rec *record) {
	if rec.session != 0 {
		c.player.StopSession(rec.ctx, rec.session)
		rec.session = 0
	}
}

func (c *Coordinator) cancelHold(rec *record) {
	if rec.holdTimer != nil {
		rec.holdTimer.Stop()
		rec.holdTimer = nil
	}

	rec.holdGen++
}

func (c *Coordinator) saveSnooze(rec *record, until time.Time) {
	rec.snoozedUntil = until

	if err := c.snoozes.Save(rec.ctx, rec.id, until); err != nil {
		logger.ErrorKV(rec.ctx, "Failed to persist snooze", "error", err)
	}
}

func (c *Coordinator) clearSnooze(rec *record) {
	rec.snoozedUntil = time.Time{}

	if err := c.snoozes.Clear(rec.ctx, rec.id); err != nil {
		logger.ErrorKV(rec.ctx, "Failed to clear snooze", "error", err)
	}
}

func (c *Coordinator) acquireWake(rec *record) {
	if rec.wakeHeld {
		return
	}

	c.wake.Acquire(rec.ctx, rec.wakeTag())
	rec.wakeHeld = true
}

func (c *Coordinator) releaseWake(rec *record) bool {
	if !rec.wakeHeld {
		return false
	}

	c.wake.Release(rec.ctx, rec.wakeTag())
	rec.wakeHeld = false

	return true
}

// finish ends a delivery: the wake lock is released and AlarmDone published.
func (c *Coordinator) finish(rec *record) {
	if c.releaseWake(rec) {
		c.publish(rec.ctx, alarm.Outbound{Kind: alarm.OutAlarmDone, AlarmID: rec.id})
	}
}

func (c *Coordinator) showNotification(rec *record, n *alarm.Notification) {
	rec.notification = n
	c.publish(rec.ctx, alarm.Outbound{Kind: alarm.OutShowNotification, AlarmID: rec.id, Notification: n})
}

func (c *Coordinator) cancelNotification(rec *record) {
	c.actions.forget(rec.id)
	rec.notification = nil
	c.publish(rec.ctx, alarm.Outbound{Kind: alarm.OutCancelNotification, AlarmID: rec.id})
}

func (c *Coordinator) ongoingNotification(rec *record, event *alarm.FireEvent) *alarm.Notification {
	return &alarm.Notification{
		AlarmID: rec.id,
		Variant: alarm.VariantOngoing,
		Label:   event.LabelOrDefault(),
		Text:    alarm.FormatClock(event.ScheduledAt),
		Actions: c.actions.replace(rec.id, alarm.ActionSnooze, alarm.ActionDismiss, alarm.ActionOpen),
	}
}

func (c *Coordinator) snoozedNotification(rec *record, until time.Time) *alarm.Notification {
	return &alarm.Notification{
		AlarmID: rec.id,
		Variant: alarm.VariantSnoozed,
		Label:   alarm.SnoozedLabel(rec.event.LabelOrDefault()),
		Text:    alarm.SnoozedText(until),
		Actions: c.actions.replace(rec.id, alarm.ActionDismiss),
	}
}

func (c *Coordinator) silencedNotification(rec *record, minutes int) *alarm.Notification {
	return &alarm.Notification{
		AlarmID:         rec.id,
		Variant:         alarm.VariantSilenced,
		Label:           rec.event.LabelOrDefault(),
		Text:            alarm.SilencedText(minutes),
		SilencedMinutes: minutes,
		Actions:         c.actions.replace(rec.id, alarm.ActionDismiss),
	}
}

func (c *Coordinator) publish(ctx context.Context, msg alarm.Outbound) {
	msg.At = time.Now()
	c.publisher.Publish(ctx, msg)
}

func (c *Coordinator) transitioned(rec *record, prev alarm.DeliveryState) {
	if prev == rec.state {
		return
	}

	metrics.Transitions.WithLabelValues(prev.String(), rec.state.String()).Inc()
	logger.DebugKV(rec.ctx, "Delivery state changed", "from", prev.String(), "to", rec.state.String())
}
