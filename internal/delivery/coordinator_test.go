package delivery

import (
	"context"
	"testing"
	"testing/synctest"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/alarm-klaxon/internal/audio"
	"github.com/oshokin/alarm-klaxon/internal/device"
	"github.com/oshokin/alarm-klaxon/internal/domain/alarm"
	"github.com/oshokin/alarm-klaxon/internal/playback"
)

// harness wires a coordinator to in-memory fakes.
type harness struct {
	coord  *Coordinator
	player *fakePlayer
	pub    *recordingPublisher
	repo   *memoryRepository
	wake   *device.WakeLock
}

func newHarness(opts Options) *harness {
	h := &harness{
		player: new(fakePlayer),
		pub:    new(recordingPublisher),
		repo:   newMemoryRepository(),
		wake:   device.NewWakeLock(),
	}

	h.coord = New(context.Background(), h.player, h.pub, h.repo, h.wake, opts)

	return h
}

// liveHarness wires a coordinator to a real playback controller.
type liveHarness struct {
	coord *Coordinator
	ctrl  *playback.Controller
	pub   *recordingPublisher
	repo  *memoryRepository
	wake  *device.WakeLock
}

func newLiveHarness(autoSilence time.Duration, opts Options) *liveHarness {
	ctx := context.Background()

	cfg := playback.DefaultConfig()
	cfg.AutoSilence = autoSilence

	h := &liveHarness{
		ctrl: playback.New(
			audio.NewNullEngine(audio.NewLibrary("")),
			device.NewMixer(ctx, 7, 5),
			device.NewLogVibrator(ctx),
			cfg,
		),
		pub:  new(recordingPublisher),
		repo: newMemoryRepository(),
		wake: device.NewWakeLock(),
	}

	h.coord = New(ctx, h.ctrl, h.pub, h.repo, h.wake, opts)
	h.ctrl.SetListener(h.coord)

	return h
}

func testEvent(id int) *alarm.FireEvent {
	return &alarm.FireEvent{
		ID:          id,
		ScheduledAt: time.Now(),
		Label:       "Wake up",
		Vibrate:     true,
	}
}

func requireState(t *testing.T, coord *Coordinator, id int, want alarm.DeliveryState) Snapshot {
	t.Helper()

	snapshot, err := coord.State(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, want, snapshot.State, "alarm %d", id)

	return snapshot
}

// TestFire_StartsAlerting checks the immediate delivery path.
func TestFire_StartsAlerting(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		ctx := context.Background()
		h := newHarness(Options{})

		defer h.coord.Close(ctx)

		event := testEvent(1)
		require.NoError(t, h.coord.Fire(ctx, event))

		snapshot := requireState(t, h.coord, 1, alarm.StateAlerting)
		require.Equal(t, uint64(1), snapshot.SessionID)
		require.Equal(t, 1, h.player.playCount())
		require.Equal(t, 1, h.pub.notifications(1))

		n := h.pub.lastNotification(1)
		require.Equal(t, alarm.VariantOngoing, n.Variant)
		require.Equal(t, "Wake up", n.Label)
		require.Equal(t, alarm.FormatClock(event.ScheduledAt), n.Text)

		for _, action := range []alarm.Action{alarm.ActionSnooze, alarm.ActionDismiss, alarm.ActionOpen} {
			_, ok := n.Handle(action)
			require.True(t, ok, "missing %s handle", action)
		}

		require.Len(t, h.pub.of(alarm.OutFullScreen, 1), 1)
		require.Len(t, h.pub.of(alarm.OutAlarmDisabled, 1), 1)
		require.True(t, h.wake.HeldBy("alarm-1"))
	})
}

// TestFire_RepeatingRequestsNextAlert checks the scheduler bookkeeping of repeating alarms.
func TestFire_RepeatingRequestsNextAlert(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		ctx := context.Background()
		h := newHarness(Options{})

		defer h.coord.Close(ctx)

		event := testEvent(1)
		event.Repeating = true
		event.Label = ""

		require.NoError(t, h.coord.Fire(ctx, event))
		require.Len(t, h.pub.of(alarm.OutNextAlertRequested, 1), 1)
		require.Empty(t, h.pub.of(alarm.OutAlarmDisabled, 1))
		require.Equal(t, alarm.DefaultLabel, h.pub.lastNotification(1).Label)
	})
}

// TestSnooze_PersistsSnoozeTime snoozes five seconds after the alarm started.
func TestSnooze_PersistsSnoozeTime(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		ctx := context.Background()
		h := newHarness(Options{})

		defer h.coord.Close(ctx)

		start := time.Now()

		require.NoError(t, h.coord.Fire(ctx, testEvent(1)))

		time.Sleep(5 * time.Second)

		require.NoError(t, h.coord.UserAction(ctx, 1, alarm.ActionSnooze))

		want := start.Add(5*time.Second + DefaultSnoozeDuration)

		until, ok := h.repo.get(1)
		require.True(t, ok)
		require.True(t, want.Equal(until), "snoozed until %s, want %s", until, want)

		snapshot := requireState(t, h.coord, 1, alarm.StateSnoozed)
		require.True(t, want.Equal(snapshot.SnoozedUntil))
		require.Zero(t, snapshot.SessionID)
		require.Equal(t, []uint64{1}, h.player.stoppedSessions())

		require.Equal(t, 2, h.pub.notifications(1))

		n := h.pub.lastNotification(1)
		require.Equal(t, alarm.VariantSnoozed, n.Variant)
		require.Equal(t, "Wake up (snoozed)", n.Label)
		require.Equal(t, alarm.SnoozedText(want), n.Text)

		require.False(t, h.wake.Held())
		require.Len(t, h.pub.of(alarm.OutAlarmDone, 1), 1)
	})
}

// TestCallHold_HoldsUntilCallEnds covers the held-for-call path and the re-delivery after the call.
func TestCallHold_HoldsUntilCallEnds(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		ctx := context.Background()
		h := newHarness(Options{CallHold: true})

		defer h.coord.Close(ctx)

		h.coord.CallStateChanged(ctx, alarm.CallActive)
		require.Equal(t, []alarm.CallState{alarm.CallActive}, h.player.callStates())

		start := time.Now()
		event := testEvent(2)

		require.NoError(t, h.coord.Fire(ctx, event))

		requireState(t, h.coord, 2, alarm.StateHeldForCall)
		require.Zero(t, h.player.playCount())
		require.Equal(t, 1, h.pub.notifications(2))
		require.Equal(t, alarm.VariantSnoozed, h.pub.lastNotification(2).Variant)
		require.True(t, h.wake.HeldBy("alarm-2"))

		until, ok := h.repo.get(2)
		require.True(t, ok)
		require.True(t, start.Add(DefaultHoldInterval).Equal(until))

		// Call still active: the hold is re-armed and the notification updated.
		time.Sleep(DefaultHoldInterval + time.Millisecond)
		synctest.Wait()

		requireState(t, h.coord, 2, alarm.StateHeldForCall)
		require.Zero(t, h.player.playCount())
		require.Equal(t, 2, h.pub.notifications(2))

		h.coord.CallStateChanged(ctx, alarm.CallIdle)
		require.NoError(t, h.coord.Fire(ctx, event))

		requireState(t, h.coord, 2, alarm.StateAlerting)
		require.Equal(t, 1, h.player.playCount())
		require.Equal(t, 3, h.pub.notifications(2))
		require.Equal(t, alarm.VariantOngoing, h.pub.lastNotification(2).Variant)
		require.Len(t, h.pub.of(alarm.OutAlarmDisabled, 2), 1)

		_, ok = h.repo.get(2)
		require.False(t, ok)

		// The hold timer armed before delivery must not fire again.
		time.Sleep(2 * DefaultHoldInterval)
		synctest.Wait()

		require.Equal(t, 1, h.player.playCount())
		require.Equal(t, 3, h.pub.notifications(2))
	})
}

// TestCallHold_RedeliversAfterCall checks the hold timer delivers on its own once the call ends.
func TestCallHold_RedeliversAfterCall(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		ctx := context.Background()
		h := newHarness(Options{CallHold: true})

		defer h.coord.Close(ctx)

		h.coord.CallStateChanged(ctx, alarm.CallActive)
		require.NoError(t, h.coord.Fire(ctx, testEvent(2)))

		h.coord.CallStateChanged(ctx, alarm.CallIdle)

		time.Sleep(DefaultHoldInterval + time.Millisecond)
		synctest.Wait()

		requireState(t, h.coord, 2, alarm.StateAlerting)
		require.Equal(t, 1, h.player.playCount())
		require.Equal(t, 2, h.pub.notifications(2))
	})
}

// TestCallHold_DisabledDeliversDuringCall checks the call is ignored without call hold.
func TestCallHold_DisabledDeliversDuringCall(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		ctx := context.Background()
		h := newHarness(Options{})

		defer h.coord.Close(ctx)

		h.coord.CallStateChanged(ctx, alarm.CallActive)
		require.NoError(t, h.coord.Fire(ctx, testEvent(2)))

		requireState(t, h.coord, 2, alarm.StateAlerting)
	})
}

// TestTimeout_SilencesAfterOneMinute runs the real controller with a one minute auto-silence.
func TestTimeout_SilencesAfterOneMinute(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		ctx := context.Background()
		h := newLiveHarness(time.Minute, Options{})

		defer h.coord.Close(ctx)

		require.NoError(t, h.coord.Fire(ctx, testEvent(3)))

		time.Sleep(time.Minute - time.Millisecond)
		synctest.Wait()
		requireState(t, h.coord, 3, alarm.StateAlerting)

		time.Sleep(2 * time.Millisecond)
		synctest.Wait()

		requireState(t, h.coord, 3, alarm.StateIdle)

		_, active := h.ctrl.Active()
		require.False(t, active)

		n := h.pub.lastNotification(3)
		require.Equal(t, alarm.VariantSilenced, n.Variant)
		require.Equal(t, "Silenced after 1 minute", n.Text)
		require.Equal(t, 1, n.SilencedMinutes)
		require.Equal(t, 2, h.pub.notifications(3))

		killed := h.pub.of(alarm.OutKilled, 3)
		require.Len(t, killed, 1)
		require.Equal(t, alarm.KillTimeout, killed[0].Killed.Reason)
		require.False(t, killed[0].Killed.Replaced)
		require.Equal(t, 1, killed[0].Killed.ElapsedMinutes)

		// The schedule is only touched at delivery.
		require.Len(t, h.pub.of(alarm.OutAlarmDisabled, 3), 1)
		require.Len(t, h.pub.of(alarm.OutAlarmDone, 3), 1)
		require.False(t, h.wake.Held())
	})
}

// TestTimeout_PowersOffPowerOffAlarm checks the power hook on a power-off alarm timeout.
func TestTimeout_PowersOffPowerOffAlarm(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		ctx := context.Background()
		power := new(fakePower)
		h := newLiveHarness(time.Minute, Options{Power: power})

		defer h.coord.Close(ctx)

		regular := testEvent(1)
		require.NoError(t, h.coord.Fire(ctx, regular))

		time.Sleep(time.Minute + time.Millisecond)
		synctest.Wait()
		require.Zero(t, power.count())

		event := testEvent(2)
		event.PowerOffAlarm = true
		require.NoError(t, h.coord.Fire(ctx, event))

		time.Sleep(time.Minute + time.Millisecond)
		synctest.Wait()
		require.Equal(t, 1, power.count())
	})
}

// TestStaleFire_IsDropped checks a fire event more than thirty minutes late is not delivered.
func TestStaleFire_IsDropped(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		ctx := context.Background()
		h := newHarness(Options{})

		defer h.coord.Close(ctx)

		stale := testEvent(4)
		stale.ScheduledAt = time.Now().Add(-DefaultStaleWindow - time.Second)

		err := h.coord.Fire(ctx, stale)
		require.ErrorIs(t, err, alarm.ErrStaleEvent)

		requireState(t, h.coord, 4, alarm.StateIdle)
		require.Zero(t, h.player.playCount())
		require.Zero(t, h.pub.notifications(4))
		require.Len(t, h.pub.of(alarm.OutAlarmDisabled, 4), 1)
		require.False(t, h.wake.Held())

		// Exactly at the window edge the alarm still rings.
		late := testEvent(5)
		late.ScheduledAt = time.Now().Add(-DefaultStaleWindow)

		require.NoError(t, h.coord.Fire(ctx, late))
		requireState(t, h.coord, 5, alarm.StateAlerting)
	})
}

// TestDismiss_StopsAndCancels checks dismissing an alerting alarm.
func TestDismiss_StopsAndCancels(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		ctx := context.Background()
		h := newHarness(Options{})

		defer h.coord.Close(ctx)

		require.NoError(t, h.coord.Fire(ctx, testEvent(1)))
		require.NoError(t, h.coord.UserAction(ctx, 1, alarm.ActionDismiss))

		snapshot := requireState(t, h.coord, 1, alarm.StateIdle)
		require.Nil(t, snapshot.Notification)
		require.Equal(t, []uint64{1}, h.player.stoppedSessions())
		require.Len(t, h.pub.of(alarm.OutCancelNotification, 1), 1)
		require.Equal(t, 2, h.pub.notifications(1))
		require.Len(t, h.pub.of(alarm.OutAlarmDone, 1), 1)
		require.False(t, h.wake.Held())

		require.ErrorIs(t, h.coord.UserAction(ctx, 1, alarm.ActionDismiss), ErrNoTransition)
		require.ErrorIs(t, h.coord.UserAction(ctx, 1, alarm.ActionSnooze), ErrNoTransition)
		require.ErrorIs(t, h.coord.UserAction(ctx, 1, alarm.ActionOpen), ErrNoTransition)
		require.Equal(t, 2, h.pub.notifications(1))
	})
}

// TestDismiss_SilencedNotification checks a dismiss clears the notification left after a kill.
func TestDismiss_SilencedNotification(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		ctx := context.Background()
		h := newLiveHarness(time.Minute, Options{})

		defer h.coord.Close(ctx)

		require.NoError(t, h.coord.Fire(ctx, testEvent(1)))

		time.Sleep(time.Minute + time.Millisecond)
		synctest.Wait()

		handle, ok := h.pub.lastNotification(1).Handle(alarm.ActionDismiss)
		require.True(t, ok)
		require.NoError(t, h.coord.InvokeAction(ctx, handle))

		snapshot := requireState(t, h.coord, 1, alarm.StateIdle)
		require.Nil(t, snapshot.Notification)
		require.Len(t, h.pub.of(alarm.OutCancelNotification, 1), 1)
	})
}

// TestOpen_RequestsFullScreen checks the open action while alerting.
func TestOpen_RequestsFullScreen(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		ctx := context.Background()
		h := newHarness(Options{})

		defer h.coord.Close(ctx)

		require.NoError(t, h.coord.Fire(ctx, testEvent(1)))
		require.NoError(t, h.coord.UserAction(ctx, 1, alarm.ActionOpen))

		require.Len(t, h.pub.of(alarm.OutFullScreen, 1), 2)
		require.Equal(t, 1, h.pub.notifications(1))
		requireState(t, h.coord, 1, alarm.StateAlerting)
	})
}

// TestCancelSnooze_ReturnsToIdle checks cancelling a single snooze.
func TestCancelSnooze_ReturnsToIdle(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		ctx := context.Background()
		h := newHarness(Options{})

		defer h.coord.Close(ctx)

		require.NoError(t, h.coord.Fire(ctx, testEvent(1)))
		require.NoError(t, h.coord.UserAction(ctx, 1, alarm.ActionSnooze))
		require.NoError(t, h.coord.CancelSnooze(ctx, 1))

		requireState(t, h.coord, 1, alarm.StateIdle)
		require.Equal(t, 3, h.pub.notifications(1))
		require.Len(t, h.pub.of(alarm.OutCancelNotification, 1), 1)
		require.Len(t, h.pub.of(alarm.OutNextAlertRequested, 1), 1)
		require.Len(t, h.pub.of(alarm.OutSnoozeCancelled, 1), 1)

		_, ok := h.repo.get(1)
		require.False(t, ok)
	})
}

// TestCancelSnooze_All cancels every snooze when no alarm id is known.
func TestCancelSnooze_All(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		ctx := context.Background()
		h := newHarness(Options{})

		defer h.coord.Close(ctx)

		for _, id := range []int{1, 2} {
			require.NoError(t, h.coord.Fire(ctx, testEvent(id)))
			require.NoError(t, h.coord.UserAction(ctx, id, alarm.ActionSnooze))
		}

		require.NoError(t, h.coord.Fire(ctx, testEvent(3)))

		require.NoError(t, h.coord.CancelSnooze(ctx, alarm.InvalidID))

		for _, id := range []int{1, 2} {
			requireState(t, h.coord, id, alarm.StateIdle)
			require.Equal(t, 3, h.pub.notifications(id))
		}

		requireState(t, h.coord, 3, alarm.StateAlerting)
		require.Equal(t, 1, h.pub.notifications(3))

		records, err := h.repo.Load(ctx)
		require.NoError(t, err)
		require.Empty(t, records)

		require.Len(t, h.pub.of(alarm.OutNextAlertRequested, alarm.InvalidID), 1)
		require.Len(t, h.pub.of(alarm.OutSnoozeCancelled, alarm.InvalidID), 1)

		// Cancelled ids settle and drop out of the known set.
		synctest.Wait()

		states, err := h.coord.States(ctx)
		require.NoError(t, err)
		require.Len(t, states, 1)
		require.Equal(t, 3, states[0].AlarmID)
	})
}

// TestReplace_SameID restarts playback for a second fire of the same alarm.
func TestReplace_SameID(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		ctx := context.Background()
		h := newHarness(Options{})

		defer h.coord.Close(ctx)

		require.NoError(t, h.coord.Fire(ctx, testEvent(1)))
		require.NoError(t, h.coord.Fire(ctx, testEvent(1)))

		snapshot := requireState(t, h.coord, 1, alarm.StateAlerting)
		require.Equal(t, uint64(2), snapshot.SessionID)
		require.Equal(t, 2, h.pub.notifications(1))
		require.True(t, h.wake.HeldBy("alarm-1"))

		// A kill of the replaced session is ignored.
		h.coord.OnKilled(ctx, alarm.Killed{Event: testEvent(1), SessionID: 1, Reason: alarm.KillReplaced, Replaced: true})
		synctest.Wait()

		requireState(t, h.coord, 1, alarm.StateAlerting)
		require.Empty(t, h.pub.of(alarm.OutKilled, 1))
	})
}

// TestReplace_OtherID checks a new alarm takes playback over from a ringing one.
func TestReplace_OtherID(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		ctx := context.Background()
		h := newLiveHarness(time.Minute, Options{})

		defer h.coord.Close(ctx)

		require.NoError(t, h.coord.Fire(ctx, testEvent(1)))
		require.NoError(t, h.coord.Fire(ctx, testEvent(2)))
		synctest.Wait()

		requireState(t, h.coord, 1, alarm.StateIdle)
		requireState(t, h.coord, 2, alarm.StateAlerting)

		killed := h.pub.of(alarm.OutKilled, 1)
		require.Len(t, killed, 1)
		require.True(t, killed[0].Killed.Replaced)
		require.Equal(t, alarm.KillReplaced, killed[0].Killed.Reason)
		require.Equal(t, alarm.VariantSilenced, h.pub.lastNotification(1).Variant)

		require.False(t, h.wake.HeldBy("alarm-1"))
		require.True(t, h.wake.HeldBy("alarm-2"))

		// Alarm 2 still times out normally.
		time.Sleep(time.Minute + time.Millisecond)
		synctest.Wait()
		requireState(t, h.coord, 2, alarm.StateIdle)
	})
}

// TestCallInterrupt_KillsPlayback checks a call arriving while ringing silences the alarm.
func TestCallInterrupt_KillsPlayback(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		ctx := context.Background()
		h := newLiveHarness(time.Minute, Options{})

		defer h.coord.Close(ctx)

		h.coord.CallStateChanged(ctx, alarm.CallIdle)
		require.NoError(t, h.coord.Fire(ctx, testEvent(1)))

		h.coord.CallStateChanged(ctx, alarm.CallActive)
		synctest.Wait()

		requireState(t, h.coord, 1, alarm.StateIdle)

		killed := h.pub.of(alarm.OutKilled, 1)
		require.Len(t, killed, 1)
		require.Equal(t, alarm.KillCallInterrupt, killed[0].Killed.Reason)
		require.False(t, killed[0].Killed.Replaced)

		// Nothing else fires later.
		time.Sleep(2 * time.Minute)
		synctest.Wait()
		require.Len(t, h.pub.of(alarm.OutKilled, 1), 1)
	})
}

// TestCallStateChanged_ReachesPlaybackBeforeReturning checks playback sees the
// new call state synchronously, even while an alarm is ringing.
func TestCallStateChanged_ReachesPlaybackBeforeReturning(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		ctx := context.Background()
		h := newHarness(Options{})

		defer h.coord.Close(ctx)

		require.NoError(t, h.coord.Fire(ctx, testEvent(1)))

		h.coord.CallStateChanged(ctx, alarm.CallActive)
		require.Equal(t, []alarm.CallState{alarm.CallActive}, h.player.callStates())

		h.coord.CallStateChanged(ctx, alarm.CallIdle)
		require.Equal(t, []alarm.CallState{alarm.CallActive, alarm.CallIdle}, h.player.callStates())
	})
}

// TestCallStateChanged_AlarmDuringCallKeepsRinging fires a second alarm after a
// call started; the ongoing call is its baseline and must not kill it.
func TestCallStateChanged_AlarmDuringCallKeepsRinging(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		ctx := context.Background()
		h := newLiveHarness(time.Minute, Options{})

		defer h.coord.Close(ctx)

		require.NoError(t, h.coord.Fire(ctx, testEvent(1)))

		h.coord.CallStateChanged(ctx, alarm.CallActive)
		require.NoError(t, h.coord.Fire(ctx, testEvent(2)))
		synctest.Wait()

		killed := h.pub.of(alarm.OutKilled, 1)
		require.Len(t, killed, 1)
		require.Equal(t, alarm.KillCallInterrupt, killed[0].Killed.Reason)

		snapshot := requireState(t, h.coord, 2, alarm.StateAlerting)
		require.Empty(t, h.pub.of(alarm.OutKilled, 2))

		active, ok := h.ctrl.Active()
		require.True(t, ok)
		require.Equal(t, snapshot.SessionID, active)

		// The call ending does not interrupt it either.
		h.coord.CallStateChanged(ctx, alarm.CallIdle)
		synctest.Wait()

		requireState(t, h.coord, 2, alarm.StateAlerting)
		require.Empty(t, h.pub.of(alarm.OutKilled, 2))
	})
}

// TestStaleFire_DuringCallHoldStaysIdle checks an overdue alarm arriving during
// a call is neither held nor delivered once the call ends.
func TestStaleFire_DuringCallHoldStaysIdle(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		ctx := context.Background()
		h := newHarness(Options{CallHold: true})

		defer h.coord.Close(ctx)

		h.coord.CallStateChanged(ctx, alarm.CallActive)

		stale := testEvent(7)
		stale.ScheduledAt = time.Now().Add(-2 * time.Hour)

		require.ErrorIs(t, h.coord.Fire(ctx, stale), alarm.ErrStaleEvent)
		requireState(t, h.coord, 7, alarm.StateIdle)
		require.Zero(t, h.pub.notifications(7))
		require.False(t, h.wake.Held())

		_, ok := h.repo.get(7)
		require.False(t, ok)

		h.coord.CallStateChanged(ctx, alarm.CallIdle)

		time.Sleep(2 * DefaultHoldInterval)
		synctest.Wait()

		requireState(t, h.coord, 7, alarm.StateIdle)
		require.Zero(t, h.player.playCount())
		require.Zero(t, h.pub.notifications(7))
		require.Len(t, h.pub.of(alarm.OutAlarmDisabled, 7), 1)
	})
}

// TestStaleFire_KeepsSnooze checks an overdue copy of a snoozed alarm leaves
// the snooze, its record and its notification alone.
func TestStaleFire_KeepsSnooze(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		ctx := context.Background()
		h := newHarness(Options{})

		defer h.coord.Close(ctx)

		require.NoError(t, h.coord.Fire(ctx, testEvent(8)))
		require.NoError(t, h.coord.UserAction(ctx, 8, alarm.ActionSnooze))

		until, ok := h.repo.get(8)
		require.True(t, ok)

		stale := testEvent(8)
		stale.ScheduledAt = time.Now().Add(-time.Hour)

		require.ErrorIs(t, h.coord.Fire(ctx, stale), alarm.ErrStaleEvent)

		snapshot := requireState(t, h.coord, 8, alarm.StateSnoozed)
		require.True(t, until.Equal(snapshot.SnoozedUntil))
		require.NotNil(t, snapshot.Notification)
		require.Equal(t, alarm.VariantSnoozed, snapshot.Notification.Variant)
		require.Equal(t, 2, h.pub.notifications(8))

		persisted, ok := h.repo.get(8)
		require.True(t, ok)
		require.True(t, until.Equal(persisted))
	})
}

// TestMailbox_RetiredWhenSettled checks ids that finished delivery do not keep
// a mailbox, and come back as fresh idle records.
func TestMailbox_RetiredWhenSettled(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		ctx := context.Background()
		h := newHarness(Options{})

		defer h.coord.Close(ctx)

		for id := 1; id <= 3; id++ {
			require.NoError(t, h.coord.Fire(ctx, testEvent(id)))
		}

		require.NoError(t, h.coord.UserAction(ctx, 1, alarm.ActionDismiss))
		require.NoError(t, h.coord.UserAction(ctx, 2, alarm.ActionSnooze))
		synctest.Wait()

		require.Equal(t, []int{2, 3}, h.coord.ids())
		requireState(t, h.coord, 1, alarm.StateIdle)

		require.NoError(t, h.coord.Fire(ctx, testEvent(1)))
		requireState(t, h.coord, 1, alarm.StateAlerting)
		require.Equal(t, []int{1, 2, 3}, h.coord.ids())
	})
}

// TestInvokeAction_ResolvesHandles checks handle lookup and replacement.
func TestInvokeAction_ResolvesHandles(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		ctx := context.Background()
		h := newHarness(Options{})

		defer h.coord.Close(ctx)

		require.NoError(t, h.coord.Fire(ctx, testEvent(1)))

		ongoing := h.pub.lastNotification(1)
		snoozeHandle, _ := ongoing.Handle(alarm.ActionSnooze)
		openHandle, _ := ongoing.Handle(alarm.ActionOpen)

		require.NoError(t, h.coord.InvokeAction(ctx, snoozeHandle))
		requireState(t, h.coord, 1, alarm.StateSnoozed)

		require.ErrorIs(t, h.coord.InvokeAction(ctx, openHandle), ErrUnknownHandle)
		require.ErrorIs(t, h.coord.InvokeAction(ctx, "not-a-handle"), ErrUnknownHandle)

		dismissHandle, ok := h.pub.lastNotification(1).Handle(alarm.ActionDismiss)
		require.True(t, ok)
		require.NoError(t, h.coord.InvokeAction(ctx, dismissHandle))

		requireState(t, h.coord, 1, alarm.StateIdle)
		require.Len(t, h.pub.of(alarm.OutSnoozeCancelled, 1), 1)
	})
}

// TestFire_RejectsMalformedEvents checks malformed events are reported to the scheduler.
func TestFire_RejectsMalformedEvents(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		ctx := context.Background()
		h := newHarness(Options{})

		defer h.coord.Close(ctx)

		require.ErrorIs(t, h.coord.Fire(ctx, nil), alarm.ErrMalformedEvent)
		require.ErrorIs(t, h.coord.Fire(ctx, &alarm.FireEvent{ID: 0, ScheduledAt: time.Now()}), alarm.ErrMalformedEvent)
		require.ErrorIs(t, h.coord.Fire(ctx, &alarm.FireEvent{ID: 1}), alarm.ErrMalformedEvent)

		require.Len(t, h.pub.of(alarm.OutNextAlertRequested, alarm.InvalidID), 3)
		require.Zero(t, h.player.playCount())
	})
}

// TestUserAction_Validates checks argument validation.
func TestUserAction_Validates(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		ctx := context.Background()
		h := newHarness(Options{})

		defer h.coord.Close(ctx)

		require.ErrorIs(t, h.coord.UserAction(ctx, 0, alarm.ActionSnooze), ErrInvalidAlarmID)
		require.ErrorIs(t, h.coord.UserAction(ctx, 1, alarm.Action(42)), ErrInvalidAction)

		_, err := h.coord.State(ctx, -1)
		require.ErrorIs(t, err, ErrInvalidAlarmID)

		snapshot, err := h.coord.State(ctx, 77)
		require.NoError(t, err)
		require.Equal(t, alarm.StateIdle, snapshot.State)
		require.Empty(t, h.coord.ids())
	})
}

// TestHandlerPanic_ForcesIdle checks a failing collaborator never leaves resources held.
func TestHandlerPanic_ForcesIdle(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		ctx := context.Background()
		h := newHarness(Options{})

		defer h.coord.Close(ctx)

		h.player.mu.Lock()
		h.player.panicOnPlay = true
		h.player.mu.Unlock()

		require.ErrorIs(t, h.coord.Fire(ctx, testEvent(1)), errHandlerPanic)
		requireState(t, h.coord, 1, alarm.StateIdle)
		require.False(t, h.wake.Held())

		h.player.mu.Lock()
		h.player.panicOnPlay = false
		h.player.mu.Unlock()

		require.NoError(t, h.coord.Fire(ctx, testEvent(1)))
		requireState(t, h.coord, 1, alarm.StateAlerting)
	})
}

// TestSnooze_RepositoryFailure checks a persistence failure does not block the transition.
func TestSnooze_RepositoryFailure(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		ctx := context.Background()
		h := newHarness(Options{})

		defer h.coord.Close(ctx)

		require.NoError(t, h.coord.Fire(ctx, testEvent(1)))

		h.repo.mu.Lock()
		h.repo.failing = true
		h.repo.mu.Unlock()

		require.NoError(t, h.coord.UserAction(ctx, 1, alarm.ActionSnooze))
		requireState(t, h.coord, 1, alarm.StateSnoozed)
	})
}

// TestClose_ReleasesEverything checks Close stops playback and rejects new events.
func TestClose_ReleasesEverything(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		ctx := context.Background()
		h := newHarness(Options{CallHold: true})

		require.NoError(t, h.coord.Fire(ctx, testEvent(1)))

		h.coord.CallStateChanged(ctx, alarm.CallActive)
		require.NoError(t, h.coord.Fire(ctx, testEvent(2)))
		requireState(t, h.coord, 2, alarm.StateHeldForCall)

		h.coord.Close(ctx)
		h.coord.Close(ctx)

		require.Contains(t, h.player.stoppedSessions(), uint64(1))
		require.False(t, h.wake.Held())
		require.ErrorIs(t, h.coord.Fire(ctx, testEvent(3)), ErrClosed)

		_, err := h.coord.State(ctx, 1)
		require.ErrorIs(t, err, ErrClosed)

		// The stopped hold timer never re-delivers.
		time.Sleep(time.Minute)
		synctest.Wait()
		require.Equal(t, 1, h.player.playCount())
	})
}
