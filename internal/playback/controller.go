package playback

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/oshokin/alarm-klaxon/internal/domain/alarm"
	"github.com/oshokin/alarm-klaxon/internal/logger"
	"github.com/oshokin/alarm-klaxon/internal/metrics"
)

const (
	// DefaultAutoSilence is how long an alarm rings before it is silenced.
	DefaultAutoSilence = 10 * time.Minute
	// DefaultRampInterval is the delay between two volume steps.
	DefaultRampInterval = 2 * time.Second
	// DefaultVibrationRetrigger is when the vibration pattern is re-issued.
	DefaultVibrationRetrigger = 3450 * time.Millisecond
	// DefaultRampFloor is the volume the ramp starts from.
	DefaultRampFloor = 1
	// InCallGain is the output level used for the in-call sound.
	InCallGain = 0.125
)

//nolint:gochecknoglobals // Fixed vibration patterns.
var (
	// AlertPattern is the distinctive pattern played when the alarm starts.
	AlertPattern = []time.Duration{
		500 * time.Millisecond, 300 * time.Millisecond,
		500 * time.Millisecond, 350 * time.Millisecond,
		500 * time.Millisecond, 400 * time.Millisecond,
		500 * time.Millisecond, 450 * time.Millisecond,
	}
	// SteadyPattern is re-issued by the vibration re-trigger timer.
	SteadyPattern = []time.Duration{500 * time.Millisecond, 500 * time.Millisecond}
)

var (
	// ErrAudioOpen wraps failures to open or start the alarm sound.
	ErrAudioOpen = errors.New("open alarm audio")
	// errNoEvent is returned when Play is called without an event.
	errNoEvent = errors.New("event must be provided")
)

// AudioOutcome tells how audio started for a session.
type AudioOutcome string

const (
	// AudioPlaying means the requested sound is looping with the volume ramp.
	AudioPlaying AudioOutcome = "playing"
	// AudioInCall means the in-call sound is looping at low volume.
	AudioInCall AudioOutcome = "in_call"
	// AudioFallback means the requested sound failed and the default one plays.
	AudioFallback AudioOutcome = "fallback"
	// AudioFailed means no sound could be opened.
	AudioFailed AudioOutcome = "failed"
	// AudioMuted means the alarm stream volume is zero.
	AudioMuted AudioOutcome = "muted"
	// AudioSilent means the alarm is configured without sound.
	AudioSilent AudioOutcome = "silent"
)

// Config holds the timing parameters of a Controller.
type Config struct {
	// AutoSilence is the auto-kill timeout. Zero or negative disables it.
	AutoSilence time.Duration
	// RampInterval is the delay between volume steps.
	RampInterval time.Duration
	// RampFloor is the volume the ramp starts from.
	RampFloor int
	// VibrationRetrigger is the delay before the vibration pattern is re-issued.
	VibrationRetrigger time.Duration
}

// DefaultConfig returns the standard timings.
func DefaultConfig() Config {
	return Config{
		AutoSilence:        DefaultAutoSilence,
		RampInterval:       DefaultRampInterval,
		RampFloor:          DefaultRampFloor,
		VibrationRetrigger: DefaultVibrationRetrigger,
	}
}

// Result describes a started session.
type Result struct {
	// SessionID identifies the new session.
	SessionID uint64
	// Audio tells how audio started.
	Audio AudioOutcome
	// AudioErr is the last audio failure, if any.
	AudioErr error
	// Deadline is when the session will be auto-silenced, zero when never.
	Deadline time.Time
}

// Controller owns the lifecycle of the single active playback session.
type Controller struct {
	// engine opens audio players.
	engine Engine
	// mixer controls the alarm stream volume.
	mixer Mixer
	// vibrator drives the vibration actuator.
	vibrator Vibrator
	// cfg holds timings.
	cfg Config
	// now returns the current time.
	now func() time.Time

	// mu serializes Play, Stop, call state changes and timer callbacks.
	mu sync.Mutex
	// listener receives kill notifications.
	listener Listener
	// callState is the last reported call state.
	callState alarm.CallState
	// current is the active session or nil.
	current *session
	// lastID is the id of the most recently created session.
	lastID uint64
}

// New creates a Controller.
func New(engine Engine, mixer Mixer, vibrator Vibrator, cfg Config) *Controller {
	if cfg.RampInterval <= 0 {
		cfg.RampInterval = DefaultRampInterval
	}

	if cfg.VibrationRetrigger <= 0 {
		cfg.VibrationRetrigger = DefaultVibrationRetrigger
	}

	if cfg.RampFloor < 0 {
		cfg.RampFloor = 0
	}

	return &Controller{
		engine:   engine,
		mixer:    mixer,
		vibrator: vibrator,
		cfg:      cfg,
		now:      time.Now,
	}
}

// SetListener registers the receiver of kill notifications.
func (c *Controller) SetListener(l Listener) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.listener = l
}

// Play tears down any active session and starts a new one for event.
// Audio failures never fail Play: the session degrades to vibration only.
func (c *Controller) Play(ctx context.Context, event *alarm.FireEvent) (Result, error) {
	if event == nil {
		return Result{}, errNoEvent
	}

	c.mu.Lock()

	var pending []alarm.Killed

	if old := c.current; old != nil {
		c.teardownLocked(old)
		pending = append(pending, c.killedLocked(old, alarm.KillReplaced))
	}

	c.lastID++

	s := &session{
		id:           c.lastID,
		event:        event.Clone(),
		baselineCall: c.callState,
	}
	s.ctx = logger.WithKV(ctx, "alarm_id", event.ID, "session_id", s.id)
	c.current = s

	result := Result{SessionID: s.id}
	result.Audio, result.AudioErr = c.startAudioLocked(s)

	c.startVibrationLocked(s)

	if c.cfg.AutoSilence > 0 {
		s.deadline = c.now().Add(c.cfg.AutoSilence)
		s.killTimer = c.schedule(s, c.cfg.AutoSilence, c.onAutoKill)
	}

	s.startedAt = c.now()
	result.Deadline = s.deadline
	listener := c.listener

	c.mu.Unlock()

	metrics.AudioOutcomes.WithLabelValues(string(result.Audio)).Inc()

	logger.InfoKV(s.ctx, "Playback started",
		"audio", result.Audio,
		"vibrate", event.Vibrate,
		"call_state", s.baselineCall,
		"auto_silence", c.cfg.AutoSilence.String(),
	)

	c.emit(listener, pending)

	return result, nil
}

// Stop tears down the active session, if any. It is idempotent.
func (c *Controller) Stop(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current == nil {
		return
	}

	logger.DebugKV(ctx, "Playback stopped", "session_id", c.current.id)
	c.teardownLocked(c.current)
}

// StopSession tears down the session only if it is still the active one.
func (c *Controller) StopSession(ctx context.Context, id uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current == nil || c.current.id != id {
		return false
	}

	logger.DebugKV(ctx, "Playback session stopped", "session_id", id)
	c.teardownLocked(c.current)

	return true
}

// Active returns the id of the active session.
func (c *Controller) Active() (uint64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current == nil {
		return 0, false
	}

	return c.current.id, true
}

// CallStateChanged records the call state. A transition to a non-idle state
// that differs from the state recorded when the session started stops playback.
func (c *Controller) CallStateChanged(ctx context.Context, state alarm.CallState) {
	c.mu.Lock()

	c.callState = state

	s := c.current
	if s == nil || state == alarm.CallIdle || state == s.baselineCall {
		c.mu.Unlock()

		return
	}

	c.teardownLocked(s)

	killed := c.killedLocked(s, alarm.KillCallInterrupt)
	listener := c.listener

	c.mu.Unlock()

	logger.InfoKV(ctx, "Playback interrupted by call", "alarm_id", s.event.ID, "session_id", s.id)
	c.emit(listener, []alarm.Killed{killed})
}

// startAudioLocked opens and starts the alarm sound for s.
func (c *Controller) startAudioLocked(s *session) (AudioOutcome, error) {
	if s.event.Silent {
		return AudioSilent, nil
	}

	target := c.mixer.StreamVolume()
	if target == 0 {
		return AudioMuted, nil
	}

	inCall := c.callState == alarm.CallActive

	sound := s.event.Alert
	if sound == "" {
		sound = DefaultSound
	}

	if inCall {
		sound = InCallSound
	}

	outcome := AudioPlaying
	if inCall {
		outcome = AudioInCall
	}

	player, err := c.openPlayer(s.ctx, sound, inCall)
	if err != nil {
		logger.WarnKV(s.ctx, "Using the fallback alarm sound", "sound", sound, "error", err)

		var fallbackErr error

		player, fallbackErr = c.openPlayer(s.ctx, DefaultSound, inCall)
		if fallbackErr != nil {
			logger.ErrorKV(s.ctx, "Failed to play fallback alarm sound", "error", fallbackErr)

			return AudioFailed, fallbackErr
		}

		outcome = AudioFallback
	}

	s.player = player
	s.target = target
	s.volume = target

	if inCall {
		return outcome, err
	}

	floor := min(c.cfg.RampFloor, target)
	if floor < target {
		s.volume = floor
		s.ramping = true
		c.mixer.SetStreamVolume(floor)
		s.rampTimer = c.schedule(s, c.cfg.RampInterval, c.onRampTick)
	}

	return outcome, err
}

// openPlayer opens and starts one sound.
func (c *Controller) openPlayer(ctx context.Context, sound string, inCall bool) (Player, error) {
	player, err := c.engine.Open(ctx, sound)
	if err != nil {
		return nil, fmt.Errorf("%w %q: %w", ErrAudioOpen, sound, err)
	}

	gain := 1.0
	if inCall {
		gain = InCallGain
	}

	player.SetGain(gain)

	if err = player.Start(true); err != nil {
		player.Release()

		return nil, fmt.Errorf("%w %q: start: %w", ErrAudioOpen, sound, err)
	}

	return player, nil
}

// startVibrationLocked starts or cancels vibration for s.
func (c *Controller) startVibrationLocked(s *session) {
	if !s.event.Vibrate {
		c.vibrator.Cancel()

		return
	}

	c.vibrator.Vibrate(AlertPattern, 1)
	s.vibrating = true
	s.vibrateTimer = c.schedule(s, c.cfg.VibrationRetrigger, c.onVibrationRetrigger)
}

// onRampTick raises the volume by one step until the session target.
func (c *Controller) onRampTick(s *session) []alarm.Killed {
	if s.player == nil || s.volume >= s.target {
		c.mixer.SetStreamVolume(s.target)
		s.ramping = false

		return nil
	}

	s.volume++
	s.steps++
	c.mixer.SetStreamVolume(s.volume)

	if s.volume < s.target {
		s.rampTimer = c.schedule(s, c.cfg.RampInterval, c.onRampTick)
	} else {
		s.ramping = false
	}

	return nil
}

// onVibrationRetrigger re-issues the vibration pattern once.
func (c *Controller) onVibrationRetrigger(_ *session) []alarm.Killed {
	c.vibrator.Cancel()
	c.vibrator.Vibrate(SteadyPattern, 0)

	return nil
}

// onAutoKill silences the session after the auto-silence timeout.
func (c *Controller) onAutoKill(s *session) []alarm.Killed {
	logger.InfoKV(s.ctx, "Alarm auto-silenced")
	c.teardownLocked(s)

	return []alarm.Killed{c.killedLocked(s, alarm.KillTimeout)}
}

// schedule arms a session timer. The callback runs under the controller lock
// and is dropped when s is no longer the active session.
func (c *Controller) schedule(s *session, d time.Duration, fn func(*session) []alarm.Killed) *time.Timer {
	return time.AfterFunc(d, func() {
		c.mu.Lock()

		if c.current != s || s.stopped {
			c.mu.Unlock()

			return
		}

		killed := c.runCallback(s, fn)
		listener := c.listener

		c.mu.Unlock()

		c.emit(listener, killed)
	})
}

// runCallback invokes fn and converts a panic into a best-effort stop.
func (c *Controller) runCallback(s *session, fn func(*session) []alarm.Killed) (killed []alarm.Killed) {
	defer func() {
		if r := recover(); r != nil {
			metrics.CallbackPanics.WithLabelValues("playback").Inc()
			logger.ErrorKV(s.ctx, "Playback timer failed, stopping", "panic", r)

			if !s.stopped {
				c.teardownLocked(s)
			}

			killed = nil
		}
	}()

	return fn(s)
}

// teardownLocked cancels all timers of s and releases its resources.
func (c *Controller) teardownLocked(s *session) {
	s.stopped = true

	for _, t := range []*time.Timer{s.rampTimer, s.vibrateTimer, s.killTimer} {
		if t != nil {
			t.Stop()
		}
	}

	if s.player != nil {
		if s.ramping || s.volume != s.target {
			c.mixer.SetStreamVolume(s.target)
		}

		s.player.Stop()
		s.player.Release()
		s.player = nil
	}

	c.vibrator.Cancel()
	s.vibrating = false

	if c.current == s {
		c.current = nil
	}
}

// killedLocked builds the kill notification of a torn down session.
func (c *Controller) killedLocked(s *session, reason alarm.KillReason) alarm.Killed {
	metrics.Kills.WithLabelValues(reason.String()).Inc()

	return alarm.Killed{
		Event:          s.event,
		SessionID:      s.id,
		ElapsedMinutes: roundMinutes(c.now().Sub(s.startedAt)),
		Replaced:       reason == alarm.KillReplaced,
		Reason:         reason,
	}
}

// emit delivers kill notifications outside the controller lock.
func (c *Controller) emit(listener Listener, killed []alarm.Killed) {
	if listener == nil {
		return
	}

	for _, k := range killed {
		listener.OnKilled(context.Background(), k)
	}
}

// roundMinutes rounds a duration to the nearest whole minute.
func roundMinutes(d time.Duration) int {
	return int(math.Round(d.Minutes()))
}
