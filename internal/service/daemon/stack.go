package daemon

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/oshokin/alarm-klaxon/internal/audio"
	"github.com/oshokin/alarm-klaxon/internal/config"
	"github.com/oshokin/alarm-klaxon/internal/delivery"
	"github.com/oshokin/alarm-klaxon/internal/device"
	"github.com/oshokin/alarm-klaxon/internal/domain/alarm"
	"github.com/oshokin/alarm-klaxon/internal/logger"
	"github.com/oshokin/alarm-klaxon/internal/playback"
	"github.com/oshokin/alarm-klaxon/internal/repository/snooze"
	"github.com/oshokin/alarm-klaxon/internal/service/power"
)

// stack holds the wired delivery core of a daemon.
type stack struct {
	// controller drives audio and vibration.
	controller *playback.Controller
	// coordinator runs the delivery state machines.
	coordinator *delivery.Coordinator
	// bus fans outbound messages out to watchers.
	bus *delivery.Bus
	// wake is the host wake lock.
	wake *device.WakeLock
	// closers release engine and store resources, in order.
	closers []func() error
}

// newStack wires the delivery core described by cfg.
func newStack(ctx context.Context, cfg *config.Config) (*stack, error) {
	s := &stack{
		bus:  delivery.NewBus(),
		wake: device.NewWakeLock(),
	}

	repo, err := s.openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	mixer := device.NewMixer(ctx, cfg.MaxVolume, cfg.AlarmVolume)

	engine, err := s.openEngine(cfg, mixer)
	if err != nil {
		s.close(ctx)

		return nil, err
	}

	playbackConfig := playback.DefaultConfig()
	playbackConfig.AutoSilence = cfg.AutoSilence.Duration()
	playbackConfig.RampFloor = cfg.RampFloor

	s.controller = playback.New(engine, mixer, device.NewLogVibrator(ctx), playbackConfig)

	s.coordinator = delivery.New(ctx, s.controller, s.bus, repo, s.wake, delivery.Options{
		CallHold:       cfg.CallHold,
		SnoozeDuration: minutes(cfg.SnoozeMinutes),
		Power:          power.NewHook(cfg.PowerOff),
	})
	s.controller.SetListener(s.coordinator)

	pending, err := repo.Load(ctx)

	switch {
	case err == nil:
		for id, until := range pending {
			logger.InfoKV(ctx, "Pending snooze", "alarm_id", id, "until", until)
		}
	case errors.Is(err, snooze.ErrNotFound):
	default:
		logger.WarnKV(ctx, "Unable to read pending snoozes", "error", err)
	}

	logger.InfoKV(ctx, "Delivery core ready",
		"audio", cfg.Audio,
		"store", cfg.Store,
		"auto_silence", cfg.AutoSilence.String(),
		"snooze_minutes", cfg.SnoozeMinutes,
		"call_hold", cfg.CallHold,
	)

	return s, nil
}

func (s *stack) openStore(ctx context.Context, cfg *config.Config) (snooze.Repository, error) {
	if cfg.Store != config.StoreSQLite {
		return snooze.NewFileRepository(cfg.StateFile), nil
	}

	repo, err := snooze.OpenSQLite(ctx, cfg.SQLitePath)
	if err != nil {
		return nil, fmt.Errorf("open snooze store: %w", err)
	}

	s.closers = append(s.closers, repo.Close)

	return repo, nil
}

func (s *stack) openEngine(cfg *config.Config, mixer *device.Mixer) (playback.Engine, error) {
	library := audio.NewLibrary(cfg.SoundDirectory)

	if cfg.Audio != config.AudioPulse {
		return audio.NewNullEngine(library), nil
	}

	engine, err := audio.NewPulseEngine(library, mixer)
	if err != nil {
		return nil, fmt.Errorf("open audio: %w", err)
	}

	s.closers = append(s.closers, func() error {
		engine.Close()

		return nil
	})

	return engine, nil
}

// journal logs outbound messages until ctx is done. The notification
// surface and the scheduler are external; the log is their local record.
func (s *stack) journal(ctx context.Context) error {
	messages, cancel := s.bus.Subscribe(0)
	defer func() {
		cancel()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				logger.Warn(ctx, "Notification journal fell behind, resubscribing")

				messages, cancel = s.bus.Subscribe(0)

				continue
			}

			kvs := []any{"kind", msg.Kind.String(), "alarm_id", msg.AlarmID}

			if n := msg.Notification; n != nil {
				kvs = append(kvs, "variant", n.Variant.String(), "label", n.Label, "text", n.Text)
			}

			if k := msg.Killed; k != nil {
				kvs = append(kvs, "reason", k.Reason.String(), "elapsed_minutes", k.ElapsedMinutes)
			}

			if msg.Kind == alarm.OutShowNotification || msg.Kind == alarm.OutCancelNotification {
				logger.InfoKV(ctx, "Notification", kvs...)
			} else {
				logger.DebugKV(ctx, "Outbound", kvs...)
			}
		}
	}
}

// close tears the core down: mailboxes first, then playback, then resources.
func (s *stack) close(ctx context.Context) {
	if s.coordinator != nil {
		s.coordinator.Close(ctx)
	}

	if s.controller != nil {
		s.controller.Stop(ctx)
	}

	for _, closeFn := range s.closers {
		if err := closeFn(); err != nil {
			logger.WarnKV(ctx, "Failed to release resource", "error", err)
		}
	}

	if s.wake.Held() {
		logger.Warn(ctx, "Wake lock still held after shutdown")
	}
}

func minutes(n int) time.Duration {
	return time.Duration(n) * time.Minute
}
