package delivery

import (
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/oshokin/alarm-klaxon/internal/domain/alarm"
)

// ErrUnknownHandle is returned for an action handle that is not registered.
var ErrUnknownHandle = errors.New("unknown action handle")

// actionTarget is what an action handle resolves to.
type actionTarget struct {
	alarmID int
	action  alarm.Action
}

// actionRegistry maps opaque notification handles to user actions.
// Handles of an alarm are replaced together with its notification.
type actionRegistry struct {
	mu      sync.Mutex
	targets map[uuid.UUID]actionTarget
	byAlarm map[int][]uuid.UUID
}

func newActionRegistry() *actionRegistry {
	return &actionRegistry{
		targets: make(map[uuid.UUID]actionTarget),
		byAlarm: make(map[int][]uuid.UUID),
	}
}

// replace drops the handles of alarmID and registers new ones for actions.
func (r *actionRegistry) replace(alarmID int, actions ...alarm.Action) []alarm.ActionHandle {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.forgetLocked(alarmID)

	handles := make([]alarm.ActionHandle, 0, len(actions))
	keys := make([]uuid.UUID, 0, len(actions))

	for _, action := range actions {
		key := uuid.New()

		r.targets[key] = actionTarget{alarmID: alarmID, action: action}
		keys = append(keys, key)
		handles = append(handles, alarm.ActionHandle{Action: action, Handle: key.String()})
	}

	if len(keys) > 0 {
		r.byAlarm[alarmID] = keys
	}

	return handles
}

// forget drops every handle of alarmID.
func (r *actionRegistry) forget(alarmID int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.forgetLocked(alarmID)
}

func (r *actionRegistry) forgetLocked(alarmID int) {
	for _, key := range r.byAlarm[alarmID] {
		delete(r.targets, key)
	}

	delete(r.byAlarm, alarmID)
}

// resolve looks a handle up.
func (r *actionRegistry) resolve(handle string) (actionTarget, error) {
	key, err := uuid.Parse(handle)
	if err != nil {
		return actionTarget{}, ErrUnknownHandle
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	target, ok := r.targets[key]
	if !ok {
		return actionTarget{}, ErrUnknownHandle
	}

	return target, nil
}
