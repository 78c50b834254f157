package snooze

import (
	"context"
	"errors"
	"time"
)

// Repository defines persistence operations for snooze records.
type Repository interface {
	// Load returns every snooze record keyed by alarm id.
	Load(ctx context.Context) (map[int]time.Time, error)
	// Save records that alarm id is snoozed until the given time.
	Save(ctx context.Context, id int, until time.Time) error
	// Clear removes the record of alarm id, if any.
	Clear(ctx context.Context, id int) error
	// ClearAll removes every record.
	ClearAll(ctx context.Context) error
}

// ErrNotFound is returned when no snooze data exists yet.
var ErrNotFound = errors.New("snooze state not found")
