package device

import (
	"context"
	"sync"

	"github.com/oshokin/alarm-klaxon/internal/logger"
)

// WakeLock is a reference-counted lock keeping the device awake while any
// holder has it. Holders are identified by tag so a double release is harmless.
type WakeLock struct {
	// mu protects holders.
	mu sync.Mutex
	// holders is the set of tags currently holding the lock.
	holders map[string]struct{}
}

// NewWakeLock creates a released WakeLock.
func NewWakeLock() *WakeLock {
	return &WakeLock{holders: make(map[string]struct{})}
}

// Acquire takes the lock for tag.
func (w *WakeLock) Acquire(ctx context.Context, tag string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, ok := w.holders[tag]; ok {
		return
	}

	w.holders[tag] = struct{}{}

	if len(w.holders) == 1 {
		logger.DebugKV(ctx, "Wake lock acquired", "tag", tag)
	}
}

// Release drops the lock held by tag.
func (w *WakeLock) Release(ctx context.Context, tag string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, ok := w.holders[tag]; !ok {
		return
	}

	delete(w.holders, tag)

	if len(w.holders) == 0 {
		logger.DebugKV(ctx, "Wake lock released", "tag", tag)
	}
}

// Held reports whether any holder has the lock.
func (w *WakeLock) Held() bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	return len(w.holders) > 0
}

// HeldBy reports whether tag holds the lock.
func (w *WakeLock) HeldBy(tag string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	_, ok := w.holders[tag]

	return ok
}
