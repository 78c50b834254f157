package delivery

import (
	"sync"
)

// mailbox is an unbounded FIFO drained by one goroutine.
type mailbox struct {
	// rec is the state owned by the draining goroutine.
	rec *record
	// mu protects queue and retired.
	mu sync.Mutex
	// queue holds pending events.
	queue []event
	// retired is set once the mailbox stopped accepting events.
	retired bool
	// signal wakes the goroutine; capacity one coalesces wake-ups.
	signal chan struct{}
	// done stops the goroutine.
	done chan struct{}
}

func newMailbox(rec *record) *mailbox {
	return &mailbox{
		rec:    rec,
		signal: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

// post enqueues ev without blocking. It reports false when the mailbox is retired.
func (m *mailbox) post(ev event) bool {
	m.mu.Lock()

	if m.retired {
		m.mu.Unlock()

		return false
	}

	m.queue = append(m.queue, ev)
	m.mu.Unlock()

	select {
	case m.signal <- struct{}{}:
	default:
	}

	return true
}

// retire stops accepting events if none are pending.
func (m *mailbox) retire() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.queue) > 0 {
		return false
	}

	m.retired = true

	return true
}

// pop removes the oldest event.
func (m *mailbox) pop() (event, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.queue) == 0 {
		return nil, false
	}

	ev := m.queue[0]
	m.queue[0] = nil
	m.queue = m.queue[1:]

	return ev, true
}

// run drains the queue until done is closed, or until reap retires the
// mailbox after the queue ran empty.
func (m *mailbox) run(handle func(*record, event), reap func(*mailbox) bool) {
	for {
		select {
		case <-m.done:
			return
		case <-m.signal:
		}

		for {
			select {
			case <-m.done:
				return
			default:
			}

			ev, ok := m.pop()
			if !ok {
				break
			}

			handle(m.rec, ev)
		}

		if reap(m) {
			return
		}
	}
}
