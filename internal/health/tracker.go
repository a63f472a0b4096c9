package health

import (
	"fmt"
	"sync"
	"time"

	"github.com/tausound/server/internal/event"
	"github.com/tausound/server/internal/session"
)

type Status string

const (
	StatusHealthy  Status = "healthy"
	StatusDegraded Status = "degraded"
)

// DefaultThreshold is the number of consecutive engine errors after which a
// slot counts as degraded.
const DefaultThreshold = 3

// kindHealth tracks consecutive engine errors per slot for one kind.
// Fields are protected by mu because sinks record from session executors
// while the HTTP handler snapshots.
type kindHealth struct {
	mu       sync.Mutex
	failures map[int]int
	total    int
	lastErr  string
	lastFail time.Time
}

func newKindHealth() *kindHealth {
	return &kindHealth{failures: make(map[int]int)}
}

func (h *kindHealth) recordFailure(slot int, msg string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.failures[slot]++
	h.total++
	h.lastErr = msg
	h.lastFail = time.Now()
}

func (h *kindHealth) recordSuccess(slot int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.failures, slot)
}

// snapshot returns a consistent copy of the counters under the lock.
func (h *kindHealth) snapshot(threshold int) (degraded, total int, lastErr string, lastFail time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, n := range h.failures {
		if n >= threshold {
			degraded++
		}
	}
	return degraded, h.total, h.lastErr, h.lastFail
}

// Tracker watches the event stream of each kind for engine errors.
type Tracker struct {
	threshold int
	mu        sync.Mutex
	kinds     map[session.Kind]*kindHealth
}

func NewTracker(threshold int) *Tracker {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Tracker{threshold: threshold, kinds: make(map[session.Kind]*kindHealth)}
}

func (t *Tracker) kind(k session.Kind) *kindHealth {
	t.mu.Lock()
	defer t.mu.Unlock()
	h, ok := t.kinds[k]
	if !ok {
		h = newKindHealth()
		t.kinds[k] = h
	}
	return h
}

// Observe wraps next so every event of kind passes through the tracker
// first. Error events count against their slot; any other successful
// completion clears it.
func (t *Tracker) Observe(k session.Kind, next event.Sink) event.Sink {
	h := t.kind(k)
	return event.SinkFunc(func(ev event.Event) error {
		switch {
		case ev.Method == "error":
			h.recordFailure(ev.Slot, errorText(ev.Arg))
		case ev.Success && ev.Method != event.MethodLog:
			h.recordSuccess(ev.Slot)
		}
		if next == nil {
			return nil
		}
		return next.Deliver(ev)
	})
}

func errorText(arg any) string {
	if s, ok := arg.(string); ok {
		return s
	}
	return fmt.Sprint(arg)
}
