package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/roach88/attrflow/internal/bus"
	"github.com/roach88/attrflow/internal/ir"
)

// Recorder is a bus.Listener that keeps every event it receives.
//
// Thread-safety: safe for concurrent use; the bus may deliver from several
// subscriptions at once.
type Recorder struct {
	mu     sync.Mutex
	events []bus.Event
	notify chan struct{}
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{notify: make(chan struct{}, 1)}
}

// OnEvent implements bus.Listener.
func (r *Recorder) OnEvent(_ context.Context, ev bus.Event) error {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()

	select {
	case r.notify <- struct{}{}:
	default:
	}
	return nil
}

// Events returns a copy of the recorded events in arrival order.
func (r *Recorder) Events() []bus.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]bus.Event, len(r.events))
	copy(out, r.events)
	return out
}

// Values returns the recorded event values in arrival order.
func (r *Recorder) Values() []ir.Value {
	events := r.Events()
	out := make([]ir.Value, len(events))
	for i, ev := range events {
		out[i] = ev.Value
	}
	return out
}

// Len returns the number of recorded events.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

// WaitFor blocks until at least n events arrived or timeout elapses.
// Reports whether n was reached.
func (r *Recorder) WaitFor(n int, timeout time.Duration) bool {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	for {
		if r.Len() >= n {
			return true
		}
		select {
		case <-r.notify:
		case <-deadline.C:
			return r.Len() >= n
		}
	}
}
