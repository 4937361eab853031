package bus

import (
	"sync/atomic"

	"github.com/roach88/attrflow/internal/ir"
	"github.com/roach88/attrflow/internal/metrics"
)

type topic struct {
	producer string
	sensor   ir.Sensor
}

// Subscription is a live registration of a listener for one
// (producer, sensor) pair. It is the handle passed to Unsubscribe.
type Subscription struct {
	id       string
	name     string
	topic    topic
	listener Listener
	bus      *Bus

	queue     *eventQueue
	cancelled atomic.Bool
	done      chan struct{}
}

// SubscribeOption configures a subscription.
type SubscribeOption func(*subscribeOptions)

type subscribeOptions struct {
	initial bool
	name    string
}

// WithInitialValue delivers one synthetic event carrying the current value
// of the sensor, if it has one, before any later event.
func WithInitialValue() SubscribeOption {
	return func(o *subscribeOptions) {
		o.initial = true
	}
}

// WithName labels the subscription in logs.
func WithName(name string) SubscribeOption {
	return func(o *subscribeOptions) {
		o.name = name
	}
}

// ID returns the subscription's unique identifier.
func (s *Subscription) ID() string { return s.id }

// Name returns the label given with WithName.
func (s *Subscription) Name() string { return s.name }

// Producer returns the ID of the observed producer.
func (s *Subscription) Producer() string { return s.topic.producer }

// Sensor returns the observed sensor.
func (s *Subscription) Sensor() ir.Sensor { return s.topic.sensor }

// Active reports whether the subscription has not been cancelled.
func (s *Subscription) Active() bool { return !s.cancelled.Load() }

// Unsubscribe is shorthand for Bus.Unsubscribe(s).
func (s *Subscription) Unsubscribe() { s.bus.Unsubscribe(s) }

// Done is closed once the subscription's worker has exited.
func (s *Subscription) Done() <-chan struct{} { return s.done }

// run is the subscription's delivery worker.
// CRITICAL: exactly one run goroutine per subscription, which is what makes
// delivery FIFO per (producer, sensor, listener).
func (s *Subscription) run() {
	defer s.bus.wg.Done()
	defer close(s.done)

	for {
		ev, ok := s.queue.TryDequeue()
		if ok {
			if s.Active() {
				s.bus.dispatch(s, ev)
			} else {
				s.bus.metrics.Deliveries.WithLabelValues(metrics.DeliverySkipped).Inc()
			}
			s.bus.pending.Add(-1)
			continue
		}

		select {
		case <-s.bus.ctx.Done():
			s.drain()
			return
		case <-s.queue.Wait():
			if s.queue.Drained() {
				return
			}
		}
	}
}

// drain discards everything still queued after shutdown.
func (s *Subscription) drain() {
	for {
		if _, ok := s.queue.TryDequeue(); !ok {
			return
		}
		s.bus.pending.Add(-1)
	}
}
