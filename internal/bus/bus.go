package bus

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/roach88/attrflow/internal/ir"
	"github.com/roach88/attrflow/internal/metrics"
)

// Bus is the subscription manager and event router.
//
// Thread-safety model:
//   - Subscribe, Unsubscribe, Publish, WaitIdle: safe from any goroutine
//   - Close: safe from any goroutine except a listener (it waits for workers)
type Bus struct {
	mu     sync.RWMutex
	subs   map[topic][]*Subscription // copy-on-write slices
	closed bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// pending counts events enqueued but not yet delivered or discarded.
	pending atomic.Int64

	ids     IDGenerator
	journal Journal
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// Option configures a Bus.
type Option func(*Bus)

// WithLogger sets the logger used for delivery failures.
func WithLogger(l *slog.Logger) Option {
	return func(b *Bus) {
		b.logger = l
	}
}

// WithMetrics sets the collectors the bus reports to.
func WithMetrics(m *metrics.Metrics) Option {
	return func(b *Bus) {
		b.metrics = m
	}
}

// WithJournal records every published event.
func WithJournal(j Journal) Option {
	return func(b *Bus) {
		b.journal = j
	}
}

// WithIDGenerator overrides the subscription ID generator.
func WithIDGenerator(g IDGenerator) Option {
	return func(b *Bus) {
		b.ids = g
	}
}

// New creates a running bus.
func New(opts ...Option) *Bus {
	ctx, cancel := context.WithCancel(context.Background())
	b := &Bus{
		subs:   make(map[topic][]*Subscription),
		ctx:    ctx,
		cancel: cancel,
		ids:    UUIDv7Generator{},
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(b)
	}
	if b.metrics == nil {
		b.metrics = metrics.New(nil)
	}

	return b
}

// Logger returns the bus logger, shared with entities built on this bus.
func (b *Bus) Logger() *slog.Logger { return b.logger }

// Metrics returns the bus collectors, shared with entities and enrichers.
func (b *Bus) Metrics() *metrics.Metrics { return b.metrics }

// IDs returns the bus ID generator.
func (b *Bus) IDs() IDGenerator { return b.ids }

// Subscribe registers l for events on (src, sensor).
//
// With WithInitialValue, if the sensor already holds a value, exactly one
// synthetic event carrying it is delivered before any later event.
func (b *Bus) Subscribe(src Source, sensor ir.Sensor, l Listener, opts ...SubscribeOption) (*Subscription, error) {
	var so subscribeOptions
	for _, opt := range opts {
		opt(&so)
	}

	sub := &Subscription{
		id:       b.ids.Generate(),
		name:     so.name,
		topic:    topic{producer: src.ID(), sensor: sensor},
		listener: l,
		bus:      b,
		queue:    newEventQueue(),
		done:     make(chan struct{}),
	}

	var (
		err        error
		registered bool
	)
	src.Observe(sensor, func(current ir.Value, seq int64, present bool) {
		b.mu.Lock()
		if b.closed {
			b.mu.Unlock()
			err = ErrClosed
			return
		}
		b.subs[sub.topic] = append(slices.Clip(b.subs[sub.topic]), sub)
		b.wg.Add(1)
		b.mu.Unlock()
		registered = true

		if so.initial && present {
			b.enqueue(sub, Event{
				Producer: sub.topic.producer,
				Sensor:   sensor,
				Value:    current,
				Seq:      seq,
				Initial:  true,
			})
		}
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe %s on %s: %w", sensor, src.ID(), err)
	}
	if !registered {
		return nil, fmt.Errorf("subscribe %s on %s: source did not run observer", sensor, src.ID())
	}

	go sub.run()

	b.metrics.ActiveSubscriptions.Inc()
	b.logger.Debug("subscribed",
		"subscription", sub.id,
		"listener", sub.name,
		"producer", sub.topic.producer,
		"sensor", sensor.Name,
		"initial", so.initial,
	)
	return sub, nil
}

// Unsubscribe cancels a subscription. Idempotent.
// After it returns no new event is dispatched to the listener; a delivery
// already in progress may still complete.
func (b *Bus) Unsubscribe(s *Subscription) {
	if s == nil || !s.cancelled.CompareAndSwap(false, true) {
		return
	}

	b.mu.Lock()
	list := b.subs[s.topic]
	if i := slices.Index(list, s); i >= 0 {
		next := slices.Delete(slices.Clone(list), i, i+1)
		if len(next) == 0 {
			delete(b.subs, s.topic)
		} else {
			b.subs[s.topic] = next
		}
	}
	b.mu.Unlock()

	s.queue.Close()
	b.metrics.ActiveSubscriptions.Dec()
	b.logger.Debug("unsubscribed", "subscription", s.id, "listener", s.name)
}

// Publish fans ev out to every live subscription on (ev.Producer, ev.Sensor)
// and records it in the journal.
//
// CRITICAL: callers must hold the producer's (entity, sensor) lock so that
// publication order matches write order. The journal write happens under
// that lock too, so a journaled Set returns only after its row is stored.
func (b *Bus) Publish(ev Event) {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return
	}
	for _, s := range b.subs[topic{producer: ev.Producer, sensor: ev.Sensor}] {
		b.enqueue(s, ev)
	}
	b.mu.RUnlock()

	b.metrics.EventsPublished.WithLabelValues(ev.Sensor.Name).Inc()

	if b.journal != nil {
		if err := b.journal.Record(b.ctx, ev); err != nil {
			b.metrics.JournalErrors.Inc()
			b.logger.Error("journal write failed",
				"producer", ev.Producer,
				"sensor", ev.Sensor.Name,
				"seq", ev.Seq,
				"error", err,
			)
		}
	}
}

func (b *Bus) enqueue(s *Subscription, ev Event) {
	b.pending.Add(1)
	if !s.queue.Enqueue(ev) {
		b.pending.Add(-1)
	}
}

// dispatch delivers one event to one listener.
// Errors and panics stop here: they never reach the worker loop or siblings.
func (b *Bus) dispatch(s *Subscription, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			b.metrics.Deliveries.WithLabelValues(metrics.DeliveryPanic).Inc()
			b.logger.Error("listener panicked",
				"subscription", s.id,
				"listener", s.name,
				"producer", ev.Producer,
				"sensor", ev.Sensor.Name,
				"seq", ev.Seq,
				"panic", r,
				"stack", string(debug.Stack()),
			)
		}
	}()

	if err := s.listener.OnEvent(b.ctx, ev); err != nil {
		b.metrics.Deliveries.WithLabelValues(metrics.DeliveryError).Inc()
		b.logger.Warn("listener failed",
			"subscription", s.id,
			"listener", s.name,
			"producer", ev.Producer,
			"sensor", ev.Sensor.Name,
			"seq", ev.Seq,
			"error", err,
		)
		return
	}
	b.metrics.Deliveries.WithLabelValues(metrics.DeliveryOK).Inc()
}

// SubscriberCount returns the number of live subscriptions on
// (producer, sensor).
func (b *Bus) SubscriberCount(producer string, sensor ir.Sensor) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[topic{producer: producer, sensor: sensor}])
}

// Pending returns the number of events queued but not yet handled.
func (b *Bus) Pending() int64 {
	return b.pending.Load()
}

// WaitIdle blocks until every queued event has been delivered, including
// events published by listeners while handling earlier ones.
func (b *Bus) WaitIdle(ctx context.Context) error {
	ticker := time.NewTicker(time.Millisecond)
	defer ticker.Stop()

	for {
		if b.pending.Load() == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("wait idle (%d pending): %w", b.pending.Load(), ctx.Err())
		case <-ticker.C:
		}
	}
}

// Close cancels all subscriptions and waits for their workers to exit.
// Events still queued are discarded. Idempotent.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	var all []*Subscription
	for _, list := range b.subs {
		all = append(all, list...)
	}
	b.subs = make(map[topic][]*Subscription)
	b.mu.Unlock()

	b.cancel()
	for _, s := range all {
		if s.cancelled.CompareAndSwap(false, true) {
			b.metrics.ActiveSubscriptions.Dec()
		}
		s.queue.Close()
	}
	b.wg.Wait()
	b.logger.Debug("bus closed", "subscriptions", len(all))
}
