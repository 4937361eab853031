package enricher

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/roach88/attrflow/internal/bus"
	"github.com/roach88/attrflow/internal/config"
	"github.com/roach88/attrflow/internal/entity"
	"github.com/roach88/attrflow/internal/ir"
	"github.com/roach88/attrflow/internal/metrics"
)

// Enricher kinds, used in logs and metrics.
const (
	KindTransformer = "transformer"
	KindUpdatingMap = "updating_map"
	KindCombiner    = "combiner"
)

// Option configures an enricher at construction.
type Option func(*options)

type options struct {
	id     string
	logger *slog.Logger
}

// WithID sets the enricher ID. Without it an ID is drawn from the bus
// generator at Init.
func WithID(id string) Option {
	return func(o *options) {
		o.id = id
	}
}

// WithLogger overrides the logger, which otherwise derives from the owning
// entity's.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// binding is the resolved wiring of an enricher.
type binding struct {
	producer *entity.Entity
	sources  []ir.Sensor
	target   ir.Sensor
}

// loader resolves configuration against the owning entity.
type loader[S any] func(cfg *config.Bag, owner *entity.Entity) (binding, S, error)

// base carries the lifecycle shared by every enricher kind. S holds the
// settings that may change with Reconfigure.
type base[S any] struct {
	kind     string
	cfg      *config.Bag
	load     loader[S]
	listener bus.Listener
	live     map[string]bool // keys that may change after Init

	// mu guards everything below. Handlers hold it for reading across the
	// liveness check and the store write; Destroy holds it for writing.
	mu       sync.RWMutex
	id       string
	state    State
	owner    *entity.Entity
	bind     binding
	settings S
	subs     []*bus.Subscription
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// setup initializes b in place.
func (b *base[S]) setup(kind string, cfg *config.Bag, load loader[S], listener bus.Listener, live []string, opts []Option) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if cfg == nil {
		cfg = config.NewBag()
	}

	b.kind = kind
	b.cfg = cfg
	b.load = load
	b.listener = listener
	b.live = make(map[string]bool, len(live))
	for _, name := range live {
		b.live[name] = true
	}
	b.id = o.id
	b.logger = o.logger
}

// ID returns the enricher ID. Empty before Init unless set with WithID.
func (b *base[S]) ID() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.id
}

// Kind returns the enricher kind.
func (b *base[S]) Kind() string { return b.kind }

// State returns the current lifecycle state.
func (b *base[S]) State() State {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state
}

// Config returns the enricher's configuration bag.
func (b *base[S]) Config() *config.Bag { return b.cfg }

// Owner returns the entity the enricher is attached to, nil before Init.
func (b *base[S]) Owner() *entity.Entity {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.owner
}

// Target returns the resolved target sensor. Zero before Init.
func (b *base[S]) Target() ir.Sensor {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.bind.target
}

// Subscriptions returns the live subscriptions.
func (b *base[S]) Subscriptions() []*bus.Subscription {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]*bus.Subscription(nil), b.subs...)
}

// Init validates configuration against owner and subscribes to the source
// sensors, delivering their current values if present. A configuration
// error leaves the enricher in the Created state with no subscription.
func (b *base[S]) Init(owner *entity.Entity) error {
	b.mu.Lock()
	if b.state != StateCreated {
		st := b.state
		b.mu.Unlock()
		return &StateError{Enricher: b.id, Op: "init", State: st}
	}

	bind, settings, err := b.load(b.cfg, owner)
	if err != nil {
		b.mu.Unlock()
		return fmt.Errorf("init %s %s: %w", b.kind, b.id, err)
	}

	if b.id == "" {
		b.id = owner.Bus().IDs().Generate()
	}
	if b.logger == nil {
		b.logger = owner.Logger()
	}
	b.logger = b.logger.With("enricher", b.id, "kind", b.kind)
	b.metrics = owner.Metrics()
	b.owner = owner
	b.bind = bind
	b.settings = settings
	b.state = StateInitialized
	id := b.id
	b.mu.Unlock()

	subs := make([]*bus.Subscription, 0, len(bind.sources))
	for _, sensor := range bind.sources {
		sub, err := owner.Bus().Subscribe(bind.producer, sensor, b.listener,
			bus.WithInitialValue(),
			bus.WithName(id),
		)
		if err != nil {
			for _, s := range subs {
				s.Unsubscribe()
			}
			return fmt.Errorf("init %s %s: %w", b.kind, id, err)
		}
		subs = append(subs, sub)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateDestroyed {
		for _, s := range subs {
			s.Unsubscribe()
		}
		return nil
	}
	b.subs = subs
	b.state = StateSubscribed

	b.logger.Debug("enricher subscribed",
		"producer", bind.producer.Name(),
		"sources", len(bind.sources),
		"target", bind.target.Name,
	)
	return nil
}

// Destroy unsubscribes and stops all further writes. It waits for an
// in-flight write to finish. Idempotent; valid in any state.
func (b *base[S]) Destroy() {
	b.mu.Lock()
	if b.state == StateDestroyed {
		b.mu.Unlock()
		return
	}
	from := b.state
	b.state = StateDestroyed
	subs := b.subs
	b.subs = nil
	owner := b.owner
	b.mu.Unlock()

	for _, s := range subs {
		s.Unsubscribe()
	}
	if owner != nil {
		owner.Attributes().ForgetSubscriber(b.id)
		b.logger.Debug("enricher destroyed", "from", from.String())
	}
}

// Reconfigure changes one configuration option. Before Init any key may
// change. Afterwards only the live keys may, and the new settings take
// effect from the next event. A rejected change leaves the previous
// configuration intact.
func (b *base[S]) Reconfigure(name string, value any) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateDestroyed:
		return &StateError{Enricher: b.id, Op: "reconfigure", State: b.state}
	case StateCreated:
		return b.cfg.SetRaw(name, value)
	}

	if !b.live[name] {
		return config.Forbidden(name, "cannot be changed after initialization")
	}

	prev, had := b.cfg.Raw(name)
	if err := b.cfg.SetRaw(name, value); err != nil {
		return err
	}
	_, settings, err := b.load(b.cfg, b.owner)
	if err != nil {
		if had {
			_ = b.cfg.SetRaw(name, prev)
		} else {
			b.cfg.Unset(name)
		}
		return err
	}
	b.settings = settings
	b.logger.Info("enricher reconfigured", "option", name)
	return nil
}

// current returns the settings in effect.
func (b *base[S]) current() (S, binding, *slog.Logger) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.settings, b.bind, b.logger
}

// compute runs c on the event value, logging and counting a failure.
func (b *base[S]) compute(ctx context.Context, c Computation, ev bus.Event, in ir.Value) (Result, bool) {
	res, err := c.run(in)
	if err == nil {
		return res, true
	}

	b.mu.RLock()
	cerr := &ComputationError{
		Enricher: b.id,
		Entity:   b.owner.Name(),
		Producer: ev.Producer,
		Sensor:   ev.Sensor,
		Seq:      ev.Seq,
		Cause:    err,
	}
	logger, m := b.logger, b.metrics
	b.mu.RUnlock()

	m.EnricherEvents.WithLabelValues(b.kind, metrics.OutcomeFailed).Inc()
	logger.WarnContext(ctx, "computation failed; event dropped",
		"producer", ev.Producer,
		"sensor", ev.Sensor.Name,
		"seq", ev.Seq,
		"error", cerr,
	)
	return Result{}, false
}

// commit runs write if the enricher is still live. The read lock is held
// across the check and the write, so Destroy cannot interleave.
func (b *base[S]) commit(ctx context.Context, ev bus.Event, write func(store *entity.AttributeStore, target ir.Sensor) (string, error)) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.state == StateDestroyed {
		b.metrics.EnricherEvents.WithLabelValues(b.kind, metrics.OutcomeDiscarded).Inc()
		return
	}

	outcome, err := write(b.owner.Attributes(), b.bind.target)
	if err != nil {
		if entity.IsEntityDestroyed(err) {
			outcome = metrics.OutcomeDiscarded
		} else {
			outcome = metrics.OutcomeFailed
			b.logger.WarnContext(ctx, "target write failed",
				"producer", ev.Producer,
				"sensor", ev.Sensor.Name,
				"target", b.bind.target.Name,
				"seq", ev.Seq,
				"error", err,
			)
		}
	}
	b.metrics.EnricherEvents.WithLabelValues(b.kind, outcome).Inc()
}

// setTarget writes res to the target sensor. Remove writes null.
func (b *base[S]) setTarget(ctx context.Context, ev bus.Event, res Result, suppress bool) {
	b.commit(ctx, ev, func(store *entity.AttributeStore, target ir.Sensor) (string, error) {
		opt := entity.WrittenBy(b.id)
		if suppress {
			opt = entity.SuppressDuplicatesFor(b.id)
		}
		wr, err := store.SetWith(target, res.Value(), opt)
		switch {
		case err != nil:
			return "", err
		case !wr.Written:
			return metrics.OutcomeSuppressed, nil
		case res.Kind() == ResultRemove:
			return metrics.OutcomeRemoved, nil
		}
		return metrics.OutcomeWritten, nil
	})
}

// count records an outcome that needed no write.
func (b *base[S]) count(outcome string) {
	b.mu.RLock()
	m := b.metrics
	b.mu.RUnlock()
	m.EnricherEvents.WithLabelValues(b.kind, outcome).Inc()
}

// resolveProducer returns the configured producer or owner.
func resolveProducer(cfg *config.Bag, owner *entity.Entity) (*entity.Entity, error) {
	p, err := config.Get(cfg, Producer)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return owner, nil
	}
	return p, nil
}
