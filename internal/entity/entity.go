package entity

import (
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/roach88/attrflow/internal/bus"
	"github.com/roach88/attrflow/internal/ir"
	"github.com/roach88/attrflow/internal/metrics"
)

// Enricher is the lifecycle contract between an entity and the enrichers
// attached to it. Init and Destroy are each called once, in that order.
type Enricher interface {
	ID() string
	Init(e *Entity) error
	Destroy()
}

// Entity owns an attribute store and takes part in an ownership tree.
//
// Entity implements bus.Source, so enrichers subscribe to it directly.
type Entity struct {
	id     string
	name   string
	parent *Entity

	bus     *bus.Bus
	logger  *slog.Logger
	metrics *metrics.Metrics
	attrs   *AttributeStore

	mu        sync.Mutex
	children  []*Entity
	enrichers []Enricher

	destroyed atomic.Bool
}

// Option configures an Entity.
type Option func(*Entity)

// WithID sets the entity ID instead of drawing one from the bus generator.
func WithID(id string) Option {
	return func(e *Entity) {
		e.id = id
	}
}

// WithName sets a display name. Defaults to the ID.
func WithName(name string) Option {
	return func(e *Entity) {
		e.name = name
	}
}

// WithParent makes the entity a child of parent.
func WithParent(parent *Entity) Option {
	return func(e *Entity) {
		e.parent = parent
	}
}

// New creates an entity publishing on b.
func New(b *bus.Bus, opts ...Option) *Entity {
	e := &Entity{
		bus:     b,
		logger:  b.Logger(),
		metrics: b.Metrics(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.id == "" {
		e.id = b.IDs().Generate()
	}
	if e.name == "" {
		e.name = e.id
	}
	e.attrs = newAttributeStore(e)
	e.logger = e.logger.With("entity", e.name)

	if e.parent != nil {
		e.parent.mu.Lock()
		e.parent.children = append(e.parent.children, e)
		e.parent.mu.Unlock()
	}
	return e
}

// ID returns the entity's unique identifier.
func (e *Entity) ID() string { return e.id }

// Name returns the display name.
func (e *Entity) Name() string { return e.name }

// Parent returns the owning entity, or nil for a root.
func (e *Entity) Parent() *Entity { return e.parent }

// Bus returns the bus the entity publishes on.
func (e *Entity) Bus() *bus.Bus { return e.bus }

// Logger returns the entity-scoped logger.
func (e *Entity) Logger() *slog.Logger { return e.logger }

// Metrics returns the shared collectors.
func (e *Entity) Metrics() *metrics.Metrics { return e.metrics }

// Attributes returns the entity's attribute store.
func (e *Entity) Attributes() *AttributeStore { return e.attrs }

// Observe implements bus.Source.
func (e *Entity) Observe(sensor ir.Sensor, fn func(current ir.Value, seq int64, present bool)) {
	e.attrs.Observe(sensor, fn)
}

// Children returns a copy of the entity's children.
func (e *Entity) Children() []*Entity {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Clone(e.children)
}

// Enrichers returns a copy of the attached enrichers.
func (e *Entity) Enrichers() []Enricher {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Clone(e.enrichers)
}

// Destroyed reports whether Destroy has been called.
func (e *Entity) Destroyed() bool { return e.destroyed.Load() }

// AddEnricher initializes en against this entity and attaches it.
// If Init fails the enricher is not attached.
func (e *Entity) AddEnricher(en Enricher) error {
	if e.Destroyed() {
		return &EntityDestroyedError{EntityID: e.id}
	}
	if err := en.Init(e); err != nil {
		return err
	}

	e.mu.Lock()
	e.enrichers = append(e.enrichers, en)
	e.mu.Unlock()

	e.logger.Debug("enricher added", "enricher", en.ID())
	return nil
}

// RemoveEnricher destroys en and detaches it. Returns false if en was not
// attached to this entity.
func (e *Entity) RemoveEnricher(en Enricher) bool {
	e.mu.Lock()
	i := slices.Index(e.enrichers, en)
	if i < 0 {
		e.mu.Unlock()
		return false
	}
	e.enrichers = slices.Delete(e.enrichers, i, i+1)
	e.mu.Unlock()

	en.Destroy()
	e.attrs.ForgetSubscriber(en.ID())
	e.logger.Debug("enricher removed", "enricher", en.ID())
	return true
}

// Destroy tears down the entity: children first, then attached enrichers.
// Later writes to the store fail with EntityDestroyedError. Idempotent.
func (e *Entity) Destroy() {
	if !e.destroyed.CompareAndSwap(false, true) {
		return
	}

	for _, c := range e.Children() {
		c.Destroy()
	}

	e.mu.Lock()
	enrichers := e.enrichers
	e.enrichers = nil
	e.mu.Unlock()

	for _, en := range enrichers {
		en.Destroy()
	}

	if p := e.parent; p != nil {
		p.mu.Lock()
		if i := slices.Index(p.children, e); i >= 0 {
			p.children = slices.Delete(p.children, i, i+1)
		}
		p.mu.Unlock()
	}

	e.logger.Debug("entity destroyed", "enrichers", len(enrichers))
}
