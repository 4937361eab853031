package world

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/attrflow/internal/bus"
	"github.com/roach88/attrflow/internal/compiler"
	"github.com/roach88/attrflow/internal/compute"
	"github.com/roach88/attrflow/internal/config"
	"github.com/roach88/attrflow/internal/enricher"
	"github.com/roach88/attrflow/internal/entity"
	"github.com/roach88/attrflow/internal/ir"
	"github.com/roach88/attrflow/internal/metrics"
	"github.com/roach88/attrflow/internal/store"
)

// Enricher is the view of an attached enricher that World exposes.
type Enricher interface {
	entity.Enricher
	Kind() string
	State() enricher.State
	Config() *config.Bag
	Target() ir.Sensor
	Reconfigure(name string, value any) error
}

// World is a topology brought to life.
//
// Thread-safety: Set, Update and Get are safe for concurrent use. The entity
// and enricher maps are fixed after Build; DestroyEnricher detaches but
// does not forget, so lookups stay valid.
type World struct {
	topo      *ir.Topology
	bus       *bus.Bus
	logger    *slog.Logger
	journal   *store.Store
	entities  map[string]*entity.Entity
	enrichers map[string]Enricher
}

type options struct {
	logger  *slog.Logger
	metrics *metrics.Metrics
	journal *store.Store
	ids     bus.IDGenerator
}

// Option configures Build.
type Option func(*options)

// WithLogger sets the logger for the bus and everything attached to it.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithMetrics sets the collectors. Defaults to an unregistered set.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithJournal records every sensor event and entity in s.
func WithJournal(s *store.Store) Option {
	return func(o *options) { o.journal = s }
}

// WithIDGenerator sets the generator for subscription IDs.
func WithIDGenerator(g bus.IDGenerator) Option {
	return func(o *options) { o.ids = g }
}

// Build validates topo and assembles a World from it.
func Build(ctx context.Context, topo *ir.Topology, opts ...Option) (*World, error) {
	if errs := compiler.Validate(topo); len(errs) > 0 {
		return nil, &InvalidTopologyError{Errors: errs}
	}

	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.metrics == nil {
		o.metrics = metrics.New(nil)
	}

	busOpts := []bus.Option{bus.WithLogger(o.logger), bus.WithMetrics(o.metrics)}
	if o.journal != nil {
		busOpts = append(busOpts, bus.WithJournal(o.journal))
	}
	if o.ids != nil {
		busOpts = append(busOpts, bus.WithIDGenerator(o.ids))
	}

	w := &World{
		topo:      topo,
		bus:       bus.New(busOpts...),
		logger:    o.logger.With("component", "world"),
		journal:   o.journal,
		entities:  make(map[string]*entity.Entity, len(topo.Entities)),
		enrichers: make(map[string]Enricher, len(topo.Enrichers)),
	}

	for _, spec := range topo.Entities {
		if _, err := w.buildEntity(ctx, spec.Name); err != nil {
			w.Close()
			return nil, err
		}
	}
	for _, spec := range topo.Entities {
		if err := w.applyInit(spec); err != nil {
			w.Close()
			return nil, err
		}
	}
	for _, spec := range topo.Enrichers {
		if err := w.attach(spec); err != nil {
			w.Close()
			return nil, fmt.Errorf("enricher %s: %w", spec.Name, err)
		}
	}

	w.logger.Info("world built",
		"entities", len(w.entities),
		"enrichers", len(w.enrichers),
	)
	return w, nil
}

// buildEntity creates name after its ancestors. Validation has already
// ruled out unknown parents and cycles.
func (w *World) buildEntity(ctx context.Context, name string) (*entity.Entity, error) {
	if e, ok := w.entities[name]; ok {
		return e, nil
	}
	spec, _ := w.topo.Entity(name)

	opts := []entity.Option{entity.WithID(name), entity.WithName(name)}
	parentID := ""
	if spec.Parent != "" {
		parent, err := w.buildEntity(ctx, spec.Parent)
		if err != nil {
			return nil, err
		}
		opts = append(opts, entity.WithParent(parent))
		parentID = parent.ID()
	}

	e := entity.New(w.bus, opts...)
	w.entities[name] = e

	if w.journal != nil {
		if err := w.journal.RegisterEntity(ctx, e.ID(), name, parentID); err != nil {
			return nil, fmt.Errorf("register entity %s: %w", name, err)
		}
	}
	return e, nil
}

func (w *World) applyInit(spec ir.EntitySpec) error {
	for _, name := range spec.Init.SortedKeys() {
		if err := w.write(spec.Name, name, spec.Init[name]); err != nil {
			return fmt.Errorf("init %s.%s: %w", spec.Name, name, err)
		}
	}
	return nil
}

func (w *World) attach(spec ir.EnricherSpec) error {
	owner := w.entities[spec.Entity]

	cfg, err := w.configFor(spec)
	if err != nil {
		return err
	}

	var en Enricher
	opts := []enricher.Option{enricher.WithID(spec.Name)}
	switch spec.Kind {
	case ir.EnricherTransformer:
		en = enricher.NewTransformer(cfg, opts...)
	case ir.EnricherUpdatingMap:
		m, err := enricher.NewUpdatingMap(cfg, opts...)
		if err != nil {
			return err
		}
		en = m
	case ir.EnricherCombiner:
		en = enricher.NewCombiner(cfg, opts...)
	default:
		return fmt.Errorf("unsupported enricher kind %q", spec.Kind)
	}

	if err := owner.AddEnricher(en); err != nil {
		return err
	}
	w.enrichers[spec.Name] = en
	return nil
}

// configFor translates a declaration into an enricher configuration.
func (w *World) configFor(spec ir.EnricherSpec) (*config.Bag, error) {
	cfg := config.NewBag()

	expr, err := compute.Compile(spec.Computing)
	if err != nil {
		return nil, err
	}
	target, _ := w.topo.Sensor(spec.Target)

	errs := []error{
		config.Set(cfg, enricher.TargetSensor, target),
		config.Set(cfg, enricher.Computing, expr.Computation()),
	}
	if spec.Producer != "" {
		errs = append(errs, config.Set(cfg, enricher.Producer, w.entities[spec.Producer]))
	}
	if spec.Kind == ir.EnricherCombiner {
		sources := make([]ir.Sensor, len(spec.Sources))
		for i, name := range spec.Sources {
			sources[i], _ = w.topo.Sensor(name)
		}
		errs = append(errs, config.Set(cfg, enricher.SourceSensors, sources))
	} else {
		source, _ := w.topo.Sensor(spec.Source)
		errs = append(errs, config.Set(cfg, enricher.SourceSensor, source))
	}
	if spec.Key != "" {
		errs = append(errs, config.Set(cfg, enricher.KeyInTargetSensor, spec.Key))
	}
	if spec.RemovingIfResultIsNull != nil {
		errs = append(errs, config.Set(cfg, enricher.RemovingIfResultIsNull, *spec.RemovingIfResultIsNull))
	}
	if spec.SuppressDuplicates != nil {
		errs = append(errs, config.Set(cfg, enricher.SuppressDuplicates, *spec.SuppressDuplicates))
	}

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// Bus returns the world's bus.
func (w *World) Bus() *bus.Bus { return w.bus }

// Topology returns the topology the world was built from.
func (w *World) Topology() *ir.Topology { return w.topo }

// Entity looks up an entity by name.
func (w *World) Entity(name string) (*entity.Entity, bool) {
	e, ok := w.entities[name]
	return e, ok
}

// Enricher looks up an enricher by name, including destroyed ones.
func (w *World) Enricher(name string) (Enricher, bool) {
	en, ok := w.enrichers[name]
	return en, ok
}

func (w *World) resolve(entityName, sensorName string) (*entity.Entity, ir.Sensor, error) {
	e, ok := w.entities[entityName]
	if !ok {
		return nil, ir.Sensor{}, &NotFoundError{Kind: "entity", Name: entityName}
	}
	s, ok := w.topo.Sensor(sensorName)
	if !ok {
		return nil, ir.Sensor{}, &NotFoundError{Kind: "sensor", Name: sensorName}
	}
	return e, s, nil
}

// Set writes v to a sensor. Map sensors are replaced whole through Update,
// since plain Set is reserved for scalar sensors.
func (w *World) Set(entityName, sensorName string, v ir.Value) error {
	return w.write(entityName, sensorName, v)
}

func (w *World) write(entityName, sensorName string, v ir.Value) error {
	e, s, err := w.resolve(entityName, sensorName)
	if err != nil {
		return err
	}
	if s.IsComposite() {
		_, err = e.Attributes().Update(s, func(ir.Value, bool) (ir.Value, bool) { return v, true })
		return err
	}
	_, err = e.Attributes().Set(s, v)
	return err
}

// Update applies fn to a sensor's current value.
func (w *World) Update(entityName, sensorName string, fn entity.UpdateFunc) (ir.Value, error) {
	e, s, err := w.resolve(entityName, sensorName)
	if err != nil {
		return nil, err
	}
	return e.Attributes().Update(s, fn)
}

// Get reads a sensor's current value.
func (w *World) Get(entityName, sensorName string) (ir.Value, bool, error) {
	e, s, err := w.resolve(entityName, sensorName)
	if err != nil {
		return nil, false, err
	}
	v, ok := e.Attributes().Get(s)
	return v, ok, nil
}

// WriteCount returns how many writes a sensor has committed. Each write
// advances the sensor's sequence by one, so this is its current seq.
func (w *World) WriteCount(entityName, sensorName string) (int64, error) {
	e, s, err := w.resolve(entityName, sensorName)
	if err != nil {
		return 0, err
	}
	return e.Attributes().Seq(s), nil
}

// WaitIdle blocks until every published event has been delivered.
func (w *World) WaitIdle(ctx context.Context) error {
	return w.bus.WaitIdle(ctx)
}

// Snapshot returns every entity's present sensor values keyed by entity name.
func (w *World) Snapshot() map[string]ir.Map {
	out := make(map[string]ir.Map, len(w.entities))
	for name, e := range w.entities {
		out[name] = e.Attributes().Snapshot()
	}
	return out
}

// DestroyEnricher detaches and destroys an enricher. Destroying twice is
// a no-op.
func (w *World) DestroyEnricher(name string) error {
	en, ok := w.enrichers[name]
	if !ok {
		return &NotFoundError{Kind: "enricher", Name: name}
	}
	spec, _ := w.topo.Enricher(name)
	if w.entities[spec.Entity].RemoveEnricher(en) {
		w.logger.Info("enricher destroyed", "enricher", name)
	}
	return nil
}

// options accepted by Reconfigure, by their topology spelling. key is listed
// so that changing it reports a configuration error rather than an unknown
// option: an updating map resolves its key once at Init, so it always rejects.
var reconfigurable = map[string]string{
	"computing":                  enricher.Computing.Name(),
	"suppress_duplicates":        enricher.SuppressDuplicates.Name(),
	"removing_if_result_is_null": enricher.RemovingIfResultIsNull.Name(),
	"key":                        enricher.KeyInTargetSensor.Name(),
}

// Reconfigure changes one option of a running enricher. option uses the
// topology spelling (suppress_duplicates, computing, ...). A computing
// value is a CUE expression string.
func (w *World) Reconfigure(name, option string, value any) error {
	en, ok := w.enrichers[name]
	if !ok {
		return &NotFoundError{Kind: "enricher", Name: name}
	}
	key, ok := reconfigurable[option]
	if !ok {
		return &NotFoundError{Kind: "option", Name: option}
	}

	if key == enricher.Computing.Name() {
		src, isString := value.(string)
		if !isString {
			return fmt.Errorf("computing must be an expression string, got %T", value)
		}
		expr, err := compute.Compile(src)
		if err != nil {
			return err
		}
		value = expr.Computation()
	}

	return en.Reconfigure(key, value)
}

// Close destroys every entity and stops the bus. The journal, if any,
// stays open and belongs to the caller.
func (w *World) Close() {
	for _, e := range w.entities {
		if e.Parent() == nil {
			e.Destroy()
		}
	}
	w.bus.Close()
}
