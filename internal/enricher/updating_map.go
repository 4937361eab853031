package enricher

import (
	"context"

	"github.com/roach88/attrflow/internal/bus"
	"github.com/roach88/attrflow/internal/config"
	"github.com/roach88/attrflow/internal/entity"
	"github.com/roach88/attrflow/internal/ir"
	"github.com/roach88/attrflow/internal/metrics"
)

type mapSettings struct {
	computing Computation
	key       string
	removing  bool
}

// UpdatingMap maintains one key of a map-valued target sensor. Many
// instances may share a target, each owning a distinct key.
//
// Per event, with v = computing(source value):
//   - Unchanged: nothing is written and no event is raised.
//   - Remove, or null with RemovingIfResultIsNull: the key is deleted if
//     present.
//   - otherwise: the key is set to v.
//
// Every change goes through AttributeStore.Update with a copy of the map,
// so operators on disjoint keys never lose each other's updates.
//
// SuppressDuplicates is always false. Setting it to true is a
// configuration error, at construction and on any later change.
type UpdatingMap struct {
	base[mapSettings]
}

// NewUpdatingMap creates a detached updating map configured by cfg.
func NewUpdatingMap(cfg *config.Bag, opts ...Option) (*UpdatingMap, error) {
	if cfg == nil {
		cfg = config.NewBag()
	}
	if err := vetoSuppression(SuppressDuplicates.Name(), mustRaw(cfg, SuppressDuplicates.Name())); err != nil {
		return nil, err
	}
	cfg.AddVeto(vetoSuppression)

	m := &UpdatingMap{}
	m.setup(KindUpdatingMap, cfg, loadUpdatingMap, m,
		[]string{Computing.Name(), RemovingIfResultIsNull.Name(), SuppressDuplicates.Name()}, opts)
	return m, nil
}

func mustRaw(cfg *config.Bag, name string) any {
	v, _ := cfg.Raw(name)
	return v
}

func vetoSuppression(name string, value any) error {
	if name != SuppressDuplicates.Name() {
		return nil
	}
	if on, ok := value.(bool); ok && on {
		return config.Forbidden(name, "an updating map never suppresses duplicates")
	}
	return nil
}

func loadUpdatingMap(cfg *config.Bag, owner *entity.Entity) (binding, mapSettings, error) {
	var s mapSettings

	producer, err := resolveProducer(cfg, owner)
	if err != nil {
		return binding{}, s, err
	}
	source, err := config.Require(cfg, SourceSensor)
	if err != nil {
		return binding{}, s, err
	}
	target, err := config.Require(cfg, TargetSensor)
	if err != nil {
		return binding{}, s, err
	}
	if !target.IsComposite() {
		return binding{}, s, config.Forbidden(TargetSensor.Name(),
			"target "+target.String()+" is not a map sensor")
	}
	if s.computing, err = config.Require(cfg, Computing); err != nil {
		return binding{}, s, err
	}
	if s.removing, err = config.Get(cfg, RemovingIfResultIsNull); err != nil {
		return binding{}, s, err
	}
	if s.key, err = config.Get(cfg, KeyInTargetSensor); err != nil {
		return binding{}, s, err
	}
	if s.key == "" {
		s.key = source.Name
	}

	return binding{producer: producer, sources: []ir.Sensor{source}, target: target}, s, nil
}

// Key returns the map key this operator owns. Empty before Init.
func (m *UpdatingMap) Key() string {
	s, _, _ := m.current()
	return s.key
}

// OnEvent implements bus.Listener.
func (m *UpdatingMap) OnEvent(ctx context.Context, ev bus.Event) error {
	s, _, _ := m.current()

	res, ok := m.compute(ctx, s.computing, ev, ev.Value)
	if !ok {
		return nil
	}
	if res.Kind() == ResultUnchanged {
		m.count(metrics.OutcomeUnchanged)
		return nil
	}

	remove := res.Kind() == ResultRemove || (res.IsNull() && s.removing)
	value := res.Value()

	m.commit(ctx, ev, func(store *entity.AttributeStore, target ir.Sensor) (string, error) {
		outcome := metrics.OutcomeWritten
		_, err := store.Update(target, func(current ir.Value, _ bool) (ir.Value, bool) {
			old, _ := current.(ir.Map)
			if remove {
				if _, ok := old[s.key]; !ok {
					outcome = metrics.OutcomeUnchanged
					return nil, false
				}
				outcome = metrics.OutcomeRemoved
				return old.Without(s.key), true
			}
			return old.With(s.key, value), true
		})
		return outcome, err
	})
	return nil
}
