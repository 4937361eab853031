package enricher

import (
	"context"

	"github.com/roach88/attrflow/internal/bus"
	"github.com/roach88/attrflow/internal/config"
	"github.com/roach88/attrflow/internal/entity"
	"github.com/roach88/attrflow/internal/ir"
	"github.com/roach88/attrflow/internal/metrics"
)

type transformerSettings struct {
	computing Computation
	suppress  bool
}

// Transformer writes computing(source value) to its target sensor on every
// source event.
//
// Options: Producer, SourceSensor (required), TargetSensor (required),
// Computing (required), SuppressDuplicates (default true).
type Transformer struct {
	base[transformerSettings]
}

// NewTransformer creates a detached transformer configured by cfg.
// cfg is owned by the transformer from now on.
func NewTransformer(cfg *config.Bag, opts ...Option) *Transformer {
	t := &Transformer{}
	t.setup(KindTransformer, cfg, loadTransformer, t,
		[]string{Computing.Name(), SuppressDuplicates.Name()}, opts)
	return t
}

func loadTransformer(cfg *config.Bag, owner *entity.Entity) (binding, transformerSettings, error) {
	var s transformerSettings

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
	if target.IsComposite() {
		return binding{}, s, config.Forbidden(TargetSensor.Name(),
			"map target "+target.Name+" needs an updating map")
	}
	if s.computing, err = config.Require(cfg, Computing); err != nil {
		return binding{}, s, err
	}
	if s.suppress, err = config.Get(cfg, SuppressDuplicates); err != nil {
		return binding{}, s, err
	}

	return binding{producer: producer, sources: []ir.Sensor{source}, target: target}, s, nil
}

// OnEvent implements bus.Listener.
func (t *Transformer) OnEvent(ctx context.Context, ev bus.Event) error {
	s, _, _ := t.current()

	res, ok := t.compute(ctx, s.computing, ev, ev.Value)
	if !ok {
		return nil
	}

	if res.Kind() == ResultUnchanged {
		t.count(metrics.OutcomeUnchanged)
		return nil
	}

	t.setTarget(ctx, ev, res, s.suppress)
	return nil
}
