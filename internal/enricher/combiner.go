package enricher

import (
	"context"
	"sync"

	"github.com/roach88/attrflow/internal/bus"
	"github.com/roach88/attrflow/internal/config"
	"github.com/roach88/attrflow/internal/entity"
	"github.com/roach88/attrflow/internal/ir"
	"github.com/roach88/attrflow/internal/metrics"
)

type combinerSettings struct {
	computing Computation
	suppress  bool
}

// Combiner writes computing({source name: latest value, ...}) to its target
// once every source sensor has a value, and again on every later change.
//
// Options: Producer, SourceSensors (required, non-empty), TargetSensor
// (required), Computing (required), SuppressDuplicates (default true).
type Combiner struct {
	base[combinerSettings]

	// latestMu serializes compute-and-write across source sensors, whose
	// deliveries run on different workers.
	latestMu sync.Mutex
	latest   ir.Map
}

// NewCombiner creates a detached combiner configured by cfg.
func NewCombiner(cfg *config.Bag, opts ...Option) *Combiner {
	c := &Combiner{latest: make(ir.Map)}
	c.setup(KindCombiner, cfg, loadCombiner, c,
		[]string{Computing.Name(), SuppressDuplicates.Name()}, opts)
	return c
}

func loadCombiner(cfg *config.Bag, owner *entity.Entity) (binding, combinerSettings, error) {
	var s combinerSettings

	producer, err := resolveProducer(cfg, owner)
	if err != nil {
		return binding{}, s, err
	}
	sources, err := config.Require(cfg, SourceSensors)
	if err != nil {
		return binding{}, s, err
	}
	if len(sources) == 0 {
		return binding{}, s, config.Forbidden(SourceSensors.Name(), "at least one source sensor is required")
	}
	seen := make(map[string]bool, len(sources))
	for _, src := range sources {
		if seen[src.Name] {
			return binding{}, s, config.Forbidden(SourceSensors.Name(), "duplicate source sensor "+src.Name)
		}
		seen[src.Name] = true
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

	return binding{producer: producer, sources: sources, target: target}, s, nil
}

// OnEvent implements bus.Listener.
func (c *Combiner) OnEvent(ctx context.Context, ev bus.Event) error {
	s, bind, _ := c.current()

	c.latestMu.Lock()
	defer c.latestMu.Unlock()

	c.latest = c.latest.With(ev.Sensor.Name, ev.Value)
	if len(c.latest) < len(bind.sources) {
		c.count(metrics.OutcomeUnchanged)
		return nil
	}

	res, ok := c.compute(ctx, s.computing, ev, c.latest)
	if !ok {
		return nil
	}

	if res.Kind() == ResultUnchanged {
		c.count(metrics.OutcomeUnchanged)
		return nil
	}

	c.setTarget(ctx, ev, res, s.suppress)
	return nil
}
