package enricher

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/roach88/attrflow/internal/bus"
	"github.com/roach88/attrflow/internal/config"
	"github.com/roach88/attrflow/internal/entity"
	"github.com/roach88/attrflow/internal/ir"
	"github.com/roach88/attrflow/internal/metrics"
)

var (
	srcA   = ir.NewSensor("a", ir.KindInt)
	srcB   = ir.NewSensor("b", ir.KindInt)
	out    = ir.NewSensor("out", ir.KindAny)
	counts = ir.NewSensor("counts", ir.KindMap)
)

type fixture struct {
	t       *testing.T
	bus     *bus.Bus
	metrics *metrics.Metrics
	app     *entity.Entity
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	m := metrics.New(nil)
	b := bus.New(
		bus.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		bus.WithMetrics(m),
	)
	t.Cleanup(b.Close)
	return &fixture{
		t:       t,
		bus:     b,
		metrics: m,
		app:     entity.New(b, entity.WithID("app")),
	}
}

func (f *fixture) set(e *entity.Entity, sensor ir.Sensor, v ir.Value) {
	f.t.Helper()
	_, err := e.Attributes().Set(sensor, v)
	require.NoError(f.t, err)
}

func (f *fixture) get(e *entity.Entity, sensor ir.Sensor) (ir.Value, bool) {
	return e.Attributes().Get(sensor)
}

func (f *fixture) idle() {
	f.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(f.t, f.bus.WaitIdle(ctx))
}

func (f *fixture) writes(e *entity.Entity, sensor ir.Sensor) int {
	return int(testutil.ToFloat64(f.metrics.SensorWrites.WithLabelValues(e.ID(), sensor.Name)))
}

func (f *fixture) outcomes(kind, outcome string) int {
	return int(testutil.ToFloat64(f.metrics.EnricherEvents.WithLabelValues(kind, outcome)))
}

// record subscribes a recorder to (e, sensor) without initial value.
func (f *fixture) record(e *entity.Entity, sensor ir.Sensor) *recorder {
	f.t.Helper()
	r := &recorder{}
	_, err := f.bus.Subscribe(e, sensor, r)
	require.NoError(f.t, err)
	return r
}

type recorder struct {
	mu     sync.Mutex
	values []ir.Value
}

func (r *recorder) OnEvent(_ context.Context, ev bus.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.values = append(r.values, ev.Value)
	return nil
}

func (r *recorder) snapshot() []ir.Value {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]ir.Value(nil), r.values...)
}

func bag(t *testing.T, set func(b *config.Bag)) *config.Bag {
	t.Helper()
	b := config.NewBag()
	set(b)
	return b
}

func must(t *testing.T, err error) {
	t.Helper()
	require.NoError(t, err)
}

func transformerConfig(t *testing.T, source, target ir.Sensor, c Computation) *config.Bag {
	return bag(t, func(b *config.Bag) {
		must(t, config.Set(b, SourceSensor, source))
		must(t, config.Set(b, TargetSensor, target))
		must(t, config.Set(b, Computing, c))
	})
}

func mapConfig(t *testing.T, source ir.Sensor, c Computation) *config.Bag {
	return bag(t, func(b *config.Bag) {
		must(t, config.Set(b, SourceSensor, source))
		must(t, config.Set(b, TargetSensor, counts))
		must(t, config.Set(b, Computing, c))
	})
}

func double(in ir.Value) ir.Value {
	if n, ok := in.(ir.Int); ok {
		return n * 2
	}
	return nil
}
