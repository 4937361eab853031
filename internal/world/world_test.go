package world

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/attrflow/internal/compiler"
	"github.com/roach88/attrflow/internal/config"
	"github.com/roach88/attrflow/internal/enricher"
	"github.com/roach88/attrflow/internal/ir"
	"github.com/roach88/attrflow/internal/metrics"
	"github.com/roach88/attrflow/internal/store"
	"github.com/roach88/attrflow/internal/testutil"
)

const countsTopology = `
sensor: {
	a:      "int"
	b:      "int"
	counts: "map"
}
entity: app: {}
enricher: {
	count_a: {kind: "updating_map", entity: "app", source: "a", target: "counts", key: "a", computing: "in"}
	count_b: {kind: "updating_map", entity: "app", source: "b", target: "counts", key: "b", computing: "in"}
}
`

const chainTopology = `
sensor: {
	load:    "int"
	doubled: "int"
	total:   "int"
	label:   "string"
}
entity: {
	host: {}
	vm: {parent: "host", init: load: 3}
}
enricher: {
	double: {kind: "transformer", entity: "vm", source: "load", target: "doubled", computing: "in * 2"}
	lift: {kind: "transformer", entity: "host", producer: "vm", source: "doubled", target: "total", computing: "in + 1"}
	name: {kind: "combiner", entity: "host", producer: "vm", sources: ["load", "doubled"], target: "label", computing: "\"load\""}
}
`

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func build(t *testing.T, src string, opts ...Option) *World {
	t.Helper()
	topo, err := compiler.CompileString(src)
	require.NoError(t, err)

	opts = append([]Option{WithLogger(discardLogger())}, opts...)
	w, err := Build(context.Background(), topo, opts...)
	require.NoError(t, err)
	t.Cleanup(w.Close)
	return w
}

func idle(t *testing.T, w *World) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, w.WaitIdle(ctx))
}

func get(t *testing.T, w *World, entityName, sensor string) ir.Value {
	t.Helper()
	v, _, err := w.Get(entityName, sensor)
	require.NoError(t, err)
	return v
}

func TestBuild_Counts(t *testing.T) {
	w := build(t, countsTopology)

	require.NoError(t, w.Set("app", "a", ir.Int(1)))
	idle(t, w)
	assert.Equal(t, ir.Map{"a": ir.Int(1)}, get(t, w, "app", "counts"))

	require.NoError(t, w.Set("app", "b", ir.Int(2)))
	idle(t, w)
	assert.Equal(t, ir.Map{"a": ir.Int(1), "b": ir.Int(2)}, get(t, w, "app", "counts"))

	require.NoError(t, w.Set("app", "a", ir.Null{}))
	idle(t, w)
	assert.Equal(t, ir.Map{"b": ir.Int(2)}, get(t, w, "app", "counts"))

	n, err := w.WriteCount("app", "counts")
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

func TestWorld_ObserveTargetEvents(t *testing.T) {
	w := build(t, countsTopology)

	app, _ := w.Entity("app")
	counts, _ := w.Topology().Sensor("counts")
	rec := testutil.NewRecorder()
	_, err := w.Bus().Subscribe(app, counts, rec)
	require.NoError(t, err)

	require.NoError(t, w.Set("app", "a", ir.Int(1)))
	idle(t, w)
	require.NoError(t, w.Set("app", "b", ir.Int(2)))
	idle(t, w)

	require.Equal(t, 2, rec.Len())
	assert.Equal(t, []ir.Value{
		ir.Map{"a": ir.Int(1)},
		ir.Map{"a": ir.Int(1), "b": ir.Int(2)},
	}, rec.Values())
}

func TestBuild_ChainAcrossEntities(t *testing.T) {
	w := build(t, chainTopology)
	idle(t, w)

	// init values propagate once enrichers attach
	assert.Equal(t, ir.Int(6), get(t, w, "vm", "doubled"))
	assert.Equal(t, ir.Int(7), get(t, w, "host", "total"))
	assert.Equal(t, ir.String("load"), get(t, w, "host", "label"))

	require.NoError(t, w.Set("vm", "load", ir.Int(10)))
	idle(t, w)
	assert.Equal(t, ir.Int(21), get(t, w, "host", "total"))

	vm, ok := w.Entity("vm")
	require.True(t, ok)
	host, _ := w.Entity("host")
	assert.Same(t, host, vm.Parent())

	snap := w.Snapshot()
	assert.Equal(t, ir.Map{"load": ir.Int(10), "doubled": ir.Int(20)}, snap["vm"])
}

func TestBuild_InvalidTopology(t *testing.T) {
	topo, err := compiler.CompileString(`
sensor: a: "float"
entity: app: {}
`)
	require.NoError(t, err)

	_, err = Build(context.Background(), topo, WithLogger(discardLogger()))
	require.Error(t, err)
	var ite *InvalidTopologyError
	require.ErrorAs(t, err, &ite)
	require.Len(t, ite.Errors, 1)
	assert.Equal(t, compiler.ErrFloatTypeForbidden, ite.Errors[0].Code)
	assert.Contains(t, err.Error(), "E106")
}

func TestWorld_UnknownNames(t *testing.T) {
	w := build(t, countsTopology)

	var nf *NotFoundError

	err := w.Set("ghost", "a", ir.Int(1))
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "entity", nf.Kind)

	_, _, err = w.Get("app", "ghost")
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "sensor", nf.Kind)

	err = w.DestroyEnricher("ghost")
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "enricher", nf.Kind)

	err = w.Reconfigure("count_a", "bogus", 1)
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "option", nf.Kind)
}

func TestWorld_SetMapSensorReplacesWhole(t *testing.T) {
	w := build(t, countsTopology)

	require.NoError(t, w.Set("app", "counts", ir.Map{"z": ir.Int(9)}))
	require.NoError(t, w.Set("app", "a", ir.Int(1)))
	idle(t, w)
	assert.Equal(t, ir.Map{"z": ir.Int(9), "a": ir.Int(1)}, get(t, w, "app", "counts"))
}

func TestWorld_ConcurrentDisjointKeys(t *testing.T) {
	m := metrics.New(nil)
	w := build(t, countsTopology, WithMetrics(m))

	var g errgroup.Group
	for i := range 50 {
		g.Go(func() error { return w.Set("app", "a", ir.Int(int64(i))) })
		g.Go(func() error { return w.Set("app", "b", ir.Int(int64(i))) })
	}
	require.NoError(t, g.Wait())
	idle(t, w)

	counts := get(t, w, "app", "counts").(ir.Map)
	assert.Len(t, counts, 2)
	a, _, _ := w.Get("app", "a")
	b, _, _ := w.Get("app", "b")
	assert.Equal(t, a, counts["a"])
	assert.Equal(t, b, counts["b"])
}

func TestWorld_DestroyEnricher(t *testing.T) {
	w := build(t, countsTopology)

	require.NoError(t, w.Set("app", "a", ir.Int(1)))
	idle(t, w)

	require.NoError(t, w.DestroyEnricher("count_a"))
	require.NoError(t, w.DestroyEnricher("count_a"))

	en, ok := w.Enricher("count_a")
	require.True(t, ok)
	assert.Equal(t, enricher.StateDestroyed, en.State())

	require.NoError(t, w.Set("app", "a", ir.Int(5)))
	require.NoError(t, w.Set("app", "b", ir.Int(2)))
	idle(t, w)
	assert.Equal(t, ir.Map{"a": ir.Int(1), "b": ir.Int(2)}, get(t, w, "app", "counts"))
}

func TestWorld_Reconfigure(t *testing.T) {
	w := build(t, chainTopology)
	idle(t, w)

	require.NoError(t, w.Reconfigure("double", "computing", "in * 3"))
	require.NoError(t, w.Set("vm", "load", ir.Int(2)))
	idle(t, w)
	assert.Equal(t, ir.Int(6), get(t, w, "vm", "doubled"))

	err := w.Reconfigure("double", "computing", "in *")
	require.Error(t, err)

	err = w.Reconfigure("double", "computing", 3)
	require.Error(t, err)
}

func TestWorld_ReconfigureForbidden(t *testing.T) {
	w := build(t, countsTopology)

	err := w.Reconfigure("count_a", "suppress_duplicates", true)
	require.Error(t, err)
	assert.True(t, config.IsConfigurationError(err))

	err = w.Reconfigure("count_a", "key", "other")
	require.Error(t, err)
	assert.True(t, config.IsConfigurationError(err))

	require.NoError(t, w.Reconfigure("count_a", "suppress_duplicates", false))
}

func TestWorld_Journal(t *testing.T) {
	s, err := store.Open(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	defer s.Close()

	m := metrics.New(nil)
	w := build(t, countsTopology, WithJournal(s), WithMetrics(m))

	for i := 1; i <= 3; i++ {
		require.NoError(t, w.Set("app", "a", ir.Int(int64(i))))
	}
	idle(t, w)

	ctx := context.Background()
	n, err := s.CountEvents(ctx, store.Filter{Entity: "app", Sensor: "a"})
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = s.CountEvents(ctx, store.Filter{Entity: "app", Sensor: "counts"})
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	latest, err := s.LatestValues(ctx, "app")
	require.NoError(t, err)
	byName := map[string]ir.Value{}
	for _, r := range latest {
		byName[r.Sensor.Name] = r.Value
	}
	assert.Equal(t, ir.Int(3), byName["a"])
	assert.Equal(t, ir.Map{"a": ir.Int(3)}, byName["counts"])

	entities, err := s.Entities(ctx)
	require.NoError(t, err)
	require.Len(t, entities, 1)
	assert.Equal(t, "app", entities[0].Name)

	assert.Zero(t, testutil.ToFloat64(m.JournalErrors))
}

func ExampleBuild() {
	topo, err := compiler.CompileString(countsTopology)
	if err != nil {
		panic(err)
	}
	w, err := Build(context.Background(), topo, WithLogger(discardLogger()))
	if err != nil {
		panic(err)
	}
	defer w.Close()

	_ = w.Set("app", "a", ir.Int(1))
	_ = w.Set("app", "b", ir.Int(2))
	_ = w.WaitIdle(context.Background())

	v, _, _ := w.Get("app", "counts")
	fmt.Println(ir.Format(v))
	// Output: {"a":1,"b":2}
}
