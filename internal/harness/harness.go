package harness

import (
	"cmp"
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/attrflow/internal/compiler"
	"github.com/roach88/attrflow/internal/ir"
	"github.com/roach88/attrflow/internal/metrics"
	"github.com/roach88/attrflow/internal/store"
	"github.com/roach88/attrflow/internal/testutil"
	"github.com/roach88/attrflow/internal/world"
)

// DefaultStepTimeout bounds how long a step may take to settle.
const DefaultStepTimeout = 10 * time.Second

// Harness is the scenario execution engine for one run.
type Harness struct {
	world   *world.World
	store   *store.Store
	metrics *metrics.Metrics
	logger  *slog.Logger

	// lastSeq is the journal position already copied into the trace.
	lastSeq int64
}

// Option configures Run.
type Option func(*runOptions)

type runOptions struct {
	logger  *slog.Logger
	timeout time.Duration
}

// WithLogger routes world logs to l. By default they are discarded.
func WithLogger(l *slog.Logger) Option {
	return func(o *runOptions) { o.logger = l }
}

// WithStepTimeout overrides DefaultStepTimeout.
func WithStepTimeout(d time.Duration) Option {
	return func(o *runOptions) { o.timeout = d }
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh world over a fresh in-memory database.
// Subscription IDs come from a sequential generator, so reruns are
// identical.
//
// Execution flow:
// 1. Load and compile the topology
// 2. Build the world with the journal attached
// 3. Execute steps, collecting the trace after each
// 4. Evaluate assertions
//
// An error is returned only when the scenario could not run at all;
// step and assertion failures are reported in the Result.
func Run(ctx context.Context, scenario *Scenario, opts ...Option) (*Result, error) {
	o := runOptions{
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		timeout: DefaultStepTimeout,
	}
	for _, opt := range opts {
		opt(&o)
	}

	loaded, err := compiler.LoadDir(scenario.Topology)
	if err != nil {
		return nil, fmt.Errorf("load topology: %w", err)
	}

	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	m := metrics.New(nil)
	w, err := world.Build(ctx, loaded.Topology,
		world.WithLogger(o.logger),
		world.WithMetrics(m),
		world.WithJournal(st),
		world.WithIDGenerator(testutil.NewSequentialGenerator("sub")),
	)
	if err != nil {
		return nil, fmt.Errorf("build world: %w", err)
	}
	defer w.Close()

	h := &Harness{world: w, store: st, metrics: m, logger: o.logger}
	result := NewResult()

	if err := h.settle(ctx, o.timeout); err != nil {
		return nil, fmt.Errorf("build world: %w", err)
	}
	if err := h.collect(ctx, 0, result); err != nil {
		return nil, err
	}

	for i, step := range scenario.Steps {
		if err := h.execute(ctx, step); err != nil {
			result.AddError(fmt.Sprintf("steps[%d] (%s): %v", i, step.Kind(), err))
		}
		if err := h.settle(ctx, o.timeout); err != nil {
			return nil, fmt.Errorf("steps[%d]: %w", i, err)
		}
		if err := h.collect(ctx, i+1, result); err != nil {
			return nil, err
		}
	}

	result.Final = w.Snapshot()

	for _, msg := range EvaluateAssertions(ctx, h, scenario.Assertions) {
		result.AddError(msg)
	}

	return result, nil
}

func (h *Harness) settle(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := h.world.WaitIdle(ctx); err != nil {
		return fmt.Errorf("propagation did not settle: %w", err)
	}
	return nil
}

// execute runs one step. A returned error is a step failure, including an
// unexpected success of a step marked expect_error.
func (h *Harness) execute(ctx context.Context, step Step) error {
	switch step.Kind() {
	case StepSet:
		return h.set(*step.Set)

	case StepParallel:
		g, _ := errgroup.WithContext(ctx)
		for _, set := range step.Parallel {
			g.Go(func() error { return h.set(set) })
		}
		return g.Wait()

	case StepDestroyEnricher:
		return h.world.DestroyEnricher(step.DestroyEnricher)

	case StepReconfigure:
		r := step.Reconfigure
		return expectOutcome(r.ExpectError, h.world.Reconfigure(r.Enricher, r.Option, r.Value))
	}
	return fmt.Errorf("invalid step")
}

func (h *Harness) set(s SetStep) error {
	v, err := ir.FromAny(s.Value)
	if err != nil {
		return fmt.Errorf("%s.%s: %w", s.Entity, s.Sensor, err)
	}
	return expectOutcome(s.ExpectError, h.world.Set(s.Entity, s.Sensor, v))
}

func expectOutcome(expectError bool, err error) error {
	switch {
	case expectError && err == nil:
		return fmt.Errorf("expected an error, got none")
	case expectError:
		return nil
	default:
		return err
	}
}

// collect appends journal events newer than lastSeq to the trace, ordered
// by entity, sensor and seq.
func (h *Harness) collect(ctx context.Context, step int, result *Result) error {
	records, err := h.store.ReadEvents(ctx, store.Filter{After: h.lastSeq})
	if err != nil {
		return fmt.Errorf("read journal: %w", err)
	}

	events := make([]TraceEvent, 0, len(records))
	for _, r := range records {
		h.lastSeq = max(h.lastSeq, r.JournalSeq)
		events = append(events, TraceEvent{
			Step:   step,
			Entity: r.EntityName,
			Sensor: r.Sensor.Name,
			Seq:    r.Seq,
			Value:  r.Value,
		})
	}

	slices.SortFunc(events, func(a, b TraceEvent) int {
		return cmp.Or(
			cmp.Compare(a.Entity, b.Entity),
			cmp.Compare(a.Sensor, b.Sensor),
			cmp.Compare(a.Seq, b.Seq),
		)
	})
	result.Trace = append(result.Trace, events...)
	return nil
}
