package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/roach88/attrflow/internal/bus"
	"github.com/roach88/attrflow/internal/compiler"
	"github.com/roach88/attrflow/internal/ir"
	"github.com/roach88/attrflow/internal/metrics"
	"github.com/roach88/attrflow/internal/store"
	"github.com/roach88/attrflow/internal/world"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Input    string
	Database string
	Timeout  time.Duration
	Metrics  bool

	// IDGenerator overrides the subscription ID generator (for testing).
	// If nil, defaults to UUIDv7Generator.
	IDGenerator bus.IDGenerator
}

// InputFile is the document read by run --input.
type InputFile struct {
	Sets []InputSet `yaml:"sets"`
}

// InputSet is one external sensor write.
type InputSet struct {
	Entity string `yaml:"entity"`
	Sensor string `yaml:"sensor"`
	Value  any    `yaml:"value"`
}

// RunResult is the outcome of run.
type RunResult struct {
	Applied int                       `json:"applied"`
	Final   map[string]map[string]any `json:"final"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <topology-dir>",
		Short: "Apply sensor writes to a live topology",
		Long: `Build the topology, apply the writes listed in the input file one at a
time, and print every entity's sensor values once propagation settles.

With --db every published sensor event is journaled to SQLite and can be
inspected later with the trace command.

Input file:
  sets:
    - {entity: app, sensor: a, value: 1}
    - {entity: app, sensor: b, value: 2}

Example:
  attrflow run ./topology --input sets.yaml
  attrflow run ./topology --input sets.yaml --db ./journal.db --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTopology(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Input, "input", "", "YAML file of sensor writes (required)")
	_ = cmd.MarkFlagRequired("input")
	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite journal (optional)")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", 10*time.Second, "how long one write may take to settle")
	cmd.Flags().BoolVar(&opts.Metrics, "metrics", false, "print Prometheus metrics to stderr when done")

	return cmd
}

func runTopology(opts *RunOptions, dir string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())
	logger := newLogger(opts.RootOptions)

	input, err := readInput(opts.Input)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read input", err)
	}

	loaded, err := compiler.LoadDir(dir)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load topology", err)
	}
	logger.Info("topology loaded", "dir", dir, "files", loaded.FileCount)

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	idGen := opts.IDGenerator
	if idGen == nil {
		idGen = bus.UUIDv7Generator{}
	}
	worldOpts := []world.Option{
		world.WithLogger(logger),
		world.WithMetrics(m),
		world.WithIDGenerator(idGen),
	}

	if opts.Database != "" {
		st, err := store.Open(opts.Database)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open database", err)
		}
		defer func() {
			if closeErr := st.Close(); closeErr != nil {
				logger.Error("error closing database", "error", closeErr)
			}
		}()
		worldOpts = append(worldOpts, world.WithJournal(st))
	}

	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	w, err := world.Build(ctx, loaded.Topology, worldOpts...)
	if err != nil {
		var invalid *world.InvalidTopologyError
		if errors.As(err, &invalid) {
			return outputValidationErrors(formatter, invalid.Errors)
		}
		return WrapExitError(ExitCommandError, "failed to build topology", err)
	}
	defer w.Close()

	if err := settle(ctx, w, opts.Timeout); err != nil {
		return WrapExitError(ExitFailure, "topology did not settle", err)
	}

	for i, set := range input.Sets {
		v, err := ir.FromAny(set.Value)
		if err != nil {
			return WrapExitError(ExitFailure, fmt.Sprintf("sets[%d]", i), err)
		}
		logger.Debug("set", "entity", set.Entity, "sensor", set.Sensor, "value", ir.Format(v))
		if err := w.Set(set.Entity, set.Sensor, v); err != nil {
			return WrapExitError(ExitFailure, fmt.Sprintf("sets[%d]", i), err)
		}
		if err := settle(ctx, w, opts.Timeout); err != nil {
			return WrapExitError(ExitFailure, fmt.Sprintf("sets[%d] did not settle", i), err)
		}
		formatter.VerboseLog("applied %s.%s = %s", set.Entity, set.Sensor, ir.Format(v))
	}

	if opts.Metrics {
		if err := writeMetrics(formatter.GetErrWriter(), reg); err != nil {
			return WrapExitError(ExitCommandError, "failed to write metrics", err)
		}
	}

	return outputRunResult(formatter, len(input.Sets), w.Snapshot())
}

func readInput(path string) (*InputFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var input InputFile
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&input); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	for i, set := range input.Sets {
		if set.Entity == "" || set.Sensor == "" {
			return nil, fmt.Errorf("sets[%d]: entity and sensor are required", i)
		}
	}
	return &input, nil
}

func settle(ctx context.Context, w *world.World, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return w.WaitIdle(ctx)
}

func writeMetrics(out io.Writer, reg *prometheus.Registry) error {
	families, err := reg.Gather()
	if err != nil {
		return err
	}
	enc := expfmt.NewEncoder(out, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			return err
		}
	}
	return nil
}

func outputRunResult(formatter *OutputFormatter, applied int, snapshot map[string]ir.Map) error {
	if formatter.JSON() {
		final := make(map[string]map[string]any, len(snapshot))
		for name, values := range snapshot {
			sensors := make(map[string]any, len(values))
			for sensor, v := range values {
				sensors[sensor] = ir.ToAny(v)
			}
			final[name] = sensors
		}
		return formatter.Success(RunResult{Applied: applied, Final: final})
	}

	w := formatter.Writer
	fmt.Fprintf(w, "Applied %d write(s)\n", applied)
	for _, name := range slices.Sorted(maps.Keys(snapshot)) {
		fmt.Fprintf(w, "%s\n", name)
		values := snapshot[name]
		for _, sensor := range values.SortedKeys() {
			fmt.Fprintf(w, "  %s = %s\n", sensor, ir.Format(values[sensor]))
		}
	}
	return nil
}
