package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/attrflow/internal/ir"
	"github.com/roach88/attrflow/internal/store"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database string
	Entity   string
	Sensor   string // optional - filter to one sensor
	Limit    int
}

// TraceEntry is one journaled sensor event.
type TraceEntry struct {
	JournalSeq int64  `json:"journal_seq"`
	Sensor     string `json:"sensor"`
	Type       string `json:"type"`
	Seq        int64  `json:"seq"`
	Value      any    `json:"value"`
}

// TraceResult holds the complete trace output.
type TraceResult struct {
	Entity   string         `json:"entity"`
	EntityID string         `json:"entity_id,omitempty"`
	Parent   string         `json:"parent,omitempty"`
	Timeline []TraceEntry   `json:"timeline"`
	Latest   map[string]any `json:"latest"`
	Stats    TraceStats     `json:"stats"`
}

// TraceStats holds summary statistics for the trace.
type TraceStats struct {
	TotalEvents int `json:"total_events"`
	Sensors     int `json:"sensors"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Show the journaled history of an entity",
		Long: `Show every journaled sensor event of an entity, oldest first, and the
latest value of each of its sensors.

The journal is written by run --db.

Examples:
  attrflow trace --db ./journal.db --entity app
  attrflow trace --db ./journal.db --entity app --sensor counts
  attrflow trace --db ./journal.db --entity app --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite journal (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Entity, "entity", "", "entity name or ID (required)")
	_ = cmd.MarkFlagRequired("entity")
	cmd.Flags().StringVar(&opts.Sensor, "sensor", "", "filter to one sensor")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "maximum number of timeline events (0 = all)")

	return cmd
}

func runTrace(opts *TraceOptions, cmd *cobra.Command) error {
	ctx := context.Background()
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	// Open creates missing databases; a trace of nothing is a usage error.
	if _, err := os.Stat(opts.Database); err != nil {
		return WrapExitError(ExitCommandError, "database not found", err)
	}

	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	events, err := st.ReadEvents(ctx, store.Filter{Entity: opts.Entity, Sensor: opts.Sensor, Limit: opts.Limit})
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read journal", err)
	}
	latest, err := st.LatestValues(ctx, opts.Entity)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read latest values", err)
	}
	entities, err := st.Entities(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read entities", err)
	}

	result := TraceResult{
		Entity:   opts.Entity,
		Timeline: make([]TraceEntry, 0, len(events)),
		Latest:   make(map[string]any),
	}
	for _, e := range entities {
		if e.Name == opts.Entity || e.ID == opts.Entity {
			result.Entity = e.Name
			result.EntityID = e.ID
			result.Parent = entityName(entities, e.ParentID)
			break
		}
	}

	for _, ev := range events {
		result.Timeline = append(result.Timeline, TraceEntry{
			JournalSeq: ev.JournalSeq,
			Sensor:     ev.Sensor.Name,
			Type:       string(ev.Sensor.Type),
			Seq:        ev.Seq,
			Value:      ir.ToAny(ev.Value),
		})
	}
	for _, ev := range latest {
		if opts.Sensor != "" && ev.Sensor.Name != opts.Sensor {
			continue
		}
		result.Latest[ev.Sensor.Name] = ir.ToAny(ev.Value)
	}
	result.Stats = TraceStats{TotalEvents: len(result.Timeline), Sensors: len(result.Latest)}

	if formatter.JSON() {
		return formatter.Success(result)
	}

	if len(result.Timeline) == 0 {
		fmt.Fprintf(formatter.Writer, "No events found for entity: %s\n", opts.Entity)
		return nil
	}
	return outputTraceText(formatter, result, events, latest)
}

func entityName(entities []store.EntityRecord, id string) string {
	for _, e := range entities {
		if e.ID == id {
			return e.Name
		}
	}
	return id
}

// outputTraceText prints the timeline and then the latest values. latest
// is already ordered by sensor name.
func outputTraceText(formatter *OutputFormatter, result TraceResult, events, latest []store.EventRecord) error {
	w := formatter.Writer

	fmt.Fprintf(w, "Trace for Entity: %s\n", result.Entity)
	if formatter.Verbose && result.EntityID != "" {
		fmt.Fprintf(w, "ID: %s\n", result.EntityID)
	}
	if result.Parent != "" {
		fmt.Fprintf(w, "Parent: %s\n", result.Parent)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Timeline ===")
	for _, ev := range events {
		fmt.Fprintf(w, "  [%d] %s #%d = %s\n", ev.JournalSeq, ev.Sensor.Name, ev.Seq, ir.Format(ev.Value))
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Latest ===")
	for _, ev := range latest {
		if _, ok := result.Latest[ev.Sensor.Name]; !ok {
			continue
		}
		fmt.Fprintf(w, "  %s (%s) = %s\n", ev.Sensor.Name, ev.Sensor.Type, ir.Format(ev.Value))
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Stats ===")
	fmt.Fprintf(w, "  Total Events: %d\n", result.Stats.TotalEvents)
	fmt.Fprintf(w, "  Sensors:      %d\n", result.Stats.Sensors)
	return nil
}
