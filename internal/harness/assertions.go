package harness

import (
	"context"
	"fmt"
	"strings"

	"github.com/roach88/attrflow/internal/ir"
	"github.com/roach88/attrflow/internal/store"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string // Assertion type for categorization
	Target   string // "entity.sensor" or the trace filter
	Expected string // Human-readable expected outcome
	Actual   string // Human-readable actual outcome
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s %s\n", e.Type, e.Target)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s", e.Actual)
	return buf.String()
}

// EvaluateAssertions checks every assertion and returns the failure
// messages. Nil means all passed.
func EvaluateAssertions(ctx context.Context, h *Harness, assertions []Assertion) []string {
	var failures []string
	for i, a := range assertions {
		if err := evaluate(ctx, h, a); err != nil {
			failures = append(failures, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return failures
}

func evaluate(ctx context.Context, h *Harness, a Assertion) error {
	switch a.Type {
	case AssertFinalValue:
		return assertFinalValue(h, a)
	case AssertAbsent:
		return assertAbsent(h, a)
	case AssertWriteCount:
		return assertWriteCount(h, a)
	case AssertTraceCount:
		return assertTraceCount(ctx, h.store, a)
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}

func target(a Assertion) string {
	return a.Entity + "." + a.Sensor
}

// assertFinalValue checks that the sensor is present and deeply equal to
// the expected value.
func assertFinalValue(h *Harness, a Assertion) error {
	want, err := ir.FromAny(a.Value)
	if err != nil {
		return fmt.Errorf("final_value %s: expected value: %w", target(a), err)
	}

	got, present, err := h.world.Get(a.Entity, a.Sensor)
	if err != nil {
		return err
	}
	if !present {
		return &AssertionError{
			Type:     AssertFinalValue,
			Target:   target(a),
			Expected: ir.Format(want),
			Actual:   "absent",
		}
	}
	if !ir.Equal(got, want) {
		return &AssertionError{
			Type:     AssertFinalValue,
			Target:   target(a),
			Expected: ir.Format(want),
			Actual:   ir.Format(got),
		}
	}
	return nil
}

// assertAbsent checks that the sensor holds no value.
func assertAbsent(h *Harness, a Assertion) error {
	got, present, err := h.world.Get(a.Entity, a.Sensor)
	if err != nil {
		return err
	}
	if present {
		return &AssertionError{
			Type:     AssertAbsent,
			Target:   target(a),
			Expected: "absent",
			Actual:   ir.Format(got),
		}
	}
	return nil
}

// assertWriteCount checks the number of committed writes to the sensor.
func assertWriteCount(h *Harness, a Assertion) error {
	n, err := h.world.WriteCount(a.Entity, a.Sensor)
	if err != nil {
		return err
	}
	if n != int64(a.Count) {
		return &AssertionError{
			Type:     AssertWriteCount,
			Target:   target(a),
			Expected: fmt.Sprintf("%d writes", a.Count),
			Actual:   fmt.Sprintf("%d writes", n),
		}
	}
	return nil
}

// assertTraceCount checks the number of journaled events, filtered by
// entity and sensor when given.
func assertTraceCount(ctx context.Context, st *store.Store, a Assertion) error {
	n, err := st.CountEvents(ctx, store.Filter{Entity: a.Entity, Sensor: a.Sensor})
	if err != nil {
		return err
	}
	if n != a.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Target:   describeFilter(a),
			Expected: fmt.Sprintf("%d events", a.Count),
			Actual:   fmt.Sprintf("%d events", n),
		}
	}
	return nil
}

func describeFilter(a Assertion) string {
	var parts []string
	if a.Entity != "" {
		parts = append(parts, "entity="+a.Entity)
	}
	if a.Sensor != "" {
		parts = append(parts, "sensor="+a.Sensor)
	}
	if len(parts) == 0 {
		return "(all events)"
	}
	return strings.Join(parts, " ")
}
