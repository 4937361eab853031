package harness

import (
	"github.com/roach88/attrflow/internal/ir"
)

// TraceEvent is one journaled sensor event, tagged with the step that
// caused it. Step 0 covers building the world (init values and the first
// computation of every enricher).
type TraceEvent struct {
	Step   int      `json:"step"`
	Entity string   `json:"entity"`
	Sensor string   `json:"sensor"`
	Seq    int64    `json:"seq"`
	Value  ir.Value `json:"value"`
}

// toValue renders the event for canonical serialization.
func (e TraceEvent) toValue() ir.Map {
	v := e.Value
	if v == nil {
		v = ir.Null{}
	}
	return ir.Map{
		"step":   ir.Int(e.Step),
		"entity": ir.String(e.Entity),
		"sensor": ir.String(e.Sensor),
		"seq":    ir.Int(e.Seq),
		"value":  v,
	}
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass indicates overall test success.
	// True if every step behaved as expected and all assertions hold.
	Pass bool `json:"pass"`

	// Trace contains all journaled events, step by step.
	Trace []TraceEvent `json:"trace"`

	// Errors contains step and assertion failures.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Final holds every entity's sensor values after the last step.
	Final map[string]ir.Map `json:"final,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
		Final:  make(map[string]ir.Map),
	}
}

// AddError adds a failure and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
