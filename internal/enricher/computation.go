package enricher

import (
	"fmt"

	"github.com/roach88/attrflow/internal/ir"
)

// ResultKind tags a Result.
type ResultKind uint8

const (
	ResultValue ResultKind = iota
	ResultRemove
	ResultUnchanged
)

// Result is the outcome of a computation: a value to write, a removal,
// or no change at all.
type Result struct {
	kind  ResultKind
	value ir.Value
}

// Value wraps v as a result to write. A nil v is ir.Null.
func Value(v ir.Value) Result {
	if v == nil {
		v = ir.Null{}
	}
	return Result{kind: ResultValue, value: v}
}

// Remove asks the enricher to clear its target.
func Remove() Result {
	return Result{kind: ResultRemove}
}

// Unchanged asks the enricher to leave its target alone.
func Unchanged() Result {
	return Result{kind: ResultUnchanged}
}

// Kind returns the result tag.
func (r Result) Kind() ResultKind { return r.kind }

// Value returns the wrapped value; Null unless Kind is ResultValue.
func (r Result) Value() ir.Value {
	if r.value == nil {
		return ir.Null{}
	}
	return r.value
}

// IsNull reports whether the result is a Value holding null.
func (r Result) IsNull() bool {
	return r.kind == ResultValue && ir.IsNull(r.value)
}

// String renders the result for logs and traces.
func (r Result) String() string {
	switch r.kind {
	case ResultRemove:
		return "<remove>"
	case ResultUnchanged:
		return "<unchanged>"
	}
	return ir.Format(r.Value())
}

// Computation derives a result from a source value. Implementations should
// be short and must not block.
type Computation func(in ir.Value) (Result, error)

// Identity passes the source value through.
func Identity() Computation {
	return func(in ir.Value) (Result, error) {
		return Value(in), nil
	}
}

// Func adapts a plain value function. A nil return is a null result.
func Func(f func(in ir.Value) ir.Value) Computation {
	return func(in ir.Value) (Result, error) {
		return Value(f(in)), nil
	}
}

// Constant always yields r.
func Constant(r Result) Computation {
	return func(ir.Value) (Result, error) {
		return r, nil
	}
}

// run invokes c, turning a panic into an error.
func (c Computation) run(in ir.Value) (res Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return c(in)
}
