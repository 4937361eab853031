package compute

import (
	"fmt"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"

	"github.com/roach88/attrflow/internal/enricher"
	"github.com/roach88/attrflow/internal/ir"
)

const (
	tagField   = "$attrflow"
	tagRemove  = "remove"
	tagNoop    = "unchanged"
	inputPath  = "in"
	outputPath = "out"
)

const prelude = `
in: _
#remove: {"$attrflow": "remove"}
#unchanged: {"$attrflow": "unchanged"}
`

var (
	inPath  = cue.ParsePath(inputPath)
	outPath = cue.ParsePath(outputPath)
)

// Expression is a compiled CUE expression.
//
// Thread-safety: Eval is safe for concurrent use. A cue.Context is not, so
// evaluations of one Expression are serialized.
type Expression struct {
	src string

	mu      sync.Mutex
	ctx     *cue.Context
	program cue.Value
}

// Compile parses expr. Syntax errors and references to unknown
// identifiers are reported here rather than on first use.
func Compile(expr string) (*Expression, error) {
	if expr == "" {
		return nil, fmt.Errorf("compile: empty expression")
	}

	ctx := cuecontext.New()
	program := ctx.CompileString(prelude+outputPath+": "+expr+"\n", cue.Filename("computing"))
	if err := program.Err(); err != nil {
		return nil, fmt.Errorf("compile %q: %w", expr, firstError(err))
	}

	return &Expression{src: expr, ctx: ctx, program: program}, nil
}

// MustCompile is Compile for expressions known to be valid. Panics on error.
func MustCompile(expr string) *Expression {
	e, err := Compile(expr)
	if err != nil {
		panic(err)
	}
	return e
}

// String returns the source expression.
func (e *Expression) String() string { return e.src }

// Eval binds in and returns the tagged result.
func (e *Expression) Eval(in ir.Value) (enricher.Result, error) {
	if in == nil {
		in = ir.Null{}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	filled := e.program.FillPath(inPath, e.ctx.Encode(ir.ToAny(in)))
	out := filled.LookupPath(outPath)
	if err := out.Validate(cue.Concrete(true), cue.Final()); err != nil {
		return enricher.Result{}, fmt.Errorf("eval %q: %w", e.src, firstError(err))
	}

	var raw any
	if err := out.Decode(&raw); err != nil {
		return enricher.Result{}, fmt.Errorf("eval %q: decode: %w", e.src, err)
	}

	if tag, ok := sentinel(raw); ok {
		switch tag {
		case tagRemove:
			return enricher.Remove(), nil
		case tagNoop:
			return enricher.Unchanged(), nil
		}
	}

	v, err := ir.FromAny(raw)
	if err != nil {
		return enricher.Result{}, fmt.Errorf("eval %q: %w", e.src, err)
	}
	return enricher.Value(v), nil
}

// Computation adapts the expression for use as an enricher's computing
// function.
func (e *Expression) Computation() enricher.Computation {
	return e.Eval
}

// sentinel reports whether raw is one of the prelude's tagged structs.
func sentinel(raw any) (string, bool) {
	m, ok := raw.(map[string]any)
	if !ok || len(m) != 1 {
		return "", false
	}
	tag, ok := m[tagField].(string)
	return tag, ok
}

// firstError keeps the first of possibly many CUE errors, with position.
func firstError(err error) error {
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return err
	}
	first := errs[0]
	if pos := cueerrors.Positions(first); len(pos) > 0 && pos[0].IsValid() {
		return fmt.Errorf("%d:%d: %w", pos[0].Line(), pos[0].Column(), first)
	}
	return first
}
