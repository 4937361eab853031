package compute

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/attrflow/internal/enricher"
	"github.com/roach88/attrflow/internal/ir"
)

func TestCompile_Errors(t *testing.T) {
	tests := []struct {
		name string
		expr string
	}{
		{"empty", ""},
		{"syntax", "in +"},
		{"unknown identifier", "nope * 2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Compile(tt.expr)
			assert.Error(t, err)
		})
	}
}

func TestEval(t *testing.T) {
	tests := []struct {
		name string
		expr string
		in   ir.Value
		want enricher.Result
	}{
		{"identity", "in", ir.Int(3), enricher.Value(ir.Int(3))},
		{"double", "in * 2", ir.Int(21), enricher.Value(ir.Int(42))},
		{"string", `"host-\(in)"`, ir.Int(7), enricher.Value(ir.String("host-7"))},
		{"comparison", "in > 80", ir.Int(95), enricher.Value(ir.Bool(true))},
		{"null passes through", "in", ir.Null{}, enricher.Value(ir.Null{})},
		{"nil input is null", "in == null", nil, enricher.Value(ir.Bool(true))},
		{"combiner input", "in.a + in.b", ir.Map{"a": ir.Int(1), "b": ir.Int(2)}, enricher.Value(ir.Int(3))},
		{"list", "[in, in]", ir.String("x"), enricher.Value(ir.List{ir.String("x"), ir.String("x")})},
		{"struct", "{up: in}", ir.Bool(true), enricher.Value(ir.Map{"up": ir.Bool(true)})},
		{"remove", "#remove", ir.Int(1), enricher.Remove()},
		{"unchanged", "#unchanged", ir.Int(1), enricher.Unchanged()},
		{"conditional remove", "[if in == null {#remove}, in][0]", ir.Null{}, enricher.Remove()},
		{"conditional keep", "[if in == null {#remove}, in][0]", ir.Int(5), enricher.Value(ir.Int(5))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := Compile(tt.expr)
			require.NoError(t, err)

			got, err := e.Eval(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want.Kind(), got.Kind())
			assert.True(t, ir.Equal(tt.want.Value(), got.Value()), "got %s", got)
		})
	}
}

func TestEval_Failures(t *testing.T) {
	tests := []struct {
		name string
		expr string
		in   ir.Value
	}{
		{"type conflict", "in * 2", ir.String("x")},
		{"missing field", "in.a", ir.Map{"b": ir.Int(1)}},
		{"float result", "in / 2", ir.Int(3)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := MustCompile(tt.expr)
			_, err := e.Eval(tt.in)
			assert.Error(t, err)
		})
	}
}

func TestExpression_ConcurrentEval(t *testing.T) {
	c := MustCompile("in + 1").Computation()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := c(ir.Int(i))
			assert.NoError(t, err)
			assert.Equal(t, ir.Int(i+1), res.Value())
		}()
	}
	wg.Wait()
}

func TestMustCompile_Panics(t *testing.T) {
	assert.Panics(t, func() { MustCompile("in +") })
	assert.Equal(t, "in", MustCompile("in").String())
}
