package enricher

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/attrflow/internal/config"
	"github.com/roach88/attrflow/internal/ir"
)

func sum(in ir.Value) ir.Value {
	var total ir.Int
	for _, v := range in.(ir.Map) {
		n, ok := v.(ir.Int)
		if !ok {
			return nil
		}
		total += n
	}
	return total
}

func combinerConfig(t *testing.T, sources []ir.Sensor, c Computation) *config.Bag {
	return bag(t, func(b *config.Bag) {
		must(t, config.Set(b, SourceSensors, sources))
		must(t, config.Set(b, TargetSensor, out))
		must(t, config.Set(b, Computing, c))
	})
}

func TestCombiner_WaitsForAllSources(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.app.AddEnricher(NewCombiner(combinerConfig(t, []ir.Sensor{srcA, srcB}, Func(sum)))))

	f.set(f.app, srcA, ir.Int(1))
	f.idle()
	_, ok := f.get(f.app, out)
	assert.False(t, ok, "b has no value yet")

	f.set(f.app, srcB, ir.Int(2))
	f.idle()
	v, _ := f.get(f.app, out)
	assert.Equal(t, ir.Int(3), v)

	f.set(f.app, srcA, ir.Int(10))
	f.idle()
	v, _ = f.get(f.app, out)
	assert.Equal(t, ir.Int(12), v)
}

func TestCombiner_InitialValues(t *testing.T) {
	f := newFixture(t)
	f.set(f.app, srcA, ir.Int(4))
	f.set(f.app, srcB, ir.Int(5))

	var seen []ir.Value
	c := Func(func(in ir.Value) ir.Value {
		seen = append(seen, in)
		return sum(in)
	})
	require.NoError(t, f.app.AddEnricher(NewCombiner(combinerConfig(t, []ir.Sensor{srcA, srcB}, c))))
	f.idle()

	v, _ := f.get(f.app, out)
	assert.Equal(t, ir.Int(9), v)
	require.Len(t, seen, 1, "computes once both initial values are in")
	assert.Equal(t, ir.Map{"a": ir.Int(4), "b": ir.Int(5)}, seen[0])
}

func TestCombiner_Configuration(t *testing.T) {
	tests := []struct {
		name    string
		sources []ir.Sensor
	}{
		{"empty", []ir.Sensor{}},
		{"duplicate", []ir.Sensor{srcA, srcA}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			err := f.app.AddEnricher(NewCombiner(combinerConfig(t, tt.sources, Func(sum))))
			assert.True(t, config.IsConfigurationError(err))
		})
	}
}
