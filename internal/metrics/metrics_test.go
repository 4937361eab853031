package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Registers(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.SensorWrites.WithLabelValues("e1", "cpu").Inc()
	m.EnricherEvents.WithLabelValues("transformer", OutcomeSuppressed).Add(2)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.SensorWrites.WithLabelValues("e1", "cpu")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.EnricherEvents.WithLabelValues("transformer", OutcomeSuppressed)))

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestNew_NilRegistry(t *testing.T) {
	assert.NotPanics(t, func() {
		New(nil)
		New(nil)
	}, "unregistered metrics can be created repeatedly")
}
