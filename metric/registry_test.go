package metric

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterAndUnregister(t *testing.T) {
	registry := NewMetricsRegistry()

	counter := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "test_messages_total",
		Help: "test counter",
	})
	require.NoError(t, registry.RegisterCounter("stream", "test_messages_total", counter))

	assert.True(t, registry.Unregister("stream", "test_messages_total"))
	assert.False(t, registry.Unregister("stream", "test_messages_total"))
}

func TestDuplicateRegistrationRejected(t *testing.T) {
	registry := NewMetricsRegistry()

	gauge := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "test_connections_active",
		Help: "test gauge",
	})
	require.NoError(t, registry.RegisterGauge("stream", "test_connections_active", gauge))

	err := registry.RegisterGauge("stream", "test_connections_active", gauge)
	require.Error(t, err)
}

func TestSameNameDifferentComponent(t *testing.T) {
	registry := NewMetricsRegistry()

	a := prometheus.NewCounter(prometheus.CounterOpts{Name: "a_errors_total", Help: "a"})
	b := prometheus.NewCounter(prometheus.CounterOpts{Name: "b_errors_total", Help: "b"})

	require.NoError(t, registry.RegisterCounter("web", "errors_total", a))
	require.NoError(t, registry.RegisterCounter("stream", "errors_total", b))
}
