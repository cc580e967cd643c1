package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, g.Write(&m))
	return m.GetGauge().GetValue()
}

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}

func TestObservePressure(t *testing.T) {
	ObservePressure(true, false)
	assert.Equal(t, 1.0, gaugeValue(t, DiskPressure))
	assert.Equal(t, 0.0, gaugeValue(t, MemPressure))
	ObservePressure(false, true)
	assert.Equal(t, 0.0, gaugeValue(t, DiskPressure))
	assert.Equal(t, 1.0, gaugeValue(t, MemPressure))
}

func TestCollectorsGathered(t *testing.T) {
	before := counterValue(t, MessagesRouted.WithLabelValues(RouteOffline))
	MessagesRouted.WithLabelValues(RouteOffline).Inc()
	assert.Equal(t, before+1, counterValue(t, MessagesRouted.WithLabelValues(RouteOffline)))

	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)
	names := map[string]bool{}
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["courier_messages_routed_total"])
	assert.True(t, names["courier_heap_alloc_bytes"])
}
