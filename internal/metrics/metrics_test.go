package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var metric dto.Metric
	require.NoError(t, c.Write(&metric))
	return metric.GetCounter().GetValue()
}

func TestNew_GathersMetrics(t *testing.T) {
	m := New()

	m.ObserveDispatch("render", 200, 10*time.Millisecond)
	m.ObserveDispatch("render", 500, 10*time.Millisecond)
	m.ObserveDispatch("proxy", 200, time.Millisecond)

	families, err := m.Registry.Gather()
	require.NoError(t, err)

	names := make(map[string]bool, len(families))
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["previewd_dispatch_total"])
	assert.True(t, names["previewd_dispatch_duration_seconds"])

	assert.Equal(t, 1.0, counterValue(t, m.DispatchTotal.WithLabelValues("render", "500")))
	assert.Equal(t, 1.0, counterValue(t, m.DispatchTotal.WithLabelValues("proxy", "200")))
}

func TestObserveRender(t *testing.T) {
	m := New()

	m.ObserveRender("/about", time.Second, nil)
	m.ObserveRender("/about", time.Second, errors.New("boom"))
	m.ObserveRender("/", time.Second, nil)

	assert.Equal(t, 2.0, counterValue(t, m.RendersTotal.WithLabelValues("success")))
	assert.Equal(t, 1.0, counterValue(t, m.RendersTotal.WithLabelValues("failure")))
}

func TestObserveUpstreamAndRefresh(t *testing.T) {
	m := New()

	m.ObserveUpstream("GET", 200, time.Millisecond)
	m.ObserveUpstream("BREW", 0, time.Millisecond)
	m.ObserveRefresh(true)
	m.ObserveRefresh(false)
	m.ObserveRefresh(false)

	assert.Equal(t, 1.0, counterValue(t, m.UpstreamResponses.WithLabelValues("GET", "200")))
	assert.Equal(t, 1.0, counterValue(t, m.UpstreamResponses.WithLabelValues("other", "error")))
	assert.Equal(t, 2.0, counterValue(t, m.RefreshRequests.WithLabelValues("false")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveDispatch("static", 200, 0)
		m.ObserveRender("/", 0, nil)
		m.ObserveUpstream("GET", 200, 0)
		m.ObserveRefresh(true)
	})
}

func TestNormalizeMethod(t *testing.T) {
	assert.Equal(t, "GET", NormalizeMethod("GET"))
	assert.Equal(t, "other", NormalizeMethod("get"))
	assert.Equal(t, "other", NormalizeMethod(""))
}
