// Package metrics provides Prometheus metrics for the dispatch pipeline.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Default histogram buckets. Renders are slower than plain requests.
var (
	requestBuckets = []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5}
	renderBuckets  = []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30}
)

// Metrics holds all Prometheus collectors for the server.
type Metrics struct {
	Registry *prometheus.Registry

	DispatchTotal    *prometheus.CounterVec
	DispatchDuration *prometheus.HistogramVec

	RendersTotal   *prometheus.CounterVec
	RenderDuration prometheus.Histogram

	UpstreamResponses *prometheus.CounterVec
	UpstreamDuration  *prometheus.HistogramVec

	RefreshRequests *prometheus.CounterVec
}

// New creates a Metrics instance with its own registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{
		Registry: reg,

		DispatchTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "previewd_dispatch_total",
			Help: "Requests answered, by the handler that claimed them.",
		}, []string{"handler", "status_code"}),

		DispatchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "previewd_dispatch_duration_seconds",
			Help:    "Time spent answering a request, by claiming handler.",
			Buckets: requestBuckets,
		}, []string{"handler"}),

		RendersTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "previewd_renders_total",
			Help: "On-demand renders by outcome.",
		}, []string{"outcome"}),

		RenderDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "previewd_render_duration_seconds",
			Help:    "On-demand render latency in seconds.",
			Buckets: renderBuckets,
		}),

		UpstreamResponses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "previewd_proxy_upstream_responses_total",
			Help: "Proxied upstream responses by method and status code.",
		}, []string{"method", "status_code"}),

		UpstreamDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "previewd_proxy_upstream_duration_seconds",
			Help:    "Time to first byte from proxy upstreams.",
			Buckets: requestBuckets,
		}, []string{"method"}),

		RefreshRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "previewd_refresh_requests_total",
			Help: "Refresh webhook calls by whether they triggered a refresh.",
		}, []string{"triggered"}),
	}

	reg.MustRegister(
		m.DispatchTotal,
		m.DispatchDuration,
		m.RendersTotal,
		m.RenderDuration,
		m.UpstreamResponses,
		m.UpstreamDuration,
		m.RefreshRequests,
	)

	return m
}

// ObserveDispatch records a request claimed by handler. A nil receiver is a
// no-op, as are all Observe methods.
func (m *Metrics) ObserveDispatch(handler string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.DispatchTotal.WithLabelValues(handler, strconv.Itoa(status)).Inc()
	m.DispatchDuration.WithLabelValues(handler).Observe(duration.Seconds())
}

// ObserveRender records an on-demand render.
func (m *Metrics) ObserveRender(_ string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	m.RendersTotal.WithLabelValues(outcome).Inc()
	m.RenderDuration.Observe(duration.Seconds())
}

// ObserveUpstream records a proxied call. status 0 means the transport failed.
func (m *Metrics) ObserveUpstream(method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	code := "error"
	if status > 0 {
		code = strconv.Itoa(status)
	}
	method = NormalizeMethod(method)
	m.UpstreamResponses.WithLabelValues(method, code).Inc()
	m.UpstreamDuration.WithLabelValues(method).Observe(duration.Seconds())
}

// ObserveRefresh records a refresh webhook call.
func (m *Metrics) ObserveRefresh(triggered bool) {
	if m == nil {
		return
	}
	m.RefreshRequests.WithLabelValues(strconv.FormatBool(triggered)).Inc()
}

// knownMethods lists the allowed HTTP method label values (bounded cardinality).
var knownMethods = map[string]bool{
	"GET": true, "POST": true, "PUT": true, "DELETE": true,
	"PATCH": true, "HEAD": true, "OPTIONS": true,
}

// NormalizeMethod maps non-standard methods to "other".
func NormalizeMethod(method string) string {
	if knownMethods[method] {
		return method
	}
	return "other"
}
