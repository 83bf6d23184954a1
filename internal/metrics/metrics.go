// Package metrics provides Prometheus metrics for the render proxy.
package metrics

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Default histogram buckets for page render latency.
var defaultBuckets = []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10}

// Metrics holds all Prometheus metric collectors for the proxy.
type Metrics struct {
	Registry *prometheus.Registry

	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	RequestsInFlight prometheus.Gauge

	UpstreamDuration  *prometheus.HistogramVec
	UpstreamResponses *prometheus.CounterVec

	// MarkersMissing counts documents whose customization markers were
	// absent, by marker name. A steadily climbing series usually means
	// the Next.js document template lost the integration markup.
	MarkersMissing *prometheus.CounterVec

	TunnelSessionsActive *prometheus.GaugeVec
	TunnelSessionsTotal  *prometheus.CounterVec
}

// New creates a Metrics instance with a custom registry and all collectors registered.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{
		Registry: reg,

		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nextjs_proxy_http_requests_total",
			Help: "Total inbound HTTP requests.",
		}, []string{"method", "status_code", "path_prefix"}),

		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "nextjs_proxy_http_request_duration_seconds",
			Help:    "Inbound HTTP request latency in seconds.",
			Buckets: defaultBuckets,
		}, []string{"method", "status_code", "path_prefix"}),

		RequestsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "nextjs_proxy_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed.",
		}),

		UpstreamDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "nextjs_proxy_upstream_request_duration_seconds",
			Help:    "Next.js upstream call latency in seconds.",
			Buckets: defaultBuckets,
		}, []string{"method"}),

		UpstreamResponses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nextjs_proxy_upstream_responses_total",
			Help: "Total Next.js upstream responses by method and status code.",
		}, []string{"method", "status_code"}),

		MarkersMissing: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nextjs_proxy_document_markers_missing_total",
			Help: "Rendered documents with an absent customization marker, by marker.",
		}, []string{"marker"}),

		TunnelSessionsActive: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "nextjs_proxy_tunnel_sessions_active",
			Help: "Open development tunnel sessions by kind (http, websocket).",
		}, []string{"kind"}),

		TunnelSessionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nextjs_proxy_tunnel_sessions_total",
			Help: "Total development tunnel sessions by kind (http, websocket).",
		}, []string{"kind"}),
	}

	reg.MustRegister(
		m.RequestsTotal,
		m.RequestDuration,
		m.RequestsInFlight,
		m.UpstreamDuration,
		m.UpstreamResponses,
		m.MarkersMissing,
		m.TunnelSessionsActive,
		m.TunnelSessionsTotal,
	)

	return m
}

// knownMethods lists the allowed HTTP method label values (bounded cardinality).
var knownMethods = map[string]bool{
	"GET": true, "POST": true, "PUT": true, "DELETE": true,
	"PATCH": true, "HEAD": true, "OPTIONS": true,
}

// NormalizeMethod returns a bounded HTTP method label for Prometheus metrics.
// Non-standard methods are mapped to "other" to prevent cardinality explosion.
func NormalizeMethod(method string) string {
	if knownMethods[method] {
		return method
	}
	return "other"
}

// knownPrefixes lists the allowed path label values (bounded cardinality).
// Everything that is not an infrastructure route is a rendered page.
var knownPrefixes = []string{"/_next", "/__nextjs", "/healthz", "/status", "/metrics"}

// NormalizePath returns a bounded path label for Prometheus metrics.
func NormalizePath(path string) string {
	for _, prefix := range knownPrefixes {
		if path == prefix || strings.HasPrefix(path, prefix+"/") || strings.HasPrefix(path, prefix+"?") {
			return prefix
		}
	}
	return "page"
}
