// Package metrics provides Prometheus metrics for the proxy.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Reject reasons used as the label of RequestsRejected. Fixed set to keep
// label cardinality bounded.
const (
	ReasonMissingHost  = "missing_host"
	ReasonBadEncoding  = "bad_encoding"
	ReasonBodyTooLarge = "body_too_large"
	ReasonUpstreamDown = "upstream_down"
)

var knownReasons = map[string]bool{
	ReasonMissingHost:  true,
	ReasonBadEncoding:  true,
	ReasonBodyTooLarge: true,
	ReasonUpstreamDown: true,
}

// NormalizeReason maps unexpected reject reasons to "other" so the label
// set stays bounded.
func NormalizeReason(reason string) string {
	if knownReasons[reason] {
		return reason
	}
	return "other"
}

// Buckets for upstream connect latency; connects are expected to be fast,
// so the range skews low.
var connectBuckets = []float64{.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2.5}

// Metrics holds all Prometheus metric collectors for the proxy.
type Metrics struct {
	Registry *prometheus.Registry

	ConnectionsAccepted prometheus.Counter
	ConnectionsInFlight prometheus.Gauge
	RequestsRejected    *prometheus.CounterVec

	UpstreamConnectDuration prometheus.Histogram
	BodyBytesStreamed       prometheus.Counter
}

// New creates a Metrics instance with a custom registry and all collectors registered.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{
		Registry: reg,

		ConnectionsAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hostgate_connections_accepted_total",
			Help: "Total client connections accepted by the dispatch loop.",
		}),

		ConnectionsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "hostgate_connections_in_flight",
			Help: "Number of client connections currently being proxied.",
		}),

		RequestsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hostgate_requests_rejected_total",
			Help: "Requests answered with an error status instead of being proxied.",
		}, []string{"reason"}),

		UpstreamConnectDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "hostgate_upstream_connect_duration_seconds",
			Help:    "Latency of dialing the upstream target in seconds.",
			Buckets: connectBuckets,
		}),

		BodyBytesStreamed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hostgate_body_bytes_streamed_total",
			Help: "Total response body bytes relayed to clients.",
		}),
	}

	reg.MustRegister(
		m.ConnectionsAccepted,
		m.ConnectionsInFlight,
		m.RequestsRejected,
		m.UpstreamConnectDuration,
		m.BodyBytesStreamed,
	)

	return m
}
