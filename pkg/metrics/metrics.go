// Copyright 2025 Agent Trust Protocol Contributors
//
// Metrics - Prometheus instrumentation for the document engine
// The engine never starts its own HTTP listener; callers register these
// collectors on a registry they expose themselves.

package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics bundles the counters and histograms the verifier, resolver,
// and explorer client record against.
type Metrics struct {
	VerifyAttempts   *prometheus.CounterVec
	VerifyFailures   *prometheus.CounterVec
	ResolverLatency  *prometheus.HistogramVec
	ExplorerLatency  *prometheus.HistogramVec
	ExplorerFailures *prometheus.CounterVec
}

// New constructs a Metrics bundle with unregistered collectors.
func New() *Metrics {
	return &Metrics{
		VerifyAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "atp",
			Subsystem: "verifier",
			Name:      "attempts_total",
			Help:      "Document verification attempts by variant tag.",
		}, []string{"tag"}),
		VerifyFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "atp",
			Subsystem: "verifier",
			Name:      "failures_total",
			Help:      "Document verification failures by variant tag and error kind.",
		}, []string{"tag", "kind"}),
		ResolverLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "atp",
			Subsystem: "resolver",
			Name:      "rpc_latency_seconds",
			Help:      "Node RPC call latency by method.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		ExplorerLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "atp",
			Subsystem: "explorer",
			Name:      "call_latency_seconds",
			Help:      "Explorer HTTP call latency by endpoint.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"endpoint"}),
		ExplorerFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "atp",
			Subsystem: "explorer",
			Name:      "failures_total",
			Help:      "Explorer call failures by endpoint and error kind.",
		}, []string{"endpoint", "kind"}),
	}
}

// MustRegister registers every collector in m against reg, panicking on
// a duplicate registration (mirrors prometheus.MustRegister's contract).
func (m *Metrics) MustRegister(reg prometheus.Registerer) {
	reg.MustRegister(
		m.VerifyAttempts,
		m.VerifyFailures,
		m.ResolverLatency,
		m.ExplorerLatency,
		m.ExplorerFailures,
	)
}
