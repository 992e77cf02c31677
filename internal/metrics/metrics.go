// Package metrics exposes PimBridge's instrumentation as prometheus
// collectors, registered into a Registerer owned by the embedding
// simulator — this package never stands up its own HTTP server.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Registry bundles the counters/gauges/histogram the engine and comm
// packages update during a run.
type Registry struct {
	QueueDepth      *prometheus.GaugeVec
	StealCount      *prometheus.CounterVec
	EvictionCount   *prometheus.CounterVec
	BarrierLatency  prometheus.Histogram
	LoadBalanceRuns prometheus.Counter
}

// NewRegistry builds a Registry and registers every collector into reg.
func NewRegistry(reg prometheus.Registerer) *Registry {
	r := &Registry{
		QueueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "pimbridge",
			Name:      "queue_depth",
			Help:      "Current packet/task queue depth, labeled by bank and queue kind.",
		}, []string{"bank", "queue"}),
		StealCount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pimbridge",
			Name:      "steal_total",
			Help:      "Tasks migrated away from a bank by the load balancer.",
		}, []string{"bank"}),
		EvictionCount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pimbridge",
			Name:      "remap_eviction_total",
			Help:      "Limited remap table LRU evictions, labeled by level.",
		}, []string{"level"}),
		BarrierLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "pimbridge",
			Name:      "barrier_latency_cycles",
			Help:      "Cycles spent advancing the timestamp barrier in finishTimeStamp.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		}),
		LoadBalanceRuns: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pimbridge",
			Name:      "load_balance_runs_total",
			Help:      "Number of times commandLoadBalance actually issued commands.",
		}),
	}
	reg.MustRegister(r.QueueDepth, r.StealCount, r.EvictionCount, r.BarrierLatency, r.LoadBalanceRuns)
	return r
}
