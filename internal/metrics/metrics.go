// Copyright 2025 Certen Protocol
//
// Package metrics registers the Prometheus counters and gauges the
// coordinator exposes; only the orchestrator updates them, grounded on the
// luxfi-consensus protocol/nova package's prometheus.NewCounter/NewGauge +
// Registerer.Register style (this repository's teacher carries
// prometheus/client_golang as a dependency but never registers a metric of
// its own, so the registration pattern is adopted from the rest of the
// retrieved corpus).

package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds every gauge/counter the coordinator exposes.
type Metrics struct {
	BlocksProduced      prometheus.Counter
	BlocksFailed        prometheus.Counter
	CurrentCheckpoint   prometheus.Gauge
	QueueDepth          *prometheus.GaugeVec
	ProofsAggregated    prometheus.Counter
	AggregationFailures prometheus.Counter
	L1SubmitRetries     prometheus.Counter
	RPCRequestsHandled  *prometheus.CounterVec
}

// New constructs Metrics and registers every collector against registerer.
func New(registerer prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		BlocksProduced: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rollup_blocks_produced_total",
			Help: "Number of blocks successfully committed to L1.",
		}),
		BlocksFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rollup_blocks_failed_total",
			Help: "Number of blocks aborted by the orchestrator before commit.",
		}),
		CurrentCheckpoint: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rollup_current_checkpoint",
			Help: "The checkpoint id the orchestrator is currently planning or has last committed.",
		}),
		QueueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "rollup_queue_depth",
			Help: "Number of items currently queued, by topic.",
		}, []string{"topic"}),
		ProofsAggregated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rollup_proofs_aggregated_total",
			Help: "Number of final block proofs the orchestrator has observed.",
		}),
		AggregationFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rollup_aggregation_failures_total",
			Help: "Number of leaf verification failures reported by workers.",
		}),
		L1SubmitRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rollup_l1_submit_retries_total",
			Help: "Number of failed L1 submission attempts.",
		}),
		RPCRequestsHandled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rollup_rpc_requests_handled_total",
			Help: "Number of RPC requests normalized by the RPC processor, by kind.",
		}, []string{"kind"}),
	}

	collectors := []prometheus.Collector{
		m.BlocksProduced,
		m.BlocksFailed,
		m.CurrentCheckpoint,
		m.QueueDepth,
		m.ProofsAggregated,
		m.AggregationFailures,
		m.L1SubmitRetries,
		m.RPCRequestsHandled,
	}
	for _, c := range collectors {
		if err := registerer.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}
