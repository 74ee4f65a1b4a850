package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	StoreRequests    *prometheus.CounterVec
	ConsensusRounds  *prometheus.CounterVec
	RoundLatencyMs   prometheus.Histogram
	RecordsCommitted prometheus.Counter
	TreeSize         prometheus.Gauge
}

func New() *Metrics {
	return &Metrics{
		StoreRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "quorumgate_store_requests_total",
			Help: "Total Stage 2 store requests by outcome",
		}, []string{"outcome"}),
		ConsensusRounds: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "quorumgate_consensus_rounds_total",
			Help: "Total consensus rounds by terminal status",
		}, []string{"status"}),
		RoundLatencyMs: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "quorumgate_consensus_round_latency_ms",
			Help:    "Latency of consensus rounds in milliseconds",
			Buckets: []float64{1, 2.5, 5, 10, 25, 50, 100, 250, 500, 1000, 2500},
		}),
		RecordsCommitted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "quorumgate_records_committed_total",
			Help: "Total records committed to the permanent log",
		}),
		TreeSize: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "quorumgate_merkle_tree_size",
			Help: "Leaf count of the local Merkle tree",
		}),
	}
}

func (m *Metrics) IncrementStore(outcome string) {
	m.StoreRequests.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveRound(status string, d time.Duration) {
	m.ConsensusRounds.WithLabelValues(status).Inc()
	m.RoundLatencyMs.Observe(float64(d.Microseconds()) / 1000.0)
}

func (m *Metrics) RecordCommitted(treeSize uint64) {
	m.RecordsCommitted.Inc()
	m.TreeSize.Set(float64(treeSize))
}
