package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	RequestsValidated  *prometheus.CounterVec
	ValidatorLatencyMs *prometheus.HistogramVec
	TokensIssued       prometheus.Counter
}

func New() *Metrics {
	return &Metrics{
		RequestsValidated: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "quorumgate_validation_requests_total",
			Help: "Total Stage 1 validation requests by outcome",
		}, []string{"outcome"}),
		ValidatorLatencyMs: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "quorumgate_validator_latency_ms",
			Help:    "Latency of individual validators in milliseconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 25, 50, 100},
		}, []string{"validator"}),
		TokensIssued: promauto.NewCounter(prometheus.CounterOpts{
			Name: "quorumgate_tokens_issued_total",
			Help: "Total tokens minted after passing validation",
		}),
	}
}

func (m *Metrics) ObserveValidatorLatency(validator string, d time.Duration) {
	m.ValidatorLatencyMs.WithLabelValues(validator).Observe(float64(d.Microseconds()) / 1000.0)
}

func (m *Metrics) IncrementValidated(outcome string) {
	m.RequestsValidated.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncrementTokensIssued() {
	m.TokensIssued.Inc()
}
