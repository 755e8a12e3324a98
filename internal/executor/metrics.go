package executor

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the executor's prometheus instruments.
type Metrics struct {
	stageTotal    *prometheus.CounterVec
	stageDuration *prometheus.HistogramVec
	retriesTotal  *prometheus.CounterVec
}

// NewMetrics creates and registers the executor metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		stageTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "stacker",
				Subsystem: "executor",
				Name:      "stage_total",
				Help:      "Total number of stage executions by result",
			},
			[]string{"tenant", "result"},
		),
		stageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "stacker",
				Subsystem: "executor",
				Name:      "stage_duration_seconds",
				Help:      "Duration of stage applies in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12), // 100ms to ~3.5min
			},
			[]string{"tenant"},
		),
		retriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "stacker",
				Subsystem: "executor",
				Name:      "stage_retries_total",
				Help:      "Total number of stage apply retries",
			},
			[]string{"tenant"},
		),
	}
	reg.MustRegister(m.stageTotal, m.stageDuration, m.retriesTotal)
	return m
}

func (m *Metrics) observeStage(tenant string, status Status, d time.Duration) {
	if m == nil {
		return
	}
	m.stageTotal.WithLabelValues(tenant, status.String()).Inc()
	if status == StatusSucceeded || status == StatusFailed {
		m.stageDuration.WithLabelValues(tenant).Observe(d.Seconds())
	}
}

func (m *Metrics) observeRetries(tenant string, attempts int) {
	if m == nil || attempts <= 1 {
		return
	}
	m.retriesTotal.WithLabelValues(tenant).Add(float64(attempts - 1))
}
