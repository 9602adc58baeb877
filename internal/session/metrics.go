package session

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/nao1215/scopecrawl/internal/model"
)

// Metrics are the Prometheus collectors updated by sessions.
type Metrics struct {
	Exchanges      *prometheus.CounterVec
	Sessions       *prometheus.CounterVec
	WorkersRunning prometheus.Gauge
	WorkerFailures prometheus.Counter
}

// NewMetrics registers the session collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	m := &Metrics{
		Exchanges: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scopecrawl_exchanges_total",
				Help: "Intercepted exchanges by resource state",
			},
			[]string{"state"},
		),
		Sessions: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scopecrawl_sessions_total",
				Help: "Finished crawl sessions by final state",
			},
			[]string{"result"},
		),
		WorkersRunning: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "scopecrawl_workers_running",
				Help: "Browser workers currently running",
			},
		),
		WorkerFailures: f.NewCounter(
			prometheus.CounterOpts{
				Name: "scopecrawl_worker_start_failures_total",
				Help: "Browser workers that failed to start",
			},
		),
	}
	for _, s := range model.AllResourceStates() {
		m.Exchanges.WithLabelValues(s.String())
	}
	return m
}
