// Package metrics registers the prometheus instruments shared across the
// saga orchestrator, stock ledger, and notification dispatcher.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	SagaCompleted   *prometheus.CounterVec // {outcome}
	SagaDuration    prometheus.Histogram
	LedgerConflicts prometheus.Counter
	Notifications   *prometheus.CounterVec // {channel, outcome}
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		SagaCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "orderflow",
			Name:      "saga_completed_total",
			Help:      "Order sagas reaching a terminal state, by outcome.",
		}, []string{"outcome"}),
		SagaDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "orderflow",
			Name:      "saga_duration_seconds",
			Help:      "Wall time from saga start to terminal state.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		LedgerConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "orderflow",
			Name:      "stock_version_conflicts_total",
			Help:      "Optimistic-concurrency conflicts observed by the stock ledger.",
		}),
		Notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "orderflow",
			Name:      "notifications_total",
			Help:      "Notification delivery attempts, by channel and outcome.",
		}, []string{"channel", "outcome"}),
	}
	reg.MustRegister(m.SagaCompleted, m.SagaDuration, m.LedgerConflicts, m.Notifications)
	return m
}

func Handler() http.Handler {
	return promhttp.Handler()
}
