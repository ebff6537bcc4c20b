// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Sale outcomes
const (
	OutcomeCompleted = "completed"
)

// Recorder collects sale engine metrics
type Recorder struct {
	sales         *prometheus.CounterVec
	saleDuration  prometheus.Histogram
	itemsSold     prometheus.Counter
	revenue       prometheus.Counter
	compensations *prometheus.CounterVec
	eventsDropped *prometheus.CounterVec
}

// NewRecorder registers the collectors with reg
func NewRecorder(reg prometheus.Registerer) *Recorder {
	factory := promauto.With(reg)
	return &Recorder{
		sales: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kasir",
			Name:      "sales_total",
			Help:      "Sale attempts by outcome.",
		}, []string{"outcome"}),
		saleDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "kasir",
			Name:      "sale_duration_seconds",
			Help:      "Time spent processing a sale, whatever the outcome.",
			Buckets:   prometheus.DefBuckets,
		}),
		itemsSold: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "kasir",
			Name:      "items_sold_total",
			Help:      "Units sold in completed sales.",
		}),
		revenue: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "kasir",
			Name:      "revenue_total",
			Help:      "Sum of completed transaction totals in currency units.",
		}),
		compensations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kasir",
			Name:      "stock_restores_total",
			Help:      "Reservations returned to stock after a failed sale, by result.",
		}, []string{"result"}),
		eventsDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kasir",
			Name:      "events_dropped_total",
			Help:      "Domain events that could not be queued for publishing.",
		}, []string{"event_type"}),
	}
}

// SaleFinished records one sale attempt
func (r *Recorder) SaleFinished(outcome string, started time.Time) {
	r.sales.WithLabelValues(outcome).Inc()
	r.saleDuration.Observe(time.Since(started).Seconds())
}

// SaleCompleted records the volume of a successful sale
func (r *Recorder) SaleCompleted(items, total int64) {
	r.itemsSold.Add(float64(items))
	r.revenue.Add(float64(total))
}

// StockRestored records one compensation attempt
func (r *Recorder) StockRestored(err error) {
	result := "ok"
	if err != nil {
		result = "failed"
	}
	r.compensations.WithLabelValues(result).Inc()
}

// EventDropped records an event the dispatcher had to discard
func (r *Recorder) EventDropped(eventType string) {
	r.eventsDropped.WithLabelValues(eventType).Inc()
}
