package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// OrderMetrics holds the Prometheus instruments of the order core.
type OrderMetrics struct {
	ordersCreated    prometheus.Counter
	createFailed     prometheus.Counter
	stockConflicts   prometheus.Counter
	transitions      *prometheus.CounterVec
	transitionDenied prometheus.Counter

	createDuration     prometheus.Histogram
	transitionDuration *prometheus.HistogramVec

	outboxEvents       prometheus.Counter
	outboxPublishFails prometheus.Counter
	outboxPending      prometheus.Gauge

	idempotentReplays prometheus.Counter
}

// NewOrderMetrics creates the metrics set on the default registerer. Repeated
// calls reuse the already registered collectors, so every component can call
// this without coordination.
func NewOrderMetrics() *OrderMetrics {
	return newOrderMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

func newOrderMetricsWithRegisterer(registerer prometheus.Registerer) *OrderMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &OrderMetrics{
		ordersCreated: registerCounter(registerer, prometheus.CounterOpts{
			Name: "orders_created_total",
			Help: "Total number of orders committed",
		}),
		createFailed: registerCounter(registerer, prometheus.CounterOpts{
			Name: "orders_create_failed_total",
			Help: "Total number of order creations that rolled back",
		}),
		stockConflicts: registerCounter(registerer, prometheus.CounterOpts{
			Name: "orders_stock_conflicts_total",
			Help: "Total number of creations rejected for insufficient stock",
		}),
		transitions: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "orders_transitions_total",
			Help: "Total number of applied lifecycle transitions",
		}, []string{"kind"}),
		transitionDenied: registerCounter(registerer, prometheus.CounterOpts{
			Name: "orders_transitions_denied_total",
			Help: "Total number of lifecycle transitions rejected by guards",
		}),
		createDuration: registerHistogram(registerer, prometheus.HistogramOpts{
			Name:    "orders_create_duration_seconds",
			Help:    "Duration of the order creation transaction in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		transitionDuration: registerHistogramVec(registerer, prometheus.HistogramOpts{
			Name:    "orders_transition_duration_seconds",
			Help:    "Duration of lifecycle transitions in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}, []string{"kind"}),
		outboxEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "orders_outbox_events_total",
			Help: "Total number of outbox events published",
		}),
		outboxPublishFails: registerCounter(registerer, prometheus.CounterOpts{
			Name: "orders_outbox_publish_failures_total",
			Help: "Total number of outbox publish attempts that failed",
		}),
		outboxPending: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "orders_outbox_pending",
			Help: "Number of outbox messages awaiting publication",
		}),
		idempotentReplays: registerCounter(registerer, prometheus.CounterOpts{
			Name: "orders_idempotent_replays_total",
			Help: "Total number of create requests answered from the idempotency store",
		}),
	}
}

func registerCounter(registerer prometheus.Registerer, opts prometheus.CounterOpts) prometheus.Counter {
	collector := prometheus.NewCounter(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Counter)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter %q: %v", opts.Name, err))
	}
	return collector
}

func registerCounterVec(registerer prometheus.Registerer, opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	collector := prometheus.NewCounterVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.CounterVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter vec %q: %v", opts.Name, err))
	}
	return collector
}

func registerGauge(registerer prometheus.Registerer, opts prometheus.GaugeOpts) prometheus.Gauge {
	collector := prometheus.NewGauge(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Gauge)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register gauge %q: %v", opts.Name, err))
	}
	return collector
}

func registerHistogram(registerer prometheus.Registerer, opts prometheus.HistogramOpts) prometheus.Histogram {
	collector := prometheus.NewHistogram(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Histogram)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register histogram %q: %v", opts.Name, err))
	}
	return collector
}

func registerHistogramVec(registerer prometheus.Registerer, opts prometheus.HistogramOpts, labels []string) *prometheus.HistogramVec {
	collector := prometheus.NewHistogramVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.HistogramVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register histogram vec %q: %v", opts.Name, err))
	}
	return collector
}

// RecordOrderCreated increments the created-orders counter.
func (m *OrderMetrics) RecordOrderCreated() {
	m.ordersCreated.Inc()
}

// RecordCreateFailed increments the rolled-back creations counter.
func (m *OrderMetrics) RecordCreateFailed() {
	m.createFailed.Inc()
}

// RecordStockConflict increments the insufficient-stock counter.
func (m *OrderMetrics) RecordStockConflict() {
	m.stockConflicts.Inc()
}

// RecordTransition increments the transition counter for one transition kind.
func (m *OrderMetrics) RecordTransition(kind string) {
	m.transitions.WithLabelValues(kind).Inc()
}

// RecordTransitionDenied increments the rejected-transitions counter.
func (m *OrderMetrics) RecordTransitionDenied() {
	m.transitionDenied.Inc()
}

// RecordCreateDuration records the wall time of one creation transaction.
func (m *OrderMetrics) RecordCreateDuration(duration time.Duration) {
	m.createDuration.Observe(duration.Seconds())
}

// RecordTransitionDuration records the wall time of one lifecycle transition.
func (m *OrderMetrics) RecordTransitionDuration(kind string, duration time.Duration) {
	m.transitionDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

// RecordOutboxEvent increments the published-events counter.
func (m *OrderMetrics) RecordOutboxEvent() {
	m.outboxEvents.Inc()
}

// RecordOutboxPublishFailure increments the failed-publish counter.
func (m *OrderMetrics) RecordOutboxPublishFailure() {
	m.outboxPublishFails.Inc()
}

// SetOutboxPending sets the gauge of messages awaiting publication.
func (m *OrderMetrics) SetOutboxPending(count int) {
	m.outboxPending.Set(float64(count))
}

// RecordIdempotentReplay increments the replayed-creations counter.
func (m *OrderMetrics) RecordIdempotentReplay() {
	m.idempotentReplays.Inc()
}
