package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Исходы сборки заказа для метки outcome.
const (
	OutcomeCreated          = "created"
	OutcomePersistenceError = "persistence_error"
)

// OrderMetrics содержит метрики конвейера создания заказа.
type OrderMetrics struct {
	// Счётчики исходов сборки: created, виды отказов, persistence_error.
	assemblies *prometheus.CounterVec
	// Отброшенные при сверке позиции по причине.
	droppedLines *prometheus.CounterVec
	// Позиции, попавшие в сохранённые заказы.
	persistedLines prometheus.Counter

	assemblyDuration prometheus.Histogram
	lookupDuration   prometheus.Histogram

	timelineEvents prometheus.Counter
	outboxEvents   prometheus.Counter
}

// NewOrderMetrics создаёт метрики в DefaultRegisterer.
func NewOrderMetrics() *OrderMetrics {
	return NewOrderMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewOrderMetricsWithRegisterer создаёт метрики в заданном registerer; повторная регистрация переиспользует коллекторы.
func NewOrderMetricsWithRegisterer(registerer prometheus.Registerer) *OrderMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &OrderMetrics{
		assemblies: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "shop_order_assemblies_total",
			Help: "Total number of order assembly attempts grouped by outcome",
		}, []string{"outcome"}),
		droppedLines: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "shop_order_lines_dropped_total",
			Help: "Total number of requested order lines dropped during reconciliation",
		}, []string{"reason"}),
		persistedLines: registerCounter(registerer, prometheus.CounterOpts{
			Name: "shop_order_lines_persisted_total",
			Help: "Total number of order lines persisted with created orders",
		}),
		assemblyDuration: registerHistogram(registerer, prometheus.HistogramOpts{
			Name:    "shop_order_assembly_duration_seconds",
			Help:    "Duration of order assembly including persistence in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		lookupDuration: registerHistogram(registerer, prometheus.HistogramOpts{
			Name:    "shop_article_lookup_duration_seconds",
			Help:    "Duration of batch article lookups in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5},
		}),
		timelineEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "shop_timeline_events_total",
			Help: "Total number of timeline events recorded",
		}),
		outboxEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "shop_outbox_events_total",
			Help: "Total number of outbox events enqueued",
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

// RecordAssembly фиксирует исход сборки заказа и её длительность.
func (m *OrderMetrics) RecordAssembly(outcome string, duration time.Duration) {
	m.assemblies.WithLabelValues(outcome).Inc()
	m.assemblyDuration.Observe(duration.Seconds())
}

// RecordDroppedLines увеличивает счётчик отброшенных позиций.
func (m *OrderMetrics) RecordDroppedLines(reason string, count int) {
	if count <= 0 {
		return
	}
	m.droppedLines.WithLabelValues(reason).Add(float64(count))
}

// RecordPersistedLines увеличивает счётчик сохранённых позиций.
func (m *OrderMetrics) RecordPersistedLines(count int) {
	if count <= 0 {
		return
	}
	m.persistedLines.Add(float64(count))
}

// RecordLookupDuration записывает время пакетного поиска артикулов.
func (m *OrderMetrics) RecordLookupDuration(duration time.Duration) {
	m.lookupDuration.Observe(duration.Seconds())
}

// RecordTimelineEvent увеличивает счётчик событий timeline.
func (m *OrderMetrics) RecordTimelineEvent() {
	m.timelineEvents.Inc()
}

// RecordOutboxEvent увеличивает счётчик событий outbox.
func (m *OrderMetrics) RecordOutboxEvent() {
	m.outboxEvents.Inc()
}
