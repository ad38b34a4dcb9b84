package metrics

import "github.com/prometheus/client_golang/prometheus"

// IdempotencyMetrics описывает работу с Idempotency-Key: исходы запросов и очистку.
type IdempotencyMetrics struct {
	decisions      *prometheus.CounterVec
	cleanupRuns    *prometheus.CounterVec
	cleanupDeleted prometheus.Counter
	lastDeleted    prometheus.Gauge
}

// NewIdempotencyMetrics создаёт метрики в DefaultRegisterer.
func NewIdempotencyMetrics() *IdempotencyMetrics {
	return NewIdempotencyMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewIdempotencyMetricsWithRegisterer создаёт метрики в заданном registerer.
func NewIdempotencyMetricsWithRegisterer(registerer prometheus.Registerer) *IdempotencyMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &IdempotencyMetrics{
		decisions: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "shop_idempotency_decisions_total",
			Help: "Total number of idempotent requests grouped by decision.",
		}, []string{"decision"}),
		cleanupRuns: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "shop_idempotency_cleanup_runs_total",
			Help: "Total number of idempotency cleanup runs grouped by result.",
		}, []string{"result"}),
		cleanupDeleted: registerCounter(registerer, prometheus.CounterOpts{
			Name: "shop_idempotency_cleanup_deleted_total",
			Help: "Total number of deleted expired idempotency records.",
		}),
		lastDeleted: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "shop_idempotency_cleanup_last_deleted",
			Help: "Number of deleted records during the last cleanup run.",
		}),
	}
}

// RecordDecision увеличивает счётчик решений по ключу, включая released после ответа 5xx.
func (m *IdempotencyMetrics) RecordDecision(decision string) {
	m.decisions.WithLabelValues(decision).Inc()
}

// RecordCleanupRun фиксирует результат cleanup-цикла: ok или error.
func (m *IdempotencyMetrics) RecordCleanupRun(result string) {
	m.cleanupRuns.WithLabelValues(result).Inc()
}

// RecordCleanupDeleted добавляет число удалённых в батче записей.
func (m *IdempotencyMetrics) RecordCleanupDeleted(count int) {
	if count <= 0 {
		return
	}
	m.cleanupDeleted.Add(float64(count))
}

// SetLastDeleted выставляет итог последнего успешного цикла.
func (m *IdempotencyMetrics) SetLastDeleted(count int) {
	m.lastDeleted.Set(float64(count))
}
