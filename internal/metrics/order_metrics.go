package metrics

import (
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/vladislavdragonenkov/ordersvc/internal/domain"
)

// Результаты операций в метках.
const (
	ResultOK          = "ok"
	ResultNotFound    = "not_found"
	ResultInvalid     = "invalid_argument"
	ResultConflict    = "conflict"
	ResultUnavailable = "unavailable"
	ResultError       = "error"
)

// OrderMetrics содержит метрики сервиса заказов.
// Все методы безопасны для nil-получателя: метрики в тестах можно не подключать.
type OrderMetrics struct {
	// Операции менеджера заказов и каталога
	operations        *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	inFlight          prometheus.Gauge

	// Справочник пользователей
	directoryFallbacks *prometheus.CounterVec
	circuitOpen        prometheus.Gauge

	// Idempotency-Key
	idempotency         *prometheus.CounterVec
	cleanupRuns         *prometheus.CounterVec
	cleanupDeleted      prometheus.Counter
	cleanupLastDeleted  prometheus.Gauge
	cleanupLastDuration prometheus.Gauge
}

// NewOrderMetrics регистрирует метрики в глобальном реестре.
func NewOrderMetrics() *OrderMetrics {
	return NewOrderMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewOrderMetricsWithRegisterer регистрирует метрики в переданном реестре.
// Повторная регистрация возвращает уже существующие коллекторы.
func NewOrderMetricsWithRegisterer(registerer prometheus.Registerer) *OrderMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &OrderMetrics{
		operations: register(registerer, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ordersvc_operations_total",
			Help: "Total number of service operations by name and result",
		}, []string{"operation", "result"})),
		operationDuration: register(registerer, prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ordersvc_operation_duration_seconds",
			Help:    "Duration of service operations in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}, []string{"operation"})),
		inFlight: register(registerer, prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ordersvc_operations_in_flight",
			Help: "Number of service operations currently executing",
		})),
		directoryFallbacks: register(registerer, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ordersvc_user_directory_fallbacks_total",
			Help: "Total number of degraded user identities by call site and reason",
		}, []string{"site", "reason"})),
		circuitOpen: register(registerer, prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ordersvc_user_directory_circuit_open",
			Help: "1 while the user directory circuit breaker rejects calls",
		})),
		idempotency: register(registerer, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ordersvc_idempotency_requests_total",
			Help: "Requests carrying Idempotency-Key by outcome",
		}, []string{"outcome"})),
		cleanupRuns: register(registerer, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ordersvc_idempotency_cleanup_runs_total",
			Help: "Idempotency key cleanup runs by result",
		}, []string{"result"})),
		cleanupDeleted: register(registerer, prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ordersvc_idempotency_cleanup_deleted_total",
			Help: "Expired idempotency keys deleted by the cleanup worker",
		})),
		cleanupLastDeleted: register(registerer, prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ordersvc_idempotency_cleanup_last_deleted",
			Help: "Keys deleted during the last successful cleanup run",
		})),
		cleanupLastDuration: register(registerer, prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ordersvc_idempotency_cleanup_last_duration_seconds",
			Help: "Duration of the last cleanup run in seconds",
		})),
	}
}

func register[C prometheus.Collector](registerer prometheus.Registerer, collector C) C {
	if err := registerer.Register(collector); err != nil {
		var alreadyRegistered prometheus.AlreadyRegisteredError
		if errors.As(err, &alreadyRegistered) {
			existing, ok := alreadyRegistered.ExistingCollector.(C)
			if !ok {
				panic(fmt.Sprintf("collector already registered with unexpected type %T", alreadyRegistered.ExistingCollector))
			}
			return existing
		}
		panic(fmt.Sprintf("register collector: %v", err))
	}
	return collector
}

// Result переводит ошибку операции в значение метки result.
func Result(err error) string {
	switch {
	case err == nil:
		return ResultOK
	case errors.Is(err, domain.ErrNotFound):
		return ResultNotFound
	case errors.Is(err, domain.ErrInvalidArgument):
		return ResultInvalid
	case errors.Is(err, domain.ErrConflict):
		return ResultConflict
	case errors.Is(err, domain.ErrDependencyUnavailable):
		return ResultUnavailable
	default:
		return ResultError
	}
}

// StartOperation отмечает начало операции и возвращает функцию завершения.
func (m *OrderMetrics) StartOperation(operation string) func(err error) {
	if m == nil {
		return func(error) {}
	}

	started := time.Now()
	m.inFlight.Inc()
	return func(err error) {
		m.inFlight.Dec()
		m.operations.WithLabelValues(operation, Result(err)).Inc()
		m.operationDuration.WithLabelValues(operation).Observe(time.Since(started).Seconds())
	}
}

// RecordFallback увеличивает счётчик деградированных ответов справочника.
func (m *OrderMetrics) RecordFallback(site, reason string) {
	if m == nil {
		return
	}
	m.directoryFallbacks.WithLabelValues(site, reason).Inc()
}

// SetCircuitOpen отражает состояние circuit breaker справочника.
func (m *OrderMetrics) SetCircuitOpen(open bool) {
	if m == nil {
		return
	}
	if open {
		m.circuitOpen.Set(1)
		return
	}
	m.circuitOpen.Set(0)
}

// RecordIdempotency увеличивает счётчик запросов с Idempotency-Key.
func (m *OrderMetrics) RecordIdempotency(outcome string) {
	if m == nil {
		return
	}
	m.idempotency.WithLabelValues(outcome).Inc()
}

// RecordIdempotencyCleanup учитывает один проход очистки ключей.
// Ошибочный проход не меняет last_deleted: удалённое до ошибки уже учтено в deleted_total.
func (m *OrderMetrics) RecordIdempotencyCleanup(deleted int, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	if deleted > 0 {
		m.cleanupDeleted.Add(float64(deleted))
	}
	m.cleanupLastDuration.Set(elapsed.Seconds())
	if err != nil {
		m.cleanupRuns.WithLabelValues(ResultError).Inc()
		return
	}
	m.cleanupRuns.WithLabelValues(ResultOK).Inc()
	m.cleanupLastDeleted.Set(float64(deleted))
}
