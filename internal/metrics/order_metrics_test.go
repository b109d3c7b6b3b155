package metrics

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/vladislavdragonenkov/ordersvc/internal/domain"
)

func counterValue(t *testing.T, vec *prometheus.CounterVec, labels ...string) float64 {
	t.Helper()

	var metric dto.Metric
	if err := vec.WithLabelValues(labels...).Write(&metric); err != nil {
		t.Fatalf("write metric: %v", err)
	}
	return metric.GetCounter().GetValue()
}

func TestNewOrderMetrics_RegistersOnce(t *testing.T) {
	reg := prometheus.NewRegistry()

	first := NewOrderMetricsWithRegisterer(reg)
	second := NewOrderMetricsWithRegisterer(reg)

	if first.operations != second.operations {
		t.Fatal("expected repeated registration to reuse existing collectors")
	}
	if first.circuitOpen != second.circuitOpen {
		t.Fatal("expected repeated registration to reuse existing gauge")
	}
}

func TestStartOperation(t *testing.T) {
	m := NewOrderMetricsWithRegisterer(prometheus.NewRegistry())

	m.StartOperation("create_order")(nil)
	m.StartOperation("create_order")(domain.ErrUserInactive)
	m.StartOperation("get_order")(fmt.Errorf("wrap: %w", domain.ErrOrderNotFound))

	if got := counterValue(t, m.operations, "create_order", ResultOK); got != 1 {
		t.Fatalf("expected 1 ok create, got %v", got)
	}
	if got := counterValue(t, m.operations, "create_order", ResultInvalid); got != 1 {
		t.Fatalf("expected 1 invalid create, got %v", got)
	}
	if got := counterValue(t, m.operations, "get_order", ResultNotFound); got != 1 {
		t.Fatalf("expected 1 not found get, got %v", got)
	}

	var gauge dto.Metric
	if err := m.inFlight.Write(&gauge); err != nil {
		t.Fatalf("write gauge: %v", err)
	}
	if gauge.GetGauge().GetValue() != 0 {
		t.Fatalf("expected no operations in flight, got %v", gauge.GetGauge().GetValue())
	}
}

func TestRecordFallbackAndCircuit(t *testing.T) {
	m := NewOrderMetricsWithRegisterer(prometheus.NewRegistry())

	m.RecordFallback("enrichment", "timeout")
	m.RecordFallback("enrichment", "timeout")
	m.SetCircuitOpen(true)

	if got := counterValue(t, m.directoryFallbacks, "enrichment", "timeout"); got != 2 {
		t.Fatalf("expected 2 fallbacks, got %v", got)
	}

	var gauge dto.Metric
	if err := m.circuitOpen.Write(&gauge); err != nil {
		t.Fatalf("write gauge: %v", err)
	}
	if gauge.GetGauge().GetValue() != 1 {
		t.Fatalf("expected circuit gauge 1, got %v", gauge.GetGauge().GetValue())
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *OrderMetrics

	m.StartOperation("noop")(errors.New("boom"))
	m.RecordFallback("validation", "error")
	m.SetCircuitOpen(true)
	m.RecordIdempotency("replayed")
	m.RecordIdempotencyCleanup(3, time.Second, nil)
}

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()

	var metric dto.Metric
	if err := g.Write(&metric); err != nil {
		t.Fatalf("write gauge: %v", err)
	}
	return metric.GetGauge().GetValue()
}

func TestRecordIdempotencyCleanup(t *testing.T) {
	m := NewOrderMetricsWithRegisterer(prometheus.NewRegistry())

	m.RecordIdempotencyCleanup(5, 40*time.Millisecond, nil)
	m.RecordIdempotencyCleanup(2, 10*time.Millisecond, errors.New("db down"))

	if got := counterValue(t, m.cleanupRuns, ResultOK); got != 1 {
		t.Fatalf("expected 1 ok run, got %v", got)
	}
	if got := counterValue(t, m.cleanupRuns, ResultError); got != 1 {
		t.Fatalf("expected 1 failed run, got %v", got)
	}

	var deleted dto.Metric
	if err := m.cleanupDeleted.Write(&deleted); err != nil {
		t.Fatalf("write counter: %v", err)
	}
	if got := deleted.GetCounter().GetValue(); got != 7 {
		t.Fatalf("expected 7 deleted keys in total, got %v", got)
	}
	if got := gaugeValue(t, m.cleanupLastDeleted); got != 5 {
		t.Fatalf("failed run must not overwrite last_deleted, got %v", got)
	}
	if got := gaugeValue(t, m.cleanupLastDuration); got != 0.01 {
		t.Fatalf("expected last duration 0.01s, got %v", got)
	}
}

func TestResult(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ResultOK},
		{domain.ErrItemNotFound, ResultNotFound},
		{domain.ErrPageInvalid, ResultInvalid},
		{domain.ErrOrderVersionConflict, ResultConflict},
		{domain.ErrUserDirectoryUnavailable, ResultUnavailable},
		{errors.New("db down"), ResultError},
	}

	for _, tt := range tests {
		if got := Result(tt.err); got != tt.want {
			t.Errorf("Result(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}
