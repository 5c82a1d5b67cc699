package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func findFamily(t *testing.T, reg *prometheus.Registry, name string) *dto.MetricFamily {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() == name {
			return f
		}
	}
	return nil
}

func TestNewMetrics(t *testing.T) {
	// 各テストで新しいレジストリを使用
	reg := prometheus.NewRegistry()
	m := NewWithRegistry(reg)

	require.NotNil(t, m)
	assert.NotNil(t, m.HTTPRequestsTotal)
	assert.NotNil(t, m.HTTPRequestDuration)
	assert.NotNil(t, m.ReservationOperationsTotal)
	assert.NotNil(t, m.RoomLockDuration)
	assert.NotNil(t, m.CacheLookupsTotal)
	assert.NotNil(t, m.CacheInvalidationsTotal)
	assert.NotNil(t, m.RefundAmountTotal)
	assert.NotNil(t, m.EventsTotal)
}

func TestHTTPRequestsTotal(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewWithRegistry(reg)

	m.HTTPRequestsTotal.WithLabelValues("GET", "/api/v1/reservations/:id", "200").Inc()
	m.HTTPRequestsTotal.WithLabelValues("POST", "/api/v1/reservations", "201").Inc()
	m.HTTPRequestsTotal.WithLabelValues("POST", "/api/v1/reservations", "409").Inc()

	f := findFamily(t, reg, "http_requests_total")
	require.NotNil(t, f, "http_requests_total metric not found")
	assert.Len(t, f.GetMetric(), 3)
}

func TestObserveOperation(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewWithRegistry(reg)

	m.ObserveOperation("create", "success")
	m.ObserveOperation("create", "success")
	m.ObserveOperation("create", "conflict")
	m.ObserveOperation("cancel", "invalid_state")

	f := findFamily(t, reg, "reservation_operations_total")
	require.NotNil(t, f, "reservation_operations_total metric not found")
	assert.Len(t, f.GetMetric(), 3)
}

func TestObserveLock(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewWithRegistry(reg)

	m.ObserveLock(0.015, true)
	m.ObserveLock(0.5, false)

	f := findFamily(t, reg, "room_lock_duration_seconds")
	require.NotNil(t, f)
	assert.Len(t, f.GetMetric(), 2)
}

func TestCacheCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewWithRegistry(reg)

	m.ObserveCacheLookup("hit")
	m.ObserveCacheLookup("miss")
	m.ObserveInvalidation(true)
	m.ObserveInvalidation(false)

	lookups := findFamily(t, reg, "cache_lookups_total")
	require.NotNil(t, lookups)
	assert.Len(t, lookups.GetMetric(), 2)

	invalidations := findFamily(t, reg, "cache_invalidations_total")
	require.NotNil(t, invalidations)
	assert.Len(t, invalidations.GetMetric(), 2)
}

func TestAddRefund(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewWithRegistry(reg)

	m.AddRefund(150000)
	m.AddRefund(0)
	m.AddRefund(-10)

	f := findFamily(t, reg, "refund_amount_total")
	require.NotNil(t, f)
	assert.Equal(t, 150000.0, f.GetMetric()[0].GetCounter().GetValue())
}

func TestNilMetrics_DoNotPanic(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveOperation("create", "success")
		m.ObserveLock(0.1, true)
		m.ObserveCacheLookup("hit")
		m.ObserveInvalidation(false)
		m.AddRefund(100)
		m.ObserveEvent("published")
	})
}

func TestInit_CreatesDefaultMetrics(t *testing.T) {
	oldMetrics := defaultMetrics
	defer func() { defaultMetrics = oldMetrics }()

	// Initはデフォルトレジストリに登録するため、テストでは直接セット
	reg := prometheus.NewRegistry()
	m := NewWithRegistry(reg)
	defaultMetrics = m

	got := Get()
	assert.NotNil(t, got)
	assert.Equal(t, m, got)
}
