package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics はアプリケーションのメトリクスを管理する
// nil レシーバでもメソッドを呼べるので、コア側はメトリクス未設定でも動作する
type Metrics struct {
	// HTTPリクエストの総数（method, path, status_code）
	HTTPRequestsTotal *prometheus.CounterVec

	// HTTPリクエストのレイテンシ（method, path）
	HTTPRequestDuration *prometheus.HistogramVec

	// 予約操作の総数（operation: create/confirm/check_in/..., result: success/conflict/invalid_state/...）
	ReservationOperationsTotal *prometheus.CounterVec

	// 客室ロックの取得時間（status: success/failed）
	RoomLockDuration *prometheus.HistogramVec

	// キャッシュ参照（result: hit/miss/error）
	CacheLookupsTotal *prometheus.CounterVec

	// キャッシュ無効化（result: ok/failed）
	CacheInvalidationsTotal *prometheus.CounterVec

	// 返金額の累計
	RefundAmountTotal prometheus.Counter

	// ドメインイベント送信（result: published/retried/dropped）
	EventsTotal *prometheus.CounterVec
}

// New は新しいMetricsインスタンスを作成し、デフォルトレジストリに登録する
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry は指定したレジストリにメトリクスを登録する
func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status_code"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		ReservationOperationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reservation_operations_total",
				Help: "Total number of reservation lifecycle operations",
			},
			[]string{"operation", "result"},
		),
		RoomLockDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "room_lock_duration_seconds",
				Help:    "Time spent acquiring per-room locks",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
			},
			[]string{"status"},
		),
		CacheLookupsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cache_lookups_total",
				Help: "Total number of cache lookups",
			},
			[]string{"result"},
		),
		CacheInvalidationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cache_invalidations_total",
				Help: "Total number of cache invalidation calls",
			},
			[]string{"result"},
		),
		RefundAmountTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "refund_amount_total",
				Help: "Sum of net refunds granted on cancellation",
			},
		),
		EventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "domain_events_total",
				Help: "Total number of domain events handled by the dispatcher",
			},
			[]string{"result"},
		),
	}

	// レジストリに登録
	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.ReservationOperationsTotal,
		m.RoomLockDuration,
		m.CacheLookupsTotal,
		m.CacheInvalidationsTotal,
		m.RefundAmountTotal,
		m.EventsTotal,
	)

	return m
}

// ObserveOperation は予約操作の結果を記録する
func (m *Metrics) ObserveOperation(operation, result string) {
	if m == nil {
		return
	}
	m.ReservationOperationsTotal.WithLabelValues(operation, result).Inc()
}

// ObserveLock はロック取得にかかった時間を記録する
func (m *Metrics) ObserveLock(seconds float64, ok bool) {
	if m == nil {
		return
	}
	status := "success"
	if !ok {
		status = "failed"
	}
	m.RoomLockDuration.WithLabelValues(status).Observe(seconds)
}

// ObserveCacheLookup はキャッシュ参照結果を記録する
func (m *Metrics) ObserveCacheLookup(result string) {
	if m == nil {
		return
	}
	m.CacheLookupsTotal.WithLabelValues(result).Inc()
}

// ObserveInvalidation はキャッシュ無効化の結果を記録する
func (m *Metrics) ObserveInvalidation(ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "failed"
	}
	m.CacheInvalidationsTotal.WithLabelValues(result).Inc()
}

// AddRefund は返金額を加算する
func (m *Metrics) AddRefund(amount float64) {
	if m == nil || amount <= 0 {
		return
	}
	m.RefundAmountTotal.Add(amount)
}

// ObserveEvent はイベント送信結果を記録する
func (m *Metrics) ObserveEvent(result string) {
	if m == nil {
		return
	}
	m.EventsTotal.WithLabelValues(result).Inc()
}

// デフォルトのメトリクスインスタンス
var defaultMetrics *Metrics

// Init はデフォルトのメトリクスインスタンスを初期化する
func Init() *Metrics {
	defaultMetrics = New()
	return defaultMetrics
}

// Get はデフォルトのメトリクスインスタンスを返す
func Get() *Metrics {
	return defaultMetrics
}
