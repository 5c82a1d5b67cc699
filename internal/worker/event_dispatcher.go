package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/SongJunSub/Reservation-sub005/internal/domain/reservation"
	"github.com/SongJunSub/Reservation-sub005/internal/pkg/logger"
	"github.com/SongJunSub/Reservation-sub005/internal/pkg/metrics"
)

var (
	ErrQueueFull         = errors.New("イベントキューが満杯です")
	ErrDispatcherStopped = errors.New("イベントディスパッチャーは停止しています")
)

// EventDispatcherConfig は EventDispatcher の設定
type EventDispatcherConfig struct {
	BufferSize      int
	MaxRetries      int
	InitialInterval time.Duration
	DeliverTimeout  time.Duration
}

func (c *EventDispatcherConfig) setDefaults() {
	if c.BufferSize <= 0 {
		c.BufferSize = 256
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.InitialInterval <= 0 {
		c.InitialInterval = 100 * time.Millisecond
	}
	if c.DeliverTimeout <= 0 {
		c.DeliverTimeout = 5 * time.Second
	}
}

// EventDispatcher はドメインイベントをキューに積み、バックグラウンドで送信先に配送する
// 配送は少なくとも1回を目指すが、再試行を使い切ったイベントはログに残して捨てる
type EventDispatcher struct {
	sink    reservation.EventSink
	cfg     EventDispatcherConfig
	metrics *metrics.Metrics
	queue   chan reservation.DomainEvent

	mu      sync.RWMutex
	stopped bool
	doneCh  chan struct{}
}

// NewEventDispatcher は新しい EventDispatcher を作成する（m は nil 可）
func NewEventDispatcher(sink reservation.EventSink, cfg EventDispatcherConfig, m *metrics.Metrics) *EventDispatcher {
	cfg.setDefaults()
	return &EventDispatcher{
		sink:    sink,
		cfg:     cfg,
		metrics: m,
		queue:   make(chan reservation.DomainEvent, cfg.BufferSize),
		doneCh:  make(chan struct{}),
	}
}

// Publish はイベントをキューに積む。待たずに返し、満杯なら ErrQueueFull を返す
func (d *EventDispatcher) Publish(ctx context.Context, e reservation.DomainEvent) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.stopped {
		return ErrDispatcherStopped
	}
	select {
	case d.queue <- e:
		return nil
	default:
		d.metrics.ObserveEvent("dropped")
		logger.Warn("イベントキューが満杯のため破棄しました",
			logger.ReservationID(e.ReservationID), zap.String("event_type", e.Type))
		return ErrQueueFull
	}
}

// Start はキューが閉じられるまでイベントを配送する
func (d *EventDispatcher) Start(ctx context.Context) {
	logger.Info("イベントディスパッチャー開始", zap.Int("buffer_size", d.cfg.BufferSize))
	defer close(d.doneCh)

	for e := range d.queue {
		d.deliver(ctx, e)
	}
	logger.Info("イベントディスパッチャー停止")
}

// Stop は受付を止め、キューに残ったイベントを配送し終えるまで待つ
func (d *EventDispatcher) Stop() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		<-d.doneCh
		return
	}
	d.stopped = true
	close(d.queue)
	d.mu.Unlock()
	<-d.doneCh
}

func (d *EventDispatcher) deliver(ctx context.Context, e reservation.DomainEvent) {
	ctx = context.WithoutCancel(ctx)

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = d.cfg.InitialInterval
	b := backoff.WithMaxRetries(eb, uint64(d.cfg.MaxRetries))

	attempts := 0
	err := backoff.Retry(func() error {
		attempts++
		sendCtx, cancel := context.WithTimeout(ctx, d.cfg.DeliverTimeout)
		defer cancel()
		return d.sink.Publish(sendCtx, e)
	}, b)
	if err != nil {
		d.metrics.ObserveEvent("failed")
		logger.Error("イベントの配送に失敗しました",
			logger.ReservationID(e.ReservationID),
			zap.String("event_type", e.Type),
			zap.Int("attempts", attempts),
			zap.Error(err))
		return
	}
	d.metrics.ObserveEvent("published")
}

// LoggingSink はイベントをログに出力するだけの送信先
type LoggingSink struct{}

func (LoggingSink) Publish(ctx context.Context, e reservation.DomainEvent) error {
	logger.Info("ドメインイベント",
		zap.String("event_id", e.ID),
		zap.String("event_type", e.Type),
		logger.ReservationID(e.ReservationID),
		logger.RoomID(e.RoomID),
		zap.String("status", string(e.Status)),
	)
	return nil
}
