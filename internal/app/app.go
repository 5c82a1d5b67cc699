// Package app は設定から各コンポーネントを組み立て、HTTPサーバーとバックグラウンド処理を起動する。
package app

import (
	"context"
	"fmt"

	"github.com/labstack/echo/v4"
	goredis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/SongJunSub/Reservation-sub005/internal/api"
	"github.com/SongJunSub/Reservation-sub005/internal/api/handler"
	"github.com/SongJunSub/Reservation-sub005/internal/api/middleware"
	"github.com/SongJunSub/Reservation-sub005/internal/application"
	"github.com/SongJunSub/Reservation-sub005/internal/cache"
	"github.com/SongJunSub/Reservation-sub005/internal/config"
	"github.com/SongJunSub/Reservation-sub005/internal/domain/availability"
	"github.com/SongJunSub/Reservation-sub005/internal/domain/lock"
	"github.com/SongJunSub/Reservation-sub005/internal/domain/overlap"
	"github.com/SongJunSub/Reservation-sub005/internal/domain/policy"
	"github.com/SongJunSub/Reservation-sub005/internal/domain/reservation"
	"github.com/SongJunSub/Reservation-sub005/internal/domain/transaction"
	"github.com/SongJunSub/Reservation-sub005/internal/infrastructure/localcache"
	"github.com/SongJunSub/Reservation-sub005/internal/infrastructure/memcache"
	"github.com/SongJunSub/Reservation-sub005/internal/infrastructure/memory"
	"github.com/SongJunSub/Reservation-sub005/internal/infrastructure/postgres"
	"github.com/SongJunSub/Reservation-sub005/internal/infrastructure/rabbitmq"
	redisinfra "github.com/SongJunSub/Reservation-sub005/internal/infrastructure/redis"
	"github.com/SongJunSub/Reservation-sub005/internal/pkg/clock"
	"github.com/SongJunSub/Reservation-sub005/internal/pkg/logger"
	"github.com/SongJunSub/Reservation-sub005/internal/pkg/metrics"
	"github.com/SongJunSub/Reservation-sub005/internal/worker"
)

// App は組み立て済みのサーバーとバックグラウンド処理
type App struct {
	Echo         *echo.Echo
	Reservations *application.ReservationService
	Availability *application.AvailabilityService

	sweeper    *worker.ReservationSweeper
	dispatcher *worker.EventDispatcher
	closers    []func()
	cancel     context.CancelFunc
}

type options struct {
	clock   clock.Clock
	metrics *metrics.Metrics
}

// Option は App の組み立てを調整する
type Option func(*options)

// WithClock は時刻の取得元を差し替える
func WithClock(c clock.Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithMetrics はメトリクスを設定する（未設定ならメトリクスなし）
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

type storage struct {
	txm   transaction.Manager
	repo  reservation.Repository
	store availability.Store
}

// New は設定に従ってストア・ロック・キャッシュ・イベント送信先を選び、サービスとルーティングを組み立てる
func New(cfg *config.Config, opts ...Option) (_ *App, err error) {
	o := options{clock: clock.Real()}
	for _, opt := range opts {
		opt(&o)
	}

	a := &App{}
	defer func() {
		if err != nil {
			a.closeAll()
		}
	}()
	health := handler.NewHealthHandler()

	st, err := a.setupStorage(cfg, health)
	if err != nil {
		return nil, err
	}

	var redisClient *goredis.Client
	if cfg.Redis.Enabled {
		redisClient, err = redisinfra.NewClient(&cfg.Redis)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() { _ = redisClient.Close() })
		health.WithCheck("redis", func(ctx context.Context) error { return redisinfra.Ping(ctx, redisClient) })
	}

	locks := setupLocks(cfg, redisClient)
	coord, err := a.setupCache(cfg, redisClient, health, o.metrics)
	if err != nil {
		return nil, err
	}

	sink, err := a.setupEventSink(cfg)
	if err != nil {
		return nil, err
	}
	a.dispatcher = worker.NewEventDispatcher(sink, worker.EventDispatcherConfig{BufferSize: cfg.AMQP.BufferSize}, o.metrics)

	cancelPolicy, err := buildPolicy(cfg.Policy)
	if err != nil {
		return nil, err
	}
	loc := cfg.Booking.Location()
	lockOpts := lock.RetryOptions{
		TTL:        cfg.Booking.LockTTL,
		MaxRetries: cfg.Booking.LockRetries,
		RetryDelay: cfg.Booking.LockRetryDelay,
		MaxWait:    cfg.Booking.LockWaitTimeout,
	}

	a.Reservations = application.NewReservationService(st.txm, st.repo, st.store, locks, coord,
		application.WithClock(o.clock),
		application.WithMetrics(o.metrics),
		application.WithEventSink(a.dispatcher),
		application.WithDetector(overlap.NewDetector(overlap.Rules{
			MinimumStay:     cfg.Booking.MinStayNights,
			MaximumStay:     cfg.Booking.MaxStayNights,
			MinimumLeadTime: cfg.Booking.MinLeadTime,
			Location:        loc,
		})),
		application.WithPolicy(cancelPolicy),
		application.WithStateMachine(reservation.NewStateMachine(loc)),
		application.WithMaxGuests(cfg.Booking.MaxGuests),
		application.WithLockRetry(lockOpts),
	)
	a.Availability = application.NewAvailabilityService(st.txm, st.store, locks, coord, o.metrics, lockOpts)
	a.sweeper = worker.NewReservationSweeper(a.Reservations, cfg.Booking.SweepInterval, cfg.Booking.PendingExpiry)

	e := echo.New()
	e.HideBanner = true
	e.Validator = api.NewValidator()
	e.HTTPErrorHandler = api.CustomHTTPErrorHandler
	e.Server.ReadTimeout = cfg.Server.ReadTimeout
	e.Server.WriteTimeout = cfg.Server.WriteTimeout
	middleware.SetupMiddleware(e)
	e.Use(middleware.PrometheusMiddleware(o.metrics))
	handler.RegisterRoutes(e,
		handler.NewReservationHandler(a.Reservations),
		handler.NewAvailabilityHandler(a.Availability),
		health,
		cfg.Auth,
	)
	a.Echo = e

	return a, nil
}

func (a *App) setupStorage(cfg *config.Config, health *handler.HealthHandler) (storage, error) {
	switch cfg.Database.Driver {
	case "memory":
		logger.Warn("インメモリストアで起動します。再起動で予約と在庫は失われます")
		return storage{
			txm:   memory.NewTxManager(),
			repo:  memory.NewReservationRepository(),
			store: memory.NewAvailabilityStore(),
		}, nil
	case "postgres", "":
		db, err := postgres.NewConnection(&cfg.Database)
		if err != nil {
			return storage{}, err
		}
		a.closers = append(a.closers, func() { _ = db.Close() })
		if _, err := postgres.RunMigrations(db.DB, cfg.Database.MigrationsPath); err != nil {
			return storage{}, err
		}
		health.WithCheck("database", func(ctx context.Context) error { return postgres.Ping(ctx, db) })
		return storage{
			txm:   postgres.NewTxManager(db),
			repo:  postgres.NewReservationRepository(db),
			store: postgres.NewAvailabilityStore(db),
		}, nil
	default:
		return storage{}, fmt.Errorf("未対応のDBドライバーです: %s", cfg.Database.Driver)
	}
}

// setupLocks は Redis があれば分散ロック、なければプロセス内ロックを使う
func setupLocks(cfg *config.Config, client *goredis.Client) lock.Manager {
	if client != nil {
		return redisinfra.NewLockManager(client)
	}
	logger.Warn("Redis が無効のためプロセス内ロックを使用します。複数インスタンスでは排他されません")
	return memory.NewLockManager(cfg.Booking.LockWaitTimeout)
}

func (a *App) setupCache(cfg *config.Config, client *goredis.Client, health *handler.HealthHandler, m *metrics.Metrics) (*cache.Coordinator, error) {
	var backend cache.Backend
	switch cfg.Cache.Backend {
	case "redis":
		if client == nil {
			return nil, fmt.Errorf("キャッシュに redis を使うには REDIS_ENABLED が必要です")
		}
		backend = redisinfra.NewCacheBackend(client)
	case "memcached":
		mc := memcache.New(cfg.Cache.MemcachedServers, cfg.Cache.InvalidateTimeout)
		health.WithCheck("memcached", mc.Ping)
		backend = mc
	case "local", "":
		lc := localcache.New(cfg.Cache.LocalMaxSize)
		a.closers = append(a.closers, lc.Close)
		backend = lc
	default:
		return nil, fmt.Errorf("未対応のキャッシュバックエンドです: %s", cfg.Cache.Backend)
	}
	logger.Info("キャッシュバックエンド", zap.String("backend", cfg.Cache.Backend))
	return cache.NewCoordinator(backend, cache.Config{
		TTL:               cfg.Cache.TTL,
		InvalidateTimeout: cfg.Cache.InvalidateTimeout,
		MarkTTL:           cfg.Cache.MarkTTL,
	}, m), nil
}

func (a *App) setupEventSink(cfg *config.Config) (reservation.EventSink, error) {
	if cfg.AMQP.URL == "" {
		return worker.LoggingSink{}, nil
	}
	p, err := rabbitmq.NewPublisher(cfg.AMQP.URL, cfg.AMQP.Exchange)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func() { _ = p.Close() })
	return p, nil
}

func buildPolicy(cfg config.PolicyConfig) (*policy.CancellationPolicy, error) {
	tiers := make([]policy.Tier, len(cfg.Tiers))
	for i, t := range cfg.Tiers {
		tiers[i] = policy.NewTier(t.HoursBeforeCheckIn, int64(t.RefundPercent))
	}
	fee, err := decimal.NewFromString(cfg.ProcessingFee)
	if err != nil {
		return nil, fmt.Errorf("キャンセル手数料の形式が不正です: %q", cfg.ProcessingFee)
	}
	return policy.NewCancellationPolicy(tiers,
		policy.WithProcessingFee(fee),
		policy.WithScale(int32(cfg.CurrencyScale)),
	)
}

// Start はイベント配送とスイーパーを開始する。HTTPサーバーは呼び出し側で起動する
func (a *App) Start(ctx context.Context) {
	ctx, a.cancel = context.WithCancel(ctx)
	go a.dispatcher.Start(ctx)
	go a.sweeper.Start(ctx)
}

// Shutdown はHTTPサーバーを止めてからバックグラウンド処理を止め、接続を閉じる
func (a *App) Shutdown(ctx context.Context) error {
	err := a.Echo.Shutdown(ctx)
	if a.cancel != nil {
		a.sweeper.Stop()
		// キューに残ったイベントは配送し終えるまで待つ
		a.dispatcher.Stop()
		a.cancel()
	}
	a.closeAll()
	return err
}

func (a *App) closeAll() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
