package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/SongJunSub/Reservation-sub005/internal/cache"
	"github.com/SongJunSub/Reservation-sub005/internal/domain/availability"
	"github.com/SongJunSub/Reservation-sub005/internal/domain/lock"
	"github.com/SongJunSub/Reservation-sub005/internal/domain/overlap"
	"github.com/SongJunSub/Reservation-sub005/internal/domain/policy"
	"github.com/SongJunSub/Reservation-sub005/internal/domain/reservation"
	"github.com/SongJunSub/Reservation-sub005/internal/domain/stay"
	"github.com/SongJunSub/Reservation-sub005/internal/domain/transaction"
	"github.com/SongJunSub/Reservation-sub005/internal/pkg/apperror"
	"github.com/SongJunSub/Reservation-sub005/internal/pkg/clock"
	"github.com/SongJunSub/Reservation-sub005/internal/pkg/logger"
	"github.com/SongJunSub/Reservation-sub005/internal/pkg/metrics"
)

const (
	defaultListLimit = 20
	sweepBatchSize   = 100
)

// ReservationService は予約のライフサイクルを扱う
// 同じ客室への変更は客室ロックとトランザクションの中で直列化する
type ReservationService struct {
	txm      transaction.Manager
	repo     reservation.Repository
	store    availability.Store
	locks    lock.Manager
	cache    *cache.Coordinator
	clock    clock.Clock
	metrics  *metrics.Metrics
	events   reservation.EventSink
	detector *overlap.Detector
	policy   *policy.CancellationPolicy
	machine  *reservation.StateMachine

	maxGuests int
	lockOpts  lock.RetryOptions
}

// Option は ReservationService の設定
type Option func(*ReservationService)

func WithClock(c clock.Clock) Option {
	return func(s *ReservationService) { s.clock = c }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *ReservationService) { s.metrics = m }
}

// WithEventSink は確定した遷移の通知先を設定する
func WithEventSink(sink reservation.EventSink) Option {
	return func(s *ReservationService) { s.events = sink }
}

func WithDetector(d *overlap.Detector) Option {
	return func(s *ReservationService) { s.detector = d }
}

func WithPolicy(p *policy.CancellationPolicy) Option {
	return func(s *ReservationService) { s.policy = p }
}

func WithStateMachine(m *reservation.StateMachine) Option {
	return func(s *ReservationService) { s.machine = m }
}

func WithMaxGuests(n int) Option {
	return func(s *ReservationService) { s.maxGuests = n }
}

func WithLockRetry(o lock.RetryOptions) Option {
	return func(s *ReservationService) { s.lockOpts = o }
}

// NewReservationService は ReservationService を作成する（locks, c は nil 可）
func NewReservationService(txm transaction.Manager, repo reservation.Repository, store availability.Store, locks lock.Manager, c *cache.Coordinator, opts ...Option) *ReservationService {
	s := &ReservationService{
		txm:      txm,
		repo:     repo,
		store:    store,
		locks:    locks,
		cache:    c,
		clock:    clock.Real(),
		detector: overlap.NewDetector(overlap.Rules{}),
		machine:  reservation.NewStateMachine(time.UTC),
		lockOpts: lock.RetryOptions{
			TTL:        10 * time.Second,
			MaxRetries: 3,
			RetryDelay: 50 * time.Millisecond,
			MaxWait:    2 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.policy == nil {
		p, err := policy.NewCancellationPolicy(policy.DefaultTiers())
		if err != nil {
			panic(err)
		}
		s.policy = p
	}
	if s.cache != nil {
		s.cache.RegisterLoader(cache.EntityReservation, func(ctx context.Context, id string) (any, error) {
			return s.repo.GetByID(ctx, id)
		})
	}
	return s
}

// CreateReservationInput は予約作成の入力
type CreateReservationInput struct {
	GuestID        string
	RoomID         string
	CheckIn        time.Time
	CheckOut       time.Time
	Adults         int
	Children       int
	TotalAmount    decimal.Decimal
	IdempotencyKey string
}

// CancellationResult はキャンセルの結果
type CancellationResult struct {
	Reservation reservation.Reservation `json:"reservation"`
	Refund      policy.RefundBreakdown  `json:"refund"`
	RefundDue   decimal.Decimal         `json:"refund_due"`
}

// CreateReservation は重複判定と在庫確保を1つのトランザクションで行い、PENDING の予約を作成する
func (s *ReservationService) CreateReservation(ctx context.Context, input CreateReservationInput) (res reservation.Reservation, err error) {
	defer func() { s.metrics.ObserveOperation("create", resultOf(err)) }()

	now := s.clock.Now()
	params := reservation.NewParams{
		GuestID:        input.GuestID,
		RoomID:         input.RoomID,
		Stay:           stay.NewDateRange(input.CheckIn, input.CheckOut),
		Adults:         input.Adults,
		Children:       input.Children,
		TotalAmount:    input.TotalAmount,
		IdempotencyKey: input.IdempotencyKey,
		MaxGuests:      s.maxGuests,
	}
	// 共有状態に触れる前に検証する
	if err := params.Validate(); err != nil {
		return reservation.Reservation{}, err
	}
	if err := s.detector.ValidateStay(params.Stay, now); err != nil {
		return reservation.Reservation{}, err
	}

	// 冪等性チェック
	if input.IdempotencyKey != "" {
		existing, err := s.repo.GetByIdempotencyKey(ctx, input.IdempotencyKey)
		if err == nil {
			return existing, nil
		}
		if !errors.Is(err, reservation.ErrReservationNotFound) {
			return reservation.Reservation{}, fmt.Errorf("冪等性チェックに失敗: %w", err)
		}
	}

	ctx, unlock, err := s.lockRoom(ctx, input.RoomID)
	if err != nil {
		return reservation.Reservation{}, err
	}
	defer unlock()

	tx, err := s.txm.Begin(ctx)
	if err != nil {
		return reservation.Reservation{}, apperror.Infrastructure("トランザクション開始に失敗しました", err)
	}
	defer tx.Rollback()

	holding, err := s.repo.ListHoldingByRoom(ctx, tx, input.RoomID, params.Stay)
	if err != nil {
		return reservation.Reservation{}, fmt.Errorf("既存予約の取得に失敗: %w", err)
	}
	if err := overlap.FindConflict(input.RoomID, params.Stay, holding, ""); err != nil {
		return reservation.Reservation{}, err
	}
	if _, err := s.store.Reserve(ctx, tx, input.RoomID, params.Stay, 1); err != nil {
		return reservation.Reservation{}, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
			s.discardNights(ctx, input.RoomID, params.Stay)
		}
	}()

	res, err = reservation.New(params, now)
	if err != nil {
		return reservation.Reservation{}, err
	}
	if err := s.repo.Create(ctx, tx, res); err != nil {
		if errors.Is(err, reservation.ErrIdempotencyKeyAlreadyExists) {
			// 同じキーの並行リクエストが先にコミットした
			_ = tx.Rollback()
			existing, getErr := s.repo.GetByIdempotencyKey(ctx, input.IdempotencyKey)
			if getErr == nil {
				return existing, nil
			}
		}
		return reservation.Reservation{}, err
	}
	if err := lockHeld(ctx); err != nil {
		return reservation.Reservation{}, err
	}
	if err := tx.Commit(); err != nil {
		return reservation.Reservation{}, apperror.Infrastructure("コミットに失敗しました", err)
	}
	committed = true

	s.afterCommit(ctx, reservation.EventCreate, res)
	return res, nil
}

// ConfirmReservation は PENDING → CONFIRMED（支払い完了）
// 同じ客室の有効な予約と重ならないことを確定前に再確認する
func (s *ReservationService) ConfirmReservation(ctx context.Context, id string) (reservation.Reservation, error) {
	return s.transition(ctx, "confirm", id, reservation.EventConfirm,
		func(ctx context.Context, tx transaction.Tx, cur reservation.Reservation, now time.Time) (reservation.Reservation, error) {
			holding, err := s.repo.ListHoldingByRoom(ctx, tx, cur.RoomID, cur.Stay)
			if err != nil {
				return cur, fmt.Errorf("既存予約の取得に失敗: %w", err)
			}
			if err := overlap.FindConflict(cur.RoomID, cur.Stay, holding, cur.ID); err != nil {
				return cur, err
			}
			return s.machine.Confirm(cur, now)
		})
}

// CheckIn は CONFIRMED → CHECKED_IN
func (s *ReservationService) CheckIn(ctx context.Context, id string) (reservation.Reservation, error) {
	return s.transition(ctx, "check_in", id, reservation.EventCheckIn,
		func(_ context.Context, _ transaction.Tx, cur reservation.Reservation, now time.Time) (reservation.Reservation, error) {
			return s.machine.CheckIn(cur, now)
		})
}

// CheckOut は CHECKED_IN → CHECKED_OUT。早めの退室なら残りの泊を解放する
func (s *ReservationService) CheckOut(ctx context.Context, id string) (reservation.Reservation, error) {
	return s.transition(ctx, "check_out", id, reservation.EventCheckOut,
		func(ctx context.Context, tx transaction.Tx, cur reservation.Reservation, now time.Time) (reservation.Reservation, error) {
			next, err := s.machine.CheckOut(cur, now)
			if err != nil {
				return cur, err
			}
			if err := s.releaseRemaining(ctx, tx, cur, now); err != nil {
				return cur, err
			}
			return next, nil
		})
}

// MarkNoShow は CONFIRMED → NO_SHOW。残りの泊を解放する
func (s *ReservationService) MarkNoShow(ctx context.Context, id string) (reservation.Reservation, error) {
	return s.transition(ctx, "no_show", id, reservation.EventMarkNoShow,
		func(ctx context.Context, tx transaction.Tx, cur reservation.Reservation, now time.Time) (reservation.Reservation, error) {
			next, err := s.machine.MarkNoShow(cur, now)
			if err != nil {
				return cur, err
			}
			if err := s.releaseRemaining(ctx, tx, cur, now); err != nil {
				return cur, err
			}
			return next, nil
		})
}

// CompleteReservation は CHECKED_OUT → COMPLETED
func (s *ReservationService) CompleteReservation(ctx context.Context, id string) (reservation.Reservation, error) {
	return s.transition(ctx, "complete", id, reservation.EventComplete,
		func(_ context.Context, _ transaction.Tx, cur reservation.Reservation, now time.Time) (reservation.Reservation, error) {
			return s.machine.Complete(cur, now)
		})
}

// CancelReservation は PENDING/CONFIRMED → CANCELLED
// 返金額はキャンセルポリシーで計算し、在庫の解放と同じトランザクションで確定する
func (s *ReservationService) CancelReservation(ctx context.Context, id string, reason reservation.CancellationReason) (CancellationResult, error) {
	if reason == "" {
		reason = reservation.ReasonGuestRequest
	}
	var quote policy.RefundBreakdown
	res, err := s.transition(ctx, "cancel", id, reservation.EventCancel,
		func(ctx context.Context, tx transaction.Tx, cur reservation.Reservation, now time.Time) (reservation.Reservation, error) {
			quote = s.quote(cur, reason, now)
			refund := decimal.Zero
			if cur.IsPaid() {
				refund = quote.NetRefund
			}
			next, err := s.machine.Cancel(cur, now, reason, refund)
			if err != nil {
				return cur, err
			}
			if err := s.store.Release(ctx, tx, cur.RoomID, cur.Stay, 1); err != nil {
				return cur, fmt.Errorf("在庫の解放に失敗: %w", err)
			}
			return next, nil
		})
	if err != nil {
		return CancellationResult{}, err
	}
	refund, _ := res.RefundAmount.Float64()
	s.metrics.AddRefund(refund)
	return CancellationResult{Reservation: res, Refund: quote, RefundDue: res.RefundAmount}, nil
}

// CalculateRefund は今キャンセルした場合の返金額を計算する（状態は変更しない）
func (s *ReservationService) CalculateRefund(ctx context.Context, id string, reason reservation.CancellationReason) (policy.RefundBreakdown, error) {
	res, err := s.GetReservation(ctx, id)
	if err != nil {
		return policy.RefundBreakdown{}, err
	}
	if !reservation.CanFire(res.Status, reservation.EventCancel) {
		return policy.RefundBreakdown{}, &reservation.InvalidTransitionError{From: res.Status, Event: reservation.EventCancel}
	}
	if reason == "" {
		reason = reservation.ReasonGuestRequest
	}
	return s.quote(res, reason, s.clock.Now()), nil
}

// GetReservation はキャッシュ経由で予約を取得する。インフラ障害のみ再試行する
func (s *ReservationService) GetReservation(ctx context.Context, id string) (reservation.Reservation, error) {
	var res reservation.Reservation
	err := retryRead(ctx, func() error {
		var err error
		res, err = s.readReservation(ctx, id)
		return err
	})
	return res, err
}

func (s *ReservationService) readReservation(ctx context.Context, id string) (reservation.Reservation, error) {
	if s.cache == nil {
		return s.repo.GetByID(ctx, id)
	}
	return cache.ReadThrough(ctx, s.cache, cache.ReservationKey(id), func(ctx context.Context) (reservation.Reservation, error) {
		return s.repo.GetByID(ctx, id)
	})
}

// GetReservationByCode は確認コードから予約を取得する
func (s *ReservationService) GetReservationByCode(ctx context.Context, code string) (reservation.Reservation, error) {
	var res reservation.Reservation
	err := retryRead(ctx, func() error {
		var err error
		res, err = s.repo.GetByConfirmationCode(ctx, code)
		return err
	})
	return res, err
}

// ListGuestReservations はゲストの予約を新しい順に取得する
func (s *ReservationService) ListGuestReservations(ctx context.Context, guestID string, limit, offset int) ([]reservation.Reservation, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if offset < 0 {
		offset = 0
	}
	var list []reservation.Reservation
	err := retryRead(ctx, func() error {
		var err error
		list, err = s.repo.ListByGuest(ctx, guestID, limit, offset)
		return err
	})
	return list, err
}

// WarmReservations は予約をキャッシュに読み込み、読み込めた件数を返す
func (s *ReservationService) WarmReservations(ctx context.Context, ids []string) int {
	if s.cache == nil {
		return 0
	}
	keys := make([]cache.Key, len(ids))
	for i, id := range ids {
		keys[i] = cache.ReservationKey(id)
	}
	return s.cache.Warm(ctx, keys)
}

// CancelExpiredReservations は作成から expireAfter を過ぎた PENDING の予約を取り消す
func (s *ReservationService) CancelExpiredReservations(ctx context.Context, expireAfter time.Duration) (int, error) {
	before := s.clock.Now().Add(-expireAfter)
	expired, err := s.repo.ListExpiredPending(ctx, before, sweepBatchSize)
	if err != nil {
		return 0, fmt.Errorf("期限切れ予約の取得に失敗: %w", err)
	}

	cancelled := 0
	for _, r := range expired {
		if ctx.Err() != nil {
			return cancelled, ctx.Err()
		}
		if _, err := s.CancelReservation(ctx, r.ID, reservation.ReasonExpired); err != nil {
			// 確認済みへの遷移と競合した場合など
			logger.Warn("期限切れ予約の取消に失敗しました", logger.ReservationID(r.ID), zap.Error(err))
			continue
		}
		cancelled++
	}
	return cancelled, nil
}

// MarkNoShows はチェックイン日を過ぎてもチェックインしていない予約を NO_SHOW にする
func (s *ReservationService) MarkNoShows(ctx context.Context) (int, error) {
	today := stay.Today(s.clock.Now(), s.machine.Location())
	candidates, err := s.repo.ListNoShowCandidates(ctx, today, sweepBatchSize)
	if err != nil {
		return 0, fmt.Errorf("ノーショー候補の取得に失敗: %w", err)
	}

	marked := 0
	for _, r := range candidates {
		if ctx.Err() != nil {
			return marked, ctx.Err()
		}
		if _, err := s.MarkNoShow(ctx, r.ID); err != nil {
			logger.Warn("ノーショーの記録に失敗しました", logger.ReservationID(r.ID), zap.Error(err))
			continue
		}
		marked++
	}
	return marked, nil
}

type applyFunc func(ctx context.Context, tx transaction.Tx, cur reservation.Reservation, now time.Time) (reservation.Reservation, error)

// transition は客室ロックとトランザクションの中で最新の予約に遷移を適用する
func (s *ReservationService) transition(ctx context.Context, op, id string, ev reservation.Event, apply applyFunc) (res reservation.Reservation, err error) {
	defer func() { s.metrics.ObserveOperation(op, resultOf(err)) }()

	// ロック対象の客室を知るための読み込み（判定はロック後に読み直した値で行う）
	current, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return reservation.Reservation{}, err
	}

	ctx, unlock, err := s.lockRoom(ctx, current.RoomID)
	if err != nil {
		return reservation.Reservation{}, err
	}
	defer unlock()

	var next reservation.Reservation
	err = transaction.Run(ctx, s.txm, func(tx transaction.Tx) error {
		cur, err := s.repo.GetByIDForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		next, err = apply(ctx, tx, cur, s.clock.Now())
		if err != nil {
			return err
		}
		if err := s.repo.Update(ctx, tx, next); err != nil {
			return err
		}
		return lockHeld(ctx)
	})
	if err != nil {
		if ev.ReleasesInventory() {
			s.discardNights(ctx, current.RoomID, current.Stay)
		}
		return reservation.Reservation{}, err
	}

	s.afterCommit(ctx, ev, next)
	return next, nil
}

// releaseRemaining は今日以降の未使用の泊を解放する
func (s *ReservationService) releaseRemaining(ctx context.Context, tx transaction.Tx, r reservation.Reservation, now time.Time) error {
	today := stay.Today(now, s.machine.Location())
	remaining, ok := r.Stay.Intersect(stay.DateRange{CheckIn: today, CheckOut: r.Stay.CheckOut})
	if !ok {
		return nil
	}
	if err := s.store.Release(ctx, tx, r.RoomID, remaining, 1); err != nil {
		return fmt.Errorf("在庫の解放に失敗: %w", err)
	}
	return nil
}

func (s *ReservationService) quote(r reservation.Reservation, reason reservation.CancellationReason, now time.Time) policy.RefundBreakdown {
	start := stay.StartOfDay(r.Stay.CheckIn, s.machine.Location())
	if reason.WaivesPolicy() {
		return s.policy.FullRefund(r.TotalAmount, start, now)
	}
	return s.policy.Calculate(r.TotalAmount, start, now)
}

// afterCommit はコミット済みの変更を反映する。呼び出し元のキャンセルでは中断しない
func (s *ReservationService) afterCommit(ctx context.Context, ev reservation.Event, r reservation.Reservation) {
	ctx = context.WithoutCancel(ctx)
	if s.cache != nil {
		// 失敗は Coordinator が警告ログに残す
		_ = s.cache.Invalidate(ctx, cache.KeysForStay(r.RoomID, r.Stay, r.ID)...)
	}
	if s.events != nil {
		if err := s.events.Publish(ctx, reservation.NewDomainEvent(ev, r)); err != nil {
			logger.Warn("ドメインイベントを送信できませんでした",
				logger.ReservationID(r.ID), zap.String("event", string(ev)), zap.Error(err))
		}
	}
	logger.Info("予約の状態を更新しました",
		logger.ReservationID(r.ID),
		logger.RoomID(r.RoomID),
		zap.String("event", string(ev)),
		zap.String("status", string(r.Status)),
	)
}

// discardNights はロールバックした在庫変更の途中を読んだキャッシュを捨てる
func (s *ReservationService) discardNights(ctx context.Context, roomID string, r stay.DateRange) {
	if s.cache == nil {
		return
	}
	_ = s.cache.Invalidate(context.WithoutCancel(ctx), cache.NightKeys(roomID, r)...)
}

// lockRoom は客室ロックを取得する。返す ctx はロックを失うと取り消される
func (s *ReservationService) lockRoom(ctx context.Context, roomID string) (context.Context, func(), error) {
	return acquireRoomLock(ctx, s.locks, roomID, s.lockOpts, s.metrics)
}

// retryRead は読み取りをインフラ障害の場合のみ指数バックオフで再試行する
func retryRead(ctx context.Context, read func() error) error {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = 20 * time.Millisecond
	eb.MaxElapsedTime = time.Second
	b := backoff.WithContext(backoff.WithMaxRetries(eb, 3), ctx)

	return backoff.Retry(func() error {
		err := read()
		if err != nil && !apperror.IsRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}, b)
}

// resultOf はメトリクスのラベル用にエラーを分類する
func resultOf(err error) string {
	if err == nil {
		return "success"
	}
	switch apperror.KindOf(err) {
	case apperror.ErrValidation:
		return "validation"
	case apperror.ErrConflict:
		return "conflict"
	case apperror.ErrInvalidState:
		return "invalid_state"
	case apperror.ErrNotFound:
		return "not_found"
	case apperror.ErrInfrastructure:
		return "infrastructure"
	default:
		return "error"
	}
}
