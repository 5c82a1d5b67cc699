package application

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/SongJunSub/Reservation-sub005/internal/cache"
	"github.com/SongJunSub/Reservation-sub005/internal/domain/availability"
	"github.com/SongJunSub/Reservation-sub005/internal/domain/lock"
	"github.com/SongJunSub/Reservation-sub005/internal/domain/stay"
	"github.com/SongJunSub/Reservation-sub005/internal/domain/transaction"
	"github.com/SongJunSub/Reservation-sub005/internal/pkg/logger"
	"github.com/SongJunSub/Reservation-sub005/internal/pkg/metrics"
)

// AvailabilityService は客室在庫の登録・販売停止・照会を扱う
type AvailabilityService struct {
	txm      transaction.Manager
	store    availability.Store
	locks    lock.Manager
	cache    *cache.Coordinator
	metrics  *metrics.Metrics
	lockOpts lock.RetryOptions
}

// NewAvailabilityService は AvailabilityService を作成する（locks, c, m は nil 可）
func NewAvailabilityService(txm transaction.Manager, store availability.Store, locks lock.Manager, c *cache.Coordinator, m *metrics.Metrics, lockOpts lock.RetryOptions) *AvailabilityService {
	s := &AvailabilityService{txm: txm, store: store, locks: locks, cache: c, metrics: m, lockOpts: lockOpts}
	if c != nil {
		c.RegisterLoader(cache.EntityAvailability, s.loadNight)
	}
	return s
}

// NightAvailability は1泊分の在庫の照会結果
type NightAvailability struct {
	Date           time.Time           `json:"date"`
	Status         availability.Status `json:"status"`
	AvailableUnits int                 `json:"available_units"`
	TotalUnits     int                 `json:"total_units"`
	MinRate        decimal.Decimal     `json:"min_rate"`
	MaxRate        decimal.Decimal     `json:"max_rate"`
}

func nightFromRecord(r *availability.Record) NightAvailability {
	return NightAvailability{
		Date:           r.Date,
		Status:         r.Status(),
		AvailableUnits: r.AvailableUnits,
		TotalUnits:     r.TotalUnits,
		MinRate:        r.MinRate,
		MaxRate:        r.MaxRate,
	}
}

// SetupInventoryInput は在庫登録の入力
type SetupInventoryInput struct {
	RoomID     string
	From       time.Time
	To         time.Time // この日を含まない
	TotalUnits int
	MinRate    decimal.Decimal
	MaxRate    decimal.Decimal
}

// SetupInventory は区間の各泊に在庫レコードを登録し、登録した泊数を返す
func (s *AvailabilityService) SetupInventory(ctx context.Context, input SetupInventoryInput) (n int, err error) {
	defer func() { s.metrics.ObserveOperation("setup_inventory", resultOf(err)) }()

	r := stay.NewDateRange(input.From, input.To)
	if input.RoomID == "" {
		return 0, availability.ErrRoomIDRequired
	}
	if !r.IsValid() {
		return 0, availability.ErrInvalidRange
	}
	records := make([]*availability.Record, 0, r.Nights())
	for _, d := range r.Dates() {
		rec := availability.NewRecord(input.RoomID, d, input.TotalUnits, input.MinRate, input.MaxRate)
		if err := rec.Validate(); err != nil {
			return 0, err
		}
		records = append(records, rec)
	}

	ctx, unlock, err := acquireRoomLock(ctx, s.locks, input.RoomID, s.lockOpts, s.metrics)
	if err != nil {
		return 0, err
	}
	defer unlock()

	if err := lockHeld(ctx); err != nil {
		return 0, err
	}
	if err := s.store.Setup(ctx, records); err != nil {
		return 0, err
	}
	s.invalidate(ctx, input.RoomID, r)
	logger.Info("在庫を登録しました",
		logger.RoomID(input.RoomID), zap.Stringer("range", r), zap.Int("total_units", input.TotalUnits))
	return len(records), nil
}

// BlockRoom は区間を BLOCKED または MAINTENANCE にして販売を止める
func (s *AvailabilityService) BlockRoom(ctx context.Context, roomID string, from, to time.Time, status availability.Status) error {
	if !status.IsOverride() {
		return availability.ErrInvalidOverride
	}
	return s.setOverride(ctx, "block_room", roomID, stay.NewDateRange(from, to), status)
}

// UnblockRoom は手動の販売状態を解除する
func (s *AvailabilityService) UnblockRoom(ctx context.Context, roomID string, from, to time.Time) error {
	return s.setOverride(ctx, "unblock_room", roomID, stay.NewDateRange(from, to), "")
}

func (s *AvailabilityService) setOverride(ctx context.Context, op, roomID string, r stay.DateRange, status availability.Status) (err error) {
	defer func() { s.metrics.ObserveOperation(op, resultOf(err)) }()

	if roomID == "" {
		return availability.ErrRoomIDRequired
	}
	if !r.IsValid() {
		return availability.ErrInvalidRange
	}

	ctx, unlock, err := acquireRoomLock(ctx, s.locks, roomID, s.lockOpts, s.metrics)
	if err != nil {
		return err
	}
	defer unlock()

	if err := transaction.Run(ctx, s.txm, func(tx transaction.Tx) error {
		if err := s.store.SetOverride(ctx, tx, roomID, r, status); err != nil {
			return err
		}
		return lockHeld(ctx)
	}); err != nil {
		// 取り消した変更を読んだ値がキャッシュに残らないようにする
		s.invalidate(ctx, roomID, r)
		return err
	}

	s.invalidate(ctx, roomID, r)
	logger.Info("販売状態を変更しました",
		logger.RoomID(roomID), zap.Stringer("range", r), zap.String("override", string(status)))
	return nil
}

// GetAvailability は区間の各泊の在庫を返す。キャッシュにない泊だけストアから読む
// 在庫が登録されていない泊は結果に含めない
func (s *AvailabilityService) GetAvailability(ctx context.Context, roomID string, from, to time.Time) ([]NightAvailability, error) {
	r := stay.NewDateRange(from, to)
	if roomID == "" {
		return nil, availability.ErrRoomIDRequired
	}
	if !r.IsValid() {
		return nil, availability.ErrInvalidRange
	}

	dates := r.Dates()
	nights := make([]*NightAvailability, len(dates))
	var missing []int
	for i, d := range dates {
		if n, ok := s.cachedNight(ctx, roomID, d); ok {
			nights[i] = &n
			continue
		}
		missing = append(missing, i)
	}

	if len(missing) > 0 {
		var guard cache.Guard
		if s.cache != nil {
			keys := make([]cache.Key, len(missing))
			for j, i := range missing {
				keys[j] = cache.NightKey(roomID, dates[i])
			}
			guard = s.cache.Guard(ctx, keys...)
		}
		var records []*availability.Record
		err := retryRead(ctx, func() error {
			var err error
			records, err = s.store.Get(ctx, roomID, r)
			return err
		})
		if err != nil {
			return nil, err
		}
		byDate := make(map[string]*availability.Record, len(records))
		for _, rec := range records {
			byDate[stay.FormatDate(rec.Date)] = rec
		}
		for _, i := range missing {
			rec, ok := byDate[stay.FormatDate(dates[i])]
			if !ok {
				continue
			}
			n := nightFromRecord(rec)
			nights[i] = &n
			if s.cache != nil {
				s.cache.StoreGuarded(ctx, cache.NightKey(roomID, dates[i]), n, guard)
			}
		}
	}

	out := make([]NightAvailability, 0, len(nights))
	for _, n := range nights {
		if n != nil {
			out = append(out, *n)
		}
	}
	return out, nil
}

// WarmAvailability は区間の各泊をキャッシュに読み込み、読み込めた件数を返す
func (s *AvailabilityService) WarmAvailability(ctx context.Context, roomID string, from, to time.Time) int {
	if s.cache == nil {
		return 0
	}
	return s.cache.Warm(ctx, cache.NightKeys(roomID, stay.NewDateRange(from, to)))
}

func (s *AvailabilityService) cachedNight(ctx context.Context, roomID string, date time.Time) (NightAvailability, bool) {
	if s.cache == nil {
		return NightAvailability{}, false
	}
	raw, ok := s.cache.Get(ctx, cache.NightKey(roomID, date))
	if !ok {
		return NightAvailability{}, false
	}
	var n NightAvailability
	if err := json.Unmarshal(raw, &n); err != nil {
		return NightAvailability{}, false
	}
	return n, true
}

// loadNight はキャッシュキーの ID（客室ID:日付）から1泊分を読み込む
func (s *AvailabilityService) loadNight(ctx context.Context, id string) (any, error) {
	i := strings.LastIndex(id, ":")
	if i < 0 {
		return nil, fmt.Errorf("在庫キーの形式が不正です: %q", id)
	}
	date, err := stay.ParseDate(id[i+1:])
	if err != nil {
		return nil, err
	}
	roomID := id[:i]
	records, err := s.store.Get(ctx, roomID, stay.NewDateRange(date, date.AddDate(0, 0, 1)))
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: %s %s", availability.ErrInventoryNotSetUp, roomID, stay.FormatDate(date))
	}
	return nightFromRecord(records[0]), nil
}

func (s *AvailabilityService) invalidate(ctx context.Context, roomID string, r stay.DateRange) {
	if s.cache == nil {
		return
	}
	_ = s.cache.Invalidate(context.WithoutCancel(ctx), cache.NightKeys(roomID, r)...)
}
