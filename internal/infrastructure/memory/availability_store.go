package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/SongJunSub/Reservation-sub005/internal/domain/availability"
	"github.com/SongJunSub/Reservation-sub005/internal/domain/stay"
	"github.com/SongJunSub/Reservation-sub005/internal/domain/transaction"
)

// roomInventory は1客室分の在庫。mu で客室単位に直列化する
type roomInventory struct {
	mu     sync.Mutex
	nights map[string]*availability.Record
}

// AvailabilityStore はプロセス内の availability.Store 実装
type AvailabilityStore struct {
	mu    sync.RWMutex
	rooms map[string]*roomInventory
}

func NewAvailabilityStore() *AvailabilityStore {
	return &AvailabilityStore{rooms: make(map[string]*roomInventory)}
}

func (s *AvailabilityStore) room(roomID string, create bool) *roomInventory {
	s.mu.RLock()
	inv, ok := s.rooms[roomID]
	s.mu.RUnlock()
	if ok || !create {
		return inv
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if inv, ok = s.rooms[roomID]; !ok {
		inv = &roomInventory{nights: make(map[string]*availability.Record)}
		s.rooms[roomID] = inv
	}
	return inv
}

// Setup は在庫レコードを登録する
func (s *AvailabilityStore) Setup(ctx context.Context, records []*availability.Record) error {
	for _, rec := range records {
		if err := rec.Validate(); err != nil {
			return err
		}
	}
	for _, rec := range records {
		inv := s.room(rec.RoomID, true)
		if err := inv.upsert(rec); err != nil {
			return err
		}
	}
	return nil
}

func (inv *roomInventory) upsert(rec *availability.Record) error {
	inv.mu.Lock()
	defer inv.mu.Unlock()

	key := stay.FormatDate(rec.Date)
	cur, ok := inv.nights[key]
	if !ok {
		copied := *rec
		copied.Date = stay.Date(rec.Date)
		copied.UpdatedAt = time.Now()
		inv.nights[key] = &copied
		return nil
	}

	held := cur.TotalUnits - cur.AvailableUnits
	if rec.TotalUnits < held {
		return fmt.Errorf("%w: %s", availability.ErrUnitsBelowHeld, key)
	}
	cur.TotalUnits = rec.TotalUnits
	cur.AvailableUnits = rec.TotalUnits - held
	cur.MinRate = rec.MinRate
	cur.MaxRate = rec.MaxRate
	cur.Version++
	cur.UpdatedAt = time.Now()
	return nil
}

// Get は区間の在庫レコードを日付順に返す（未登録の日は含まない）
func (s *AvailabilityStore) Get(ctx context.Context, roomID string, r stay.DateRange) ([]*availability.Record, error) {
	inv := s.room(roomID, false)
	if inv == nil {
		return []*availability.Record{}, nil
	}
	inv.mu.Lock()
	defer inv.mu.Unlock()

	records := make([]*availability.Record, 0, r.Nights())
	for _, d := range r.Dates() {
		if rec, ok := inv.nights[stay.FormatDate(d)]; ok {
			copied := *rec
			records = append(records, &copied)
		}
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Date.Before(records[j].Date) })
	return records, nil
}

// nightsFor は区間の全泊のレコードを返す。1泊でも未登録なら ErrInventoryNotSetUp
func (inv *roomInventory) nightsFor(r stay.DateRange) ([]*availability.Record, error) {
	dates := r.Dates()
	recs := make([]*availability.Record, 0, len(dates))
	for _, d := range dates {
		rec, ok := inv.nights[stay.FormatDate(d)]
		if !ok {
			return nil, fmt.Errorf("%w: %s", availability.ErrInventoryNotSetUp, stay.FormatDate(d))
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

// Reserve は区間の全泊から units 室を確保する。1泊でも不足すれば何も変更しない
func (s *AvailabilityStore) Reserve(ctx context.Context, tx transaction.Tx, roomID string, r stay.DateRange, units int) (availability.Hold, error) {
	if err := availability.ValidateRequest(roomID, r, units); err != nil {
		return availability.Hold{}, err
	}
	t, err := unwrapTx(tx)
	if err != nil {
		return availability.Hold{}, err
	}
	inv := s.room(roomID, false)
	if inv == nil {
		return availability.Hold{}, availability.ErrInventoryNotSetUp
	}

	inv.mu.Lock()
	defer inv.mu.Unlock()

	recs, err := inv.nightsFor(r)
	if err != nil {
		return availability.Hold{}, err
	}
	for _, rec := range recs {
		if rec.Override.IsOverride() {
			return availability.Hold{}, fmt.Errorf("%w: %s", availability.ErrRoomNotSellable, stay.FormatDate(rec.Date))
		}
		if !rec.CanReserve(units) {
			return availability.Hold{}, fmt.Errorf("%w: %s", availability.ErrRoomUnavailable, stay.FormatDate(rec.Date))
		}
	}
	for _, rec := range recs {
		// 事前に検査済みのため失敗しない
		_ = rec.Reserve(units)
	}

	t.onRollback(func() {
		inv.mu.Lock()
		defer inv.mu.Unlock()
		for _, rec := range recs {
			_ = rec.Release(units)
		}
	})
	return availability.Hold{RoomID: roomID, Stay: r, Units: units}, nil
}

// Release は確保を戻す。1泊でも戻せなければ何も変更しない
func (s *AvailabilityStore) Release(ctx context.Context, tx transaction.Tx, roomID string, r stay.DateRange, units int) error {
	if err := availability.ValidateRequest(roomID, r, units); err != nil {
		return err
	}
	t, err := unwrapTx(tx)
	if err != nil {
		return err
	}
	inv := s.room(roomID, false)
	if inv == nil {
		return availability.ErrHoldNotFound
	}

	inv.mu.Lock()
	defer inv.mu.Unlock()

	recs, err := inv.nightsFor(r)
	if err != nil {
		return fmt.Errorf("%w: %v", availability.ErrHoldNotFound, err)
	}
	for _, rec := range recs {
		if rec.AvailableUnits+units > rec.TotalUnits {
			return fmt.Errorf("%w: %s", availability.ErrHoldNotFound, stay.FormatDate(rec.Date))
		}
	}
	for _, rec := range recs {
		_ = rec.Release(units)
	}

	t.onRollback(func() {
		inv.mu.Lock()
		defer inv.mu.Unlock()
		for _, rec := range recs {
			rec.AvailableUnits -= units
			rec.Version++
		}
	})
	return nil
}

// SetOverride は区間の全泊に手動の販売状態を設定する（空文字で解除）
func (s *AvailabilityStore) SetOverride(ctx context.Context, tx transaction.Tx, roomID string, r stay.DateRange, status availability.Status) error {
	if status != "" && !status.IsOverride() {
		return availability.ErrInvalidOverride
	}
	if !r.IsValid() {
		return availability.ErrInvalidRange
	}
	t, err := unwrapTx(tx)
	if err != nil {
		return err
	}
	inv := s.room(roomID, false)
	if inv == nil {
		return availability.ErrInventoryNotSetUp
	}

	inv.mu.Lock()
	defer inv.mu.Unlock()

	recs, err := inv.nightsFor(r)
	if err != nil {
		return err
	}
	prev := make([]availability.Status, len(recs))
	for i, rec := range recs {
		prev[i] = rec.Override
		rec.Override = status
		rec.Version++
		rec.UpdatedAt = time.Now()
	}

	t.onRollback(func() {
		inv.mu.Lock()
		defer inv.mu.Unlock()
		for i, rec := range recs {
			rec.Override = prev[i]
			rec.Version++
		}
	})
	return nil
}
