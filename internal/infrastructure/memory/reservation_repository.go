package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/SongJunSub/Reservation-sub005/internal/domain/reservation"
	"github.com/SongJunSub/Reservation-sub005/internal/domain/stay"
	"github.com/SongJunSub/Reservation-sub005/internal/domain/transaction"
)

// ReservationRepository はプロセス内の reservation.Repository 実装
type ReservationRepository struct {
	mu        sync.RWMutex
	byID      map[string]reservation.Reservation
	byCode    map[string]string
	byIdemKey map[string]string
}

func NewReservationRepository() *ReservationRepository {
	return &ReservationRepository{
		byID:      make(map[string]reservation.Reservation),
		byCode:    make(map[string]string),
		byIdemKey: make(map[string]string),
	}
}

// Create は予約を保存する
func (r *ReservationRepository) Create(ctx context.Context, tx transaction.Tx, res reservation.Reservation) error {
	t, err := unwrapTx(tx)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if res.IdempotencyKey != "" {
		if _, ok := r.byIdemKey[res.IdempotencyKey]; ok {
			return reservation.ErrIdempotencyKeyAlreadyExists
		}
	}
	r.byID[res.ID] = res
	r.byCode[res.ConfirmationCode] = res.ID
	if res.IdempotencyKey != "" {
		r.byIdemKey[res.IdempotencyKey] = res.ID
	}

	t.onRollback(func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.byID, res.ID)
		delete(r.byCode, res.ConfirmationCode)
		if res.IdempotencyKey != "" {
			delete(r.byIdemKey, res.IdempotencyKey)
		}
	})
	return nil
}

// Update は保存済みのバージョンが res.Version-1 の場合のみ更新する
func (r *ReservationRepository) Update(ctx context.Context, tx transaction.Tx, res reservation.Reservation) error {
	t, err := unwrapTx(tx)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	prev, ok := r.byID[res.ID]
	if !ok {
		return reservation.ErrReservationNotFound
	}
	if prev.Version != res.Version-1 {
		return reservation.ErrConcurrentModification
	}
	r.byID[res.ID] = res

	t.onRollback(func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.byID[res.ID] = prev
	})
	return nil
}

func (r *ReservationRepository) GetByID(ctx context.Context, id string) (reservation.Reservation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res, ok := r.byID[id]
	if !ok {
		return reservation.Reservation{}, reservation.ErrReservationNotFound
	}
	return res, nil
}

// GetByIDForUpdate は GetByID と同じ（同じ客室の更新は客室ロックで直列化される）
func (r *ReservationRepository) GetByIDForUpdate(ctx context.Context, tx transaction.Tx, id string) (reservation.Reservation, error) {
	if _, err := unwrapTx(tx); err != nil {
		return reservation.Reservation{}, err
	}
	return r.GetByID(ctx, id)
}

func (r *ReservationRepository) GetByConfirmationCode(ctx context.Context, code string) (reservation.Reservation, error) {
	r.mu.RLock()
	id, ok := r.byCode[code]
	r.mu.RUnlock()
	if !ok {
		return reservation.Reservation{}, reservation.ErrReservationNotFound
	}
	return r.GetByID(ctx, id)
}

func (r *ReservationRepository) GetByIdempotencyKey(ctx context.Context, key string) (reservation.Reservation, error) {
	r.mu.RLock()
	id, ok := r.byIdemKey[key]
	r.mu.RUnlock()
	if !ok || key == "" {
		return reservation.Reservation{}, reservation.ErrReservationNotFound
	}
	return r.GetByID(ctx, id)
}

func (r *ReservationRepository) ListHoldingByRoom(ctx context.Context, tx transaction.Tx, roomID string, rng stay.DateRange) ([]reservation.Reservation, error) {
	return r.filter(func(res reservation.Reservation) bool {
		return res.RoomID == roomID && res.Status.HoldsInventory() && res.Stay.Overlaps(rng)
	}, byCheckIn, 0), nil
}

func (r *ReservationRepository) ListByGuest(ctx context.Context, guestID string, limit, offset int) ([]reservation.Reservation, error) {
	all := r.filter(func(res reservation.Reservation) bool {
		return res.GuestID == guestID
	}, newestFirst, 0)
	if offset >= len(all) {
		return []reservation.Reservation{}, nil
	}
	all = all[offset:]
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func (r *ReservationRepository) ListExpiredPending(ctx context.Context, before time.Time, limit int) ([]reservation.Reservation, error) {
	return r.filter(func(res reservation.Reservation) bool {
		return res.Status == reservation.StatusPending && res.CreatedAt.Before(before)
	}, oldestFirst, limit), nil
}

func (r *ReservationRepository) ListNoShowCandidates(ctx context.Context, today time.Time, limit int) ([]reservation.Reservation, error) {
	return r.filter(func(res reservation.Reservation) bool {
		return res.Status == reservation.StatusConfirmed && res.CheckedInAt == nil && res.Stay.CheckIn.Before(today)
	}, byCheckIn, limit), nil
}

func byCheckIn(a, b reservation.Reservation) bool   { return a.Stay.CheckIn.Before(b.Stay.CheckIn) }
func oldestFirst(a, b reservation.Reservation) bool { return a.CreatedAt.Before(b.CreatedAt) }
func newestFirst(a, b reservation.Reservation) bool { return a.CreatedAt.After(b.CreatedAt) }

func (r *ReservationRepository) filter(match func(reservation.Reservation) bool, less func(a, b reservation.Reservation) bool, limit int) []reservation.Reservation {
	r.mu.RLock()
	out := make([]reservation.Reservation, 0)
	for _, res := range r.byID {
		if match(res) {
			out = append(out, res)
		}
	}
	r.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool { return less(out[i], out[j]) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
