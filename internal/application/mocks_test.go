package application

import (
	"context"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/SongJunSub/Reservation-sub005/internal/domain/availability"
	"github.com/SongJunSub/Reservation-sub005/internal/domain/lock"
	"github.com/SongJunSub/Reservation-sub005/internal/domain/reservation"
	"github.com/SongJunSub/Reservation-sub005/internal/domain/stay"
	"github.com/SongJunSub/Reservation-sub005/internal/domain/transaction"
)

// === Mock implementations ===

// MockTxManager implements transaction.Manager
type MockTxManager struct {
	mock.Mock
}

func (m *MockTxManager) Begin(ctx context.Context) (transaction.Tx, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(transaction.Tx), args.Error(1)
}

// MockTx implements transaction.Tx
type MockTx struct {
	mock.Mock
}

func (m *MockTx) Commit() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockTx) Rollback() error {
	args := m.Called()
	return args.Error(0)
}

// MockReservationRepository implements reservation.Repository
type MockReservationRepository struct {
	mock.Mock
}

func (m *MockReservationRepository) Create(ctx context.Context, tx transaction.Tx, r reservation.Reservation) error {
	args := m.Called(ctx, tx, r)
	return args.Error(0)
}

func (m *MockReservationRepository) Update(ctx context.Context, tx transaction.Tx, r reservation.Reservation) error {
	args := m.Called(ctx, tx, r)
	return args.Error(0)
}

func (m *MockReservationRepository) GetByID(ctx context.Context, id string) (reservation.Reservation, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(reservation.Reservation), args.Error(1)
}

func (m *MockReservationRepository) GetByIDForUpdate(ctx context.Context, tx transaction.Tx, id string) (reservation.Reservation, error) {
	args := m.Called(ctx, tx, id)
	return args.Get(0).(reservation.Reservation), args.Error(1)
}

func (m *MockReservationRepository) GetByConfirmationCode(ctx context.Context, code string) (reservation.Reservation, error) {
	args := m.Called(ctx, code)
	return args.Get(0).(reservation.Reservation), args.Error(1)
}

func (m *MockReservationRepository) GetByIdempotencyKey(ctx context.Context, key string) (reservation.Reservation, error) {
	args := m.Called(ctx, key)
	return args.Get(0).(reservation.Reservation), args.Error(1)
}

func (m *MockReservationRepository) ListHoldingByRoom(ctx context.Context, tx transaction.Tx, roomID string, r stay.DateRange) ([]reservation.Reservation, error) {
	args := m.Called(ctx, tx, roomID, r)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]reservation.Reservation), args.Error(1)
}

func (m *MockReservationRepository) ListByGuest(ctx context.Context, guestID string, limit, offset int) ([]reservation.Reservation, error) {
	args := m.Called(ctx, guestID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]reservation.Reservation), args.Error(1)
}

func (m *MockReservationRepository) ListExpiredPending(ctx context.Context, before time.Time, limit int) ([]reservation.Reservation, error) {
	args := m.Called(ctx, before, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]reservation.Reservation), args.Error(1)
}

func (m *MockReservationRepository) ListNoShowCandidates(ctx context.Context, today time.Time, limit int) ([]reservation.Reservation, error) {
	args := m.Called(ctx, today, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]reservation.Reservation), args.Error(1)
}

// MockAvailabilityStore implements availability.Store
type MockAvailabilityStore struct {
	mock.Mock
}

func (m *MockAvailabilityStore) Setup(ctx context.Context, records []*availability.Record) error {
	args := m.Called(ctx, records)
	return args.Error(0)
}

func (m *MockAvailabilityStore) Get(ctx context.Context, roomID string, r stay.DateRange) ([]*availability.Record, error) {
	args := m.Called(ctx, roomID, r)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*availability.Record), args.Error(1)
}

func (m *MockAvailabilityStore) Reserve(ctx context.Context, tx transaction.Tx, roomID string, r stay.DateRange, units int) (availability.Hold, error) {
	args := m.Called(ctx, tx, roomID, r, units)
	return args.Get(0).(availability.Hold), args.Error(1)
}

func (m *MockAvailabilityStore) Release(ctx context.Context, tx transaction.Tx, roomID string, r stay.DateRange, units int) error {
	args := m.Called(ctx, tx, roomID, r, units)
	return args.Error(0)
}

func (m *MockAvailabilityStore) SetOverride(ctx context.Context, tx transaction.Tx, roomID string, r stay.DateRange, status availability.Status) error {
	args := m.Called(ctx, tx, roomID, r, status)
	return args.Error(0)
}

// MockLockManager implements lock.Manager
type MockLockManager struct {
	mock.Mock
}

func (m *MockLockManager) AcquireLock(ctx context.Context, key string, ttl time.Duration) (lock.Lock, error) {
	args := m.Called(ctx, key, ttl)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(lock.Lock), args.Error(1)
}

// MockLock implements lock.Lock
type MockLock struct {
	mock.Mock
}

func (m *MockLock) Release(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockLock) Extend(ctx context.Context, ttl time.Duration) error {
	args := m.Called(ctx, ttl)
	return args.Error(0)
}

// MockEventSink implements reservation.EventSink
type MockEventSink struct {
	mock.Mock
}

func (m *MockEventSink) Publish(ctx context.Context, e reservation.DomainEvent) error {
	args := m.Called(ctx, e)
	return args.Error(0)
}

// recordingSink は受け取ったイベントを順に記録する
type recordingSink struct {
	mu     sync.Mutex
	events []reservation.DomainEvent
}

func (s *recordingSink) Publish(ctx context.Context, e reservation.DomainEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return nil
}

func (s *recordingSink) Types() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	types := make([]string, len(s.events))
	for i, e := range s.events {
		types[i] = e.Type
	}
	return types
}
