package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/SongJunSub/Reservation-sub005/internal/cache"
	"github.com/SongJunSub/Reservation-sub005/internal/domain/availability"
	"github.com/SongJunSub/Reservation-sub005/internal/domain/lock"
	"github.com/SongJunSub/Reservation-sub005/internal/domain/stay"
	"github.com/SongJunSub/Reservation-sub005/internal/infrastructure/localcache"
	"github.com/SongJunSub/Reservation-sub005/internal/pkg/apperror"
)

var testLockOpts = lock.RetryOptions{TTL: time.Second, MaxRetries: 1, RetryDelay: time.Millisecond, MaxWait: 50 * time.Millisecond}

func newTestRecord(roomID string, date time.Time, total int) *availability.Record {
	return availability.NewRecord(roomID, date, total, decimal.NewFromInt(150000), decimal.NewFromInt(200000))
}

func TestAvailabilityService_SetupInventory(t *testing.T) {
	t.Run("各泊のレコードを登録する", func(t *testing.T) {
		store := new(MockAvailabilityStore)
		store.On("Setup", mock.Anything, mock.MatchedBy(func(recs []*availability.Record) bool {
			return len(recs) == 3 && recs[0].TotalUnits == 2 && recs[2].Date.Equal(jan(12))
		})).Return(nil)

		svc := NewAvailabilityService(new(MockTxManager), store, nil, nil, nil, testLockOpts)
		n, err := svc.SetupInventory(context.Background(), SetupInventoryInput{
			RoomID: "room-101", From: jan(10), To: jan(13), TotalUnits: 2,
			MinRate: decimal.NewFromInt(150000), MaxRate: decimal.NewFromInt(200000),
		})

		require.NoError(t, err)
		assert.Equal(t, 3, n)
		store.AssertExpectations(t)
	})

	tests := []struct {
		name    string
		input   SetupInventoryInput
		wantErr error
	}{
		{"客室IDなし", SetupInventoryInput{From: jan(10), To: jan(11), TotalUnits: 1}, availability.ErrRoomIDRequired},
		{"区間が逆", SetupInventoryInput{RoomID: "room-101", From: jan(11), To: jan(10), TotalUnits: 1}, availability.ErrInvalidRange},
		{"総室数0", SetupInventoryInput{RoomID: "room-101", From: jan(10), To: jan(11), TotalUnits: 0}, availability.ErrInvalidTotalUnits},
		{"料金の上下が逆", SetupInventoryInput{
			RoomID: "room-101", From: jan(10), To: jan(11), TotalUnits: 1,
			MinRate: decimal.NewFromInt(200000), MaxRate: decimal.NewFromInt(100000),
		}, availability.ErrInvalidRate},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := new(MockAvailabilityStore)
			svc := NewAvailabilityService(new(MockTxManager), store, nil, nil, nil, testLockOpts)

			_, err := svc.SetupInventory(context.Background(), tt.input)

			assert.ErrorIs(t, err, tt.wantErr)
			assert.ErrorIs(t, err, apperror.ErrValidation)
			store.AssertNotCalled(t, "Setup", mock.Anything, mock.Anything)
		})
	}
}

func TestAvailabilityService_BlockRoom(t *testing.T) {
	t.Run("ロックとトランザクションの中で変更する", func(t *testing.T) {
		txm := new(MockTxManager)
		tx := new(MockTx)
		store := new(MockAvailabilityStore)
		locks := new(MockLockManager)
		l := new(MockLock)

		locks.On("AcquireLock", mock.Anything, lock.RoomKey("room-101"), time.Second).Return(l, nil)
		l.On("Release", mock.Anything).Return(nil)
		l.On("Extend", mock.Anything, time.Second).Return(nil).Maybe()
		txm.On("Begin", mock.Anything).Return(tx, nil)
		tx.On("Commit").Return(nil)
		tx.On("Rollback").Return(nil).Maybe()
		store.On("SetOverride", mock.Anything, tx, "room-101", stay.NewDateRange(jan(10), jan(12)), availability.StatusMaintenance).Return(nil)

		svc := NewAvailabilityService(txm, store, locks, nil, nil, testLockOpts)
		err := svc.BlockRoom(context.Background(), "room-101", jan(10), jan(12), availability.StatusMaintenance)

		require.NoError(t, err)
		store.AssertExpectations(t)
		tx.AssertExpectations(t)
		l.AssertExpectations(t)
	})

	t.Run("手動設定できない状態は拒否する", func(t *testing.T) {
		store := new(MockAvailabilityStore)
		svc := NewAvailabilityService(new(MockTxManager), store, nil, nil, nil, testLockOpts)

		err := svc.BlockRoom(context.Background(), "room-101", jan(10), jan(12), availability.StatusAvailable)

		assert.ErrorIs(t, err, availability.ErrInvalidOverride)
	})

	t.Run("ストアのエラーではコミットしない", func(t *testing.T) {
		txm := new(MockTxManager)
		tx := new(MockTx)
		store := new(MockAvailabilityStore)

		txm.On("Begin", mock.Anything).Return(tx, nil)
		tx.On("Rollback").Return(nil)
		store.On("SetOverride", mock.Anything, tx, "room-101", mock.Anything, availability.StatusBlocked).
			Return(availability.ErrInventoryNotSetUp)

		svc := NewAvailabilityService(txm, store, nil, nil, nil, testLockOpts)
		err := svc.BlockRoom(context.Background(), "room-101", jan(10), jan(12), availability.StatusBlocked)

		assert.ErrorIs(t, err, availability.ErrInventoryNotSetUp)
		tx.AssertNotCalled(t, "Commit")
		tx.AssertCalled(t, "Rollback")
	})
}

func TestAvailabilityService_GetAvailability(t *testing.T) {
	ctx := context.Background()

	t.Run("2回目はキャッシュから返す", func(t *testing.T) {
		store := new(MockAvailabilityStore)
		store.On("Get", mock.Anything, "room-101", stay.NewDateRange(jan(10), jan(12))).
			Return([]*availability.Record{newTestRecord("room-101", jan(10), 2), newTestRecord("room-101", jan(11), 2)}, nil).Once()

		backend := localcache.New(100)
		defer backend.Close()
		coord := cache.NewCoordinator(backend, cache.Config{TTL: time.Minute}, nil)
		svc := NewAvailabilityService(new(MockTxManager), store, nil, coord, nil, testLockOpts)

		first, err := svc.GetAvailability(ctx, "room-101", jan(10), jan(12))
		require.NoError(t, err)
		second, err := svc.GetAvailability(ctx, "room-101", jan(10), jan(12))
		require.NoError(t, err)

		require.Len(t, second, 2)
		assert.Equal(t, len(first), len(second))
		assert.Equal(t, 2, second[1].AvailableUnits)
		assert.Equal(t, availability.StatusAvailable, second[0].Status)
		assert.True(t, first[0].Date.Equal(second[0].Date))
		store.AssertNumberOfCalls(t, "Get", 1)
	})

	t.Run("在庫のない泊は含めない", func(t *testing.T) {
		store := new(MockAvailabilityStore)
		store.On("Get", mock.Anything, "room-101", mock.Anything).
			Return([]*availability.Record{newTestRecord("room-101", jan(11), 1)}, nil)

		svc := NewAvailabilityService(new(MockTxManager), store, nil, nil, nil, testLockOpts)
		nights, err := svc.GetAvailability(ctx, "room-101", jan(10), jan(13))

		require.NoError(t, err)
		require.Len(t, nights, 1)
		assert.True(t, nights[0].Date.Equal(jan(11)))
	})

	t.Run("インフラ障害は再試行する", func(t *testing.T) {
		store := new(MockAvailabilityStore)
		store.On("Get", mock.Anything, "room-101", mock.Anything).
			Return(nil, apperror.Infrastructure("DB接続エラー", errors.New("timeout"))).Once()
		store.On("Get", mock.Anything, "room-101", mock.Anything).
			Return([]*availability.Record{newTestRecord("room-101", jan(10), 1)}, nil).Once()

		svc := NewAvailabilityService(new(MockTxManager), store, nil, nil, nil, testLockOpts)
		nights, err := svc.GetAvailability(ctx, "room-101", jan(10), jan(11))

		require.NoError(t, err)
		assert.Len(t, nights, 1)
		store.AssertNumberOfCalls(t, "Get", 2)
	})

	t.Run("不正な区間", func(t *testing.T) {
		svc := NewAvailabilityService(new(MockTxManager), new(MockAvailabilityStore), nil, nil, nil, testLockOpts)
		_, err := svc.GetAvailability(ctx, "room-101", jan(12), jan(12))
		assert.ErrorIs(t, err, availability.ErrInvalidRange)
	})
}

func TestAvailabilityService_LoadNight(t *testing.T) {
	store := new(MockAvailabilityStore)
	store.On("Get", mock.Anything, "hotel:room-101", stay.NewDateRange(jan(10), jan(11))).
		Return([]*availability.Record{newTestRecord("hotel:room-101", jan(10), 3)}, nil)
	svc := NewAvailabilityService(new(MockTxManager), store, nil, nil, nil, testLockOpts)

	v, err := svc.loadNight(context.Background(), "hotel:room-101:2025-01-10")
	require.NoError(t, err)
	assert.Equal(t, 3, v.(NightAvailability).TotalUnits)

	_, err = svc.loadNight(context.Background(), "no-separator")
	assert.Error(t, err)
}
