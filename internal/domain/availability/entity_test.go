package availability

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SongJunSub/Reservation-sub005/internal/domain/stay"
	"github.com/SongJunSub/Reservation-sub005/internal/pkg/apperror"
)

func newTestRecord(total int) *Record {
	return NewRecord("room-101", time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC), total,
		decimal.NewFromInt(100000), decimal.NewFromInt(150000))
}

func TestRecord_Status(t *testing.T) {
	tests := []struct {
		name      string
		available int
		override  Status
		want      Status
	}{
		{"残室あり", 1, "", StatusAvailable},
		{"満室", 0, "", StatusSoldOut},
		{"手動ブロック", 1, StatusBlocked, StatusBlocked},
		{"メンテナンス中は満室より優先", 0, StatusMaintenance, StatusMaintenance},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestRecord(1)
			r.AvailableUnits = tt.available
			r.Override = tt.override
			assert.Equal(t, tt.want, r.Status())
		})
	}
}

func TestRecord_ReserveRelease(t *testing.T) {
	r := newTestRecord(2)

	require.NoError(t, r.Reserve(2))
	assert.Equal(t, 0, r.AvailableUnits)
	assert.Equal(t, StatusSoldOut, r.Status())

	err := r.Reserve(1)
	assert.ErrorIs(t, err, ErrInsufficientUnits)
	assert.ErrorIs(t, err, apperror.ErrConflict)

	require.NoError(t, r.Release(2))
	assert.Equal(t, 2, r.AvailableUnits)

	// 総室数を超える解放はできない
	assert.ErrorIs(t, r.Release(1), ErrHoldNotFound)
	assert.Equal(t, 2, r.AvailableUnits)
}

func TestRecord_ReserveBlocked(t *testing.T) {
	r := newTestRecord(1)
	r.Override = StatusMaintenance

	assert.False(t, r.CanReserve(1))
	assert.ErrorIs(t, r.Reserve(1), ErrRoomNotSellable)
	assert.Equal(t, 1, r.AvailableUnits)
}

func TestRecord_Validate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(r *Record)
		wantErr error
	}{
		{"正常", func(r *Record) {}, nil},
		{"客室ID未指定", func(r *Record) { r.RoomID = "" }, ErrRoomIDRequired},
		{"総室数0", func(r *Record) { r.TotalUnits = 0; r.AvailableUnits = 0 }, ErrInvalidTotalUnits},
		{"残室数が総室数超過", func(r *Record) { r.AvailableUnits = 5 }, ErrInvalidAvailableUnits},
		{"残室数が負", func(r *Record) { r.AvailableUnits = -1 }, ErrInvalidAvailableUnits},
		{"料金の上下逆転", func(r *Record) { r.MaxRate = decimal.NewFromInt(1) }, ErrInvalidRate},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestRecord(2)
			tt.modify(r)
			err := r.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestValidateRequest(t *testing.T) {
	valid := stay.NewDateRange(time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC), time.Date(2025, 1, 12, 0, 0, 0, 0, time.UTC))

	assert.NoError(t, ValidateRequest("room-101", valid, 1))
	assert.ErrorIs(t, ValidateRequest("", valid, 1), ErrRoomIDRequired)
	assert.ErrorIs(t, ValidateRequest("room-101", stay.DateRange{CheckIn: valid.CheckOut, CheckOut: valid.CheckIn}, 1), ErrInvalidRange)
	assert.ErrorIs(t, ValidateRequest("room-101", valid, 0), ErrInvalidUnits)
}
