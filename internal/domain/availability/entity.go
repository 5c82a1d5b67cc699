package availability

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/SongJunSub/Reservation-sub005/internal/domain/stay"
)

// Status は客室・日付ごとの販売状態を表す
type Status string

const (
	StatusAvailable   Status = "AVAILABLE"
	StatusSoldOut     Status = "SOLD_OUT"
	StatusBlocked     Status = "BLOCKED"
	StatusMaintenance Status = "MAINTENANCE"
)

// IsOverride は手動で設定する状態かを返す
func (s Status) IsOverride() bool {
	return s == StatusBlocked || s == StatusMaintenance
}

// Record は客室・日付ごとの在庫
// 不変条件: 0 <= AvailableUnits <= TotalUnits
type Record struct {
	RoomID         string
	Date           time.Time
	AvailableUnits int
	TotalUnits     int
	MinRate        decimal.Decimal
	MaxRate        decimal.Decimal
	Override       Status // 空文字なら手動設定なし
	Version        int    // 楽観的ロック用
	UpdatedAt      time.Time
}

// NewRecord は新しい在庫レコードを作成する（全室販売可能）
func NewRecord(roomID string, date time.Time, totalUnits int, minRate, maxRate decimal.Decimal) *Record {
	return &Record{
		RoomID:         roomID,
		Date:           stay.Date(date),
		AvailableUnits: totalUnits,
		TotalUnits:     totalUnits,
		MinRate:        minRate,
		MaxRate:        maxRate,
		UpdatedAt:      time.Now(),
	}
}

// Status は残室数と手動設定から販売状態を導出する
func (r *Record) Status() Status {
	if r.Override.IsOverride() {
		return r.Override
	}
	if r.AvailableUnits <= 0 {
		return StatusSoldOut
	}
	return StatusAvailable
}

// CanReserve は指定数を確保できるかを返す
func (r *Record) CanReserve(units int) bool {
	return !r.Override.IsOverride() && r.AvailableUnits >= units
}

// Reserve は残室数を減らす
func (r *Record) Reserve(units int) error {
	if r.Override.IsOverride() {
		return ErrRoomNotSellable
	}
	if r.AvailableUnits < units {
		return ErrInsufficientUnits
	}
	r.AvailableUnits -= units
	r.Version++
	r.UpdatedAt = time.Now()
	return nil
}

// Release は残室数を戻す（総室数を超える解放は保持が存在しないとみなす）
func (r *Record) Release(units int) error {
	if r.AvailableUnits+units > r.TotalUnits {
		return ErrHoldNotFound
	}
	r.AvailableUnits += units
	r.Version++
	r.UpdatedAt = time.Now()
	return nil
}

// Validate は在庫レコードの検証を行う
func (r *Record) Validate() error {
	if r.RoomID == "" {
		return ErrRoomIDRequired
	}
	if r.TotalUnits < 1 {
		return ErrInvalidTotalUnits
	}
	if r.AvailableUnits < 0 || r.AvailableUnits > r.TotalUnits {
		return ErrInvalidAvailableUnits
	}
	if r.MinRate.IsNegative() || r.MaxRate.LessThan(r.MinRate) {
		return ErrInvalidRate
	}
	return nil
}

// Hold は予約による在庫の確保を表す
type Hold struct {
	RoomID string
	Stay   stay.DateRange
	Units  int
}
