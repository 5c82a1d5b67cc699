package availability

import (
	"context"

	"github.com/SongJunSub/Reservation-sub005/internal/domain/stay"
	"github.com/SongJunSub/Reservation-sub005/internal/domain/transaction"
)

// Store は客室在庫の永続化と原子的な確保・解放を行う
// Reserve/Release は区間の全泊をまとめて更新するか、何も更新しない
type Store interface {
	// Setup は在庫レコードを登録する（既存の日付は総室数と料金を更新する）
	Setup(ctx context.Context, records []*Record) error

	// Get は区間の在庫レコードを日付順に取得する
	Get(ctx context.Context, roomID string, r stay.DateRange) ([]*Record, error)

	// Reserve は区間の全泊から units 室を確保する（トランザクション必須）
	Reserve(ctx context.Context, tx transaction.Tx, roomID string, r stay.DateRange, units int) (Hold, error)

	// Release は確保した units 室を戻す（トランザクション必須）
	Release(ctx context.Context, tx transaction.Tx, roomID string, r stay.DateRange, units int) error

	// SetOverride は手動の販売状態を設定する（空文字で解除、トランザクション必須）
	SetOverride(ctx context.Context, tx transaction.Tx, roomID string, r stay.DateRange, status Status) error
}

// ValidateRequest は Reserve/Release の引数を検証する
func ValidateRequest(roomID string, r stay.DateRange, units int) error {
	if roomID == "" {
		return ErrRoomIDRequired
	}
	if !r.IsValid() {
		return ErrInvalidRange
	}
	if units < 1 {
		return ErrInvalidUnits
	}
	return nil
}
