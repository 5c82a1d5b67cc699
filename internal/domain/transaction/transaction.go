// Package transaction はストアをまたぐ更新の境界を表す。
// 在庫の確保と予約の保存は同じ Tx の中で行い、どちらかが失敗すれば両方を取り消す。
package transaction

import (
	"context"

	"github.com/SongJunSub/Reservation-sub005/internal/pkg/apperror"
)

// Tx は進行中のトランザクション。Commit 後の Rollback は何もしない
type Tx interface {
	Commit() error
	Rollback() error
}

// Manager はトランザクションを開始する
type Manager interface {
	Begin(ctx context.Context) (Tx, error)
}

// Run は fn を1つのトランザクションで実行する
// fn がエラーを返せばロールバックし、そのエラーをそのまま返す
func Run(ctx context.Context, m Manager, fn func(tx Tx) error) error {
	tx, err := m.Begin(ctx)
	if err != nil {
		return apperror.Infrastructure("トランザクション開始に失敗しました", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return apperror.Infrastructure("コミットに失敗しました", err)
	}
	return nil
}
