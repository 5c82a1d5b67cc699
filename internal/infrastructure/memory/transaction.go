// Package memory はプロセス内で動作するストア実装を提供する。
// 変更は即座に反映し、ロールバック時は取り消し操作を逆順に適用する。
// 同じ客室への更新の直列化は客室ロックとストア内の客室ごとのミューテックスで行う。
package memory

import (
	"context"
	"errors"
	"sync"

	"github.com/SongJunSub/Reservation-sub005/internal/domain/transaction"
)

var (
	ErrTxDone        = errors.New("トランザクションは既に終了しています")
	ErrUnsupportedTx = errors.New("memory.Tx 以外のトランザクションは使用できません")
)

// Tx は取り消しログを持つトランザクション
type Tx struct {
	mu   sync.Mutex
	undo []func()
	done bool
}

// Commit は取り消しログを破棄する
func (t *Tx) Commit() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return ErrTxDone
	}
	t.done = true
	t.undo = nil
	return nil
}

// Rollback は取り消し操作を逆順に適用する。コミット後は何もしない
func (t *Tx) Rollback() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return nil
	}
	t.done = true
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.undo = nil
	return nil
}

func (t *Tx) onRollback(fn func()) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.undo = append(t.undo, fn)
}

// TxManager は memory.Tx を開始する
type TxManager struct{}

func NewTxManager() *TxManager {
	return &TxManager{}
}

// Begin は新しいトランザクションを開始する
func (m *TxManager) Begin(ctx context.Context) (transaction.Tx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &Tx{}, nil
}

// unwrapTx は transaction.Tx を *Tx に変換する（nil は自動コミット）
func unwrapTx(tx transaction.Tx) (*Tx, error) {
	if tx == nil {
		return nil, nil
	}
	t, ok := tx.(*Tx)
	if !ok {
		return nil, ErrUnsupportedTx
	}
	t.mu.Lock()
	done := t.done
	t.mu.Unlock()
	if done {
		return nil, ErrTxDone
	}
	return t, nil
}
