package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"github.com/SongJunSub/Reservation-sub005/internal/domain/availability"
	"github.com/SongJunSub/Reservation-sub005/internal/domain/transaction"
	"github.com/SongJunSub/Reservation-sub005/internal/pkg/apperror"
)

// pgTx は transaction.Tx の sqlx 実装
type pgTx struct {
	tx *sqlx.Tx
}

func (t *pgTx) Commit() error { return t.tx.Commit() }

// Rollback は確定済み・破棄済みのトランザクションに対しては何もしない
func (t *pgTx) Rollback() error {
	err := t.tx.Rollback()
	if errors.Is(err, sql.ErrTxDone) {
		return nil
	}
	return err
}

// TxManager は READ COMMITTED で開始する。行の競合は SELECT ... FOR UPDATE で直列化する
type TxManager struct {
	db *sqlx.DB
}

func NewTxManager(db *sqlx.DB) *TxManager {
	return &TxManager{db: db}
}

func (m *TxManager) Begin(ctx context.Context) (transaction.Tx, error) {
	tx, err := m.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, apperror.Infrastructure("トランザクション開始に失敗しました", err)
	}
	return &pgTx{tx: tx}, nil
}

// UnwrapTx は TxManager が開始したトランザクションなら *sqlx.Tx を返し、それ以外は nil
func UnwrapTx(tx transaction.Tx) *sqlx.Tx {
	if t, ok := tx.(*pgTx); ok {
		return t.tx
	}
	return nil
}

func requireTx(tx transaction.Tx) (*sqlx.Tx, error) {
	if sqlTx := UnwrapTx(tx); sqlTx != nil {
		return sqlTx, nil
	}
	return nil, availability.ErrTxRequired
}
