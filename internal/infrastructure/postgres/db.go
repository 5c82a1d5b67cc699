package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/SongJunSub/Reservation-sub005/internal/config"
	"github.com/SongJunSub/Reservation-sub005/internal/pkg/logger"
)

// NewConnection はPostgreSQLに接続する
// 起動直後のDBを待てるよう、接続は ConnectTimeout の範囲で再試行する
func NewConnection(cfg *config.DatabaseConfig) (*sqlx.DB, error) {
	db, err := sqlx.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("データベース接続に失敗しました: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = 200 * time.Millisecond
	eb.MaxElapsedTime = cfg.ConnectTimeout
	var b backoff.BackOff = eb
	if cfg.ConnectTimeout <= 0 {
		b = &backoff.StopBackOff{}
	}
	attempt := 0
	err = backoff.Retry(func() error {
		attempt++
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := db.PingContext(ctx); err != nil {
			logger.Debug("データベース接続待ち", zap.Int("attempt", attempt), zap.Error(err))
			return err
		}
		return nil
	}, b)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("データベース接続に失敗しました（%d 回試行）: %w", attempt, err)
	}

	logger.Info("データベースに接続しました",
		zap.String("host", cfg.Host), zap.String("dbname", cfg.DBName), zap.Int("max_open_conns", cfg.MaxOpenConns))
	return db, nil
}

// Ping はデータベース接続を確認する
func Ping(ctx context.Context, db *sqlx.DB) error {
	return db.PingContext(ctx)
}
