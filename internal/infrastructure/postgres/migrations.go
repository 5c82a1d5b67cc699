package postgres

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"go.uber.org/zap"

	"github.com/SongJunSub/Reservation-sub005/internal/pkg/logger"
)

// ErrDirtyMigration は前回のマイグレーションが途中で失敗したまま残っている
var ErrDirtyMigration = errors.New("マイグレーションが dirty 状態です。手動で修正してください")

// RunMigrations は migrationsPath のマイグレーションを最新まで適用し、適用後のバージョンを返す
func RunMigrations(db *sql.DB, migrationsPath string) (uint, error) {
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return 0, fmt.Errorf("マイグレーションドライバー作成エラー: %w", err)
	}
	m, err := migrate.NewWithDatabaseInstance("file://"+migrationsPath, "postgres", driver)
	if err != nil {
		return 0, fmt.Errorf("マイグレーションの読み込みに失敗しました（%s）: %w", migrationsPath, err)
	}

	before, dirty, err := m.Version()
	switch {
	case errors.Is(err, migrate.ErrNilVersion):
		before = 0
	case err != nil:
		return 0, fmt.Errorf("マイグレーションのバージョン取得に失敗しました: %w", err)
	case dirty:
		return before, fmt.Errorf("%w: version=%d", ErrDirtyMigration, before)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return before, fmt.Errorf("マイグレーション実行エラー: %w", err)
	}

	after, _, err := m.Version()
	if err != nil {
		return before, fmt.Errorf("マイグレーションのバージョン取得に失敗しました: %w", err)
	}
	if after != before {
		logger.Info("マイグレーションを適用しました", zap.Uint("from", before), zap.Uint("to", after))
	}
	return after, nil
}
