package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/SongJunSub/Reservation-sub005/internal/app"
	"github.com/SongJunSub/Reservation-sub005/internal/config"
	"github.com/SongJunSub/Reservation-sub005/internal/pkg/logger"
	"github.com/SongJunSub/Reservation-sub005/internal/pkg/metrics"
)

func main() {
	// .env があれば読み込む（本番では環境変数を直接設定する）
	_ = godotenv.Load()

	cfg := config.Load()
	logger.Init(cfg.App.Env, cfg.App.LogLevel)
	defer logger.Sync()

	a, err := app.New(cfg, app.WithMetrics(metrics.Init()))
	if err != nil {
		logger.Fatal("初期化エラー", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	a.Start(ctx)

	// Graceful shutdown
	go func() {
		logger.Info("サーバー起動", zap.String("port", cfg.Server.Port), zap.String("env", cfg.App.Env))
		if err := a.Echo.Start(":" + cfg.Server.Port); err != nil && err != http.ErrServerClosed {
			logger.Fatal("サーバー起動エラー", zap.Error(err))
		}
	}()

	// シグナル待機
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("サーバーをシャットダウンしています...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := a.Shutdown(shutdownCtx); err != nil {
		logger.Error("サーバーシャットダウンエラー", zap.Error(err))
		return
	}

	logger.Info("サーバーが正常にシャットダウンしました")
}
