// Package logger はプロセス全体で共有する zap ロガー
package logger

import (
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const serviceName = "hotel-reservation"

var global atomic.Pointer[zap.Logger]

func init() {
	global.Store(NewLogger("development", ""))
}

// NewLogger は production なら JSON、それ以外はコンソール形式のロガーを作る
// level が空か解釈できない場合は環境ごとの既定レベルのまま
func NewLogger(env, level string) *zap.Logger {
	cfg := zap.NewDevelopmentConfig()
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	if env == "production" {
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.TimeKey = "ts"
		cfg.EncoderConfig.EncodeTime = zapcore.RFC3339NanoTimeEncoder
	}

	if lvl, err := zapcore.ParseLevel(level); level != "" && err == nil {
		cfg.Level = zap.NewAtomicLevelAt(lvl)
	}

	l, err := cfg.Build(zap.Fields(zap.String("service", serviceName)))
	if err != nil {
		return zap.NewNop()
	}
	return l
}

// Init はグローバルロガーを差し替えて返す
func Init(env, level string) *zap.Logger {
	l := NewLogger(env, level)
	Set(l)
	return l
}

func Get() *zap.Logger { return global.Load() }

func Set(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	global.Store(l)
}

func Debug(msg string, fields ...zap.Field) { Get().Debug(msg, fields...) }
func Info(msg string, fields ...zap.Field)  { Get().Info(msg, fields...) }
func Warn(msg string, fields ...zap.Field)  { Get().Warn(msg, fields...) }
func Error(msg string, fields ...zap.Field) { Get().Error(msg, fields...) }
func Fatal(msg string, fields ...zap.Field) { Get().Fatal(msg, fields...) }

func With(fields ...zap.Field) *zap.Logger { return Get().With(fields...) }

func Sync() error { return Get().Sync() }

func ReservationID(id string) zap.Field { return zap.String("reservation_id", id) }

func RoomID(id string) zap.Field { return zap.String("room_id", id) }
