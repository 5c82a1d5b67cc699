package middleware

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/SongJunSub/Reservation-sub005/internal/api"
	"github.com/SongJunSub/Reservation-sub005/internal/pkg/logger"
)

// RequestIDMiddleware は X-Request-ID を引き継ぐか新しく採番し、レスポンスヘッダーに載せる
func RequestIDMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id := c.Request().Header.Get(echo.HeaderXRequestID)
			if id == "" {
				id = uuid.NewString()
			}
			c.Response().Header().Set(echo.HeaderXRequestID, id)
			return next(c)
		}
	}
}

// RequestLogger は1リクエストにつき1行の構造化ログを出す
// ルートはテンプレート (/api/v1/reservations/:id) で記録する
func RequestLogger() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			req, res := c.Request(), c.Response()
			status := res.Status
			if err != nil {
				status = api.StatusCode(err)
			}

			route := c.Path()
			if route == "" {
				route = req.URL.Path
			}
			fields := []zap.Field{
				zap.String("request_id", res.Header().Get(echo.HeaderXRequestID)),
				zap.String("method", req.Method),
				zap.String("route", route),
				zap.String("uri", req.RequestURI),
				zap.Int("status", status),
				zap.Int64("bytes_out", res.Size),
				zap.Duration("latency", time.Since(start)),
				zap.String("remote_ip", c.RealIP()),
			}
			if guest := req.Header.Get(GuestIDHeader); guest != "" {
				fields = append(fields, zap.String("guest_id", guest))
			}
			if err != nil {
				fields = append(fields, zap.Error(err))
			}

			if ce := logger.Get().Check(levelFor(status), http.StatusText(status)); ce != nil {
				ce.Write(fields...)
			}
			return err
		}
	}
}

// levelFor は 5xx を Error、4xx を Warn、それ以外を Info にする
func levelFor(status int) zapcore.Level {
	switch {
	case status >= http.StatusInternalServerError:
		return zapcore.ErrorLevel
	case status >= http.StatusBadRequest:
		return zapcore.WarnLevel
	default:
		return zapcore.InfoLevel
	}
}
