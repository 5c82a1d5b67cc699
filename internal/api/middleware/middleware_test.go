package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/SongJunSub/Reservation-sub005/internal/api"
	"github.com/SongJunSub/Reservation-sub005/internal/pkg/apperror"
	"github.com/SongJunSub/Reservation-sub005/internal/pkg/logger"
	"github.com/SongJunSub/Reservation-sub005/internal/pkg/metrics"
)

func observeLogs(t *testing.T) *observer.ObservedLogs {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	original := logger.Get()
	logger.Set(zap.New(core))
	t.Cleanup(func() { logger.Set(original) })
	return logs
}

// newEcho は共通ミドルウェアと、指定したエラーを返す /api/v1/reservations/:id を持つ echo を作る
func newEcho(handlerErr error) *echo.Echo {
	e := echo.New()
	e.HTTPErrorHandler = api.CustomHTTPErrorHandler
	SetupMiddleware(e)
	e.GET("/api/v1/reservations/:id", func(c echo.Context) error {
		if handlerErr != nil {
			return handlerErr
		}
		return c.JSON(http.StatusOK, map[string]string{"id": c.Param("id")})
	})
	return e
}

func TestRequestIDMiddleware(t *testing.T) {
	t.Run("未指定なら採番する", func(t *testing.T) {
		rec := httptest.NewRecorder()
		newEcho(nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/reservations/res-1", nil))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Len(t, rec.Header().Get(echo.HeaderXRequestID), 36)
	})

	t.Run("受け取ったIDを引き継ぐ", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/reservations/res-1", nil)
		req.Header.Set(echo.HeaderXRequestID, "req-from-gateway")
		rec := httptest.NewRecorder()
		newEcho(nil).ServeHTTP(rec, req)

		assert.Equal(t, "req-from-gateway", rec.Header().Get(echo.HeaderXRequestID))
	})
}

func TestRequestLogger(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantLevel  zapcore.Level
	}{
		{"成功はinfo", nil, http.StatusOK, zapcore.InfoLevel},
		{"存在しない予約はwarn", apperror.NotFound("予約が見つかりません"), http.StatusNotFound, zapcore.WarnLevel},
		{"不正な遷移はwarn", apperror.InvalidState("チェックイン済みです"), http.StatusUnprocessableEntity, zapcore.WarnLevel},
		{"ストア障害はerror", apperror.Infrastructure("DB接続エラー", assert.AnError), http.StatusServiceUnavailable, zapcore.ErrorLevel},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logs := observeLogs(t)

			req := httptest.NewRequest(http.MethodGet, "/api/v1/reservations/res-1?fields=all", nil)
			req.Header.Set(GuestIDHeader, "guest-tanaka")
			req.Header.Set(echo.HeaderXRequestID, "req-1")
			rec := httptest.NewRecorder()
			newEcho(tt.err).ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			entries := logs.FilterField(zap.String("request_id", "req-1")).All()
			require.Len(t, entries, 1)
			entry := entries[0]
			assert.Equal(t, tt.wantLevel, entry.Level)

			fields := entry.ContextMap()
			assert.Equal(t, "/api/v1/reservations/:id", fields["route"])
			assert.Equal(t, "/api/v1/reservations/res-1?fields=all", fields["uri"])
			assert.Equal(t, int64(tt.wantStatus), fields["status"])
			assert.Equal(t, "guest-tanaka", fields["guest_id"])
			_, hasErr := fields["error"]
			assert.Equal(t, tt.err != nil, hasErr)
		})
	}
}

func TestRequestLogger_UnknownRouteUsesPath(t *testing.T) {
	logs := observeLogs(t)

	rec := httptest.NewRecorder()
	newEcho(nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nowhere", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, 1, logs.Len())
	_, hasGuest := logs.All()[0].ContextMap()["guest_id"]
	assert.False(t, hasGuest)
}

func TestSetupMiddleware_RecoversPanic(t *testing.T) {
	observeLogs(t)
	e := echo.New()
	e.HTTPErrorHandler = api.CustomHTTPErrorHandler
	SetupMiddleware(e)
	e.GET("/panic", func(c echo.Context) error { panic("在庫が負になった") })

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/panic", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestSetupMiddleware_CORSAllowsGuestHeader(t *testing.T) {
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/reservations/res-1", nil)
	req.Header.Set(echo.HeaderOrigin, "https://front.example")
	req.Header.Set(echo.HeaderAccessControlRequestMethod, http.MethodPost)
	req.Header.Set(echo.HeaderAccessControlRequestHeaders, GuestIDHeader)
	rec := httptest.NewRecorder()
	newEcho(nil).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Contains(t, rec.Header().Get(echo.HeaderAccessControlAllowHeaders), GuestIDHeader)
}

func TestPrometheusMiddleware(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status string
	}{
		{"成功", nil, "200"},
		{"満室", apperror.Conflict("指定期間は満室です"), "409"},
		{"echoのエラー", echo.NewHTTPError(http.StatusBadRequest, "bad request"), "400"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := metrics.NewWithRegistry(prometheus.NewRegistry())
			e := echo.New()
			e.HTTPErrorHandler = api.CustomHTTPErrorHandler
			e.Use(PrometheusMiddleware(m))
			e.POST("/rooms/:room_id/block", func(c echo.Context) error {
				if tt.err != nil {
					return tt.err
				}
				return c.NoContent(http.StatusOK)
			})

			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/rooms/room-101/block", nil))

			assert.Equal(t, float64(1), testutil.ToFloat64(
				m.HTTPRequestsTotal.WithLabelValues(http.MethodPost, "/rooms/:room_id/block", tt.status)))
			assert.Equal(t, 1, testutil.CollectAndCount(m.HTTPRequestDuration))
		})
	}
}

func TestPrometheusMiddleware_NilMetrics(t *testing.T) {
	e := echo.New()
	e.Use(PrometheusMiddleware(nil))
	e.GET("/health", func(c echo.Context) error { return c.NoContent(http.StatusOK) })

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
}
