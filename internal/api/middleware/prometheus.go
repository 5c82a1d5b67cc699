package middleware

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/SongJunSub/Reservation-sub005/internal/api"
	"github.com/SongJunSub/Reservation-sub005/internal/pkg/metrics"
)

// PrometheusMiddleware はルートテンプレート単位でリクエスト数と処理時間を記録する
// m が nil なら何もしない
func PrometheusMiddleware(m *metrics.Metrics) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		if m == nil {
			return next
		}
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			code := c.Response().Status
			if err != nil {
				code = api.StatusCode(err)
			}
			route := c.Path()
			if route == "" {
				route = c.Request().URL.Path
			}
			method := c.Request().Method

			m.HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
			m.HTTPRequestDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
			return err
		}
	}
}
