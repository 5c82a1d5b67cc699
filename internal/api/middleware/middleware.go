package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// GuestIDHeader は予約者を識別するヘッダー
const GuestIDHeader = "X-Guest-ID"

// SetupMiddleware はリクエストID、アクセスログ、panic 回復、CORS の順に登録する
func SetupMiddleware(e *echo.Echo) {
	e.Use(
		RequestIDMiddleware(),
		RequestLogger(),
		middleware.Recover(),
		middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins: []string{"*"},
			AllowMethods: []string{http.MethodGet, http.MethodHead, http.MethodPut, http.MethodPost},
			AllowHeaders: []string{
				echo.HeaderOrigin,
				echo.HeaderContentType,
				echo.HeaderAccept,
				echo.HeaderAuthorization,
				echo.HeaderXRequestID,
				GuestIDHeader,
			},
		}),
	)
}
