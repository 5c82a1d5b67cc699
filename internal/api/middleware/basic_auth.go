package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/SongJunSub/Reservation-sub005/internal/config"
)

// BasicAuth は認証情報が設定されている場合のみ Basic 認証を要求する
// 未設定ならそのまま通す（ローカル開発用）
func BasicAuth(realm string, cred config.Credentials) echo.MiddlewareFunc {
	if !cred.Enabled() {
		return func(next echo.HandlerFunc) echo.HandlerFunc {
			return next
		}
	}

	return basicAuth(realm, cred)
}

// AdminAuth はホテル側の操作に Basic 認証を要求する
// BasicAuth と違い、認証情報が未設定なら全て 403 にする
func AdminAuth(realm string, cred config.Credentials) echo.MiddlewareFunc {
	if !cred.Enabled() {
		return func(next echo.HandlerFunc) echo.HandlerFunc {
			return func(c echo.Context) error {
				return echo.NewHTTPError(http.StatusForbidden, "管理者の認証情報が設定されていません")
			}
		}
	}
	return basicAuth(realm, cred)
}

func basicAuth(realm string, cred config.Credentials) echo.MiddlewareFunc {
	return middleware.BasicAuthWithConfig(middleware.BasicAuthConfig{
		Realm: realm,
		Validator: func(username, password string, c echo.Context) (bool, error) {
			// タイミング攻撃を防ぐため ConstantTimeCompare を使用
			userMatch := subtle.ConstantTimeCompare([]byte(username), []byte(cred.User)) == 1
			passMatch := subtle.ConstantTimeCompare([]byte(password), []byte(cred.Password)) == 1
			return userMatch && passMatch, nil
		},
	})
}
