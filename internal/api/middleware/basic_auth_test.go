package middleware

import (
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"

	"github.com/SongJunSub/Reservation-sub005/internal/config"
)

func TestBasicAuth(t *testing.T) {
	cred := config.Credentials{User: "staff", Password: "secret"}

	tests := []struct {
		name     string
		cred     config.Credentials
		auth     string
		wantCode int
	}{
		{"認証設定なしは通す", config.Credentials{}, "", http.StatusOK},
		{"パスワードだけでは無効", config.Credentials{Password: "secret"}, "", http.StatusOK},
		{"正しい認証情報", cred, "staff:secret", http.StatusOK},
		{"誤った認証情報", cred, "staff:wrong", http.StatusUnauthorized},
		{"認証ヘッダーなし", cred, "", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			e.GET("/metrics", func(c echo.Context) error {
				return c.String(http.StatusOK, "metrics")
			}, BasicAuth("metrics", tt.cred))

			req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
			if tt.auth != "" {
				req.Header.Set(echo.HeaderAuthorization, "Basic "+base64.StdEncoding.EncodeToString([]byte(tt.auth)))
			}
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantCode, rec.Code)
		})
	}
}

func TestBasicAuth_Realm(t *testing.T) {
	e := echo.New()
	e.GET("/admin", func(c echo.Context) error { return c.NoContent(http.StatusOK) },
		BasicAuth("inventory", config.Credentials{User: "staff", Password: "secret"}))

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin", nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Header().Get(echo.HeaderWWWAuthenticate), `realm="inventory"`)
}

func TestAdminAuth(t *testing.T) {
	cred := config.Credentials{User: "staff", Password: "secret"}

	tests := []struct {
		name     string
		cred     config.Credentials
		auth     string
		wantCode int
	}{
		{"認証設定なしは拒否する", config.Credentials{}, "", http.StatusForbidden},
		{"認証設定なしでは何を送っても拒否する", config.Credentials{}, "staff:secret", http.StatusForbidden},
		{"正しい認証情報", cred, "staff:secret", http.StatusOK},
		{"誤った認証情報", cred, "guest:secret", http.StatusUnauthorized},
		{"認証ヘッダーなし", cred, "", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			e.POST("/confirm", func(c echo.Context) error {
				return c.NoContent(http.StatusOK)
			}, AdminAuth("admin", tt.cred))

			req := httptest.NewRequest(http.MethodPost, "/confirm", nil)
			if tt.auth != "" {
				req.Header.Set(echo.HeaderAuthorization, "Basic "+base64.StdEncoding.EncodeToString([]byte(tt.auth)))
			}
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantCode, rec.Code)
		})
	}
}
