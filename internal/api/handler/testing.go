package handler

import (
	"github.com/labstack/echo/v4"

	"github.com/SongJunSub/Reservation-sub005/internal/api"
)

// NewTestEcho はバリデーターとエラーハンドラーだけを設定した echo を返す
// ミドルウェアは含まない
func NewTestEcho() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Validator, e.HTTPErrorHandler = api.NewValidator(), api.CustomHTTPErrorHandler
	return e
}
