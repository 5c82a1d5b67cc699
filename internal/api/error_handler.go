package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/SongJunSub/Reservation-sub005/internal/domain/overlap"
	"github.com/SongJunSub/Reservation-sub005/internal/pkg/apperror"
	"github.com/SongJunSub/Reservation-sub005/internal/pkg/logger"
)

// ErrorResponse はエラーレスポンスの統一フォーマット
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    int    `json:"code,omitempty"`
	Kind    string `json:"kind,omitempty"`
	Rule    string `json:"rule,omitempty"`
	Details string `json:"details,omitempty"`
}

var kindStatus = []struct {
	kind   error
	status int
	name   string
}{
	{apperror.ErrValidation, http.StatusBadRequest, "validation"},
	{apperror.ErrNotFound, http.StatusNotFound, "not_found"},
	{apperror.ErrConflict, http.StatusConflict, "conflict"},
	{apperror.ErrInvalidState, http.StatusUnprocessableEntity, "invalid_state"},
	{apperror.ErrInfrastructure, http.StatusServiceUnavailable, "infrastructure"},
}

// StatusCode はエラーの種類に対応するHTTPステータスを返す
func StatusCode(err error) int {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code
	}
	for _, ks := range kindStatus {
		if errors.Is(err, ks.kind) {
			return ks.status
		}
	}
	return http.StatusInternalServerError
}

func kindName(err error) string {
	for _, ks := range kindStatus {
		if errors.Is(err, ks.kind) {
			return ks.name
		}
	}
	return ""
}

// CustomHTTPErrorHandler はカスタムエラーハンドラー
func CustomHTTPErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	code := StatusCode(err)
	resp := ErrorResponse{Code: code, Kind: kindName(err)}

	var he *echo.HTTPError
	switch {
	case errors.As(err, &he):
		if m, ok := he.Message.(string); ok {
			resp.Error = m
		} else {
			resp.Error = http.StatusText(code)
		}
	case code == http.StatusInternalServerError:
		resp.Error = "内部サーバーエラー"
	case code == http.StatusServiceUnavailable:
		resp.Error = "一時的に処理できません。時間をおいて再度お試しください"
	default:
		resp.Error = err.Error()
	}

	var v *overlap.Violation
	if errors.As(err, &v) {
		resp.Rule = string(v.Rule)
	}

	// エラーログを出力（5xx エラーの場合）
	if code >= 500 {
		logger.Error("サーバーエラー",
			zap.Int("status", code),
			zap.String("path", c.Request().URL.Path),
			zap.Error(err),
		)
	}

	// HEAD にはボディを返さない
	if c.Request().Method == http.MethodHead {
		err = c.NoContent(code)
	} else {
		err = c.JSON(code, resp)
	}
	if err != nil {
		logger.Error("エラーレスポンス送信失敗", zap.Error(err))
	}
}
