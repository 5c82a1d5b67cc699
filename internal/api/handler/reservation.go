package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"github.com/SongJunSub/Reservation-sub005/internal/api/middleware"
	"github.com/SongJunSub/Reservation-sub005/internal/application"
	"github.com/SongJunSub/Reservation-sub005/internal/domain/policy"
	"github.com/SongJunSub/Reservation-sub005/internal/domain/reservation"
	"github.com/SongJunSub/Reservation-sub005/internal/domain/stay"
)

// GuestIDHeader はゲストIDを受け取るヘッダー
const GuestIDHeader = middleware.GuestIDHeader

type ReservationHandler struct {
	service ReservationServiceInterface
}

func NewReservationHandler(s ReservationServiceInterface) *ReservationHandler {
	return &ReservationHandler{service: s}
}

type CreateReservationRequest struct {
	RoomID         string          `json:"room_id" validate:"required" example:"room-101"`
	CheckIn        string          `json:"check_in" validate:"required,civildate" example:"2025-01-10"`
	CheckOut       string          `json:"check_out" validate:"required,civildate" example:"2025-01-12"`
	Adults         int             `json:"adults" validate:"required,min=1" example:"2"`
	Children       int             `json:"children" validate:"min=0" example:"0"`
	TotalAmount    decimal.Decimal `json:"total_amount" example:"300000"`
	IdempotencyKey string          `json:"idempotency_key" validate:"omitempty,max=255" example:"order-2025-001"`
}

type CancelReservationRequest struct {
	Reason string `json:"reason" validate:"omitempty,oneof=guest_request hotel_initiated" example:"guest_request"`
}

type ReservationResponse struct {
	ID                 string          `json:"id"`
	ConfirmationCode   string          `json:"confirmation_code" example:"RSV-3F9A1C20B7E4"`
	RoomID             string          `json:"room_id"`
	GuestID            string          `json:"guest_id"`
	CheckIn            string          `json:"check_in" example:"2025-01-10"`
	CheckOut           string          `json:"check_out" example:"2025-01-12"`
	Nights             int             `json:"nights" example:"2"`
	Adults             int             `json:"adults"`
	Children           int             `json:"children"`
	TotalAmount        decimal.Decimal `json:"total_amount"`
	RefundAmount       decimal.Decimal `json:"refund_amount"`
	Status             string          `json:"status" example:"PENDING"`
	PaymentStatus      string          `json:"payment_status" example:"PENDING"`
	CancellationReason string          `json:"cancellation_reason,omitempty"`
	ConfirmedAt        *time.Time      `json:"confirmed_at,omitempty"`
	CheckedInAt        *time.Time      `json:"checked_in_at,omitempty"`
	CheckedOutAt       *time.Time      `json:"checked_out_at,omitempty"`
	CancelledAt        *time.Time      `json:"cancelled_at,omitempty"`
	CreatedAt          time.Time       `json:"created_at"`
	Version            int             `json:"version"`
}

type CancellationResponse struct {
	Reservation ReservationResponse    `json:"reservation"`
	Refund      policy.RefundBreakdown `json:"refund"`
	RefundDue   decimal.Decimal        `json:"refund_due"`
}

func toReservationResponse(r reservation.Reservation) ReservationResponse {
	return ReservationResponse{
		ID: r.ID, ConfirmationCode: r.ConfirmationCode,
		RoomID: r.RoomID, GuestID: r.GuestID,
		CheckIn: stay.FormatDate(r.Stay.CheckIn), CheckOut: stay.FormatDate(r.Stay.CheckOut), Nights: r.Stay.Nights(),
		Adults: r.Adults, Children: r.Children,
		TotalAmount: r.TotalAmount, RefundAmount: r.RefundAmount,
		Status: string(r.Status), PaymentStatus: string(r.PaymentStatus),
		CancellationReason: string(r.CancellationReason),
		ConfirmedAt:        r.ConfirmedAt, CheckedInAt: r.CheckedInAt, CheckedOutAt: r.CheckedOutAt,
		CancelledAt: r.CancelledAt, CreatedAt: r.CreatedAt, Version: r.Version,
	}
}

// Create godoc
// @Summary 予約を作成
// @Description 客室の在庫を確保して保留中の予約を作成します
// @Tags reservations
// @Accept json
// @Produce json
// @Param X-Guest-ID header string true "ゲストID"
// @Param request body CreateReservationRequest true "予約情報"
// @Success 201 {object} ReservationResponse
// @Failure 400 {object} api.ErrorResponse
// @Failure 409 {object} api.ErrorResponse "満室または既存の予約と重複"
// @Router /reservations [post]
func (h *ReservationHandler) Create(c echo.Context) error {
	guestID := c.Request().Header.Get(GuestIDHeader)
	if guestID == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "ゲストIDが必要です")
	}
	var req CreateReservationRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "無効なリクエスト")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	checkIn, _ := stay.ParseDate(req.CheckIn)
	checkOut, _ := stay.ParseDate(req.CheckOut)

	r, err := h.service.CreateReservation(c.Request().Context(), application.CreateReservationInput{
		GuestID: guestID, RoomID: req.RoomID, CheckIn: checkIn, CheckOut: checkOut,
		Adults: req.Adults, Children: req.Children, TotalAmount: req.TotalAmount,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, toReservationResponse(r))
}

// GetByID godoc
// @Summary 予約を取得
// @Tags reservations
// @Produce json
// @Param id path string true "予約ID"
// @Success 200 {object} ReservationResponse
// @Failure 404 {object} api.ErrorResponse
// @Router /reservations/{id} [get]
func (h *ReservationHandler) GetByID(c echo.Context) error {
	r, err := h.service.GetReservation(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toReservationResponse(r))
}

// GetByCode godoc
// @Summary 確認コードで予約を取得
// @Tags reservations
// @Produce json
// @Param code path string true "確認コード"
// @Success 200 {object} ReservationResponse
// @Failure 404 {object} api.ErrorResponse
// @Router /reservations/code/{code} [get]
func (h *ReservationHandler) GetByCode(c echo.Context) error {
	r, err := h.service.GetReservationByCode(c.Request().Context(), c.Param("code"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toReservationResponse(r))
}

// GetGuestReservations godoc
// @Summary ゲストの予約一覧を取得
// @Tags reservations
// @Produce json
// @Param X-Guest-ID header string true "ゲストID"
// @Param limit query int false "取得件数" default(20)
// @Param offset query int false "オフセット" default(0)
// @Success 200 {array} ReservationResponse
// @Router /reservations [get]
func (h *ReservationHandler) GetGuestReservations(c echo.Context) error {
	guestID := c.Request().Header.Get(GuestIDHeader)
	if guestID == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "ゲストIDが必要です")
	}
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	offset, _ := strconv.Atoi(c.QueryParam("offset"))
	reservations, err := h.service.ListGuestReservations(c.Request().Context(), guestID, limit, offset)
	if err != nil {
		return err
	}
	resp := make([]ReservationResponse, len(reservations))
	for i, r := range reservations {
		resp[i] = toReservationResponse(r)
	}
	return c.JSON(http.StatusOK, resp)
}

// Confirm godoc
// @Summary 予約を確定
// @Tags reservations
// @Produce json
// @Param id path string true "予約ID"
// @Success 200 {object} ReservationResponse
// @Failure 409 {object} api.ErrorResponse
// @Failure 422 {object} api.ErrorResponse
// @Router /reservations/{id}/confirm [post]
func (h *ReservationHandler) Confirm(c echo.Context) error {
	return h.transition(c, h.service.ConfirmReservation)
}

// CheckIn godoc
// @Summary チェックイン
// @Tags reservations
// @Param id path string true "予約ID"
// @Success 200 {object} ReservationResponse
// @Failure 422 {object} api.ErrorResponse
// @Router /reservations/{id}/check-in [post]
func (h *ReservationHandler) CheckIn(c echo.Context) error {
	return h.transition(c, h.service.CheckIn)
}

// CheckOut godoc
// @Summary チェックアウト
// @Tags reservations
// @Param id path string true "予約ID"
// @Success 200 {object} ReservationResponse
// @Failure 422 {object} api.ErrorResponse
// @Router /reservations/{id}/check-out [post]
func (h *ReservationHandler) CheckOut(c echo.Context) error {
	return h.transition(c, h.service.CheckOut)
}

// MarkNoShow godoc
// @Summary ノーショーを記録
// @Tags reservations
// @Param id path string true "予約ID"
// @Success 200 {object} ReservationResponse
// @Failure 422 {object} api.ErrorResponse
// @Router /reservations/{id}/no-show [post]
func (h *ReservationHandler) MarkNoShow(c echo.Context) error {
	return h.transition(c, h.service.MarkNoShow)
}

// Complete godoc
// @Summary 予約を完了
// @Tags reservations
// @Param id path string true "予約ID"
// @Success 200 {object} ReservationResponse
// @Failure 422 {object} api.ErrorResponse
// @Router /reservations/{id}/complete [post]
func (h *ReservationHandler) Complete(c echo.Context) error {
	return h.transition(c, h.service.CompleteReservation)
}

func (h *ReservationHandler) transition(c echo.Context, fire func(ctx context.Context, id string) (reservation.Reservation, error)) error {
	r, err := fire(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toReservationResponse(r))
}

// Cancel godoc
// @Summary 自分の予約をキャンセル
// @Description キャンセルポリシーに従って返金額を計算し、在庫を解放します。ホテル都合の理由は指定できません
// @Tags reservations
// @Accept json
// @Produce json
// @Param X-Guest-ID header string true "ゲストID"
// @Param id path string true "予約ID"
// @Param request body CancelReservationRequest false "キャンセル理由"
// @Success 200 {object} CancellationResponse
// @Failure 403 {object} api.ErrorResponse "ホテル都合の理由を指定した"
// @Failure 404 {object} api.ErrorResponse "予約がないか、他のゲストの予約"
// @Failure 422 {object} api.ErrorResponse "チェックイン後はキャンセル不可"
// @Router /reservations/{id}/cancel [post]
func (h *ReservationHandler) Cancel(c echo.Context) error {
	guestID := c.Request().Header.Get(GuestIDHeader)
	if guestID == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "ゲストIDが必要です")
	}
	req, err := bindCancel(c)
	if err != nil {
		return err
	}
	reason := reservation.CancellationReason(req.Reason)
	if reason.WaivesPolicy() {
		return echo.NewHTTPError(http.StatusForbidden, "ホテル都合のキャンセルはホテル側のみ指定できます")
	}

	ctx := c.Request().Context()
	r, err := h.service.GetReservation(ctx, c.Param("id"))
	if err != nil {
		return err
	}
	if r.GuestID != guestID {
		// 他のゲストの予約があることは明かさない
		return reservation.ErrReservationNotFound
	}
	return h.cancel(c, reservation.ReasonGuestRequest)
}

// HotelCancel godoc
// @Summary ホテル側から予約をキャンセル
// @Description 理由を省略するとホテル都合として全額返金します
// @Tags reservations
// @Accept json
// @Produce json
// @Security BasicAuth
// @Param id path string true "予約ID"
// @Param request body CancelReservationRequest false "キャンセル理由"
// @Success 200 {object} CancellationResponse
// @Failure 401 {object} api.ErrorResponse
// @Failure 422 {object} api.ErrorResponse "チェックイン後はキャンセル不可"
// @Router /reservations/{id}/hotel-cancel [post]
func (h *ReservationHandler) HotelCancel(c echo.Context) error {
	req, err := bindCancel(c)
	if err != nil {
		return err
	}
	reason := reservation.CancellationReason(req.Reason)
	if reason == "" {
		reason = reservation.ReasonHotelInitiated
	}
	return h.cancel(c, reason)
}

func bindCancel(c echo.Context) (CancelReservationRequest, error) {
	var req CancelReservationRequest
	if c.Request().ContentLength > 0 {
		if err := c.Bind(&req); err != nil {
			return req, echo.NewHTTPError(http.StatusBadRequest, "無効なリクエスト")
		}
	}
	if err := c.Validate(&req); err != nil {
		return req, err
	}
	return req, nil
}

func (h *ReservationHandler) cancel(c echo.Context, reason reservation.CancellationReason) error {
	result, err := h.service.CancelReservation(c.Request().Context(), c.Param("id"), reason)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, CancellationResponse{
		Reservation: toReservationResponse(result.Reservation),
		Refund:      result.Refund,
		RefundDue:   result.RefundDue,
	})
}

// RefundQuote godoc
// @Summary 返金額の見積もり
// @Description 現時点でキャンセルした場合の返金内訳を返します（状態は変更しません）
// @Tags reservations
// @Produce json
// @Param id path string true "予約ID"
// @Param reason query string false "キャンセル理由" Enums(guest_request, hotel_initiated)
// @Success 200 {object} policy.RefundBreakdown
// @Router /reservations/{id}/refund-quote [get]
func (h *ReservationHandler) RefundQuote(c echo.Context) error {
	reason := reservation.CancellationReason(c.QueryParam("reason"))
	switch reason {
	case "", reservation.ReasonGuestRequest, reservation.ReasonHotelInitiated:
	default:
		return echo.NewHTTPError(http.StatusBadRequest, "キャンセル理由が不正です")
	}
	quote, err := h.service.CalculateRefund(c.Request().Context(), c.Param("id"), reason)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, quote)
}
