package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"github.com/SongJunSub/Reservation-sub005/internal/application"
	"github.com/SongJunSub/Reservation-sub005/internal/domain/availability"
	"github.com/SongJunSub/Reservation-sub005/internal/domain/stay"
)

type AvailabilityHandler struct {
	service AvailabilityServiceInterface
}

func NewAvailabilityHandler(s AvailabilityServiceInterface) *AvailabilityHandler {
	return &AvailabilityHandler{service: s}
}

type SetupInventoryRequest struct {
	From       string          `json:"from" validate:"required,civildate" example:"2025-01-01"`
	To         string          `json:"to" validate:"required,civildate" example:"2025-02-01"`
	TotalUnits int             `json:"total_units" validate:"required,min=1" example:"5"`
	MinRate    decimal.Decimal `json:"min_rate" example:"150000"`
	MaxRate    decimal.Decimal `json:"max_rate" example:"200000"`
}

type SetupInventoryResponse struct {
	RoomID string `json:"room_id"`
	Nights int    `json:"nights"`
}

type OverrideRequest struct {
	From   string `json:"from" validate:"required,civildate" example:"2025-01-10"`
	To     string `json:"to" validate:"required,civildate" example:"2025-01-12"`
	Status string `json:"status" validate:"omitempty,oneof=BLOCKED MAINTENANCE" example:"MAINTENANCE"`
}

type NightResponse struct {
	Date           string          `json:"date" example:"2025-01-10"`
	Status         string          `json:"status" example:"AVAILABLE"`
	AvailableUnits int             `json:"available_units"`
	TotalUnits     int             `json:"total_units"`
	MinRate        decimal.Decimal `json:"min_rate"`
	MaxRate        decimal.Decimal `json:"max_rate"`
}

func toNightResponse(n application.NightAvailability) NightResponse {
	return NightResponse{
		Date:           stay.FormatDate(n.Date),
		Status:         string(n.Status),
		AvailableUnits: n.AvailableUnits,
		TotalUnits:     n.TotalUnits,
		MinRate:        n.MinRate,
		MaxRate:        n.MaxRate,
	}
}

// SetupInventory godoc
// @Summary 在庫を登録
// @Description 区間の各泊に総室数と料金を登録します。既存の泊は確保済みの室数を保って更新されます
// @Tags availability
// @Accept json
// @Produce json
// @Param room_id path string true "客室ID"
// @Param request body SetupInventoryRequest true "在庫情報"
// @Success 201 {object} SetupInventoryResponse
// @Failure 400 {object} api.ErrorResponse
// @Failure 409 {object} api.ErrorResponse "確保済みの室数を下回る"
// @Router /rooms/{room_id}/inventory [put]
func (h *AvailabilityHandler) SetupInventory(c echo.Context) error {
	var req SetupInventoryRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "無効なリクエスト")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	from, _ := stay.ParseDate(req.From)
	to, _ := stay.ParseDate(req.To)

	roomID := c.Param("room_id")
	n, err := h.service.SetupInventory(c.Request().Context(), application.SetupInventoryInput{
		RoomID: roomID, From: from, To: to, TotalUnits: req.TotalUnits,
		MinRate: req.MinRate, MaxRate: req.MaxRate,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, SetupInventoryResponse{RoomID: roomID, Nights: n})
}

// GetAvailability godoc
// @Summary 空室状況を取得
// @Tags availability
// @Produce json
// @Param room_id path string true "客室ID"
// @Param from query string true "開始日" example(2025-01-10)
// @Param to query string true "終了日（含まない）" example(2025-01-12)
// @Success 200 {array} NightResponse
// @Failure 400 {object} api.ErrorResponse
// @Router /rooms/{room_id}/availability [get]
func (h *AvailabilityHandler) GetAvailability(c echo.Context) error {
	from, err := stay.ParseDate(c.QueryParam("from"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "from は YYYY-MM-DD 形式で指定してください")
	}
	to, err := stay.ParseDate(c.QueryParam("to"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "to は YYYY-MM-DD 形式で指定してください")
	}

	nights, err := h.service.GetAvailability(c.Request().Context(), c.Param("room_id"), from, to)
	if err != nil {
		return err
	}
	resp := make([]NightResponse, len(nights))
	for i, n := range nights {
		resp[i] = toNightResponse(n)
	}
	return c.JSON(http.StatusOK, resp)
}

// Block godoc
// @Summary 客室を販売停止にする
// @Tags availability
// @Accept json
// @Param room_id path string true "客室ID"
// @Param request body OverrideRequest true "停止区間"
// @Success 204
// @Failure 409 {object} api.ErrorResponse "在庫未登録"
// @Router /rooms/{room_id}/block [post]
func (h *AvailabilityHandler) Block(c echo.Context) error {
	var req OverrideRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "無効なリクエスト")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	status := availability.Status(req.Status)
	if status == "" {
		status = availability.StatusBlocked
	}
	from, _ := stay.ParseDate(req.From)
	to, _ := stay.ParseDate(req.To)

	if err := h.service.BlockRoom(c.Request().Context(), c.Param("room_id"), from, to, status); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// Unblock godoc
// @Summary 販売停止を解除する
// @Tags availability
// @Accept json
// @Param room_id path string true "客室ID"
// @Param request body OverrideRequest true "解除区間"
// @Success 204
// @Router /rooms/{room_id}/unblock [post]
func (h *AvailabilityHandler) Unblock(c echo.Context) error {
	var req OverrideRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "無効なリクエスト")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	from, _ := stay.ParseDate(req.From)
	to, _ := stay.ParseDate(req.To)

	if err := h.service.UnblockRoom(c.Request().Context(), c.Param("room_id"), from, to); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}
