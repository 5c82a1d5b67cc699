package handler

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/SongJunSub/Reservation-sub005/internal/api/middleware"
	"github.com/SongJunSub/Reservation-sub005/internal/config"
)

// RegisterRoutes はルーティングを登録する
// 在庫の管理と、支払い確定以降の遷移・ホテル都合のキャンセルはホテル側の操作なので auth.Admin で保護する
// ゲストが直接行えるのは予約の作成と自分の予約のキャンセルだけ
func RegisterRoutes(e *echo.Echo, rh *ReservationHandler, ah *AvailabilityHandler, hh *HealthHandler, auth config.AuthConfig) {
	e.GET("/health", hh.Check)
	e.GET("/health/ready", hh.Ready)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()), middleware.BasicAuth("metrics", auth.Metrics))

	admin := middleware.AdminAuth("admin", auth.Admin)
	v1 := e.Group("/api/v1")

	reservations := v1.Group("/reservations")
	reservations.POST("", rh.Create)
	reservations.GET("", rh.GetGuestReservations)
	reservations.GET("/code/:code", rh.GetByCode)
	reservations.GET("/:id", rh.GetByID)
	reservations.GET("/:id/refund-quote", rh.RefundQuote)
	reservations.POST("/:id/cancel", rh.Cancel)

	reservations.POST("/:id/confirm", rh.Confirm, admin)
	reservations.POST("/:id/check-in", rh.CheckIn, admin)
	reservations.POST("/:id/check-out", rh.CheckOut, admin)
	reservations.POST("/:id/no-show", rh.MarkNoShow, admin)
	reservations.POST("/:id/complete", rh.Complete, admin)
	reservations.POST("/:id/hotel-cancel", rh.HotelCancel, admin)

	rooms := v1.Group("/rooms/:room_id")
	rooms.GET("/availability", ah.GetAvailability)
	rooms.PUT("/inventory", ah.SetupInventory, admin)
	rooms.POST("/block", ah.Block, admin)
	rooms.POST("/unblock", ah.Unblock, admin)
}
