package handler

import (
	"context"
	"time"

	"github.com/SongJunSub/Reservation-sub005/internal/application"
	"github.com/SongJunSub/Reservation-sub005/internal/domain/availability"
	"github.com/SongJunSub/Reservation-sub005/internal/domain/policy"
	"github.com/SongJunSub/Reservation-sub005/internal/domain/reservation"
)

// ReservationServiceInterface は予約サービスのインターフェース
type ReservationServiceInterface interface {
	CreateReservation(ctx context.Context, input application.CreateReservationInput) (reservation.Reservation, error)
	GetReservation(ctx context.Context, id string) (reservation.Reservation, error)
	GetReservationByCode(ctx context.Context, code string) (reservation.Reservation, error)
	ListGuestReservations(ctx context.Context, guestID string, limit, offset int) ([]reservation.Reservation, error)
	ConfirmReservation(ctx context.Context, id string) (reservation.Reservation, error)
	CheckIn(ctx context.Context, id string) (reservation.Reservation, error)
	CheckOut(ctx context.Context, id string) (reservation.Reservation, error)
	MarkNoShow(ctx context.Context, id string) (reservation.Reservation, error)
	CompleteReservation(ctx context.Context, id string) (reservation.Reservation, error)
	CancelReservation(ctx context.Context, id string, reason reservation.CancellationReason) (application.CancellationResult, error)
	CalculateRefund(ctx context.Context, id string, reason reservation.CancellationReason) (policy.RefundBreakdown, error)
}

// AvailabilityServiceInterface は在庫サービスのインターフェース
type AvailabilityServiceInterface interface {
	SetupInventory(ctx context.Context, input application.SetupInventoryInput) (int, error)
	BlockRoom(ctx context.Context, roomID string, from, to time.Time, status availability.Status) error
	UnblockRoom(ctx context.Context, roomID string, from, to time.Time) error
	GetAvailability(ctx context.Context, roomID string, from, to time.Time) ([]application.NightAvailability, error)
}
