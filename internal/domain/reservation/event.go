package reservation

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/SongJunSub/Reservation-sub005/internal/domain/stay"
)

// DomainEvent は確定した状態遷移の通知
type DomainEvent struct {
	ID                 string             `json:"id"`
	Type               string             `json:"type"`
	ReservationID      string             `json:"reservation_id"`
	ConfirmationCode   string             `json:"confirmation_code"`
	RoomID             string             `json:"room_id"`
	GuestID            string             `json:"guest_id"`
	Status             Status             `json:"status"`
	CheckIn            string             `json:"check_in"`
	CheckOut           string             `json:"check_out"`
	TotalAmount        decimal.Decimal    `json:"total_amount"`
	RefundAmount       decimal.Decimal    `json:"refund_amount"`
	CancellationReason CancellationReason `json:"cancellation_reason,omitempty"`
	OccurredAt         time.Time          `json:"occurred_at"`
}

var eventTypes = map[Event]string{
	EventCreate:     "reservation.created",
	EventConfirm:    "reservation.confirmed",
	EventCheckIn:    "reservation.checked_in",
	EventCheckOut:   "reservation.checked_out",
	EventCancel:     "reservation.cancelled",
	EventMarkNoShow: "reservation.no_show",
	EventComplete:   "reservation.completed",
}

// EventType はイベント種別名を返す（例: reservation.cancelled）
func EventType(ev Event) string {
	return eventTypes[ev]
}

// NewDomainEvent は遷移後の予約からイベントを作成する
func NewDomainEvent(ev Event, r Reservation) DomainEvent {
	return DomainEvent{
		ID:                 uuid.NewString(),
		Type:               EventType(ev),
		ReservationID:      r.ID,
		ConfirmationCode:   r.ConfirmationCode,
		RoomID:             r.RoomID,
		GuestID:            r.GuestID,
		Status:             r.Status,
		CheckIn:            stay.FormatDate(r.Stay.CheckIn),
		CheckOut:           stay.FormatDate(r.Stay.CheckOut),
		TotalAmount:        r.TotalAmount,
		RefundAmount:       r.RefundAmount,
		CancellationReason: r.CancellationReason,
		OccurredAt:         r.UpdatedAt,
	}
}

// EventSink は監査・通知向けのイベント送信先（呼び出し側は完了を待たない）
type EventSink interface {
	Publish(ctx context.Context, e DomainEvent) error
}
