package reservation

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/SongJunSub/Reservation-sub005/internal/domain/stay"
)

// Status は予約の状態を表す
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusConfirmed  Status = "CONFIRMED"
	StatusCheckedIn  Status = "CHECKED_IN"
	StatusCheckedOut Status = "CHECKED_OUT"
	StatusCompleted  Status = "COMPLETED"
	StatusCancelled  Status = "CANCELLED"
	StatusNoShow     Status = "NO_SHOW"
)

// HoldsInventory は在庫を確保している状態かを返す
func (s Status) HoldsInventory() bool {
	return s == StatusPending || s == StatusConfirmed || s == StatusCheckedIn
}

// IsActive は重複判定の対象となる状態かを返す
func (s Status) IsActive() bool {
	return s == StatusConfirmed || s == StatusCheckedIn
}

// IsTerminal はこれ以上遷移しない状態かを返す
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusNoShow
}

// PaymentStatus は支払い状態を表す
type PaymentStatus string

const (
	PaymentPending           PaymentStatus = "PENDING"
	PaymentPaid              PaymentStatus = "PAID"
	PaymentRefunded          PaymentStatus = "REFUNDED"
	PaymentPartiallyRefunded PaymentStatus = "PARTIALLY_REFUNDED"
	PaymentVoided            PaymentStatus = "VOIDED"
)

// CancellationReason はキャンセル理由
type CancellationReason string

const (
	ReasonGuestRequest   CancellationReason = "guest_request"
	ReasonHotelInitiated CancellationReason = "hotel_initiated"
	ReasonExpired        CancellationReason = "expired"
)

// WaivesPolicy はキャンセルポリシーを適用せず全額返金する理由かを返す
func (r CancellationReason) WaivesPolicy() bool {
	return r == ReasonHotelInitiated
}

// Reservation は客室予約を表す不変の値
// フィールドの変更は StateMachine の遷移でのみ行い、常に新しい値を返す
type Reservation struct {
	ID                 string
	ConfirmationCode   string
	RoomID             string
	GuestID            string
	Stay               stay.DateRange
	Adults             int
	Children           int
	TotalAmount        decimal.Decimal
	RefundAmount       decimal.Decimal
	Status             Status
	PaymentStatus      PaymentStatus
	IdempotencyKey     string
	CancellationReason CancellationReason
	CreatedAt          time.Time
	UpdatedAt          time.Time
	ConfirmedAt        *time.Time
	CheckedInAt        *time.Time
	CheckedOutAt       *time.Time
	CancelledAt        *time.Time
	NoShowAt           *time.Time
	CompletedAt        *time.Time
	Version            int
}

// NewParams は予約作成の入力
type NewParams struct {
	GuestID        string
	RoomID         string
	Stay           stay.DateRange
	Adults         int
	Children       int
	TotalAmount    decimal.Decimal
	IdempotencyKey string
	MaxGuests      int // 0 なら上限なし
}

// Validate は共有状態に触れる前に入力を検証する
func (p NewParams) Validate() error {
	if p.GuestID == "" {
		return ErrGuestIDRequired
	}
	if p.RoomID == "" {
		return ErrRoomIDRequired
	}
	if !p.Stay.IsValid() {
		return ErrInvalidStay
	}
	if p.Adults < 1 {
		return ErrAdultsRequired
	}
	if p.Children < 0 {
		return ErrInvalidChildren
	}
	if p.MaxGuests > 0 && p.Adults+p.Children > p.MaxGuests {
		return ErrTooManyGuests
	}
	if p.TotalAmount.IsNegative() {
		return ErrInvalidAmount
	}
	return nil
}

// New は PENDING 状態の予約を作成する（create 遷移）
func New(p NewParams, now time.Time) (Reservation, error) {
	if err := p.Validate(); err != nil {
		return Reservation{}, err
	}
	return Reservation{
		ID:               uuid.NewString(),
		ConfirmationCode: NewConfirmationCode(),
		RoomID:           p.RoomID,
		GuestID:          p.GuestID,
		Stay:             p.Stay,
		Adults:           p.Adults,
		Children:         p.Children,
		TotalAmount:      p.TotalAmount,
		RefundAmount:     decimal.Zero,
		Status:           StatusPending,
		PaymentStatus:    PaymentPending,
		IdempotencyKey:   p.IdempotencyKey,
		CreatedAt:        now,
		UpdatedAt:        now,
		Version:          1,
	}, nil
}

// NewConfirmationCode は予約確認コードを生成する（例: RSV-3F9A1C20B7E4）
func NewConfirmationCode() string {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "RSV-" + strings.ToUpper(raw[:12])
}

// Guests は宿泊人数の合計
func (r Reservation) Guests() int {
	return r.Adults + r.Children
}

// IsPaid は支払い済みかを返す
func (r Reservation) IsPaid() bool {
	return r.PaymentStatus == PaymentPaid
}
