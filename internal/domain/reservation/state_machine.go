package reservation

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/SongJunSub/Reservation-sub005/internal/domain/stay"
)

// Event は状態遷移を引き起こすイベント
type Event string

const (
	EventCreate     Event = "create"
	EventConfirm    Event = "confirm"
	EventCheckIn    Event = "checkIn"
	EventCheckOut   Event = "checkOut"
	EventCancel     Event = "cancel"
	EventMarkNoShow Event = "markNoShow"
	EventComplete   Event = "complete"
)

// ReleasesInventory は在庫を解放するイベントかどうか
func (e Event) ReleasesInventory() bool {
	switch e {
	case EventCancel, EventCheckOut, EventMarkNoShow:
		return true
	}
	return false
}

// transitions は合法な遷移の一覧。ここにない組み合わせは InvalidTransitionError になる
var transitions = map[Status]map[Event]Status{
	StatusPending: {
		EventConfirm: StatusConfirmed,
		EventCancel:  StatusCancelled,
	},
	StatusConfirmed: {
		EventCheckIn:    StatusCheckedIn,
		EventCancel:     StatusCancelled,
		EventMarkNoShow: StatusNoShow,
	},
	StatusCheckedIn: {
		EventCheckOut: StatusCheckedOut,
	},
	StatusCheckedOut: {
		EventComplete: StatusCompleted,
	},
}

// Trigger は遷移の入力
type Trigger struct {
	Event  Event
	At     time.Time
	Reason CancellationReason // cancel のみ
	Refund decimal.Decimal    // cancel のみ。支払い済みの場合の返金額
}

// StateMachine は予約の状態遷移を適用する
// 日付のガード条件はホテルのタイムゾーンでの暦日で判定する
type StateMachine struct {
	loc *time.Location
}

// NewStateMachine は StateMachine を作成する
func NewStateMachine(loc *time.Location) *StateMachine {
	if loc == nil {
		loc = time.UTC
	}
	return &StateMachine{loc: loc}
}

// Location はホテルのタイムゾーンを返す
func (m *StateMachine) Location() *time.Location {
	return m.loc
}

// Next は遷移先の状態を返す
func Next(from Status, ev Event) (Status, error) {
	to, ok := transitions[from][ev]
	if !ok {
		return "", &InvalidTransitionError{From: from, Event: ev}
	}
	return to, nil
}

// CanFire は遷移表上でイベントを受け付けられるかを返す（ガード条件は見ない）
func CanFire(from Status, ev Event) bool {
	_, ok := transitions[from][ev]
	return ok
}

// Fire は遷移を適用した新しい値を返す。失敗時は元の値は変更されない
func (m *StateMachine) Fire(r Reservation, t Trigger) (Reservation, error) {
	to, err := Next(r.Status, t.Event)
	if err != nil {
		return r, err
	}
	if err := m.guard(r, t); err != nil {
		return r, err
	}

	next := r
	at := t.At
	switch t.Event {
	case EventConfirm:
		next.ConfirmedAt = &at
		next.PaymentStatus = PaymentPaid
	case EventCheckIn:
		next.CheckedInAt = &at
	case EventCheckOut:
		next.CheckedOutAt = &at
	case EventCancel:
		next.CancelledAt = &at
		next.CancellationReason = t.Reason
		next.RefundAmount, next.PaymentStatus = settleCancellation(r, t.Refund)
	case EventMarkNoShow:
		next.NoShowAt = &at
	case EventComplete:
		next.CompletedAt = &at
	}
	next.Status = to
	next.UpdatedAt = at
	next.Version = r.Version + 1
	return next, nil
}

func (m *StateMachine) guard(r Reservation, t Trigger) error {
	today := stay.Today(t.At, m.loc)
	switch t.Event {
	case EventCheckIn:
		if r.CheckedInAt != nil {
			return ErrAlreadyCheckedIn
		}
		if today.Before(r.Stay.CheckIn) {
			return ErrCheckInTooEarly
		}
	case EventCheckOut:
		if r.CheckedInAt == nil {
			return ErrNotCheckedIn
		}
		if r.CheckedOutAt != nil {
			return ErrAlreadyCheckedOut
		}
	case EventCancel:
		// 未確定の確保の期限切れは当日予約でも取り消せる
		if t.Reason == ReasonExpired && r.Status == StatusPending {
			return nil
		}
		if !t.At.Before(stay.StartOfDay(r.Stay.CheckIn, m.loc)) {
			return ErrStayAlreadyStarted
		}
	case EventMarkNoShow:
		if r.CheckedInAt != nil {
			return ErrAlreadyCheckedIn
		}
		if !today.After(r.Stay.CheckIn) {
			return ErrCheckInDateNotPassed
		}
	}
	return nil
}

// settleCancellation はキャンセル時の返金額と支払い状態を決める
func settleCancellation(r Reservation, refund decimal.Decimal) (decimal.Decimal, PaymentStatus) {
	if r.PaymentStatus != PaymentPaid {
		return decimal.Zero, PaymentVoided
	}
	switch {
	case !refund.IsPositive():
		return decimal.Zero, PaymentPaid
	case refund.GreaterThanOrEqual(r.TotalAmount):
		return r.TotalAmount, PaymentRefunded
	default:
		return refund, PaymentPartiallyRefunded
	}
}

// Confirm は PENDING → CONFIRMED
func (m *StateMachine) Confirm(r Reservation, at time.Time) (Reservation, error) {
	return m.Fire(r, Trigger{Event: EventConfirm, At: at})
}

// CheckIn は CONFIRMED → CHECKED_IN
func (m *StateMachine) CheckIn(r Reservation, at time.Time) (Reservation, error) {
	return m.Fire(r, Trigger{Event: EventCheckIn, At: at})
}

// CheckOut は CHECKED_IN → CHECKED_OUT
func (m *StateMachine) CheckOut(r Reservation, at time.Time) (Reservation, error) {
	return m.Fire(r, Trigger{Event: EventCheckOut, At: at})
}

// Cancel は PENDING/CONFIRMED → CANCELLED
func (m *StateMachine) Cancel(r Reservation, at time.Time, reason CancellationReason, refund decimal.Decimal) (Reservation, error) {
	return m.Fire(r, Trigger{Event: EventCancel, At: at, Reason: reason, Refund: refund})
}

// MarkNoShow は CONFIRMED → NO_SHOW
func (m *StateMachine) MarkNoShow(r Reservation, at time.Time) (Reservation, error) {
	return m.Fire(r, Trigger{Event: EventMarkNoShow, At: at})
}

// Complete は CHECKED_OUT → COMPLETED
func (m *StateMachine) Complete(r Reservation, at time.Time) (Reservation, error) {
	return m.Fire(r, Trigger{Event: EventComplete, At: at})
}
