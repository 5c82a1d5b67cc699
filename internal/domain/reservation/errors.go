package reservation

import (
	"fmt"

	"github.com/SongJunSub/Reservation-sub005/internal/pkg/apperror"
)

// Reservation ドメインのエラー定義
var (
	ErrReservationNotFound         = apperror.NotFound("予約が見つかりません")
	ErrIdempotencyKeyAlreadyExists = apperror.Conflict("同じ冪等性キーの予約が既に存在します")
	ErrConcurrentModification      = apperror.Conflict("予約は他の処理によって更新されました")
	ErrGuestIDRequired             = apperror.Validation("ゲストIDは必須です")
	ErrRoomIDRequired              = apperror.Validation("客室IDは必須です")
	ErrInvalidStay                 = apperror.Validation("チェックアウト日はチェックイン日より後である必要があります")
	ErrAdultsRequired              = apperror.Validation("大人の人数は1以上である必要があります")
	ErrInvalidChildren             = apperror.Validation("子供の人数は0以上である必要があります")
	ErrTooManyGuests               = apperror.Validation("宿泊人数が上限を超えています")
	ErrInvalidAmount               = apperror.Validation("合計金額は0以上である必要があります")

	// 遷移のガード条件違反
	ErrCheckInTooEarly      = apperror.InvalidState("チェックイン日より前にチェックインはできません")
	ErrAlreadyCheckedIn     = apperror.InvalidState("既にチェックイン済みです")
	ErrNotCheckedIn         = apperror.InvalidState("チェックインが記録されていません")
	ErrAlreadyCheckedOut    = apperror.InvalidState("既にチェックアウト済みです")
	ErrStayAlreadyStarted   = apperror.InvalidState("宿泊開始後はキャンセルできません")
	ErrCheckInDateNotPassed = apperror.InvalidState("チェックイン日を過ぎていないためノーショーにできません")
)

// InvalidTransitionError は遷移表にない (状態, イベント) の組み合わせを表す
type InvalidTransitionError struct {
	From  Status
	Event Event
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("状態 %s ではイベント %s を受け付けられません", e.From, e.Event)
}

func (e *InvalidTransitionError) Unwrap() error {
	return apperror.ErrInvalidState
}
