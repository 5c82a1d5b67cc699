package availability

import "github.com/SongJunSub/Reservation-sub005/internal/pkg/apperror"

// Availability ドメインのエラー定義
var (
	ErrRoomUnavailable       = apperror.Conflict("指定期間は満室です")
	ErrInsufficientUnits     = apperror.Conflict("残室数が不足しています")
	ErrRoomNotSellable       = apperror.Conflict("客室は販売停止中です")
	ErrInventoryNotSetUp     = apperror.Conflict("指定期間の在庫が登録されていません")
	ErrUnitsBelowHeld        = apperror.Conflict("総室数を確保済みの室数より少なくできません")
	ErrHoldNotFound          = apperror.NotFound("解放対象の確保が見つかりません")
	ErrRoomIDRequired        = apperror.Validation("客室IDは必須です")
	ErrInvalidTotalUnits     = apperror.Validation("総室数は1以上である必要があります")
	ErrInvalidAvailableUnits = apperror.Validation("残室数は0以上総室数以下である必要があります")
	ErrInvalidRate           = apperror.Validation("料金の範囲が不正です")
	ErrInvalidUnits          = apperror.Validation("確保数は1以上である必要があります")
	ErrInvalidRange          = apperror.Validation("チェックアウト日はチェックイン日より後である必要があります")
	ErrInvalidOverride       = apperror.Validation("手動設定できる状態は BLOCKED か MAINTENANCE のみです")
	ErrTxRequired            = apperror.Infrastructure("トランザクションが必要です", nil)
)
