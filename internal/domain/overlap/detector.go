// Package overlap は宿泊区間の妥当性と既存予約との重複を判定する。
// 副作用を持たない純粋な判定のみを行い、在庫の更新は呼び出し側がロック内で行う。
package overlap

import (
	"fmt"
	"time"

	"github.com/SongJunSub/Reservation-sub005/internal/domain/reservation"
	"github.com/SongJunSub/Reservation-sub005/internal/domain/stay"
	"github.com/SongJunSub/Reservation-sub005/internal/pkg/apperror"
)

// Rule は違反したルールの種類
type Rule string

const (
	RuleDateOrder   Rule = "date_order"
	RuleMinimumStay Rule = "minimum_stay"
	RuleMaximumStay Rule = "maximum_stay"
	RuleLeadTime    Rule = "lead_time"
	RuleOverlap     Rule = "overlap"
)

// Violation は判定で見つかったルール違反
type Violation struct {
	Rule                     Rule
	Message                  string
	ConflictingReservationID string
}

func (v *Violation) Error() string {
	return v.Message
}

// Unwrap は重複なら Conflict、それ以外は Validation を返す
func (v *Violation) Unwrap() error {
	if v.Rule == RuleOverlap {
		return apperror.ErrConflict
	}
	return apperror.ErrValidation
}

// Rules は宿泊区間の制約
type Rules struct {
	MinimumStay     int           // 最短泊数（0 なら 1）
	MaximumStay     int           // 最長泊数（0 なら無制限）
	MinimumLeadTime time.Duration // チェックイン日0時までに必要な猶予
	Location        *time.Location
}

// Detector は重複判定を行う
type Detector struct {
	rules Rules
}

// NewDetector は Detector を作成する
func NewDetector(rules Rules) *Detector {
	if rules.MinimumStay < 1 {
		rules.MinimumStay = 1
	}
	if rules.Location == nil {
		rules.Location = time.UTC
	}
	return &Detector{rules: rules}
}

// Rules は適用中のルールを返す
func (d *Detector) Rules() Rules {
	return d.rules
}

// ValidateStay は既存予約に依存しないルールを検証する
func (d *Detector) ValidateStay(proposed stay.DateRange, now time.Time) error {
	if !proposed.IsValid() {
		return &Violation{
			Rule:    RuleDateOrder,
			Message: fmt.Sprintf("チェックアウト日はチェックイン日より後である必要があります: %s", proposed),
		}
	}

	nights := proposed.Nights()
	if nights < d.rules.MinimumStay {
		return &Violation{
			Rule:    RuleMinimumStay,
			Message: fmt.Sprintf("宿泊数 %d 泊は最短 %d 泊を下回っています", nights, d.rules.MinimumStay),
		}
	}
	if d.rules.MaximumStay > 0 && nights > d.rules.MaximumStay {
		return &Violation{
			Rule:    RuleMaximumStay,
			Message: fmt.Sprintf("宿泊数 %d 泊は最長 %d 泊を超えています", nights, d.rules.MaximumStay),
		}
	}

	// 暦日で比較する（猶予0なら当日予約を受け付ける）
	earliest := stay.Today(now.Add(d.rules.MinimumLeadTime), d.rules.Location)
	if proposed.CheckIn.Before(earliest) {
		return &Violation{
			Rule:    RuleLeadTime,
			Message: fmt.Sprintf("チェックイン日 %s は受付可能な日より前です", stay.FormatDate(proposed.CheckIn)),
		}
	}
	return nil
}

// FindConflict は提案区間と重なる有効な予約（CONFIRMED / CHECKED_IN）を探す
// 別の客室や自分自身は対象外
func FindConflict(roomID string, proposed stay.DateRange, existing []reservation.Reservation, excludeID string) error {
	for _, r := range existing {
		if r.RoomID != roomID || r.ID == excludeID || !r.Status.IsActive() {
			continue
		}
		if proposed.Overlaps(r.Stay) {
			return &Violation{
				Rule:                     RuleOverlap,
				Message:                  fmt.Sprintf("客室 %s は %s に予約 %s と重複しています", roomID, proposed, r.ConfirmationCode),
				ConflictingReservationID: r.ID,
			}
		}
	}
	return nil
}

// Check は区間の検証と重複判定をまとめて行う
func (d *Detector) Check(roomID string, proposed stay.DateRange, existing []reservation.Reservation, now time.Time) error {
	if err := d.ValidateStay(proposed, now); err != nil {
		return err
	}
	return FindConflict(roomID, proposed, existing, "")
}
