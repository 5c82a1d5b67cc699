// Package policy はキャンセル時の返金額を計算する。
// 金額はすべて decimal で扱い、浮動小数点は使わない。
package policy

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/SongJunSub/Reservation-sub005/internal/pkg/apperror"
)

var hundred = decimal.NewFromInt(100)

// Policy のエラー定義
var (
	ErrNoTiers            = apperror.Validation("キャンセルポリシーの段階が1つもありません")
	ErrDuplicateThreshold = apperror.Validation("キャンセルポリシーの閾値が重複しています")
	ErrNegativeThreshold  = apperror.Validation("キャンセルポリシーの閾値は0以上である必要があります")
	ErrInvalidPercentage  = apperror.Validation("返金率は0〜100%である必要があります")
	ErrIncreasingRefund   = apperror.Validation("返金率は閾値が小さくなるほど増えてはいけません")
	ErrNegativeFee        = apperror.Validation("手数料は0以上である必要があります")
)

// Tier はチェックイン時刻までの残り時間が Threshold 以上なら RefundPercentage% を返金する段階
type Tier struct {
	Threshold        time.Duration
	RefundPercentage decimal.Decimal
}

// NewTier は時間と百分率から Tier を作る
func NewTier(hoursBeforeCheckIn int, refundPercent int64) Tier {
	return Tier{
		Threshold:        time.Duration(hoursBeforeCheckIn) * time.Hour,
		RefundPercentage: decimal.NewFromInt(refundPercent),
	}
}

// DefaultTiers は 7日前まで100%、3日前まで50%、前日まで20% の段階
func DefaultTiers() []Tier {
	return []Tier{NewTier(168, 100), NewTier(72, 50), NewTier(24, 20)}
}

func (t Tier) String() string {
	return fmt.Sprintf("%s前まで%s%%", t.Threshold, t.RefundPercentage)
}

// CancellationPolicy は閾値の降順に並んだ返金段階と手数料
// 不変条件: 閾値は狭義単調減少、返金率は単調非増加
type CancellationPolicy struct {
	tiers         []Tier
	processingFee decimal.Decimal
	scale         int32
}

// Option は CancellationPolicy の設定
type Option func(*CancellationPolicy)

// WithProcessingFee は返金額から差し引く定額手数料を設定する
func WithProcessingFee(fee decimal.Decimal) Option {
	return func(p *CancellationPolicy) { p.processingFee = fee }
}

// WithScale は金額の小数桁数を設定する（KRW/JPY は 0）
func WithScale(scale int32) Option {
	return func(p *CancellationPolicy) { p.scale = scale }
}

// NewCancellationPolicy は段階を閾値の降順に並べ替えて検証する
func NewCancellationPolicy(tiers []Tier, opts ...Option) (*CancellationPolicy, error) {
	if len(tiers) == 0 {
		return nil, ErrNoTiers
	}
	sorted := make([]Tier, len(tiers))
	copy(sorted, tiers)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Threshold > sorted[j].Threshold })

	for i, t := range sorted {
		if t.Threshold < 0 {
			return nil, ErrNegativeThreshold
		}
		if t.RefundPercentage.IsNegative() || t.RefundPercentage.GreaterThan(hundred) {
			return nil, ErrInvalidPercentage
		}
		if i == 0 {
			continue
		}
		prev := sorted[i-1]
		if prev.Threshold == t.Threshold {
			return nil, ErrDuplicateThreshold
		}
		if t.RefundPercentage.GreaterThan(prev.RefundPercentage) {
			return nil, ErrIncreasingRefund
		}
	}

	p := &CancellationPolicy{tiers: sorted, processingFee: decimal.Zero}
	for _, opt := range opts {
		opt(p)
	}
	if p.processingFee.IsNegative() {
		return nil, ErrNegativeFee
	}
	return p, nil
}

// Tiers は閾値の降順の段階を返す
func (p *CancellationPolicy) Tiers() []Tier {
	out := make([]Tier, len(p.tiers))
	copy(out, p.tiers)
	return out
}

// RefundBreakdown は返金額の内訳
type RefundBreakdown struct {
	Total               decimal.Decimal `json:"total"`
	RefundPercentage    decimal.Decimal `json:"refund_percentage"`
	RefundableAmount    decimal.Decimal `json:"refundable_amount"`
	NonRefundableAmount decimal.Decimal `json:"non_refundable_amount"`
	ProcessingFee       decimal.Decimal `json:"processing_fee"`
	NetRefund           decimal.Decimal `json:"net_refund"`
	TimeUntilCheckIn    time.Duration   `json:"time_until_check_in"`
	AppliedTier         *Tier           `json:"applied_tier,omitempty"`
	PolicyWaived        bool            `json:"policy_waived"`
}

// HoursUntilCheckIn はチェックインまでの残り時間（時間単位、切り捨て）
func (b RefundBreakdown) HoursUntilCheckIn() int64 {
	return int64(b.TimeUntilCheckIn / time.Hour)
}

// SelectTier は残り時間以下の閾値を持つ最初の段階を返す（閾値ちょうどはその段階）
func (p *CancellationPolicy) SelectTier(untilCheckIn time.Duration) (Tier, bool) {
	for _, t := range p.tiers {
		if t.Threshold <= untilCheckIn {
			return t, true
		}
	}
	return Tier{}, false
}

// Calculate は返金額を計算する
// checkInStart はホテルのタイムゾーンでのチェックイン日0時
func (p *CancellationPolicy) Calculate(total decimal.Decimal, checkInStart, now time.Time) RefundBreakdown {
	until := checkInStart.Sub(now)
	b := RefundBreakdown{
		Total:            total,
		RefundPercentage: decimal.Zero,
		TimeUntilCheckIn: until,
	}
	if tier, ok := p.SelectTier(until); ok {
		b.RefundPercentage = tier.RefundPercentage
		b.AppliedTier = &tier
	}
	return p.settle(b)
}

// FullRefund はポリシーを適用せず全額を返金対象とする（ホテル都合のキャンセル）
func (p *CancellationPolicy) FullRefund(total decimal.Decimal, checkInStart, now time.Time) RefundBreakdown {
	return p.settle(RefundBreakdown{
		Total:            total,
		RefundPercentage: hundred,
		TimeUntilCheckIn: checkInStart.Sub(now),
		PolicyWaived:     true,
	})
}

func (p *CancellationPolicy) settle(b RefundBreakdown) RefundBreakdown {
	// 端数は切り捨て
	b.RefundableAmount = b.Total.Mul(b.RefundPercentage).Div(hundred).Truncate(p.scale)
	b.NonRefundableAmount = b.Total.Sub(b.RefundableAmount)
	b.ProcessingFee = decimal.Zero
	if b.RefundableAmount.IsPositive() && !b.PolicyWaived {
		b.ProcessingFee = decimal.Min(p.processingFee, b.RefundableAmount)
	}
	b.NetRefund = b.RefundableAmount.Sub(b.ProcessingFee)
	return b
}
