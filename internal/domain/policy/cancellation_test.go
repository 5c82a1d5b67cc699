package policy

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SongJunSub/Reservation-sub005/internal/pkg/apperror"
)

func standardPolicy(t *testing.T, opts ...Option) *CancellationPolicy {
	t.Helper()
	p, err := NewCancellationPolicy([]Tier{NewTier(168, 100), NewTier(72, 50), NewTier(24, 20)}, opts...)
	require.NoError(t, err)
	return p
}

func won(v int64) decimal.Decimal {
	return decimal.NewFromInt(v)
}

var checkInStart = time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)

func TestCalculate_Scenario(t *testing.T) {
	p := standardPolicy(t)
	total := won(300000)

	tests := []struct {
		name       string
		before     time.Duration
		wantRefund decimal.Decimal
		wantPct    decimal.Decimal
	}{
		{"8日前は全額返金", 8 * 24 * time.Hour, won(300000), won(100)},
		{"100時間前は50%", 100 * time.Hour, won(150000), won(50)},
		{"48時間前は20%", 48 * time.Hour, won(60000), won(20)},
		{"10時間前は返金なし", 10 * time.Hour, won(0), won(0)},
		{"チェックイン後は返金なし", -time.Hour, won(0), won(0)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := p.Calculate(total, checkInStart, checkInStart.Add(-tt.before))
			assert.True(t, tt.wantRefund.Equal(b.NetRefund), "返金額 %s", b.NetRefund)
			assert.True(t, tt.wantRefund.Equal(b.RefundableAmount))
			assert.True(t, tt.wantPct.Equal(b.RefundPercentage))
			assert.True(t, total.Equal(b.RefundableAmount.Add(b.NonRefundableAmount)), "内訳の合計は総額")
			assert.Equal(t, tt.before, b.TimeUntilCheckIn)
		})
	}
}

func TestCalculate_TierBoundary(t *testing.T) {
	p := standardPolicy(t)
	total := won(300000)

	tests := []struct {
		name    string
		now     time.Time
		wantPct int64
	}{
		{"168時間ちょうどは100%", checkInStart.Add(-168 * time.Hour), 100},
		{"168時間の1秒後は50%", checkInStart.Add(-168*time.Hour + time.Second), 50},
		{"72時間ちょうどは50%", checkInStart.Add(-72 * time.Hour), 50},
		{"72時間の1秒後は20%", checkInStart.Add(-72*time.Hour + time.Second), 20},
		{"24時間ちょうどは20%", checkInStart.Add(-24 * time.Hour), 20},
		{"24時間の1秒後は0%", checkInStart.Add(-24*time.Hour + time.Second), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := p.Calculate(total, checkInStart, tt.now)
			assert.True(t, won(tt.wantPct).Equal(b.RefundPercentage), "返金率 %s", b.RefundPercentage)
			if tt.wantPct == 0 {
				assert.Nil(t, b.AppliedTier)
			} else {
				require.NotNil(t, b.AppliedTier)
			}
		})
	}
}

func TestCalculate_ProcessingFee(t *testing.T) {
	p := standardPolicy(t, WithProcessingFee(won(10000)))

	b := p.Calculate(won(300000), checkInStart, checkInStart.Add(-100*time.Hour))
	assert.True(t, won(150000).Equal(b.RefundableAmount))
	assert.True(t, won(10000).Equal(b.ProcessingFee))
	assert.True(t, won(140000).Equal(b.NetRefund))

	// 手数料が返金額を超えても返金は負にならない
	small := p.Calculate(won(30000), checkInStart, checkInStart.Add(-30*time.Hour))
	assert.True(t, won(6000).Equal(small.RefundableAmount))
	assert.True(t, small.NetRefund.IsZero())

	// 返金なしなら手数料も取らない
	none := p.Calculate(won(300000), checkInStart, checkInStart.Add(-time.Hour))
	assert.True(t, none.ProcessingFee.IsZero())
	assert.True(t, none.NetRefund.IsZero())
}

func TestCalculate_Rounding(t *testing.T) {
	p, err := NewCancellationPolicy([]Tier{NewTier(24, 33)})
	require.NoError(t, err)

	b := p.Calculate(won(1001), checkInStart, checkInStart.Add(-48*time.Hour))
	assert.Equal(t, "330", b.RefundableAmount.String())
	assert.Equal(t, "671", b.NonRefundableAmount.String())

	cents, err := NewCancellationPolicy([]Tier{NewTier(24, 33)}, WithScale(2))
	require.NoError(t, err)
	b = cents.Calculate(decimal.RequireFromString("100.01"), checkInStart, checkInStart.Add(-48*time.Hour))
	assert.Equal(t, "33", b.RefundableAmount.String())
}

func TestFullRefund(t *testing.T) {
	p := standardPolicy(t, WithProcessingFee(won(10000)))

	b := p.FullRefund(won(300000), checkInStart, checkInStart.Add(-time.Hour))
	assert.True(t, b.PolicyWaived)
	assert.True(t, won(300000).Equal(b.NetRefund))
	assert.True(t, b.ProcessingFee.IsZero())
	assert.True(t, b.NonRefundableAmount.IsZero())
}

func TestNewCancellationPolicy_Validation(t *testing.T) {
	tests := []struct {
		name    string
		tiers   []Tier
		opts    []Option
		wantErr error
	}{
		{"段階なし", nil, nil, ErrNoTiers},
		{"閾値の重複", []Tier{NewTier(72, 50), NewTier(72, 20)}, nil, ErrDuplicateThreshold},
		{"閾値が負", []Tier{NewTier(-1, 10)}, nil, ErrNegativeThreshold},
		{"返金率が100超", []Tier{NewTier(24, 120)}, nil, ErrInvalidPercentage},
		{"返金率が負", []Tier{NewTier(24, -5)}, nil, ErrInvalidPercentage},
		{"閾値が小さいほど返金率が高い", []Tier{NewTier(168, 50), NewTier(72, 80)}, nil, ErrIncreasingRefund},
		{"手数料が負", []Tier{NewTier(24, 20)}, []Option{WithProcessingFee(won(-1))}, ErrNegativeFee},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewCancellationPolicy(tt.tiers, tt.opts...)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.ErrorIs(t, err, apperror.ErrValidation)
		})
	}
}

func TestNewCancellationPolicy_SortsTiers(t *testing.T) {
	p, err := NewCancellationPolicy([]Tier{NewTier(24, 20), NewTier(168, 100), NewTier(72, 50)})
	require.NoError(t, err)

	tiers := p.Tiers()
	require.Len(t, tiers, 3)
	assert.Equal(t, 168*time.Hour, tiers[0].Threshold)
	assert.Equal(t, 72*time.Hour, tiers[1].Threshold)
	assert.Equal(t, 24*time.Hour, tiers[2].Threshold)

	// 返却値を変更しても内部状態は変わらない
	tiers[0].Threshold = 0
	assert.Equal(t, 168*time.Hour, p.Tiers()[0].Threshold)
}

func TestRefundBreakdown_HoursUntilCheckIn(t *testing.T) {
	b := RefundBreakdown{TimeUntilCheckIn: 100*time.Hour + 59*time.Minute}
	assert.Equal(t, int64(100), b.HoursUntilCheckIn())
}
