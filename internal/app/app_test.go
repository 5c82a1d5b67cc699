package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SongJunSub/Reservation-sub005/internal/config"
)

func memoryConfig() *config.Config {
	cfg := config.Load()
	cfg.Database.Driver = "memory"
	cfg.Redis.Enabled = false
	cfg.Cache.Backend = "local"
	cfg.AMQP.URL = ""
	cfg.Booking.SweepInterval = time.Hour
	cfg.Policy.Tiers = []config.TierSpec{{HoursBeforeCheckIn: 72, RefundPercent: 50}}
	cfg.Policy.ProcessingFee = "0"
	cfg.Auth = config.AuthConfig{}
	return cfg
}

func TestNew_Memory(t *testing.T) {
	a, err := New(memoryConfig())
	require.NoError(t, err)

	a.Start(context.Background())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		assert.NoError(t, a.Shutdown(ctx))
	})

	for _, path := range []string{"/health", "/health/ready", "/metrics"} {
		rec := httptest.NewRecorder()
		a.Echo.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}
	assert.NotEmpty(t, a.Echo.Routes())
}

func TestNew_InvalidConfig(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*config.Config)
	}{
		{"未対応のDBドライバー", func(c *config.Config) { c.Database.Driver = "mysql" }},
		{"未対応のキャッシュ", func(c *config.Config) { c.Cache.Backend = "disk" }},
		{"Redisなしでredisキャッシュ", func(c *config.Config) { c.Cache.Backend = "redis" }},
		{"手数料の形式", func(c *config.Config) { c.Policy.ProcessingFee = "abc" }},
		{"ポリシーの段階なし", func(c *config.Config) { c.Policy.Tiers = nil }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := memoryConfig()
			tt.modify(cfg)

			_, err := New(cfg)
			assert.Error(t, err)
		})
	}
}

func TestBuildPolicy(t *testing.T) {
	p, err := buildPolicy(config.PolicyConfig{
		Tiers:         []config.TierSpec{{HoursBeforeCheckIn: 24, RefundPercent: 20}, {HoursBeforeCheckIn: 168, RefundPercent: 100}},
		ProcessingFee: "1000",
		CurrencyScale: 0,
	})
	require.NoError(t, err)

	checkIn := time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)
	b := p.Calculate(decimal.NewFromInt(100000), checkIn, checkIn.Add(-200*time.Hour))
	assert.True(t, decimal.NewFromInt(99000).Equal(b.NetRefund), b.NetRefund.String())
}
