package memcache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SongJunSub/Reservation-sub005/internal/cache"
)

func TestExpiration(t *testing.T) {
	tests := []struct {
		name string
		ttl  time.Duration
		want int32
	}{
		{"無期限", 0, 0},
		{"秒未満は切り上げ", 300 * time.Millisecond, 1},
		{"5分", 5 * time.Minute, 300},
		{"30日を超える値は30日", 40 * 24 * time.Hour, 30 * 24 * 60 * 60},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, expiration(tt.ttl))
		})
	}
}

func setupBackend(t *testing.T) *Backend {
	t.Helper()
	addr := os.Getenv("MEMCACHED_ADDR")
	if addr == "" {
		addr = "localhost:11211"
	}
	b := New([]string{addr}, 200*time.Millisecond)
	if err := b.Ping(context.Background()); err != nil {
		t.Skipf("Memcached接続エラー: %v", err)
	}
	return b
}

func TestBackend_SetGetDelete(t *testing.T) {
	b := setupBackend(t)
	ctx := context.Background()
	key := "hotel:test:" + time.Now().Format("150405.000000")

	_, err := b.Get(ctx, key)
	assert.ErrorIs(t, err, cache.ErrCacheMiss)

	require.NoError(t, b.Set(ctx, key, []byte(`{"ok":true}`), time.Minute))
	got, err := b.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, string(got))

	require.NoError(t, b.Delete(ctx, key, key+":missing"))
	_, err = b.Get(ctx, key)
	assert.ErrorIs(t, err, cache.ErrCacheMiss)
}
