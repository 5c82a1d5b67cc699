package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SongJunSub/Reservation-sub005/internal/domain/lock"
)

func TestLockManager_AcquireLock(t *testing.T) {
	ctx := context.Background()

	t.Run("ロックを取得できる", func(t *testing.T) {
		m := NewLockManager(0)
		l, err := m.AcquireLock(ctx, "room:1", time.Second)
		require.NoError(t, err)
		require.NoError(t, l.Release(ctx))
	})

	t.Run("待たない設定では同じキーのロックは取得できない", func(t *testing.T) {
		m := NewLockManager(0)
		l, err := m.AcquireLock(ctx, "room:1", time.Second)
		require.NoError(t, err)
		defer l.Release(ctx)

		_, err = m.AcquireLock(ctx, "room:1", time.Second)
		assert.ErrorIs(t, err, lock.ErrNotAcquired)

		other, err := m.AcquireLock(ctx, "room:2", time.Second)
		require.NoError(t, err, "別のキーは独立")
		defer other.Release(ctx)
	})

	t.Run("解放されるまで待って取得できる", func(t *testing.T) {
		m := NewLockManager(time.Second)
		l, err := m.AcquireLock(ctx, "room:1", 5*time.Second)
		require.NoError(t, err)

		go func() {
			time.Sleep(50 * time.Millisecond)
			_ = l.Release(ctx)
		}()

		start := time.Now()
		l2, err := m.AcquireLock(ctx, "room:1", 5*time.Second)
		require.NoError(t, err)
		assert.Less(t, time.Since(start), time.Second)
		require.NoError(t, l2.Release(ctx))
	})

	t.Run("待ち時間を過ぎると取得できない", func(t *testing.T) {
		m := NewLockManager(50 * time.Millisecond)
		l, err := m.AcquireLock(ctx, "room:1", 5*time.Second)
		require.NoError(t, err)
		defer l.Release(ctx)

		_, err = m.AcquireLock(ctx, "room:1", time.Second)
		assert.ErrorIs(t, err, lock.ErrNotAcquired)
	})

	t.Run("有効期限切れのロックは取得できる", func(t *testing.T) {
		m := NewLockManager(time.Second)
		l, err := m.AcquireLock(ctx, "room:1", 20*time.Millisecond)
		require.NoError(t, err)

		l2, err := m.AcquireLock(ctx, "room:1", time.Second)
		require.NoError(t, err)
		defer l2.Release(ctx)

		// 期限切れ後の元の所有者は解放も延長もできない
		assert.ErrorIs(t, l.Release(ctx), lock.ErrNotOwned)
		assert.ErrorIs(t, l.Extend(ctx, time.Second), lock.ErrNotOwned)
	})

	t.Run("コンテキストのキャンセルで待機を中断する", func(t *testing.T) {
		m := NewLockManager(5 * time.Second)
		l, err := m.AcquireLock(ctx, "room:1", 5*time.Second)
		require.NoError(t, err)
		defer l.Release(ctx)

		cctx, cancel := context.WithTimeout(ctx, 30*time.Millisecond)
		defer cancel()
		_, err = m.AcquireLock(cctx, "room:1", time.Second)
		assert.ErrorIs(t, err, lock.ErrNotAcquired)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})

	t.Run("延長できる", func(t *testing.T) {
		m := NewLockManager(0)
		l, err := m.AcquireLock(ctx, "room:1", 50*time.Millisecond)
		require.NoError(t, err)
		require.NoError(t, l.Extend(ctx, 5*time.Second))

		time.Sleep(80 * time.Millisecond)
		_, err = m.AcquireLock(ctx, "room:1", time.Second)
		assert.ErrorIs(t, err, lock.ErrNotAcquired)
		require.NoError(t, l.Release(ctx))
		assert.ErrorIs(t, l.Release(ctx), lock.ErrNotOwned)
	})
}
