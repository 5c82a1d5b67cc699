package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/SongJunSub/Reservation-sub005/internal/domain/lock"
	"github.com/SongJunSub/Reservation-sub005/internal/pkg/apperror"
	"github.com/SongJunSub/Reservation-sub005/internal/pkg/logger"
	"github.com/SongJunSub/Reservation-sub005/internal/pkg/metrics"
)

// acquireRoomLock は客室ロックを取得し、解放までの間 TTL の 1/3 ごとに延長する
// 延長に失敗すると返した ctx を取り消す。コミット前に lockHeld で確認すること
func acquireRoomLock(ctx context.Context, locks lock.Manager, roomID string, opts lock.RetryOptions, m *metrics.Metrics) (context.Context, func(), error) {
	if locks == nil {
		return ctx, func() {}, nil
	}
	start := time.Now()
	l, err := lock.AcquireWithRetry(ctx, locks, lock.RoomKey(roomID), opts)
	m.ObserveLock(time.Since(start).Seconds(), err == nil)
	if err != nil {
		return nil, nil, fmt.Errorf("客室 %s は他の処理中です: %w", roomID, err)
	}

	lctx, lost := context.WithCancelCause(ctx)
	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		keepRoomLock(lctx, l, roomID, opts.TTL, stop, lost)
	}()

	return lctx, func() {
		close(stop)
		<-done
		err := l.Release(context.WithoutCancel(ctx))
		lost(nil)
		switch {
		case err == nil:
		case errors.Is(err, lock.ErrNotOwned):
			logger.Error("客室ロックは解放前に失われていました", logger.RoomID(roomID), zap.Error(err))
		default:
			logger.Warn("客室ロックの解放に失敗しました", logger.RoomID(roomID), zap.Error(err))
		}
	}, nil
}

func keepRoomLock(ctx context.Context, l lock.Lock, roomID string, ttl time.Duration, stop <-chan struct{}, lost context.CancelCauseFunc) {
	interval := ttl / 3
	if interval <= 0 {
		return
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-t.C:
			ectx, cancel := context.WithTimeout(context.WithoutCancel(ctx), interval)
			err := l.Extend(ectx, ttl)
			cancel()
			if err != nil {
				logger.Error("客室ロックを延長できませんでした。処理を中断します", logger.RoomID(roomID), zap.Error(err))
				lost(apperror.Infrastructure("客室ロックを失いました", err))
				return
			}
		}
	}
}

// lockHeld はロック取得後の ctx が取り消されていればその原因を返す
func lockHeld(ctx context.Context) error {
	return context.Cause(ctx)
}
