// Package lock は客室単位の排他ロックのインターフェースを定義する。
// 同じ客室への更新は直列化し、別の客室同士は共有ロックを持たずに並行して進む。
package lock

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/SongJunSub/Reservation-sub005/internal/pkg/apperror"
)

var (
	ErrNotAcquired = apperror.Infrastructure("ロックを取得できませんでした", nil)
	ErrNotOwned    = apperror.Infrastructure("ロックの所有者ではありません", nil)
)

// Lock は取得済みのロック
type Lock interface {
	// Release はロックを解放する
	Release(ctx context.Context) error
	// Extend はロックの有効期限を延長する
	Extend(ctx context.Context, ttl time.Duration) error
}

// Manager はロックを取得する
type Manager interface {
	// AcquireLock はロックを取得する。取得できなければ ErrNotAcquired を返す
	AcquireLock(ctx context.Context, key string, ttl time.Duration) (Lock, error)
}

// RoomKey は客室ロックのキー
func RoomKey(roomID string) string {
	return "room:" + roomID
}

// RetryOptions はロック取得のリトライ設定
type RetryOptions struct {
	TTL        time.Duration
	MaxRetries int
	RetryDelay time.Duration
	MaxWait    time.Duration
}

// AcquireWithRetry は ErrNotAcquired の場合のみ指数バックオフで再試行する
// それ以外のエラーは即座に返す
func AcquireWithRetry(ctx context.Context, m Manager, key string, opts RetryOptions) (Lock, error) {
	eb := backoff.NewExponentialBackOff()
	if opts.RetryDelay > 0 {
		eb.InitialInterval = opts.RetryDelay
	}
	eb.MaxElapsedTime = opts.MaxWait

	var b backoff.BackOff = eb
	if opts.MaxRetries > 0 {
		b = backoff.WithMaxRetries(eb, uint64(opts.MaxRetries))
	}

	var acquired Lock
	op := func() error {
		l, err := m.AcquireLock(ctx, key, opts.TTL)
		if err != nil {
			if errors.Is(err, ErrNotAcquired) {
				return err
			}
			return backoff.Permanent(err)
		}
		acquired = l
		return nil
	}
	if err := backoff.Retry(op, backoff.WithContext(b, ctx)); err != nil {
		return nil, err
	}
	return acquired, nil
}
