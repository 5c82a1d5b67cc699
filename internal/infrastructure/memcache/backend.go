// Package memcache は Memcached を使った cache.Backend 実装
package memcache

import (
	"context"
	"errors"
	"time"

	"github.com/bradfitz/gomemcache/memcache"

	"github.com/SongJunSub/Reservation-sub005/internal/cache"
)

// Backend は Memcached のキャッシュ
type Backend struct {
	client *memcache.Client
}

// New は Backend を作成する。timeout は1回の操作の上限
func New(servers []string, timeout time.Duration) *Backend {
	client := memcache.New(servers...)
	if timeout > 0 {
		client.Timeout = timeout
	}
	return &Backend{client: client}
}

// Ping はすべてのサーバーに疎通確認する
func (b *Backend) Ping(ctx context.Context) error {
	return b.client.Ping()
}

func (b *Backend) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	item, err := b.client.Get(key)
	if err != nil {
		if errors.Is(err, memcache.ErrCacheMiss) {
			return nil, cache.ErrCacheMiss
		}
		return nil, err
	}
	return item.Value, nil
}

// Set は値を保存する。TTL は秒単位に切り上げる
func (b *Backend) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return b.client.Set(&memcache.Item{
		Key:        key,
		Value:      value,
		Expiration: expiration(ttl),
	})
}

// Delete はキーを削除する。存在しないキーは成功扱い
func (b *Backend) Delete(ctx context.Context, keys ...string) error {
	for _, k := range keys {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := b.client.Delete(k); err != nil && !errors.Is(err, memcache.ErrCacheMiss) {
			return err
		}
	}
	return nil
}

func expiration(ttl time.Duration) int32 {
	if ttl <= 0 {
		return 0
	}
	secs := int32((ttl + time.Second - 1) / time.Second)
	// 30日を超える値は Memcached では UNIX 時刻として解釈される
	const maxRelative = 30 * 24 * 60 * 60
	if secs > maxRelative {
		secs = maxRelative
	}
	return secs
}
