package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/SongJunSub/Reservation-sub005/internal/cache"
)

// CacheBackend は Redis をキャッシュの保存先として使う
type CacheBackend struct {
	client *redis.Client
	prefix string
}

// NewCacheBackend は新しい CacheBackend を作成する
func NewCacheBackend(client *redis.Client) *CacheBackend {
	return &CacheBackend{client: client, prefix: "cache:"}
}

func (c *CacheBackend) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, cache.ErrCacheMiss
		}
		return nil, fmt.Errorf("キャッシュ取得に失敗: %w", err)
	}
	return val, nil
}

func (c *CacheBackend) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := c.client.Set(ctx, c.prefix+key, value, ttl).Err(); err != nil {
		return fmt.Errorf("キャッシュ保存に失敗: %w", err)
	}
	return nil
}

// Delete はキーをまとめて削除する。存在しないキーは無視する
func (c *CacheBackend) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	names := make([]string, len(keys))
	for i, k := range keys {
		names[i] = c.prefix + k
	}
	if err := c.client.Del(ctx, names...).Err(); err != nil {
		return fmt.Errorf("キャッシュ無効化に失敗: %w", err)
	}
	return nil
}
