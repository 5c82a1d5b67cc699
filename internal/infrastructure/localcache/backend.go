// Package localcache はプロセス内の cache.Backend 実装（ccache）
// 単一プロセス構成や、共有キャッシュを使わないテスト向け
package localcache

import (
	"context"
	"time"

	"github.com/karlseguin/ccache/v3"

	"github.com/SongJunSub/Reservation-sub005/internal/cache"
)

// Backend は ccache を使ったキャッシュ
type Backend struct {
	c *ccache.Cache[[]byte]
}

// New は最大 maxSize 件を保持する Backend を作成する
func New(maxSize int64) *Backend {
	if maxSize <= 0 {
		maxSize = 10000
	}
	return &Backend{c: ccache.New(ccache.Configure[[]byte]().MaxSize(maxSize))}
}

// Get は期限内の値を返す
func (b *Backend) Get(ctx context.Context, key string) ([]byte, error) {
	item := b.c.Get(key)
	if item == nil || item.Expired() {
		return nil, cache.ErrCacheMiss
	}
	return item.Value(), nil
}

func (b *Backend) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	b.c.Set(key, value, ttl)
	return nil
}

func (b *Backend) Delete(ctx context.Context, keys ...string) error {
	for _, k := range keys {
		b.c.Delete(k)
	}
	return nil
}

// ItemCount は保持している件数を返す
func (b *Backend) ItemCount() int {
	return b.c.ItemCount()
}

// Close はバックグラウンドのワーカーを止める
func (b *Backend) Close() {
	b.c.Stop()
}
