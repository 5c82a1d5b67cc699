// Package cache はリードスルーキャッシュと、状態変更時の明示的な無効化を提供する。
//
// 変更を行った呼び出し元は、成功を返す前に Invalidate を呼ぶことで自身の書き込みを直後に読める。
// 他の読み手が古い値を見る期間は Invalidate の呼び出し時間で抑えられ、TTL には依存しない。
// 無効化はバックエンドにマーカーを残すので、同じバックエンドを共有する別プロセスの読み込みも書き戻さない。
// キャッシュの障害は常に致命的ではなく、ストアからの直接読み込みに縮退する。
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/SongJunSub/Reservation-sub005/internal/pkg/logger"
	"github.com/SongJunSub/Reservation-sub005/internal/pkg/metrics"
)

// ErrCacheMiss はキーが存在しないことを表す
var ErrCacheMiss = errors.New("キャッシュが見つかりません")

// Backend はキャッシュの保存先（Redis, Memcached, プロセス内）
type Backend interface {
	// Get は値を取得する。存在しなければ ErrCacheMiss を返す
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// Loader はキャッシュミス時にストアから値を読み込む
type Loader func(ctx context.Context, id string) (any, error)

// Stats はキャッシュの観測用カウンタ
type Stats struct {
	Hits                 uint64
	Misses               uint64
	Errors               uint64
	Invalidations        uint64
	InvalidationFailures uint64
}

// Config は Coordinator の設定
type Config struct {
	TTL               time.Duration
	InvalidateTimeout time.Duration
	// MarkTTL は無効化マーカーの保持期間。これより長い読み込みの競合は検出できない
	MarkTTL time.Duration
}

// Coordinator はキャッシュの読み込み・無効化・ウォームアップを調整する
type Coordinator struct {
	backend Backend
	cfg     Config
	metrics *metrics.Metrics
	group   singleflight.Group

	mu      sync.RWMutex
	loaders map[string]Loader

	// 無効化のたびに進む。読み込み中に無効化があった値は保存しない
	epoch atomic.Uint64

	hits, misses, errs, invalidations, invalidationFailures atomic.Uint64
}

// NewCoordinator は Coordinator を作成する（m は nil 可）
func NewCoordinator(backend Backend, cfg Config, m *metrics.Metrics) *Coordinator {
	if cfg.TTL <= 0 {
		cfg.TTL = 5 * time.Minute
	}
	if cfg.InvalidateTimeout <= 0 {
		cfg.InvalidateTimeout = 200 * time.Millisecond
	}
	if cfg.MarkTTL <= 0 {
		cfg.MarkTTL = 30 * time.Second
	}
	return &Coordinator{
		backend: backend,
		cfg:     cfg,
		metrics: m,
		loaders: make(map[string]Loader),
	}
}

// RegisterLoader はエンティティ種別ごとのローダーを登録する
func (c *Coordinator) RegisterLoader(entity string, l Loader) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.loaders[entity] = l
}

func (c *Coordinator) loader(entity string) (Loader, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	l, ok := c.loaders[entity]
	return l, ok
}

// Get はキャッシュから値を取得する。見つからないか障害時は false
func (c *Coordinator) Get(ctx context.Context, key Key) ([]byte, bool) {
	raw, err := c.backend.Get(ctx, key.String())
	switch {
	case err == nil:
		c.hits.Add(1)
		c.metrics.ObserveCacheLookup("hit")
		return raw, true
	case errors.Is(err, ErrCacheMiss):
		c.misses.Add(1)
		c.metrics.ObserveCacheLookup("miss")
	default:
		c.errs.Add(1)
		c.metrics.ObserveCacheLookup("error")
		logger.Warn("キャッシュの取得に失敗しました。ストアから読み込みます",
			zap.String("key", key.String()), zap.Error(err))
	}
	return nil, false
}

// Set は値を保存する。失敗はログに残すだけで呼び出し元には返さない
func (c *Coordinator) Set(ctx context.Context, key Key, value any) {
	raw, err := json.Marshal(value)
	if err != nil {
		logger.Warn("キャッシュ値のシリアライズに失敗しました", zap.String("key", key.String()), zap.Error(err))
		return
	}
	if err := c.backend.Set(ctx, key.String(), raw, c.cfg.TTL); err != nil {
		logger.Warn("キャッシュの保存に失敗しました", zap.String("key", key.String()), zap.Error(err))
	}
}

// Guard は読み込み開始時点の無効化状態。読み込み後に StoreGuarded へ渡す
// epoch はこのプロセス内の無効化を、marks は共有バックエンド上の他インスタンスの無効化を検出する
type Guard struct {
	epoch uint64
	// マーカーを読めなかったキーは含まない。状態が分からないので保存しない
	marks map[string]string
}

// Guard は keys の現在の無効化状態を記録する。ストアから読む前に呼ぶ
func (c *Coordinator) Guard(ctx context.Context, keys ...Key) Guard {
	g := Guard{epoch: c.epoch.Load(), marks: make(map[string]string, len(keys))}
	for _, k := range keys {
		if mark, ok := c.readMark(ctx, k); ok {
			g.marks[k.String()] = mark
		}
	}
	return g
}

// StoreGuarded は g の取得以降に key が無効化されていない場合のみ保存する
// 保存中に無効化が割り込んだ場合は保存した値を削除する
func (c *Coordinator) StoreGuarded(ctx context.Context, key Key, value any, g Guard) bool {
	if !c.unchangedSince(ctx, key, g) {
		return false
	}
	raw, err := json.Marshal(value)
	if err != nil {
		logger.Warn("キャッシュ値のシリアライズに失敗しました", zap.String("key", key.String()), zap.Error(err))
		return false
	}
	if err := c.backend.Set(ctx, key.String(), raw, c.cfg.TTL); err != nil {
		logger.Warn("キャッシュの保存に失敗しました", zap.String("key", key.String()), zap.Error(err))
		return false
	}
	if c.unchangedSince(ctx, key, g) {
		return true
	}

	// Set の完了前に無効化が走った。書き戻した古い値を消す
	dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.cfg.InvalidateTimeout)
	defer cancel()
	if err := c.backend.Delete(dctx, key.String()); err != nil {
		c.invalidationFailures.Add(1)
		c.metrics.ObserveInvalidation(false)
		logger.Warn("無効化と競合した値の削除に失敗しました。TTLまで古い値が残ります",
			zap.String("key", key.String()), zap.Error(err))
	}
	return false
}

func (c *Coordinator) unchangedSince(ctx context.Context, key Key, g Guard) bool {
	if c.epoch.Load() != g.epoch {
		return false
	}
	before, tracked := g.marks[key.String()]
	if !tracked {
		return false
	}
	mark, ok := c.readMark(ctx, key)
	return ok && mark == before
}

// readMark は無効化マーカーを読む。未設定なら空文字列
func (c *Coordinator) readMark(ctx context.Context, key Key) (string, bool) {
	raw, err := c.backend.Get(ctx, markName(key))
	switch {
	case err == nil:
		return string(raw), true
	case errors.Is(err, ErrCacheMiss):
		return "", true
	default:
		logger.Debug("無効化マーカーを読めません", zap.String("key", key.String()), zap.Error(err))
		return "", false
	}
}

func markName(k Key) string {
	return k.String() + "#inv"
}

// ReadThrough はキャッシュを読み、なければ load の結果を保存して返す
// 同じキーへの同時ミスは1回の読み込みにまとめる
func ReadThrough[T any](ctx context.Context, c *Coordinator, key Key, load func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if raw, ok := c.Get(ctx, key); ok {
		var v T
		if err := json.Unmarshal(raw, &v); err == nil {
			return v, nil
		}
		logger.Warn("キャッシュ値の復元に失敗しました", zap.String("key", key.String()))
	}

	v, err, _ := c.group.Do(key.String(), func() (any, error) {
		g := c.Guard(ctx, key)
		v, err := load(ctx)
		if err != nil {
			return nil, err
		}
		c.StoreGuarded(ctx, key, v, g)
		return v, nil
	})
	if err != nil {
		return zero, err
	}
	return v.(T), nil
}

// Invalidate は無効化マーカーを更新してからキーを削除する。InvalidateTimeout で打ち切り、失敗は警告ログに残す
// 呼び出し元の状態変更は既に確定しているため、エラーは情報としてのみ返す
func (c *Coordinator) Invalidate(ctx context.Context, keys ...Key) error {
	if len(keys) == 0 {
		return nil
	}
	c.epoch.Add(1)

	names := make([]string, len(keys))
	for i, k := range keys {
		names[i] = k.String()
		c.group.Forget(names[i])
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.InvalidateTimeout)
	defer cancel()

	token := []byte(uuid.NewString())
	var errs []error
	for _, k := range keys {
		if err := c.backend.Set(ctx, markName(k), token, c.cfg.MarkTTL); err != nil {
			errs = append(errs, err)
			break
		}
	}
	if err := c.backend.Delete(ctx, names...); err != nil {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		c.invalidationFailures.Add(1)
		c.metrics.ObserveInvalidation(false)
		logger.Warn("キャッシュの無効化に失敗しました。古い値が残っている可能性があります",
			zap.Strings("keys", names), zap.Error(err))
		return fmt.Errorf("キャッシュ無効化に失敗: %w", err)
	}
	c.invalidations.Add(uint64(len(keys)))
	c.metrics.ObserveInvalidation(true)
	return nil
}

// Warm は登録済みローダーで値を読み込んでキャッシュに保存し、保存できた件数を返す
// 読み込み中に無効化されたキーは保存しない
func (c *Coordinator) Warm(ctx context.Context, keys []Key) int {
	warmed := 0
	for _, k := range keys {
		if ctx.Err() != nil {
			break
		}
		load, ok := c.loader(k.Entity)
		if !ok {
			logger.Debug("ローダー未登録のキーはウォームアップしません", zap.String("key", k.String()))
			continue
		}
		g := c.Guard(ctx, k)
		v, err := load(ctx, k.ID)
		if err != nil {
			logger.Debug("ウォームアップの読み込みに失敗しました", zap.String("key", k.String()), zap.Error(err))
			continue
		}
		if c.StoreGuarded(ctx, k, v, g) {
			warmed++
		}
	}
	return warmed
}

// Stats はカウンタのスナップショットを返す
func (c *Coordinator) Stats() Stats {
	return Stats{
		Hits:                 c.hits.Load(),
		Misses:               c.misses.Load(),
		Errors:               c.errs.Load(),
		Invalidations:        c.invalidations.Load(),
		InvalidationFailures: c.invalidationFailures.Load(),
	}
}
