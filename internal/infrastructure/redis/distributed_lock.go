package redis

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/SongJunSub/Reservation-sub005/internal/domain/lock"
	"github.com/SongJunSub/Reservation-sub005/internal/pkg/apperror"
)

const lockKeyPrefix = "hotel:lock:"

// KEYS[1] の値が ARGV[1] (トークン) と一致するときだけ操作する
var (
	unlockIfOwner = redis.NewScript(`
if redis.call("GET", KEYS[1]) ~= ARGV[1] then
	return 0
end
return redis.call("DEL", KEYS[1])`)

	refreshIfOwner = redis.NewScript(`
if redis.call("GET", KEYS[1]) ~= ARGV[1] then
	return 0
end
return redis.call("PEXPIRE", KEYS[1], ARGV[2])`)
)

// LockManager は SET NX PX による客室ロック
// 値にはロックごとのトークンを入れ、解放と延長はトークンが一致する場合に限る
type LockManager struct {
	client *redis.Client
}

func NewLockManager(client *redis.Client) *LockManager {
	return &LockManager{client: client}
}

func (m *LockManager) AcquireLock(ctx context.Context, key string, ttl time.Duration) (lock.Lock, error) {
	l := &RoomLock{client: m.client, key: lockKeyPrefix + key, token: uuid.NewString()}

	ok, err := m.client.SetNX(ctx, l.key, l.token, ttl).Result()
	switch {
	case err != nil:
		return nil, apperror.Infrastructure("Redis でロックを取得できません", err)
	case !ok:
		return nil, lock.ErrNotAcquired
	}
	return l, nil
}

// RoomLock は取得済みの Redis ロック
type RoomLock struct {
	client *redis.Client
	key    string
	token  string
}

func (l *RoomLock) Release(ctx context.Context) error {
	return l.runOwned(ctx, unlockIfOwner, "ロック解放")
}

func (l *RoomLock) Extend(ctx context.Context, ttl time.Duration) error {
	return l.runOwned(ctx, refreshIfOwner, "ロック延長", ttl.Milliseconds())
}

// runOwned はスクリプトが 0 を返したら他者に奪われたか期限切れとみなす
func (l *RoomLock) runOwned(ctx context.Context, script *redis.Script, op string, extra ...any) error {
	args := append([]any{l.token}, extra...)
	n, err := script.Run(ctx, l.client, []string{l.key}, args...).Int64()
	if err != nil {
		return apperror.Infrastructure(op+"に失敗しました", err)
	}
	if n == 0 {
		return lock.ErrNotOwned
	}
	return nil
}
