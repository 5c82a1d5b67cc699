package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/SongJunSub/Reservation-sub005/internal/domain/lock"
)

type heldLock struct {
	token    string
	expires  time.Time
	released chan struct{}
}

// LockManager はプロセス内の lock.Manager 実装
// 取得済みのキーは解放か有効期限切れまで wait の範囲で待つ
type LockManager struct {
	mu    sync.Mutex
	locks map[string]*heldLock
	wait  time.Duration
}

// NewLockManager は LockManager を作成する（wait が0なら待たない）
func NewLockManager(wait time.Duration) *LockManager {
	return &LockManager{locks: make(map[string]*heldLock), wait: wait}
}

// AcquireLock はロックを取得する
func (m *LockManager) AcquireLock(ctx context.Context, key string, ttl time.Duration) (lock.Lock, error) {
	deadline := time.Now().Add(m.wait)
	for {
		m.mu.Lock()
		now := time.Now()
		cur, ok := m.locks[key]
		if !ok || now.After(cur.expires) {
			if ok {
				close(cur.released)
			}
			held := &heldLock{token: uuid.NewString(), expires: now.Add(ttl), released: make(chan struct{})}
			m.locks[key] = held
			m.mu.Unlock()
			return &memLock{manager: m, key: key, token: held.token}, nil
		}
		released := cur.released
		wait := minDuration(time.Until(cur.expires), time.Until(deadline))
		m.mu.Unlock()

		if wait <= 0 {
			return nil, lock.ErrNotAcquired
		}
		timer := time.NewTimer(wait)
		select {
		case <-released:
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return nil, fmt.Errorf("%w: %w", lock.ErrNotAcquired, ctx.Err())
		}
		timer.Stop()
	}
}

func (m *LockManager) release(key, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.locks[key]
	if !ok || cur.token != token {
		return lock.ErrNotOwned
	}
	delete(m.locks, key)
	close(cur.released)
	return nil
}

func (m *LockManager) extend(key, token string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.locks[key]
	if !ok || cur.token != token || time.Now().After(cur.expires) {
		return lock.ErrNotOwned
	}
	cur.expires = time.Now().Add(ttl)
	return nil
}

type memLock struct {
	manager *LockManager
	key     string
	token   string
}

func (l *memLock) Release(ctx context.Context) error {
	return l.manager.release(l.key, l.token)
}

func (l *memLock) Extend(ctx context.Context, ttl time.Duration) error {
	return l.manager.extend(l.key, l.token, ttl)
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}
