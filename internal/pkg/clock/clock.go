package clock

import (
	"sync"
	"time"
)

// Clock は現在時刻を返す
type Clock interface {
	Now() time.Time
}

type realClock struct{}

// Real はシステム時刻を返すClock
func Real() Clock { return realClock{} }

func (realClock) Now() time.Time { return time.Now() }

// Fixed はテスト用の手動で進めるClock
type Fixed struct {
	mu  sync.RWMutex
	now time.Time
}

// NewFixed は指定時刻で止まったClockを作成する
func NewFixed(t time.Time) *Fixed {
	return &Fixed{now: t}
}

func (c *Fixed) Now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.now
}

// Set は時刻を変更する
func (c *Fixed) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

// Advance は時刻を進める
func (c *Fixed) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}
