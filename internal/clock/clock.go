// Package clock 抽象墙上时钟，时间窗口相关逻辑用 Fake 在测试里精确推进。
package clock

import (
	"sync"
	"time"
)

type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now().UTC() }

// Real 返回基于 time.Now 的时钟，统一为 UTC。
func Real() Clock { return realClock{} }

// Fake 只在调用 Advance 或 Set 时移动，必须通过 NewFake 创建。
type Fake struct {
	mu  sync.Mutex
	now time.Time
}

func NewFake(start time.Time) *Fake {
	return &Fake{now: start.UTC()}
}

func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// Advance 把时钟向前拨 d。
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

// Set 把时钟直接设为 t。
func (f *Fake) Set(t time.Time) {
	f.mu.Lock()
	f.now = t.UTC()
	f.mu.Unlock()
}
