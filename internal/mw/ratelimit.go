package mw

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

const sweepInterval = 30 * time.Second

// 未命中路由的请求共用这一个桶。
const unmatchedRoute = "unmatched"

type bucket struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// Throttle 按 来源地址+路由 维护令牌桶，长时间不活跃的桶由后台协程回收。
// 它只负责平滑突发流量，注册次数限制由 service.RegistrationGuard 负责。
type Throttle struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	limit   rate.Limit
	burst   int
	idle    time.Duration
	stop    chan struct{}
	once    sync.Once
}

// NewThrottle 创建限速器并启动回收协程，停服时调用 Stop。
func NewThrottle(limit rate.Limit, burst int, idle time.Duration) *Throttle {
	t := &Throttle{
		buckets: make(map[string]*bucket),
		limit:   limit,
		burst:   burst,
		idle:    idle,
		stop:    make(chan struct{}),
	}
	go t.sweepLoop()
	return t
}

// Allow 消耗 key 对应桶里的一个令牌。
func (t *Throttle) Allow(key string) bool {
	now := time.Now()
	t.mu.Lock()
	b, ok := t.buckets[key]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(t.limit, t.burst)}
		t.buckets[key] = b
	}
	b.lastSeen = now
	t.mu.Unlock()
	return b.lim.AllowN(now, 1)
}

func (t *Throttle) sweepLoop() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-t.stop:
			return
		case now := <-ticker.C:
			t.sweep(now)
		}
	}
}

// sweep 删除在 now 之前已空闲超过 idle 的桶，返回剩余桶数。
func (t *Throttle) sweep(now time.Time) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	for k, b := range t.buckets {
		if now.Sub(b.lastSeen) > t.idle {
			delete(t.buckets, k)
		}
	}
	return len(t.buckets)
}

// Stop 停止回收协程，可重复调用。
func (t *Throttle) Stop() {
	t.once.Do(func() { close(t.stop) })
}

// Middleware 超限时返回 429 并带上 Retry-After。
func (t *Throttle) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		route := c.FullPath()
		if route == "" {
			route = unmatchedRoute
		}
		if !t.Allow(ClientIP(c.Request) + "|" + route) {
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many requests"})
			return
		}
		c.Next()
	}
}
