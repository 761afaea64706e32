// Package limiter 提供令牌桶限流与并发信号量两类本地限流器。
package limiter

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter 接口定义了限流器的通用行为。
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// LocalLimiter 基于令牌桶的进程内限流器，每个 key 独立一个桶。
// 空闲超过 idleTTL 的桶会在后续调用中被清理。
type LocalLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	limit   rate.Limit
	burst   int
	idleTTL time.Duration
	lastGC  time.Time
	now     func() time.Time
}

type bucket struct {
	limiter *rate.Limiter
	seen    time.Time
}

// NewLocalLimiter 创建一个本地限流器。
// r: 每秒生成的令牌数；b: 令牌桶容量，即允许的瞬时突发请求数。
func NewLocalLimiter(r rate.Limit, b int) *LocalLimiter {
	return &LocalLimiter{
		buckets: make(map[string]*bucket),
		limit:   r,
		burst:   b,
		idleTTL: 10 * time.Minute,
		now:     time.Now,
	}
}

// Allow 尝试从 key 对应的桶中取出一个令牌。
func (l *LocalLimiter) Allow(_ context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.gc(now)

	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.buckets[key] = b
	}
	b.seen = now
	return b.limiter.AllowN(now, 1), nil
}

func (l *LocalLimiter) gc(now time.Time) {
	if now.Sub(l.lastGC) < l.idleTTL {
		return
	}
	l.lastGC = now
	for key, b := range l.buckets {
		if now.Sub(b.seen) > l.idleTTL {
			delete(l.buckets, key)
		}
	}
}
