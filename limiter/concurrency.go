package limiter

import (
	"context"
	"log/slog"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// ConcurrencyLimiter 限制同时进行的定价计算数量。
type ConcurrencyLimiter interface {
	Acquire(ctx context.Context) error
	TryAcquire() bool
	Release()
}

// SemaphoreLimiter 基于 x/sync/semaphore 的计算槽位限制器，nil 或容量为 0 时不做限制。
type SemaphoreLimiter struct {
	sem      *semaphore.Weighted
	capacity int64
	inUse    atomic.Int64
}

// NewSemaphoreLimiter 创建容量为 slots 的限制器，slots <= 0 表示不限制。
func NewSemaphoreLimiter(slots int) *SemaphoreLimiter {
	if slots <= 0 {
		return &SemaphoreLimiter{}
	}
	return &SemaphoreLimiter{sem: semaphore.NewWeighted(int64(slots)), capacity: int64(slots)}
}

func (l *SemaphoreLimiter) unlimited() bool {
	return l == nil || l.sem == nil
}

// Acquire 阻塞等待一个槽位，ctx 结束时返回 ctx.Err()。
func (l *SemaphoreLimiter) Acquire(ctx context.Context) error {
	if l.unlimited() {
		return nil
	}
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	l.inUse.Add(1)
	return nil
}

// TryAcquire 非阻塞获取槽位。
func (l *SemaphoreLimiter) TryAcquire() bool {
	if l.unlimited() {
		return true
	}
	if !l.sem.TryAcquire(1) {
		return false
	}
	l.inUse.Add(1)
	return true
}

// Release 归还槽位；多余的 Release 只记录告警，不会 panic。
func (l *SemaphoreLimiter) Release() {
	if l.unlimited() {
		return
	}
	if l.inUse.Add(-1) < 0 {
		l.inUse.Add(1)
		slog.Warn("pricing slot released without acquire")
		return
	}
	l.sem.Release(1)
}

// InUse 当前被占用的槽位数。
func (l *SemaphoreLimiter) InUse() int {
	if l.unlimited() {
		return 0
	}
	return int(l.inUse.Load())
}

// Capacity 槽位总数，0 表示不限制。
func (l *SemaphoreLimiter) Capacity() int {
	if l.unlimited() {
		return 0
	}
	return int(l.capacity)
}
