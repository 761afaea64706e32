package limiter

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func TestLocalLimiter_PerKeyBuckets(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	l := NewLocalLimiter(rate.Limit(1), 2)
	l.now = func() time.Time { return now }
	ctx := context.Background()

	for range 2 {
		ok, err := l.Allow(ctx, "10.0.0.1")
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, _ := l.Allow(ctx, "10.0.0.1")
	assert.False(t, ok)

	ok, _ = l.Allow(ctx, "10.0.0.2")
	assert.True(t, ok)

	now = now.Add(time.Second)
	ok, _ = l.Allow(ctx, "10.0.0.1")
	assert.True(t, ok)
}

func TestLocalLimiter_EvictsIdleBuckets(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	l := NewLocalLimiter(rate.Limit(1), 1)
	l.now = func() time.Time { return now }

	_, _ = l.Allow(context.Background(), "a")
	now = now.Add(time.Hour)
	_, _ = l.Allow(context.Background(), "b")

	assert.Len(t, l.buckets, 1)
	assert.Contains(t, l.buckets, "b")
}

func TestSemaphoreLimiter(t *testing.T) {
	l := NewSemaphoreLimiter(1)
	require.NoError(t, l.Acquire(context.Background()))
	assert.False(t, l.TryAcquire())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, l.Acquire(ctx), context.DeadlineExceeded)

	l.Release()
	assert.True(t, l.TryAcquire())
	assert.Equal(t, 1, l.InUse())
	assert.Equal(t, 1, l.Capacity())
	l.Release()
	assert.Equal(t, 0, l.InUse())

	// 多余的 Release 不应放大容量
	l.Release()
	assert.True(t, l.TryAcquire())
	assert.False(t, l.TryAcquire())
	l.Release()
}

func TestSemaphoreLimiter_Disabled(t *testing.T) {
	l := NewSemaphoreLimiter(0)
	for range 100 {
		assert.True(t, l.TryAcquire())
	}
	assert.NoError(t, l.Acquire(context.Background()))
	l.Release()
	assert.Equal(t, 0, l.Capacity())

	var nilLimiter *SemaphoreLimiter
	assert.True(t, nilLimiter.TryAcquire())
	nilLimiter.Release()
}
