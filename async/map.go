// Package async 提供无共享状态的数据并行原语：保序的并行 map 与按区间分块的 fork-join。
package async

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"runtime/debug"

	"github.com/sourcegraph/conc/iter"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrPanicRecovered 表示并行任务中恢复的 panic。
	ErrPanicRecovered = errors.New("async task panic recovered")
)

// PanicError 并行任务中恢复的 panic，Stack 单独保留供日志输出，不进入错误消息。
type PanicError struct {
	Where string
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrPanicRecovered, e.Where, e.Value)
}

func (e *PanicError) Unwrap() error {
	return ErrPanicRecovered
}

func recovered(where string, rec any) *PanicError {
	return &PanicError{Where: where, Value: rec, Stack: debug.Stack()}
}

// DefaultWorkers 返回默认并发度。
func DefaultWorkers() int {
	return runtime.GOMAXPROCS(0)
}

// Map 以至多 workers 个 goroutine 并行地对 items 执行 fn，结果按输入顺序返回。
// 任一元素失败则整体失败，返回下标最小的那个错误，不返回部分结果。
func Map[T, R any](items []T, workers int, fn func(int, T) (R, error)) ([]R, error) {
	if workers <= 0 {
		workers = DefaultWorkers()
	}

	out := make([]R, len(items))
	errs := make([]error, len(items))

	iter.Iterator[T]{MaxGoroutines: workers}.ForEachIdx(items, func(i int, item *T) {
		defer func() {
			if rec := recover(); rec != nil {
				errs[i] = recovered(fmt.Sprintf("item %d", i), rec)
			}
		}()
		out[i], errs[i] = fn(i, *item)
	})

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// ForEachChunk 将 [0, n) 切分为长度不超过 chunk 的连续区间并行执行 fn。
// 各区间互不重叠，fn 只应写入自己区间对应的数据；第一个错误会取消其余区间。
func ForEachChunk(ctx context.Context, n, chunk, workers int, fn func(ctx context.Context, lo, hi int) error) error {
	if n <= 0 {
		return nil
	}
	if chunk <= 0 {
		chunk = n
	}
	if workers <= 0 {
		workers = DefaultWorkers()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for lo := 0; lo < n; lo += chunk {
		hi := min(lo+chunk, n)
		g.Go(func() (err error) {
			defer func() {
				if rec := recover(); rec != nil {
					err = recovered(fmt.Sprintf("range [%d,%d)", lo, hi), rec)
				}
			}()
			if err := gctx.Err(); err != nil {
				return err
			}
			return fn(gctx, lo, hi)
		})
	}
	return g.Wait()
}
