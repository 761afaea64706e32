// Package health 提供依赖健康检查的注册与聚合。
package health

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/wyfcoding/fangoost/cache"
)

// Checker 定义健康检查函数原型。
type Checker func(ctx context.Context) error

// Registry 保存具名检查项。
type Registry struct {
	mu       sync.RWMutex
	checkers map[string]Checker
	timeout  time.Duration
}

// NewRegistry 创建检查注册表，timeout 为单次检查的超时。
func NewRegistry(timeout time.Duration) *Registry {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Registry{checkers: make(map[string]Checker), timeout: timeout}
}

// Register 注册一个检查项，同名覆盖。
func (r *Registry) Register(name string, c Checker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.checkers[name] = c
}

// Check 依次执行所有检查项，返回每项结果（"ok" 或错误信息）以及是否全部通过。
func (r *Registry) Check(ctx context.Context) (map[string]string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	results := make(map[string]string, len(r.checkers))
	healthy := true
	for name, c := range r.checkers {
		cctx, cancel := context.WithTimeout(ctx, r.timeout)
		err := c(cctx)
		cancel()
		if err != nil {
			results[name] = err.Error()
			healthy = false
			continue
		}
		results[name] = "ok"
	}
	return results, healthy
}

// Handler 返回 /healthz 处理器，任一检查失败时响应 503。
func (r *Registry) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		results, healthy := r.Check(c.Request.Context())
		status, state := http.StatusOK, "ok"
		if !healthy {
			status, state = http.StatusServiceUnavailable, "degraded"
		}
		c.JSON(status, gin.H{"status": state, "checks": results})
	}
}

type probe struct {
	At int64 `json:"at"`
}

// CacheChecker 通过写入并读回探测键检查本地缓存可用性。
func CacheChecker(c cache.Cache) Checker {
	return func(ctx context.Context) error {
		if c == nil {
			return errors.New("cache is nil")
		}
		const key = "__health_probe__"
		want := probe{At: time.Now().UnixNano()}
		if err := c.Set(ctx, key, want); err != nil {
			return err
		}
		var got probe
		if err := c.Get(ctx, key, &got); err != nil {
			return err
		}
		if got != want {
			return errors.New("cache probe mismatch")
		}
		return nil
	}
}
