package middleware

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/wyfcoding/fangoost/limiter"
	"github.com/wyfcoding/fangoost/response"
	"golang.org/x/time/rate"
)

// RateLimitMiddleware 以客户端 IP 作为限流标识。
// 限流器内部出错时放行并记录错误日志。
func RateLimitMiddleware(l limiter.Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.ClientIP()

		allowed, err := l.Allow(c.Request.Context(), key)
		if err != nil {
			slog.ErrorContext(c.Request.Context(), "rate limiter internal error, fail-open applied", "key", key, "error", err)
			c.Next()
			return
		}

		if !allowed {
			slog.WarnContext(c.Request.Context(), "request rejected by rate limiter", "key", key, "path", c.Request.URL.Path)
			response.ErrorWithStatus(c, http.StatusTooManyRequests, "too many requests", "access rate limit exceeded")
			c.Abort()
			return
		}

		c.Next()
	}
}

// NewLocalRateLimitMiddleware 创建基于本地令牌桶的限流中间件。
// limit: 每个客户端每秒允许的请求数；burst: 允许的突发请求数。
func NewLocalRateLimitMiddleware(limit, burst int) gin.HandlerFunc {
	return RateLimitMiddleware(limiter.NewLocalLimiter(rate.Limit(limit), burst))
}
