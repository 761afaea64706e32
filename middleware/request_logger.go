package middleware

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/wyfcoding/fangoost/contextx"
)

// Logger 访问日志中间件。trace_id/span_id 由 logging.TraceHandler 从上下文注入。
func Logger(logger *slog.Logger, skipPaths ...string) gin.HandlerFunc {
	skip := make(map[string]struct{}, len(skipPaths))
	for _, p := range skipPaths {
		skip[p] = struct{}{}
	}

	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		if _, ok := skip[path]; ok {
			c.Next()
			return
		}

		c.Next()

		ctx := c.Request.Context()
		args := append(contextx.LogAttrs(ctx),
			"status", c.Writer.Status(),
			"method", c.Request.Method,
			"path", path,
			"query", c.Request.URL.RawQuery,
			"cost", time.Since(start),
			"size", c.Writer.Size(),
			"user_agent", c.Request.UserAgent(),
		)

		level := slog.LevelInfo
		if c.Writer.Status() >= 500 {
			level = slog.LevelError
		} else if c.Writer.Status() >= 400 {
			level = slog.LevelWarn
		}
		logger.Log(ctx, level, "HTTP Request", args...)
	}
}
