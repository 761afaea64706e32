package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/wyfcoding/fangoost/tracing"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

// TracingMiddleware 基于 otelgin 为每个请求创建服务端 Span。
// 未初始化 TracerProvider 时使用全局 noop 实现。
func TracingMiddleware(serviceName string, skipPaths ...string) gin.HandlerFunc {
	skip := make(map[string]struct{}, len(skipPaths))
	for _, p := range skipPaths {
		skip[p] = struct{}{}
	}
	return otelgin.Middleware(serviceName, otelgin.WithGinFilter(func(c *gin.Context) bool {
		_, ok := skip[c.Request.URL.Path]
		return !ok
	}))
}

// HeaderXTraceID 响应头中的 Trace ID。
const HeaderXTraceID = "X-Trace-ID"

// TraceIDHeader 将当前 Span 的 Trace ID 写入响应头，须挂在 TracingMiddleware 之后。
func TraceIDHeader() gin.HandlerFunc {
	return func(c *gin.Context) {
		if traceID := tracing.GetTraceID(c.Request.Context()); traceID != "" {
			c.Header(HeaderXTraceID, traceID)
		}
		c.Next()
	}
}
