package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/wyfcoding/fangoost/metrics"
)

// MetricsOptions 定义指标中间件的可选参数。
type MetricsOptions struct {
	SlowThreshold time.Duration
	SkipPaths     []string
}

// HTTPMetricsMiddleware 返回一个用于采集 HTTP 请求指标的 Gin 中间件。
func HTTPMetricsMiddleware(m *metrics.Metrics) gin.HandlerFunc {
	return HTTPMetricsMiddlewareWithOptions(m, MetricsOptions{})
}

// HTTPMetricsMiddlewareWithOptions 返回一个可配置的 HTTP 指标采集中间件。
// 同时记录请求体与响应体大小。
func HTTPMetricsMiddlewareWithOptions(m *metrics.Metrics, opts MetricsOptions) gin.HandlerFunc {
	if m == nil {
		return func(c *gin.Context) { c.Next() }
	}
	m.RegisterBodySizeMetrics()

	skip := make(map[string]struct{}, len(opts.SkipPaths))
	for _, path := range opts.SkipPaths {
		skip[path] = struct{}{}
	}

	return func(c *gin.Context) {
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		if _, ok := skip[path]; ok {
			c.Next()
			return
		}

		method := c.Request.Method
		m.HTTPInFlight.WithLabelValues(method, path).Inc()
		defer m.HTTPInFlight.WithLabelValues(method, path).Dec()

		start := time.Now()

		c.Next()

		latency := time.Since(start)
		statusStr := strconv.Itoa(c.Writer.Status())

		m.HTTPRequestsTotal.WithLabelValues(method, path, statusStr).Inc()
		m.HTTPRequestDuration.WithLabelValues(method, path).Observe(latency.Seconds())
		if opts.SlowThreshold > 0 && latency > opts.SlowThreshold {
			m.HTTPSlowRequestsTotal.WithLabelValues(method, path).Inc()
		}
		if c.Request.ContentLength > 0 {
			m.HTTPRequestSizeBytes.WithLabelValues(method, path).Observe(float64(c.Request.ContentLength))
		}
		if size := c.Writer.Size(); size > 0 {
			m.HTTPResponseSizeBytes.WithLabelValues(method, path).Observe(float64(size))
		}
	}
}
