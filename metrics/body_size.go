package metrics

import "github.com/prometheus/client_golang/prometheus"

var bodySizeBuckets = prometheus.ExponentialBuckets(128, 2, 10)

// RegisterBodySizeMetrics 注册请求体与响应体大小指标，重复调用无副作用。
func (m *Metrics) RegisterBodySizeMetrics() {
	if m == nil || m.HTTPRequestSizeBytes != nil {
		return
	}

	m.HTTPRequestSizeBytes = m.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_server_request_size_bytes",
		Help:    "HTTP request body size in bytes",
		Buckets: bodySizeBuckets,
	}, []string{"method", "path"})

	m.HTTPResponseSizeBytes = m.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_server_response_size_bytes",
		Help:    "HTTP response body size in bytes",
		Buckets: bodySizeBuckets,
	}, []string{"method", "path"})
}
