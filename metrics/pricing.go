package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Pricing COS 定价相关的业务指标。
type Pricing struct {
	RequestsTotal   *prometheus.CounterVec   // 维度: model, payoff, status
	Duration        *prometheus.HistogramVec // 维度: model, payoff
	CFEvaluations   *prometheus.CounterVec   // 维度: model
	CacheRequests   *prometheus.CounterVec   // 维度: result (hit/miss/oversized)
	StrikesPerQuote prometheus.Histogram
}

// NewPricing 在给定注册表上创建定价指标。
func NewPricing(m *Metrics) *Pricing {
	return &Pricing{
		RequestsTotal: m.NewCounterVec(prometheus.CounterOpts{
			Name: "cos_pricing_requests_total",
			Help: "Total number of COS pricing requests",
		}, []string{"model", "payoff", "status"}),
		Duration: m.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cos_pricing_duration_seconds",
			Help:    "COS pricing latency in seconds",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
		}, []string{"model", "payoff"}),
		CFEvaluations: m.NewCounterVec(prometheus.CounterOpts{
			Name: "cos_cf_evaluations_total",
			Help: "Total number of characteristic function evaluations",
		}, []string{"model"}),
		CacheRequests: m.NewCounterVec(prometheus.CounterOpts{
			Name: "quote_cache_requests_total",
			Help: "Quote cache lookups by result",
		}, []string{"result"}),
		StrikesPerQuote: func() prometheus.Histogram {
			h := prometheus.NewHistogram(prometheus.HistogramOpts{
				Name:    "cos_pricing_strikes_per_quote",
				Help:    "Number of strikes priced per request",
				Buckets: prometheus.ExponentialBuckets(1, 4, 10),
			})
			m.registry.MustRegister(h)
			return h
		}(),
	}
}

// ObserveQuote 记录一次定价请求的结果与耗时，p 为 nil 时忽略。
func (p *Pricing) ObserveQuote(model, payoff, status string, strikes, numU int, elapsed time.Duration) {
	if p == nil {
		return
	}
	p.RequestsTotal.WithLabelValues(model, payoff, status).Inc()
	if status != "ok" {
		return
	}
	p.Duration.WithLabelValues(model, payoff).Observe(elapsed.Seconds())
	p.CFEvaluations.WithLabelValues(model).Add(float64(numU))
	p.StrikesPerQuote.Observe(float64(strikes))
}

// ObserveCachedQuote 记录由缓存直接返回的请求，不计入计算耗时与特征函数求值次数。
func (p *Pricing) ObserveCachedQuote(model, payoff string) {
	if p == nil {
		return
	}
	p.RequestsTotal.WithLabelValues(model, payoff, "ok").Inc()
}

// ObserveCacheOversized 记录因超过单条上限而未写入缓存的结果。
func (p *Pricing) ObserveCacheOversized() {
	if p == nil {
		return
	}
	p.CacheRequests.WithLabelValues("oversized").Inc()
}

// ObserveCache 记录缓存命中情况。
func (p *Pricing) ObserveCache(hit bool) {
	if p == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	p.CacheRequests.WithLabelValues(result).Inc()
}
