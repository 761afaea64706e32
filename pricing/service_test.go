package pricing

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strconv"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wyfcoding/fangoost/algorithm/finance"
	"github.com/wyfcoding/fangoost/cache"
	"github.com/wyfcoding/fangoost/config"
	"github.com/wyfcoding/fangoost/limiter"
	"github.com/wyfcoding/fangoost/metrics"
	"github.com/wyfcoding/fangoost/xerrors"
)

func testConfig() config.PricingConfig {
	return config.PricingConfig{NumFrequencies: 64, Workers: 4, ChunkSize: 128, MaxStrikes: 4096}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func bsRequest() QuoteRequest {
	return QuoteRequest{
		Model:    ModelBlackScholes,
		Asset:    50,
		Strikes:  finance.StrikeGrid(50, -5, 5, 1024),
		Rate:     0.05,
		Maturity: 1,
		Params:   map[string]float64{"sigma": 0.3},
	}
}

func TestService_QuoteMatchesBlackScholesColumn(t *testing.T) {
	svc := NewService(testConfig(), WithServiceLogger(quietLogger()))
	req := bsRequest()

	resp, err := svc.Quote(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, resp.Quotes, len(req.Strikes))
	assert.Equal(t, PayoffCall, resp.Payoff)
	assert.Equal(t, 64, resp.NumFrequencies)
	assert.False(t, resp.Cached)

	for i := 256; i < 768; i++ {
		q := resp.Quotes[i]
		assert.Equal(t, req.Strikes[i], q.Strike)
		require.NotNil(t, q.BlackScholes)
		assert.InDelta(t, *q.BlackScholes, q.Price, 1e-3, "strike=%v", q.Strike)
		assert.Equal(t, decimal.NewFromFloat(q.Price).StringFixed(DisplayPlaces), q.Display)
	}
}

func TestService_PutQuote(t *testing.T) {
	svc := NewService(testConfig(), WithServiceLogger(quietLogger()))
	req := bsRequest()
	req.Payoff = PayoffPut

	resp, err := svc.Quote(context.Background(), req)
	require.NoError(t, err)
	for i := 256; i < 768; i++ {
		q := resp.Quotes[i]
		assert.InDelta(t, *q.BlackScholes, q.Price, 1e-3, "strike=%v", q.Strike)
	}
}

func TestService_NonBlackScholesHasNoComparison(t *testing.T) {
	svc := NewService(testConfig(), WithServiceLogger(quietLogger()))
	resp, err := svc.Quote(context.Background(), QuoteRequest{
		Model:    ModelMerton,
		Asset:    50,
		Strikes:  []float64{30, 50, 70},
		Rate:     0.03,
		Maturity: 1,
		Params:   map[string]float64{"sigma": 0.2, "lambda": 1, "mu_j": -0.1, "sig_j": 0.2},
	})
	require.NoError(t, err)
	for _, q := range resp.Quotes {
		assert.Nil(t, q.BlackScholes)
	}
}

func TestService_Validation(t *testing.T) {
	svc := NewService(testConfig(), WithServiceLogger(quietLogger()))
	base := func(mut func(*QuoteRequest)) QuoteRequest {
		req := QuoteRequest{
			Model:    ModelBlackScholes,
			Asset:    50,
			Strikes:  []float64{40, 60},
			Rate:     0.05,
			Maturity: 1,
			Params:   map[string]float64{"sigma": 0.3},
		}
		mut(&req)
		return req
	}

	cases := []struct {
		name string
		req  QuoteRequest
		want *xerrors.Error
	}{
		{"zero asset", base(func(r *QuoteRequest) { r.Asset = 0 }), xerrors.ErrNonPositiveAsset},
		{"nil strikes", base(func(r *QuoteRequest) { r.Strikes = nil }), xerrors.ErrEmptyStrikes},
		{"empty strikes", base(func(r *QuoteRequest) { r.Strikes = []float64{} }), xerrors.ErrEmptyStrikes},
		{"negative strike", base(func(r *QuoteRequest) { r.Strikes = []float64{40, -5} }), xerrors.ErrNonPositiveStrike},
		{"negative maturity", base(func(r *QuoteRequest) { r.Maturity = -0.5 }), xerrors.ErrNegativeMaturity},
		{"negative frequencies", base(func(r *QuoteRequest) { r.NumFrequencies = -3 }), xerrors.ErrInvalidFrequencies},
		{"missing model", base(func(r *QuoteRequest) { r.Model = "" }), xerrors.ErrUnknownModel},
		{"unknown model", base(func(r *QuoteRequest) { r.Model = "sabr" }), xerrors.ErrUnknownModel},
		{"bad params", base(func(r *QuoteRequest) { r.Params = nil }), xerrors.ErrInvalidModelParams},
		{"identical strikes", base(func(r *QuoteRequest) { r.Strikes = []float64{50, 50} }), xerrors.ErrDegenerateDomain},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp, err := svc.Quote(context.Background(), tc.req)
			assert.Nil(t, resp)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestService_InvalidPayoff(t *testing.T) {
	svc := NewService(testConfig(), WithServiceLogger(quietLogger()))
	req := bsRequest()
	req.Payoff = "digital"

	_, err := svc.Quote(context.Background(), req)
	xe, ok := xerrors.FromError(err)
	require.True(t, ok)
	assert.Equal(t, xerrors.ErrInvalidArg, xe.Type)
	assert.Contains(t, xe.Detail, "Payoff")
}

func TestService_TooManyStrikes(t *testing.T) {
	cfg := testConfig()
	cfg.MaxStrikes = 2
	svc := NewService(cfg, WithServiceLogger(quietLogger()))

	req := bsRequest()
	req.Strikes = []float64{40, 50, 60}
	_, err := svc.Quote(context.Background(), req)
	assert.ErrorIs(t, err, xerrors.ErrTooManyStrikes)
}

func sampleCount(t *testing.T, m *metrics.Metrics, name string) uint64 {
	t.Helper()
	families, err := m.Registry().Gather()
	require.NoError(t, err)
	var n uint64
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
		for _, metric := range f.GetMetric() {
			n += metric.GetHistogram().GetSampleCount()
		}
	}
	return n
}

func TestService_CacheHit(t *testing.T) {
	for _, maxMB := range []int{8, 64} {
		t.Run(strconv.Itoa(maxMB)+"MB", func(t *testing.T) {
			c, err := cache.NewBigCache(context.Background(), time.Minute, maxMB,
				cache.WithMaxEntryBytes(ResponseSizeHint(4096)))
			require.NoError(t, err)
			defer c.Close()

			reg := metrics.NewMetrics("test")
			m := metrics.NewPricing(reg)
			svc := NewService(testConfig(), WithCache(c), WithMetrics(m), WithServiceLogger(quietLogger()))

			req := bsRequest()
			first, err := svc.Quote(context.Background(), req)
			require.NoError(t, err)
			second, err := svc.Quote(context.Background(), req)
			require.NoError(t, err)

			assert.False(t, first.Cached)
			assert.True(t, second.Cached)
			assert.Equal(t, first.Quotes, second.Quotes)

			assert.InDelta(t, 1, testutil.ToFloat64(m.CacheRequests.WithLabelValues("hit")), 0)
			assert.InDelta(t, 1, testutil.ToFloat64(m.CacheRequests.WithLabelValues("miss")), 0)
			assert.InDelta(t, 2, testutil.ToFloat64(m.RequestsTotal.WithLabelValues(ModelBlackScholes, PayoffCall, "ok")), 0)

			// 命中缓存不计入求值次数与耗时
			assert.InDelta(t, 64, testutil.ToFloat64(m.CFEvaluations.WithLabelValues(ModelBlackScholes)), 0)
			assert.Equal(t, uint64(1), sampleCount(t, reg, "cos_pricing_duration_seconds"))
			assert.Equal(t, uint64(1), sampleCount(t, reg, "cos_pricing_strikes_per_quote"))

			// 参数不同则不命中
			req.Params = map[string]float64{"sigma": 0.31}
			third, err := svc.Quote(context.Background(), req)
			require.NoError(t, err)
			assert.False(t, third.Cached)
		})
	}
}

func TestService_OversizedResultSkipsCache(t *testing.T) {
	c, err := cache.NewBigCache(context.Background(), time.Minute, 8, cache.WithMaxEntryBytes(4096))
	require.NoError(t, err)
	defer c.Close()

	m := metrics.NewPricing(metrics.NewMetrics("test"))
	svc := NewService(testConfig(), WithCache(c), WithMetrics(m), WithServiceLogger(quietLogger()))

	req := bsRequest()
	for range 2 {
		resp, err := svc.Quote(context.Background(), req)
		require.NoError(t, err)
		assert.False(t, resp.Cached)
	}
	assert.Equal(t, 0, c.Len())
	assert.InDelta(t, 2, testutil.ToFloat64(m.CacheRequests.WithLabelValues("oversized")), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(m.CacheRequests.WithLabelValues("miss")), 0)
}

func TestResponseSizeHint_CoversEncodedQuotes(t *testing.T) {
	svc := NewService(testConfig(), WithServiceLogger(quietLogger()))
	resp, err := svc.Quote(context.Background(), bsRequest())
	require.NoError(t, err)

	data, err := json.Marshal(resp)
	require.NoError(t, err)
	assert.Less(t, len(data), ResponseSizeHint(len(resp.Quotes)))
}

func TestService_MetricsOnFailure(t *testing.T) {
	m := metrics.NewPricing(metrics.NewMetrics("test"))
	svc := NewService(testConfig(), WithMetrics(m), WithServiceLogger(quietLogger()))

	req := bsRequest()
	req.Model = "sabr"
	_, err := svc.Quote(context.Background(), req)
	require.Error(t, err)
	assert.InDelta(t, 1, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("sabr", PayoffCall, "400")), 0)
}

func TestService_ApplyReplacesDefaults(t *testing.T) {
	svc := NewService(testConfig(), WithServiceLogger(quietLogger()))

	cfg := testConfig()
	cfg.NumFrequencies = 1
	svc.Apply(cfg)

	req := bsRequest()
	req.Strikes = []float64{40, 50, 60}
	resp, err := svc.Quote(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 1, resp.NumFrequencies)

	// 显式指定时以请求为准
	req.NumFrequencies = 32
	resp, err = svc.Quote(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 32, resp.NumFrequencies)
}

func TestService_CancelledContext(t *testing.T) {
	svc := NewService(testConfig(), WithServiceLogger(quietLogger()))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.Quote(ctx, bsRequest())
	xe, ok := xerrors.FromError(err)
	require.True(t, ok)
	assert.Equal(t, xerrors.ErrDeadlineExceeded, xe.Type)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestService_ConcurrencyLimitHonoursContext(t *testing.T) {
	slots := limiter.NewSemaphoreLimiter(1)
	require.True(t, slots.TryAcquire())
	defer slots.Release()

	svc := NewService(testConfig(), WithConcurrencyLimit(slots), WithServiceLogger(quietLogger()))
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := svc.Quote(ctx, bsRequest())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.ErrorIs(t, err, xerrors.New(xerrors.ErrDeadlineExceeded, 504, "", "", nil))
}
