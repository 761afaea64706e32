package pricing

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/wyfcoding/fangoost/algorithm/finance"
	"github.com/wyfcoding/fangoost/async"
	"github.com/wyfcoding/fangoost/cache"
	"github.com/wyfcoding/fangoost/config"
	"github.com/wyfcoding/fangoost/contextx"
	"github.com/wyfcoding/fangoost/limiter"
	"github.com/wyfcoding/fangoost/logging"
	"github.com/wyfcoding/fangoost/metrics"
	"github.com/wyfcoding/fangoost/tracing"
	"github.com/wyfcoding/fangoost/xerrors"
)

// 收益类型。
const (
	PayoffCall = "call"
	PayoffPut  = "put"
)

// DisplayPlaces 展示价格保留的小数位数。
const DisplayPlaces = 8

// quoteJSONBytes 单个 Quote 序列化后的上界估计。
const quoteJSONBytes = 160

// ResponseSizeHint 估计 strikes 个行权价的 QuoteResponse 序列化大小，用于缓存单条上限。
func ResponseSizeHint(strikes int) int {
	return 512 + strikes*quoteJSONBytes
}

// QuoteRequest 一次报价请求：同一模型、到期与利率下的一组行权价。
type QuoteRequest struct {
	Model          string             `json:"model"           validate:"required"`
	Payoff         string             `json:"payoff"          validate:"omitempty,oneof=call put"`
	Asset          float64            `json:"asset"           validate:"gt=0"`
	Strikes        []float64          `json:"strikes"         validate:"required,min=1,dive,gt=0"`
	Rate           float64            `json:"rate"`
	Maturity       float64            `json:"maturity"        validate:"gte=0"`
	NumFrequencies int                `json:"num_frequencies" validate:"omitempty,gte=1"`
	Params         map[string]float64 `json:"params"`
}

// Quote 单个行权价的报价。
type Quote struct {
	Strike       float64  `json:"strike"`
	Price        float64  `json:"price"`
	Display      string   `json:"display"`
	BlackScholes *float64 `json:"black_scholes,omitempty"`
}

// QuoteResponse 报价结果，Quotes 与请求中的 Strikes 顺序一致。
type QuoteResponse struct {
	Model          string  `json:"model"`
	Payoff         string  `json:"payoff"`
	Asset          float64 `json:"asset"`
	Rate           float64 `json:"rate"`
	Maturity       float64 `json:"maturity"`
	NumFrequencies int     `json:"num_frequencies"`
	Quotes         []Quote `json:"quotes"`
	Cached         bool    `json:"cached"`
}

// settings 可热更新的运行参数，整体替换。
type settings struct {
	engine         *finance.COSEngine
	numFrequencies int
	maxStrikes     int
}

// Service 报价服务，可被多个 goroutine 并发使用。
type Service struct {
	logger   *slog.Logger
	cache    cache.Cache
	metrics  *metrics.Pricing
	slots    limiter.ConcurrencyLimiter
	settings atomic.Pointer[settings]
}

// ServiceOption 配置 Service。
type ServiceOption func(*Service)

// WithCache 启用报价缓存。
func WithCache(c cache.Cache) ServiceOption {
	return func(s *Service) {
		s.cache = c
	}
}

// WithMetrics 注入定价指标。
func WithMetrics(m *metrics.Pricing) ServiceOption {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithConcurrencyLimit 限制同时进行的 COS 计算数量，等待期间响应 ctx 取消。
func WithConcurrencyLimit(l limiter.ConcurrencyLimiter) ServiceOption {
	return func(s *Service) {
		s.slots = l
	}
}

// WithServiceLogger 注入日志记录器。
func WithServiceLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

var requestValidate = validator.New()

// NewService 按定价配置创建报价服务。
func NewService(cfg config.PricingConfig, opts ...ServiceOption) *Service {
	s := &Service{logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	s.Apply(cfg)
	return s
}

// Apply 以新的定价配置替换运行参数，进行中的请求继续使用旧参数。
func (s *Service) Apply(cfg config.PricingConfig) {
	s.settings.Store(&settings{
		engine: finance.NewCOSEngine(
			finance.WithWorkers(cfg.Workers),
			finance.WithChunkSize(cfg.ChunkSize),
			finance.WithLogger(s.logger),
		),
		numFrequencies: cfg.NumFrequencies,
		maxStrikes:     cfg.MaxStrikes,
	})
	s.logger.Info("pricing settings applied",
		"num_frequencies", cfg.NumFrequencies,
		"workers", cfg.Workers,
		"chunk_size", cfg.ChunkSize,
		"max_strikes", cfg.MaxStrikes,
	)
}

// Quote 为请求中的每个行权价计算欧式期权价格。
func (s *Service) Quote(ctx context.Context, req QuoteRequest) (resp *QuoteResponse, err error) {
	ctx, span := tracing.StartSpan(ctx, "pricing.Quote")
	defer span.End()

	cur := s.settings.Load()
	s.normalize(&req, cur)

	start := time.Now()
	defer func() {
		if err == nil && resp != nil && resp.Cached {
			s.metrics.ObserveCachedQuote(req.Model, req.Payoff)
			return
		}
		status := statusLabel(err)
		s.metrics.ObserveQuote(req.Model, req.Payoff, status, len(req.Strikes), req.NumFrequencies, time.Since(start))
		if err != nil {
			tracing.SetError(ctx, err)
			attrs := append(contextx.LogAttrs(ctx), "model", req.Model, "status", status, "error", err)
			var pe *async.PanicError
			if errors.As(err, &pe) {
				attrs = append(attrs, "stack", string(pe.Stack))
			}
			s.logger.WarnContext(ctx, "quote failed", attrs...)
		}
	}()

	tracing.AddTag(ctx, "pricing.model", req.Model)
	tracing.AddTag(ctx, "pricing.payoff", req.Payoff)
	tracing.AddTag(ctx, "pricing.strikes", len(req.Strikes))
	tracing.AddTag(ctx, "pricing.num_frequencies", req.NumFrequencies)

	if err := validateRequest(&req); err != nil {
		return nil, err
	}
	if len(req.Strikes) > cur.maxStrikes {
		return nil, xerrors.ErrTooManyStrikes.Derive("got %d strikes, max %d", len(req.Strikes), cur.maxStrikes)
	}

	key, keyErr := cacheKey(&req)
	if cached, ok := s.lookup(ctx, key, keyErr); ok {
		return cached, nil
	}

	cf, err := ResolveModel(req.Model, req.Params, req.Rate, req.Maturity)
	if err != nil {
		return nil, err
	}

	if s.slots != nil {
		if err := s.slots.Acquire(ctx); err != nil {
			return nil, classify(err)
		}
		defer s.slots.Release()
	}

	done := logging.LogDuration(ctx, s.logger, "cos pricing", "model", req.Model, "strikes", len(req.Strikes))
	var prices []float64
	if req.Payoff == PayoffPut {
		prices, err = cur.engine.PutPrice(ctx, req.NumFrequencies, req.Asset, req.Strikes, req.Rate, req.Maturity, cf)
	} else {
		prices, err = cur.engine.CallPrice(ctx, req.NumFrequencies, req.Asset, req.Strikes, req.Rate, req.Maturity, cf)
	}
	done()
	if err != nil {
		return nil, classify(err)
	}

	resp = buildResponse(&req, prices)
	s.store(ctx, key, keyErr, resp)
	return resp, nil
}

func (s *Service) normalize(req *QuoteRequest, cur *settings) {
	if req.Payoff == "" {
		req.Payoff = PayoffCall
	}
	if req.NumFrequencies == 0 {
		req.NumFrequencies = cur.numFrequencies
	}
}

func (s *Service) lookup(ctx context.Context, key string, keyErr error) (*QuoteResponse, bool) {
	if s.cache == nil || keyErr != nil {
		return nil, false
	}
	var cached QuoteResponse
	err := s.cache.Get(ctx, key, &cached)
	switch {
	case err == nil:
		s.metrics.ObserveCache(true)
		cached.Cached = true
		return &cached, true
	case errors.Is(err, cache.ErrCacheMiss):
	default:
		s.logger.WarnContext(ctx, "quote cache read failed", "error", err)
	}
	s.metrics.ObserveCache(false)
	return nil, false
}

func (s *Service) store(ctx context.Context, key string, keyErr error, resp *QuoteResponse) {
	if s.cache == nil || keyErr != nil {
		return
	}
	err := s.cache.Set(ctx, key, resp)
	switch {
	case err == nil:
	case errors.Is(err, cache.ErrEntryTooLarge):
		s.metrics.ObserveCacheOversized()
		s.logger.DebugContext(ctx, "quote too large to cache", "strikes", len(resp.Quotes), "error", err)
	default:
		s.logger.WarnContext(ctx, "quote cache write failed", "error", err)
	}
}

// validateRequest 执行标签校验并把首个字段错误映射为对应的业务错误。
func validateRequest(req *QuoteRequest) error {
	err := requestValidate.Struct(req)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return xerrors.InvalidArg(err.Error())
	}

	fe := verrs[0]
	// dive 产生的字段名形如 Strikes[3]
	field, _, _ := strings.Cut(fe.StructField(), "[")
	switch field {
	case "Asset":
		return xerrors.ErrNonPositiveAsset.Derive("asset=%v", fe.Value())
	case "Strikes":
		if fe.Tag() == "gt" {
			return xerrors.ErrNonPositiveStrike.Derive("%s=%v", fe.Field(), fe.Value())
		}
		return xerrors.ErrEmptyStrikes.Derive("no strikes supplied")
	case "Maturity":
		return xerrors.ErrNegativeMaturity.Derive("maturity=%v", fe.Value())
	case "NumFrequencies":
		return xerrors.ErrInvalidFrequencies.Derive("num_frequencies=%v", fe.Value())
	case "Model":
		return xerrors.ErrUnknownModel.Derive("model is required")
	default:
		return xerrors.InvalidArg("invalid request").WithDetail("%s failed on %s", fe.Field(), fe.Tag())
	}
}

// classify 将引擎返回的上下文错误归类，业务错误原样返回。
func classify(err error) error {
	if _, ok := xerrors.FromError(err); ok {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return xerrors.New(xerrors.ErrDeadlineExceeded, 504, "pricing interrupted", err.Error(), err)
	}
	return xerrors.WrapInternal(err, "pricing failed")
}

func statusLabel(err error) string {
	if err == nil {
		return "ok"
	}
	if xe, ok := xerrors.FromError(err); ok {
		return strconv.Itoa(xe.HTTPStatus())
	}
	return "500"
}

// cacheKey 以规范化请求的 JSON（map 键有序）计算缓存键。
func cacheKey(req *QuoteRequest) (string, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return "", err
	}
	return "quote:" + strconv.FormatUint(xxhash.Sum64(data), 16), nil
}

func buildResponse(req *QuoteRequest, prices []float64) *QuoteResponse {
	resp := &QuoteResponse{
		Model:          req.Model,
		Payoff:         req.Payoff,
		Asset:          req.Asset,
		Rate:           req.Rate,
		Maturity:       req.Maturity,
		NumFrequencies: req.NumFrequencies,
		Quotes:         make([]Quote, len(prices)),
	}

	var sigma float64
	compare := req.Model == ModelBlackScholes
	if compare {
		sigma = req.Params["sigma"]
	}
	discount := math.Exp(-req.Rate * req.Maturity)

	for i, p := range prices {
		q := Quote{
			Strike:  req.Strikes[i],
			Price:   p,
			Display: decimal.NewFromFloat(p).StringFixed(DisplayPlaces),
		}
		if compare {
			var ref float64
			if req.Payoff == PayoffPut {
				ref = finance.BlackScholesPut(req.Asset, req.Strikes[i], discount, sigma, req.Maturity)
			} else {
				ref = finance.BlackScholesCall(req.Asset, req.Strikes[i], discount, sigma, req.Maturity)
			}
			q.BlackScholes = &ref
		}
		resp.Quotes[i] = q
	}
	return resp
}
