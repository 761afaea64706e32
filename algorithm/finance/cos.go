// Package finance - 基于 Fang-Oosterlee 傅里叶余弦展开 (COS) 的欧式期权定价。
package finance

import (
	"context"
	"log/slog"
	"math"
	"math/cmplx"

	"github.com/wyfcoding/fangoost/async"
	"github.com/wyfcoding/fangoost/xerrors"
)

// CharacteristicFunc 对数收益 ln(S_T/S_0) 在风险中性测度下的特征函数 E[exp(i·u·X)]。
type CharacteristicFunc func(u float64) complex128

// Enhancement 在求和前对特征函数采样做收益相关的变换。
type Enhancement func(cf complex128, u float64) complex128

// WeightFunc 返回第 k 个频率项在 x 处的收益系数。
type WeightFunc func(u, x float64, k int) float64

// OutputFunc 把 x 处的原始期望值还原为期权价格，index 为对应行权价的下标。
type OutputFunc func(val, x float64, index int) float64

const defaultChunkSize = 256

// COSEngine COS 展开的数值积分引擎，本身无状态，可被多个 goroutine 共享。
type COSEngine struct {
	logger    *slog.Logger
	workers   int
	chunkSize int
}

// Option 定义引擎配置选项。
type Option func(*COSEngine)

// WithWorkers 设置并发度，<=0 表示使用 GOMAXPROCS。
func WithWorkers(n int) Option {
	return func(e *COSEngine) {
		e.workers = n
	}
}

// WithChunkSize 设置 x 轴分块大小。
func WithChunkSize(n int) Option {
	return func(e *COSEngine) {
		if n > 0 {
			e.chunkSize = n
		}
	}
}

// WithLogger 注入日志记录器。
func WithLogger(logger *slog.Logger) Option {
	return func(e *COSEngine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewCOSEngine 创建 COS 定价引擎。
func NewCOSEngine(opts ...Option) *COSEngine {
	e := &COSEngine{
		logger:    slog.Default(),
		workers:   async.DefaultWorkers(),
		chunkSize: defaultChunkSize,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.workers <= 0 {
		e.workers = async.DefaultWorkers()
	}
	return e
}

// ChiK 余弦级数系数 chi_k：e^y·cos(u(y-a)) 在 [c,d] 上的积分。
// b 仅为与论文记号保持一致而保留。
func ChiK(a, b, c, d, u float64) float64 {
	sd, cd := math.Sincos(u * (d - a))
	sc, cc := math.Sincos(u * (c - a))
	expD := math.Exp(d)
	expC := math.Exp(c)
	return (cd*expD - cc*expC + u*sd*expD - u*sc*expC) / (1 + u*u)
}

// PhiK 余弦级数系数 phi_k：cos(u(y-a)) 在 [c,d] 上的积分，k==0 时为区间长度。
func PhiK(a, b, c, d, u float64, k int) float64 {
	if k == 0 {
		return d - c
	}
	return (math.Sin(u*(d-a)) - math.Sin(u*(c-a))) / u
}

// ToXDomain 将行权价转换为对数价值度 x = ln(asset/strike)，保持输入顺序，不排序。
func ToXDomain(asset float64, strikes []float64) ([]float64, error) {
	if len(strikes) == 0 {
		return nil, xerrors.ErrEmptyStrikes.Derive("no strikes supplied")
	}
	if !(asset > 0) || math.IsInf(asset, 1) {
		return nil, xerrors.ErrNonPositiveAsset.Derive("asset=%v", asset)
	}
	xs := make([]float64, len(strikes))
	for i, k := range strikes {
		if !(k > 0) || math.IsInf(k, 1) {
			return nil, xerrors.ErrNonPositiveStrike.Derive("strikes[%d]=%v", i, k)
		}
		xs[i] = math.Log(asset / k)
	}
	return xs, nil
}

// StrikeFromX 是 ToXDomain 的逆变换。
func StrikeFromX(asset, x float64) float64 {
	return asset * math.Exp(-x)
}

// StrikeGrid 生成 x 在 [xMin, xMax] 上等距（行权价几何等比）的 n 个行权价，x 递增、行权价递减。
func StrikeGrid(asset, xMin, xMax float64, n int) []float64 {
	if n <= 0 {
		return nil
	}
	if n == 1 {
		return []float64{StrikeFromX(asset, xMin)}
	}
	dx := (xMax - xMin) / float64(n-1)
	strikes := make([]float64, n)
	for i := range strikes {
		strikes[i] = StrikeFromX(asset, xMin+dx*float64(i))
	}
	return strikes
}

// IdentityTransform 不做任何变换的 Enhancement。
func IdentityTransform(cf complex128, _ float64) complex128 {
	return cf
}

// CallOutput 以看跌为内部收益，通过平价关系还原看涨价格：(val-1)·discount·K + S。
func CallOutput(discount, asset float64, strikes []float64) OutputFunc {
	return func(val, _ float64, index int) float64 {
		return (val-1)*discount*strikes[index] + asset
	}
}

// PutOutput 看跌价格：val·discount·K。
func PutOutput(discount float64, strikes []float64) OutputFunc {
	return func(val, _ float64, index int) float64 {
		return val * discount * strikes[index]
	}
}

// putWeight 看跌收益 (1-e^y)^+ 在 [a, 0] 上的余弦系数。
func putWeight(xMin, xMax float64) WeightFunc {
	return func(u, _ float64, k int) float64 {
		return PhiK(xMin, xMax, xMin, 0, u, k) - ChiK(xMin, xMax, xMin, 0, u)
	}
}

// domain 返回 x 的最小值与最大值。
func domain(xValues []float64) (float64, float64) {
	lo, hi := xValues[0], xValues[0]
	for _, x := range xValues[1:] {
		lo = math.Min(lo, x)
		hi = math.Max(hi, x)
	}
	return lo, hi
}

// Expectation 计算每个 x 处的 COS 期望近似值，输出与 xValues 一一对应。
// 截断区间取 [min(x), max(x)]；第 0 项权重为 1/2。
func (e *COSEngine) Expectation(ctx context.Context, numU int, xValues []float64, cf CharacteristicFunc, enh Enhancement, weight WeightFunc) ([]float64, error) {
	if numU < 1 {
		return nil, xerrors.ErrInvalidFrequencies.Derive("num_frequencies=%d", numU)
	}
	if len(xValues) == 0 {
		return nil, xerrors.ErrEmptyStrikes.Derive("no x values")
	}
	if enh == nil {
		enh = IdentityTransform
	}

	a, b := domain(xValues)
	width := b - a
	if !(width > 0) || math.IsInf(width, 0) {
		return nil, xerrors.ErrDegenerateDomain.Derive("x in [%v, %v]", a, b)
	}
	du := math.Pi / width
	scale := 2 / width

	e.logger.DebugContext(ctx, "cos expectation", "num_u", numU, "num_x", len(xValues), "a", a, "b", b, "workers", e.workers)

	// 频率轴：特征函数采样与 x 无关，每个 k 只求值一次。
	indices := make([]int, numU)
	for k := range indices {
		indices[k] = k
	}
	samples, err := async.Map(indices, e.workers, func(_ int, k int) (complex128, error) {
		u := float64(k) * du
		v := enh(cf(u), u)
		if cmplx.IsNaN(v) || cmplx.IsInf(v) {
			return 0, xerrors.ErrNonFiniteCF.Derive("k=%d u=%v value=%v", k, u, v)
		}
		if k == 0 {
			v *= 0.5
		}
		return v, nil
	})
	if err != nil {
		return nil, err
	}

	// x 轴：每个分块独占输出区间，k 升序累加，结果与并发度无关。
	out := make([]float64, len(xValues))
	err = async.ForEachChunk(ctx, len(xValues), e.chunkSize, e.workers, func(_ context.Context, lo, hi int) error {
		for j := lo; j < hi; j++ {
			x := xValues[j]
			var sum float64
			for k, cfu := range samples {
				u := float64(k) * du
				s, c := math.Sincos(u * (x - a))
				sum += (real(cfu)*c - imag(cfu)*s) * weight(u, x, k)
			}
			out[j] = sum * scale
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// price 期权定价的通用流程：校验、x 变换、COS 期望、收益还原。
func (e *COSEngine) price(ctx context.Context, numU int, asset float64, strikes []float64, rate, maturity float64, cf CharacteristicFunc, output func(discount float64) OutputFunc) ([]float64, error) {
	if numU < 1 {
		return nil, xerrors.ErrInvalidFrequencies.Derive("num_frequencies=%d", numU)
	}
	if math.IsNaN(rate) || math.IsInf(rate, 0) {
		return nil, xerrors.ErrInvalidRate.Derive("rate=%v", rate)
	}
	if !(maturity >= 0) || math.IsInf(maturity, 1) {
		return nil, xerrors.ErrNegativeMaturity.Derive("maturity=%v", maturity)
	}
	xValues, err := ToXDomain(asset, strikes)
	if err != nil {
		return nil, err
	}

	a, b := domain(xValues)
	raw, err := e.Expectation(ctx, numU, xValues, cf, IdentityTransform, putWeight(a, b))
	if err != nil {
		return nil, err
	}

	out := output(math.Exp(-rate * maturity))
	prices := make([]float64, len(raw))
	for i, v := range raw {
		prices[i] = out(v, xValues[i], i)
		if math.IsNaN(prices[i]) || math.IsInf(prices[i], 0) {
			return nil, xerrors.ErrNonFinitePrice.Derive("strikes[%d]=%v", i, strikes[i])
		}
	}
	return prices, nil
}

// CallPrice 计算每个行权价的欧式看涨期权价格，顺序与 strikes 一致。
func (e *COSEngine) CallPrice(ctx context.Context, numU int, asset float64, strikes []float64, rate, maturity float64, cf CharacteristicFunc) ([]float64, error) {
	return e.price(ctx, numU, asset, strikes, rate, maturity, cf, func(discount float64) OutputFunc {
		return CallOutput(discount, asset, strikes)
	})
}

// PutPrice 计算每个行权价的欧式看跌期权价格，顺序与 strikes 一致。
func (e *COSEngine) PutPrice(ctx context.Context, numU int, asset float64, strikes []float64, rate, maturity float64, cf CharacteristicFunc) ([]float64, error) {
	return e.price(ctx, numU, asset, strikes, rate, maturity, cf, func(discount float64) OutputFunc {
		return PutOutput(discount, strikes)
	})
}

var defaultEngine = NewCOSEngine()

// CallPrice 使用默认引擎计算看涨价格。
func CallPrice(numU int, asset float64, strikes []float64, rate, maturity float64, cf CharacteristicFunc) ([]float64, error) {
	return defaultEngine.CallPrice(context.Background(), numU, asset, strikes, rate, maturity, cf)
}

// PutPrice 使用默认引擎计算看跌价格。
func PutPrice(numU int, asset float64, strikes []float64, rate, maturity float64, cf CharacteristicFunc) ([]float64, error) {
	return defaultEngine.PutPrice(context.Background(), numU, asset, strikes, rate, maturity, cf)
}
