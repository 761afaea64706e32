package finance

import (
	"context"
	"math"
	"math/cmplx"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wyfcoding/fangoost/async"
	"github.com/wyfcoding/fangoost/xerrors"
)

const (
	testRate     = 0.05
	testSigma    = 0.3
	testMaturity = 1.0
	testAsset    = 50.0
)

func bsGrid() []float64 {
	return StrikeGrid(testAsset, -5, 5, 1024)
}

func TestCallPrice_ConvergesToBlackScholes(t *testing.T) {
	strikes := bsGrid()
	cf := BlackScholesCF(testRate, testSigma, testMaturity)

	prices, err := CallPrice(64, testAsset, strikes, testRate, testMaturity, cf)
	require.NoError(t, err)
	require.Len(t, prices, len(strikes))

	discount := math.Exp(-testRate * testMaturity)
	for i := 256; i < 768; i++ {
		want := BlackScholesCall(testAsset, strikes[i], discount, testSigma, testMaturity)
		assert.InDelta(t, want, prices[i], 1e-3, "strike[%d]=%v", i, strikes[i])
	}
}

func TestPutPrice_ConvergesToBlackScholes(t *testing.T) {
	strikes := bsGrid()
	cf := BlackScholesCF(testRate, testSigma, testMaturity)

	prices, err := PutPrice(64, testAsset, strikes, testRate, testMaturity, cf)
	require.NoError(t, err)

	discount := math.Exp(-testRate * testMaturity)
	for i := 256; i < 768; i++ {
		want := BlackScholesPut(testAsset, strikes[i], discount, testSigma, testMaturity)
		assert.InDelta(t, want, prices[i], 1e-3, "strike[%d]=%v", i, strikes[i])
	}
}

func TestCallPrice_ShapeAndOrder(t *testing.T) {
	strikes := []float64{60, 40, 55, 45, 50}
	cf := BlackScholesCF(testRate, testSigma, testMaturity)

	prices, err := CallPrice(128, testAsset, strikes, testRate, testMaturity, cf)
	require.NoError(t, err)
	require.Len(t, prices, len(strikes))

	// 打乱顺序后逐个行权价的价格应与其自身一一对应。
	sorted := []float64{40, 45, 50, 55, 60}
	sortedPrices, err := CallPrice(128, testAsset, sorted, testRate, testMaturity, cf)
	require.NoError(t, err)

	index := map[float64]float64{}
	for i, k := range sorted {
		index[k] = sortedPrices[i]
	}
	for i, k := range strikes {
		assert.InDelta(t, index[k], prices[i], 1e-9, "strike %v", k)
	}
}

func TestCallPrice_NonIncreasingInStrike(t *testing.T) {
	strikes := bsGrid() // x 递增，行权价递减
	cf := BlackScholesCF(testRate, testSigma, testMaturity)

	prices, err := CallPrice(64, testAsset, strikes, testRate, testMaturity, cf)
	require.NoError(t, err)

	for i := 256; i < 767; i++ {
		require.Less(t, strikes[i+1], strikes[i])
		assert.GreaterOrEqual(t, prices[i+1], prices[i]-1e-6, "i=%d", i)
	}
}

func TestCallPrice_SingleFrequency(t *testing.T) {
	strikes := []float64{40, 50, 60}
	cf := BlackScholesCF(testRate, testSigma, testMaturity)

	prices, err := CallPrice(1, testAsset, strikes, testRate, testMaturity, cf)
	require.NoError(t, err)

	xs, err := ToXDomain(testAsset, strikes)
	require.NoError(t, err)
	a, b := domain(xs)
	// 只剩 k=0 项：0.5·cf(0)·(phi_0 - chi_0)·2/(b-a)
	raw := (math.Exp(a) - 1 - a) / (b - a)
	discount := math.Exp(-testRate * testMaturity)
	for i, k := range strikes {
		want := (raw-1)*discount*k + testAsset
		assert.InDelta(t, want, prices[i], 1e-9)
	}
}

func TestCallPrice_IdenticalStrikesFail(t *testing.T) {
	cf := BlackScholesCF(testRate, testSigma, testMaturity)
	_, err := CallPrice(64, testAsset, []float64{50, 50, 50}, testRate, testMaturity, cf)
	require.Error(t, err)
	assert.ErrorIs(t, err, xerrors.ErrDegenerateDomain)

	_, err = CallPrice(64, testAsset, []float64{50}, testRate, testMaturity, cf)
	assert.ErrorIs(t, err, xerrors.ErrDegenerateDomain)
}

func TestCallPrice_InvalidInputs(t *testing.T) {
	cf := BlackScholesCF(testRate, testSigma, testMaturity)
	strikes := []float64{40, 60}

	cases := []struct {
		name     string
		numU     int
		asset    float64
		strikes  []float64
		rate     float64
		maturity float64
		want     *xerrors.Error
	}{
		{"zero frequencies", 0, testAsset, strikes, testRate, testMaturity, xerrors.ErrInvalidFrequencies},
		{"zero asset", 64, 0, strikes, testRate, testMaturity, xerrors.ErrNonPositiveAsset},
		{"negative strike", 64, testAsset, []float64{40, -1}, testRate, testMaturity, xerrors.ErrNonPositiveStrike},
		{"zero strike", 64, testAsset, []float64{0, 40}, testRate, testMaturity, xerrors.ErrNonPositiveStrike},
		{"empty strikes", 64, testAsset, nil, testRate, testMaturity, xerrors.ErrEmptyStrikes},
		{"negative maturity", 64, testAsset, strikes, testRate, -1, xerrors.ErrNegativeMaturity},
		{"nan rate", 64, testAsset, strikes, math.NaN(), testMaturity, xerrors.ErrInvalidRate},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			prices, err := CallPrice(tc.numU, tc.asset, tc.strikes, tc.rate, tc.maturity, cf)
			assert.Nil(t, prices)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestCallPrice_NonFiniteCharacteristicFunction(t *testing.T) {
	cf := func(u float64) complex128 {
		if u > 1 {
			return cmplx.NaN()
		}
		return 1
	}
	prices, err := CallPrice(32, testAsset, []float64{40, 60}, testRate, testMaturity, cf)
	assert.Nil(t, prices)
	assert.ErrorIs(t, err, xerrors.ErrNonFiniteCF)
}

func TestCallPrice_Deterministic(t *testing.T) {
	strikes := bsGrid()
	cf := BlackScholesCF(testRate, testSigma, testMaturity)
	ctx := context.Background()

	serial := NewCOSEngine(WithWorkers(1), WithChunkSize(7))
	parallel := NewCOSEngine(WithWorkers(8), WithChunkSize(64))

	first, err := parallel.CallPrice(ctx, 64, testAsset, strikes, testRate, testMaturity, cf)
	require.NoError(t, err)
	second, err := parallel.CallPrice(ctx, 64, testAsset, strikes, testRate, testMaturity, cf)
	require.NoError(t, err)
	third, err := serial.CallPrice(ctx, 64, testAsset, strikes, testRate, testMaturity, cf)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, first, third)
}

func TestPutCallParity(t *testing.T) {
	strikes := []float64{30, 40, 50, 60, 70}
	cf := HestonCF(testRate, 1.5, 0.04, 0.3, -0.6, 0.04, testMaturity)

	calls, err := CallPrice(128, testAsset, strikes, testRate, testMaturity, cf)
	require.NoError(t, err)
	puts, err := PutPrice(128, testAsset, strikes, testRate, testMaturity, cf)
	require.NoError(t, err)

	discount := math.Exp(-testRate * testMaturity)
	for i, k := range strikes {
		assert.InDelta(t, testAsset-k*discount, calls[i]-puts[i], 1e-9)
	}
}

func TestToXDomain_RoundTrip(t *testing.T) {
	strikes := []float64{12.5, 50, 49.99, 180, 3}
	xs, err := ToXDomain(testAsset, strikes)
	require.NoError(t, err)
	require.Len(t, xs, len(strikes))

	for i, x := range xs {
		assert.InEpsilon(t, strikes[i], StrikeFromX(testAsset, x), 1e-12)
	}
}

func TestStrikeGrid(t *testing.T) {
	strikes := StrikeGrid(testAsset, -5, 5, 11)
	require.Len(t, strikes, 11)
	assert.InEpsilon(t, testAsset*math.Exp(5), strikes[0], 1e-12)
	assert.InEpsilon(t, testAsset, strikes[5], 1e-12)
	assert.InEpsilon(t, testAsset*math.Exp(-5), strikes[10], 1e-12)
	assert.Nil(t, StrikeGrid(testAsset, -1, 1, 0))
}

func TestCoefficients(t *testing.T) {
	a := -3.0
	assert.Equal(t, 0-a, PhiK(a, 2, a, 0, 0, 0))
	assert.InDelta(t, 1-math.Exp(a), ChiK(a, 2, a, 0, 0), 1e-15)

	// phi_k 与 chi_k 的闭式和数值积分一致
	u := 1.7
	const n = 200000
	h := (0 - a) / n
	var phi, chi float64
	for i := range n {
		y := a + (float64(i)+0.5)*h
		c := math.Cos(u * (y - a))
		phi += c * h
		chi += math.Exp(y) * c * h
	}
	assert.InDelta(t, phi, PhiK(a, 2, a, 0, u, 3), 1e-8)
	assert.InDelta(t, chi, ChiK(a, 2, a, 0, u), 1e-8)
}

func TestExpectation_CustomWeight(t *testing.T) {
	engine := NewCOSEngine(WithWorkers(2))
	xs := []float64{-1, 0, 1}
	cf := BlackScholesCF(0, 0.2, 1)

	// 单频率、权重恒为 1：每个 x 的结果都是 0.5·cf(0)·2/(b-a)
	out, err := engine.Expectation(context.Background(), 1, xs, cf, nil, func(_, _ float64, _ int) float64 {
		return 1
	})
	require.NoError(t, err)
	require.Len(t, out, 3)
	for _, v := range out {
		assert.InDelta(t, 0.5, v, 1e-15)
	}
}

func TestExpectation_EnhancementApplied(t *testing.T) {
	engine := NewCOSEngine()
	xs := []float64{-1, 1}
	cf := BlackScholesCF(0, 0.2, 1)
	weight := func(_, _ float64, _ int) float64 { return 1 }

	base, err := engine.Expectation(context.Background(), 16, xs, cf, IdentityTransform, weight)
	require.NoError(t, err)
	doubled, err := engine.Expectation(context.Background(), 16, xs, cf, func(v complex128, _ float64) complex128 {
		return 2 * v
	}, weight)
	require.NoError(t, err)

	for i := range xs {
		assert.InDelta(t, 2*base[i], doubled[i], 1e-12)
	}
}

func TestExpectation_PanickingCFKeepsStackOutOfMessage(t *testing.T) {
	engine := NewCOSEngine(WithWorkers(2))
	cf := func(u float64) complex128 {
		if u > 0 {
			panic("bad cf")
		}
		return 1
	}

	_, err := engine.Expectation(context.Background(), 4, []float64{-1, 1}, cf, nil, putWeight(-1, 1))
	require.Error(t, err)
	assert.ErrorIs(t, err, async.ErrPanicRecovered)
	assert.Equal(t, "async task panic recovered: item 1: bad cf", err.Error())

	var pe *async.PanicError
	require.ErrorAs(t, err, &pe)
	assert.NotEmpty(t, pe.Stack)
}
