package finance

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

// BlackScholesCall Black-Scholes 闭式看涨价格，discount = e^{-rT}。
// 用作 COS 结果的参照值。
func BlackScholesCall(asset, strike, discount, sigma, maturity float64) float64 {
	forwardStrike := strike * discount
	vol := sigma * math.Sqrt(maturity)
	if vol == 0 {
		return math.Max(asset-forwardStrike, 0)
	}
	d1 := (math.Log(asset/forwardStrike) + 0.5*vol*vol) / vol
	d2 := d1 - vol
	return asset*distuv.UnitNormal.CDF(d1) - forwardStrike*distuv.UnitNormal.CDF(d2)
}

// BlackScholesPut Black-Scholes 闭式看跌价格。
func BlackScholesPut(asset, strike, discount, sigma, maturity float64) float64 {
	forwardStrike := strike * discount
	vol := sigma * math.Sqrt(maturity)
	if vol == 0 {
		return math.Max(forwardStrike-asset, 0)
	}
	d1 := (math.Log(asset/forwardStrike) + 0.5*vol*vol) / vol
	d2 := d1 - vol
	return forwardStrike*distuv.UnitNormal.CDF(-d2) - asset*distuv.UnitNormal.CDF(-d1)
}
