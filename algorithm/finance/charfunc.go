package finance

import (
	"math"
	"math/cmplx"
)

// BlackScholesCF 几何布朗运动下 ln(S_T/S_0) 的特征函数。
func BlackScholesCF(rate, sigma, maturity float64) CharacteristicFunc {
	drift := (rate - 0.5*sigma*sigma) * maturity
	variance := sigma * sigma * maturity
	return func(u float64) complex128 {
		return cmplx.Exp(complex(-0.5*variance*u*u, drift*u))
	}
}

// MertonCF Merton 跳扩散模型的特征函数，跳跃幅度 ln(J) ~ N(muJ, sigJ²)，强度 lambda。
func MertonCF(rate, sigma, lambda, muJ, sigJ, maturity float64) CharacteristicFunc {
	kappa := math.Exp(muJ+0.5*sigJ*sigJ) - 1
	drift := (rate - 0.5*sigma*sigma - lambda*kappa) * maturity
	variance := sigma * sigma * maturity
	return func(u float64) complex128 {
		jump := cmplx.Exp(complex(-0.5*sigJ*sigJ*u*u, muJ*u)) - 1
		return cmplx.Exp(complex(-0.5*variance*u*u, drift*u) + complex(lambda*maturity, 0)*jump)
	}
}

// HestonCF Heston 随机波动率模型的特征函数 (Albrecher 等人的稳定分支写法)。
// kappa 均值回复速度，theta 长期方差，sigmaV 波动率的波动率，rho 相关系数，v0 初始方差。
func HestonCF(rate, kappa, theta, sigmaV, rho, v0, maturity float64) CharacteristicFunc {
	return func(u float64) complex128 {
		iu := complex(0, u)
		beta := complex(kappa, 0) - complex(rho*sigmaV, 0)*iu
		d := cmplx.Sqrt(beta*beta + complex(sigmaV*sigmaV, 0)*(iu+complex(u*u, 0)))
		g := (beta - d) / (beta + d)
		edt := cmplx.Exp(-d * complex(maturity, 0))
		s2 := complex(sigmaV*sigmaV, 0)

		c := iu*complex(rate*maturity, 0) +
			complex(kappa*theta, 0)/s2*((beta-d)*complex(maturity, 0)-2*cmplx.Log((1-g*edt)/(1-g)))
		dd := (beta - d) / s2 * (1 - edt) / (1 - g*edt)
		return cmplx.Exp(c + dd*complex(v0, 0))
	}
}

// CGMYCF CGMY 纯跳 Lévy 过程叠加扩散项 sigma 的特征函数，已做鞅修正。
// 要求 c>0, g>0, m>1, 0<y<2 且 y!=1。
func CGMYCF(rate, sigma, c, g, m, y, maturity float64) CharacteristicFunc {
	gamma := c * math.Gamma(-y)
	yc := complex(y, 0)
	mc := complex(m, 0)
	gc := complex(g, 0)
	psi := func(iu complex128) complex128 {
		return complex(gamma, 0) * (cmplx.Pow(mc-iu, yc) - cmplx.Pow(mc, yc) + cmplx.Pow(gc+iu, yc) - cmplx.Pow(gc, yc))
	}
	// ψ(-i) 使 E[S_T] = S_0·e^{rT}
	omega := -real(psi(1)) - 0.5*sigma*sigma
	return func(u float64) complex128 {
		iu := complex(0, u)
		exponent := iu*complex((rate+omega)*maturity, 0) -
			complex(0.5*sigma*sigma*u*u*maturity, 0) +
			complex(maturity, 0)*psi(iu)
		return cmplx.Exp(exponent)
	}
}
