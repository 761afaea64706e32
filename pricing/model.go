// Package pricing 将 COS 引擎封装为报价服务：模型目录、参数校验、缓存、指标与 HTTP 接口。
package pricing

import (
	"errors"
	"reflect"
	"slices"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/wyfcoding/fangoost/algorithm/finance"
	"github.com/wyfcoding/fangoost/xerrors"
)

// 支持的模型名称。
const (
	ModelBlackScholes = "black_scholes"
	ModelMerton       = "merton"
	ModelHeston       = "heston"
	ModelCGMY         = "cgmy"
)

// ParamSpec 描述一个模型参数。
type ParamSpec struct {
	Name       string `json:"name"`
	Constraint string `json:"constraint"`
	Optional   bool   `json:"optional,omitempty"`
}

// ModelInfo 模型目录项，供 GET /v1/models 返回。
type ModelInfo struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Params      []ParamSpec `json:"params"`
}

// 参数结构体：param 标签给出 JSON 键名（optional 表示缺省为 0），validate 标签给出取值约束。

type blackScholesParams struct {
	Sigma float64 `param:"sigma" validate:"gt=0"`
}

type mertonParams struct {
	Sigma  float64 `param:"sigma"  validate:"gte=0"`
	Lambda float64 `param:"lambda" validate:"gte=0"`
	MuJ    float64 `param:"mu_j"`
	SigJ   float64 `param:"sig_j"  validate:"gte=0"`
}

type hestonParams struct {
	Kappa  float64 `param:"kappa"   validate:"gt=0"`
	Theta  float64 `param:"theta"   validate:"gt=0"`
	SigmaV float64 `param:"sigma_v" validate:"gt=0"`
	Rho    float64 `param:"rho"     validate:"gte=-1,lte=1"`
	V0     float64 `param:"v0"      validate:"gte=0"`
}

type cgmyParams struct {
	Sigma float64 `param:"sigma,optional" validate:"gte=0"`
	C     float64 `param:"c"              validate:"gt=0"`
	G     float64 `param:"g"              validate:"gt=0"`
	M     float64 `param:"m"              validate:"gt=1"`
	Y     float64 `param:"y"              validate:"gt=0,lt=2,ne=1"`
}

type modelEntry struct {
	description string
	params      any
	resolve     func(p any, rate, maturity float64) finance.CharacteristicFunc
}

var catalogue = map[string]modelEntry{
	ModelBlackScholes: {
		description: "geometric Brownian motion",
		params:      blackScholesParams{},
		resolve: func(p any, rate, maturity float64) finance.CharacteristicFunc {
			bs := p.(*blackScholesParams)
			return finance.BlackScholesCF(rate, bs.Sigma, maturity)
		},
	},
	ModelMerton: {
		description: "Merton jump diffusion with log-normal jumps",
		params:      mertonParams{},
		resolve: func(p any, rate, maturity float64) finance.CharacteristicFunc {
			m := p.(*mertonParams)
			return finance.MertonCF(rate, m.Sigma, m.Lambda, m.MuJ, m.SigJ, maturity)
		},
	},
	ModelHeston: {
		description: "Heston stochastic volatility",
		params:      hestonParams{},
		resolve: func(p any, rate, maturity float64) finance.CharacteristicFunc {
			h := p.(*hestonParams)
			return finance.HestonCF(rate, h.Kappa, h.Theta, h.SigmaV, h.Rho, h.V0, maturity)
		},
	},
	ModelCGMY: {
		description: "CGMY tempered stable jumps with optional diffusion",
		params:      cgmyParams{},
		resolve: func(p any, rate, maturity float64) finance.CharacteristicFunc {
			c := p.(*cgmyParams)
			return finance.CGMYCF(rate, c.Sigma, c.C, c.G, c.M, c.Y, maturity)
		},
	},
}

var paramValidate = func() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("param"), ",")
		return name
	})
	return v
}()

// ResolveModel 根据模型名称与参数构造特征函数。
// 未知模型返回 ErrUnknownModel；缺少、多余或越界的参数返回 ErrInvalidModelParams。
func ResolveModel(name string, params map[string]float64, rate, maturity float64) (finance.CharacteristicFunc, error) {
	entry, ok := catalogue[name]
	if !ok {
		return nil, xerrors.ErrUnknownModel.Derive("model %q", name)
	}

	target := reflect.New(reflect.TypeOf(entry.params))
	if err := bindParams(name, params, target); err != nil {
		return nil, err
	}
	if err := paramValidate.Struct(target.Interface()); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return nil, xerrors.ErrInvalidModelParams.Derive("%s: %s=%v violates %s", name, fe.Field(), fe.Value(), constraintOf(fe))
		}
		return nil, xerrors.ErrInvalidModelParams.Derive("%s: %v", name, err)
	}
	return entry.resolve(target.Interface(), rate, maturity), nil
}

// bindParams 按 param 标签把 map 中的值写入结构体字段，拒绝未知键与缺失的必填键。
func bindParams(model string, params map[string]float64, target reflect.Value) error {
	elem := target.Elem()
	typ := elem.Type()
	known := make(map[string]struct{}, typ.NumField())

	for i := range typ.NumField() {
		name, opt, _ := strings.Cut(typ.Field(i).Tag.Get("param"), ",")
		known[name] = struct{}{}
		v, ok := params[name]
		if !ok {
			if opt == "optional" {
				continue
			}
			return xerrors.ErrInvalidModelParams.Derive("%s: missing parameter %q", model, name)
		}
		elem.Field(i).SetFloat(v)
	}

	for key := range params {
		if _, ok := known[key]; !ok {
			return xerrors.ErrInvalidModelParams.Derive("%s: unknown parameter %q", model, key)
		}
	}
	return nil
}

func constraintOf(fe validator.FieldError) string {
	if fe.Param() == "" {
		return fe.Tag()
	}
	return fe.Tag() + "=" + fe.Param()
}

// Models 返回按名称排序的模型目录。
func Models() []ModelInfo {
	names := make([]string, 0, len(catalogue))
	for name := range catalogue {
		names = append(names, name)
	}
	slices.Sort(names)

	out := make([]ModelInfo, 0, len(names))
	for _, name := range names {
		entry := catalogue[name]
		out = append(out, ModelInfo{
			Name:        name,
			Description: entry.description,
			Params:      describeParams(reflect.TypeOf(entry.params)),
		})
	}
	return out
}

func describeParams(typ reflect.Type) []ParamSpec {
	specs := make([]ParamSpec, 0, typ.NumField())
	for i := range typ.NumField() {
		f := typ.Field(i)
		name, opt, _ := strings.Cut(f.Tag.Get("param"), ",")
		constraint := f.Tag.Get("validate")
		if constraint == "" {
			constraint = "any"
		}
		specs = append(specs, ParamSpec{Name: name, Constraint: constraint, Optional: opt == "optional"})
	}
	return specs
}
