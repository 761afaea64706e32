package xerrors

var (
	// ErrEmptyStrikes 行权价列表为空。
	ErrEmptyStrikes = New(ErrInvalidArg, 400101, "empty strikes", "at least one strike is required", nil)
	// ErrNonPositiveAsset 标的价格必须为正。
	ErrNonPositiveAsset = New(ErrInvalidArg, 400102, "non-positive asset", "asset price must be strictly positive", nil)
	// ErrNonPositiveStrike 行权价必须为正。
	ErrNonPositiveStrike = New(ErrInvalidArg, 400103, "non-positive strike", "every strike must be strictly positive", nil)
	// ErrInvalidFrequencies 频率项数量至少为 1。
	ErrInvalidFrequencies = New(ErrInvalidArg, 400104, "invalid frequency count", "num_frequencies must be at least 1", nil)
	// ErrNegativeMaturity 到期期限不能为负。
	ErrNegativeMaturity = New(ErrInvalidArg, 400105, "negative maturity", "maturity must be non-negative", nil)
	// ErrInvalidRate 利率必须是有限值。
	ErrInvalidRate = New(ErrInvalidArg, 400106, "invalid rate", "rate must be a finite number", nil)
	// ErrDegenerateDomain 截断区间退化 (min(x) == max(x))。
	ErrDegenerateDomain = New(ErrInvalidArg, 400107, "degenerate domain", "strikes must contain at least two distinct values", nil)
	// ErrUnknownModel 未注册的模型。
	ErrUnknownModel = New(ErrInvalidArg, 400108, "unknown model", "supported models: black_scholes, merton, heston, cgmy", nil)
	// ErrInvalidModelParams 模型参数非法。
	ErrInvalidModelParams = New(ErrInvalidArg, 400109, "invalid model params", "check model parameters", nil)
	// ErrTooManyStrikes 单次请求的行权价数量超过上限。
	ErrTooManyStrikes = New(ErrLimitExceeded, 429101, "too many strikes", "strike count exceeds the configured limit", nil)
	// ErrNonFiniteCF 特征函数返回 NaN/Inf。
	ErrNonFiniteCF = New(ErrInternal, 500101, "non-finite characteristic function", "characteristic function returned NaN or Inf", nil)
	// ErrNonFinitePrice 计算结果出现 NaN/Inf。
	ErrNonFinitePrice = New(ErrInternal, 500102, "non-finite price", "pricing produced NaN or Inf", nil)
)
