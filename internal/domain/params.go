package domain

// QuotingMode quoting style selector.
type QuotingMode int

const (
	QuotingModeTop QuotingMode = iota
	QuotingModeMid
	QuotingModeJoin
	QuotingModeInverseJoin
	QuotingModeInverseTop
	QuotingModePingPong
	QuotingModeDepth
)

// String returns the string representation of the mode.
func (m QuotingMode) String() string {
	switch m {
	case QuotingModeTop:
		return "Top"
	case QuotingModeMid:
		return "Mid"
	case QuotingModeJoin:
		return "Join"
	case QuotingModeInverseJoin:
		return "InverseJoin"
	case QuotingModeInverseTop:
		return "InverseTop"
	case QuotingModePingPong:
		return "PingPong"
	case QuotingModeDepth:
		return "Depth"
	default:
		return "unknown"
	}
}

// FairValueModel fair value formula.
type FairValueModel int

const (
	FairValueModelBBO FairValueModel = iota
	FairValueModelWBBO
)

// AutoPositionMode target position source.
type AutoPositionMode int

const (
	AutoPositionModeOff AutoPositionMode = iota
	AutoPositionModeEwmaBasic
)

// QuotingParameters operator-supplied settings, replaced as a whole.
type QuotingParameters struct {
	Width                         float64          `json:"width" yaml:"width"`
	Size                          float64          `json:"size" yaml:"size"`
	Mode                          QuotingMode      `json:"mode" yaml:"mode"`
	FvModel                       FairValueModel   `json:"fvModel" yaml:"fv_model"`
	TargetBasePosition            float64          `json:"targetBasePosition" yaml:"target_base_position"`
	PositionDivergence            float64          `json:"positionDivergence" yaml:"position_divergence"`
	EwmaProtection                bool             `json:"ewmaProtection" yaml:"ewma_protection"`
	AutoPositionMode              AutoPositionMode `json:"autoPositionMode" yaml:"auto_position_mode"`
	AggressivePositionRebalancing bool             `json:"aggressivePositionRebalancing" yaml:"aggressive_position_rebalancing"`
	TradesPerMinute               float64          `json:"tradesPerMinute" yaml:"trades_per_minute"`
	TradeRateSeconds              float64          `json:"tradeRateSeconds" yaml:"trade_rate_seconds"`
	LongEwma                      float64          `json:"longEwma" yaml:"long_ewma"`
	ShortEwma                     float64          `json:"shortEwma" yaml:"short_ewma"`
	QuotingEwma                   float64          `json:"quotingEwma" yaml:"quoting_ewma"`
	AprMultiplier                 float64          `json:"aprMultiplier" yaml:"apr_multiplier"`
	StepOverSize                  float64          `json:"stepOverSize" yaml:"step_over_size"`
}

// DefaultQuotingParameters parameters used when nothing was persisted yet.
func DefaultQuotingParameters() QuotingParameters {
	return QuotingParameters{
		Width:                         0.3,
		Size:                          0.05,
		Mode:                          QuotingModeTop,
		FvModel:                       FairValueModelBBO,
		TargetBasePosition:            3,
		PositionDivergence:            0.8,
		EwmaProtection:                false,
		AutoPositionMode:              AutoPositionModeOff,
		AggressivePositionRebalancing: false,
		TradesPerMinute:               2.5,
		TradeRateSeconds:              300,
		LongEwma:                      0.095,
		ShortEwma:                     2 * 0.095,
		QuotingEwma:                   0.095,
		AprMultiplier:                 3,
		StepOverSize:                  0.1,
	}
}

// Valid reports whether the parameters can be used for quoting.
func (p QuotingParameters) Valid() bool {
	return p.Size > 0 || p.Width > 0
}
