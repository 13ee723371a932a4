package stageconfig

// CurrentVersion is the only schema version this build understands
const CurrentVersion = 1

// Evaluation modes of the point-in-time driver
const (
	EvaluationFullReplay  = "full_replay"
	EvaluationPrecomputed = "precomputed"
)

// Missing-stage policies of the spider gate
const (
	OnMissingBlock = "block"
	OnMissingAllow = "allow"
)

// Config is the full stage/gate pipeline configuration
// ⭐ SSOT: 분류/집계/게이트 파라미터는 여기서만 정의
type Config struct {
	Version    int        `yaml:"version" json:"version"`
	Indicators Indicators `yaml:"indicators" json:"indicators"`
	StageLogic StageLogic `yaml:"stage_logic" json:"stage_logic"`
	Universe   Universe   `yaml:"universe" json:"universe"`
	Spiders    Spiders    `yaml:"spiders" json:"spiders"`
	SpiderGate SpiderGate `yaml:"spider_gate" json:"spider_gate"`
}

// Indicators holds lookback windows and thresholds for the classifier
type Indicators struct {
	Lookbacks Lookbacks `yaml:"lookbacks" json:"lookbacks"`
	Bollinger Bollinger `yaml:"bollinger" json:"bollinger"`
	Volume    Volume    `yaml:"volume" json:"volume"`
	Momentum  Momentum  `yaml:"momentum" json:"momentum"`
}

type Lookbacks struct {
	EMAFast         int `yaml:"ema_fast" json:"ema_fast"`
	EMAMid          int `yaml:"ema_mid" json:"ema_mid"`
	EMASlow         int `yaml:"ema_slow" json:"ema_slow"`
	EMALong         int `yaml:"ema_long" json:"ema_long"`
	Donchian        int `yaml:"donchian" json:"donchian"`
	BollingerPeriod int `yaml:"bollinger_period" json:"bollinger_period"`
	VolAvgPeriod    int `yaml:"vol_avg_period" json:"vol_avg_period"`
	MinHistoryDays  int `yaml:"min_history_days" json:"min_history_days"`
}

type Bollinger struct {
	Stdev float64 `yaml:"stdev" json:"stdev"`
}

type Volume struct {
	RelVolThreshold float64 `yaml:"rel_vol_threshold" json:"rel_vol_threshold"`
}

// Momentum overlays are exported with features, not used by the stage rules
type Momentum struct {
	RSIPeriod  int `yaml:"rsi_period" json:"rsi_period"`
	MACDFast   int `yaml:"macd_fast" json:"macd_fast"`
	MACDSlow   int `yaml:"macd_slow" json:"macd_slow"`
	MACDSignal int `yaml:"macd_signal" json:"macd_signal"`
}

// StageLogic controls the point-in-time driver
type StageLogic struct {
	RequireBreakoutBeforeInzone bool   `yaml:"require_breakout_before_inzone" json:"require_breakout_before_inzone"`
	Evaluation                  string `yaml:"evaluation" json:"evaluation"` // full_replay | precomputed
}

// Universe S1: 투자 가능 풀 필터
type Universe struct {
	Country           string          `yaml:"country" json:"country"`
	MinMarketCapUSD   int64           `yaml:"min_market_cap_usd" json:"min_market_cap_usd"`
	ExclusionsEnabled bool            `yaml:"exclusions_enabled" json:"exclusions_enabled"`
	Exclusions        []ExclusionRule `yaml:"exclusions" json:"exclusions"`
}

// ExclusionRule drops universe rows; rule is sector_equals, sector_in or ticker_in
type ExclusionRule struct {
	Rule    string `yaml:"rule" json:"rule"`
	Pattern string `yaml:"pattern" json:"pattern"`
	Note    string `yaml:"note" json:"note"`
}

// Spiders S3: 섹터 합성 시계열
type Spiders struct {
	MinWeightCoverage  float64 `yaml:"min_weight_coverage" json:"min_weight_coverage"`
	WeightSumTolerance float64 `yaml:"weight_sum_tolerance" json:"weight_sum_tolerance"`
	DominanceWarn      float64 `yaml:"dominance_warn" json:"dominance_warn"`
}

// SpiderGate S5: 섹터 stage 기반 매매 허용 게이트
type SpiderGate struct {
	Enabled                   bool               `yaml:"enabled" json:"enabled"`
	AllowStages               []int              `yaml:"allow_stages" json:"allow_stages"`
	BlockStages               []int              `yaml:"block_stages" json:"block_stages"`
	OnMissing                 string             `yaml:"on_missing" json:"on_missing"` // block | allow
	MinConsecutiveDaysInAllow int                `yaml:"min_consecutive_days_in_allow" json:"min_consecutive_days_in_allow"`
	StageRiskMultiplier       map[string]float64 `yaml:"stage_risk_multiplier" json:"stage_risk_multiplier"`
}

// Default returns the baseline configuration used when a key is omitted
func Default() *Config {
	return &Config{
		Version: CurrentVersion,
		Indicators: Indicators{
			Lookbacks: Lookbacks{
				EMAFast:         10,
				EMAMid:          20,
				EMASlow:         50,
				EMALong:         200,
				Donchian:        20,
				BollingerPeriod: 20,
				VolAvgPeriod:    20,
				MinHistoryDays:  260,
			},
			Bollinger: Bollinger{Stdev: 2.0},
			Volume:    Volume{RelVolThreshold: 1.5},
			Momentum: Momentum{
				RSIPeriod:  14,
				MACDFast:   12,
				MACDSlow:   26,
				MACDSignal: 9,
			},
		},
		StageLogic: StageLogic{
			RequireBreakoutBeforeInzone: false,
			Evaluation:                  EvaluationPrecomputed,
		},
		Universe: Universe{
			Country:           "USA",
			MinMarketCapUSD:   300_000_000,
			ExclusionsEnabled: true,
		},
		Spiders: Spiders{
			MinWeightCoverage:  0.10,
			WeightSumTolerance: 1e-6,
			DominanceWarn:      0.35,
		},
		SpiderGate: SpiderGate{
			Enabled:                   true,
			AllowStages:               []int{7, 8, 9},
			BlockStages:               []int{2, 3, 4},
			OnMissing:                 OnMissingBlock,
			MinConsecutiveDaysInAllow: 1,
		},
	}
}
