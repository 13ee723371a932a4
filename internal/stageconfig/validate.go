package stageconfig

import (
	"fmt"
	"strconv"
)

// ValidationError 검증 실패 (프로그램 중단)
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Warning 권장 위반 (경고만)
type Warning struct {
	Code    string
	Message string
}

// Validate checks all required constraints
// 실패 시 error 반환 (프로그램 중단)
func Validate(cfg *Config) error {
	if cfg.Version != CurrentVersion {
		return ValidationError{"version", fmt.Sprintf("must be %d, got %d", CurrentVersion, cfg.Version)}
	}

	// === Indicators ===
	lb := cfg.Indicators.Lookbacks
	windows := []struct {
		field string
		value int
	}{
		{"indicators.lookbacks.ema_fast", lb.EMAFast},
		{"indicators.lookbacks.ema_mid", lb.EMAMid},
		{"indicators.lookbacks.ema_slow", lb.EMASlow},
		{"indicators.lookbacks.ema_long", lb.EMALong},
		{"indicators.lookbacks.donchian", lb.Donchian},
		{"indicators.lookbacks.bollinger_period", lb.BollingerPeriod},
		{"indicators.lookbacks.vol_avg_period", lb.VolAvgPeriod},
		{"indicators.lookbacks.min_history_days", lb.MinHistoryDays},
	}
	for _, w := range windows {
		if w.value < 1 {
			return ValidationError{w.field, "must be >= 1"}
		}
	}
	if !(lb.EMAFast < lb.EMAMid && lb.EMAMid < lb.EMASlow && lb.EMASlow < lb.EMALong) {
		return ValidationError{"indicators.lookbacks", "ema spans must satisfy fast < mid < slow < long"}
	}
	if cfg.Indicators.Bollinger.Stdev <= 0 {
		return ValidationError{"indicators.bollinger.stdev", "must be > 0"}
	}
	if cfg.Indicators.Volume.RelVolThreshold <= 0 {
		return ValidationError{"indicators.volume.rel_vol_threshold", "must be > 0"}
	}

	m := cfg.Indicators.Momentum
	if m.RSIPeriod < 1 {
		return ValidationError{"indicators.momentum.rsi_period", "must be >= 1"}
	}
	if m.MACDFast < 1 || m.MACDSlow <= m.MACDFast {
		return ValidationError{"indicators.momentum", "macd_fast must be >= 1 and < macd_slow"}
	}
	if m.MACDSignal < 1 {
		return ValidationError{"indicators.momentum.macd_signal", "must be >= 1"}
	}

	// === Stage logic ===
	switch cfg.StageLogic.Evaluation {
	case EvaluationFullReplay, EvaluationPrecomputed:
	default:
		return ValidationError{"stage_logic.evaluation", fmt.Sprintf("must be %s or %s", EvaluationFullReplay, EvaluationPrecomputed)}
	}

	// === Universe ===
	if cfg.Universe.MinMarketCapUSD < 0 {
		return ValidationError{"universe.min_market_cap_usd", "must be >= 0"}
	}
	for i, r := range cfg.Universe.Exclusions {
		switch r.Rule {
		case "sector_equals", "sector_in", "ticker_in":
		default:
			return ValidationError{fmt.Sprintf("universe.exclusions[%d].rule", i), fmt.Sprintf("unknown rule %q", r.Rule)}
		}
		if r.Pattern == "" {
			return ValidationError{fmt.Sprintf("universe.exclusions[%d].pattern", i), "required"}
		}
	}

	// === Spiders ===
	if cfg.Spiders.MinWeightCoverage <= 0 || cfg.Spiders.MinWeightCoverage > 1 {
		return ValidationError{"spiders.min_weight_coverage", "must be in (0, 1]"}
	}
	if cfg.Spiders.WeightSumTolerance <= 0 {
		return ValidationError{"spiders.weight_sum_tolerance", "must be > 0"}
	}

	// === Spider gate ===
	return validateGate(cfg.SpiderGate)
}

func validateGate(g SpiderGate) error {
	switch g.OnMissing {
	case OnMissingBlock, OnMissingAllow:
	default:
		return ValidationError{"spider_gate.on_missing", "must be block or allow"}
	}
	if g.MinConsecutiveDaysInAllow < 1 {
		return ValidationError{"spider_gate.min_consecutive_days_in_allow", "must be >= 1"}
	}
	if err := validateStageList("spider_gate.allow_stages", g.AllowStages); err != nil {
		return err
	}
	if err := validateStageList("spider_gate.block_stages", g.BlockStages); err != nil {
		return err
	}

	for key, mult := range g.StageRiskMultiplier {
		if key != "default" {
			n, err := strconv.Atoi(key)
			if err != nil || n < 1 || n > 9 {
				return ValidationError{"spider_gate.stage_risk_multiplier", fmt.Sprintf("key %q must be a stage id or default", key)}
			}
		}
		if mult < 0 {
			return ValidationError{"spider_gate.stage_risk_multiplier." + key, "must be >= 0"}
		}
	}
	return nil
}

func validateStageList(field string, stages []int) error {
	for _, s := range stages {
		if s < 1 || s > 9 {
			return ValidationError{field, fmt.Sprintf("stage %d out of range [1,9]", s)}
		}
	}
	return nil
}

// Warnings returns soft violations that do not stop the run
func Warnings(cfg *Config) []Warning {
	var warnings []Warning

	// allow/block 중복 시 block 우선
	block := make(map[int]struct{}, len(cfg.SpiderGate.BlockStages))
	for _, s := range cfg.SpiderGate.BlockStages {
		block[s] = struct{}{}
	}
	for _, s := range cfg.SpiderGate.AllowStages {
		if _, ok := block[s]; ok {
			warnings = append(warnings, Warning{
				Code:    "GATE_STAGE_OVERLAP",
				Message: fmt.Sprintf("stage %d is in both allow_stages and block_stages; block wins", s),
			})
		}
	}

	lb := cfg.Indicators.Lookbacks
	if lb.MinHistoryDays < lb.EMALong {
		warnings = append(warnings, Warning{
			Code:    "SHORT_MIN_HISTORY",
			Message: fmt.Sprintf("min_history_days=%d is shorter than ema_long=%d; long EMA may be undefined", lb.MinHistoryDays, lb.EMALong),
		})
	}

	if cfg.Spiders.DominanceWarn <= 0 || cfg.Spiders.DominanceWarn > 1 {
		warnings = append(warnings, Warning{
			Code:    "DOMINANCE_DISABLED",
			Message: "spiders.dominance_warn outside (0, 1]; sector dominance is not checked",
		})
	}

	return warnings
}
