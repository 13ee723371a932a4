package s4_stages

import (
	"fmt"
	"strings"

	"github.com/wonny/stagegate/internal/contracts"
	"github.com/wonny/stagegate/internal/s2_signals"
	"github.com/wonny/stagegate/internal/stageconfig"
)

// RequiredColumns must be present for the classifier to run
var RequiredColumns = []string{contracts.ColHigh, contracts.ColLow, contracts.ColClose, contracts.ColVolume}

// Reason tags emitted by the classifier
const (
	ReasonEmptyDF             = "empty_df"
	ReasonMissingCols         = "missing_cols"
	ReasonInsufficientHistory = "insufficient_history"
	ReasonNoRuleMatched       = "no_rule_matched"

	ReasonBelowEMALong      = "below_ema_long"
	ReasonAboveEMALong      = "above_ema_long"
	ReasonBearishStack      = "bearish_stack"
	ReasonBullishStack      = "bullish_stack"
	ReasonTrendTurningUp    = "trend_turning_up"
	ReasonDonchianBreakdown = "donchian_breakdown"
	ReasonDonchianBreakout  = "donchian_breakout"
	ReasonHoldingBreakout   = "holding_breakout"
	ReasonRecovered         = "recovered"
	ReasonRelVolExpansion   = "relvol_expansion"
	ReasonNearBBLower       = "near_bb_lower"
	ReasonBetweenBBLowerMid = "between_bb_lower_and_mid"
	ReasonCloseBelowEMAFast = "close_below_ema_fast"
	ReasonInValueZone       = "in_value_zone"

	ReasonInzoneWithoutBreakout = "inzone_without_prior_breakout"
)

// Result is the single-day classification
type Result struct {
	Stage     contracts.Stage
	StageName string
	Reasons   []string
}

func newResult(stage contracts.Stage, reasons ...string) Result {
	return Result{Stage: stage, StageName: stage.Name(), Reasons: reasons}
}

// Regime is the set of boolean predicates derived from one snapshot
// NaN 비교는 항상 false이므로 결측 지표가 끼면 predicate는 false
type Regime struct {
	BearishStack   bool
	BullishStack   bool
	TrendTurningUp bool
	BelowEMALong   bool
	AboveEMALong   bool
	Breakout       bool
	Breakdown      bool
	VolExpansion   bool
	Recovered      bool
}

// RegimeOf evaluates the regime predicates of a snapshot
func RegimeOf(s s2_signals.Snapshot, relVolThreshold float64) Regime {
	return Regime{
		BearishStack:   s.EMAFast < s.EMAMid && s.EMAMid < s.EMASlow && s.EMASlow < s.EMALong,
		BullishStack:   s.EMAFast > s.EMAMid && s.EMAMid > s.EMASlow,
		TrendTurningUp: s.EMAFast > s.EMAMid,
		BelowEMALong:   s.Close < s.EMALong,
		AboveEMALong:   s.Close > s.EMALong,
		Breakout:       s.Close > s.DonchianHigh,
		Breakdown:      s.Close < s.DonchianLow,
		VolExpansion:   s.RelVol >= relVolThreshold,
		Recovered:      s.Close > s.EMASlow,
	}
}

// Classify labels the last bar of the series
// ⭐ SSOT: stage 판정 규칙은 여기서만
func Classify(series contracts.Series, ind stageconfig.Indicators) Result {
	if early, ok := precheck(series, ind); ok {
		return early
	}

	f := s2_signals.Compute(series.Bars, ind)
	return Evaluate(f.Snapshot(f.Len()-1), ind)
}

// precheck applies the early-exit rules in order
func precheck(series contracts.Series, ind stageconfig.Indicators) (Result, bool) {
	if series.Len() == 0 {
		return newResult(contracts.StageNotEligible, ReasonEmptyDF), true
	}
	if missing := series.MissingColumns(RequiredColumns); len(missing) > 0 {
		return newResult(contracts.StageNotEligible, fmt.Sprintf("%s=%s", ReasonMissingCols, strings.Join(missing, ","))), true
	}
	if minHist := ind.Lookbacks.MinHistoryDays; series.Len() < minHist {
		return newResult(contracts.StageNotEligible, fmt.Sprintf("%s=%d<%d", ReasonInsufficientHistory, series.Len(), minHist)), true
	}
	return Result{}, false
}

// Evaluate runs the ordered decision tree over one snapshot
// 순서가 곧 규칙: 2, 3, 4, 5, 7, 6, 9, 8, 기본 1. 먼저 맞는 규칙이 이김
func Evaluate(s s2_signals.Snapshot, ind stageconfig.Indicators) Result {
	r := RegimeOf(s, ind.Volume.RelVolThreshold)

	switch {
	case r.BelowEMALong && r.BearishStack && r.Breakdown && r.VolExpansion:
		return newResult(contracts.StageSharpDowntrend,
			ReasonBelowEMALong, ReasonBearishStack, ReasonDonchianBreakdown, ReasonRelVolExpansion)

	case r.BelowEMALong && r.BearishStack:
		return newResult(contracts.StageDowntrend, ReasonBelowEMALong, ReasonBearishStack)

	case r.BelowEMALong && s.Close <= s.BBLower:
		return newResult(contracts.StageBelowZone, ReasonBelowEMALong, ReasonNearBBLower)

	case r.BelowEMALong && s.BBLower < s.Close && s.Close < s.BBMid:
		return newResult(contracts.StageLowerZone, ReasonBelowEMALong, ReasonBetweenBBLowerMid)

	case r.Breakout && r.Recovered && r.TrendTurningUp:
		res := newResult(contracts.StageBreakoutConfirmed, ReasonHoldingBreakout, ReasonRecovered, ReasonTrendTurningUp)
		if r.BullishStack {
			res.Reasons = append(res.Reasons, ReasonBullishStack)
		}
		return res

	case r.Breakout && r.TrendTurningUp:
		res := newResult(contracts.StageBreakout, ReasonDonchianBreakout, ReasonTrendTurningUp)
		if r.VolExpansion {
			res.Reasons = append(res.Reasons, ReasonRelVolExpansion)
		}
		return res

	case r.AboveEMALong && s.Close < s.EMAFast:
		return newResult(contracts.StageInZoneFading, ReasonAboveEMALong, ReasonCloseBelowEMAFast)

	case r.AboveEMALong:
		res := newResult(contracts.StageInZone, ReasonAboveEMALong)
		if s.Close >= s.BBMid {
			res.Reasons = append(res.Reasons, ReasonInValueZone)
		}
		return res
	}

	return newResult(contracts.StageNotEligible, ReasonNoRuleMatched)
}
