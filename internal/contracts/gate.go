package contracts

import "time"

// GateReason explains a gate decision
type GateReason string

const (
	GateReasonDisabled        GateReason = "gate_disabled"
	GateReasonMissingStage    GateReason = "missing_spider_stage"
	GateReasonStageAllowed    GateReason = "stage_allowed"
	GateReasonStageBlocked    GateReason = "stage_blocked"
	GateReasonNotEnoughConsec GateReason = "not_enough_consecutive_allow_days"
)

// GateDecision says whether trading is permitted for an entity on a date
// ⭐ SSOT: Gate Engine 출력 (저장 X, 필요 시 계산 또는 daily table로 materialize)
type GateDecision struct {
	EntityID  string     `json:"entity_id"`
	Date      string     `json:"date"` // YYYY-MM-DD
	Allowed   bool       `json:"allowed"`
	Reason    GateReason `json:"reason"`
	Stage     *Stage     `json:"stage,omitempty"`
	StageName string     `json:"stage_name,omitempty"`
}

// GateDailyRow is one materialized row of the daily gate table
type GateDailyRow struct {
	Date      time.Time  `json:"date"`
	SpiderID  string     `json:"spider_id"`
	Stage     Stage      `json:"sector_stage"`
	StageName string     `json:"sector_stage_name"`
	Allowed   bool       `json:"allowed"`
	Reason    GateReason `json:"reason"`
	RiskMult  float64    `json:"risk_mult"`
}

// TradabilityRow joins a stock's own stage with its sector gate on a date
type TradabilityRow struct {
	Date            time.Time  `json:"date"`
	Ticker          string     `json:"ticker"`
	SpiderID        string     `json:"spider_id"`
	Stage           Stage      `json:"stage"`
	StageName       string     `json:"stage_name"`
	SectorStage     *Stage     `json:"sector_stage,omitempty"`
	SectorStageName string     `json:"sector_stage_name,omitempty"`
	GateAllowed     bool       `json:"gate_allowed"`
	GateReason      GateReason `json:"gate_reason"`
	RiskMult        float64    `json:"risk_mult"`
}
