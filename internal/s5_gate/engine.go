package s5_gate

import (
	"context"
	"time"

	"github.com/wonny/stagegate/internal/contracts"
	"github.com/wonny/stagegate/internal/stageconfig"
)

// lookbackFactor bounds the consecutive-day walk to factor × N calendar days
const lookbackFactor = 10

// Engine decides whether an entity may trade on a date from its sector stage history
// ⭐ SSOT: S5 게이트 결정은 여기서만
type Engine struct {
	cfg   stageconfig.SpiderGate
	allow map[contracts.Stage]bool
	block map[contracts.Stage]bool
	store *Store
}

// NewEngine creates a gate engine over a stage store
func NewEngine(cfg stageconfig.SpiderGate, store *Store) *Engine {
	e := &Engine{
		cfg:   cfg,
		allow: make(map[contracts.Stage]bool, len(cfg.AllowStages)),
		block: make(map[contracts.Stage]bool, len(cfg.BlockStages)),
		store: store,
	}
	for _, s := range cfg.AllowStages {
		e.allow[contracts.Stage(s)] = true
	}
	for _, s := range cfg.BlockStages {
		e.block[contracts.Stage(s)] = true
	}
	return e
}

// Config returns the gate configuration
func (e *Engine) Config() stageconfig.SpiderGate {
	return e.cfg
}

// Store returns the underlying stage store
func (e *Engine) Store() *Store {
	return e.store
}

// StageAllowed reports allow ∧ ¬block; a stage in neither list is blocked
func (e *Engine) StageAllowed(stage contracts.Stage) bool {
	if e.block[stage] {
		return false
	}
	return e.allow[stage]
}

// Decide returns the gate decision for (entity, date)
// 유일한 에러는 Stage Store 로딩 실패 (설정 오류)
func (e *Engine) Decide(ctx context.Context, entityID string, date time.Time) (contracts.GateDecision, error) {
	date = contracts.NormalizeDate(date)
	dec := contracts.GateDecision{
		EntityID: entityID,
		Date:     contracts.ISODate(date),
	}

	// 1. 게이트 비활성
	if !e.cfg.Enabled {
		dec.Allowed = true
		dec.Reason = contracts.GateReasonDisabled
		return dec, nil
	}

	// 2. stage 기록 없음 → on_missing 정책
	rec, err := e.store.GetStageRow(ctx, entityID, date)
	if err != nil {
		return dec, err
	}
	if rec == nil {
		dec.Allowed = e.cfg.OnMissing == stageconfig.OnMissingAllow
		dec.Reason = contracts.GateReasonMissingStage
		return dec, nil
	}

	stage := rec.Stage
	dec.Stage = &stage
	dec.StageName = rec.StageName
	if dec.StageName == "" {
		dec.StageName = stage.Name()
	}

	// 3. allow/block (block 우선)
	if !e.StageAllowed(stage) {
		dec.Reason = contracts.GateReasonStageBlocked
		return dec, nil
	}

	// 4. 연속 허용일 확인
	if n := e.cfg.MinConsecutiveDaysInAllow; n > 1 {
		ok, err := e.consecutiveAllowed(entityID, date, n)
		if err != nil {
			return dec, err
		}
		if !ok {
			dec.Reason = contracts.GateReasonNotEnoughConsec
			return dec, nil
		}
	}

	dec.Allowed = true
	dec.Reason = contracts.GateReasonStageAllowed
	return dec, nil
}

// consecutiveAllowed walks back up to lookbackFactor*n calendar days from date looking
// for n allowed records in a row
// 기록 없는 날(주말/휴일)은 건너뜀. 불허 기록은 streak을 0으로 되돌리고 계속 탐색
func (e *Engine) consecutiveAllowed(entityID string, date time.Time, n int) (bool, error) {
	streak := 0
	cur := date
	for i := 0; i < lookbackFactor*n; i++ {
		rec, ok, err := e.store.Get(entityID, cur)
		if err != nil {
			return false, err
		}
		if ok {
			if e.StageAllowed(rec.Stage) {
				streak++
			} else {
				streak = 0
			}
			if streak >= n {
				return true, nil
			}
		}
		cur = cur.AddDate(0, 0, -1)
	}
	return false, nil
}

// RiskMultiplier returns the configured sizing multiplier for a stage
// 우선순위: map[str(stage)] → map["default"] → 1.0
func RiskMultiplier(cfg stageconfig.SpiderGate, stage *contracts.Stage) float64 {
	if stage != nil {
		if v, ok := cfg.StageRiskMultiplier[stage.String()]; ok {
			return v
		}
	}
	if v, ok := cfg.StageRiskMultiplier["default"]; ok {
		return v
	}
	return 1.0
}
