package s4_stages

import (
	"github.com/wonny/stagegate/internal/contracts"
	"github.com/wonny/stagegate/internal/s2_signals"
	"github.com/wonny/stagegate/internal/stageconfig"
)

// Run produces one stage record per bar, in input order
// stage(t)는 t 이전(포함) bar에만 의존. 전체 이력을 매번 재계산하며 이전 라벨을 patch하지 않음
func Run(series contracts.Series, cfg *stageconfig.Config) []contracts.StageRecord {
	raw := rawResults(series, cfg)

	records := make([]contracts.StageRecord, len(raw))
	seenBreakout := false
	for i, res := range raw {
		if res.Stage.IsBreakout() {
			seenBreakout = true
		}

		// breakout을 한 번도 보이지 않은 종목은 in-zone으로 표시하지 않음
		if cfg.StageLogic.RequireBreakoutBeforeInzone && res.Stage.IsInZone() && !seenBreakout {
			reasons := make([]string, 0, len(res.Reasons)+1)
			reasons = append(reasons, res.Reasons...)
			reasons = append(reasons, ReasonInzoneWithoutBreakout)
			res = newResult(contracts.StageNotEligible, reasons...)
		}

		records[i] = contracts.StageRecord{
			EntityID:  series.EntityID,
			Date:      contracts.NormalizeDate(series.Bars[i].Date),
			Stage:     res.Stage,
			StageName: res.StageName,
			Reasons:   res.Reasons,
		}
	}
	return records
}

func rawResults(series contracts.Series, cfg *stageconfig.Config) []Result {
	if cfg.StageLogic.Evaluation == stageconfig.EvaluationFullReplay {
		return replay(series, cfg.Indicators)
	}
	return precomputed(series, cfg.Indicators)
}

// replay classifies every expanding prefix from scratch, O(N²)
func replay(series contracts.Series, ind stageconfig.Indicators) []Result {
	out := make([]Result, series.Len())
	for i := range out {
		out[i] = Classify(series.Prefix(i), ind)
	}
	return out
}

// precomputed computes the causal indicator frame once, O(N)
// 지표가 causal이므로 replay와 비트 단위로 동일
func precomputed(series contracts.Series, ind stageconfig.Indicators) []Result {
	out := make([]Result, series.Len())
	if series.Len() == 0 {
		return out
	}

	f := s2_signals.Compute(series.Bars, ind)
	for i := range out {
		if early, ok := precheck(series.Prefix(i), ind); ok {
			out[i] = early
			continue
		}
		out[i] = Evaluate(f.Snapshot(i), ind)
	}
	return out
}

// Distribution counts records per stage
func Distribution(records []contracts.StageRecord) map[contracts.Stage]int {
	dist := make(map[contracts.Stage]int, len(contracts.AllStages))
	for _, r := range records {
		dist[r.Stage]++
	}
	return dist
}

// FirstBreakout returns the index of the first Stage 6/7 record, -1 if none
func FirstBreakout(records []contracts.StageRecord) int {
	for i, r := range records {
		if r.Stage.IsBreakout() {
			return i
		}
	}
	return -1
}
