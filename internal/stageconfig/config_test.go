package stageconfig

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_RepoConfig(t *testing.T) {
	path := "../../config/stagegate.yaml"
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Skip("config file not found")
	}

	cfg, yamlData, err := Load(path)
	require.NoError(t, err)
	assert.NotEmpty(t, yamlData)

	assert.Equal(t, CurrentVersion, cfg.Version)
	assert.Equal(t, 260, cfg.Indicators.Lookbacks.MinHistoryDays)
	assert.True(t, cfg.StageLogic.RequireBreakoutBeforeInzone)
	assert.Equal(t, []int{7, 8, 9}, cfg.SpiderGate.AllowStages)
	assert.Equal(t, 0.5, cfg.SpiderGate.StageRiskMultiplier["9"])

	// 동일 설정 → 동일 해시
	hash, err := Hash(cfg)
	require.NoError(t, err)
	assert.Len(t, hash, 64)
	hash2, _ := Hash(cfg)
	assert.Equal(t, hash, hash2)
}

func TestParse_DefaultsFillOmittedSections(t *testing.T) {
	cfg, err := Parse([]byte("version: 1\nspider_gate:\n  on_missing: ALLOW\n"))
	require.NoError(t, err)

	assert.Equal(t, OnMissingAllow, cfg.SpiderGate.OnMissing)
	assert.True(t, cfg.SpiderGate.Enabled)
	assert.Equal(t, []int{2, 3, 4}, cfg.SpiderGate.BlockStages)
	assert.Equal(t, 200, cfg.Indicators.Lookbacks.EMALong)
	assert.Equal(t, EvaluationPrecomputed, cfg.StageLogic.Evaluation)
	assert.Nil(t, cfg.SpiderGate.StageRiskMultiplier)
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name  string
		yaml  string
		field string
	}{
		{name: "missing version", yaml: "spiders:\n  min_weight_coverage: 0.2\n", field: "version"},
		{name: "future version", yaml: "version: 2\n", field: "version"},
		{name: "bad on_missing", yaml: "version: 1\nspider_gate:\n  on_missing: maybe\n", field: "spider_gate.on_missing"},
		{name: "zero consecutive", yaml: "version: 1\nspider_gate:\n  min_consecutive_days_in_allow: 0\n", field: "spider_gate.min_consecutive_days_in_allow"},
		{name: "stage out of range", yaml: "version: 1\nspider_gate:\n  allow_stages: [7, 10]\n", field: "spider_gate.allow_stages"},
		{name: "bad multiplier key", yaml: "version: 1\nspider_gate:\n  stage_risk_multiplier:\n    hot: 1.0\n", field: "spider_gate.stage_risk_multiplier"},
		{name: "ema order", yaml: "version: 1\nindicators:\n  lookbacks:\n    ema_fast: 60\n", field: "indicators.lookbacks"},
		{name: "coverage", yaml: "version: 1\nspiders:\n  min_weight_coverage: 1.5\n", field: "spiders.min_weight_coverage"},
		{name: "evaluation", yaml: "version: 1\nstage_logic:\n  evaluation: magic\n", field: "stage_logic.evaluation"},
		{name: "exclusion rule", yaml: "version: 1\nuniverse:\n  exclusions:\n    - rule: country_in\n      pattern: CN\n", field: "universe.exclusions[0].rule"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)

			var verr ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}

func TestParse_UnknownFieldRejected(t *testing.T) {
	_, err := Parse([]byte("version: 1\nspider_gate:\n  allow_stage: [7]\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "allow_stage")
}

func TestWarnings(t *testing.T) {
	cfg := Default()
	assert.Empty(t, Warnings(cfg))

	cfg.SpiderGate.AllowStages = []int{4, 7}
	cfg.Indicators.Lookbacks.MinHistoryDays = 100

	codes := map[string]bool{}
	for _, w := range Warnings(cfg) {
		codes[w.Code] = true
	}
	assert.True(t, codes["GATE_STAGE_OVERLAP"])
	assert.True(t, codes["SHORT_MIN_HISTORY"])
}

func TestLoad_MissingFile(t *testing.T) {
	_, _, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestNewSnapshot(t *testing.T) {
	cfg := Default()
	snap, err := NewSnapshot(cfg, []byte("version: 1\n"))
	require.NoError(t, err)

	hash, _ := Hash(cfg)
	assert.Equal(t, hash, snap.ConfigHash)
	assert.Equal(t, CurrentVersion, snap.Version)
}
