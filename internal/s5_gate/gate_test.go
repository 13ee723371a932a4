package s5_gate

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/stagegate/internal/contracts"
	"github.com/wonny/stagegate/internal/s4_stages"
	"github.com/wonny/stagegate/internal/stageconfig"
	"github.com/wonny/stagegate/pkg/config"
	"github.com/wonny/stagegate/pkg/logger"
	"github.com/wonny/stagegate/pkg/redis"
)

const spider = "SECTOR_TECHNOLOGY"

// 2024-01-01 is a Monday
func day(d int) time.Time {
	return time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC)
}

type memSource struct {
	recs  []contracts.StageRecord
	err   error
	loads int
}

func (m *memSource) LoadStages(ctx context.Context) ([]contracts.StageRecord, error) {
	m.loads++
	return m.recs, m.err
}

func (m *memSource) Describe() string { return "memory" }

func rec(entity string, d int, stage contracts.Stage) contracts.StageRecord {
	return contracts.StageRecord{EntityID: entity, Date: day(d), Stage: stage, StageName: stage.Name()}
}

func gateCfg() stageconfig.SpiderGate {
	return stageconfig.Default().SpiderGate
}

func newEngine(t *testing.T, cfg stageconfig.SpiderGate, recs ...contracts.StageRecord) *Engine {
	t.Helper()
	return NewEngine(cfg, NewStore(&memSource{recs: recs}, logger.Nop()))
}

// ---------------------------------------------------------------------------
// Store

func TestStore_LoadOnceAndGet(t *testing.T) {
	ctx := context.Background()
	src := &memSource{recs: []contracts.StageRecord{rec(spider, 2, 8)}}
	store := NewStore(src, logger.Nop())

	_, _, err := store.Get(spider, day(2))
	assert.ErrorIs(t, err, ErrStoreNotLoaded)

	row, err := store.GetStageRow(ctx, spider, day(2).Add(15*time.Hour))
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.Equal(t, contracts.StageInZone, row.Stage)

	row, err = store.GetStageRow(ctx, spider, day(3))
	require.NoError(t, err)
	assert.Nil(t, row)

	require.NoError(t, store.Load(ctx))
	assert.Equal(t, 1, src.loads, "load happens once")
	assert.True(t, store.HasEntity(spider))
	assert.Equal(t, []string{spider}, store.Entities())
}

func TestStore_Refresh(t *testing.T) {
	ctx := context.Background()
	src := &memSource{recs: []contracts.StageRecord{rec(spider, 2, 8)}}
	store := NewStore(src, logger.Nop())
	require.NoError(t, store.Load(ctx))

	src.recs = []contracts.StageRecord{rec(spider, 2, 3), rec(spider, 3, 3)}
	require.NoError(t, store.Refresh(ctx))

	got, ok, err := store.Get(spider, day(2))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, contracts.StageDowntrend, got.Stage)
	assert.Equal(t, uint64(2), store.Stats().Generation)
	assert.Equal(t, 2, store.Stats().Records)

	// 실패한 refresh는 기존 인덱스 유지
	src.err = errors.New("boom")
	assert.Error(t, store.Refresh(ctx))
	_, ok, _ = store.Get(spider, day(3))
	assert.True(t, ok)
	assert.Equal(t, uint64(2), store.Stats().Generation)
}

func TestStore_DuplicateKey(t *testing.T) {
	store := NewStore(&memSource{recs: []contracts.StageRecord{rec(spider, 2, 8), rec(spider, 2, 7)}}, logger.Nop())
	err := store.Load(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate record")
	assert.False(t, store.Loaded())
}

func TestStore_EntityRecords(t *testing.T) {
	store := NewStore(&memSource{recs: []contracts.StageRecord{
		rec("SECTOR_ENERGY", 2, 5),
		rec(spider, 4, 8), rec(spider, 2, 7), rec(spider, 3, 7), rec(spider, 5, 9),
	}}, logger.Nop())

	_, err := store.EntityRecords(spider, time.Time{}, time.Time{})
	assert.ErrorIs(t, err, ErrStoreNotLoaded)
	require.NoError(t, store.Load(context.Background()))

	all, err := store.EntityRecords(spider, time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, day(2), all[0].Date)
	assert.Equal(t, day(5), all[3].Date)

	window, err := store.EntityRecords(spider, day(3), day(4))
	require.NoError(t, err)
	require.Len(t, window, 2)
	assert.Equal(t, contracts.StageBreakoutConfirmed, window[0].Stage)
	assert.Equal(t, contracts.StageInZone, window[1].Stage)

	none, err := store.EntityRecords("SECTOR_UNKNOWN", time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func writeStageFile(t *testing.T, dir, name string, recs []contracts.StageRecord) {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, s4_stages.WriteStagesCSV(&buf, recs))
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), buf.Bytes(), 0o644))
}

func TestFileSource(t *testing.T) {
	ctx := context.Background()

	t.Run("loads all sector files", func(t *testing.T) {
		dir := t.TempDir()
		writeStageFile(t, dir, "SECTOR_TECHNOLOGY.csv", []contracts.StageRecord{rec(spider, 2, 8)})
		writeStageFile(t, dir, "SECTOR_ENERGY.csv", []contracts.StageRecord{rec("SECTOR_ENERGY", 2, 3)})
		require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.csv"), []byte("ignored"), 0o644))

		recs, err := NewFileSource(dir).LoadStages(ctx)
		require.NoError(t, err)
		assert.Len(t, recs, 2)
	})

	t.Run("missing dir", func(t *testing.T) {
		_, err := NewFileSource(filepath.Join(t.TempDir(), "nope")).LoadStages(ctx)
		assert.ErrorIs(t, err, os.ErrNotExist)
	})

	t.Run("no files", func(t *testing.T) {
		_, err := NewFileSource(t.TempDir()).LoadStages(ctx)
		assert.Error(t, err)
	})

	t.Run("malformed file", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, "SECTOR_X.csv"), []byte("date,stage\n2024-01-02,11\n"), 0o644))
		_, err := NewFileSource(dir).LoadStages(ctx)
		assert.ErrorIs(t, err, s4_stages.ErrMalformedStageFile)
	})

	t.Run("store load is fatal", func(t *testing.T) {
		e := NewEngine(gateCfg(), NewStore(NewFileSource(t.TempDir()), logger.Nop()))
		_, err := e.Decide(ctx, spider, day(2))
		assert.Error(t, err)
	})
}

// ---------------------------------------------------------------------------
// Engine

func TestDecide_Basic(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t, gateCfg(),
		rec(spider, 2, contracts.StageInZone),
		rec(spider, 3, contracts.StageDowntrend),
		rec(spider, 4, contracts.StageBreakout), // neither list
	)

	tests := []struct {
		name    string
		date    time.Time
		allowed bool
		reason  contracts.GateReason
		stage   *contracts.Stage
	}{
		{"allowed stage", day(2), true, contracts.GateReasonStageAllowed, stagePtr(8)},
		{"blocked stage", day(3), false, contracts.GateReasonStageBlocked, stagePtr(3)},
		{"stage in neither list", day(4), false, contracts.GateReasonStageBlocked, stagePtr(6)},
		{"missing record", day(9), false, contracts.GateReasonMissingStage, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dec, err := e.Decide(ctx, spider, tt.date)
			require.NoError(t, err)
			assert.Equal(t, tt.allowed, dec.Allowed)
			assert.Equal(t, tt.reason, dec.Reason)
			assert.Equal(t, tt.stage, dec.Stage)
			assert.Equal(t, spider, dec.EntityID)
			assert.Equal(t, contracts.ISODate(tt.date), dec.Date)
		})
	}

	dec, _ := e.Decide(ctx, spider, day(2))
	assert.Equal(t, "In-Zone", dec.StageName)
}

func stagePtr(s contracts.Stage) *contracts.Stage { return &s }

func TestDecide_Disabled(t *testing.T) {
	cfg := gateCfg()
	cfg.Enabled = false
	e := NewEngine(cfg, NewStore(NewFileSource("/nonexistent"), logger.Nop()))

	dec, err := e.Decide(context.Background(), spider, day(2))
	require.NoError(t, err, "disabled gate never touches the store")
	assert.True(t, dec.Allowed)
	assert.Equal(t, contracts.GateReasonDisabled, dec.Reason)
	assert.Equal(t, "2024-01-02", dec.Date)
}

func TestDecide_OnMissingAllow(t *testing.T) {
	cfg := gateCfg()
	cfg.OnMissing = stageconfig.OnMissingAllow
	e := newEngine(t, cfg, rec(spider, 2, 8))

	dec, err := e.Decide(context.Background(), spider, day(5))
	require.NoError(t, err)
	assert.True(t, dec.Allowed)
	assert.Equal(t, contracts.GateReasonMissingStage, dec.Reason)
	assert.Nil(t, dec.Stage)
}

func TestDecide_BlockWinsOverAllow(t *testing.T) {
	cfg := gateCfg()
	cfg.AllowStages = []int{7, 8, 9}
	cfg.BlockStages = []int{8}
	e := newEngine(t, cfg, rec(spider, 2, 8))

	dec, err := e.Decide(context.Background(), spider, day(2))
	require.NoError(t, err)
	assert.False(t, dec.Allowed)
	assert.Equal(t, contracts.GateReasonStageBlocked, dec.Reason)
}

func TestDecide_ConsecutiveDays(t *testing.T) {
	ctx := context.Background()
	const k = 4

	// day 1: downtrend, days 2..(1+k+1): in-zone → D = 2
	recs := []contracts.StageRecord{rec(spider, 1, contracts.StageDowntrend)}
	for d := 2; d <= 2+k; d++ {
		recs = append(recs, rec(spider, d, contracts.StageInZone))
	}

	cfg := gateCfg()
	cfg.MinConsecutiveDaysInAllow = k
	e := newEngine(t, cfg, recs...)

	for d := 2; d <= 2+k; d++ {
		dec, err := e.Decide(ctx, spider, day(d))
		require.NoError(t, err)
		if d >= 2+k-1 {
			assert.True(t, dec.Allowed, "day %d", d)
			assert.Equal(t, contracts.GateReasonStageAllowed, dec.Reason)
		} else {
			assert.False(t, dec.Allowed, "day %d", d)
			assert.Equal(t, contracts.GateReasonNotEnoughConsec, dec.Reason)
			require.NotNil(t, dec.Stage)
			assert.Equal(t, contracts.StageInZone, *dec.Stage)
		}
	}
}

func TestDecide_ConsecutiveSkipsNonTradingDays(t *testing.T) {
	// Thu 4, Fri 5, (weekend), Mon 8
	e := newEngine(t, func() stageconfig.SpiderGate {
		cfg := gateCfg()
		cfg.MinConsecutiveDaysInAllow = 3
		return cfg
	}(),
		rec(spider, 4, contracts.StageInZone),
		rec(spider, 5, contracts.StageBreakoutConfirmed),
		rec(spider, 8, contracts.StageInZone),
	)

	dec, err := e.Decide(context.Background(), spider, day(8))
	require.NoError(t, err)
	assert.True(t, dec.Allowed)
}

func TestDecide_ConsecutiveStreakResets(t *testing.T) {
	tests := []struct {
		name    string
		recs    []contracts.StageRecord
		on      int
		allowed bool
	}{
		{
			// 불허 기록 뒤에도 탐색 계속: 2~4일 streak이 인정됨
			name: "earlier streak within window",
			recs: []contracts.StageRecord{
				rec(spider, 2, 8), rec(spider, 3, 8), rec(spider, 4, 8),
				rec(spider, 5, 3),
				rec(spider, 8, 8),
			},
			on:      8,
			allowed: true,
		},
		{
			name: "blocked day splits every streak",
			recs: []contracts.StageRecord{
				rec(spider, 1, 8), rec(spider, 2, 8),
				rec(spider, 3, 3),
				rec(spider, 4, 8), rec(spider, 5, 8),
			},
			on:      5,
			allowed: false,
		},
		{
			name: "streak older than the lookback window",
			recs: []contracts.StageRecord{
				rec(spider, 1, 8), rec(spider, 2, 8), rec(spider, 3, 8),
				rec(spider, 40, 8),
			},
			on:      40,
			allowed: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := gateCfg()
			cfg.MinConsecutiveDaysInAllow = 3
			e := newEngine(t, cfg, tt.recs...)

			dec, err := e.Decide(context.Background(), spider, day(tt.on))
			require.NoError(t, err)
			assert.Equal(t, tt.allowed, dec.Allowed)
			if !tt.allowed {
				assert.Equal(t, contracts.GateReasonNotEnoughConsec, dec.Reason)
			} else {
				assert.Equal(t, contracts.GateReasonStageAllowed, dec.Reason)
			}
		})
	}
}

func TestRiskMultiplier(t *testing.T) {
	cfg := gateCfg()
	assert.Equal(t, 1.0, RiskMultiplier(cfg, stagePtr(8)), "no map → 1.0")

	cfg.StageRiskMultiplier = map[string]float64{"9": 0.5}
	assert.Equal(t, 0.5, RiskMultiplier(cfg, stagePtr(9)))
	assert.Equal(t, 1.0, RiskMultiplier(cfg, stagePtr(8)))

	cfg.StageRiskMultiplier["default"] = 0.0
	assert.Equal(t, 0.0, RiskMultiplier(cfg, stagePtr(8)))
	assert.Equal(t, 0.0, RiskMultiplier(cfg, nil))
}

// ---------------------------------------------------------------------------
// Daily table + tradability

func TestBuildDailyTable(t *testing.T) {
	cfg := gateCfg()
	cfg.StageRiskMultiplier = map[string]float64{"8": 1.0, "default": 0.0}
	e := newEngine(t, cfg,
		rec("SECTOR_B", 2, 8),
		rec("SECTOR_A", 3, 3),
		rec("SECTOR_A", 2, 8),
	)

	rows, err := BuildDailyTable(context.Background(), e)
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, "SECTOR_A", rows[0].SpiderID)
	assert.Equal(t, day(2), rows[0].Date)
	assert.Equal(t, "SECTOR_B", rows[1].SpiderID)
	assert.Equal(t, day(3), rows[2].Date)

	assert.True(t, rows[0].Allowed)
	assert.Equal(t, 1.0, rows[0].RiskMult)
	assert.False(t, rows[2].Allowed)
	assert.Equal(t, 0.0, rows[2].RiskMult)

	var buf bytes.Buffer
	require.NoError(t, WriteGateDailyCSV(&buf, rows))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "2024-01-02,SECTOR_A,8,In-Zone,true,stage_allowed,1", lines[1])
}

func TestAttachSectorStage(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t, gateCfg(), rec(spider, 2, 8), rec(spider, 3, 3))

	stock := []contracts.StageRecord{rec("AAPL", 2, 6), rec("AAPL", 3, 7), rec("AAPL", 4, 8)}
	rows, err := AttachSectorStage(ctx, e, "AAPL", spider, stock)
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.True(t, rows[0].GateAllowed)
	require.NotNil(t, rows[0].SectorStage)
	assert.Equal(t, contracts.StageInZone, *rows[0].SectorStage)
	assert.False(t, rows[1].GateAllowed)
	assert.Nil(t, rows[2].SectorStage)
	assert.Equal(t, contracts.GateReasonMissingStage, rows[2].GateReason)

	var buf bytes.Buffer
	require.NoError(t, WriteTradabilityCSV(&buf, rows))
	assert.Contains(t, buf.String(), "2024-01-04,AAPL,8,In-Zone,SECTOR_TECHNOLOGY,,,false,missing_spider_stage,1")

	_, err = AttachSectorStage(ctx, e, "XOM", "SECTOR_ENERGY", stock)
	assert.ErrorIs(t, err, ErrUnknownSpider)

	_, err = AttachSectorStage(ctx, e, "AAPL", spider, []contracts.StageRecord{rec("AAPL", 20, 8)})
	assert.ErrorIs(t, err, ErrNoDateOverlap)
}

func TestCachedEngine_RedisDisabled(t *testing.T) {
	client, err := redis.New(&config.Config{})
	require.NoError(t, err)

	e := newEngine(t, gateCfg(), rec(spider, 2, 8))
	cached := NewCachedEngine(e, redis.NewCache(client, "test"), "hash", redis.TTLShort, logger.Nop())

	var d Decider = cached
	dec, err := d.Decide(context.Background(), spider, day(2))
	require.NoError(t, err)
	assert.True(t, dec.Allowed)
}

func TestCachedEngine_KeyUsesLoadedGeneration(t *testing.T) {
	client, err := redis.New(&config.Config{})
	require.NoError(t, err)

	e := newEngine(t, gateCfg(), rec(spider, 2, 8))
	cached := NewCachedEngine(e, redis.NewCache(client, "test"), "hash", redis.TTLShort, logger.Nop())
	require.False(t, e.Store().Loaded())

	ctx := context.Background()
	key, err := cached.cacheKey(ctx, spider, day(2))
	require.NoError(t, err)
	assert.True(t, e.Store().Loaded())
	assert.Equal(t, redis.GateKey("hash", 1, spider, "2024-01-02"), key)

	require.NoError(t, e.Store().Refresh(ctx))
	key, err = cached.cacheKey(ctx, spider, day(2))
	require.NoError(t, err)
	assert.Equal(t, redis.GateKey("hash", 2, spider, "2024-01-02"), key)
}

func TestCachedEngine_StoreLoadError(t *testing.T) {
	client, err := redis.New(&config.Config{})
	require.NoError(t, err)

	boom := errors.New("source down")
	e := NewEngine(gateCfg(), NewStore(&memSource{err: boom}, logger.Nop()))
	cached := NewCachedEngine(e, redis.NewCache(client, "test"), "hash", redis.TTLShort, logger.Nop())

	_, err = cached.Decide(context.Background(), spider, day(2))
	assert.ErrorIs(t, err, boom)
}
