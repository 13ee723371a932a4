package brain

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/wonny/stagegate/internal/batch"
	"github.com/wonny/stagegate/internal/contracts"
	"github.com/wonny/stagegate/internal/metrics"
	"github.com/wonny/stagegate/internal/s1_universe"
	"github.com/wonny/stagegate/internal/s2_signals"
	"github.com/wonny/stagegate/internal/s3_spiders"
	"github.com/wonny/stagegate/internal/s4_stages"
	"github.com/wonny/stagegate/internal/s5_gate"
	"github.com/wonny/stagegate/internal/stageconfig"
	"github.com/wonny/stagegate/pkg/config"
	"github.com/wonny/stagegate/pkg/logger"
)

// Batch job names; each job journals under Paths.Journals/<job>
const (
	JobSpiders        = "spiders"
	JobStagesStock    = "stages_stock"
	JobStagesSpider   = "stages_spider"
	JobFeaturesStock  = "features_stock"
	JobFeaturesSpider = "features_spider"
	JobTradability    = "tradability"
)

// GateDailyFile is the materialized gate table file name
const GateDailyFile = "gate_daily.csv"

// Paths is the on-disk layout of pipeline artifacts
type Paths struct {
	UniverseRaw   string // 입력 유니버스 CSV
	Universe      string // 필터 결과
	Memberships   string
	SectorSummary string
	SpiderAudit   string // composite + coverage 감사 CSV
	Stages        string // <Stages>/<kind>/<id>.csv
	Features      string // <Features>/<kind>/<id>.csv
	Gate          string // gate_daily.csv + tradability/
	Journals      string
}

// DefaultPaths lays artifacts out under DATA_DIR
func DefaultPaths(cfg *config.Config) Paths {
	return Paths{
		UniverseRaw:   cfg.Path("universe", "universe_raw.csv"),
		Universe:      cfg.Path("universe", "universe.csv"),
		Memberships:   cfg.Path("universe", "memberships.csv"),
		SectorSummary: cfg.Path("universe", "sector_summary.csv"),
		SpiderAudit:   cfg.Path("spiders_audit"),
		Stages:        cfg.Path("stages"),
		Features:      cfg.Path("features"),
		Gate:          cfg.Path("gate"),
		Journals:      cfg.Path("runs"),
	}
}

// StageDir is where driver output for one entity kind lives
func (p Paths) StageDir(kind contracts.EntityKind) string {
	return filepath.Join(p.Stages, string(kind))
}

// Deps are the components the orchestrator coordinates
// StageRepo, GateRepo 는 nil 이면 파일만 기록
type Deps struct {
	Config     *stageconfig.Config
	ConfigHash string
	Paths      Paths
	Stocks     contracts.BarRepository
	Spiders    contracts.BarRepository
	StageRepo  contracts.StageRepository
	GateRepo   contracts.GateRepository
	Engine     *s5_gate.Engine
	Metrics    *metrics.Metrics
	Workers    int
}

// Orchestrator coordinates the stage pipeline
// ⭐ SSOT: 파이프라인 조율은 여기서만
type Orchestrator struct {
	deps   Deps
	logger *logger.Logger
}

// NewOrchestrator creates a new orchestrator
func NewOrchestrator(deps Deps, log *logger.Logger) *Orchestrator {
	if deps.Workers < 1 {
		deps.Workers = 1
	}
	return &Orchestrator{
		deps:   deps,
		logger: log.WithField("module", "orchestrator"),
	}
}

// Paths returns the artifact layout
func (o *Orchestrator) Paths() Paths {
	return o.deps.Paths
}

// RunOptions controls one batch job
type RunOptions struct {
	Resume bool     // 이전 run 에서 ok 인 엔티티 건너뜀
	Retry  bool     // _errors.jsonl 의 엔티티만 재실행
	Only   []string // 비어 있으면 전체
}

// RunConfig holds configuration for a pipeline run
type RunConfig struct {
	RunID  string
	Resume bool
}

// RunResult holds the results of a complete pipeline run
type RunResult struct {
	RunID           string
	Success         bool
	Error           error
	CompletedStages []string
	Summaries       map[string]*batch.Summary
	GateRows        int
	Duration        time.Duration
}

// Run executes the daily pipeline
// S3 spiders → S4 spider stages → S5 gate table (store refresh)
func (o *Orchestrator) Run(ctx context.Context, config RunConfig) (*RunResult, error) {
	startTime := time.Now()

	result := &RunResult{
		RunID:           config.RunID,
		CompletedStages: make([]string, 0, 3),
		Summaries:       make(map[string]*batch.Summary),
	}

	o.logger.WithFields(map[string]interface{}{
		"run_id":      config.RunID,
		"config_hash": o.deps.ConfigHash,
		"resume":      config.Resume,
	}).Info("Starting pipeline run")

	opts := RunOptions{Resume: config.Resume}

	// S3: Spider composites
	sum, err := o.RunSpiders(ctx, opts)
	result.Summaries[JobSpiders] = sum
	if err != nil {
		result.Error = fmt.Errorf("S3 failed: %w", err)
		return result, result.Error
	}
	result.CompletedStages = append(result.CompletedStages, "S3:Spiders")

	// S4: Spider stages
	sum, err = o.RunStages(ctx, contracts.KindSpider, opts)
	result.Summaries[JobStagesSpider] = sum
	if err != nil {
		result.Error = fmt.Errorf("S4 failed: %w", err)
		return result, result.Error
	}
	result.CompletedStages = append(result.CompletedStages, "S4:Stages")

	// S5: Gate table
	rows, err := o.BuildGateTable(ctx)
	if err != nil {
		result.Error = fmt.Errorf("S5 failed: %w", err)
		return result, result.Error
	}
	result.GateRows = len(rows)
	result.CompletedStages = append(result.CompletedStages, "S5:Gate")

	result.Success = true
	result.Duration = time.Since(startTime)

	o.logger.WithFields(map[string]interface{}{
		"run_id":    config.RunID,
		"duration":  result.Duration.Seconds(),
		"stages":    len(result.CompletedStages),
		"gate_rows": result.GateRows,
	}).Info("Pipeline run completed successfully")

	return result, nil
}

// FilterUniverse reads the raw universe, filters it and writes the kept rows
func (o *Orchestrator) FilterUniverse(ctx context.Context, inPath string) (*s1_universe.Result, error) {
	o.logger.Info("Running S1: Universe filter")

	f, err := os.Open(inPath)
	if err != nil {
		return nil, fmt.Errorf("open universe: %w", err)
	}
	defer f.Close()

	rows, err := s1_universe.ReadUniverseCSV(f)
	if err != nil {
		return nil, fmt.Errorf("read universe %s: %w", inPath, err)
	}

	res := s1_universe.NewBuilder(o.deps.Config.Universe, o.logger).Build(rows)
	if len(res.Kept) == 0 {
		return res, fmt.Errorf("universe filter kept no rows from %s", inPath)
	}

	if err := writeAtomic(o.deps.Paths.Universe, func(w io.Writer) error {
		return s1_universe.WriteUniverseCSV(w, res.Kept)
	}); err != nil {
		return res, err
	}
	return res, nil
}

// BuildMemberships weights the filtered universe into sector memberships
func (o *Orchestrator) BuildMemberships(ctx context.Context) (*s1_universe.MembershipSet, error) {
	o.logger.Info("Running S1: Memberships")

	f, err := os.Open(o.deps.Paths.Universe)
	if err != nil {
		return nil, fmt.Errorf("open filtered universe: %w", err)
	}
	defer f.Close()

	rows, err := s1_universe.ReadUniverseCSV(f)
	if err != nil {
		return nil, fmt.Errorf("read filtered universe: %w", err)
	}

	set := s1_universe.BuildMemberships(rows, o.deps.Config.Spiders)
	for _, w := range set.Warnings {
		o.logger.Warn(w)
	}

	if err := writeAtomic(o.deps.Paths.Memberships, func(w io.Writer) error {
		return s1_universe.WriteMembershipsCSV(w, set.Members)
	}); err != nil {
		return set, err
	}
	if err := writeAtomic(o.deps.Paths.SectorSummary, func(w io.Writer) error {
		return s1_universe.WriteSummaryCSV(w, set.Summaries)
	}); err != nil {
		return set, err
	}

	o.logger.WithFields(map[string]interface{}{
		"members":          len(set.Members),
		"sectors":          len(set.Summaries),
		"worst_weight_err": set.WorstWeightSumError(),
	}).Info("Memberships built")

	return set, nil
}

func (o *Orchestrator) loadMemberships() (*s1_universe.MembershipSet, error) {
	f, err := os.Open(o.deps.Paths.Memberships)
	if err != nil {
		return nil, fmt.Errorf("open memberships: %w", err)
	}
	defer f.Close()

	set, err := s1_universe.ReadMembershipsCSV(f)
	if err != nil {
		return nil, fmt.Errorf("read memberships: %w", err)
	}
	return set, nil
}

// RunSpiders builds every sector composite from its member bars
func (o *Orchestrator) RunSpiders(ctx context.Context, opts RunOptions) (*batch.Summary, error) {
	set, err := o.loadMemberships()
	if err != nil {
		return nil, err
	}
	bySpider := set.BySpider()

	minCoverage := o.deps.Config.Spiders.MinWeightCoverage
	builder := s3_spiders.NewBuilder(o.deps.Stocks, o.deps.Spiders, o.deps.Paths.SpiderAudit, minCoverage, o.logger)

	return o.runBatch(ctx, JobSpiders, set.SpiderIDs(), opts, func(ctx context.Context, id string) (batch.Outcome, error) {
		res, err := builder.Build(ctx, id, bySpider[id])
		if err != nil {
			return batch.Outcome{}, err
		}
		return batch.Outcome{
			Rows: len(res.Rows),
			Out:  id,
			Extra: map[string]interface{}{
				"members_total":   res.MembersTotal,
				"members_missing": len(res.MissingMembers),
				"coverage_median": res.CoverageMedian,
			},
		}, nil
	})
}

func (o *Orchestrator) bars(kind contracts.EntityKind) contracts.BarRepository {
	if kind == contracts.KindSpider {
		return o.deps.Spiders
	}
	return o.deps.Stocks
}

func stagesJob(kind contracts.EntityKind) string {
	if kind == contracts.KindSpider {
		return JobStagesSpider
	}
	return JobStagesStock
}

func featuresJob(kind contracts.EntityKind) string {
	if kind == contracts.KindSpider {
		return JobFeaturesSpider
	}
	return JobFeaturesStock
}

// RunStages runs the point-in-time driver over every entity of a kind
func (o *Orchestrator) RunStages(ctx context.Context, kind contracts.EntityKind, opts RunOptions) (*batch.Summary, error) {
	repo := o.bars(kind)
	entities, err := repo.ListEntities(ctx, kind)
	if err != nil {
		return nil, fmt.Errorf("list %s entities: %w", kind, err)
	}
	outDir := o.deps.Paths.StageDir(kind)

	return o.runBatch(ctx, stagesJob(kind), entities, opts, func(ctx context.Context, id string) (batch.Outcome, error) {
		series, err := repo.GetSeries(ctx, id, kind, time.Time{}, time.Time{})
		if err != nil {
			return batch.Outcome{}, err
		}

		records := s4_stages.Run(series, o.deps.Config)
		out := filepath.Join(outDir, id+".csv")
		if err := writeAtomic(out, func(w io.Writer) error {
			return s4_stages.WriteStagesCSV(w, records)
		}); err != nil {
			return batch.Outcome{}, err
		}
		if o.deps.StageRepo != nil {
			if err := o.deps.StageRepo.SaveStages(ctx, kind, records); err != nil {
				return batch.Outcome{}, fmt.Errorf("save stages: %w", err)
			}
		}

		for _, r := range records {
			o.deps.Metrics.ObserveStage(string(kind), r.Stage.String())
		}

		counts := make(map[string]int)
		for stage, n := range s4_stages.Distribution(records) {
			counts[stage.String()] = n
		}
		extra := map[string]interface{}{
			"first_breakout_idx": s4_stages.FirstBreakout(records),
			"stage_counts":       counts,
		}
		if n := len(records); n > 0 {
			extra["last_stage"] = int(records[n-1].Stage)
		}
		return batch.Outcome{Rows: len(records), Out: out, Extra: extra}, nil
	})
}

// RunFeatures exports the indicator frame of every entity of a kind
func (o *Orchestrator) RunFeatures(ctx context.Context, kind contracts.EntityKind, opts RunOptions) (*batch.Summary, error) {
	repo := o.bars(kind)
	entities, err := repo.ListEntities(ctx, kind)
	if err != nil {
		return nil, fmt.Errorf("list %s entities: %w", kind, err)
	}
	outDir := filepath.Join(o.deps.Paths.Features, string(kind))
	ind := o.deps.Config.Indicators

	return o.runBatch(ctx, featuresJob(kind), entities, opts, func(ctx context.Context, id string) (batch.Outcome, error) {
		series, err := repo.GetSeries(ctx, id, kind, time.Time{}, time.Time{})
		if err != nil {
			return batch.Outcome{}, err
		}

		frame := s2_signals.Compute(series.Bars, ind)
		out := filepath.Join(outDir, id+".csv")
		if err := writeAtomic(out, func(w io.Writer) error {
			return s2_signals.WriteFeaturesCSV(w, id, frame, ind.Volume.RelVolThreshold)
		}); err != nil {
			return batch.Outcome{}, err
		}
		return batch.Outcome{Rows: frame.Len(), Out: out}, nil
	})
}

// BuildGateTable reloads the stage store and materializes the daily gate table
func (o *Orchestrator) BuildGateTable(ctx context.Context) ([]contracts.GateDailyRow, error) {
	o.logger.Info("Running S5: Gate daily table")

	store := o.deps.Engine.Store()
	if err := store.Refresh(ctx); err != nil {
		return nil, err
	}
	stats := store.Stats()
	o.deps.Metrics.SetStore(stats.Records, stats.Generation)

	rows, err := s5_gate.BuildDailyTable(ctx, o.deps.Engine)
	if err != nil {
		return nil, fmt.Errorf("build gate table: %w", err)
	}

	out := filepath.Join(o.deps.Paths.Gate, GateDailyFile)
	if err := writeAtomic(out, func(w io.Writer) error {
		return s5_gate.WriteGateDailyCSV(w, rows)
	}); err != nil {
		return rows, err
	}
	if o.deps.GateRepo != nil {
		if err := o.deps.GateRepo.SaveGateDaily(ctx, rows); err != nil {
			return rows, fmt.Errorf("save gate table: %w", err)
		}
	}

	allowed := 0
	for _, r := range rows {
		if r.Allowed {
			allowed++
		}
	}
	o.logger.WithFields(map[string]interface{}{
		"rows":        len(rows),
		"allowed":     allowed,
		"spiders":     len(store.Entities()),
		"config_hash": o.deps.ConfigHash,
		"out":         out,
	}).Info("S5 completed")

	return rows, nil
}

// RunTradability joins each stock's stage file with its sector gate
func (o *Orchestrator) RunTradability(ctx context.Context, opts RunOptions) (*batch.Summary, error) {
	set, err := o.loadMemberships()
	if err != nil {
		return nil, err
	}
	if err := o.deps.Engine.Store().Load(ctx); err != nil {
		return nil, err
	}

	tickers := make([]string, 0, len(set.Members))
	spiderOf := make(map[string]string, len(set.Members))
	for _, m := range set.Members {
		if _, ok := spiderOf[m.Ticker]; ok {
			continue
		}
		spiderOf[m.Ticker] = m.SpiderID
		tickers = append(tickers, m.Ticker)
	}

	stockDir := o.deps.Paths.StageDir(contracts.KindStock)
	outDir := filepath.Join(o.deps.Paths.Gate, "tradability")

	return o.runBatch(ctx, JobTradability, tickers, opts, func(ctx context.Context, ticker string) (batch.Outcome, error) {
		records, err := readStageFile(filepath.Join(stockDir, ticker+".csv"), ticker)
		if err != nil {
			return batch.Outcome{}, err
		}

		rows, err := s5_gate.AttachSectorStage(ctx, o.deps.Engine, ticker, spiderOf[ticker], records)
		if err != nil {
			return batch.Outcome{}, err
		}

		out := filepath.Join(outDir, ticker+".csv")
		if err := writeAtomic(out, func(w io.Writer) error {
			return s5_gate.WriteTradabilityCSV(w, rows)
		}); err != nil {
			return batch.Outcome{}, err
		}

		allowed := 0
		for _, r := range rows {
			if r.GateAllowed {
				allowed++
			}
		}
		return batch.Outcome{
			Rows:  len(rows),
			Out:   out,
			Extra: map[string]interface{}{"spider_id": spiderOf[ticker], "gate_allowed_days": allowed},
		}, nil
	})
}

// runBatch resolves the entity list for resume/retry and fans out to the runner
func (o *Orchestrator) runBatch(ctx context.Context, job string, entities []string, opts RunOptions, task batch.Task) (*batch.Summary, error) {
	dir := filepath.Join(o.deps.Paths.Journals, job)
	journal := batch.NewJournal(dir)

	if len(opts.Only) > 0 {
		entities = opts.Only
	}
	if opts.Retry {
		failed, err := batch.FailedEntities(journal.ErrorsPath())
		if err != nil {
			return nil, err
		}
		if len(failed) == 0 {
			o.logger.WithField("job", job).Info("Nothing to retry")
			return &batch.Summary{Job: job}, nil
		}
		entities = failed
		journal = batch.NewRetryJournal(dir)
	}

	runner := batch.NewRunner(journal, o.deps.Metrics, o.logger)
	return runner.Run(ctx, entities, batch.Options{
		Job:        job,
		Workers:    o.deps.Workers,
		Resume:     opts.Resume,
		ConfigHash: o.deps.ConfigHash,
	}, task)
}

func readStageFile(path, entityID string) ([]contracts.StageRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return s4_stages.ReadStagesCSV(f, entityID)
}

// writeAtomic writes through a temp file and renames it into place
func writeAtomic(path string, fn func(w io.Writer) error) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := fn(tmp); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// GenerateRunID generates a sortable run label for scheduled runs
func GenerateRunID() string {
	return fmt.Sprintf("run_%s", time.Now().Format("20060102_150405"))
}

// IsNoSuccess reports whether a batch failed for every entity
func IsNoSuccess(err error) bool {
	return errors.Is(err, batch.ErrNoSuccess)
}
