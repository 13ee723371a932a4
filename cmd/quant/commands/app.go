package commands

import (
	"context"
	"fmt"

	"github.com/wonny/stagegate/internal/brain"
	"github.com/wonny/stagegate/internal/contracts"
	"github.com/wonny/stagegate/internal/metrics"
	"github.com/wonny/stagegate/internal/s0_data"
	"github.com/wonny/stagegate/internal/s0_data/ingest"
	"github.com/wonny/stagegate/internal/s4_stages"
	"github.com/wonny/stagegate/internal/s5_gate"
	"github.com/wonny/stagegate/internal/stageconfig"
	"github.com/wonny/stagegate/pkg/config"
	"github.com/wonny/stagegate/pkg/database"
	"github.com/wonny/stagegate/pkg/logger"
)

const (
	backendFile     = "file"
	backendPostgres = "postgres"
)

// app bundles everything a command needs
// ⭐ SSOT: 명령어 공통 초기화는 여기서만
type app struct {
	cfg        *config.Config
	log        *logger.Logger
	stage      *stageconfig.Config
	configHash string
	db         *database.DB // backend=file 이면 nil
	metrics    *metrics.Metrics
	paths      brain.Paths
	store      *s5_gate.Store
	engine     *s5_gate.Engine
	orch       *brain.Orchestrator
}

func newApp(ctx context.Context) (*app, error) {
	// 1. Load config
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if stageConfigPath != "" {
		cfg.StageConfigPath = stageConfigPath
	}
	if dataDir != "" {
		cfg.DataDir = dataDir
	}
	if workers > 0 {
		cfg.Workers = workers
	}
	if verbose {
		cfg.LogLevel = "debug"
	}

	// 2. Initialize logger
	log := logger.New(cfg)

	// 3. Stage config
	stage, _, err := stageconfig.Load(cfg.StageConfigPath)
	if err != nil {
		return nil, err
	}
	hash, err := stageconfig.Hash(stage)
	if err != nil {
		return nil, fmt.Errorf("hash stage config: %w", err)
	}
	for _, w := range stageconfig.Warnings(stage) {
		log.WithField("code", w.Code).Warn(w.Message)
	}

	a := &app{
		cfg:        cfg,
		log:        log,
		stage:      stage,
		configHash: hash,
		paths:      brain.DefaultPaths(cfg),
	}
	if cfg.MetricsEnabled {
		a.metrics = metrics.NewDefault()
	}

	deps := brain.Deps{
		Config:     stage,
		ConfigHash: hash,
		Paths:      a.paths,
		Metrics:    a.metrics,
		Workers:    cfg.Workers,
	}

	// 4. Storage backend
	var source s5_gate.StageSource
	switch backend {
	case backendFile:
		bars := s0_data.NewFileRepository(cfg.Path("bars"), ingest.Options{}, log)
		deps.Stocks, deps.Spiders = bars, bars
		source = s5_gate.NewFileSource(a.paths.StageDir(contracts.KindSpider))

	case backendPostgres:
		db, err := database.New(cfg)
		if err != nil {
			return nil, fmt.Errorf("connect to database: %w", err)
		}
		if err := db.EnsureSchema(ctx); err != nil {
			db.Close()
			return nil, err
		}
		a.db = db

		bars := s0_data.NewBarRepository(db.Pool)
		stageRepo := s4_stages.NewRepository(db.Pool)
		deps.Stocks, deps.Spiders = bars, bars
		deps.StageRepo = stageRepo
		deps.GateRepo = s5_gate.NewRepository(db.Pool)
		source = s5_gate.NewPostgresSource(stageRepo)

	default:
		return nil, fmt.Errorf("unknown backend %q (file|postgres)", backend)
	}

	a.store = s5_gate.NewStore(source, log)
	a.engine = s5_gate.NewEngine(stage.SpiderGate, a.store)
	deps.Engine = a.engine
	a.orch = brain.NewOrchestrator(deps, log)

	log.WithFields(map[string]interface{}{
		"env":         cfg.Env,
		"backend":     backend,
		"data_dir":    cfg.DataDir,
		"config_hash": hash,
		"workers":     cfg.Workers,
	}).Debug("App initialized")

	return a, nil
}

func (a *app) Close() {
	if a.db != nil {
		a.db.Close()
	}
}
