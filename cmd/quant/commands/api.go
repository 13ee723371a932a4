package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/stagegate/internal/api"
	"github.com/wonny/stagegate/internal/api/handlers"
	"github.com/wonny/stagegate/internal/s5_gate"
	"github.com/wonny/stagegate/internal/scheduler"
	"github.com/wonny/stagegate/internal/scheduler/jobs"
	"github.com/wonny/stagegate/pkg/redis"
)

// apiCmd represents the api command
var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "게이트 조회 API 서버",
	Long: `Stage Store를 메모리에 올리고 게이트 판정을 HTTP로 제공합니다.

Endpoints:
  GET  /health
  GET  /metrics
  GET  /api/v1/gate/{spider}/{date}
  GET  /api/v1/stages/{entity}?from=&to=
  GET  /api/v1/risk/{stage}
  GET  /api/v1/store
  POST /api/v1/store/refresh

Example:
  go run ./cmd/quant api
  go run ./cmd/quant api --refresh "@every 10m"`,
	RunE: runAPI,
}

var apiRefresh string

func init() {
	rootCmd.AddCommand(apiCmd)
	apiCmd.Flags().StringVar(&apiRefresh, "refresh", "@every 10m", "cron spec for reloading the stage store (empty disables)")
}

func runAPI(cmd *cobra.Command, args []string) error {
	ctx, stop := commandContext(cmd)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.store.Load(ctx); err != nil {
		return fmt.Errorf("load stage store: %w", err)
	}
	stats := a.store.Stats()
	a.metrics.SetStore(stats.Records, stats.Generation)

	// Redis (optional): 판정 캐시 + 분산 rate limit
	rc, err := redis.New(a.cfg)
	if err != nil {
		return err
	}
	defer rc.Close()

	var decider s5_gate.Decider = a.engine
	var remote *redis.RateLimiter
	if rc.Enabled() {
		cache := redis.NewCache(rc, "stagegate")
		decider = s5_gate.NewCachedEngine(a.engine, cache, a.configHash, redis.TTLShort, a.log)
		remote = redis.NewRateLimiter(rc, "stagegate")
		a.log.Info("Redis cache enabled")
	}

	limiter := api.NewLimiter(a.cfg.API.RateLimitRPS, a.cfg.API.RateLimitBurst, remote, a.log)
	gateHandler := handlers.NewGateHandler(decider, a.engine, a.metrics, a.configHash, a.log)
	router := api.NewRouter(gateHandler, a.metrics, limiter, a.log)
	server := api.New(a.cfg, a.log, router)

	var sched *scheduler.Scheduler
	if apiRefresh != "" {
		sched = scheduler.New(a.log)
		if err := sched.AddJob(jobs.NewStoreRefreshJob(a.store, apiRefresh, a.metrics, a.log)); err != nil {
			return err
		}
		sched.Start()
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	fmt.Printf("🚀 API listening on :%s (store: %d records, config %s)\n", a.cfg.API.Port, stats.Records, a.configHash[:12])

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	if sched != nil {
		sched.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
