package jobs

import (
	"context"

	"github.com/wonny/stagegate/internal/metrics"
	"github.com/wonny/stagegate/internal/s5_gate"
	"github.com/wonny/stagegate/pkg/logger"
)

// StoreRefreshJob reloads the API's stage store so new stage files are served
type StoreRefreshJob struct {
	store    *s5_gate.Store
	schedule string
	metrics  *metrics.Metrics
	logger   *logger.Logger
}

// NewStoreRefreshJob creates a new store refresh job
func NewStoreRefreshJob(store *s5_gate.Store, schedule string, m *metrics.Metrics, log *logger.Logger) *StoreRefreshJob {
	return &StoreRefreshJob{
		store:    store,
		schedule: schedule,
		metrics:  m,
		logger:   log,
	}
}

// Name returns the job name
func (j *StoreRefreshJob) Name() string {
	return "stage_store_refresh"
}

// Schedule returns the cron schedule
func (j *StoreRefreshJob) Schedule() string {
	return j.schedule
}

// Run swaps in a fresh index; a failed load keeps serving the old one
func (j *StoreRefreshJob) Run(ctx context.Context) error {
	before := j.store.Stats().Records
	if err := j.store.Refresh(ctx); err != nil {
		return err
	}

	stats := j.store.Stats()
	j.metrics.SetStore(stats.Records, stats.Generation)
	j.logger.WithFields(map[string]interface{}{
		"records_before": before,
		"records":        stats.Records,
		"generation":     stats.Generation,
	}).Debug("Stage store refreshed")
	return nil
}
