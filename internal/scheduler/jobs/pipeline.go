package jobs

import (
	"context"
	"fmt"

	"github.com/wonny/stagegate/internal/brain"
	"github.com/wonny/stagegate/pkg/logger"
)

// Pipeline is the part of the orchestrator the daily job drives
type Pipeline interface {
	Run(ctx context.Context, config brain.RunConfig) (*brain.RunResult, error)
}

// PipelineJob rebuilds spiders, spider stages and the gate table
// ⭐ SSOT: 일일 stage 파이프라인 스케줄은 이 Job에서만
type PipelineJob struct {
	pipeline Pipeline
	schedule string
	logger   *logger.Logger
}

// NewPipelineJob creates a new pipeline job
func NewPipelineJob(p Pipeline, schedule string, log *logger.Logger) *PipelineJob {
	return &PipelineJob{
		pipeline: p,
		schedule: schedule,
		logger:   log,
	}
}

// Name returns the job name
func (j *PipelineJob) Name() string {
	return "stage_pipeline"
}

// Schedule returns the cron schedule (after US close by default)
func (j *PipelineJob) Schedule() string {
	return j.schedule
}

// Run executes the pipeline; retries resume from the progress journals
func (j *PipelineJob) Run(ctx context.Context) error {
	runID := brain.GenerateRunID()
	j.logger.WithField("run_id", runID).Info("Starting scheduled stage pipeline")

	result, err := j.pipeline.Run(ctx, brain.RunConfig{RunID: runID, Resume: true})
	if err != nil {
		return fmt.Errorf("stage pipeline: %w", err)
	}

	j.logger.WithFields(map[string]interface{}{
		"run_id":    runID,
		"stages":    result.CompletedStages,
		"gate_rows": result.GateRows,
	}).Info("Scheduled stage pipeline completed")
	return nil
}
