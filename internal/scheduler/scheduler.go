package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/wonny/stagegate/pkg/logger"
)

// ErrJobRunning is returned when a job is triggered while its previous run is active
var ErrJobRunning = errors.New("job already running")

// Option configures a Scheduler
type Option func(*Scheduler)

// WithRetry sets how often a failed job is retried and the pause between attempts
func WithRetry(maxRetries int, delay time.Duration) Option {
	return func(s *Scheduler) {
		s.maxRetries = maxRetries
		s.retryDelay = delay
	}
}

type entry struct {
	job     Job
	id      cron.EntryID
	running bool
}

// Scheduler manages scheduled jobs
// ⭐ SSOT: 스케줄 관리는 이 스케줄러에서만
type Scheduler struct {
	cron    *cron.Cron
	logger  *logger.Logger
	jobs    map[string]*entry
	history map[string]*JobHistory
	mu      sync.RWMutex

	ctx    context.Context
	cancel context.CancelFunc

	// Retry configuration
	maxRetries int
	retryDelay time.Duration
}

// New creates a new scheduler
func New(log *logger.Logger, opts ...Option) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		cron:       cron.New(cron.WithSeconds()),
		logger:     log.WithField("module", "scheduler"),
		jobs:       make(map[string]*entry),
		history:    make(map[string]*JobHistory),
		ctx:        ctx,
		cancel:     cancel,
		maxRetries: 2,
		retryDelay: 1 * time.Minute,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AddJob adds a job to the scheduler
func (s *Scheduler) AddJob(job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	jobName := job.Name()

	// Check if job already exists
	if _, exists := s.jobs[jobName]; exists {
		return fmt.Errorf("job %s already exists", jobName)
	}

	// Add job to cron
	id, err := s.cron.AddFunc(job.Schedule(), func() {
		if err := s.runJob(s.ctx, jobName); err != nil && !errors.Is(err, ErrJobRunning) {
			s.logger.WithError(err).WithField("job", jobName).Debug("Scheduled run ended with error")
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule job %s: %w", jobName, err)
	}

	s.jobs[jobName] = &entry{job: job, id: id}
	s.history[jobName] = &JobHistory{}

	s.logger.WithFields(map[string]interface{}{
		"job":      jobName,
		"schedule": job.Schedule(),
	}).Info("Job added to scheduler")

	return nil
}

// RemoveJob removes a job and its cron entry
func (s *Scheduler) RemoveJob(jobName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, exists := s.jobs[jobName]
	if !exists {
		return fmt.Errorf("job %s not found", jobName)
	}

	s.cron.Remove(e.id)
	delete(s.jobs, jobName)
	s.logger.WithField("job", jobName).Info("Job removed from scheduler")

	return nil
}

// Start starts the scheduler
func (s *Scheduler) Start() {
	s.logger.Info("Starting scheduler")
	s.cron.Start()
}

// Stop cancels running jobs and waits for them to return
func (s *Scheduler) Stop() {
	s.logger.Info("Stopping scheduler")
	s.cancel()
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("Scheduler stopped")
}

// RunJob runs a job immediately (outside of schedule) and waits for it
func (s *Scheduler) RunJob(ctx context.Context, jobName string) error {
	return s.runJob(ctx, jobName)
}

// NextRun returns the next scheduled time of a job; zero before Start
func (s *Scheduler) NextRun(jobName string) (time.Time, error) {
	s.mu.RLock()
	e, exists := s.jobs[jobName]
	s.mu.RUnlock()

	if !exists {
		return time.Time{}, fmt.Errorf("job %s not found", jobName)
	}
	return s.cron.Entry(e.id).Next, nil
}

// runJob executes a job with retry logic; overlapping runs of one job are refused
func (s *Scheduler) runJob(ctx context.Context, jobName string) error {
	s.mu.Lock()
	e, exists := s.jobs[jobName]
	if !exists {
		s.mu.Unlock()
		return fmt.Errorf("job %s not found", jobName)
	}
	if e.running {
		s.mu.Unlock()
		s.logger.WithField("job", jobName).Warn("Previous run still active, skipping")
		return ErrJobRunning
	}
	e.running = true
	job := e.job
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		e.running = false
		s.mu.Unlock()
	}()

	startTime := time.Now()
	s.logger.WithField("job", jobName).Info("Job started")

	var lastErr error
	attempts := 0

	// Try running the job with retries
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		attempts++
		lastErr = job.Run(ctx)
		if lastErr == nil || ctx.Err() != nil {
			break
		}

		s.logger.WithFields(map[string]interface{}{
			"job":     jobName,
			"attempt": attempts,
			"error":   lastErr.Error(),
		}).Warn("Job execution failed, retrying")

		// Wait before retry (except on last attempt)
		if attempt < s.maxRetries {
			select {
			case <-ctx.Done():
			case <-time.After(s.retryDelay):
			}
		}
	}

	endTime := time.Now()
	result := JobResult{
		JobName:   jobName,
		StartTime: startTime,
		EndTime:   endTime,
		Duration:  endTime.Sub(startTime),
		Attempts:  attempts,
		Success:   lastErr == nil,
	}
	if lastErr != nil {
		result.Error = lastErr.Error()
	}

	// Store result in history
	s.mu.Lock()
	if history, exists := s.history[jobName]; exists {
		history.AddResult(result)
	}
	s.mu.Unlock()

	if result.Success {
		s.logger.WithFields(map[string]interface{}{
			"job":      jobName,
			"duration": result.Duration,
			"attempts": attempts,
		}).Info("Job completed successfully")
		return nil
	}

	s.logger.WithFields(map[string]interface{}{
		"job":      jobName,
		"duration": result.Duration,
		"attempts": attempts,
		"error":    lastErr.Error(),
	}).Error("Job failed after all retries")
	return lastErr
}

// GetJobHistory returns a copy of the history for a job
func (s *Scheduler) GetJobHistory(jobName string) (*JobHistory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history, exists := s.history[jobName]
	if !exists {
		return nil, fmt.Errorf("job %s not found", jobName)
	}

	out := &JobHistory{Results: make([]JobResult, len(history.Results))}
	copy(out.Results, history.Results)
	return out, nil
}

// GetAllJobs returns the sorted names of registered jobs
func (s *Scheduler) GetAllJobs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	jobs := make([]string, 0, len(s.jobs))
	for jobName := range s.jobs {
		jobs = append(jobs, jobName)
	}
	sort.Strings(jobs)

	return jobs
}

// GetJobStats returns statistics for all registered jobs
func (s *Scheduler) GetJobStats() map[string]JobStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := make(map[string]JobStats, len(s.jobs))
	for jobName, e := range s.jobs {
		history := s.history[jobName]

		st := JobStats{
			JobName:      jobName,
			Schedule:     e.job.Schedule(),
			Running:      e.running,
			TotalRuns:    len(history.Results),
			FailureCount: history.Failures(),
			SuccessRate:  history.SuccessRate(),
		}
		st.SuccessCount = st.TotalRuns - st.FailureCount

		if last, ok := history.Last(); ok {
			t := last.StartTime
			st.LastRun = &t
			st.LastError = last.Error
		}
		stats[jobName] = st
	}

	return stats
}

// JobStats represents statistics for a job
type JobStats struct {
	JobName      string     `json:"job_name"`
	Schedule     string     `json:"schedule"`
	Running      bool       `json:"running"`
	TotalRuns    int        `json:"total_runs"`
	SuccessCount int        `json:"success_count"`
	FailureCount int        `json:"failure_count"`
	SuccessRate  float64    `json:"success_rate"`
	LastRun      *time.Time `json:"last_run,omitempty"`
	LastError    string     `json:"last_error,omitempty"`
}
