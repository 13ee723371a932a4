package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/stagegate/pkg/logger"
)

type fakeJob struct {
	name     string
	schedule string
	failures int32 // 처음 N번 실패
	calls    int32
	block    chan struct{}
	started  chan struct{}
}

func (j *fakeJob) Name() string     { return j.name }
func (j *fakeJob) Schedule() string { return j.schedule }

func (j *fakeJob) Run(ctx context.Context) error {
	n := atomic.AddInt32(&j.calls, 1)
	if j.started != nil {
		j.started <- struct{}{}
	}
	if j.block != nil {
		select {
		case <-j.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if n <= atomic.LoadInt32(&j.failures) {
		return errors.New("transient")
	}
	return nil
}

func newTestScheduler(retries int) *Scheduler {
	return New(logger.Nop(), WithRetry(retries, time.Millisecond))
}

func TestAddJob(t *testing.T) {
	s := newTestScheduler(0)

	require.NoError(t, s.AddJob(&fakeJob{name: "a", schedule: "0 30 22 * * 1-5"}))
	assert.Error(t, s.AddJob(&fakeJob{name: "a", schedule: "@every 1m"}), "duplicate name")
	assert.Error(t, s.AddJob(&fakeJob{name: "bad", schedule: "not a cron"}))
	assert.Equal(t, []string{"a"}, s.GetAllJobs())

	require.NoError(t, s.RemoveJob("a"))
	assert.Empty(t, s.GetAllJobs())
	assert.Error(t, s.RemoveJob("a"))
}

func TestRunJob_RetriesThenSucceeds(t *testing.T) {
	s := newTestScheduler(3)
	job := &fakeJob{name: "flaky", schedule: "@every 1h", failures: 2}
	require.NoError(t, s.AddJob(job))

	require.NoError(t, s.RunJob(context.Background(), "flaky"))
	assert.Equal(t, int32(3), atomic.LoadInt32(&job.calls))

	history, err := s.GetJobHistory("flaky")
	require.NoError(t, err)
	last, ok := history.Last()
	require.True(t, ok)
	assert.True(t, last.Success)
	assert.Equal(t, 3, last.Attempts)
}

func TestRunJob_FailsAfterRetries(t *testing.T) {
	s := newTestScheduler(1)
	job := &fakeJob{name: "broken", schedule: "@every 1h", failures: 100}
	require.NoError(t, s.AddJob(job))

	err := s.RunJob(context.Background(), "broken")
	require.Error(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&job.calls))

	stats := s.GetJobStats()["broken"]
	assert.Equal(t, 1, stats.TotalRuns)
	assert.Equal(t, 1, stats.FailureCount)
	assert.Equal(t, 0.0, stats.SuccessRate)
	assert.Equal(t, "transient", stats.LastError)
	require.NotNil(t, stats.LastRun)

	assert.Error(t, s.RunJob(context.Background(), "missing"))
}

func TestRunJob_RefusesOverlap(t *testing.T) {
	s := newTestScheduler(0)
	job := &fakeJob{name: "slow", schedule: "@every 1h", block: make(chan struct{}), started: make(chan struct{}, 1)}
	require.NoError(t, s.AddJob(job))

	done := make(chan error, 1)
	go func() { done <- s.RunJob(context.Background(), "slow") }()
	<-job.started

	assert.ErrorIs(t, s.RunJob(context.Background(), "slow"), ErrJobRunning)
	assert.True(t, s.GetJobStats()["slow"].Running)

	close(job.block)
	require.NoError(t, <-done)
	assert.False(t, s.GetJobStats()["slow"].Running)
}

func TestRunJob_ContextCancelStopsRetries(t *testing.T) {
	s := New(logger.Nop(), WithRetry(5, time.Hour))
	job := &fakeJob{name: "cancel", schedule: "@every 1h", failures: 100}
	require.NoError(t, s.AddJob(job))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	assert.Error(t, s.RunJob(ctx, "cancel"))
	assert.Less(t, time.Since(start), 10*time.Second)
	assert.Equal(t, int32(2), atomic.LoadInt32(&job.calls))
}

func TestStartStop_NextRun(t *testing.T) {
	s := newTestScheduler(0)
	require.NoError(t, s.AddJob(&fakeJob{name: "daily", schedule: "0 30 22 * * *"}))

	s.Start()
	next, err := s.NextRun("daily")
	require.NoError(t, err)
	assert.True(t, next.After(time.Now()))
	assert.Equal(t, 22, next.Hour())
	assert.Equal(t, 30, next.Minute())
	s.Stop()

	_, err = s.NextRun("nope")
	assert.Error(t, err)
}

func TestJobHistory_Limit(t *testing.T) {
	h := &JobHistory{}
	for i := 0; i < historyLimit+5; i++ {
		h.AddResult(JobResult{Attempts: i, Success: i%2 == 0})
	}
	assert.Len(t, h.Results, historyLimit)
	assert.Equal(t, 5, h.Results[0].Attempts)
	assert.InDelta(t, 0.5, h.SuccessRate(), 1e-9)
}
