package batch

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wonny/stagegate/internal/metrics"
	"github.com/wonny/stagegate/pkg/logger"
)

// ErrNoSuccess is returned when a run attempted entities and none succeeded
var ErrNoSuccess = errors.New("batch run: zero entities succeeded")

// Outcome is what a task reports for a successful entity
type Outcome struct {
	Rows  int
	Out   string
	Extra map[string]interface{}
}

// Task processes one entity
type Task func(ctx context.Context, entityID string) (Outcome, error)

// Options controls one run
type Options struct {
	Job        string
	Workers    int
	Resume     bool // _progress.jsonl 의 ok 엔티티는 건너뜀
	ConfigHash string
}

// Summary is the end-of-run report
type Summary struct {
	RunID   string        `json:"run_id"`
	Job     string        `json:"job"`
	Total   int           `json:"total"`
	OK      int           `json:"ok"`
	Error   int           `json:"error"`
	Skipped int           `json:"skipped"`
	Failed  []string      `json:"failed,omitempty"`
	Elapsed time.Duration `json:"elapsed"`
}

// Runner fans entities out to a bounded worker pool
// ⭐ SSOT: 엔티티 단위 배치 실행 (실패 격리 + 저널)
type Runner struct {
	journal *Journal
	metrics *metrics.Metrics
	logger  *logger.Logger
}

// NewRunner creates a runner; m may be nil
func NewRunner(journal *Journal, m *metrics.Metrics, log *logger.Logger) *Runner {
	return &Runner{
		journal: journal,
		metrics: m,
		logger:  log.WithField("module", "batch"),
	}
}

type result struct {
	entityID string
	outcome  Outcome
	err      error
	skipped  bool
	elapsed  time.Duration
}

// Run processes every entity; one entity's failure never stops the others
func (r *Runner) Run(ctx context.Context, entities []string, opts Options, task Task) (*Summary, error) {
	start := time.Now()
	runID := uuid.NewString()
	log := r.logger.WithRun(runID).WithField("job", opts.Job)

	sum := &Summary{RunID: runID, Job: opts.Job, Total: len(entities)}

	todo := entities
	if opts.Resume {
		done, err := DoneSet(r.journal.ProgressPath())
		if err != nil {
			return nil, fmt.Errorf("read progress journal: %w", err)
		}
		todo = make([]string, 0, len(entities))
		for _, id := range entities {
			if done[id] {
				sum.Skipped++
				continue
			}
			todo = append(todo, id)
		}
	}

	workers := opts.Workers
	if workers < 1 {
		workers = 1
	}

	log.WithFields(map[string]interface{}{
		"total":       len(entities),
		"remaining":   len(todo),
		"workers":     workers,
		"config_hash": opts.ConfigHash,
	}).Info("Starting batch run")

	// worker pool
	jobCh := make(chan string, len(todo))
	resultCh := make(chan result, len(todo))

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.worker(ctx, jobCh, resultCh, task)
		}()
	}

	for _, id := range todo {
		jobCh <- id
	}
	close(jobCh)

	go func() {
		wg.Wait()
		close(resultCh)
	}()

	var journalErr error
	for res := range resultCh {
		if res.skipped {
			sum.Skipped++
			continue
		}

		entry := Entry{
			TS:         time.Now().UTC(),
			RunID:      runID,
			Job:        opts.Job,
			EntityID:   res.entityID,
			ElapsedS:   res.elapsed.Seconds(),
			ConfigHash: opts.ConfigHash,
		}
		if res.err != nil {
			sum.Error++
			sum.Failed = append(sum.Failed, res.entityID)
			entry.Status = StatusError
			entry.Error = res.err.Error()
			log.WithError(res.err).WithField("entity_id", res.entityID).Warn("Entity failed")
		} else {
			sum.OK++
			entry.Status = StatusOK
			entry.Rows = res.outcome.Rows
			entry.Out = res.outcome.Out
			entry.Extra = res.outcome.Extra
		}
		r.metrics.ObserveEntity(opts.Job, string(entry.Status), res.elapsed)

		if err := r.journal.Record(entry); err != nil && journalErr == nil {
			journalErr = err
		}
	}
	sort.Strings(sum.Failed)
	sum.Elapsed = time.Since(start)

	log.WithFields(map[string]interface{}{
		"total":   sum.Total,
		"ok":      sum.OK,
		"error":   sum.Error,
		"skipped": sum.Skipped,
		"elapsed": sum.Elapsed.String(),
	}).Info("Batch run completed")

	var err error
	switch {
	case journalErr != nil:
		err = journalErr
	case ctx.Err() != nil:
		err = ctx.Err()
	case sum.OK == 0 && sum.Error > 0:
		err = ErrNoSuccess
	}
	r.metrics.ObserveRun(opts.Job, err)
	return sum, err
}

func (r *Runner) worker(ctx context.Context, jobCh <-chan string, resultCh chan<- result, task Task) {
	for id := range jobCh {
		// 취소되면 남은 엔티티는 skipped
		if ctx.Err() != nil {
			resultCh <- result{entityID: id, skipped: true}
			continue
		}

		t0 := time.Now()
		outcome, err := runTask(ctx, id, task)
		resultCh <- result{entityID: id, outcome: outcome, err: err, elapsed: time.Since(t0)}
	}
}

// runTask converts a panic inside a task into an entity error
func runTask(ctx context.Context, id string, task Task) (out Outcome, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v", rec)
		}
	}()
	return task(ctx, id)
}
