package batch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/stagegate/pkg/logger"
)

func TestRunner_PartialFailureIsolation(t *testing.T) {
	dir := t.TempDir()
	journal := NewJournal(dir)
	runner := NewRunner(journal, nil, logger.Nop())

	task := func(ctx context.Context, id string) (Outcome, error) {
		switch id {
		case "BAD":
			return Outcome{}, errors.New("malformed series")
		case "PANIC":
			panic("index out of range")
		}
		return Outcome{Rows: 10, Out: id + ".csv"}, nil
	}

	sum, err := runner.Run(context.Background(), []string{"A", "BAD", "B", "PANIC", "C"},
		Options{Job: "classify", Workers: 3, ConfigHash: "abc"}, task)
	require.NoError(t, err)

	assert.Equal(t, 5, sum.Total)
	assert.Equal(t, 3, sum.OK)
	assert.Equal(t, 2, sum.Error)
	assert.Equal(t, []string{"BAD", "PANIC"}, sum.Failed)
	assert.NotEmpty(t, sum.RunID)

	done, err := DoneSet(journal.ProgressPath())
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"A": true, "B": true, "C": true}, done)

	failed, err := FailedEntities(journal.ErrorsPath())
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"BAD", "PANIC"}, failed)

	entries, err := ReadEntries(journal.ErrorsPath())
	require.NoError(t, err)
	for _, e := range entries {
		assert.Equal(t, sum.RunID, e.RunID)
		assert.Equal(t, "abc", e.ConfigHash)
		assert.Equal(t, StatusError, e.Status)
		if e.EntityID == "PANIC" {
			assert.Contains(t, e.Error, "panic: index out of range")
		}
	}
}

func TestRunner_Resume(t *testing.T) {
	dir := t.TempDir()
	journal := NewJournal(dir)
	runner := NewRunner(journal, nil, logger.Nop())
	ok := func(ctx context.Context, id string) (Outcome, error) { return Outcome{}, nil }

	_, err := runner.Run(context.Background(), []string{"A", "B"}, Options{Job: "x", Workers: 2}, ok)
	require.NoError(t, err)

	var calls int32
	counting := func(ctx context.Context, id string) (Outcome, error) {
		atomic.AddInt32(&calls, 1)
		return Outcome{}, nil
	}
	sum, err := runner.Run(context.Background(), []string{"A", "B", "C"}, Options{Job: "x", Workers: 2, Resume: true}, counting)
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls)
	assert.Equal(t, 2, sum.Skipped)
	assert.Equal(t, 1, sum.OK)
}

func TestRunner_NoSuccess(t *testing.T) {
	runner := NewRunner(NewJournal(t.TempDir()), nil, logger.Nop())
	fail := func(ctx context.Context, id string) (Outcome, error) { return Outcome{}, errors.New("nope") }

	sum, err := runner.Run(context.Background(), []string{"A", "B"}, Options{Job: "x", Workers: 1}, fail)
	assert.ErrorIs(t, err, ErrNoSuccess)
	assert.Equal(t, 2, sum.Error)

	sum, err = runner.Run(context.Background(), nil, Options{Job: "x"}, fail)
	assert.NoError(t, err, "empty run is not a failure")
	assert.Equal(t, 0, sum.Total)
}

func TestRunner_Cancelled(t *testing.T) {
	runner := NewRunner(NewJournal(t.TempDir()), nil, logger.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sum, err := runner.Run(ctx, []string{"A", "B", "C"}, Options{Job: "x", Workers: 2},
		func(ctx context.Context, id string) (Outcome, error) { return Outcome{}, nil })
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 3, sum.Skipped)
}

func TestJournal_Files(t *testing.T) {
	dir := t.TempDir()
	retry := NewRetryJournal(dir)
	require.NoError(t, retry.Record(Entry{EntityID: "A", Status: StatusOK}))
	require.NoError(t, retry.Record(Entry{EntityID: "B", Status: StatusError, Error: "x"}))

	assert.FileExists(t, filepath.Join(dir, RetryProgressFile))
	assert.FileExists(t, filepath.Join(dir, RetryErrorsFile))

	// 깨진 줄은 무시
	f, err := os.OpenFile(filepath.Join(dir, RetryErrorsFile), os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, _ = f.WriteString("{not json\n\n")
	f.Close()
	require.NoError(t, retry.Record(Entry{EntityID: "B", Status: StatusError}))

	failed, err := FailedEntities(filepath.Join(dir, RetryErrorsFile))
	require.NoError(t, err)
	assert.Equal(t, []string{"B"}, failed)

	done, err := DoneSet(filepath.Join(dir, "missing.jsonl"))
	require.NoError(t, err)
	assert.Empty(t, done)

	_, err = FailedEntities(filepath.Join(dir, "missing.jsonl"))
	assert.Error(t, err)
}
