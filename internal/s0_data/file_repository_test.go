package s0_data

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/stagegate/internal/contracts"
	"github.com/wonny/stagegate/internal/s0_data/ingest"
	"github.com/wonny/stagegate/pkg/logger"
)

func day(d int) time.Time {
	return time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC)
}

func TestFileRepository_SaveAndGet(t *testing.T) {
	ctx := context.Background()
	repo := NewFileRepository(t.TempDir(), ingest.Options{}, logger.Nop())

	bars := []contracts.Bar{
		{Date: day(2), Open: 1, High: 2, Low: 0.5, Close: 1.5, Volume: 10},
		{Date: day(3), Open: math.NaN(), High: 2, Low: 1, Close: 1.8, Volume: 0},
		{Date: day(4), Open: 1.8, High: 2.2, Low: 1.7, Close: 2.1, Volume: 12},
	}
	require.NoError(t, repo.SaveBatch(ctx, "SECTOR_TECHNOLOGY", contracts.KindSpider, bars))

	s, err := repo.GetSeries(ctx, "SECTOR_TECHNOLOGY", contracts.KindSpider, time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Equal(t, 3, s.Len())
	assert.Equal(t, contracts.KindSpider, s.Kind)
	assert.True(t, math.IsNaN(s.Bars[1].Open))

	ranged, err := repo.GetSeries(ctx, "SECTOR_TECHNOLOGY", contracts.KindSpider, day(3), day(3))
	require.NoError(t, err)
	require.Equal(t, 1, ranged.Len())
	assert.Equal(t, day(3), ranged.Bars[0].Date)

	ids, err := repo.ListEntities(ctx, contracts.KindSpider)
	require.NoError(t, err)
	assert.Equal(t, []string{"SECTOR_TECHNOLOGY"}, ids)
}

func TestFileRepository_Quarantine(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	repo := NewFileRepository(root, ingest.Options{}, logger.Nop())

	dir := repo.Dir(contracts.KindStock)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "AAPL.csv"),
		[]byte("date,close\n2024-01-02,10\n2024-01-03,\n2024-01-04,11\n"), 0o644))

	s, err := repo.GetSeries(ctx, "AAPL", contracts.KindStock, time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, 2, s.Len())

	q, err := os.ReadFile(filepath.Join(dir, "_quarantine", "AAPL.quarantine.jsonl"))
	require.NoError(t, err)
	assert.Contains(t, string(q), ingest.ReasonMissingClose)

	ids, err := repo.ListEntities(ctx, contracts.KindStock)
	require.NoError(t, err)
	assert.Equal(t, []string{"AAPL"}, ids, "quarantine dir is not an entity")

	strict := NewFileRepository(root, ingest.Options{Strict: true}, logger.Nop())
	_, err = strict.GetSeries(ctx, "AAPL", contracts.KindStock, time.Time{}, time.Time{})
	var serr *ingest.SchemaError
	assert.ErrorAs(t, err, &serr)
}

func TestFileRepository_Missing(t *testing.T) {
	repo := NewFileRepository(t.TempDir(), ingest.Options{}, logger.Nop())

	_, err := repo.GetSeries(context.Background(), "NOPE", contracts.KindStock, time.Time{}, time.Time{})
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, err = repo.ListEntities(context.Background(), contracts.KindStock)
	assert.Error(t, err)
}
