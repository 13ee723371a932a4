package s0_data

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/wonny/stagegate/internal/contracts"
	"github.com/wonny/stagegate/internal/s0_data/ingest"
	"github.com/wonny/stagegate/pkg/logger"
)

const quarantineDir = "_quarantine"

// FileRepository implements contracts.BarRepository over per-entity CSV files
// layout: <root>/stock/<TICKER>.csv, <root>/spider/<SPIDER_ID>.csv
// ⭐ SSOT: 파일 기반 bar 저장소는 여기서만
type FileRepository struct {
	root   string
	opts   ingest.Options
	logger *logger.Logger
}

// NewFileRepository creates a new file-backed bar repository
func NewFileRepository(root string, opts ingest.Options, log *logger.Logger) *FileRepository {
	return &FileRepository{
		root:   root,
		opts:   opts,
		logger: log.WithField("module", "bars"),
	}
}

// Dir returns the directory holding an entity kind's files
func (r *FileRepository) Dir(kind contracts.EntityKind) string {
	return filepath.Join(r.root, string(kind))
}

// Path returns the bar file of an entity
func (r *FileRepository) Path(entityID string, kind contracts.EntityKind) string {
	return filepath.Join(r.Dir(kind), entityID+".csv")
}

// GetSeries reads and validates an entity's bars; zero from/to means unbounded
// 격리된 행은 <dir>/_quarantine/<id>.quarantine.jsonl 로 기록
func (r *FileRepository) GetSeries(ctx context.Context, entityID string, kind contracts.EntityKind, from, to time.Time) (contracts.Series, error) {
	if err := ctx.Err(); err != nil {
		return contracts.Series{}, err
	}

	f, err := os.Open(r.Path(entityID, kind))
	if err != nil {
		return contracts.Series{}, fmt.Errorf("open bars %s: %w", entityID, err)
	}
	defer f.Close()

	res, err := ingest.ReadBars(f, entityID, kind, r.opts)
	if err != nil {
		return contracts.Series{}, fmt.Errorf("ingest %s: %w", entityID, err)
	}

	if len(res.Quarantined) > 0 {
		r.logger.WithFields(map[string]interface{}{
			"entity_id":   entityID,
			"quarantined": len(res.Quarantined),
			"first":       res.Quarantined[0].Error(),
		}).Warn("Bar rows quarantined")

		if err := r.writeQuarantine(entityID, kind, res.Quarantined); err != nil {
			return contracts.Series{}, err
		}
	}

	return filterRange(res.Series, from, to), nil
}

func (r *FileRepository) writeQuarantine(entityID string, kind contracts.EntityKind, errs []ingest.SchemaError) error {
	dir := filepath.Join(r.Dir(kind), quarantineDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create quarantine dir: %w", err)
	}

	f, err := os.Create(filepath.Join(dir, entityID+".quarantine.jsonl"))
	if err != nil {
		return fmt.Errorf("create quarantine file: %w", err)
	}
	defer f.Close()

	return ingest.WriteQuarantine(f, entityID, errs)
}

// ListEntities returns the sorted entity ids that have a bar file
func (r *FileRepository) ListEntities(ctx context.Context, kind contracts.EntityKind) ([]string, error) {
	entries, err := os.ReadDir(r.Dir(kind))
	if err != nil {
		return nil, fmt.Errorf("list %s bars: %w", kind, err)
	}

	var ids []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, "_") || filepath.Ext(name) != ".csv" {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, ".csv"))
	}
	sort.Strings(ids)
	return ids, nil
}

// SaveBatch replaces an entity's bar file (write temp, then rename)
func (r *FileRepository) SaveBatch(ctx context.Context, entityID string, kind contracts.EntityKind, bars []contracts.Bar) error {
	if err := os.MkdirAll(r.Dir(kind), 0o755); err != nil {
		return fmt.Errorf("create bars dir: %w", err)
	}

	path := r.Path(entityID, kind)
	tmp, err := os.CreateTemp(r.Dir(kind), "."+entityID+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp bars: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := ingest.WriteBars(tmp, bars); err != nil {
		tmp.Close()
		return fmt.Errorf("write bars %s: %w", entityID, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp bars: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename bars %s: %w", entityID, err)
	}
	return nil
}

func filterRange(s contracts.Series, from, to time.Time) contracts.Series {
	if from.IsZero() && to.IsZero() {
		return s
	}
	from, to = contracts.NormalizeDate(from), contracts.NormalizeDate(to)

	out := s
	out.Bars = nil
	for _, b := range s.Bars {
		if !from.IsZero() && b.Date.Before(from) {
			continue
		}
		if !to.IsZero() && b.Date.After(to) {
			continue
		}
		out.Bars = append(out.Bars, b)
	}
	return out
}
