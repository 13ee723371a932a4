package s5_gate

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/wonny/stagegate/internal/contracts"
	"github.com/wonny/stagegate/internal/s4_stages"
)

// SpiderFilePattern matches persisted sector stage files
const SpiderFilePattern = "SECTOR_*.csv"

// StageSource supplies the sector stage records a Store indexes
type StageSource interface {
	LoadStages(ctx context.Context) ([]contracts.StageRecord, error)
	Describe() string
}

// FileSource reads every SECTOR_*.csv in a directory
type FileSource struct {
	dir string
}

// NewFileSource creates a file-backed stage source
func NewFileSource(dir string) *FileSource {
	return &FileSource{dir: dir}
}

// Describe returns the source location for logs
func (s *FileSource) Describe() string {
	return "file:" + s.dir
}

// LoadStages reads all sector stage files; any missing or malformed input is an error
func (s *FileSource) LoadStages(ctx context.Context) ([]contracts.StageRecord, error) {
	info, err := os.Stat(s.dir)
	if err != nil {
		return nil, fmt.Errorf("spider stages dir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("spider stages dir %s is not a directory", s.dir)
	}

	files, err := filepath.Glob(filepath.Join(s.dir, SpiderFilePattern))
	if err != nil {
		return nil, fmt.Errorf("glob spider stages: %w", err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no spider stage files (%s) in %s", SpiderFilePattern, s.dir)
	}
	sort.Strings(files)

	var all []contracts.StageRecord
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		recs, err := readStageFile(path)
		if err != nil {
			return nil, err
		}
		all = append(all, recs...)
	}
	return all, nil
}

func readStageFile(path string) ([]contracts.StageRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	fallback := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	recs, err := s4_stages.ReadStagesCSV(f, fallback)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return recs, nil
}

// PostgresSource loads spider stages from the stage repository
type PostgresSource struct {
	repo contracts.StageRepository
}

// NewPostgresSource creates a repository-backed stage source
func NewPostgresSource(repo contracts.StageRepository) *PostgresSource {
	return &PostgresSource{repo: repo}
}

// Describe returns the source location for logs
func (s *PostgresSource) Describe() string {
	return "postgres:stages.stage_records"
}

// LoadStages loads every spider stage record
func (s *PostgresSource) LoadStages(ctx context.Context) ([]contracts.StageRecord, error) {
	recs, err := s.repo.LoadAll(ctx, contracts.KindSpider)
	if err != nil {
		return nil, fmt.Errorf("load spider stages: %w", err)
	}
	if len(recs) == 0 {
		return nil, fmt.Errorf("no spider stage records in %s", s.Describe())
	}
	return recs, nil
}
