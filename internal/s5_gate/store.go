package s5_gate

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/wonny/stagegate/internal/contracts"
	"github.com/wonny/stagegate/pkg/logger"
)

// ErrStoreNotLoaded is returned by lookups before the first successful load
var ErrStoreNotLoaded = errors.New("stage store not loaded")

type stageKey struct {
	entityID string
	day      int64 // unix days (UTC calendar date)
}

func keyOf(entityID string, date time.Time) stageKey {
	return stageKey{entityID: entityID, day: contracts.NormalizeDate(date).Unix() / 86400}
}

// Store indexes sector stage records by (entity, calendar date)
// ⭐ SSOT: 게이트가 보는 stage 조회는 이 캐시를 통해서만
type Store struct {
	source StageSource
	logger *logger.Logger

	loadMu sync.Mutex // Load/Refresh 직렬화

	mu         sync.RWMutex
	index      map[stageKey]contracts.StageRecord
	records    []contracts.StageRecord // (entity, date) 정렬
	entities   map[string]int          // entity → record 수
	loaded     bool
	generation uint64
	loadedAt   time.Time
}

// NewStore creates an unloaded store over a source
func NewStore(source StageSource, log *logger.Logger) *Store {
	return &Store{
		source: source,
		logger: log.WithField("module", "stage_store"),
	}
}

// Load populates the store once; later calls are no-ops
func (s *Store) Load(ctx context.Context) error {
	s.loadMu.Lock()
	defer s.loadMu.Unlock()

	if s.Loaded() {
		return nil
	}
	return s.reload(ctx)
}

// Refresh reloads the source and swaps the index; on error the previous index stays
func (s *Store) Refresh(ctx context.Context) error {
	s.loadMu.Lock()
	defer s.loadMu.Unlock()

	return s.reload(ctx)
}

func (s *Store) reload(ctx context.Context) error {
	start := time.Now()

	recs, err := s.source.LoadStages(ctx)
	if err != nil {
		return fmt.Errorf("load stage store from %s: %w", s.source.Describe(), err)
	}

	index := make(map[stageKey]contracts.StageRecord, len(recs))
	for _, rec := range recs {
		rec.Date = contracts.NormalizeDate(rec.Date)
		k := keyOf(rec.EntityID, rec.Date)
		if _, dup := index[k]; dup {
			return fmt.Errorf("load stage store from %s: duplicate record %s@%s",
				s.source.Describe(), rec.EntityID, contracts.ISODate(rec.Date))
		}
		index[k] = rec
	}

	sorted := make([]contracts.StageRecord, 0, len(index))
	for _, rec := range index {
		sorted = append(sorted, rec)
	}
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].EntityID != sorted[j].EntityID {
			return sorted[i].EntityID < sorted[j].EntityID
		}
		return sorted[i].Date.Before(sorted[j].Date)
	})

	entities := make(map[string]int)
	for _, rec := range sorted {
		entities[rec.EntityID]++
	}

	s.mu.Lock()
	s.index = index
	s.records = sorted
	s.entities = entities
	s.loaded = true
	s.generation++
	s.loadedAt = time.Now()
	gen := s.generation
	s.mu.Unlock()

	s.logger.WithFields(map[string]interface{}{
		"source":     s.source.Describe(),
		"records":    len(index),
		"generation": gen,
		"elapsed_ms": time.Since(start).Milliseconds(),
	}).Info("Stage store loaded")

	return nil
}

// Loaded reports whether the store holds an index
func (s *Store) Loaded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loaded
}

// Get looks up a record without loading
func (s *Store) Get(entityID string, date time.Time) (contracts.StageRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.loaded {
		return contracts.StageRecord{}, false, ErrStoreNotLoaded
	}
	rec, ok := s.index[keyOf(entityID, date)]
	return rec, ok, nil
}

// GetStageRow loads the store on first use, then looks up (entity, date)
func (s *Store) GetStageRow(ctx context.Context, entityID string, date time.Time) (*contracts.StageRecord, error) {
	if err := s.Load(ctx); err != nil {
		return nil, err
	}
	rec, ok, err := s.Get(entityID, date)
	if err != nil || !ok {
		return nil, err
	}
	return &rec, nil
}

// Records returns every record ordered by (entity, date)
func (s *Store) Records() ([]contracts.StageRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.loaded {
		return nil, ErrStoreNotLoaded
	}
	out := make([]contracts.StageRecord, len(s.records))
	copy(out, s.records)
	return out, nil
}

// EntityRecords returns one entity's records in [from, to]; zero bounds are open
func (s *Store) EntityRecords(entityID string, from, to time.Time) ([]contracts.StageRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.loaded {
		return nil, ErrStoreNotLoaded
	}
	start := sort.Search(len(s.records), func(i int) bool {
		return s.records[i].EntityID >= entityID
	})

	var out []contracts.StageRecord
	for i := start; i < len(s.records) && s.records[i].EntityID == entityID; i++ {
		rec := s.records[i]
		if !from.IsZero() && rec.Date.Before(from) {
			continue
		}
		if !to.IsZero() && rec.Date.After(to) {
			break
		}
		out = append(out, rec)
	}
	return out, nil
}

// Entities returns the sorted entity ids in the store
func (s *Store) Entities() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.entities))
	for id := range s.entities {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// HasEntity reports whether any record exists for an entity
func (s *Store) HasEntity(entityID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.entities[entityID] > 0
}

// Stats describes the loaded index
type Stats struct {
	Source     string    `json:"source"`
	Loaded     bool      `json:"loaded"`
	Records    int       `json:"records"`
	Generation uint64    `json:"generation"`
	LoadedAt   time.Time `json:"loaded_at"`
}

// Stats returns the current index state
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return Stats{
		Source:     s.source.Describe(),
		Loaded:     s.loaded,
		Records:    len(s.index),
		Generation: s.generation,
		LoadedAt:   s.loadedAt,
	}
}
