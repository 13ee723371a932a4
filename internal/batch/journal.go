package batch

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Journal file names
const (
	ProgressFile      = "_progress.jsonl"
	ErrorsFile        = "_errors.jsonl"
	RetryProgressFile = "_retry_progress.jsonl"
	RetryErrorsFile   = "_retry_errors.jsonl"
)

// Status of one journal entry
type Status string

const (
	StatusOK    Status = "ok"
	StatusError Status = "error"
)

// Entry is one JSON line in a journal
type Entry struct {
	TS         time.Time              `json:"ts"`
	RunID      string                 `json:"run_id"`
	Job        string                 `json:"job"`
	EntityID   string                 `json:"entity_id"`
	Status     Status                 `json:"status"`
	Rows       int                    `json:"rows,omitempty"`
	Out        string                 `json:"out,omitempty"`
	Error      string                 `json:"error,omitempty"`
	ElapsedS   float64                `json:"elapsed_s"`
	ConfigHash string                 `json:"config_hash,omitempty"`
	Extra      map[string]interface{} `json:"extra,omitempty"`
}

// Journal appends per-entity outcomes to progress/error JSONL files
// ⭐ SSOT: 배치 진행/에러 기록은 여기서만
type Journal struct {
	mu           sync.Mutex
	progressPath string
	errorsPath   string
}

// NewJournal journals into dir/_progress.jsonl and dir/_errors.jsonl
func NewJournal(dir string) *Journal {
	return &Journal{
		progressPath: filepath.Join(dir, ProgressFile),
		errorsPath:   filepath.Join(dir, ErrorsFile),
	}
}

// NewRetryJournal journals into separate _retry_* files so the original run logs stay intact
func NewRetryJournal(dir string) *Journal {
	return &Journal{
		progressPath: filepath.Join(dir, RetryProgressFile),
		errorsPath:   filepath.Join(dir, RetryErrorsFile),
	}
}

// ProgressPath returns the progress journal path
func (j *Journal) ProgressPath() string {
	return j.progressPath
}

// ErrorsPath returns the error journal path
func (j *Journal) ErrorsPath() string {
	return j.errorsPath
}

// Record appends an entry to the progress or error journal by status
func (j *Journal) Record(e Entry) error {
	path := j.progressPath
	if e.Status != StatusOK {
		path = j.errorsPath
	}

	line, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal journal entry: %w", err)
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create journal dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("append journal: %w", err)
	}
	return nil
}

// ReadEntries reads a journal; unparseable lines are skipped
func ReadEntries(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var entries []Entry
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var e Entry
		if err := json.Unmarshal(line, &e); err != nil {
			continue
		}
		entries = append(entries, e)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scan journal %s: %w", path, err)
	}
	return entries, nil
}

// DoneSet returns entity ids with an ok entry; a missing journal is an empty set
func DoneSet(path string) (map[string]bool, error) {
	entries, err := ReadEntries(path)
	if os.IsNotExist(err) {
		return map[string]bool{}, nil
	}
	if err != nil {
		return nil, err
	}

	done := make(map[string]bool)
	for _, e := range entries {
		if e.Status == StatusOK && e.EntityID != "" {
			done[e.EntityID] = true
		}
	}
	return done, nil
}

// FailedEntities returns the unique entity ids in an error journal, in first-seen order
// 에러 저널이 없으면 에러 (retry 대상 불명)
func FailedEntities(path string) ([]string, error) {
	entries, err := ReadEntries(path)
	if err != nil {
		return nil, fmt.Errorf("read error journal: %w", err)
	}

	seen := make(map[string]bool)
	var ids []string
	for _, e := range entries {
		if e.EntityID == "" || seen[e.EntityID] {
			continue
		}
		seen[e.EntityID] = true
		ids = append(ids, e.EntityID)
	}
	return ids, nil
}
