package ingest

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/wonny/stagegate/internal/contracts"
)

// ErrEmptyFile is returned when a bar file has no header
var ErrEmptyFile = errors.New("empty bar file")

// SchemaError describes one rejected cell or row
// Row은 1-based 파일 라인 번호 (header = 1)
type SchemaError struct {
	Row    int    `json:"row"`
	Column string `json:"column,omitempty"`
	Value  string `json:"value,omitempty"`
	Reason string `json:"reason"`
}

func (e *SchemaError) Error() string {
	if e.Column == "" {
		return fmt.Sprintf("row %d: %s", e.Row, e.Reason)
	}
	return fmt.Sprintf("row %d, column %q: %s (value=%q)", e.Row, e.Column, e.Reason, e.Value)
}

// Schema error reasons
const (
	ReasonMissingColumn   = "missing required column"
	ReasonDuplicateColumn = "duplicate column"
	ReasonBadDate         = "invalid date"
	ReasonBadNumber       = "invalid number"
	ReasonNotFinite       = "non-finite number"
	ReasonNegativeVolume  = "negative volume"
	ReasonMissingClose    = "missing close"
	ReasonDuplicateDate   = "duplicate date"
	ReasonUnordered       = "date not ascending"
)

// Options controls validation strictness
type Options struct {
	// Strict rejects the whole file on the first bad row instead of quarantining it
	Strict bool
}

// Result is a validated series plus the rows that were set aside
type Result struct {
	Series      contracts.Series
	Quarantined []SchemaError
}

var requiredColumns = []string{contracts.ColDate, contracts.ColClose}

// ReadBars parses and validates a daily bar CSV
// ⭐ SSOT: 파일 → Series 변환은 여기서만 (스키마 검증 경계)
func ReadBars(r io.Reader, entityID string, kind contracts.EntityKind, opts Options) (*Result, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, ErrEmptyFile
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	idx := make(map[string]int, len(header))
	for i, h := range header {
		name := strings.ToLower(strings.TrimSpace(h))
		if _, dup := idx[name]; dup {
			return nil, &SchemaError{Row: 1, Column: name, Reason: ReasonDuplicateColumn}
		}
		idx[name] = i
	}
	for _, c := range requiredColumns {
		if _, ok := idx[c]; !ok {
			return nil, &SchemaError{Row: 1, Column: c, Reason: ReasonMissingColumn}
		}
	}

	var present []string
	for _, c := range contracts.OHLCVColumns {
		if _, ok := idx[c]; ok {
			present = append(present, c)
		}
	}

	res := &Result{
		Series: contracts.Series{EntityID: entityID, Kind: kind, Columns: present},
	}

	var last time.Time
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if isBlank(rec) {
			continue
		}

		bar, serr := parseRow(rec, idx, line)
		if serr == nil && len(res.Series.Bars) > 0 {
			switch {
			case bar.Date.Equal(last):
				serr = &SchemaError{Row: line, Column: contracts.ColDate, Value: contracts.ISODate(bar.Date), Reason: ReasonDuplicateDate}
			case bar.Date.Before(last):
				serr = &SchemaError{Row: line, Column: contracts.ColDate, Value: contracts.ISODate(bar.Date), Reason: ReasonUnordered}
			}
		}
		if serr != nil {
			if opts.Strict {
				return nil, serr
			}
			res.Quarantined = append(res.Quarantined, *serr)
			continue
		}

		res.Series.Bars = append(res.Series.Bars, bar)
		last = bar.Date
	}

	return res, nil
}

func parseRow(rec []string, idx map[string]int, line int) (contracts.Bar, *SchemaError) {
	cell := func(col string) (string, bool) {
		i, ok := idx[col]
		if !ok || i >= len(rec) {
			return "", false
		}
		return strings.TrimSpace(rec[i]), true
	}

	var bar contracts.Bar

	rawDate, _ := cell(contracts.ColDate)
	date, err := ParseDate(rawDate)
	if err != nil {
		return bar, &SchemaError{Row: line, Column: contracts.ColDate, Value: rawDate, Reason: ReasonBadDate}
	}
	bar.Date = date

	fields := []struct {
		col string
		dst *float64
	}{
		{contracts.ColOpen, &bar.Open},
		{contracts.ColHigh, &bar.High},
		{contracts.ColLow, &bar.Low},
		{contracts.ColClose, &bar.Close},
		{contracts.ColVolume, &bar.Volume},
	}
	for _, f := range fields {
		raw, _ := cell(f.col)
		v, serr := parseNumber(raw)
		if serr != nil {
			serr.Row, serr.Column = line, f.col
			return bar, serr
		}
		*f.dst = v
	}

	// 거래량 결측은 0
	if math.IsNaN(bar.Volume) {
		bar.Volume = 0
	}
	if bar.Volume < 0 {
		return bar, &SchemaError{Row: line, Column: contracts.ColVolume, Value: strconv.FormatFloat(bar.Volume, 'g', -1, 64), Reason: ReasonNegativeVolume}
	}
	if !bar.HasClose() {
		return bar, &SchemaError{Row: line, Column: contracts.ColClose, Reason: ReasonMissingClose}
	}
	return bar, nil
}

// parseNumber maps blank/nan to NaN and rejects anything non-finite
func parseNumber(raw string) (float64, *SchemaError) {
	if raw == "" || strings.EqualFold(raw, "nan") || strings.EqualFold(raw, "null") {
		return math.NaN(), nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, &SchemaError{Value: raw, Reason: ReasonBadNumber}
	}
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return 0, &SchemaError{Value: raw, Reason: ReasonNotFinite}
	}
	return v, nil
}

// ParseDate accepts YYYY-MM-DD, optionally followed by a time part
func ParseDate(raw string) (time.Time, error) {
	s := strings.TrimSpace(raw)
	if len(s) > 10 && (s[10] == 'T' || s[10] == ' ') {
		s = s[:10]
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, err
	}
	return contracts.NormalizeDate(t), nil
}

func isBlank(rec []string) bool {
	for _, c := range rec {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// WriteQuarantine writes schema errors as JSON lines
func WriteQuarantine(w io.Writer, entityID string, errs []SchemaError) error {
	enc := json.NewEncoder(w)
	for _, e := range errs {
		line := struct {
			EntityID string `json:"entity_id"`
			SchemaError
		}{entityID, e}
		if err := enc.Encode(line); err != nil {
			return fmt.Errorf("write quarantine: %w", err)
		}
	}
	return nil
}

// WriteBars writes bars in the canonical column order; NaN cells are left blank
func WriteBars(w io.Writer, bars []contracts.Bar) error {
	cw := csv.NewWriter(w)
	_ = cw.Write(append([]string{contracts.ColDate}, contracts.OHLCVColumns...))
	for _, b := range bars {
		_ = cw.Write([]string{
			contracts.ISODate(b.Date),
			FormatFloat(b.Open),
			FormatFloat(b.High),
			FormatFloat(b.Low),
			FormatFloat(b.Close),
			FormatFloat(b.Volume),
		})
	}
	cw.Flush()
	return cw.Error()
}

// FormatFloat renders a float for CSV output; NaN → ""
func FormatFloat(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}
