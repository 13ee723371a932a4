package contracts

import (
	"math"
	"time"
)

// OHLCV column names as they appear in bar files and tables
const (
	ColDate   = "date"
	ColOpen   = "open"
	ColHigh   = "high"
	ColLow    = "low"
	ColClose  = "close"
	ColVolume = "volume"
)

// OHLCVColumns is the full column set of a bar series
var OHLCVColumns = []string{ColOpen, ColHigh, ColLow, ColClose, ColVolume}

// EntityKind distinguishes real instruments from sector composites
type EntityKind string

const (
	KindStock  EntityKind = "stock"
	KindSpider EntityKind = "spider"
)

// Bar is one trading day of OHLCV data
// 가격 결측은 NaN, 거래량 결측은 0
type Bar struct {
	Date   time.Time `json:"date"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// HasClose reports whether the bar carries a usable close
func (b Bar) HasClose() bool {
	return !math.IsNaN(b.Close) && !math.IsInf(b.Close, 0)
}

// Series is an ascending, date-unique bar history for one entity
// ⭐ SSOT: 모든 분류/집계의 입력 단위
type Series struct {
	EntityID string
	Kind     EntityKind
	Columns  []string // source가 실제로 제공한 OHLCV 컬럼
	Bars     []Bar
}

// NewSeries builds a series with every OHLCV column present
func NewSeries(entityID string, kind EntityKind, bars []Bar) Series {
	cols := make([]string, len(OHLCVColumns))
	copy(cols, OHLCVColumns)
	return Series{EntityID: entityID, Kind: kind, Columns: cols, Bars: bars}
}

// Len returns the number of bars
func (s Series) Len() int {
	return len(s.Bars)
}

// Prefix returns the series truncated to bars[0..i] inclusive
func (s Series) Prefix(i int) Series {
	out := s
	out.Bars = s.Bars[:i+1]
	return out
}

// MissingColumns returns the required columns the series does not carry
func (s Series) MissingColumns(required []string) []string {
	have := make(map[string]struct{}, len(s.Columns))
	for _, c := range s.Columns {
		have[c] = struct{}{}
	}

	var missing []string
	for _, c := range required {
		if _, ok := have[c]; !ok {
			missing = append(missing, c)
		}
	}
	return missing
}

// FirstDate returns the first bar date, zero if empty
func (s Series) FirstDate() time.Time {
	if len(s.Bars) == 0 {
		return time.Time{}
	}
	return s.Bars[0].Date
}

// LastDate returns the last bar date, zero if empty
func (s Series) LastDate() time.Time {
	if len(s.Bars) == 0 {
		return time.Time{}
	}
	return s.Bars[len(s.Bars)-1].Date
}

// CompositeBar is a sector composite bar with coverage audit fields
type CompositeBar struct {
	Bar
	MembersUsed    int     `json:"members_used"`
	WeightCoverage float64 `json:"weight_coverage"`
}

// NormalizeDate strips the clock and zone, keeping the calendar date in UTC
func NormalizeDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ISODate formats a date as YYYY-MM-DD
func ISODate(t time.Time) string {
	return t.Format("2006-01-02")
}
