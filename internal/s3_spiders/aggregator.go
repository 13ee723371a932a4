package s3_spiders

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/wonny/stagegate/internal/contracts"
)

// DefaultMinCoverage is the minimum present-weight fraction for a composite day
const DefaultMinCoverage = 0.10

// ErrNoWeightedMembers is returned when a sector has no member with positive weight
var ErrNoWeightedMembers = errors.New("no members with positive weight")

// AggregateResult is one sector composite plus its audit stats
type AggregateResult struct {
	SpiderID          string
	Rows              []contracts.CompositeBar
	MembersTotal      int
	MissingMembers    []string // series가 없는 멤버
	DroppedDays       int      // coverage 미달로 제외된 날
	MembersUsedMedian float64
	CoverageMedian    float64
}

// Bars returns the composite rows as plain bars
func (r *AggregateResult) Bars() []contracts.Bar {
	out := make([]contracts.Bar, len(r.Rows))
	for i, row := range r.Rows {
		out[i] = row.Bar
	}
	return out
}

// Series converts the composite into a spider series for classification
func (r *AggregateResult) Series() contracts.Series {
	return contracts.NewSeries(r.SpiderID, contracts.KindSpider, r.Bars())
}

type dayAcc struct {
	open, high, low, close float64
	volume                 float64
	weight                 float64
	members                int
}

// Aggregate builds a market-cap weighted composite for one sector
// ⭐ SSOT: S3 섹터 합성 (OHLC 가중평균 / present weight, volume 단순합)
//
// Only members with a usable close on a date contribute to that date. A NaN
// open/high/low of a contributing member makes the composite field NaN.
func Aggregate(spiderID string, members []contracts.Membership, bars map[string]contracts.Series, minCoverage float64) (*AggregateResult, error) {
	res := &AggregateResult{SpiderID: spiderID, MembersTotal: len(members)}

	totalWeight := 0.0
	for _, m := range members {
		if m.Weight > 0 {
			totalWeight += m.Weight
		}
	}
	if totalWeight <= 0 {
		return nil, fmt.Errorf("aggregate %s: %w", spiderID, ErrNoWeightedMembers)
	}

	days := make(map[time.Time]*dayAcc)
	for _, m := range members {
		if m.Weight <= 0 {
			continue
		}
		s, ok := bars[m.Ticker]
		if !ok || s.Len() == 0 {
			res.MissingMembers = append(res.MissingMembers, m.Ticker)
			continue
		}

		w := m.Weight
		for _, b := range s.Bars {
			if !b.HasClose() {
				continue
			}
			d := contracts.NormalizeDate(b.Date)
			acc, ok := days[d]
			if !ok {
				acc = &dayAcc{}
				days[d] = acc
			}
			acc.open += w * b.Open
			acc.high += w * b.High
			acc.low += w * b.Low
			acc.close += w * b.Close
			if !math.IsNaN(b.Volume) {
				acc.volume += b.Volume
			}
			acc.weight += w
			acc.members++
		}
	}
	sort.Strings(res.MissingMembers)

	dates := make([]time.Time, 0, len(days))
	for d := range days {
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	for _, d := range dates {
		acc := days[d]
		coverage := acc.weight / totalWeight
		if coverage < minCoverage {
			res.DroppedDays++
			continue
		}
		res.Rows = append(res.Rows, contracts.CompositeBar{
			Bar: contracts.Bar{
				Date:   d,
				Open:   acc.open / acc.weight,
				High:   acc.high / acc.weight,
				Low:    acc.low / acc.weight,
				Close:  acc.close / acc.weight,
				Volume: acc.volume,
			},
			MembersUsed:    acc.members,
			WeightCoverage: coverage,
		})
	}

	if len(res.Rows) > 0 {
		used := make([]float64, len(res.Rows))
		cov := make([]float64, len(res.Rows))
		for i, row := range res.Rows {
			used[i] = float64(row.MembersUsed)
			cov[i] = row.WeightCoverage
		}
		res.MembersUsedMedian = median(used)
		res.CoverageMedian = median(cov)
	}

	return res, nil
}

func median(xs []float64) float64 {
	s := append([]float64(nil), xs...)
	sort.Float64s(s)
	n := len(s)
	if n%2 == 1 {
		return s[n/2]
	}
	return (s[n/2-1] + s[n/2]) / 2
}
