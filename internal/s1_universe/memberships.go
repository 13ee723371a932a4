package s1_universe

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/wonny/stagegate/internal/contracts"
	"github.com/wonny/stagegate/internal/stageconfig"
)

var nonAlnum = regexp.MustCompile(`[^A-Z0-9]+`)

// MakeSpiderID maps a sector name to its composite id, e.g. "Consumer Cyclical" → SECTOR_CONSUMER_CYCLICAL
func MakeSpiderID(sector string) string {
	s := strings.ToUpper(strings.TrimSpace(sector))
	s = strings.Trim(nonAlnum.ReplaceAllString(s, "_"), "_")
	return "SECTOR_" + s
}

// MembershipSet is the sector → members weighting table
type MembershipSet struct {
	Members   []contracts.Membership
	Summaries []contracts.SectorSummary
	Warnings  []string
}

// BySpider groups memberships by spider id
func (m *MembershipSet) BySpider() map[string][]contracts.Membership {
	out := make(map[string][]contracts.Membership)
	for _, mem := range m.Members {
		out[mem.SpiderID] = append(out[mem.SpiderID], mem)
	}
	return out
}

// SpiderIDs returns the sorted spider ids
func (m *MembershipSet) SpiderIDs() []string {
	seen := make(map[string]struct{})
	var ids []string
	for _, mem := range m.Members {
		if _, ok := seen[mem.SpiderID]; !ok {
			seen[mem.SpiderID] = struct{}{}
			ids = append(ids, mem.SpiderID)
		}
	}
	sort.Strings(ids)
	return ids
}

// SpiderOf returns the spider id of a ticker, "" if unknown
func (m *MembershipSet) SpiderOf(ticker string) string {
	for _, mem := range m.Members {
		if mem.Ticker == ticker {
			return mem.SpiderID
		}
	}
	return ""
}

// BuildMemberships weights each sector's members by market-cap share
// weight = mcap / sum(mcap in sector). 합계 ≈ 1.0은 검증만 (강제 X)
func BuildMemberships(rows []contracts.UniverseRow, cfg stageconfig.Spiders) *MembershipSet {
	set := &MembershipSet{}

	type sectorAcc struct {
		sector  string
		rows    []contracts.UniverseRow
		mcapSum decimal.Decimal
	}
	sectors := make(map[string]*sectorAcc)

	missing := 0
	for _, row := range rows {
		ticker := strings.ToUpper(strings.TrimSpace(row.Ticker))
		sector := strings.TrimSpace(row.Sector)
		if ticker == "" || sector == "" {
			continue
		}
		if !row.HasMarketCap {
			missing++
			continue
		}
		row.Ticker, row.Sector = ticker, sector

		id := MakeSpiderID(sector)
		acc, ok := sectors[id]
		if !ok {
			acc = &sectorAcc{sector: sector, mcapSum: decimal.Zero}
			sectors[id] = acc
		}
		acc.rows = append(acc.rows, row)
		acc.mcapSum = acc.mcapSum.Add(row.MarketCapUSD)
	}
	if missing > 0 {
		set.Warnings = append(set.Warnings, fmt.Sprintf("market cap missing for %d rows; dropped from spider weights", missing))
	}

	for id, acc := range sectors {
		// 합계 0인 섹터는 가중치 불가
		if !acc.mcapSum.IsPositive() {
			set.Warnings = append(set.Warnings, fmt.Sprintf("%s: market cap sum is zero; sector dropped", id))
			continue
		}

		summary := contracts.SectorSummary{
			SpiderID:     id,
			Sector:       acc.sector,
			Members:      len(acc.rows),
			MarketCapUSD: acc.mcapSum,
		}
		for _, row := range acc.rows {
			w := row.MarketCapUSD.Div(acc.mcapSum).InexactFloat64()
			set.Members = append(set.Members, contracts.Membership{
				SpiderID:     id,
				Sector:       acc.sector,
				Ticker:       row.Ticker,
				MarketCapUSD: row.MarketCapUSD,
				Weight:       w,
			})
			summary.WeightSum += w
			if w > summary.Top1Weight {
				summary.Top1Weight, summary.Top1Ticker = w, row.Ticker
			}
		}

		if math.Abs(summary.WeightSum-1.0) > cfg.WeightSumTolerance {
			set.Warnings = append(set.Warnings, fmt.Sprintf("%s: weight sum %.9f deviates from 1.0", id, summary.WeightSum))
		}
		if cfg.DominanceWarn > 0 && summary.Top1Weight >= cfg.DominanceWarn {
			set.Warnings = append(set.Warnings, fmt.Sprintf("%s: top1 %s weight %.3f >= %.2f (dominance risk)", id, summary.Top1Ticker, summary.Top1Weight, cfg.DominanceWarn))
		}
		set.Summaries = append(set.Summaries, summary)
	}

	sort.Slice(set.Members, func(i, j int) bool {
		a, b := set.Members[i], set.Members[j]
		if a.SpiderID != b.SpiderID {
			return a.SpiderID < b.SpiderID
		}
		if a.Weight != b.Weight {
			return a.Weight > b.Weight
		}
		return a.Ticker < b.Ticker
	})
	sort.Slice(set.Summaries, func(i, j int) bool {
		return set.Summaries[i].MarketCapUSD.GreaterThan(set.Summaries[j].MarketCapUSD)
	})
	sort.Strings(set.Warnings)

	return set
}

// WorstWeightSumError returns max |weight_sum - 1| over sectors
func (m *MembershipSet) WorstWeightSumError() float64 {
	worst := 0.0
	for _, s := range m.Summaries {
		worst = math.Max(worst, math.Abs(s.WeightSum-1.0))
	}
	return worst
}
