package s1_universe

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/wonny/stagegate/internal/contracts"
	"github.com/wonny/stagegate/internal/stageconfig"
	"github.com/wonny/stagegate/pkg/logger"
)

// Exclusion reasons
const (
	ExcludeNoTicker       = "missing_ticker"
	ExcludeNoSector       = "missing_sector"
	ExcludeCountry        = "country_mismatch"
	ExcludeNoMarketCap    = "missing_market_cap"
	ExcludeBelowMarketCap = "market_cap_below_min"
	ExcludeRule           = "exclusion_rule"
)

// Builder constructs the filtered trading universe
type Builder struct {
	config stageconfig.Universe
	logger *logger.Logger
}

// NewBuilder creates a new Universe Builder
func NewBuilder(config stageconfig.Universe, log *logger.Logger) *Builder {
	return &Builder{
		config: config,
		logger: log,
	}
}

// Result is the outcome of one filter pass
type Result struct {
	Kept     []contracts.UniverseRow
	Excluded map[string]string // ticker → reason
}

// Build applies country, market-cap and exclusion-rule filters
// ⭐ SSOT: S1 유니버스 필터
func (b *Builder) Build(rows []contracts.UniverseRow) *Result {
	res := &Result{
		Kept:     make([]contracts.UniverseRow, 0, len(rows)),
		Excluded: make(map[string]string),
	}

	for _, row := range rows {
		if reason := b.checkExclusion(row); reason != "" {
			if row.Ticker != "" {
				res.Excluded[row.Ticker] = reason
			}
			continue
		}
		res.Kept = append(res.Kept, row)
	}

	sort.Slice(res.Kept, func(i, j int) bool {
		return res.Kept[i].MarketCapUSD.GreaterThan(res.Kept[j].MarketCapUSD)
	})

	b.logger.WithFields(map[string]interface{}{
		"input":    len(rows),
		"kept":     len(res.Kept),
		"excluded": len(res.Excluded),
	}).Info("Universe filtered")

	return res
}

// checkExclusion returns the first failing filter, "" when the row is kept
func (b *Builder) checkExclusion(row contracts.UniverseRow) string {
	// 우선순위 순서로 체크
	if row.Ticker == "" {
		return ExcludeNoTicker
	}
	if row.Sector == "" {
		return ExcludeNoSector
	}
	if b.config.Country != "" && !strings.EqualFold(row.Country, b.config.Country) {
		return ExcludeCountry
	}
	if !row.HasMarketCap {
		return ExcludeNoMarketCap
	}
	if row.MarketCapUSD.LessThan(decimal.NewFromInt(b.config.MinMarketCapUSD)) {
		return ExcludeBelowMarketCap
	}
	if b.config.ExclusionsEnabled {
		for _, rule := range b.config.Exclusions {
			if matchRule(rule, row) {
				return ExcludeRule + ":" + rule.Rule + "=" + rule.Pattern
			}
		}
	}
	return ""
}

func matchRule(rule stageconfig.ExclusionRule, row contracts.UniverseRow) bool {
	switch rule.Rule {
	case "sector_equals":
		return row.Sector == rule.Pattern
	case "sector_in":
		return inList(rule.Pattern, row.Sector, false)
	case "ticker_in":
		return inList(rule.Pattern, row.Ticker, true)
	}
	return false
}

func inList(pattern, value string, fold bool) bool {
	for _, item := range strings.Split(pattern, ",") {
		item = strings.TrimSpace(item)
		if item == value || (fold && strings.EqualFold(item, value)) {
			return true
		}
	}
	return false
}
