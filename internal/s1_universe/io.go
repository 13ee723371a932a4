package s1_universe

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/wonny/stagegate/internal/contracts"
)

// header 후보 (소문자 비교)
var (
	tickerCols   = []string{"ticker", "symbol"}
	companyCols  = []string{"company", "name"}
	sectorCols   = []string{"sector"}
	industryCols = []string{"industry"}
	countryCols  = []string{"country"}
	mcapCols     = []string{"market_cap_usd", "market_cap", "market cap", "marketcap", "mcap"}
)

func pickCol(idx map[string]int, candidates []string) (int, bool) {
	for _, c := range candidates {
		if i, ok := idx[c]; ok {
			return i, true
		}
	}
	return -1, false
}

func headerIndex(header []string) map[string]int {
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.ToLower(strings.TrimSpace(h))] = i
	}
	return idx
}

// ReadUniverseCSV reads a screener export; ticker, sector and market cap columns are required
func ReadUniverseCSV(r io.Reader) ([]contracts.UniverseRow, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read universe header: %w", err)
	}
	idx := headerIndex(header)

	tickerCol, ok := pickCol(idx, tickerCols)
	if !ok {
		return nil, fmt.Errorf("universe: no ticker column in %v", header)
	}
	sectorCol, ok := pickCol(idx, sectorCols)
	if !ok {
		return nil, fmt.Errorf("universe: no sector column in %v", header)
	}
	mcapCol, ok := pickCol(idx, mcapCols)
	if !ok {
		return nil, fmt.Errorf("universe: no market cap column in %v", header)
	}
	companyCol, _ := pickCol(idx, companyCols)
	industryCol, _ := pickCol(idx, industryCols)
	countryCol, _ := pickCol(idx, countryCols)

	var rows []contracts.UniverseRow
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("universe line %d: %w", line, err)
		}

		cell := func(col int) string {
			if col < 0 || col >= len(rec) {
				return ""
			}
			return strings.TrimSpace(rec[col])
		}

		mcap, has := ParseMarketCap(cell(mcapCol))
		rows = append(rows, contracts.UniverseRow{
			Ticker:       strings.ToUpper(cell(tickerCol)),
			Company:      cell(companyCol),
			Sector:       cell(sectorCol),
			Industry:     cell(industryCol),
			Country:      cell(countryCol),
			MarketCapUSD: mcap,
			HasMarketCap: has,
		})
	}
	return rows, nil
}

// WriteUniverseCSV writes the filtered universe
func WriteUniverseCSV(w io.Writer, rows []contracts.UniverseRow) error {
	cw := csv.NewWriter(w)
	_ = cw.Write([]string{"ticker", "company", "sector", "industry", "country", "market_cap_usd", "market_cap_fmt"})
	for _, r := range rows {
		_ = cw.Write([]string{r.Ticker, r.Company, r.Sector, r.Industry, r.Country, r.MarketCapUSD.String(), FormatMarketCap(r.MarketCapUSD)})
	}
	cw.Flush()
	return cw.Error()
}

var membershipColumns = []string{"spider_id", "sector", "ticker", "market_cap_usd", "weight"}

// WriteMembershipsCSV writes the memberships table
func WriteMembershipsCSV(w io.Writer, members []contracts.Membership) error {
	cw := csv.NewWriter(w)
	_ = cw.Write(membershipColumns)
	for _, m := range members {
		_ = cw.Write([]string{m.SpiderID, m.Sector, m.Ticker, m.MarketCapUSD.String(), strconv.FormatFloat(m.Weight, 'g', -1, 64)})
	}
	cw.Flush()
	return cw.Error()
}

// WriteSummaryCSV writes the per-sector audit table
func WriteSummaryCSV(w io.Writer, summaries []contracts.SectorSummary) error {
	cw := csv.NewWriter(w)
	_ = cw.Write([]string{"spider_id", "sector", "members", "mcap_sum_usd", "weight_sum", "top1_weight", "top1_ticker"})
	for _, s := range summaries {
		_ = cw.Write([]string{
			s.SpiderID, s.Sector, strconv.Itoa(s.Members), s.MarketCapUSD.String(),
			strconv.FormatFloat(s.WeightSum, 'f', 9, 64), strconv.FormatFloat(s.Top1Weight, 'f', 6, 64), s.Top1Ticker,
		})
	}
	cw.Flush()
	return cw.Error()
}

// ReadMembershipsCSV reads a memberships table written by WriteMembershipsCSV
func ReadMembershipsCSV(r io.Reader) (*MembershipSet, error) {
	cr := csv.NewReader(r)
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read memberships header: %w", err)
	}
	idx := headerIndex(header)
	for _, c := range membershipColumns {
		if _, ok := idx[c]; !ok {
			return nil, fmt.Errorf("memberships: missing column %q", c)
		}
	}

	set := &MembershipSet{}
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("memberships line %d: %w", line, err)
		}

		mcap, err := decimal.NewFromString(rec[idx["market_cap_usd"]])
		if err != nil {
			return nil, fmt.Errorf("memberships line %d: market_cap_usd: %w", line, err)
		}
		weight, err := strconv.ParseFloat(rec[idx["weight"]], 64)
		if err != nil {
			return nil, fmt.Errorf("memberships line %d: weight: %w", line, err)
		}

		set.Members = append(set.Members, contracts.Membership{
			SpiderID:     rec[idx["spider_id"]],
			Sector:       rec[idx["sector"]],
			Ticker:       rec[idx["ticker"]],
			MarketCapUSD: mcap,
			Weight:       weight,
		})
	}
	return set, nil
}
