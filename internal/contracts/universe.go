package contracts

import "github.com/shopspring/decimal"

// UniverseRow is one instrument of the cleaned screener universe
type UniverseRow struct {
	Ticker       string          `json:"ticker"`
	Company      string          `json:"company"`
	Sector       string          `json:"sector"`
	Industry     string          `json:"industry"`
	Country      string          `json:"country"`
	MarketCapUSD decimal.Decimal `json:"market_cap_usd"`
	HasMarketCap bool            `json:"has_market_cap"`
}

// Membership ties an instrument to its sector composite with a static weight
type Membership struct {
	SpiderID     string          `json:"spider_id"`
	Sector       string          `json:"sector"`
	Ticker       string          `json:"ticker"`
	MarketCapUSD decimal.Decimal `json:"market_cap_usd"`
	Weight       float64         `json:"weight"`
}

// SectorSummary audits one sector's membership weights
type SectorSummary struct {
	SpiderID     string          `json:"spider_id"`
	Sector       string          `json:"sector"`
	Members      int             `json:"members"`
	MarketCapUSD decimal.Decimal `json:"market_cap_usd"`
	WeightSum    float64         `json:"weight_sum"`
	Top1Weight   float64         `json:"top1_weight"`
	Top1Ticker   string          `json:"top1_ticker"`
}
