package s1_universe

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

var suffixPattern = regexp.MustCompile(`^([0-9]*\.?[0-9]+)\s*([KMBT])$`)

var suffixMultiplier = map[string]decimal.Decimal{
	"K": decimal.New(1, 3),
	"M": decimal.New(1, 6),
	"B": decimal.New(1, 9),
	"T": decimal.New(1, 12),
}

// ParseMarketCap converts screener market-cap cells to USD
// 허용: 1234567, "1,234,567", "300M", "$1.2B", "950 K"
func ParseMarketCap(raw string) (decimal.Decimal, bool) {
	s := strings.TrimSpace(raw)
	if s == "" || strings.EqualFold(s, "nan") || s == "-" {
		return decimal.Zero, false
	}
	s = strings.ToUpper(strings.NewReplacer("$", "", ",", "").Replace(s))

	if v, err := decimal.NewFromString(s); err == nil {
		return v, v.Sign() >= 0
	}

	m := suffixPattern.FindStringSubmatch(s)
	if m == nil {
		return decimal.Zero, false
	}
	num, err := decimal.NewFromString(m[1])
	if err != nil {
		return decimal.Zero, false
	}
	return num.Mul(suffixMultiplier[m[2]]), true
}

// FormatMarketCap renders USD with a K/M/B/T suffix
func FormatMarketCap(usd decimal.Decimal) string {
	for _, suf := range []string{"T", "B", "M", "K"} {
		mult := suffixMultiplier[suf]
		if usd.Abs().GreaterThanOrEqual(mult) {
			return usd.Div(mult).StringFixed(2) + suf
		}
	}
	return usd.StringFixed(0)
}
