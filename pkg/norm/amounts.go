package norm

import (
	"strings"

	"github.com/shopspring/decimal"
)

var isoCurrencies = map[string]struct{}{
	"USD": {},
	"EUR": {},
	"GBP": {},
	"UAH": {},
	"PLN": {},
}

// NormalizeAmount parses a raw extracted amount into a decimal.
// A single comma with no dot is treated as the decimal separator
// (European style); otherwise commas are thousand separators. Trailing
// "dollars"/"usd" suffixes are stripped. Returns nil when unparseable.
func NormalizeAmount(raw string) *decimal.Decimal {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil
	}

	if strings.Count(s, ",") == 1 && !strings.Contains(s, ".") {
		s = strings.ReplaceAll(s, " ", "")
		s = strings.ReplaceAll(s, ",", ".")
	} else {
		s = strings.ReplaceAll(s, ",", "")
	}

	for _, suffix := range []string{"dollars", "usd"} {
		if strings.HasSuffix(strings.ToLower(s), suffix) {
			s = strings.TrimSpace(s[:len(s)-len(suffix)])
		}
	}
	s = strings.ReplaceAll(s, " ", "")

	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil
	}
	return &d
}

// NormalizeCurrency uppercases a currency hint. Known ISO codes pass
// through; unknown values are returned uppercased as-is.
func NormalizeCurrency(curr string) string {
	c := strings.ToUpper(strings.TrimSpace(curr))
	if c == "" {
		return ""
	}
	if _, ok := isoCurrencies[c]; ok {
		return c
	}
	return c
}
