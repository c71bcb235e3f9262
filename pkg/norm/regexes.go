// Package norm extracts and reconciles order facts (order id, amount,
// currency, date, SKU) from DocQA output, message bodies and transcripts.
package norm

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

var currencySymbols = map[string]string{
	"$": "USD",
	"€": "EUR",
	"£": "GBP",
	"₴": "UAH",
}

var currencyWords = []struct {
	word string
	code string
}{
	{"dollar", "USD"},
	{"dollars", "USD"},
	{"usd", "USD"},
	{"eur", "EUR"},
	{"euro", "EUR"},
	{"gbp", "GBP"},
	{"pound", "GBP"},
	{"pounds", "GBP"},
	{"uah", "UAH"},
	{"hryvnia", "UAH"},
	{"pln", "PLN"},
	{"zloty", "PLN"},
}

// Order-id candidates are alphanumeric-with-dash tokens of length >= 4
// containing at least one digit, e.g. "A12345", "WEB-999", "1234-5678".
var orderIDTokenRe = regexp.MustCompile(`\b[A-Za-z0-9-]{4,}\b`)

// amountRe matches grouped amounts with optional currency symbol or ISO
// code around them. Groups: 1 symbol prefix, 2 amount, 3 code, 4 symbol
// suffix. The amount allows space or comma thousand grouping and a
// two-digit decimal part with dot or comma.
var amountRe = regexp.MustCompile(`(?i)([$€£₴])?[ \t]*(\d{1,3}(?:[ ,]\d{3})*(?:[.,]\d{2})?)[ \t]*(USD|EUR|GBP|UAH|PLN)?[ \t]*([$€£₴])?`)

var skuRe = regexp.MustCompile(`(?i)(?:sku|item|product)\s*[:#]\s*([A-Za-z0-9-]{3,})`)

// ExtractOrderID returns the first order-id looking token in text, or ""
// when none is found.
func ExtractOrderID(text string) string {
	for _, tok := range orderIDTokenRe.FindAllString(text, -1) {
		if strings.ContainsAny(tok, "0123456789") {
			return strings.TrimSpace(tok)
		}
	}
	return ""
}

// ExtractAmountCurrency scans text for monetary amounts and returns the
// best raw amount with its currency hint as an ISO code, or ("", "").
// Candidates are ranked by (has currency, has decimal part, length); the
// currency hint resolves from an adjacent symbol or code first, then from
// a currency word within 12 characters of the amount.
func ExtractAmountCurrency(text string) (string, string) {
	var bestAmount, bestCurrency string
	bestScore := [3]int{-1, -1, -1}

	for _, m := range amountRe.FindAllStringSubmatchIndex(text, -1) {
		amountStart, amountEnd := m[4], m[5]
		if amountStart < 0 {
			continue
		}
		// Reject amounts glued to identifiers ("A12345") or digit runs.
		if prev, ok := lastRuneBefore(text, amountStart); ok {
			if unicode.IsLetter(prev) || unicode.IsDigit(prev) || prev == '-' {
				continue
			}
		}
		if amountEnd < len(text) {
			if next, _ := utf8.DecodeRuneInString(text[amountEnd:]); unicode.IsDigit(next) {
				continue
			}
		}

		amountRaw := text[amountStart:amountEnd]
		hint := groupText(text, m, 3)
		if hint == "" {
			if sym := groupText(text, m, 1); sym != "" {
				hint = currencySymbols[sym]
			} else if sym := groupText(text, m, 4); sym != "" {
				hint = currencySymbols[sym]
			}
		}
		if hint == "" {
			hint = currencyWordNear(text, amountStart, amountEnd)
		}
		hint = strings.ToUpper(hint)

		score := [3]int{boolScore(hint != ""), boolScore(hasDecimalPart(amountRaw)), len(amountRaw)}
		if scoreGreater(score, bestScore) {
			bestAmount = amountRaw
			bestCurrency = hint
			bestScore = score
		}
	}

	return bestAmount, bestCurrency
}

// ExtractSKU returns the SKU referenced as "sku: X", "item #X" or
// "product: X", or "" when absent.
func ExtractSKU(text string) string {
	m := skuRe.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m[1])
}

// currencyWordNear searches a +-12 character window around the amount for
// a currency word.
func currencyWordNear(text string, start, end int) string {
	windowStart := start - 12
	if windowStart < 0 {
		windowStart = 0
	}
	windowEnd := end + 12
	if windowEnd > len(text) {
		windowEnd = len(text)
	}
	window := strings.ToLower(text[windowStart:windowEnd])
	for _, w := range currencyWords {
		if strings.Contains(window, w.word) {
			return w.code
		}
	}
	return ""
}

func hasDecimalPart(amount string) bool {
	if len(amount) < 3 {
		return false
	}
	sep := amount[len(amount)-3]
	return sep == '.' || sep == ','
}

func lastRuneBefore(text string, idx int) (rune, bool) {
	if idx <= 0 {
		return 0, false
	}
	r, size := utf8.DecodeLastRuneInString(text[:idx])
	if size == 0 {
		return 0, false
	}
	return r, true
}

func groupText(text string, m []int, group int) string {
	start, end := m[2*group], m[2*group+1]
	if start < 0 {
		return ""
	}
	return text[start:end]
}

func boolScore(b bool) int {
	if b {
		return 1
	}
	return 0
}

func scoreGreater(a, b [3]int) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] > b[i]
		}
	}
	return false
}
