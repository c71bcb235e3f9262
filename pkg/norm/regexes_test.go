package norm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractOrderID(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{"hash prefixed", "Order #A12345 is delayed", "A12345"},
		{"hyphenated numeric", "Your order 1234-5678 has shipped", "1234-5678"},
		{"no order id", "No order id here", ""},
		{"plain words only", "help me", ""},
		{"web style id", "I need a refund for order #WEB-999, thanks", "WEB-999"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractOrderID(tt.text))
		})
	}
}

func TestExtractAmountCurrency(t *testing.T) {
	tests := []struct {
		name         string
		text         string
		wantAmount   string
		wantCurrency string
	}{
		{"dollar symbol", "Total: $59.99", "59.99", "USD"},
		{"hryvnia suffix with grouping", "1 234,56 ₴", "1 234,56", "UAH"},
		{"no money", "no money", "", ""},
		{"iso code", "refund 120.00 EUR please", "120.00", "EUR"},
		{"currency word window", "it was 59.99 dollars on 10/05/2025", "59.99", "USD"},
		{"pound symbol prefix", "charged £18.50 yesterday", "18.50", "GBP"},
		{"bare number", "about 500 units", "500", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			amount, currency := ExtractAmountCurrency(tt.text)
			assert.Equal(t, tt.wantAmount, amount)
			assert.Equal(t, tt.wantCurrency, currency)
		})
	}
}

func TestExtractAmountCurrencyPrefersDecimalWithCurrency(t *testing.T) {
	// Several candidates: the decimal amount with a currency hint wins
	// over longer bare digit runs.
	amount, currency := ExtractAmountCurrency("ref 20251122, paid $42.10")
	assert.Equal(t, "42.10", amount)
	assert.Equal(t, "USD", currency)
}

func TestExtractSKU(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{"sku colon", "sku: AB-123", "AB-123"},
		{"item hash", "Item #X99Z", "X99Z"},
		{"product colon", "product : WIDGET-7", "WIDGET-7"},
		{"absent", "no identifiers at all", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractSKU(tt.text))
		})
	}
}
