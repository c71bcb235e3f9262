package norm

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shopdesk-io/shopdesk/pkg/models"
)

func strPtr(s string) *string { return &s }

func TestMergeRegexOverridesLowConfidenceDocQA(t *testing.T) {
	// Refund with receipt and voicemail: DocQA found an order id with low
	// confidence, the transcript carries the real facts.
	doc := models.DocFields{
		OrderID:    strPtr("A10023"),
		Confidence: map[string]float64{"order_id": 0.5},
	}
	body := "Hi, my package never arrived. See attached receipt."
	transcript := "Hello, I need a refund for order #WEB-999, it was 59.99 dollars on 10/05/2025."

	got := Merge(doc, body, transcript)

	require.NotNil(t, got.OrderID)
	assert.Equal(t, "WEB-999", *got.OrderID)
	assert.Equal(t, models.SourceRegex, got.Source["order_id"])
	assert.Equal(t, 0.8, got.Confidence["order_id"])

	require.NotNil(t, got.Amount)
	assert.True(t, got.Amount.Equal(decimal.RequireFromString("59.99")))
	assert.Equal(t, models.SourceRegex, got.Source["amount"])

	require.NotNil(t, got.Currency)
	assert.Equal(t, "USD", *got.Currency)
	assert.Equal(t, models.SourceRegex, got.Source["currency"])

	require.NotNil(t, got.OrderDate)
	assert.Equal(t, "2025-05-10", got.OrderDate.Format("2006-01-02"))
	assert.Equal(t, models.SourceRegex, got.Source["order_date"])

	assert.Nil(t, got.SKU)
	_, hasSKU := got.Source["sku"]
	assert.False(t, hasSKU)
}

func TestMergeHighConfidenceDocQAWins(t *testing.T) {
	doc := models.DocFields{
		OrderID:    strPtr("DOCQA-123"),
		Confidence: map[string]float64{"order_id": 0.9},
	}

	got := Merge(doc, "order #BODY-456", "")

	require.NotNil(t, got.OrderID)
	assert.Equal(t, "DOCQA-123", *got.OrderID)
	assert.Equal(t, models.SourceDocQA, got.Source["order_id"])
	assert.Equal(t, 0.9, got.Confidence["order_id"])
}

func TestMergeEmptyInputs(t *testing.T) {
	got := Merge(models.EmptyDocFields(), "", "")

	assert.Nil(t, got.OrderID)
	assert.Nil(t, got.Amount)
	assert.Nil(t, got.Currency)
	assert.Nil(t, got.OrderDate)
	assert.Nil(t, got.SKU)
	assert.Empty(t, got.Source)
}

// Source carries an entry exactly for the fields with a non-null value,
// including DocQA values kept despite low confidence.
func TestMergeSourceCoversNonNullFields(t *testing.T) {
	amount := decimal.RequireFromString("10.00")
	doc := models.DocFields{
		OrderID:    strPtr("ZZ-11"),
		Amount:     &amount,
		Confidence: map[string]float64{"order_id": 0.1, "amount": 0.2},
	}

	got := Merge(doc, "nothing to extract here", "")

	require.NotNil(t, got.OrderID)
	assert.Equal(t, models.SourceDocQA, got.Source["order_id"])
	require.NotNil(t, got.Amount)
	assert.Equal(t, models.SourceDocQA, got.Source["amount"])

	for _, field := range []string{"order_id", "amount", "currency", "order_date", "sku"} {
		_, hasSource := got.Source[field]
		switch field {
		case "order_id", "amount":
			assert.True(t, hasSource, field)
		default:
			assert.False(t, hasSource, field)
		}
	}
}

func TestMergeCurrencyFromDocQA(t *testing.T) {
	doc := models.DocFields{
		Currency:   strPtr("usd"),
		Confidence: map[string]float64{"currency": 0.9},
	}

	got := Merge(doc, "", "")

	require.NotNil(t, got.Currency)
	assert.Equal(t, "USD", *got.Currency)
	assert.Equal(t, models.SourceDocQA, got.Source["currency"])
	assert.Equal(t, 0.9, got.Confidence["currency"])
}

func TestMergeSKUFromRegex(t *testing.T) {
	got := Merge(models.EmptyDocFields(), "please check sku: AB-123", "")

	require.NotNil(t, got.SKU)
	assert.Equal(t, "AB-123", *got.SKU)
	assert.Equal(t, models.SourceRegex, got.Source["sku"])
	assert.Equal(t, 0.8, got.Confidence["sku"])
}
