package ml

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/shopdesk-io/shopdesk/pkg/models"
)

// summaryMaxChars caps stub and remote summaries alike.
const summaryMaxChars = 480

// StubSuite returns deterministic sandbox implementations of every model
// concern. Used in development and tests so the pipeline runs without an
// inference service.
func StubSuite() *Suite {
	return &Suite{
		Transcriber:    StubTranscriber{},
		FieldExtractor: StubFieldExtractor{},
		DamageDetector: StubDamageDetector{},
		Classifier:     StubClassifier{},
		Summarizer:     StubSummarizer{},
	}
}

// StubTranscriber returns a fixed refund-request transcript.
type StubTranscriber struct{}

func (StubTranscriber) Transcribe(_ context.Context, _ []byte, _ string) (Transcript, error) {
	return Transcript{
		Text:       "Hello, i need a refund for order A10023.",
		Confidence: 0.97,
	}, nil
}

// StubFieldExtractor returns a fixed receipt extraction.
type StubFieldExtractor struct{}

func (StubFieldExtractor) ExtractFields(_ context.Context, _ []byte, _ string) (models.DocFields, error) {
	amount := decimal.RequireFromString("59.99")
	currency := "USD"
	orderID := "A10023"
	sku := "SKU-123"
	orderDate := models.NewDate(2025, time.November, 10)
	return models.DocFields{
		OrderID:    &orderID,
		Amount:     &amount,
		Currency:   &currency,
		OrderDate:  &orderDate,
		SKU:        &sku,
		Confidence: map[string]float64{"order_id": 0.98, "amount": 0.93},
	}, nil
}

// StubDamageDetector always reports damage.
type StubDamageDetector struct{}

func (StubDamageDetector) IsDamaged(_ context.Context, _ []byte) (bool, error) {
	return true, nil
}

// StubClassifier routes by keyword lookup over the closed label set.
type StubClassifier struct{}

var stubRouteKeywords = []struct {
	label    string
	keywords []string
}{
	{models.RouteRefund, []string{"refund", "money back", "charge back"}},
	{models.RouteNotReceived, []string{"never arrived", "not received", "didn't arrive", "did not arrive", "missing package"}},
	{models.RouteWarranty, []string{"warranty", "broken", "damaged", "defective", "stopped working"}},
	{models.RouteAddressChange, []string{"address", "wrong street", "moved"}},
	{models.RouteHowTo, []string{"how do i", "how to", "instructions", "manual"}},
}

func (StubClassifier) Classify(_ context.Context, text string) (Classification, error) {
	lower := strings.ToLower(text)

	scores := make(map[string]float64, len(models.Routes()))
	for _, route := range models.Routes() {
		scores[route] = 0.02
	}

	best := models.RouteOther
	for _, entry := range stubRouteKeywords {
		for _, kw := range entry.keywords {
			if strings.Contains(lower, kw) {
				scores[entry.label] = 0.9
				if best == models.RouteOther {
					best = entry.label
				}
				break
			}
		}
	}
	if best == models.RouteOther {
		scores[models.RouteOther] = 0.9
	}

	return Classification{Label: best, Scores: scores}, nil
}

// StubSummarizer returns a fixed summary.
type StubSummarizer struct{}

func (StubSummarizer) Summarize(_ context.Context, _ string) (Summary, error) {
	text := "Customer reports damaged item in order A10023. " +
		"Proposed refund prepared and waiting for approval."
	return Summary{Text: text, Tokens: len(strings.Fields(text))}, nil
}

// truncateSummary enforces the summary length cap the way operators see it.
func truncateSummary(text string, maxChars int) string {
	if len(text) <= maxChars {
		return text
	}
	return text[:maxChars-3] + "..."
}
