// Package ml defines the model-inference interfaces used by the pipeline
// stages, with a stub suite for sandbox mode and an HTTP client for a
// remote inference service.
package ml

import (
	"context"

	"github.com/shopdesk-io/shopdesk/pkg/models"
)

// Transcript is the ASR result for one audio attachment.
type Transcript struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

// Classification is the zero-shot routing result over the closed label set.
type Classification struct {
	Label  string             `json:"label"`
	Scores map[string]float64 `json:"scores"`
}

// Summary is the abstractive summary of a message.
type Summary struct {
	Text   string `json:"text"`
	Tokens int    `json:"tokens"`
}

// Transcriber converts audio bytes to text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, mime string) (Transcript, error)
}

// FieldExtractor answers structured questions over a document image or PDF.
type FieldExtractor interface {
	ExtractFields(ctx context.Context, doc []byte, mime string) (models.DocFields, error)
}

// DamageDetector answers "is the package damaged?" over a photo.
type DamageDetector interface {
	IsDamaged(ctx context.Context, image []byte) (bool, error)
}

// Classifier routes a message into one of models.Routes().
type Classifier interface {
	Classify(ctx context.Context, text string) (Classification, error)
}

// Summarizer produces a short operator-facing summary.
type Summarizer interface {
	Summarize(ctx context.Context, text string) (Summary, error)
}

// Suite bundles one implementation of every model concern.
type Suite struct {
	Transcriber    Transcriber
	FieldExtractor FieldExtractor
	DamageDetector DamageDetector
	Classifier     Classifier
	Summarizer     Summarizer
}
