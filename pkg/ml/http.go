package ml

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shopdesk-io/shopdesk/pkg/models"
)

// HTTPConfig configures the remote inference client.
type HTTPConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

// HTTPClient talks to the inference service over JSON. It implements all
// five model interfaces; binary payloads travel base64-encoded.
type HTTPClient struct {
	baseURL string
	client  *http.Client
}

// NewHTTPClient builds an inference client.
func NewHTTPClient(cfg HTTPConfig) *HTTPClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &HTTPClient{
		baseURL: cfg.BaseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

// HTTPSuite wires the client into every model slot.
func HTTPSuite(cfg HTTPConfig) *Suite {
	c := NewHTTPClient(cfg)
	return &Suite{
		Transcriber:    c,
		FieldExtractor: c,
		DamageDetector: c,
		Classifier:     c,
		Summarizer:     c,
	}
}

type binaryRequest struct {
	Data string `json:"data"`
	Mime string `json:"mime,omitempty"`
}

type textRequest struct {
	Text string `json:"text"`
}

func (c *HTTPClient) Transcribe(ctx context.Context, audio []byte, mime string) (Transcript, error) {
	var out Transcript
	err := c.post(ctx, "/v1/asr", binaryRequest{Data: base64.StdEncoding.EncodeToString(audio), Mime: mime}, &out)
	return out, err
}

func (c *HTTPClient) ExtractFields(ctx context.Context, doc []byte, mime string) (models.DocFields, error) {
	var out models.DocFields
	err := c.post(ctx, "/v1/docqa", binaryRequest{Data: base64.StdEncoding.EncodeToString(doc), Mime: mime}, &out)
	return out, err
}

func (c *HTTPClient) IsDamaged(ctx context.Context, image []byte) (bool, error) {
	var out struct {
		IsDamaged bool `json:"is_damaged"`
	}
	err := c.post(ctx, "/v1/vqa", binaryRequest{Data: base64.StdEncoding.EncodeToString(image)}, &out)
	return out.IsDamaged, err
}

func (c *HTTPClient) Classify(ctx context.Context, text string) (Classification, error) {
	var out Classification
	err := c.post(ctx, "/v1/classify", textRequest{Text: text}, &out)
	return out, err
}

func (c *HTTPClient) Summarize(ctx context.Context, text string) (Summary, error) {
	var out Summary
	if err := c.post(ctx, "/v1/summarize", textRequest{Text: text}, &out); err != nil {
		return out, err
	}
	out.Text = truncateSummary(out.Text, summaryMaxChars)
	return out, nil
}

func (c *HTTPClient) post(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("failed to marshal inference request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build inference request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("inference request %s failed: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("inference request %s returned %d: %s", path, resp.StatusCode, snippet)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode inference response from %s: %w", path, err)
	}
	return nil
}
