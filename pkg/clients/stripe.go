package clients

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/shopspring/decimal"
)

// StripeConfig holds Stripe API settings.
type StripeConfig struct {
	Sandbox bool   `yaml:"sandbox"`
	APIKey  string `yaml:"api_key"`
}

// Charge is the subset of a Stripe charge used for reply drafting.
type Charge struct {
	ChargeID   string           `json:"charge_id"`
	Amount     *decimal.Decimal `json:"amount,omitempty"`
	Currency   string           `json:"currency,omitempty"`
	Status     string           `json:"status"`
	ReceiptURL string           `json:"receipt_url,omitempty"`
	CardBrand  string           `json:"card_brand,omitempty"`
	RiskScore  *int             `json:"risk_score,omitempty"`
}

// ChargeQuery narrows the charge search. At least one field must be set.
type ChargeQuery struct {
	OrderID string
	Email   string
	Amount  *decimal.Decimal
}

func (q ChargeQuery) cacheKey() string {
	amount := ""
	if q.Amount != nil {
		amount = q.Amount.String()
	}
	return q.OrderID + ":" + q.Email + ":" + amount
}

// StripeClient searches charges via the Stripe search API.
type StripeClient struct {
	cfg        StripeConfig
	httpClient *http.Client
	cache      *expirable.LRU[string, *Charge]
}

// NewStripeClient builds a charge lookup client with a TTL cache.
func NewStripeClient(cfg StripeConfig) *StripeClient {
	return &StripeClient{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		cache:      expirable.NewLRU[string, *Charge](512, nil, cacheTTL),
	}
}

// FindCharge returns the best-matching charge, or nil when nothing matched
// or on any failure. Results (including misses) are cached for the TTL.
func (c *StripeClient) FindCharge(ctx context.Context, query ChargeQuery) *Charge {
	key := query.cacheKey()
	if charge, ok := c.cache.Get(key); ok {
		return charge
	}

	charge := c.fetchCharge(ctx, query)
	c.cache.Add(key, charge)
	return charge
}

func (c *StripeClient) fetchCharge(ctx context.Context, query ChargeQuery) *Charge {
	if c.cfg.Sandbox {
		return &Charge{
			ChargeID: "ch_stub_123",
			Status:   "succeeded",
			Amount:   query.Amount,
			Currency: "USD",
		}
	}
	if c.cfg.APIKey == "" {
		return nil
	}

	var parts []string
	if query.Email != "" {
		parts = append(parts, fmt.Sprintf("email:'%s'", query.Email))
	}
	if query.Amount != nil {
		cents := query.Amount.Mul(decimal.NewFromInt(100)).IntPart()
		parts = append(parts, fmt.Sprintf("amount=%d", cents))
	}
	if query.OrderID != "" {
		cleanID := strings.ReplaceAll(query.OrderID, "#", "")
		parts = append(parts, fmt.Sprintf("metadata['order_id']:'%s'", cleanID))
	}
	if len(parts) == 0 {
		return nil
	}

	params := url.Values{
		"query": {strings.Join(parts, " AND ")},
		"limit": {"1"},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		"https://api.stripe.com/v1/charges/search?"+params.Encode(), nil)
	if err != nil {
		return nil
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		slog.Warn("Stripe charge search failed", "error", err)
		return nil
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 512))
		slog.Warn("Stripe charge search returned error", "status", resp.StatusCode)
		return nil
	}

	var out struct {
		Data []struct {
			ID                   string `json:"id"`
			Amount               int64  `json:"amount"`
			Currency             string `json:"currency"`
			Status               string `json:"status"`
			ReceiptURL           string `json:"receipt_url"`
			PaymentMethodDetails struct {
				Card struct {
					Brand string `json:"brand"`
				} `json:"card"`
			} `json:"payment_method_details"`
			Outcome struct {
				RiskScore *int `json:"risk_score"`
			} `json:"outcome"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		slog.Warn("Stripe charge decode failed", "error", err)
		return nil
	}
	if len(out.Data) == 0 {
		return nil
	}

	raw := out.Data[0]
	amount := decimal.NewFromInt(raw.Amount).Div(decimal.NewFromInt(100))
	return &Charge{
		ChargeID:   raw.ID,
		Amount:     &amount,
		Currency:   raw.Currency,
		Status:     raw.Status,
		ReceiptURL: raw.ReceiptURL,
		CardBrand:  raw.PaymentMethodDetails.Card.Brand,
		RiskScore:  raw.Outcome.RiskScore,
	}
}
