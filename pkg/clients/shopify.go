// Package clients wraps the commerce backends (Shopify orders, Stripe
// charges) consulted when drafting ticket replies. Lookups are cached and
// every failure degrades to "no data".
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
)

// cacheTTL bounds how long commerce lookups are reused.
const cacheTTL = 600 * time.Second

// ShopifyConfig holds Shopify Admin API settings.
type ShopifyConfig struct {
	Sandbox  bool   `yaml:"sandbox"`
	Domain   string `yaml:"domain"`
	APIKey   string `yaml:"api_key"`
	Password string `yaml:"password"`
}

// Order is the subset of a Shopify order used for reply drafting.
type Order struct {
	ID                int64      `json:"id"`
	OrderNumber       int64      `json:"order_number"`
	Email             string     `json:"email"`
	TotalPrice        string     `json:"total_price"`
	Currency          string     `json:"currency"`
	FinancialStatus   string     `json:"financial_status"`
	FulfillmentStatus string     `json:"fulfillment_status"`
	LineItems         []LineItem `json:"line_items"`
	TrackingURLs      []string   `json:"tracking_urls"`
}

// LineItem is one purchased item.
type LineItem struct {
	Title    string `json:"title"`
	Quantity int    `json:"quantity"`
	SKU      string `json:"sku,omitempty"`
}

// ShopifyClient looks up orders by customer-facing order ID.
type ShopifyClient struct {
	cfg        ShopifyConfig
	httpClient *http.Client
	cache      *expirable.LRU[string, *Order]
}

// NewShopifyClient builds an order lookup client with a TTL cache.
func NewShopifyClient(cfg ShopifyConfig) *ShopifyClient {
	return &ShopifyClient{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		cache:      expirable.NewLRU[string, *Order](512, nil, cacheTTL),
	}
}

// GetOrder fetches one order, or nil when not found or on any failure.
// Results (including misses) are cached for the TTL.
func (c *ShopifyClient) GetOrder(ctx context.Context, orderID string) *Order {
	if order, ok := c.cache.Get(orderID); ok {
		return order
	}

	order := c.fetchOrder(ctx, orderID)
	c.cache.Add(orderID, order)
	return order
}

func (c *ShopifyClient) fetchOrder(ctx context.Context, orderID string) *Order {
	if c.cfg.Sandbox {
		return &Order{
			OrderNumber:       0,
			FinancialStatus:   "paid",
			FulfillmentStatus: "in_transit",
			LineItems:         []LineItem{{Title: "Sandbox Widget", Quantity: 1}},
		}
	}
	if c.cfg.Domain == "" || c.cfg.APIKey == "" || c.cfg.Password == "" {
		return nil
	}

	cleanID := strings.TrimSpace(strings.ReplaceAll(orderID, "#", ""))
	endpoint := fmt.Sprintf("https://%s/admin/api/2023-10/orders.json", c.cfg.Domain)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil
	}
	req.SetBasicAuth(c.cfg.APIKey, c.cfg.Password)
	req.URL.RawQuery = url.Values{"name": {cleanID}, "status": {"any"}}.Encode()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		slog.Warn("Shopify order lookup failed", "order_id", orderID, "error", err)
		return nil
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 512))
		slog.Warn("Shopify order lookup returned error", "order_id", orderID, "status", resp.StatusCode)
		return nil
	}

	var out struct {
		Orders []struct {
			Order
			Fulfillments []struct {
				TrackingURL string `json:"tracking_url"`
			} `json:"fulfillments"`
		} `json:"orders"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		slog.Warn("Shopify order decode failed", "order_id", orderID, "error", err)
		return nil
	}
	if len(out.Orders) == 0 {
		return nil
	}

	order := out.Orders[0].Order
	if order.FulfillmentStatus == "" {
		order.FulfillmentStatus = "unfulfilled"
	}
	for _, f := range out.Orders[0].Fulfillments {
		if f.TrackingURL != "" {
			order.TrackingURLs = append(order.TrackingURLs, f.TrackingURL)
		}
	}
	return &order
}
