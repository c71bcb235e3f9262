package clients

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShopifySandboxOrder(t *testing.T) {
	c := NewShopifyClient(ShopifyConfig{Sandbox: true})

	order := c.GetOrder(context.Background(), "#1001")
	require.NotNil(t, order)
	assert.Equal(t, "paid", order.FinancialStatus)
	assert.Equal(t, "in_transit", order.FulfillmentStatus)
	require.Len(t, order.LineItems, 1)
	assert.Equal(t, "Sandbox Widget", order.LineItems[0].Title)
}

func TestShopifyUnconfiguredReturnsNil(t *testing.T) {
	c := NewShopifyClient(ShopifyConfig{})
	assert.Nil(t, c.GetOrder(context.Background(), "#1001"))
}

func TestShopifyCachesLookups(t *testing.T) {
	c := NewShopifyClient(ShopifyConfig{Sandbox: true})
	ctx := context.Background()

	first := c.GetOrder(ctx, "#1001")
	second := c.GetOrder(ctx, "#1001")
	assert.Same(t, first, second)
}

func TestStripeSandboxCharge(t *testing.T) {
	c := NewStripeClient(StripeConfig{Sandbox: true})
	amount := decimal.RequireFromString("59.99")

	charge := c.FindCharge(context.Background(), ChargeQuery{OrderID: "A10023", Amount: &amount})
	require.NotNil(t, charge)
	assert.Equal(t, "ch_stub_123", charge.ChargeID)
	assert.Equal(t, "succeeded", charge.Status)
	assert.True(t, charge.Amount.Equal(amount))
	assert.Equal(t, "USD", charge.Currency)
}

func TestStripeUnconfiguredReturnsNil(t *testing.T) {
	c := NewStripeClient(StripeConfig{})
	assert.Nil(t, c.FindCharge(context.Background(), ChargeQuery{OrderID: "A10023"}))
}

func TestChargeQueryCacheKey(t *testing.T) {
	amount := decimal.RequireFromString("10.50")
	a := ChargeQuery{OrderID: "X", Email: "a@b.c", Amount: &amount}
	b := ChargeQuery{OrderID: "X", Email: "a@b.c", Amount: &amount}
	c := ChargeQuery{OrderID: "X", Email: "a@b.c"}

	assert.Equal(t, a.cacheKey(), b.cacheKey())
	assert.NotEqual(t, a.cacheKey(), c.cacheKey())
}
