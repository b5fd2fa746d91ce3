package pricing

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/makersrow/storefront-backend/pkg/config"
	"github.com/makersrow/storefront-backend/pkg/enums"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	engine, err := NewEngineFromConfig(config.PricingConfig{TaxRate: "0.18", GiftWrapFeeCents: 499})
	require.NoError(t, err)
	return engine
}

func standardShipping() *ShippingOption {
	return &ShippingOption{
		Method:     enums.ShippingMethodStandard,
		Label:      "Standard",
		PriceCents: 999,
		Active:     true,
	}
}

func TestQuoteFlatPromoScenario(t *testing.T) {
	engine := newTestEngine(t)

	items := []LineInput{{UnitPrice: decimal.RequireFromString("50.00"), Quantity: 2}}
	snap := engine.Quote(items, standardShipping(), false, decimal.RequireFromString("100.00"))

	require.Equal(t, "100.00", FormatAmount(snap.Subtotal))
	require.Equal(t, "9.99", FormatAmount(snap.ShippingCost))
	require.Equal(t, "18.00", FormatAmount(snap.Tax))
	require.Equal(t, "0.00", FormatAmount(snap.GiftWrapCost))
	require.Equal(t, "27.99", FormatAmount(snap.Total))
}

func TestQuotePercentagePromoScenario(t *testing.T) {
	engine := newTestEngine(t)

	items := []LineInput{{UnitPrice: decimal.RequireFromString("50.00"), Quantity: 2}}
	// 10% of the 100.00 subtotal, frozen at apply time.
	snap := engine.Quote(items, standardShipping(), false, decimal.RequireFromString("10.00"))

	require.Equal(t, "117.99", FormatAmount(snap.Total))
}

func TestQuoteTotalNeverNegative(t *testing.T) {
	engine := newTestEngine(t)

	items := []LineInput{{UnitPrice: decimal.RequireFromString("5.00"), Quantity: 1}}
	snap := engine.Quote(items, nil, false, decimal.RequireFromString("500.00"))

	require.True(t, snap.Total.IsZero(), "total must floor at zero, got %s", snap.Total)
}

func TestQuoteDeterministic(t *testing.T) {
	engine := newTestEngine(t)

	items := []LineInput{
		{UnitPrice: decimal.RequireFromString("19.99"), Quantity: 3},
		{UnitPrice: decimal.RequireFromString("7.45"), Quantity: 1},
	}
	first := engine.Quote(items, standardShipping(), true, decimal.RequireFromString("4.50"))
	second := engine.Quote(items, standardShipping(), true, decimal.RequireFromString("4.50"))

	require.True(t, first.Total.Equal(second.Total))
	require.True(t, first.Tax.Equal(second.Tax))
	require.True(t, first.Subtotal.Equal(second.Subtotal))
}

func TestQuoteIgnoresInactiveShipping(t *testing.T) {
	engine := newTestEngine(t)

	inactive := standardShipping()
	inactive.Active = false

	items := []LineInput{{UnitPrice: decimal.RequireFromString("10.00"), Quantity: 1}}
	snap := engine.Quote(items, inactive, false, decimal.Zero)

	require.True(t, snap.ShippingCost.IsZero())
}

func TestQuoteGiftWrapFlatFee(t *testing.T) {
	engine := newTestEngine(t)

	items := []LineInput{{UnitPrice: decimal.RequireFromString("10.00"), Quantity: 1}}
	snap := engine.Quote(items, nil, true, decimal.Zero)

	require.Equal(t, "4.99", FormatAmount(snap.GiftWrapCost))
	// 10.00 + 1.80 tax + 4.99 wrap
	require.Equal(t, "16.79", FormatAmount(snap.Total))
}

func TestQuoteTaxOnSubtotalBeforeDiscountAndShipping(t *testing.T) {
	engine := newTestEngine(t)

	items := []LineInput{{UnitPrice: decimal.RequireFromString("100.00"), Quantity: 1}}
	snap := engine.Quote(items, standardShipping(), false, decimal.RequireFromString("50.00"))

	// Tax is 18% of the undiscounted subtotal, not of (subtotal - discount).
	require.Equal(t, "18.00", FormatAmount(snap.Tax))
}

func TestNewEngineFromConfigRejectsBadRate(t *testing.T) {
	_, err := NewEngineFromConfig(config.PricingConfig{TaxRate: "banana"})
	require.Error(t, err)

	_, err = NewEngineFromConfig(config.PricingConfig{TaxRate: "-0.1"})
	require.Error(t, err)
}
