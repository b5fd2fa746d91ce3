package pricing

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/makersrow/storefront-backend/pkg/config"
	"github.com/makersrow/storefront-backend/pkg/enums"
)

var oneHundred = decimal.NewFromInt(100)

// ShippingOption is a selectable delivery method with a fixed price.
type ShippingOption struct {
	Method     enums.ShippingMethod `json:"method"`
	Label      string               `json:"label"`
	PriceCents int                  `json:"price_cents"`
	Active     bool                 `json:"active"`
}

// LineInput is the slice of a cart line the engine needs. Saved-for-later
// items never reach the engine.
type LineInput struct {
	UnitPrice decimal.Decimal
	Quantity  int
}

// Snapshot is the itemized quote. It is recomputed from its inputs on every
// read and never persisted, so it cannot drift.
type Snapshot struct {
	Subtotal     decimal.Decimal `json:"subtotal"`
	ShippingCost decimal.Decimal `json:"shipping_cost"`
	Tax          decimal.Decimal `json:"tax"`
	GiftWrapCost decimal.Decimal `json:"gift_wrap_cost"`
	Discount     decimal.Decimal `json:"discount"`
	Total        decimal.Decimal `json:"total"`
}

// Engine computes order totals from fixed jurisdiction constants. It is pure:
// no I/O, no mutation, identical inputs always yield identical snapshots.
type Engine struct {
	taxRate     decimal.Decimal
	giftWrapFee decimal.Decimal
}

// NewEngine builds an engine with the given tax rate (e.g. 0.18) and flat
// gift-wrap fee in cents.
func NewEngine(taxRate decimal.Decimal, giftWrapFeeCents int) *Engine {
	return &Engine{
		taxRate:     taxRate,
		giftWrapFee: CentsToAmount(giftWrapFeeCents),
	}
}

// NewEngineFromConfig parses the configured tax rate and builds an engine.
func NewEngineFromConfig(cfg config.PricingConfig) (*Engine, error) {
	rate, err := decimal.NewFromString(cfg.TaxRate)
	if err != nil {
		return nil, fmt.Errorf("parsing tax rate %q: %w", cfg.TaxRate, err)
	}
	if rate.IsNegative() {
		return nil, fmt.Errorf("tax rate must be non-negative, got %s", rate)
	}
	return NewEngine(rate, cfg.GiftWrapFeeCents), nil
}

// Quote computes the itemized total. The step order is fixed: subtotal,
// shipping, tax on subtotal alone, gift wrap, then the frozen discount.
// Rounding happens only at display time, never between steps.
func (e *Engine) Quote(items []LineInput, shipping *ShippingOption, giftWrap bool, discount decimal.Decimal) Snapshot {
	subtotal := decimal.Zero
	for _, line := range items {
		subtotal = subtotal.Add(line.UnitPrice.Mul(decimal.NewFromInt(int64(line.Quantity))))
	}

	shippingCost := decimal.Zero
	if shipping != nil && shipping.Active {
		shippingCost = CentsToAmount(shipping.PriceCents)
	}

	tax := subtotal.Mul(e.taxRate)

	giftWrapCost := decimal.Zero
	if giftWrap {
		giftWrapCost = e.giftWrapFee
	}

	if discount.IsNegative() {
		discount = decimal.Zero
	}

	total := subtotal.Add(shippingCost).Add(tax).Add(giftWrapCost).Sub(discount)
	if total.IsNegative() {
		total = decimal.Zero
	}

	return Snapshot{
		Subtotal:     subtotal,
		ShippingCost: shippingCost,
		Tax:          tax,
		GiftWrapCost: giftWrapCost,
		Discount:     discount,
		Total:        total,
	}
}

// CentsToAmount converts an integer cent value to a decimal amount.
func CentsToAmount(cents int) decimal.Decimal {
	return decimal.NewFromInt(int64(cents)).Div(oneHundred)
}

// FormatAmount renders an amount with two-digit rounding for display.
func FormatAmount(amount decimal.Decimal) string {
	return amount.StringFixed(2)
}
