package promo

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/makersrow/storefront-backend/internal/pricing"
	"github.com/makersrow/storefront-backend/pkg/db/models"
	"github.com/makersrow/storefront-backend/pkg/enums"
	pkgerrors "github.com/makersrow/storefront-backend/pkg/errors"
)

// State tracks where a code sits in the entry flow.
type State string

const (
	StateUnapplied  State = "unapplied"
	StateValidating State = "validating"
	StateApplied    State = "applied"
	StateRejected   State = "rejected"
)

// Application is the result of a successful code submission. DiscountAmount is
// computed once against the subtotal at apply time and never recomputed; a
// later cart change does not shrink or grow an applied discount.
type Application struct {
	Code           string          `json:"code"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	AppliedAt      time.Time       `json:"applied_at"`
}

// CodeSource resolves a promo code to its definition.
type CodeSource interface {
	FindByCode(ctx context.Context, code string) (*models.PromoCode, error)
}

// Validator is the promo entry state machine:
// Unapplied → Validating → Applied | Rejected; Applied → Unapplied on remove.
// Callers serialize access; the session engine invokes it under its own lock.
type Validator struct {
	source      CodeSource
	state       State
	application *Application
	now         func() time.Time
}

// NewValidator builds a validator in the Unapplied state.
func NewValidator(source CodeSource) (*Validator, error) {
	if source == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "promo code source is required")
	}
	return &Validator{
		source: source,
		state:  StateUnapplied,
		now:    time.Now,
	}, nil
}

// State returns the current machine state.
func (v *Validator) State() State {
	return v.state
}

// Application returns the active application, or nil.
func (v *Validator) Application() *Application {
	if v.application == nil {
		return nil
	}
	app := *v.application
	return &app
}

// Discount returns the frozen discount amount, zero when nothing is applied.
func (v *Validator) Discount() decimal.Decimal {
	if v.application == nil {
		return decimal.Zero
	}
	return v.application.DiscountAmount
}

// Apply validates the code and freezes its discount against the given
// subtotal. Applying a second code replaces the first; codes never stack.
func (v *Validator) Apply(ctx context.Context, code string, subtotal decimal.Decimal) (*Application, error) {
	trimmed := strings.ToUpper(strings.TrimSpace(code))
	if trimmed == "" {
		v.state = StateRejected
		v.application = nil
		return nil, pkgerrors.New(pkgerrors.CodeInvalidPromo, "promo code is required")
	}

	v.state = StateValidating

	record, err := v.source.FindByCode(ctx, trimmed)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			v.state = StateRejected
			v.application = nil
			return nil, pkgerrors.New(pkgerrors.CodeInvalidPromo, "unknown promo code").
				WithDetails(map[string]any{"code": trimmed})
		}
		v.state = StateRejected
		v.application = nil
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "look up promo code")
	}

	discount, err := discountFor(record, subtotal)
	if err != nil {
		v.state = StateRejected
		v.application = nil
		return nil, err
	}

	app := &Application{
		Code:           record.Code,
		DiscountAmount: discount,
		AppliedAt:      v.now().UTC(),
	}
	v.state = StateApplied
	v.application = app

	out := *app
	return &out, nil
}

// Remove clears the active application and returns to Unapplied. Safe to call
// in any state.
func (v *Validator) Remove() {
	v.state = StateUnapplied
	v.application = nil
}

func discountFor(record *models.PromoCode, subtotal decimal.Decimal) (decimal.Decimal, error) {
	switch record.Kind {
	case enums.PromoKindPercentage:
		bps := decimal.NewFromInt(int64(record.PercentBps))
		return subtotal.Mul(bps).Div(decimal.NewFromInt(10000)), nil
	case enums.PromoKindFlat:
		return pricing.CentsToAmount(record.AmountCents), nil
	default:
		return decimal.Zero, pkgerrors.New(pkgerrors.CodeInvalidPromo, "unsupported promo kind").
			WithDetails(map[string]any{"kind": string(record.Kind)})
	}
}
