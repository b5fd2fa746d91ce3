package enums

import "fmt"

// PromoKind describes how a promo code's discount is computed.
type PromoKind string

const (
	PromoKindPercentage PromoKind = "percentage"
	PromoKindFlat       PromoKind = "flat"
)

var validPromoKinds = []PromoKind{
	PromoKindPercentage,
	PromoKindFlat,
}

// IsValid reports whether the value matches the canonical promo kind enum.
func (p PromoKind) IsValid() bool {
	for _, candidate := range validPromoKinds {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParsePromoKind converts the raw string to a PromoKind.
func ParsePromoKind(value string) (PromoKind, error) {
	for _, candidate := range validPromoKinds {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid promo kind %q", value)
}
