package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/makersrow/storefront-backend/pkg/enums"
)

// PromoCode defines a redeemable discount. Percentage codes carry basis
// points, flat codes carry cents.
type PromoCode struct {
	ID          uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Code        string          `gorm:"column:code;not null;uniqueIndex:promo_codes_code_key"`
	Kind        enums.PromoKind `gorm:"column:kind;not null"`
	PercentBps  int             `gorm:"column:percent_bps;not null;default:0"`
	AmountCents int             `gorm:"column:amount_cents;not null;default:0"`
	IsActive    bool            `gorm:"column:is_active;not null;default:true"`
	ExpiresAt   *time.Time      `gorm:"column:expires_at"`
	CreatedAt   time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}
