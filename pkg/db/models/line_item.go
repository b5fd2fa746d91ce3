package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/makersrow/storefront-backend/pkg/enums"
)

// LineItem is the durable record for one cart or saved-for-later entry.
// IdentityKey is the composite (product, variant) key; at most one row exists
// per (user, identity) across both collections.
type LineItem struct {
	ID             uuid.UUID        `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID         uuid.UUID        `gorm:"column:user_id;type:uuid;not null;index:line_items_user_id_idx;uniqueIndex:line_items_user_identity_key"`
	IdentityKey    string           `gorm:"column:identity_key;not null;uniqueIndex:line_items_user_identity_key"`
	ProductID      uuid.UUID        `gorm:"column:product_id;type:uuid;not null"`
	VariantID      *uuid.UUID       `gorm:"column:variant_id;type:uuid"`
	Collection     enums.Collection `gorm:"column:collection;not null;default:'cart'"`
	Quantity       int              `gorm:"column:quantity;not null;default:1"`
	UnitPriceCents int              `gorm:"column:unit_price_cents;not null"`
	StockQty       int              `gorm:"column:stock_qty;not null;default:0"`
	Title          string           `gorm:"column:title;not null"`
	Slug           string           `gorm:"column:slug;not null"`
	ImageURL       *string          `gorm:"column:image_url"`
	CreatorName    string           `gorm:"column:creator_name;not null"`
	MutatedAt      time.Time        `gorm:"column:mutated_at;not null"`
	CreatedAt      time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time        `gorm:"column:updated_at;autoUpdateTime"`
}
