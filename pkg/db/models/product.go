package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// Product represents the canonical creator listing.
type Product struct {
	ID          uuid.UUID        `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	CreatorID   uuid.UUID        `gorm:"column:creator_id;type:uuid;not null"`
	SKU         string           `gorm:"column:sku;not null"`
	Title       string           `gorm:"column:title;not null"`
	Slug        string           `gorm:"column:slug;not null;uniqueIndex:products_slug_key"`
	Description *string          `gorm:"column:description"`
	Tags        pq.StringArray   `gorm:"column:tags;type:text[];not null;default:ARRAY[]::text[]"`
	PriceCents  int              `gorm:"column:price_cents;not null"`
	StockQty    int              `gorm:"column:stock_qty;not null;default:0"`
	IsActive    bool             `gorm:"column:is_active;not null;default:true"`
	ImageURL    *string          `gorm:"column:image_url"`
	CreatorName string           `gorm:"column:creator_name;not null"`
	Variants    []ProductVariant `gorm:"foreignKey:ProductID;constraint:OnDelete:CASCADE"`
	CreatedAt   time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time        `gorm:"column:updated_at;autoUpdateTime"`
}
