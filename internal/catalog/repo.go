package catalog

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	pkgerrors "github.com/makersrow/storefront-backend/pkg/errors"
)

// PurchaseInfo is the slice of a listing the cart engine needs: resolved
// price, stock, and display snapshot for a product or one of its variants.
type PurchaseInfo struct {
	ProductID      uuid.UUID  `gorm:"column:product_id"`
	VariantID      *uuid.UUID `gorm:"-"`
	Title          string     `gorm:"column:title"`
	Slug           string     `gorm:"column:slug"`
	CreatorName    string     `gorm:"column:creator_name"`
	ImageURL       *string    `gorm:"column:image_url"`
	UnitPriceCents int        `gorm:"column:unit_price_cents"`
	StockQty       int        `gorm:"column:stock_qty"`
	IsActive       bool       `gorm:"column:is_active"`
}

// Summary is the wishlist-facing product card.
type Summary struct {
	ProductID   uuid.UUID `gorm:"column:product_id"`
	Title       string    `gorm:"column:title"`
	Slug        string    `gorm:"column:slug"`
	CreatorName string    `gorm:"column:creator_name"`
	ImageURL    *string   `gorm:"column:image_url"`
	PriceCents  int       `gorm:"column:price_cents"`
	InStock     bool      `gorm:"column:in_stock"`
}

// Repository reads listing data. Queries select named columns so callers never
// depend on the full product row.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// PurchaseInfo resolves price and stock for a product, or for one of its
// variants when variantID is set. A variant with no price of its own inherits
// the base product price. Unknown ids map to not-found.
func (r *Repository) PurchaseInfo(ctx context.Context, productID uuid.UUID, variantID *uuid.UUID) (*PurchaseInfo, error) {
	var info PurchaseInfo
	err := r.db.WithContext(ctx).
		Table("products").
		Select("id AS product_id, title, slug, creator_name, image_url, price_cents AS unit_price_cents, stock_qty, is_active").
		Where("id = ?", productID).
		Take(&info).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
	}

	if variantID == nil || *variantID == uuid.Nil {
		return &info, nil
	}

	var variant struct {
		PriceCents *int `gorm:"column:price_cents"`
		StockQty   int  `gorm:"column:stock_qty"`
		IsActive   bool `gorm:"column:is_active"`
		Name       string
	}
	err = r.db.WithContext(ctx).
		Table("product_variants").
		Select("price_cents, stock_qty, is_active, name").
		Where("id = ? AND product_id = ?", *variantID, productID).
		Take(&variant).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product variant not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product variant")
	}

	resolved := *variantID
	info.VariantID = &resolved
	info.StockQty = variant.StockQty
	info.IsActive = info.IsActive && variant.IsActive
	if variant.PriceCents != nil {
		info.UnitPriceCents = *variant.PriceCents
	}
	if variant.Name != "" {
		info.Title = info.Title + " - " + variant.Name
	}
	return &info, nil
}

// Summaries loads wishlist cards for the given products, keyed by id.
func (r *Repository) Summaries(ctx context.Context, productIDs []uuid.UUID) (map[uuid.UUID]Summary, error) {
	out := make(map[uuid.UUID]Summary, len(productIDs))
	if len(productIDs) == 0 {
		return out, nil
	}

	var rows []Summary
	err := r.db.WithContext(ctx).
		Table("products").
		Select("id AS product_id, title, slug, creator_name, image_url, price_cents, stock_qty > 0 AS in_stock").
		Where("id IN ?", productIDs).
		Find(&rows).Error
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product summaries")
	}

	for _, row := range rows {
		out[row.ProductID] = row
	}
	return out, nil
}
