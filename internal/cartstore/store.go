package cartstore

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/makersrow/storefront-backend/internal/cart"
	"github.com/makersrow/storefront-backend/internal/catalog"
	"github.com/makersrow/storefront-backend/pkg/db"
	"github.com/makersrow/storefront-backend/pkg/db/models"
	"github.com/makersrow/storefront-backend/pkg/enums"
	pkgerrors "github.com/makersrow/storefront-backend/pkg/errors"
	"github.com/makersrow/storefront-backend/pkg/pagination"
)

// Store is the durable RemoteStore behind the session engines. line_items and
// wishlist_items rows are the reconciliation tie-breaker.
type Store struct {
	db      *gorm.DB
	catalog *catalog.Repository
}

// NewStore builds the durable store backed by gorm.
func NewStore(db *gorm.DB, catalogRepo *catalog.Repository) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("db required")
	}
	if catalogRepo == nil {
		return nil, fmt.Errorf("catalog repository required")
	}
	return &Store{db: db, catalog: catalogRepo}, nil
}

// FetchLineItems loads both collections for the user, with price and stock
// refreshed from the live catalog.
func (s *Store) FetchLineItems(ctx context.Context, userID uuid.UUID) ([]cart.RemoteLineItem, error) {
	var rows []models.LineItem
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("mutated_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load line items")
	}

	stocks, prices, err := s.liveCatalogView(ctx, rows)
	if err != nil {
		return nil, err
	}

	out := make([]cart.RemoteLineItem, 0, len(rows))
	for _, row := range rows {
		line := remoteFromRow(row)
		key := liveKey(row)
		if stock, ok := stocks[key]; ok {
			line.StockQty = stock
		}
		if price, ok := prices[key]; ok {
			line.UnitPriceCents = price
		}
		out = append(out, line)
	}
	return out, nil
}

// FetchWishlist returns the user's wished product ids, oldest first.
func (s *Store) FetchWishlist(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := s.db.WithContext(ctx).
		Model(&models.WishlistItem{}).
		Where("user_id = ?", userID).
		Order("created_at ASC").
		Pluck("product_id", &ids).Error
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load wishlist")
	}
	return ids, nil
}

// UpsertEntry writes the desired end state for one identity. Stock is checked
// against the live catalog; cart quantities above availability are rejected.
func (s *Store) UpsertEntry(ctx context.Context, userID uuid.UUID, entry cart.RemoteUpsert) (*cart.RemoteLineItem, error) {
	if entry.Quantity < 1 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be at least 1")
	}
	if !entry.Collection.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown collection")
	}

	info, err := s.catalog.PurchaseInfo(ctx, entry.ProductID, entry.VariantID)
	if err != nil {
		return nil, err
	}
	if !info.IsActive {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "listing is no longer available")
	}
	if entry.Collection == enums.CollectionCart && entry.Quantity > info.StockQty {
		return nil, pkgerrors.New(pkgerrors.CodeOutOfStock, "insufficient stock").
			WithDetails(map[string]any{"available": info.StockQty})
	}

	row := models.LineItem{
		ID:             uuid.New(),
		UserID:         userID,
		IdentityKey:    entry.Identity.String(),
		ProductID:      entry.ProductID,
		VariantID:      entry.VariantID,
		Collection:     entry.Collection,
		Quantity:       entry.Quantity,
		UnitPriceCents: info.UnitPriceCents,
		StockQty:       info.StockQty,
		Title:          info.Title,
		Slug:           info.Slug,
		ImageURL:       info.ImageURL,
		CreatorName:    info.CreatorName,
		MutatedAt:      entry.MutatedAt.UTC(),
	}

	err = s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "user_id"}, {Name: "identity_key"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"collection", "quantity", "unit_price_cents", "stock_qty",
				"title", "slug", "image_url", "creator_name", "mutated_at", "updated_at",
			}),
		}).
		Create(&row).Error
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist line item")
	}

	line := remoteFromRow(row)
	return &line, nil
}

// DeleteEntry removes the identity's row. Deleting an absent row succeeds so
// client retries stay idempotent.
func (s *Store) DeleteEntry(ctx context.Context, userID uuid.UUID, identity cart.Identity) error {
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND identity_key = ?", userID, identity.String()).
		Delete(&models.LineItem{}).Error
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete line item")
	}
	return nil
}

// ToggleWishlistEntry flips set membership and reports the resulting state.
func (s *Store) ToggleWishlistEntry(ctx context.Context, userID uuid.UUID, productID uuid.UUID) (bool, error) {
	row := models.WishlistItem{ID: uuid.New(), UserID: userID, ProductID: productID}
	result := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "product_id"}},
			DoNothing: true,
		}).
		Create(&row)
	if result.Error != nil {
		// A unique violation here means a concurrent insert won the race; the
		// row exists, so the toggle continues into the removal branch below.
		if !db.IsUniqueViolation(result.Error, "wishlist_items_user_product_key") {
			return false, pkgerrors.Wrap(pkgerrors.CodeDependency, result.Error, "insert wishlist item")
		}
	} else if result.RowsAffected > 0 {
		return true, nil
	}

	err := s.db.WithContext(ctx).
		Where("user_id = ? AND product_id = ?", userID, productID).
		Delete(&models.WishlistItem{}).Error
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete wishlist item")
	}
	return false, nil
}

// WishlistPage is one keyset page of wishlist rows.
type WishlistPage struct {
	Items      []models.WishlistItem
	NextCursor string
}

// ListWishlist pages through the user's wishlist rows, newest first.
func (s *Store) ListWishlist(ctx context.Context, userID uuid.UUID, cursor string, limit int) (*WishlistPage, error) {
	parsed, err := pagination.ParseCursor(cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}

	query := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").Order("id DESC").
		Limit(pagination.LimitWithBuffer(limit))
	if parsed != nil {
		query = query.Where("(created_at < ?) OR (created_at = ? AND id < ?)", parsed.CreatedAt, parsed.CreatedAt, parsed.ID)
	}

	var rows []models.WishlistItem
	if err := query.Find(&rows).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load wishlist page")
	}

	page := &WishlistPage{Items: rows}
	normalized := pagination.NormalizeLimit(limit)
	if len(rows) > normalized {
		page.Items = rows[:normalized]
		last := page.Items[len(page.Items)-1]
		page.NextCursor = pagination.EncodeCursor(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
	}
	return page, nil
}

func (s *Store) liveCatalogView(ctx context.Context, rows []models.LineItem) (map[string]int, map[string]int, error) {
	stocks := map[string]int{}
	prices := map[string]int{}
	if len(rows) == 0 {
		return stocks, prices, nil
	}

	productIDs := make([]uuid.UUID, 0, len(rows))
	variantIDs := make([]uuid.UUID, 0)
	for _, row := range rows {
		if row.VariantID != nil {
			variantIDs = append(variantIDs, *row.VariantID)
			continue
		}
		productIDs = append(productIDs, row.ProductID)
	}

	if len(productIDs) > 0 {
		var products []struct {
			ID         uuid.UUID `gorm:"column:id"`
			StockQty   int       `gorm:"column:stock_qty"`
			PriceCents int       `gorm:"column:price_cents"`
		}
		err := s.db.WithContext(ctx).
			Table("products").
			Select("id, stock_qty, price_cents").
			Where("id IN ?", productIDs).
			Find(&products).Error
		if err != nil {
			return nil, nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product stock")
		}
		for _, product := range products {
			stocks["p:"+product.ID.String()] = product.StockQty
			prices["p:"+product.ID.String()] = product.PriceCents
		}
	}

	if len(variantIDs) > 0 {
		var variants []struct {
			ID         uuid.UUID `gorm:"column:id"`
			ProductID  uuid.UUID `gorm:"column:product_id"`
			StockQty   int       `gorm:"column:stock_qty"`
			PriceCents *int      `gorm:"column:price_cents"`
		}
		err := s.db.WithContext(ctx).
			Table("product_variants").
			Select("id, product_id, stock_qty, price_cents").
			Where("id IN ?", variantIDs).
			Find(&variants).Error
		if err != nil {
			return nil, nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load variant stock")
		}
		for _, variant := range variants {
			stocks["v:"+variant.ID.String()] = variant.StockQty
			if variant.PriceCents != nil {
				prices["v:"+variant.ID.String()] = *variant.PriceCents
			}
		}
	}

	return stocks, prices, nil
}

func liveKey(row models.LineItem) string {
	if row.VariantID != nil {
		return "v:" + row.VariantID.String()
	}
	return "p:" + row.ProductID.String()
}

func remoteFromRow(row models.LineItem) cart.RemoteLineItem {
	imageURL := ""
	if row.ImageURL != nil {
		imageURL = *row.ImageURL
	}
	return cart.RemoteLineItem{
		Identity:       cart.Identity(row.IdentityKey),
		ProductID:      row.ProductID,
		VariantID:      row.VariantID,
		Collection:     row.Collection,
		Quantity:       row.Quantity,
		UnitPriceCents: row.UnitPriceCents,
		StockQty:       row.StockQty,
		Title:          row.Title,
		Slug:           row.Slug,
		ImageURL:       imageURL,
		CreatorName:    row.CreatorName,
		MutatedAt:      row.MutatedAt,
	}
}
