package promo

import (
	"context"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/makersrow/storefront-backend/pkg/db/models"
)

// Repository resolves promo codes from the durable table.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs a promo repository bound to the provided gorm DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// FindByCode returns the active, unexpired promo code definition.
// gorm.ErrRecordNotFound covers unknown, disabled, and expired codes alike.
func (r *Repository) FindByCode(ctx context.Context, code string) (*models.PromoCode, error) {
	normalized := strings.ToUpper(strings.TrimSpace(code))

	var record models.PromoCode
	err := r.db.WithContext(ctx).
		Where("code = ? AND is_active = ?", normalized, true).
		Where("expires_at IS NULL OR expires_at > ?", time.Now().UTC()).
		First(&record).Error
	if err != nil {
		return nil, err
	}
	return &record, nil
}
