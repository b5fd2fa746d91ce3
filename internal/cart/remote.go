package cart

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/makersrow/storefront-backend/pkg/enums"
)

// RemoteLineItem is the server-truth record for one identity in one collection.
type RemoteLineItem struct {
	Identity       Identity
	ProductID      uuid.UUID
	VariantID      *uuid.UUID
	Collection     enums.Collection
	Quantity       int
	UnitPriceCents int
	StockQty       int
	Title          string
	Slug           string
	ImageURL       string
	CreatorName    string
	MutatedAt      time.Time
}

// RemoteUpsert carries the desired end state for one identity.
type RemoteUpsert struct {
	Identity   Identity
	ProductID  uuid.UUID
	VariantID  *uuid.UUID
	Collection enums.Collection
	Quantity   int
	MutatedAt  time.Time
}

// RemoteStore is the adapter contract the engine reconciles against. Upsert
// rejects quantities above available stock with an out-of-stock error; delete
// is idempotent and succeeds when the row is already gone.
type RemoteStore interface {
	FetchLineItems(ctx context.Context, userID uuid.UUID) ([]RemoteLineItem, error)
	FetchWishlist(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error)
	UpsertEntry(ctx context.Context, userID uuid.UUID, entry RemoteUpsert) (*RemoteLineItem, error)
	DeleteEntry(ctx context.Context, userID uuid.UUID, identity Identity) error
	ToggleWishlistEntry(ctx context.Context, userID uuid.UUID, productID uuid.UUID) (bool, error)
}
