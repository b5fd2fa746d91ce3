package controllers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/makersrow/storefront-backend/api/responses"
	"github.com/makersrow/storefront-backend/api/validators"
	cartsvc "github.com/makersrow/storefront-backend/internal/cart"
	"github.com/makersrow/storefront-backend/internal/cartstore"
	"github.com/makersrow/storefront-backend/internal/catalog"
	pkgerrors "github.com/makersrow/storefront-backend/pkg/errors"
	"github.com/makersrow/storefront-backend/pkg/logger"
)

const maxWishlistPageSize = 100

// WishlistToggle flips wishlist membership for a product and reports the
// desired end state.
func WishlistToggle(reg *cartsvc.Registry, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		engine, err := acquireEngine(r, reg)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		productID, err := uuid.Parse(strings.TrimSpace(chi.URLParam(r, "productID")))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid product id"))
			return
		}

		member, err := engine.ToggleWishlist(ctx, productID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{
			"product_id": productID,
			"wishlisted": member,
		})
	}
}

type wishlistEntryResponse struct {
	ProductID   uuid.UUID `json:"product_id"`
	Title       string    `json:"title"`
	Slug        string    `json:"slug"`
	CreatorName string    `json:"creator_name"`
	ImageURL    string    `json:"image_url,omitempty"`
	PriceCents  int       `json:"price_cents"`
	InStock     bool      `json:"in_stock"`
}

// WishlistList pages the durable wishlist, newest first, enriched with the
// current listing card.
func WishlistList(store *cartstore.Store, listings *catalog.Repository, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		userID, err := userIDFromRequest(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", 0, 1, maxWishlistPageSize)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		cursor := strings.TrimSpace(r.URL.Query().Get("cursor"))

		page, err := store.ListWishlist(ctx, userID, cursor, limit)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		productIDs := make([]uuid.UUID, len(page.Items))
		for i, row := range page.Items {
			productIDs[i] = row.ProductID
		}
		summaries, err := listings.Summaries(ctx, productIDs)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		entries := make([]wishlistEntryResponse, 0, len(page.Items))
		for _, row := range page.Items {
			entry := wishlistEntryResponse{ProductID: row.ProductID}
			if summary, ok := summaries[row.ProductID]; ok {
				entry.Title = summary.Title
				entry.Slug = summary.Slug
				entry.CreatorName = summary.CreatorName
				entry.PriceCents = summary.PriceCents
				entry.InStock = summary.InStock
				if summary.ImageURL != nil {
					entry.ImageURL = *summary.ImageURL
				}
			}
			entries = append(entries, entry)
		}

		responses.WriteSuccessPage(w, entries, page.NextCursor)
	}
}
