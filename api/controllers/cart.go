package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/makersrow/storefront-backend/api/middleware"
	"github.com/makersrow/storefront-backend/api/responses"
	"github.com/makersrow/storefront-backend/api/validators"
	cartsvc "github.com/makersrow/storefront-backend/internal/cart"
	"github.com/makersrow/storefront-backend/internal/catalog"
	"github.com/makersrow/storefront-backend/internal/pricing"
	"github.com/makersrow/storefront-backend/internal/promo"
	"github.com/makersrow/storefront-backend/pkg/enums"
	pkgerrors "github.com/makersrow/storefront-backend/pkg/errors"
	"github.com/makersrow/storefront-backend/pkg/logger"
)

const (
	maxPromoCodeLen      = 64
	maxShippingMethodLen = 32
)

// CartSnapshot returns the priced session view.
func CartSnapshot(reg *cartsvc.Registry, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		engine, err := acquireEngine(r, reg)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newCartViewResponse(engine.Snapshot(), engine.LastFailure()))
	}
}

type addCartItemRequest struct {
	ProductID uuid.UUID  `json:"product_id" validate:"required"`
	VariantID *uuid.UUID `json:"variant_id"`
	Quantity  int        `json:"quantity" validate:"required,min=1"`
}

// CartAddItem resolves the listing and merges it into the cart.
func CartAddItem(reg *cartsvc.Registry, listings *catalog.Repository, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		engine, err := acquireEngine(r, reg)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		var payload addCartItemRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		info, err := listings.PurchaseInfo(ctx, payload.ProductID, payload.VariantID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if !info.IsActive {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "listing is no longer available"))
			return
		}

		item := itemFromPurchaseInfo(info)
		if err := engine.AddItem(ctx, item, payload.Quantity); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, newCartViewResponse(engine.Snapshot(), engine.LastFailure()))
	}
}

type updateQuantityRequest struct {
	Quantity int `json:"quantity" validate:"required,min=1"`
}

// CartUpdateQuantity sets the line quantity for one identity.
func CartUpdateQuantity(reg *cartsvc.Registry, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		engine, err := acquireEngine(r, reg)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		identity, err := identityParam(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		var payload updateQuantityRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		if err := engine.UpdateQuantity(ctx, identity, payload.Quantity); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, newCartViewResponse(engine.Snapshot(), engine.LastFailure()))
	}
}

// CartRemoveItem drops the line from cart or saved. Removing an absent
// identity is a no-op.
func CartRemoveItem(reg *cartsvc.Registry, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		engine, err := acquireEngine(r, reg)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		identity, err := identityParam(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		if err := engine.RemoveItem(ctx, identity); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, newCartViewResponse(engine.Snapshot(), engine.LastFailure()))
	}
}

// CartSaveForLater moves a cart line to the saved list.
func CartSaveForLater(reg *cartsvc.Registry, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		engine, err := acquireEngine(r, reg)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		identity, err := identityParam(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		if err := engine.MoveToSaved(ctx, identity); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, newCartViewResponse(engine.Snapshot(), engine.LastFailure()))
	}
}

// CartRestore moves a saved line back into the cart.
func CartRestore(reg *cartsvc.Registry, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		engine, err := acquireEngine(r, reg)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		identity, err := identityParam(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		if err := engine.MoveToCart(ctx, identity); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, newCartViewResponse(engine.Snapshot(), engine.LastFailure()))
	}
}

type applyPromoRequest struct {
	Code string `json:"code" validate:"required"`
}

// CartApplyPromo validates and applies a promo code to the session.
func CartApplyPromo(reg *cartsvc.Registry, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		engine, err := acquireEngine(r, reg)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		var payload applyPromoRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		code := validators.SanitizeString(payload.Code, maxPromoCodeLen)
		if _, err := engine.ApplyPromo(ctx, code); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, newCartViewResponse(engine.Snapshot(), engine.LastFailure()))
	}
}

// CartRemovePromo drops the applied promo, if any.
func CartRemovePromo(reg *cartsvc.Registry, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		engine, err := acquireEngine(r, reg)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		engine.RemovePromo()
		responses.WriteSuccess(w, newCartViewResponse(engine.Snapshot(), engine.LastFailure()))
	}
}

type selectShippingRequest struct {
	Method string `json:"method" validate:"required"`
}

// CartSelectShipping picks one of the configured shipping options.
func CartSelectShipping(reg *cartsvc.Registry, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		engine, err := acquireEngine(r, reg)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		var payload selectShippingRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		method := strings.ToLower(validators.SanitizeString(payload.Method, maxShippingMethodLen))
		if err := engine.SelectShipping(enums.ShippingMethod(method)); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, newCartViewResponse(engine.Snapshot(), engine.LastFailure()))
	}
}

type giftWrapRequest struct {
	Enabled *bool `json:"enabled" validate:"required"`
}

// CartSetGiftWrap toggles the flat gift wrap fee.
func CartSetGiftWrap(reg *cartsvc.Registry, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		engine, err := acquireEngine(r, reg)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		var payload giftWrapRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		engine.SetGiftWrap(*payload.Enabled)
		responses.WriteSuccess(w, newCartViewResponse(engine.Snapshot(), engine.LastFailure()))
	}
}

// CartQuote returns only the priced totals.
func CartQuote(reg *cartsvc.Registry, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		engine, err := acquireEngine(r, reg)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, engine.Quote())
	}
}

// CartShippingOptions lists the selectable shipping methods.
func CartShippingOptions(reg *cartsvc.Registry, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		engine, err := acquireEngine(r, reg)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, engine.ShippingOptions())
	}
}

// CartRefresh forces an immediate revalidation pass, superseding any run
// already in flight.
func CartRefresh(reg *cartsvc.Registry, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		engine, err := acquireEngine(r, reg)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		engine.Refocus(r.Context())
		responses.WriteSuccess(w, map[string]string{"status": "refreshing"})
	}
}

// CartEndSession flushes pending writes and tears down the session engine.
func CartEndSession(reg *cartsvc.Registry, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		userID, err := userIDFromRequest(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if err := reg.Release(ctx, userID); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "ended"})
	}
}

func userIDFromRequest(r *http.Request) (uuid.UUID, error) {
	raw := middleware.UserIDFromContext(r.Context())
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing")
	}
	userID, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid user id")
	}
	return userID, nil
}

func acquireEngine(r *http.Request, reg *cartsvc.Registry) (*cartsvc.Engine, error) {
	if reg == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "cart registry unavailable")
	}
	userID, err := userIDFromRequest(r)
	if err != nil {
		return nil, err
	}
	return reg.Acquire(r.Context(), userID)
}

func identityParam(r *http.Request) (cartsvc.Identity, error) {
	raw := strings.TrimSpace(chi.URLParam(r, "identity"))
	if raw == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "item identity required")
	}
	if _, _, err := cartsvc.Parse(raw); err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid item identity")
	}
	return cartsvc.Identity(raw), nil
}

func itemFromPurchaseInfo(info *catalog.PurchaseInfo) cartsvc.Item {
	imageURL := ""
	if info.ImageURL != nil {
		imageURL = *info.ImageURL
	}
	return cartsvc.Item{
		Identity:       cartsvc.Key(info.ProductID, info.VariantID),
		ProductID:      info.ProductID,
		VariantID:      info.VariantID,
		Title:          info.Title,
		Slug:           info.Slug,
		ImageURL:       imageURL,
		CreatorName:    info.CreatorName,
		UnitPriceCents: info.UnitPriceCents,
		StockQty:       info.StockQty,
	}
}

type cartItemResponse struct {
	Identity       string     `json:"identity"`
	ProductID      uuid.UUID  `json:"product_id"`
	VariantID      *uuid.UUID `json:"variant_id,omitempty"`
	Title          string     `json:"title"`
	Slug           string     `json:"slug"`
	ImageURL       string     `json:"image_url,omitempty"`
	CreatorName    string     `json:"creator_name"`
	UnitPriceCents int        `json:"unit_price_cents"`
	StockQty       int        `json:"stock_qty"`
	Quantity       int        `json:"quantity"`
	OutOfStock     bool       `json:"out_of_stock"`
	MutatedAt      time.Time  `json:"mutated_at"`
}

type syncErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type cartViewResponse struct {
	Items           []cartItemResponse      `json:"items"`
	SavedForLater   []cartItemResponse      `json:"saved_for_later"`
	Wishlist        []uuid.UUID             `json:"wishlist"`
	Promo           *promo.Application      `json:"promo,omitempty"`
	Shipping        *pricing.ShippingOption `json:"shipping,omitempty"`
	GiftWrap        bool                    `json:"gift_wrap"`
	Pricing         pricing.Snapshot        `json:"pricing"`
	LastSyncFailure *syncErrorResponse      `json:"last_sync_failure,omitempty"`
}

func newCartViewResponse(view cartsvc.View, failure *pkgerrors.Error) cartViewResponse {
	resp := cartViewResponse{
		Items:         make([]cartItemResponse, len(view.Cart)),
		SavedForLater: make([]cartItemResponse, len(view.Saved)),
		Wishlist:      view.Wishlist,
		Promo:         view.Promo,
		Shipping:      view.Shipping,
		GiftWrap:      view.GiftWrap,
		Pricing:       view.Pricing,
	}
	for i, item := range view.Cart {
		resp.Items[i] = newCartItemResponse(item)
	}
	for i, item := range view.Saved {
		resp.SavedForLater[i] = newCartItemResponse(item)
	}
	if failure != nil {
		resp.LastSyncFailure = &syncErrorResponse{
			Code:    string(failure.Code()),
			Message: failure.Error(),
		}
	}
	return resp
}

func newCartItemResponse(item cartsvc.Item) cartItemResponse {
	return cartItemResponse{
		Identity:       item.Identity.String(),
		ProductID:      item.ProductID,
		VariantID:      item.VariantID,
		Title:          item.Title,
		Slug:           item.Slug,
		ImageURL:       item.ImageURL,
		CreatorName:    item.CreatorName,
		UnitPriceCents: item.UnitPriceCents,
		StockQty:       item.StockQty,
		Quantity:       item.Quantity,
		OutOfStock:     item.OutOfStock,
		MutatedAt:      item.MutatedAt,
	}
}
