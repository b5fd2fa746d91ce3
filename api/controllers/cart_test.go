package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/makersrow/storefront-backend/api/middleware"
	cartsvc "github.com/makersrow/storefront-backend/internal/cart"
	"github.com/makersrow/storefront-backend/internal/cartstore"
	"github.com/makersrow/storefront-backend/internal/catalog"
	"github.com/makersrow/storefront-backend/internal/pricing"
	"github.com/makersrow/storefront-backend/internal/promo"
	"github.com/makersrow/storefront-backend/pkg/config"
	"github.com/makersrow/storefront-backend/pkg/logger"
	"github.com/shopspring/decimal"
)

type testEnv struct {
	db       *gorm.DB
	registry *cartsvc.Registry
	store    *cartstore.Store
	userID   uuid.UUID
	router   chi.Router
}

func setupControllerDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	require.NoError(t, err)

	schemas := []string{
		`CREATE TABLE IF NOT EXISTS products (
  id TEXT PRIMARY KEY,
  creator_id TEXT NOT NULL,
  sku TEXT NOT NULL,
  title TEXT NOT NULL,
  slug TEXT NOT NULL UNIQUE,
  price_cents INTEGER NOT NULL,
  stock_qty INTEGER NOT NULL DEFAULT 0,
  is_active INTEGER NOT NULL DEFAULT 1,
  image_url TEXT,
  creator_name TEXT NOT NULL
);`,
		`CREATE TABLE IF NOT EXISTS product_variants (
  id TEXT PRIMARY KEY,
  product_id TEXT NOT NULL,
  name TEXT NOT NULL,
  price_cents INTEGER,
  stock_qty INTEGER NOT NULL DEFAULT 0,
  is_active INTEGER NOT NULL DEFAULT 1
);`,
		`CREATE TABLE IF NOT EXISTS line_items (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL,
  identity_key TEXT NOT NULL,
  product_id TEXT NOT NULL,
  variant_id TEXT,
  collection TEXT NOT NULL DEFAULT 'cart',
  quantity INTEGER NOT NULL DEFAULT 1,
  unit_price_cents INTEGER NOT NULL,
  stock_qty INTEGER NOT NULL DEFAULT 0,
  title TEXT NOT NULL,
  slug TEXT NOT NULL,
  image_url TEXT,
  creator_name TEXT NOT NULL,
  mutated_at DATETIME NOT NULL,
  created_at DATETIME,
  updated_at DATETIME,
  UNIQUE (user_id, identity_key)
);`,
		`CREATE TABLE IF NOT EXISTS wishlist_items (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL,
  product_id TEXT NOT NULL,
  created_at DATETIME,
  UNIQUE (user_id, product_id)
);`,
		`CREATE TABLE IF NOT EXISTS promo_codes (
  id TEXT PRIMARY KEY,
  code TEXT NOT NULL UNIQUE,
  kind TEXT NOT NULL,
  percent_bps INTEGER NOT NULL DEFAULT 0,
  amount_cents INTEGER NOT NULL DEFAULT 0,
  is_active INTEGER NOT NULL DEFAULT 1,
  expires_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`,
	}
	for _, schema := range schemas {
		require.NoError(t, db.Exec(schema).Error)
	}
	return db
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db := setupControllerDB(t)
	listings := catalog.NewRepository(db)
	store, err := cartstore.NewStore(db, listings)
	require.NoError(t, err)

	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	registry, err := cartsvc.NewRegistry(cartsvc.RegistryDeps{
		Remote: store,
		Codes:  promo.NewRepository(db),
		Pricer: pricing.NewEngine(decimal.NewFromFloat(0.18), 499),
		Log:    logg,
		Cart:   config.CartConfig{DispatchTimeout: 2 * time.Second},
	})
	require.NoError(t, err)
	t.Cleanup(func() { registry.Shutdown(context.Background()) })

	userID := uuid.New()

	router := chi.NewRouter()
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(middleware.WithUserID(r.Context(), userID.String())))
		})
	})
	router.Get("/api/v1/cart", CartSnapshot(registry, logg))
	router.Post("/api/v1/cart/items", CartAddItem(registry, listings, logg))
	router.Patch("/api/v1/cart/items/{identity}", CartUpdateQuantity(registry, logg))
	router.Delete("/api/v1/cart/items/{identity}", CartRemoveItem(registry, logg))
	router.Post("/api/v1/cart/items/{identity}/save", CartSaveForLater(registry, logg))
	router.Post("/api/v1/cart/items/{identity}/restore", CartRestore(registry, logg))
	router.Post("/api/v1/cart/promo", CartApplyPromo(registry, logg))
	router.Delete("/api/v1/cart/promo", CartRemovePromo(registry, logg))
	router.Put("/api/v1/cart/shipping", CartSelectShipping(registry, logg))
	router.Put("/api/v1/cart/gift-wrap", CartSetGiftWrap(registry, logg))
	router.Get("/api/v1/cart/quote", CartQuote(registry, logg))
	router.Get("/api/v1/cart/shipping-options", CartShippingOptions(registry, logg))
	router.Post("/api/v1/cart/refresh", CartRefresh(registry, logg))
	router.Delete("/api/v1/cart/session", CartEndSession(registry, logg))
	router.Post("/api/v1/wishlist/{productID}/toggle", WishlistToggle(registry, logg))
	router.Get("/api/v1/wishlist", WishlistList(store, listings, logg))

	return &testEnv{db: db, registry: registry, store: store, userID: userID, router: router}
}

func (env *testEnv) seedProduct(t *testing.T, priceCents, stock int) uuid.UUID {
	t.Helper()
	id := uuid.New()
	require.NoError(t, env.db.Exec(
		`INSERT INTO products (id, creator_id, sku, title, slug, price_cents, stock_qty, is_active, creator_name)
		 VALUES (?, ?, ?, ?, ?, ?, ?, 1, ?)`,
		id, uuid.New(), "SKU-"+id.String()[:8], "Walnut serving board", "board-"+id.String()[:8],
		priceCents, stock, "Ada Brennan",
	).Error)
	return id
}

func (env *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(encoded)
	}
	req := httptest.NewRequest(method, path, reader)
	resp := httptest.NewRecorder()
	env.router.ServeHTTP(resp, req)
	return resp
}

func (env *testEnv) flush(t *testing.T) {
	t.Helper()
	engine, err := env.registry.Acquire(context.Background(), env.userID)
	require.NoError(t, err)
	engine.Flush()
}

func decodeView(t *testing.T, resp *httptest.ResponseRecorder) cartViewResponse {
	t.Helper()
	var envelope struct {
		Data cartViewResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &envelope))
	return envelope.Data
}

func TestCartAddItemPersistsLine(t *testing.T) {
	env := newTestEnv(t)
	productID := env.seedProduct(t, 2500, 10)

	resp := env.do(t, http.MethodPost, "/api/v1/cart/items", map[string]any{
		"product_id": productID,
		"quantity":   2,
	})
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())

	view := decodeView(t, resp)
	require.Len(t, view.Items, 1)
	assert.Equal(t, 2, view.Items[0].Quantity)
	assert.Equal(t, 2500, view.Items[0].UnitPriceCents)

	env.flush(t)
	var count int64
	require.NoError(t, env.db.Table("line_items").Where("user_id = ?", env.userID).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestCartAddItemUnknownProduct(t *testing.T) {
	env := newTestEnv(t)
	resp := env.do(t, http.MethodPost, "/api/v1/cart/items", map[string]any{
		"product_id": uuid.New(),
		"quantity":   1,
	})
	require.Equal(t, http.StatusNotFound, resp.Code)
}

func TestCartAddItemRejectsZeroQuantity(t *testing.T) {
	env := newTestEnv(t)
	productID := env.seedProduct(t, 2500, 10)
	resp := env.do(t, http.MethodPost, "/api/v1/cart/items", map[string]any{
		"product_id": productID,
		"quantity":   0,
	})
	require.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestCartUpdateQuantityAndRemove(t *testing.T) {
	env := newTestEnv(t)
	productID := env.seedProduct(t, 2500, 10)

	resp := env.do(t, http.MethodPost, "/api/v1/cart/items", map[string]any{
		"product_id": productID,
		"quantity":   1,
	})
	require.Equal(t, http.StatusCreated, resp.Code)
	identity := decodeView(t, resp).Items[0].Identity

	resp = env.do(t, http.MethodPatch, "/api/v1/cart/items/"+identity, map[string]any{"quantity": 4})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	assert.Equal(t, 4, decodeView(t, resp).Items[0].Quantity)

	resp = env.do(t, http.MethodDelete, "/api/v1/cart/items/"+identity, nil)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Empty(t, decodeView(t, resp).Items)
}

func TestCartSaveAndRestoreRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	productID := env.seedProduct(t, 2500, 10)

	resp := env.do(t, http.MethodPost, "/api/v1/cart/items", map[string]any{
		"product_id": productID,
		"quantity":   3,
	})
	identity := decodeView(t, resp).Items[0].Identity

	resp = env.do(t, http.MethodPost, fmt.Sprintf("/api/v1/cart/items/%s/save", identity), nil)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	view := decodeView(t, resp)
	assert.Empty(t, view.Items)
	require.Len(t, view.SavedForLater, 1)
	assert.Equal(t, 1, view.SavedForLater[0].Quantity)

	resp = env.do(t, http.MethodPost, fmt.Sprintf("/api/v1/cart/items/%s/restore", identity), nil)
	require.Equal(t, http.StatusOK, resp.Code)
	view = decodeView(t, resp)
	require.Len(t, view.Items, 1)
	assert.Empty(t, view.SavedForLater)
}

func TestCartPromoLifecycle(t *testing.T) {
	env := newTestEnv(t)
	productID := env.seedProduct(t, 2000, 10)
	require.NoError(t, env.db.Exec(
		`INSERT INTO promo_codes (id, code, kind, percent_bps, amount_cents, is_active)
		 VALUES (?, 'WELCOME10', 'percentage', 1000, 0, 1)`, uuid.New(),
	).Error)

	env.do(t, http.MethodPost, "/api/v1/cart/items", map[string]any{
		"product_id": productID,
		"quantity":   1,
	})

	resp := env.do(t, http.MethodPost, "/api/v1/cart/promo", map[string]any{"code": "WELCOME10"})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	view := decodeView(t, resp)
	require.NotNil(t, view.Promo)
	assert.Equal(t, "WELCOME10", view.Promo.Code)
	assert.True(t, view.Pricing.Discount.Equal(decimal.NewFromInt(2)), view.Pricing.Discount.String())

	resp = env.do(t, http.MethodDelete, "/api/v1/cart/promo", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Nil(t, decodeView(t, resp).Promo)
}

func TestCartPromoCodeTrimmed(t *testing.T) {
	env := newTestEnv(t)
	productID := env.seedProduct(t, 2000, 10)
	require.NoError(t, env.db.Exec(
		`INSERT INTO promo_codes (id, code, kind, percent_bps, amount_cents, is_active)
		 VALUES (?, 'WELCOME10', 'percentage', 1000, 0, 1)`, uuid.New(),
	).Error)

	env.do(t, http.MethodPost, "/api/v1/cart/items", map[string]any{
		"product_id": productID,
		"quantity":   1,
	})

	resp := env.do(t, http.MethodPost, "/api/v1/cart/promo", map[string]any{"code": "  WELCOME10  "})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	view := decodeView(t, resp)
	require.NotNil(t, view.Promo)
	assert.Equal(t, "WELCOME10", view.Promo.Code)
}

func TestCartShippingMethodTrimmed(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodPut, "/api/v1/cart/shipping", map[string]any{"method": "  Express "})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	view := decodeView(t, resp)
	require.NotNil(t, view.Shipping)
	assert.Equal(t, "express", string(view.Shipping.Method))
}

func TestCartPromoUnknownCode(t *testing.T) {
	env := newTestEnv(t)
	resp := env.do(t, http.MethodPost, "/api/v1/cart/promo", map[string]any{"code": "NOPE"})
	require.Equal(t, http.StatusUnprocessableEntity, resp.Code, resp.Body.String())
}

func TestCartShippingSelection(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodPut, "/api/v1/cart/shipping", map[string]any{"method": "express"})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	view := decodeView(t, resp)
	require.NotNil(t, view.Shipping)
	assert.Equal(t, "express", string(view.Shipping.Method))

	resp = env.do(t, http.MethodPut, "/api/v1/cart/shipping", map[string]any{"method": "teleport"})
	require.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestCartGiftWrapAndQuote(t *testing.T) {
	env := newTestEnv(t)
	productID := env.seedProduct(t, 1000, 10)

	env.do(t, http.MethodPost, "/api/v1/cart/items", map[string]any{
		"product_id": productID,
		"quantity":   2,
	})
	env.do(t, http.MethodPut, "/api/v1/cart/shipping", map[string]any{"method": "standard"})
	resp := env.do(t, http.MethodPut, "/api/v1/cart/gift-wrap", map[string]any{"enabled": true})
	require.Equal(t, http.StatusOK, resp.Code)
	assert.True(t, decodeView(t, resp).GiftWrap)

	resp = env.do(t, http.MethodGet, "/api/v1/cart/quote", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	var envelope struct {
		Data pricing.Snapshot `json:"data"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &envelope))
	// 20.00 subtotal + 5.99 shipping + 4.99 wrap + 3.60 tax
	assert.Equal(t, "34.58", envelope.Data.Total.StringFixed(2))
}

func TestCartShippingOptionsListing(t *testing.T) {
	env := newTestEnv(t)
	resp := env.do(t, http.MethodGet, "/api/v1/cart/shipping-options", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	var envelope struct {
		Data []pricing.ShippingOption `json:"data"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &envelope))
	assert.Len(t, envelope.Data, 3)
}

func TestCartRefreshAndEndSession(t *testing.T) {
	env := newTestEnv(t)
	productID := env.seedProduct(t, 1500, 5)

	env.do(t, http.MethodPost, "/api/v1/cart/items", map[string]any{
		"product_id": productID,
		"quantity":   1,
	})

	resp := env.do(t, http.MethodPost, "/api/v1/cart/refresh", nil)
	require.Equal(t, http.StatusOK, resp.Code)

	resp = env.do(t, http.MethodDelete, "/api/v1/cart/session", nil)
	require.Equal(t, http.StatusOK, resp.Code)

	// durable cart survives session teardown
	var count int64
	require.NoError(t, env.db.Table("line_items").Where("user_id = ?", env.userID).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}
