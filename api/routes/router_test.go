package routes

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	cartsvc "github.com/makersrow/storefront-backend/internal/cart"
	"github.com/makersrow/storefront-backend/internal/cartstore"
	"github.com/makersrow/storefront-backend/internal/catalog"
	"github.com/makersrow/storefront-backend/internal/pricing"
	"github.com/makersrow/storefront-backend/internal/promo"
	"github.com/makersrow/storefront-backend/pkg/config"
	"github.com/makersrow/storefront-backend/pkg/logger"
)

type stubPinger struct{}

func (stubPinger) Ping(context.Context) error {
	return nil
}

func testConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{Env: "development", Port: "8080"},
		JWT: config.JWTConfig{
			Secret:            "router-test-secret",
			Issuer:            "storefront-test",
			ExpirationMinutes: 60,
		},
	}
}

func setupRouter(t *testing.T) (http.Handler, *gorm.DB, *config.Config) {
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

	listings := catalog.NewRepository(db)
	store, err := cartstore.NewStore(db, listings)
	require.NoError(t, err)

	logg := logger.New(logger.Options{ServiceName: "router-test", Output: io.Discard})
	registry, err := cartsvc.NewRegistry(cartsvc.RegistryDeps{
		Remote: store,
		Codes:  promo.NewRepository(db),
		Pricer: pricing.NewEngine(decimal.NewFromFloat(0.18), 499),
		Log:    logg,
		Cart:   config.CartConfig{DispatchTimeout: 2 * time.Second},
	})
	require.NoError(t, err)
	t.Cleanup(func() { registry.Shutdown(context.Background()) })

	cfg := testConfig()
	handler := NewRouter(Deps{
		Config:   cfg,
		Log:      logg,
		DB:       stubPinger{},
		Redis:    nil,
		Registry: registry,
		Store:    store,
		Catalog:  listings,
	})
	return handler, db, cfg
}

func mintRouterToken(t *testing.T, cfg *config.Config, userID uuid.UUID) string {
	t.Helper()
	claims := jwt.RegisteredClaims{
		ID:        "session-" + userID.String()[:8],
		Issuer:    cfg.JWT.Issuer,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, struct {
		jwt.RegisteredClaims
		UserID string `json:"uid"`
	}{RegisteredClaims: claims, UserID: userID.String()})
	signed, err := token.SignedString([]byte(cfg.JWT.Secret))
	require.NoError(t, err)
	return signed
}

func TestRouterHealthAndPublicRoutes(t *testing.T) {
	handler, _, _ := setupRouter(t)

	for _, path := range []string{"/health/live", "/health/ready", "/api/public/ping", "/metrics"} {
		resp := httptest.NewRecorder()
		handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, path, nil))
		require.Equal(t, http.StatusOK, resp.Code, path)
	}
}

func TestRouterRejectsUnauthenticatedCartAccess(t *testing.T) {
	handler, _, _ := setupRouter(t)

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil))
	require.Equal(t, http.StatusUnauthorized, resp.Code)
}

func TestRouterServesAuthenticatedCartSnapshot(t *testing.T) {
	handler, _, cfg := setupRouter(t)
	userID := uuid.New()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil)
	req.Header.Set("Authorization", "Bearer "+mintRouterToken(t, cfg, userID))
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	var envelope struct {
		Data struct {
			Items    []any       `json:"items"`
			Wishlist []uuid.UUID `json:"wishlist"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &envelope))
	require.Empty(t, envelope.Data.Items)
}

func TestRouterWishlistRouteWired(t *testing.T) {
	handler, _, cfg := setupRouter(t)
	userID := uuid.New()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/wishlist", nil)
	req.Header.Set("Authorization", "Bearer "+mintRouterToken(t, cfg, userID))
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
}
