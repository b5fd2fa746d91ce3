package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/makersrow/storefront-backend/api/controllers"
	"github.com/makersrow/storefront-backend/api/middleware"
	cartsvc "github.com/makersrow/storefront-backend/internal/cart"
	"github.com/makersrow/storefront-backend/internal/cartstore"
	"github.com/makersrow/storefront-backend/internal/catalog"
	"github.com/makersrow/storefront-backend/pkg/config"
	"github.com/makersrow/storefront-backend/pkg/db"
	"github.com/makersrow/storefront-backend/pkg/logger"
	pkgredis "github.com/makersrow/storefront-backend/pkg/redis"
)

// Deps collects everything the HTTP surface needs.
type Deps struct {
	Config   *config.Config
	Log      *logger.Logger
	DB       db.Pinger
	Redis    *pkgredis.Client
	Registry *cartsvc.Registry
	Store    *cartstore.Store
	Catalog  *catalog.Repository
}

func NewRouter(deps Deps) http.Handler {
	cfg := deps.Config
	logg := deps.Log

	// a nil *redis.Client must stay nil once boxed into the middleware
	// interfaces, otherwise the nil checks inside them stop working
	var sessions middleware.SessionChecker
	var limiter middleware.RateLimiterStore
	var idempotency pkgredis.IdempotencyStore
	if deps.Redis != nil {
		sessions = deps.Redis
		limiter = deps.Redis
		idempotency = deps.Redis
	}

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, deps.DB, deps.Redis, logg))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/public", func(r chi.Router) {
		r.Get("/ping", controllers.PublicPing())
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, sessions, logg))
		r.Use(middleware.MutationRateLimit(cfg.RateLimit, limiter, logg))
		r.Use(middleware.Idempotency(idempotency, logg))

		r.Get("/ping", controllers.PrivatePing())

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", controllers.CartSnapshot(deps.Registry, logg))
			r.Get("/quote", controllers.CartQuote(deps.Registry, logg))
			r.Get("/shipping-options", controllers.CartShippingOptions(deps.Registry, logg))
			r.Post("/items", controllers.CartAddItem(deps.Registry, deps.Catalog, logg))
			r.Patch("/items/{identity}", controllers.CartUpdateQuantity(deps.Registry, logg))
			r.Delete("/items/{identity}", controllers.CartRemoveItem(deps.Registry, logg))
			r.Post("/items/{identity}/save", controllers.CartSaveForLater(deps.Registry, logg))
			r.Post("/items/{identity}/restore", controllers.CartRestore(deps.Registry, logg))
			r.Post("/promo", controllers.CartApplyPromo(deps.Registry, logg))
			r.Delete("/promo", controllers.CartRemovePromo(deps.Registry, logg))
			r.Put("/shipping", controllers.CartSelectShipping(deps.Registry, logg))
			r.Put("/gift-wrap", controllers.CartSetGiftWrap(deps.Registry, logg))
			r.Post("/refresh", controllers.CartRefresh(deps.Registry, logg))
			r.Delete("/session", controllers.CartEndSession(deps.Registry, logg))
		})

		r.Route("/wishlist", func(r chi.Router) {
			r.Get("/", controllers.WishlistList(deps.Store, deps.Catalog, logg))
			r.Post("/{productID}/toggle", controllers.WishlistToggle(deps.Registry, logg))
		})
	})

	return r
}
