package cart

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/makersrow/storefront-backend/internal/pricing"
	"github.com/makersrow/storefront-backend/internal/promo"
	"github.com/makersrow/storefront-backend/pkg/config"
	"github.com/makersrow/storefront-backend/pkg/enums"
	"github.com/makersrow/storefront-backend/pkg/logger"
	"github.com/makersrow/storefront-backend/pkg/metrics"
)

// DefaultShippingOptions is the storefront's stock shipping menu.
func DefaultShippingOptions() []pricing.ShippingOption {
	return []pricing.ShippingOption{
		{Method: enums.ShippingMethodStandard, Label: "Standard (5-7 days)", PriceCents: 599, Active: true},
		{Method: enums.ShippingMethodExpress, Label: "Express (2-3 days)", PriceCents: 1299, Active: true},
		{Method: enums.ShippingMethodOvernight, Label: "Overnight", PriceCents: 2499, Active: true},
	}
}

// RegistryDeps wires the per-user engine registry.
type RegistryDeps struct {
	Remote          RemoteStore
	Codes           promo.CodeSource
	Pricer          *pricing.Engine
	Log             *logger.Logger
	Metrics         *metrics.CartMetrics
	ShippingOptions []pricing.ShippingOption
	Cart            config.CartConfig
}

// Registry hands out one engine per user and tears them down on release.
type Registry struct {
	deps RegistryDeps

	mu      sync.Mutex
	engines map[uuid.UUID]*Engine
}

// NewRegistry builds the registry backed by the provided stack.
func NewRegistry(deps RegistryDeps) (*Registry, error) {
	if deps.Remote == nil {
		return nil, fmt.Errorf("remote store required")
	}
	if deps.Codes == nil {
		return nil, fmt.Errorf("promo code source required")
	}
	if deps.Pricer == nil {
		return nil, fmt.Errorf("pricing engine required")
	}
	if deps.Log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if len(deps.ShippingOptions) == 0 {
		deps.ShippingOptions = DefaultShippingOptions()
	}
	return &Registry{deps: deps, engines: map[uuid.UUID]*Engine{}}, nil
}

// Acquire returns the user's engine, hydrating a fresh one on first use.
func (r *Registry) Acquire(ctx context.Context, userID uuid.UUID) (*Engine, error) {
	r.mu.Lock()
	if engine, ok := r.engines[userID]; ok {
		r.mu.Unlock()
		return engine, nil
	}
	r.mu.Unlock()

	validator, err := promo.NewValidator(r.deps.Codes)
	if err != nil {
		return nil, err
	}
	engine, err := NewEngine(EngineDeps{
		UserID:             userID,
		Remote:             r.deps.Remote,
		Promo:              validator,
		Pricer:             r.deps.Pricer,
		Log:                r.deps.Log,
		Metrics:            r.deps.Metrics,
		ShippingOptions:    r.deps.ShippingOptions,
		DispatchTimeout:    r.deps.Cart.DispatchTimeout,
		RevalidateInterval: r.deps.Cart.RevalidateInterval,
	})
	if err != nil {
		return nil, err
	}
	if err := engine.Hydrate(ctx); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.engines[userID]; ok {
		// lost the race; drop ours
		engine.Clear()
		return existing, nil
	}
	engine.StartRevalidation(ctx)
	r.engines[userID] = engine
	return engine, nil
}

// Release flushes and tears down the user's engine. The durable cart stays;
// the wishlist is only dropped remotely when the instance is configured to
// clear it at session end.
func (r *Registry) Release(ctx context.Context, userID uuid.UUID) error {
	r.mu.Lock()
	engine, ok := r.engines[userID]
	if ok {
		delete(r.engines, userID)
	}
	r.mu.Unlock()
	if !ok {
		return nil
	}

	engine.Flush()

	if r.deps.Cart.ClearWishlistOnEnd {
		for _, productID := range engine.Snapshot().Wishlist {
			if _, err := r.deps.Remote.ToggleWishlistEntry(ctx, userID, productID); err != nil {
				logCtx := r.deps.Log.WithUserID(ctx, userID.String())
				r.deps.Log.Warn(logCtx, "wishlist clear failed: "+err.Error())
			}
		}
	}

	engine.Clear()
	return nil
}

// Shutdown releases every live engine.
func (r *Registry) Shutdown(ctx context.Context) {
	r.mu.Lock()
	userIDs := make([]uuid.UUID, 0, len(r.engines))
	for userID := range r.engines {
		userIDs = append(userIDs, userID)
	}
	r.mu.Unlock()

	for _, userID := range userIDs {
		_ = r.Release(ctx, userID)
	}
}
