package cart

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"

	"github.com/makersrow/storefront-backend/internal/pricing"
	"github.com/makersrow/storefront-backend/internal/promo"
	"github.com/makersrow/storefront-backend/pkg/enums"
	pkgerrors "github.com/makersrow/storefront-backend/pkg/errors"
	"github.com/makersrow/storefront-backend/pkg/logger"
	"github.com/makersrow/storefront-backend/pkg/metrics"
)

const defaultDispatchTimeout = 10 * time.Second

// EngineDeps wires one session engine.
type EngineDeps struct {
	UserID             uuid.UUID
	Remote             RemoteStore
	Promo              *promo.Validator
	Pricer             *pricing.Engine
	Log                *logger.Logger
	Metrics            *metrics.CartMetrics
	ShippingOptions    []pricing.ShippingOption
	DispatchTimeout    time.Duration
	RevalidateInterval time.Duration
}

// Engine is the session-scoped optimistic cart engine. Mutations apply to the
// in-memory container first, then dispatch to the remote store on a goroutine
// tagged with the mutation seq; confirmations reconcile back under the lock.
type Engine struct {
	userID  uuid.UUID
	remote  RemoteStore
	promo   *promo.Validator
	pricer  *pricing.Engine
	log     *logger.Logger
	metrics *metrics.CartMetrics

	mu    sync.Mutex
	state *container
	wg    sync.WaitGroup

	// sends holds the tail of the outbound dispatch chain per identity, so
	// the durable store receives mutations for one identity in local order.
	sends map[string]chan struct{}

	shippingOptions []pricing.ShippingOption
	shipping        *pricing.ShippingOption
	giftWrap        bool
	lastFailure     *pkgerrors.Error

	dispatchTimeout time.Duration
	reval           *revalidator
}

// NewEngine builds a session engine backed by the provided stack.
func NewEngine(deps EngineDeps) (*Engine, error) {
	if deps.UserID == uuid.Nil {
		return nil, fmt.Errorf("user id required")
	}
	if deps.Remote == nil {
		return nil, fmt.Errorf("remote store required")
	}
	if deps.Promo == nil {
		return nil, fmt.Errorf("promo validator required")
	}
	if deps.Pricer == nil {
		return nil, fmt.Errorf("pricing engine required")
	}
	if deps.Log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if deps.DispatchTimeout <= 0 {
		deps.DispatchTimeout = defaultDispatchTimeout
	}

	engine := &Engine{
		userID:          deps.UserID,
		remote:          deps.Remote,
		promo:           deps.Promo,
		pricer:          deps.Pricer,
		log:             deps.Log,
		metrics:         deps.Metrics,
		state:           newContainer(nil),
		sends:           map[string]chan struct{}{},
		shippingOptions: deps.ShippingOptions,
		dispatchTimeout: deps.DispatchTimeout,
	}
	engine.reval = newRevalidator(engine, deps.RevalidateInterval)
	return engine, nil
}

// Hydrate replaces local state with the server view. Called on session start.
func (e *Engine) Hydrate(ctx context.Context) error {
	lines, err := e.remote.FetchLineItems(ctx, e.userID)
	wishlist, wishErr := e.remote.FetchWishlist(ctx, e.userID)
	if combined := multierr.Append(err, wishErr); combined != nil {
		return translateRemoteErr(combined)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.state.reset(lines, wishlist)
	return nil
}

// AddItem merges the item into the cart and dispatches the upsert.
func (e *Engine) AddItem(ctx context.Context, item Item, qty int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	seq, err := e.state.addItem(item, qty)
	if err != nil {
		return err
	}
	e.metrics.IncMutation("add_item")
	e.dispatchUpsertLocked(ctx, item.Identity, seq)
	return nil
}

// RemoveItem drops the identity and dispatches the delete. Absent identities
// are a silent no-op.
func (e *Engine) RemoveItem(ctx context.Context, identity Identity) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	seq, ok := e.state.removeItem(identity)
	if !ok {
		return nil
	}
	e.metrics.IncMutation("remove_item")
	e.dispatchDeleteLocked(ctx, identity, seq)
	return nil
}

// UpdateQuantity sets the cart quantity for the identity.
func (e *Engine) UpdateQuantity(ctx context.Context, identity Identity, qty int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	seq, err := e.state.updateQuantity(identity, qty)
	if err != nil {
		return err
	}
	e.metrics.IncMutation("update_quantity")
	e.dispatchUpsertLocked(ctx, identity, seq)
	return nil
}

// MoveToSaved parks a cart entry in saved-for-later.
func (e *Engine) MoveToSaved(ctx context.Context, identity Identity) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	seq, ok := e.state.moveToSaved(identity)
	if !ok {
		return nil
	}
	e.metrics.IncMutation("move_to_saved")
	e.dispatchUpsertLocked(ctx, identity, seq)
	return nil
}

// MoveToCart restores a saved entry to the cart.
func (e *Engine) MoveToCart(ctx context.Context, identity Identity) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	seq, err := e.state.moveToCart(identity)
	if err != nil {
		return err
	}
	e.metrics.IncMutation("move_to_cart")
	e.dispatchUpsertLocked(ctx, identity, seq)
	return nil
}

// ToggleWishlist flips membership and returns the desired end state.
func (e *Engine) ToggleWishlist(ctx context.Context, productID uuid.UUID) (bool, error) {
	if productID == uuid.Nil {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	wasMember := e.state.wishlistContains(productID)
	member, seq := e.state.toggleWishlist(productID)
	e.metrics.IncMutation("toggle_wishlist")
	e.dispatchWishlistToggleLocked(ctx, productID, seq, wasMember)
	return member, nil
}

// SelectShipping picks one of the configured shipping options.
func (e *Engine) SelectShipping(method enums.ShippingMethod) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, option := range e.shippingOptions {
		if option.Method == method {
			if !option.Active {
				return pkgerrors.New(pkgerrors.CodeValidation, "shipping option is not available")
			}
			selected := option
			e.shipping = &selected
			return nil
		}
	}
	return pkgerrors.New(pkgerrors.CodeValidation, "unknown shipping method")
}

// SetGiftWrap toggles the order-level gift wrap flag.
func (e *Engine) SetGiftWrap(enabled bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.giftWrap = enabled
}

// ApplyPromo validates the code against the apply-time cart subtotal. The
// resulting discount stays frozen until the code is removed or replaced.
func (e *Engine) ApplyPromo(ctx context.Context, code string) (*promo.Application, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.promo.Apply(ctx, code, e.cartSubtotalLocked())
}

// RemovePromo clears any applied code.
func (e *Engine) RemovePromo() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.promo.Remove()
}

// View is the full session snapshot served to clients.
type View struct {
	Cart     []Item
	Saved    []Item
	Wishlist []uuid.UUID
	Promo    *promo.Application
	Shipping *pricing.ShippingOption
	GiftWrap bool
	Pricing  pricing.Snapshot
}

// Snapshot returns a consistent view of the session, priced.
func (e *Engine) Snapshot() View {
	e.mu.Lock()
	defer e.mu.Unlock()

	return View{
		Cart:     e.state.cartItems(),
		Saved:    e.state.savedItems(),
		Wishlist: e.state.wishlistIDs(),
		Promo:    e.promo.Application(),
		Shipping: e.shipping,
		GiftWrap: e.giftWrap,
		Pricing:  e.quoteLocked(),
	}
}

// Quote prices the current cart.
func (e *Engine) Quote() pricing.Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.quoteLocked()
}

// ShippingOptions lists the configured options.
func (e *Engine) ShippingOptions() []pricing.ShippingOption {
	options := make([]pricing.ShippingOption, len(e.shippingOptions))
	copy(options, e.shippingOptions)
	return options
}

// LastFailure reports the most recent reconcile failure. Cleared by the next
// successful confirmation.
func (e *Engine) LastFailure() *pkgerrors.Error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastFailure
}

// Flush blocks until every dispatched mutation has been reconciled. Used at
// teardown and in tests.
func (e *Engine) Flush() {
	e.wg.Wait()
}

// Clear resets the session state. Durable rows stay untouched; the next
// hydrate restores them.
func (e *Engine) Clear() {
	e.reval.stop()
	e.wg.Wait()

	e.mu.Lock()
	defer e.mu.Unlock()
	e.state = newContainer(nil)
	e.promo.Remove()
	e.shipping = nil
	e.giftWrap = false
	e.lastFailure = nil
}

// StartRevalidation begins the interval revalidation loop.
func (e *Engine) StartRevalidation(ctx context.Context) {
	e.reval.start(ctx)
}

// Refocus requests an immediate revalidation, superseding any in-flight run.
func (e *Engine) Refocus(ctx context.Context) {
	e.reval.force(ctx)
}

func (e *Engine) quoteLocked() pricing.Snapshot {
	items := e.state.cartItems()
	lines := make([]pricing.LineInput, 0, len(items))
	for _, item := range items {
		lines = append(lines, pricing.LineInput{
			UnitPrice: pricing.CentsToAmount(item.UnitPriceCents),
			Quantity:  item.Quantity,
		})
	}
	return e.pricer.Quote(lines, e.shipping, e.giftWrap, e.promo.Discount())
}

func (e *Engine) cartSubtotalLocked() decimal.Decimal {
	subtotal := decimal.Zero
	for _, item := range e.state.cartItems() {
		line := pricing.CentsToAmount(item.UnitPriceCents).Mul(decimal.NewFromInt(int64(item.Quantity)))
		subtotal = subtotal.Add(line)
	}
	return subtotal
}

// dispatchUpsertLocked reads the post-mutation entry and ships it. Caller
// holds the lock.
func (e *Engine) dispatchUpsertLocked(ctx context.Context, identity Identity, seq uint64) {
	found, collection, ok := e.state.lookup(identity)
	if !ok {
		return
	}
	payload := RemoteUpsert{
		Identity:   identity,
		ProductID:  found.item.ProductID,
		VariantID:  found.item.VariantID,
		Collection: collection,
		Quantity:   found.item.Quantity,
		MutatedAt:  found.item.MutatedAt,
	}

	logCtx := e.log.WithIdentity(e.log.WithUserID(context.Background(), e.userID.String()), identity.String())
	prev, done := e.chainLocked(string(identity))

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer close(done)
		if prev != nil {
			<-prev
		}

		callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.dispatchTimeout)
		defer cancel()

		line, err := e.remote.UpsertEntry(callCtx, e.userID, payload)

		e.mu.Lock()
		defer e.mu.Unlock()
		e.unchainLocked(string(identity), done)
		if err != nil {
			failure := translateRemoteErr(err)
			e.lastFailure = failure
			var outcome reconcileOutcome
			switch failure.Code() {
			case pkgerrors.CodeOutOfStock:
				outcome = e.state.clampToStock(identity, seq, availableStock(failure))
				e.log.Warn(logCtx, "upsert rejected, quantity clamped to server stock: "+failure.Message())
			case pkgerrors.CodeNotFound:
				outcome = e.state.dropRemote(identity, seq)
				e.log.Warn(logCtx, "upsert target gone server-side, removed locally")
			default:
				outcome = e.state.rollback(identity, seq)
				e.log.Warn(logCtx, "upsert rejected, rolled back: "+failure.Message())
			}
			e.metrics.IncReconcile(string(outcome))
			return
		}
		e.finishReconcileLocked(e.state.applyRemote(identity, seq, line))
	}()
}

// chainLocked appends a link to the identity's outbound chain. The returned
// prev channel, when non-nil, closes once the preceding dispatch for the same
// key has reconciled. Caller holds the lock.
func (e *Engine) chainLocked(key string) (prev <-chan struct{}, done chan struct{}) {
	done = make(chan struct{})
	if tail, ok := e.sends[key]; ok {
		prev = tail
	}
	e.sends[key] = done
	return prev, done
}

// unchainLocked drops the chain tail once the final in-flight dispatch for
// the key has reconciled. Caller holds the lock.
func (e *Engine) unchainLocked(key string, done chan struct{}) {
	if e.sends[key] == done {
		delete(e.sends, key)
	}
}

// availableStock pulls the server-reported stock out of an out-of-stock
// rejection. Absent or malformed details read as zero.
func availableStock(failure *pkgerrors.Error) int {
	details, ok := failure.Details().(map[string]any)
	if !ok {
		return 0
	}
	switch v := details["available"].(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return 0
}

func (e *Engine) dispatchDeleteLocked(ctx context.Context, identity Identity, seq uint64) {
	logCtx := e.log.WithIdentity(e.log.WithUserID(context.Background(), e.userID.String()), identity.String())
	prev, done := e.chainLocked(string(identity))

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer close(done)
		if prev != nil {
			<-prev
		}

		callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.dispatchTimeout)
		defer cancel()

		err := e.remote.DeleteEntry(callCtx, e.userID, identity)

		e.mu.Lock()
		defer e.mu.Unlock()
		e.unchainLocked(string(identity), done)
		if err != nil {
			e.lastFailure = translateRemoteErr(err)
			outcome := e.state.rollback(identity, seq)
			e.metrics.IncReconcile(string(outcome))
			e.log.Warn(logCtx, "delete rejected, rolled back: "+e.lastFailure.Message())
			return
		}
		e.finishReconcileLocked(e.state.applyRemote(identity, seq, nil))
	}()
}

func (e *Engine) dispatchWishlistToggleLocked(ctx context.Context, productID uuid.UUID, seq uint64, wasMember bool) {
	logCtx := e.log.WithUserID(context.Background(), e.userID.String())
	key := "wishlist/" + productID.String()
	prev, done := e.chainLocked(key)

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer close(done)
		if prev != nil {
			<-prev
		}

		callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.dispatchTimeout)
		defer cancel()

		member, err := e.remote.ToggleWishlistEntry(callCtx, e.userID, productID)

		e.mu.Lock()
		defer e.mu.Unlock()
		e.unchainLocked(key, done)
		if err != nil {
			e.lastFailure = translateRemoteErr(err)
			outcome := e.state.rollbackWishlist(productID, seq, wasMember)
			e.metrics.IncReconcile(string(outcome))
			e.log.Warn(logCtx, "wishlist toggle rejected, rolled back: "+e.lastFailure.Message())
			return
		}
		e.finishReconcileLocked(e.state.applyWishlistRemote(productID, seq, member))
	}()
}

func (e *Engine) finishReconcileLocked(outcome reconcileOutcome) {
	if outcome == outcomeApplied {
		e.lastFailure = nil
	}
	e.metrics.IncReconcile(string(outcome))
}
