package cart

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/makersrow/storefront-backend/pkg/enums"
	pkgerrors "github.com/makersrow/storefront-backend/pkg/errors"
)

// Item is the in-memory line entry the container tracks for an identity.
type Item struct {
	Identity       Identity
	ProductID      uuid.UUID
	VariantID      *uuid.UUID
	Title          string
	Slug           string
	ImageURL       string
	CreatorName    string
	UnitPriceCents int
	StockQty       int
	Quantity       int
	OutOfStock     bool
	MutatedAt      time.Time
}

// entry pairs an item with its sequence bookkeeping. localSeq is the seq of
// the last local mutation touching the identity; serverSeq is the seq of the
// last reconciled server confirmation.
type entry struct {
	item      Item
	localSeq  uint64
	serverSeq uint64
}

func (e *entry) unconfirmed() bool {
	return e.localSeq > e.serverSeq
}

// snapshot captures the pre-mutation state for one identity so a failed
// dispatch can roll back exactly that identity.
type snapshot struct {
	existed    bool
	collection enums.Collection
	item       Item
}

// container owns the optimistic session state: cart and saved maps keyed by
// identity, the wishlist set, and per-identity sequence numbers. It is not
// safe for concurrent use; the engine serializes access.
type container struct {
	seq uint64

	cart  map[Identity]*entry
	saved map[Identity]*entry

	wishlist          map[uuid.UUID]struct{}
	wishlistLocalSeq  map[uuid.UUID]uint64
	wishlistServerSeq map[uuid.UUID]uint64

	snapshots map[Identity]map[uint64]snapshot

	now func() time.Time
}

func newContainer(now func() time.Time) *container {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &container{
		cart:              map[Identity]*entry{},
		saved:             map[Identity]*entry{},
		wishlist:          map[uuid.UUID]struct{}{},
		wishlistLocalSeq:  map[uuid.UUID]uint64{},
		wishlistServerSeq: map[uuid.UUID]uint64{},
		snapshots:         map[Identity]map[uint64]snapshot{},
		now:               now,
	}
}

func (c *container) nextSeq() uint64 {
	c.seq++
	return c.seq
}

// lookup finds the entry for an identity in either collection. An identity
// lives in exactly one of cart/saved.
func (c *container) lookup(identity Identity) (*entry, enums.Collection, bool) {
	if found, ok := c.cart[identity]; ok {
		return found, enums.CollectionCart, true
	}
	if found, ok := c.saved[identity]; ok {
		return found, enums.CollectionSaved, true
	}
	return nil, "", false
}

func (c *container) collectionOf(collection enums.Collection) map[Identity]*entry {
	if collection == enums.CollectionSaved {
		return c.saved
	}
	return c.cart
}

func (c *container) recordSnapshot(identity Identity, seq uint64) {
	snap := snapshot{}
	if found, collection, ok := c.lookup(identity); ok {
		snap = snapshot{existed: true, collection: collection, item: found.item}
	}
	if c.snapshots[identity] == nil {
		c.snapshots[identity] = map[uint64]snapshot{}
	}
	c.snapshots[identity][seq] = snap
}

func clampQuantity(qty, stock int) int {
	if qty > stock {
		return stock
	}
	return qty
}

// addItem merges by identity into the cart. An entry parked in saved is
// promoted rather than duplicated.
func (c *container) addItem(item Item, qty int) (uint64, error) {
	if qty < 1 {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be at least 1")
	}
	if item.Identity == "" {
		item.Identity = Key(item.ProductID, item.VariantID)
	}
	if item.StockQty < 1 {
		return 0, pkgerrors.New(pkgerrors.CodeOutOfStock, "item is out of stock").
			WithDetails(map[string]any{"available": 0})
	}

	seq := c.nextSeq()
	c.recordSnapshot(item.Identity, seq)

	existing, collection, ok := c.lookup(item.Identity)
	if ok {
		merged := existing.item.Quantity + qty
		if collection == enums.CollectionSaved {
			delete(c.saved, item.Identity)
			merged = qty
		}
		existing.item.StockQty = item.StockQty
		existing.item.UnitPriceCents = item.UnitPriceCents
		existing.item.Quantity = clampQuantity(merged, item.StockQty)
		existing.item.OutOfStock = false
		existing.item.MutatedAt = c.now()
		existing.localSeq = seq
		c.cart[item.Identity] = existing
		return seq, nil
	}

	item.Quantity = clampQuantity(qty, item.StockQty)
	item.OutOfStock = false
	item.MutatedAt = c.now()
	c.cart[item.Identity] = &entry{item: item, localSeq: seq}
	return seq, nil
}

// removeItem drops the identity from whichever collection holds it. Removing
// an absent identity is a no-op so retries stay safe.
func (c *container) removeItem(identity Identity) (uint64, bool) {
	_, collection, ok := c.lookup(identity)
	if !ok {
		return 0, false
	}

	seq := c.nextSeq()
	c.recordSnapshot(identity, seq)
	delete(c.collectionOf(collection), identity)
	return seq, true
}

// updateQuantity sets the cart quantity for an identity, clamped to known
// stock. A zero-stock entry is flagged out-of-stock and left in place.
func (c *container) updateQuantity(identity Identity, qty int) (uint64, error) {
	if qty < 1 {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be at least 1")
	}
	found, ok := c.cart[identity]
	if !ok {
		return 0, pkgerrors.New(pkgerrors.CodeNotFound, "item is not in the cart")
	}
	if found.item.StockQty < 1 {
		found.item.OutOfStock = true
		found.item.MutatedAt = c.now()
		return 0, pkgerrors.New(pkgerrors.CodeOutOfStock, "item is out of stock").
			WithDetails(map[string]any{"available": 0})
	}

	seq := c.nextSeq()
	c.recordSnapshot(identity, seq)
	found.item.Quantity = clampQuantity(qty, found.item.StockQty)
	found.item.OutOfStock = false
	found.item.MutatedAt = c.now()
	found.localSeq = seq
	return seq, nil
}

// moveToSaved parks a cart entry in saved-for-later, dropping its quantity.
func (c *container) moveToSaved(identity Identity) (uint64, bool) {
	found, ok := c.cart[identity]
	if !ok {
		return 0, false
	}

	seq := c.nextSeq()
	c.recordSnapshot(identity, seq)
	delete(c.cart, identity)
	found.item.Quantity = 1
	found.item.MutatedAt = c.now()
	found.localSeq = seq
	c.saved[identity] = found
	return seq, true
}

// moveToCart restores a saved entry to the cart with quantity 1. Zero stock
// rejects the move and flags the saved entry instead.
func (c *container) moveToCart(identity Identity) (uint64, error) {
	found, ok := c.saved[identity]
	if !ok {
		return 0, pkgerrors.New(pkgerrors.CodeNotFound, "item is not saved for later")
	}
	if found.item.StockQty < 1 {
		found.item.OutOfStock = true
		found.item.MutatedAt = c.now()
		return 0, pkgerrors.New(pkgerrors.CodeOutOfStock, "item is out of stock").
			WithDetails(map[string]any{"available": 0})
	}

	seq := c.nextSeq()
	c.recordSnapshot(identity, seq)
	delete(c.saved, identity)
	found.item.Quantity = 1
	found.item.OutOfStock = false
	found.item.MutatedAt = c.now()
	found.localSeq = seq
	c.cart[identity] = found
	return seq, nil
}

// toggleWishlist flips membership and returns the desired end state. The seq
// lets late server responses be discarded so double-fires settle on the last
// local intent.
func (c *container) toggleWishlist(productID uuid.UUID) (bool, uint64) {
	seq := c.nextSeq()
	c.wishlistLocalSeq[productID] = seq

	if _, ok := c.wishlist[productID]; ok {
		delete(c.wishlist, productID)
		return false, seq
	}
	c.wishlist[productID] = struct{}{}
	return true, seq
}

func (c *container) wishlistContains(productID uuid.UUID) bool {
	_, ok := c.wishlist[productID]
	return ok
}

func (c *container) cartItems() []Item {
	return collectItems(c.cart)
}

func (c *container) savedItems() []Item {
	return collectItems(c.saved)
}

func (c *container) wishlistIDs() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(c.wishlist))
	for id := range c.wishlist {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	return ids
}

func collectItems(entries map[Identity]*entry) []Item {
	items := make([]Item, 0, len(entries))
	for _, found := range entries {
		items = append(items, found.item)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Identity < items[j].Identity })
	return items
}

// reset replaces all local state with the server view. Used on hydrate.
func (c *container) reset(lines []RemoteLineItem, wishlist []uuid.UUID) {
	c.cart = map[Identity]*entry{}
	c.saved = map[Identity]*entry{}
	c.wishlist = map[uuid.UUID]struct{}{}
	c.wishlistLocalSeq = map[uuid.UUID]uint64{}
	c.wishlistServerSeq = map[uuid.UUID]uint64{}
	c.snapshots = map[Identity]map[uint64]snapshot{}

	for _, line := range lines {
		c.collectionOf(line.Collection)[line.Identity] = &entry{item: itemFromRemote(line)}
	}
	for _, id := range wishlist {
		c.wishlist[id] = struct{}{}
	}
}

func itemFromRemote(line RemoteLineItem) Item {
	return Item{
		Identity:       line.Identity,
		ProductID:      line.ProductID,
		VariantID:      line.VariantID,
		Title:          line.Title,
		Slug:           line.Slug,
		ImageURL:       line.ImageURL,
		CreatorName:    line.CreatorName,
		UnitPriceCents: line.UnitPriceCents,
		StockQty:       line.StockQty,
		Quantity:       line.Quantity,
		OutOfStock:     line.StockQty < 1,
		MutatedAt:      line.MutatedAt,
	}
}
