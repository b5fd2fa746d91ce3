package cart

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	pkgerrors "github.com/makersrow/storefront-backend/pkg/errors"
)

// reconcileOutcome labels what the container did with a server response.
type reconcileOutcome string

const (
	outcomeApplied    reconcileOutcome = "applied"
	outcomeStaleDrop  reconcileOutcome = "stale_dropped"
	outcomeRolledBack reconcileOutcome = "rolled_back"
	outcomeSuperseded reconcileOutcome = "superseded"
	outcomeClamped    reconcileOutcome = "clamped"
	outcomeEvicted    reconcileOutcome = "evicted"
)

// applyRemote folds a successful server confirmation back into the container.
// The server record replaces the local entry for that identity only, and only
// when no newer local mutation has raced past the dispatched seq. A nil line
// confirms a deletion.
func (c *container) applyRemote(identity Identity, seq uint64, line *RemoteLineItem) reconcileOutcome {
	found, collection, ok := c.lookup(identity)
	if ok && (found.localSeq > seq || found.serverSeq > seq) {
		c.dropSnapshot(identity, seq)
		return outcomeStaleDrop
	}

	c.dropSnapshot(identity, seq)

	if line == nil {
		if ok {
			delete(c.collectionOf(collection), identity)
		}
		return outcomeApplied
	}

	next := &entry{item: itemFromRemote(*line), localSeq: seq, serverSeq: seq}
	if ok {
		delete(c.collectionOf(collection), identity)
	}
	c.collectionOf(line.Collection)[identity] = next
	return outcomeApplied
}

// rollback restores the pre-mutation snapshot for the identity. A mutation
// that was superseded by a newer local change keeps the newer state instead.
func (c *container) rollback(identity Identity, seq uint64) reconcileOutcome {
	snap, ok := c.takeSnapshot(identity, seq)
	if !ok {
		return outcomeStaleDrop
	}

	if found, collection, exists := c.lookup(identity); exists {
		if found.localSeq > seq {
			return outcomeSuperseded
		}
		delete(c.collectionOf(collection), identity)
	}
	if snap.existed {
		c.collectionOf(snap.collection)[identity] = &entry{item: snap.item, localSeq: seq, serverSeq: seq}
	}
	return outcomeRolledBack
}

// clampToStock recovers an out-of-stock rejection in place: the entry keeps
// its position and its quantity drops to the server-reported stock. Zero stock
// flags the line instead of deleting it. A newer local mutation keeps its
// state and reconciles on its own dispatch.
func (c *container) clampToStock(identity Identity, seq uint64, available int) reconcileOutcome {
	c.dropSnapshot(identity, seq)

	found, _, ok := c.lookup(identity)
	if !ok || found.serverSeq > seq {
		return outcomeStaleDrop
	}
	if found.localSeq > seq {
		return outcomeSuperseded
	}

	found.item.StockQty = available
	if available < 1 {
		found.item.OutOfStock = true
	} else {
		found.item.Quantity = clampQuantity(found.item.Quantity, available)
		found.item.OutOfStock = false
	}
	found.item.MutatedAt = c.now()
	found.serverSeq = seq
	return outcomeClamped
}

// dropRemote removes an identity whose server-side row no longer exists, so
// the local view does not keep a ghost line until the next revalidation.
func (c *container) dropRemote(identity Identity, seq uint64) reconcileOutcome {
	c.dropSnapshot(identity, seq)

	found, collection, ok := c.lookup(identity)
	if !ok || found.serverSeq > seq {
		return outcomeStaleDrop
	}
	if found.localSeq > seq {
		return outcomeSuperseded
	}
	delete(c.collectionOf(collection), identity)
	return outcomeEvicted
}

// applyWishlistRemote folds a toggle confirmation into the wishlist. The last
// local intent wins over network arrival order.
func (c *container) applyWishlistRemote(productID uuid.UUID, seq uint64, member bool) reconcileOutcome {
	if c.wishlistLocalSeq[productID] > seq {
		return outcomeStaleDrop
	}
	if c.wishlistServerSeq[productID] > seq {
		return outcomeStaleDrop
	}
	c.wishlistServerSeq[productID] = seq

	if member {
		c.wishlist[productID] = struct{}{}
	} else {
		delete(c.wishlist, productID)
	}
	return outcomeApplied
}

// rollbackWishlist restores the pre-toggle membership unless a newer local
// toggle already owns the product.
func (c *container) rollbackWishlist(productID uuid.UUID, seq uint64, wasMember bool) reconcileOutcome {
	if c.wishlistLocalSeq[productID] > seq {
		return outcomeSuperseded
	}
	if wasMember {
		c.wishlist[productID] = struct{}{}
	} else {
		delete(c.wishlist, productID)
	}
	return outcomeRolledBack
}

func (c *container) dropSnapshot(identity Identity, seq uint64) {
	if perIdentity, ok := c.snapshots[identity]; ok {
		delete(perIdentity, seq)
		if len(perIdentity) == 0 {
			delete(c.snapshots, identity)
		}
	}
}

func (c *container) takeSnapshot(identity Identity, seq uint64) (snapshot, bool) {
	perIdentity, ok := c.snapshots[identity]
	if !ok {
		return snapshot{}, false
	}
	snap, ok := perIdentity[seq]
	if ok {
		c.dropSnapshot(identity, seq)
	}
	return snap, ok
}

// translateRemoteErr maps adapter failures onto the error taxonomy. Nothing
// crosses the reconcile boundary untyped.
func translateRemoteErr(err error) *pkgerrors.Error {
	if err == nil {
		return nil
	}
	if coded := pkgerrors.As(err); coded != nil {
		return coded
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "record not found")
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "remote store timed out")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "remote store unavailable")
}
