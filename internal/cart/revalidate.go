package cart

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/makersrow/storefront-backend/pkg/metrics"
)

const defaultRevalidateInterval = 60 * time.Second

// revalidator drives background refreshes of server truth. Interval ticks are
// debounced against an in-flight run; a focus trigger supersedes the current
// run by cancelling its context.
type revalidator struct {
	engine   *Engine
	interval time.Duration

	mu         sync.Mutex
	loopCancel context.CancelFunc
	runCancel  context.CancelFunc
	current    *struct{}
	runs       sync.WaitGroup
}

func newRevalidator(engine *Engine, interval time.Duration) *revalidator {
	if interval <= 0 {
		interval = defaultRevalidateInterval
	}
	return &revalidator{engine: engine, interval: interval}
}

// start launches the interval loop. Calling start twice restarts the loop.
func (r *revalidator) start(ctx context.Context) {
	r.mu.Lock()
	if r.loopCancel != nil {
		r.loopCancel()
	}
	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	r.loopCancel = cancel
	r.mu.Unlock()

	go func() {
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		for {
			select {
			case <-loopCtx.Done():
				return
			case <-ticker.C:
				r.kick(loopCtx)
			}
		}
	}()
}

// kick starts a run unless one is already in flight.
func (r *revalidator) kick(ctx context.Context) {
	r.mu.Lock()
	if r.runCancel != nil {
		r.mu.Unlock()
		r.engine.metrics.IncRevalidate(metrics.RevalidateSuppressed)
		return
	}
	r.beginLocked(ctx)
	r.mu.Unlock()
}

// force starts a run immediately, cancelling any in-flight one.
func (r *revalidator) force(ctx context.Context) {
	r.mu.Lock()
	if r.runCancel != nil {
		r.runCancel()
		r.engine.metrics.IncRevalidate(metrics.RevalidateSuperseded)
	}
	r.beginLocked(context.WithoutCancel(ctx))
	r.mu.Unlock()
}

// stop cancels the loop and any in-flight run, then waits them out.
func (r *revalidator) stop() {
	r.mu.Lock()
	if r.loopCancel != nil {
		r.loopCancel()
		r.loopCancel = nil
	}
	if r.runCancel != nil {
		r.runCancel()
	}
	r.mu.Unlock()
	r.runs.Wait()
}

// wait blocks until in-flight runs finish. Tests use it for determinism.
func (r *revalidator) wait() {
	r.runs.Wait()
}

func (r *revalidator) beginLocked(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	token := &struct{}{}
	r.runCancel = cancel
	r.current = token

	r.runs.Add(1)
	go func() {
		defer r.runs.Done()
		defer func() {
			cancel()
			r.mu.Lock()
			if r.current == token {
				r.runCancel = nil
				r.current = nil
			}
			r.mu.Unlock()
		}()
		r.run(runCtx)
	}()
}

func (r *revalidator) run(ctx context.Context) {
	e := r.engine
	e.metrics.IncRevalidate(metrics.RevalidateRun)

	lines, err := e.remote.FetchLineItems(ctx, e.userID)
	wishlist, wishErr := e.remote.FetchWishlist(ctx, e.userID)
	if combined := multierr.Append(err, wishErr); combined != nil {
		if errors.Is(combined, context.Canceled) {
			return
		}
		logCtx := e.log.WithUserID(context.Background(), e.userID.String())
		e.log.Warn(logCtx, "revalidation fetch failed: "+combined.Error())
		return
	}
	if ctx.Err() != nil {
		return
	}

	e.mu.Lock()
	e.state.merge(lines, wishlist)
	e.mu.Unlock()
}

// merge reconciles a full server fetch into local state. Identities with an
// unconfirmed local mutation are left alone; everything else follows the
// server, with last-write-wins on the mutation timestamp when both sides hold
// the identity.
func (c *container) merge(lines []RemoteLineItem, wishlist []uuid.UUID) {
	remote := make(map[Identity]RemoteLineItem, len(lines))
	for _, line := range lines {
		remote[line.Identity] = line
	}

	for identity, line := range remote {
		found, collection, ok := c.lookup(identity)
		if !ok {
			c.collectionOf(line.Collection)[identity] = &entry{item: itemFromRemote(line)}
			continue
		}
		if found.unconfirmed() {
			continue
		}
		if line.MutatedAt.After(found.item.MutatedAt) {
			delete(c.collectionOf(collection), identity)
			seq := found.serverSeq
			c.collectionOf(line.Collection)[identity] = &entry{item: itemFromRemote(line), localSeq: seq, serverSeq: seq}
		}
	}

	for _, entries := range []map[Identity]*entry{c.cart, c.saved} {
		for identity, found := range entries {
			if _, ok := remote[identity]; ok {
				continue
			}
			if found.unconfirmed() {
				continue
			}
			delete(entries, identity)
		}
	}

	remoteWishlist := make(map[uuid.UUID]struct{}, len(wishlist))
	for _, id := range wishlist {
		remoteWishlist[id] = struct{}{}
	}
	for id := range c.wishlist {
		if c.wishlistLocalSeq[id] > c.wishlistServerSeq[id] {
			continue
		}
		if _, ok := remoteWishlist[id]; !ok {
			delete(c.wishlist, id)
		}
	}
	for id := range remoteWishlist {
		if c.wishlistLocalSeq[id] > c.wishlistServerSeq[id] {
			continue
		}
		c.wishlist[id] = struct{}{}
	}
}
