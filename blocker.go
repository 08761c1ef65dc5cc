package datarouter

import (
	"context"
	"fmt"

	"github.com/vango-dev/datarouter/pkg/routepath"
)

// BlockerArgs describe a navigation a blocker may stop.
type BlockerArgs struct {
	CurrentLocation routepath.Location
	NextLocation    routepath.Location
	HistoryAction   HistoryAction
}

// BlockerFunc returns true to block the navigation.
type BlockerFunc func(args BlockerArgs) bool

// GetBlocker registers fn under key, replacing an earlier function, and
// returns the blocker's state. A nil fn only reads the state. The most
// recently registered blocker is the one consulted. Blocker functions run
// with the router locked and must not call back into it.
func (r *Router) GetBlocker(key string, fn BlockerFunc) Blocker {
	r.mu.Lock()
	defer r.mu.Unlock()
	if fn != nil && !r.disposed {
		if _, ok := r.blockers[key]; !ok {
			r.order = append(r.order, key)
		}
		r.blockers[key] = fn
	}
	if b, ok := r.state.Blockers[key]; ok {
		return b
	}
	return UnblockedBlocker
}

// DeleteBlocker removes the blocker and drops a navigation it holds.
func (r *Router) DeleteBlocker(key string) {
	r.mu.Lock()
	delete(r.blockers, key)
	delete(r.blocked, key)
	for i, k := range r.order {
		if k == key {
			r.order = append(r.order[:i:i], r.order[i+1:]...)
			break
		}
	}
	if _, ok := r.state.Blockers[key]; !ok || r.disposed {
		r.mu.Unlock()
		return
	}
	next := r.state
	next.Blockers = cloneBlockers(next.Blockers)
	delete(next.Blockers, key)
	snap := r.commit(next)
	r.mu.Unlock()
	r.deliver(snap)
}

// ProceedBlocker lets the navigation the blocker holds continue and waits
// for it like Navigate. Proceeding a blocker that holds nothing is a
// no-op.
func (r *Router) ProceedBlocker(ctx context.Context, key string) error {
	r.mu.Lock()
	if r.disposed {
		r.mu.Unlock()
		return ErrDisposed
	}
	if _, ok := r.blockers[key]; !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrUnknownBlocker, key)
	}
	req, ok := r.blocked[key]
	if !ok {
		r.mu.Unlock()
		return nil
	}
	delete(r.blocked, key)

	next := r.state
	next.Blockers = cloneBlockers(next.Blockers)
	loc := req.location
	next.Blockers[key] = Blocker{State: BlockerProceeding, Location: &loc}
	snap := r.commit(next)
	r.mu.Unlock()
	r.deliver(snap)

	return r.navigate(ctx, req)
}

// ResetBlocker unblocks the blocker and drops the navigation it holds.
func (r *Router) ResetBlocker(key string) error {
	r.mu.Lock()
	if r.disposed {
		r.mu.Unlock()
		return ErrDisposed
	}
	if _, ok := r.blockers[key]; !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrUnknownBlocker, key)
	}
	delete(r.blocked, key)

	next := r.state
	next.Blockers = cloneBlockers(next.Blockers)
	next.Blockers[key] = UnblockedBlocker
	snap := r.commit(next)
	r.mu.Unlock()
	r.deliver(snap)
	return nil
}

// blockLocked asks the active blocker about req. When it blocks, req is
// held and the snapshot to deliver is returned. r.mu must be held.
func (r *Router) blockLocked(req navRequest) (snapshot, bool) {
	if len(r.order) == 0 {
		return snapshot{}, false
	}
	key := r.order[len(r.order)-1]
	if b, ok := r.state.Blockers[key]; ok && b.State == BlockerProceeding {
		return snapshot{}, false
	}
	fn := r.blockers[key]
	if !fn(BlockerArgs{CurrentLocation: r.state.Location, NextLocation: req.location, HistoryAction: req.action}) {
		return snapshot{}, false
	}

	r.blocked[key] = req
	next := r.state
	next.Blockers = cloneBlockers(next.Blockers)
	loc := req.location
	next.Blockers[key] = Blocker{State: BlockerBlocked, Location: &loc}
	return r.commit(next), true
}

func resetBlockers(blockers map[string]Blocker) map[string]Blocker {
	if len(blockers) == 0 {
		return blockers
	}
	out := make(map[string]Blocker, len(blockers))
	for k := range blockers {
		out[k] = UnblockedBlocker
	}
	return out
}
