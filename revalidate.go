package datarouter

import (
	"context"
)

// Revalidate reloads the loaders of the current matches. Routes can opt
// out through ShouldRevalidate. The navigation descriptor is unchanged;
// State.Revalidation is loading while it runs.
//
// A navigation that is loading is restarted with revalidation required. A
// submission in flight already revalidates once its action finished, so
// Revalidate returns at once in that case.
func (r *Router) Revalidate(ctx context.Context) error {
	return r.revalidate(ctx, nil)
}

func (r *Router) revalidate(ctx context.Context, t *fetcherAction) error {
	r.mu.Lock()
	if r.disposed {
		r.mu.Unlock()
		return ErrDisposed
	}

	if nav := r.nav; nav != nil && nav.req.kind != RunRevalidation {
		if nav.req.isMutation() {
			r.mu.Unlock()
			return nil
		}
		req := nav.req
		req.revalidate = true
		req.after = nav
		if t != nil {
			req.trigger = t
		}
		r.mu.Unlock()
		return r.navigate(ctx, req)
	}

	req := navRequest{
		kind:       RunRevalidation,
		action:     r.state.HistoryAction,
		location:   r.state.Location,
		revalidate: true,
		trigger:    t,
	}
	if nav := r.nav; nav != nil {
		req.after = nav
	}
	r.mu.Unlock()
	return r.navigate(ctx, req)
}
