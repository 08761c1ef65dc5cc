package datarouter

import (
	"context"
	"net/http"
	"sort"

	"github.com/vango-dev/datarouter/pkg/routepath"
	"github.com/vango-dev/datarouter/pkg/router"
	"github.com/vango-dev/datarouter/pkg/strategy"
)

// fetchLoad is a completed fetcher load, kept so the fetcher can be
// revalidated with the page.
type fetchLoad struct {
	routeID string
	path    routepath.Path
}

// Fetch loads or submits to href without navigating. The result is stored
// on the fetcher identified by key. routeID is the route the fetch comes
// from: relative hrefs resolve against it and errors are recorded on it
// (or on the leaf match when it is not matched), after which the fetcher
// is removed.
//
// Loads run the target route's loader and wait for deferred data.
// Submissions run the target action and then revalidate the page. A new
// fetch on the same key interrupts the previous one.
func (r *Router) Fetch(ctx context.Context, key, routeID, href string, opts ...NavigateOption) error {
	o := applyNavigateOptions(opts)
	if routeID != "" && o.FromRouteID == "" {
		o.FromRouteID = routeID
	}

	r.mu.Lock()
	if r.disposed {
		r.mu.Unlock()
		return ErrDisposed
	}

	path := r.resolveLocked(href, o)
	sub := prepareSubmission(o.Submission, &path)
	if prev := r.fetches[key]; prev != nil {
		prev.cancel(ErrNavigationInterrupted)
		delete(r.fetches, key)
	}
	delete(r.loads, key)

	matches := r.manifest.MatchRoutes(path.Pathname, r.basename)
	if matches == nil {
		a := r.fetcherErrorLocked(key, routeID, router.NotFound(path.Pathname))
		snap := r.commit(a.state)
		r.mu.Unlock()
		r.publish(snap, a)
		return nil
	}

	req := navRequest{
		kind:       RunFetch,
		location:   routepath.CreateLocation(path, nil, ""),
		submission: sub,
		opts:       o,
	}
	rn := newRun(ctx, req)
	rn.key = key
	r.fetches[key] = rn

	next := r.state
	next.Fetchers = cloneFetchers(next.Fetchers)
	f := next.Fetchers[key]
	f.State, f.Submission = Loading, sub
	if req.isMutation() {
		f.State = Submitting
	}
	next.Fetchers[key] = f
	snap := r.commit(next)
	r.mu.Unlock()
	r.started(rn)
	r.deliver(snap)

	target := strategy.TargetMatch(matches, path.Search)
	if req.isMutation() {
		return r.fetchAction(ctx, rn, routeID, *target)
	}
	return r.fetchLoad(ctx, rn, routeID, *target)
}

func (r *Router) fetchLoad(ctx context.Context, rn *run, routeID string, target router.Match) error {
	httpReq, err := r.newRequest(rn.ctx, rn.req.location.Href(), nil)
	if err != nil {
		return r.abortFetch(ctx, rn, err)
	}
	outcomes, redirect, err := r.exec.CallLoaders(rn.ctx, []strategy.Call{{
		Key:     rn.key,
		Match:   target,
		Request: httpReq,
		Kind:    router.KindLoader,
	}})
	if err != nil {
		return r.abortFetch(ctx, rn, err)
	}
	if redirect != nil {
		return r.fetchRedirect(ctx, rn, redirect)
	}
	o, err := settleFetcherOutcome(rn.ctx, outcomes[0])
	if err == nil && rn.ctx.Err() != nil {
		err = context.Cause(rn.ctx)
	}
	if err != nil {
		return r.abortFetch(ctx, rn, err)
	}

	r.mu.Lock()
	if r.fetches[rn.key] != rn {
		r.mu.Unlock()
		return r.abortFetch(ctx, rn, ErrNavigationInterrupted)
	}
	delete(r.fetches, rn.key)

	if o.Kind == strategy.Error {
		a := r.fetcherErrorLocked(rn.key, routeID, o.Err)
		snap := r.commit(a.state)
		r.mu.Unlock()
		r.publish(snap, a)
		r.finish(rn, StatusCompleted, nil, o.Err)
		return nil
	}

	r.loads[rn.key] = fetchLoad{routeID: routeID, path: rn.req.location.Path()}
	next := r.state
	next.Fetchers = cloneFetchers(next.Fetchers)
	next.Fetchers[rn.key] = Fetcher{State: Idle, Data: o.Data}
	snap := r.commit(next)
	r.mu.Unlock()
	r.deliver(snap)
	r.finish(rn, StatusCompleted, []string{target.RouteID}, nil)
	return nil
}

func (r *Router) fetchAction(ctx context.Context, rn *run, routeID string, target router.Match) error {
	sub := rn.req.submission
	httpReq, err := r.newRequest(rn.ctx, rn.req.location.Href(), sub)
	if err != nil {
		return r.abortFetch(ctx, rn, err)
	}
	o := r.exec.CallAction(rn.ctx, target, httpReq)
	if rn.ctx.Err() != nil {
		return r.abortFetch(ctx, rn, context.Cause(rn.ctx))
	}
	if o.Kind == strategy.Redirect {
		return r.fetchRedirect(ctx, rn, &o)
	}

	r.mu.Lock()
	if r.fetches[rn.key] != rn {
		r.mu.Unlock()
		return r.abortFetch(ctx, rn, ErrNavigationInterrupted)
	}
	if o.Kind == strategy.Error {
		delete(r.fetches, rn.key)
		a := r.fetcherErrorLocked(rn.key, routeID, o.Err)
		snap := r.commit(a.state)
		r.mu.Unlock()
		r.publish(snap, a)
		r.finish(rn, StatusCompleted, nil, o.Err)
		return nil
	}

	next := r.state
	next.Fetchers = cloneFetchers(next.Fetchers)
	next.Fetchers[rn.key] = Fetcher{State: Loading, Submission: sub, Data: o.Data}
	snap := r.commit(next)
	r.mu.Unlock()
	r.deliver(snap)

	code := o.Status
	if code == 0 {
		code = http.StatusOK
	}
	err = r.revalidate(ctx, &fetcherAction{submission: sub, result: o.Data, status: code})

	r.mu.Lock()
	current := r.fetches[rn.key] == rn
	if current {
		delete(r.fetches, rn.key)
		if _, ok := r.state.Fetchers[rn.key]; ok {
			next := r.state
			next.Fetchers = cloneFetchers(next.Fetchers)
			next.Fetchers[rn.key] = Fetcher{State: Idle, Data: o.Data}
			snap = r.commit(next)
			r.mu.Unlock()
			r.deliver(snap)
		} else {
			r.mu.Unlock()
		}
	} else {
		r.mu.Unlock()
	}

	status := StatusCompleted
	if !current {
		status = StatusInterrupted
	}
	r.finish(rn, status, nil, err)
	return err
}

// fetchRedirect turns a fetcher redirect into a navigation. The fetcher
// goes back to idle without data.
func (r *Router) fetchRedirect(ctx context.Context, rn *run, o *strategy.Outcome) error {
	r.mu.Lock()
	if r.fetches[rn.key] != rn {
		r.mu.Unlock()
		return r.abortFetch(ctx, rn, ErrNavigationInterrupted)
	}
	delete(r.fetches, rn.key)
	next := r.state
	next.Fetchers = cloneFetchers(next.Fetchers)
	next.Fetchers[rn.key] = IdleFetcher
	snap := r.commit(next)

	target := o.Redirect
	path, external := r.redirectPath(target.Location)
	r.mu.Unlock()
	r.deliver(snap)
	rn.redirect = target
	r.finish(rn, StatusRedirected, nil, nil)

	if target.ReloadDocument || external {
		if r.opts.OnDocumentRedirect != nil {
			r.opts.OnDocumentRedirect(target.Location)
		}
		return nil
	}

	req := navRequest{
		kind:      RunNavigation,
		action:    Push,
		location:  routepath.CreateLocation(path, nil, ""),
		redirects: 1,
	}
	if target.Replace {
		req.action = Replace
	}
	return r.navigate(ctx, req)
}

// abortFetch ends a fetch that will not be applied.
func (r *Router) abortFetch(ctx context.Context, rn *run, err error) error {
	r.mu.Lock()
	disposed := r.disposed
	current := r.fetches[rn.key] == rn
	var snap snapshot
	if current && !disposed {
		delete(r.fetches, rn.key)
		next := r.state
		next.Fetchers = cloneFetchers(next.Fetchers)
		f := next.Fetchers[rn.key]
		f.State, f.Submission = Idle, nil
		next.Fetchers[rn.key] = f
		snap = r.commit(next)
	}
	r.mu.Unlock()
	if current && !disposed {
		r.deliver(snap)
	}

	switch {
	case disposed:
		r.finish(rn, StatusInterrupted, nil, ErrDisposed)
		return ErrDisposed
	case !current:
		r.finish(rn, StatusInterrupted, nil, nil)
		return nil
	case ctx.Err() != nil:
		cause := context.Cause(ctx)
		r.finish(rn, StatusInterrupted, nil, cause)
		return cause
	default:
		r.finish(rn, StatusFailed, nil, err)
		return err
	}
}

// fetcherErrorLocked removes the fetcher and records err on its owning
// route. r.mu must be held.
func (r *Router) fetcherErrorLocked(key, routeID string, err error) applied {
	next := r.state
	next.Fetchers = cloneFetchers(next.Fetchers)
	delete(next.Fetchers, key)
	delete(r.loads, key)

	errs := make(map[string]error, len(next.Errors)+1)
	for id, e := range next.Errors {
		errs[id] = e
	}
	errs[ownerRoute(next.Matches, routeID)] = err

	a := applied{}
	a.unhandled = setErrors(&next, newMapBuilder(next.LoaderData), errs)
	a.cancel = staleDeferreds(r.state.LoaderData, next.LoaderData)
	a.state = next
	return a
}

// GetFetcher returns the fetcher for key, IdleFetcher when unknown.
func (r *Router) GetFetcher(key string) Fetcher {
	r.mu.Lock()
	defer r.mu.Unlock()
	if f, ok := r.state.Fetchers[key]; ok {
		return f
	}
	return IdleFetcher
}

// DeleteFetcher interrupts the fetcher's work and removes it.
func (r *Router) DeleteFetcher(key string) {
	r.mu.Lock()
	if rn := r.fetches[key]; rn != nil {
		rn.cancel(ErrNavigationInterrupted)
		delete(r.fetches, key)
	}
	delete(r.loads, key)
	if _, ok := r.state.Fetchers[key]; !ok || r.disposed {
		r.mu.Unlock()
		return
	}
	next := r.state
	next.Fetchers = cloneFetchers(next.Fetchers)
	delete(next.Fetchers, key)
	snap := r.commit(next)
	r.mu.Unlock()
	r.deliver(snap)
}

// fetcherCallsLocked plans the revalidation of completed fetcher loads.
// r.mu must be held.
func (r *Router) fetcherCallsLocked(ctx context.Context, plan strategy.Plan) ([]strategy.Call, []string) {
	keys := make([]string, 0, len(r.loads))
	for key := range r.loads {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var (
		calls []strategy.Call
		used  []string
	)
	for _, key := range keys {
		if _, inflight := r.fetches[key]; inflight {
			continue
		}
		if _, ok := r.state.Fetchers[key]; !ok {
			continue
		}
		load := r.loads[key]
		matches := r.manifest.MatchRoutes(load.path.Pathname, r.basename)
		if matches == nil {
			continue
		}
		target := strategy.TargetMatch(matches, load.path.Search)
		if !target.Route.HasLoader() || !strategy.ShouldRevalidate(*target, plan, target, true) {
			continue
		}
		req, err := r.newRequest(ctx, routepath.CreatePath(load.path), nil)
		if err != nil {
			continue
		}
		calls = append(calls, strategy.Call{Key: key, Match: *target, Request: req, Kind: router.KindLoader})
		used = append(used, key)
	}
	return calls, used
}

// settleFetcherOutcome waits for deferred fetcher data. Fetchers expose
// plain data, so a rejected key fails the whole load.
func settleFetcherOutcome(ctx context.Context, o strategy.Outcome) (strategy.Outcome, error) {
	if o.Kind != strategy.Deferred {
		return o, nil
	}
	if err := o.Deferred.Wait(ctx); err != nil {
		return o, err
	}
	for _, k := range o.Deferred.Keys() {
		v, _ := o.Deferred.Value(k)
		if _, err := v.Result(); err != nil {
			return strategy.Outcome{RouteID: o.RouteID, Key: o.Key, Kind: strategy.Error, Err: err, Status: http.StatusInternalServerError}, nil
		}
	}
	o.Kind = strategy.Data
	o.Data = o.Deferred.Unwrap()
	o.Deferred = nil
	return o, nil
}
