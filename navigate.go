package datarouter

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sort"

	"github.com/vango-dev/datarouter/pkg/boundary"
	"github.com/vango-dev/datarouter/pkg/deferred"
	"github.com/vango-dev/datarouter/pkg/routepath"
	"github.com/vango-dev/datarouter/pkg/router"
	"github.com/vango-dev/datarouter/pkg/strategy"
)

// navRequest is a navigation the router is asked to perform.
type navRequest struct {
	kind       RunKind
	action     HistoryAction
	location   routepath.Location
	submission *router.Submission
	opts       NavigateOptions

	// revalidate forces unchanged routes to reload.
	revalidate bool

	// trigger is a fetcher submission whose action already ran.
	trigger *fetcherAction

	// filter restricts which loaders run (hydration).
	filter func(m router.Match) bool

	// delta is the history move of a POP, applied before a redirect
	// replaces the entry it landed on.
	delta     int
	redirects int

	// after, when set, must still be the current run or the request is
	// dropped.
	after *run
}

type fetcherAction struct {
	submission *router.Submission
	result     any
	status     int
}

func (req navRequest) isMutation() bool {
	return req.submission != nil && strategy.IsMutation(req.submission.Method)
}

// applied is a computed state transition plus the work that must run
// after it is published.
type applied struct {
	state     State
	cancel    []*deferred.Data
	watch     map[string]*deferred.Data
	unhandled *boundary.UnhandledError
}

// Navigate moves to the location to resolves to and runs its loaders (and
// action, for submissions). It returns when the navigation completed, was
// superseded (nil), was blocked (ErrNavigationBlocked) or ctx was done.
//
// Relative targets resolve against the route hierarchy of the current
// matches; see WithRelativePath and FromRoute.
func (r *Router) Navigate(ctx context.Context, to string, opts ...NavigateOption) error {
	o := applyNavigateOptions(opts)

	r.mu.Lock()
	if r.disposed {
		r.mu.Unlock()
		return ErrDisposed
	}

	path := r.resolveLocked(to, o)
	sub := prepareSubmission(o.Submission, &path)

	action := Push
	switch {
	case o.Replace:
		action = Replace
	case sub != nil && strategy.IsMutation(sub.Method) && routepath.CreatePath(path) == r.state.Location.Href():
		action = Replace
	}

	req := navRequest{
		kind:       RunNavigation,
		action:     action,
		location:   routepath.CreateLocation(path, o.State, ""),
		submission: sub,
		opts:       o,
	}
	if snap, ok := r.blockLocked(req); ok {
		r.mu.Unlock()
		r.deliver(snap)
		return ErrNavigationBlocked
	}
	r.mu.Unlock()

	return r.navigate(ctx, req)
}

// Go moves delta entries through the history (a POP navigation). Moves out
// of range are ignored. Go(ctx, 0) revalidates.
func (r *Router) Go(ctx context.Context, delta int) error {
	if delta == 0 {
		return r.Revalidate(ctx)
	}

	r.mu.Lock()
	if r.disposed {
		r.mu.Unlock()
		return ErrDisposed
	}
	loc, ok := r.history.Peek(delta)
	if !ok {
		r.mu.Unlock()
		return nil
	}
	req := navRequest{kind: RunNavigation, action: Pop, location: loc, delta: delta}
	if snap, ok := r.blockLocked(req); ok {
		r.mu.Unlock()
		r.deliver(snap)
		return ErrNavigationBlocked
	}
	r.mu.Unlock()

	return r.navigate(ctx, req)
}

// prepareSubmission copies sub and records its action. GET submissions
// move their form data into the target's search.
func prepareSubmission(sub *router.Submission, path *routepath.Path) *router.Submission {
	if sub == nil {
		return nil
	}
	s := *sub
	if s.Method == "" {
		s.Method = http.MethodGet
	}
	if s.EncType == "" {
		s.EncType = router.EncTypeForm
	}
	s.Action = routepath.CreatePath(routepath.Path{Pathname: path.Pathname, Search: path.Search})
	if !strategy.IsMutation(s.Method) {
		path.Search = routepath.NormalizeSearch(s.FormData.Encode())
	}
	return &s
}

// navigate runs req through the executor and applies the result.
func (r *Router) navigate(ctx context.Context, req navRequest) error {
	r.mu.Lock()
	if r.disposed {
		r.mu.Unlock()
		return ErrDisposed
	}
	if req.after != nil && r.nav != req.after {
		r.mu.Unlock()
		return nil
	}
	if r.nav != nil {
		r.nav.cancel(ErrNavigationInterrupted)
	}
	rn := newRun(ctx, req)
	r.nav = rn

	matches := r.manifest.MatchRoutes(req.location.Pathname, r.basename)
	if matches == nil {
		r.nav = nil
		notFound := r.manifest.NotFoundMatches()
		a := r.applyLocked(req, notFound, nil, map[string]error{
			notFound[0].RouteID: router.NotFound(req.location.Pathname),
		})
		snap := r.commit(a.state)
		r.mu.Unlock()
		r.started(rn)
		r.publish(snap, a)
		r.finish(rn, StatusCompleted, nil, nil)
		return nil
	}

	if req.kind == RunNavigation && req.submission == nil && !req.revalidate &&
		r.state.Initialized && isHashChangeOnly(r.state.Location, req.location) {
		r.nav = nil
		snap := r.commit(r.hashChangeLocked(req))
		r.mu.Unlock()
		r.started(rn)
		r.deliver(snap)
		r.finish(rn, StatusCompleted, nil, nil)
		return nil
	}

	in, err := r.inputLocked(rn, matches)
	if err != nil {
		r.mu.Unlock()
		r.started(rn)
		return r.abort(ctx, rn, err)
	}

	next := r.state
	if req.kind == RunRevalidation {
		next.Revalidation = RevalidationLoading
	} else {
		loc := req.location
		state := Loading
		if req.isMutation() {
			state = Submitting
		}
		next.Navigation = Navigation{State: state, Location: &loc, Submission: req.submission}
	}
	if len(rn.fetcherKeys) > 0 {
		next.Fetchers = cloneFetchers(next.Fetchers)
		for _, key := range rn.fetcherKeys {
			f := next.Fetchers[key]
			f.State = Loading
			next.Fetchers[key] = f
		}
	}
	snap := r.commit(next)
	r.mu.Unlock()
	r.started(rn)
	r.deliver(snap)

	res, err := r.exec.Execute(rn.ctx, in)
	if err == nil && rn.ctx.Err() != nil {
		err = context.Cause(rn.ctx)
	}
	if err != nil {
		return r.abort(ctx, rn, err)
	}
	if res.Redirect != nil {
		return r.redirect(ctx, rn, res.Redirect)
	}
	for key, o := range res.Extra {
		o, err := settleFetcherOutcome(rn.ctx, o)
		if err != nil {
			return r.abort(ctx, rn, err)
		}
		res.Extra[key] = o
	}

	r.mu.Lock()
	if r.nav != rn {
		r.mu.Unlock()
		return r.abort(ctx, rn, ErrNavigationInterrupted)
	}
	r.nav = nil
	a := r.applyLocked(req, matches, res, nil)
	snap = r.commit(a.state)
	r.mu.Unlock()

	r.publish(snap, a)
	r.finish(rn, StatusCompleted, res.Loaded(), nil)
	return nil
}

// inputLocked builds the executor input for rn. r.mu must be held.
func (r *Router) inputLocked(rn *run, matches []router.Match) (strategy.Input, error) {
	req := rn.req
	var execSub *router.Submission
	if req.isMutation() {
		execSub = req.submission
	}
	httpReq, err := r.newRequest(rn.ctx, req.location.Href(), execSub)
	if err != nil {
		return strategy.Input{}, err
	}

	in := strategy.Input{
		Request:    httpReq,
		Matches:    matches,
		Submission: execSub,
		LoaderData: r.state.LoaderData,
		Revalidate: req.revalidate,
		Filter:     req.filter,
	}
	if req.kind != RunInitialize {
		in.CurrentURL = r.currentURL()
		in.CurrentMatches = r.state.Matches
	}
	if t := req.trigger; t != nil {
		in.Submission = t.submission
		in.ActionResult = t.result
		in.ActionStatus = t.status
	}
	if in.Submission != nil || req.revalidate {
		plan := strategy.Plan{
			CurrentURL:   in.CurrentURL,
			NextURL:      httpReq.URL,
			Submission:   in.Submission,
			ActionResult: in.ActionResult,
			ActionStatus: in.ActionStatus,
			Revalidate:   true,
		}
		in.Extra, rn.fetcherKeys = r.fetcherCallsLocked(rn.ctx, plan)
	}

	loc := req.location
	in.BeforeLoaders = func(ctx context.Context, action *strategy.Outcome) error {
		if action == nil {
			return nil
		}
		r.mu.Lock()
		if r.nav != rn {
			r.mu.Unlock()
			return ErrNavigationInterrupted
		}
		next := r.state
		next.Navigation = Navigation{State: Loading, Location: &loc, Submission: req.submission}
		snap := r.commit(next)
		r.mu.Unlock()
		r.deliver(snap)
		return nil
	}
	return in, nil
}

// abort ends rn without applying results. A superseded run returns nil;
// a run stopped by its caller's context returns the context's cause.
func (r *Router) abort(ctx context.Context, rn *run, err error) error {
	r.mu.Lock()
	disposed := r.disposed
	current := r.nav == rn
	var snap snapshot
	changed := false
	if !disposed {
		next := r.state
		if current {
			r.nav = nil
			next.Navigation = IdleNavigation
			next.Revalidation = RevalidationIdle
			changed = true
		}
		if released := r.releaseFetchersLocked(&next, rn); released {
			changed = true
		}
		if changed {
			snap = r.commit(next)
		}
	}
	r.mu.Unlock()
	if changed {
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

// releaseFetchersLocked returns fetchers rn was revalidating to idle
// unless another run took them over.
func (r *Router) releaseFetchersLocked(next *State, rn *run) bool {
	changed := false
	for _, key := range rn.fetcherKeys {
		if r.nav != nil && r.nav.revalidates(key) {
			continue
		}
		if _, inflight := r.fetches[key]; inflight {
			continue
		}
		f, ok := next.Fetchers[key]
		if !ok || f.State != Loading {
			continue
		}
		if !changed {
			next.Fetchers = cloneFetchers(next.Fetchers)
			changed = true
		}
		f.State = Idle
		next.Fetchers[key] = f
	}
	return changed
}

// redirect follows a redirect produced by rn.
func (r *Router) redirect(ctx context.Context, rn *run, o *strategy.Outcome) error {
	target := o.Redirect
	req := rn.req
	rn.redirect = target

	r.mu.Lock()
	if r.nav != rn {
		r.mu.Unlock()
		return r.abort(ctx, rn, ErrNavigationInterrupted)
	}
	path, external := r.redirectPath(target.Location)
	if target.ReloadDocument || external || req.redirects >= maxRedirects {
		r.nav = nil
		next := r.state
		next.Navigation = IdleNavigation
		next.Revalidation = RevalidationIdle
		r.releaseFetchersLocked(&next, rn)
		snap := r.commit(next)
		r.mu.Unlock()
		r.deliver(snap)

		if req.redirects >= maxRedirects && !target.ReloadDocument && !external {
			err := fmt.Errorf("%w: stopped at %q", ErrTooManyRedirects, target.Location)
			r.finish(rn, StatusFailed, nil, err)
			return err
		}
		r.finish(rn, StatusRedirected, nil, nil)
		if r.opts.OnDocumentRedirect != nil {
			r.opts.OnDocumentRedirect(target.Location)
		}
		return nil
	}
	r.mu.Unlock()
	r.finish(rn, StatusRedirected, nil, nil)

	next := navRequest{
		kind:      RunNavigation,
		action:    Push,
		location:  routepath.CreateLocation(path, nil, ""),
		opts:      NavigateOptions{PreventScrollReset: req.opts.PreventScrollReset},
		redirects: req.redirects + 1,
		after:     rn,
	}
	if req.opts.Replace || target.Replace {
		next.action = Replace
	}
	if req.delta != 0 {
		// The popped-to entry is replaced by the redirect target.
		next.action = Replace
		next.delta = req.delta
	}
	if req.isMutation() && (target.Status == http.StatusTemporaryRedirect || target.Status == http.StatusPermanentRedirect) {
		next.submission = req.submission
	}
	return r.navigate(ctx, next)
}

// redirectPath turns a redirect Location into a router path. external is
// true for URLs on another origin or outside the basename.
func (r *Router) redirectPath(location string) (path routepath.Path, external bool) {
	u, err := url.Parse(location)
	if err != nil {
		return routepath.Path{}, true
	}
	if u.Scheme != "" || u.Host != "" {
		origin, _ := url.Parse(r.origin)
		if (u.Scheme != "" && u.Scheme != origin.Scheme) || u.Host != origin.Host {
			return routepath.Path{}, true
		}
		if _, ok := routepath.StripBasename(u.Path, r.basename); !ok {
			return routepath.Path{}, true
		}
		p := routepath.Path{Pathname: u.Path, Search: routepath.NormalizeSearch(u.RawQuery), Hash: routepath.NormalizeHash(u.Fragment)}
		return p, false
	}

	p := routepath.ParsePath(location)
	if p.Pathname == "" {
		p.Pathname, _ = routepath.StripBasename(r.state.Location.Pathname, r.basename)
	}
	if p.Pathname == "" || p.Pathname[0] != '/' {
		current, _ := routepath.StripBasename(r.state.Location.Pathname, r.basename)
		p = routepath.ResolvePath(p, current)
	}
	p.Pathname = routepath.PrependBasename(p.Pathname, r.basename)
	return p, false
}

// hashChangeLocked moves to a location that differs only in its hash.
func (r *Router) hashChangeLocked(req navRequest) State {
	next := r.state
	next.HistoryAction = req.action
	next.Location = req.location
	next.Navigation = IdleNavigation
	next.PreventScrollReset = req.opts.PreventScrollReset
	next.RestoreScrollKey = ""
	if req.action == Pop {
		next.RestoreScrollKey = req.location.Key
	}
	next.Blockers = resetBlockers(next.Blockers)
	r.blocked = make(map[string]navRequest)
	r.moveHistory(req)
	return next
}

// applyLocked computes the state after req completed with res. errs
// seeds route errors (not-found). r.mu must be held.
func (r *Router) applyLocked(req navRequest, matches []router.Match, res *strategy.Result, errs map[string]error) applied {
	prev := r.state
	next := prev
	next.Matches = matches
	next.Initialized = true
	next.Navigation = IdleNavigation
	next.Revalidation = RevalidationIdle

	if req.kind != RunRevalidation {
		next.HistoryAction = req.action
		next.Location = req.location
		next.PreventScrollReset = req.opts.PreventScrollReset
		next.RestoreScrollKey = ""
		if req.action == Pop && req.kind == RunNavigation {
			next.RestoreScrollKey = req.location.Key
		}
	}

	routeErrs := make(map[string]error)
	if req.kind == RunInitialize {
		for id, err := range prev.Errors {
			routeErrs[id] = err
		}
	}
	for id, err := range errs {
		routeErrs[id] = err
	}

	var ld *mapBuilder
	if res == nil {
		ld = newMapBuilder(nil)
	} else {
		ld = newMapBuilder(prev.LoaderData)
		matched := make(map[string]bool, len(matches))
		for _, m := range matches {
			matched[m.RouteID] = true
		}
		for _, id := range sortedIDs(prev.LoaderData) {
			if !matched[id] {
				ld.del(id)
			}
		}
	}

	a := applied{watch: map[string]*deferred.Data{}}
	switch {
	case res != nil && res.Action != nil:
		if res.Action.Kind == strategy.Error {
			routeErrs[res.ActionRouteID] = res.Action.Err
			next.ActionData = nil
		} else {
			next.ActionData = map[string]any{res.ActionRouteID: res.Action.Data}
		}
	case req.kind == RunNavigation:
		next.ActionData = nil
	}

	if res != nil {
		for _, o := range res.Loaders {
			switch o.Kind {
			case strategy.Data:
				ld.set(o.RouteID, o.Data)
			case strategy.Deferred:
				ld.set(o.RouteID, o.Deferred)
				a.watch[o.RouteID] = o.Deferred
			case strategy.Error:
				routeErrs[o.RouteID] = o.Err
			}
		}
		next.Fetchers = r.applyFetchersLocked(next.Fetchers, matches, res.Extra, routeErrs)
	}

	a.unhandled = setErrors(&next, ld, routeErrs)
	for id, d := range a.watch {
		if cur, ok := next.LoaderData[id].(*deferred.Data); !ok || cur != d {
			delete(a.watch, id)
		}
	}
	a.cancel = staleDeferreds(prev.LoaderData, next.LoaderData)

	if req.kind == RunNavigation {
		next.Blockers = resetBlockers(next.Blockers)
		r.blocked = make(map[string]navRequest)
		r.moveHistory(req)
	}

	a.state = next
	return a
}

// applyFetchersLocked records the outcomes of fetcher revalidations.
// Failed fetchers are removed and their error recorded on the owning
// route.
func (r *Router) applyFetchersLocked(fetchers map[string]Fetcher, matches []router.Match, extra map[string]strategy.Outcome, errs map[string]error) map[string]Fetcher {
	if len(extra) == 0 {
		return fetchers
	}
	out := cloneFetchers(fetchers)
	for key, o := range extra {
		if _, inflight := r.fetches[key]; inflight {
			continue
		}
		if _, ok := out[key]; !ok {
			continue
		}
		if o.Kind == strategy.Error {
			errs[ownerRoute(matches, r.loads[key].routeID)] = o.Err
			delete(out, key)
			delete(r.loads, key)
			continue
		}
		out[key] = Fetcher{State: Idle, Data: o.Data}
	}
	return out
}

func (r *Router) moveHistory(req navRequest) {
	if req.delta != 0 {
		r.history.Go(req.delta)
	}
	switch req.action {
	case Push:
		r.history.Push(req.location)
	case Replace:
		r.history.Replace(req.location)
	}
}

// ownerRoute is routeID when it is matched, else the leaf.
func ownerRoute(matches []router.Match, routeID string) string {
	for _, m := range matches {
		if m.RouteID == routeID {
			return routeID
		}
	}
	if leaf := router.Leaf(matches); leaf != nil {
		return leaf.RouteID
	}
	return routeID
}

// isHashChangeOnly reports whether b differs from a only by a non-empty
// hash, or repeats a's hash.
func isHashChangeOnly(a, b routepath.Location) bool {
	if a.Pathname != b.Pathname || a.Search != b.Search {
		return false
	}
	if a.Hash == "" {
		return b.Hash != ""
	}
	if a.Hash == b.Hash {
		return true
	}
	return b.Hash != ""
}

func sortedIDs(m map[string]any) []string {
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
