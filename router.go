package datarouter

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/vango-dev/datarouter/pkg/boundary"
	"github.com/vango-dev/datarouter/pkg/deferred"
	"github.com/vango-dev/datarouter/pkg/routepath"
	"github.com/vango-dev/datarouter/pkg/router"
	"github.com/vango-dev/datarouter/pkg/strategy"
)

var (
	// ErrNavigationInterrupted is the cancellation cause handlers of a
	// superseded navigation or fetch observe on their context.
	ErrNavigationInterrupted = errors.New("datarouter: navigation interrupted")

	// ErrDisposed is returned by operations on a disposed Router.
	ErrDisposed = errors.New("datarouter: router disposed")

	// ErrUnknownBlocker is returned for blocker keys without a function.
	ErrUnknownBlocker = errors.New("datarouter: unknown blocker")

	// ErrNavigationBlocked is returned by Navigate and Go when a blocker
	// stopped the navigation. The blocker holds the target until it is
	// proceeded or reset.
	ErrNavigationBlocked = errors.New("datarouter: navigation blocked")

	// ErrTooManyRedirects is returned when redirects chain past
	// maxRedirects.
	ErrTooManyRedirects = errors.New("datarouter: too many redirects")
)

const maxRedirects = 32

// Router is the navigation state machine. It owns the current State and
// replaces it with a new snapshot on every transition. All methods are
// safe for concurrent use.
type Router struct {
	opts     Options
	manifest *router.Manifest
	exec     *strategy.Executor
	history  History
	observer Observer
	basename string
	origin   string

	mu       sync.Mutex
	state    State
	nav      *run
	fetches  map[string]*run
	loads    map[string]fetchLoad
	blockers map[string]BlockerFunc
	order    []string
	blocked  map[string]navRequest
	disposed bool

	listeners    []listener
	nextListener int

	// notifyMu serializes delivery so listeners see snapshots in order.
	notifyMu  sync.Mutex
	seq       uint64
	delivered uint64
}

type listener struct {
	id int
	fn func(State)
}

// run is one in-flight navigation, revalidation or fetch.
type run struct {
	id     string
	req    navRequest
	key    string
	ctx    context.Context
	cancel context.CancelCauseFunc
	stop   func() bool
	start  time.Time

	// fetcherKeys are the fetchers this run revalidates.
	fetcherKeys []string

	redirect *strategy.RedirectTarget
}

// newRun detaches the run's context from the caller's cancellation once the
// run finishes: deferred values created by loaders outlive the call that
// started them.
func newRun(ctx context.Context, req navRequest) *run {
	rctx, cancel := context.WithCancelCause(context.WithoutCancel(ctx))
	stop := context.AfterFunc(ctx, func() { cancel(context.Cause(ctx)) })
	return &run{
		id:     ulid.Make().String(),
		req:    req,
		ctx:    rctx,
		cancel: cancel,
		stop:   stop,
		start:  time.Now(),
	}
}

func (rn *run) event() Event {
	return Event{
		ID:            rn.id,
		Kind:          rn.req.kind,
		HistoryAction: rn.req.action,
		Location:      rn.req.location,
		Submission:    rn.req.submission,
		FetcherKey:    rn.key,
		Start:         rn.start,
		Redirect:      rn.redirect,
	}
}

func (rn *run) revalidates(key string) bool {
	for _, k := range rn.fetcherKeys {
		if k == key {
			return true
		}
	}
	return false
}

// New creates a Router. Route configuration errors are returned here; the
// initial location is matched and hydration data applied. Call Initialize
// to run the loaders hydration did not cover.
func New(opts Options) (*Router, error) {
	manifest, err := router.Normalize(opts.Routes)
	if err != nil {
		return nil, fmt.Errorf("datarouter: %w", err)
	}

	r := &Router{
		opts:     opts,
		manifest: manifest,
		history:  opts.History,
		observer: opts.Observer,
		basename: opts.Basename,
		origin:   opts.Origin,
		fetches:  make(map[string]*run),
		loads:    make(map[string]fetchLoad),
		blockers: make(map[string]BlockerFunc),
		blocked:  make(map[string]navRequest),
	}
	if r.history == nil {
		r.history = NewMemoryHistory("/")
	}
	if r.origin == "" {
		r.origin = defaultOrigin
	}
	if r.basename == "/" {
		r.basename = ""
	}
	if _, err := url.Parse(r.origin); err != nil {
		return nil, fmt.Errorf("datarouter: invalid origin %q: %w", r.origin, err)
	}
	r.exec = strategy.New(
		strategy.WithMiddleware(opts.Middleware...),
		strategy.WithLoadContext(opts.LoadContext),
	)

	unhandled := r.initialState()
	if unhandled != nil {
		r.reportUnhandled(unhandled)
	}
	return r, nil
}

func (r *Router) initialState() *boundary.UnhandledError {
	loc := r.history.Location()
	s := State{
		HistoryAction: Pop,
		Location:      loc,
		Navigation:    IdleNavigation,
		Revalidation:  RevalidationIdle,
		Fetchers:      map[string]Fetcher{},
		Blockers:      map[string]Blocker{},
	}

	matches := r.manifest.MatchRoutes(loc.Pathname, r.basename)
	if matches == nil {
		s.Matches = r.manifest.NotFoundMatches()
		s.Initialized = true
		ld := newMapBuilder(map[string]any{})
		unhandled := setErrors(&s, ld, map[string]error{s.Matches[0].RouteID: router.NotFound(loc.Pathname)})
		r.state = s
		return unhandled
	}
	s.Matches = matches

	data := map[string]any{}
	errs := map[string]error{}
	if h := r.opts.Hydration; h != nil {
		for _, m := range matches {
			if v, ok := h.LoaderData[m.RouteID]; ok {
				data[m.RouteID] = v
			}
			if err := h.Errors[m.RouteID]; err != nil {
				errs[m.RouteID] = err
			}
		}
		s.ActionData = cloneMapOrNil(h.ActionData)
	}
	unhandled := setErrors(&s, newMapBuilder(data), errs)

	s.Initialized = true
	for _, m := range r.hydrationPending(s) {
		if m.Route.HasLoader() {
			s.Initialized = false
			break
		}
	}
	r.state = s
	return unhandled
}

// hydrationPending returns the matches that still need their loader: no
// data, no error, and above the error boundary.
func (r *Router) hydrationPending(s State) []router.Match {
	matches := s.RenderMatches()
	var out []router.Match
	for _, m := range matches {
		if _, ok := s.LoaderData[m.RouteID]; ok {
			continue
		}
		if s.Errors[m.RouteID] != nil {
			continue
		}
		out = append(out, m)
	}
	return out
}

// Initialize runs the loaders hydration data did not cover. It returns at
// once when the router is already initialized.
func (r *Router) Initialize(ctx context.Context) error {
	r.mu.Lock()
	if r.disposed {
		r.mu.Unlock()
		return ErrDisposed
	}
	if r.state.Initialized {
		r.mu.Unlock()
		return nil
	}
	pending := make(map[string]bool)
	for _, m := range r.hydrationPending(r.state) {
		pending[m.RouteID] = true
	}
	req := navRequest{
		kind:     RunInitialize,
		action:   Pop,
		location: r.state.Location,
		filter:   func(m router.Match) bool { return pending[m.RouteID] },
	}
	r.mu.Unlock()
	return r.navigate(ctx, req)
}

// State returns the current snapshot.
func (r *Router) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Manifest returns the normalized route tree.
func (r *Router) Manifest() *router.Manifest {
	return r.manifest
}

// Subscribe registers fn to receive every new State. Listeners run
// synchronously on the goroutine that changed the state and must not call
// Router methods other than State. The returned function unsubscribes.
func (r *Router) Subscribe(fn func(State)) func() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.disposed {
		return func() {}
	}
	r.nextListener++
	id := r.nextListener
	r.listeners = append(r.listeners, listener{id: id, fn: fn})

	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		for i, l := range r.listeners {
			if l.id == id {
				r.listeners = append(r.listeners[:i:i], r.listeners[i+1:]...)
				return
			}
		}
	}
}

// Dispose cancels in-flight navigations, fetches and pending deferred
// values and drops every listener. Later calls return ErrDisposed.
func (r *Router) Dispose() {
	r.mu.Lock()
	if r.disposed {
		r.mu.Unlock()
		return
	}
	r.disposed = true
	if r.nav != nil {
		r.nav.cancel(ErrDisposed)
		r.nav = nil
	}
	for key, f := range r.fetches {
		f.cancel(ErrDisposed)
		delete(r.fetches, key)
	}
	pending := staleDeferreds(r.state.LoaderData, nil)
	r.listeners = nil
	r.mu.Unlock()

	for _, d := range pending {
		d.Cancel()
	}
}

type snapshot struct {
	seq       uint64
	state     State
	listeners []func(State)
}

// commit installs next as the current state. r.mu must be held; deliver
// the returned snapshot after unlocking.
func (r *Router) commit(next State) snapshot {
	r.state = next
	r.seq++
	fns := make([]func(State), len(r.listeners))
	for i, l := range r.listeners {
		fns[i] = l.fn
	}
	return snapshot{seq: r.seq, state: next, listeners: fns}
}

func (r *Router) deliver(s snapshot) {
	r.notifyMu.Lock()
	defer r.notifyMu.Unlock()
	if s.seq <= r.delivered {
		return
	}
	r.delivered = s.seq
	for _, fn := range s.listeners {
		fn(s.state)
	}
}

func (r *Router) started(rn *run) {
	if r.observer != nil {
		r.observer.RunStarted(rn.event())
	}
}

// finish releases the run and reports its end.
func (r *Router) finish(rn *run, status RunStatus, loaded []string, err error) {
	rn.stop()
	if status != StatusCompleted {
		rn.cancel(ErrNavigationInterrupted)
	}
	if r.observer == nil {
		return
	}
	ev := rn.event()
	ev.Duration = time.Since(rn.start)
	ev.Status = status
	ev.Loaded = loaded
	ev.Err = err
	r.observer.RunFinished(ev)
}

func (r *Router) reportUnhandled(err *boundary.UnhandledError) {
	if err == nil {
		return
	}
	if r.opts.OnUnhandledError != nil {
		r.opts.OnUnhandledError(err)
	}
	if r.observer != nil {
		r.observer.UnhandledError(err)
	}
}

// publish delivers a committed snapshot and runs the follow-up work that
// must happen outside r.mu.
func (r *Router) publish(s snapshot, a applied) {
	r.deliver(s)
	for _, d := range a.cancel {
		d.Cancel()
	}
	for id, d := range a.watch {
		r.track(id, d)
	}
	r.reportUnhandled(a.unhandled)
}

func (r *Router) currentURL() *url.URL {
	u, err := url.Parse(r.origin + r.state.Location.Href())
	if err != nil {
		return nil
	}
	return u
}

// resolveLocked resolves a navigation target against the current matches.
// r.mu must be held.
func (r *Router) resolveLocked(to string, o NavigateOptions) routepath.Path {
	matches := r.state.Matches
	if o.FromRouteID != "" {
		if i := boundary.IndexOf(matches, o.FromRouteID); i >= 0 {
			matches = matches[:i+1]
		}
	}

	var contributing []router.Match
	for i, m := range matches {
		if i == 0 || m.Route.Path != "" {
			contributing = append(contributing, m)
		}
	}
	bases := make([]string, len(contributing))
	for i, m := range contributing {
		if i == len(contributing)-1 {
			bases[i] = m.Pathname
		} else {
			bases[i] = m.PathnameBase
		}
	}

	current, ok := routepath.StripBasename(r.state.Location.Pathname, r.basename)
	if !ok {
		current = "/"
	}
	p := routepath.ResolveTo(to, bases, current, o.RelativePath)
	p.Pathname = routepath.PrependBasename(p.Pathname, r.basename)
	return p
}

// mapBuilder copies a published map the first time it is changed.
type mapBuilder struct {
	m     map[string]any
	owned bool
}

func newMapBuilder(m map[string]any) *mapBuilder {
	if m == nil {
		return &mapBuilder{m: map[string]any{}, owned: true}
	}
	return &mapBuilder{m: m}
}

func (b *mapBuilder) set(k string, v any) {
	b.own()
	b.m[k] = v
}

func (b *mapBuilder) del(k string) {
	if _, ok := b.m[k]; !ok {
		return
	}
	b.own()
	delete(b.m, k)
}

func (b *mapBuilder) own() {
	if !b.owned {
		b.m = cloneMap(b.m)
		b.owned = true
	}
}

// setErrors installs errs on s and resolves the boundary. Loader data of
// failed routes and of routes below the boundary is dropped.
func setErrors(s *State, ld *mapBuilder, errs map[string]error) *boundary.UnhandledError {
	for id := range errs {
		ld.del(id)
	}
	if len(errs) == 0 {
		s.Errors, s.Boundary = nil, nil
		s.LoaderData = ld.m
		return nil
	}

	b, err := boundary.Resolve(s.Matches, errs)
	s.Errors, s.Boundary = errs, b
	if b != nil {
		if i := boundary.IndexOf(s.Matches, b.RouteID); i >= 0 {
			for _, m := range s.Matches[i+1:] {
				ld.del(m.RouteID)
			}
		}
	}
	s.LoaderData = ld.m

	var unhandled *boundary.UnhandledError
	errors.As(err, &unhandled)
	return unhandled
}

// staleDeferreds returns the deferred data in prev that next no longer
// holds under the same route.
func staleDeferreds(prev, next map[string]any) []*deferred.Data {
	var out []*deferred.Data
	for id, v := range prev {
		d, ok := v.(*deferred.Data)
		if !ok {
			continue
		}
		if cur, ok := next[id].(*deferred.Data); ok && cur == d {
			continue
		}
		out = append(out, d)
	}
	return out
}
