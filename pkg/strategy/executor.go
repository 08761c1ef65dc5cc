package strategy

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"runtime/debug"
	"strings"

	"github.com/vango-dev/datarouter/pkg/router"
)

// Executor runs loaders and actions for a navigation. It is stateless
// apart from its options and safe for concurrent use.
type Executor struct {
	middleware  []router.Middleware
	loadContext any
}

// Option configures an Executor.
type Option func(*Executor)

// WithMiddleware wraps every loader and action invocation.
func WithMiddleware(mw ...router.Middleware) Option {
	return func(e *Executor) {
		e.middleware = append(e.middleware, mw...)
	}
}

// WithLoadContext sets the value passed to handlers as Args.LoadContext.
func WithLoadContext(v any) Option {
	return func(e *Executor) {
		e.loadContext = v
	}
}

// New creates an Executor.
func New(opts ...Option) *Executor {
	e := &Executor{}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Call is one handler invocation.
type Call struct {
	// Key identifies the call in Result.Extra. Route calls leave it empty.
	Key     string
	Match   router.Match
	Request *http.Request
	Kind    router.HandlerKind
}

// Invoke runs a single handler. A missing loader yields a Skipped outcome
// and a missing action a 405 error. Panics are recovered into Error
// outcomes.
func (e *Executor) Invoke(ctx context.Context, call Call) (out Outcome) {
	route := call.Match.Route
	var handler router.HandlerFunc
	switch call.Kind {
	case router.KindAction:
		if !route.HasAction() {
			err := router.MethodNotAllowed(call.Request.Method, call.Request.URL.Path, call.Match.RouteID)
			return Outcome{RouteID: call.Match.RouteID, Key: call.Key, Kind: Error, Err: err, Status: err.Status}
		}
		handler = route.Action
	default:
		if !route.HasLoader() {
			return Outcome{RouteID: call.Match.RouteID, Key: call.Key, Kind: Skipped}
		}
		handler = route.Loader
	}

	defer func() {
		if r := recover(); r != nil {
			err, ok := r.(error)
			if !ok {
				err = &HandlerError{RouteID: call.Match.RouteID, Kind: call.Kind, Value: r, Stack: debug.Stack()}
			}
			out = Outcome{RouteID: call.Match.RouteID, Key: call.Key, Kind: Error, Err: err, Status: http.StatusInternalServerError}
		}
	}()

	h := router.Compose(handler, e.middleware...)
	val, err := h(ctx, router.Args{
		Request:     call.Request,
		Params:      call.Match.Params,
		LoadContext: e.loadContext,
		RouteID:     call.Match.RouteID,
		Kind:        call.Kind,
	})
	out = classify(call.Match.RouteID, val, err)
	out.Key = call.Key
	return out
}

// CallAction runs the action of match with req.
func (e *Executor) CallAction(ctx context.Context, match router.Match, req *http.Request) Outcome {
	return e.Invoke(ctx, Call{Match: match, Request: req, Kind: router.KindAction})
}

type indexedOutcome struct {
	index   int
	outcome Outcome
}

// CallLoaders dispatches every call before consuming any result and
// returns the outcomes in call order. The first redirect short-circuits:
// it is returned alone and later results are discarded. The handlers
// themselves keep running; they are only told to stop through ctx.
//
// If ctx is done before all results arrive, CallLoaders returns the
// context's cause.
func (e *Executor) CallLoaders(ctx context.Context, calls []Call) ([]Outcome, *Outcome, error) {
	if len(calls) == 0 {
		return nil, nil, nil
	}

	results := make(chan indexedOutcome, len(calls))
	for i, call := range calls {
		go func(i int, call Call) {
			results <- indexedOutcome{index: i, outcome: e.Invoke(ctx, call)}
		}(i, call)
	}

	outcomes := make([]Outcome, len(calls))
	for range calls {
		select {
		case r := <-results:
			if r.outcome.Kind == Redirect {
				redirect := r.outcome
				return nil, &redirect, nil
			}
			outcomes[r.index] = r.outcome
		case <-ctx.Done():
			return nil, nil, context.Cause(ctx)
		}
	}
	return outcomes, nil, nil
}

// Input describes one navigation, revalidation or fetcher submission.
type Input struct {
	// Request is the navigation request. A non-GET method with a
	// Submission runs the target action first.
	Request *http.Request

	Matches    []router.Match
	Submission *router.Submission

	// Current state the planner compares against.
	CurrentURL     *url.URL
	CurrentMatches []router.Match
	LoaderData     map[string]any

	// Revalidate marks an explicit revalidation.
	Revalidate bool

	// ActionResult and ActionStatus describe an action that already ran
	// elsewhere (fetcher submissions). They feed ShouldRevalidate.
	ActionResult any
	ActionStatus int

	// Filter drops matches that must not load.
	Filter func(m router.Match) bool

	// Extra calls run in the same batch as the loaders.
	Extra []Call

	// BeforeLoaders runs between the action and the loaders. A non-nil
	// error aborts the execution with that error.
	BeforeLoaders func(ctx context.Context, action *Outcome) error
}

// Execute runs the action (for submissions) and then every loader the
// planner selects, concurrently.
func (e *Executor) Execute(ctx context.Context, in Input) (*Result, error) {
	res := &Result{}
	plan := Plan{
		CurrentURL:     in.CurrentURL,
		NextURL:        in.Request.URL,
		CurrentMatches: in.CurrentMatches,
		Matches:        in.Matches,
		LoaderData:     in.LoaderData,
		Submission:     in.Submission,
		ActionResult:   in.ActionResult,
		ActionStatus:   in.ActionStatus,
		Revalidate:     in.Revalidate,
		Filter:         in.Filter,
	}

	if in.Submission != nil && IsMutation(in.Request.Method) {
		target := TargetMatch(in.Matches, "?"+in.Request.URL.RawQuery)
		if target == nil {
			return nil, fmt.Errorf("execute: submission to %q has no matches", in.Request.URL.Path)
		}
		action := e.CallAction(ctx, *target, in.Request)
		res.Action = &action
		res.ActionRouteID = target.RouteID

		if err := context.Cause(ctx); err != nil {
			return nil, err
		}
		if action.Kind == Redirect {
			res.Redirect = res.Action
			return res, nil
		}

		plan.ActionResult = action.Data
		plan.ActionStatus = action.Status
	}

	if in.BeforeLoaders != nil {
		if err := in.BeforeLoaders(ctx, res.Action); err != nil {
			return nil, err
		}
	}

	toLoad := MatchesToLoad(plan)
	loaderReq := loaderRequest(ctx, in.Request)

	calls := make([]Call, 0, len(toLoad)+len(in.Extra))
	for _, m := range toLoad {
		calls = append(calls, Call{Match: m, Request: loaderReq, Kind: router.KindLoader})
	}
	calls = append(calls, in.Extra...)

	outcomes, redirect, err := e.CallLoaders(ctx, calls)
	if err != nil {
		return nil, err
	}
	if redirect != nil {
		res.Redirect = redirect
		return res, nil
	}

	byRoute := make(map[string]Outcome, len(toLoad))
	for i := range toLoad {
		byRoute[outcomes[i].RouteID] = outcomes[i]
	}
	res.Loaders = make([]Outcome, len(in.Matches))
	for i, m := range in.Matches {
		if o, ok := byRoute[m.RouteID]; ok {
			res.Loaders[i] = o
			continue
		}
		res.Loaders[i] = Outcome{RouteID: m.RouteID, Kind: Skipped}
	}

	if len(in.Extra) > 0 {
		res.Extra = make(map[string]Outcome, len(in.Extra))
		for _, o := range outcomes[len(toLoad):] {
			res.Extra[o.Key] = o
		}
	}
	return res, nil
}

// IsMutation reports whether method submits data.
func IsMutation(method string) bool {
	switch strings.ToUpper(method) {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

// loaderRequest derives the GET request loaders receive from a navigation
// request.
func loaderRequest(ctx context.Context, req *http.Request) *http.Request {
	r := req.Clone(ctx)
	r.Method = http.MethodGet
	r.Body = http.NoBody
	r.GetBody = nil
	r.ContentLength = 0
	r.Header.Del("Content-Type")
	return r
}
