// Package query runs route handlers for a single server request, without
// a navigation state machine. It produces everything a server render
// needs: matches, loader and action data, route errors with the chosen
// boundary, and a status code. Context.Hydration hands the result to a
// client datarouter.Router.
package query

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/http"

	"github.com/vango-dev/datarouter"
	"github.com/vango-dev/datarouter/pkg/boundary"
	"github.com/vango-dev/datarouter/pkg/deferred"
	"github.com/vango-dev/datarouter/pkg/routepath"
	"github.com/vango-dev/datarouter/pkg/router"
	"github.com/vango-dev/datarouter/pkg/strategy"
)

// Handler answers requests against a route manifest. It is safe for
// concurrent use.
type Handler struct {
	manifest    *router.Manifest
	basename    string
	middleware  []router.Middleware
	loadContext any
	stream      bool
	exec        *strategy.Executor
}

// Option configures a Handler.
type Option func(*Handler)

// WithBasename serves the routes below basename.
func WithBasename(basename string) Option {
	return func(h *Handler) {
		h.basename = basename
	}
}

// WithMiddleware wraps every loader and action.
func WithMiddleware(mw ...router.Middleware) Option {
	return func(h *Handler) {
		h.middleware = append(h.middleware, mw...)
	}
}

// WithLoadContext passes v to every handler as Args.LoadContext.
func WithLoadContext(v any) Option {
	return func(h *Handler) {
		h.loadContext = v
	}
}

// WithStreaming returns deferred loader data without waiting for it. By
// default Query waits until every deferred key has settled.
func WithStreaming() Option {
	return func(h *Handler) {
		h.stream = true
	}
}

// New normalizes routes and creates a Handler.
func New(routes []router.RouteDefinition, opts ...Option) (*Handler, error) {
	m, err := router.Normalize(routes)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	return NewFromManifest(m, opts...), nil
}

// NewFromManifest creates a Handler for an already normalized manifest.
func NewFromManifest(m *router.Manifest, opts ...Option) *Handler {
	h := &Handler{manifest: m}
	for _, opt := range opts {
		opt(h)
	}
	h.exec = strategy.New(strategy.WithMiddleware(h.middleware...), strategy.WithLoadContext(h.loadContext))
	return h
}

// Manifest returns the handler's routes.
func (h *Handler) Manifest() *router.Manifest { return h.manifest }

// Context is the outcome of Query.
type Context struct {
	Basename   string
	Location   routepath.Location
	Matches    []router.Match
	LoaderData map[string]any
	ActionData map[string]any
	Errors     map[string]error

	// Boundary is the route rendering Errors, nil without errors.
	Boundary *boundary.Result

	// Unhandled is set when an error reached the root without any route
	// declaring a boundary.
	Unhandled *boundary.UnhandledError

	StatusCode    int
	LoaderHeaders map[string]http.Header
	ActionHeaders map[string]http.Header

	// Redirect is set when a handler redirected. The other fields are
	// then empty.
	Redirect *router.Response
}

// Hydration returns the state a client router starts from.
func (c *Context) Hydration() *datarouter.HydrationState {
	return &datarouter.HydrationState{
		LoaderData: c.LoaderData,
		ActionData: c.ActionData,
		Errors:     c.Errors,
	}
}

// RenderMatches returns the matches to render: truncated at the error
// boundary when there is one.
func (c *Context) RenderMatches() []router.Match {
	if c.Boundary != nil {
		return c.Boundary.Matches
	}
	return c.Matches
}

func validMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead:
		return true
	}
	return strategy.IsMutation(method)
}

// Query runs the action (for submissions) and the loaders of every route
// matching req. Handler errors are reported in Context; the returned
// error is only set when ctx ends first.
func (h *Handler) Query(ctx context.Context, req *http.Request) (*Context, error) {
	loc := requestLocation(req)
	c := &Context{
		Basename:      h.basename,
		Location:      loc,
		LoaderData:    map[string]any{},
		StatusCode:    http.StatusOK,
		LoaderHeaders: map[string]http.Header{},
		ActionHeaders: map[string]http.Header{},
	}

	matches := h.manifest.MatchRoutes(loc.Pathname, h.basename)
	if matches == nil {
		c.Matches = h.manifest.NotFoundMatches()
		h.setErrors(c, map[string]error{c.Matches[0].RouteID: router.NotFound(loc.Pathname)})
		return c, nil
	}
	c.Matches = matches
	if !validMethod(req.Method) {
		root := matches[0].RouteID
		c.Matches = matches[:1]
		h.setErrors(c, map[string]error{root: router.MethodNotAllowed(req.Method, loc.Pathname, root)})
		return c, nil
	}

	in := strategy.Input{Request: req, Matches: matches}
	if strategy.IsMutation(req.Method) {
		in.Submission = requestSubmission(req, loc)
	}
	res, err := h.exec.Execute(ctx, in)
	if err != nil {
		return nil, err
	}
	if res.Redirect != nil {
		return &Context{Basename: h.basename, Location: loc, Redirect: redirectResponse(res.Redirect)}, nil
	}

	errs := map[string]error{}
	if a := res.Action; a != nil {
		if len(a.Header) > 0 {
			c.ActionHeaders[a.RouteID] = a.Header
		}
		switch a.Kind {
		case strategy.Error:
			errs[a.RouteID] = a.Err
		default:
			c.ActionData = map[string]any{a.RouteID: a.Data}
			if a.Status != 0 {
				c.StatusCode = a.Status
			}
		}
	}

	for _, o := range res.Loaders {
		if o.Kind == strategy.Skipped {
			continue
		}
		if len(o.Header) > 0 {
			c.LoaderHeaders[o.RouteID] = o.Header
		}
		if o.Kind == strategy.Deferred && !h.stream {
			if err := o.Deferred.Wait(ctx); err != nil {
				return nil, err
			}
			if err := h.rejected(o.RouteID, o.Deferred); err != nil {
				errs[o.RouteID] = err
				continue
			}
			c.LoaderData[o.RouteID] = o.Deferred
			continue
		}
		if o.Kind == strategy.Error {
			errs[o.RouteID] = o.Err
			continue
		}
		c.LoaderData[o.RouteID] = o.Data
		if o.Status != 0 && o.Status != http.StatusOK && res.Action == nil {
			c.StatusCode = o.Status
		}
	}

	h.setErrors(c, errs)
	return c, nil
}

// rejected returns the first rejection of d the route does not render
// itself.
func (h *Handler) rejected(routeID string, d *deferred.Data) error {
	route, _ := h.manifest.Route(routeID)
	for _, k := range d.Keys() {
		v, _ := d.Value(k)
		if _, err := v.Result(); err != nil && !route.HandlesDeferred(k) {
			return err
		}
	}
	return nil
}

func (h *Handler) setErrors(c *Context, errs map[string]error) {
	if len(errs) == 0 {
		return
	}
	for id := range errs {
		delete(c.LoaderData, id)
	}
	b, err := boundary.Resolve(c.Matches, errs)
	c.Errors, c.Boundary = errs, b
	if b == nil {
		return
	}
	if i := boundary.IndexOf(c.Matches, b.RouteID); i >= 0 {
		for _, m := range c.Matches[i+1:] {
			delete(c.LoaderData, m.RouteID)
		}
	}
	errors.As(err, &c.Unhandled)

	c.StatusCode = http.StatusInternalServerError
	if er, ok := router.IsErrorResponse(b.Error); ok {
		c.StatusCode = er.Status
	}
}

// QueryRoute runs the handler of a single route, the way resource routes
// are served. An empty routeID targets the deepest match. The result is
// the handler's data; redirects come back as a *router.Response value.
// Handler errors and routing failures are returned as errors.
func (h *Handler) QueryRoute(ctx context.Context, req *http.Request, routeID string) (any, error) {
	loc := requestLocation(req)
	matches := h.manifest.MatchRoutes(loc.Pathname, h.basename)
	if matches == nil {
		return nil, router.NotFound(loc.Pathname)
	}
	if !validMethod(req.Method) {
		return nil, router.MethodNotAllowed(req.Method, loc.Pathname, matches[len(matches)-1].RouteID)
	}

	var target *router.Match
	if routeID == "" {
		target = strategy.TargetMatch(matches, loc.Search)
	} else if i := boundary.IndexOf(matches, routeID); i >= 0 {
		target = &matches[i]
	} else {
		return nil, &router.ErrorResponse{
			Status:     http.StatusForbidden,
			StatusText: http.StatusText(http.StatusForbidden),
			Internal:   true,
			Err:        fmt.Errorf("route %q does not match URL %q", routeID, loc.Pathname),
		}
	}

	kind := router.KindLoader
	if strategy.IsMutation(req.Method) {
		kind = router.KindAction
	} else if !target.Route.HasLoader() {
		return nil, &router.ErrorResponse{
			Status:     http.StatusBadRequest,
			StatusText: http.StatusText(http.StatusBadRequest),
			Internal:   true,
			Err:        fmt.Errorf("route %q has no loader", target.RouteID),
		}
	}

	o := h.exec.Invoke(ctx, strategy.Call{Match: *target, Request: req, Kind: kind})
	switch o.Kind {
	case strategy.Redirect:
		return redirectResponse(&o), nil
	case strategy.Error:
		return nil, o.Err
	case strategy.Deferred:
		if err := o.Deferred.Wait(ctx); err != nil {
			return nil, err
		}
		if err := h.rejected(o.RouteID, o.Deferred); err != nil {
			return nil, err
		}
		return o.Deferred.Unwrap(), nil
	}
	return o.Data, nil
}

func requestLocation(req *http.Request) routepath.Location {
	search := ""
	if req.URL.RawQuery != "" {
		search = "?" + req.URL.RawQuery
	}
	return routepath.CreateLocation(routepath.Path{Pathname: req.URL.Path, Search: search}, nil, routepath.DefaultKey)
}

func requestSubmission(req *http.Request, loc routepath.Location) *router.Submission {
	enc := router.EncTypeForm
	if ct := req.Header.Get("Content-Type"); ct != "" {
		if mt, _, err := mime.ParseMediaType(ct); err == nil {
			enc = mt
		}
	}
	return &router.Submission{
		Method:  req.Method,
		Action:  routepath.CreatePath(loc.Path()),
		EncType: enc,
	}
}

func redirectResponse(o *strategy.Outcome) *router.Response {
	t := o.Redirect
	header := t.Header.Clone()
	if header == nil {
		header = http.Header{}
	}
	header.Set(router.HeaderLocation, t.Location)
	return &router.Response{Status: t.Status, Header: header}
}
