package router

import (
	"context"
	"net/http"
	"net/url"
	"slices"
)

// RouteDefinition is an author-supplied route. Definitions nest through
// Children and are flattened by Normalize; they are never mutated.
type RouteDefinition struct {
	// ID identifies the route. When empty, an ID is derived from the
	// route's position in the tree.
	ID string

	// Path is the URL pattern relative to the parent ("users/:id",
	// "files/*", "docs/:lang?"). Empty marks a pathless layout route.
	Path string

	// Index marks a route that renders at its parent's URL.
	Index bool

	// CaseSensitive makes static segments compare case-sensitively.
	CaseSensitive bool

	// Loader provides data for GET navigations.
	Loader HandlerFunc

	// Action handles submissions (POST, PUT, PATCH, DELETE).
	Action HandlerFunc

	// ShouldRevalidate lets a route opt out of revalidation.
	ShouldRevalidate ShouldRevalidateFunc

	// ErrorBoundary reports that the route can render errors of its own
	// subtree.
	ErrorBoundary bool

	// DeferredBoundaries lists deferred keys whose region renders its own
	// error state. "*" covers every key.
	DeferredBoundaries []string

	// Handle is opaque author metadata carried into matches.
	Handle any

	// Children are nested routes, in priority order for ties.
	Children []RouteDefinition
}

// Route is a normalized route stored in a Manifest. Routes link to each
// other only by ID.
type Route struct {
	ID                 string
	ParentID           string
	Path               string
	Index              bool
	CaseSensitive      bool
	ErrorBoundary      bool
	Loader             HandlerFunc
	Action             HandlerFunc
	ShouldRevalidate   ShouldRevalidateFunc
	DeferredBoundaries []string
	Handle             any
	ChildIDs           []string
	Depth              int
}

// HasLoader reports whether the route defines a loader.
func (r *Route) HasLoader() bool { return r != nil && r.Loader != nil }

// HasAction reports whether the route defines an action.
func (r *Route) HasAction() bool { return r != nil && r.Action != nil }

// HandlesDeferred reports whether a rejected deferred key renders inside
// its own nested boundary.
func (r *Route) HandlesDeferred(key string) bool {
	if r == nil {
		return false
	}
	return slices.Contains(r.DeferredBoundaries, key) || slices.Contains(r.DeferredBoundaries, "*")
}

// Params maps parameter names to decoded values. The splat is stored
// under "*".
type Params map[string]string

// Get returns a parameter and whether it was present.
func (p Params) Get(name string) (string, bool) {
	v, ok := p[name]
	return v, ok
}

// Equal reports whether both param sets hold the same values.
func (p Params) Equal(other Params) bool {
	if len(p) != len(other) {
		return false
	}
	for k, v := range p {
		if ov, ok := other[k]; !ok || ov != v {
			return false
		}
	}
	return true
}

// Match is one route matched against a location.
type Match struct {
	RouteID      string
	ParentID     string
	Route        *Route
	Params       Params
	Pathname     string
	PathnameBase string
}

// HandlerKind distinguishes loaders from actions.
type HandlerKind uint8

const (
	KindLoader HandlerKind = iota
	KindAction
)

func (k HandlerKind) String() string {
	if k == KindAction {
		return "action"
	}
	return "loader"
}

// Args are passed to every loader and action.
type Args struct {
	// Request is the navigation request. Loaders always receive a GET;
	// actions receive the submission method and body.
	Request *http.Request

	// Params are the matched path params.
	Params Params

	// LoadContext is the application value configured on the router.
	LoadContext any

	// RouteID is the route being invoked.
	RouteID string

	// Kind tells middleware whether a loader or an action runs.
	Kind HandlerKind
}

// HandlerFunc is the signature of loaders and actions. A handler returns
// data, a *Response (redirects or data with a status), or a
// *deferred.Data. Returned errors become the route's error; a returned
// redirect *Response is honored as a redirect.
//
// ctx is cancelled when the navigation is superseded. Observing it is
// optional: results of superseded navigations are discarded regardless.
type HandlerFunc func(ctx context.Context, args Args) (any, error)

// Submission describes a form or data submission.
type Submission struct {
	Method   string     `json:"formMethod"`
	Action   string     `json:"formAction"`
	EncType  string     `json:"formEncType,omitempty"`
	FormData url.Values `json:"formData,omitempty"`
	JSON     any        `json:"json,omitempty"`
	Text     string     `json:"text,omitempty"`
}

// Encoding types for submissions.
const (
	EncTypeForm = "application/x-www-form-urlencoded"
	EncTypeJSON = "application/json"
	EncTypeText = "text/plain"
)

// ShouldRevalidateArgs describe a pure revalidation of a route whose match
// did not change.
type ShouldRevalidateArgs struct {
	CurrentURL    *url.URL
	CurrentParams Params
	NextURL       *url.URL
	NextParams    Params

	// Submission is set when the revalidation follows an action.
	Submission *Submission

	ActionResult any
	ActionStatus int

	// DefaultShouldRevalidate is the router's own decision.
	DefaultShouldRevalidate bool
}

// ShouldRevalidateFunc decides whether an unchanged route reloads.
type ShouldRevalidateFunc func(args ShouldRevalidateArgs) bool
