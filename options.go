package datarouter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/vango-dev/datarouter/pkg/boundary"
	"github.com/vango-dev/datarouter/pkg/router"
)

// Options configures a Router. Options are read once by New.
type Options struct {
	// Routes is the route tree. It must have a single root.
	Routes []router.RouteDefinition

	// Basename is prepended to every location the router produces and
	// stripped before matching.
	Basename string

	// History holds the locations. Default: NewMemoryHistory("/").
	History History

	// Origin is the scheme and host used for handler requests.
	// Default: "http://localhost".
	Origin string

	// Hydration seeds loader data produced by a server render. Routes
	// covered by it do not load during Initialize.
	Hydration *HydrationState

	// LoadContext is passed to every handler as Args.LoadContext.
	LoadContext any

	// Middleware wraps every loader and action.
	Middleware []router.Middleware

	// Observer is notified about runs and unhandled errors.
	Observer Observer

	// OnUnhandledError is called when an error reaches the root without
	// any route declaring an error boundary.
	OnUnhandledError func(err *boundary.UnhandledError)

	// OnDocumentRedirect receives redirects that leave the router: ones
	// marked with RedirectDocument and absolute URLs.
	OnDocumentRedirect func(location string)
}

const defaultOrigin = "http://localhost"

// NavigateOptions configures a navigation or fetch.
type NavigateOptions struct {
	// Replace replaces the current history entry instead of pushing.
	Replace bool

	// State is stored on the new location.
	State any

	// PreventScrollReset asks the renderer to keep the scroll position.
	PreventScrollReset bool

	// FromRouteID resolves relative targets against this route instead
	// of the leaf match.
	FromRouteID string

	// RelativePath resolves ".." by URL segment instead of by route.
	RelativePath bool

	// Submission turns the navigation into a form submission.
	Submission *router.Submission
}

// NavigateOption is a functional option for Navigate and Fetch.
type NavigateOption func(*NavigateOptions)

// WithReplace replaces the current history entry instead of pushing.
func WithReplace() NavigateOption {
	return func(o *NavigateOptions) {
		o.Replace = true
	}
}

// WithState stores state on the new location.
func WithState(state any) NavigateOption {
	return func(o *NavigateOptions) {
		o.State = state
	}
}

// WithPreventScrollReset keeps the scroll position after navigating.
func WithPreventScrollReset() NavigateOption {
	return func(o *NavigateOptions) {
		o.PreventScrollReset = true
	}
}

// FromRoute resolves relative targets against the given route.
func FromRoute(routeID string) NavigateOption {
	return func(o *NavigateOptions) {
		o.FromRouteID = routeID
	}
}

// WithRelativePath resolves ".." by URL segment.
func WithRelativePath() NavigateOption {
	return func(o *NavigateOptions) {
		o.RelativePath = true
	}
}

// WithFormData submits form values with method. GET submissions become
// the target's search params.
func WithFormData(method string, data url.Values) NavigateOption {
	return func(o *NavigateOptions) {
		o.Submission = &router.Submission{Method: strings.ToUpper(method), EncType: router.EncTypeForm, FormData: data}
	}
}

// WithJSON submits v encoded as JSON.
func WithJSON(method string, v any) NavigateOption {
	return func(o *NavigateOptions) {
		o.Submission = &router.Submission{Method: strings.ToUpper(method), EncType: router.EncTypeJSON, JSON: v}
	}
}

// WithText submits a plain text body.
func WithText(method, text string) NavigateOption {
	return func(o *NavigateOptions) {
		o.Submission = &router.Submission{Method: strings.ToUpper(method), EncType: router.EncTypeText, Text: text}
	}
}

func applyNavigateOptions(opts []NavigateOption) NavigateOptions {
	var o NavigateOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// submissionBody encodes a submission for its handler request.
func submissionBody(s *router.Submission) (io.Reader, error) {
	switch s.EncType {
	case router.EncTypeJSON:
		b, err := json.Marshal(s.JSON)
		if err != nil {
			return nil, fmt.Errorf("encode json submission: %w", err)
		}
		return bytes.NewReader(b), nil
	case router.EncTypeText:
		return strings.NewReader(s.Text), nil
	default:
		return strings.NewReader(s.FormData.Encode()), nil
	}
}

// newRequest builds the handler request for href. Submissions with a
// mutation method carry their encoded body.
func (r *Router) newRequest(ctx context.Context, href string, sub *router.Submission) (*http.Request, error) {
	method := http.MethodGet
	var body io.Reader
	if sub != nil && sub.Method != http.MethodGet {
		method = sub.Method
		b, err := submissionBody(sub)
		if err != nil {
			return nil, err
		}
		body = b
	}

	req, err := http.NewRequestWithContext(ctx, method, r.origin+href, body)
	if err != nil {
		return nil, fmt.Errorf("build request for %q: %w", href, err)
	}
	if body != nil {
		enc := sub.EncType
		if enc == "" {
			enc = router.EncTypeForm
		}
		if enc == router.EncTypeText {
			enc += ";charset=UTF-8"
		}
		req.Header.Set("Content-Type", enc)
	}
	return req, nil
}
