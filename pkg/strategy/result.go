package strategy

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/vango-dev/datarouter/pkg/deferred"
	"github.com/vango-dev/datarouter/pkg/router"
)

// OutcomeKind classifies what a handler produced.
type OutcomeKind uint8

const (
	Skipped OutcomeKind = iota
	Data
	Error
	Redirect
	Deferred
)

func (k OutcomeKind) String() string {
	switch k {
	case Data:
		return "data"
	case Error:
		return "error"
	case Redirect:
		return "redirect"
	case Deferred:
		return "deferred"
	default:
		return "skipped"
	}
}

// RedirectTarget describes where a redirect outcome points.
type RedirectTarget struct {
	Location       string
	Status         int
	Header         http.Header
	Replace        bool
	ReloadDocument bool
}

// Outcome is the result of one loader or action.
type Outcome struct {
	RouteID string
	Key     string
	Kind    OutcomeKind

	Data     any
	Err      error
	Status   int
	Header   http.Header
	Redirect *RedirectTarget
	Deferred *deferred.Data
}

// HandlerError wraps a non-error value a handler panicked with.
type HandlerError struct {
	RouteID string
	Kind    router.HandlerKind
	Value   any
	Stack   []byte
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("%s for route %q panicked: %v", e.Kind, e.RouteID, e.Value)
}

// classify turns a handler's return values into an outcome.
func classify(routeID string, val any, err error) Outcome {
	out := Outcome{RouteID: routeID}

	if resp, ok := router.AsRedirect(val, err); ok {
		out.Kind = Redirect
		out.Status = resp.Status
		out.Header = resp.Header
		out.Redirect = &RedirectTarget{
			Location:       resp.Location(),
			Status:         resp.Status,
			Header:         resp.Header,
			Replace:        resp.Replace(),
			ReloadDocument: resp.ReloadDocument(),
		}
		return out
	}

	if err != nil {
		out.Kind = Error
		var resp *router.Response
		if errors.As(err, &resp) {
			out.Err = &router.ErrorResponse{
				Status:     resp.Status,
				StatusText: http.StatusText(resp.Status),
				Data:       resp.Body,
			}
			out.Status = resp.Status
			out.Header = resp.Header
			return out
		}
		out.Err = err
		out.Status = errorStatus(err)
		return out
	}

	if resp, ok := val.(*router.Response); ok && resp != nil {
		out.Status = resp.Status
		out.Header = resp.Header
		val = resp.Body
	}
	if d, ok := val.(*deferred.Data); ok && d != nil {
		out.Kind = Deferred
		out.Deferred = d
		out.Data = d
		return out
	}
	out.Kind = Data
	out.Data = val
	return out
}

func errorStatus(err error) int {
	if er, ok := router.IsErrorResponse(err); ok {
		return er.Status
	}
	return http.StatusInternalServerError
}

// Result is everything one Execute call produced.
type Result struct {
	// Action is the action outcome, nil for loads.
	Action *Outcome

	// ActionRouteID is the route whose action ran.
	ActionRouteID string

	// Loaders holds one outcome per input match, Skipped when the loader
	// did not run.
	Loaders []Outcome

	// Extra holds outcomes of Input.Extra, keyed by Call.Key.
	Extra map[string]Outcome

	// Redirect is set when a handler redirected. Loaders and Extra are
	// empty in that case.
	Redirect *Outcome
}

// Loaded returns the route IDs whose loaders ran, in match order.
func (r *Result) Loaded() []string {
	var ids []string
	for _, o := range r.Loaders {
		if o.Kind != Skipped {
			ids = append(ids, o.RouteID)
		}
	}
	return ids
}
