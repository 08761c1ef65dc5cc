package boundary

import (
	"fmt"
	"sort"

	"github.com/vango-dev/datarouter/pkg/router"
)

// Result is the boundary chosen to render errors for a set of matches.
type Result struct {
	// RouteID is the route that renders the error.
	RouteID string

	// Error is the error the boundary renders: the shallowest error at or
	// below the boundary.
	Error error

	// ErrorRouteID is the route whose handler produced Error.
	ErrorRouteID string

	// Matches are the render matches, truncated at the boundary.
	Matches []router.Match
}

// UnhandledError reports an error that no route declared a boundary for.
// The root renders it.
type UnhandledError struct {
	RouteID string
	Err     error
}

func (e *UnhandledError) Error() string {
	return fmt.Sprintf("unhandled error in route %q: %v", e.RouteID, e.Err)
}

func (e *UnhandledError) Unwrap() error { return e.Err }

// Nearest returns the index of the closest match at or above index that
// declares an error boundary. Without one it returns 0 (the root) and
// false.
func Nearest(matches []router.Match, index int) (int, bool) {
	if index >= len(matches) {
		index = len(matches) - 1
	}
	for i := index; i >= 0; i-- {
		if matches[i].Route != nil && matches[i].Route.ErrorBoundary {
			return i, true
		}
	}
	return 0, false
}

// IndexOf returns the position of routeID in matches, or -1.
func IndexOf(matches []router.Match, routeID string) int {
	for i, m := range matches {
		if m.RouteID == routeID {
			return i
		}
	}
	return -1
}

// Resolve picks the boundary for errs, a map of route ID to the error its
// handler produced. It returns nil when there are no errors.
//
// Each error bubbles to its nearest boundary; the shallowest of those
// renders. Errors keyed by a route outside matches are treated as errors
// of the leaf. When the chosen boundary is the root only because nothing
// declared one, an *UnhandledError is returned with the result.
func Resolve(matches []router.Match, errs map[string]error) (*Result, error) {
	if len(errs) == 0 || len(matches) == 0 {
		return nil, nil
	}

	leaf := len(matches) - 1
	best, capable := -1, false
	for id, err := range errs {
		if err == nil {
			continue
		}
		i := IndexOf(matches, id)
		if i < 0 {
			i = leaf
		}
		b, ok := Nearest(matches, i)
		if best < 0 || b < best || (b == best && ok) {
			best, capable = b, ok
		}
	}
	if best < 0 {
		return nil, nil
	}

	res := &Result{
		RouteID: matches[best].RouteID,
		Matches: append([]router.Match(nil), matches[:best+1]...),
	}
	for i := best; i < len(matches); i++ {
		if err := errs[matches[i].RouteID]; err != nil {
			res.Error, res.ErrorRouteID = err, matches[i].RouteID
			break
		}
	}
	if res.Error == nil {
		// Only errors keyed outside matches remain; pick one deterministically.
		for _, id := range sortedKeys(errs) {
			if errs[id] != nil {
				res.Error, res.ErrorRouteID = errs[id], id
				break
			}
		}
	}

	if !capable {
		return res, &UnhandledError{RouteID: res.ErrorRouteID, Err: res.Error}
	}
	return res, nil
}

func sortedKeys(errs map[string]error) []string {
	keys := make([]string, 0, len(errs))
	for k := range errs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
