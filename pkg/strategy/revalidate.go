package strategy

import (
	"net/url"
	"strings"

	"github.com/vango-dev/datarouter/pkg/router"
)

// Plan is what the loader planner needs to know about the transition.
type Plan struct {
	CurrentURL     *url.URL
	NextURL        *url.URL
	CurrentMatches []router.Match
	Matches        []router.Match

	// LoaderData is the current loader data, keyed by route ID.
	LoaderData map[string]any

	Submission   *router.Submission
	ActionResult any
	ActionStatus int

	// Revalidate forces pure revalidations to default to true.
	Revalidate bool

	// Filter, when set, drops matches the caller does not want loaded
	// (routes covered by hydration data).
	Filter func(m router.Match) bool
}

// DefaultShouldRevalidate is the decision for a route whose match did not
// change: reload after submissions, explicit revalidation, a search change,
// or a navigation to the same URL.
func DefaultShouldRevalidate(p Plan) bool {
	if p.Submission != nil || p.Revalidate {
		return true
	}
	if p.CurrentURL == nil || p.NextURL == nil {
		return true
	}
	if p.CurrentURL.RawQuery != p.NextURL.RawQuery {
		return true
	}
	return p.CurrentURL.Path == p.NextURL.Path
}

// MatchesToLoad returns the matches whose loaders run for p, in match
// order. A failed action does not narrow the set: loaders below its
// boundary still run and their data is dropped when errors are applied.
func MatchesToLoad(p Plan) []router.Match {
	matches := p.Matches
	defaultRevalidate := DefaultShouldRevalidate(p)
	var out []router.Match
	for i, m := range matches {
		if !m.Route.HasLoader() {
			continue
		}
		if p.Filter != nil && !p.Filter(m) {
			continue
		}

		current := findMatch(p.CurrentMatches, m.RouteID)
		if isNewLoader(p.LoaderData, current, m) || isNewRouteInstance(current, m) {
			out = append(out, matches[i])
			continue
		}

		if ShouldRevalidate(m, p, current, defaultRevalidate) {
			out = append(out, matches[i])
		}
	}
	return out
}

// ShouldRevalidate asks the route's hook, falling back to def.
func ShouldRevalidate(m router.Match, p Plan, current *router.Match, def bool) bool {
	if m.Route.ShouldRevalidate == nil {
		return def
	}
	args := router.ShouldRevalidateArgs{
		CurrentURL:              p.CurrentURL,
		NextURL:                 p.NextURL,
		NextParams:              m.Params,
		Submission:              p.Submission,
		ActionResult:            p.ActionResult,
		ActionStatus:            p.ActionStatus,
		DefaultShouldRevalidate: def,
	}
	if current != nil {
		args.CurrentParams = current.Params
	}
	return m.Route.ShouldRevalidate(args)
}

func isNewLoader(loaderData map[string]any, current *router.Match, m router.Match) bool {
	if current == nil {
		return true
	}
	_, hasData := loaderData[m.RouteID]
	return !hasData
}

func isNewRouteInstance(current *router.Match, m router.Match) bool {
	if current == nil {
		return true
	}
	if current.Pathname != m.Pathname {
		return true
	}
	if strings.HasSuffix(current.Route.Path, "*") && current.Params["*"] != m.Params["*"] {
		return true
	}
	return false
}

func findMatch(matches []router.Match, routeID string) *router.Match {
	for i := range matches {
		if matches[i].RouteID == routeID {
			return &matches[i]
		}
	}
	return nil
}

// TargetMatch returns the match a submission to matches is handled by: the
// deepest match that contributes to the path. An index leaf handles the
// submission only when search carries a bare "index" parameter.
func TargetMatch(matches []router.Match, search string) *router.Match {
	if len(matches) == 0 {
		return nil
	}
	if hasNakedIndexQuery(search) {
		return &matches[len(matches)-1]
	}
	for i := len(matches) - 1; i > 0; i-- {
		if matches[i].Route.Path != "" {
			return &matches[i]
		}
	}
	return &matches[0]
}

func hasNakedIndexQuery(search string) bool {
	q, err := url.ParseQuery(strings.TrimPrefix(search, "?"))
	if err != nil {
		return false
	}
	for _, v := range q["index"] {
		if v == "" {
			return true
		}
	}
	return false
}
