package router

import (
	"github.com/vango-dev/datarouter/pkg/routepath"
)

// MatchRoutes returns the matches for pathname, root first, or nil when
// nothing matches. basename is stripped first; a pathname outside the
// basename never matches.
//
// Branches are tried in rank order so the result is deterministic: a
// static segment beats a dynamic one, which beats a splat, and equal
// ranks fall back to definition order.
func (m *Manifest) MatchRoutes(pathname, basename string) []Match {
	stripped, ok := routepath.StripBasename(pathname, basename)
	if !ok {
		return nil
	}
	stripped = routepath.NormalizePathname(stripped)

	for _, b := range m.branches {
		if matches := matchBranch(b, stripped); matches != nil {
			return matches
		}
	}
	return nil
}

// MatchRoutes is shorthand for m.MatchRoutes.
func MatchRoutes(m *Manifest, pathname, basename string) []Match {
	return m.MatchRoutes(pathname, basename)
}

// NotFoundMatches is the match list used to render a 404: the root route
// alone, with no params.
func (m *Manifest) NotFoundMatches() []Match {
	root := m.Root()
	return []Match{{
		RouteID:      root.ID,
		Route:        root,
		Params:       Params{},
		Pathname:     "/",
		PathnameBase: "/",
	}}
}

// Branches returns the ranked branch paths, highest rank first.
func (m *Manifest) Branches() []BranchInfo {
	out := make([]BranchInfo, 0, len(m.branches))
	for _, b := range m.branches {
		ids := make([]string, len(b.metas))
		for i, meta := range b.metas {
			ids[i] = meta.route.ID
		}
		out = append(out, BranchInfo{Path: b.path, Score: b.score, RouteIDs: ids})
	}
	return out
}

// BranchInfo describes one matchable branch.
type BranchInfo struct {
	Path     string   `json:"path"`
	Score    int      `json:"score"`
	RouteIDs []string `json:"routeIds"`
}

// Leaf returns the last match, or nil.
func Leaf(matches []Match) *Match {
	if len(matches) == 0 {
		return nil
	}
	return &matches[len(matches)-1]
}
