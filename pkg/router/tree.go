package router

import (
	"regexp"
	"sort"
	"strings"

	"github.com/vango-dev/datarouter/pkg/routepath"
)

// Segment weights used to rank branches. A branch's score is its segment
// count plus the weight of each segment; more specific patterns win.
const (
	staticSegmentValue  = 10
	dynamicSegmentValue = 3
	emptySegmentValue   = 1
	indexRouteValue     = 2
	splatPenalty        = -2
)

var paramSegment = regexp.MustCompile(`^:[\w-]+$`)

// routeMeta is one route's contribution to a branch.
type routeMeta struct {
	relativePath  string
	caseSensitive bool
	childIndex    int
	route         *Route
	pattern       *pattern
}

// branch is a root-to-leaf chain of routes that can match on its own.
type branch struct {
	path  string
	score int
	metas []routeMeta
}

// flattenRoutes turns the manifest into ranked branches.
func flattenRoutes(m *Manifest) []branch {
	var branches []branch
	root := m.Root()
	flattenRoute(m, root, 0, nil, "", &branches)
	rankBranches(branches)
	return branches
}

func flattenRoute(m *Manifest, r *Route, index int, parents []routeMeta, parentPath string, out *[]branch) {
	if r.Path == "" || !strings.Contains(r.Path, "?") {
		flattenVariant(m, r, index, r.Path, r.Path != "", parents, parentPath, out)
		return
	}
	for _, exploded := range explodeOptionalSegments(r.Path) {
		flattenVariant(m, r, index, exploded, true, parents, parentPath, out)
	}
}

// flattenVariant flattens r using one concrete relative path. hasPath
// distinguishes an exploded empty path (matches) from a pathless layout
// (never matches on its own).
func flattenVariant(m *Manifest, r *Route, index int, relativePath string, hasPath bool, parents []routeMeta, parentPath string, out *[]branch) {
	meta := routeMeta{
		relativePath:  relativePath,
		caseSensitive: r.CaseSensitive,
		childIndex:    index,
		route:         r,
	}
	if strings.HasPrefix(meta.relativePath, "/") && parentPath != "" {
		meta.relativePath = strings.TrimPrefix(meta.relativePath, parentPath)
	}
	meta.pattern = compilePattern(meta.relativePath, meta.caseSensitive)

	path := routepath.JoinPaths(parentPath, meta.relativePath)
	metas := make([]routeMeta, len(parents), len(parents)+1)
	copy(metas, parents)
	metas = append(metas, meta)

	for i, childID := range r.ChildIDs {
		child, _ := m.Route(childID)
		flattenRoute(m, child, i, metas, path, out)
	}

	if !hasPath && !r.Index {
		return
	}
	*out = append(*out, branch{
		path:  path,
		score: computeScore(path, r.Index),
		metas: metas,
	})
}

// explodeOptionalSegments expands "a/:b?/c?" into every combination of the
// optional segments, required variants first.
func explodeOptionalSegments(path string) []string {
	segments := strings.Split(path, "/")
	if len(segments) == 0 {
		return nil
	}

	first, rest := segments[0], segments[1:]
	optional := strings.HasSuffix(first, "?")
	required := strings.TrimSuffix(first, "?")

	if len(rest) == 0 {
		if optional {
			return []string{required, ""}
		}
		return []string{required}
	}

	restExploded := explodeOptionalSegments(strings.Join(rest, "/"))

	var result []string
	for _, sub := range restExploded {
		if sub == "" {
			result = append(result, required)
		} else {
			result = append(result, required+"/"+sub)
		}
	}
	if optional {
		result = append(result, restExploded...)
	}

	for i, exploded := range result {
		if strings.HasPrefix(path, "/") && exploded == "" {
			result[i] = "/"
		}
	}
	return result
}

func computeScore(path string, index bool) int {
	segments := strings.Split(path, "/")
	score := len(segments)

	for _, seg := range segments {
		if seg == "*" {
			score += splatPenalty
			break
		}
	}
	if index {
		score += indexRouteValue
	}

	for _, seg := range segments {
		switch {
		case seg == "*":
		case paramSegment.MatchString(seg):
			score += dynamicSegmentValue
		case seg == "":
			score += emptySegmentValue
		default:
			score += staticSegmentValue
		}
	}
	return score
}

// rankBranches orders branches by score. Sibling branches with equal
// scores keep definition order; unrelated ties keep flatten order.
func rankBranches(branches []branch) {
	sort.SliceStable(branches, func(i, j int) bool {
		a, b := branches[i], branches[j]
		if a.score != b.score {
			return a.score > b.score
		}
		return compareIndexes(a.metas, b.metas) < 0
	})
}

func compareIndexes(a, b []routeMeta) int {
	if len(a) != len(b) {
		return 0
	}
	last := len(a) - 1
	for i := 0; i < last; i++ {
		if a[i].childIndex != b[i].childIndex {
			return 0
		}
	}
	return a[last].childIndex - b[last].childIndex
}

// matchBranch matches every route of b against pathname, each consuming a
// prefix of the remaining path. The leaf must match to the end.
func matchBranch(b branch, pathname string) []Match {
	params := Params{}
	matchedPathname := "/"
	matches := make([]Match, 0, len(b.metas))

	for i, meta := range b.metas {
		end := i == len(b.metas)-1

		remaining := pathname
		if matchedPathname != "/" {
			remaining = pathname[len(matchedPathname):]
			if remaining == "" {
				remaining = "/"
			}
		}

		pm, ok := meta.pattern.match(remaining, end)
		if !ok {
			return nil
		}
		for k, v := range pm.Params {
			params[k] = v
		}

		matches = append(matches, Match{
			RouteID:      meta.route.ID,
			ParentID:     meta.route.ParentID,
			Route:        meta.route,
			Params:       params,
			Pathname:     routepath.JoinPaths(matchedPathname, pm.Pathname),
			PathnameBase: routepath.NormalizePathname(routepath.JoinPaths(matchedPathname, pm.PathnameBase)),
		})

		if pm.PathnameBase != "/" {
			matchedPathname = routepath.JoinPaths(matchedPathname, pm.PathnameBase)
		}
	}
	return matches
}
