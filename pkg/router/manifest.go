package router

import (
	"strconv"
	"strings"

	"github.com/vango-dev/datarouter/pkg/routepath"
)

// Manifest is a normalized route tree: a flat ID → Route arena plus the
// ranked branches used for matching. A Manifest is immutable and safe for
// concurrent use.
type Manifest struct {
	routes   map[string]*Route
	order    []string
	rootID   string
	branches []branch
}

// Normalize validates a route tree and flattens it into a Manifest.
//
// Routes without an ID get parentID + "-" + childIndex ("0" for the root).
// Exactly one top-level definition (the root) is allowed. Every problem
// found is reported in a single *MultiConfigError.
func Normalize(defs []RouteDefinition) (*Manifest, error) {
	v := &validator{}
	m := &Manifest{routes: make(map[string]*Route)}

	switch len(defs) {
	case 0:
		v.add(InvalidRouteConfig, "", "route tree is empty")
		return nil, v.err()
	case 1:
	default:
		v.add(InvalidRouteConfig, "", "route tree must have a single root route, got %d", len(defs))
	}

	for i := range defs {
		id := m.add(v, &defs[i], "", strconv.Itoa(i), 0)
		if i == 0 {
			m.rootID = id
		}
	}

	if err := v.err(); err != nil {
		return nil, err
	}

	m.branches = flattenRoutes(m)
	return m, nil
}

// add stores def and its subtree and returns the ID used for def.
func (m *Manifest) add(v *validator, def *RouteDefinition, parentID, autoID string, depth int) string {
	id := def.ID
	if id == "" {
		id = autoID
	}

	v.checkShape(id, def)

	if _, exists := m.routes[id]; exists {
		v.add(DuplicateRouteID, id, "route id is used more than once")
		// Keep walking so that errors below this route are reported too,
		// but never overwrite the first route with this id.
		for i := range def.Children {
			m.add(v, &def.Children[i], id, id+"-"+strconv.Itoa(i), depth+1)
		}
		return id
	}

	route := &Route{
		ID:                 id,
		ParentID:           parentID,
		Path:               def.Path,
		Index:              def.Index,
		CaseSensitive:      def.CaseSensitive,
		ErrorBoundary:      def.ErrorBoundary,
		Loader:             def.Loader,
		Action:             def.Action,
		ShouldRevalidate:   def.ShouldRevalidate,
		DeferredBoundaries: append([]string(nil), def.DeferredBoundaries...),
		Handle:             def.Handle,
		Depth:              depth,
	}
	m.routes[id] = route
	m.order = append(m.order, id)

	for i := range def.Children {
		childID := m.add(v, &def.Children[i], id, id+"-"+strconv.Itoa(i), depth+1)
		route.ChildIDs = append(route.ChildIDs, childID)
	}

	if parentID != "" {
		parent := m.routes[parentID]
		if parent != nil && strings.HasPrefix(def.Path, "/") {
			parentPath := m.fullPath(parentID)
			if !strings.HasPrefix(def.Path, parentPath) {
				v.add(InvalidRouteConfig, id, "absolute path %q must start with its parent path %q", def.Path, parentPath)
			}
		}
	}
	return id
}

// fullPath joins the paths from the root down to id.
func (m *Manifest) fullPath(id string) string {
	var parts []string
	for r := m.routes[id]; r != nil; r = m.routes[r.ParentID] {
		if r.Path != "" {
			parts = append([]string{r.Path}, parts...)
		}
		if r.ParentID == "" {
			break
		}
	}
	return routepath.NormalizePathname(routepath.JoinPaths(parts...))
}

// Route returns the route with the given ID.
func (m *Manifest) Route(id string) (*Route, bool) {
	r, ok := m.routes[id]
	return r, ok
}

// Root returns the root route.
func (m *Manifest) Root() *Route {
	return m.routes[m.rootID]
}

// Parent returns the parent of id, if any.
func (m *Manifest) Parent(id string) (*Route, bool) {
	r, ok := m.routes[id]
	if !ok || r.ParentID == "" {
		return nil, false
	}
	return m.Route(r.ParentID)
}

// Children returns the children of id in definition order.
func (m *Manifest) Children(id string) []*Route {
	r, ok := m.routes[id]
	if !ok {
		return nil
	}
	out := make([]*Route, 0, len(r.ChildIDs))
	for _, cid := range r.ChildIDs {
		out = append(out, m.routes[cid])
	}
	return out
}

// IDs returns every route ID in depth-first definition order.
func (m *Manifest) IDs() []string {
	return append([]string(nil), m.order...)
}

// Len returns the number of routes.
func (m *Manifest) Len() int { return len(m.routes) }

// Walk visits routes depth-first in definition order.
func (m *Manifest) Walk(fn func(r *Route)) {
	for _, id := range m.order {
		fn(m.routes[id])
	}
}
