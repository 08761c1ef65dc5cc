// Package router normalizes route trees and matches URLs against them.
//
// A tree of RouteDefinition values is validated and flattened once by
// Normalize into an immutable Manifest. Routes reference each other only
// by ID; the manifest stores them in a flat map.
//
// # Patterns
//
//	users          static segment
//	users/:id      dynamic segment, one non-empty segment
//	docs/:lang?    optional segment
//	files/*        splat, the decoded remainder under Params["*"]
//
// Every root-to-leaf branch gets a score. Static segments outrank dynamic
// ones, dynamic segments outrank splats, and index routes outrank their
// parent layout. Equal scores fall back to definition order, so matching
// is deterministic:
//
//	m, err := router.Normalize([]router.RouteDefinition{{
//	    Path: "/",
//	    Children: []router.RouteDefinition{
//	        {Path: "users/me"},
//	        {Path: "users/:id"},
//	    },
//	}})
//	matches := m.MatchRoutes("/users/me", "")
//	// matches[1].Route.Path == "users/me"
//
// # Handlers
//
// Loaders and actions share HandlerFunc. They return data, a *Response
// (Redirect, Data, JSON), or a deferred value. Middleware wraps handlers
// the same way for both kinds.
package router
