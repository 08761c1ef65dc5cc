// Package routepath holds the path and location primitives shared by the
// matcher and the navigation state machine.
//
// It covers three concerns:
//   - Canonicalization of incoming request paths (CanonicalizePath)
//   - Locations and their string form (Location, ParsePath, CreatePath)
//   - Relative navigation resolution (ResolveTo, ResolvePath) and basename
//     handling (StripBasename, PrependBasename)
//
// # Relative navigation
//
// ResolveTo supports two modes. Route-relative (the default in the router)
// treats each ".." as "leave one route":
//
//	// matches: / → /projects → /projects/:id (pathname bases)
//	routepath.ResolveTo("../settings", []string{"/", "/projects", "/projects/7"}, "/projects/7", false)
//	// → /projects/settings
//
// Path-relative treats ".." as "drop one URL segment" regardless of how
// the routes nest.
package routepath
