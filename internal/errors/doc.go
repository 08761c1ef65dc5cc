// Package errors provides coded, actionable error messages for the
// datarouter CLI.
//
// Every CLI failure maps to a registered code that carries a short
// message, a longer explanation and a category:
//   - routes: route files and route trees (E100-E119)
//   - config: the project config file (E120-E149)
//   - match: URL matching (E200-E219)
//   - serve: the data server (E300-E319)
//
// Errors raised while parsing a file can point at the offending line,
// and Format prints the surrounding lines:
//
//	err := errors.New("E102").
//	    WithLocation("routes.yaml", 7, 0).
//	    WithSuggestion("Indent children under their parent route")
//
//	fmt.Println(err.Format())
//	// ERROR E102: Route file could not be parsed
//	//
//	//   routes.yaml:7
//	//
//	//      5 │   - id: users
//	//      6 │     path: users
//	//   →  7 │   children:
//	//      8 │     - id: user
//	//
//	//   Hint: Indent children under their parent route
package errors
