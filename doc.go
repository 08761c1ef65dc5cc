// Package datarouter is a data router: it matches locations against a
// nested route tree, runs the loaders and actions of the matched routes
// and publishes render-ready State snapshots.
//
// Usage:
//
//	r, err := datarouter.New(datarouter.Options{
//	    Routes: []router.RouteDefinition{{
//	        ID: "root", Path: "/", Loader: loadSession, ErrorBoundary: true,
//	        Children: []router.RouteDefinition{
//	            {ID: "user", Path: "users/:id", Loader: loadUser, Action: saveUser},
//	        },
//	    }},
//	    History: datarouter.NewMemoryHistory("/"),
//	})
//	if err != nil {
//	    return err
//	}
//	defer r.Dispose()
//
//	unsubscribe := r.Subscribe(func(s datarouter.State) { render(s) })
//	defer unsubscribe()
//
//	if err := r.Initialize(ctx); err != nil {
//	    return err
//	}
//	err = r.Navigate(ctx, "/users/42")
//	err = r.Navigate(ctx, "/users/42", datarouter.WithFormData("POST", form))
//
// Navigations are cancelled by newer ones. Their handlers see
// ErrNavigationInterrupted as the context cause and their results are
// never applied.
package datarouter
