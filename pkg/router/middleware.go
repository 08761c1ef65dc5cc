package router

import "context"

// Middleware wraps a loader or action.
type Middleware func(next HandlerFunc) HandlerFunc

// Compose applies mw around handler. Middleware runs in order, first to
// last, with the handler at the end.
func Compose(handler HandlerFunc, mw ...Middleware) HandlerFunc {
	if len(mw) == 0 {
		return handler
	}

	// Build chain from end to start
	chain := handler
	for i := len(mw) - 1; i >= 0; i-- {
		chain = mw[i](chain)
	}
	return chain
}

// Chain creates a middleware that combines multiple middleware in order.
func Chain(middleware ...Middleware) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return Compose(next, middleware...)
	}
}

// Skip bypasses mw when condition holds.
func Skip(condition func(args Args) bool, mw Middleware) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		wrapped := mw(next)
		return func(ctx context.Context, args Args) (any, error) {
			if condition(args) {
				return next(ctx, args)
			}
			return wrapped(ctx, args)
		}
	}
}

// Only runs mw only when condition holds.
func Only(condition func(args Args) bool, mw Middleware) Middleware {
	return Skip(func(args Args) bool { return !condition(args) }, mw)
}

// LoadersOnly runs mw around loaders and skips actions.
func LoadersOnly(mw Middleware) Middleware {
	return Only(func(args Args) bool { return args.Kind == KindLoader }, mw)
}

// ActionsOnly runs mw around actions and skips loaders.
func ActionsOnly(mw Middleware) Middleware {
	return Only(func(args Args) bool { return args.Kind == KindAction }, mw)
}
