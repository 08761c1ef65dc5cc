package router

import (
	"context"
	"errors"
	"testing"
)

func recordingMiddleware(name string, log *[]string) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, args Args) (any, error) {
			*log = append(*log, name+":before")
			v, err := next(ctx, args)
			*log = append(*log, name+":after")
			return v, err
		}
	}
}

func TestComposeOrder(t *testing.T) {
	var log []string
	handler := func(ctx context.Context, args Args) (any, error) {
		log = append(log, "handler")
		return "ok", nil
	}

	h := Compose(handler, recordingMiddleware("a", &log), recordingMiddleware("b", &log))
	v, err := h(context.Background(), Args{})
	if err != nil {
		t.Fatalf("handler error = %v", err)
	}
	if v != "ok" {
		t.Errorf("value = %v, want ok", v)
	}

	want := []string{"a:before", "b:before", "handler", "b:after", "a:after"}
	if len(log) != len(want) {
		t.Fatalf("log = %v, want %v", log, want)
	}
	for i := range want {
		if log[i] != want[i] {
			t.Errorf("log[%d] = %q, want %q", i, log[i], want[i])
		}
	}
}

func TestComposeEmpty(t *testing.T) {
	called := false
	h := Compose(func(ctx context.Context, args Args) (any, error) {
		called = true
		return nil, nil
	})
	if _, err := h(context.Background(), Args{}); err != nil {
		t.Errorf("Compose() error = %v", err)
	}
	if !called {
		t.Error("handler was not called")
	}
}

func TestMiddlewareShortCircuit(t *testing.T) {
	sentinel := errors.New("denied")
	deny := func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, args Args) (any, error) {
			return nil, sentinel
		}
	}

	called := false
	h := Chain(deny)(func(ctx context.Context, args Args) (any, error) {
		called = true
		return nil, nil
	})
	if _, err := h(context.Background(), Args{}); !errors.Is(err, sentinel) {
		t.Errorf("error = %v, want %v", err, sentinel)
	}
	if called {
		t.Error("handler should not run")
	}
}

func TestKindFilters(t *testing.T) {
	tests := []struct {
		name    string
		mw      func(Middleware) Middleware
		kind    HandlerKind
		wantRun bool
	}{
		{"loaders only on loader", LoadersOnly, KindLoader, true},
		{"loaders only on action", LoadersOnly, KindAction, false},
		{"actions only on action", ActionsOnly, KindAction, true},
		{"actions only on loader", ActionsOnly, KindLoader, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var log []string
			h := tt.mw(recordingMiddleware("mw", &log))(func(ctx context.Context, args Args) (any, error) {
				return nil, nil
			})
			if _, err := h(context.Background(), Args{Kind: tt.kind}); err != nil {
				t.Fatalf("error = %v", err)
			}
			if ran := len(log) > 0; ran != tt.wantRun {
				t.Errorf("middleware ran = %v, want %v", ran, tt.wantRun)
			}
		})
	}
}

func TestSkip(t *testing.T) {
	var log []string
	mw := Skip(func(args Args) bool { return args.RouteID == "public" }, recordingMiddleware("auth", &log))
	h := mw(func(ctx context.Context, args Args) (any, error) { return nil, nil })

	_, _ = h(context.Background(), Args{RouteID: "public"})
	if len(log) != 0 {
		t.Errorf("middleware ran for skipped route: %v", log)
	}

	_, _ = h(context.Background(), Args{RouteID: "private"})
	if len(log) != 2 {
		t.Errorf("middleware log = %v, want before and after", log)
	}
}

func TestHandlerKindString(t *testing.T) {
	if KindLoader.String() != "loader" || KindAction.String() != "action" {
		t.Errorf("got %q and %q", KindLoader, KindAction)
	}
}
