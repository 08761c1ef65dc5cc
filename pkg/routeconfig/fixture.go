package routeconfig

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/vango-dev/datarouter/pkg/deferred"
	"github.com/vango-dev/datarouter/pkg/router"
)

// Fixture is a declarative loader or action.
//
// Exactly one outcome applies, checked in this order: Redirect, Error,
// then data. Delay is waited out first in every case.
type Fixture struct {
	// Data is returned as the handler's value.
	Data any `json:"data,omitempty" yaml:"data,omitempty"`

	// Status and Headers wrap Data in a response. With Error, a Status of
	// 400 or above makes the error an HTTP error response.
	Status  int               `json:"status,omitempty" yaml:"status,omitempty"`
	Headers map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`

	// Error fails the handler with this message.
	Error string `json:"error,omitempty" yaml:"error,omitempty"`

	// Redirect redirects to this location. Status defaults to 302.
	Redirect string `json:"redirect,omitempty" yaml:"redirect,omitempty"`

	Delay Duration `json:"delay,omitempty" yaml:"delay,omitempty"`

	// Deferred adds keys that settle later. Data must then be a map or
	// empty.
	Deferred map[string]DeferredFixture `json:"deferred,omitempty" yaml:"deferred,omitempty"`
}

// DeferredFixture is one deferred key of a Fixture.
type DeferredFixture struct {
	Data  any      `json:"data,omitempty" yaml:"data,omitempty"`
	Error string   `json:"error,omitempty" yaml:"error,omitempty"`
	Delay Duration `json:"delay,omitempty" yaml:"delay,omitempty"`
}

// Handler returns the fixture as a router handler.
func (f *Fixture) Handler() router.HandlerFunc {
	return func(ctx context.Context, args router.Args) (any, error) {
		if err := sleep(ctx, time.Duration(f.Delay)); err != nil {
			return nil, err
		}
		vars := variables(args)

		if f.Redirect != "" {
			status := http.StatusFound
			if f.Status != 0 {
				status = f.Status
			}
			return router.Redirect(expandString(f.Redirect, vars), status), nil
		}
		if f.Error != "" {
			msg := expandString(f.Error, vars)
			if f.Status >= 400 {
				return nil, router.NewErrorResponse(f.Status, msg)
			}
			return nil, errors.New(msg)
		}

		data := expand(f.Data, vars)
		if len(f.Deferred) > 0 {
			data = f.deferData(ctx, data, vars)
		}
		if f.Status != 0 || len(f.Headers) > 0 {
			status := f.Status
			if status == 0 {
				status = http.StatusOK
			}
			h := http.Header{}
			for k, v := range f.Headers {
				h.Set(k, v)
			}
			return router.Data(data, status, h), nil
		}
		return data, nil
	}
}

func (f *Fixture) deferData(ctx context.Context, data any, vars map[string]string) *deferred.Data {
	fields := map[string]any{}
	if m, ok := data.(map[string]any); ok {
		for k, v := range m {
			fields[k] = v
		}
	}
	for key, df := range f.Deferred {
		df := df
		fields[key] = deferred.Go(ctx, func(ctx context.Context) (any, error) {
			if err := sleep(ctx, time.Duration(df.Delay)); err != nil {
				return nil, err
			}
			if df.Error != "" {
				return nil, errors.New(expandString(df.Error, vars))
			}
			return expand(df.Data, vars), nil
		})
	}
	return deferred.Defer(fields)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// variables collects placeholder values: path params by name and, for
// actions, form fields as "form.<name>".
func variables(args router.Args) map[string]string {
	vars := make(map[string]string, len(args.Params))
	for k, v := range args.Params {
		vars[k] = v
	}
	if args.Kind == router.KindAction && args.Request != nil {
		if err := args.Request.ParseForm(); err == nil {
			for k := range args.Request.PostForm {
				vars["form."+k] = args.Request.PostForm.Get(k)
			}
		}
	}
	return vars
}

func expand(v any, vars map[string]string) any {
	switch t := v.(type) {
	case string:
		return expandString(t, vars)
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = expand(e, vars)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = expand(e, vars)
		}
		return out
	}
	return v
}

func expandString(s string, vars map[string]string) string {
	if len(vars) == 0 || !strings.Contains(s, "{") {
		return s
	}
	pairs := make([]string, 0, len(vars)*2)
	for k, v := range vars {
		pairs = append(pairs, "{"+k+"}", v)
	}
	return strings.NewReplacer(pairs...).Replace(s)
}
