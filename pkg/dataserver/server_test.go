package dataserver

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/vango-dev/datarouter/pkg/deferred"
	"github.com/vango-dev/datarouter/pkg/hydration"
	"github.com/vango-dev/datarouter/pkg/router"
)

var errBoom = errors.New("boom")

func constLoader(v any) router.HandlerFunc {
	return func(ctx context.Context, args router.Args) (any, error) { return v, nil }
}

func testRoutes() []router.RouteDefinition {
	return []router.RouteDefinition{{
		ID: "root", Path: "/", ErrorBoundary: true, Loader: constLoader("root"),
		Children: []router.RouteDefinition{
			{ID: "index", Index: true, Loader: constLoader("index")},
			{
				ID: "user", Path: "users/:id",
				Loader: func(ctx context.Context, args router.Args) (any, error) {
					return "user:" + args.Params["id"], nil
				},
				Action: func(ctx context.Context, args router.Args) (any, error) {
					if err := args.Request.ParseForm(); err != nil {
						return nil, err
					}
					return router.Data("saved:"+args.Request.PostForm.Get("name"), http.StatusCreated), nil
				},
			},
			{ID: "settings", Path: "settings", Loader: constLoader("settings")},
			{ID: "broken", Path: "broken", Loader: func(ctx context.Context, args router.Args) (any, error) {
				return nil, errBoom
			}},
			{ID: "teapot", Path: "teapot", Loader: func(ctx context.Context, args router.Args) (any, error) {
				return router.Data("short", http.StatusTeapot, http.Header{"X-Kind": {"tea"}}), nil
			}},
			{ID: "old", Path: "old", Loader: constLoader(router.Redirect("/users/1", http.StatusMovedPermanently))},
			{ID: "exit", Path: "exit", Loader: constLoader(router.RedirectDocument("https://example.test/bye"))},
			{ID: "stats", Path: "stats", Loader: func(ctx context.Context, args router.Args) (any, error) {
				return deferred.Defer(map[string]any{
					"total": 2,
					"later": deferred.Go(ctx, func(ctx context.Context) (any, error) { return "done", nil }),
				}), nil
			}},
			{ID: "ping", Path: "api/ping", Loader: constLoader(map[string]string{"pong": "ok"})},
		},
	}}
}

func newTestServer(t *testing.T, cfg *Config) *Server {
	t.Helper()
	s, err := New(testRoutes(), cfg)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func serve(s *Server, method, target string, body io.Reader, header ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, body)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func TestNewRejectsInvalidRoutes(t *testing.T) {
	_, err := New([]router.RouteDefinition{{ID: "a", Path: "/"}, {ID: "b", Path: "/"}}, nil)
	assert.Error(t, err)
}

func TestDataLoads(t *testing.T) {
	s := newTestServer(t, nil)
	rec := serve(s, http.MethodGet, "/_data/users/7", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	st, err := hydration.JSON.Decode(rec.Body)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"root": "root", "user": "user:7"}, st.LoaderData)
}

func TestDataMsgpack(t *testing.T) {
	s := newTestServer(t, nil)
	rec := serve(s, http.MethodGet, "/_data/", nil, "Accept", "application/msgpack")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/msgpack", rec.Header().Get("Content-Type"))
	st, err := hydration.Msgpack.Decode(rec.Body)
	require.NoError(t, err)
	assert.Equal(t, "index", st.LoaderData["index"])
}

func TestDataWaitsForDeferred(t *testing.T) {
	s := newTestServer(t, nil)
	rec := serve(s, http.MethodGet, "/_data/stats", nil)

	st, err := hydration.JSON.Decode(rec.Body)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"total": float64(2), "later": "done"}, st.LoaderData["stats"])
}

func TestDataSubmission(t *testing.T) {
	s := newTestServer(t, nil)
	rec := serve(s, http.MethodPost, "/_data/users/7",
		strings.NewReader(url.Values{"name": {"ann"}}.Encode()),
		"Content-Type", router.EncTypeForm)

	require.Equal(t, http.StatusCreated, rec.Code)
	st, err := hydration.JSON.Decode(rec.Body)
	require.NoError(t, err)
	assert.Equal(t, "saved:ann", st.ActionData["user"])
	assert.Equal(t, "user:7", st.LoaderData["user"])
}

func TestDataRedirect(t *testing.T) {
	s := newTestServer(t, nil)
	rec := serve(s, http.MethodGet, "/_data/old", nil)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "/users/1", rec.Header().Get(HeaderRedirect))
	assert.Equal(t, "301", rec.Header().Get(HeaderRedirectStatus))
	assert.Empty(t, rec.Header().Get("Location"))

	rec = serve(s, http.MethodGet, "/_data/exit", nil)
	assert.Equal(t, "true", rec.Header().Get(HeaderReloadDocument))
}

func TestDataErrors(t *testing.T) {
	s := newTestServer(t, nil)

	rec := serve(s, http.MethodGet, "/_data/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "root", rec.Header().Get("X-Datarouter-Boundary"))
	st, err := hydration.JSON.Decode(rec.Body)
	require.NoError(t, err)
	er, ok := router.IsErrorResponse(st.Errors["root"])
	require.True(t, ok)
	assert.Equal(t, http.StatusNotFound, er.Status)

	rec = serve(s, http.MethodGet, "/_data/broken", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	st, err = hydration.JSON.Decode(rec.Body)
	require.NoError(t, err)
	assert.EqualError(t, st.Errors["broken"], "boom")
}

func TestDataHeaders(t *testing.T) {
	s := newTestServer(t, nil)
	rec := serve(s, http.MethodGet, "/_data/teapot", nil)

	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Equal(t, "tea", rec.Header().Get("X-Kind"))
}

func TestDataBasename(t *testing.T) {
	s := newTestServer(t, &Config{Basename: "/app"})
	rec := serve(s, http.MethodGet, "/_data/app/users/2", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = serve(s, http.MethodGet, "/_data/users/2", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRouteEndpoints(t *testing.T) {
	s := newTestServer(t, nil)

	tests := []struct {
		name     string
		target   string
		wantCode int
		want     any
	}{
		{name: "explicit route", target: "/_route/root/users/7", wantCode: http.StatusOK, want: "root"},
		{name: "deepest match", target: "/_resource/api/ping", wantCode: http.StatusOK, want: map[string]any{"pong": "ok"}},
		{name: "route not matched", target: "/_route/settings/users/7", wantCode: http.StatusForbidden},
		{name: "not found", target: "/_resource/nope", wantCode: http.StatusNotFound},
		{name: "handler error", target: "/_resource/broken", wantCode: http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(s, http.MethodGet, tt.target, nil)
			require.Equal(t, tt.wantCode, rec.Code)
			if tt.want == nil {
				var got hydration.ErrorRecord
				require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
				assert.NotEmpty(t, got.Type)
				return
			}
			var got any
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRouteEndpointMsgpack(t *testing.T) {
	s := newTestServer(t, nil)
	rec := serve(s, http.MethodGet, "/_resource/api/ping", nil, "Accept", "application/msgpack")
	require.Equal(t, http.StatusOK, rec.Code)

	var got map[string]string
	require.NoError(t, msgpack.NewDecoder(rec.Body).Decode(&got))
	assert.Equal(t, map[string]string{"pong": "ok"}, got)
}

func TestRouteEndpointRedirect(t *testing.T) {
	s := newTestServer(t, nil)
	rec := serve(s, http.MethodGet, "/_resource/old", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "/users/1", rec.Header().Get(HeaderRedirect))
}

func TestHydrateEndpoint(t *testing.T) {
	s := newTestServer(t, nil)
	rec := serve(s, http.MethodGet, "/_hydrate/users/3", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code, "disabled without a signer")

	signer := hydration.NewSigner(hydration.JSON, []byte("secret"))
	s = newTestServer(t, &Config{Signer: signer})
	rec = serve(s, http.MethodGet, "/_hydrate/users/3", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	st, err := signer.DecodeString(rec.Body.String())
	require.NoError(t, err)
	assert.Equal(t, "user:3", st.LoaderData["user"])
}

func TestRoutesAndHealth(t *testing.T) {
	s := newTestServer(t, nil)

	rec := serve(s, http.MethodGet, "/_routes", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var branches []router.BranchInfo
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&branches))
	assert.NotEmpty(t, branches)

	rec = serve(s, http.MethodGet, "/_health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMountedInChi(t *testing.T) {
	s := newTestServer(t, nil)
	r := chi.NewRouter()
	r.Get("/api/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	})
	r.Mount("/dr", s)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/dr/_data/users/4", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	st, err := hydration.JSON.Decode(rec.Body)
	require.NoError(t, err)
	assert.Equal(t, "user:4", st.LoaderData["user"])
}

func TestOriginChecks(t *testing.T) {
	tests := []struct {
		name   string
		origin string
		same   bool
		listed bool
	}{
		{name: "no origin", origin: "", same: true, listed: true},
		{name: "same host", origin: "http://example.com", same: true, listed: true},
		{name: "other host", origin: "http://evil.test", same: false, listed: false},
		{name: "allowed", origin: "https://app.example", same: false, listed: true},
	}
	allow := AllowOrigins("https://app.example")
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/_live", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			assert.Equal(t, tt.same, SameOriginCheck(req))
			assert.Equal(t, tt.listed, allow(req))
		})
	}
}
