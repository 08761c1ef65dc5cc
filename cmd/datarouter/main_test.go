package main

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vango-dev/datarouter/internal/errors"
	"github.com/vango-dev/datarouter/pkg/hydration"
	"github.com/vango-dev/datarouter/pkg/router"
)

const testRoutes = `basename: /app
routes:
  - id: root
    path: /
    errorBoundary: true
    loader:
      data: {user: ann}
    children:
      - id: home
        index: true
        loader: {data: home}
      - id: post
        path: posts/:id
        loader:
          data: {title: "Post {id}"}
      - id: new-post
        path: posts/new
        loader: {data: draft}
      - id: login
        path: login
        action:
          redirect: /posts/{form.next}
`

const testConfig = `name: shop
routes: routes.yaml
metrics:
  enabled: true
log:
  level: debug
  format: json
`

func writeProject(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
	return dir
}

func testProject(t *testing.T) string {
	return writeProject(t, map[string]string{
		"datarouter.yaml": testConfig,
		"routes.yaml":     testRoutes,
	})
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func errorCode(t *testing.T, err error) string {
	t.Helper()
	var e *errors.Error
	require.True(t, stderrors.As(err, &e), "want a coded error, got %v", err)
	return e.Code
}

func TestRoutesCommand(t *testing.T) {
	dir := testProject(t)

	out, err := execute(t, "--config", dir, "routes", "--json")
	require.NoError(t, err)

	var branches []router.BranchInfo
	require.NoError(t, json.Unmarshal([]byte(out), &branches))
	index := map[string]int{}
	for i, b := range branches {
		index[b.RouteIDs[len(b.RouteIDs)-1]] = i
	}
	require.Contains(t, index, "post")
	require.Contains(t, index, "new-post")
	assert.Less(t, index["new-post"], index["post"], "static segments rank first")

	out, err = execute(t, "--config", dir, "routes")
	require.NoError(t, err)
	assert.Contains(t, out, "SCORE")
	assert.Contains(t, out, "root > post")
	assert.Contains(t, out, "basename /app")
}

func TestMatchCommand(t *testing.T) {
	dir := testProject(t)

	out, err := execute(t, "--config", dir, "match", "/app/posts/7", "--json")
	require.NoError(t, err)

	var matches []matchInfo
	require.NoError(t, json.Unmarshal([]byte(out), &matches))
	require.Len(t, matches, 2)
	assert.Equal(t, "root", matches[0].RouteID)
	assert.Equal(t, "post", matches[1].RouteID)
	assert.Equal(t, map[string]string{"id": "7"}, matches[1].Params)

	out, err = execute(t, "--config", dir, "match", "/app/posts/7")
	require.NoError(t, err)
	assert.Contains(t, out, "id=7")
}

func TestMatchCommandErrors(t *testing.T) {
	dir := testProject(t)

	_, err := execute(t, "--config", dir, "match", "/posts/7")
	assert.Equal(t, "E201", errorCode(t, err), "outside the basename")

	_, err = execute(t, "--config", dir, "match", "posts")
	assert.Equal(t, "E202", errorCode(t, err))

	_, err = execute(t, "--config", dir, "--basename", "/", "match", "/posts/7")
	assert.NoError(t, err, "--basename overrides the route file")
}

func TestMatchLoad(t *testing.T) {
	dir := testProject(t)

	out, err := execute(t, "--config", dir, "match", "/app/posts/7", "--load")
	require.NoError(t, err)
	assert.Contains(t, out, "200 OK")
	assert.Contains(t, out, `"title":"Post 7"`)

	out, err = execute(t, "--config", dir, "match", "/app/nope", "--load")
	require.NoError(t, err)
	assert.Contains(t, out, "404 Not Found")
	assert.Contains(t, out, "error boundary: root")

	out, err = execute(t, "--config", dir, "match", "/app/login", "--form", "next=9")
	require.NoError(t, err)
	assert.Contains(t, out, "302 redirect to")
	assert.Contains(t, out, "/posts/9")

	_, err = execute(t, "--config", dir, "match", "/app/login", "--form", "broken")
	assert.Error(t, err)
}

func TestRouteFileErrors(t *testing.T) {
	tests := []struct {
		name     string
		files    map[string]string
		routes   string
		wantCode string
	}{
		{name: "missing", routes: "missing.yaml", wantCode: "E101"},
		{name: "unsupported format", files: map[string]string{"routes.txt": "routes: []"}, routes: "routes.txt", wantCode: "E104"},
		{name: "parse error", files: map[string]string{"bad.yaml": "routes: 5\n"}, routes: "bad.yaml", wantCode: "E102"},
		{name: "two roots", files: map[string]string{"two.yaml": "routes:\n  - {id: a, path: /}\n  - {id: b, path: /}\n"}, routes: "two.yaml", wantCode: "E103"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			files := map[string]string{"datarouter.yaml": "name: test\n"}
			for k, v := range tt.files {
				files[k] = v
			}
			dir := writeProject(t, files)

			_, err := execute(t, "--config", dir, "--routes", filepath.Join(dir, tt.routes), "routes")
			assert.Equal(t, tt.wantCode, errorCode(t, err))
		})
	}
}

func TestParseErrorLocation(t *testing.T) {
	dir := writeProject(t, map[string]string{
		"datarouter.yaml": "name: test\n",
		"routes.yaml":     "basename: /\nroutes: 5\n",
	})

	_, err := execute(t, "--config", dir, "routes")
	var e *errors.Error
	require.True(t, stderrors.As(err, &e))
	require.NotNil(t, e.Location)
	assert.Equal(t, 2, e.Location.Line)
	assert.Equal(t, filepath.Join(dir, "routes.yaml"), e.Location.File)
}

func TestConfigErrors(t *testing.T) {
	dir := writeProject(t, map[string]string{"datarouter.yaml": "server:\n  port: 70000\n"})
	_, err := execute(t, "--config", dir, "routes")
	assert.Equal(t, "E122", errorCode(t, err))

	_, err = execute(t, "--config", filepath.Join(t.TempDir(), "none.yaml"), "routes")
	assert.Equal(t, "E141", errorCode(t, err))
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version", "--short")
	require.NoError(t, err)
	assert.Equal(t, "dev\n", out)

	out, err = execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "datarouter dev")
	assert.Regexp(t, `commit\s+none`, out)
	assert.Regexp(t, `platform\s+\w+/\w+`, out)

	out, err = execute(t, "version", "--json")
	require.NoError(t, err)
	var b buildInfo
	require.NoError(t, json.Unmarshal([]byte(out), &b))
	assert.Equal(t, "dev", b.Version)
	assert.Equal(t, "none", b.Commit)
	assert.NotEmpty(t, b.Go)
}

func loadTestProject(t *testing.T, dir string) *project {
	t.Helper()
	p, err := loadProject(context.Background(), &projectFlags{config: dir})
	require.NoError(t, err)
	return p
}

func TestServeHandler(t *testing.T) {
	p := loadTestProject(t, testProject(t))
	handler, srv, err := newHandler(p, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(srv.Close)

	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)

	resp, err := http.Get(ts.URL + "/_data/app/posts/7")
	require.NoError(t, err)
	st, err := hydration.JSON.Decode(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, map[string]any{"title": "Post 7"}, st.LoaderData["post"])

	resp, err = http.Get(ts.URL + "/_health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Contains(t, string(body), `datarouter_handler_calls_total{kind="loader",outcome="data",route="post"} 1`)
	assert.Contains(t, string(body), "go_goroutines")
}

func TestServeHandlerWithoutMetrics(t *testing.T) {
	dir := writeProject(t, map[string]string{
		"datarouter.yaml": "routes: routes.yaml\nhydration:\n  format: msgpack\n  secret: s3cret\n",
		"routes.yaml":     testRoutes,
	})
	p := loadTestProject(t, dir)
	handler, srv, err := newHandler(p, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(srv.Close)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/_hydrate/app/posts/7", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	st, err := hydration.NewSigner(hydration.Msgpack, []byte("s3cret")).DecodeString(rec.Body.String())
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"user": "ann"}, st.LoaderData["root"])
}

func TestServeShutsDown(t *testing.T) {
	p := loadTestProject(t, testProject(t))
	p.config.Server.Host = "127.0.0.1"
	p.config.Server.Port = 0

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var out bytes.Buffer
	err := serve(ctx, &out, p, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	assert.Contains(t, out.String(), "Serving")
}

func TestServePortInUse(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	p := loadTestProject(t, testProject(t))
	p.config.Server.Host = "127.0.0.1"
	p.config.Server.Port = ln.Addr().(*net.TCPAddr).Port

	err = serve(context.Background(), io.Discard, p, slog.New(slog.NewTextHandler(io.Discard, nil)))
	assert.Equal(t, "E301", errorCode(t, err))
}

func TestNewLogger(t *testing.T) {
	p := loadTestProject(t, testProject(t))

	var buf bytes.Buffer
	logger, err := newLogger(p.config, &buf)
	require.NoError(t, err)
	logger.Debug("hello", "port", 8080)

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "hello", line["msg"])
	assert.Equal(t, "DEBUG", line["level"])
}
