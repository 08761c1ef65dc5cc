package datarouter

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vango-dev/datarouter/pkg/deferred"
	"github.com/vango-dev/datarouter/pkg/router"
)

func deferredRoutes(comments *deferred.Value, boundaries ...string) []router.RouteDefinition {
	return []router.RouteDefinition{{
		ID: "root", Path: "/", ErrorBoundary: true,
		Children: []router.RouteDefinition{
			{
				ID: "post", Path: "post", DeferredBoundaries: boundaries,
				Loader: func(ctx context.Context, args router.Args) (any, error) {
					return deferred.Defer(map[string]any{"title": "hello", "comments": comments}), nil
				},
			},
			{ID: "home", Path: "home"},
		},
	}}
}

func TestDeferredEagerDataPublished(t *testing.T) {
	comments := deferred.NewValue()
	r := initialized(t, Options{Routes: deferredRoutes(comments)})
	require.NoError(t, r.Navigate(context.Background(), "/post"))

	d, ok := r.State().LoaderData["post"].(*deferred.Data)
	require.True(t, ok)
	assert.Equal(t, "hello", d.Get("title"))
	v, ok := d.Value("comments")
	require.True(t, ok)
	assert.Equal(t, deferred.Pending, v.State())
	assert.Equal(t, IdleNavigation, r.State().Navigation, "navigation completes before deferred keys settle")
}

func TestDeferredResolvePublishesSnapshot(t *testing.T) {
	comments := deferred.NewValue()
	r := initialized(t, Options{Routes: deferredRoutes(comments)})
	require.NoError(t, r.Navigate(context.Background(), "/post"))
	seen := watch(r)

	comments.Resolve([]string{"first"})

	assert.Eventually(t, func() bool { return seen.len() == 1 }, time.Second, 5*time.Millisecond)
	d := r.State().LoaderData["post"].(*deferred.Data)
	assert.Equal(t, []string{"first"}, d.Unwrap()["comments"])
	assert.Empty(t, r.State().Errors)
}

func TestDeferredRejectionBecomesRouteError(t *testing.T) {
	comments := deferred.NewValue()
	r := initialized(t, Options{Routes: deferredRoutes(comments)})
	require.NoError(t, r.Navigate(context.Background(), "/post"))
	seen := watch(r)

	boom := errors.New("comments unavailable")
	comments.Reject(boom)

	assert.Eventually(t, func() bool { return seen.len() == 1 }, time.Second, 5*time.Millisecond)
	st := r.State()
	assert.Equal(t, boom, st.Errors["post"])
	assert.NotContains(t, st.LoaderData, "post")
	require.NotNil(t, st.Boundary)
	assert.Equal(t, "root", st.Boundary.RouteID)
}

func TestDeferredBoundaryKeepsRejection(t *testing.T) {
	comments := deferred.NewValue()
	r := initialized(t, Options{Routes: deferredRoutes(comments, "comments")})
	require.NoError(t, r.Navigate(context.Background(), "/post"))
	seen := watch(r)

	boom := errors.New("comments unavailable")
	comments.Reject(boom)

	assert.Eventually(t, func() bool { return seen.len() == 1 }, time.Second, 5*time.Millisecond)
	st := r.State()
	assert.Empty(t, st.Errors)
	d := st.LoaderData["post"].(*deferred.Data)
	assert.Equal(t, boom, d.Unwrap()["comments"])
}

func TestDeferredCancelledWhenRouteLeaves(t *testing.T) {
	comments := deferred.NewValue()
	r := initialized(t, Options{Routes: deferredRoutes(comments)})
	require.NoError(t, r.Navigate(context.Background(), "/post"))

	require.NoError(t, r.Navigate(context.Background(), "/home"))
	assert.Equal(t, deferred.Rejected, comments.State())
	_, err := comments.Result()
	assert.ErrorIs(t, err, deferred.ErrCanceled)
	assert.Empty(t, r.State().Errors, "cancelled keys of replaced data are not errors")
}

func TestDeferredCancelledOnDispose(t *testing.T) {
	comments := deferred.NewValue()
	r := initialized(t, Options{Routes: deferredRoutes(comments)})
	require.NoError(t, r.Navigate(context.Background(), "/post"))

	r.Dispose()
	assert.Equal(t, deferred.Rejected, comments.State())
}
