package router

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatchPath(t *testing.T) {
	tests := []struct {
		pattern  string
		pathname string
		ok       bool
		params   Params
		base     string
	}{
		{"/users/:id", "/users/7", true, Params{"id": "7"}, "/users/7"},
		{"/users/:id", "/users/7/", true, Params{"id": "7"}, "/users/7"},
		{"/users/:id", "/users", false, nil, ""},
		{"/users/:id", "/users//", false, nil, ""},
		{"/files/*", "/files/a/b", true, Params{"*": "a/b"}, "/files"},
		{"/files/*", "/files", true, Params{"*": ""}, "/files"},
		{"*", "/anything/at/all", true, Params{"*": "anything/at/all"}, "/"},
		{"/", "/", true, Params{}, "/"},
		{"/docs/:lang?", "/docs", true, Params{}, "/docs"},
		{"/docs/:lang?", "/docs/fr", true, Params{"lang": "fr"}, "/docs/fr"},
		{"/a/:b/c", "/a/x%2Fy/c", true, Params{"b": "x/y"}, "/a/x%2Fy/c"},
	}

	for _, tt := range tests {
		t.Run(tt.pattern+" "+tt.pathname, func(t *testing.T) {
			pm, ok := MatchPath(tt.pattern, tt.pathname, false)
			require.Equal(t, tt.ok, ok)
			if !ok {
				return
			}
			assert.Equal(t, tt.params, pm.Params)
			assert.Equal(t, tt.base, pm.PathnameBase)
			assert.Equal(t, tt.pattern, pm.Pattern)
		})
	}
}

func TestGeneratePath(t *testing.T) {
	tests := []struct {
		pattern string
		params  Params
		want    string
	}{
		{"/users/:id", Params{"id": "7"}, "/users/7"},
		{"/files/*", Params{"*": "a/b.txt"}, "/files/a/b.txt"},
		{"/files/*", Params{}, "/files"},
		{"/docs/:lang?", Params{}, "/docs"},
		{"/docs/:lang?/intro", Params{"lang": "en"}, "/docs/en/intro"},
		{"users/:id", Params{"id": "1"}, "users/1"},
		{"/", nil, "/"},
	}

	for _, tt := range tests {
		got, err := GeneratePath(tt.pattern, tt.params)
		require.NoError(t, err, tt.pattern)
		assert.Equal(t, tt.want, got, tt.pattern)
	}
}

func TestGeneratePathMissingParam(t *testing.T) {
	_, err := GeneratePath("/users/:id", Params{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), ":id")
}
