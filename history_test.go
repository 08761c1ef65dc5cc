package datarouter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vango-dev/datarouter/pkg/routepath"
)

func TestMemoryHistory(t *testing.T) {
	h := NewMemoryHistory("/a", "/b?x=1#top")
	assert.Equal(t, 2, h.Len())
	assert.Equal(t, 1, h.Index())

	loc := h.Location()
	assert.Equal(t, "/b", loc.Pathname)
	assert.Equal(t, "?x=1", loc.Search)
	assert.Equal(t, "#top", loc.Hash)

	first, ok := h.Peek(-1)
	require.True(t, ok)
	assert.Equal(t, routepath.DefaultKey, first.Key)
	assert.Equal(t, 1, h.Index(), "peek does not move")

	_, ok = h.Peek(1)
	assert.False(t, ok)
	_, ok = h.Go(5)
	assert.False(t, ok)
	assert.Equal(t, 1, h.Index())

	back, ok := h.Go(-1)
	require.True(t, ok)
	assert.Equal(t, "/a", back.Pathname)

	h.Push(routepath.CreateLocation(routepath.ParsePath("/c"), nil, ""))
	assert.Equal(t, 2, h.Len(), "push drops forward entries")
	assert.Equal(t, "/c", h.Location().Pathname)

	h.Replace(routepath.CreateLocation(routepath.ParsePath("/d"), nil, ""))
	assert.Equal(t, 2, h.Len())
	assert.Equal(t, "/d", h.Location().Pathname)
}

func TestMemoryHistoryDefault(t *testing.T) {
	h := NewMemoryHistory()
	assert.Equal(t, "/", h.Location().Pathname)
	assert.Equal(t, 1, h.Len())
}
