package datarouter

import (
	"sync"

	"github.com/vango-dev/datarouter/pkg/routepath"
)

// History is the stack of locations a Router navigates through.
type History interface {
	// Location returns the current entry.
	Location() routepath.Location

	// Push adds an entry after the current one, dropping forward entries.
	Push(loc routepath.Location)

	// Replace swaps the current entry.
	Replace(loc routepath.Location)

	// Peek returns the entry delta steps away without moving.
	Peek(delta int) (routepath.Location, bool)

	// Go moves delta steps and returns the new current entry. Moves out of
	// range leave the history unchanged and report false.
	Go(delta int) (routepath.Location, bool)
}

// MemoryHistory keeps entries in memory. It is safe for concurrent use.
type MemoryHistory struct {
	mu      sync.Mutex
	entries []routepath.Location
	index   int
}

// NewMemoryHistory creates a history from paths ("/a?b=1#c"). The last
// entry is current. With no paths it starts at "/". The first entry gets
// routepath.DefaultKey.
func NewMemoryHistory(paths ...string) *MemoryHistory {
	if len(paths) == 0 {
		paths = []string{"/"}
	}
	h := &MemoryHistory{index: len(paths) - 1}
	for i, p := range paths {
		key := ""
		if i == 0 {
			key = routepath.DefaultKey
		}
		h.entries = append(h.entries, routepath.CreateLocation(routepath.ParsePath(p), nil, key))
	}
	return h
}

func (h *MemoryHistory) Location() routepath.Location {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.entries[h.index]
}

func (h *MemoryHistory) Push(loc routepath.Location) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = append(h.entries[:h.index+1], loc)
	h.index++
}

func (h *MemoryHistory) Replace(loc routepath.Location) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries[h.index] = loc
}

func (h *MemoryHistory) Peek(delta int) (routepath.Location, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	i := h.index + delta
	if i < 0 || i >= len(h.entries) {
		return routepath.Location{}, false
	}
	return h.entries[i], true
}

func (h *MemoryHistory) Go(delta int) (routepath.Location, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	i := h.index + delta
	if i < 0 || i >= len(h.entries) {
		return routepath.Location{}, false
	}
	h.index = i
	return h.entries[i], true
}

// Len returns the number of entries.
func (h *MemoryHistory) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.entries)
}

// Index returns the position of the current entry.
func (h *MemoryHistory) Index() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.index
}
