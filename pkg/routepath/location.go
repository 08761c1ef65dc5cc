package routepath

import (
	"strings"

	"github.com/google/uuid"
)

// DefaultKey is the key of the location a router starts on.
const DefaultKey = "default"

// Path is a URL path split into its parts. Search includes the leading "?"
// and Hash the leading "#" when non-empty.
type Path struct {
	Pathname string
	Search   string
	Hash     string
}

// Location is a Path plus the history entry state and a unique key.
type Location struct {
	Pathname string `json:"pathname"`
	Search   string `json:"search"`
	Hash     string `json:"hash"`
	State    any    `json:"state,omitempty"`
	Key      string `json:"key"`
}

// Path returns the location without state and key.
func (l Location) Path() Path {
	return Path{Pathname: l.Pathname, Search: l.Search, Hash: l.Hash}
}

// Href returns the location as a path string.
func (l Location) Href() string {
	return CreatePath(l.Path())
}

// ParsePath splits a path string into pathname, search and hash. A string
// that starts with "?" or "#" yields an empty Pathname.
func ParsePath(s string) Path {
	var p Path
	if s == "" {
		return p
	}
	if i := strings.IndexByte(s, '#'); i >= 0 {
		p.Hash = s[i:]
		s = s[:i]
	}
	if i := strings.IndexByte(s, '?'); i >= 0 {
		p.Search = s[i:]
		s = s[:i]
	}
	p.Pathname = s
	return p
}

// CreatePath is the inverse of ParsePath.
func CreatePath(p Path) string {
	pathname := p.Pathname
	if pathname == "" {
		pathname = "/"
	}
	return pathname + NormalizeSearch(p.Search) + NormalizeHash(p.Hash)
}

// NewKey returns a fresh location key.
func NewKey() string {
	return uuid.NewString()
}

// CreateLocation builds a location for a history entry. An empty key gets
// a generated one.
func CreateLocation(to Path, state any, key string) Location {
	if key == "" {
		key = NewKey()
	}
	pathname := to.Pathname
	if pathname == "" {
		pathname = "/"
	}
	return Location{
		Pathname: pathname,
		Search:   NormalizeSearch(to.Search),
		Hash:     NormalizeHash(to.Hash),
		State:    state,
		Key:      key,
	}
}

// NormalizeSearch makes sure a non-empty search starts with "?".
func NormalizeSearch(search string) string {
	if search == "" || search == "?" {
		return ""
	}
	if strings.HasPrefix(search, "?") {
		return search
	}
	return "?" + search
}

// NormalizeHash makes sure a non-empty hash starts with "#".
func NormalizeHash(hash string) string {
	if hash == "" || hash == "#" {
		return ""
	}
	if strings.HasPrefix(hash, "#") {
		return hash
	}
	return "#" + hash
}
