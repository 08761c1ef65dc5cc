// Package routeconfig declares route trees in YAML or JSON files.
//
// Route files describe the tree together with fixture handlers, so a
// tree can be matched, served and exercised without writing Go:
//
//	basename: /app
//	routes:
//	  - id: root
//	    path: /
//	    errorBoundary: true
//	    loader:
//	      data: {user: ann}
//	    children:
//	      - id: post
//	        path: posts/:id
//	        loader:
//	          data: {title: "Post {id}"}
//	          deferred:
//	            comments: {data: [first], delay: 200ms}
//	      - id: login
//	        path: login
//	        action:
//	          redirect: /
//
// String values in fixture data expand {param} placeholders from the
// matched path params and, in actions, {form.field} placeholders from
// the submitted form.
package routeconfig

import (
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/vango-dev/datarouter/pkg/router"
)

// ErrUnsupportedFormat is returned for route files that are neither YAML
// nor JSON.
var ErrUnsupportedFormat = errors.New("routeconfig: unsupported route file format")

// File is a parsed route file.
type File struct {
	// Basename is the URL prefix the routes are served below.
	Basename string `json:"basename,omitempty" yaml:"basename,omitempty"`

	Routes []Route `json:"routes" yaml:"routes"`
}

// Route declares one route and its children.
type Route struct {
	ID                 string         `json:"id,omitempty" yaml:"id,omitempty"`
	Path               string         `json:"path,omitempty" yaml:"path,omitempty"`
	Index              bool           `json:"index,omitempty" yaml:"index,omitempty"`
	CaseSensitive      bool           `json:"caseSensitive,omitempty" yaml:"caseSensitive,omitempty"`
	ErrorBoundary      bool           `json:"errorBoundary,omitempty" yaml:"errorBoundary,omitempty"`
	DeferredBoundaries []string       `json:"deferredBoundaries,omitempty" yaml:"deferredBoundaries,omitempty"`
	Loader             *Fixture       `json:"loader,omitempty" yaml:"loader,omitempty"`
	Action             *Fixture       `json:"action,omitempty" yaml:"action,omitempty"`
	Handle             map[string]any `json:"handle,omitempty" yaml:"handle,omitempty"`
	Children           []Route        `json:"children,omitempty" yaml:"children,omitempty"`

	// Revalidate set to false keeps the route's data when its match did
	// not change.
	Revalidate *bool `json:"revalidate,omitempty" yaml:"revalidate,omitempty"`
}

// Format is a route file encoding.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// FormatOf returns the format of a file name by extension.
func FormatOf(name string) (Format, error) {
	switch strings.ToLower(path.Ext(name)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".json":
		return FormatJSON, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, name)
}

// ParseError reports a route file that could not be decoded.
type ParseError struct {
	Name string
	Data []byte
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("routeconfig: parse %s: %v", e.Name, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Parse decodes a route file. name is used for the format and in errors.
func Parse(name string, data []byte) (*File, error) {
	format, err := FormatOf(name)
	if err != nil {
		return nil, err
	}
	var f File
	switch format {
	case FormatJSON:
		err = json.Unmarshal(data, &f)
	default:
		err = yaml.Unmarshal(data, &f)
	}
	if err != nil {
		return nil, &ParseError{Name: name, Data: data, Err: err}
	}
	if len(f.Routes) == 0 {
		return nil, &ParseError{Name: name, Data: data, Err: errors.New("no routes declared")}
	}
	return &f, nil
}

// Definitions converts the file to route definitions with fixture
// handlers.
func (f *File) Definitions() []router.RouteDefinition {
	return definitions(f.Routes)
}

func definitions(routes []Route) []router.RouteDefinition {
	if len(routes) == 0 {
		return nil
	}
	out := make([]router.RouteDefinition, len(routes))
	for i, r := range routes {
		def := router.RouteDefinition{
			ID:                 r.ID,
			Path:               r.Path,
			Index:              r.Index,
			CaseSensitive:      r.CaseSensitive,
			ErrorBoundary:      r.ErrorBoundary,
			DeferredBoundaries: r.DeferredBoundaries,
			Children:           definitions(r.Children),
		}
		if r.Handle != nil {
			def.Handle = r.Handle
		}
		if r.Loader != nil {
			def.Loader = r.Loader.Handler()
		}
		if r.Action != nil {
			def.Action = r.Action.Handler()
		}
		if r.Revalidate != nil {
			revalidate := *r.Revalidate
			def.ShouldRevalidate = func(router.ShouldRevalidateArgs) bool { return revalidate }
		}
		out[i] = def
	}
	return out
}

// Manifest normalizes the file's routes.
func (f *File) Manifest() (*router.Manifest, error) {
	return router.Normalize(f.Definitions())
}

// Duration is a time.Duration written as a string ("250ms") or as a
// number of milliseconds.
type Duration time.Duration

func parseDuration(s string) (Duration, error) {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("routeconfig: invalid duration %q", s)
	}
	return Duration(d), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(n *yaml.Node) error {
	var ms int64
	if n.Decode(&ms) == nil {
		*d = Duration(time.Duration(ms) * time.Millisecond)
		return nil
	}
	var s string
	if err := n.Decode(&s); err != nil {
		return err
	}
	v, err := parseDuration(s)
	if err != nil {
		return err
	}
	*d = v
	return nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(b []byte) error {
	var ms int64
	if json.Unmarshal(b, &ms) == nil {
		*d = Duration(time.Duration(ms) * time.Millisecond)
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("routeconfig: invalid duration %s", b)
	}
	v, err := parseDuration(s)
	if err != nil {
		return err
	}
	*d = v
	return nil
}

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}
