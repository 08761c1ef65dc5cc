package router

import (
	"errors"
	"fmt"
	"strings"
)

// ConfigErrorKind categorizes route configuration errors.
type ConfigErrorKind string

const (
	// InvalidRouteConfig covers structural mistakes: index routes with
	// children, pathless leaves, misplaced splats, multiple roots.
	InvalidRouteConfig ConfigErrorKind = "INVALID_ROUTE_CONFIG"

	// DuplicateRouteID means two routes resolved to the same ID.
	DuplicateRouteID ConfigErrorKind = "DUPLICATE_ROUTE_ID"
)

// Sentinels for errors.Is against ConfigError kinds.
var (
	ErrInvalidRouteConfig = errors.New("invalid route config")
	ErrDuplicateRouteID   = errors.New("duplicate route id")
)

// ConfigError is a structural problem in a route tree.
type ConfigError struct {
	Kind    ConfigErrorKind
	RouteID string
	Message string
}

func (e *ConfigError) Error() string {
	if e.RouteID != "" {
		return fmt.Sprintf("%s: route %q: %s", e.Kind, e.RouteID, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Is matches the kind sentinels.
func (e *ConfigError) Is(target error) bool {
	switch target {
	case ErrInvalidRouteConfig:
		return e.Kind == InvalidRouteConfig
	case ErrDuplicateRouteID:
		return e.Kind == DuplicateRouteID
	}
	return false
}

// MultiConfigError wraps every error found in one tree.
type MultiConfigError struct {
	Errors []*ConfigError
}

func (e *MultiConfigError) Error() string {
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d route config errors:", len(e.Errors))
	for i, err := range e.Errors {
		fmt.Fprintf(&sb, "\n  %d. %s", i+1, err.Error())
	}
	return sb.String()
}

// Unwrap exposes the individual errors to errors.Is and errors.As.
func (e *MultiConfigError) Unwrap() []error {
	out := make([]error, len(e.Errors))
	for i, err := range e.Errors {
		out[i] = err
	}
	return out
}

// validator collects errors while the normalizer walks the tree.
type validator struct {
	errors []*ConfigError
}

func (v *validator) add(kind ConfigErrorKind, routeID, format string, args ...any) {
	v.errors = append(v.errors, &ConfigError{
		Kind:    kind,
		RouteID: routeID,
		Message: fmt.Sprintf(format, args...),
	})
}

// checkShape enforces the index/path/layout rules for one definition.
func (v *validator) checkShape(id string, def *RouteDefinition) {
	switch {
	case def.Index && len(def.Children) > 0:
		v.add(InvalidRouteConfig, id, "index routes must not have children")
	case def.Index && def.Path != "":
		v.add(InvalidRouteConfig, id, "index routes must not have a path")
	case !def.Index && def.Path == "" && len(def.Children) == 0:
		v.add(InvalidRouteConfig, id, "route needs a path, the index flag, or children")
	}

	if i := strings.Index(def.Path, "*"); i >= 0 && i != len(def.Path)-1 {
		v.add(InvalidRouteConfig, id, "splat (*) must be the last character of path %q", def.Path)
	}
	if i := strings.Index(def.Path, "*"); i > 0 && def.Path[i-1] != '/' {
		v.add(InvalidRouteConfig, id, "splat (*) must be its own segment in path %q", def.Path)
	}
}

func (v *validator) err() error {
	if len(v.errors) == 0 {
		return nil
	}
	return &MultiConfigError{Errors: v.errors}
}
