package datarouter

import (
	"github.com/vango-dev/datarouter/pkg/boundary"
	"github.com/vango-dev/datarouter/pkg/routepath"
	"github.com/vango-dev/datarouter/pkg/router"
)

// HistoryAction is how the current location was reached.
type HistoryAction string

const (
	Pop     HistoryAction = "POP"
	Push    HistoryAction = "PUSH"
	Replace HistoryAction = "REPLACE"
)

// NavigationState is the phase of a navigation or fetcher.
type NavigationState string

const (
	Idle       NavigationState = "idle"
	Loading    NavigationState = "loading"
	Submitting NavigationState = "submitting"
)

// RevalidationState reports whether a revalidation is running.
type RevalidationState string

const (
	RevalidationIdle    RevalidationState = "idle"
	RevalidationLoading RevalidationState = "loading"
)

// Navigation describes the navigation in progress. Location is nil when
// idle.
type Navigation struct {
	State      NavigationState     `json:"state"`
	Location   *routepath.Location `json:"location,omitempty"`
	Submission *router.Submission  `json:"submission,omitempty"`
}

// IdleNavigation is the navigation descriptor when nothing is pending.
var IdleNavigation = Navigation{State: Idle}

// Fetcher is the state of one keyed fetcher.
type Fetcher struct {
	State      NavigationState    `json:"state"`
	Submission *router.Submission `json:"submission,omitempty"`
	Data       any                `json:"data,omitempty"`
}

// IdleFetcher is returned for unknown fetcher keys.
var IdleFetcher = Fetcher{State: Idle}

// BlockerState is the state of a navigation blocker.
type BlockerState string

const (
	BlockerUnblocked  BlockerState = "unblocked"
	BlockerBlocked    BlockerState = "blocked"
	BlockerProceeding BlockerState = "proceeding"
)

// Blocker is the state of one navigation blocker. Location is the blocked
// target.
type Blocker struct {
	State    BlockerState        `json:"state"`
	Location *routepath.Location `json:"location,omitempty"`
}

// UnblockedBlocker is returned for unknown blocker keys.
var UnblockedBlocker = Blocker{State: BlockerUnblocked}

// State is a render-ready snapshot of the router. Snapshots handed to
// callers are never modified afterwards; treat them as read-only.
type State struct {
	HistoryAction HistoryAction      `json:"historyAction"`
	Location      routepath.Location `json:"location"`
	Matches       []router.Match     `json:"-"`
	Initialized   bool               `json:"initialized"`

	Navigation   Navigation        `json:"navigation"`
	Revalidation RevalidationState `json:"revalidation"`

	// RestoreScrollKey is the key of a POP location whose scroll position
	// should be restored. Empty for other navigations.
	RestoreScrollKey   string `json:"restoreScrollKey,omitempty"`
	PreventScrollReset bool   `json:"preventScrollReset"`

	LoaderData map[string]any   `json:"loaderData"`
	ActionData map[string]any   `json:"actionData,omitempty"`
	Errors     map[string]error `json:"-"`

	// Boundary is the resolved error boundary, nil without errors.
	Boundary *boundary.Result `json:"-"`

	Fetchers map[string]Fetcher `json:"fetchers,omitempty"`
	Blockers map[string]Blocker `json:"blockers,omitempty"`
}

// RenderMatches returns the matches to render: truncated at the error
// boundary when there is one.
func (s State) RenderMatches() []router.Match {
	if s.Boundary != nil {
		return s.Boundary.Matches
	}
	return s.Matches
}

// HydrationState is loader data produced on the server, keyed by route ID.
type HydrationState struct {
	LoaderData map[string]any   `json:"loaderData,omitempty" msgpack:"loaderData,omitempty"`
	ActionData map[string]any   `json:"actionData,omitempty" msgpack:"actionData,omitempty"`
	Errors     map[string]error `json:"-" msgpack:"-"`
}

// clone returns a shallow copy whose maps can be changed without touching
// s.
func (s State) clone() State {
	s.LoaderData = cloneMap(s.LoaderData)
	s.ActionData = cloneMapOrNil(s.ActionData)
	s.Errors = cloneErrors(s.Errors)
	s.Fetchers = cloneFetchers(s.Fetchers)
	s.Blockers = cloneBlockers(s.Blockers)
	return s
}

func cloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func cloneMapOrNil(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	return cloneMap(m)
}

func cloneErrors(m map[string]error) map[string]error {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string]error, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func cloneFetchers(m map[string]Fetcher) map[string]Fetcher {
	out := make(map[string]Fetcher, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func cloneBlockers(m map[string]Blocker) map[string]Blocker {
	out := make(map[string]Blocker, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
