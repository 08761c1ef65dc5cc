package datarouter

import (
	"time"

	"github.com/vango-dev/datarouter/pkg/boundary"
	"github.com/vango-dev/datarouter/pkg/routepath"
	"github.com/vango-dev/datarouter/pkg/router"
	"github.com/vango-dev/datarouter/pkg/strategy"
)

// RunKind says what started a run of loaders.
type RunKind string

const (
	RunNavigation   RunKind = "navigation"
	RunRevalidation RunKind = "revalidation"
	RunInitialize   RunKind = "initialize"
	RunFetch        RunKind = "fetch"
)

// RunStatus is how a run ended.
type RunStatus string

const (
	StatusCompleted   RunStatus = "completed"
	StatusRedirected  RunStatus = "redirected"
	StatusInterrupted RunStatus = "interrupted"
	StatusFailed      RunStatus = "failed"
)

// Event describes one navigation, revalidation or fetch.
type Event struct {
	// ID is unique per run and sortable by start time.
	ID            string
	Kind          RunKind
	HistoryAction HistoryAction
	Location      routepath.Location
	Submission    *router.Submission

	// FetcherKey is set for fetches.
	FetcherKey string

	Start time.Time

	// Set on end events.
	Duration time.Duration
	Status   RunStatus
	Loaded   []string
	Err      error

	// Redirect is the target of a redirected run, with the headers the
	// handler returned.
	Redirect *strategy.RedirectTarget
}

// Observer is notified about router activity. Methods are called
// synchronously and must not block or call back into the Router.
type Observer interface {
	RunStarted(ev Event)
	RunFinished(ev Event)
	UnhandledError(err *boundary.UnhandledError)
}

// Observers fans events out to several observers in order.
func Observers(obs ...Observer) Observer {
	var list multiObserver
	for _, o := range obs {
		if o != nil {
			list = append(list, o)
		}
	}
	return list
}

type multiObserver []Observer

func (m multiObserver) RunStarted(ev Event) {
	for _, o := range m {
		o.RunStarted(ev)
	}
}

func (m multiObserver) RunFinished(ev Event) {
	for _, o := range m {
		o.RunFinished(ev)
	}
}

func (m multiObserver) UnhandledError(err *boundary.UnhandledError) {
	for _, o := range m {
		o.UnhandledError(err)
	}
}
