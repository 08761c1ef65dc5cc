package instrument

import (
	"context"
	"log/slog"
	"time"

	"github.com/vango-dev/datarouter"
	"github.com/vango-dev/datarouter/pkg/boundary"
	"github.com/vango-dev/datarouter/pkg/router"
)

// Logger is a datarouter.Observer that logs runs with slog.
type Logger struct {
	logger *slog.Logger
}

var _ datarouter.Observer = (*Logger)(nil)

// NewLogger creates a run logger. A nil logger uses slog.Default().
func NewLogger(logger *slog.Logger) *Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Logger{logger: logger}
}

func (l *Logger) RunStarted(ev datarouter.Event) {
	l.logger.Debug("run started", runAttrs(ev)...)
}

func (l *Logger) RunFinished(ev datarouter.Event) {
	attrs := append(runAttrs(ev),
		"status", string(ev.Status),
		"duration", ev.Duration,
		"loaded", ev.Loaded,
	)
	if ev.Redirect != nil {
		attrs = append(attrs, "redirect", ev.Redirect.Location, "redirect_status", ev.Redirect.Status)
	}
	switch ev.Status {
	case datarouter.StatusFailed:
		l.logger.Warn("run failed", append(attrs, "error", ev.Err)...)
	case datarouter.StatusInterrupted:
		l.logger.Debug("run interrupted", attrs...)
	default:
		l.logger.Info("run finished", attrs...)
	}
}

func (l *Logger) UnhandledError(err *boundary.UnhandledError) {
	l.logger.Error("unhandled route error", "route_id", err.RouteID, "error", err.Err)
}

func runAttrs(ev datarouter.Event) []any {
	attrs := []any{
		"run_id", ev.ID,
		"kind", string(ev.Kind),
		"path", ev.Location.Pathname,
	}
	if ev.HistoryAction != "" {
		attrs = append(attrs, "action", string(ev.HistoryAction))
	}
	if ev.FetcherKey != "" {
		attrs = append(attrs, "fetcher", ev.FetcherKey)
	}
	if ev.Submission != nil {
		attrs = append(attrs, "method", ev.Submission.Method)
	}
	return attrs
}

// LogHandlers creates middleware that logs handler errors at warn level
// and every call at debug level. Redirects are not errors.
func LogHandlers(logger *slog.Logger) router.Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(ctx context.Context, args router.Args) (any, error) {
			start := time.Now()
			val, err := next(ctx, args)

			attrs := []any{
				"route_id", args.RouteID,
				"handler", args.Kind.String(),
				"duration", time.Since(start),
			}
			if resp, ok := router.AsRedirect(val, err); ok {
				logger.Debug("handler redirected", append(attrs, "location", resp.Location())...)
				return val, err
			}
			if err != nil {
				logger.Warn("handler failed", append(attrs, "error", err)...)
				return val, err
			}
			logger.Debug("handler finished", attrs...)
			return val, err
		}
	}
}
