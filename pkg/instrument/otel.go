package instrument

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vango-dev/datarouter"
	"github.com/vango-dev/datarouter/pkg/boundary"
	"github.com/vango-dev/datarouter/pkg/router"
)

const defaultTracerName = "datarouter"

// OTelConfig configures tracing.
type OTelConfig struct {
	// TracerName is the name of the tracer (default: "datarouter").
	TracerName string

	// TracerProvider supplies the tracer. Default: otel.GetTracerProvider().
	TracerProvider trace.TracerProvider

	// Filter determines which handler calls to trace.
	// If nil, all calls are traced.
	Filter func(args router.Args) bool

	// AttributeExtractor adds custom attributes to handler spans.
	AttributeExtractor func(args router.Args) []attribute.KeyValue
}

// OTelOption configures tracing.
type OTelOption func(*OTelConfig)

// WithTracerName sets the tracer name.
func WithTracerName(name string) OTelOption {
	return func(c *OTelConfig) {
		c.TracerName = name
	}
}

// WithTracerProvider uses tp instead of the global provider.
func WithTracerProvider(tp trace.TracerProvider) OTelOption {
	return func(c *OTelConfig) {
		c.TracerProvider = tp
	}
}

// WithHandlerFilter sets a filter function for handler calls.
func WithHandlerFilter(filter func(args router.Args) bool) OTelOption {
	return func(c *OTelConfig) {
		c.Filter = filter
	}
}

// WithAttributeExtractor sets a custom attribute extractor.
func WithAttributeExtractor(extractor func(args router.Args) []attribute.KeyValue) OTelOption {
	return func(c *OTelConfig) {
		c.AttributeExtractor = extractor
	}
}

func (c *OTelConfig) tracer() trace.Tracer {
	tp := c.TracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return tp.Tracer(c.TracerName)
}

func newOTelConfig(opts []OTelOption) OTelConfig {
	config := OTelConfig{TracerName: defaultTracerName}
	for _, opt := range opts {
		opt(&config)
	}
	return config
}

// OpenTelemetry creates middleware that traces every loader and action.
// The handler's ctx carries the span, so outgoing calls made with it
// join the trace.
//
// Example:
//
//	r, err := datarouter.New(datarouter.Options{
//	    Routes:     routes,
//	    Middleware: []router.Middleware{instrument.OpenTelemetry()},
//	})
func OpenTelemetry(opts ...OTelOption) router.Middleware {
	config := newOTelConfig(opts)
	tracer := config.tracer()

	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(ctx context.Context, args router.Args) (any, error) {
			if config.Filter != nil && !config.Filter(args) {
				return next(ctx, args)
			}

			attrs := []attribute.KeyValue{
				attribute.String("datarouter.route_id", args.RouteID),
				attribute.String("datarouter.handler", args.Kind.String()),
			}
			if args.Request != nil {
				attrs = append(attrs,
					attribute.String("http.method", args.Request.Method),
					attribute.String("url.path", args.Request.URL.Path),
				)
			}
			if config.AttributeExtractor != nil {
				attrs = append(attrs, config.AttributeExtractor(args)...)
			}

			spanCtx, span := tracer.Start(ctx,
				fmt.Sprintf("datarouter.%s %s", args.Kind, args.RouteID),
				trace.WithSpanKind(trace.SpanKindInternal),
				trace.WithAttributes(attrs...),
			)
			defer span.End()

			val, err := next(spanCtx, args)
			if resp, ok := router.AsRedirect(val, err); ok {
				span.SetAttributes(attribute.String("datarouter.redirect", resp.Location()))
				span.SetStatus(codes.Ok, "")
				return val, err
			}
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
			} else {
				span.SetStatus(codes.Ok, "")
			}
			return val, err
		}
	}
}

// Tracer is a datarouter.Observer that records a span per run. Handler
// spans from OpenTelemetry are separate traces since handlers receive the
// caller's context, not the observer's.
type Tracer struct {
	tracer trace.Tracer

	mu    sync.Mutex
	spans map[string]trace.Span
}

var _ datarouter.Observer = (*Tracer)(nil)

// NewTracer creates a run tracer.
func NewTracer(opts ...OTelOption) *Tracer {
	config := newOTelConfig(opts)
	return &Tracer{tracer: config.tracer(), spans: make(map[string]trace.Span)}
}

func (t *Tracer) RunStarted(ev datarouter.Event) {
	attrs := []attribute.KeyValue{
		attribute.String("datarouter.run_id", ev.ID),
		attribute.String("datarouter.run_kind", string(ev.Kind)),
		attribute.String("url.path", ev.Location.Pathname),
	}
	if ev.HistoryAction != "" {
		attrs = append(attrs, attribute.String("datarouter.history_action", string(ev.HistoryAction)))
	}
	if ev.FetcherKey != "" {
		attrs = append(attrs, attribute.String("datarouter.fetcher_key", ev.FetcherKey))
	}
	if ev.Submission != nil {
		attrs = append(attrs, attribute.String("http.method", ev.Submission.Method))
	}

	_, span := t.tracer.Start(context.Background(), "datarouter."+string(ev.Kind),
		trace.WithTimestamp(ev.Start),
		trace.WithAttributes(attrs...),
	)
	t.mu.Lock()
	t.spans[ev.ID] = span
	t.mu.Unlock()
}

func (t *Tracer) RunFinished(ev datarouter.Event) {
	t.mu.Lock()
	span, ok := t.spans[ev.ID]
	delete(t.spans, ev.ID)
	t.mu.Unlock()
	if !ok {
		return
	}

	span.SetAttributes(
		attribute.String("datarouter.run_status", string(ev.Status)),
		attribute.StringSlice("datarouter.loaded", ev.Loaded),
	)
	if ev.Err != nil && ev.Status == datarouter.StatusFailed {
		span.RecordError(ev.Err)
		span.SetStatus(codes.Error, ev.Err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End(trace.WithTimestamp(ev.Start.Add(ev.Duration)))
}

func (t *Tracer) UnhandledError(err *boundary.UnhandledError) {}

// active returns the number of open run spans.
func (t *Tracer) active() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.spans)
}
