// Package instrument provides observability for data routers.
//
// Each concern comes in two forms: handler middleware, which wraps every
// loader and action, and a datarouter.Observer, which sees whole runs
// (navigations, revalidations, fetches).
//
//   - Metrics: Prometheus collectors (NewMetrics, Metrics.Middleware)
//   - OpenTelemetry: handler spans (OpenTelemetry) and run spans (NewTracer)
//   - Logging: slog run logs (NewLogger) and handler logs (LogHandlers)
//
// Combine observers with datarouter.Observers:
//
//	m := instrument.NewMetrics()
//	r, err := datarouter.New(datarouter.Options{
//	    Routes: routes,
//	    Middleware: []router.Middleware{
//	        instrument.OpenTelemetry(),
//	        m.Middleware(),
//	        instrument.LogHandlers(logger),
//	    },
//	    Observer: datarouter.Observers(m, instrument.NewLogger(logger), instrument.NewTracer()),
//	})
package instrument
