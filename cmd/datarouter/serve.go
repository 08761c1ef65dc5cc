package main

import (
	"context"
	stderrors "errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/vango-dev/datarouter"
	"github.com/vango-dev/datarouter/internal/config"
	"github.com/vango-dev/datarouter/internal/errors"
	"github.com/vango-dev/datarouter/pkg/dataserver"
	"github.com/vango-dev/datarouter/pkg/hydration"
	"github.com/vango-dev/datarouter/pkg/instrument"
	"github.com/vango-dev/datarouter/pkg/router"
)

func serveCmd(flags *projectFlags) *cobra.Command {
	var (
		host string
		port int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the route tree as a data server",
		Long: `Serve the route tree over HTTP.

The data server answers loader data requests, runs actions, serves
single routes as resources and keeps live navigation sessions over
WebSocket. Prometheus metrics are served when metrics are enabled in
the config.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := loadProject(cmd.Context(), flags)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("host") {
				p.config.Server.Host = host
			}
			if cmd.Flags().Changed("port") {
				p.config.Server.Port = port
				if err := p.config.Validate(); err != nil {
					return err
				}
			}

			logger, err := newLogger(p.config, os.Stderr)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cmd.OutOrStdout(), p, logger)
		},
	}

	cmd.Flags().StringVar(&host, "host", config.DefaultHost, "Host to listen on")
	cmd.Flags().IntVarP(&port, "port", "p", config.DefaultPort, "Port to listen on")

	return cmd
}

// newLogger builds the process logger from the log config.
func newLogger(cfg *config.Config, w io.Writer) (*slog.Logger, error) {
	level, err := cfg.LogLevel()
	if err != nil {
		return nil, errors.New("E121").WithDetail("log.level must be debug, info, warn or error").Wrap(err)
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Log.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}

// newHandler wires the data server, metrics and tracing for p.
func newHandler(p *project, logger *slog.Logger) (http.Handler, *dataserver.Server, error) {
	cfg := p.config

	sc := dataserver.DefaultConfig()
	sc.Basename = p.basename
	sc.Logger = logger
	sc.Streaming = cfg.Server.Streaming
	if len(cfg.Server.AllowedOrigins) > 0 {
		sc.CheckOrigin = dataserver.AllowOrigins(cfg.Server.AllowedOrigins...)
	}
	if cfg.Hydration.Secret != "" {
		codec := hydration.JSON
		if cfg.Hydration.Format == "msgpack" {
			codec = hydration.Msgpack
		}
		sc.Signer = hydration.NewSigner(codec, []byte(cfg.Hydration.Secret))
	}

	observers := []datarouter.Observer{instrument.NewLogger(logger)}
	sc.Middleware = []router.Middleware{instrument.LogHandlers(logger)}

	var reg *prometheus.Registry
	if cfg.Metrics.Enabled {
		reg = prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		opts := []instrument.MetricsOption{instrument.WithRegistry(reg)}
		if cfg.Metrics.Namespace != "" {
			opts = append(opts, instrument.WithNamespace(cfg.Metrics.Namespace))
		}
		m := instrument.NewMetrics(opts...)
		observers = append(observers, m)
		sc.Middleware = append(sc.Middleware, m.Middleware())
		sc.Metrics = m
	}
	if cfg.Tracing.Enabled {
		var opts []instrument.OTelOption
		if cfg.Tracing.TracerName != "" {
			opts = append(opts, instrument.WithTracerName(cfg.Tracing.TracerName))
		}
		observers = append(observers, instrument.NewTracer(opts...))
		sc.Middleware = append(sc.Middleware, instrument.OpenTelemetry(opts...))
	}
	sc.Observer = datarouter.Observers(observers...)

	srv, err := dataserver.New(p.file.Definitions(), sc)
	if err != nil {
		return nil, nil, errors.New("E103").Wrap(err)
	}

	r := chi.NewRouter()
	if reg != nil {
		r.Handle(cfg.Metrics.Path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	}
	r.Handle("/*", srv)
	return r, srv, nil
}

// serve listens on the configured address until ctx ends, then shuts
// down within the configured timeout.
func serve(ctx context.Context, out io.Writer, p *project, logger *slog.Logger) error {
	handler, srv, err := newHandler(p, logger)
	if err != nil {
		return err
	}

	ln, err := net.Listen("tcp", p.config.Address())
	if err != nil {
		return errors.New("E301").Wrap(err).WithSuggestion("Pick another port with --port")
	}

	httpServer := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	printBanner(out)
	success(out, "Serving %s on http://%s", p.location, ln.Addr())
	if p.config.Metrics.Enabled {
		info(out, "metrics at %s", p.config.Metrics.Path)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.Serve(ln)
	}()

	select {
	case err := <-errCh:
		srv.Close()
		if err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			return errors.New("E301").Wrap(err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down", "timeout", p.config.ShutdownTimeout())
	srv.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), p.config.ShutdownTimeout())
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return errors.New("E302").Wrap(err)
	}
	return nil
}
