package dataserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/vango-dev/datarouter/pkg/hydration"
	"github.com/vango-dev/datarouter/pkg/query"
	"github.com/vango-dev/datarouter/pkg/router"
)

// Response headers.
const (
	HeaderRedirect       = "X-Datarouter-Redirect"
	HeaderRedirectStatus = "X-Datarouter-Status"
	HeaderReplace        = "X-Datarouter-Replace"
	HeaderReloadDocument = "X-Datarouter-Reload-Document"
)

// Server serves a route tree. Create it with New.
type Server struct {
	config   *Config
	routes   []router.RouteDefinition
	query    *query.Handler
	upgrader websocket.Upgrader
	mux      chi.Router
	logger   *slog.Logger

	mu       sync.Mutex
	sessions map[*session]struct{}
	closed   bool
}

// New creates a Server for routes.
func New(routes []router.RouteDefinition, config *Config) (*Server, error) {
	cfg := config.withDefaults()

	opts := []query.Option{
		query.WithBasename(cfg.Basename),
		query.WithMiddleware(cfg.Middleware...),
		query.WithLoadContext(cfg.LoadContext),
	}
	if cfg.Streaming {
		opts = append(opts, query.WithStreaming())
	}
	q, err := query.New(routes, opts...)
	if err != nil {
		return nil, fmt.Errorf("dataserver: %w", err)
	}

	s := &Server{
		config: cfg,
		routes: routes,
		query:  q,
		logger: cfg.Logger.With("component", "dataserver"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     cfg.CheckOrigin,
		},
		sessions: make(map[*session]struct{}),
	}
	s.mux = s.routesMux()
	return s, nil
}

func (s *Server) routesMux() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/_health"))
	r.Use(s.logRequests)

	r.HandleFunc("/_data", s.handleData)
	r.HandleFunc("/_data/*", s.handleData)
	r.HandleFunc("/_route/{routeID}", s.handleRoute)
	r.HandleFunc("/_route/{routeID}/*", s.handleRoute)
	r.HandleFunc("/_resource/*", s.handleRoute)
	r.Get("/_hydrate/*", s.handleHydrate)
	r.Get("/_routes", s.handleRoutes)
	r.Get("/_live", s.handleLive)
	return r
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// Query returns the query handler the server uses.
func (s *Server) Query() *query.Handler { return s.query }

// Close ends every live session. The server answers HTTP requests
// afterwards but refuses new sessions.
func (s *Server) Close() {
	s.mu.Lock()
	s.closed = true
	sessions := make([]*session, 0, len(s.sessions))
	for sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.mu.Unlock()

	for _, sess := range sessions {
		sess.close()
	}
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

// routeRequest returns a copy of r addressed to the URL after the
// endpoint prefix.
func routeRequest(r *http.Request) *http.Request {
	rest := chi.URLParam(r, "*")
	out := r.Clone(r.Context())
	out.URL.Path = "/" + rest
	out.URL.RawPath = ""
	out.RequestURI = ""
	return out
}

func (s *Server) handleData(w http.ResponseWriter, r *http.Request) {
	c, err := s.query.Query(r.Context(), routeRequest(r))
	if err != nil {
		s.queryFailed(w, r, err)
		return
	}
	if c.Redirect != nil {
		writeRedirect(w, c.Redirect)
		return
	}

	for _, m := range c.RenderMatches() {
		copyHeader(w.Header(), c.LoaderHeaders[m.RouteID])
	}
	for _, h := range c.ActionHeaders {
		copyHeader(w.Header(), h)
	}

	codec := hydration.Negotiate(r.Header.Get("Accept"))
	w.Header().Set("Content-Type", codec.ContentType())
	w.Header().Set("Vary", "Accept")
	if c.Boundary != nil {
		w.Header().Set("X-Datarouter-Boundary", c.Boundary.RouteID)
	}
	w.WriteHeader(c.StatusCode)
	if err := codec.Encode(w, c.Hydration()); err != nil {
		s.logger.Warn("encode data response", "error", err)
	}
}

func (s *Server) handleRoute(w http.ResponseWriter, r *http.Request) {
	routeID := chi.URLParam(r, "routeID")
	val, err := s.query.QueryRoute(r.Context(), routeRequest(r), routeID)
	if err != nil {
		if r.Context().Err() != nil {
			s.queryFailed(w, r, err)
			return
		}
		s.writeRouteError(w, r, routeID, err)
		return
	}

	status := http.StatusOK
	if resp, ok := val.(*router.Response); ok {
		if resp.IsRedirect() {
			writeRedirect(w, resp)
			return
		}
		copyHeader(w.Header(), resp.Header)
		if resp.Status != 0 {
			status = resp.Status
		}
		val = resp.Body
	}
	s.writeValue(w, r, status, val)
}

func (s *Server) writeRouteError(w http.ResponseWriter, r *http.Request, routeID string, err error) {
	status := http.StatusInternalServerError
	if er, ok := router.IsErrorResponse(err); ok {
		status = er.Status
	} else {
		s.logger.Warn("route handler failed", "route_id", routeID, "path", r.URL.Path, "error", err)
	}
	recs := hydration.EncodeErrors(map[string]error{"error": err})
	s.writeValue(w, r, status, recs["error"])
}

func (s *Server) writeValue(w http.ResponseWriter, r *http.Request, status int, val any) {
	codec := hydration.Negotiate(r.Header.Get("Accept"))
	w.Header().Set("Content-Type", codec.ContentType())
	w.Header().Set("Vary", "Accept")
	w.WriteHeader(status)

	var err error
	if codec == hydration.Msgpack {
		err = msgpack.NewEncoder(w).Encode(val)
	} else {
		err = json.NewEncoder(w).Encode(val)
	}
	if err != nil {
		s.logger.Warn("encode route response", "error", err)
	}
}

func (s *Server) handleHydrate(w http.ResponseWriter, r *http.Request) {
	if s.config.Signer == nil {
		http.NotFound(w, r)
		return
	}
	c, err := s.query.Query(r.Context(), routeRequest(r))
	if err != nil {
		s.queryFailed(w, r, err)
		return
	}
	if c.Redirect != nil {
		writeRedirect(w, c.Redirect)
		return
	}
	encoded, err := s.config.Signer.EncodeString(c.Hydration())
	if err != nil {
		s.logger.Error("sign hydration state", "error", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(c.StatusCode)
	w.Write([]byte(encoded))
}

func (s *Server) handleRoutes(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.query.Manifest().Branches())
}

// queryFailed handles requests whose context ended before the handlers
// finished.
func (s *Server) queryFailed(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, context.Canceled) {
		s.logger.Debug("request canceled", "path", r.URL.Path)
		return
	}
	s.logger.Warn("query failed", "path", r.URL.Path, "error", err)
	http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
}

func writeRedirect(w http.ResponseWriter, resp *router.Response) {
	h := w.Header()
	h.Set(HeaderRedirect, resp.Location())
	h.Set(HeaderRedirectStatus, strconv.Itoa(resp.Status))
	if resp.Replace() {
		h.Set(HeaderReplace, "true")
	}
	if resp.ReloadDocument() {
		h.Set(HeaderReloadDocument, "true")
	}
	w.WriteHeader(http.StatusNoContent)
}

func copyHeader(dst, src http.Header) {
	for k, vs := range src {
		if strings.EqualFold(k, router.HeaderLocation) {
			continue
		}
		dst[k] = append([]string(nil), vs...)
	}
}
