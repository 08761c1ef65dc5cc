package dataserver

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/vango-dev/datarouter"
	"github.com/vango-dev/datarouter/pkg/hydration"
	"github.com/vango-dev/datarouter/pkg/router"
)

// Client message types.
const (
	MsgNavigate      = "navigate"
	MsgGo            = "go"
	MsgFetch         = "fetch"
	MsgDeleteFetcher = "deleteFetcher"
	MsgRevalidate    = "revalidate"
)

// Server message types.
const (
	MsgState    = "state"
	MsgDone     = "done"
	MsgError    = "error"
	MsgRedirect = "redirect"
)

// ClientMessage is a command sent by a live client.
type ClientMessage struct {
	Type string `json:"type"`

	// ID is echoed in the done or error reply.
	ID string `json:"id,omitempty"`

	// To is the navigation or fetch target.
	To                 string             `json:"to,omitempty"`
	Replace            bool               `json:"replace,omitempty"`
	State              any                `json:"state,omitempty"`
	PreventScrollReset bool               `json:"preventScrollReset,omitempty"`
	FromRouteID        string             `json:"fromRouteId,omitempty"`
	Submission         *router.Submission `json:"submission,omitempty"`

	// Delta is the history offset of a go command.
	Delta int `json:"delta,omitempty"`

	// Key and RouteID identify a fetcher.
	Key     string `json:"key,omitempty"`
	RouteID string `json:"routeId,omitempty"`
}

// ServerMessage is sent to live clients.
type ServerMessage struct {
	Type string `json:"type"`
	ID   string `json:"id,omitempty"`

	State    *datarouter.State                `json:"state,omitempty"`
	Matches  []string                         `json:"matches,omitempty"`
	Errors   map[string]hydration.ErrorRecord `json:"errors,omitempty"`
	Boundary string                           `json:"boundary,omitempty"`

	// Location is the target of a document redirect.
	Location string `json:"location,omitempty"`

	Message string `json:"message,omitempty"`
}

func stateMessage(st datarouter.State) ServerMessage {
	m := ServerMessage{Type: MsgState, State: &st, Errors: hydration.EncodeErrors(st.Errors)}
	for _, match := range st.Matches {
		m.Matches = append(m.Matches, match.RouteID)
	}
	if st.Boundary != nil {
		m.Boundary = st.Boundary.RouteID
	}
	return m
}

func (m ClientMessage) options() []datarouter.NavigateOption {
	var opts []datarouter.NavigateOption
	if m.Replace {
		opts = append(opts, datarouter.WithReplace())
	}
	if m.State != nil {
		opts = append(opts, datarouter.WithState(m.State))
	}
	if m.PreventScrollReset {
		opts = append(opts, datarouter.WithPreventScrollReset())
	}
	if m.FromRouteID != "" {
		opts = append(opts, datarouter.FromRoute(m.FromRouteID))
	}
	if sub := m.Submission; sub != nil {
		switch sub.EncType {
		case router.EncTypeJSON:
			opts = append(opts, datarouter.WithJSON(sub.Method, sub.JSON))
		case router.EncTypeText:
			opts = append(opts, datarouter.WithText(sub.Method, sub.Text))
		default:
			opts = append(opts, datarouter.WithFormData(sub.Method, sub.FormData))
		}
	}
	return opts
}

type session struct {
	id     string
	srv    *Server
	conn   *websocket.Conn
	router *datarouter.Router
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	out     chan ServerMessage
	stateCh chan struct{}

	mu     sync.Mutex
	latest *datarouter.State

	wg        sync.WaitGroup
	done      chan struct{}
	closeOnce sync.Once
}

func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		s.wsError("upgrade")
		return
	}

	sess, err := s.newSession(conn, r)
	if err != nil {
		s.logger.Error("live session failed", "error", err)
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "session failed"),
			time.Now().Add(s.config.WriteTimeout))
		conn.Close()
		return
	}

	s.mu.Lock()
	s.sessions[sess] = struct{}{}
	s.mu.Unlock()
	if s.config.Metrics != nil {
		s.config.Metrics.SessionOpened()
	}
	sess.logger.Info("live session opened", "path", sess.router.State().Location.Pathname)

	sess.run()

	s.mu.Lock()
	delete(s.sessions, sess)
	s.mu.Unlock()
	if s.config.Metrics != nil {
		s.config.Metrics.SessionClosed()
	}
	sess.logger.Info("live session closed")
}

func (s *Server) wsError(kind string) {
	if s.config.Metrics != nil {
		s.config.Metrics.WebSocketError(kind)
	}
}

func (s *Server) newSession(conn *websocket.Conn, r *http.Request) (*session, error) {
	path := r.URL.Query().Get("path")
	if path == "" {
		path = s.config.Basename
	}
	if path == "" {
		path = "/"
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}

	sess := &session{
		id:      uuid.NewString(),
		srv:     s,
		conn:    conn,
		out:     make(chan ServerMessage, 32),
		stateCh: make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	sess.logger = s.logger.With("session", sess.id)
	sess.ctx, sess.cancel = context.WithCancel(context.Background())

	rt, err := datarouter.New(datarouter.Options{
		Routes:      s.routes,
		Basename:    s.config.Basename,
		History:     datarouter.NewMemoryHistory(path),
		Origin:      scheme + "://" + r.Host,
		LoadContext: s.config.LoadContext,
		Middleware:  s.config.Middleware,
		Observer:    s.config.Observer,
		OnDocumentRedirect: func(location string) {
			sess.send(ServerMessage{Type: MsgRedirect, Location: location})
		},
	})
	if err != nil {
		sess.cancel()
		return nil, err
	}
	sess.router = rt
	return sess, nil
}

// run serves the session until the connection ends.
func (s *session) run() {
	go s.writeLoop()

	unsubscribe := s.router.Subscribe(s.pushState)
	s.pushState(s.router.State())
	s.exec("init", s.router.Initialize)

	s.readLoop()

	unsubscribe()
	s.close()
	s.wg.Wait()
}

func (s *session) pushState(st datarouter.State) {
	s.mu.Lock()
	s.latest = &st
	s.mu.Unlock()
	select {
	case s.stateCh <- struct{}{}:
	default:
	}
}

func (s *session) takeState() *datarouter.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.latest
	s.latest = nil
	return st
}

func (s *session) send(m ServerMessage) {
	select {
	case s.out <- m:
	case <-s.done:
	}
}

// exec runs a router command in its own goroutine so a later command can
// interrupt it.
func (s *session) exec(id string, fn func(ctx context.Context) error) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := fn(s.ctx); err != nil {
			if errors.Is(err, datarouter.ErrDisposed) {
				return
			}
			s.send(ServerMessage{Type: MsgError, ID: id, Message: err.Error()})
			return
		}
		s.send(ServerMessage{Type: MsgDone, ID: id})
	}()
}

func (s *session) readLoop() {
	cfg := s.srv.config
	s.conn.SetReadLimit(cfg.MaxMessageSize)
	s.conn.SetReadDeadline(time.Now().Add(cfg.PongTimeout))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(cfg.PongTimeout))
		return nil
	})

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				s.logger.Warn("read error", "error", err)
				s.srv.wsError("read")
			}
			return
		}
		s.conn.SetReadDeadline(time.Now().Add(cfg.PongTimeout))

		var m ClientMessage
		if err := json.Unmarshal(data, &m); err != nil {
			s.srv.wsError("decode")
			s.send(ServerMessage{Type: MsgError, Message: "invalid message: " + err.Error()})
			continue
		}
		s.dispatch(m)
	}
}

func (s *session) dispatch(m ClientMessage) {
	switch m.Type {
	case MsgNavigate:
		s.exec(m.ID, func(ctx context.Context) error {
			return s.router.Navigate(ctx, m.To, m.options()...)
		})
	case MsgGo:
		s.exec(m.ID, func(ctx context.Context) error {
			return s.router.Go(ctx, m.Delta)
		})
	case MsgFetch:
		if m.Key == "" {
			s.send(ServerMessage{Type: MsgError, ID: m.ID, Message: "fetch needs a key"})
			return
		}
		s.exec(m.ID, func(ctx context.Context) error {
			return s.router.Fetch(ctx, m.Key, m.RouteID, m.To, m.options()...)
		})
	case MsgRevalidate:
		s.exec(m.ID, s.router.Revalidate)
	case MsgDeleteFetcher:
		s.router.DeleteFetcher(m.Key)
		s.send(ServerMessage{Type: MsgDone, ID: m.ID})
	default:
		s.logger.Debug("unknown message type", "type", m.Type)
		s.send(ServerMessage{Type: MsgError, ID: m.ID, Message: "unknown message type " + m.Type})
	}
}

func (s *session) writeLoop() {
	cfg := s.srv.config
	ticker := time.NewTicker(cfg.PingInterval)
	defer ticker.Stop()

	for {
		var err error
		select {
		case <-s.stateCh:
			err = s.writeState()
		case m := <-s.out:
			// Replies follow the state they describe.
			if err = s.writeState(); err == nil {
				err = s.write(m)
			}
		case <-ticker.C:
			err = s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(cfg.WriteTimeout))
		case <-s.done:
			return
		}
		if err != nil {
			s.logger.Debug("write error", "error", err)
			s.srv.wsError("write")
			s.close()
			return
		}
	}
}

func (s *session) writeState() error {
	st := s.takeState()
	if st == nil {
		return nil
	}
	return s.write(stateMessage(*st))
}

func (s *session) write(m ServerMessage) error {
	s.conn.SetWriteDeadline(time.Now().Add(s.srv.config.WriteTimeout))
	return s.conn.WriteJSON(m)
}

func (s *session) close() {
	s.closeOnce.Do(func() {
		s.cancel()
		close(s.done)
		s.router.Dispose()
		s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(s.srv.config.WriteTimeout))
		s.conn.Close()
	})
}
