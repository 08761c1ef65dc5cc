package dataserver

import (
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"time"

	"github.com/vango-dev/datarouter"
	"github.com/vango-dev/datarouter/pkg/hydration"
	"github.com/vango-dev/datarouter/pkg/router"
)

// SessionMetrics records live session activity.
type SessionMetrics interface {
	SessionOpened()
	SessionClosed()
	WebSocketError(errorType string)
}

// Config configures a Server.
type Config struct {
	// Basename is the URL prefix of the routes.
	Basename string

	// LoadContext is passed to every handler as Args.LoadContext.
	LoadContext any

	// Middleware wraps every loader and action, on both HTTP requests and
	// live sessions.
	Middleware []router.Middleware

	// Observer receives run events of live sessions.
	Observer datarouter.Observer

	// Metrics records live session activity. Optional.
	Metrics SessionMetrics

	// Logger is the structured logger. Default: slog.Default().
	Logger *slog.Logger

	// Streaming answers data requests without waiting for deferred keys.
	Streaming bool

	// Signer enables /_hydrate.
	Signer *hydration.Signer

	// CheckOrigin validates websocket origins. Default: SameOriginCheck.
	CheckOrigin func(r *http.Request) bool

	// MaxMessageSize bounds client messages. Default: 64KB.
	MaxMessageSize int64

	// WriteTimeout bounds a single websocket write. Default: 10s.
	WriteTimeout time.Duration

	// PingInterval is how often the server pings live clients. Default: 30s.
	PingInterval time.Duration

	// PongTimeout is how long a client may stay silent. Default: 60s.
	PongTimeout time.Duration
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	return &Config{
		Logger:         slog.Default(),
		CheckOrigin:    SameOriginCheck,
		MaxMessageSize: 64 * 1024,
		WriteTimeout:   10 * time.Second,
		PingInterval:   30 * time.Second,
		PongTimeout:    60 * time.Second,
	}
}

func (c *Config) withDefaults() *Config {
	d := DefaultConfig()
	if c == nil {
		return d
	}
	out := *c
	if out.Logger == nil {
		out.Logger = d.Logger
	}
	if out.CheckOrigin == nil {
		out.CheckOrigin = d.CheckOrigin
	}
	if out.MaxMessageSize <= 0 {
		out.MaxMessageSize = d.MaxMessageSize
	}
	if out.WriteTimeout <= 0 {
		out.WriteTimeout = d.WriteTimeout
	}
	if out.PingInterval <= 0 {
		out.PingInterval = d.PingInterval
	}
	if out.PongTimeout <= 0 {
		out.PongTimeout = d.PongTimeout
	}
	return &out
}

// SameOriginCheck accepts websocket requests whose Origin host matches
// the request host, and requests without an Origin header.
func SameOriginCheck(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil || r.Host == "" {
		return false
	}
	return u.Host == r.Host
}

// AllowOrigins accepts same-origin requests and the listed origins.
func AllowOrigins(origins ...string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		if SameOriginCheck(r) {
			return true
		}
		return slices.Contains(origins, r.Header.Get("Origin"))
	}
}
