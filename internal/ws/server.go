// Package ws is the websocket transport: it upgrades HTTP requests, decodes
// inbound frames into protocol events for the session router, and writes
// outbound events back as text frames.
package ws

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/gungorefecetin/web-code-editor/internal/protocol"
	"github.com/gungorefecetin/web-code-editor/internal/ratelimit"
	"github.com/gungorefecetin/web-code-editor/internal/session"
)

// Options tunes connection handling. Zero fields take the defaults.
type Options struct {
	WriteWait         time.Duration
	PongWait          time.Duration
	MaxMessageSize    int64
	SendBuffer        int
	MessagesPerSecond float64
	MessageBurst      int
	MaxRateViolations int
	MaxChatLength     int

	// AllowedOrigins lists accepted Origin headers. Empty or "*" accepts any.
	AllowedOrigins []string
}

// DefaultOptions returns the standard connection settings.
func DefaultOptions() Options {
	return Options{
		WriteWait:         10 * time.Second,
		PongWait:          60 * time.Second,
		MaxMessageSize:    1024 * 1024,
		SendBuffer:        256,
		MessagesPerSecond: 100,
		MessageBurst:      200,
		MaxRateViolations: 1000,
		MaxChatLength:     protocol.DefaultMaxChatLength,
	}
}

// PingPeriod is how often pings are sent; it must be shorter than PongWait.
func (o Options) PingPeriod() time.Duration {
	return (o.PongWait * 9) / 10
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.WriteWait <= 0 {
		o.WriteWait = d.WriteWait
	}
	if o.PongWait <= 0 {
		o.PongWait = d.PongWait
	}
	if o.MaxMessageSize <= 0 {
		o.MaxMessageSize = d.MaxMessageSize
	}
	if o.SendBuffer <= 0 {
		o.SendBuffer = d.SendBuffer
	}
	if o.MessagesPerSecond <= 0 {
		o.MessagesPerSecond = d.MessagesPerSecond
	}
	if o.MessageBurst <= 0 {
		o.MessageBurst = d.MessageBurst
	}
	if o.MaxRateViolations <= 0 {
		o.MaxRateViolations = d.MaxRateViolations
	}
	if o.MaxChatLength <= 0 {
		o.MaxChatLength = d.MaxChatLength
	}
	return o
}

// Server accepts websocket connections and binds each to a session.
type Server struct {
	hub         *Hub
	router      *session.Router
	decoder     *protocol.Decoder
	upgrader    websocket.Upgrader
	opts        Options
	middlewares []SendMiddleware
	logger      *slog.Logger
}

// NewServer creates a Server. Middlewares wrap every client's outbound sends,
// the first listed running outermost.
func NewServer(hub *Hub, router *session.Router, opts Options, logger *slog.Logger, mws ...SendMiddleware) *Server {
	opts = opts.withDefaults()
	s := &Server{
		hub:         hub,
		router:      router,
		decoder:     protocol.NewDecoder(opts.MaxChatLength),
		opts:        opts,
		middlewares: mws,
		logger:      logger,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

// ServeHTTP upgrades the request and starts the client's pumps.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "remote_addr", r.RemoteAddr, "error", err)
		return
	}

	id := uuid.NewString()
	logger := s.logger.With("conn_id", id)
	c := &Client{
		id:      id,
		hub:     s.hub,
		conn:    conn,
		router:  s.router,
		decoder: s.decoder,
		limiter: ratelimit.NewLimiter(s.opts.MessagesPerSecond, s.opts.MessageBurst),
		opts:    s.opts,
		logger:  logger,
		send:    make(chan []byte, s.opts.SendBuffer),
		closed:  make(chan struct{}),
	}
	c.session = session.New(c)
	c.sendFn = chain(c.enqueue, append([]SendMiddleware{LogSends(logger)}, s.middlewares...)...)

	if !s.hub.add(c) {
		s.logger.Warn("rejecting connection during shutdown", "remote_addr", r.RemoteAddr)
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
		conn.Close()
		return
	}
	logger.Info("client connected", "remote_addr", r.RemoteAddr)

	go c.writePump()
	go c.readPump()
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(s.opts.AllowedOrigins) == 0 {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	for _, allowed := range s.opts.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(strings.TrimRight(allowed, "/"), u.Scheme+"://"+u.Host) {
			return true
		}
	}
	s.logger.Warn("rejecting websocket origin", "origin", origin)
	return false
}
