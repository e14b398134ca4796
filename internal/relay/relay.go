// Package relay implements the server side of the voice session
// protocol. Each websocket client gets its own session that bridges
// client messages to a dedicated upstream realtime connection and
// translates upstream events back into protocol messages.
package relay

import (
	"log/slog"
	"net/http"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/akshaymakw8/Realtime-Voice-Agent/internal/agent"
	"github.com/akshaymakw8/Realtime-Voice-Agent/internal/history"
	"github.com/akshaymakw8/Realtime-Voice-Agent/internal/observe"
	"github.com/akshaymakw8/Realtime-Voice-Agent/internal/upstream"
)

// Server accepts client websocket connections and runs one session per
// client. All exported methods are safe for concurrent use.
type Server struct {
	dialer  upstream.Dialer
	agents  *agent.Registry
	history history.Store
	metrics *observe.Metrics
}

// Option configures a [Server].
type Option func(*Server)

// WithHistory sets the conversation log store. Defaults to an
// in-memory store.
func WithHistory(st history.Store) Option {
	return func(s *Server) { s.history = st }
}

// WithMetrics sets the metrics sink. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// New creates a relay server bridging clients to the given upstream
// dialer, binding agents from the given registry.
func New(dialer upstream.Dialer, agents *agent.Registry, opts ...Option) *Server {
	s := &Server{
		dialer: dialer,
		agents: agents,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.history == nil {
		s.history = history.NewMemStore()
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	return s
}

// Register mounts the websocket endpoint on mux. Clients connect to
// /ws/{client_id}; connecting to /ws assigns a generated id.
//
// Note: the handler hijacks the connection, so it must not sit behind
// middleware that wraps the ResponseWriter without implementing
// http.Hijacker.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /ws/{client_id}", s.handleWS)
	mux.HandleFunc("GET /ws", s.handleWS)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	clientID := r.PathValue("client_id")
	if clientID == "" {
		clientID = uuid.NewString()
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Warn("relay: websocket accept failed", "client_id", clientID, "err", err)
		return
	}

	slog.Info("relay: client connected", "client_id", clientID)
	sess := newClientSession(s, clientID, ws)
	sess.run(r.Context())
	slog.Info("relay: client disconnected", "client_id", clientID)
}
