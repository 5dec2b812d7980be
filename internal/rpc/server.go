// Package rpc provides WebSocket-based RPC functionality.
package rpc

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"listenify.dev/syncengine/internal/auth"
	"listenify.dev/syncengine/internal/config"
	"listenify.dev/syncengine/internal/hub"
	"listenify.dev/syncengine/internal/utils"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WSMetricsRecorder receives WebSocket connection lifecycle observations.
// Satisfied by *system.MetricsService without importing it here.
type WSMetricsRecorder interface {
	IncWSConnectionsActive()
	DecWSConnectionsActive()
	ObserveWSConnection(duration time.Duration)
}

// Server upgrades HTTP connections to WebSocket and dispatches inbound
// JSON-RPC traffic through the router. It holds the process-wide Stream
// Hub registry so any connection can attach to any room's updates.
type Server struct {
	router       *Router
	authVerifier auth.Verifier
	hubRegistry  *hub.Registry
	logger       *utils.Logger
	metrics      WSMetricsRecorder

	maxMessageSize int64
	writeWait      time.Duration
	pongWait       time.Duration
	pingPeriod     time.Duration

	// onDisconnect runs once per connection teardown, after the transport
	// has stopped accepting writes. Set via OnDisconnect; used to run the
	// room-leave path for a connection that dropped without an explicit
	// room.leave call.
	onDisconnect func(client *Client)

	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	mu         sync.Mutex
}

// NewServer creates a new WebSocket RPC server. metrics may be nil, in
// which case connection counts and durations are simply not recorded.
func NewServer(router *Router, authVerifier auth.Verifier, hubRegistry *hub.Registry, metrics WSMetricsRecorder, cfg *config.Config, logger *utils.Logger) *Server {
	server := &Server{
		router:         router,
		authVerifier:   authVerifier,
		hubRegistry:    hubRegistry,
		logger:         logger.Named("rpc_server"),
		metrics:        metrics,
		maxMessageSize: int64(cfg.WebSocket.MaxMessageSize),
		writeWait:      cfg.WebSocket.WriteWait,
		pongWait:       cfg.WebSocket.PongWait,
		pingPeriod:     cfg.WebSocket.PingPeriod,
		clients:        make(map[*Client]bool),
		register:       make(chan *Client),
		unregister:     make(chan *Client),
	}

	go server.run()
	logger.Info("rpc server started")
	return server
}

func (s *Server) run() {
	for {
		select {
		case client := <-s.register:
			s.mu.Lock()
			s.clients[client] = true
			s.mu.Unlock()
			if s.metrics != nil {
				s.metrics.IncWSConnectionsActive()
			}
			s.logger.Debug("client registered", "id", client.ID, "userID", client.UserID)

		case client := <-s.unregister:
			s.mu.Lock()
			_, ok := s.clients[client]
			if ok {
				delete(s.clients, client)
				client.markAsClosed()
				close(client.send)
			}
			s.mu.Unlock()

			if ok {
				s.logger.Debug("client unregistered", "id", client.ID, "userID", client.UserID)
				if s.metrics != nil {
					s.metrics.DecWSConnectionsActive()
					s.metrics.ObserveWSConnection(time.Since(client.connectedAt))
				}
				if s.onDisconnect != nil {
					s.onDisconnect(client)
				}
			}
		}
	}
}

// OnDisconnect registers a callback invoked once per connection teardown.
func (s *Server) OnDisconnect(fn func(client *Client)) {
	s.onDisconnect = fn
}

// HandleWebSocket upgrades an HTTP connection and starts its read/write
// pumps. The token query parameter authenticates the connection; the
// Clock Service is the one method callable without it (enforced at
// routing, not here, since TimingSync still needs a connection to ride
// on).
func (s *Server) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("failed to upgrade connection", err)
		return
	}

	var userID uuid.UUID
	if token := r.URL.Query().Get("token"); token != "" {
		claims, err := s.authVerifier.ValidateToken(token)
		if err != nil {
			s.logger.Warn("invalid token", "error", err)
		} else if id, err := uuid.Parse(claims.UserID); err == nil {
			userID = id
		}
	}

	client := NewClient(uuid.New(), userID, s, conn, s.logger.Named("client"))
	s.register <- client

	go client.readPump()
	go client.writePump()

	s.logger.Info("websocket connection established", "clientID", client.ID, "userID", client.UserID)
}

// ClientCount returns the number of currently connected clients.
func (s *Server) ClientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// BroadcastShutdownNotice pushes a notification to every connected client
// directly (bypassing the per-room hub) so it reaches clients even if
// their room's pump has already been torn down.
func (s *Server) BroadcastShutdownNotice(method string, params any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for client := range s.clients {
		client.SendNotification(method, params)
	}
}

// Shutdown gracefully closes every connection, bounded by ctx.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down rpc server")

	s.mu.Lock()
	clients := make([]*Client, 0, len(s.clients))
	for client := range s.clients {
		clients = append(clients, client)
	}
	s.mu.Unlock()

	for _, client := range clients {
		client.conn.Close()
	}

	select {
	case <-ctx.Done():
	case <-time.After(200 * time.Millisecond):
	}
	return nil
}
