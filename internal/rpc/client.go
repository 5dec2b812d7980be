// Package rpc provides WebSocket-based RPC functionality.
package rpc

import (
	"bytes"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"listenify.dev/syncengine/internal/utils"
)

// Client represents one persistent WebSocket connection. A connection may
// be attached to at most one room's stream at a time.
type Client struct {
	ID     uuid.UUID
	UserID uuid.UUID

	server *Server
	conn   *websocket.Conn
	send   chan []byte
	logger *utils.Logger

	mu          sync.RWMutex
	closed      bool
	connected   bool
	fatal       bool
	lastPing    time.Time
	roomID      *uuid.UUID
	connectedAt time.Time

	done chan struct{}
}

// NewClient creates a new client for an authenticated WebSocket connection.
func NewClient(id, userID uuid.UUID, server *Server, conn *websocket.Conn, logger *utils.Logger) *Client {
	return &Client{
		ID:          id,
		UserID:      userID,
		server:      server,
		conn:        conn,
		send:        make(chan []byte, 64),
		logger:      logger,
		connected:   true,
		lastPing:    time.Now(),
		connectedAt: time.Now(),
		done:        make(chan struct{}),
	}
}

func (c *Client) isConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected && !c.closed
}

// markFatal flags the connection to be closed once the in-flight
// response has been flushed, used by RecoveryMiddleware: a panic in one
// connection's handler closes that connection only.
func (c *Client) markFatal() {
	c.mu.Lock()
	c.fatal = true
	c.mu.Unlock()
}

func (c *Client) isFatal() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.fatal
}

func (c *Client) markAsClosed() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

// safelySendMessage enqueues message for writePump, using a non-blocking
// send so a slow connection never stalls its own handler goroutine.
func (c *Client) safelySendMessage(message []byte) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- message:
		return true
	default:
		c.logger.Warn("client send queue full, dropping message", "clientID", c.ID)
		return false
	}
}

// AttachRoom subscribes this connection to roomID's Stream Hub updates
// and forwards every event frame into the connection's outbound queue
// until the connection closes or the hub reaps it as a slow subscriber.
// Any room stream the connection was already attached to is detached first.
func (c *Client) AttachRoom(roomID uuid.UUID) error {
	c.DetachRoom()
	frames, reason, err := c.server.hubRegistry.Attach(roomID, c.ID)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.roomID = &roomID
	c.mu.Unlock()

	go func() {
		for {
			select {
			case payload, ok := <-frames:
				if !ok {
					return
				}
				c.safelySendMessage(payload)
			case r := <-reason:
				if r != "" {
					c.logger.Warn("stream closed by hub", "client", c.ID, "room", roomID, "reason", r)
					c.conn.Close()
				}
				return
			case <-c.done:
				return
			}
		}
	}()
	return nil
}

// DetachRoom leaves the connection's currently attached room stream, if any.
func (c *Client) DetachRoom() {
	c.mu.Lock()
	roomID := c.roomID
	c.roomID = nil
	c.mu.Unlock()
	if roomID != nil {
		c.server.hubRegistry.Detach(*roomID, c.ID)
	}
}

// RoomID returns the room this connection is attached to, if any.
func (c *Client) RoomID() (uuid.UUID, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.roomID == nil {
		return uuid.Nil, false
	}
	return *c.roomID, true
}

// disconnect tears down the connection's attached room stream and marks
// it disconnected exactly once.
func (c *Client) disconnect() {
	c.mu.Lock()
	if !c.connected {
		c.mu.Unlock()
		return
	}
	c.connected = false
	c.mu.Unlock()

	c.DetachRoom()
	close(c.done)
	c.logger.Info("client disconnected", "clientID", c.ID, "userID", c.UserID)
}

// readPump pumps inbound messages from the WebSocket connection to the
// router, one connection goroutine at a time.
func (c *Client) readPump() {
	defer func() {
		c.disconnect()
		c.server.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(c.server.maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(c.server.pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.mu.Lock()
		c.lastPing = time.Now()
		c.mu.Unlock()
		c.conn.SetReadDeadline(time.Now().Add(c.server.pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Error("unexpected close error", err, "clientID", c.ID)
			}
			break
		}

		message = bytes.TrimSpace(bytes.Replace(message, []byte{'\n'}, []byte{' '}, -1))
		c.handleMessage(message)
		if c.isFatal() {
			break
		}
	}
}

// writePump pumps outbound messages and keepalive pings to the WebSocket
// connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(c.server.pingPeriod)
	defer func() {
		ticker.Stop()
		c.disconnect()
		c.server.unregister <- c
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.server.writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				c.logger.Error("failed to get next writer", err, "clientID", c.ID)
				return
			}
			if _, err := w.Write(message); err != nil {
				c.logger.Error("failed to write message", err, "clientID", c.ID)
				return
			}
			if err := w.Close(); err != nil {
				c.logger.Error("failed to close writer", err, "clientID", c.ID)
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.server.writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logger.Error("failed to write ping message", err, "clientID", c.ID)
				return
			}
		}
	}
}

// handleMessage parses and routes one inbound JSON-RPC message.
func (c *Client) handleMessage(message []byte) {
	var request Request
	if err := json.Unmarshal(message, &request); err != nil {
		c.logger.Error("failed to parse message", err, "message", string(message))
		c.sendErrorResponse(request.ID, ErrParseError, "invalid JSON")
		return
	}

	response := c.server.router.Route(c, &request)
	if response != nil && c.isConnected() {
		responseJSON, err := json.Marshal(response)
		if err != nil {
			c.logger.Error("failed to marshal response", err)
			c.sendErrorResponse(request.ID, ErrInternalError, "failed to marshal response")
			return
		}
		c.safelySendMessage(responseJSON)
	}
}

func (c *Client) sendErrorResponse(id any, code ErrorCode, message string) {
	responseJSON, err := json.Marshal(NewErrorResponse(id, code, message, nil))
	if err != nil {
		c.logger.Error("failed to marshal error response", err)
		return
	}
	c.safelySendMessage(responseJSON)
}

// SendNotification pushes a server-initiated JSON-RPC notification to
// this connection.
func (c *Client) SendNotification(method string, params any) {
	payload, err := json.Marshal(&Notification{JSONRPC: "2.0", Method: method, Params: params})
	if err != nil {
		c.logger.Error("failed to marshal notification", err)
		return
	}
	c.safelySendMessage(payload)
}
