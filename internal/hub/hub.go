// Package hub implements the Stream Hub (C5): per-room fan-out of
// RoomEvents to every attached connection, with a bounded outbound queue
// per subscriber so a slow client cannot stall delivery to the rest of
// the room.
package hub

import (
	"sync"

	"github.com/google/uuid"

	"listenify.dev/syncengine/internal/utils"
)

// subscriber is one connection's outbound view of a room. send is the
// bounded queue of already-encoded wire frames; reason carries the single
// close reason once the subscriber is detached or reaped.
//
// tryEnqueue and close run on different goroutines (the broadcaster and
// the detaching/reaping connection, respectively), so closing send is
// guarded by mu/closed rather than bare sync.Once: Once only makes the
// close body idempotent, it does not stop a send from racing it. This
// mirrors rpc.Client.safelySendMessage/markAsClosed — a send takes the
// read side of the lock and checks closed before writing, close takes
// the write side and only then closes the channel, so a send either
// completes entirely before the close or never starts.
type subscriber struct {
	connID uuid.UUID
	send   chan []byte
	reason chan string

	mu     sync.RWMutex
	closed bool
	once   sync.Once
}

func newSubscriber(connID uuid.UUID, capacity int) *subscriber {
	return &subscriber{
		connID: connID,
		send:   make(chan []byte, capacity),
		reason: make(chan string, 1),
	}
}

// tryEnqueue attempts a non-blocking send; false means the subscriber's
// queue is full (or already closed) and it must be reaped.
func (s *subscriber) tryEnqueue(payload []byte) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return false
	}
	select {
	case s.send <- payload:
		return true
	default:
		return false
	}
}

func (s *subscriber) close(reason string) {
	s.once.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()

		s.reason <- reason
		close(s.reason)
		close(s.send)
	})
}

// RoomHub fans out wire-encoded frames to every subscriber attached to one
// room. At most one RoomHub exists per room at a time, constructed on
// first subscriber and torn down on the last leaving (see Registry).
type RoomHub struct {
	roomID   uuid.UUID
	capacity int
	logger   *utils.Logger

	mu          sync.RWMutex
	subscribers map[uuid.UUID]*subscriber

	onReap func(reason string)
}

// SetReapHook installs a callback invoked once per reaped subscriber, used
// to feed the reap count into metrics without coupling this package to the
// metrics service.
func (h *RoomHub) SetReapHook(fn func(reason string)) {
	h.onReap = fn
}

// NewRoomHub creates an empty hub for roomID with the given per-subscriber
// queue capacity.
func NewRoomHub(roomID uuid.UUID, capacity int, logger *utils.Logger) *RoomHub {
	return &RoomHub{
		roomID:      roomID,
		capacity:    capacity,
		logger:      logger.Named("hub"),
		subscribers: make(map[uuid.UUID]*subscriber),
	}
}

// Attach registers connID and returns its outbound frame channel and a
// channel that yields exactly one close reason (empty string for a
// graceful Detach) when the subscriber stops receiving.
func (h *RoomHub) Attach(connID uuid.UUID) (<-chan []byte, <-chan string) {
	s := newSubscriber(connID, h.capacity)
	h.mu.Lock()
	h.subscribers[connID] = s
	h.mu.Unlock()
	return s.send, s.reason
}

// Detach removes connID without a reaping reason, used when a connection
// closes on its own.
func (h *RoomHub) Detach(connID uuid.UUID) {
	h.mu.Lock()
	s, ok := h.subscribers[connID]
	delete(h.subscribers, connID)
	h.mu.Unlock()
	if ok {
		s.close("")
	}
}

// Broadcast fans payload out to every attached subscriber. A subscriber
// whose queue is already full is reaped with reason "slow_subscriber"
// rather than blocking the broadcaster, so one stuck client never stalls
// delivery to the rest of the room.
func (h *RoomHub) Broadcast(payload []byte) {
	h.mu.RLock()
	subs := make([]*subscriber, 0, len(h.subscribers))
	for _, s := range h.subscribers {
		subs = append(subs, s)
	}
	h.mu.RUnlock()

	for _, s := range subs {
		if !s.tryEnqueue(payload) {
			h.reap(s.connID, "slow_subscriber")
		}
	}
}

func (h *RoomHub) reap(connID uuid.UUID, reason string) {
	h.mu.Lock()
	s, ok := h.subscribers[connID]
	delete(h.subscribers, connID)
	h.mu.Unlock()
	if ok {
		h.logger.Warn("reaping subscriber", "room", h.roomID, "conn", connID, "reason", reason)
		s.close(reason)
		if h.onReap != nil {
			h.onReap(reason)
		}
	}
}

// Count returns the number of currently attached subscribers.
func (h *RoomHub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}
