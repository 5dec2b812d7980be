package hub

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"listenify.dev/syncengine/internal/ess"
	"listenify.dev/syncengine/internal/models"
	"listenify.dev/syncengine/internal/utils"
)

// Encoder renders a RoomEvent into the transport's wire frame. The hub
// package stays transport-agnostic; the caller supplies the JSON-RPC
// notification envelope.
type Encoder func(roomID uuid.UUID, ev models.RoomEvent, at time.Time) ([]byte, error)

type roomPump struct {
	hub    *RoomHub
	cancel context.CancelFunc
}

// MetricsRecorder receives Stream Hub broadcast and reap counts. Satisfied
// by *system.MetricsService without importing it here, keeping the hub
// package free of a dependency on the services layer.
type MetricsRecorder interface {
	IncHubBroadcast(eventType string)
	IncHubSubscriberReaped(reason string)
}

// Registry owns one RoomHub plus its ESS subscription pump per room with
// at least one attached subscriber, constructed lazily on first Attach and
// torn down once the last subscriber Detaches.
type Registry struct {
	mu       sync.Mutex
	rooms    map[uuid.UUID]*roomPump
	ess      *ess.Client
	encode   Encoder
	capacity int
	metrics  MetricsRecorder
	logger   *utils.Logger
}

// NewRegistry creates an empty hub registry. metrics may be nil, in which
// case broadcast and reap counts are simply not recorded.
func NewRegistry(essClient *ess.Client, encode Encoder, capacity int, metrics MetricsRecorder, logger *utils.Logger) *Registry {
	return &Registry{
		rooms:    make(map[uuid.UUID]*roomPump),
		ess:      essClient,
		encode:   encode,
		capacity: capacity,
		metrics:  metrics,
		logger:   logger.Named("hub_registry"),
	}
}

// Attach subscribes connID to roomID's updates, starting the room's ESS
// subscription pump if this is the first subscriber. It returns the
// outbound frame channel and a close-reason channel, mirroring
// RoomHub.Attach.
func (r *Registry) Attach(roomID, connID uuid.UUID) (<-chan []byte, <-chan string, error) {
	r.mu.Lock()
	p, ok := r.rooms[roomID]
	if !ok {
		sub, err := r.ess.Subscribe(context.Background(), roomID)
		if err != nil {
			r.mu.Unlock()
			return nil, nil, err
		}
		pumpCtx, cancel := context.WithCancel(context.Background())
		h := NewRoomHub(roomID, r.capacity, r.logger)
		if r.metrics != nil {
			h.SetReapHook(r.metrics.IncHubSubscriberReaped)
		}
		p = &roomPump{hub: h, cancel: cancel}
		r.rooms[roomID] = p
		go r.pump(pumpCtx, roomID, sub, h)
	}
	r.mu.Unlock()

	send, reason := p.hub.Attach(connID)
	return send, reason, nil
}

// pump drains a room's ESS subscription and broadcasts each event to the
// room's hub until ctx is cancelled (on last-subscriber teardown) or the
// subscription itself closes.
func (r *Registry) pump(ctx context.Context, roomID uuid.UUID, sub *ess.Subscription, h *RoomHub) {
	defer sub.Close()
	for {
		select {
		case ev, ok := <-sub.Events:
			if !ok {
				return
			}
			payload, err := r.encode(roomID, ev, time.Now())
			if err != nil {
				r.logger.Error("failed to encode room event", err, "room", roomID)
				continue
			}
			if r.metrics != nil {
				r.metrics.IncHubBroadcast(ev.EventType())
			}
			h.Broadcast(payload)
		case <-ctx.Done():
			return
		}
	}
}

// Detach removes connID from roomID's hub, tearing the room's pump down
// once the last subscriber has left.
func (r *Registry) Detach(roomID, connID uuid.UUID) {
	r.mu.Lock()
	p, ok := r.rooms[roomID]
	r.mu.Unlock()
	if !ok {
		return
	}
	p.hub.Detach(connID)

	r.mu.Lock()
	defer r.mu.Unlock()
	if p.hub.Count() == 0 {
		delete(r.rooms, roomID)
		p.cancel()
	}
}

// Shutdown tears down every room's pump, used on server shutdown.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, p := range r.rooms {
		p.cancel()
		delete(r.rooms, id)
	}
}
