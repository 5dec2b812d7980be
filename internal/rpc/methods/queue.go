// Package methods contains RPC method handlers for the application.
package methods

import (
	"context"

	"github.com/google/uuid"

	"listenify.dev/syncengine/internal/rpc"
	"listenify.dev/syncengine/internal/roommgr"
	"listenify.dev/syncengine/internal/utils"
)

// QueueHandler handles room-queue RPC methods.
type QueueHandler struct {
	rooms  *roommgr.Manager
	logger *utils.Logger
}

// NewQueueHandler creates a new QueueHandler.
func NewQueueHandler(rooms *roommgr.Manager, logger *utils.Logger) *QueueHandler {
	return &QueueHandler{rooms: rooms, logger: logger}
}

// RegisterMethods registers all queue-related RPC methods.
func (h *QueueHandler) RegisterMethods(hr rpc.HandlerRegistry) {
	auth := hr.Wrap(rpc.AuthMiddleware)
	rpc.Register(auth, rpc.MethodQueueAdd, h.QueueAdd)
	rpc.Register(auth, rpc.MethodQueueRemove, h.QueueRemove)
}

// QueueAddParams represents the parameters for the QueueAdd method.
type QueueAddParams struct {
	RoomID  uuid.UUID `json:"roomId"`
	TrackID uuid.UUID `json:"trackId"`
}

// QueueAdd appends a track to the room queue. Authorization defaults to
// host-only; config may open it to any member.
func (h *QueueHandler) QueueAdd(ctx context.Context, client *rpc.Client, p *QueueAddParams) (any, error) {
	entry, err := h.rooms.QueueAdd(ctx, p.RoomID, p.TrackID, client.UserID)
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// QueueRemoveParams represents the parameters for the QueueRemove method.
type QueueRemoveParams struct {
	RoomID   uuid.UUID `json:"roomId"`
	Position int       `json:"position"`
}

// QueueRemove deletes a queue entry by position. Always host-only.
func (h *QueueHandler) QueueRemove(ctx context.Context, client *rpc.Client, p *QueueRemoveParams) (any, error) {
	if err := h.rooms.QueueRemove(ctx, p.RoomID, p.Position, client.UserID); err != nil {
		return nil, err
	}
	return true, nil
}
