// Package methods contains RPC method handlers for the application.
package methods

import (
	"context"

	"github.com/google/uuid"

	"listenify.dev/syncengine/internal/models"
	"listenify.dev/syncengine/internal/rpc"
	"listenify.dev/syncengine/internal/roommgr"
	"listenify.dev/syncengine/internal/syncerr"
	"listenify.dev/syncengine/internal/utils"
)

// RoomHandler handles room-lifecycle RPC methods backed by the Room
// Manager (C4).
type RoomHandler struct {
	rooms  *roommgr.Manager
	logger *utils.Logger
}

// NewRoomHandler creates a new RoomHandler.
func NewRoomHandler(rooms *roommgr.Manager, logger *utils.Logger) *RoomHandler {
	return &RoomHandler{rooms: rooms, logger: logger}
}

// RegisterMethods registers all room-related RPC methods.
func (h *RoomHandler) RegisterMethods(hr rpc.HandlerRegistry) {
	auth := hr.Wrap(rpc.AuthMiddleware)
	rpc.Register(auth, rpc.MethodRoomCreate, h.CreateRoom)
	rpc.Register(auth, rpc.MethodRoomJoin, h.JoinRoom)
	rpc.Register(auth, rpc.MethodRoomLeave, h.LeaveRoom)
	rpc.Register(auth, rpc.MethodRoomList, h.ListRooms)
	rpc.Register(auth, rpc.MethodRoomJoinStream, h.JoinRoomStream)
	rpc.Register(auth, rpc.MethodRoomReattachHost, h.ReattachHost)
	rpc.Register(auth, rpc.MethodRoomGetQueue, h.GetQueue)
	rpc.Register(auth, rpc.MethodRoomResolveCode, h.ResolveRoomCode)
}

// CreateRoom creates a new room with the caller as host.
func (h *RoomHandler) CreateRoom(ctx context.Context, client *rpc.Client, p *models.CreateRoomRequest) (any, error) {
	p.HostUserID = client.UserID
	if err := utils.Validate(p); err != nil {
		return nil, syncerr.NewInvalid("invalid room parameters", err)
	}
	room, err := h.rooms.CreateRoom(ctx, *p)
	if err != nil {
		return nil, err
	}
	return room, nil
}

// JoinRoom admits the caller to an ACTIVE room and returns a snapshot.
func (h *RoomHandler) JoinRoom(ctx context.Context, client *rpc.Client, p *RoomIDParam) (any, error) {
	snapshot, err := h.rooms.JoinRoom(ctx, p.RoomID, client.UserID)
	if err != nil {
		return nil, err
	}
	return snapshot, nil
}

// LeaveRoom removes the caller from the room. A host leaving starts the
// reconnect grace window instead of an immediate teardown.
func (h *RoomHandler) LeaveRoom(ctx context.Context, client *rpc.Client, p *RoomIDParam) (any, error) {
	if err := h.rooms.LeaveRoom(ctx, p.RoomID, client.UserID); err != nil {
		return nil, err
	}
	return true, nil
}

// ReattachHost cancels a pending host-grace timer, used when the original
// host opens a new connection within the grace window.
func (h *RoomHandler) ReattachHost(ctx context.Context, client *rpc.Client, p *RoomIDParam) (any, error) {
	if err := h.rooms.ReattachHost(ctx, p.RoomID, client.UserID); err != nil {
		return nil, err
	}
	return true, nil
}

// ListRoomsParams represents the parameters for the ListRooms method.
type ListRoomsParams struct {
	Visibility     *models.RoomVisibility `json:"visibility,omitempty"`
	PageSize       int                    `json:"pageSize,omitempty"`
	ContinuationID *uuid.UUID             `json:"continuationId,omitempty"`
}

// ListRooms lists ACTIVE rooms, paginated by id.
func (h *RoomHandler) ListRooms(ctx context.Context, client *rpc.Client, p *ListRoomsParams) (any, error) {
	pageSize := p.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}
	rooms, err := h.rooms.ListRooms(ctx, models.ListRoomsFilter{
		Visibility:     p.Visibility,
		PageSize:       pageSize,
		ContinuationID: p.ContinuationID,
	})
	if err != nil {
		return nil, err
	}
	return rooms, nil
}

// ResolveRoomCodeParams represents the parameters for the ResolveRoomCode method.
type ResolveRoomCodeParams struct {
	Code string `json:"code"`
}

// ResolveRoomCode resolves a shareable room code to a room id, for callers
// joining by code rather than id.
func (h *RoomHandler) ResolveRoomCode(ctx context.Context, client *rpc.Client, p *ResolveRoomCodeParams) (any, error) {
	roomID, err := h.rooms.ResolveRoomCode(ctx, p.Code)
	if err != nil {
		return nil, err
	}
	return struct {
		RoomID uuid.UUID `json:"roomId"`
	}{RoomID: roomID}, nil
}

// GetQueue returns the room's current queue.
func (h *RoomHandler) GetQueue(ctx context.Context, client *rpc.Client, p *RoomIDParam) (any, error) {
	queue, err := h.rooms.GetQueue(ctx, p.RoomID)
	if err != nil {
		return nil, err
	}
	return queue, nil
}

// JoinRoomStream attaches the calling connection to the room's Stream Hub
// and returns a fresh snapshot to reconcile against. It does not admit the
// caller as a member — callers join first, then attach their stream.
func (h *RoomHandler) JoinRoomStream(ctx context.Context, client *rpc.Client, p *RoomIDParam) (any, error) {
	snapshot, err := h.rooms.Snapshot(ctx, p.RoomID)
	if err != nil {
		return nil, err
	}
	if err := client.AttachRoom(p.RoomID); err != nil {
		return nil, err
	}
	return snapshot, nil
}

// HandleDisconnect handles cleanup when a connection drops without an
// explicit leave. Any currently attached room's stream is detached by the
// client itself; here we additionally run the same leave path as an
// explicit room.leave so a disconnected host's grace timer arms.
func (h *RoomHandler) HandleDisconnect(ctx context.Context, client *rpc.Client) {
	roomID, ok := client.RoomID()
	if !ok {
		return
	}
	if err := h.rooms.LeaveRoom(ctx, roomID, client.UserID); err != nil {
		h.logger.Warn("leave-on-disconnect failed", "roomId", roomID, "userId", client.UserID, "error", err)
	}
}
