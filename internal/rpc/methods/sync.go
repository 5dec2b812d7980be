// Package methods contains RPC method handlers for the application.
package methods

import (
	"context"
	"time"

	"github.com/google/uuid"

	"listenify.dev/syncengine/internal/config"
	"listenify.dev/syncengine/internal/ess"
	"listenify.dev/syncengine/internal/models"
	"listenify.dev/syncengine/internal/readiness"
	"listenify.dev/syncengine/internal/rpc"
	"listenify.dev/syncengine/internal/roommgr"
	"listenify.dev/syncengine/internal/utils"
)

// ResponseStatus is the outcome field of a host command acknowledgment.
type ResponseStatus string

const (
	ResponseAcknowledged ResponseStatus = "ACKNOWLEDGED"
	ResponseError        ResponseStatus = "ERROR"
)

// SyncHandler handles the Host Command Pipeline (C6) and Member Sync
// Pipeline (C7), both realized as JSON-RPC calls over the same persistent
// connection used for room lifecycle methods.
type SyncHandler struct {
	rooms     *roommgr.Manager
	ess       *ess.Client
	readiness *readiness.Tracker
	window    time.Duration
	logger    *utils.Logger
}

// NewSyncHandler creates a new SyncHandler.
func NewSyncHandler(rooms *roommgr.Manager, essClient *ess.Client, tracker *readiness.Tracker, cfg *config.Config, logger *utils.Logger) *SyncHandler {
	return &SyncHandler{
		rooms:     rooms,
		ess:       essClient,
		readiness: tracker,
		window:    cfg.Room.ReadyStatusFreshness,
		logger:    logger,
	}
}

// RegisterMethods registers the host-command and member-status methods.
func (h *SyncHandler) RegisterMethods(hr rpc.HandlerRegistry) {
	auth := hr.Wrap(rpc.AuthMiddleware)
	rpc.Register(auth, rpc.MethodSyncHostCommand, h.HostCommand)
	rpc.Register(auth, rpc.MethodSyncMemberStatus, h.MemberStatus)
}

// HostCommandParams unions the three host command shapes (TrackCommand,
// PositionUpdate, ControlCommand) into the fields Room Manager's
// UpdatePlayback already accepts as a partial update.
type HostCommandParams struct {
	RoomID     uuid.UUID              `json:"roomId"`
	TrackID    *uuid.UUID             `json:"trackId,omitempty"`
	PositionMs *int64                 `json:"positionMs,omitempty"`
	Status     *models.PlaybackStatus `json:"status,omitempty"`
}

// HostCommandResult acknowledges a host command with the room's current
// member counts.
type HostCommandResult struct {
	Result           ResponseStatus `json:"result"`
	TotalMemberCount int            `json:"totalMemberCount"`
	ReadyMemberCount int            `json:"readyMemberCount"`
}

// HostCommand applies a host's playback command and acknowledges it with
// the room's current total and ready member counts. Validation failures
// surface as a normal JSON-RPC error rather than an ACKNOWLEDGED/ERROR
// result field, consistent with every other method on this connection.
func (h *SyncHandler) HostCommand(ctx context.Context, client *rpc.Client, p *HostCommandParams) (any, error) {
	fields := models.PlaybackUpdateFields{
		TrackID:    p.TrackID,
		PositionMs: p.PositionMs,
		Status:     p.Status,
	}
	if _, err := h.rooms.UpdatePlayback(ctx, p.RoomID, client.UserID, fields); err != nil {
		return nil, err
	}

	total, err := h.ess.MemberCount(ctx, p.RoomID)
	if err != nil {
		return nil, err
	}
	ready := h.readiness.ReadyCount(p.RoomID, h.window, time.Now())

	return HostCommandResult{
		Result:           ResponseAcknowledged,
		TotalMemberCount: total,
		ReadyMemberCount: ready,
	}, nil
}

// MemberStatusParams is one member's periodic sync report.
type MemberStatusParams struct {
	RoomID     uuid.UUID `json:"roomId"`
	PositionMs int64     `json:"positionMs"`
	Ready      bool      `json:"ready"`
	LatencyMs  int64     `json:"latencyMs"`
}

// MemberStatus records a member's ready state into the room's aggregator.
// The member's outbound broadcast queue is registered separately, via
// room.joinStream; this method only ever feeds the aggregator the host
// reads from.
func (h *SyncHandler) MemberStatus(ctx context.Context, client *rpc.Client, p *MemberStatusParams) (any, error) {
	h.readiness.Report(p.RoomID, client.UserID, p.Ready, time.Now())
	return true, nil
}
