// Package methods contains RPC method handlers for the application.
package methods

import (
	"listenify.dev/syncengine/internal/config"
	"listenify.dev/syncengine/internal/ess"
	"listenify.dev/syncengine/internal/readiness"
	"listenify.dev/syncengine/internal/rpc"
	"listenify.dev/syncengine/internal/roommgr"
	"listenify.dev/syncengine/internal/utils"
)

// RegisterAllMethods initializes all RPC method handlers and registers
// them with the router. It returns the room handler so the caller can wire
// it into the server's disconnect callback.
func RegisterAllMethods(
	router *rpc.Router,
	rooms *roommgr.Manager,
	essClient *ess.Client,
	tracker *readiness.Tracker,
	metrics rpc.RPCMetricsRecorder,
	cfg *config.Config,
	logger *utils.Logger,
) *RoomHandler {
	roomHandler := NewRoomHandler(rooms, logger)
	queueHandler := NewQueueHandler(rooms, logger)
	syncHandler := NewSyncHandler(rooms, essClient, tracker, cfg, logger)

	hr := router.Wrap(rpc.RecoveryMiddleware(logger)).Wrap(rpc.LoggingMiddleware(logger)).Wrap(rpc.MetricsMiddleware(metrics))

	RegisterClockMethod(hr)
	roomHandler.RegisterMethods(hr)
	queueHandler.RegisterMethods(hr)
	syncHandler.RegisterMethods(hr)

	logger.Info("registered all rpc methods")
	return roomHandler
}
