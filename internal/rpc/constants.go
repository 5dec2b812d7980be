// Package rpc provides WebSocket-based RPC functionality.
package rpc

// RPC method names.
const (
	// Clock Service (C1): a stateless unary timing check, the one method
	// callable before authentication.
	MethodTimingSync = "timing.sync"

	// Room Manager (C4)
	MethodRoomCreate       = "room.create"
	MethodRoomJoin         = "room.join"
	MethodRoomLeave        = "room.leave"
	MethodRoomList         = "room.list"
	MethodRoomJoinStream   = "room.joinStream"
	MethodRoomReattachHost = "room.reattachHost"
	MethodRoomGetQueue     = "room.getQueue"
	MethodRoomResolveCode  = "room.resolveCode"

	// Host Command Pipeline (C6) / Member Sync Pipeline (C7)
	MethodSyncHostCommand  = "sync.hostCommand"
	MethodSyncMemberStatus = "sync.memberStatus"

	// Queue
	MethodQueueAdd    = "queue.add"
	MethodQueueRemove = "queue.remove"
)

// Notification methods, pushed from server to client without a request ID.
const (
	// NotificationRoomEvent carries every Stream Hub broadcast: member
	// join/leave, playback updates, host disconnects, queue changes, and
	// room status changes all ride this single notification method, tagged
	// by RoomEvent's own discriminator field.
	NotificationRoomEvent = "room.event"

	// NotificationServerShutdown is pushed to every connection ahead of a
	// graceful shutdown.
	NotificationServerShutdown = "server.shutdown"
)
