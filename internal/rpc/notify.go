package rpc

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"listenify.dev/syncengine/internal/models"
)

// roomEventParams is the room.event notification payload: `type`, `roomId`
// and `timestamp` at the top level, with the variant's own fields nested
// under `data`, so a client can read `type` and `roomId` without decoding
// `data`.
type roomEventParams struct {
	Type      string          `json:"type"`
	RoomID    uuid.UUID       `json:"roomId"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// EncodeRoomEventNotification is the hub.Encoder wired into the hub
// registry: it renders a RoomEvent as a room.event JSON-RPC notification,
// the wire format every attached connection actually receives.
func EncodeRoomEventNotification(roomID uuid.UUID, ev models.RoomEvent, at time.Time) ([]byte, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return nil, err
	}
	params := roomEventParams{Type: ev.EventType(), RoomID: roomID, Timestamp: at, Data: data}
	return json.Marshal(&Notification{JSONRPC: "2.0", Method: NotificationRoomEvent, Params: params})
}
