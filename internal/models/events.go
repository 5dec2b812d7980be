package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// RoomEvent is the sum type published on a room's `updates` ESS channel.
// The wire format is a tagged JSON object (Type discriminates) whose
// variant fields sit nested under `data` rather than flat beside `type`,
// while internal handling uses the closed Go variant set below.
type RoomEvent interface {
	// EventType returns the wire discriminator for this variant.
	EventType() string
	isRoomEvent()
}

const (
	EventTypeMemberJoin      = "MEMBER_JOIN"
	EventTypeMemberLeave     = "MEMBER_LEAVE"
	EventTypePlaybackUpdate  = "PLAYBACK_UPDATE"
	EventTypeHostDisconnect  = "HOST_DISCONNECTED"
	EventTypeQueueUpdate     = "QUEUE_UPDATE"
	EventTypeRoomStatus      = "ROOM_STATUS_UPDATE"
)

type MemberJoinEvent struct {
	UserID      uuid.UUID `json:"userId"`
	MemberCount int       `json:"memberCount"`
}

func (MemberJoinEvent) EventType() string { return EventTypeMemberJoin }
func (MemberJoinEvent) isRoomEvent()      {}

type MemberLeaveEvent struct {
	UserID      uuid.UUID `json:"userId"`
	MemberCount int       `json:"memberCount"`
}

func (MemberLeaveEvent) EventType() string { return EventTypeMemberLeave }
func (MemberLeaveEvent) isRoomEvent()      {}

// PlaybackUpdateEvent carries only the subset of fields that changed.
type PlaybackUpdateEvent struct {
	TrackID    *uuid.UUID      `json:"trackId,omitempty"`
	PositionMs *int64          `json:"positionMs,omitempty"`
	Status     *PlaybackStatus `json:"status,omitempty"`
}

func (PlaybackUpdateEvent) EventType() string { return EventTypePlaybackUpdate }
func (PlaybackUpdateEvent) isRoomEvent()      {}

type HostDisconnectedEvent struct {
	UserID         uuid.UUID `json:"userId"`
	TimeoutSeconds int       `json:"timeoutSeconds"`
}

func (HostDisconnectedEvent) EventType() string { return EventTypeHostDisconnect }
func (HostDisconnectedEvent) isRoomEvent()      {}

type QueueAction string

const (
	QueueActionAdd    QueueAction = "add"
	QueueActionRemove QueueAction = "remove"
)

type QueueUpdateEvent struct {
	Action   QueueAction `json:"action"`
	Position int         `json:"position"`
	TrackID  *uuid.UUID  `json:"trackId,omitempty"`
}

func (QueueUpdateEvent) EventType() string { return EventTypeQueueUpdate }
func (QueueUpdateEvent) isRoomEvent()      {}

type RoomStatusUpdateEvent struct {
	Status RoomStatus `json:"status"`
	Reason string     `json:"reason"`
}

func (RoomStatusUpdateEvent) EventType() string { return EventTypeRoomStatus }
func (RoomStatusUpdateEvent) isRoomEvent()      {}

// envelope is the single wire format shared by publisher and subscriber: a
// tagged JSON object with type, roomId and timestamp at the top level and
// the variant's own fields nested, not flattened, under data.
type envelope struct {
	Type      string          `json:"type"`
	RoomID    uuid.UUID       `json:"roomId"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// EncodeRoomEvent serializes a RoomEvent into the single wire format used
// between ESS publisher and subscriber.
func EncodeRoomEvent(roomID uuid.UUID, ev RoomEvent, at time.Time) ([]byte, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("encode room event payload: %w", err)
	}
	return json.Marshal(envelope{Type: ev.EventType(), RoomID: roomID, Timestamp: at, Data: data})
}

// DecodeRoomEvent parses the single wire format back into a RoomEvent,
// the room id it belongs to, and the publish timestamp. UUIDs are decoded
// from their canonical textual form; an unrecognized type is a fatal
// integration bug, surfaced as an error rather than silently dropped.
func DecodeRoomEvent(raw []byte) (uuid.UUID, RoomEvent, time.Time, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return uuid.Nil, nil, time.Time{}, fmt.Errorf("decode room event envelope: %w", err)
	}

	var ev RoomEvent
	switch env.Type {
	case EventTypeMemberJoin:
		var v MemberJoinEvent
		if err := json.Unmarshal(env.Data, &v); err != nil {
			return uuid.Nil, nil, time.Time{}, err
		}
		ev = v
	case EventTypeMemberLeave:
		var v MemberLeaveEvent
		if err := json.Unmarshal(env.Data, &v); err != nil {
			return uuid.Nil, nil, time.Time{}, err
		}
		ev = v
	case EventTypePlaybackUpdate:
		var v PlaybackUpdateEvent
		if err := json.Unmarshal(env.Data, &v); err != nil {
			return uuid.Nil, nil, time.Time{}, err
		}
		ev = v
	case EventTypeHostDisconnect:
		var v HostDisconnectedEvent
		if err := json.Unmarshal(env.Data, &v); err != nil {
			return uuid.Nil, nil, time.Time{}, err
		}
		ev = v
	case EventTypeQueueUpdate:
		var v QueueUpdateEvent
		if err := json.Unmarshal(env.Data, &v); err != nil {
			return uuid.Nil, nil, time.Time{}, err
		}
		ev = v
	case EventTypeRoomStatus:
		var v RoomStatusUpdateEvent
		if err := json.Unmarshal(env.Data, &v); err != nil {
			return uuid.Nil, nil, time.Time{}, err
		}
		ev = v
	default:
		return uuid.Nil, nil, time.Time{}, fmt.Errorf("unknown room event type %q", env.Type)
	}

	return env.RoomID, ev, env.Timestamp, nil
}
