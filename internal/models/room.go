// Package models contains the data structures shared by the Durable Store,
// Ephemeral State Store, Room Manager, and transport layers.
package models

import (
	"time"

	"github.com/google/uuid"
)

// RoomVisibility is the visibility of a room.
type RoomVisibility string

const (
	VisibilityPublic  RoomVisibility = "PUBLIC"
	VisibilityPrivate RoomVisibility = "PRIVATE"
)

// RoomStatus is the durable lifecycle status of a room. Status only ever
// transitions ACTIVE -> INACTIVE; INACTIVE is terminal. AwaitingHost is not
// a distinct durable status (DS only ever sees ACTIVE or INACTIVE) — it is
// represented purely in the ESS host record and the room coordinator while
// the grace timer runs.
type RoomStatus string

const (
	RoomStatusActive   RoomStatus = "ACTIVE"
	RoomStatusInactive RoomStatus = "INACTIVE"
)

// Room is the durable identity record for a listening-party room.
type Room struct {
	ID          uuid.UUID      `json:"id" bson:"_id"`
	Code        string         `json:"code" bson:"code"`
	Name        string         `json:"name" bson:"name" validate:"required,min=2,max=50"`
	Description string         `json:"description" bson:"description" validate:"max=1000"`
	HostUserID  uuid.UUID      `json:"hostUserId" bson:"hostUserId"`
	Visibility  RoomVisibility `json:"visibility" bson:"visibility" validate:"oneof=PUBLIC PRIVATE"`
	InviteOnly  bool           `json:"inviteOnly" bson:"inviteOnly"`
	Status      RoomStatus     `json:"status" bson:"status"`
	ObjectTimes
}

// MembershipRole is a member's role within a room.
type MembershipRole string

const (
	RoleHost        MembershipRole = "HOST"
	RoleParticipant MembershipRole = "PARTICIPANT"
)

// Membership is the tuple (room id, user id) with role and join/leave time.
// Once LeftAt is set the row is immutable; re-joining creates a new row.
type Membership struct {
	ID       uuid.UUID      `json:"id" bson:"_id"`
	RoomID   uuid.UUID      `json:"roomId" bson:"roomId"`
	UserID   uuid.UUID      `json:"userId" bson:"userId"`
	Role     MembershipRole `json:"role" bson:"role"`
	JoinedAt time.Time      `json:"joinedAt" bson:"joinedAt"`
	LeftAt   *time.Time     `json:"leftAt,omitempty" bson:"leftAt,omitempty"`
}

// Active reports whether the membership row has not yet recorded a leave.
func (m Membership) Active() bool {
	return m.LeftAt == nil
}

// PlaybackStatus is the transport status of a room's current playback.
type PlaybackStatus string

const (
	PlaybackPlaying PlaybackStatus = "PLAYING"
	PlaybackPaused  PlaybackStatus = "PAUSED"
)

// PlaybackState is the one-per-room durable playback record. Position is
// only accurate as of UpdatedAt; while Status is PLAYING the effective
// position must be recomputed on read as
// stored_position + (now - updated_at), never stored continuously.
type PlaybackState struct {
	RoomID      uuid.UUID      `json:"roomId" bson:"roomId"`
	TrackID     *uuid.UUID     `json:"trackId,omitempty" bson:"trackId,omitempty"`
	PositionMs  int64          `json:"positionMs" bson:"positionMs"`
	Status      PlaybackStatus `json:"status" bson:"status"`
	UpdatedAt   time.Time      `json:"updatedAt" bson:"updatedAt"`
}

// EffectivePositionMs returns the playback position adjusted for elapsed
// wall-clock time when the room is playing. ESS and DS both store the same
// raw fields; neither store calls this helper, so positions they return
// are not adjusted for elapsed time.
func (p PlaybackState) EffectivePositionMs(now time.Time) int64 {
	if p.Status != PlaybackPlaying {
		return p.PositionMs
	}
	elapsed := now.Sub(p.UpdatedAt).Milliseconds()
	if elapsed < 0 {
		elapsed = 0
	}
	return p.PositionMs + elapsed
}

// PlaybackUpdateFields is the partial-update payload Room Manager accepts
// for update_playback; a nil field means "leave unchanged".
type PlaybackUpdateFields struct {
	TrackID    *uuid.UUID
	PositionMs *int64
	Status     *PlaybackStatus
}

// QueueEventType is the event-log entry type inferred from a playback
// update.
type QueueEventType string

const (
	EventPlay  QueueEventType = "PLAY"
	EventPause QueueEventType = "PAUSE"
	EventSeek  QueueEventType = "SEEK"
	EventSkip  QueueEventType = "SKIP"
)

// RoomQueueEntry is one row of the dense 1..N room queue.
type RoomQueueEntry struct {
	ID       uuid.UUID `json:"id" bson:"_id"`
	RoomID   uuid.UUID `json:"roomId" bson:"roomId"`
	Position int       `json:"position" bson:"position"`
	TrackID  uuid.UUID `json:"trackId" bson:"trackId"`
	AddedBy  uuid.UUID `json:"addedBy" bson:"addedBy"`
	AddedAt  time.Time `json:"addedAt" bson:"addedAt"`
}

// PlaybackEvent is one append-only audit row. Never mutated.
type PlaybackEvent struct {
	ID        uuid.UUID      `json:"id" bson:"_id"`
	RoomID    uuid.UUID      `json:"roomId" bson:"roomId"`
	UserID    uuid.UUID      `json:"userId" bson:"userId"`
	EventType QueueEventType `json:"eventType" bson:"eventType"`
	Payload   map[string]any `json:"payload" bson:"payload"`
	CreatedAt time.Time      `json:"createdAt" bson:"createdAt"`
}

// RoomSnapshot is a consistent point-in-time view of a room's identity,
// membership, and playback state, returned on stream attach / join.
type RoomSnapshot struct {
	Room        Room          `json:"room"`
	Playback    PlaybackState `json:"playback"`
	MemberCount int           `json:"memberCount"`
	HostOnline  bool          `json:"hostOnline"`
}

// CreateRoomRequest is the input to Room Manager's create operation.
type CreateRoomRequest struct {
	Name        string         `json:"name" validate:"required,min=2,max=50"`
	Description string         `json:"description" validate:"max=1000"`
	HostUserID  uuid.UUID      `json:"hostUserId" validate:"required"`
	Visibility  RoomVisibility `json:"visibility" validate:"required,oneof=PUBLIC PRIVATE"`
	InviteOnly  bool           `json:"inviteOnly"`
}

// ListRoomsFilter narrows list_active_rooms.
type ListRoomsFilter struct {
	Visibility     *RoomVisibility
	HostUserID     *uuid.UUID
	PageSize       int
	ContinuationID *uuid.UUID
}
