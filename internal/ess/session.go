package ess

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/samber/lo"

	"listenify.dev/syncengine/internal/models"
	"listenify.dev/syncengine/internal/syncerr"
)

// sessionExpiry bounds how long an abandoned room session survives in the
// store if the room coordinator never cleans it up (e.g. process crash).
const sessionExpiry = 24 * time.Hour

// roomInfo is the small always-present record keyed per room.
type roomInfo struct {
	Status       string    `json:"status"`
	HostID       uuid.UUID `json:"hostId"`
	HostOnline   bool      `json:"hostOnline"`
	LastActivity time.Time `json:"lastActivity"`
}

func infoKey(roomID uuid.UUID) string    { return fmt.Sprintf("room:%s:info", roomID) }
func playbackKey(roomID uuid.UUID) string { return fmt.Sprintf("room:%s:playback", roomID) }
func membersKey(roomID uuid.UUID) string  { return fmt.Sprintf("room:%s:members", roomID) }
func userRoomsKey(userID uuid.UUID) string { return fmt.Sprintf("user:%s:rooms", userID) }

// CreateRoomSession atomically sets up a room's ephemeral session: status
// ACTIVE, an empty member set, and initial playback {PAUSED, position 0}.
func (c *Client) CreateRoomSession(ctx context.Context, roomID, hostID uuid.UUID) error {
	now := time.Now()
	info := roomInfo{Status: string(models.RoomStatusActive), HostID: hostID, HostOnline: true, LastActivity: now}
	playback := models.PlaybackState{RoomID: roomID, Status: models.PlaybackPaused, PositionMs: 0, UpdatedAt: now}

	infoData, err := json.Marshal(info)
	if err != nil {
		return syncerr.NewInternal("encode room session info", err)
	}
	playbackData, err := json.Marshal(playback)
	if err != nil {
		return syncerr.NewInternal("encode room session playback", err)
	}
	if err := c.withBreaker(ctx, func() error {
		_, err := c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, infoKey(roomID), infoData, sessionExpiry)
			pipe.Set(ctx, playbackKey(roomID), playbackData, sessionExpiry)
			return nil
		})
		return err
	}); err != nil {
		return syncerr.NewTransient("create room session", err)
	}
	return nil
}

// RoomActive reports whether the room's session marks it ACTIVE.
func (c *Client) RoomActive(ctx context.Context, roomID uuid.UUID) (bool, error) {
	var info roomInfo
	found, err := c.getObject(ctx, infoKey(roomID), &info)
	if err != nil {
		return false, syncerr.NewTransient("read room session info", err)
	}
	return found && info.Status == string(models.RoomStatusActive), nil
}

// HostConnected reports whether the room's host is currently online.
func (c *Client) HostConnected(ctx context.Context, roomID uuid.UUID) (bool, error) {
	var info roomInfo
	found, err := c.getObject(ctx, infoKey(roomID), &info)
	if err != nil {
		return false, syncerr.NewTransient("read room session info", err)
	}
	if !found {
		return false, syncerr.New(syncerr.NotFound, "room session not found", syncerr.ErrRoomNotFound)
	}
	return info.HostOnline, nil
}

// SetHostConnected marks the host as connected or disconnected.
func (c *Client) SetHostConnected(ctx context.Context, roomID uuid.UUID, connected bool) error {
	var info roomInfo
	found, err := c.getObject(ctx, infoKey(roomID), &info)
	if err != nil {
		return syncerr.NewTransient("read room session info", err)
	}
	if !found {
		return syncerr.New(syncerr.NotFound, "room session not found", syncerr.ErrRoomNotFound)
	}
	info.HostOnline = connected
	info.LastActivity = time.Now()
	if err := c.setObject(ctx, infoKey(roomID), info, sessionExpiry); err != nil {
		return syncerr.NewTransient("update room session info", err)
	}
	return nil
}

// SetRoomStatus updates the session's status field, used when the grace
// timer expires and the coordinator marks the room INACTIVE.
func (c *Client) SetRoomStatus(ctx context.Context, roomID uuid.UUID, status models.RoomStatus) error {
	var info roomInfo
	found, err := c.getObject(ctx, infoKey(roomID), &info)
	if err != nil {
		return syncerr.NewTransient("read room session info", err)
	}
	if !found {
		return syncerr.New(syncerr.NotFound, "room session not found", syncerr.ErrRoomNotFound)
	}
	info.Status = string(status)
	info.LastActivity = time.Now()
	return c.setObject(ctx, infoKey(roomID), info, sessionExpiry)
}

// AddMember adds a member to the room's member set and the user's reverse
// index, returning the new member count.
func (c *Client) AddMember(ctx context.Context, roomID, userID uuid.UUID) (int, error) {
	var count int64
	err := c.withBreaker(ctx, func() error {
		pipe := c.rdb.TxPipeline()
		pipe.SAdd(ctx, membersKey(roomID), userID.String())
		pipe.SAdd(ctx, userRoomsKey(userID), roomID.String())
		pipe.Expire(ctx, membersKey(roomID), sessionExpiry)
		pipe.Expire(ctx, userRoomsKey(userID), sessionExpiry)
		card := pipe.SCard(ctx, membersKey(roomID))
		if _, err := pipe.Exec(ctx); err != nil {
			return err
		}
		count = card.Val()
		return nil
	})
	if err != nil {
		return 0, syncerr.NewTransient("add room member", err)
	}
	return int(count), nil
}

// RemoveMember removes a member from the room's member set and the user's
// reverse index, returning the new member count.
func (c *Client) RemoveMember(ctx context.Context, roomID, userID uuid.UUID) (int, error) {
	var count int64
	err := c.withBreaker(ctx, func() error {
		pipe := c.rdb.TxPipeline()
		pipe.SRem(ctx, membersKey(roomID), userID.String())
		pipe.SRem(ctx, userRoomsKey(userID), roomID.String())
		card := pipe.SCard(ctx, membersKey(roomID))
		if _, err := pipe.Exec(ctx); err != nil {
			return err
		}
		count = card.Val()
		return nil
	})
	if err != nil {
		return 0, syncerr.NewTransient("remove room member", err)
	}
	return int(count), nil
}

// MemberCount returns the current size of a room's member set.
func (c *Client) MemberCount(ctx context.Context, roomID uuid.UUID) (int, error) {
	var count int64
	err := c.withBreaker(ctx, func() error {
		var err error
		count, err = c.rdb.SCard(ctx, membersKey(roomID)).Result()
		return err
	})
	if err != nil {
		return 0, syncerr.NewTransient("count room members", err)
	}
	return int(count), nil
}

// UpdatePlayback merges the given fields into the room's playback record
// and bumps UpdatedAt; the caller is responsible for publishing the
// resulting PlaybackUpdate event.
func (c *Client) UpdatePlayback(ctx context.Context, roomID uuid.UUID, fields models.PlaybackUpdateFields) (models.PlaybackState, error) {
	var playback models.PlaybackState
	found, err := c.getObject(ctx, playbackKey(roomID), &playback)
	if err != nil {
		return models.PlaybackState{}, syncerr.NewTransient("read playback state", err)
	}
	if !found {
		return models.PlaybackState{}, syncerr.New(syncerr.NotFound, "playback state not found", syncerr.ErrRoomNotFound)
	}

	if fields.TrackID != nil {
		playback.TrackID = fields.TrackID
	}
	if fields.PositionMs != nil {
		playback.PositionMs = *fields.PositionMs
	}
	if fields.Status != nil {
		playback.Status = *fields.Status
	}
	playback.UpdatedAt = time.Now()

	if err := c.setObject(ctx, playbackKey(roomID), playback, sessionExpiry); err != nil {
		return models.PlaybackState{}, syncerr.NewTransient("write playback state", err)
	}
	return playback, nil
}

// Snapshot assembles a consistent point-in-time view of a room's session:
// identity info, playback state, member set, and count.
func (c *Client) Snapshot(ctx context.Context, roomID uuid.UUID) (info roomInfo, playback models.PlaybackState, members []uuid.UUID, err error) {
	foundInfo, err := c.getObject(ctx, infoKey(roomID), &info)
	if err != nil {
		return roomInfo{}, models.PlaybackState{}, nil, syncerr.NewTransient("read room session info", err)
	}
	if !foundInfo {
		return roomInfo{}, models.PlaybackState{}, nil, syncerr.New(syncerr.NotFound, "room session not found", syncerr.ErrRoomNotFound)
	}

	if _, err := c.getObject(ctx, playbackKey(roomID), &playback); err != nil {
		return roomInfo{}, models.PlaybackState{}, nil, syncerr.NewTransient("read playback state", err)
	}

	var rawMembers []string
	execErr := c.withBreaker(ctx, func() error {
		var err error
		rawMembers, err = c.rdb.SMembers(ctx, membersKey(roomID)).Result()
		return err
	})
	if execErr != nil {
		return roomInfo{}, models.PlaybackState{}, nil, syncerr.NewTransient("read room members", execErr)
	}

	// Redis set members are untyped strings; drop any that aren't
	// well-formed ids rather than let one bad entry fail the whole
	// snapshot.
	members = lo.FilterMap(rawMembers, func(raw string, _ int) (uuid.UUID, bool) {
		id, err := uuid.Parse(raw)
		return id, err == nil
	})

	return info, playback, members, nil
}
