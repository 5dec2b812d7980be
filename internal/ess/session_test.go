package ess

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"listenify.dev/syncengine/internal/models"
	"listenify.dev/syncengine/internal/syncerr"
	"listenify.dev/syncengine/internal/utils"
)

// newTestClient wires a Client directly against an in-process miniredis
// instance, bypassing NewClient's config/dial path since tests have no
// real Redis to dial.
func newTestClient(t *testing.T) *Client {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "ess-test",
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool { return counts.ConsecutiveFailures >= 5 },
	})
	return &Client{rdb: rdb, logger: utils.NewLogger(), breaker: breaker}
}

func TestCreateRoomSessionAndSnapshot(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	roomID := uuid.New()
	hostID := uuid.New()

	require.NoError(t, c.CreateRoomSession(ctx, roomID, hostID))

	active, err := c.RoomActive(ctx, roomID)
	require.NoError(t, err)
	assert.True(t, active)

	info, playback, members, err := c.Snapshot(ctx, roomID)
	require.NoError(t, err)
	assert.Equal(t, hostID, info.HostID)
	assert.True(t, info.HostOnline)
	assert.Equal(t, models.PlaybackPaused, playback.Status)
	assert.Zero(t, playback.PositionMs)
	assert.Empty(t, members)
}

func TestAddRemoveMember(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	roomID := uuid.New()
	hostID := uuid.New()
	require.NoError(t, c.CreateRoomSession(ctx, roomID, hostID))

	memberA := uuid.New()
	memberB := uuid.New()

	count, err := c.AddMember(ctx, roomID, memberA)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	count, err = c.AddMember(ctx, roomID, memberB)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	_, _, members, err := c.Snapshot(ctx, roomID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []uuid.UUID{memberA, memberB}, members)

	count, err = c.RemoveMember(ctx, roomID, memberA)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	_, _, members, err = c.Snapshot(ctx, roomID)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{memberB}, members)
}

func TestSnapshotFiltersMalformedMemberIDs(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	roomID := uuid.New()
	hostID := uuid.New()
	require.NoError(t, c.CreateRoomSession(ctx, roomID, hostID))

	valid := uuid.New()
	require.NoError(t, c.rdb.SAdd(ctx, membersKey(roomID), valid.String(), "not-a-uuid").Err())

	_, _, members, err := c.Snapshot(ctx, roomID)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{valid}, members)
}

func TestSnapshotNotFound(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	_, _, _, err := c.Snapshot(ctx, uuid.New())
	require.Error(t, err)
	var serr *syncerr.Err
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, syncerr.NotFound, serr.Kind)
}

func TestSetHostConnectedAndRoomStatus(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	roomID := uuid.New()
	hostID := uuid.New()
	require.NoError(t, c.CreateRoomSession(ctx, roomID, hostID))

	require.NoError(t, c.SetHostConnected(ctx, roomID, false))
	connected, err := c.HostConnected(ctx, roomID)
	require.NoError(t, err)
	assert.False(t, connected)

	require.NoError(t, c.SetRoomStatus(ctx, roomID, models.RoomStatusInactive))
	active, err := c.RoomActive(ctx, roomID)
	require.NoError(t, err)
	assert.False(t, active)
}
