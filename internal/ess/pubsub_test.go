package ess

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"listenify.dev/syncengine/internal/models"
)

func TestPublishSubscribeRoundTrip(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	roomID := uuid.New()

	sub, err := c.Subscribe(ctx, roomID)
	require.NoError(t, err)
	defer sub.Close()

	ev := models.RoomStatusUpdateEvent{Status: models.RoomStatusActive, Reason: "test"}
	require.NoError(t, c.Publish(ctx, roomID, ev))

	select {
	case got := <-sub.Events:
		assert.Equal(t, ev.EventType(), got.EventType())
	case <-time.After(time.Second):
		t.Fatal("did not receive published event")
	}
}

func TestChannelRoomIDRoundTrip(t *testing.T) {
	roomID := uuid.New()
	id, ok := channelRoomID(updatesChannel(roomID))
	require.True(t, ok)
	assert.Equal(t, roomID, id)

	_, ok = channelRoomID("not-a-room-channel")
	assert.False(t, ok)
}
