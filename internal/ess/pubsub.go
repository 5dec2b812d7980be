package ess

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"listenify.dev/syncengine/internal/models"
	"listenify.dev/syncengine/internal/syncerr"
)

// updatesChannel is the per-room channel name carrying RoomEvents, per
// the channel naming convention `room:{uuid}:updates`.
func updatesChannel(roomID uuid.UUID) string {
	return fmt.Sprintf("room:%s:updates", roomID)
}

// Publish serializes ev to the single wire format and publishes it on the
// room's updates channel, then bumps the session's last-activity stamp.
func (c *Client) Publish(ctx context.Context, roomID uuid.UUID, ev models.RoomEvent) error {
	payload, err := models.EncodeRoomEvent(roomID, ev, time.Now())
	if err != nil {
		return syncerr.NewInternal("encode room event", err)
	}

	if err := c.withBreaker(ctx, func() error {
		return c.rdb.Publish(ctx, updatesChannel(roomID), payload).Err()
	}); err != nil {
		return syncerr.NewTransient("publish room event", err)
	}

	var info roomInfo
	if found, err := c.getObject(ctx, infoKey(roomID), &info); err == nil && found {
		info.LastActivity = time.Now()
		_ = c.setObject(ctx, infoKey(roomID), info, sessionExpiry)
	}
	return nil
}

// Subscription is a single consumer's view of a room's updates channel. The
// consumer is responsible for draining Events; a consumer that stops
// reading stalls only its own subscription, never the publisher.
type Subscription struct {
	Events <-chan models.RoomEvent

	pubsub *goredis.PubSub
	once   sync.Once
}

// Close tears down the subscription. Safe to call more than once.
func (s *Subscription) Close() error {
	var err error
	s.once.Do(func() {
		err = s.pubsub.Close()
	})
	return err
}

// Subscribe opens a scoped subscription to a single room's updates
// channel. Decode failures are logged and dropped rather than delivered,
// since an unparseable frame is an integration bug, not a business event.
func (c *Client) Subscribe(ctx context.Context, roomID uuid.UUID) (*Subscription, error) {
	pubsub := c.rdb.Subscribe(ctx, updatesChannel(roomID))
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, syncerr.NewTransient("subscribe to room updates", err)
	}

	out := make(chan models.RoomEvent, 32)
	go func() {
		defer close(out)
		defer func() {
			if r := recover(); r != nil {
				c.logger.Error("panic in room event dispatch", fmt.Errorf("%v", r), "room", roomID)
			}
		}()

		ch := pubsub.Channel()
		for {
			select {
			case msg, ok := <-ch:
				if !ok {
					return
				}
				_, ev, _, err := models.DecodeRoomEvent([]byte(msg.Payload))
				if err != nil {
					c.logger.Error("failed to decode room event", err, "channel", msg.Channel)
					continue
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	return &Subscription{Events: out, pubsub: pubsub}, nil
}

// channelRoomID extracts the room id from an exact `room:{uuid}:updates`
// channel name.
func channelRoomID(channel string) (uuid.UUID, bool) {
	parts := strings.Split(channel, ":")
	if len(parts) != 3 || parts[0] != "room" || parts[2] != "updates" {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(parts[1])
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}
