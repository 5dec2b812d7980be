package ds

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// EnsureIndexes creates all indexes the durable store's query patterns rely
// on. Run once at startup.
func EnsureIndexes(ctx context.Context, client *Client) error {
	logger := client.logger.With("operation", "EnsureIndexes")
	logger.Info("ensuring durable store indexes")

	creators := map[string]func(context.Context, *Client) error{
		RoomsCollection:    ensureRoomIndexes,
		MembersCollection:  ensureMemberIndexes,
		QueueCollection:    ensureQueueIndexes,
		EventLogCollection: ensureEventLogIndexes,
	}

	for name, creator := range creators {
		if err := creator(ctx, client); err != nil {
			return fmt.Errorf("create indexes for %s: %w", name, err)
		}
	}

	logger.Info("durable store indexes ready")
	return nil
}

func ensureRoomIndexes(ctx context.Context, client *Client) error {
	_, err := client.Collection(RoomsCollection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "code", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{
				{Key: "status", Value: 1},
				{Key: "visibility", Value: 1},
			},
		},
		{
			Keys: bson.D{{Key: "hostUserId", Value: 1}},
		},
	})
	return err
}

func ensureMemberIndexes(ctx context.Context, client *Client) error {
	_, err := client.Collection(MembersCollection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			// One active membership per (room, user): partial-unique on
			// rows that have not recorded a leave.
			Keys: bson.D{
				{Key: "roomId", Value: 1},
				{Key: "userId", Value: 1},
			},
			Options: options.Index().
				SetUnique(true).
				SetPartialFilterExpression(bson.D{{Key: "leftAt", Value: bson.D{{Key: "$exists", Value: false}}}}),
		},
		{
			Keys: bson.D{{Key: "roomId", Value: 1}},
		},
	})
	return err
}

func ensureQueueIndexes(ctx context.Context, client *Client) error {
	_, err := client.Collection(QueueCollection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "roomId", Value: 1},
				{Key: "position", Value: 1},
			},
			Options: options.Index().SetUnique(true),
		},
	})
	return err
}

func ensureEventLogIndexes(ctx context.Context, client *Client) error {
	_, err := client.Collection(EventLogCollection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "roomId", Value: 1},
				{Key: "createdAt", Value: -1},
			},
		},
	})
	return err
}
