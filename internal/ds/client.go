// Package ds is the Durable Store (C3): the MongoDB-backed system of record
// for room identity, membership, playback state, queue contents, and the
// append-only playback event log.
package ds

import (
	"context"
	"time"

	"github.com/sony/gobreaker"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"

	"listenify.dev/syncengine/internal/config"
	"listenify.dev/syncengine/internal/syncerr"
	"listenify.dev/syncengine/internal/utils"
)

// Collection names.
const (
	RoomsCollection    = "rooms"
	MembersCollection  = "room_members"
	PlaybackCollection = "playback_state"
	QueueCollection    = "room_queue"
	EventLogCollection = "playback_event_log"
)

// Client wraps the MongoDB client. It builds a circuit breaker (see
// withBreaker), but the repository calls in this package and Ping do not
// go through it, so durable-store calls are not failed fast while the
// database is down.
type Client struct {
	client   *mongo.Client
	database string
	logger   *utils.Logger
	breaker  *gobreaker.CircuitBreaker
}

// NewClient connects to MongoDB and returns a ready-to-use Client.
func NewClient(cfg *config.Config, logger *utils.Logger) (*Client, error) {
	if logger == nil {
		logger = utils.GetLogger()
	}

	clientOptions := options.Client().
		ApplyURI(cfg.Database.MongoDB.URI).
		SetMaxPoolSize(cfg.Database.MongoDB.MaxPoolSize).
		SetMinPoolSize(cfg.Database.MongoDB.MinPoolSize).
		SetMaxConnIdleTime(cfg.Database.MongoDB.MaxIdleTime)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Database.MongoDB.Timeout)
	defer cancel()

	client, err := mongo.Connect(clientOptions)
	if err != nil {
		logger.Error("failed to connect to MongoDB", err)
		return nil, syncerr.NewTransient("connect to durable store", err)
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		logger.Error("failed to ping MongoDB", err)
		return nil, syncerr.NewTransient("ping durable store", err)
	}

	logger.Info("connected to durable store", "uri", cfg.Database.MongoDB.URI, "database", cfg.Database.MongoDB.Database)

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "ds",
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})

	return &Client{
		client:   client,
		database: cfg.Database.MongoDB.Database,
		logger:   logger.Named("ds"),
		breaker:  breaker,
	}, nil
}

// Database returns the underlying MongoDB database handle.
func (c *Client) Database() *mongo.Database {
	return c.client.Database(c.database)
}

// Collection returns a MongoDB collection handle.
func (c *Client) Collection(name string) *mongo.Collection {
	return c.Database().Collection(name)
}

// Disconnect closes the MongoDB connection.
func (c *Client) Disconnect(ctx context.Context) error {
	if err := c.client.Disconnect(ctx); err != nil {
		c.logger.Error("failed to disconnect from durable store", err)
		return err
	}
	c.logger.Info("disconnected from durable store")
	return nil
}

// WithTransaction executes fn within a MongoDB transaction, used by
// multi-document operations (create_room, leave_room, update_playback,
// queue_add, queue_remove) that must not be observed partially applied.
func (c *Client) WithTransaction(ctx context.Context, fn func(sessCtx context.Context) (any, error)) (any, error) {
	session, err := c.client.StartSession()
	if err != nil {
		return nil, syncerr.NewTransient("start durable store session", err)
	}
	defer session.EndSession(ctx)

	result, err := session.WithTransaction(ctx, fn)
	if err != nil {
		return nil, err
	}
	return result, nil
}

// withBreaker wraps a durable-store call with the circuit breaker and
// classifies a breaker trip as Transient regardless of the wrapped error.
func (c *Client) withBreaker(ctx context.Context, fn func(ctx context.Context) (any, error)) (any, error) {
	result, err := c.breaker.Execute(func() (any, error) {
		return fn(ctx)
	})
	if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
		return nil, syncerr.NewTransient("durable store circuit open", err)
	}
	return result, err
}

// Ping reports whether MongoDB is reachable, used by the health service.
func (c *Client) Ping(ctx context.Context) error {
	return c.client.Ping(ctx, readpref.Primary())
}
