// Package ess is the Ephemeral State Store (C2): a Redis-backed key-value
// and pub/sub layer holding per-room session state (host presence, member
// set, current playback) that does not need to survive a full restart, plus
// the room `updates` channels used to fan out RoomEvents.
package ess

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sony/gobreaker"

	"listenify.dev/syncengine/internal/config"
	"listenify.dev/syncengine/internal/syncerr"
	"listenify.dev/syncengine/internal/utils"
)

// Client wraps the Redis client with typed helpers and a circuit breaker,
// the Transient error kind: one retry, then fail fast.
type Client struct {
	rdb     *redis.Client
	logger  *utils.Logger
	breaker *gobreaker.CircuitBreaker
}

// NewClient creates a new ESS client.
func NewClient(cfg *config.Config, logger *utils.Logger) (*Client, error) {
	if logger == nil {
		logger = utils.GetLogger()
	}

	opts := &redis.Options{
		Addr:         cfg.Database.Redis.Addresses[0],
		Username:     cfg.Database.Redis.Username,
		Password:     cfg.Database.Redis.Password,
		DB:           cfg.Database.Redis.Database,
		MaxRetries:   cfg.Database.Redis.MaxRetries,
		PoolSize:     cfg.Database.Redis.PoolSize,
		MinIdleConns: cfg.Database.Redis.MinIdleConns,
		DialTimeout:  cfg.Database.Redis.DialTimeout,
		ReadTimeout:  cfg.Database.Redis.ReadTimeout,
		WriteTimeout: cfg.Database.Redis.WriteTimeout,
		IdleTimeout:  cfg.Database.Redis.IdleTimeout,
	}

	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Error("failed to connect to ephemeral state store", err, "addr", opts.Addr)
		return nil, syncerr.NewTransient("connect to ephemeral state store", err)
	}

	logger.Info("connected to ephemeral state store", "addr", opts.Addr, "db", opts.DB)

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "ess",
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})

	return &Client{rdb: rdb, logger: logger.Named("ess"), breaker: breaker}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	if err := c.rdb.Close(); err != nil {
		c.logger.Error("failed to close ephemeral state store connection", err)
		return err
	}
	return nil
}

// Ping reports whether the store is reachable, used by the health service.
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// transientRetryBackoff is the pause before the single retry in withBreaker.
const transientRetryBackoff = 50 * time.Millisecond

// withBreaker runs fn through the circuit breaker, retrying once on a
// Transient-classified failure before surfacing it.
func (c *Client) withBreaker(ctx context.Context, fn func() error) error {
	err := utils.Retry(2, transientRetryBackoff, func() error {
		_, err := c.breaker.Execute(func() (any, error) {
			if err := fn(); err != nil {
				return nil, err
			}
			return nil, nil
		})
		return err
	})
	if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
		return syncerr.NewTransient("ephemeral state store circuit open", err)
	}
	return err
}

func (c *Client) setObject(ctx context.Context, key string, value any, expiry time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.withBreaker(ctx, func() error {
		return c.rdb.Set(ctx, key, data, expiry).Err()
	})
}

func (c *Client) getObject(ctx context.Context, key string, dest any) (bool, error) {
	var data string
	err := c.withBreaker(ctx, func() error {
		var getErr error
		data, getErr = c.rdb.Get(ctx, key).Result()
		if getErr == redis.Nil {
			return nil
		}
		return getErr
	})
	if err != nil {
		return false, err
	}
	if data == "" {
		return false, nil
	}
	return true, json.Unmarshal([]byte(data), dest)
}
