// Package roommgr implements the Room Manager (C4): the component that
// composes the Durable Store and Ephemeral State Store into the engine's
// external room-lifecycle API, and the per-room coordinator that
// serializes state-mutating operations against a single room.
package roommgr

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"listenify.dev/syncengine/internal/syncerr"
	"listenify.dev/syncengine/internal/utils"
)

// job is one unit of serialized work submitted to a room's actor.
type job struct {
	fn   func(ctx context.Context) error
	err  error
	done chan struct{}
}

// roomActor is a single room's serialization latch: a goroutine receiving
// jobs on a channel, so that all state-mutating operations against one
// room execute one at a time while unrelated rooms proceed in parallel.
// Shutdown cancels ctx and waits for the goroutine to drain, mirroring the
// ctx/cancel/wg lifecycle of a per-room actor.
type roomActor struct {
	id     uuid.UUID
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	jobs   chan *job

	graceMu    sync.Mutex
	graceTimer *time.Timer
}

func newRoomActor(id uuid.UUID) *roomActor {
	ctx, cancel := context.WithCancel(context.Background())
	a := &roomActor{id: id, ctx: ctx, cancel: cancel, jobs: make(chan *job, 8)}
	a.wg.Add(1)
	go a.run()
	return a
}

func (a *roomActor) run() {
	defer a.wg.Done()
	for {
		select {
		case j := <-a.jobs:
			j.err = j.fn(a.ctx)
			close(j.done)
		case <-a.ctx.Done():
			return
		}
	}
}

// submit enqueues fn and blocks until it has run, returning its error. It
// also returns early if the caller's ctx is cancelled first or the actor
// is shutting down.
func (a *roomActor) submit(ctx context.Context, fn func(context.Context) error) error {
	j := &job{fn: fn, done: make(chan struct{})}
	select {
	case a.jobs <- j:
	case <-a.ctx.Done():
		return syncerr.NewTransient("room coordinator shutting down", a.ctx.Err())
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-j.done:
		return j.err
	case <-a.ctx.Done():
		return syncerr.NewTransient("room coordinator shutting down", a.ctx.Err())
	case <-ctx.Done():
		return ctx.Err()
	}
}

// shutdown cancels the actor's goroutine and waits for it to exit, bounded
// by ctx.
func (a *roomActor) shutdown(ctx context.Context) error {
	a.cancel()
	a.graceMu.Lock()
	if a.graceTimer != nil {
		a.graceTimer.Stop()
		a.graceTimer = nil
	}
	a.graceMu.Unlock()

	done := make(chan struct{})
	go func() {
		defer close(done)
		a.wg.Wait()
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Coordinator owns one roomActor per room with an attached subscriber or
// recent activity, constructed lazily on first use and torn down when a
// room goes INACTIVE.
type Coordinator struct {
	mu     sync.Mutex
	rooms  map[uuid.UUID]*roomActor
	logger *utils.Logger
}

// NewCoordinator creates an empty room coordinator.
func NewCoordinator(logger *utils.Logger) *Coordinator {
	return &Coordinator{rooms: make(map[uuid.UUID]*roomActor), logger: logger.Named("coordinator")}
}

func (c *Coordinator) actor(roomID uuid.UUID) *roomActor {
	c.mu.Lock()
	defer c.mu.Unlock()
	a, ok := c.rooms[roomID]
	if !ok {
		a = newRoomActor(roomID)
		c.rooms[roomID] = a
	}
	return a
}

// Do runs fn serialized against roomID's latch: no other Do call against
// the same room runs concurrently with it.
func (c *Coordinator) Do(ctx context.Context, roomID uuid.UUID, fn func(context.Context) error) error {
	return c.actor(roomID).submit(ctx, fn)
}

// ArmGraceTimer (re)arms the host-disconnect grace timer for roomID using
// an absolute deadline, so missed ticks under scheduler pressure cannot
// extend the window. onExpire runs in its own goroutine, not on the room's
// serialization latch, so it is free to call Do itself.
func (c *Coordinator) ArmGraceTimer(roomID uuid.UUID, window time.Duration, onExpire func()) {
	a := c.actor(roomID)
	a.graceMu.Lock()
	defer a.graceMu.Unlock()

	if a.graceTimer != nil {
		a.graceTimer.Stop()
	}
	deadline := time.Now().Add(window)
	a.graceTimer = time.AfterFunc(time.Until(deadline), func() {
		select {
		case <-a.ctx.Done():
			return
		default:
		}
		onExpire()
	})
}

// CancelGraceTimer stops roomID's grace timer, if one is armed, used on
// host reattach.
func (c *Coordinator) CancelGraceTimer(roomID uuid.UUID) {
	a := c.actor(roomID)
	a.graceMu.Lock()
	defer a.graceMu.Unlock()
	if a.graceTimer != nil {
		a.graceTimer.Stop()
		a.graceTimer = nil
	}
}

// Remove tears down roomID's actor, used once a room reaches INACTIVE.
func (c *Coordinator) Remove(ctx context.Context, roomID uuid.UUID) error {
	c.mu.Lock()
	a, ok := c.rooms[roomID]
	if ok {
		delete(c.rooms, roomID)
	}
	c.mu.Unlock()
	if !ok {
		return nil
	}
	return a.shutdown(ctx)
}

// Shutdown tears down every room actor, used on server shutdown.
func (c *Coordinator) Shutdown(ctx context.Context) {
	c.mu.Lock()
	actors := make([]*roomActor, 0, len(c.rooms))
	for id, a := range c.rooms {
		actors = append(actors, a)
		delete(c.rooms, id)
	}
	c.mu.Unlock()

	for _, a := range actors {
		if err := a.shutdown(ctx); err != nil {
			c.logger.Warn("room actor did not shut down within grace", "roomId", a.id, "error", err)
		}
	}
}
