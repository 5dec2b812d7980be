// Package system provides system-level services for monitoring and maintenance.
package system

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"

	"listenify.dev/syncengine/internal/ds"
	"listenify.dev/syncengine/internal/models"
	"listenify.dev/syncengine/internal/utils"
)

// MaintenanceTask represents a maintenance task to be executed.
type MaintenanceTask struct {
	Name     string
	Interval time.Duration
	LastRun  time.Time
	Fn       func(context.Context) error
}

// MaintenanceConfig contains configuration for the maintenance service.
type MaintenanceConfig struct {
	// Whether to enable automatic maintenance tasks.
	Enabled bool
	// Maximum age of an INACTIVE room's queue and event-log rows before
	// they are pruned.
	InactiveRoomMaxAge time.Duration
	// Interval for running maintenance tasks.
	MaintenanceInterval time.Duration
	// Maximum number of concurrent maintenance tasks.
	MaxConcurrentTasks int
	// Timeout for individual maintenance tasks.
	TaskTimeout time.Duration
}

// DefaultMaintenanceConfig returns the default maintenance configuration.
func DefaultMaintenanceConfig() MaintenanceConfig {
	return MaintenanceConfig{
		Enabled:             true,
		InactiveRoomMaxAge:  7 * 24 * time.Hour,
		MaintenanceInterval: 1 * time.Hour,
		MaxConcurrentTasks:  3,
		TaskTimeout:         30 * time.Minute,
	}
}

// MaintenanceService runs periodic upkeep on the durable store: pruning
// data that has aged out of an INACTIVE room and compacting collections.
// The engine's actual room lifecycle (grace timers, host reattachment) is
// owned entirely by the room coordinator; this service never touches it.
type MaintenanceService struct {
	config MaintenanceConfig
	ds     *ds.Client
	logger *utils.Logger
	tasks  []*MaintenanceTask
	stopCh chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewMaintenanceService creates a new maintenance service.
func NewMaintenanceService(config MaintenanceConfig, dsClient *ds.Client, logger *utils.Logger) *MaintenanceService {
	s := &MaintenanceService{
		config: config,
		ds:     dsClient,
		logger: logger.Named("maintenance_service"),
		stopCh: make(chan struct{}),
		tasks:  make([]*MaintenanceTask, 0),
	}

	s.RegisterTask("inactive_room_cleanup", config.MaintenanceInterval, s.CleanupInactiveRooms)
	s.RegisterTask("database_optimization", 24*time.Hour, s.OptimizeDatabase)

	return s
}

// RegisterTask registers a new maintenance task.
func (s *MaintenanceService) RegisterTask(name string, interval time.Duration, fn func(context.Context) error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	task := &MaintenanceTask{
		Name:     name,
		Interval: interval,
		LastRun:  time.Now().Add(-interval), // schedule to run immediately
		Fn:       fn,
	}
	s.tasks = append(s.tasks, task)
	s.logger.Info("registered maintenance task", "name", name, "interval", interval)
}

// Start starts the maintenance service.
func (s *MaintenanceService) Start(ctx context.Context) error {
	if !s.config.Enabled {
		s.logger.Info("maintenance service is disabled")
		return nil
	}

	s.logger.Info("starting maintenance service")
	ticker := time.NewTicker(1 * time.Minute)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.runDueTasks(ctx)
			case <-s.stopCh:
				s.logger.Info("stopping maintenance service")
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	return nil
}

// Stop stops the maintenance service.
func (s *MaintenanceService) Stop() {
	close(s.stopCh)
	s.wg.Wait()
}

// runDueTasks runs every registered task whose interval has elapsed, using
// a small worker pool so a slow task never delays the others past the
// overall operation timeout.
func (s *MaintenanceService) runDueTasks(ctx context.Context) {
	opCtx, cancel := context.WithTimeout(ctx, 30*time.Minute)
	defer cancel()

	s.mu.Lock()
	var due []*MaintenanceTask
	now := time.Now()
	for _, task := range s.tasks {
		if now.Sub(task.LastRun) >= task.Interval {
			due = append(due, task)
		}
	}
	s.mu.Unlock()

	if len(due) == 0 {
		return
	}
	s.logger.Info("running due maintenance tasks", "count", len(due))

	taskCh := make(chan *MaintenanceTask, len(due))
	var wg sync.WaitGroup
	maxWorkers := s.config.MaxConcurrentTasks
	if maxWorkers <= 0 {
		maxWorkers = 3
	}

	for i := 0; i < maxWorkers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for task := range taskCh {
				s.runOne(opCtx, task, workerID)
			}
		}(i)
	}

	for _, task := range due {
		taskCh <- task
	}
	close(taskCh)
	wg.Wait()
}

func (s *MaintenanceService) runOne(ctx context.Context, task *MaintenanceTask, workerID int) {
	taskCtx, cancel := context.WithTimeout(ctx, s.config.TaskTimeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("panic in maintenance task", fmt.Errorf("%v", r), "task", task.Name, "worker", workerID)
		}
	}()

	s.logger.Debug("worker starting task", "worker", workerID, "task", task.Name)
	if err := task.Fn(taskCtx); err != nil {
		s.logger.Error("maintenance task failed", err, "task", task.Name, "worker", workerID)
		return
	}

	s.mu.Lock()
	task.LastRun = time.Now()
	s.mu.Unlock()
	s.logger.Debug("worker completed task", "worker", workerID, "task", task.Name)
}

// RunAllTasks runs all maintenance tasks immediately, used for an operator
// on-demand trigger.
func (s *MaintenanceService) RunAllTasks(ctx context.Context) error {
	s.mu.Lock()
	tasks := append([]*MaintenanceTask(nil), s.tasks...)
	s.mu.Unlock()

	var errs []error
	for _, task := range tasks {
		if err := task.Fn(ctx); err != nil {
			errs = append(errs, fmt.Errorf("task %s failed: %w", task.Name, err))
			continue
		}
		s.mu.Lock()
		task.LastRun = time.Now()
		s.mu.Unlock()
	}
	if len(errs) > 0 {
		return fmt.Errorf("some maintenance tasks failed: %v", errs)
	}
	return nil
}

// CleanupInactiveRooms prunes queue and event-log rows belonging to rooms
// that have been INACTIVE for longer than InactiveRoomMaxAge. The room and
// membership documents themselves are left in place as the durable
// record; only the high-volume, append-only collections are pruned.
func (s *MaintenanceService) CleanupInactiveRooms(ctx context.Context) error {
	cutoff := time.Now().Add(-s.config.InactiveRoomMaxAge)

	cursor, err := s.ds.Collection(ds.RoomsCollection).Find(ctx, bson.M{
		"status":    models.RoomStatusInactive,
		"updatedAt": bson.M{"$lt": cutoff},
	})
	if err != nil {
		return fmt.Errorf("find inactive rooms: %w", err)
	}
	defer cursor.Close(ctx)

	var rooms []models.Room
	if err := cursor.All(ctx, &rooms); err != nil {
		return fmt.Errorf("decode inactive rooms: %w", err)
	}
	if len(rooms) == 0 {
		return nil
	}

	ids := make([]uuid.UUID, len(rooms))
	for i, room := range rooms {
		ids[i] = room.ID
	}
	filter := bson.M{"roomId": bson.M{"$in": ids}}

	queueResult, err := s.ds.Collection(ds.QueueCollection).DeleteMany(ctx, filter)
	if err != nil {
		return fmt.Errorf("prune queue rows: %w", err)
	}
	eventResult, err := s.ds.Collection(ds.EventLogCollection).DeleteMany(ctx, filter)
	if err != nil {
		return fmt.Errorf("prune event log rows: %w", err)
	}

	s.logger.Info("pruned inactive room data",
		"rooms", len(rooms),
		"queueRows", queueResult.DeletedCount,
		"eventLogRows", eventResult.DeletedCount,
	)
	return nil
}

// OptimizeDatabase runs a compaction pass over the durable store's
// collections.
func (s *MaintenanceService) OptimizeDatabase(ctx context.Context) error {
	collections := []string{ds.RoomsCollection, ds.MembersCollection, ds.PlaybackCollection, ds.QueueCollection, ds.EventLogCollection}
	var errs []error

	for _, collection := range collections {
		opCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
		command := bson.D{{Key: "compact", Value: collection}}
		result := s.ds.Database().RunCommand(opCtx, command)
		cancel()
		if result.Err() != nil {
			errs = append(errs, fmt.Errorf("optimize collection %s: %w", collection, result.Err()))
			s.logger.Error("collection optimization failed", result.Err(), "collection", collection)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("database optimization completed with errors: %v", errs)
	}
	s.logger.Info("database optimization completed")
	return nil
}

// PerformMaintenance runs a specific maintenance task by name, used for an
// operator on-demand trigger of a single task.
func (s *MaintenanceService) PerformMaintenance(ctx context.Context, taskName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, task := range s.tasks {
		if task.Name == taskName {
			if err := task.Fn(ctx); err != nil {
				return fmt.Errorf("failed to run maintenance task %s: %w", taskName, err)
			}
			task.LastRun = time.Now()
			return nil
		}
	}
	return fmt.Errorf("maintenance task not found: %s", taskName)
}
