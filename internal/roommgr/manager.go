package roommgr

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"listenify.dev/syncengine/internal/config"
	"listenify.dev/syncengine/internal/ds"
	"listenify.dev/syncengine/internal/ess"
	"listenify.dev/syncengine/internal/models"
	"listenify.dev/syncengine/internal/syncerr"
	"listenify.dev/syncengine/internal/utils"
)

// MetricsRecorder receives room/member count observations. Satisfied by
// *system.MetricsService without importing it here.
type MetricsRecorder interface {
	SetRoomMembers(roomID string, count int)
}

// Manager is the Room Manager (C4): it composes the Durable Store and
// Ephemeral State Store and exposes the external room-lifecycle API.
// Every state-mutating operation on an existing room runs under that
// room's coordinator latch (CreateRoom, which has no room yet, does not) so that concurrent host commands against one room
// serialize, while unrelated rooms proceed independently.
type Manager struct {
	rooms ds.RoomRepository
	ess   *ess.Client
	coord *Coordinator

	hostGrace               time.Duration
	participantsCanQueueAdd bool

	metrics MetricsRecorder
	logger  *utils.Logger
}

// NewManager creates the Room Manager. metrics may be nil, in which case
// member counts are simply not recorded.
func NewManager(rooms ds.RoomRepository, essClient *ess.Client, coord *Coordinator, metrics MetricsRecorder, cfg *config.Config, logger *utils.Logger) *Manager {
	return &Manager{
		rooms:                   rooms,
		ess:                     essClient,
		coord:                   coord,
		hostGrace:               cfg.Room.HostGraceWindow,
		participantsCanQueueAdd: cfg.Room.ParticipantsCanQueueAdd,
		metrics:                 metrics,
		logger:                  logger.Named("room_manager"),
	}
}

// CreateRoom inserts the room in the Durable Store and brings up its
// Ephemeral State Store session. If any ESS step fails after the DS
// insert, the room is rolled back to INACTIVE before the error is
// returned — the engine must never leave a room ACTIVE in DS with no ESS
// session backing it.
func (m *Manager) CreateRoom(ctx context.Context, req models.CreateRoomRequest) (*models.Room, error) {
	room, err := m.rooms.CreateRoom(ctx, req)
	if err != nil {
		return nil, err
	}

	if err := m.initSession(ctx, room); err != nil {
		if rbErr := m.rooms.LeaveRoom(ctx, room.ID, room.HostUserID); rbErr != nil {
			m.logger.Error("failed to roll back room after session init failure", rbErr, "roomId", room.ID)
		}
		return nil, err
	}

	return room, nil
}

func (m *Manager) initSession(ctx context.Context, room *models.Room) error {
	if err := m.ess.CreateRoomSession(ctx, room.ID, room.HostUserID); err != nil {
		return err
	}
	if err := m.ess.SetHostConnected(ctx, room.ID, true); err != nil {
		return err
	}
	if _, err := m.ess.AddMember(ctx, room.ID, room.HostUserID); err != nil {
		return err
	}
	return m.ess.Publish(ctx, room.ID, models.RoomStatusUpdateEvent{Status: models.RoomStatusActive, Reason: "created"})
}

// JoinRoom admits a participant to an ACTIVE room and returns the
// post-join snapshot. Callers resolving a room code rather than an id
// should call ResolveRoomCode first.
func (m *Manager) JoinRoom(ctx context.Context, roomID, userID uuid.UUID) (*models.RoomSnapshot, error) {
	var snapshot models.RoomSnapshot
	err := m.coord.Do(ctx, roomID, func(ctx context.Context) error {
		active, err := m.ess.RoomActive(ctx, roomID)
		if err != nil {
			return err
		}
		if !active {
			return syncerr.FailedPreconditionf(syncerr.ErrRoomInactive, "room %s is not active", roomID)
		}

		if err := m.rooms.JoinRoom(ctx, roomID, userID); err != nil {
			return err
		}

		count, err := m.ess.AddMember(ctx, roomID, userID)
		if err != nil {
			return err
		}
		if err := m.ess.Publish(ctx, roomID, models.MemberJoinEvent{UserID: userID, MemberCount: count}); err != nil {
			return err
		}
		if m.metrics != nil {
			m.metrics.SetRoomMembers(roomID.String(), count)
		}

		snap, err := m.snapshot(ctx, roomID)
		if err != nil {
			return err
		}
		snapshot = snap
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &snapshot, nil
}

// LeaveRoom removes userID from the room. A host leaving starts the grace
// window rather than tearing the room down immediately; a participant
// leaving is immediate.
func (m *Manager) LeaveRoom(ctx context.Context, roomID, userID uuid.UUID) error {
	return m.coord.Do(ctx, roomID, func(ctx context.Context) error {
		room, err := m.rooms.GetRoom(ctx, roomID)
		if err != nil {
			return err
		}
		if userID == room.HostUserID {
			return m.startHostGrace(ctx, roomID, userID)
		}
		return m.leaveAsParticipant(ctx, roomID, userID)
	})
}

// startHostGrace marks the host disconnected in ESS, publishes
// HostDisconnected, and arms the grace timer. The room's durable status
// stays ACTIVE until the timer either is cancelled by a reattach or
// expires — the DS status only ever makes the clean ACTIVE->INACTIVE edge
// once, at expiry, never a transient one at every disconnect.
func (m *Manager) startHostGrace(ctx context.Context, roomID, hostID uuid.UUID) error {
	if err := m.ess.SetHostConnected(ctx, roomID, false); err != nil {
		return err
	}
	if err := m.ess.Publish(ctx, roomID, models.HostDisconnectedEvent{
		UserID:         hostID,
		TimeoutSeconds: int(m.hostGrace.Seconds()),
	}); err != nil {
		return err
	}

	m.coord.ArmGraceTimer(roomID, m.hostGrace, func() {
		m.expireHostGrace(roomID, hostID)
	})
	return nil
}

// expireHostGrace runs off the room's latch (it was invoked by
// time.AfterFunc, not from within roomActor.run) and re-enters it via Do.
// If the host reattached in the meantime this is a no-op.
func (m *Manager) expireHostGrace(roomID, hostID uuid.UUID) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := m.coord.Do(ctx, roomID, func(ctx context.Context) error {
		connected, err := m.ess.HostConnected(ctx, roomID)
		if err != nil {
			return err
		}
		if connected {
			return nil
		}

		if err := m.rooms.LeaveRoom(ctx, roomID, hostID); err != nil {
			return err
		}
		if err := m.ess.SetRoomStatus(ctx, roomID, models.RoomStatusInactive); err != nil {
			return err
		}
		return m.ess.Publish(ctx, roomID, models.RoomStatusUpdateEvent{
			Status: models.RoomStatusInactive,
			Reason: "host_disconnected",
		})
	})
	if err != nil {
		m.logger.Error("failed to expire host grace window", err, "roomId", roomID)
		return
	}

	if err := m.coord.Remove(context.Background(), roomID); err != nil {
		m.logger.Warn("room actor teardown after grace expiry did not complete cleanly", "roomId", roomID, "error", err)
	}
}

func (m *Manager) leaveAsParticipant(ctx context.Context, roomID, userID uuid.UUID) error {
	if err := m.rooms.LeaveRoom(ctx, roomID, userID); err != nil {
		return err
	}
	count, err := m.ess.RemoveMember(ctx, roomID, userID)
	if err != nil {
		return err
	}
	if m.metrics != nil {
		m.metrics.SetRoomMembers(roomID.String(), count)
	}
	return m.ess.Publish(ctx, roomID, models.MemberLeaveEvent{UserID: userID, MemberCount: count})
}

// ReattachHost cancels a pending grace timer, marks the host connected
// again and publishes RoomStatusUpdate{ACTIVE, "host_reconnected"}, used when the host opens a new command stream with the same
// user id within the grace window.
func (m *Manager) ReattachHost(ctx context.Context, roomID, userID uuid.UUID) error {
	return m.coord.Do(ctx, roomID, func(ctx context.Context) error {
		room, err := m.rooms.GetRoom(ctx, roomID)
		if err != nil {
			return err
		}
		if userID != room.HostUserID {
			return syncerr.NewUnauthorized("caller is not the room host", syncerr.ErrNotHost)
		}
		if room.Status != models.RoomStatusActive {
			return syncerr.FailedPreconditionf(syncerr.ErrRoomInactive, "room %s is no longer active", roomID)
		}

		m.coord.CancelGraceTimer(roomID)
		if err := m.ess.SetHostConnected(ctx, roomID, true); err != nil {
			return err
		}
		return m.ess.Publish(ctx, roomID, models.RoomStatusUpdateEvent{
			Status: models.RoomStatusActive,
			Reason: "host_reconnected",
		})
	})
}

// UpdatePlayback applies a host's playback change. The DS transaction
// commits before the ESS mirror and publish, so a reader observing the
// published event may assume the change is already durable.
func (m *Manager) UpdatePlayback(ctx context.Context, roomID, actorID uuid.UUID, fields models.PlaybackUpdateFields) (models.PlaybackState, error) {
	var result models.PlaybackState
	err := m.coord.Do(ctx, roomID, func(ctx context.Context) error {
		room, err := m.rooms.GetRoom(ctx, roomID)
		if err != nil {
			return err
		}
		if actorID != room.HostUserID {
			return syncerr.NewUnauthorized("only the host may control playback", syncerr.ErrNotHost)
		}

		playback, err := m.rooms.UpdatePlayback(ctx, roomID, actorID, fields)
		if err != nil {
			return err
		}

		if _, err := m.ess.UpdatePlayback(ctx, roomID, fields); err != nil {
			return err
		}
		if err := m.ess.Publish(ctx, roomID, models.PlaybackUpdateEvent{
			TrackID:    fields.TrackID,
			PositionMs: fields.PositionMs,
			Status:     fields.Status,
		}); err != nil {
			return err
		}

		result = playback
		return nil
	})
	if err != nil {
		return models.PlaybackState{}, err
	}
	return result, nil
}

// QueueAdd appends a track to the room queue. Authorization defaults to
// host-only; cfg.Room.ParticipantsCanQueueAdd opens it to any member.
func (m *Manager) QueueAdd(ctx context.Context, roomID, trackID, actorID uuid.UUID) (models.RoomQueueEntry, error) {
	var entry models.RoomQueueEntry
	err := m.coord.Do(ctx, roomID, func(ctx context.Context) error {
		room, err := m.rooms.GetRoom(ctx, roomID)
		if err != nil {
			return err
		}
		if !m.participantsCanQueueAdd && actorID != room.HostUserID {
			return syncerr.NewUnauthorized("only the host may add to the queue", syncerr.ErrNotHost)
		}

		e, err := m.rooms.QueueAdd(ctx, roomID, trackID, actorID)
		if err != nil {
			return err
		}
		addedTrack := e.TrackID
		if err := m.ess.Publish(ctx, roomID, models.QueueUpdateEvent{
			Action:   models.QueueActionAdd,
			Position: e.Position,
			TrackID:  &addedTrack,
		}); err != nil {
			return err
		}
		entry = e
		return nil
	})
	if err != nil {
		return models.RoomQueueEntry{}, err
	}
	return entry, nil
}

// QueueRemove deletes a queue entry by position. Always host-only.
func (m *Manager) QueueRemove(ctx context.Context, roomID uuid.UUID, position int, actorID uuid.UUID) error {
	return m.coord.Do(ctx, roomID, func(ctx context.Context) error {
		room, err := m.rooms.GetRoom(ctx, roomID)
		if err != nil {
			return err
		}
		if actorID != room.HostUserID {
			return syncerr.NewUnauthorized("only the host may remove from the queue", syncerr.ErrNotHost)
		}
		if err := m.rooms.QueueRemove(ctx, roomID, position); err != nil {
			return err
		}
		m.checkDenseQueue(ctx, roomID)
		return m.ess.Publish(ctx, roomID, models.QueueUpdateEvent{Action: models.QueueActionRemove, Position: position})
	})
}

// checkDenseQueue re-reads the queue after a removal and confirms the
// dense 1..N invariant documented on models.RoomQueueEntry still holds
// after the durable store's position shift. A violation would mean the
// $inc reindex partially failed; it's logged, not corrected here, since
// the transaction that performed the shift has already committed.
func (m *Manager) checkDenseQueue(ctx context.Context, roomID uuid.UUID) {
	queue, err := m.rooms.GetQueue(ctx, roomID)
	if err != nil {
		return
	}
	positions := lo.Map(queue, func(e models.RoomQueueEntry, _ int) int { return e.Position })
	for i, pos := range positions {
		if pos != i+1 {
			m.logger.Warn("queue position is not dense after removal", "roomId", roomID, "positions", positions)
			return
		}
	}
}

// GetQueue returns the current queue. A read, so it bypasses the
// coordinator latch so readers always see last-committed values.
func (m *Manager) GetQueue(ctx context.Context, roomID uuid.UUID) ([]models.RoomQueueEntry, error) {
	return m.rooms.GetQueue(ctx, roomID)
}

// ListRooms lists ACTIVE rooms matching filter.
func (m *Manager) ListRooms(ctx context.Context, filter models.ListRoomsFilter) ([]*models.Room, error) {
	return m.rooms.ListActiveRooms(ctx, filter)
}

// ResolveRoomCode resolves a room code to an id for callers joining by
// code rather than id.
func (m *Manager) ResolveRoomCode(ctx context.Context, code string) (uuid.UUID, error) {
	return m.rooms.RoomIDByCode(ctx, code)
}

// Snapshot returns a consistent point-in-time view of a room, used by
// JoinRoomStream attach.
func (m *Manager) Snapshot(ctx context.Context, roomID uuid.UUID) (*models.RoomSnapshot, error) {
	snap, err := m.snapshot(ctx, roomID)
	if err != nil {
		return nil, err
	}
	return &snap, nil
}

func (m *Manager) snapshot(ctx context.Context, roomID uuid.UUID) (models.RoomSnapshot, error) {
	room, err := m.rooms.GetRoom(ctx, roomID)
	if err != nil {
		return models.RoomSnapshot{}, err
	}
	info, playback, members, err := m.ess.Snapshot(ctx, roomID)
	if err != nil {
		return models.RoomSnapshot{}, err
	}
	// The snapshot stitches together two independently-updated records
	// (the host-online flag and the member set); cross-check them so a
	// drift between the two surfaces in logs instead of silently
	// reaching clients as an inconsistent snapshot.
	if info.HostOnline && !lo.Contains(members, info.HostID) {
		m.logger.Warn("host marked online but absent from member set", "roomId", roomID, "hostId", info.HostID)
	}
	return models.RoomSnapshot{
		Room:        *room,
		Playback:    playback,
		MemberCount: len(members),
		HostOnline:  info.HostOnline,
	}, nil
}

// BroadcastShutdown publishes a RoomStatusUpdate{server_shutdown} to every
// active room, used on graceful server shutdown before streams are
// drained.
func (m *Manager) BroadcastShutdown(ctx context.Context) {
	filter := models.ListRoomsFilter{PageSize: 200}
	for {
		rooms, err := m.rooms.ListActiveRooms(ctx, filter)
		if err != nil {
			m.logger.Error("failed to list active rooms for shutdown broadcast", err)
			return
		}
		for _, room := range rooms {
			ev := models.RoomStatusUpdateEvent{Status: models.RoomStatusActive, Reason: "server_shutdown"}
			if err := m.ess.Publish(ctx, room.ID, ev); err != nil {
				m.logger.Warn("failed to publish shutdown notice", "roomId", room.ID, "error", err)
			}
		}
		if len(rooms) < filter.PageSize {
			return
		}
		last := rooms[len(rooms)-1].ID
		filter.ContinuationID = &last
	}
}

// Shutdown tears down every room coordinator actor, bounded by ctx.
func (m *Manager) Shutdown(ctx context.Context) {
	m.coord.Shutdown(ctx)
}
