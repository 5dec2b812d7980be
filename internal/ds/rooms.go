package ds

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"listenify.dev/syncengine/internal/models"
	"listenify.dev/syncengine/internal/syncerr"
	"listenify.dev/syncengine/internal/utils"
)

// RoomRepository is the durable-store persistence contract.
type RoomRepository interface {
	CreateRoom(ctx context.Context, req models.CreateRoomRequest) (*models.Room, error)
	JoinRoom(ctx context.Context, roomID, userID uuid.UUID) error
	LeaveRoom(ctx context.Context, roomID, userID uuid.UUID) error
	UpdatePlayback(ctx context.Context, roomID, userID uuid.UUID, fields models.PlaybackUpdateFields) (models.PlaybackState, error)
	QueueAdd(ctx context.Context, roomID, trackID, userID uuid.UUID) (models.RoomQueueEntry, error)
	QueueRemove(ctx context.Context, roomID uuid.UUID, position int) error
	GetRoom(ctx context.Context, roomID uuid.UUID) (*models.Room, error)
	ListActiveRooms(ctx context.Context, filter models.ListRoomsFilter) ([]*models.Room, error)
	GetQueue(ctx context.Context, roomID uuid.UUID) ([]models.RoomQueueEntry, error)
	RoomIDByCode(ctx context.Context, code string) (uuid.UUID, error)
}

type roomRepository struct {
	client *Client
	logger *utils.Logger
}

// NewRoomRepository creates the Durable Store's room repository.
func NewRoomRepository(client *Client, logger *utils.Logger) RoomRepository {
	return &roomRepository{client: client, logger: logger.Named("ds_rooms")}
}

const roomCodeLength = 6

// generateRoomCode derives an uppercase, unambiguous code from the current
// nanosecond timestamp: SHA-256 it, strip the visually-confusable
// characters 0/O/1/I, and take the first roomCodeLength runes.
func generateRoomCode() string {
	sum := sha256.Sum256([]byte(strconv.FormatInt(time.Now().UnixNano(), 10)))
	hash := strings.ToUpper(hex.EncodeToString(sum[:]))
	clean := strings.Map(func(r rune) rune {
		if strings.ContainsRune("0O1I", r) {
			return -1
		}
		return r
	}, hash)
	if len(clean) < roomCodeLength {
		return clean
	}
	return clean[:roomCodeLength]
}

// CreateRoom inserts the room, its HOST membership, and its initial
// playback row within a single transaction. A room-code
// collision is retried with a freshly generated code; the retry loop is
// bounded since a 6-character alphabet collision under load is vanishingly
// unlikely but must never hang.
func (r *roomRepository) CreateRoom(ctx context.Context, req models.CreateRoomRequest) (*models.Room, error) {
	const maxAttempts = 5

	var room *models.Room
	for attempt := 0; attempt < maxAttempts; attempt++ {
		now := time.Now()
		candidate := &models.Room{
			ID:          uuid.New(),
			Code:        generateRoomCode(),
			Name:        req.Name,
			Description: req.Description,
			HostUserID:  req.HostUserID,
			Visibility:  req.Visibility,
			InviteOnly:  req.InviteOnly,
			Status:      models.RoomStatusActive,
			ObjectTimes: models.NewObjectTimes(now),
		}

		_, err := r.client.WithTransaction(ctx, func(sessCtx context.Context) (any, error) {
			if _, err := r.client.Collection(RoomsCollection).InsertOne(sessCtx, candidate); err != nil {
				return nil, err
			}

			membership := &models.Membership{
				ID:       uuid.New(),
				RoomID:   candidate.ID,
				UserID:   candidate.HostUserID,
				Role:     models.RoleHost,
				JoinedAt: now,
			}
			if _, err := r.client.Collection(MembersCollection).InsertOne(sessCtx, membership); err != nil {
				return nil, err
			}

			playback := models.PlaybackState{
				RoomID:     candidate.ID,
				PositionMs: 0,
				Status:     models.PlaybackPaused,
				UpdatedAt:  now,
			}
			if _, err := r.client.Collection(PlaybackCollection).InsertOne(sessCtx, playback); err != nil {
				return nil, err
			}

			return nil, nil
		})

		if err == nil {
			room = candidate
			break
		}
		if mongo.IsDuplicateKeyError(err) && strings.Contains(err.Error(), "code") {
			r.logger.Warn("room code collision, retrying", "code", candidate.Code, "attempt", attempt)
			continue
		}
		r.logger.Error("failed to create room", err, "name", req.Name)
		return nil, syncerr.NewInternal("create room", err)
	}

	if room == nil {
		return nil, syncerr.NewTransient("create room", errors.New("exhausted room code generation attempts"))
	}
	return room, nil
}

// JoinRoom inserts a PARTICIPANT membership if the user has no currently
// active row; re-joining after a leave creates a new row rather than
// reviving the old one.
func (r *roomRepository) JoinRoom(ctx context.Context, roomID, userID uuid.UUID) error {
	existing := r.client.Collection(MembersCollection).FindOne(ctx, bson.M{
		"roomId": roomID,
		"userId": userID,
		"leftAt": bson.M{"$exists": false},
	})
	if existing.Err() == nil {
		return nil // already an active member; join is idempotent
	}
	if !errors.Is(existing.Err(), mongo.ErrNoDocuments) {
		return syncerr.NewInternal("check existing membership", existing.Err())
	}

	membership := &models.Membership{
		ID:       uuid.New(),
		RoomID:   roomID,
		UserID:   userID,
		Role:     models.RoleParticipant,
		JoinedAt: time.Now(),
	}
	if _, err := r.client.Collection(MembersCollection).InsertOne(ctx, membership); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil
		}
		r.logger.Error("failed to join room", err, "roomId", roomID, "userId", userID)
		return syncerr.NewInternal("join room", err)
	}
	return nil
}

// LeaveRoom stamps LeftAt on the caller's active membership row. If the
// caller was HOST, the room is also marked INACTIVE — the durable status
// never has an AWAITING_HOST state; that transitional state lives only in
// the Ephemeral State Store and the room coordinator while the grace timer
// runs.
func (r *roomRepository) LeaveRoom(ctx context.Context, roomID, userID uuid.UUID) error {
	_, err := r.client.WithTransaction(ctx, func(sessCtx context.Context) (any, error) {
		var membership models.Membership
		err := r.client.Collection(MembersCollection).FindOneAndUpdate(
			sessCtx,
			bson.M{"roomId": roomID, "userId": userID, "leftAt": bson.M{"$exists": false}},
			bson.D{cmdSet(bson.M{"leftAt": time.Now()})},
		).Decode(&membership)
		if err != nil {
			if errors.Is(err, mongo.ErrNoDocuments) {
				return nil, syncerr.NewNotFound("active membership", err)
			}
			return nil, err
		}

		if membership.Role == models.RoleHost {
			_, err := r.client.Collection(RoomsCollection).UpdateOne(
				sessCtx,
				bson.M{"_id": roomID},
				bson.D{cmdSet(bson.M{"status": models.RoomStatusInactive, "updatedAt": time.Now()})},
			)
			if err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	if err != nil {
		var serr *syncerr.Err
		if errors.As(err, &serr) {
			return err
		}
		r.logger.Error("failed to leave room", err, "roomId", roomID, "userId", userID)
		return syncerr.NewInternal("leave room", err)
	}
	return nil
}

// inferEventType derives the event-log entry type for a partial playback
// update: SKIP if the track changed, else SEEK if only the
// position changed, else PLAY/PAUSE for a bare status change.
func inferEventType(fields models.PlaybackUpdateFields) models.QueueEventType {
	switch {
	case fields.TrackID != nil:
		return models.EventSkip
	case fields.PositionMs != nil && fields.Status == nil:
		return models.EventSeek
	case fields.Status != nil && *fields.Status == models.PlaybackPlaying:
		return models.EventPlay
	default:
		return models.EventPause
	}
}

// UpdatePlayback applies a partial update to the room's playback row and
// appends one event-log row recording the inferred event type.
func (r *roomRepository) UpdatePlayback(ctx context.Context, roomID, userID uuid.UUID, fields models.PlaybackUpdateFields) (models.PlaybackState, error) {
	set := bson.M{"updatedAt": time.Now()}
	payload := map[string]any{}
	if fields.TrackID != nil {
		set["trackId"] = *fields.TrackID
		payload["trackId"] = fields.TrackID.String()
		if fields.PositionMs == nil {
			payload["positionMs"] = int64(0)
		}
	}
	if fields.PositionMs != nil {
		set["positionMs"] = *fields.PositionMs
		payload["positionMs"] = *fields.PositionMs
	}
	if fields.Status != nil {
		set["status"] = *fields.Status
		payload["status"] = *fields.Status
	}

	eventType := inferEventType(fields)

	result, err := r.client.WithTransaction(ctx, func(sessCtx context.Context) (any, error) {
		var playback models.PlaybackState
		err := r.client.Collection(PlaybackCollection).FindOneAndUpdate(
			sessCtx,
			bson.M{"roomId": roomID},
			bson.D{cmdSet(set)},
			options.FindOneAndUpdate().SetReturnDocument(options.After),
		).Decode(&playback)
		if err != nil {
			if errors.Is(err, mongo.ErrNoDocuments) {
				return nil, syncerr.NewNotFound("playback state", err)
			}
			return nil, err
		}

		event := models.PlaybackEvent{
			ID:        uuid.New(),
			RoomID:    roomID,
			UserID:    userID,
			EventType: eventType,
			Payload:   payload,
			CreatedAt: time.Now(),
		}
		if _, err := r.client.Collection(EventLogCollection).InsertOne(sessCtx, event); err != nil {
			return nil, err
		}

		return playback, nil
	})
	if err != nil {
		var serr *syncerr.Err
		if errors.As(err, &serr) {
			return models.PlaybackState{}, err
		}
		r.logger.Error("failed to update playback", err, "roomId", roomID)
		return models.PlaybackState{}, syncerr.NewInternal("update playback", err)
	}
	return result.(models.PlaybackState), nil
}

// QueueAdd appends a track at the tail of the dense 1..N queue.
func (r *roomRepository) QueueAdd(ctx context.Context, roomID, trackID, userID uuid.UUID) (models.RoomQueueEntry, error) {
	result, err := r.client.WithTransaction(ctx, func(sessCtx context.Context) (any, error) {
		cursor, err := r.client.Collection(QueueCollection).Find(
			sessCtx,
			bson.M{"roomId": roomID},
			options.Find().SetSort(bson.D{{Key: "position", Value: -1}}).SetLimit(1),
		)
		if err != nil {
			return nil, err
		}
		defer cursor.Close(sessCtx)

		nextPosition := 1
		var top models.RoomQueueEntry
		if cursor.Next(sessCtx) {
			if err := cursor.Decode(&top); err != nil {
				return nil, err
			}
			nextPosition = top.Position + 1
		}

		entry := models.RoomQueueEntry{
			ID:       uuid.New(),
			RoomID:   roomID,
			Position: nextPosition,
			TrackID:  trackID,
			AddedBy:  userID,
			AddedAt:  time.Now(),
		}
		if _, err := r.client.Collection(QueueCollection).InsertOne(sessCtx, entry); err != nil {
			return nil, err
		}
		return entry, nil
	})
	if err != nil {
		r.logger.Error("failed to add to queue", err, "roomId", roomID)
		return models.RoomQueueEntry{}, syncerr.NewInternal("queue add", err)
	}
	return result.(models.RoomQueueEntry), nil
}

// QueueRemove deletes the entry at position and shifts every entry behind
// it down by one, within a single transaction.
func (r *roomRepository) QueueRemove(ctx context.Context, roomID uuid.UUID, position int) error {
	_, err := r.client.WithTransaction(ctx, func(sessCtx context.Context) (any, error) {
		result, err := r.client.Collection(QueueCollection).DeleteOne(sessCtx, bson.M{
			"roomId":   roomID,
			"position": position,
		})
		if err != nil {
			return nil, err
		}
		if result.DeletedCount == 0 {
			return nil, syncerr.New(syncerr.NotFound, "queue position does not exist", syncerr.ErrQueuePositionGone)
		}

		_, err = r.client.Collection(QueueCollection).UpdateMany(
			sessCtx,
			bson.M{"roomId": roomID, "position": bson.M{"$gt": position}},
			bson.D{cmdInc(bson.M{"position": -1})},
		)
		return nil, err
	})
	if err != nil {
		var serr *syncerr.Err
		if errors.As(err, &serr) {
			return err
		}
		r.logger.Error("failed to remove from queue", err, "roomId", roomID, "position", position)
		return syncerr.NewInternal("queue remove", err)
	}
	return nil
}

// GetRoom fetches a room by id.
func (r *roomRepository) GetRoom(ctx context.Context, roomID uuid.UUID) (*models.Room, error) {
	var room models.Room
	err := r.client.Collection(RoomsCollection).FindOne(ctx, bson.M{"_id": roomID}).Decode(&room)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, syncerr.New(syncerr.NotFound, "room not found", syncerr.ErrRoomNotFound)
		}
		r.logger.Error("failed to get room", err, "roomId", roomID)
		return nil, syncerr.NewInternal("get room", err)
	}
	return &room, nil
}

// ListActiveRooms lists ACTIVE rooms matching the filter in ascending id
// order, with cursor-style pagination by id.
func (r *roomRepository) ListActiveRooms(ctx context.Context, filter models.ListRoomsFilter) ([]*models.Room, error) {
	query := bson.M{"status": models.RoomStatusActive}
	if filter.Visibility != nil {
		query["visibility"] = *filter.Visibility
	}
	if filter.HostUserID != nil {
		query["hostUserId"] = *filter.HostUserID
	}
	if filter.ContinuationID != nil {
		query["_id"] = bson.M{"$gt": *filter.ContinuationID}
	}

	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 200 {
		pageSize = 50
	}

	cursor, err := r.client.Collection(RoomsCollection).Find(
		ctx, query,
		options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}).SetLimit(int64(pageSize)),
	)
	if err != nil {
		r.logger.Error("failed to list active rooms", err)
		return nil, syncerr.NewInternal("list active rooms", err)
	}
	defer cursor.Close(ctx)

	var rooms []*models.Room
	if err := cursor.All(ctx, &rooms); err != nil {
		return nil, syncerr.NewInternal("decode active rooms", err)
	}
	return rooms, nil
}

// GetQueue returns the dense 1..N queue for a room in position order.
func (r *roomRepository) GetQueue(ctx context.Context, roomID uuid.UUID) ([]models.RoomQueueEntry, error) {
	cursor, err := r.client.Collection(QueueCollection).Find(
		ctx,
		bson.M{"roomId": roomID},
		options.Find().SetSort(bson.D{{Key: "position", Value: 1}}),
	)
	if err != nil {
		r.logger.Error("failed to get queue", err, "roomId", roomID)
		return nil, syncerr.NewInternal("get queue", err)
	}
	defer cursor.Close(ctx)

	var entries []models.RoomQueueEntry
	if err := cursor.All(ctx, &entries); err != nil {
		return nil, syncerr.NewInternal("decode queue", err)
	}
	return entries, nil
}

// RoomIDByCode resolves a room code to an id. Per
// original_source/party/Manager/roomManager.py::get_room_id_by_code, lookup
// only ever considers ACTIVE rooms — an inactive room's code is not
// resolvable even if it is still unique in the collection.
func (r *roomRepository) RoomIDByCode(ctx context.Context, code string) (uuid.UUID, error) {
	var room models.Room
	err := r.client.Collection(RoomsCollection).FindOne(ctx, bson.M{
		"code":   strings.ToUpper(code),
		"status": models.RoomStatusActive,
	}).Decode(&room)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return uuid.Nil, syncerr.New(syncerr.NotFound, fmt.Sprintf("no active room with code %q", code), syncerr.ErrRoomNotFound)
		}
		r.logger.Error("failed to resolve room code", err, "code", code)
		return uuid.Nil, syncerr.NewInternal("resolve room code", err)
	}
	return room.ID, nil
}
