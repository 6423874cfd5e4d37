package service

import (
	"context"
	"errors"
	"log/slog"
	"slices"

	"github.com/google/uuid"
	"github.com/webitel/im-chat-hub/internal/domain/history"
	"github.com/webitel/im-chat-hub/internal/domain/model"
	"github.com/webitel/im-chat-hub/internal/domain/registry"
	"github.com/webitel/im-chat-hub/internal/service/dto"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
)

const DefaultHistoryFetchLimit = 100

// JoinResult is what a successful join hands back to the caller.
type JoinResult struct {
	Room     string
	Previous string
	Messages []model.ChatMessage
	// FromCache is true when the durable store could not serve history.
	FromCache bool
}

type RoomManager interface {
	Join(ctx context.Context, conn registry.Connector, room string) (JoinResult, error)
	Leave(ctx context.Context, conn registry.Connector) (string, bool)
	Refresh(ctx context.Context, room string) int
	Broadcast(room string, frame model.Frame, exclude uuid.UUID) int
}

type RoomService struct {
	hub        registry.Hubber
	rooms      RoomStore
	messages   MessageStore
	cache      *history.Cache
	notifier   *Notifier
	fetchLimit int
	logger     *slog.Logger
}

func NewRoomService(
	hub registry.Hubber,
	rooms RoomStore,
	messages MessageStore,
	cache *history.Cache,
	notifier *Notifier,
	fetchLimit int,
	logger *slog.Logger,
) *RoomService {
	if fetchLimit <= 0 {
		fetchLimit = DefaultHistoryFetchLimit
	}
	return &RoomService{
		hub:        hub,
		rooms:      rooms,
		messages:   messages,
		cache:      cache,
		notifier:   notifier,
		fetchLimit: fetchLimit,
		logger:     logger,
	}
}

// Join attaches conn to room after the durable membership check.
// The history reply is queued before the room_update broadcast so the caller
// always sees its history first.
func (s *RoomService) Join(ctx context.Context, conn registry.Connector, room string) (JoinResult, error) {
	ctx, span := tracer.Start(ctx, "rooms.join")
	defer span.End()
	span.SetAttributes(attribute.String("room", room))

	if room == "" {
		return JoinResult{}, model.NewProtocolError("room is required")
	}
	st := conn.State()

	var (
		found      *model.Room
		stored     []model.ChatMessage
		historyErr error
	)

	// [PARALLEL_LOOKUP] Membership check and history fetch are independent reads.
	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		found, err = s.rooms.FindByName(gCtx, room)
		return err
	})
	g.Go(func() error {
		stored, historyErr = s.messages.List(gCtx, room, s.fetchLimit, model.OrderDesc)
		return nil
	})
	if err := g.Wait(); err != nil {
		return JoinResult{}, asLookupError(err, "room not found")
	}
	if found == nil {
		return JoinResult{}, model.NewNotFoundError("room not found")
	}
	if !found.HasMember(st.UserID) {
		return JoinResult{}, model.NewMembershipError("you are not a member of this room")
	}

	previous, ok := s.hub.MoveToRoom(conn.GetID(), room)
	if !ok {
		return JoinResult{}, model.NewStateError("connection closed")
	}
	if previous != "" && previous != room {
		s.Refresh(ctx, previous)
	}

	// [LAZY_INIT] First join of a room in this process opens its history bucket.
	s.cache.Ensure(room)

	res := JoinResult{Room: room, Previous: previous}
	if historyErr != nil {
		s.logger.Warn("HISTORY_FETCH_FAILED", "room", room, "err", historyErr)
		res.Messages = s.cache.Snapshot(room)
		res.FromCache = true
	} else {
		slices.Reverse(stored)
		res.Messages = stored
	}

	s.notifier.Reply(conn, dto.NewHistory(room, res.Messages))
	s.Refresh(ctx, room)

	s.logger.Debug("ROOM_JOINED", "conn_id", st.ID, "user_id", st.UserID, "room", room, "previous", previous)
	return res, nil
}

// Leave detaches conn from its room, if any, and republishes the count.
func (s *RoomService) Leave(ctx context.Context, conn registry.Connector) (string, bool) {
	room, ok := s.hub.LeaveRoom(conn.GetID())
	if !ok {
		return "", false
	}
	s.Refresh(ctx, room)
	return room, true
}

// Refresh recomputes the live count of room, persists it and tells the members.
func (s *RoomService) Refresh(ctx context.Context, room string) int {
	online := s.hub.OnlineCount(room)
	if err := s.rooms.SetOnlineCount(ctx, room, online); err != nil {
		s.logger.Warn("ROOM_ONLINE_COUNT_PERSIST_FAILED", "room", room, "online", online, "err", err)
	}
	if f, ok := s.notifier.Frame(dto.NewRoomUpdate(room, online), model.PriorityNormal); ok {
		s.notifier.Room(room, f, uuid.Nil)
	}
	return online
}

func (s *RoomService) Broadcast(room string, frame model.Frame, exclude uuid.UUID) int {
	return s.notifier.Room(room, frame, exclude)
}

// asLookupError keeps typed store errors and classifies the rest as persistence failures.
func asLookupError(err error, notFound string) error {
	var typed *model.Error
	if errors.As(err, &typed) {
		if typed.Kind == model.KindNotFound && typed.Message == "" {
			return model.NewNotFoundError(notFound)
		}
		return typed
	}
	return model.NewPersistenceError("store unavailable", err)
}
