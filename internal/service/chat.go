package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/webitel/im-chat-hub/internal/domain/history"
	"github.com/webitel/im-chat-hub/internal/domain/model"
	"github.com/webitel/im-chat-hub/internal/domain/registry"
	"github.com/webitel/im-chat-hub/internal/service/dto"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

type Poster interface {
	Post(ctx context.Context, conn registry.Connector, text string) (model.ChatMessage, error)
}

type ChatService struct {
	cache      *history.Cache
	messages   MessageStore
	rooms      RoomStore
	activities ActivityStore
	roomMgr    RoomManager
	fanout     *Fanout
	notifier   *Notifier
	logger     *slog.Logger
	now        func() time.Time
}

func NewChatService(
	cache *history.Cache,
	messages MessageStore,
	rooms RoomStore,
	activities ActivityStore,
	roomMgr RoomManager,
	fanout *Fanout,
	notifier *Notifier,
	logger *slog.Logger,
) *ChatService {
	return &ChatService{
		cache:      cache,
		messages:   messages,
		rooms:      rooms,
		activities: activities,
		roomMgr:    roomMgr,
		fanout:     fanout,
		notifier:   notifier,
		logger:     logger,
		now:        time.Now,
	}
}

// Post runs the chat flow for one message. Store failures do not stop the
// live broadcast; they come back as a joined PersistenceError for the sender.
func (s *ChatService) Post(ctx context.Context, conn registry.Connector, text string) (model.ChatMessage, error) {
	ctx, span := tracer.Start(ctx, "chat.post")
	defer span.End()

	st := conn.State()
	if st.Room == "" {
		return model.ChatMessage{}, model.NewStateError("join a room first")
	}
	if strings.TrimSpace(text) == "" {
		return model.ChatMessage{}, model.NewProtocolError("message is empty")
	}
	span.SetAttributes(attribute.String("room", st.Room))

	msg := model.ChatMessage{
		ID:         uuid.NewString(),
		Room:       st.Room,
		From:       st.Username,
		FromUserID: st.UserID,
		Text:       text,
		Timestamp:  s.now().UTC(),
	}

	// 1. [CACHE] bounded in-memory history
	s.cache.Append(msg)

	// 2. [PERSIST] message, room recency, derived activity
	var failures []error
	if err := s.messages.Append(ctx, &msg); err != nil {
		failures = append(failures, err)
	}
	if err := s.rooms.TouchLastMessage(ctx, st.Room); err != nil {
		failures = append(failures, err)
	}
	act := model.NewMessageSentActivity(msg)
	if stored, err := s.activities.Create(ctx, &act); err != nil {
		failures = append(failures, err)
	} else if stored != nil {
		act = *stored
	}

	// 3. [BROADCAST] sender included
	if frame, ok := s.notifier.Frame(dto.NewMessage(msg), model.PriorityHigh); ok {
		s.roomMgr.Broadcast(st.Room, frame, uuid.Nil)
	}

	// 4. [FAN_OUT] durable members of the room, sender excluded
	s.fanout.Activity(ctx, act)
	s.fanout.PublishActivity(ctx, act)

	if len(failures) > 0 {
		span.SetStatus(codes.Error, "persistence failed")
		s.logger.Error("CHAT_PERSIST_FAILED",
			"conn_id", st.ID,
			"user_id", st.UserID,
			"room", st.Room,
			"msg_id", msg.ID,
			"err", errors.Join(failures...),
		)
		return msg, &model.Error{
			Kind:    model.KindPersistence,
			Message: "message was delivered but could not be saved",
			Err:     errors.Join(failures...),
		}
	}
	return msg, nil
}
