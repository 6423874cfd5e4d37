package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/webitel/im-chat-hub/internal/domain/model"
	"github.com/webitel/im-chat-hub/internal/domain/registry"
	"github.com/webitel/im-chat-hub/internal/service/dto"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

type Signaler interface {
	Typing(conn registry.Connector, isTyping bool) error
	React(ctx context.Context, conn registry.Connector, messageID, emoji string) (model.Reaction, error)
}

// SignalService handles the ephemeral room signals.
type SignalService struct {
	messages MessageStore
	roomMgr  RoomManager
	notifier *Notifier
	logger   *slog.Logger
	now      func() time.Time
}

func NewSignalService(messages MessageStore, roomMgr RoomManager, notifier *Notifier, logger *slog.Logger) *SignalService {
	return &SignalService{
		messages: messages,
		roomMgr:  roomMgr,
		notifier: notifier,
		logger:   logger,
		now:      time.Now,
	}
}

// Typing relays the indicator to the rest of the room. Nothing is stored.
func (s *SignalService) Typing(conn registry.Connector, isTyping bool) error {
	st := conn.State()
	if st.Room == "" {
		return model.NewStateError("join a room first")
	}
	if frame, ok := s.notifier.Frame(dto.NewTyping(st.Username, isTyping), model.PriorityLow); ok {
		s.roomMgr.Broadcast(st.Room, frame, conn.GetID())
	}
	return nil
}

// React attaches emoji to a message of the sender's current room.
//
// [VALIDATION] The store checks that messageID belongs to the room. A store
// outage fails persistence only: the sender gets the error and the room still
// sees the reaction. An unknown message (or one from another room) is the one
// exception and is rejected without a broadcast, so the room never sees a
// reaction that points at nothing.
func (s *SignalService) React(ctx context.Context, conn registry.Connector, messageID, emoji string) (model.Reaction, error) {
	ctx, span := tracer.Start(ctx, "signals.react")
	defer span.End()

	st := conn.State()
	if st.Room == "" {
		return model.Reaction{}, model.NewStateError("join a room first")
	}
	if messageID == "" {
		return model.Reaction{}, model.NewProtocolError("messageId is required")
	}
	if emoji == "" {
		return model.Reaction{}, model.NewProtocolError("emoji is required")
	}
	span.SetAttributes(attribute.String("room", st.Room), attribute.String("message_id", messageID))

	r := model.Reaction{
		MessageID: messageID,
		UserID:    st.UserID,
		Username:  st.Username,
		Emoji:     emoji,
		CreatedAt: s.now().UTC(),
	}

	storeErr := s.messages.AddReaction(ctx, st.Room, messageID, r)
	switch model.KindOf(storeErr) {
	case model.KindNotFound:
		return model.Reaction{}, model.NewNotFoundError("message not found in this room")
	case model.KindProtocol:
		return model.Reaction{}, storeErr
	}

	if frame, ok := s.notifier.Frame(dto.NewReaction(r), model.PriorityNormal); ok {
		s.roomMgr.Broadcast(st.Room, frame, uuid.Nil)
	}

	if storeErr != nil {
		span.SetStatus(codes.Error, "persistence failed")
		s.logger.Error("REACTION_PERSIST_FAILED", "conn_id", st.ID, "room", st.Room, "message_id", messageID, "err", storeErr)
		return r, &model.Error{Kind: model.KindPersistence, Message: "reaction could not be saved", Err: storeErr}
	}
	return r, nil
}
