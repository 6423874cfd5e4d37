package service

import (
	"context"

	"github.com/webitel/im-chat-hub/internal/domain/model"
	"github.com/webitel/im-chat-hub/internal/service/dto"
)

// [PORTS] Contracts of the external collaborators the hub consumes as black boxes.
// Adapters live under infra/; every adapter error is a *model.Error.

type CredentialVerifier interface {
	Verify(ctx context.Context, token string) (model.Identity, error)
}

type MessageStore interface {
	Append(ctx context.Context, msg *model.ChatMessage) error
	List(ctx context.Context, room string, limit int, order model.SortOrder) ([]model.ChatMessage, error)
	// AddReaction fails with NotFound when messageID does not exist in room.
	AddReaction(ctx context.Context, room, messageID string, r model.Reaction) error
}

type RoomStore interface {
	FindByName(ctx context.Context, name string) (*model.Room, error)
	SetOnlineCount(ctx context.Context, name string, n int) error
	TouchLastMessage(ctx context.Context, name string) error
}

type UserStore interface {
	SetStatus(ctx context.Context, userID string, status model.UserStatus) error
	FindByID(ctx context.Context, userID string) (*model.User, error)
}

type DMStore interface {
	Append(ctx context.Context, dm *model.DirectMessage) error
}

type ActivityStore interface {
	Create(ctx context.Context, act *model.Activity) (*model.Activity, error)
}

// EventPublisher hands events to the cross-process bus. Best effort.
type EventPublisher interface {
	PublishActivity(ctx context.Context, act model.Activity) error
	PublishNewMessage(ctx context.Context, n model.NewMessageNotice) error
}

// Codec is the wire format of a transport: inbound envelopes in, frames out.
type Codec interface {
	Decode(raw []byte) (dto.Inbound, error)
	Encode(v any, priority model.EventPriority) (model.Frame, error)
}
