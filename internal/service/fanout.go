package service

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/webitel/im-chat-hub/internal/domain/model"
	"github.com/webitel/im-chat-hub/internal/domain/registry"
	"github.com/webitel/im-chat-hub/internal/service/dto"
)

// Fanout relays notifications to the connections held by this process and
// mirrors locally produced ones onto the bus for the other instances.
type Fanout struct {
	hub       registry.Hubber
	rooms     RoomStore
	notifier  *Notifier
	publisher EventPublisher
	logger    *slog.Logger
}

func NewFanout(hub registry.Hubber, rooms RoomStore, notifier *Notifier, publisher EventPublisher, logger *slog.Logger) *Fanout {
	return &Fanout{
		hub:       hub,
		rooms:     rooms,
		notifier:  notifier,
		publisher: publisher,
		logger:    logger,
	}
}

// Activity delivers act according to its scope and returns the number of
// connections reached. The originating user never hears about its own activity.
func (f *Fanout) Activity(ctx context.Context, act model.Activity) int {
	frame, ok := f.notifier.Frame(dto.NewActivityPush(act), model.PriorityLow)
	if !ok {
		return 0
	}

	switch {
	case act.RecipientID != "":
		if act.RecipientID == act.UserID {
			return 0
		}
		return f.notifier.User(act.RecipientID, frame, uuid.Nil)

	case act.RoomName != "":
		return f.roomMembers(ctx, act, frame)

	default:
		delivered := 0
		f.hub.ForEachAuthenticated(func(c registry.Connector) {
			if c.State().UserID == act.UserID {
				return
			}
			if c.Send(frame) {
				delivered++
			}
		})
		return delivered
	}
}

// roomMembers reaches every authenticated durable member of the room, wherever
// its live connection currently sits.
func (f *Fanout) roomMembers(ctx context.Context, act model.Activity, frame model.Frame) int {
	room, err := f.rooms.FindByName(ctx, act.RoomName)
	if err != nil {
		// [DEGRADED_SCOPE] Without the member list fall back to live attendance.
		f.logger.Warn("ACTIVITY_MEMBERS_UNAVAILABLE", "room", act.RoomName, "err", err)
		delivered := 0
		f.hub.ForEachInRoom(act.RoomName, func(c registry.Connector) {
			if c.State().UserID != act.UserID && c.Send(frame) {
				delivered++
			}
		})
		return delivered
	}

	delivered := 0
	f.hub.ForEachAuthenticated(func(c registry.Connector) {
		uid := c.State().UserID
		if uid == act.UserID || !room.HasMember(uid) {
			return
		}
		if c.Send(frame) {
			delivered++
		}
	})
	return delivered
}

// ToUsers delivers act to the listed users only.
func (f *Fanout) ToUsers(act model.Activity, userIDs ...string) int {
	frame, ok := f.notifier.Frame(dto.NewActivityPush(act), model.PriorityLow)
	if !ok {
		return 0
	}
	delivered := 0
	seen := make(map[string]struct{}, len(userIDs))
	for _, uid := range userIDs {
		if _, dup := seen[uid]; dup || uid == "" {
			continue
		}
		seen[uid] = struct{}{}
		delivered += f.notifier.User(uid, frame, uuid.Nil)
	}
	return delivered
}

// NewMessage pushes an externally stored message notice to the recipient's sessions.
func (f *Fanout) NewMessage(n model.NewMessageNotice) int {
	if n.To == "" {
		return 0
	}
	frame, ok := f.notifier.Frame(dto.NewNewMessagePush(n), model.PriorityNormal)
	if !ok {
		return 0
	}
	return f.notifier.User(n.To, frame, uuid.Nil)
}

// PublishActivity mirrors a locally produced activity onto the bus.
func (f *Fanout) PublishActivity(ctx context.Context, act model.Activity) {
	if err := f.publisher.PublishActivity(ctx, act); err != nil {
		f.logger.Warn("ACTIVITY_PUBLISH_FAILED", "activity_id", act.ID, "kind", act.Kind, "err", err)
	}
}

// PublishNewMessage announces a routed DM so recipients on other instances are notified.
func (f *Fanout) PublishNewMessage(ctx context.Context, n model.NewMessageNotice) {
	if err := f.publisher.PublishNewMessage(ctx, n); err != nil {
		f.logger.Warn("NEW_MESSAGE_PUBLISH_FAILED", "to", n.To, "err", err)
	}
}
