package resilient

import (
	"context"
	"log/slog"

	"github.com/sony/gobreaker"
	"github.com/webitel/im-chat-hub/internal/domain/model"
	"github.com/webitel/im-chat-hub/internal/service"
)

var (
	_ service.MessageStore  = (*Messages)(nil)
	_ service.RoomStore     = (*Rooms)(nil)
	_ service.UserStore     = (*Users)(nil)
	_ service.DMStore       = (*DMs)(nil)
	_ service.ActivityStore = (*Activities)(nil)
)

type Messages struct {
	next service.MessageStore
	cb   *gobreaker.CircuitBreaker
}

func NewMessages(next service.MessageStore, s Settings, logger *slog.Logger) *Messages {
	return &Messages{next: next, cb: newBreaker("messages", s, logger)}
}

func (m *Messages) Append(ctx context.Context, msg *model.ChatMessage) error {
	return call(m.cb, func() error { return m.next.Append(ctx, msg) })
}

func (m *Messages) List(ctx context.Context, room string, limit int, order model.SortOrder) ([]model.ChatMessage, error) {
	return query(m.cb, func() ([]model.ChatMessage, error) { return m.next.List(ctx, room, limit, order) })
}

func (m *Messages) AddReaction(ctx context.Context, room, messageID string, r model.Reaction) error {
	return call(m.cb, func() error { return m.next.AddReaction(ctx, room, messageID, r) })
}

type Rooms struct {
	next service.RoomStore
	cb   *gobreaker.CircuitBreaker
}

func NewRooms(next service.RoomStore, s Settings, logger *slog.Logger) *Rooms {
	return &Rooms{next: next, cb: newBreaker("rooms", s, logger)}
}

func (r *Rooms) FindByName(ctx context.Context, name string) (*model.Room, error) {
	return query(r.cb, func() (*model.Room, error) { return r.next.FindByName(ctx, name) })
}

func (r *Rooms) SetOnlineCount(ctx context.Context, name string, n int) error {
	return call(r.cb, func() error { return r.next.SetOnlineCount(ctx, name, n) })
}

func (r *Rooms) TouchLastMessage(ctx context.Context, name string) error {
	return call(r.cb, func() error { return r.next.TouchLastMessage(ctx, name) })
}

type Users struct {
	next service.UserStore
	cb   *gobreaker.CircuitBreaker
}

func NewUsers(next service.UserStore, s Settings, logger *slog.Logger) *Users {
	return &Users{next: next, cb: newBreaker("users", s, logger)}
}

func (u *Users) SetStatus(ctx context.Context, userID string, status model.UserStatus) error {
	return call(u.cb, func() error { return u.next.SetStatus(ctx, userID, status) })
}

func (u *Users) FindByID(ctx context.Context, userID string) (*model.User, error) {
	return query(u.cb, func() (*model.User, error) { return u.next.FindByID(ctx, userID) })
}

type DMs struct {
	next service.DMStore
	cb   *gobreaker.CircuitBreaker
}

func NewDMs(next service.DMStore, s Settings, logger *slog.Logger) *DMs {
	return &DMs{next: next, cb: newBreaker("direct_messages", s, logger)}
}

func (d *DMs) Append(ctx context.Context, dm *model.DirectMessage) error {
	return call(d.cb, func() error { return d.next.Append(ctx, dm) })
}

type Activities struct {
	next service.ActivityStore
	cb   *gobreaker.CircuitBreaker
}

func NewActivities(next service.ActivityStore, s Settings, logger *slog.Logger) *Activities {
	return &Activities{next: next, cb: newBreaker("activities", s, logger)}
}

func (a *Activities) Create(ctx context.Context, act *model.Activity) (*model.Activity, error) {
	return query(a.cb, func() (*model.Activity, error) { return a.next.Create(ctx, act) })
}
