package gormstore

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/webitel/im-chat-hub/internal/domain/model"
	"github.com/webitel/im-chat-hub/internal/service"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	_ service.MessageStore  = (*MessageRepository)(nil)
	_ service.RoomStore     = (*RoomRepository)(nil)
	_ service.UserStore     = (*UserRepository)(nil)
	_ service.DMStore       = (*DMRepository)(nil)
	_ service.ActivityStore = (*ActivityRepository)(nil)
)

// --- messages ---

type MessageRepository struct {
	db *gorm.DB
}

func NewMessageRepository(db *gorm.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

func (r *MessageRepository) Append(ctx context.Context, msg *model.ChatMessage) error {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}
	row := &Message{
		ID:         msg.ID,
		Room:       msg.Room,
		FromUserID: msg.FromUserID,
		From:       msg.From,
		Text:       msg.Text,
		CreatedAt:  msg.Timestamp,
	}
	return wrap("create message", r.db.WithContext(ctx).Create(row).Error)
}

// List returns up to limit messages of room ordered by creation time.
func (r *MessageRepository) List(ctx context.Context, room string, limit int, order model.SortOrder) ([]model.ChatMessage, error) {
	dir := "ASC"
	if order == model.OrderDesc {
		dir = "DESC"
	}

	var rows []Message
	err := r.db.WithContext(ctx).
		Where("room = ?", room).
		Order("created_at " + dir).
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, wrap("list messages", err)
	}

	out := make([]model.ChatMessage, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toDomain())
	}
	return out, nil
}

func (r *MessageRepository) AddReaction(ctx context.Context, room, messageID string, re model.Reaction) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&Message{}).Where("id = ? AND room = ?", messageID, room).Count(&n).Error; err != nil {
			return wrap("find message", err)
		}
		if n == 0 {
			return model.NewNotFoundError("message not found")
		}
		row := &Reaction{
			MessageID: messageID,
			UserID:    re.UserID,
			Username:  re.Username,
			Emoji:     re.Emoji,
			CreatedAt: re.CreatedAt,
		}
		return wrap("create reaction", tx.Create(row).Error)
	})
}

// --- rooms ---

type RoomRepository struct {
	db *gorm.DB
}

func NewRoomRepository(db *gorm.DB) *RoomRepository {
	return &RoomRepository{db: db}
}

func (r *RoomRepository) FindByName(ctx context.Context, name string) (*model.Room, error) {
	var row Room
	if err := r.db.WithContext(ctx).Preload("Members").First(&row, "name = ?", name).Error; err != nil {
		return nil, wrap("find room", err)
	}
	return row.toDomain(), nil
}

func (r *RoomRepository) SetOnlineCount(ctx context.Context, name string, n int) error {
	return wrap("update room", r.db.WithContext(ctx).
		Model(&Room{}).Where("name = ?", name).
		Update("online", n).Error)
}

func (r *RoomRepository) TouchLastMessage(ctx context.Context, name string) error {
	return wrap("update room", r.db.WithContext(ctx).
		Model(&Room{}).Where("name = ?", name).
		Update("last_message_at", time.Now().UTC()).Error)
}

// --- users ---

type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) SetStatus(ctx context.Context, userID string, status model.UserStatus) error {
	updates := map[string]any{"status": string(status)}
	if status == model.StatusOffline {
		updates["last_seen_at"] = time.Now().UTC()
	}
	return wrap("update user", r.db.WithContext(ctx).
		Model(&User{}).Where("id = ?", userID).
		Updates(updates).Error)
}

func (r *UserRepository) FindByID(ctx context.Context, userID string) (*model.User, error) {
	var row User
	if err := r.db.WithContext(ctx).First(&row, "id = ?", userID).Error; err != nil {
		return nil, wrap("find user", err)
	}
	return row.toDomain(), nil
}

// --- direct messages ---

type DMRepository struct {
	db *gorm.DB
}

func NewDMRepository(db *gorm.DB) *DMRepository {
	return &DMRepository{db: db}
}

func (r *DMRepository) Append(ctx context.Context, dm *model.DirectMessage) error {
	if dm.ID == "" {
		dm.ID = uuid.NewString()
	}
	row := &DirectMessage{
		ID:           dm.ID,
		FromUserID:   dm.FromUserID,
		FromUsername: dm.FromUsername,
		ToUserID:     dm.ToUserID,
		ToUsername:   dm.ToUsername,
		Text:         dm.Text,
		CreatedAt:    dm.Timestamp,
	}
	return wrap("create direct message", r.db.WithContext(ctx).Create(row).Error)
}

// --- activities ---

type ActivityRepository struct {
	db *gorm.DB
}

func NewActivityRepository(db *gorm.DB) *ActivityRepository {
	return &ActivityRepository{db: db}
}

func (r *ActivityRepository) Create(ctx context.Context, act *model.Activity) (*model.Activity, error) {
	if act.ID == "" {
		act.ID = uuid.NewString()
	}
	if act.Timestamp.IsZero() {
		act.Timestamp = time.Now().UTC()
	}
	row := &Activity{
		ID:          act.ID,
		Kind:        string(act.Kind),
		Title:       act.Title,
		Description: act.Description,
		UserID:      act.UserID,
		Username:    act.Username,
		RoomName:    act.RoomName,
		RecipientID: act.RecipientID,
		CreatedAt:   act.Timestamp,
	}
	if err := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(row).Error; err != nil {
		return nil, wrap("create activity", err)
	}
	return row.toDomain(), nil
}

// Recent lists the newest activities visible to userID: not its own, and
// either global, addressed to it, or in a room it belongs to.
func (r *ActivityRepository) Recent(ctx context.Context, userID string, limit int) ([]model.Activity, error) {
	rooms := r.db.Table("room_members").
		Select("rooms.name").
		Joins("JOIN rooms ON rooms.id = room_members.room_id").
		Where("room_members.user_id = ?", userID)

	var rows []Activity
	err := r.db.WithContext(ctx).
		Where("user_id <> ?", userID).
		Where(r.db.
			Where("recipient_id = ?", userID).
			Or("recipient_id = '' AND room_name = ''").
			Or("recipient_id = '' AND room_name IN (?)", rooms)).
		Order("created_at DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, wrap("list activities", err)
	}

	out := make([]model.Activity, 0, len(rows))
	for i := range rows {
		out = append(out, *rows[i].toDomain())
	}
	return out, nil
}
