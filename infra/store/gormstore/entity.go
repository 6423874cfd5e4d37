package gormstore

import (
	"time"

	"github.com/webitel/im-chat-hub/internal/domain/model"
)

type User struct {
	ID         string    `gorm:"primarykey;size:36"`
	Username   string    `gorm:"size:64;uniqueIndex;not null"`
	Status     string    `gorm:"size:16;not null;default:offline"`
	LastSeenAt *time.Time
	CreatedAt  time.Time
}

func (User) TableName() string { return "users" }

func (u *User) toDomain() *model.User {
	return &model.User{ID: u.ID, Username: u.Username, Status: model.UserStatus(u.Status)}
}

// Room members are durable membership; Online mirrors live attendance.
type Room struct {
	ID            string `gorm:"primarykey;size:36"`
	Name          string `gorm:"size:100;uniqueIndex;not null"`
	Description   string `gorm:"size:500"`
	Category      string `gorm:"size:64"`
	CreatorID     string `gorm:"size:36"`
	Members       []User `gorm:"many2many:room_members"`
	Online        int    `gorm:"not null;default:0"`
	LastMessageAt *time.Time
	CreatedAt     time.Time
}

func (Room) TableName() string { return "rooms" }

func (r *Room) toDomain() *model.Room {
	out := &model.Room{
		ID:          r.ID,
		Name:        r.Name,
		Description: r.Description,
		Category:    r.Category,
		CreatorID:   r.CreatorID,
		Online:      r.Online,
		Members:     make([]string, 0, len(r.Members)),
	}
	if r.LastMessageAt != nil {
		out.LastMessageAt = *r.LastMessageAt
	}
	for _, m := range r.Members {
		out.Members = append(out.Members, m.ID)
	}
	return out
}

type Message struct {
	ID         string    `gorm:"primarykey;size:36"`
	Room       string    `gorm:"size:100;index:idx_messages_room_created,priority:1;not null"`
	FromUserID string    `gorm:"size:36"`
	From       string    `gorm:"size:64;not null"`
	Text       string    `gorm:"not null"`
	CreatedAt  time.Time `gorm:"index:idx_messages_room_created,priority:2"`
	Reactions  []Reaction
}

func (Message) TableName() string { return "messages" }

func (m *Message) toDomain() model.ChatMessage {
	return model.ChatMessage{
		ID:         m.ID,
		Room:       m.Room,
		From:       m.From,
		FromUserID: m.FromUserID,
		Text:       m.Text,
		Timestamp:  m.CreatedAt.UTC(),
	}
}

type Reaction struct {
	ID        uint   `gorm:"primarykey"`
	MessageID string `gorm:"size:36;index;not null"`
	UserID    string `gorm:"size:36;not null"`
	Username  string `gorm:"size:64"`
	Emoji     string `gorm:"size:32;not null"`
	CreatedAt time.Time
}

func (Reaction) TableName() string { return "reactions" }

type DirectMessage struct {
	ID           string `gorm:"primarykey;size:36"`
	FromUserID   string `gorm:"size:36;index;not null"`
	FromUsername string `gorm:"size:64"`
	ToUserID     string `gorm:"size:36;index;not null"`
	ToUsername   string `gorm:"size:64"`
	Text         string `gorm:"not null"`
	Read         bool   `gorm:"not null;default:false"`
	CreatedAt    time.Time
}

func (DirectMessage) TableName() string { return "direct_messages" }

type Activity struct {
	ID          string `gorm:"primarykey;size:36"`
	Kind        string `gorm:"size:32;index;not null"`
	Title       string `gorm:"size:200"`
	Description string `gorm:"size:500"`
	UserID      string `gorm:"size:36;index"`
	Username    string `gorm:"size:64"`
	RoomName    string `gorm:"size:100;index"`
	RecipientID string `gorm:"size:36;index"`
	CreatedAt   time.Time
}

func (Activity) TableName() string { return "activities" }

func (a *Activity) toDomain() *model.Activity {
	return &model.Activity{
		ID:          a.ID,
		Kind:        model.ActivityKind(a.Kind),
		Title:       a.Title,
		Description: a.Description,
		UserID:      a.UserID,
		Username:    a.Username,
		RoomName:    a.RoomName,
		RecipientID: a.RecipientID,
		Timestamp:   a.CreatedAt.UTC(),
	}
}

// Entities lists every table AutoMigrate manages.
func Entities() []any {
	return []any{&User{}, &Room{}, &Message{}, &Reaction{}, &DirectMessage{}, &Activity{}}
}
