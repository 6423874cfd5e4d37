package model

import "time"

// SortOrder controls the direction of durable history listings.
type SortOrder int8

const (
	OrderAsc SortOrder = iota + 1
	OrderDesc
)

// [MESSAGE] CORE ENTITY REPRESENTING A ROOM CHAT LINE
// The same value is kept in the in-memory history ring and in the durable store.
type ChatMessage struct {
	ID         string    `json:"id"`
	Room       string    `json:"room"`
	From       string    `json:"from"`
	FromUserID string    `json:"fromUserId,omitempty"`
	Text       string    `json:"message"`
	Timestamp  time.Time `json:"timestamp"`
}

// Reaction is an emoji attached to a stored chat message.
type Reaction struct {
	MessageID string    `json:"messageId"`
	UserID    string    `json:"userId"`
	Username  string    `json:"username"`
	Emoji     string    `json:"emoji"`
	CreatedAt time.Time `json:"createdAt"`
}

// DirectMessage is the envelope routed between two users.
// The hub only routes it; the durable copy belongs to the DM store.
type DirectMessage struct {
	ID           string    `json:"id"`
	FromUserID   string    `json:"fromUserId"`
	FromUsername string    `json:"fromUsername"`
	ToUserID     string    `json:"toUserId"`
	ToUsername   string    `json:"toUsername"`
	Text         string    `json:"message"`
	Timestamp    time.Time `json:"timestamp"`
}

// NewMessageNotice is what an out-of-hub process announces after storing a DM
// through its own API.
// From/To are user IDs; the names are filled in by the hub when it can resolve them.
type NewMessageNotice struct {
	Type         string    `json:"type"`
	From         string    `json:"from"`
	To           string    `json:"to"`
	FromUsername string    `json:"fromUsername,omitempty"`
	ToUsername   string    `json:"toUsername,omitempty"`
	Message      string    `json:"message"`
	Timestamp    time.Time `json:"timestamp"`
}
