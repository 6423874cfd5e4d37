package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type ActivityKind string

const (
	ActivityRoomCreated ActivityKind = "room_created"
	ActivityUserSignup  ActivityKind = "user_signup"
	ActivityUserJoined  ActivityKind = "user_joined"
	ActivityMessageSent ActivityKind = "message_sent"
	ActivityDMSent      ActivityKind = "dm_sent"
)

// Activity describes a noteworthy action for fan-out to interested connections.
//
// [SCOPE]
//   - RecipientID set: only that user hears about it.
//   - RoomName set: only durable members of the room.
//   - neither: every authenticated connection.
//
// The originating user (UserID) never receives its own activity.
type Activity struct {
	ID          string       `json:"id"`
	Kind        ActivityKind `json:"type"`
	Title       string       `json:"title"`
	Description string       `json:"description"`
	UserID      string       `json:"userId,omitempty"`
	Username    string       `json:"username,omitempty"`
	RoomName    string       `json:"roomName,omitempty"`
	RecipientID string       `json:"recipientId,omitempty"`
	Timestamp   time.Time    `json:"timestamp"`
}

// NewMessageSentActivity derives the room notification for a posted message.
func NewMessageSentActivity(msg ChatMessage) Activity {
	return Activity{
		ID:          uuid.NewString(),
		Kind:        ActivityMessageSent,
		Title:       fmt.Sprintf("New message in #%s", msg.Room),
		Description: fmt.Sprintf("@%s: %s", msg.From, preview(msg.Text)),
		UserID:      msg.FromUserID,
		Username:    msg.From,
		RoomName:    msg.Room,
		Timestamp:   msg.Timestamp,
	}
}

// NewDMSentActivity derives the private notification for a direct message.
func NewDMSentActivity(dm DirectMessage) Activity {
	return Activity{
		ID:          uuid.NewString(),
		Kind:        ActivityDMSent,
		Title:       fmt.Sprintf("Message from @%s", dm.FromUsername),
		Description: preview(dm.Text),
		UserID:      dm.FromUserID,
		Username:    dm.FromUsername,
		RecipientID: dm.ToUserID,
		Timestamp:   dm.Timestamp,
	}
}

func preview(text string) string {
	const limit = 50
	r := []rune(text)
	if len(r) <= limit {
		return text
	}
	return string(r[:limit]) + "…"
}
