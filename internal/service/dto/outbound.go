package dto

import (
	"time"

	"github.com/webitel/im-chat-hub/internal/domain/model"
)

const (
	OutAuth       = "auth"
	OutPong       = "pong"
	OutHistory    = "history"
	OutMessage    = "message"
	OutTyping     = "typing"
	OutDM         = "dm"
	OutReaction   = "reaction"
	OutError      = "error"
	OutRoomUpdate = "room_update"
	OutActivity   = "activity"
	OutNewMessage = "new_message"
)

type AuthReply struct {
	Type     string `json:"type"`
	Success  bool   `json:"success"`
	UserID   string `json:"userId,omitempty"`
	Username string `json:"username,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

func NewAuthOK(id model.Identity) AuthReply {
	return AuthReply{Type: OutAuth, Success: true, UserID: id.UserID, Username: id.Username}
}

func NewAuthFailed(reason string) AuthReply {
	return AuthReply{Type: OutAuth, Success: false, Reason: reason}
}

type Pong struct {
	Type string `json:"type"`
}

func NewPong() Pong { return Pong{Type: OutPong} }

type History struct {
	Type     string              `json:"type"`
	Room     string              `json:"room"`
	Messages []model.ChatMessage `json:"messages"`
}

func NewHistory(room string, msgs []model.ChatMessage) History {
	if msgs == nil {
		msgs = []model.ChatMessage{}
	}
	return History{Type: OutHistory, Room: room, Messages: msgs}
}

type Message struct {
	Type      string    `json:"type"`
	ID        string    `json:"id"`
	From      string    `json:"from"`
	Message   string    `json:"message"`
	Room      string    `json:"room"`
	Timestamp time.Time `json:"timestamp"`
}

func NewMessage(m model.ChatMessage) Message {
	return Message{
		Type:      OutMessage,
		ID:        m.ID,
		From:      m.From,
		Message:   m.Text,
		Room:      m.Room,
		Timestamp: m.Timestamp,
	}
}

type Typing struct {
	Type     string `json:"type"`
	Username string `json:"username"`
	IsTyping bool   `json:"isTyping"`
}

func NewTyping(username string, isTyping bool) Typing {
	return Typing{Type: OutTyping, Username: username, IsTyping: isTyping}
}

type DM struct {
	Type         string    `json:"type"`
	ID           string    `json:"id"`
	FromUserID   string    `json:"fromUserId"`
	FromUsername string    `json:"fromUsername"`
	ToUserID     string    `json:"toUserId"`
	ToUsername   string    `json:"toUsername"`
	Message      string    `json:"message"`
	Timestamp    time.Time `json:"timestamp"`
}

func NewDM(dm model.DirectMessage) DM {
	return DM{
		Type:         OutDM,
		ID:           dm.ID,
		FromUserID:   dm.FromUserID,
		FromUsername: dm.FromUsername,
		ToUserID:     dm.ToUserID,
		ToUsername:   dm.ToUsername,
		Message:      dm.Text,
		Timestamp:    dm.Timestamp,
	}
}

type Reaction struct {
	Type      string `json:"type"`
	MessageID string `json:"messageId"`
	UserID    string `json:"userId"`
	Username  string `json:"username"`
	Emoji     string `json:"emoji"`
}

func NewReaction(r model.Reaction) Reaction {
	return Reaction{
		Type:      OutReaction,
		MessageID: r.MessageID,
		UserID:    r.UserID,
		Username:  r.Username,
		Emoji:     r.Emoji,
	}
}

type Error struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Kind    string `json:"kind,omitempty"`
}

func NewError(err error) Error {
	return Error{
		Type:    OutError,
		Message: model.PublicMessage(err),
		Kind:    string(model.KindOf(err)),
	}
}

type RoomUpdate struct {
	Type   string `json:"type"`
	Room   string `json:"room"`
	Online int    `json:"online"`
}

func NewRoomUpdate(room string, online int) RoomUpdate {
	return RoomUpdate{Type: OutRoomUpdate, Room: room, Online: online}
}

type ActivityPush struct {
	Type     string         `json:"type"`
	Activity model.Activity `json:"activity"`
}

func NewActivityPush(a model.Activity) ActivityPush {
	return ActivityPush{Type: OutActivity, Activity: a}
}

type NewMessagePush struct {
	Type string                 `json:"type"`
	Data model.NewMessageNotice `json:"data"`
}

func NewNewMessagePush(n model.NewMessageNotice) NewMessagePush {
	return NewMessagePush{Type: OutNewMessage, Data: n}
}
