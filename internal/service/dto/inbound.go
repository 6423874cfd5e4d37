// Package dto holds the client protocol: the tagged {type, ...} envelopes
// exchanged over a connection.
package dto

// InboundType is the discriminator of a client envelope.
type InboundType string

const (
	InAuth     InboundType = "auth"
	InPing     InboundType = "ping"
	InJoin     InboundType = "join"
	InLeave    InboundType = "leave"
	InChat     InboundType = "chat"
	InTyping   InboundType = "typing"
	InDM       InboundType = "dm"
	InReaction InboundType = "reaction"
)

// Inbound is the union of every field a client may send.
// Which fields are required depends on Type.
type Inbound struct {
	Type      InboundType `json:"type"`
	Token     string      `json:"token,omitempty"`
	Room      string      `json:"room,omitempty"`
	Message   string      `json:"message,omitempty"`
	IsTyping  *bool       `json:"isTyping,omitempty"`
	ToUserID  string      `json:"toUserId,omitempty"`
	MessageID string      `json:"messageId,omitempty"`
	Emoji     string      `json:"emoji,omitempty"`
}
