package model

import (
	"slices"
	"time"
)

// Room is the durable view of a broadcast domain.
// Members holds durable membership (user IDs), not live attendance.
type Room struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Description   string    `json:"description,omitempty"`
	Category      string    `json:"category,omitempty"`
	CreatorID     string    `json:"creatorId,omitempty"`
	Members       []string  `json:"members,omitempty"`
	Online        int       `json:"online"`
	LastMessageAt time.Time `json:"lastMessageAt"`
}

func (r *Room) HasMember(userID string) bool {
	return userID != "" && slices.Contains(r.Members, userID)
}

// UserStatus is the externally visible presence of a user.
type UserStatus string

const (
	StatusOnline  UserStatus = "online"
	StatusOffline UserStatus = "offline"
)

type User struct {
	ID       string     `json:"id"`
	Username string     `json:"username"`
	Status   UserStatus `json:"status"`
}

// Identity is what a verified credential proves about its bearer.
type Identity struct {
	UserID   string
	Username string
}
