package model

import "time"

type HubStats struct {
	TotalConnections   int           `json:"total_connections"`
	AuthenticatedConns int           `json:"authenticated_connections"`
	TotalUsers         int           `json:"total_users"`
	Uptime             time.Duration `json:"uptime"`
	Rooms              []RoomStats   `json:"rooms,omitempty"`
}

type RoomStats struct {
	Name   string `json:"name"`
	Online int    `json:"online"`
}
