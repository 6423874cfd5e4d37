package registry

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/webitel/im-chat-hub/internal/domain/model"
)

// Hubber defines the gateway for connection bookkeeping and fan-out lookups.
type Hubber interface {
	Connect(ctx context.Context, remoteAddr string) Connector
	Register(conn Connector)
	Unregister(connID uuid.UUID) (Departure, bool)
	Authenticate(connID uuid.UUID, userID, username string) bool
	MoveToRoom(connID uuid.UUID, room string) (previous string, ok bool)
	LeaveRoom(connID uuid.UUID) (room string, ok bool)

	Lookup(connID uuid.UUID) (Connector, bool)
	LookupByUserID(userID string) (Connector, bool)
	ConnectionsOfUser(userID string) []Connector
	ForEachAuthenticated(fn func(Connector))
	ForEachInRoom(room string, fn func(Connector))

	OnlineCount(room string) int
	IsOnline(userID string) bool
	Stats() model.HubStats
	Shutdown()
}

// Departure describes what an unregistered connection held.
type Departure struct {
	ConnID        uuid.UUID
	Authenticated bool
	UserID        string
	Username      string
	Room          string
	// LastSession is true when no other connection of the same user remains.
	LastSession bool
}

type hubConfig struct {
	sendBuffer  int
	sendTimeout time.Duration
}

// Hub implements the [SCALABLE_REGISTRY]: the global set plus user and room cells.
type Hub struct {
	config    hubConfig
	startedAt time.Time

	mu    sync.RWMutex
	conns map[uuid.UUID]Connector
	users map[string]*cell
	rooms map[string]*cell
}

func NewHub(opts ...Option) *Hub {
	h := &Hub{
		config: hubConfig{
			sendBuffer:  256,
			sendTimeout: 500 * time.Millisecond,
		},
		startedAt: time.Now(),
		conns:     make(map[uuid.UUID]Connector),
		users:     make(map[string]*cell),
		rooms:     make(map[string]*cell),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Connect creates a connector with the hub's queue settings and registers it.
func (h *Hub) Connect(ctx context.Context, remoteAddr string) Connector {
	conn := NewConnector(ctx, remoteAddr, h.config.sendBuffer, h.config.sendTimeout)
	h.Register(conn)
	return conn
}

func (h *Hub) Register(conn Connector) {
	h.mu.Lock()
	h.conns[conn.GetID()] = conn
	h.mu.Unlock()
}

// Unregister performs [GRACEFUL_RECLAMATION]: the connection leaves the global
// set, its room cell and its user cell in one critical section.
// Only the first call for a given connection reports ok.
func (h *Hub) Unregister(connID uuid.UUID) (Departure, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	conn, ok := h.conns[connID]
	if !ok {
		return Departure{}, false
	}
	delete(h.conns, connID)

	st := conn.State()
	dep := Departure{
		ConnID:        connID,
		Authenticated: st.Authenticated,
		UserID:        st.UserID,
		Username:      st.Username,
		Room:          st.Room,
	}

	if st.Room != "" {
		if rc, ok := h.rooms[st.Room]; ok {
			rc.detach(connID)
		}
	}
	if st.Authenticated {
		if uc, ok := h.users[st.UserID]; ok {
			if uc.detach(connID) {
				delete(h.users, st.UserID)
				dep.LastSession = true
			}
		} else {
			dep.LastSession = true
		}
	}
	return dep, true
}

// Authenticate binds identity to a registered connection and indexes the user.
func (h *Hub) Authenticate(connID uuid.UUID, userID, username string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	conn, ok := h.conns[connID]
	if !ok {
		return false
	}
	conn.bind(userID, username)

	// [LAZY_INIT] User cell appears with the first authenticated session.
	uc, ok := h.users[userID]
	if !ok {
		uc = newCell()
		h.users[userID] = uc
	}
	uc.attach(connID)
	return true
}

// MoveToRoom detaches the connection from its current room and attaches it to
// room atomically. Room cells are kept when they become empty.
func (h *Hub) MoveToRoom(connID uuid.UUID, room string) (string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	conn, ok := h.conns[connID]
	if !ok {
		return "", false
	}
	previous := conn.State().Room
	if previous != "" {
		if rc, ok := h.rooms[previous]; ok {
			rc.detach(connID)
		}
	}

	rc, ok := h.rooms[room]
	if !ok {
		rc = newCell()
		h.rooms[room] = rc
	}
	rc.attach(connID)
	conn.setRoom(room)
	return previous, true
}

func (h *Hub) LeaveRoom(connID uuid.UUID) (string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	conn, ok := h.conns[connID]
	if !ok {
		return "", false
	}
	room := conn.State().Room
	if room == "" {
		return "", false
	}
	if rc, ok := h.rooms[room]; ok {
		rc.detach(connID)
	}
	conn.setRoom("")
	return room, true
}

func (h *Hub) Lookup(connID uuid.UUID) (Connector, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	conn, ok := h.conns[connID]
	return conn, ok
}

// LookupByUserID returns the most recently authenticated session of the user.
func (h *Hub) LookupByUserID(userID string) (Connector, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	uc, ok := h.users[userID]
	if !ok {
		return nil, false
	}
	id, ok := uc.latest()
	if !ok {
		return nil, false
	}
	conn, ok := h.conns[id]
	return conn, ok
}

func (h *Hub) ConnectionsOfUser(userID string) []Connector {
	h.mu.RLock()
	defer h.mu.RUnlock()

	uc, ok := h.users[userID]
	if !ok {
		return nil
	}
	return h.resolveLocked(uc.ids())
}

// ForEachAuthenticated calls fn for every authenticated connection.
// fn runs outside the lock on a snapshot taken under it.
func (h *Hub) ForEachAuthenticated(fn func(Connector)) {
	h.mu.RLock()
	snapshot := make([]Connector, 0, len(h.conns))
	for _, conn := range h.conns {
		if conn.State().Authenticated {
			snapshot = append(snapshot, conn)
		}
	}
	h.mu.RUnlock()

	for _, conn := range snapshot {
		fn(conn)
	}
}

func (h *Hub) ForEachInRoom(room string, fn func(Connector)) {
	h.mu.RLock()
	var snapshot []Connector
	if rc, ok := h.rooms[room]; ok {
		snapshot = h.resolveLocked(rc.ids())
	}
	h.mu.RUnlock()

	for _, conn := range snapshot {
		fn(conn)
	}
}

func (h *Hub) resolveLocked(ids []uuid.UUID) []Connector {
	out := make([]Connector, 0, len(ids))
	for _, id := range ids {
		if conn, ok := h.conns[id]; ok {
			out = append(out, conn)
		}
	}
	return out
}

// OnlineCount is the number of live connections attached to room.
func (h *Hub) OnlineCount(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if rc, ok := h.rooms[room]; ok {
		return rc.size()
	}
	return 0
}

func (h *Hub) IsOnline(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	_, ok := h.users[userID]
	return ok
}

func (h *Hub) Stats() model.HubStats {
	h.mu.RLock()
	defer h.mu.RUnlock()

	stats := model.HubStats{
		TotalConnections: len(h.conns),
		TotalUsers:       len(h.users),
		Uptime:           time.Since(h.startedAt).Round(time.Second),
		Rooms:            make([]model.RoomStats, 0, len(h.rooms)),
	}
	for _, conn := range h.conns {
		if conn.State().Authenticated {
			stats.AuthenticatedConns++
		}
	}
	for name, rc := range h.rooms {
		stats.Rooms = append(stats.Rooms, model.RoomStats{Name: name, Online: rc.size()})
	}
	sort.Slice(stats.Rooms, func(i, j int) bool { return stats.Rooms[i].Name < stats.Rooms[j].Name })
	return stats
}

// Shutdown closes every live connection. Transports notice Done() and
// run their own disconnect path.
func (h *Hub) Shutdown() {
	h.mu.RLock()
	snapshot := make([]Connector, 0, len(h.conns))
	for _, conn := range h.conns {
		snapshot = append(snapshot, conn)
	}
	h.mu.RUnlock()

	for _, conn := range snapshot {
		conn.Close()
	}
}
