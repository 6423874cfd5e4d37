package service

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/webitel/im-chat-hub/internal/domain/history"
	"github.com/webitel/im-chat-hub/internal/domain/model"
	"github.com/webitel/im-chat-hub/internal/domain/registry"
	wsmarshaller "github.com/webitel/im-chat-hub/internal/handler/marshaller/ws"
)

var errStoreDown = errors.New("store is down")

// --- verifier ---

type fakeVerifier struct {
	tokens map[string]model.Identity
}

func (v *fakeVerifier) Verify(_ context.Context, token string) (model.Identity, error) {
	id, ok := v.tokens[token]
	if !ok {
		return model.Identity{}, errors.New("signature is invalid")
	}
	return id, nil
}

// --- messages ---

type fakeMessages struct {
	mu          sync.Mutex
	msgs        []model.ChatMessage
	reactions   []model.Reaction
	failAppend  error
	failList    error
	failReact   error
	listCalls   int
	appendCalls int
}

func (s *fakeMessages) Append(_ context.Context, msg *model.ChatMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appendCalls++
	if s.failAppend != nil {
		return model.NewPersistenceError("append message", s.failAppend)
	}
	s.msgs = append(s.msgs, *msg)
	return nil
}

func (s *fakeMessages) List(_ context.Context, room string, limit int, order model.SortOrder) ([]model.ChatMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listCalls++
	if s.failList != nil {
		return nil, model.NewPersistenceError("list messages", s.failList)
	}
	var out []model.ChatMessage
	for _, m := range s.msgs {
		if m.Room == room {
			out = append(out, m)
		}
	}
	if order == model.OrderDesc {
		slices.Reverse(out)
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *fakeMessages) AddReaction(_ context.Context, room, messageID string, r model.Reaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failReact != nil {
		return model.NewPersistenceError("add reaction", s.failReact)
	}
	for _, m := range s.msgs {
		if m.ID == messageID && m.Room == room {
			s.reactions = append(s.reactions, r)
			return nil
		}
	}
	return model.NewNotFoundError("message not found")
}

func (s *fakeMessages) stored() []model.ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.msgs)
}

// --- rooms ---

type fakeRooms struct {
	mu      sync.Mutex
	rooms   map[string]*model.Room
	online  map[string]int
	touched map[string]int
	failGet error
}

func newFakeRooms(rooms ...model.Room) *fakeRooms {
	r := &fakeRooms{
		rooms:   make(map[string]*model.Room),
		online:  make(map[string]int),
		touched: make(map[string]int),
	}
	for i := range rooms {
		room := rooms[i]
		r.rooms[room.Name] = &room
	}
	return r
}

func (s *fakeRooms) FindByName(_ context.Context, name string) (*model.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failGet != nil {
		return nil, model.NewPersistenceError("find room", s.failGet)
	}
	room, ok := s.rooms[name]
	if !ok {
		return nil, model.NewNotFoundError("room not found")
	}
	cp := *room
	return &cp, nil
}

func (s *fakeRooms) SetOnlineCount(_ context.Context, name string, n int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.online[name] = n
	return nil
}

func (s *fakeRooms) TouchLastMessage(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touched[name]++
	return nil
}

func (s *fakeRooms) onlineOf(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.online[name]
}

// --- users ---

type fakeUsers struct {
	mu       sync.Mutex
	users    map[string]*model.User
	statuses map[string]model.UserStatus
	finds    int

	// beforeSet runs once, ahead of the next write, outside the lock.
	beforeSet func(userID string, status model.UserStatus)
}

func newFakeUsers(users ...model.User) *fakeUsers {
	u := &fakeUsers{users: make(map[string]*model.User), statuses: make(map[string]model.UserStatus)}
	for i := range users {
		user := users[i]
		u.users[user.ID] = &user
	}
	return u
}

func (s *fakeUsers) SetStatus(_ context.Context, userID string, status model.UserStatus) error {
	s.mu.Lock()
	hook := s.beforeSet
	s.beforeSet = nil
	s.mu.Unlock()
	if hook != nil {
		hook(userID, status)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses[userID] = status
	return nil
}

func (s *fakeUsers) FindByID(_ context.Context, userID string) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finds++
	u, ok := s.users[userID]
	if !ok {
		return nil, model.NewNotFoundError("user not found")
	}
	cp := *u
	return &cp, nil
}

func (s *fakeUsers) statusOf(userID string) model.UserStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statuses[userID]
}

// --- dms / activities / publisher ---

type fakeDMs struct {
	mu   sync.Mutex
	dms  []model.DirectMessage
	fail error
}

func (s *fakeDMs) Append(_ context.Context, dm *model.DirectMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return model.NewPersistenceError("append dm", s.fail)
	}
	s.dms = append(s.dms, *dm)
	return nil
}

type fakeActivities struct {
	mu   sync.Mutex
	acts []model.Activity
}

func (s *fakeActivities) Create(_ context.Context, act *model.Activity) (*model.Activity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.acts = append(s.acts, *act)
	cp := *act
	return &cp, nil
}

type fakePublisher struct {
	mu       sync.Mutex
	acts     []model.Activity
	messages []model.NewMessageNotice
}

func (p *fakePublisher) PublishActivity(_ context.Context, act model.Activity) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.acts = append(p.acts, act)
	return nil
}

func (p *fakePublisher) PublishNewMessage(_ context.Context, n model.NewMessageNotice) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, n)
	return nil
}

// --- harness ---

type harness struct {
	hub        *registry.Hub
	cache      *history.Cache
	presence   *PresenceMonitor
	messages   *fakeMessages
	rooms      *fakeRooms
	users      *fakeUsers
	dms        *fakeDMs
	activities *fakeActivities
	publisher  *fakePublisher
	fanout     *Fanout
	session    *Session
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newHarness(t *testing.T, heartbeat time.Duration) *harness {
	t.Helper()

	logger := discardLogger()
	h := &harness{
		hub:      registry.NewHub(),
		cache:    history.New(history.DefaultCapacity),
		messages: &fakeMessages{},
		rooms: newFakeRooms(
			model.Room{Name: "general", Members: []string{"u1", "u2", "u3"}},
			model.Room{Name: "random", Members: []string{"u1", "u2"}},
			model.Room{Name: "private", Members: []string{"u2"}},
		),
		users: newFakeUsers(
			model.User{ID: "u1", Username: "alice"},
			model.User{ID: "u2", Username: "bob"},
			model.User{ID: "u3", Username: "carol"},
		),
		dms:        &fakeDMs{},
		activities: &fakeActivities{},
		publisher:  &fakePublisher{},
	}
	t.Cleanup(h.hub.Shutdown)

	verifier := &fakeVerifier{tokens: map[string]model.Identity{
		"tok-alice": {UserID: "u1", Username: "alice"},
		"tok-bob":   {UserID: "u2", Username: "bob"},
		"tok-carol": {UserID: "u3", Username: "carol"},
		"tok-anon":  {UserID: "u9", Username: ""},
	}}

	codec := wsmarshaller.New()
	notifier := NewNotifier(codec, h.hub, logger)
	h.presence = NewPresenceMonitor(heartbeat, logger)
	h.fanout = NewFanout(h.hub, h.rooms, notifier, h.publisher, logger)
	roomSvc := NewRoomService(h.hub, h.rooms, h.messages, h.cache, notifier, DefaultHistoryFetchLimit, logger)

	h.session = NewSession(SessionDeps{
		Hub:      h.hub,
		Auth:     NewAuthService(verifier, h.hub, h.users, h.presence, logger),
		Rooms:    roomSvc,
		Chat:     NewChatService(h.cache, h.messages, h.rooms, h.activities, roomSvc, h.fanout, notifier, logger),
		Direct:   NewDirectService(NewPeerEnricher(h.hub, h.users, 16), h.dms, h.activities, h.fanout, notifier, logger),
		Signals:  NewSignalService(h.messages, roomSvc, notifier, logger),
		Presence: h.presence,
		Users:    h.users,
		Codec:    codec,
		Notifier: notifier,
		Logger:   logger,
	})
	return h
}

func (h *harness) open(t *testing.T) registry.Connector {
	t.Helper()
	return h.session.Open(context.Background(), "test")
}

func (h *harness) send(conn registry.Connector, v any) {
	raw, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	h.session.Handle(context.Background(), conn, raw)
}

// login opens a connection and authenticates it.
func (h *harness) login(t *testing.T, token string) registry.Connector {
	t.Helper()
	conn := h.open(t)
	h.send(conn, map[string]any{"type": "auth", "token": token})
	reply := expectFrame(t, conn, "auth")
	require.Equal(t, true, reply["success"], "auth reply: %v", reply)
	return conn
}

// loginAndJoin authenticates, joins room and drains the join traffic.
func (h *harness) loginAndJoin(t *testing.T, token, room string) registry.Connector {
	t.Helper()
	conn := h.login(t, token)
	h.send(conn, map[string]any{"type": "join", "room": room})
	expectFrame(t, conn, "history")
	expectFrame(t, conn, "room_update")
	return conn
}

func nextFrame(t *testing.T, conn registry.Connector) map[string]any {
	t.Helper()
	select {
	case f := <-conn.Outbound():
		var out map[string]any
		require.NoError(t, json.Unmarshal(f.Payload, &out))
		return out
	case <-time.After(time.Second):
		t.Fatalf("no frame for connection %s", conn.GetID())
		return nil
	}
}

func expectFrame(t *testing.T, conn registry.Connector, typ string) map[string]any {
	t.Helper()
	f := nextFrame(t, conn)
	require.Equal(t, typ, f["type"], "frame: %v", f)
	return f
}

func expectNoFrame(t *testing.T, conn registry.Connector) {
	t.Helper()
	select {
	case f := <-conn.Outbound():
		t.Fatalf("unexpected frame: %s", f.Payload)
	case <-time.After(30 * time.Millisecond):
	}
}

func drain(conn registry.Connector) {
	for {
		select {
		case <-conn.Outbound():
		default:
			return
		}
	}
}
