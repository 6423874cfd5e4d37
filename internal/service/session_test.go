package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/webitel/im-chat-hub/internal/domain/model"
	"github.com/webitel/im-chat-hub/internal/domain/registry"
)

const idle = time.Hour

func TestSession_AuthJoinChat(t *testing.T) {
	h := newHarness(t, idle)

	alice := h.open(t)
	h.send(alice, map[string]any{"type": "auth", "token": "tok-alice"})
	reply := expectFrame(t, alice, "auth")
	assert.Equal(t, true, reply["success"])
	assert.Equal(t, "alice", reply["username"])
	assert.Equal(t, model.StatusOnline, h.users.statusOf("u1"))

	h.send(alice, map[string]any{"type": "join", "room": "general"})
	hist := expectFrame(t, alice, "history")
	assert.Equal(t, "general", hist["room"])
	assert.Empty(t, hist["messages"])
	upd := expectFrame(t, alice, "room_update")
	assert.EqualValues(t, 1, upd["online"])

	bob := h.loginAndJoin(t, "tok-bob", "general")
	upd = expectFrame(t, alice, "room_update")
	assert.EqualValues(t, 2, upd["online"])
	assert.Equal(t, 2, h.rooms.onlineOf("general"))

	h.send(alice, map[string]any{"type": "chat", "message": "hi"})

	for _, conn := range []registry.Connector{alice, bob} {
		msg := expectFrame(t, conn, "message")
		assert.Equal(t, "alice", msg["from"])
		assert.Equal(t, "hi", msg["message"])
		assert.Equal(t, "general", msg["room"])
		assert.NotEmpty(t, msg["timestamp"])
		assert.NotEmpty(t, msg["id"])
	}

	// Durable members other than the sender hear about it as an activity.
	act := expectFrame(t, bob, "activity")
	assert.Equal(t, string(model.ActivityMessageSent), act["activity"].(map[string]any)["type"])
	expectNoFrame(t, alice)

	require.Len(t, h.messages.stored(), 1)
	assert.Equal(t, 1, h.cache.Len("general"))
	assert.Len(t, h.activities.acts, 1)
	assert.Len(t, h.publisher.acts, 1)
}

func TestSession_ActivityReachesMembersOutsideTheRoom(t *testing.T) {
	h := newHarness(t, idle)
	alice := h.loginAndJoin(t, "tok-alice", "general")
	carol := h.login(t, "tok-carol") // member of general, not attached

	h.send(alice, map[string]any{"type": "chat", "message": "ping carol"})
	expectFrame(t, alice, "message")

	act := expectFrame(t, carol, "activity")
	assert.Equal(t, "general", act["activity"].(map[string]any)["roomName"])
}

func TestSession_UnauthenticatedIsRejected(t *testing.T) {
	h := newHarness(t, idle)
	conn := h.open(t)

	for _, in := range []map[string]any{
		{"type": "join", "room": "general"},
		{"type": "chat", "message": "hi"},
		{"type": "ping"},
		{"type": "dm", "toUserId": "u2", "message": "hey"},
		{"type": "typing", "isTyping": true},
		{"type": "reaction", "messageId": "m1", "emoji": "👍"},
		{"type": "leave"},
		{"type": "whatever"},
	} {
		h.send(conn, in)
		f := expectFrame(t, conn, "error")
		assert.Equal(t, "unauthenticated", f["message"])
	}
	assert.Equal(t, 0, h.hub.OnlineCount("general"))
	assert.Empty(t, h.messages.stored())
	assert.Empty(t, h.messages.reactions)
	assert.Empty(t, h.dms.dms)
}

func TestSession_AuthFailures(t *testing.T) {
	h := newHarness(t, idle)
	conn := h.open(t)

	cases := map[string]string{
		"":         model.ReasonMissingToken,
		"bogus":    model.ReasonInvalidToken,
		"tok-anon": model.ReasonMissingUsername,
	}
	for token, reason := range cases {
		h.send(conn, map[string]any{"type": "auth", "token": token})
		f := expectFrame(t, conn, "auth")
		assert.Equal(t, false, f["success"])
		assert.Equal(t, reason, f["reason"])
	}

	assert.False(t, conn.State().Authenticated)
	assert.Equal(t, 0, h.presence.Active())

	// The connection stays usable and may retry.
	h.send(conn, map[string]any{"type": "auth", "token": "tok-alice"})
	assert.Equal(t, true, expectFrame(t, conn, "auth")["success"])
	assert.Equal(t, 1, h.presence.Active())

	h.send(conn, map[string]any{"type": "auth", "token": "tok-bob"})
	f := expectFrame(t, conn, "auth")
	assert.Equal(t, false, f["success"])
	assert.Equal(t, "alice", conn.State().Username)
}

func TestSession_ProtocolErrorsKeepConnection(t *testing.T) {
	h := newHarness(t, idle)
	conn := h.login(t, "tok-alice")

	h.session.Handle(context.Background(), conn, []byte("{not json"))
	assert.Equal(t, string(model.KindProtocol), expectFrame(t, conn, "error")["kind"])

	h.send(conn, map[string]any{"type": "teleport"})
	assert.Equal(t, "unknown message type", expectFrame(t, conn, "error")["message"])

	h.send(conn, map[string]any{"type": "ping"})
	expectFrame(t, conn, "pong")
}

func TestSession_JoinRejections(t *testing.T) {
	h := newHarness(t, idle)
	alice := h.login(t, "tok-alice")

	h.send(alice, map[string]any{"type": "join", "room": "private"})
	f := expectFrame(t, alice, "error")
	assert.Equal(t, string(model.KindMembership), f["kind"])
	assert.Empty(t, alice.State().Room)
	assert.Equal(t, 0, h.hub.OnlineCount("private"))

	h.send(alice, map[string]any{"type": "join", "room": "nowhere"})
	assert.Equal(t, string(model.KindNotFound), expectFrame(t, alice, "error")["kind"])

	h.send(alice, map[string]any{"type": "join"})
	assert.Equal(t, string(model.KindProtocol), expectFrame(t, alice, "error")["kind"])
}

func TestSession_ChatRequiresRoom(t *testing.T) {
	h := newHarness(t, idle)
	alice := h.login(t, "tok-alice")

	h.send(alice, map[string]any{"type": "chat", "message": "hi"})
	assert.Equal(t, "join a room first", expectFrame(t, alice, "error")["message"])
	assert.Empty(t, h.messages.stored())
}

func TestSession_ChatPersistenceFailureStillBroadcasts(t *testing.T) {
	h := newHarness(t, idle)
	alice := h.loginAndJoin(t, "tok-alice", "general")
	bob := h.loginAndJoin(t, "tok-bob", "general")
	drain(alice)
	h.messages.failAppend = errStoreDown

	h.send(alice, map[string]any{"type": "chat", "message": "still here"})

	assert.Equal(t, "still here", expectFrame(t, alice, "message")["message"])
	f := expectFrame(t, alice, "error")
	assert.Equal(t, string(model.KindPersistence), f["kind"])

	assert.Equal(t, "still here", expectFrame(t, bob, "message")["message"])
	expectFrame(t, bob, "activity")
	expectNoFrame(t, bob)

	// The cache still has it.
	assert.Equal(t, 1, h.cache.Len("general"))
}

func TestSession_HistoryKeepsLast50(t *testing.T) {
	h := newHarness(t, idle)
	alice := h.loginAndJoin(t, "tok-alice", "general")

	for i := 1; i <= 51; i++ {
		h.send(alice, map[string]any{"type": "chat", "message": fmt.Sprintf("#%d", i)})
		expectFrame(t, alice, "message")
	}

	snap := h.cache.Snapshot("general")
	require.Len(t, snap, 50)
	assert.Equal(t, "#2", snap[0].Text)
	assert.Equal(t, "#51", snap[49].Text)
}

func TestSession_JoinHistoryFromStoreAndFallback(t *testing.T) {
	h := newHarness(t, idle)
	base := time.Now()
	for i := 1; i <= 3; i++ {
		h.messages.msgs = append(h.messages.msgs, model.ChatMessage{
			ID: fmt.Sprint(i), Room: "general", From: "bob", Text: fmt.Sprintf("m%d", i),
			Timestamp: base.Add(time.Duration(i) * time.Second),
		})
	}

	alice := h.login(t, "tok-alice")
	h.send(alice, map[string]any{"type": "join", "room": "general"})
	msgs := expectFrame(t, alice, "history")["messages"].([]any)
	require.Len(t, msgs, 3)
	assert.Equal(t, "m1", msgs[0].(map[string]any)["message"])
	assert.Equal(t, "m3", msgs[2].(map[string]any)["message"])
	expectFrame(t, alice, "room_update")

	// Store outage: the cache answers.
	h.cache.Append(model.ChatMessage{Room: "random", From: "bob", Text: "cached"})
	h.messages.failList = errStoreDown

	h.send(alice, map[string]any{"type": "join", "room": "random"})
	// Leaving general republishes its count first; alice is no longer there to see it.
	msgs = expectFrame(t, alice, "history")["messages"].([]any)
	require.Len(t, msgs, 1)
	assert.Equal(t, "cached", msgs[0].(map[string]any)["message"])
}

func TestSession_RejoinCleansPreviousRoom(t *testing.T) {
	h := newHarness(t, idle)
	alice := h.loginAndJoin(t, "tok-alice", "general")
	bob := h.loginAndJoin(t, "tok-bob", "general")
	drain(alice)

	h.send(alice, map[string]any{"type": "join", "room": "random"})
	expectFrame(t, alice, "history")
	expectFrame(t, alice, "room_update")

	upd := expectFrame(t, bob, "room_update")
	assert.Equal(t, "general", upd["room"])
	assert.EqualValues(t, 1, upd["online"])
	assert.Equal(t, 1, h.rooms.onlineOf("general"))
	assert.Equal(t, 1, h.rooms.onlineOf("random"))

	// A chat in general no longer reaches alice's connection.
	h.send(bob, map[string]any{"type": "chat", "message": "anyone?"})
	expectFrame(t, bob, "message")
	f := expectFrame(t, alice, "activity") // still a durable member
	assert.Equal(t, "general", f["activity"].(map[string]any)["roomName"])
	expectNoFrame(t, alice)

	h.send(alice, map[string]any{"type": "leave"})
	expectNoFrame(t, alice)
	assert.Equal(t, 0, h.hub.OnlineCount("random"))
	h.send(alice, map[string]any{"type": "leave"})
	assert.Equal(t, "not in a room", expectFrame(t, alice, "error")["message"])
}

func TestSession_DisconnectCleansUp(t *testing.T) {
	h := newHarness(t, idle)
	alice := h.loginAndJoin(t, "tok-alice", "general")
	bob := h.loginAndJoin(t, "tok-bob", "general")
	drain(alice)

	h.session.Disconnect(context.Background(), alice)
	h.session.Disconnect(context.Background(), alice)

	upd := expectFrame(t, bob, "room_update")
	assert.EqualValues(t, 1, upd["online"])
	expectNoFrame(t, bob)

	assert.Equal(t, model.StatusOffline, h.users.statusOf("u1"))
	assert.False(t, h.hub.IsOnline("u1"))
	assert.Equal(t, 1, h.presence.Active())

	select {
	case <-alice.Done():
	default:
		t.Fatal("connection not closed")
	}
}

func TestSession_CloseDuringAuthLeavesUserOffline(t *testing.T) {
	h := newHarness(t, idle)
	conn := h.open(t)

	// The transport drops while the online write is still in flight, so the
	// offline write from the teardown lands first.
	h.users.beforeSet = func(_ string, status model.UserStatus) {
		require.Equal(t, model.StatusOnline, status)
		h.session.Disconnect(context.Background(), conn)
	}
	h.send(conn, map[string]any{"type": "auth", "token": "tok-alice"})

	assert.Equal(t, model.StatusOffline, h.users.statusOf("u1"))
	assert.False(t, h.hub.IsOnline("u1"))
	assert.Equal(t, 0, h.presence.Active())
}

func TestSession_CloseDuringAuthKeepsOtherSessionOnline(t *testing.T) {
	h := newHarness(t, idle)
	h.login(t, "tok-alice")
	second := h.open(t)

	h.users.beforeSet = func(string, model.UserStatus) {
		h.session.Disconnect(context.Background(), second)
	}
	h.send(second, map[string]any{"type": "auth", "token": "tok-alice"})

	assert.Equal(t, model.StatusOnline, h.users.statusOf("u1"))
	assert.True(t, h.hub.IsOnline("u1"))
	assert.Equal(t, 1, h.presence.Active())
}

func TestSession_SecondSessionKeepsUserOnline(t *testing.T) {
	h := newHarness(t, idle)
	first := h.login(t, "tok-alice")
	h.login(t, "tok-alice")

	h.session.Disconnect(context.Background(), first)
	assert.Equal(t, model.StatusOnline, h.users.statusOf("u1"))
	assert.True(t, h.hub.IsOnline("u1"))
}

func TestSession_HeartbeatTerminatesSilentConnection(t *testing.T) {
	h := newHarness(t, 20*time.Millisecond)
	alice := h.loginAndJoin(t, "tok-alice", "general")

	require.Eventually(t, func() bool {
		_, ok := h.hub.Lookup(alice.GetID())
		return !ok
	}, 2*time.Second, 5*time.Millisecond)

	var seen int
	h.hub.ForEachInRoom("general", func(registry.Connector) { seen++ })
	assert.Zero(t, seen)
	assert.Equal(t, 0, h.rooms.onlineOf("general"))
	assert.Equal(t, model.StatusOffline, h.users.statusOf("u1"))
	assert.Equal(t, 0, h.presence.Active())
}

func TestSession_PingKeepsConnectionAlive(t *testing.T) {
	h := newHarness(t, 40*time.Millisecond)
	alice := h.login(t, "tok-alice")

	deadline := time.Now().Add(200 * time.Millisecond)
	for time.Now().Before(deadline) {
		h.send(alice, map[string]any{"type": "ping"})
		time.Sleep(5 * time.Millisecond)
	}

	_, ok := h.hub.Lookup(alice.GetID())
	assert.True(t, ok)
	assert.True(t, h.hub.IsOnline("u1"))
}
