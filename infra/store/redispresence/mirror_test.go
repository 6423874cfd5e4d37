package redispresence

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/webitel/im-chat-hub/internal/domain/model"
)

// Requires Redis on localhost:6379.
const testRedisAddr = "localhost:6379"

type memUsers struct {
	mu       sync.Mutex
	statuses map[string]model.UserStatus
}

func (u *memUsers) SetStatus(_ context.Context, id string, s model.UserStatus) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.statuses[id] = s
	return nil
}

func (u *memUsers) FindByID(_ context.Context, id string) (*model.User, error) {
	return &model.User{ID: id, Username: "alice"}, nil
}

func setupMirror(t *testing.T) (*Mirror, *memUsers, *redis.Client) {
	t.Helper()

	client := redis.NewClient(&redis.Options{Addr: testRedisAddr, DB: 15})
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		t.Skipf("Redis not available at %s: %v", testRedisAddr, err)
	}
	client.Del(ctx, OnlineKey, lastSeenPrefix+"u1")
	t.Cleanup(func() {
		client.Del(ctx, OnlineKey, lastSeenPrefix+"u1")
		_ = client.Close()
	})

	users := &memUsers{statuses: make(map[string]model.UserStatus)}
	return New(users, client, slog.New(slog.NewTextHandler(io.Discard, nil))), users, client
}

func TestMirror_SetStatus(t *testing.T) {
	m, users, _ := setupMirror(t)
	ctx := context.Background()

	require.NoError(t, m.SetStatus(ctx, "u1", model.StatusOnline))
	assert.Equal(t, model.StatusOnline, users.statuses["u1"])

	online, err := m.Online(ctx)
	require.NoError(t, err)
	assert.Contains(t, online, "u1")

	require.NoError(t, m.SetStatus(ctx, "u1", model.StatusOffline))
	online, err = m.Online(ctx)
	require.NoError(t, err)
	assert.NotContains(t, online, "u1")

	seen, err := m.LastSeen(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, seen.IsZero())
}

func TestMirror_RedisDownDoesNotFailStatus(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	users := &memUsers{statuses: make(map[string]model.UserStatus)}
	m := New(users, client, slog.New(slog.NewTextHandler(io.Discard, nil)))

	require.NoError(t, m.SetStatus(context.Background(), "u1", model.StatusOnline))
	assert.Equal(t, model.StatusOnline, users.statuses["u1"])

	u, err := m.FindByID(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "alice", u.Username)
}
