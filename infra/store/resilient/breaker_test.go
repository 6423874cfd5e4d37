package resilient

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/webitel/im-chat-hub/internal/domain/model"
)

type flakyRooms struct {
	err   error
	calls int
}

func (f *flakyRooms) FindByName(_ context.Context, name string) (*model.Room, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &model.Room{Name: name}, nil
}

func (f *flakyRooms) SetOnlineCount(context.Context, string, int) error {
	f.calls++
	return f.err
}

func (f *flakyRooms) TouchLastMessage(context.Context, string) error {
	f.calls++
	return f.err
}

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestBreaker_OpensOnPersistenceFailures(t *testing.T) {
	next := &flakyRooms{err: model.NewPersistenceError("store unavailable", errors.New("disk on fire"))}
	rooms := NewRooms(next, Settings{ConsecutiveFailures: 2, OpenTimeout: time.Hour}, discard())
	ctx := context.Background()

	for range 2 {
		_, err := rooms.FindByName(ctx, "general")
		require.Error(t, err)
	}
	assert.Equal(t, 2, next.calls)

	// Open: fails fast without touching the store.
	err := rooms.SetOnlineCount(ctx, "general", 1)
	assert.Equal(t, model.KindPersistence, model.KindOf(err))
	assert.Equal(t, 2, next.calls)
}

func TestBreaker_NotFoundIsNotAFailure(t *testing.T) {
	next := &flakyRooms{err: model.NewNotFoundError("room not found")}
	rooms := NewRooms(next, Settings{ConsecutiveFailures: 1, OpenTimeout: time.Hour}, discard())

	for range 3 {
		_, err := rooms.FindByName(context.Background(), "nowhere")
		assert.Equal(t, model.KindNotFound, model.KindOf(err))
	}
	assert.Equal(t, 3, next.calls)
}

func TestBreaker_HalfOpenRecovers(t *testing.T) {
	next := &flakyRooms{err: model.NewPersistenceError("store unavailable", errors.New("timeout"))}
	rooms := NewRooms(next, Settings{ConsecutiveFailures: 1, OpenTimeout: 20 * time.Millisecond}, discard())
	ctx := context.Background()

	require.Error(t, rooms.TouchLastMessage(ctx, "general"))
	next.err = nil

	require.Eventually(t, func() bool {
		room, err := rooms.FindByName(ctx, "general")
		return err == nil && room.Name == "general"
	}, time.Second, 5*time.Millisecond)
}
