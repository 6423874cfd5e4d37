// Package redispresence mirrors user presence into Redis so other services can
// read who is online without asking the hub.
package redispresence

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/webitel/im-chat-hub/internal/domain/model"
	"github.com/webitel/im-chat-hub/internal/service"
)

const (
	OnlineKey      = "im:online"
	lastSeenPrefix = "im:last_seen:"
)

var _ service.UserStore = (*Mirror)(nil)

// Mirror decorates a UserStore. The durable store stays the source of truth;
// Redis write failures are logged and never fail the status change.
type Mirror struct {
	next   service.UserStore
	client *redis.Client
	logger *slog.Logger
}

func New(next service.UserStore, client *redis.Client, logger *slog.Logger) *Mirror {
	return &Mirror{next: next, client: client, logger: logger}
}

func (m *Mirror) SetStatus(ctx context.Context, userID string, status model.UserStatus) error {
	err := m.next.SetStatus(ctx, userID, status)

	_, pipeErr := m.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		switch status {
		case model.StatusOnline:
			p.SAdd(ctx, OnlineKey, userID)
		default:
			p.SRem(ctx, OnlineKey, userID)
		}
		p.Set(ctx, lastSeenPrefix+userID, time.Now().UTC().Format(time.RFC3339), 0)
		return nil
	})
	if pipeErr != nil {
		m.logger.Warn("PRESENCE_MIRROR_FAILED", "user_id", userID, "status", status, "err", pipeErr)
	}
	return err
}

func (m *Mirror) FindByID(ctx context.Context, userID string) (*model.User, error) {
	return m.next.FindByID(ctx, userID)
}

// Online lists the user IDs currently marked online.
func (m *Mirror) Online(ctx context.Context) ([]string, error) {
	return m.client.SMembers(ctx, OnlineKey).Result()
}

// LastSeen returns the last status change of userID, zero when unknown.
func (m *Mirror) LastSeen(ctx context.Context, userID string) (time.Time, error) {
	raw, err := m.client.Get(ctx, lastSeenPrefix+userID).Result()
	if err == redis.Nil {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	return time.Parse(time.RFC3339, raw)
}
