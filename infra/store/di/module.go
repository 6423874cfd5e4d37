package storedi

import (
	"context"
	"log/slog"

	"github.com/redis/go-redis/v9"
	"github.com/webitel/im-chat-hub/config"
	"github.com/webitel/im-chat-hub/infra/store/gormstore"
	"github.com/webitel/im-chat-hub/infra/store/redispresence"
	"github.com/webitel/im-chat-hub/infra/store/resilient"
	"github.com/webitel/im-chat-hub/internal/service"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module(
	"stores",

	fx.Provide(
		func(cfg *config.Config) (*gorm.DB, error) {
			return gormstore.Open(cfg.DB.DSN)
		},
		resilient.DefaultSettings,
		gormstore.NewActivityRepository,

		// [RESILIENT_PORTS] every durable port goes through a circuit breaker
		func(db *gorm.DB, s resilient.Settings, l *slog.Logger) service.MessageStore {
			return resilient.NewMessages(gormstore.NewMessageRepository(db), s, l)
		},
		func(db *gorm.DB, s resilient.Settings, l *slog.Logger) service.RoomStore {
			return resilient.NewRooms(gormstore.NewRoomRepository(db), s, l)
		},
		func(db *gorm.DB, s resilient.Settings, l *slog.Logger) service.DMStore {
			return resilient.NewDMs(gormstore.NewDMRepository(db), s, l)
		},
		func(repo *gormstore.ActivityRepository, s resilient.Settings, l *slog.Logger) service.ActivityStore {
			return resilient.NewActivities(repo, s, l)
		},
		func(db *gorm.DB, s resilient.Settings, l *slog.Logger, rc *redis.Client) service.UserStore {
			var users service.UserStore = resilient.NewUsers(gormstore.NewUserRepository(db), s, l)
			if rc != nil {
				users = redispresence.New(users, rc, l)
			}
			return users
		},
		// [OPTIONAL] nil when redis.enabled is false
		func(cfg *config.Config) *redis.Client {
			if !cfg.Redis.Enabled {
				return nil
			}
			return redis.NewClient(&redis.Options{
				Addr:     cfg.Redis.Addr,
				Password: cfg.Redis.Password,
				DB:       cfg.Redis.DB,
			})
		},
	),

	// [LIFECYCLE] Ensures the connection pools are closed gracefully on app shutdown
	fx.Invoke(func(lc fx.Lifecycle, db *gorm.DB) {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				return gormstore.Close(db)
			},
		})
	}),

	fx.Invoke(func(lc fx.Lifecycle, rc *redis.Client, logger *slog.Logger) {
		if rc == nil {
			return
		}
		lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				// Presence mirroring is advisory; an unreachable Redis only warns.
				if err := rc.Ping(ctx).Err(); err != nil {
					logger.Warn("REDIS_UNREACHABLE", "err", err)
				}
				return nil
			},
			OnStop: func(ctx context.Context) error {
				return rc.Close()
			},
		})
	}),
)
