package cmd

import (
	"context"
	"log/slog"

	"github.com/webitel/im-chat-hub/config"
	"github.com/webitel/im-chat-hub/infra/auth/jwt"
	infrapubsub "github.com/webitel/im-chat-hub/infra/pubsub"
	httpsrv "github.com/webitel/im-chat-hub/infra/server/http"
	storedi "github.com/webitel/im-chat-hub/infra/store/di"
	"github.com/webitel/im-chat-hub/infra/store/gormstore"
	"github.com/webitel/im-chat-hub/internal/adapter/pubsub"
	"github.com/webitel/im-chat-hub/internal/domain/registry"
	"github.com/webitel/im-chat-hub/internal/handler/bus"
	"github.com/webitel/im-chat-hub/internal/handler/rest"
	"github.com/webitel/im-chat-hub/internal/handler/ws"
	servicedi "github.com/webitel/im-chat-hub/internal/service/di"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"gorm.io/gorm"
)

func NewApp(cfg *config.Config, seed bool) *fx.App {
	return fx.New(
		fx.Provide(
			func() *config.Config { return cfg },
			ProvideLogger,
			ProvideWatermillLogger,
			ProvideTracerProvider,
		),
		fx.WithLogger(func(logger *slog.Logger) fxevent.Logger {
			return &fxevent.SlogLogger{Logger: logger.With("component", "fx")}
		}),
		fx.Invoke(func(cfg *config.Config, logger *slog.Logger) { cfg.WatchLevel(logger) }),
		fx.Invoke(InstallTracerProvider),
		fx.Invoke(func(lc fx.Lifecycle, db *gorm.DB, logger *slog.Logger) {
			if !seed {
				return
			}
			lc.Append(fx.Hook{
				OnStart: func(ctx context.Context) error {
					users, rooms := gormstore.DemoData()
					if err := gormstore.Seed(ctx, db, users, rooms); err != nil {
						return err
					}
					logger.Info("DEMO_DATA_SEEDED", "users", len(users), "rooms", len(rooms))
					return nil
				},
			})
		}),

		storedi.Module,
		jwt.Module,
		registry.Module,
		servicedi.Module,
		infrapubsub.Module,
		pubsub.Module,
		bus.Module,
		ws.Module,
		rest.Module,
		httpsrv.Module,
	)
}
