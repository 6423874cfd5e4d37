package servicedi

import (
	"log/slog"

	"github.com/webitel/im-chat-hub/config"
	"github.com/webitel/im-chat-hub/internal/domain/history"
	"github.com/webitel/im-chat-hub/internal/domain/registry"
	"github.com/webitel/im-chat-hub/internal/service"
	"go.uber.org/fx"
)

var Module = fx.Module(
	"service",

	fx.Provide(
		// Domain state
		func(cfg *config.Config) *history.Cache {
			return history.New(cfg.Hub.HistoryCapacity)
		},
		func(cfg *config.Config, logger *slog.Logger) *service.PresenceMonitor {
			return service.NewPresenceMonitor(cfg.Hub.HeartbeatInterval, logger)
		},
		service.NewNotifier,
		service.NewFanout,

		// Domain services
		fx.Annotate(
			func(hub registry.Hubber, users service.UserStore, cfg *config.Config) *service.PeerEnricher {
				return service.NewPeerEnricher(hub, users, cfg.Hub.NameCacheSize)
			},
			fx.As(new(service.NameResolver)),
		),
		fx.Annotate(
			service.NewAuthService,
			fx.As(new(service.Auther)),
		),
		fx.Annotate(
			func(
				hub registry.Hubber,
				rooms service.RoomStore,
				messages service.MessageStore,
				cache *history.Cache,
				notifier *service.Notifier,
				cfg *config.Config,
				logger *slog.Logger,
			) *service.RoomService {
				return service.NewRoomService(hub, rooms, messages, cache, notifier, cfg.Hub.HistoryFetchLimit, logger)
			},
			fx.As(new(service.RoomManager)),
		),
		fx.Annotate(
			service.NewChatService,
			fx.As(new(service.Poster)),
		),
		fx.Annotate(
			service.NewDirectService,
			fx.As(new(service.DirectRouter)),
		),
		fx.Annotate(
			service.NewSignalService,
			fx.As(new(service.Signaler)),
		),
		fx.Annotate(
			NewSession,
			fx.As(new(service.Sessioner)),
		),
	),

	// [DECORATION_LAYER] Intercept NameResolver to add cross-cutting concerns
	fx.Decorate(service.NewEnricherMiddleware),
)

type sessionParams struct {
	fx.In

	Hub      registry.Hubber
	Auth     service.Auther
	Rooms    service.RoomManager
	Chat     service.Poster
	Direct   service.DirectRouter
	Signals  service.Signaler
	Presence *service.PresenceMonitor
	Users    service.UserStore
	Codec    service.Codec
	Notifier *service.Notifier
	Logger   *slog.Logger
}

func NewSession(p sessionParams) *service.Session {
	return service.NewSession(service.SessionDeps{
		Hub:      p.Hub,
		Auth:     p.Auth,
		Rooms:    p.Rooms,
		Chat:     p.Chat,
		Direct:   p.Direct,
		Signals:  p.Signals,
		Presence: p.Presence,
		Users:    p.Users,
		Codec:    p.Codec,
		Notifier: p.Notifier,
		Logger:   p.Logger,
	})
}
