package rest

import (
	"log/slog"

	"github.com/webitel/im-chat-hub/config"
	httpsrv "github.com/webitel/im-chat-hub/infra/server/http"
	"github.com/webitel/im-chat-hub/infra/store/gormstore"
	"github.com/webitel/im-chat-hub/internal/adapter/pubsub"
	"github.com/webitel/im-chat-hub/internal/domain/registry"
	"github.com/webitel/im-chat-hub/internal/handler/ws"
	"github.com/webitel/im-chat-hub/internal/service"
	"go.uber.org/fx"
)

var Module = fx.Module("rest-handler",
	fx.Provide(
		func(d *pubsub.EventDispatcher) EventForwarder { return d },
		func(repo *gormstore.ActivityRepository) ActivityFeed { return repo },
		func(
			hub registry.Hubber,
			forwarder EventForwarder,
			feed ActivityFeed,
			verifier service.CredentialVerifier,
			cfg *config.Config,
			logger *slog.Logger,
		) *RESTHandler {
			return NewRESTHandler(hub, forwarder, feed, verifier, cfg.Auth.ServiceToken, logger)
		},
	),
	fx.Invoke(RegisterRoutes),
)

func RegisterRoutes(server *httpsrv.Server, h *RESTHandler, wsHandler *ws.WSHandler) {
	h.Routes(server.Router, wsHandler)
}
