package ws

import (
	"context"
	"log/slog"

	"github.com/webitel/im-chat-hub/internal/domain/registry"
	wsmarshaller "github.com/webitel/im-chat-hub/internal/handler/marshaller/ws"
	"github.com/webitel/im-chat-hub/internal/service"
	"go.uber.org/fx"
)

var Module = fx.Module("ws-handler",
	fx.Provide(
		func() service.Codec { return wsmarshaller.New() },
		NewWSHandler,
	),
	// Stops before the registry and the store: sockets are closed here and
	// their disconnect writes land while the database is still open.
	fx.Invoke(func(lc fx.Lifecycle, h *WSHandler, hub registry.Hubber, logger *slog.Logger) {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				hub.Shutdown()
				if err := h.Wait(ctx); err != nil {
					logger.Warn("WS_DRAIN_INCOMPLETE", "err", err)
					return err
				}
				logger.Info("WS_DRAINED")
				return nil
			},
		})
	}),
)
