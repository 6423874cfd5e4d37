package bus

import (
	"context"

	"github.com/ThreeDotsLabs/watermill/message"
	infrapubsub "github.com/webitel/im-chat-hub/infra/pubsub"
	"go.uber.org/fx"
)

var Module = fx.Module("bus-handler",
	fx.Provide(
		NewEventHandler,
		NewWatermillRouter,
	),

	fx.Invoke(func(h *EventHandler, router *message.Router, lc fx.Lifecycle, p *infrapubsub.Provider) error {
		if err := h.RegisterHandlers(router, p); err != nil {
			return err
		}
		lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				go func() {
					if err := router.Run(context.Background()); err != nil {
						h.logger.Error("ROUTER_STOPPED", "err", err)
					}
				}()
				// [READINESS] Subscriptions exist before the HTTP listener accepts clients.
				select {
				case <-router.Running():
					return nil
				case <-ctx.Done():
					return ctx.Err()
				}
			},
			OnStop: func(context.Context) error {
				return router.Close()
			},
		})
		return nil
	}),
)
