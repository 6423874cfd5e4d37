package pubsub

import (
	"context"
	"log/slog"

	"github.com/webitel/im-chat-hub/config"
	infrapubsub "github.com/webitel/im-chat-hub/infra/pubsub"
	"github.com/webitel/im-chat-hub/internal/service"
	"go.uber.org/fx"
)

var Module = fx.Module("event-dispatcher",
	fx.Provide(
		func(p *infrapubsub.Provider, id infrapubsub.InstanceID, cfg *config.Config, logger *slog.Logger) *EventDispatcher {
			return NewEventDispatcher(p.Publisher(), id, cfg.PubSub.OutboxSize, logger)
		},
		func(d *EventDispatcher) service.EventPublisher { return d },
	),

	fx.Invoke(func(lc fx.Lifecycle, d *EventDispatcher) {
		lc.Append(fx.Hook{
			OnStart: func(context.Context) error {
				d.Start()
				return nil
			},
			OnStop: d.Close,
		})
	}),
)
