// Package bus consumes hub events from the watermill bus and fans them out to
// the connections held by this instance.
package bus

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	infrapubsub "github.com/webitel/im-chat-hub/infra/pubsub"
	"github.com/webitel/im-chat-hub/internal/domain/event"
	"github.com/webitel/im-chat-hub/internal/service"
)

// PoisonTopic receives events that kept failing after every retry.
const PoisonTopic = "im_chat.poison"

type EventHandler struct {
	fanout   *service.Fanout
	resolver service.NameResolver
	instance infrapubsub.InstanceID
	logger   *slog.Logger
	wlogger  watermill.LoggerAdapter
}

func NewEventHandler(
	fanout *service.Fanout,
	resolver service.NameResolver,
	instance infrapubsub.InstanceID,
	logger *slog.Logger,
	wlogger watermill.LoggerAdapter,
) *EventHandler {
	return &EventHandler{
		fanout:   fanout,
		resolver: resolver,
		instance: instance,
		logger:   logger,
		wlogger:  wlogger,
	}
}

func NewWatermillRouter(logger watermill.LoggerAdapter) (*message.Router, error) {
	router, err := message.NewRouter(message.RouterConfig{CloseTimeout: 10 * time.Second}, logger)
	if err != nil {
		return nil, fmt.Errorf("ROUTER_SETUP_FAILED: %w", err)
	}
	router.AddMiddleware(middleware.Recoverer)
	return router, nil
}

// [REGISTRATION_PIPELINE]
// One consumer per event kind, subscribed once at start-up.
func (h *EventHandler) RegisterHandlers(router *message.Router, provider *infrapubsub.Provider) error {
	poison, err := middleware.PoisonQueue(provider.Publisher(), PoisonTopic)
	if err != nil {
		return fmt.Errorf("POISON_SETUP_FAILED: %w", err)
	}

	configs := []struct {
		name    string
		kind    event.Kind
		handler message.NoPublishHandlerFunc
	}{
		{"ON_ACTIVITY", event.KindActivity, Bind(h, h.OnActivity)},
		{"ON_NEW_MESSAGE", event.KindNewMessage, Bind(h, h.OnNewMessage)},
	}

	for _, c := range configs {
		// [MIDDLEWARE_ORDER] first added runs outermost: poison only sees
		// what is left after the retries gave up.
		router.AddConsumerHandler(c.name, c.kind.Topic(), provider.Subscriber(), c.handler).AddMiddleware(
			TraceIDMiddleware,
			LoggingMiddleware(h.logger),
			poison,
			NewRetryMiddleware(h.wlogger).Middleware,
			middleware.NewThrottle(100, time.Second).Middleware,
			middleware.Timeout(time.Second*30),
		)
	}

	h.logger.Info("BUS_PIPELINE_READY", "driver", provider.Driver(), "instance", h.instance)
	return nil
}
