package bus

import (
	"context"
	"encoding/json"
	"runtime/debug"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/webitel/im-chat-hub/internal/domain/event"
)

// DomainHandler is the business side of one subscription.
type DomainHandler[T any] func(ctx context.Context, env *event.Envelope, payload *T) error

// [INFRASTRUCTURE_BRIDGE]
// Bind connects Watermill to domain logic: panic recovery, decoding and the echo filter.
func Bind[T any](h *EventHandler, fn DomainHandler[T]) message.NoPublishHandlerFunc {
	return func(msg *message.Message) (err error) {
		// [PANIC_RECOVERY]
		// A broken handler must not take the consumer down or reach the publisher.
		defer func() {
			if r := recover(); r != nil {
				h.logger.Error("PANIC_RECOVERED",
					"err", r,
					"stack", string(debug.Stack()),
					"msg_id", msg.UUID)
				err = nil
			}
		}()

		// [DECODING]
		var env event.Envelope
		if err := json.Unmarshal(msg.Payload, &env); err != nil {
			h.logger.Warn("DECODE_FAILED", "err", err, "msg_id", msg.UUID)
			return nil // ACK: Poison Pill protection.
		}

		// [ECHO_FILTER]
		// This instance already fanned the event out before publishing it.
		if env.Origin != "" && env.Origin == string(h.instance) {
			return nil
		}

		payload := new(T)
		if err := json.Unmarshal(env.Payload, payload); err != nil {
			h.logger.Warn("PAYLOAD_DECODE_FAILED", "err", err, "msg_id", msg.UUID, "kind", env.Kind)
			return nil
		}

		// [EXECUTION]
		// An error is a NACK and goes through the retry policy.
		return fn(msg.Context(), &env, payload)
	}
}
