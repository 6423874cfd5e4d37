package bus

import (
	"context"
	"fmt"
	"time"

	"github.com/webitel/im-chat-hub/internal/domain/event"
	"github.com/webitel/im-chat-hub/internal/domain/model"
)

// [ON_ACTIVITY]
func (h *EventHandler) OnActivity(ctx context.Context, env *event.Envelope, act *model.Activity) error {
	if act.ID == "" {
		act.ID = env.ID
	}
	if act.Timestamp.IsZero() {
		act.Timestamp = time.UnixMilli(env.OccurredAt).UTC()
	}

	n := h.fanout.Activity(ctx, *act)
	h.logger.Debug("ACTIVITY_RELAYED", "activity_id", act.ID, "kind", act.Kind, "origin", env.Origin, "delivered", n)
	return nil
}

// [ON_NEW_MESSAGE]
// External producers may send bare user IDs; display names are filled in here.
func (h *EventHandler) OnNewMessage(ctx context.Context, env *event.Envelope, n *model.NewMessageNotice) error {
	if n.To == "" {
		h.logger.Warn("ROUTING_FAILED: recipient_missing", "event_id", env.ID)
		return nil
	}
	if n.Timestamp.IsZero() {
		n.Timestamp = time.UnixMilli(env.OccurredAt).UTC()
	}

	if err := h.enrich(ctx, n); err != nil {
		return err
	}

	delivered := h.fanout.NewMessage(*n)
	h.logger.Debug("NEW_MESSAGE_RELAYED", "event_id", env.ID, "to", n.To, "delivered", delivered)
	return nil
}

func (h *EventHandler) enrich(ctx context.Context, n *model.NewMessageNotice) error {
	var ids []string
	if n.FromUsername == "" && n.From != "" {
		ids = append(ids, n.From)
	}
	if n.ToUsername == "" {
		ids = append(ids, n.To)
	}
	if len(ids) == 0 {
		return nil
	}

	names, err := h.resolver.ResolveNames(ctx, ids...)
	switch {
	case model.KindOf(err) == model.KindNotFound:
		// Unknown users keep their IDs; the notice is still worth delivering.
		h.logger.Debug("PEER_ENRICHMENT_SKIPPED", "err", err)
		return nil
	case err != nil:
		return fmt.Errorf("failed to enrich participants: %w", err)
	}

	if n.FromUsername == "" {
		n.FromUsername = names[n.From]
	}
	if n.ToUsername == "" {
		n.ToUsername = names[n.To]
	}
	return nil
}
