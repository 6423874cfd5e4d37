package service

import (
	"log/slog"

	"github.com/google/uuid"
	"github.com/webitel/im-chat-hub/internal/domain/model"
	"github.com/webitel/im-chat-hub/internal/domain/registry"
	"github.com/webitel/im-chat-hub/internal/service/dto"
)

// Notifier encodes outbound payloads and pushes them into connection queues.
// Delivery is best effort: an unwritable connection is skipped, never retried.
type Notifier struct {
	enc    Codec
	hub    registry.Hubber
	logger *slog.Logger
}

func NewNotifier(enc Codec, hub registry.Hubber, logger *slog.Logger) *Notifier {
	return &Notifier{enc: enc, hub: hub, logger: logger}
}

// Frame encodes v once so the same bytes can be fanned out to many connections.
func (n *Notifier) Frame(v any, p model.EventPriority) (model.Frame, bool) {
	f, err := n.enc.Encode(v, p)
	if err != nil {
		n.logger.Error("FRAME_ENCODE_FAILED", "err", err)
		return model.Frame{}, false
	}
	return f, true
}

// Reply sends a high priority payload to a single connection.
func (n *Notifier) Reply(conn registry.Connector, v any) bool {
	f, ok := n.Frame(v, model.PriorityHigh)
	if !ok {
		return false
	}
	return n.deliver(conn, f)
}

// Error reports err to the originating connection only.
func (n *Notifier) Error(conn registry.Connector, err error) bool {
	return n.Reply(conn, dto.NewError(err))
}

// Room delivers f to every live member of room except the exclude connection.
// It returns how many queues accepted the frame.
func (n *Notifier) Room(room string, f model.Frame, exclude uuid.UUID) int {
	delivered := 0
	n.hub.ForEachInRoom(room, func(c registry.Connector) {
		if c.GetID() == exclude {
			return
		}
		if n.deliver(c, f) {
			delivered++
		}
	})
	return delivered
}

// User delivers f to every live session of userID except the exclude connection.
func (n *Notifier) User(userID string, f model.Frame, exclude uuid.UUID) int {
	delivered := 0
	for _, c := range n.hub.ConnectionsOfUser(userID) {
		if c.GetID() == exclude {
			continue
		}
		if n.deliver(c, f) {
			delivered++
		}
	}
	return delivered
}

func (n *Notifier) deliver(conn registry.Connector, f model.Frame) bool {
	if conn.Send(f) {
		return true
	}
	n.logger.Debug("FRAME_SKIPPED", "conn_id", conn.GetID(), "priority", f.Priority)
	return false
}
