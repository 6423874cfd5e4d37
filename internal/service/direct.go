package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/webitel/im-chat-hub/internal/domain/model"
	"github.com/webitel/im-chat-hub/internal/domain/registry"
	"github.com/webitel/im-chat-hub/internal/service/dto"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

type DirectRouter interface {
	Send(ctx context.Context, conn registry.Connector, toUserID, text string) (bool, error)
}

type DirectService struct {
	resolver   NameResolver
	dms        DMStore
	activities ActivityStore
	fanout     *Fanout
	notifier   *Notifier
	logger     *slog.Logger
	now        func() time.Time
}

func NewDirectService(
	resolver NameResolver,
	dms DMStore,
	activities ActivityStore,
	fanout *Fanout,
	notifier *Notifier,
	logger *slog.Logger,
) *DirectService {
	return &DirectService{
		resolver:   resolver,
		dms:        dms,
		activities: activities,
		fanout:     fanout,
		notifier:   notifier,
		logger:     logger,
		now:        time.Now,
	}
}

// Send routes a DM to every live session of the recipient and echoes it to the
// sender. It reports whether any recipient session accepted the envelope.
func (s *DirectService) Send(ctx context.Context, conn registry.Connector, toUserID, text string) (bool, error) {
	ctx, span := tracer.Start(ctx, "direct.send")
	defer span.End()

	if toUserID == "" {
		return false, model.NewProtocolError("toUserId is required")
	}
	if strings.TrimSpace(text) == "" {
		return false, model.NewProtocolError("message is empty")
	}
	st := conn.State()
	span.SetAttributes(attribute.String("to_user_id", toUserID))

	toUsername, err := s.resolver.ResolveName(ctx, toUserID)
	switch {
	case model.KindOf(err) == model.KindNotFound:
		return false, model.NewNotFoundError("recipient not found")
	case err != nil:
		// [RESILIENCE] Keep the message moving with the bare ID as display name.
		toUsername = toUserID
	}

	dm := model.DirectMessage{
		ID:           uuid.NewString(),
		FromUserID:   st.UserID,
		FromUsername: st.Username,
		ToUserID:     toUserID,
		ToUsername:   toUsername,
		Text:         text,
		Timestamp:    s.now().UTC(),
	}

	// 1. [LIVE_DELIVERY] every recipient session, then the echo to the origin.
	delivered := false
	if frame, ok := s.notifier.Frame(dto.NewDM(dm), model.PriorityHigh); ok {
		delivered = s.notifier.User(toUserID, frame, conn.GetID()) > 0
		conn.Send(frame)
	}

	// 2. [PERSIST]
	var failures []error
	if err := s.dms.Append(ctx, &dm); err != nil {
		failures = append(failures, err)
	}
	act := model.NewDMSentActivity(dm)
	if stored, err := s.activities.Create(ctx, &act); err != nil {
		failures = append(failures, err)
	} else if stored != nil {
		act = *stored
	}

	// 3. [PRIVATE_FAN_OUT] sender and recipient only.
	s.fanout.ToUsers(act, dm.FromUserID, dm.ToUserID)
	s.fanout.PublishActivity(ctx, act)
	s.fanout.PublishNewMessage(ctx, model.NewMessageNotice{
		Type:         dto.OutDM,
		From:         dm.FromUserID,
		To:           dm.ToUserID,
		FromUsername: dm.FromUsername,
		ToUsername:   dm.ToUsername,
		Message:      dm.Text,
		Timestamp:    dm.Timestamp,
	})

	if len(failures) > 0 {
		span.SetStatus(codes.Error, "persistence failed")
		s.logger.Error("DM_PERSIST_FAILED",
			"conn_id", st.ID,
			"from_user_id", dm.FromUserID,
			"to_user_id", dm.ToUserID,
			"err", errors.Join(failures...),
		)
		return delivered, &model.Error{
			Kind:    model.KindPersistence,
			Message: "direct message could not be saved",
			Err:     errors.Join(failures...),
		}
	}
	return delivered, nil
}
