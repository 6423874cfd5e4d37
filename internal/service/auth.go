package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/webitel/im-chat-hub/internal/domain/model"
	"github.com/webitel/im-chat-hub/internal/domain/registry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Auther is the auth gate every connection passes before any other action.
type Auther interface {
	Authenticate(ctx context.Context, conn registry.Connector, token string) (model.Identity, error)
}

type AuthService struct {
	verifier CredentialVerifier
	hub      registry.Hubber
	users    UserStore
	presence *PresenceMonitor
	logger   *slog.Logger
}

func NewAuthService(
	verifier CredentialVerifier,
	hub registry.Hubber,
	users UserStore,
	presence *PresenceMonitor,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		verifier: verifier,
		hub:      hub,
		users:    users,
		presence: presence,
		logger:   logger,
	}
}

// Authenticate verifies token and binds the identity to conn.
// On failure nothing is mutated and the connection may retry.
func (s *AuthService) Authenticate(ctx context.Context, conn registry.Connector, token string) (model.Identity, error) {
	ctx, span := tracer.Start(ctx, "auth.authenticate")
	defer span.End()

	if conn.State().Authenticated {
		return model.Identity{}, model.NewStateError("already authenticated")
	}
	if token == "" {
		return model.Identity{}, model.NewAuthError(model.ReasonMissingToken)
	}

	id, err := s.verifier.Verify(ctx, token)
	if err != nil {
		span.SetStatus(codes.Error, "verify failed")
		var typed *model.Error
		if errors.As(err, &typed) && typed.Kind == model.KindAuth {
			return model.Identity{}, typed
		}
		return model.Identity{}, &model.Error{Kind: model.KindAuth, Message: model.ReasonInvalidToken, Err: err}
	}
	if id.Username == "" {
		return model.Identity{}, model.NewAuthError(model.ReasonMissingUsername)
	}
	if id.UserID == "" {
		return model.Identity{}, model.NewAuthError(model.ReasonInvalidToken)
	}

	if !s.hub.Authenticate(conn.GetID(), id.UserID, id.Username) {
		return model.Identity{}, model.NewStateError("connection closed")
	}
	span.SetAttributes(attribute.String("user.id", id.UserID))

	// [SIDE_EFFECT] Presence mirror is advisory; a failed write never rejects the login.
	if err := s.users.SetStatus(ctx, id.UserID, model.StatusOnline); err != nil {
		s.logger.Warn("USER_STATUS_UPDATE_FAILED", "user_id", id.UserID, "status", model.StatusOnline, "err", err)
	}

	// [RACE] A close that lands while the online write is in flight may have
	// written offline first. Re-check and restore offline if nobody is left.
	if _, ok := s.hub.Lookup(conn.GetID()); !ok {
		if !s.hub.IsOnline(id.UserID) {
			if err := s.users.SetStatus(context.WithoutCancel(ctx), id.UserID, model.StatusOffline); err != nil {
				s.logger.Warn("USER_STATUS_UPDATE_FAILED", "user_id", id.UserID, "status", model.StatusOffline, "err", err)
			}
		}
		return model.Identity{}, model.NewStateError("connection closed")
	}

	s.presence.Start(conn)

	s.logger.Info("CONN_AUTHENTICATED", "conn_id", conn.GetID(), "user_id", id.UserID, "username", id.Username)
	return id, nil
}
