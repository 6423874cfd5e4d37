package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/webitel/im-chat-hub/internal/domain/model"
	"github.com/webitel/im-chat-hub/internal/domain/registry"
	"github.com/webitel/im-chat-hub/internal/service/dto"
)

// [SESSION_SERVICE] PRIMARY INTERFACE FOR TRANSPORT HANDLERS
type Sessioner interface {
	Open(ctx context.Context, remoteAddr string) registry.Connector
	Handle(ctx context.Context, conn registry.Connector, raw []byte)
	Touch(conn registry.Connector)
	Disconnect(ctx context.Context, conn registry.Connector)
}

// Session decodes client envelopes and routes them, auth gate first.
// A transport calls Handle sequentially per connection, so one inbound event
// is fully processed before the next one is read.
type Session struct {
	hub      registry.Hubber
	auth     Auther
	rooms    RoomManager
	chat     Poster
	direct   DirectRouter
	signals  Signaler
	presence *PresenceMonitor
	users    UserStore
	codec    Codec
	notifier *Notifier
	logger   *slog.Logger
}

type SessionDeps struct {
	Hub      registry.Hubber
	Auth     Auther
	Rooms    RoomManager
	Chat     Poster
	Direct   DirectRouter
	Signals  Signaler
	Presence *PresenceMonitor
	Users    UserStore
	Codec    Codec
	Notifier *Notifier
	Logger   *slog.Logger
}

func NewSession(d SessionDeps) *Session {
	s := &Session{
		hub:      d.Hub,
		auth:     d.Auth,
		rooms:    d.Rooms,
		chat:     d.Chat,
		direct:   d.Direct,
		signals:  d.Signals,
		presence: d.Presence,
		users:    d.Users,
		codec:    d.Codec,
		notifier: d.Notifier,
		logger:   d.Logger,
	}
	// [EVICTION_HOOK] A missed heartbeat ends in the regular disconnect path.
	d.Presence.OnExpire(func(conn registry.Connector) {
		s.Disconnect(context.Background(), conn)
	})
	return s
}

// Open registers a freshly accepted transport.
func (s *Session) Open(ctx context.Context, remoteAddr string) registry.Connector {
	conn := s.hub.Connect(ctx, remoteAddr)
	s.logger.Debug("CONN_OPENED", "conn_id", conn.GetID(), "remote_addr", remoteAddr)
	return conn
}

func (s *Session) Touch(conn registry.Connector) {
	s.presence.Touch(conn)
}

// Handle processes one raw client envelope. Every failure is answered on the
// originating connection; none of them closes it.
func (s *Session) Handle(ctx context.Context, conn registry.Connector, raw []byte) {
	in, err := s.codec.Decode(raw)
	if err != nil {
		s.notifier.Error(conn, err)
		return
	}

	// [AUTH_GATE]
	if in.Type != dto.InAuth && !conn.State().Authenticated {
		s.notifier.Error(conn, model.NewStateError("unauthenticated"))
		return
	}

	switch in.Type {
	case dto.InAuth:
		s.handleAuth(ctx, conn, in.Token)

	case dto.InPing:
		s.presence.Touch(conn)
		s.notifier.Reply(conn, dto.NewPong())

	case dto.InJoin:
		// The history reply is queued by the room manager itself.
		if _, err := s.rooms.Join(ctx, conn, in.Room); err != nil {
			s.fail(conn, in.Type, err)
		}

	case dto.InLeave:
		if _, ok := s.rooms.Leave(ctx, conn); !ok {
			s.fail(conn, in.Type, model.NewStateError("not in a room"))
		}

	case dto.InChat:
		if _, err := s.chat.Post(ctx, conn, in.Message); err != nil {
			s.fail(conn, in.Type, err)
		}

	case dto.InTyping:
		if in.IsTyping == nil {
			s.fail(conn, in.Type, model.NewProtocolError("isTyping is required"))
			return
		}
		if err := s.signals.Typing(conn, *in.IsTyping); err != nil {
			s.fail(conn, in.Type, err)
		}

	case dto.InDM:
		if _, err := s.direct.Send(ctx, conn, in.ToUserID, in.Message); err != nil {
			s.fail(conn, in.Type, err)
		}

	case dto.InReaction:
		if _, err := s.signals.React(ctx, conn, in.MessageID, in.Emoji); err != nil {
			s.fail(conn, in.Type, err)
		}

	default:
		s.fail(conn, in.Type, model.NewProtocolError("unknown message type"))
	}
}

func (s *Session) handleAuth(ctx context.Context, conn registry.Connector, token string) {
	id, err := s.auth.Authenticate(ctx, conn, token)
	if err != nil {
		s.logger.Debug("AUTH_REJECTED", "conn_id", conn.GetID(), "err", err)
		s.notifier.Reply(conn, dto.NewAuthFailed(model.PublicMessage(err)))
		return
	}
	s.notifier.Reply(conn, dto.NewAuthOK(id))
}

func (s *Session) fail(conn registry.Connector, t dto.InboundType, err error) {
	level := slog.LevelDebug
	if model.KindOf(err) == model.KindPersistence || model.KindOf(err) == model.KindInternal {
		level = slog.LevelWarn
	}
	s.logger.Log(context.Background(), level, "INBOUND_REJECTED",
		"conn_id", conn.GetID(),
		"type", t,
		"kind", model.KindOf(err),
		"err", err,
	)
	s.notifier.Error(conn, err)
}

// Disconnect tears a connection down exactly once, whoever calls it first:
// transport close, heartbeat expiry or shutdown.
func (s *Session) Disconnect(ctx context.Context, conn registry.Connector) {
	dep, ok := s.hub.Unregister(conn.GetID())
	if !ok {
		return
	}
	s.presence.Stop(conn.GetID())
	conn.Close()

	// Cleanup must finish even when the request context is already gone.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	if dep.Room != "" {
		s.rooms.Refresh(ctx, dep.Room)
	}
	if dep.Authenticated && dep.LastSession {
		if err := s.users.SetStatus(ctx, dep.UserID, model.StatusOffline); err != nil {
			s.logger.Warn("USER_STATUS_UPDATE_FAILED", "user_id", dep.UserID, "status", model.StatusOffline, "err", err)
		}
	}

	s.logger.Info("CONN_CLOSED",
		"conn_id", dep.ConnID,
		"user_id", dep.UserID,
		"room", dep.Room,
		"last_session", dep.LastSession,
	)
}
