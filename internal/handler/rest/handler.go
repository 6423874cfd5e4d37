// Package rest is the HTTP surface next to the websocket endpoint:
// health, hub stats, the recent activity feed and event ingestion.
package rest

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/webitel/im-chat-hub/infra/server/http/middleware"
	"github.com/webitel/im-chat-hub/internal/domain/event"
	"github.com/webitel/im-chat-hub/internal/domain/model"
	"github.com/webitel/im-chat-hub/internal/domain/registry"
	"github.com/webitel/im-chat-hub/internal/service"
)

const (
	MaxEventBody     = 64 << 10
	DefaultFeedLimit = 20
	MaxFeedLimit     = 100
)

// EventForwarder queues an externally produced event onto the bus.
type EventForwarder interface {
	Forward(ctx context.Context, kind event.Kind, raw json.RawMessage) error
}

// ActivityFeed reads the activities visible to a user, newest first.
type ActivityFeed interface {
	Recent(ctx context.Context, userID string, limit int) ([]model.Activity, error)
}

type RESTHandler struct {
	hub       registry.Hubber
	forwarder EventForwarder
	feed      ActivityFeed
	verifier  service.CredentialVerifier

	// serviceToken guards ingest: pushes name arbitrary senders and scopes,
	// so only trusted services may make them.
	serviceToken string
	logger       *slog.Logger
}

func NewRESTHandler(
	hub registry.Hubber,
	forwarder EventForwarder,
	feed ActivityFeed,
	verifier service.CredentialVerifier,
	serviceToken string,
	logger *slog.Logger,
) *RESTHandler {
	return &RESTHandler{
		hub:          hub,
		forwarder:    forwarder,
		feed:         feed,
		verifier:     verifier,
		serviceToken: serviceToken,
		logger:       logger,
	}
}

// Routes mounts the API. ws is served at /ws without bearer auth, since
// browsers can not set headers on a websocket upgrade.
func (h *RESTHandler) Routes(r chi.Router, ws http.Handler) {
	r.Get("/healthz", h.Health)
	r.Method(http.MethodGet, "/ws", ws)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/stats", h.Stats)

		r.With(middleware.BearerAuth(h.verifier)).Get("/activities", h.Activities)
		r.With(middleware.ServiceAuth(h.serviceToken)).Post("/events/{kind}", h.Ingest)
	})
}

func (h *RESTHandler) Health(w http.ResponseWriter, _ *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *RESTHandler) Stats(w http.ResponseWriter, _ *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, h.hub.Stats())
}

// Activities returns the caller's feed: global items, items of rooms the
// caller belongs to and items addressed to the caller.
func (h *RESTHandler) Activities(w http.ResponseWriter, r *http.Request) {
	id, ok := middleware.IdentityFrom(r.Context())
	if !ok {
		middleware.WriteError(w, http.StatusUnauthorized, model.NewAuthError(model.ReasonMissingToken))
		return
	}

	limit := DefaultFeedLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			middleware.WriteError(w, http.StatusBadRequest, model.NewProtocolError("limit must be a positive integer"))
			return
		}
		limit = min(n, MaxFeedLimit)
	}

	acts, err := h.feed.Recent(r.Context(), id.UserID, limit)
	if err != nil {
		h.logger.Error("ACTIVITY_FEED_FAILED", "user_id", id.UserID, "err", err)
		middleware.WriteError(w, statusOf(err), err)
		return
	}
	if acts == nil {
		acts = []model.Activity{}
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]any{"activities": acts})
}

// Ingest accepts an activity or new_message payload from another service and
// queues it for every hub instance, this one included. Callers are trusted
// services (see ServiceAuth), so sender and scope fields pass through as sent.
func (h *RESTHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	kind, err := event.ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		middleware.WriteError(w, http.StatusNotFound, model.NewNotFoundError(err.Error()))
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxEventBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			middleware.WriteError(w, http.StatusRequestEntityTooLarge, model.NewProtocolError("payload too large"))
			return
		}
		middleware.WriteError(w, http.StatusBadRequest, model.NewProtocolError("unreadable body"))
		return
	}
	if err := validatePayload(kind, body); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, err)
		return
	}

	if err := h.forwarder.Forward(r.Context(), kind, json.RawMessage(body)); err != nil {
		h.logger.Error("EVENT_INGEST_FAILED", "kind", kind, "err", err)
		middleware.WriteError(w, http.StatusInternalServerError, err)
		return
	}

	h.logger.Debug("EVENT_INGESTED", "kind", kind, "remote_addr", r.RemoteAddr)
	middleware.WriteJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

// validatePayload checks the minimum each kind needs to be routed.
func validatePayload(kind event.Kind, body []byte) error {
	switch kind {
	case event.KindActivity:
		var act model.Activity
		// id and timestamp may be left empty; the bus fills them from the envelope.
		if err := json.Unmarshal(body, &act); err != nil {
			return model.NewProtocolError("invalid activity payload")
		}
	case event.KindNewMessage:
		var n model.NewMessageNotice
		if err := json.Unmarshal(body, &n); err != nil {
			return model.NewProtocolError("invalid new_message payload")
		}
		if n.To == "" {
			return model.NewProtocolError("new_message recipient is required")
		}
	}
	return nil
}

func statusOf(err error) int {
	switch model.KindOf(err) {
	case model.KindAuth:
		return http.StatusUnauthorized
	case model.KindProtocol:
		return http.StatusBadRequest
	case model.KindNotFound:
		return http.StatusNotFound
	case model.KindPersistence:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
