package ws

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/webitel/im-chat-hub/config"
	"github.com/webitel/im-chat-hub/internal/domain/registry"
	"github.com/webitel/im-chat-hub/internal/service"
)

const DefaultWriteTimeout = 10 * time.Second

// WSHandler upgrades /ws requests and pumps frames between the socket and the session.
type WSHandler struct {
	logger       *slog.Logger
	session      service.Sessioner
	upgrader     websocket.Upgrader
	readLimit    int64
	writeTimeout time.Duration

	// inflight counts open sockets; draining refuses new ones once Wait ran.
	mu       sync.Mutex
	draining bool
	inflight sync.WaitGroup
}

func NewWSHandler(logger *slog.Logger, session service.Sessioner, cfg *config.Config) *WSHandler {
	writeTimeout := cfg.HTTP.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = DefaultWriteTimeout
	}
	return &WSHandler{
		logger:       logger,
		session:      session,
		readLimit:    cfg.HTTP.ReadLimit,
		writeTimeout: writeTimeout,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     originChecker(cfg.HTTP.AllowedOrigins),
		},
	}
}

func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !h.track() {
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}
	defer h.inflight.Done()

	// 1. UPGRADE TO WEBSOCKET
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("WS_UPGRADE_FAILED", "remote_addr", r.RemoteAddr, "err", err)
		return
	}
	defer ws.Close()

	// 2. REGISTER (unauthenticated until the client sends {type:auth})
	ctx := r.Context()
	conn := h.session.Open(ctx, r.RemoteAddr)
	log := h.logger.With("conn_id", conn.GetID())

	if h.readLimit > 0 {
		ws.SetReadLimit(h.readLimit)
	}
	// [LIVENESS] protocol pong counts the same as a JSON ping
	ws.SetPongHandler(func(string) error {
		h.session.Touch(conn)
		return nil
	})

	// 3. WRITER: single goroutine owns every write to the socket
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		h.writePump(ws, conn, log)
	}()

	// 4. READER: inbound events are handled strictly in arrival order
	h.readPump(ctx, ws, conn, log)

	h.session.Disconnect(ctx, conn)
	<-writerDone
}

// Wait refuses new sockets and blocks until every open one has finished its
// disconnect, or ctx ends.
func (h *WSHandler) Wait(ctx context.Context) error {
	h.mu.Lock()
	h.draining = true
	h.mu.Unlock()

	done := make(chan struct{})
	go func() {
		h.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *WSHandler) track() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.draining {
		return false
	}
	h.inflight.Add(1)
	return true
}

func (h *WSHandler) readPump(ctx context.Context, ws *websocket.Conn, conn registry.Connector, log *slog.Logger) {
	for {
		mt, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) &&
				!errors.Is(err, net.ErrClosed) {
				log.Debug("WS_READ_FAILED", "err", err)
			}
			return
		}
		if mt != websocket.TextMessage && mt != websocket.BinaryMessage {
			continue
		}
		h.session.Handle(ctx, conn, data)
	}
}

func (h *WSHandler) writePump(ws *websocket.Conn, conn registry.Connector, log *slog.Logger) {
	for {
		select {
		case f := <-conn.Outbound():
			_ = ws.SetWriteDeadline(time.Now().Add(h.writeTimeout))
			if err := ws.WriteMessage(websocket.TextMessage, f.Payload); err != nil {
				log.Debug("WS_WRITE_FAILED", "err", err)
				h.abort(ws, conn)
				return
			}

		case <-conn.Probes():
			if err := ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(h.writeTimeout)); err != nil {
				log.Debug("WS_PING_FAILED", "err", err)
				h.abort(ws, conn)
				return
			}

		case <-conn.Done():
			// [GRACEFUL_CLOSE] heartbeat expiry, shutdown or a finished read loop
			_ = ws.WriteControl(
				websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second),
			)
			_ = ws.Close()
			return
		}
	}
}

// abort unblocks the reader; the reader then runs the regular disconnect.
func (h *WSHandler) abort(ws *websocket.Conn, conn registry.Connector) {
	conn.Close()
	_ = ws.Close()
}

// originChecker allows requests without Origin (non-browser clients), any
// origin for "*", and otherwise exact scheme://host matches.
func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 || slices.Contains(allowed, "*") {
		return func(*http.Request) bool { return true }
	}
	normalized := make([]string, 0, len(allowed))
	for _, o := range allowed {
		normalized = append(normalized, strings.TrimRight(strings.ToLower(o), "/"))
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		return slices.Contains(normalized, strings.ToLower(u.Scheme+"://"+u.Host))
	}
}
