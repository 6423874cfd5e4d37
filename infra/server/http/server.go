// Package http runs the single HTTP listener of the hub.
package http

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/webitel/im-chat-hub/config"
	"go.uber.org/fx"
)

// Server wraps http.Server around a chi router handlers register on.
type Server struct {
	Router chi.Router

	srv    *http.Server
	logger *slog.Logger
}

func New(cfg *config.Config, logger *slog.Logger) *Server {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)

	return &Server{
		Router: r,
		logger: logger,
		srv: &http.Server{
			Addr:              cfg.HTTP.Addr,
			Handler:           r,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

func (s *Server) Start() (net.Addr, error) {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return nil, err
	}
	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("HTTP_SERVE_FAILED", "err", err)
		}
	}()
	s.logger.Info("HTTP_LISTENING", "addr", ln.Addr().String())
	return ln.Addr(), nil
}

// Stop stops accepting requests. Hijacked websockets are closed by the hub shutdown.
func (s *Server) Stop(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

var Module = fx.Module("http-server",
	fx.Provide(New),
	fx.Invoke(func(lc fx.Lifecycle, s *Server) {
		lc.Append(fx.Hook{
			OnStart: func(context.Context) error {
				_, err := s.Start()
				return err
			},
			OnStop: s.Stop,
		})
	}),
)
