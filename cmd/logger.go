package cmd

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/webitel/im-chat-hub/config"
	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/fx"
)

func ProvideLogger(cfg *config.Config) *slog.Logger {
	return newLogger(cfg, os.Stdout)
}

func newLogger(cfg *config.Config, w io.Writer) *slog.Logger {
	var handler slog.Handler
	switch {
	case cfg.Log.Otel:
		// [OTEL_BRIDGE] records go to the global LoggerProvider
		handler = otelslog.NewHandler(ServiceName, otelslog.WithVersion(version))
	case cfg.Log.Format == "text":
		handler = slog.NewTextHandler(w, &slog.HandlerOptions{Level: cfg.LevelVar})
	default:
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: cfg.LevelVar})
	}

	logger := slog.New(handler).With(
		"service", ServiceName,
		"version", version,
	)
	slog.SetDefault(logger)
	return logger
}

func ProvideWatermillLogger(logger *slog.Logger) watermill.LoggerAdapter {
	return watermill.NewSlogLogger(logger.With("component", "watermill"))
}

// ProvideTracerProvider returns nil when tracing is disabled; spans then stay no-ops.
func ProvideTracerProvider(cfg *config.Config) *sdktrace.TracerProvider {
	if !cfg.Otel.Enabled {
		return nil
	}
	res := resource.NewSchemaless(
		attribute.String("service.name", ServiceName),
		attribute.String("service.namespace", ServiceNamespace),
		attribute.String("service.version", version),
	)
	return sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.AlwaysSample())),
	)
}

func InstallTracerProvider(lc fx.Lifecycle, tp *sdktrace.TracerProvider, logger *slog.Logger) {
	if tp == nil {
		return
	}
	otel.SetTracerProvider(tp)
	logger.Info("TRACING_ENABLED")

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return tp.Shutdown(ctx)
		},
	})
}
