package service

import (
	"context"
	"log/slog"
	"time"
)

// EnricherMiddleware implements [DECORATOR_PATTERN] to add observability
// to name resolution without touching the lookup logic.
type EnricherMiddleware struct {
	Next   NameResolver
	Logger *slog.Logger
}

func NewEnricherMiddleware(next NameResolver, logger *slog.Logger) NameResolver {
	return &EnricherMiddleware{
		Next:   next,
		Logger: logger,
	}
}

func (m *EnricherMiddleware) ResolveName(ctx context.Context, userID string) (string, error) {
	start := time.Now()

	name, err := m.Next.ResolveName(ctx, userID)
	if err != nil {
		m.Logger.Warn("NAME_RESOLUTION_FAILED",
			"user_id", userID,
			"err", err,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
	return name, err
}

func (m *EnricherMiddleware) ResolveNames(ctx context.Context, userIDs ...string) (map[string]string, error) {
	start := time.Now()

	names, err := m.Next.ResolveNames(ctx, userIDs...)

	// [OBSERVABILITY] Scoped logging for performance auditing
	if err != nil {
		m.Logger.Error("NAME_RESOLUTION_BATCH_FAILED",
			"err", err,
			"count", len(userIDs),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	} else {
		m.Logger.Debug("NAME_RESOLUTION_BATCH_COMPLETED",
			"count", len(userIDs),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
	return names, err
}
