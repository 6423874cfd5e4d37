package service

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/webitel/im-chat-hub/internal/domain/model"
	"github.com/webitel/im-chat-hub/internal/domain/registry"
	"golang.org/x/sync/errgroup"
)

const DefaultNameCacheSize = 1024

// NameResolver maps user IDs to display names.
type NameResolver interface {
	// ResolveName returns the display name of userID, NotFound when no such user exists.
	ResolveName(ctx context.Context, userID string) (string, error)
	// ResolveNames resolves a batch concurrently; the first failure aborts the batch.
	ResolveNames(ctx context.Context, userIDs ...string) (map[string]string, error)
}

// PeerEnricher resolves names from live sessions first, then from the user store
// through an LRU cache.
type PeerEnricher struct {
	hub   registry.Hubber
	users UserStore
	cache *lru.Cache[string, string]
}

func NewPeerEnricher(hub registry.Hubber, users UserStore, size int) *PeerEnricher {
	if size <= 0 {
		size = DefaultNameCacheSize
	}
	// [MEMORY_MANAGEMENT] Bounded cache of "hot" identities; size is validated above.
	cache, _ := lru.New[string, string](size)

	return &PeerEnricher{
		hub:   hub,
		users: users,
		cache: cache,
	}
}

func (e *PeerEnricher) ResolveName(ctx context.Context, userID string) (string, error) {
	// [LIVE_PATH] A connected user carries its name in the session.
	if conn, ok := e.hub.LookupByUserID(userID); ok {
		if name := conn.State().Username; name != "" {
			e.cache.Add(userID, name)
			return name, nil
		}
	}

	// [HOT_PATH]
	if name, ok := e.cache.Get(userID); ok {
		return name, nil
	}

	user, err := e.users.FindByID(ctx, userID)
	if err != nil {
		return "", err
	}
	if user == nil {
		return "", model.NewNotFoundError("user not found")
	}

	e.cache.Add(userID, user.Username)
	return user.Username, nil
}

// ResolveNames uses errgroup so every lookup completes or the batch fails together.
func (e *PeerEnricher) ResolveNames(ctx context.Context, userIDs ...string) (map[string]string, error) {
	names := make([]string, len(userIDs))
	g, gCtx := errgroup.WithContext(ctx)

	for i, id := range userIDs {
		g.Go(func() error {
			name, err := e.ResolveName(gCtx, id)
			if err != nil {
				return fmt.Errorf("resolve %s: %w", id, err)
			}
			names[i] = name
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make(map[string]string, len(userIDs))
	for i, id := range userIDs {
		out[id] = names[i]
	}
	return out, nil
}
