package services

import (
	"context"

	"github.com/google/uuid"
)

// SubtreeCache is an optional read-through cache for assembled subtree views.
// Implementations must guarantee that InvalidateAll makes every previously
// stored view unservable; the redis implementation does this with a global
// catalog-version key baked into each entry's key.
//
// FetchSubtree returns an entry token alongside the miss result and
// StoreSubtree takes that token back, so a view assembled just before a
// concurrent invalidation is stored under the generation observed at lookup
// time and can never be served after the invalidation. An empty token means
// the store is skipped.
type SubtreeCache interface {
	FetchSubtree(ctx context.Context, rootID uuid.UUID) (*TreeView, string, bool)
	StoreSubtree(ctx context.Context, token string, view *TreeView)
	InvalidateAll(ctx context.Context)
}
