// Package storage holds the tree cache used while resolving paths.
//
// Trees are content addressed, so a cached listing never goes stale. The cache
// travels in the request context and lives as long as the caller keeps it.
package storage

import (
	"context"

	"github.com/grafana/treeforge/protocol"
	"github.com/grafana/treeforge/protocol/hash"
)

// TreeStorage is an interface for storing tree listings.
type TreeStorage interface {
	// Get retrieves a shallow tree listing by its hash.
	Get(key hash.Hash) (*protocol.Tree, bool)
	// Add adds trees to the storage.
	Add(trees ...*protocol.Tree)
	// Len returns the number of trees in the storage.
	Len() int
}

// treeStorageKey is the key for the tree storage in the context.
type treeStorageKey struct{}

// WithTreeStorageFromContext sets the tree storage for the request.
func WithTreeStorageFromContext(ctx context.Context, storage TreeStorage) context.Context {
	return context.WithValue(ctx, treeStorageKey{}, storage)
}

// GetTreeStorageFromContext gets the tree storage from the context.
func GetTreeStorageFromContext(ctx context.Context) TreeStorage {
	storage, ok := ctx.Value(treeStorageKey{}).(TreeStorage)
	if !ok {
		return nil
	}

	return storage
}
