// Package treeforge rewrites trees in a hosted Git repository one path at a time.
//
// A mutation resolves the directories between the root and a target path with one
// shallow listing per level, rebuilds exactly those directories bottom-up, commits
// the new root and advances the branch with compare-and-swap semantics. Each
// successful mutation can then be tagged with the next semantic version.
package treeforge

import (
	"context"

	"github.com/grafana/treeforge/protocol"
	"github.com/grafana/treeforge/protocol/client"
	"github.com/grafana/treeforge/protocol/hash"
)

// Store is the object store a repository lives in.
// *client.RawClient is the HTTP implementation.
type Store interface {
	GetBlob(ctx context.Context, sha hash.Hash) (*protocol.Blob, error)
	CreateBlob(ctx context.Context, content []byte) (protocol.BlobRef, error)

	GetTree(ctx context.Context, sha hash.Hash) (*protocol.Tree, error)
	GetTreeRecursive(ctx context.Context, sha hash.Hash) (*protocol.Tree, error)
	CreateTree(ctx context.Context, base hash.Hash, entries []protocol.TreeEntry) (protocol.TreeRef, error)

	GetCommit(ctx context.Context, sha hash.Hash) (*protocol.Commit, error)
	CreateCommit(ctx context.Context, commit protocol.NewCommit) (protocol.CommitRef, error)

	GetRef(ctx context.Context, name string) (protocol.RefRef, error)
	ListRefs(ctx context.Context, prefix string) ([]protocol.RefRef, error)
	CreateRef(ctx context.Context, name string, target hash.Hash) (protocol.RefRef, error)
	UpdateRef(ctx context.Context, name string, target hash.Hash, force bool) (protocol.RefRef, error)
	DeleteRef(ctx context.Context, name string) error

	CompareRefs(ctx context.Context, base, head string) (*protocol.Comparison, error)
	CreatePullRequest(ctx context.Context, pr protocol.NewPullRequest) (*protocol.PullRequest, error)
}

var _ Store = (*client.RawClient)(nil)

// NewHTTPStore connects to the repository resource at repo.
//
// Example:
//
//	store, err := treeforge.NewHTTPStore(
//	    "https://api.github.com/repos/owner/repo",
//	    client.WithTokenAuth("Bearer "+token),
//	    client.WithReadRetries(3),
//	)
func NewHTTPStore(repo string, options ...client.Option) (*client.RawClient, error) {
	return client.NewRawClient(repo, options...)
}
