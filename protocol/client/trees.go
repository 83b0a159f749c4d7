package client

import (
	"context"
	"fmt"
	"net/http"

	"github.com/grafana/treeforge/protocol"
	"github.com/grafana/treeforge/protocol/hash"
)

type treeJSON struct {
	SHA       hash.Hash            `json:"sha"`
	Tree      []protocol.TreeEntry `json:"tree"`
	Truncated bool                 `json:"truncated"`
}

// GetTree fetches the immediate entries of a tree.
func (c *RawClient) GetTree(ctx context.Context, sha hash.Hash) (*protocol.Tree, error) {
	return c.getTree(ctx, sha, false)
}

// GetTreeRecursive fetches every entry below a tree, with slash-separated paths.
// Tree.Truncated reports whether the store cut the listing short.
func (c *RawClient) GetTreeRecursive(ctx context.Context, sha hash.Hash) (*protocol.Tree, error) {
	return c.getTree(ctx, sha, true)
}

func (c *RawClient) getTree(ctx context.Context, sha hash.Hash, recursive bool) (*protocol.Tree, error) {
	path := "git/trees/" + sha.String()
	if recursive {
		path += "?recursive=1"
	}

	var raw treeJSON
	if _, err := c.get(ctx, path, &raw); err != nil {
		return nil, fmt.Errorf("get tree %s: %w", sha, err)
	}

	if raw.SHA.IsZero() {
		raw.SHA = sha
	}

	return &protocol.Tree{
		Hash:      raw.SHA,
		Entries:   raw.Tree,
		Truncated: raw.Truncated,
	}, nil
}

// CreateTree creates a tree from entries. With a non-zero base the entries are
// overlaid on the base tree; without one they are the complete listing.
// Entry paths may be slash-separated, the store creates the directories between.
func (c *RawClient) CreateTree(ctx context.Context, base hash.Hash, entries []protocol.TreeEntry) (protocol.TreeRef, error) {
	req := struct {
		BaseTree hash.Hash            `json:"base_tree,omitempty"`
		Tree     []protocol.TreeEntry `json:"tree"`
	}{
		BaseTree: base,
		Tree:     entries,
	}
	if req.Tree == nil {
		req.Tree = []protocol.TreeEntry{}
	}

	var ref protocol.TreeRef
	if _, err := c.send(ctx, http.MethodPost, "git/trees", req, &ref); err != nil {
		return protocol.TreeRef{}, fmt.Errorf("create tree: %w", err)
	}
	if ref.Hash.IsZero() {
		return protocol.TreeRef{}, fmt.Errorf("create tree: store returned no sha")
	}

	return ref, nil
}
