package operations

import (
	"context"
	"sort"

	"github.com/grafana/treeforge"
	"github.com/grafana/treeforge/protocol"
)

// List returns the shallow listing of the directory at p on branch.
// An empty path lists the root. Reads need no actor.
func (s *Service) List(ctx context.Context, branch, p string) ([]protocol.TreeEntry, error) {
	var c checks
	c.branch("branch", branch)
	if err := c.err(); err != nil {
		return nil, err
	}

	res, err := s.resolver.Resolve(ctx, branch, p)
	if err != nil {
		return nil, err
	}
	if res.Leaf == "" {
		return res.Parent().Tree.Entries, nil
	}

	entry, ok := res.Entry()
	if !ok || !entry.IsDir() {
		return nil, treeforge.NewPathNotFoundError(res.Path, res.Path)
	}
	tree, err := s.store.GetTree(ctx, entry.Hash)
	if err != nil {
		return nil, treeforge.NewStoreError("read tree "+res.Path, err)
	}
	return tree.Entries, nil
}

// ReadFile returns the blob at p on branch.
func (s *Service) ReadFile(ctx context.Context, branch, p string) (*protocol.Blob, error) {
	var c checks
	c.branch("branch", branch)
	target := c.path(p, treeforge.ValidateEntryPath)
	if err := c.err(); err != nil {
		return nil, err
	}

	res, err := s.resolver.Resolve(ctx, branch, target)
	if err != nil {
		return nil, err
	}
	entry, ok := res.Entry()
	if !ok || entry.IsDir() {
		return nil, treeforge.NewPathNotFoundError(target, target)
	}

	blob, err := s.store.GetBlob(ctx, entry.Hash)
	if err != nil {
		return nil, treeforge.NewStoreError("read blob "+target, err)
	}
	return blob, nil
}

// Refs lists the refs under prefix, e.g. protocol.BranchPrefix, sorted by name.
func (s *Service) Refs(ctx context.Context, prefix string) ([]protocol.RefRef, error) {
	refs, err := s.store.ListRefs(ctx, prefix)
	if err != nil {
		return nil, treeforge.NewStoreError("list refs", err)
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].Name < refs[j].Name })
	return refs, nil
}
