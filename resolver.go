package treeforge

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/grafana/treeforge/log"
	"github.com/grafana/treeforge/protocol"
	"github.com/grafana/treeforge/protocol/client"
	"github.com/grafana/treeforge/protocol/hash"
	"github.com/grafana/treeforge/storage"
)

// Head is a branch as read at the start of an operation.
// Every later step of the operation builds on this commit, never on a re-read.
type Head struct {
	Branch string
	// Ref is the full refname, e.g. refs/heads/main.
	Ref    string
	Commit *protocol.Commit
}

// Level is one directory visited while resolving a path.
type Level struct {
	// Path is the directory path from the root; empty for the root itself.
	Path string
	// Name is the directory's entry name in its parent; empty for the root.
	Name string
	// Tree is the shallow listing of the directory.
	Tree *protocol.Tree
}

// Resolution is the chain of directories from the root down to the parent of a target path.
type Resolution struct {
	Head *Head
	// Path is the normalized target path.
	Path string
	// Levels runs from the root (index 0) to the target's parent directory (last).
	Levels []Level
	// Leaf is the target's name in the parent directory; empty when the target is the root.
	Leaf string
}

// Root returns the sha of the root tree the resolution started from.
func (r *Resolution) Root() hash.Hash {
	return r.Levels[0].Tree.Hash
}

// Parent returns the listing of the target's parent directory.
func (r *Resolution) Parent() *Level {
	return &r.Levels[len(r.Levels)-1]
}

// Entry returns the target entry, if the parent directory has one.
func (r *Resolution) Entry() (protocol.TreeEntry, bool) {
	if r.Leaf == "" {
		return protocol.TreeEntry{}, false
	}
	return r.Parent().Tree.Find(r.Leaf)
}

// Resolver walks branch trees one directory at a time.
type Resolver struct {
	store Store
}

func NewResolver(store Store) *Resolver {
	return &Resolver{store: store}
}

// Head reads the branch ref and its commit.
func (r *Resolver) Head(ctx context.Context, branch string) (*Head, error) {
	name, err := protocol.BranchRefName(branch)
	if err != nil {
		return nil, NewValidationError(err)
	}

	ref, err := r.store.GetRef(ctx, name)
	if err != nil {
		if errors.Is(err, client.ErrObjectNotFound) {
			return nil, NewRefNotFoundError("branch " + branch)
		}
		return nil, NewStoreError("read branch "+branch, err)
	}

	commit, err := r.store.GetCommit(ctx, ref.Target)
	if err != nil {
		return nil, NewStoreError("read head commit "+ref.Target.String(), err)
	}

	return &Head{Branch: branch, Ref: name, Commit: commit}, nil
}

// Resolve reads the branch head and resolves p against it.
func (r *Resolver) Resolve(ctx context.Context, branch, p string) (*Resolution, error) {
	head, err := r.Head(ctx, branch)
	if err != nil {
		return nil, err
	}
	return r.ResolveAt(ctx, head, p)
}

// ResolveAt resolves p against an already read head.
// Every segment but the last must be an existing directory. The last may be absent.
func (r *Resolver) ResolveAt(ctx context.Context, head *Head, p string) (*Resolution, error) {
	normalized, err := NormalizePath(p)
	if err != nil {
		return nil, err
	}

	logger := log.FromContext(ctx)

	root, err := r.tree(ctx, head.Commit.Tree)
	if err != nil {
		return nil, err
	}

	res := &Resolution{
		Head:   head,
		Path:   normalized,
		Levels: []Level{{Tree: root}},
	}
	if normalized == "" {
		return res, nil
	}

	segments := strings.Split(normalized, "/")
	res.Leaf = segments[len(segments)-1]

	current := root
	for i, segment := range segments[:len(segments)-1] {
		dirPath := path.Join(segments[:i+1]...)

		entry, ok := current.Find(segment)
		if !ok || !entry.IsDir() {
			return nil, NewPathNotFoundError(normalized, dirPath)
		}

		current, err = r.tree(ctx, entry.Hash)
		if err != nil {
			return nil, err
		}
		res.Levels = append(res.Levels, Level{Path: dirPath, Name: segment, Tree: current})
	}

	logger.Debug("Resolved path", "branch", head.Branch, "path", normalized, "depth", len(res.Levels))
	return res, nil
}

// tree fetches a shallow listing, consulting the request's tree storage first.
func (r *Resolver) tree(ctx context.Context, sha hash.Hash) (*protocol.Tree, error) {
	cache := storage.GetTreeStorageFromContext(ctx)
	if cache != nil {
		if tree, ok := cache.Get(sha); ok {
			return tree, nil
		}
	}

	tree, err := r.store.GetTree(ctx, sha)
	if err != nil {
		return nil, NewStoreError(fmt.Sprintf("get tree %s", sha), err)
	}

	if cache != nil {
		cache.Add(tree)
	}
	return tree, nil
}
