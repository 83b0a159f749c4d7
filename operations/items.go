package operations

import (
	"context"

	"github.com/go-git/go-git/v5/plumbing/filemode"

	"github.com/grafana/treeforge"
	"github.com/grafana/treeforge/protocol"
	"github.com/grafana/treeforge/protocol/hash"
	"github.com/grafana/treeforge/protocol/object"
)

// DeleteRequest removes a file or directory. The path must lie inside a directory.
type DeleteRequest struct {
	Actor   Actor
	Branch  string
	Path    string
	Bump    string
	Message string
}

// Delete removes the entry at the request path.
func (s *Service) Delete(ctx context.Context, req DeleteRequest) (*Result, error) {
	var c checks
	c.actor(req.Actor)
	c.branch("branch", req.Branch)
	target := c.path(req.Path, treeforge.ValidateNestedPath)
	bump := c.bump(req.Bump, s.defaultBump)
	if err := c.err(); err != nil {
		return nil, err
	}

	ctx = begin(ctx, "delete", req.Actor, req.Branch)
	if _, err := s.authorize(ctx, req.Actor, req.Branch); err != nil {
		return nil, err
	}

	res, err := s.resolver.Resolve(ctx, req.Branch, target)
	if err != nil {
		return nil, err
	}
	if _, ok := res.Entry(); !ok {
		return nil, treeforge.NewPathNotFoundError(target, target)
	}

	message := commitMessage(req.Message, "Delete "+target)
	m, err := s.engine.Apply(ctx, res, treeforge.RemoveEntry(res.Leaf), message, s.author(req.Actor))
	if err != nil {
		return nil, err
	}

	return s.finish(ctx, res.Head, m, bump, "Deleted "+target)
}

// RenameRequest renames an entry within its directory.
type RenameRequest struct {
	Actor  Actor
	Branch string
	Path   string
	// NewName is a single path segment.
	NewName string
	Bump    string
	Message string
}

// Rename gives the entry at the request path a new name in the same directory.
func (s *Service) Rename(ctx context.Context, req RenameRequest) (*Result, error) {
	var c checks
	c.actor(req.Actor)
	c.branch("branch", req.Branch)
	target := c.path(req.Path, treeforge.ValidateNestedPath)
	c.add(treeforge.ValidateName(req.NewName))
	if target != "" {
		if _, name := treeforge.SplitPath(target); name == req.NewName {
			c.add(treeforge.NewInvalidPathError(req.NewName, "new name equals the current name"))
		}
	}
	bump := c.bump(req.Bump, s.defaultBump)
	if err := c.err(); err != nil {
		return nil, err
	}

	ctx = begin(ctx, "rename", req.Actor, req.Branch)
	if _, err := s.authorize(ctx, req.Actor, req.Branch); err != nil {
		return nil, err
	}

	res, err := s.resolver.Resolve(ctx, req.Branch, target)
	if err != nil {
		return nil, err
	}

	dir, _ := treeforge.SplitPath(target)
	renamed := dir + "/" + req.NewName
	message := commitMessage(req.Message, "Rename "+target+" to "+renamed)

	m, err := s.engine.Apply(ctx, res, treeforge.RenameEntry(res.Leaf, req.NewName), message, s.author(req.Actor))
	if err != nil {
		return nil, err
	}

	return s.finish(ctx, res.Head, m, bump, "Renamed "+target+" to "+renamed)
}

// CopyRequest copies a file or directory to another path of the same branch.
type CopyRequest struct {
	Actor       Actor
	Branch      string
	Source      string
	Destination string
	// Overwrite replaces an existing destination.
	Overwrite bool
	Bump      string
	Message   string
}

// Copy duplicates the source entry at the destination. Copied files keep their blobs.
func (s *Service) Copy(ctx context.Context, req CopyRequest) (*Result, error) {
	var c checks
	c.actor(req.Actor)
	c.branch("branch", req.Branch)
	source := c.path(req.Source, treeforge.ValidateEntryPath)
	destination := c.path(req.Destination, treeforge.ValidateEntryPath)
	if source != "" && destination != "" && treeforge.IsWithin(destination, source) {
		c.add(treeforge.NewInvalidPathError(destination, "destination cannot be the source or lie inside it"))
	}
	bump := c.bump(req.Bump, s.defaultBump)
	if err := c.err(); err != nil {
		return nil, err
	}

	ctx = begin(ctx, "copy", req.Actor, req.Branch)
	if _, err := s.authorize(ctx, req.Actor, req.Branch); err != nil {
		return nil, err
	}

	head, err := s.resolver.Head(ctx, req.Branch)
	if err != nil {
		return nil, err
	}

	src, err := s.resolver.ResolveAt(ctx, head, source)
	if err != nil {
		return nil, err
	}
	entry, ok := src.Entry()
	if !ok {
		return nil, treeforge.NewPathNotFoundError(source, source)
	}

	dst, err := s.resolver.ResolveAt(ctx, head, destination)
	if err != nil {
		return nil, err
	}

	message := commitMessage(req.Message, "Copy "+source+" to "+destination)
	opts := treeforge.CopyOptions{Overwrite: req.Overwrite, Placeholder: s.placeholder}
	m, err := s.engine.Copy(ctx, dst, entry, opts, message, s.author(req.Actor))
	if err != nil {
		return nil, err
	}

	return s.finish(ctx, head, m, bump, "Copied "+source+" to "+destination)
}

// AddFileRequest creates a new file. Its parent directory must exist.
type AddFileRequest struct {
	Actor      Actor
	Branch     string
	Path       string
	Content    []byte
	Executable bool
	Bump       string
	Message    string
}

// AddFile writes a new file. An existing path is a conflict.
func (s *Service) AddFile(ctx context.Context, req AddFileRequest) (*Result, error) {
	var c checks
	c.actor(req.Actor)
	c.branch("branch", req.Branch)
	target := c.path(req.Path, treeforge.ValidateEntryPath)
	bump := c.bump(req.Bump, s.defaultBump)
	if err := c.err(); err != nil {
		return nil, err
	}

	ctx = begin(ctx, "add-file", req.Actor, req.Branch)
	if _, err := s.authorize(ctx, req.Actor, req.Branch); err != nil {
		return nil, err
	}

	res, err := s.resolver.Resolve(ctx, req.Branch, target)
	if err != nil {
		return nil, err
	}
	if _, exists := res.Entry(); exists {
		return nil, treeforge.NewConflictError(target, treeforge.ErrPathExists)
	}

	blob, err := s.store.CreateBlob(ctx, req.Content)
	if err != nil {
		return nil, treeforge.NewStoreError("create blob for "+target, err)
	}

	mode := filemode.Regular
	if req.Executable {
		mode = filemode.Executable
	}

	message := commitMessage(req.Message, "Add "+target)
	m, err := s.engine.Apply(ctx, res, treeforge.InsertEntry(res.Leaf, mode, object.TypeBlob, blob.Hash), message, s.author(req.Actor))
	if err != nil {
		return nil, err
	}

	return s.finish(ctx, res.Head, m, bump, "Added "+target)
}

// AddFolderRequest creates a new directory holding a placeholder file.
type AddFolderRequest struct {
	Actor   Actor
	Branch  string
	Path    string
	Bump    string
	Message string
}

// AddFolder creates an empty directory, kept addressable by the placeholder file.
func (s *Service) AddFolder(ctx context.Context, req AddFolderRequest) (*Result, error) {
	var c checks
	c.actor(req.Actor)
	c.branch("branch", req.Branch)
	target := c.path(req.Path, treeforge.ValidateEntryPath)
	bump := c.bump(req.Bump, s.defaultBump)
	if err := c.err(); err != nil {
		return nil, err
	}

	ctx = begin(ctx, "add-folder", req.Actor, req.Branch)
	if _, err := s.authorize(ctx, req.Actor, req.Branch); err != nil {
		return nil, err
	}

	res, err := s.resolver.Resolve(ctx, req.Branch, target)
	if err != nil {
		return nil, err
	}
	if _, exists := res.Entry(); exists {
		return nil, treeforge.NewConflictError(target, treeforge.ErrPathExists)
	}

	tree, err := s.placeholderTree(ctx)
	if err != nil {
		return nil, err
	}

	message := commitMessage(req.Message, "Add folder "+target)
	m, err := s.engine.Apply(ctx, res, treeforge.InsertEntry(res.Leaf, filemode.Dir, object.TypeTree, tree), message, s.author(req.Actor))
	if err != nil {
		return nil, err
	}
	m.TreesCreated++

	return s.finish(ctx, res.Head, m, bump, "Added folder "+target)
}

// placeholderTree writes a tree holding only an empty placeholder file.
func (s *Service) placeholderTree(ctx context.Context) (hash.Hash, error) {
	blob, err := s.store.CreateBlob(ctx, nil)
	if err != nil {
		return nil, treeforge.NewStoreError("create placeholder blob", err)
	}

	tree, err := s.store.CreateTree(ctx, hash.Zero, []protocol.TreeEntry{{
		Path: s.placeholder,
		Mode: filemode.Regular,
		Type: object.TypeBlob,
		Hash: blob.Hash,
	}})
	if err != nil {
		return nil, treeforge.NewStoreError("create folder tree", err)
	}

	return tree.Hash, nil
}
