package treeforge

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/grafana/treeforge/log"
	"github.com/grafana/treeforge/protocol"
	"github.com/grafana/treeforge/protocol/hash"
	"github.com/grafana/treeforge/protocol/object"
)

// DefaultPlaceholder is the file written to keep an otherwise empty directory addressable.
const DefaultPlaceholder = ".gitkeep"

// ErrTruncatedListing is returned when the store cannot list a tree in one response.
var ErrTruncatedListing = errors.New("recursive tree listing truncated")

// CopyOptions controls how a copy treats its destination.
type CopyOptions struct {
	// Overwrite replaces an existing destination instead of failing with a conflict.
	Overwrite bool
	// Placeholder names the file created when the source directory is empty.
	// Defaults to DefaultPlaceholder.
	Placeholder string
}

func (o CopyOptions) placeholder() string {
	if o.Placeholder == "" {
		return DefaultPlaceholder
	}
	return o.Placeholder
}

// Copy writes src at the target of dst, on the branch dst was resolved against.
// A file is inserted by sha. A directory is copied by remapping its recursive
// listing under the destination, so every copied blob keeps its sha.
func (e *Engine) Copy(ctx context.Context, dst *Resolution, src protocol.TreeEntry, opts CopyOptions, message string, author *protocol.Identity) (*Mutation, error) {
	if dst.Leaf == "" {
		return nil, NewInvalidPathError(dst.Path, "cannot copy onto the root")
	}

	if _, exists := dst.Entry(); exists && !opts.Overwrite {
		return nil, NewConflictError(dst.Path, ErrPathExists)
	}

	if !src.IsDir() {
		edit := InsertEntry(dst.Leaf, src.Mode, src.Type, src.Hash)
		if opts.Overwrite {
			edit = ReplaceEntry(dst.Leaf, src.Mode, src.Type, src.Hash)
		}
		m, err := e.Apply(ctx, dst, edit, message, author)
		if err != nil {
			return nil, err
		}
		src.Path = dst.Path
		m.Copied = []protocol.TreeEntry{src}
		return m, nil
	}

	return e.copyDirectory(ctx, dst, src, opts, message, author)
}

func (e *Engine) copyDirectory(ctx context.Context, dst *Resolution, src protocol.TreeEntry, opts CopyOptions, message string, author *protocol.Identity) (*Mutation, error) {
	logger := log.FromContext(ctx)
	m := newMutation(dst)
	parent := dst.Parent()

	source, err := e.listRecursive(ctx, src.Hash)
	if err != nil {
		return nil, err
	}
	base, err := e.listRecursive(ctx, parent.Tree.Hash)
	if err != nil {
		return nil, err
	}

	merged := make([]protocol.TreeEntry, 0, len(base.Entries)+len(source.Entries))
	for _, entry := range base.Entries {
		if entry.IsDir() || IsWithin(entry.Path, dst.Leaf) {
			continue
		}
		merged = append(merged, entry)
	}

	for _, entry := range source.Entries {
		if entry.IsDir() {
			continue
		}
		entry.Path = dst.Leaf + "/" + entry.Path
		merged = append(merged, entry)
		m.Copied = append(m.Copied, withPrefix(parent.Path, entry))
	}

	if len(m.Copied) == 0 {
		blob, err := e.store.CreateBlob(ctx, nil)
		if err != nil {
			return nil, NewStoreError("create placeholder blob", err)
		}
		entry := protocol.TreeEntry{
			Path: dst.Leaf + "/" + opts.placeholder(),
			Mode: protocol.ModeFile,
			Type: object.TypeBlob,
			Hash: blob.Hash,
		}
		merged = append(merged, entry)
		m.Copied = append(m.Copied, withPrefix(parent.Path, entry))
		logger.Debug("Source directory is empty, writing placeholder", "path", entry.Path)
	}

	sort.Slice(merged, func(i, j int) bool { return merged[i].Path < merged[j].Path })

	if sameFiles(base.Entries, merged) {
		return nil, NewInvariantViolationError("%q already holds the copied directory", dst.Path)
	}

	logger.Debug("Copying directory",
		"branch", dst.Head.Branch,
		"destination", dst.Path,
		"entries", len(m.Copied))

	tree, err := e.store.CreateTree(ctx, hash.Zero, merged)
	if err != nil {
		return nil, NewStoreError(fmt.Sprintf("create tree for %q", displayPath(parent.Path)), err)
	}
	m.TreesCreated++

	depth := len(dst.Levels) - 1
	carry := level{name: parent.Name, sha: tree.Hash}
	if m.NewRoot, err = e.ascend(ctx, m, dst, depth-1, carry); err != nil {
		return nil, err
	}
	return e.commit(ctx, m, dst.Head, message, author)
}

// sameFiles reports whether the file entries of listing equal merged, which is sorted
// and holds files only.
func sameFiles(listing, merged []protocol.TreeEntry) bool {
	files := make([]protocol.TreeEntry, 0, len(listing))
	for _, entry := range listing {
		if !entry.IsDir() {
			files = append(files, entry)
		}
	}
	if len(files) != len(merged) {
		return false
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	for i, entry := range files {
		if entry.Path != merged[i].Path || !sameObject(entry, merged[i].Mode, merged[i].Type, merged[i].Hash) {
			return false
		}
	}
	return true
}

// Overlay copies paths from the source head onto the target head with a single tree
// created on top of the target's root. Directories contribute every file below them.
// Files only the target has are kept.
func (e *Engine) Overlay(ctx context.Context, source, target *Head, paths []string, message string, author *protocol.Identity) (*Mutation, error) {
	listing, err := e.listRecursive(ctx, source.Commit.Tree)
	if err != nil {
		return nil, err
	}

	selected, err := SelectPaths(listing, paths)
	if err != nil {
		return nil, err
	}

	log.FromContext(ctx).Debug("Overlaying paths",
		"source", source.Branch,
		"target", target.Branch,
		"paths", len(paths),
		"entries", len(selected))

	tree, err := e.store.CreateTree(ctx, target.Commit.Tree, selected)
	if err != nil {
		return nil, NewStoreError("create overlay tree", err)
	}

	m := &Mutation{
		Parent:       target.Commit.Hash,
		OldRoot:      target.Commit.Tree,
		NewRoot:      tree.Hash,
		TreesCreated: 1,
		Copied:       selected,
	}
	return e.commit(ctx, m, target, message, author)
}

// SelectPaths picks the non-directory entries of a recursive listing named by paths,
// expanding directories to the files below them. Every path must exist.
func SelectPaths(listing *protocol.Tree, paths []string) ([]protocol.TreeEntry, error) {
	seen := make(map[string]bool)
	var selected []protocol.TreeEntry

	for _, p := range paths {
		normalized, err := ValidateEntryPath(p)
		if err != nil {
			return nil, err
		}

		matched := false
		for _, entry := range listing.Entries {
			if !IsWithin(entry.Path, normalized) {
				continue
			}
			matched = true
			if entry.IsDir() || seen[entry.Path] {
				continue
			}
			seen[entry.Path] = true
			selected = append(selected, entry)
		}

		if !matched {
			return nil, NewPathNotFoundError(normalized, normalized)
		}
	}

	sort.Slice(selected, func(i, j int) bool { return selected[i].Path < selected[j].Path })
	return selected, nil
}

func (e *Engine) listRecursive(ctx context.Context, sha hash.Hash) (*protocol.Tree, error) {
	tree, err := e.store.GetTreeRecursive(ctx, sha)
	if err != nil {
		return nil, NewStoreError(fmt.Sprintf("list tree %s", sha), err)
	}
	if tree.Truncated {
		return nil, NewStoreError(fmt.Sprintf("list tree %s", sha), ErrTruncatedListing)
	}
	return tree, nil
}

func withPrefix(dir string, entry protocol.TreeEntry) protocol.TreeEntry {
	entry.Path = joinPath(dir, entry.Path)
	return entry
}
