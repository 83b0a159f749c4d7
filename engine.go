package treeforge

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-git/go-git/v5/plumbing/filemode"

	"github.com/grafana/treeforge/log"
	"github.com/grafana/treeforge/protocol"
	"github.com/grafana/treeforge/protocol/client"
	"github.com/grafana/treeforge/protocol/hash"
	"github.com/grafana/treeforge/protocol/object"
)

type editKind int

const (
	editRemove editKind = iota
	editInsert
	editReplace
	editRename
)

// Edit is a change to a single entry of the target's parent directory.
type Edit struct {
	kind    editKind
	name    string
	newName string
	mode    filemode.FileMode
	typ     object.Type
	sha     hash.Hash
}

// RemoveEntry deletes name. The entry must exist.
func RemoveEntry(name string) Edit {
	return Edit{kind: editRemove, name: name}
}

// InsertEntry adds an entry. The name must be free.
func InsertEntry(name string, mode filemode.FileMode, typ object.Type, sha hash.Hash) Edit {
	return Edit{kind: editInsert, name: name, mode: mode, typ: typ, sha: sha}
}

// ReplaceEntry adds an entry, overwriting whatever has the same name.
func ReplaceEntry(name string, mode filemode.FileMode, typ object.Type, sha hash.Hash) Edit {
	return Edit{kind: editReplace, name: name, mode: mode, typ: typ, sha: sha}
}

// RenameEntry moves oldName to newName within the directory, keeping the object.
func RenameEntry(oldName, newName string) Edit {
	return Edit{kind: editRename, name: oldName, newName: newName}
}

func (e Edit) String() string {
	switch e.kind {
	case editRemove:
		return "remove " + e.name
	case editInsert:
		return "insert " + e.name
	case editReplace:
		return "replace " + e.name
	default:
		return "rename " + e.name + " to " + e.newName
	}
}

// check rejects edits that cannot change anything, before any object is created.
func (e Edit) check() error {
	if e.name == "" {
		return NewInvalidPathError(e.name, "edit needs an entry name")
	}
	if e.kind == editRename && e.name == e.newName {
		return NewInvariantViolationError("renaming %q to itself changes nothing", e.name)
	}
	if (e.kind == editInsert || e.kind == editReplace) && e.sha.IsZero() {
		return NewInvariantViolationError("entry %q needs an object", e.name)
	}
	return nil
}

// apply returns a new listing with the edit applied. dir is used in errors only.
func (e Edit) apply(dir string, entries []protocol.TreeEntry) ([]protocol.TreeEntry, error) {
	index := -1
	for i, entry := range entries {
		if entry.Path == e.name {
			index = i
			break
		}
	}
	at := joinPath(dir, e.name)

	out := make([]protocol.TreeEntry, 0, len(entries)+1)
	switch e.kind {
	case editRemove:
		if index < 0 {
			return nil, NewPathNotFoundError(at, at)
		}
		out = append(out, entries[:index]...)
		out = append(out, entries[index+1:]...)

	case editInsert, editReplace:
		if index >= 0 && e.kind == editInsert {
			return nil, NewConflictError(at, ErrPathExists)
		}
		if index >= 0 && sameObject(entries[index], e.mode, e.typ, e.sha) {
			return nil, NewInvariantViolationError("%q already holds %s", at, e.sha)
		}
		entry := protocol.TreeEntry{Path: e.name, Mode: e.mode, Type: e.typ, Hash: e.sha}
		for i, existing := range entries {
			if i != index {
				out = append(out, existing)
			}
		}
		out = append(out, entry)

	case editRename:
		if index < 0 {
			return nil, NewPathNotFoundError(at, at)
		}
		for _, existing := range entries {
			if existing.Path == e.newName {
				return nil, NewConflictError(joinPath(dir, e.newName), ErrPathExists)
			}
		}
		for i, existing := range entries {
			if i == index {
				existing.Path = e.newName
			}
			out = append(out, existing)
		}
	}

	return out, nil
}

func sameObject(entry protocol.TreeEntry, mode filemode.FileMode, typ object.Type, sha hash.Hash) bool {
	return entry.Mode == mode && entry.Type == typ && entry.Hash.Is(sha)
}

// Mutation is the outcome of building a new commit. The branch has not moved yet.
type Mutation struct {
	Commit protocol.CommitRef
	// Parent is the head the commit was built on, the expected value for the ref advance.
	Parent hash.Hash
	// OldRoot and NewRoot are the root trees before and after.
	OldRoot hash.Hash
	NewRoot hash.Hash
	// TreesCreated counts the tree objects written.
	TreesCreated int
	// Copied lists the entries a copy wrote, with their paths at the destination.
	Copied []protocol.TreeEntry
}

// Engine builds new trees and commits and advances branches.
type Engine struct {
	store Store
	now   func() time.Time
}

func NewEngine(store Store) *Engine {
	return &Engine{store: store, now: time.Now}
}

// Apply edits the target's parent directory and rebuilds every directory above it.
//
// For a target under d directories this writes d+1 trees and one commit, and no blob.
// The commit's only parent is the head captured in res.
func (e *Engine) Apply(ctx context.Context, res *Resolution, edit Edit, message string, author *protocol.Identity) (*Mutation, error) {
	if err := edit.check(); err != nil {
		return nil, err
	}

	parent := res.Parent()
	entries, err := edit.apply(parent.Path, parent.Tree.Entries)
	if err != nil {
		return nil, err
	}

	log.FromContext(ctx).Debug("Applying edit", "branch", res.Head.Branch, "dir", parent.Path, "edit", edit.String())

	return e.rebuild(ctx, res, entries, message, author)
}

// level is one step of the upward pass: the directory's new sha, or removed when it emptied.
type level struct {
	name    string
	sha     hash.Hash
	removed bool
}

func newMutation(res *Resolution) *Mutation {
	return &Mutation{Parent: res.Head.Commit.Hash, OldRoot: res.Root()}
}

// rebuild writes entries as the new listing of the deepest level, then replays the
// levels above it in reverse.
func (e *Engine) rebuild(ctx context.Context, res *Resolution, entries []protocol.TreeEntry, message string, author *protocol.Identity) (*Mutation, error) {
	m := newMutation(res)

	depth := len(res.Levels) - 1
	carry, err := e.writeLevel(ctx, m, res.Levels[depth], depth, entries)
	if err != nil {
		return nil, err
	}

	if m.NewRoot, err = e.ascend(ctx, m, res, depth-1, carry); err != nil {
		return nil, err
	}
	return e.commit(ctx, m, res.Head, message, author)
}

// ascend replaces the child directory's entry at each level from depth up to the
// root and writes the updated listing. It returns the new root sha.
func (e *Engine) ascend(ctx context.Context, m *Mutation, res *Resolution, depth int, carry level) (hash.Hash, error) {
	for ; depth >= 0; depth-- {
		current := res.Levels[depth]

		entries, err := replaceChild(current.Tree.Entries, carry)
		if err != nil {
			return nil, NewInvariantViolationError("directory %q lost child %q: %v", displayPath(current.Path), carry.name, err)
		}

		if carry, err = e.writeLevel(ctx, m, current, depth, entries); err != nil {
			return nil, err
		}
	}
	return carry.sha, nil
}

// writeLevel creates the tree for one level. Directories other than the root that
// end up empty are not written and get dropped from their parent.
func (e *Engine) writeLevel(ctx context.Context, m *Mutation, current Level, depth int, entries []protocol.TreeEntry) (level, error) {
	if len(entries) == 0 && depth > 0 {
		log.FromContext(ctx).Debug("Pruning empty directory", "dir", current.Path)
		return level{name: current.Name, removed: true}, nil
	}

	ref, err := e.store.CreateTree(ctx, hash.Zero, entries)
	if err != nil {
		return level{}, NewStoreError(fmt.Sprintf("create tree for %q", displayPath(current.Path)), err)
	}
	m.TreesCreated++
	return level{name: current.Name, sha: ref.Hash}, nil
}

func replaceChild(entries []protocol.TreeEntry, child level) ([]protocol.TreeEntry, error) {
	out := make([]protocol.TreeEntry, 0, len(entries))
	found := false
	for _, entry := range entries {
		if entry.Path != child.name {
			out = append(out, entry)
			continue
		}
		if !entry.IsDir() {
			return nil, errors.New("entry is not a directory")
		}
		found = true
		if child.removed {
			continue
		}
		entry.Hash = child.sha
		out = append(out, entry)
	}
	if !found {
		return nil, errors.New("entry not found")
	}
	return out, nil
}

// commit checks that the root changed and writes the commit on top of head.
func (e *Engine) commit(ctx context.Context, m *Mutation, head *Head, message string, author *protocol.Identity) (*Mutation, error) {
	if m.NewRoot.Is(m.OldRoot) {
		return nil, NewInvariantViolationError("new root tree %s equals the current root tree", m.NewRoot)
	}

	if author != nil && author.Date.IsZero() {
		stamped := *author
		stamped.Date = e.now()
		author = &stamped
	}

	ref, err := e.store.CreateCommit(ctx, protocol.NewCommit{
		Tree:    m.NewRoot,
		Parents: []hash.Hash{head.Commit.Hash},
		Message: message,
		Author:  author,
	})
	if err != nil {
		return nil, NewStoreError("create commit", err)
	}
	m.Commit = ref

	log.FromContext(ctx).Info("Created commit",
		"branch", head.Branch,
		"commit", ref.Hash.String(),
		"parent", head.Commit.Hash.String(),
		"trees", m.TreesCreated)

	return m, nil
}

// CommitTree commits an existing tree on top of head, e.g. to restore an earlier state.
func (e *Engine) CommitTree(ctx context.Context, head *Head, tree hash.Hash, message string, author *protocol.Identity) (*Mutation, error) {
	m := &Mutation{Parent: head.Commit.Hash, OldRoot: head.Commit.Tree, NewRoot: tree}
	return e.commit(ctx, m, head, message, author)
}

// Advance moves branch from expected to commit. It fails with a conflict when the
// branch no longer points at expected, or when the store refuses a fast forward.
func (e *Engine) Advance(ctx context.Context, branch string, expected, commit hash.Hash) error {
	name, err := protocol.BranchRefName(branch)
	if err != nil {
		return NewValidationError(err)
	}

	current, err := e.store.GetRef(ctx, name)
	if err != nil {
		if errors.Is(err, client.ErrObjectNotFound) {
			return NewRefNotFoundError("branch " + branch)
		}
		return NewStoreError("read branch "+branch, err)
	}

	if !current.Target.Is(expected) {
		log.FromContext(ctx).Warn("Branch moved",
			"branch", branch,
			"expected", expected.String(),
			"actual", current.Target.String())
		return NewConflictError("branch "+branch, ErrRefMoved)
	}

	if _, err := e.store.UpdateRef(ctx, name, commit, false); err != nil {
		if errors.Is(err, client.ErrNotFastForward) {
			return NewConflictError("branch "+branch, ErrRefMoved)
		}
		return NewStoreError("advance branch "+branch, err)
	}

	log.FromContext(ctx).Info("Advanced branch", "branch", branch, "from", expected.String(), "to", commit.String())
	return nil
}

func joinPath(dir, name string) string {
	if dir == "" {
		return name
	}
	return dir + "/" + name
}

func displayPath(p string) string {
	if p == "" {
		return "/"
	}
	return p
}
