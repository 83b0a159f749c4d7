package treeforge_test

import (
	"context"
	"net/http"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grafana/treeforge"
	"github.com/grafana/treeforge/protocol"
	"github.com/grafana/treeforge/protocol/hash"
	"github.com/grafana/treeforge/protocol/object"
)

func TestEngine_RemoveEntry(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store, c := newStore(t, siteFiles)
	engine := treeforge.NewEngine(c)

	head := branchHead(t, store, "main")
	res := resolve(t, c, "main", "src/docs/readme.md")

	m, err := engine.Apply(ctx, res, treeforge.RemoveEntry(res.Leaf), "Delete src/docs/readme.md", author)
	require.NoError(t, err)

	requireCreated(t, store, 0, 3, 1)
	assert.Equal(t, 3, m.TreesCreated)
	assert.True(t, m.Parent.Is(head))
	assert.False(t, m.NewRoot.Is(m.OldRoot))
	assert.True(t, m.Commit.Tree.Is(m.NewRoot))

	tree, parents, message, ok := store.Commit(m.Commit.Hash.String())
	require.True(t, ok)
	assert.Equal(t, m.NewRoot.String(), tree)
	assert.Equal(t, []string{head.String()}, parents)
	assert.Equal(t, "Delete src/docs/readme.md", message)

	assert.True(t, branchHead(t, store, "main").Is(head), "building a commit does not move the branch")

	require.NoError(t, engine.Advance(ctx, "main", head, m.Commit.Hash))
	assert.True(t, branchHead(t, store, "main").Is(m.Commit.Hash))

	files := store.Files("refs/heads/main")
	assert.NotContains(t, files, "src/docs/readme.md")
	assert.Contains(t, files, "src/docs/guide.md")
	assert.Len(t, files, len(siteFiles)-1)
}

func TestEngine_RemoveLastEntryPrunesDirectory(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	_, c := newStore(t, siteFiles)
	engine := treeforge.NewEngine(c)

	res := resolve(t, c, "main", "src/lonely/only.md")
	m, err := engine.Apply(ctx, res, treeforge.RemoveEntry(res.Leaf), "Delete only.md", author)
	require.NoError(t, err)
	assert.Equal(t, 2, m.TreesCreated)

	require.NoError(t, engine.Advance(ctx, "main", m.Parent, m.Commit.Hash))

	src := resolve(t, c, "main", "src/lonely")
	_, ok := src.Entry()
	assert.False(t, ok, "an emptied directory disappears")
}

func TestEngine_RenameEntry(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("keeps the object", func(t *testing.T) {
		t.Parallel()
		store, c := newStore(t, siteFiles)
		engine := treeforge.NewEngine(c)
		before := store.Files("refs/heads/main")

		res := resolve(t, c, "main", "src/a.tcl")
		m, err := engine.Apply(ctx, res, treeforge.RenameEntry("a.tcl", "c.tcl"), "Rename", author)
		require.NoError(t, err)
		requireCreated(t, store, 0, 2, 1)

		require.NoError(t, engine.Advance(ctx, "main", m.Parent, m.Commit.Hash))
		after := store.Files("refs/heads/main")
		assert.NotContains(t, after, "src/a.tcl")
		assert.Equal(t, before["src/a.tcl"], after["src/c.tcl"])
	})

	t.Run("onto an existing name", func(t *testing.T) {
		t.Parallel()
		store, c := newStore(t, siteFiles)
		engine := treeforge.NewEngine(c)

		res := resolve(t, c, "main", "src/a.tcl")
		_, err := engine.Apply(ctx, res, treeforge.RenameEntry("a.tcl", "b.tcl"), "Rename", author)
		require.ErrorIs(t, err, treeforge.ErrConflict)
		require.ErrorIs(t, err, treeforge.ErrPathExists)
		requireCreated(t, store, 0, 0, 0)
	})

	t.Run("to the same name", func(t *testing.T) {
		t.Parallel()
		store, c := newStore(t, siteFiles)
		engine := treeforge.NewEngine(c)

		res := resolve(t, c, "main", "src/a.tcl")
		_, err := engine.Apply(ctx, res, treeforge.RenameEntry("a.tcl", "a.tcl"), "Rename", author)
		require.ErrorIs(t, err, treeforge.ErrInvariantViolation)
		requireCreated(t, store, 0, 0, 0)
	})

	t.Run("missing source", func(t *testing.T) {
		t.Parallel()
		store, c := newStore(t, siteFiles)
		engine := treeforge.NewEngine(c)

		res := resolve(t, c, "main", "src/z.tcl")
		_, err := engine.Apply(ctx, res, treeforge.RenameEntry("z.tcl", "y.tcl"), "Rename", author)
		require.ErrorIs(t, err, treeforge.ErrNotFound)
		requireCreated(t, store, 0, 0, 0)
	})
}

func TestEngine_InsertAndReplace(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store, c := newStore(t, siteFiles)
	engine := treeforge.NewEngine(c)

	blob, err := c.CreateBlob(ctx, []byte("puts new"))
	require.NoError(t, err)
	store.ResetCounters()

	res := resolve(t, c, "main", "src/b.tcl")

	_, err = engine.Apply(ctx, res, treeforge.InsertEntry("b.tcl", protocol.ModeFile, object.TypeBlob, blob.Hash), "Add", author)
	require.ErrorIs(t, err, treeforge.ErrPathExists)

	m, err := engine.Apply(ctx, res, treeforge.ReplaceEntry("b.tcl", protocol.ModeFile, object.TypeBlob, blob.Hash), "Replace", author)
	require.NoError(t, err)
	requireCreated(t, store, 0, 2, 1)

	require.NoError(t, engine.Advance(ctx, "main", m.Parent, m.Commit.Hash))
	assert.Equal(t, blob.Hash.String(), store.Files("refs/heads/main")["src/b.tcl"])

	t.Run("replacing with the same object changes nothing", func(t *testing.T) {
		store.ResetCounters()
		res := resolve(t, c, "main", "src/b.tcl")
		_, err := engine.Apply(ctx, res, treeforge.ReplaceEntry("b.tcl", protocol.ModeFile, object.TypeBlob, blob.Hash), "Replace", author)
		require.ErrorIs(t, err, treeforge.ErrInvariantViolation)
		requireCreated(t, store, 0, 0, 0)
	})

	t.Run("an entry needs an object", func(t *testing.T) {
		_, err := engine.Apply(ctx, res, treeforge.InsertEntry("x.tcl", protocol.ModeFile, object.TypeBlob, hash.Zero), "Add", author)
		require.ErrorIs(t, err, treeforge.ErrInvariantViolation)
	})
}

func TestEngine_CommitTree(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store, c := newStore(t, siteFiles)
	engine := treeforge.NewEngine(c)

	first := branchHead(t, store, "main")
	store.Seed("main", map[string]string{"README.md": "changed"}, "second")

	head, err := treeforge.NewResolver(c).Head(ctx, "main")
	require.NoError(t, err)

	firstCommit, err := c.GetCommit(ctx, first)
	require.NoError(t, err)

	m, err := engine.CommitTree(ctx, head, firstCommit.Tree, "Revert to first", author)
	require.NoError(t, err)
	assert.True(t, m.Commit.Tree.Is(firstCommit.Tree))
	assert.True(t, m.Parent.Is(head.Commit.Hash))

	_, err = engine.CommitTree(ctx, head, head.Commit.Tree, "Nothing", author)
	require.ErrorIs(t, err, treeforge.ErrInvariantViolation)
}

func TestEngine_Advance(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("concurrent mutations from the same head", func(t *testing.T) {
		t.Parallel()
		store, c := newStore(t, siteFiles)
		engine := treeforge.NewEngine(c)

		first := resolve(t, c, "main", "src/a.tcl")
		second := resolve(t, c, "main", "src/b.tcl")
		require.True(t, first.Head.Commit.Hash.Is(second.Head.Commit.Hash))

		m1, err := engine.Apply(ctx, first, treeforge.RemoveEntry("a.tcl"), "Delete a", author)
		require.NoError(t, err)
		m2, err := engine.Apply(ctx, second, treeforge.RemoveEntry("b.tcl"), "Delete b", author)
		require.NoError(t, err)

		require.NoError(t, engine.Advance(ctx, "main", m1.Parent, m1.Commit.Hash))

		err = engine.Advance(ctx, "main", m2.Parent, m2.Commit.Hash)
		require.ErrorIs(t, err, treeforge.ErrConflict)
		require.ErrorIs(t, err, treeforge.ErrRefMoved)

		assert.True(t, branchHead(t, store, "main").Is(m1.Commit.Hash), "the first advance is not lost")
	})

	t.Run("branch moves between the check and the update", func(t *testing.T) {
		t.Parallel()
		store, c := newStore(t, siteFiles)
		engine := treeforge.NewEngine(c)

		res := resolve(t, c, "main", "src/a.tcl")
		m, err := engine.Apply(ctx, res, treeforge.RemoveEntry("a.tcl"), "Delete a", author)
		require.NoError(t, err)

		var once sync.Once
		store.OnRequest(http.MethodPatch, "git/refs/heads/main", func() {
			once.Do(func() { store.Seed("main", map[string]string{"README.md": "racing"}, "racer") })
		})

		err = engine.Advance(ctx, "main", m.Parent, m.Commit.Hash)
		require.ErrorIs(t, err, treeforge.ErrConflict)
		require.ErrorIs(t, err, treeforge.ErrRefMoved)
	})

	t.Run("missing branch", func(t *testing.T) {
		t.Parallel()
		store, c := newStore(t, siteFiles)
		head := branchHead(t, store, "main")

		err := treeforge.NewEngine(c).Advance(ctx, "ghost", head, head)
		require.ErrorIs(t, err, treeforge.ErrNotFound)
	})

	t.Run("store failure", func(t *testing.T) {
		t.Parallel()
		store, c := newStore(t, siteFiles)
		engine := treeforge.NewEngine(c)

		res := resolve(t, c, "main", "src/a.tcl")
		m, err := engine.Apply(ctx, res, treeforge.RemoveEntry("a.tcl"), "Delete a", author)
		require.NoError(t, err)

		store.FailRequests(http.MethodPatch, "git/refs", http.StatusServiceUnavailable, "down", 1)
		err = engine.Advance(ctx, "main", m.Parent, m.Commit.Hash)
		require.ErrorIs(t, err, treeforge.ErrStore)
		assert.True(t, branchHead(t, store, "main").Is(m.Parent))
	})
}
