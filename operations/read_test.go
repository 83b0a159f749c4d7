package operations_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grafana/treeforge"
	"github.com/grafana/treeforge/protocol"
)

func entryNames(entries []protocol.TreeEntry) []string {
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Path)
	}
	return names
}

func TestList(t *testing.T) {
	t.Parallel()

	authorizer := allowAll()
	_, svc := newService(t, authorizer)

	root, err := svc.List(ctx, "main", "")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"README.md", "src", "exp1"}, entryNames(root))

	docs, err := svc.List(ctx, "main", "src/docs")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"readme.md", "guide.md"}, entryNames(docs))

	_, err = svc.List(ctx, "main", "src/a.tcl")
	require.ErrorIs(t, err, treeforge.ErrNotFound, "a file is not a directory")

	_, err = svc.List(ctx, "main", "nope/deeper")
	require.ErrorIs(t, err, treeforge.ErrNotFound)

	_, err = svc.List(ctx, "gone", "")
	require.ErrorIs(t, err, treeforge.ErrNotFound)

	_, err = svc.List(ctx, "bad..branch", "")
	require.ErrorIs(t, err, treeforge.ErrValidation)

	assert.Zero(t, authorizer.ValidateActorCallCount(), "reads need no actor")
}

func TestReadFile(t *testing.T) {
	t.Parallel()

	_, svc := newService(t, allowAll())

	blob, err := svc.ReadFile(ctx, "main", "src/docs/guide.md")
	require.NoError(t, err)
	assert.Equal(t, "guide", string(blob.Content))

	_, err = svc.ReadFile(ctx, "main", "src/docs")
	require.ErrorIs(t, err, treeforge.ErrNotFound, "a directory is not a file")

	_, err = svc.ReadFile(ctx, "main", "../etc/passwd")
	require.ErrorIs(t, err, treeforge.ErrValidation)
}

func TestRefs(t *testing.T) {
	t.Parallel()

	store, svc := newService(t, allowAll())
	store.Seed("dev", map[string]string{"x": "y"}, "dev")

	refs, err := svc.Refs(ctx, protocol.BranchPrefix)
	require.NoError(t, err)
	require.Len(t, refs, 2)
	assert.Equal(t, protocol.BranchPrefix+"dev", refs[0].Name)
	assert.Equal(t, protocol.BranchPrefix+"main", refs[1].Name)
	assert.Equal(t, head(t, store, "main"), refs[1].Target.String())

	tags, err := svc.Refs(ctx, protocol.TagPrefix)
	require.NoError(t, err)
	assert.Empty(t, tags)
}
