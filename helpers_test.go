package treeforge_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/grafana/treeforge"
	"github.com/grafana/treeforge/internal/storetest"
	"github.com/grafana/treeforge/protocol"
	"github.com/grafana/treeforge/protocol/client"
	"github.com/grafana/treeforge/protocol/hash"
	"github.com/grafana/treeforge/protocol/object"
)

var author = &protocol.Identity{Name: "Ada", Email: "ada@example.com"}

// siteFiles is a repository two directory levels deep.
var siteFiles = map[string]string{
	"README.md":          "# site",
	"src/a.tcl":          "puts a",
	"src/b.tcl":          "puts b",
	"src/docs/readme.md": "read me",
	"src/docs/guide.md":  "guide",
	"src/lonely/only.md": "alone",
	"exp1/one.txt":       "1",
	"exp1/two.txt":       "2",
	"exp1/sub/three.txt": "3",
}

func newStore(t *testing.T, files map[string]string) (*storetest.Store, *client.RawClient) {
	t.Helper()

	store := storetest.New(t)
	store.Seed("main", files, "initial")

	c, err := treeforge.NewHTTPStore(store.URL())
	require.NoError(t, err)

	return store, c
}

func resolve(t *testing.T, store treeforge.Store, branch, p string) *treeforge.Resolution {
	t.Helper()
	res, err := treeforge.NewResolver(store).Resolve(context.Background(), branch, p)
	require.NoError(t, err)
	return res
}

func requireCreated(t *testing.T, store *storetest.Store, blobs, trees, commits int) {
	t.Helper()
	require.Equal(t, blobs, store.Created(object.TypeBlob), "blobs created")
	require.Equal(t, trees, store.Created(object.TypeTree), "trees created")
	require.Equal(t, commits, store.Created(object.TypeCommit), "commits created")
}

func branchHead(t *testing.T, store *storetest.Store, branch string) hash.Hash {
	t.Helper()
	sha, ok := store.Ref(protocol.BranchPrefix + branch)
	require.True(t, ok, "branch %s exists", branch)
	return hash.MustFromHex(sha)
}

func mustHash(sha string) hash.Hash {
	return hash.MustFromHex(sha)
}
