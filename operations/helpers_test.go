package operations_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/grafana/treeforge"
	"github.com/grafana/treeforge/auth"
	"github.com/grafana/treeforge/auth/mocks"
	"github.com/grafana/treeforge/internal/storetest"
	"github.com/grafana/treeforge/operations"
	"github.com/grafana/treeforge/protocol"
	"github.com/grafana/treeforge/protocol/object"
)

var ada = operations.Actor{Username: "ada", Secret: "pw"}

// siteFiles is a repository two directory levels deep.
var siteFiles = map[string]string{
	"README.md":          "# site",
	"src/a.tcl":          "puts a",
	"src/b.tcl":          "puts b",
	"src/docs/readme.md": "read me",
	"src/docs/guide.md":  "guide",
	"exp1/one.txt":       "1",
	"exp1/two.txt":       "2",
	"exp1/sub/three.txt": "3",
}

// allowAll authorizes every actor on every branch.
func allowAll() *mocks.FakeAuthorizer {
	fake := &mocks.FakeAuthorizer{}
	fake.ValidateActorReturns(auth.Decision{Authorized: true, CanCreateBranches: true}, nil)
	return fake
}

func newService(t *testing.T, authorizer auth.Authorizer, options ...operations.Option) (*storetest.Store, *operations.Service) {
	t.Helper()

	store := storetest.New(t)
	store.Seed("main", siteFiles, "initial")

	c, err := treeforge.NewHTTPStore(store.URL())
	require.NoError(t, err)

	options = append([]operations.Option{operations.WithTagOptions(treeforge.WithTagBackoff(0))}, options...)
	return store, operations.New(c, authorizer, options...)
}

func head(t *testing.T, store *storetest.Store, branch string) string {
	t.Helper()
	sha, ok := store.Ref(protocol.BranchPrefix + branch)
	require.True(t, ok, "branch %s exists", branch)
	return sha
}

func requireNothingCreated(t *testing.T, store *storetest.Store) {
	t.Helper()
	for _, typ := range []object.Type{object.TypeBlob, object.TypeTree, object.TypeCommit} {
		require.Zero(t, store.Created(typ), "%s objects created", typ)
	}
}

var ctx = context.Background()
