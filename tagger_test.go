package treeforge_test

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/Masterminds/semver/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grafana/treeforge"
	"github.com/grafana/treeforge/protocol"
)

func TestParseBump(t *testing.T) {
	for _, in := range []string{"major", "Minor", " patch "} {
		_, err := treeforge.ParseBump(in)
		require.NoError(t, err, in)
	}

	_, err := treeforge.ParseBump("huge")
	require.ErrorIs(t, err, treeforge.ErrInvalidBump)
	_, err = treeforge.ParseBump("")
	require.ErrorIs(t, err, treeforge.ErrInvalidBump)
}

func TestNextVersion(t *testing.T) {
	tests := []struct {
		latest string
		bump   treeforge.Bump
		want   string
	}{
		{latest: "", bump: treeforge.BumpMajor, want: "1.0.0"},
		{latest: "", bump: treeforge.BumpMinor, want: "0.1.0"},
		{latest: "", bump: treeforge.BumpPatch, want: "0.0.1"},
		{latest: "1.3.0", bump: treeforge.BumpMinor, want: "1.4.0"},
		{latest: "1.3.7", bump: treeforge.BumpMajor, want: "2.0.0"},
		{latest: "1.3.7", bump: treeforge.BumpMinor, want: "1.4.0"},
		{latest: "1.3.7", bump: treeforge.BumpPatch, want: "1.3.8"},
		{latest: "2.0.0-rc.1", bump: treeforge.BumpPatch, want: "2.0.1"},
		{latest: "0.0.0", bump: treeforge.BumpMajor, want: "1.0.0"},
	}

	for _, tt := range tests {
		t.Run(tt.latest+" "+string(tt.bump), func(t *testing.T) {
			var latest *semver.Version
			if tt.latest != "" {
				latest = semver.MustParse(tt.latest)
			}

			got, err := treeforge.NextVersion(latest, tt.bump)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.String())
			if latest != nil {
				assert.True(t, got.GreaterThan(latest))
			}
		})
	}

	t.Run("first versions match incrementing 0.0.0", func(t *testing.T) {
		for _, bump := range []treeforge.Bump{treeforge.BumpMajor, treeforge.BumpMinor, treeforge.BumpPatch} {
			first, err := treeforge.NextVersion(nil, bump)
			require.NoError(t, err)
			fromZero, err := treeforge.NextVersion(semver.New(0, 0, 0, "", ""), bump)
			require.NoError(t, err)
			assert.True(t, first.Equal(fromZero), bump)
		}
	})

	_, err := treeforge.NextVersion(nil, "huge")
	require.ErrorIs(t, err, treeforge.ErrInvalidBump)
}

func TestParseVersionTag(t *testing.T) {
	for _, name := range []string{"1.2.3", "0.0.1", "2.0.0-rc.1"} {
		_, ok := treeforge.ParseVersionTag(name)
		assert.True(t, ok, name)
	}
	for _, name := range []string{"v1.2.3", "1.2", "release", "1.2.3+build.5", "retired/feature", "01.2.3"} {
		_, ok := treeforge.ParseVersionTag(name)
		assert.False(t, ok, name)
	}
}

func seedTags(t *testing.T, names ...string) (*treeforge.Tagger, func(string) string, string) {
	t.Helper()
	store, c := newStore(t, siteFiles)
	head := branchHead(t, store, "main").String()
	for _, name := range names {
		store.SetRef(protocol.TagPrefix+name, head)
	}

	target := func(name string) string {
		sha, _ := store.Ref(protocol.TagPrefix + name)
		return sha
	}
	return treeforge.NewTagger(c, treeforge.WithTagBackoff(0)), target, head
}

func TestTagger_Next(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("highest of mixed tags", func(t *testing.T) {
		t.Parallel()
		tagger, _, _ := seedTags(t, "1.2.3", "1.3.0", "0.9.9", "v9.0.0", "nightly", "retired/old")

		latest, err := tagger.Latest(ctx)
		require.NoError(t, err)
		assert.Equal(t, "1.3.0", latest.String())

		next, err := tagger.Next(ctx, treeforge.BumpMinor)
		require.NoError(t, err)
		assert.Equal(t, "1.4.0", next.String())
	})

	t.Run("no tags", func(t *testing.T) {
		t.Parallel()
		tagger, _, _ := seedTags(t)

		latest, err := tagger.Latest(ctx)
		require.NoError(t, err)
		assert.Nil(t, latest)

		next, err := tagger.Next(ctx, treeforge.BumpMajor)
		require.NoError(t, err)
		assert.Equal(t, "1.0.0", next.String())
	})

	t.Run("prerelease sorts below its release", func(t *testing.T) {
		t.Parallel()
		tagger, _, _ := seedTags(t, "1.4.0-rc.1", "1.4.0", "1.3.9")

		versions, err := tagger.Versions(ctx)
		require.NoError(t, err)
		require.Len(t, versions, 3)
		assert.Equal(t, "1.4.0", versions[2].String())
	})
}

func TestTagger_Allocate(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("first tag", func(t *testing.T) {
		t.Parallel()
		tagger, target, head := seedTags(t)

		tag, err := tagger.Allocate(ctx, treeforge.BumpPatch, mustHash(head))
		require.NoError(t, err)
		assert.Equal(t, "0.0.1", tag)
		assert.Equal(t, head, target("0.0.1"))
	})

	t.Run("monotonic across bump classes", func(t *testing.T) {
		t.Parallel()
		tagger, _, head := seedTags(t)

		var previous *semver.Version
		for _, bump := range []treeforge.Bump{
			treeforge.BumpPatch, treeforge.BumpMinor, treeforge.BumpPatch,
			treeforge.BumpMajor, treeforge.BumpPatch, treeforge.BumpMinor,
		} {
			tag, err := tagger.Allocate(ctx, bump, mustHash(head))
			require.NoError(t, err)

			v := semver.MustParse(tag)
			if previous != nil {
				assert.True(t, v.GreaterThan(previous), "%s > %s", v, previous)
			}
			previous = v
		}
		assert.Equal(t, "1.1.0", previous.String())
	})

	t.Run("retries when another writer takes the name", func(t *testing.T) {
		t.Parallel()
		store, c := newStore(t, siteFiles)
		head := branchHead(t, store, "main")
		store.SetRef(protocol.TagPrefix+"1.0.0", head.String())

		var once sync.Once
		store.OnRequest(http.MethodPost, "git/refs", func() {
			once.Do(func() { store.SetRef(protocol.TagPrefix+"1.1.0", head.String()) })
		})

		tag, err := treeforge.NewTagger(c, treeforge.WithTagBackoff(0)).Allocate(ctx, treeforge.BumpMinor, head)
		require.NoError(t, err)
		assert.Equal(t, "1.2.0", tag)
	})

	t.Run("first writer wins with a single attempt", func(t *testing.T) {
		t.Parallel()
		store, c := newStore(t, siteFiles)
		head := branchHead(t, store, "main")

		store.OnRequest(http.MethodPost, "git/refs", func() {
			store.SetRef(protocol.TagPrefix+"0.1.0", head.String())
		})

		tagger := treeforge.NewTagger(c, treeforge.WithTagAttempts(1), treeforge.WithTagBackoff(0))
		_, err := tagger.Allocate(ctx, treeforge.BumpMinor, head)
		require.ErrorIs(t, err, treeforge.ErrConflict)
		require.ErrorIs(t, err, treeforge.ErrTagAlreadyExists)
	})

	t.Run("gives up after the attempt budget", func(t *testing.T) {
		t.Parallel()
		store, c := newStore(t, siteFiles)
		head := branchHead(t, store, "main")

		var attempts atomic.Int32
		store.OnRequest(http.MethodPost, "git/refs", func() {
			n := attempts.Add(1)
			store.SetRef(protocol.TagPrefix+semver.New(0, uint64(n), 0, "", "").String(), head.String())
		})

		tagger := treeforge.NewTagger(c, treeforge.WithTagAttempts(3), treeforge.WithTagBackoff(0))
		_, err := tagger.Allocate(ctx, treeforge.BumpMinor, head)
		require.ErrorIs(t, err, treeforge.ErrTagAlreadyExists)
		assert.EqualValues(t, 3, attempts.Load())
	})

	t.Run("store failures are not retried", func(t *testing.T) {
		t.Parallel()
		store, c := newStore(t, siteFiles)
		head := branchHead(t, store, "main")

		var calls atomic.Int32
		store.OnRequest(http.MethodPost, "git/refs", func() { calls.Add(1) })
		store.FailRequests(http.MethodPost, "git/refs", http.StatusInternalServerError, "boom", 1)

		_, err := treeforge.NewTagger(c, treeforge.WithTagBackoff(0)).Allocate(ctx, treeforge.BumpPatch, head)
		require.ErrorIs(t, err, treeforge.ErrStore)
		assert.EqualValues(t, 1, calls.Load())
	})
}

func TestTagger_Create(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	tagger, target, head := seedTags(t, "1.0.0")

	require.NoError(t, tagger.Create(ctx, "retired/feature", mustHash(head)))
	assert.Equal(t, head, target("retired/feature"))

	err := tagger.Create(ctx, "1.0.0", mustHash(head))
	require.ErrorIs(t, err, treeforge.ErrTagAlreadyExists)

	err = tagger.Create(ctx, "bad..tag", mustHash(head))
	require.ErrorIs(t, err, treeforge.ErrValidation)
}
