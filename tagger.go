package treeforge

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/cenkalti/backoff/v4"

	"github.com/grafana/treeforge/log"
	"github.com/grafana/treeforge/protocol"
	"github.com/grafana/treeforge/protocol/client"
	"github.com/grafana/treeforge/protocol/hash"
)

// Bump is the version component a mutation increments.
type Bump string

const (
	BumpMajor Bump = "major"
	BumpMinor Bump = "minor"
	BumpPatch Bump = "patch"
)

// ErrInvalidBump is returned for bump classes other than major, minor and patch.
var ErrInvalidBump = errors.New("invalid bump class")

// ParseBump parses a bump class, case-insensitively.
func ParseBump(s string) (Bump, error) {
	switch b := Bump(strings.ToLower(strings.TrimSpace(s))); b {
	case BumpMajor, BumpMinor, BumpPatch:
		return b, nil
	default:
		return "", fmt.Errorf("%w: %q (want major, minor or patch)", ErrInvalidBump, s)
	}
}

// firstVersions is used when the repository has no version tag yet.
var firstVersions = map[Bump]*semver.Version{
	BumpMajor: semver.New(1, 0, 0, "", ""),
	BumpMinor: semver.New(0, 1, 0, "", ""),
	BumpPatch: semver.New(0, 0, 1, "", ""),
}

// NextVersion increments the bump component of latest and zeroes the ones below it.
// A nil latest yields the first version for the bump class.
func NextVersion(latest *semver.Version, bump Bump) (*semver.Version, error) {
	if latest == nil {
		first, ok := firstVersions[bump]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrInvalidBump, bump)
		}
		return first, nil
	}

	switch bump {
	case BumpMajor:
		return semver.New(latest.Major()+1, 0, 0, "", ""), nil
	case BumpMinor:
		return semver.New(latest.Major(), latest.Minor()+1, 0, "", ""), nil
	case BumpPatch:
		return semver.New(latest.Major(), latest.Minor(), latest.Patch()+1, "", ""), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidBump, bump)
	}
}

// ParseVersionTag parses a bare tag name such as 1.4.0 or 2.0.0-rc.1.
// Names with a v prefix or build metadata are not version tags.
func ParseVersionTag(name string) (*semver.Version, bool) {
	v, err := semver.StrictNewVersion(name)
	if err != nil || v.Metadata() != "" {
		return nil, false
	}
	return v, true
}

const (
	defaultTagAttempts = 3
	defaultTagBackoff  = 50 * time.Millisecond
)

// Tagger allocates version tags.
type Tagger struct {
	store    Store
	attempts int
	interval time.Duration
}

// TaggerOption configures a Tagger.
type TaggerOption func(*Tagger)

// WithTagAttempts sets how many tag names Allocate tries before giving up.
// 1 makes allocation first-writer-wins.
func WithTagAttempts(attempts int) TaggerOption {
	return func(t *Tagger) {
		if attempts > 0 {
			t.attempts = attempts
		}
	}
}

// WithTagBackoff sets the initial wait between allocation attempts.
func WithTagBackoff(interval time.Duration) TaggerOption {
	return func(t *Tagger) {
		t.interval = interval
	}
}

func NewTagger(store Store, options ...TaggerOption) *Tagger {
	t := &Tagger{
		store:    store,
		attempts: defaultTagAttempts,
		interval: defaultTagBackoff,
	}
	for _, option := range options {
		option(t)
	}
	return t
}

// Versions returns every version tag, ascending.
func (t *Tagger) Versions(ctx context.Context) ([]*semver.Version, error) {
	refs, err := t.store.ListRefs(ctx, protocol.TagPrefix)
	if err != nil {
		return nil, NewStoreError("list tags", err)
	}

	versions := make([]*semver.Version, 0, len(refs))
	for _, ref := range refs {
		if v, ok := ParseVersionTag(strings.TrimPrefix(ref.Name, protocol.TagPrefix)); ok {
			versions = append(versions, v)
		}
	}
	sort.Sort(semver.Collection(versions))

	return versions, nil
}

// Latest returns the highest version tag, or nil when there is none.
func (t *Tagger) Latest(ctx context.Context) (*semver.Version, error) {
	versions, err := t.Versions(ctx)
	if err != nil {
		return nil, err
	}
	if len(versions) == 0 {
		return nil, nil
	}
	return versions[len(versions)-1], nil
}

// Next computes the version the next tag would get.
func (t *Tagger) Next(ctx context.Context, bump Bump) (*semver.Version, error) {
	latest, err := t.Latest(ctx)
	if err != nil {
		return nil, err
	}
	return NextVersion(latest, bump)
}

// Create points a new tag at commit. A taken name is a conflict with ErrTagAlreadyExists.
func (t *Tagger) Create(ctx context.Context, name string, commit hash.Hash) error {
	ref, err := protocol.TagRefName(name)
	if err != nil {
		return NewValidationError(err)
	}

	if _, err := t.store.CreateRef(ctx, ref, commit); err != nil {
		if errors.Is(err, client.ErrRefAlreadyExists) {
			return NewConflictError("tag "+name, ErrTagAlreadyExists)
		}
		return NewStoreError("create tag "+name, err)
	}

	log.FromContext(ctx).Info("Created tag", "tag", name, "commit", commit.String())
	return nil
}

// Allocate tags commit with the next version for bump and returns the tag name.
// When another writer takes the computed name first, the highest tag is read again
// and the next name is tried, up to the configured number of attempts.
func (t *Tagger) Allocate(ctx context.Context, bump Bump, commit hash.Hash) (string, error) {
	logger := log.FromContext(ctx)

	var tag string
	attempt := 0
	operation := func() error {
		attempt++

		next, err := t.Next(ctx, bump)
		if err != nil {
			return backoff.Permanent(err)
		}

		name := next.String()
		if err := t.Create(ctx, name, commit); err != nil {
			if errors.Is(err, ErrTagAlreadyExists) {
				logger.Info("Tag taken by another writer", "tag", name, "attempt", attempt)
				return err
			}
			return backoff.Permanent(err)
		}

		tag = name
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = t.interval
	policy.MaxElapsedTime = 0

	b := backoff.WithContext(backoff.WithMaxRetries(policy, uint64(t.attempts-1)), ctx)
	if err := backoff.Retry(operation, b); err != nil {
		return "", NewStoreError("allocate tag", err)
	}

	return tag, nil
}
