// Package operations coordinates the user-facing actions on a branch.
//
// Every action runs the same sequence: validate the request, authorize the actor,
// resolve the paths against one captured head, build the new commit, advance the
// branch with compare-and-swap and tag the commit with the next version. Failures
// before the advance leave the branch untouched. A tagging failure after the
// advance is reported as a partial success.
package operations

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/grafana/treeforge"
	"github.com/grafana/treeforge/auth"
	"github.com/grafana/treeforge/log"
	"github.com/grafana/treeforge/protocol"
)

// ProposalPolicy decides when a cross-branch copy onto a protected branch the actor
// may not write opens a merge proposal instead of failing.
type ProposalPolicy string

const (
	// ProposalAlways opens a proposal for any authenticated actor.
	ProposalAlways ProposalPolicy = "always"
	// ProposalRequireBranchCreate opens a proposal only for actors allowed to create branches.
	ProposalRequireBranchCreate ProposalPolicy = "require-branch-create"
	// ProposalNever rejects the copy as unauthorized.
	ProposalNever ProposalPolicy = "never"
)

// ErrInvalidProposalPolicy is returned by ParseProposalPolicy for unknown policies.
var ErrInvalidProposalPolicy = errors.New("invalid proposal policy")

// ParseProposalPolicy parses a policy name, ignoring case.
func ParseProposalPolicy(s string) (ProposalPolicy, error) {
	switch p := ProposalPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case ProposalAlways, ProposalRequireBranchCreate, ProposalNever:
		return p, nil
	}
	return "", fmt.Errorf("%w: %q (want always, require-branch-create or never)", ErrInvalidProposalPolicy, s)
}

// ScratchBranchPrefix prefixes the branches merge proposals are opened from.
const ScratchBranchPrefix = "treeforge/copy-"

// Actor is the user an operation runs as.
type Actor struct {
	Username string
	Secret   string
}

// Service runs operations against one repository.
type Service struct {
	store      treeforge.Store
	authorizer auth.Authorizer
	resolver   *treeforge.Resolver
	engine     *treeforge.Engine
	tagger     *treeforge.Tagger

	defaultBranch string
	protected     []string
	policy        ProposalPolicy
	placeholder   string
	defaultBump   treeforge.Bump
	authorDomain  string
	tagOptions    []treeforge.TaggerOption
}

// Option configures a Service.
type Option func(*Service)

// WithDefaultBranch names the branch that can never be retired.
func WithDefaultBranch(branch string) Option {
	return func(s *Service) {
		s.defaultBranch = branch
	}
}

// WithProtectedBranches sets the branch patterns that cannot be retired and that
// receive merge proposals for cross-branch copies. Patterns use path.Match syntax.
func WithProtectedBranches(patterns ...string) Option {
	return func(s *Service) {
		s.protected = append(s.protected, patterns...)
	}
}

// WithProposalPolicy sets when merge proposals are opened.
func WithProposalPolicy(policy ProposalPolicy) Option {
	return func(s *Service) {
		s.policy = policy
	}
}

// WithPlaceholder names the file written into otherwise empty directories.
func WithPlaceholder(name string) Option {
	return func(s *Service) {
		if name != "" {
			s.placeholder = name
		}
	}
}

// WithDefaultBump sets the bump class used when a request names none.
func WithDefaultBump(bump treeforge.Bump) Option {
	return func(s *Service) {
		s.defaultBump = bump
	}
}

// WithTagOptions configures version tag allocation.
func WithTagOptions(options ...treeforge.TaggerOption) Option {
	return func(s *Service) {
		s.tagOptions = append(s.tagOptions, options...)
	}
}

// WithAuthorDomain sets the domain of the e-mail address commits are authored with.
func WithAuthorDomain(domain string) Option {
	return func(s *Service) {
		if domain != "" {
			s.authorDomain = domain
		}
	}
}

// New creates a Service backed by store, checking actors with authorizer.
func New(store treeforge.Store, authorizer auth.Authorizer, options ...Option) *Service {
	s := &Service{
		store:         store,
		authorizer:    authorizer,
		defaultBranch: "main",
		policy:        ProposalRequireBranchCreate,
		placeholder:   treeforge.DefaultPlaceholder,
		defaultBump:   treeforge.BumpPatch,
		authorDomain:  "treeforge.local",
	}
	for _, option := range options {
		option(s)
	}

	s.resolver = treeforge.NewResolver(store)
	s.engine = treeforge.NewEngine(store)
	s.tagger = treeforge.NewTagger(store, s.tagOptions...)

	return s
}

// Tagger exposes the version tagger, e.g. to preview the next version.
func (s *Service) Tagger() *treeforge.Tagger {
	return s.tagger
}

// IsProtected reports whether branch matches one of the protected patterns.
func (s *Service) IsProtected(branch string) bool {
	for _, pattern := range s.protected {
		if pattern == branch {
			return true
		}
		if ok, err := path.Match(pattern, branch); err == nil && ok {
			return true
		}
	}
	return false
}

// begin scopes the request logger to one operation.
func begin(ctx context.Context, operation string, actor Actor, branch string) context.Context {
	ctx = log.With(ctx, "operation", operation, "actor", actor.Username, "branch", branch)
	log.FromContext(ctx).Debug("Operation started")
	return ctx
}

// authorize validates the actor against branch. An empty branch checks credentials only.
func (s *Service) authorize(ctx context.Context, actor Actor, branch string) (auth.Decision, error) {
	decision, err := s.authorizer.ValidateActor(ctx, actor.Username, actor.Secret, branch)
	if err != nil {
		return auth.Decision{}, treeforge.NewStoreError("validate actor", err)
	}

	if !decision.Authorized {
		log.FromContext(ctx).Info("Actor denied", "reason", decision.Reason)
		return decision, treeforge.NewUnauthorizedError(actor.Username, branch, decision.Reason)
	}

	return decision, nil
}

func (s *Service) author(actor Actor) *protocol.Identity {
	return &protocol.Identity{
		Name:  actor.Username,
		Email: actor.Username + "@" + s.authorDomain,
	}
}

// commitMessage prefers the caller's message over the generated summary.
func commitMessage(custom, summary string) string {
	if strings.TrimSpace(custom) != "" {
		return custom
	}
	return summary
}

// finish advances the branch to the mutation's commit and tags it.
func (s *Service) finish(ctx context.Context, head *treeforge.Head, m *treeforge.Mutation, bump treeforge.Bump, message string) (*Result, error) {
	if err := s.engine.Advance(ctx, head.Branch, m.Parent, m.Commit.Hash); err != nil {
		return nil, err
	}

	result := succeeded(message)
	result.Commit = m.Commit.Hash.String()

	tag, err := s.tagger.Allocate(ctx, bump, m.Commit.Hash)
	if err != nil {
		log.FromContext(ctx).Warn("Tagging failed after the branch advanced",
			"commit", result.Commit,
			"error", err)
		result.partial(err)
		return result, nil
	}

	result.Tag = tag
	log.FromContext(ctx).Info("Operation completed", "commit", result.Commit, "tag", tag)
	return result, nil
}
