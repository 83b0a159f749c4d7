package operations

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/grafana/treeforge"
	"github.com/grafana/treeforge/auth"
	"github.com/grafana/treeforge/log"
	"github.com/grafana/treeforge/protocol"
)

// CopyAcrossRequest copies paths from one branch onto another.
type CopyAcrossRequest struct {
	Actor        Actor
	SourceBranch string
	TargetBranch string
	// Paths are files or directories of the source branch.
	Paths   []string
	Bump    string
	Message string
}

// CopyAcross writes the named paths of the source branch onto the target branch,
// keeping files only the target has. When the target is protected and the actor may
// not write it, the copy lands on a scratch branch and a merge proposal is opened,
// subject to the proposal policy. Proposals are not tagged.
func (s *Service) CopyAcross(ctx context.Context, req CopyAcrossRequest) (*Result, error) {
	var c checks
	c.actor(req.Actor)
	c.branch("source branch", req.SourceBranch)
	c.branch("target branch", req.TargetBranch)
	if req.SourceBranch != "" && req.SourceBranch == req.TargetBranch {
		c.add(errors.New("target branch: must differ from the source branch"))
	}
	if len(req.Paths) == 0 {
		c.add(errors.New("paths: at least one path is required"))
	}
	paths := make([]string, 0, len(req.Paths))
	for _, p := range req.Paths {
		if normalized := c.path(p, treeforge.ValidateEntryPath); normalized != "" {
			paths = append(paths, normalized)
		}
	}
	bump := c.bump(req.Bump, s.defaultBump)
	if err := c.err(); err != nil {
		return nil, err
	}

	ctx = begin(ctx, "copy-across", req.Actor, req.TargetBranch)
	propose, err := s.authorizeTarget(ctx, req.Actor, req.TargetBranch)
	if err != nil {
		return nil, err
	}

	var source, target *treeforge.Head
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		source, err = s.resolver.Head(gctx, req.SourceBranch)
		return err
	})
	g.Go(func() error {
		var err error
		target, err = s.resolver.Head(gctx, req.TargetBranch)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	summary := fmt.Sprintf("Copy %s from %s", strings.Join(paths, ", "), req.SourceBranch)
	message := commitMessage(req.Message, summary)

	if propose {
		return s.propose(ctx, req.Actor, source, target, paths, message)
	}

	m, err := s.engine.Overlay(ctx, source, target, paths, message, s.author(req.Actor))
	if err != nil {
		return nil, err
	}

	return s.finish(ctx, target, m, bump, fmt.Sprintf("Copied %d file(s) from %s to %s", len(m.Copied), req.SourceBranch, req.TargetBranch))
}

// authorizeTarget checks the actor against the target branch. It reports whether
// the copy has to go through a merge proposal instead.
func (s *Service) authorizeTarget(ctx context.Context, actor Actor, branch string) (bool, error) {
	_, err := s.authorize(ctx, actor, branch)
	if err == nil {
		return false, nil
	}

	var denied *treeforge.UnauthorizedError
	if !errors.As(err, &denied) || denied.Reason != auth.ReasonBranchNotPermitted || !s.IsProtected(branch) {
		return false, err
	}

	switch s.policy {
	case ProposalAlways:
		return true, nil
	case ProposalRequireBranchCreate:
		decision, cerr := s.authorize(ctx, actor, "")
		if cerr != nil {
			return false, cerr
		}
		if !decision.CanCreateBranches {
			return false, treeforge.NewUnauthorizedError(actor.Username, branch, "branch is protected and the actor may not create proposal branches")
		}
		return true, nil
	default:
		return false, err
	}
}

// propose copies paths onto a scratch branch cut from the target head and opens a
// merge proposal from it.
func (s *Service) propose(ctx context.Context, actor Actor, source, target *treeforge.Head, paths []string, message string) (*Result, error) {
	logger := log.FromContext(ctx)

	branch := ScratchBranchPrefix + uuid.NewString()
	ref, err := protocol.BranchRefName(branch)
	if err != nil {
		return nil, treeforge.NewInvariantViolationError("scratch branch %q: %v", branch, err)
	}

	if _, err := s.store.CreateRef(ctx, ref, target.Commit.Hash); err != nil {
		return nil, treeforge.NewStoreError("create proposal branch "+branch, err)
	}
	logger.Info("Created proposal branch", "proposal_branch", branch, "from", target.Commit.Hash.String())

	scratch := &treeforge.Head{Branch: branch, Ref: ref, Commit: target.Commit}
	pr, commit, err := s.proposeOn(ctx, actor, source, target, scratch, paths, message)
	if err != nil {
		if derr := s.store.DeleteRef(context.WithoutCancel(ctx), ref); derr != nil {
			logger.Warn("Failed to remove proposal branch", "proposal_branch", branch, "error", derr)
		}
		return nil, err
	}

	result := succeeded(fmt.Sprintf("Opened merge proposal %s from %s into %s", pr, branch, target.Branch))
	result.Commit = commit
	result.Proposal = pr.String()
	return result, nil
}

func (s *Service) proposeOn(ctx context.Context, actor Actor, source, target, scratch *treeforge.Head, paths []string, message string) (*protocol.PullRequest, string, error) {
	m, err := s.engine.Overlay(ctx, source, scratch, paths, message, s.author(actor))
	if err != nil {
		return nil, "", err
	}

	if err := s.engine.Advance(ctx, scratch.Branch, m.Parent, m.Commit.Hash); err != nil {
		return nil, "", err
	}

	pr, err := s.store.CreatePullRequest(ctx, protocol.NewPullRequest{
		Title: message,
		Head:  scratch.Branch,
		Base:  target.Branch,
		Body:  fmt.Sprintf("Requested by %s. Copies %s from %s.", actor.Username, strings.Join(paths, ", "), source.Branch),
	})
	if err != nil {
		return nil, "", treeforge.NewStoreError("open merge proposal", err)
	}

	return pr, m.Commit.Hash.String(), nil
}
