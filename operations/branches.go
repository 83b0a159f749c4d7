package operations

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/grafana/treeforge"
	"github.com/grafana/treeforge/protocol"
	"github.com/grafana/treeforge/protocol/client"
	"github.com/grafana/treeforge/protocol/hash"
	"github.com/grafana/treeforge/protocol/object"
)

// RetiredTagPrefix prefixes the tags that keep retired branches reachable.
const RetiredTagPrefix = "retired/"

// CreateBranchRequest cuts a new branch from the head of an existing one.
type CreateBranchRequest struct {
	Actor        Actor
	SourceBranch string
	NewBranch    string
}

// CreateBranch points a new branch at the source branch's head. No commit or tag is made.
func (s *Service) CreateBranch(ctx context.Context, req CreateBranchRequest) (*Result, error) {
	var c checks
	c.actor(req.Actor)
	c.branch("source branch", req.SourceBranch)
	c.branch("new branch", req.NewBranch)
	if err := c.err(); err != nil {
		return nil, err
	}

	ctx = begin(ctx, "create-branch", req.Actor, req.NewBranch)
	decision, err := s.authorize(ctx, req.Actor, "")
	if err != nil {
		return nil, err
	}
	if !decision.CanCreateBranches {
		return nil, treeforge.NewUnauthorizedError(req.Actor.Username, req.NewBranch, "actor may not create branches")
	}

	head, err := s.resolver.Head(ctx, req.SourceBranch)
	if err != nil {
		return nil, err
	}

	ref, _ := protocol.BranchRefName(req.NewBranch)
	if _, err := s.store.CreateRef(ctx, ref, head.Commit.Hash); err != nil {
		if errors.Is(err, client.ErrRefAlreadyExists) {
			return nil, treeforge.NewConflictError("branch "+req.NewBranch, treeforge.ErrBranchAlreadyExists)
		}
		return nil, treeforge.NewStoreError("create branch "+req.NewBranch, err)
	}

	result := succeeded(fmt.Sprintf("Created branch %s from %s", req.NewBranch, req.SourceBranch))
	result.Commit = head.Commit.Hash.String()
	return result, nil
}

// RevertBranchRequest restores the tree of an earlier commit.
type RevertBranchRequest struct {
	Actor  Actor
	Branch string
	// Target is a commit sha or a tag name. It must be an ancestor of the branch head.
	Target  string
	Bump    string
	Message string
}

// RevertBranch commits the target's tree on top of the branch head. History is kept.
func (s *Service) RevertBranch(ctx context.Context, req RevertBranchRequest) (*Result, error) {
	var c checks
	c.actor(req.Actor)
	c.branch("branch", req.Branch)
	if strings.TrimSpace(req.Target) == "" {
		c.add(errors.New("target: a commit sha or tag name is required"))
	}
	bump := c.bump(req.Bump, s.defaultBump)
	if err := c.err(); err != nil {
		return nil, err
	}

	ctx = begin(ctx, "revert-branch", req.Actor, req.Branch)
	if _, err := s.authorize(ctx, req.Actor, req.Branch); err != nil {
		return nil, err
	}

	head, err := s.resolver.Head(ctx, req.Branch)
	if err != nil {
		return nil, err
	}

	target, err := s.revision(ctx, strings.TrimSpace(req.Target))
	if err != nil {
		return nil, err
	}

	comparison, err := s.store.CompareRefs(ctx, target.Hash.String(), head.Commit.Hash.String())
	if err != nil {
		return nil, treeforge.NewStoreError("compare "+req.Target+" with "+req.Branch, err)
	}
	if comparison.Status != "ahead" && comparison.Status != "identical" {
		return nil, treeforge.NewValidationError(fmt.Errorf("target: %s is not in the history of %s", req.Target, req.Branch))
	}

	message := commitMessage(req.Message, fmt.Sprintf("Revert %s to %s", req.Branch, req.Target))
	m, err := s.engine.CommitTree(ctx, head, target.Tree, message, s.author(req.Actor))
	if err != nil {
		return nil, err
	}

	return s.finish(ctx, head, m, bump, fmt.Sprintf("Reverted %s to %s", req.Branch, req.Target))
}

// revision reads the commit a sha or tag name refers to.
func (s *Service) revision(ctx context.Context, rev string) (*protocol.Commit, error) {
	sha, err := hash.FromHex(rev)
	if err != nil {
		ref, rerr := protocol.TagRefName(rev)
		if rerr != nil {
			return nil, treeforge.NewValidationError(fmt.Errorf("target: %q is neither a commit sha nor a tag name", rev))
		}

		tag, rerr := s.store.GetRef(ctx, ref)
		if rerr != nil {
			if errors.Is(rerr, client.ErrObjectNotFound) {
				return nil, treeforge.NewRefNotFoundError("tag " + rev)
			}
			return nil, treeforge.NewStoreError("read tag "+rev, rerr)
		}
		if tag.TargetType != object.TypeCommit {
			return nil, treeforge.NewValidationError(fmt.Errorf("target: tag %s points at a %s, not a commit", rev, tag.TargetType))
		}
		sha = tag.Target
	}

	commit, err := s.store.GetCommit(ctx, sha)
	if err != nil {
		if errors.Is(err, client.ErrObjectNotFound) {
			return nil, treeforge.NewRefNotFoundError("commit " + rev)
		}
		return nil, treeforge.NewStoreError("read commit "+rev, err)
	}
	return commit, nil
}

// RetireBranchRequest deletes a branch.
type RetireBranchRequest struct {
	Actor  Actor
	Branch string
	// Archive tags the branch head with retired/<branch> before deleting the branch.
	Archive bool
}

// RetireBranch deletes a branch other than the default or a protected one.
func (s *Service) RetireBranch(ctx context.Context, req RetireBranchRequest) (*Result, error) {
	var c checks
	c.actor(req.Actor)
	c.branch("branch", req.Branch)
	if req.Branch == s.defaultBranch {
		c.add(fmt.Errorf("branch: %s is the default branch and cannot be retired", req.Branch))
	} else if s.IsProtected(req.Branch) {
		c.add(fmt.Errorf("branch: %s is protected and cannot be retired", req.Branch))
	}
	if err := c.err(); err != nil {
		return nil, err
	}

	ctx = begin(ctx, "retire-branch", req.Actor, req.Branch)
	if _, err := s.authorize(ctx, req.Actor, req.Branch); err != nil {
		return nil, err
	}

	head, err := s.resolver.Head(ctx, req.Branch)
	if err != nil {
		return nil, err
	}

	result := succeeded("Retired branch " + req.Branch)
	result.Commit = head.Commit.Hash.String()

	if req.Archive {
		tag := RetiredTagPrefix + req.Branch
		if err := s.tagger.Create(ctx, tag, head.Commit.Hash); err != nil {
			return nil, err
		}
		result.Tag = tag
	}

	if err := s.store.DeleteRef(ctx, head.Ref); err != nil {
		if errors.Is(err, client.ErrObjectNotFound) || errors.Is(err, client.ErrUnprocessable) {
			return nil, treeforge.NewRefNotFoundError("branch " + req.Branch)
		}
		return nil, treeforge.NewStoreError("delete branch "+req.Branch, err)
	}

	return result, nil
}
