package client

import (
	"context"
	"fmt"
	"net/http"

	"github.com/grafana/treeforge/protocol"
	"github.com/grafana/treeforge/protocol/hash"
)

type shaJSON struct {
	SHA hash.Hash `json:"sha"`
}

type commitJSON struct {
	SHA       hash.Hash         `json:"sha"`
	Tree      shaJSON           `json:"tree"`
	Parents   []shaJSON         `json:"parents"`
	Message   string            `json:"message"`
	Author    protocol.Identity `json:"author"`
	Committer protocol.Identity `json:"committer"`
}

func (raw commitJSON) validate() error {
	if raw.SHA.IsZero() {
		return fmt.Errorf("commit without sha")
	}
	if raw.Tree.SHA.IsZero() {
		return fmt.Errorf("commit %s without tree", raw.SHA)
	}
	return nil
}

// GetCommit fetches a commit.
func (c *RawClient) GetCommit(ctx context.Context, sha hash.Hash) (*protocol.Commit, error) {
	var raw commitJSON
	if _, err := c.get(ctx, "git/commits/"+sha.String(), &raw); err != nil {
		return nil, fmt.Errorf("get commit %s: %w", sha, err)
	}
	if err := raw.validate(); err != nil {
		return nil, fmt.Errorf("get commit %s: %w", sha, err)
	}

	commit := &protocol.Commit{
		Hash:      raw.SHA,
		Tree:      raw.Tree.SHA,
		Message:   raw.Message,
		Author:    raw.Author,
		Committer: raw.Committer,
		Parents:   make([]hash.Hash, 0, len(raw.Parents)),
	}
	for _, p := range raw.Parents {
		commit.Parents = append(commit.Parents, p.SHA)
	}

	return commit, nil
}

// CreateCommit creates a commit object. It does not move any ref.
func (c *RawClient) CreateCommit(ctx context.Context, commit protocol.NewCommit) (protocol.CommitRef, error) {
	if commit.Tree.IsZero() {
		return protocol.CommitRef{}, fmt.Errorf("create commit: tree is required")
	}
	if commit.Parents == nil {
		commit.Parents = []hash.Hash{}
	}

	var raw commitJSON
	if _, err := c.send(ctx, http.MethodPost, "git/commits", commit, &raw); err != nil {
		return protocol.CommitRef{}, fmt.Errorf("create commit: %w", err)
	}
	if err := raw.validate(); err != nil {
		return protocol.CommitRef{}, fmt.Errorf("create commit: %w", err)
	}

	return protocol.CommitRef{Hash: raw.SHA, Tree: raw.Tree.SHA}, nil
}
