package client

import (
	"context"
	"fmt"
	"net/http"

	"github.com/grafana/treeforge/protocol"
)

// CreatePullRequest opens a merge proposal from one branch into another.
func (c *RawClient) CreatePullRequest(ctx context.Context, pr protocol.NewPullRequest) (*protocol.PullRequest, error) {
	if pr.Head == "" || pr.Base == "" {
		return nil, fmt.Errorf("create pull request: head and base are required")
	}

	var out protocol.PullRequest
	if _, err := c.send(ctx, http.MethodPost, "pulls", pr, &out); err != nil {
		return nil, fmt.Errorf("create pull request %s into %s: %w", pr.Head, pr.Base, err)
	}
	if out.Number == 0 {
		return nil, fmt.Errorf("create pull request %s into %s: store returned no number", pr.Head, pr.Base)
	}

	return &out, nil
}
