package client

import (
	"context"
	"fmt"

	"github.com/grafana/treeforge/protocol"
)

// CompareRefs lists the changes between two refs or commits.
func (c *RawClient) CompareRefs(ctx context.Context, base, head string) (*protocol.Comparison, error) {
	if base == "" || head == "" {
		return nil, fmt.Errorf("compare refs: base and head are required")
	}

	var cmp protocol.Comparison
	path := "compare/" + base + "..." + head
	if _, err := c.get(ctx, path, &cmp); err != nil {
		return nil, fmt.Errorf("compare %s...%s: %w", base, head, err)
	}

	return &cmp, nil
}
