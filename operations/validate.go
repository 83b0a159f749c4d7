package operations

import (
	"errors"
	"fmt"
	"strings"

	"github.com/grafana/treeforge"
	"github.com/grafana/treeforge/protocol"
)

// checks collects every problem of a request so they can be reported together.
type checks struct {
	problems []error
}

func (c *checks) add(err error) {
	if err != nil {
		c.problems = append(c.problems, err)
	}
}

func (c *checks) actor(actor Actor) {
	if strings.TrimSpace(actor.Username) == "" {
		c.add(errors.New("actor: username is required"))
	}
}

func (c *checks) branch(field, branch string) {
	if strings.TrimSpace(branch) == "" {
		c.add(fmt.Errorf("%s: branch name is required", field))
		return
	}
	if _, err := protocol.BranchRefName(branch); err != nil {
		c.add(fmt.Errorf("%s: %w", field, err))
	}
}

// path runs validate and returns the normalized path, or "" when it is invalid.
func (c *checks) path(p string, validate func(string) (string, error)) string {
	normalized, err := validate(p)
	if err != nil {
		c.add(err)
		return ""
	}
	return normalized
}

func (c *checks) bump(s string, fallback treeforge.Bump) treeforge.Bump {
	if strings.TrimSpace(s) == "" {
		return fallback
	}
	bump, err := treeforge.ParseBump(s)
	if err != nil {
		c.add(err)
	}
	return bump
}

func (c *checks) err() error {
	return treeforge.NewValidationError(c.problems...)
}
