package client

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"github.com/grafana/treeforge/protocol"
	"github.com/grafana/treeforge/protocol/hash"
	"github.com/grafana/treeforge/protocol/object"
)

const refsPageSize = 100

type refJSON struct {
	Ref    string `json:"ref"`
	Object struct {
		SHA  hash.Hash   `json:"sha"`
		Type object.Type `json:"type"`
	} `json:"object"`
}

func (raw refJSON) toRef() (protocol.RefRef, error) {
	if raw.Ref == "" {
		return protocol.RefRef{}, fmt.Errorf("ref without name")
	}
	if raw.Object.SHA.IsZero() {
		return protocol.RefRef{}, fmt.Errorf("ref %s without target", raw.Ref)
	}
	return protocol.RefRef{
		Name:       raw.Ref,
		Target:     raw.Object.SHA,
		TargetType: raw.Object.Type,
	}, nil
}

// wireRefName strips the refs/ prefix, which the store leaves out of ref URLs.
func wireRefName(name string) (string, error) {
	if _, err := protocol.ParseRefName(name); err != nil {
		return "", err
	}
	return strings.TrimPrefix(name, "refs/"), nil
}

// GetRef reads a single ref by its full name, e.g. refs/heads/main.
func (c *RawClient) GetRef(ctx context.Context, name string) (protocol.RefRef, error) {
	wire, err := wireRefName(name)
	if err != nil {
		return protocol.RefRef{}, err
	}

	var raw refJSON
	if _, err := c.get(ctx, "git/ref/"+wire, &raw); err != nil {
		return protocol.RefRef{}, fmt.Errorf("get ref %s: %w", name, err)
	}

	ref, err := raw.toRef()
	if err != nil {
		return protocol.RefRef{}, fmt.Errorf("get ref %s: %w", name, err)
	}
	return ref, nil
}

var nextLinkPattern = regexp.MustCompile(`<([^>]+)>\s*;\s*rel="next"`)

// nextPage returns the URL of the next page announced in a Link header, if any.
func nextPage(header http.Header) string {
	for _, link := range header.Values("Link") {
		if m := nextLinkPattern.FindStringSubmatch(link); m != nil {
			return m[1]
		}
	}
	return ""
}

// ListRefs lists every ref under prefix, e.g. refs/tags/, following pagination.
func (c *RawClient) ListRefs(ctx context.Context, prefix string) ([]protocol.RefRef, error) {
	if !strings.HasPrefix(prefix, "refs/") {
		return nil, fmt.Errorf("%w: prefix %q does not start with refs/", protocol.ErrInvalidRefName, prefix)
	}
	wire := strings.TrimSuffix(strings.TrimPrefix(prefix, "refs/"), "/")

	refs := make([]protocol.RefRef, 0)
	page := fmt.Sprintf("git/matching-refs/%s?per_page=%d", wire, refsPageSize)
	for page != "" {
		var raw []refJSON
		res, err := c.get(ctx, page, &raw)
		if err != nil {
			return nil, fmt.Errorf("list refs %s: %w", prefix, err)
		}

		for _, r := range raw {
			ref, err := r.toRef()
			if err != nil {
				return nil, fmt.Errorf("list refs %s: %w", prefix, err)
			}
			refs = append(refs, ref)
		}

		page = nextPage(res.header)
	}

	return refs, nil
}

// CreateRef creates a ref. It fails with ErrRefAlreadyExists if the name is taken.
func (c *RawClient) CreateRef(ctx context.Context, name string, target hash.Hash) (protocol.RefRef, error) {
	if _, err := protocol.ParseRefName(name); err != nil {
		return protocol.RefRef{}, err
	}

	req := struct {
		Ref string    `json:"ref"`
		SHA hash.Hash `json:"sha"`
	}{name, target}

	var raw refJSON
	if _, err := c.send(ctx, http.MethodPost, "git/refs", req, &raw); err != nil {
		return protocol.RefRef{}, fmt.Errorf("create ref %s: %w", name, err)
	}

	ref, err := raw.toRef()
	if err != nil {
		return protocol.RefRef{}, fmt.Errorf("create ref %s: %w", name, err)
	}
	return ref, nil
}

// UpdateRef moves a ref to target. Without force the store only accepts a fast forward
// and answers ErrNotFastForward otherwise.
func (c *RawClient) UpdateRef(ctx context.Context, name string, target hash.Hash, force bool) (protocol.RefRef, error) {
	wire, err := wireRefName(name)
	if err != nil {
		return protocol.RefRef{}, err
	}

	req := struct {
		SHA   hash.Hash `json:"sha"`
		Force bool      `json:"force"`
	}{target, force}

	var raw refJSON
	if _, err := c.send(ctx, http.MethodPatch, "git/refs/"+wire, req, &raw); err != nil {
		return protocol.RefRef{}, fmt.Errorf("update ref %s: %w", name, err)
	}

	ref, err := raw.toRef()
	if err != nil {
		return protocol.RefRef{}, fmt.Errorf("update ref %s: %w", name, err)
	}
	return ref, nil
}

// DeleteRef removes a ref.
func (c *RawClient) DeleteRef(ctx context.Context, name string) error {
	wire, err := wireRefName(name)
	if err != nil {
		return err
	}

	if _, err := c.send(ctx, http.MethodDelete, "git/refs/"+wire, nil, nil); err != nil {
		return fmt.Errorf("delete ref %s: %w", name, err)
	}
	return nil
}
