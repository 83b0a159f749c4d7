package client

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"

	"github.com/grafana/treeforge/protocol"
	"github.com/grafana/treeforge/protocol/hash"
)

type blobJSON struct {
	SHA      hash.Hash `json:"sha"`
	Size     int64     `json:"size"`
	Content  string    `json:"content"`
	Encoding string    `json:"encoding"`
}

// GetBlob fetches a blob and decodes its content.
func (c *RawClient) GetBlob(ctx context.Context, sha hash.Hash) (*protocol.Blob, error) {
	var raw blobJSON
	if _, err := c.get(ctx, "git/blobs/"+sha.String(), &raw); err != nil {
		return nil, fmt.Errorf("get blob %s: %w", sha, err)
	}

	var content []byte
	switch raw.Encoding {
	case "base64":
		// the store wraps base64 content at 60 columns
		decoded, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(raw.Content, "\n", ""))
		if err != nil {
			return nil, fmt.Errorf("decode blob %s: %w", sha, err)
		}
		content = decoded
	case "utf-8", "":
		content = []byte(raw.Content)
	default:
		return nil, fmt.Errorf("blob %s has unsupported encoding %q", sha, raw.Encoding)
	}

	if raw.SHA.IsZero() {
		raw.SHA = sha
	}

	return &protocol.Blob{Hash: raw.SHA, Content: content}, nil
}

// CreateBlob uploads content as a new blob.
func (c *RawClient) CreateBlob(ctx context.Context, content []byte) (protocol.BlobRef, error) {
	req := struct {
		Content  string `json:"content"`
		Encoding string `json:"encoding"`
	}{
		Content:  base64.StdEncoding.EncodeToString(content),
		Encoding: "base64",
	}

	var ref protocol.BlobRef
	if _, err := c.send(ctx, http.MethodPost, "git/blobs", req, &ref); err != nil {
		return protocol.BlobRef{}, fmt.Errorf("create blob: %w", err)
	}
	if ref.Hash.IsZero() {
		return protocol.BlobRef{}, fmt.Errorf("create blob: store returned no sha")
	}

	return ref, nil
}
