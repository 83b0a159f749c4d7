package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"

	"github.com/grafana/treeforge/log"
	"github.com/grafana/treeforge/retry"
)

const acceptEncoding = "gzip, zstd"

// response is a fully read, decompressed reply.
type response struct {
	status int
	header http.Header
	body   []byte
}

// get performs an idempotent read. It is the only request kind that is retried.
func (c *RawClient) get(ctx context.Context, path string, out any) (*response, error) {
	retrier := retry.FromContext(ctx)
	if retrier == nil {
		retrier = c.retrier
	}
	if _, ok := retrier.(*HTTPRetrier); !ok && retrier != nil {
		retrier = NewHTTPRetrier(retrier)
	}

	res, err := retry.Do(ctx, retrier, func() (*response, error) {
		return c.do(ctx, http.MethodGet, c.endpoint(path), nil)
	})
	if err != nil {
		return nil, err
	}

	if out != nil {
		if err := decodeJSON(res, out); err != nil {
			return nil, err
		}
	}
	return res, nil
}

// send performs a single, never retried write.
func (c *RawClient) send(ctx context.Context, method, path string, in, out any) (*response, error) {
	var body []byte
	if in != nil {
		var err error
		body, err = json.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("encode %s request: %w", path, err)
		}
	}

	res, err := c.do(ctx, method, c.endpoint(path), body)
	if err != nil {
		return nil, err
	}

	if out != nil {
		if err := decodeJSON(res, out); err != nil {
			return nil, err
		}
	}
	return res, nil
}

// endpoint resolves a path relative to the repository resource. Absolute URLs,
// such as pagination links, are used as they are.
func (c *RawClient) endpoint(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}

	u := *c.base
	u.RawPath = ""
	rel, query, _ := strings.Cut(path, "?")
	if rel = strings.TrimLeft(rel, "/"); rel != "" {
		u.Path = c.base.Path + "/" + rel
	}
	u.RawQuery = query
	return u.String()
}

func (c *RawClient) do(ctx context.Context, method, target string, body []byte) (*response, error) {
	logger := log.FromContext(ctx)

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("wait for rate limiter: %w", err)
		}
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, err
	}
	c.addDefaultHeaders(req)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	logger.Debug("Store request", "method", method, "url", target, "requestSize", len(body))

	res, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	raw, err := readBody(res)
	if err != nil {
		return nil, fmt.Errorf("read %s %s response: %w", method, target, err)
	}

	logger.Debug("Store response",
		"method", method,
		"url", target,
		"status", res.StatusCode,
		"encoding", res.Header.Get("Content-Encoding"),
		"responseSize", len(raw))

	if err := CheckServerUnavailable(res); err != nil {
		return nil, err
	}
	if err := CheckHTTPClientError(res, raw); err != nil {
		return nil, err
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return nil, fmt.Errorf("unexpected status code %d from %s %s", res.StatusCode, method, target)
	}

	return &response{status: res.StatusCode, header: res.Header, body: raw}, nil
}

// readBody reads the response body, undoing any content encoding the store applied.
func readBody(res *http.Response) ([]byte, error) {
	switch strings.ToLower(strings.TrimSpace(res.Header.Get("Content-Encoding"))) {
	case "", "identity":
		return io.ReadAll(res.Body)
	case "gzip":
		zr, err := gzip.NewReader(res.Body)
		if err != nil {
			return nil, fmt.Errorf("open gzip stream: %w", err)
		}
		defer zr.Close()
		return io.ReadAll(zr)
	case "zstd":
		zr, err := zstd.NewReader(res.Body)
		if err != nil {
			return nil, fmt.Errorf("open zstd stream: %w", err)
		}
		defer zr.Close()
		return io.ReadAll(zr)
	default:
		return nil, fmt.Errorf("unsupported content encoding %q", res.Header.Get("Content-Encoding"))
	}
}

func decodeJSON(res *response, out any) error {
	if err := json.Unmarshal(res.body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
