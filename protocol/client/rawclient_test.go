package client

import (
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewRawClient(t *testing.T) {
	t.Parallel()

	errOption := func(c *RawClient) error {
		return errors.New("option application failed")
	}

	tests := []struct {
		name    string
		repo    string
		options []Option
		wantErr string
	}{
		{
			name: "valid HTTPS repo without options",
			repo: "https://api.github.com/repos/owner/repo",
		},
		{
			name: "valid HTTP repo without options",
			repo: "http://localhost:8080/repos/owner/repo",
		},
		{
			name:    "empty repo URL",
			repo:    "",
			wantErr: "repository URL cannot be empty",
		},
		{
			name:    "invalid repo URL",
			repo:    "://invalid-url-with-no-scheme",
			wantErr: "parsing url: parse \"://invalid-url-with-no-scheme\": missing protocol scheme",
		},
		{
			name:    "unsupported scheme",
			repo:    "ssh://github.com/owner/repo",
			wantErr: "only HTTP and HTTPS URLs are supported",
		},
		{
			name:    "valid repo with basic auth",
			repo:    "https://api.github.com/repos/owner/repo",
			options: []Option{WithBasicAuth("user", "pass")},
		},
		{
			name:    "valid repo with token auth",
			repo:    "https://api.github.com/repos/owner/repo",
			options: []Option{WithTokenAuth("Bearer token123")},
		},
		{
			name:    "both auth methods",
			repo:    "https://api.github.com/repos/owner/repo",
			options: []Option{WithBasicAuth("user", "pass"), WithTokenAuth("Bearer token123")},
			wantErr: "cannot use both basic auth and token auth",
		},
		{
			name:    "empty token",
			repo:    "https://api.github.com/repos/owner/repo",
			options: []Option{WithTokenAuth("")},
			wantErr: "token cannot be empty",
		},
		{
			name:    "nil http client",
			repo:    "https://api.github.com/repos/owner/repo",
			options: []Option{WithHTTPClient(nil)},
			wantErr: "httpClient is nil",
		},
		{
			name:    "non-positive rate limit",
			repo:    "https://api.github.com/repos/owner/repo",
			options: []Option{WithRateLimit(0, 1)},
			wantErr: "rate limit must be positive, got 0",
		},
		{
			name:    "zero read attempts",
			repo:    "https://api.github.com/repos/owner/repo",
			options: []Option{WithReadRetries(0)},
			wantErr: "read attempts must be at least 1, got 0",
		},
		{
			name:    "option returns error",
			repo:    "https://api.github.com/repos/owner/repo",
			options: []Option{errOption},
			wantErr: "option application failed",
		},
		{
			name:    "nil option is skipped",
			repo:    "https://api.github.com/repos/owner/repo",
			options: []Option{nil, WithUserAgent("custom-agent/1.0")},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			c, err := NewRawClient(tt.repo, tt.options...)
			if tt.wantErr != "" {
				require.EqualError(t, err, tt.wantErr)
				require.Nil(t, c)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, c)
		})
	}
}

func TestRawClient_endpoint(t *testing.T) {
	t.Parallel()

	c, err := NewRawClient("https://api.github.com/repos/owner/repo/")
	require.NoError(t, err)

	require.Equal(t, "https://api.github.com/repos/owner/repo", c.endpoint(""))
	require.Equal(t, "https://api.github.com/repos/owner/repo/git/trees/abc?recursive=1", c.endpoint("git/trees/abc?recursive=1"))
	require.Equal(t, "https://api.github.com/repos/owner/repo/git/ref/heads/feature/x", c.endpoint("/git/ref/heads/feature/x"))
	require.Equal(t, "https://example.com/next?page=2", c.endpoint("https://example.com/next?page=2"))
}

func TestWithTracing(t *testing.T) {
	t.Parallel()

	custom := &http.Client{Timeout: 5 * time.Second}
	c, err := NewRawClient("https://api.github.com/repos/owner/repo", WithHTTPClient(custom), WithTracing())
	require.NoError(t, err)

	require.NotSame(t, custom, c.client, "tracing must not mutate the caller's client")
	require.NotNil(t, c.client.Transport)
	require.Equal(t, 5*time.Second, c.client.Timeout)
	require.Nil(t, custom.Transport)
}

func TestNextPage(t *testing.T) {
	t.Parallel()

	h := http.Header{}
	require.Empty(t, nextPage(h))

	h.Set("Link", `<https://api.github.com/repos/o/r/git/matching-refs/tags?page=2>; rel="next", <https://api.github.com/repos/o/r/git/matching-refs/tags?page=5>; rel="last"`)
	require.Equal(t, "https://api.github.com/repos/o/r/git/matching-refs/tags?page=2", nextPage(h))

	h.Set("Link", `<https://api.github.com/repos/o/r/git/matching-refs/tags?page=1>; rel="prev"`)
	require.Empty(t, nextPage(h))
}
