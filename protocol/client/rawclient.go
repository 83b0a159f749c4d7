// Package client implements the typed HTTP operations of a hosted Git data API.
//
// The base URL points at a repository resource, for example
// https://api.github.com/repos/owner/repo. Every operation is a JSON request relative
// to that URL (git/blobs, git/trees, git/commits, git/refs, compare, pulls). Responses
// are decoded once, here, into the validated shapes of the protocol package.
package client

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"

	"github.com/grafana/treeforge/retry"
)

const defaultUserAgent = "treeforge/0"

type Option func(*RawClient) error

type RawClient struct {
	// Base URL of the repository resource
	base *url.URL
	// HTTP client used for making requests
	client *http.Client
	// User-Agent header value for requests
	userAgent string
	// Basic authentication credentials (username/password)
	basicAuth *struct{ Username, Password string }
	// Token-based authentication header
	tokenAuth *string
	// limiter throttles outgoing requests when set
	limiter *rate.Limiter
	// retrier is used for reads when the context carries none
	retrier retry.Retrier
	// tracing wraps the transport with OpenTelemetry instrumentation
	tracing bool
}

// NewRawClient creates a client for the repository resource at baseURL.
//
// Example:
//
//	c, err := client.NewRawClient(
//	    "https://api.github.com/repos/owner/repo",
//	    client.WithTokenAuth("Bearer "+token),
//	    client.WithReadRetries(3),
//	)
//	if err != nil {
//	    return err
//	}
func NewRawClient(baseURL string, options ...Option) (*RawClient, error) {
	if baseURL == "" {
		return nil, errors.New("repository URL cannot be empty")
	}

	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing url: %w", err)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, errors.New("only HTTP and HTTPS URLs are supported")
	}

	u.Path = strings.TrimRight(u.Path, "/")

	c := &RawClient{
		base:      u,
		client:    &http.Client{},
		userAgent: defaultUserAgent,
	}

	for _, option := range options {
		if option == nil { // allow for easy optional options
			continue
		}
		if err := option(c); err != nil {
			return nil, err
		}
	}

	if c.tracing {
		transport := c.client.Transport
		if transport == nil {
			transport = http.DefaultTransport
		}
		traced := *c.client
		traced.Transport = otelhttp.NewTransport(transport)
		c.client = &traced
	}

	return c, nil
}

// BaseURL returns the repository resource the client talks to.
func (c *RawClient) BaseURL() string {
	return c.base.String()
}

// addDefaultHeaders adds the default headers to the request.
func (c *RawClient) addDefaultHeaders(req *http.Request) {
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("Accept-Encoding", acceptEncoding)
	req.Header.Set("User-Agent", c.userAgent)

	if c.basicAuth != nil {
		req.SetBasicAuth(c.basicAuth.Username, c.basicAuth.Password)
	} else if c.tokenAuth != nil {
		req.Header.Set("Authorization", *c.tokenAuth)
	}
}

// WithUserAgent configures a custom User-Agent header for HTTP requests.
func WithUserAgent(agent string) Option {
	return func(c *RawClient) error {
		if agent == "" {
			return errors.New("user agent cannot be empty")
		}
		c.userAgent = agent
		return nil
	}
}

// WithHTTPClient configures a custom HTTP client for making requests.
// This allows customization of timeouts, transport settings and proxies.
func WithHTTPClient(client *http.Client) Option {
	return func(c *RawClient) error {
		if client == nil {
			return errors.New("httpClient is nil")
		}

		c.client = client
		return nil
	}
}

// WithRateLimit caps outgoing requests at rps per second with the given burst.
// Waiting for the limiter honours the request context.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *RawClient) error {
		if rps <= 0 {
			return fmt.Errorf("rate limit must be positive, got %v", rps)
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
		return nil
	}
}

// WithReadRetries retries idempotent reads up to attempts times with exponential backoff.
// A retrier injected with retry.ToContext takes precedence.
func WithReadRetries(attempts int) Option {
	return func(c *RawClient) error {
		if attempts < 1 {
			return fmt.Errorf("read attempts must be at least 1, got %d", attempts)
		}
		c.retrier = NewHTTPRetrier(retry.NewExponentialBackoffRetrier().WithMaxAttempts(attempts))
		return nil
	}
}

// WithTracing instruments outgoing requests with OpenTelemetry spans.
func WithTracing() Option {
	return func(c *RawClient) error {
		c.tracing = true
		return nil
	}
}
