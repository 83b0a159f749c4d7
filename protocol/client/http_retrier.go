package client

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/grafana/treeforge/retry"
)

// HTTPRetrier wraps another retrier and only retries transport failures:
//   - network timeouts (net.Error, including those wrapped in *url.Error)
//   - server unavailable errors on GET requests
//
// All other errors, including every 4xx answer, are not retried. The client only
// runs reads through a retrier, so object creations are never duplicated.
//
// Example usage:
//
//	base := retry.NewExponentialBackoffRetrier().
//	    WithMaxAttempts(3).
//	    WithInitialDelay(100 * time.Millisecond)
//	ctx = retry.ToContext(ctx, client.NewHTTPRetrier(base))
type HTTPRetrier struct {
	// wrapped provides backoff timing and the attempt budget
	wrapped retry.Retrier
}

// NewHTTPRetrier creates a new HTTPRetrier that wraps the given retrier.
func NewHTTPRetrier(wrapped retry.Retrier) *HTTPRetrier {
	if wrapped == nil {
		wrapped = &retry.NoopRetrier{}
	}
	return &HTTPRetrier{
		wrapped: wrapped,
	}
}

// ShouldRetry determines if an error should be retried.
func (r *HTTPRetrier) ShouldRetry(ctx context.Context, err error, attempt int) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return r.wrapped.ShouldRetry(ctx, err, attempt)
	}

	var serverErr *ServerUnavailableError
	if errors.As(err, &serverErr) {
		if !isRetryableOperation(serverErr.Operation, serverErr.StatusCode) {
			return false
		}
		return r.wrapped.ShouldRetry(ctx, err, attempt)
	}

	return false
}

// isRetryableOperation reports whether a request that failed with statusCode may be resent.
// Only reads qualify.
func isRetryableOperation(operation string, statusCode int) bool {
	if operation != http.MethodGet && operation != "" {
		return false
	}

	switch statusCode {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

// Wait waits before the next retry attempt by delegating to the wrapped retrier.
func (r *HTTPRetrier) Wait(ctx context.Context, attempt int) error {
	return r.wrapped.Wait(ctx, attempt)
}

// MaxAttempts returns the maximum number of attempts by delegating to the wrapped retrier.
func (r *HTTPRetrier) MaxAttempts() int {
	return r.wrapped.MaxAttempts()
}
