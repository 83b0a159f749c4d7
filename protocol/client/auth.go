package client

import (
	"context"
	"errors"
	"fmt"
)

// WithBasicAuth sets the HTTP Basic Auth options.
// This is not a particularly secure method of authentication, so you probably want to recommend or require WithTokenAuth instead.
func WithBasicAuth(username, password string) Option {
	return func(c *RawClient) error {
		if username == "" {
			return errors.New("username cannot be empty")
		}
		if c.tokenAuth != nil {
			return errors.New("cannot use both basic auth and token auth")
		}
		c.basicAuth = &struct{ Username, Password string }{username, password}
		return nil
	}
}

// WithTokenAuth sets the Authorization header to the given token.
// We will not modify it for you. As such, if it needs a "Bearer" or "token" prefix, you must add that yourself.
func WithTokenAuth(token string) Option {
	return func(c *RawClient) error {
		if token == "" {
			return errors.New("token cannot be empty")
		}
		if c.basicAuth != nil {
			return errors.New("cannot use both basic auth and token auth")
		}
		c.tokenAuth = &token
		return nil
	}
}

// IsAuthorized checks if the credential can read the repository resource.
//
// Returns:
//   - true if the store answered the request
//   - false if the store returns 401 Unauthorized
//   - error for any other failure
func (c *RawClient) IsAuthorized(ctx context.Context) (bool, error) {
	if _, err := c.get(ctx, "", nil); err != nil {
		if errors.Is(err, ErrUnauthorized) {
			return false, nil
		}
		return false, fmt.Errorf("get repository: %w", err)
	}

	return true, nil
}
