package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrServerUnavailable is returned when the store is unavailable (HTTP 5xx or 429).
// This error should only be used with errors.Is() for comparison, not for type assertions.
var ErrServerUnavailable = errors.New("server unavailable")

// ErrUnauthorized is returned when authentication fails (HTTP 401).
var ErrUnauthorized = errors.New("unauthorized")

// ErrPermissionDenied is returned when the credential lacks permission for the operation (HTTP 403).
var ErrPermissionDenied = errors.New("permission denied")

// ErrObjectNotFound is returned when the addressed object, ref or repository does not exist (HTTP 404).
var ErrObjectNotFound = errors.New("object not found")

// ErrUnprocessable is returned when the store refuses a well-formed request (HTTP 409 or 422).
var ErrUnprocessable = errors.New("unprocessable request")

// ErrRefAlreadyExists is returned when creating a ref that already exists.
// It is a refinement of ErrUnprocessable.
var ErrRefAlreadyExists = errors.New("reference already exists")

// ErrNotFastForward is returned when a non-forced ref update would drop commits.
// It is a refinement of ErrUnprocessable.
var ErrNotFastForward = errors.New("update is not a fast forward")

// ServerUnavailableError provides structured information about a store that is unavailable.
type ServerUnavailableError struct {
	// StatusCode is the HTTP status code (5xx or 429)
	StatusCode int
	// Operation is the HTTP method that failed (e.g., "GET", "POST")
	Operation string
	// Underlying is the underlying error
	Underlying error
}

func (e *ServerUnavailableError) Error() string {
	if e.Operation != "" {
		return fmt.Sprintf("server unavailable (operation %s, status code %d): %v", e.Operation, e.StatusCode, e.Underlying)
	}
	return fmt.Sprintf("server unavailable (status code %d): %v", e.StatusCode, e.Underlying)
}

// Unwrap returns the underlying error, preserving the error chain.
func (e *ServerUnavailableError) Unwrap() error {
	return e.Underlying
}

// Is enables errors.Is() compatibility with ErrServerUnavailable.
func (e *ServerUnavailableError) Is(target error) bool {
	return target == ErrServerUnavailable
}

// NewServerUnavailableError creates a new ServerUnavailableError.
// Operation can be empty if the HTTP method is unknown.
func NewServerUnavailableError(operation string, statusCode int, underlying error) *ServerUnavailableError {
	return &ServerUnavailableError{
		Operation:  operation,
		StatusCode: statusCode,
		Underlying: underlying,
	}
}

// CheckServerUnavailable checks if an HTTP response indicates server unavailability:
// a 5xx status or 429 Too Many Requests.
// The caller is responsible for closing the response body.
func CheckServerUnavailable(res *http.Response) error {
	if res.StatusCode >= 500 || res.StatusCode == http.StatusTooManyRequests {
		operation := ""
		if res.Request != nil {
			operation = res.Request.Method
		}
		return NewServerUnavailableError(operation, res.StatusCode, fmt.Errorf("got status code %d: %s", res.StatusCode, res.Status))
	}
	return nil
}

// RequestError is a 4xx answer from the store.
// errors.Is matches it against the sentinel of its status class, and for 409/422 against
// the refinement derived from the store's message.
type RequestError struct {
	StatusCode int
	// Operation is the HTTP method that failed
	Operation string
	// Endpoint is the store resource, e.g. "git/refs"
	Endpoint string
	// Message is the store's own explanation, when it sent one
	Message string
}

func (e *RequestError) Error() string {
	s := fmt.Sprintf("%s (operation %s, endpoint %s, status code %d)",
		e.sentinel().Error(), e.Operation, e.Endpoint, e.StatusCode)
	if e.Message != "" {
		s += ": " + e.Message
	}
	return s
}

func (e *RequestError) sentinel() error {
	switch e.StatusCode {
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusForbidden:
		return ErrPermissionDenied
	case http.StatusNotFound:
		return ErrObjectNotFound
	case http.StatusConflict, http.StatusUnprocessableEntity:
		return ErrUnprocessable
	default:
		return fmt.Errorf("client error %d", e.StatusCode)
	}
}

func (e *RequestError) Is(target error) bool {
	if target == e.sentinel() {
		return true
	}

	if e.StatusCode != http.StatusConflict && e.StatusCode != http.StatusUnprocessableEntity {
		return false
	}

	msg := strings.ToLower(e.Message)
	switch target {
	case ErrRefAlreadyExists:
		return strings.Contains(msg, "already exists")
	case ErrNotFastForward:
		return strings.Contains(msg, "fast forward") || strings.Contains(msg, "fast-forward")
	default:
		return false
	}
}

// CheckHTTPClientError turns a 4xx response into a *RequestError.
// body is the already read response body; the store's JSON "message" is kept.
func CheckHTTPClientError(res *http.Response, body []byte) error {
	if res.StatusCode < 400 || res.StatusCode >= 500 {
		return nil
	}

	e := &RequestError{StatusCode: res.StatusCode}
	if res.Request != nil {
		e.Operation = res.Request.Method
		e.Endpoint = extractEndpoint(res.Request.URL.Path)
	}

	var payload struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		e.Message = payload.Message
	}

	return e
}

// extractEndpoint extracts the store resource from a URL path.
// Returns e.g. "git/trees", "compare", "pulls" or "unknown".
func extractEndpoint(path string) string {
	for _, resource := range []string{"git/blobs", "git/trees", "git/commits", "git/matching-refs", "git/refs", "git/ref"} {
		if strings.Contains(path, "/"+resource+"/") || strings.HasSuffix(path, "/"+resource) {
			return resource
		}
	}

	if strings.Contains(path, "/compare/") {
		return "compare"
	}
	if strings.HasSuffix(path, "/pulls") {
		return "pulls"
	}
	return "unknown"
}
