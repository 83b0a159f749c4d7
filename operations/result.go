package operations

import (
	"net/http"

	"github.com/grafana/treeforge"
)

// Status is the coarse outcome of an operation.
type Status string

const (
	// StatusOK means the operation completed, including its tag when it makes one.
	StatusOK Status = "ok"
	// StatusPartial means the branch advanced but the version tag could not be created.
	StatusPartial Status = "partial"
	// StatusClientError means nothing changed because the request could not be carried out.
	StatusClientError Status = "client-error"
	// StatusServerError means nothing changed because the store or a backend failed.
	StatusServerError Status = "server-error"
)

// Result is what an operation reports back to its caller.
type Result struct {
	Success    bool   `json:"success"`
	Status     Status `json:"status"`
	HTTPStatus int    `json:"httpStatus"`
	Message    string `json:"message"`
	// Class is the error class of a failed operation.
	Class string `json:"class,omitempty"`
	// Commit is the commit the branch points at afterwards.
	Commit string `json:"commit,omitempty"`
	// Tag is the version tag created for Commit.
	Tag string `json:"tag,omitempty"`
	// TagError explains why a committed change was not tagged.
	TagError string `json:"tagError,omitempty"`
	// Proposal is the merge proposal opened instead of changing a protected branch.
	Proposal string `json:"proposal,omitempty"`
}

func succeeded(message string) *Result {
	return &Result{
		Success:    true,
		Status:     StatusOK,
		HTTPStatus: http.StatusOK,
		Message:    message,
	}
}

// partial downgrades a successful result whose tag could not be created.
func (r *Result) partial(tagErr error) {
	r.Status = StatusPartial
	r.HTTPStatus = http.StatusMultiStatus
	r.TagError = tagErr.Error()
}

// Report turns an operation error into a result. A nil error reports success.
func Report(err error) *Result {
	if err == nil {
		return succeeded("ok")
	}

	class := treeforge.Classify(err)
	result := &Result{
		Status:     StatusClientError,
		HTTPStatus: HTTPStatus(class),
		Message:    err.Error(),
		Class:      class.String(),
	}
	if class == treeforge.ClassStore {
		result.Status = StatusServerError
	}
	return result
}

// HTTPStatus maps an error class to the HTTP status a caller should answer with.
func HTTPStatus(class treeforge.Class) int {
	switch class {
	case treeforge.ClassNone:
		return http.StatusOK
	case treeforge.ClassValidation:
		return http.StatusBadRequest
	case treeforge.ClassUnauthorized:
		return http.StatusForbidden
	case treeforge.ClassNotFound:
		return http.StatusNotFound
	case treeforge.ClassConflict:
		return http.StatusConflict
	case treeforge.ClassInvariantViolation:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusBadGateway
	}
}
