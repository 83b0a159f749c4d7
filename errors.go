package treeforge

import (
	"errors"
	"fmt"
	"strings"

	"github.com/hashicorp/go-multierror"
)

// The error taxonomy. Every error returned by this package and by the operations
// built on it matches exactly one of these with errors.Is.
var (
	// ErrValidation is returned for malformed or missing input. Nothing reached the store.
	ErrValidation = errors.New("validation failed")

	// ErrUnauthorized is returned when the actor may not perform the operation.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrNotFound is returned when a branch, path segment or commit is absent.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when the destination already exists, a tag is taken,
	// or the branch moved since it was read.
	ErrConflict = errors.New("conflict")

	// ErrStore is returned for transport or remote failures.
	ErrStore = errors.New("store error")

	// ErrInvariantViolation is returned when a mutation would not change the tree.
	ErrInvariantViolation = errors.New("invariant violation")
)

// Conflict reasons. A ConflictError matches ErrConflict and its reason.
var (
	// ErrPathExists is returned when the destination of an insert, rename or copy is taken.
	ErrPathExists = errors.New("path already exists")

	// ErrRefMoved is returned when a branch no longer points at the commit a mutation was built on.
	ErrRefMoved = errors.New("branch moved")

	// ErrTagAlreadyExists is returned when the tag name is already taken.
	ErrTagAlreadyExists = errors.New("tag already exists")

	// ErrBranchAlreadyExists is returned when creating a branch whose name is taken.
	ErrBranchAlreadyExists = errors.New("branch already exists")
)

// ErrInvalidPath is returned for paths that escape the repository or are otherwise unusable.
var ErrInvalidPath = errors.New("invalid path")

// ValidationError aggregates every problem found in a request.
type ValidationError struct {
	Problems []error
}

// NewValidationError returns nil when no problems are given.
func NewValidationError(problems ...error) error {
	var merr *multierror.Error
	for _, p := range problems {
		if p != nil {
			merr = multierror.Append(merr, p)
		}
	}
	if merr.ErrorOrNil() == nil {
		return nil
	}
	return &ValidationError{Problems: merr.Errors}
}

func (e *ValidationError) Error() string {
	msgs := make([]string, 0, len(e.Problems))
	for _, p := range e.Problems {
		msgs = append(msgs, p.Error())
	}
	return "invalid request: " + strings.Join(msgs, "; ")
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func (e *ValidationError) Unwrap() []error {
	return e.Problems
}

// InvalidPathError provides structured information about a rejected path.
type InvalidPathError struct {
	Path   string
	Reason string
}

func (e *InvalidPathError) Error() string {
	return fmt.Sprintf("invalid path %q: %s", e.Path, e.Reason)
}

func (e *InvalidPathError) Is(target error) bool {
	return target == ErrInvalidPath || target == ErrValidation
}

func NewInvalidPathError(path, reason string) *InvalidPathError {
	return &InvalidPathError{Path: path, Reason: reason}
}

// UnauthorizedError records why an actor was turned away.
type UnauthorizedError struct {
	Actor  string
	Branch string
	Reason string
}

func (e *UnauthorizedError) Error() string {
	if e.Branch != "" {
		return fmt.Sprintf("actor %q may not modify branch %q: %s", e.Actor, e.Branch, e.Reason)
	}
	return fmt.Sprintf("actor %q is not authorized: %s", e.Actor, e.Reason)
}

func (e *UnauthorizedError) Is(target error) bool {
	return target == ErrUnauthorized
}

func NewUnauthorizedError(actor, branch, reason string) *UnauthorizedError {
	return &UnauthorizedError{Actor: actor, Branch: branch, Reason: reason}
}

// PathNotFoundError provides structured information about a path that does not resolve.
type PathNotFoundError struct {
	// Path is the requested path.
	Path string
	// Missing is the prefix of Path that does not exist or is not a directory.
	Missing string
}

func (e *PathNotFoundError) Error() string {
	if e.Missing != "" && e.Missing != e.Path {
		return fmt.Sprintf("path %q not found: %q does not exist or is not a directory", e.Path, e.Missing)
	}
	return fmt.Sprintf("path %q not found", e.Path)
}

func (e *PathNotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

func NewPathNotFoundError(path, missing string) *PathNotFoundError {
	return &PathNotFoundError{Path: path, Missing: missing}
}

// RefNotFoundError is returned when a branch, tag or commit does not exist.
type RefNotFoundError struct {
	Ref string
}

func (e *RefNotFoundError) Error() string {
	return fmt.Sprintf("%s not found", e.Ref)
}

func (e *RefNotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

func NewRefNotFoundError(ref string) *RefNotFoundError {
	return &RefNotFoundError{Ref: ref}
}

// ConflictError provides structured information about a conflict.
// Err is one of the conflict reasons.
type ConflictError struct {
	Subject string
	Err     error
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflict on %s: %v", e.Subject, e.Err)
}

func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}

func (e *ConflictError) Unwrap() error {
	return e.Err
}

func NewConflictError(subject string, reason error) *ConflictError {
	return &ConflictError{Subject: subject, Err: reason}
}

// InvariantViolationError is returned when a structural check on a mutation fails.
type InvariantViolationError struct {
	Message string
}

func (e *InvariantViolationError) Error() string {
	return "invariant violation: " + e.Message
}

func (e *InvariantViolationError) Is(target error) bool {
	return target == ErrInvariantViolation
}

func NewInvariantViolationError(format string, args ...any) *InvariantViolationError {
	return &InvariantViolationError{Message: fmt.Sprintf(format, args...)}
}

// StoreError wraps a failure talking to the object store.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *StoreError) Is(target error) bool {
	return target == ErrStore
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// NewStoreError wraps err unless it already carries a taxonomy class.
func NewStoreError(op string, err error) error {
	if err == nil {
		return nil
	}
	if Classify(err) != ClassStore {
		return err
	}
	var storeErr *StoreError
	if errors.As(err, &storeErr) {
		return err
	}
	return &StoreError{Op: op, Err: err}
}

// Class is a taxonomy class.
type Class int

const (
	ClassNone Class = iota
	ClassValidation
	ClassUnauthorized
	ClassNotFound
	ClassConflict
	ClassInvariantViolation
	ClassStore
)

func (c Class) String() string {
	switch c {
	case ClassNone:
		return "none"
	case ClassValidation:
		return "validation"
	case ClassUnauthorized:
		return "unauthorized"
	case ClassNotFound:
		return "not-found"
	case ClassConflict:
		return "conflict"
	case ClassInvariantViolation:
		return "invariant-violation"
	default:
		return "store"
	}
}

// Classify maps an error to its class. Errors outside the taxonomy, such as a
// cancelled context or a transport failure, are store errors.
func Classify(err error) Class {
	switch {
	case err == nil:
		return ClassNone
	case errors.Is(err, ErrValidation):
		return ClassValidation
	case errors.Is(err, ErrUnauthorized):
		return ClassUnauthorized
	case errors.Is(err, ErrNotFound):
		return ClassNotFound
	case errors.Is(err, ErrConflict):
		return ClassConflict
	case errors.Is(err, ErrInvariantViolation):
		return ClassInvariantViolation
	default:
		return ClassStore
	}
}
