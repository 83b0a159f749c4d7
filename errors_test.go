package treeforge

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Class
	}{
		{name: "nil", err: nil, want: ClassNone},
		{name: "validation", err: NewValidationError(errors.New("branch is required")), want: ClassValidation},
		{name: "invalid path", err: NewInvalidPathError("../x", "escapes"), want: ClassValidation},
		{name: "unauthorized", err: NewUnauthorizedError("ada", "main", "branch not permitted"), want: ClassUnauthorized},
		{name: "path not found", err: NewPathNotFoundError("a/b/c", "a/b"), want: ClassNotFound},
		{name: "ref not found", err: NewRefNotFoundError("branch main"), want: ClassNotFound},
		{name: "conflict", err: NewConflictError("branch main", ErrRefMoved), want: ClassConflict},
		{name: "wrapped conflict", err: fmt.Errorf("delete: %w", NewConflictError("a", ErrPathExists)), want: ClassConflict},
		{name: "invariant", err: NewInvariantViolationError("root unchanged"), want: ClassInvariantViolation},
		{name: "store", err: NewStoreError("get tree", errors.New("connection reset")), want: ClassStore},
		{name: "unclassified", err: context.Canceled, want: ClassStore},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestValidationError(t *testing.T) {
	t.Run("no problems", func(t *testing.T) {
		require.NoError(t, NewValidationError())
		require.NoError(t, NewValidationError(nil, nil))
	})

	t.Run("aggregates every problem", func(t *testing.T) {
		pathErr := NewInvalidPathError("", "path cannot be empty")
		bumpErr := fmt.Errorf("%w: %q", ErrInvalidBump, "huge")

		err := NewValidationError(pathErr, nil, bumpErr)
		require.ErrorIs(t, err, ErrValidation)
		require.ErrorIs(t, err, ErrInvalidPath)
		require.ErrorIs(t, err, ErrInvalidBump)

		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
		require.Len(t, verr.Problems, 2)
		assert.Contains(t, err.Error(), "path cannot be empty")
		assert.Contains(t, err.Error(), "huge")
	})
}

func TestConflictError(t *testing.T) {
	err := NewConflictError("tag 1.0.0", ErrTagAlreadyExists)
	require.ErrorIs(t, err, ErrConflict)
	require.ErrorIs(t, err, ErrTagAlreadyExists)
	require.NotErrorIs(t, err, ErrRefMoved)
	assert.Equal(t, "conflict on tag 1.0.0: tag already exists", err.Error())
}

func TestNewStoreError(t *testing.T) {
	t.Run("keeps classified errors", func(t *testing.T) {
		notFound := NewRefNotFoundError("branch main")
		assert.Same(t, notFound, NewStoreError("read", notFound).(*RefNotFoundError))
	})

	t.Run("does not wrap twice", func(t *testing.T) {
		inner := NewStoreError("get tree", errors.New("boom"))
		assert.Same(t, inner, NewStoreError("resolve", inner))
	})

	t.Run("wraps transport errors", func(t *testing.T) {
		cause := errors.New("connection reset")
		err := NewStoreError("get tree", cause)
		require.ErrorIs(t, err, ErrStore)
		require.ErrorIs(t, err, cause)
		assert.Equal(t, "get tree: connection reset", err.Error())
	})

	t.Run("nil", func(t *testing.T) {
		require.NoError(t, NewStoreError("noop", nil))
	})
}

func TestClassString(t *testing.T) {
	assert.Equal(t, "not-found", ClassNotFound.String())
	assert.Equal(t, "invariant-violation", ClassInvariantViolation.String())
	assert.Equal(t, "store", ClassStore.String())
}
