package store_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/phrazzld/pictor-api/internal/store"
)

// TestErrorDefinitions ensures that the error definitions in the store
// package are defined as expected and can be used with errors.Is.
func TestErrorDefinitions(t *testing.T) {
	t.Parallel()

	t.Run("ErrTaskNotFound wraps ErrNotFound", func(t *testing.T) {
		t.Parallel()

		err := store.ErrTaskNotFound
		assert.True(t, errors.Is(err, store.ErrNotFound))
		assert.True(t, errors.Is(err, store.ErrTaskNotFound))
		assert.Equal(t, "entity not found: task", err.Error())
	})

	t.Run("wrapped sentinel errors stay detectable", func(t *testing.T) {
		t.Parallel()

		err := fmt.Errorf("loading task: %w", store.ErrTaskNotFound)
		assert.True(t, errors.Is(err, store.ErrNotFound))
		assert.True(t, store.IsNotFoundError(err))
	})

	t.Run("IsNotFoundError rejects other errors", func(t *testing.T) {
		t.Parallel()

		assert.False(t, store.IsNotFoundError(store.ErrDuplicate))
		assert.False(t, store.IsNotFoundError(errors.New("boom")))
		assert.False(t, store.IsNotFoundError(nil))
	})

	t.Run("IsConflictError detects wrapped conflicts", func(t *testing.T) {
		t.Parallel()

		err := fmt.Errorf("update task: %w", store.ErrConflict)
		assert.True(t, store.IsConflictError(err))
		assert.False(t, store.IsConflictError(store.ErrNotFound))
	})
}

func TestStoreError(t *testing.T) {
	t.Parallel()

	t.Run("message with wrapped error", func(t *testing.T) {
		t.Parallel()

		inner := errors.New("connection reset")
		err := store.NewStoreError("task", "update", "writing status", inner)

		assert.Equal(t, "update operation on task failed: writing status: connection reset", err.Error())
		assert.True(t, errors.Is(err, inner))
	})

	t.Run("message without wrapped error", func(t *testing.T) {
		t.Parallel()

		err := store.NewStoreError("task", "delete", "no rows affected", nil)
		assert.Equal(t, "delete operation on task failed: no rows affected", err.Error())
		assert.Nil(t, errors.Unwrap(err))
	})

	t.Run("sentinel visible through StoreError", func(t *testing.T) {
		t.Parallel()

		err := store.NewStoreError("task", "get", "lookup", store.ErrTaskNotFound)
		assert.True(t, store.IsNotFoundError(err))

		var storeErr *store.StoreError
		assert.True(t, errors.As(err, &storeErr))
		assert.Equal(t, "get", storeErr.Operation)
	})
}
