package api

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/phrazzld/pictor-api/internal/api/shared"
	"github.com/phrazzld/pictor-api/internal/artifact"
	"github.com/phrazzld/pictor-api/internal/domain"
	"github.com/phrazzld/pictor-api/internal/service"
	"github.com/phrazzld/pictor-api/internal/service/auth"
	"github.com/phrazzld/pictor-api/internal/store"
)

func TestMapErrorToStatusCode(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected int
	}{
		{"invalid token", auth.ErrInvalidToken, http.StatusUnauthorized},
		{"expired token", auth.ErrExpiredToken, http.StatusUnauthorized},
		{"token not yet valid", auth.ErrTokenNotYetValid, http.StatusUnauthorized},
		{"missing token", auth.ErrMissingToken, http.StatusUnauthorized},
		{"invalid api key", auth.ErrInvalidAPIKey, http.StatusUnauthorized},
		{"permission denied", service.ErrPermissionDenied, http.StatusForbidden},
		{"task not found", service.ErrNotFound, http.StatusNotFound},
		{"store task not found", store.ErrTaskNotFound, http.StatusNotFound},
		{"artifact not found", artifact.ErrNotFound, http.StatusNotFound},
		{"validation", service.ErrValidation, http.StatusBadRequest},
		{"invalid artifact ref", artifact.ErrInvalidRef, http.StatusBadRequest},
		{"overloaded", service.ErrOverloaded, http.StatusServiceUnavailable},
		{"unknown error", errors.New("boom"), http.StatusInternalServerError},
		{"nil error", nil, http.StatusInternalServerError},
		{
			"wrapped sentinel keeps its code",
			fmt.Errorf("task service list_tasks failed: %w", service.ErrPermissionDenied),
			http.StatusForbidden,
		},
		{
			"validation chain keeps its code",
			fmt.Errorf("%w: %w", service.ErrValidation, domain.ErrPromptTooShort),
			http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, MapErrorToStatusCode(tt.err))
		})
	}
}

func TestGetSafeErrorMessage(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{"nil error", nil, "An unexpected error occurred"},
		{"expired token", auth.ErrExpiredToken, "Token expired"},
		{"invalid token", auth.ErrInvalidToken, "Invalid token"},
		{"missing token", auth.ErrMissingToken, "Invalid token"},
		{"invalid api key", auth.ErrInvalidAPIKey, "Invalid API key"},
		{"permission denied", service.ErrPermissionDenied, "Permission denied"},
		{"not found", service.ErrNotFound, "Task not found"},
		{"artifact not found", artifact.ErrNotFound, "Artifact not found"},
		{"invalid ref", artifact.ErrInvalidRef, "Invalid artifact reference"},
		{"overloaded", service.ErrOverloaded, "Service overloaded, try again later"},
		{"unknown", errors.New("pq: connection refused"), "An unexpected error occurred"},
		{
			"prompt too short",
			fmt.Errorf("%w: %w", service.ErrValidation, domain.ErrPromptTooShort),
			"Prompt must be at least 3 characters",
		},
		{
			"prompt too long",
			fmt.Errorf("%w: %w", service.ErrValidation, domain.ErrPromptTooLong),
			"Prompt must be at most 1000 characters",
		},
		{
			"style too long",
			fmt.Errorf("%w: %w", service.ErrValidation, domain.ErrStyleTooLong),
			"Style must be at most 64 characters",
		},
		{
			"invalid dimensions",
			fmt.Errorf("%w: %w", service.ErrValidation, domain.ErrInvalidDimensions),
			"Width and height must be between 256 and 1024",
		},
		{
			"invalid status filter",
			fmt.Errorf("%w: %w", service.ErrValidation, domain.ErrInvalidTaskStatus),
			"Unknown task status",
		},
		{"bare validation", service.ErrValidation, "Invalid task request"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, GetSafeErrorMessage(tt.err))
		})
	}
}

// TestGetSafeErrorMessageNeverEchoesInternals guards the sanitization
// contract: raw driver or provider detail must not reach clients.
func TestGetSafeErrorMessageNeverEchoesInternals(t *testing.T) {
	sensitive := []error{
		errors.New("pq: password authentication failed for user \"pictor\""),
		errors.New("dial tcp 10.0.0.12:5432: connect: connection refused"),
		fmt.Errorf("provider request failed: api key sk_live_secret was rejected"),
	}

	for _, err := range sensitive {
		msg := GetSafeErrorMessage(err)
		assert.Equal(t, "An unexpected error occurred", msg)
		assert.NotContains(t, msg, "pq:")
		assert.NotContains(t, msg, "10.0.0.12")
		assert.NotContains(t, msg, "sk_live_secret")
	}
}

func TestSanitizeValidationError(t *testing.T) {
	t.Run("field validation error", func(t *testing.T) {
		err := shared.Validate.Struct(CreateTaskRequest{})
		assert.Error(t, err)

		msg := SanitizeValidationError(err)
		assert.Equal(t, "Invalid Prompt: required field", msg)
	})

	t.Run("non-validator error", func(t *testing.T) {
		msg := SanitizeValidationError(errors.New("some random failure"))
		assert.Equal(t, "Validation error", msg)
	})
}

func TestGetValidationTagMessage(t *testing.T) {
	assert.Equal(t, "required field", getValidationTagMessage("required"))
	assert.Equal(t, "too short", getValidationTagMessage("min"))
	assert.Equal(t, "too long", getValidationTagMessage("max"))
	assert.Equal(t, "invalid value", getValidationTagMessage("oneof"))
	assert.Equal(t, "validation failed", getValidationTagMessage("uuid"))
}
