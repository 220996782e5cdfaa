package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/phrazzld/pictor-api/internal/artifact"
	"github.com/phrazzld/pictor-api/internal/domain"
	"github.com/phrazzld/pictor-api/internal/service"
	"github.com/phrazzld/pictor-api/internal/service/auth"
	"github.com/phrazzld/pictor-api/internal/store"
)

// MapErrorToStatusCode maps internal errors to appropriate HTTP status codes
// based on the error type. This prevents leaking internal error types or
// messages to clients.
func MapErrorToStatusCode(err error) int {
	switch {
	// Authentication errors
	case errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrExpiredToken),
		errors.Is(err, auth.ErrTokenNotYetValid),
		errors.Is(err, auth.ErrMissingToken),
		errors.Is(err, auth.ErrInvalidAPIKey):
		return http.StatusUnauthorized

	// Authorization errors
	case errors.Is(err, service.ErrPermissionDenied):
		return http.StatusForbidden

	// Not found errors
	case errors.Is(err, service.ErrNotFound),
		errors.Is(err, store.ErrTaskNotFound),
		errors.Is(err, artifact.ErrNotFound):
		return http.StatusNotFound

	// Bad request errors
	case errors.Is(err, service.ErrValidation),
		errors.Is(err, artifact.ErrInvalidRef):
		return http.StatusBadRequest

	// Load shedding
	case errors.Is(err, service.ErrOverloaded):
		return http.StatusServiceUnavailable

	// Default: internal server error
	default:
		return http.StatusInternalServerError
	}
}

// GetSafeErrorMessage returns a sanitized, user-friendly error message
// based on the error type. This prevents leaking sensitive internal details.
func GetSafeErrorMessage(err error) string {
	if err == nil {
		return "An unexpected error occurred"
	}

	switch {
	// Authentication errors
	case errors.Is(err, auth.ErrExpiredToken):
		return "Token expired"

	case errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrTokenNotYetValid),
		errors.Is(err, auth.ErrMissingToken):
		return "Invalid token"

	case errors.Is(err, auth.ErrInvalidAPIKey):
		return "Invalid API key"

	// Authorization errors
	case errors.Is(err, service.ErrPermissionDenied):
		return "Permission denied"

	// Not found errors
	case errors.Is(err, service.ErrNotFound),
		errors.Is(err, store.ErrTaskNotFound):
		return "Task not found"

	case errors.Is(err, artifact.ErrNotFound):
		return "Artifact not found"

	case errors.Is(err, artifact.ErrInvalidRef):
		return "Invalid artifact reference"

	// Load shedding
	case errors.Is(err, service.ErrOverloaded):
		return "Service overloaded, try again later"

	// Intake validation; the violated bound is feedback, not an internal
	case errors.Is(err, service.ErrValidation):
		return validationMessage(err)

	// Default case for unknown errors
	default:
		return "An unexpected error occurred"
	}
}

// validationMessage names the task bound an invalid request violated.
func validationMessage(err error) string {
	switch {
	case errors.Is(err, domain.ErrPromptTooShort):
		return fmt.Sprintf("Prompt must be at least %d characters", domain.PromptMinLength)
	case errors.Is(err, domain.ErrPromptTooLong):
		return fmt.Sprintf("Prompt must be at most %d characters", domain.PromptMaxLength)
	case errors.Is(err, domain.ErrStyleTooLong):
		return fmt.Sprintf("Style must be at most %d characters", domain.StyleMaxLength)
	case errors.Is(err, domain.ErrInvalidDimensions):
		return fmt.Sprintf(
			"Width and height must be between %d and %d",
			domain.DimensionMin,
			domain.DimensionMax,
		)
	case errors.Is(err, domain.ErrInvalidTaskStatus):
		return "Unknown task status"
	default:
		return "Invalid task request"
	}
}

// SanitizeValidationError removes sensitive details from validation errors
// and returns a user-friendly message.
func SanitizeValidationError(err error) string {
	errMsg := err.Error()

	// Check if this is likely a validation error message
	if strings.Contains(errMsg, "Field validation") {
		// Extract the field name and validation tag
		// Example format: "Key: 'CreateTaskRequest.Prompt' Error:Field validation for 'Prompt' failed on the 'required' tag"
		parts := strings.Split(errMsg, "Error:")
		if len(parts) >= 2 {
			fieldParts := strings.Split(parts[1], "'")
			if len(fieldParts) >= 3 {
				field := fieldParts[1]
				var tag string
				if len(fieldParts) >= 5 {
					tag = fieldParts[3]
				}

				if tag != "" {
					return fmt.Sprintf("Invalid %s: %s", field, getValidationTagMessage(tag))
				}
				return fmt.Sprintf("Invalid %s", field)
			}
		}
	}

	// Fall back to a generic validation error message
	return "Validation error"
}

// getValidationTagMessage maps validation tags to user-friendly error messages
func getValidationTagMessage(tag string) string {
	switch tag {
	case "required":
		return "required field"
	case "min":
		return "too short"
	case "max":
		return "too long"
	case "gte":
		return "too small"
	case "lte":
		return "too large"
	case "oneof":
		return "invalid value"
	default:
		return "validation failed"
	}
}
