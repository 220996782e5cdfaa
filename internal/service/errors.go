package service

import "errors"

// Common service errors - sentinel errors used across service implementations.
// These errors represent common conditions that callers may want to check for with errors.Is().
//
// Error handling principles:
// 1. Service methods return sentinel errors for expected error conditions
// 2. Unexpected errors are wrapped in TaskServiceError
// 3. Callers use errors.Is/errors.As to check for specific error conditions
// 4. The API layer maps service errors to appropriate HTTP status codes
var (
	// ErrNotFound indicates that the requested task does not exist.
	// API layer should map this to HTTP 404 Not Found.
	ErrNotFound = errors.New("task not found")

	// ErrOverloaded indicates the submit queue is full and the request was shed.
	// API layer should map this to HTTP 503 Service Unavailable with a Retry-After header.
	ErrOverloaded = errors.New("service overloaded, try again later")

	// ErrPermissionDenied indicates the principal may not perform the operation
	// on the resource. API layer should map this to HTTP 403 Forbidden.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrValidation indicates the request failed intake validation. The wrapped
	// chain carries the specific violation. API layer should map this to
	// HTTP 400 Bad Request.
	ErrValidation = errors.New("invalid task request")
)
