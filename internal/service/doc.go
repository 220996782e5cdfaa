// Package service contains the application-specific use cases. It sits
// between the HTTP handlers and the persistence/dispatch layers: handlers
// resolve a principal and decode input, the service enforces validation,
// ownership, and role policy, and coordinates the task store, the background
// runner, and the artifact store to fulfill each operation.
//
// Services receive every dependency through constructor injection and return
// sentinel errors for expected conditions so the API layer can map them to
// status codes with errors.Is. Unexpected failures are wrapped in
// TaskServiceError with the failing operation attached.
package service
