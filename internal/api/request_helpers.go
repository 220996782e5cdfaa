package api

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/phrazzld/pictor-api/internal/api/shared"
	"github.com/phrazzld/pictor-api/internal/service/auth"
)

// principalFromRequest returns the principal the resolving middleware stored
// on the request. Requests that never passed through the middleware count as
// anonymous.
func principalFromRequest(r *http.Request) auth.Principal {
	principal, ok := r.Context().Value(shared.PrincipalContextKey).(auth.Principal)
	if !ok {
		return auth.Anonymous()
	}
	return principal
}

// getPathUUID extracts a UUID from the URL path parameters. The error message
// is safe to return to the client.
func getPathUUID(r *http.Request, paramName string) (uuid.UUID, error) {
	pathParam := chi.URLParam(r, paramName)
	if pathParam == "" {
		return uuid.Nil, fmt.Errorf("%s is required", paramName)
	}

	id, err := uuid.Parse(pathParam)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%s has invalid format", paramName)
	}

	return id, nil
}
