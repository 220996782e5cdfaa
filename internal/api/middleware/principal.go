package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/phrazzld/pictor-api/internal/api/shared"
	"github.com/phrazzld/pictor-api/internal/redact"
	"github.com/phrazzld/pictor-api/internal/service/auth"
)

// PrincipalMiddleware resolves request credentials into an auth.Principal.
// It accepts a Bearer JWT or an sk_-prefixed API key in the Authorization
// header. Requests without credentials proceed as the anonymous principal;
// requests that present credentials must present valid ones.
type PrincipalMiddleware struct {
	jwtService auth.JWTService
	apiKeys    auth.APIKeyVerifier
}

// NewPrincipalMiddleware creates a new PrincipalMiddleware with the given
// dependencies.
func NewPrincipalMiddleware(
	jwtService auth.JWTService,
	apiKeys auth.APIKeyVerifier,
) *PrincipalMiddleware {
	return &PrincipalMiddleware{
		jwtService: jwtService,
		apiKeys:    apiKeys,
	}
}

// Resolve validates credentials from the Authorization header and stores the
// resulting principal in the request context. The sk_ prefix routes a bearer
// credential to API-key verification; anything else is treated as a JWT.
func (m *PrincipalMiddleware) Resolve(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), auth.Anonymous())))
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			shared.RespondWithError(w, r, http.StatusUnauthorized, "Invalid authorization format")
			return
		}
		credential := parts[1]

		var principal auth.Principal
		var err error
		if strings.HasPrefix(credential, auth.APIKeyPrefix) {
			principal, err = m.resolveAPIKey(r.Context(), credential)
		} else {
			principal, err = m.resolveToken(r.Context(), credential)
		}

		if err != nil {
			switch {
			case errors.Is(err, auth.ErrExpiredToken):
				shared.RespondWithError(w, r, http.StatusUnauthorized, "Token expired")
			case errors.Is(err, auth.ErrTokenNotYetValid):
				shared.RespondWithError(w, r, http.StatusUnauthorized, "Token not yet valid")
			case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrMissingToken):
				shared.RespondWithError(w, r, http.StatusUnauthorized, "Invalid token")
			case errors.Is(err, auth.ErrInvalidAPIKey):
				shared.RespondWithError(w, r, http.StatusUnauthorized, "Invalid API key")
			default:
				slog.Error("failed to resolve principal", "error", redact.Error(err))
				shared.RespondWithError(
					w,
					r,
					http.StatusInternalServerError,
					"Authentication error",
				)
			}
			return
		}

		next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), principal)))
	})
}

// resolveToken turns a validated JWT into its principal.
func (m *PrincipalMiddleware) resolveToken(
	ctx context.Context,
	token string,
) (auth.Principal, error) {
	claims, err := m.jwtService.ValidateToken(ctx, token)
	if err != nil {
		return auth.Principal{}, err
	}

	return auth.Principal{
		ID:            claims.UserID,
		Role:          claims.Role,
		Authenticated: true,
	}, nil
}

// resolveAPIKey verifies an sk_ key against the configured hashes. API keys
// are service credentials and carry no user identity.
func (m *PrincipalMiddleware) resolveAPIKey(
	ctx context.Context,
	key string,
) (auth.Principal, error) {
	if err := m.apiKeys.VerifyAPIKey(ctx, key); err != nil {
		return auth.Principal{}, err
	}

	return auth.Principal{
		Role:          auth.RoleAdmin,
		Authenticated: true,
	}, nil
}

// RequireAdmin rejects requests whose principal is not an authenticated
// admin. It must run after Resolve.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !GetPrincipal(r).IsAdmin() {
			shared.RespondWithError(w, r, http.StatusForbidden, "Admin access required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// WithPrincipal stores a principal in the context.
func WithPrincipal(ctx context.Context, principal auth.Principal) context.Context {
	return context.WithValue(ctx, shared.PrincipalContextKey, principal)
}

// GetPrincipal extracts the principal from the request context. Requests
// that never passed through Resolve count as anonymous.
func GetPrincipal(r *http.Request) auth.Principal {
	principal, ok := r.Context().Value(shared.PrincipalContextKey).(auth.Principal)
	if !ok {
		return auth.Anonymous()
	}
	return principal
}
