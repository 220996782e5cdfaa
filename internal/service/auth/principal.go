package auth

import (
	"fmt"

	"github.com/google/uuid"
)

// Role classifies the level of access a caller holds.
type Role string

const (
	// RoleAnonymous is the role of callers that presented no credentials.
	// It is assigned by the middleware, never granted in a token.
	RoleAnonymous Role = "anonymous"

	// RoleUser is the role of callers authenticated with a JWT.
	RoleUser Role = "user"

	// RoleAdmin is the role of operators and service integrations. Admins
	// may act on tasks owned by other principals and query system status.
	RoleAdmin Role = "admin"
)

// ParseRole converts a role claim string into a Role.
// Only grantable roles are accepted; anonymous is the absence of
// credentials and is never carried in a token. Unknown values return an
// error so a tampered claim cannot fall back to a default role.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleUser:
		return RoleUser, nil
	case RoleAdmin:
		return RoleAdmin, nil
	default:
		return "", fmt.Errorf("unknown role %q", s)
	}
}

// Principal identifies the caller of an operation after authentication.
// The middleware resolves a Principal once per request and the service
// layer enforces ownership and role checks against it.
type Principal struct {
	// ID is the caller's stable identity. uuid.Nil for anonymous callers.
	ID uuid.UUID

	// Role is the caller's access level.
	Role Role

	// Authenticated reports whether the caller presented valid credentials.
	Authenticated bool
}

// Anonymous returns the principal used for requests without credentials.
func Anonymous() Principal {
	return Principal{ID: uuid.Nil, Role: RoleAnonymous, Authenticated: false}
}

// IsAdmin reports whether the principal is an authenticated admin.
func (p Principal) IsAdmin() bool {
	return p.Authenticated && p.Role == RoleAdmin
}
