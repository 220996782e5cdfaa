package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/pictor-api/internal/service/auth"
)

func TestPrincipalFromRequest(t *testing.T) {
	t.Run("principal in context", func(t *testing.T) {
		principal := auth.Principal{ID: uuid.New(), Role: auth.RoleUser, Authenticated: true}

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req = req.WithContext(withPrincipal(req.Context(), principal))

		assert.Equal(t, principal, principalFromRequest(req))
	})

	t.Run("missing principal falls back to anonymous", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)

		got := principalFromRequest(req)
		assert.Equal(t, auth.Anonymous(), got)
		assert.False(t, got.Authenticated)
		assert.False(t, got.IsAdmin())
	})
}

func TestGetPathUUID(t *testing.T) {
	t.Run("valid uuid", func(t *testing.T) {
		id := uuid.New()
		req := httptest.NewRequest(http.MethodGet, "/api/tasks/"+id.String(), nil)
		req = withPathID(req, id.String())

		got, err := getPathUUID(req, "id")
		require.NoError(t, err)
		assert.Equal(t, id, got)
	})

	t.Run("invalid format", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/tasks/oops", nil)
		req = withPathID(req, "oops")

		_, err := getPathUUID(req, "id")
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "invalid format")
	})

	t.Run("missing parameter", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/tasks/", nil)

		_, err := getPathUUID(req, "id")
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "is required")
	})
}
