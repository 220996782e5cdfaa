package main

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/pictor-api/internal/config"
	"github.com/phrazzld/pictor-api/internal/service/auth"
)

// testConfig returns a configuration that runs fully in-process: the memory
// task store, temp-dir artifact storage, and an ark generator pointed at the
// given local endpoint so nothing in the test suite dials out.
func testConfig(t *testing.T, providerURL string) *config.Config {
	t.Helper()

	return &config.Config{
		Server: config.ServerConfig{
			Port:     8080,
			LogLevel: "error",
		},
		Database: config.DatabaseConfig{
			Driver: "memory",
		},
		Auth: config.AuthConfig{
			JWTSecret:            strings.Repeat("s", 32),
			TokenLifetimeMinutes: 60,
		},
		Generator: config.GeneratorConfig{
			Provider:          "ark",
			APIKey:            "test-key",
			BaseURL:           providerURL,
			Model:             "test-model",
			TimeoutSeconds:    5,
			MaxRetries:        1,
			RetryDelaySeconds: 1,
		},
		Task: config.TaskConfig{
			WorkerCount:         1,
			QueueSize:           2,
			StuckTaskAgeMinutes: 10,
		},
		Storage: config.StorageConfig{
			Path:              t.TempDir(),
			MaxArtifactSizeMB: 1,
		},
	}
}

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestApplication builds a running application against a stub provider
// endpoint and tears it down with the test.
func newTestApplication(t *testing.T) *application {
	t.Helper()

	provider := httptest.NewServer(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}),
	)
	t.Cleanup(provider.Close)

	app, err := newApplication(context.Background(), testConfig(t, provider.URL), newTestLogger(), nil)
	require.NoError(t, err)
	t.Cleanup(app.cleanup)

	return app
}

func TestNewApplication(t *testing.T) {
	t.Run("memory driver runs without a database", func(t *testing.T) {
		app := newTestApplication(t)

		assert.Nil(t, app.db)
		assert.NotNil(t, app.taskStore)
		assert.NotNil(t, app.artifacts)
		assert.NotNil(t, app.generator)
		assert.NotNil(t, app.jwtService)
		assert.NotNil(t, app.apiKeys)
		assert.NotNil(t, app.taskRunner)
		assert.NotNil(t, app.taskService)
	})

	t.Run("postgres driver requires a connection", func(t *testing.T) {
		cfg := testConfig(t, "")
		cfg.Database.Driver = "postgres"

		_, err := newApplication(context.Background(), cfg, newTestLogger(), nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no database connection")
	})

	t.Run("unsupported database driver is rejected", func(t *testing.T) {
		cfg := testConfig(t, "")
		cfg.Database.Driver = "sqlite"

		_, err := newApplication(context.Background(), cfg, newTestLogger(), nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unsupported database driver")
	})

	t.Run("unsupported generator provider is rejected", func(t *testing.T) {
		cfg := testConfig(t, "")
		cfg.Generator.Provider = "dalle"

		_, err := newApplication(context.Background(), cfg, newTestLogger(), nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unsupported generator provider")
	})

	t.Run("short jwt secret is rejected", func(t *testing.T) {
		cfg := testConfig(t, "")
		cfg.Auth.JWTSecret = "too-short"

		_, err := newApplication(context.Background(), cfg, newTestLogger(), nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "JWT service")
	})
}

func TestSetupRouter(t *testing.T) {
	app := newTestApplication(t)

	srv := httptest.NewServer(app.setupRouter())
	defer srv.Close()

	client := srv.Client()

	mintToken := func(t *testing.T, role auth.Role) string {
		t.Helper()
		token, err := app.jwtService.GenerateToken(context.Background(), uuid.New(), role)
		require.NoError(t, err)
		return token
	}

	doRequest := func(t *testing.T, method, path, token string, body io.Reader) *http.Response {
		t.Helper()
		req, err := http.NewRequest(method, srv.URL+path, body)
		require.NoError(t, err)
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		resp, err := client.Do(req)
		require.NoError(t, err)
		return resp
	}

	t.Run("health endpoint responds OK", func(t *testing.T) {
		resp := doRequest(t, http.MethodGet, "/health", "", nil)
		defer func() { _ = resp.Body.Close() }()

		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "OK", string(body))
	})

	t.Run("responses carry a trace id header", func(t *testing.T) {
		resp := doRequest(t, http.MethodGet, "/health", "", nil)
		defer func() { _ = resp.Body.Close() }()

		assert.Len(t, resp.Header.Get("X-Trace-ID"), 32)
	})

	t.Run("create task rejects malformed JSON", func(t *testing.T) {
		resp := doRequest(t, http.MethodPost, "/api/tasks", "", strings.NewReader("{not json"))
		defer func() { _ = resp.Body.Close() }()

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("create task rejects a too-short prompt", func(t *testing.T) {
		resp := doRequest(t, http.MethodPost, "/api/tasks", "",
			strings.NewReader(`{"prompt":"hi"}`))
		defer func() { _ = resp.Body.Close() }()

		require.Equal(t, http.StatusBadRequest, resp.StatusCode)

		var payload struct {
			Error string `json:"error"`
		}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
		assert.Contains(t, payload.Error, "Prompt must be at least")
	})

	t.Run("get task rejects a malformed id", func(t *testing.T) {
		resp := doRequest(t, http.MethodGet, "/api/tasks/not-a-uuid", "", nil)
		defer func() { _ = resp.Body.Close() }()

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("get task reports missing tasks", func(t *testing.T) {
		resp := doRequest(t, http.MethodGet, "/api/tasks/"+uuid.New().String(), "", nil)
		defer func() { _ = resp.Body.Close() }()

		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("list requires an identity", func(t *testing.T) {
		resp := doRequest(t, http.MethodGet, "/api/tasks", "", nil)
		defer func() { _ = resp.Body.Close() }()

		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	})

	t.Run("authenticated list starts empty", func(t *testing.T) {
		resp := doRequest(t, http.MethodGet, "/api/tasks", mintToken(t, auth.RoleUser), nil)
		defer func() { _ = resp.Body.Close() }()

		require.Equal(t, http.StatusOK, resp.StatusCode)

		var payload struct {
			Items []json.RawMessage `json:"items"`
			Total int               `json:"total"`
			Limit int               `json:"limit"`
		}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
		assert.Empty(t, payload.Items)
		assert.Zero(t, payload.Total)
		assert.Equal(t, 20, payload.Limit)
	})

	t.Run("status requires an admin", func(t *testing.T) {
		resp := doRequest(t, http.MethodGet, "/api/status", "", nil)
		defer func() { _ = resp.Body.Close() }()
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)

		userResp := doRequest(t, http.MethodGet, "/api/status", mintToken(t, auth.RoleUser), nil)
		defer func() { _ = userResp.Body.Close() }()
		assert.Equal(t, http.StatusForbidden, userResp.StatusCode)
	})

	t.Run("admin status reports the wired components", func(t *testing.T) {
		resp := doRequest(t, http.MethodGet, "/api/status", mintToken(t, auth.RoleAdmin), nil)
		defer func() { _ = resp.Body.Close() }()

		require.Equal(t, http.StatusOK, resp.StatusCode)

		var payload struct {
			Tasks   map[string]int `json:"tasks"`
			Storage struct {
				Count int `json:"count"`
			} `json:"storage"`
			Generator struct {
				Provider   string `json:"provider"`
				Model      string `json:"model"`
				Configured bool   `json:"configured"`
				Connected  bool   `json:"connected"`
			} `json:"generator"`
		}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))

		assert.Zero(t, payload.Tasks["pending"])
		assert.Zero(t, payload.Storage.Count)
		assert.Equal(t, "ark", payload.Generator.Provider)
		assert.Equal(t, "test-model", payload.Generator.Model)
		assert.True(t, payload.Generator.Configured)
		assert.True(t, payload.Generator.Connected, "probe against the stub endpoint should succeed")
	})

	t.Run("image serving reports missing artifacts", func(t *testing.T) {
		resp := doRequest(t, http.MethodGet, "/api/images/does_not_exist.png", "", nil)
		defer func() { _ = resp.Body.Close() }()

		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("unknown routes fall through to 404", func(t *testing.T) {
		resp := doRequest(t, http.MethodGet, "/api/unknown", "", nil)
		defer func() { _ = resp.Body.Close() }()

		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}

func TestRunMigrationsGuards(t *testing.T) {
	t.Run("memory driver cannot migrate", func(t *testing.T) {
		cfg := testConfig(t, "")

		err := runMigrations(cfg, "up")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "postgres")
	})

	t.Run("postgres driver requires a URL", func(t *testing.T) {
		cfg := testConfig(t, "")
		cfg.Database.Driver = "postgres"
		cfg.Database.URL = ""

		err := runMigrations(cfg, "up")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "database URL is empty")
	})
}

func TestInitializeApp(t *testing.T) {
	t.Setenv("PICTOR_DATABASE_DRIVER", "memory")
	t.Setenv("PICTOR_AUTH_JWT_SECRET", strings.Repeat("s", 32))
	t.Setenv("PICTOR_GENERATOR_API_KEY", "test-key")
	t.Setenv("PICTOR_SERVER_LOG_LEVEL", "error")

	cfg, appLogger, err := initializeApp("")
	require.NoError(t, err)

	assert.Equal(t, "memory", cfg.Database.Driver)
	assert.NotNil(t, appLogger)
}
