// Package testdb provides helpers for integration tests that need a real
// PostgreSQL database. Tests are gated on the DATABASE_URL environment
// variable and skip when it is unset, so the default `go test ./...` run
// stays self-contained.
package testdb

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx driver
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/pictor-api/internal/platform/postgres"
)

// pingTimeout bounds the initial connectivity check.
const pingTimeout = 5 * time.Second

// URL returns the test database URL, or an empty string when integration
// tests should be skipped.
func URL() string {
	return os.Getenv("DATABASE_URL")
}

// Get opens a connection to the test database, applies the embedded
// migrations, and empties the tasks table so every test starts from a known
// state. The connection is closed when the test finishes. Tests calling Get
// must not run in parallel with each other; they share one database.
func Get(t *testing.T) *sql.DB {
	t.Helper()

	url := URL()
	if url == "" {
		t.Skip("DATABASE_URL not set; skipping database integration test")
	}

	db, err := sql.Open("pgx", url)
	require.NoError(t, err, "failed to open test database")
	t.Cleanup(func() { _ = db.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	require.NoError(t, db.PingContext(ctx), "failed to ping test database")

	require.NoError(t, postgres.Migrate(db, "up"), "failed to migrate test database")

	ResetTasks(t, db)
	return db
}

// ResetTasks empties the tasks table.
func ResetTasks(t *testing.T, db *sql.DB) {
	t.Helper()

	_, err := db.Exec(`TRUNCATE TABLE tasks`)
	require.NoError(t, err, "failed to reset tasks table")
}
