package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/phrazzld/pictor-api/internal/config"
	"github.com/phrazzld/pictor-api/internal/platform/postgres"
	"github.com/phrazzld/pictor-api/internal/redact"
)

// runMigrations executes the requested migration command against the
// configured database and returns once it completes. The migration files are
// embedded in the binary, so no migrations directory needs to exist at
// runtime.
func runMigrations(cfg *config.Config, command string) error {
	if cfg.Database.Driver != "postgres" {
		return fmt.Errorf(
			"migrations require the postgres driver, configured driver is %q",
			cfg.Database.Driver,
		)
	}
	if cfg.Database.URL == "" {
		return fmt.Errorf("database URL is empty: check your configuration")
	}

	slog.Info("Executing migrations",
		"command", command,
		"url", redact.String(cfg.Database.URL))

	db, err := sql.Open("pgx", cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("failed to open database connection: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			slog.Error("Error closing database connection", "error", err)
		}
	}()

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	return postgres.Migrate(db, command)
}
