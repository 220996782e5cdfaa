package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/phrazzld/pictor-api/internal/config"
	"github.com/phrazzld/pictor-api/internal/generation"
	"github.com/phrazzld/pictor-api/internal/platform/ark"
	"github.com/phrazzld/pictor-api/internal/platform/gemini"
	"github.com/phrazzld/pictor-api/internal/platform/localfs"
	"github.com/phrazzld/pictor-api/internal/platform/memory"
	"github.com/phrazzld/pictor-api/internal/platform/postgres"
	"github.com/phrazzld/pictor-api/internal/service"
	"github.com/phrazzld/pictor-api/internal/service/auth"
	"github.com/phrazzld/pictor-api/internal/store"
	"github.com/phrazzld/pictor-api/internal/task"
)

// application holds all the shared application dependencies to simplify
// management and ensure proper cleanup on shutdown.
type application struct {
	// Configuration
	config *config.Config

	// Core services
	logger *slog.Logger
	db     *sql.DB

	// Stores (using interfaces for proper abstraction)
	taskStore store.TaskStore
	artifacts *localfs.LocalArtifactStore

	// Service interfaces
	jwtService  auth.JWTService
	apiKeys     auth.APIKeyVerifier
	generator   generation.Generator
	taskService service.TaskService

	// Task handling
	taskRunner *task.TaskRunner
}

// newApplication creates a new application instance with all dependencies
// initialized. It accepts core dependencies like configuration, logger, and
// database connection that must be established before application
// initialization; db may be nil when the memory driver is selected.
func newApplication(
	ctx context.Context,
	cfg *config.Config,
	logger *slog.Logger,
	db *sql.DB,
) (*application, error) {
	app := &application{
		config: cfg,
		logger: logger,
		db:     db,
	}

	// Initialize JWT service
	var err error
	app.jwtService, err = auth.NewJWTService(cfg.Auth)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize JWT service: %w", err)
	}
	logger.Info("JWT authentication service initialized",
		"token_lifetime_minutes", cfg.Auth.TokenLifetimeMinutes)

	// Initialize API key verification
	hashes := cfg.Auth.APIKeyHashList()
	app.apiKeys = auth.NewBcryptAPIKeyVerifier(hashes)
	if len(hashes) > 0 {
		logger.Info("API key authentication enabled", "configured_keys", len(hashes))
	}

	// Initialize the task store for the configured driver
	switch cfg.Database.Driver {
	case "postgres":
		if db == nil {
			return nil, fmt.Errorf("postgres driver selected but no database connection provided")
		}
		app.taskStore = postgres.NewPostgresTaskStore(db, logger)
	case "memory":
		app.taskStore = memory.NewMemoryTaskStore()
		logger.Warn("Using in-memory task store; tasks will not survive a restart")
	default:
		return nil, fmt.Errorf("unsupported database driver: %q", cfg.Database.Driver)
	}

	// Initialize artifact storage
	app.artifacts, err = localfs.NewLocalArtifactStore(
		cfg.Storage.Path,
		cfg.Storage.MaxArtifactBytes(),
		logger,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize artifact store: %w", err)
	}

	// Create the image generator for the configured provider
	app.generator, err = setupGenerator(ctx, logger, cfg.Generator)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize generator: %w", err)
	}
	logger.Info("Image generator initialized",
		"provider", cfg.Generator.Provider,
		"model", cfg.Generator.Model)

	// Create the task factory shared by the runner and the service
	factory, err := task.NewGenerationTaskFactory(
		app.taskStore,
		app.generator,
		app.artifacts,
		logger,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create task factory: %w", err)
	}

	// Initialize task runner
	app.taskRunner, err = setupTaskRunner(app, factory)
	if err != nil {
		return nil, fmt.Errorf("failed to setup task runner: %w", err)
	}

	// Initialize task service
	app.taskService, err = service.NewTaskService(
		app.taskStore,
		app.taskRunner,
		factory,
		app.artifacts,
		app.generator,
		service.GeneratorInfo{
			Provider:   cfg.Generator.Provider,
			Model:      cfg.Generator.Model,
			Configured: cfg.Generator.APIKey != "",
		},
		logger,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create task service: %w", err)
	}

	logger.Info("Application initialized successfully")
	return app, nil
}

// setupGenerator selects and constructs the configured provider adapter.
func setupGenerator(
	ctx context.Context,
	logger *slog.Logger,
	cfg config.GeneratorConfig,
) (generation.Generator, error) {
	policy := generation.DefaultRetryPolicy(cfg.MaxRetries, cfg.RetryBaseDelay())

	switch cfg.Provider {
	case "ark":
		return ark.NewGenerator(logger, cfg, policy)
	case "gemini":
		return gemini.NewGenerator(ctx, logger, cfg, policy)
	default:
		return nil, fmt.Errorf("unsupported generator provider: %q", cfg.Provider)
	}
}

// setupTaskRunner initializes and starts the background task processor.
// Start runs the initial stuck-task sweep before any worker picks up new
// submissions.
func setupTaskRunner(app *application, factory task.TaskBuilder) (*task.TaskRunner, error) {
	taskRunner := task.NewTaskRunner(app.taskStore, factory, task.TaskRunnerConfig{
		WorkerCount:  app.config.Task.WorkerCount,
		QueueSize:    app.config.Task.QueueSize,
		StuckTaskAge: app.config.Task.StuckTaskAge(),
	}, app.logger)

	if err := taskRunner.Start(); err != nil {
		return nil, fmt.Errorf("failed to start task runner: %w", err)
	}

	return taskRunner, nil
}

// Run starts the application server, handling lifecycle and cleanup.
// It returns an error if the server fails to start or encounters problems.
func (app *application) Run(ctx context.Context) error {
	router := app.setupRouter()

	if err := app.startHTTPServer(ctx, router); err != nil {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// cleanup handles graceful shutdown of application resources.
func (app *application) cleanup() {
	// Stop task runner
	if app.taskRunner != nil {
		app.taskRunner.Stop()
	}

	// Close database connection
	if app.db != nil {
		if err := app.db.Close(); err != nil {
			app.logger.Error("Error closing database connection", "error", err)
		}
	}

	app.logger.Info("Application shutdown completed")
}
