package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/phrazzld/pictor-api/internal/api"
	apimiddleware "github.com/phrazzld/pictor-api/internal/api/middleware"
)

// setupRouter creates and configures the application router with all routes
// and middleware. It accepts the application dependencies to create handlers
// and register routes. Returns the configured router.
func (app *application) setupRouter() http.Handler {
	r := chi.NewRouter()

	// Apply standard middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(apimiddleware.TraceMiddleware)

	// Create API handlers using the application's services
	taskHandler := api.NewTaskHandler(app.taskService, app.logger)
	imageHandler := api.NewImageHandler(app.artifacts, app.logger)
	statusHandler := api.NewStatusHandler(app.taskService, app.logger)
	principal := apimiddleware.NewPrincipalMiddleware(app.jwtService, app.apiKeys)

	// Register routes
	r.Route("/api", func(r chi.Router) {
		// Every /api request carries a resolved principal; requests without
		// credentials proceed as the anonymous principal.
		r.Use(principal.Resolve)

		// Task lifecycle endpoints
		r.Post("/tasks", taskHandler.CreateTask)
		r.Get("/tasks", taskHandler.ListTasks)
		r.Get("/tasks/{id}", taskHandler.GetTask)
		r.Delete("/tasks/{id}", taskHandler.DeleteTask)

		// Generated image serving
		r.Get("/images/{ref}", imageHandler.ServeImage)

		// Operator endpoints
		r.Group(func(r chi.Router) {
			r.Use(apimiddleware.RequireAdmin)
			r.Get("/status", statusHandler.GetSystemStatus)
		})
	})

	// Health check endpoint
	r.Get("/health", api.HealthCheck)

	return r
}
