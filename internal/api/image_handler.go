package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/phrazzld/pictor-api/internal/api/shared"
	"github.com/phrazzld/pictor-api/internal/platform/logger"
)

// ArtifactResolver maps artifact references to servable filesystem paths.
// The artifact store satisfies it; the handler needs nothing else from the
// store.
type ArtifactResolver interface {
	Resolve(ref string) (string, error)
	ResolveThumb(ref string) (string, error)
}

// ImageHandler serves stored artifacts by reference.
type ImageHandler struct {
	artifacts ArtifactResolver
	logger    *slog.Logger
}

// NewImageHandler creates a new ImageHandler.
func NewImageHandler(artifacts ArtifactResolver, logger *slog.Logger) *ImageHandler {
	if logger == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("logger cannot be nil for ImageHandler")
	}

	return &ImageHandler{
		artifacts: artifacts,
		logger:    logger.With(slog.String("component", "image_handler")),
	}
}

// ServeImage handles GET /api/images/{ref} requests. The store validates the
// reference, so traversal attempts never reach the filesystem. ?thumb=1
// serves the thumbnail variant.
func (h *ImageHandler) ServeImage(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	ref := chi.URLParam(r, "ref")
	if ref == "" {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Artifact reference is required")
		return
	}

	resolve := h.artifacts.Resolve
	if r.URL.Query().Get("thumb") == "1" {
		resolve = h.artifacts.ResolveThumb
	}

	path, err := resolve(ref)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	log.Debug("serving artifact", slog.String("ref", ref))
	http.ServeFile(w, r, path)
}
