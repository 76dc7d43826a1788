package routes

import (
	"context"
	"net/url"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"frame-extractor/config"
	"frame-extractor/metrics"
	"frame-extractor/pipeline"
	"frame-extractor/preview"
	"frame-extractor/session"
)

// ArchiveLinker issues download links for offloaded archives and drops them with their session.
// Implemented by storage.ArchiveStore.
type ArchiveLinker interface {
	PresignedURL(ctx context.Context, key, downloadName string) (*url.URL, error)
	Remove(ctx context.Context, key string) error
}

// RegisterExtractionRoutes sets up the upload form, extraction and download routes.
// linker may be nil when archives are only kept locally.
func RegisterExtractionRoutes(logger *zap.Logger, store *session.Store, pipe *pipeline.Pipeline, renderer *preview.Renderer, linker ArchiveLinker, config *config.Config, app *fiber.App, counters *metrics.Metrics) {
	app.Get("/", handleIndex())

	extractions := app.Group("/extractions")
	extractions.Post("/", handleExtract(logger, store, pipe, config, counters))
	extractions.Get("/:id", handleResult(store))
	extractions.Delete("/:id", handleDelete(logger, store, linker))
	extractions.Get("/:id/frames/:name", handleFrameDownload(logger, store, counters))
	extractions.Get("/:id/preview/:index", handlePreview(logger, store, renderer, counters))
	extractions.Get("/:id/archive", handleArchiveDownload(logger, store, linker, counters))
}
