package routes

import (
	"bufio"
	"context"
	"encoding/json"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"frame-extractor/config"
	"frame-extractor/extractor"
	"frame-extractor/metrics"
	"frame-extractor/pipeline"
	"frame-extractor/session"
	"frame-extractor/validation"
)

// progressStep is the minimum progress change worth a streamed event
const progressStep = 0.01

func handleExtract(logger *zap.Logger, store *session.Store, pipe *pipeline.Pipeline, config *config.Config, counters *metrics.Metrics) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ok, status, err, params := validation.ProcessUpload(c, config)
		if !ok {
			logger.Info("extraction request rejected", zap.Int("status", status), zap.Error(err))
			counters.Extractions.WithLabelValues("rejected").Inc()
			return sendError(c, status, err)
		}

		sess, err := store.Create()
		if err != nil {
			logger.Warn("failed to create session", zap.Error(err))
			return sendError(c, errorStatus(err), err)
		}

		log := logger.With(zap.String("session", sess.ID))
		log.Info("extraction request received",
			zap.String("filename", params.File.Filename),
			zap.Int64("size", params.File.Size),
			zap.String("params", params.String()),
		)

		release, held := sess.Hold()
		if !held {
			return sendError(c, fiber.StatusServiceUnavailable, session.ErrStoreFull)
		}

		videoPath := sess.VideoPath(params.Extension)
		_, err = metrics.TimeStage(func() (struct{}, error) {
			return struct{}{}, c.SaveFile(params.File, videoPath)
		}, "ingest", counters.PerformanceMetrics)
		if err != nil {
			release()
			log.Error("failed to store upload", zap.Error(err))
			_ = store.Delete(sess.ID)
			return c.Status(fiber.StatusInternalServerError).JSON(errorResponse{Error: "failed to store upload"})
		}
		counters.VideoSizeBytes.WithLabelValues(strings.TrimPrefix(params.Extension, ".")).Observe(float64(params.File.Size))

		job := pipeline.Job{
			VideoPath: videoPath,
			Options: extractor.Options{
				FrameSkip: params.FrameSkip,
				Quality:   params.Quality,
				MaxWidth:  params.MaxWidth,
			},
			Archive: params.Archive,
		}

		if c.QueryBool("stream") {
			c.Set(fiber.HeaderContentType, "application/x-ndjson")
			c.Set(fiber.HeaderCacheControl, "no-cache")
			c.Set("X-Extraction-Id", sess.ID)

			// The writer runs after the handler returned, so it must not touch c
			c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
				defer release()
				streamExtraction(w, log, store, pipe, sess, job)
			})
			return nil
		}

		defer release()

		result, err := pipe.Run(c.UserContext(), sess, job)
		if err != nil {
			_ = store.Delete(sess.ID)
			return c.Status(errorStatus(err)).JSON(errorResponse{Error: errorMessage(err)})
		}

		log.Info("extraction completed", zap.Int("frames", len(result.Frames)))
		return c.JSON(newExtractionResponse(sess.Snapshot()))
	}
}

func streamExtraction(w *bufio.Writer, log *zap.Logger, store *session.Store, pipe *pipeline.Pipeline, sess *session.Session, job pipeline.Job) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	encoder := json.NewEncoder(w)
	send := func(event progressEvent) {
		if err := encoder.Encode(event); err != nil {
			cancel()
			return
		}
		// A failed flush means the client went away
		if err := w.Flush(); err != nil {
			log.Info("client disconnected during extraction", zap.Error(err))
			cancel()
		}
	}

	last := 0.0
	job.Options.Progress = func(fraction float64) {
		if fraction <= last || (fraction-last < progressStep && fraction < 1) {
			return
		}
		last = fraction
		send(progressEvent{Type: "progress", Progress: fraction})
	}

	send(progressEvent{Type: "progress", Progress: 0})

	if _, err := pipe.Run(ctx, sess, job); err != nil {
		_ = store.Delete(sess.ID)
		send(progressEvent{Type: "error", Error: errorMessage(err)})
		return
	}

	log.Info("extraction completed")
	send(progressEvent{Type: "result", Result: newExtractionResponse(sess.Snapshot())})
}
