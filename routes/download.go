package routes

import (
	_ "embed"
	"errors"
	"path/filepath"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"frame-extractor/archive"
	"frame-extractor/metrics"
	"frame-extractor/mime"
	"frame-extractor/preview"
	"frame-extractor/session"
)

//go:embed static/index.html
var indexPage []byte

func handleIndex() fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.Set(fiber.HeaderContentType, fiber.MIMETextHTMLCharsetUTF8)
		return c.Send(indexPage)
	}
}

// completedSession looks up a session that finished extracting.
func completedSession(c *fiber.Ctx, store *session.Store) (*session.Session, *session.Result, error) {
	sess, err := store.Get(c.Params("id"))
	if err != nil {
		return nil, nil, err
	}

	snapshot := sess.Snapshot()
	if snapshot.Status != session.StatusCompleted || snapshot.Result == nil {
		return nil, nil, fiber.NewError(fiber.StatusConflict, "extraction has not completed")
	}

	return sess, snapshot.Result, nil
}

func sendLookupError(c *fiber.Ctx, err error) error {
	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		return sendError(c, fiberErr.Code, err)
	}
	return sendError(c, errorStatus(err), err)
}

func handleResult(store *session.Store) fiber.Handler {
	return func(c *fiber.Ctx) error {
		sess, err := store.Get(c.Params("id"))
		if err != nil {
			return sendLookupError(c, err)
		}
		return c.JSON(newExtractionResponse(sess.Snapshot()))
	}
}

func handleDelete(logger *zap.Logger, store *session.Store, linker ArchiveLinker) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Params("id")
		sess, err := store.Get(id)
		if err != nil {
			return sendLookupError(c, err)
		}
		snapshot := sess.Snapshot()

		if err := store.Delete(id); err != nil {
			return sendLookupError(c, err)
		}

		if linker != nil && snapshot.Result != nil && snapshot.Result.ArchiveKey != "" {
			if err := linker.Remove(c.UserContext(), snapshot.Result.ArchiveKey); err != nil {
				logger.Warn("failed to remove offloaded archive", zap.String("session", id), zap.Error(err))
			}
		}

		logger.Info("session deleted", zap.String("session", id))
		return c.SendStatus(fiber.StatusNoContent)
	}
}

func handleFrameDownload(logger *zap.Logger, store *session.Store, counters *metrics.Metrics) fiber.Handler {
	return func(c *fiber.Ctx) error {
		sess, _, err := completedSession(c, store)
		if err != nil {
			return sendLookupError(c, err)
		}

		// Only names produced by the extraction are served
		name := c.Params("name")
		if !sess.HasFrame(name) {
			return sendError(c, fiber.StatusNotFound, errors.New("frame not found"))
		}

		release, ok := sess.Hold()
		if !ok {
			return sendError(c, fiber.StatusNotFound, session.ErrNotFound)
		}
		defer release()

		counters.Downloads.WithLabelValues("frame").Inc()
		c.Set(fiber.HeaderContentType, mime.JPEG)
		return c.Download(filepath.Join(sess.FramesDir(), name), name)
	}
}

func handlePreview(logger *zap.Logger, store *session.Store, renderer *preview.Renderer, counters *metrics.Metrics) fiber.Handler {
	return func(c *fiber.Ctx) error {
		sess, result, err := completedSession(c, store)
		if err != nil {
			return sendLookupError(c, err)
		}

		index, err := c.ParamsInt("index")
		if err != nil {
			return sendError(c, fiber.StatusBadRequest, errors.New("index must be an integer"))
		}

		release, ok := sess.Hold()
		if !ok {
			return sendError(c, fiber.StatusNotFound, session.ErrNotFound)
		}
		defer release()

		paths := make([]string, 0, preview.Limit)
		for _, name := range preview.Select(result.Frames) {
			paths = append(paths, filepath.Join(sess.FramesDir(), name))
		}

		value, cached, err := renderer.Thumbnail(sess.ID, paths, index)
		if errors.Is(err, preview.ErrOutOfRange) {
			return sendError(c, fiber.StatusNotFound, err)
		}
		if err != nil {
			logger.Error("failed to render preview", zap.String("session", sess.ID), zap.Int("index", index), zap.Error(err))
			return sendError(c, fiber.StatusInternalServerError, errors.New("failed to render preview"))
		}

		if cached {
			counters.ThumbnailCached.WithLabelValues("hit").Inc()
		} else {
			counters.ThumbnailCached.WithLabelValues("miss").Inc()
		}
		counters.Downloads.WithLabelValues("preview").Inc()

		c.Set(fiber.HeaderContentType, value.ContentType)
		c.Set(fiber.HeaderCacheControl, "private, max-age=300")
		return c.Send(value.Body)
	}
}

func handleArchiveDownload(logger *zap.Logger, store *session.Store, linker ArchiveLinker, counters *metrics.Metrics) fiber.Handler {
	return func(c *fiber.Ctx) error {
		sess, result, err := completedSession(c, store)
		if err != nil {
			return sendLookupError(c, err)
		}

		if !result.Archive {
			return sendError(c, fiber.StatusNotFound, errors.New("no archive was built for this extraction"))
		}

		if result.ArchiveKey != "" && linker != nil {
			u, err := linker.PresignedURL(c.UserContext(), result.ArchiveKey, archive.FileName)
			if err == nil {
				counters.Downloads.WithLabelValues("archive").Inc()
				return c.Redirect(u.String(), fiber.StatusFound)
			}
			logger.Error("failed to presign archive, serving local copy", zap.String("session", sess.ID), zap.Error(err))
		}

		release, ok := sess.Hold()
		if !ok {
			return sendError(c, fiber.StatusNotFound, session.ErrNotFound)
		}
		defer release()

		counters.Downloads.WithLabelValues("archive").Inc()
		c.Set(fiber.HeaderContentType, mime.ZIP)
		return c.Download(sess.ArchivePath(), archive.FileName)
	}
}
