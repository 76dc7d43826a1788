package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"frame-extractor/archive"
	"frame-extractor/extractor"
	"frame-extractor/metrics"
	"frame-extractor/session"
)

var ErrNoFrames = errors.New("video contains no decodable frames")

// ArchiveUploader offloads a finished archive. Implemented by storage.ArchiveStore.
type ArchiveUploader interface {
	Key(sessionID, fileName string) string
	Upload(ctx context.Context, key, filePath string) (int64, error)
}

type Job struct {
	VideoPath string
	Options   extractor.Options
	Archive   bool
}

type Pipeline struct {
	extractor *extractor.Extractor
	uploader  ArchiveUploader
	metrics   *metrics.Metrics
	logger    *zap.Logger
	tracer    trace.Tracer
}

// New wires the stages. uploader and m may be nil.
func New(ex *extractor.Extractor, uploader ArchiveUploader, m *metrics.Metrics, logger *zap.Logger) *Pipeline {
	return &Pipeline{
		extractor: ex,
		uploader:  uploader,
		metrics:   m,
		logger:    logger,
		tracer:    otel.Tracer("pipeline"),
	}
}

// Run extracts frames into the session, then builds and optionally offloads the archive.
// The session is marked completed or failed; removing a failed session is up to the caller.
func (p *Pipeline) Run(ctx context.Context, sess *session.Session, job Job) (*session.Result, error) {
	ctx, span := p.tracer.Start(ctx, "pipeline.Run", trace.WithAttributes(
		attribute.String("session.id", sess.ID),
		attribute.Int("job.frame_skip", job.Options.FrameSkip),
		attribute.Bool("job.archive", job.Archive),
	))
	defer span.End()

	log := p.logger.With(zap.String("session", sess.ID))

	result, err := p.run(ctx, sess, job, log)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		sess.Fail(err)
		p.count("failed")
		log.Warn("extraction failed", zap.Error(err))
		return nil, err
	}

	span.SetAttributes(attribute.Int("result.frames", len(result.Frames)))
	sess.Complete(result)
	p.count("completed")

	return result, nil
}

func (p *Pipeline) run(ctx context.Context, sess *session.Session, job Job, log *zap.Logger) (*session.Result, error) {
	opts := job.Options
	report := opts.Progress
	opts.Progress = func(fraction float64) {
		sess.SetProgress(fraction)
		if report != nil {
			report(fraction)
		}
	}

	extracted, err := stage(p, ctx, "extract", func(ctx context.Context) (*extractor.Result, error) {
		return p.extractor.Extract(ctx, job.VideoPath, sess.FramesDir(), opts)
	})
	if err != nil {
		return nil, err
	}

	if p.metrics != nil {
		p.metrics.FramesSaved.Add(float64(extracted.FrameCount))
		p.metrics.FramesDecoded.Add(float64(extracted.SourceFrames))
	}

	if extracted.FrameCount == 0 {
		return nil, ErrNoFrames
	}

	result := &session.Result{
		Frames:       make([]string, 0, len(extracted.FramePaths)),
		SourceFrames: extracted.SourceFrames,
		Width:        extracted.Width,
		Height:       extracted.Height,
		Elapsed:      extracted.Elapsed,
	}
	for _, path := range extracted.FramePaths {
		result.Frames = append(result.Frames, filepath.Base(path))
	}

	// The upload is not needed past extraction
	if err := os.Remove(job.VideoPath); err != nil && !os.IsNotExist(err) {
		log.Warn("failed to remove uploaded video", zap.Error(err))
	}

	if !job.Archive {
		return result, nil
	}

	size, err := stage(p, ctx, "archive", func(ctx context.Context) (int64, error) {
		if _, err := archive.Build(ctx, sess.FramesDir(), sess.ArchivePath()); err != nil {
			return 0, err
		}
		info, err := os.Stat(sess.ArchivePath())
		if err != nil {
			return 0, fmt.Errorf("stat archive: %w", err)
		}
		return info.Size(), nil
	})
	if err != nil {
		return nil, err
	}
	result.Archive = true

	if p.metrics != nil {
		p.metrics.ArchiveBytes.Observe(float64(size))
	}

	if p.uploader == nil {
		return result, nil
	}

	key := p.uploader.Key(sess.ID, archive.FileName)
	_, err = stage(p, ctx, "upload", func(ctx context.Context) (int64, error) {
		return p.uploader.Upload(ctx, key, sess.ArchivePath())
	})
	if err != nil {
		// the local archive is still served
		log.Error("archive upload failed", zap.String("key", key), zap.Error(err))
		return result, nil
	}
	result.ArchiveKey = key

	return result, nil
}

// stage runs fn inside a span and records its duration.
func stage[T any](p *Pipeline, ctx context.Context, name string, fn func(context.Context) (T, error)) (T, error) {
	ctx, span := p.tracer.Start(ctx, name)
	defer span.End()

	var perf *metrics.PerformanceMetrics
	if p.metrics != nil {
		perf = p.metrics.PerformanceMetrics
	}

	result, err := metrics.TimeStage(func() (T, error) { return fn(ctx) }, name, perf)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return result, err
}

func (p *Pipeline) count(status string) {
	if p.metrics != nil {
		p.metrics.Extractions.WithLabelValues(status).Inc()
	}
}
