package extractor

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/disintegration/imaging"
	"github.com/nfnt/resize"
	"go.uber.org/zap"
)

const DefaultQuality = 90

type Options struct {
	// FrameSkip keeps every n-th source frame, starting with the first. Values below 1 mean 1.
	FrameSkip int

	// Quality is the JPEG quality, 1..100. Zero means DefaultQuality.
	Quality int

	// MaxWidth downscales frames wider than this, keeping aspect ratio. Zero keeps the source size.
	MaxWidth int

	// Progress receives the fraction of source frames consumed. Only called when the source reports a frame count.
	Progress func(fraction float64)
}

type Result struct {
	// FramePaths are in saved order, which is also ascending file name order.
	FramePaths   []string
	FrameCount   int
	SourceFrames int
	Width        int
	Height       int
	Elapsed      time.Duration
}

type Extractor struct {
	opener Opener
	logger *zap.Logger
}

func New(opener Opener, logger *zap.Logger) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{opener: opener, logger: logger}
}

// FrameName returns the file name of the i-th saved frame.
func FrameName(i int) string {
	return fmt.Sprintf("frame_%04d.jpg", i)
}

// Extract decodes videoPath and writes the retained frames as JPEG files into outputDir.
// The output directory is only created once the video has been opened.
func (e *Extractor) Extract(ctx context.Context, videoPath, outputDir string, opts Options) (*Result, error) {
	stride := opts.FrameSkip
	if stride < 1 {
		stride = 1
	}

	quality := opts.Quality
	if quality == 0 {
		quality = DefaultQuality
	}
	if quality < 1 || quality > 100 {
		return nil, fmt.Errorf("invalid jpeg quality %d", quality)
	}

	start := time.Now()

	source, err := e.opener.Open(videoPath)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := source.Close(); err != nil {
			e.logger.Warn("failed to close video source", zap.String("path", videoPath), zap.Error(err))
		}
	}()

	info := source.Info()
	e.logger.Debug("video opened",
		zap.String("path", videoPath),
		zap.String("codec", info.Codec),
		zap.Int("width", info.Width),
		zap.Int("height", info.Height),
		zap.Int64("total_frames", info.TotalFrames),
	)

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	progress := newProgressReporter(info.TotalFrames, opts.Progress)

	result := &Result{Width: info.Width, Height: info.Height}
	for position := 0; ; position++ {
		img, err := source.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to decode frame %d: %w", position, err)
		}

		result.SourceFrames++

		if position%stride == 0 {
			path := filepath.Join(outputDir, FrameName(result.FrameCount))
			if err := writeJPEG(path, scaleToWidth(img, opts.MaxWidth), quality); err != nil {
				return nil, err
			}

			result.FramePaths = append(result.FramePaths, path)
			result.FrameCount++
		}

		progress.consumed(result.SourceFrames)
	}

	progress.done()

	result.Elapsed = time.Since(start)

	e.logger.Info("frames extracted",
		zap.String("path", videoPath),
		zap.Int("saved", result.FrameCount),
		zap.Int("decoded", result.SourceFrames),
		zap.Int("frame_skip", stride),
		zap.Duration("elapsed", result.Elapsed),
	)

	return result, nil
}

func scaleToWidth(img image.Image, maxWidth int) image.Image {
	if maxWidth <= 0 || img.Bounds().Dx() <= maxWidth {
		return img
	}
	// Height 0 keeps the aspect ratio
	return resize.Resize(uint(maxWidth), 0, img, resize.Lanczos3)
}

func writeJPEG(path string, img image.Image, quality int) error {
	if err := imaging.Save(img, path, imaging.JPEGQuality(quality)); err != nil {
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	return nil
}

type progressReporter struct {
	total int64
	fn    func(float64)
	last  float64
}

func newProgressReporter(total int64, fn func(float64)) *progressReporter {
	return &progressReporter{total: total, fn: fn}
}

func (p *progressReporter) consumed(n int) {
	if p.fn == nil || p.total <= 0 {
		return
	}

	fraction := float64(n) / float64(p.total)
	if fraction > 1 {
		fraction = 1
	}
	if fraction < p.last {
		return
	}

	p.last = fraction
	p.fn(fraction)
}

func (p *progressReporter) done() {
	if p.fn == nil || p.total <= 0 {
		return
	}
	p.last = 1
	p.fn(1)
}
