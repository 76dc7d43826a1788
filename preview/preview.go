package preview

import (
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"time"

	"github.com/dgraph-io/ristretto/v2"
	"github.com/disintegration/imaging"
	"github.com/kolesa-team/go-webp/encoder"
	"github.com/kolesa-team/go-webp/webp"
	"github.com/nfnt/resize"
	"go.uber.org/zap"

	"frame-extractor/mime"
	"frame-extractor/pool"
)

// Limit is the most frames a preview shows.
const Limit = 5

var ErrOutOfRange = errors.New("preview index out of range")

// Select returns the leading frames shown in the preview, at most Limit.
func Select(frames []string) []string {
	if len(frames) > Limit {
		return frames[:Limit]
	}
	return frames
}

type Options struct {
	Width   int
	Quality int
	Webp    bool
	TTL     time.Duration
}

// Renderer produces preview thumbnails and caches them by session and index.
type Renderer struct {
	cache   *ristretto.Cache[string, CacheValue]
	options Options
	logger  *zap.Logger
}

func NewRenderer(options Options, logger *zap.Logger) (*Renderer, error) {
	cache, err := ristretto.NewCache(&ristretto.Config[string, CacheValue]{
		NumCounters: 1e5,
		MaxCost:     64 << 20, // bytes of encoded thumbnails
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create preview cache: %w", err)
	}

	if options.Quality < 1 || options.Quality > 100 {
		options.Quality = 80
	}

	return &Renderer{cache: cache, options: options, logger: logger}, nil
}

// Thumbnail returns the preview image of frames[index]. cached reports a cache hit.
func (r *Renderer) Thumbnail(sessionID string, frames []string, index int) (value CacheValue, cached bool, err error) {
	selected := Select(frames)
	if index < 0 || index >= len(selected) {
		return CacheValue{}, false, ErrOutOfRange
	}

	key := cacheKey(sessionID, index, r.options.Width, r.options.Webp)
	if value, ok := r.cache.Get(key); ok {
		return value, true, nil
	}

	img, err := imaging.Open(selected[index])
	if err != nil {
		return CacheValue{}, false, fmt.Errorf("failed to read frame: %w", err)
	}

	if r.options.Width > 0 && img.Bounds().Dx() > r.options.Width {
		img = resize.Thumbnail(uint(r.options.Width), uint(img.Bounds().Dy()), img, resize.Lanczos3)
	}

	value, err = r.encode(img)
	if err != nil {
		return CacheValue{}, false, err
	}

	r.cache.SetWithTTL(key, value, int64(len(value.Body)), r.options.TTL)

	r.logger.Debug("preview rendered",
		zap.String("session", sessionID),
		zap.Int("index", index),
		zap.String("content_type", value.ContentType),
		zap.Int("bytes", len(value.Body)),
	)

	return value, false, nil
}

func (r *Renderer) encode(img image.Image) (CacheValue, error) {
	buf := pool.GetBuffer()
	defer pool.PutBuffer(buf)

	if r.options.Webp {
		options, err := encoder.NewLossyEncoderOptions(encoder.PresetDefault, float32(r.options.Quality))
		if err != nil {
			return CacheValue{}, fmt.Errorf("failed to create webp encoder options: %w", err)
		}
		if err := webp.Encode(buf, img, options); err != nil {
			return CacheValue{}, fmt.Errorf("failed to encode image to webp: %w", err)
		}
		return CacheValue{Body: pool.Detach(buf), ContentType: mime.WEBP}, nil
	}

	if err := jpeg.Encode(buf, img, &jpeg.Options{Quality: r.options.Quality}); err != nil {
		return CacheValue{}, fmt.Errorf("failed to encode image to jpeg: %w", err)
	}
	return CacheValue{Body: pool.Detach(buf), ContentType: mime.JPEG}, nil
}

func (r *Renderer) Close() {
	r.cache.Close()
}
