// Package extractortest provides a deterministic in-memory video source for tests.
package extractortest

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"io"
	"os"
	"sync/atomic"

	"frame-extractor/extractor"
)

// Opener yields Frames solid-colour frames for any non-empty file. Empty or missing files fail like a corrupt video.
type Opener struct {
	Frames int
	Width  int
	Height int

	// HideTotal makes the source report an unknown frame count.
	HideTotal bool

	// FailAt makes Next return an error at this source position when > 0.
	FailAt int

	opened atomic.Int64
	closed atomic.Int64
}

func (o *Opener) Open(path string) (extractor.Source, error) {
	stat, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", extractor.ErrOpenSource, err)
	}
	if stat.Size() == 0 {
		return nil, fmt.Errorf("%w: empty file", extractor.ErrOpenSource)
	}

	width, height := o.Width, o.Height
	if width <= 0 {
		width = 32
	}
	if height <= 0 {
		height = 24
	}

	total := int64(o.Frames)
	if o.HideTotal {
		total = 0
	}

	o.opened.Add(1)
	return &source{
		opener: o,
		info:   extractor.Info{Width: width, Height: height, Codec: "fake", TotalFrames: total},
	}, nil
}

// Opened reports how many sources were opened.
func (o *Opener) Opened() int64 { return o.opened.Load() }

// Closed reports how many sources were closed.
func (o *Opener) Closed() int64 { return o.closed.Load() }

type source struct {
	opener   *Opener
	info     extractor.Info
	position int
}

func (s *source) Info() extractor.Info { return s.info }

func (s *source) Next(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.position >= s.opener.Frames {
		return nil, io.EOF
	}
	if s.opener.FailAt > 0 && s.position == s.opener.FailAt {
		return nil, fmt.Errorf("corrupt packet at %d", s.position)
	}

	img := image.NewRGBA(image.Rect(0, 0, s.info.Width, s.info.Height))
	fill := FrameColor(s.position)
	for y := 0; y < s.info.Height; y++ {
		for x := 0; x < s.info.Width; x++ {
			img.SetRGBA(x, y, fill)
		}
	}

	s.position++
	return img, nil
}

func (s *source) Close() error {
	s.opener.closed.Add(1)
	return nil
}

// FrameColor is the fill colour of the frame at a source position.
func FrameColor(position int) color.RGBA {
	return color.RGBA{R: uint8(position * 40), G: uint8(255 - position*20), B: uint8(position * 7), A: 255}
}

// WriteVideo creates a non-empty placeholder file the Opener accepts.
func WriteVideo(path string) error {
	return os.WriteFile(path, []byte("not really a video"), 0o644)
}
