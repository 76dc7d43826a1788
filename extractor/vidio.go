package extractor

import (
	"context"
	"fmt"
	"image"
	"io"

	vidio "github.com/AlexEidt/Vidio"
)

// VidioOpener decodes videos through an ffmpeg subprocess. Requires ffmpeg and ffprobe on PATH.
type VidioOpener struct{}

func (VidioOpener) Open(path string) (Source, error) {
	video, err := vidio.NewVideo(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOpenSource, err)
	}

	if video.Width() <= 0 || video.Height() <= 0 {
		video.Close()
		return nil, fmt.Errorf("%w: no video stream found", ErrOpenSource)
	}

	return &vidioSource{video: video}, nil
}

type vidioSource struct {
	video *vidio.Video
}

func (s *vidioSource) Info() Info {
	return Info{
		Width:       s.video.Width(),
		Height:      s.video.Height(),
		Codec:       s.video.Codec(),
		TotalFrames: int64(s.video.Frames()),
	}
}

func (s *vidioSource) Next(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if !s.video.Read() {
		return nil, io.EOF
	}

	// The frame buffer is reused by the next Read, so copy it out.
	img := image.NewRGBA(image.Rect(0, 0, s.video.Width(), s.video.Height()))
	copy(img.Pix, s.video.FrameBuffer())

	return img, nil
}

func (s *vidioSource) Close() error {
	s.video.Close()
	return nil
}
