package extractor

import (
	"context"
	"errors"
	"fmt"
	"image"
)

// ErrOpenSource is returned when a video cannot be opened or has no decodable video stream.
var ErrOpenSource = errors.New("cannot open video file")

// Info describes the opened video stream. TotalFrames is 0 when the container does not report it.
type Info struct {
	Width       int
	Height      int
	Codec       string
	TotalFrames int64
}

// Source yields decoded frames in presentation order.
// Next returns io.EOF once the stream is exhausted.
type Source interface {
	Info() Info
	Next(ctx context.Context) (image.Image, error)
	Close() error
}

// Opener opens a video file as a Source.
type Opener interface {
	Open(path string) (Source, error)
}

// OpenerFunc adapts a function to the Opener interface.
type OpenerFunc func(path string) (Source, error)

func (f OpenerFunc) Open(path string) (Source, error) {
	return f(path)
}

// NewOpener returns the decoder backend registered under name: "astiav" or "ffmpeg".
func NewOpener(name string) (Opener, error) {
	switch name {
	case "", "astiav":
		return AstiavOpener{}, nil
	case "ffmpeg":
		return VidioOpener{}, nil
	default:
		return nil, fmt.Errorf("unknown decoder %q", name)
	}
}
