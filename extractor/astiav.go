package extractor

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"

	"github.com/asticode/go-astiav"
)

// AstiavOpener decodes videos in-process through libav.
type AstiavOpener struct{}

func (AstiavOpener) Open(path string) (Source, error) {
	src, err := openAstiav(path)
	if err != nil {
		return nil, err
	}
	return src, nil
}

type astiavSource struct {
	input       *astiav.FormatContext
	inputOpened bool
	codecCtx    *astiav.CodecContext
	packet      *astiav.Packet
	frame       *astiav.Frame

	// lazily created when libav hands us a pixel format Go cannot map directly
	scaler *astiav.SoftwareScaleContext
	rgba   *astiav.Frame

	streamIndex int
	info        Info
	flushed     bool
}

func openAstiav(path string) (_ *astiavSource, err error) {
	src := &astiavSource{streamIndex: -1}
	defer func() {
		if err != nil {
			_ = src.Close()
		}
	}()

	src.input = astiav.AllocFormatContext()
	if src.input == nil {
		return nil, fmt.Errorf("%w: failed to allocate format context", ErrOpenSource)
	}

	// Larger probe window for MOV/MKV files with late stream headers
	formatOptions := astiav.NewDictionary()
	defer formatOptions.Free()
	formatOptions.Set("analyzeduration", "100000000", 0)
	formatOptions.Set("probesize", "50000000", 0)

	if err := src.input.OpenInput(path, nil, formatOptions); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOpenSource, err)
	}
	src.inputOpened = true

	if err := src.input.FindStreamInfo(nil); err != nil {
		return nil, fmt.Errorf("%w: failed to find stream info: %v", ErrOpenSource, err)
	}

	var videoStream *astiav.Stream
	for _, stream := range src.input.Streams() {
		if stream.CodecParameters().MediaType() == astiav.MediaTypeVideo {
			src.streamIndex = stream.Index()
			videoStream = stream
			break
		}
	}

	if videoStream == nil {
		return nil, fmt.Errorf("%w: no video stream found", ErrOpenSource)
	}

	codec := astiav.FindDecoder(videoStream.CodecParameters().CodecID())
	if codec == nil {
		return nil, fmt.Errorf("%w: no decoder for codec %s", ErrOpenSource, videoStream.CodecParameters().CodecID())
	}

	src.codecCtx = astiav.AllocCodecContext(codec)
	if src.codecCtx == nil {
		return nil, fmt.Errorf("%w: failed to allocate codec context", ErrOpenSource)
	}

	if err := src.codecCtx.FromCodecParameters(videoStream.CodecParameters()); err != nil {
		return nil, fmt.Errorf("%w: failed to copy codec parameters: %v", ErrOpenSource, err)
	}

	if err := src.codecCtx.Open(codec, nil); err != nil {
		return nil, fmt.Errorf("%w: failed to open codec: %v", ErrOpenSource, err)
	}

	src.packet = astiav.AllocPacket()
	src.frame = astiav.AllocFrame()

	src.info = Info{
		Width:       videoStream.CodecParameters().Width(),
		Height:      videoStream.CodecParameters().Height(),
		Codec:       codec.Name(),
		TotalFrames: estimateFrameCount(src.input, videoStream),
	}

	return src, nil
}

// estimateFrameCount prefers the container's frame count and falls back to duration times average frame rate.
func estimateFrameCount(input *astiav.FormatContext, stream *astiav.Stream) int64 {
	if n := stream.NbFrames(); n > 0 {
		return n
	}

	rate := stream.AvgFrameRate()
	if rate.Num() <= 0 || rate.Den() <= 0 || input.Duration() <= 0 {
		return 0
	}

	seconds := float64(input.Duration()) / 1000000.0 // Duration is in microseconds
	return int64(seconds * float64(rate.Num()) / float64(rate.Den()))
}

func (s *astiavSource) Info() Info {
	return s.info
}

func (s *astiavSource) Next(ctx context.Context) (image.Image, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		err := s.codecCtx.ReceiveFrame(s.frame)
		switch {
		case err == nil:
			img, convErr := s.toImage()
			s.frame.Unref()
			if convErr != nil {
				return nil, convErr
			}
			return img, nil
		case errors.Is(err, astiav.ErrEof):
			return nil, io.EOF
		case !errors.Is(err, astiav.ErrEagain):
			return nil, fmt.Errorf("failed to receive frame: %w", err)
		}

		if s.flushed {
			return nil, io.EOF
		}

		if err := s.feed(); err != nil {
			return nil, err
		}
	}
}

// feed sends the next packet of the video stream to the decoder, or the flush packet at end of input.
func (s *astiavSource) feed() error {
	for {
		if err := s.input.ReadFrame(s.packet); err != nil {
			if !errors.Is(err, astiav.ErrEof) {
				return fmt.Errorf("failed to read packet: %w", err)
			}

			s.flushed = true
			if err := s.codecCtx.SendPacket(nil); err != nil && !errors.Is(err, astiav.ErrEof) {
				return fmt.Errorf("failed to flush decoder: %w", err)
			}
			return nil
		}

		if s.packet.StreamIndex() != s.streamIndex {
			s.packet.Unref()
			continue
		}

		err := s.codecCtx.SendPacket(s.packet)
		s.packet.Unref()
		if err != nil {
			return fmt.Errorf("failed to send packet: %w", err)
		}
		return nil
	}
}

// toImage copies the current frame out of libav memory, converting to RGBA when Go has no
// matching image type for the decoder's pixel format.
func (s *astiavSource) toImage() (image.Image, error) {
	if img, err := copyFrame(s.frame); err == nil {
		return img, nil
	}

	if s.scaler == nil {
		scaler, err := astiav.CreateSoftwareScaleContext(
			s.frame.Width(), s.frame.Height(), s.frame.PixelFormat(),
			s.frame.Width(), s.frame.Height(), astiav.PixelFormatRgba,
			astiav.NewSoftwareScaleContextFlags(astiav.SoftwareScaleContextFlagBilinear),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create scale context for %s: %w", s.frame.PixelFormat(), err)
		}
		s.scaler = scaler
		s.rgba = astiav.AllocFrame()
	}

	if err := s.scaler.ScaleFrame(s.frame, s.rgba); err != nil {
		return nil, fmt.Errorf("failed to scale frame: %w", err)
	}
	defer s.rgba.Unref()

	return copyFrame(s.rgba)
}

func copyFrame(frame *astiav.Frame) (image.Image, error) {
	if frame.Width() <= 0 || frame.Height() <= 0 {
		return nil, fmt.Errorf("frame has no pixels: %dx%d", frame.Width(), frame.Height())
	}

	data := frame.Data()
	img, err := data.GuessImageFormat()
	if err != nil {
		return nil, fmt.Errorf("no image type for %s: %w", frame.PixelFormat(), err)
	}
	if err := data.ToImage(img); err != nil {
		return nil, fmt.Errorf("failed to copy frame: %w", err)
	}
	return img, nil
}

func (s *astiavSource) Close() error {
	if s.rgba != nil {
		s.rgba.Free()
		s.rgba = nil
	}
	if s.scaler != nil {
		s.scaler.Free()
		s.scaler = nil
	}
	if s.frame != nil {
		s.frame.Free()
		s.frame = nil
	}
	if s.packet != nil {
		s.packet.Free()
		s.packet = nil
	}
	if s.codecCtx != nil {
		s.codecCtx.Free()
		s.codecCtx = nil
	}
	if s.input != nil {
		if s.inputOpened {
			s.input.CloseInput()
		}
		s.input.Free()
		s.input = nil
	}
	return nil
}
