package extractor_test

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"
	"testing"

	"github.com/asticode/go-astiav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"frame-extractor/extractor"
	"frame-extractor/extractor/extractortest"
)

const (
	clipWidth  = 64
	clipHeight = 48
)

// writeClip encodes frames solid-colour frames into a matroska file. It skips the test when
// the local libav build lacks the encoder.
func writeClip(t *testing.T, path string, codecID astiav.CodecID, pixelFormat astiav.PixelFormat, frames, bFrames int) {
	t.Helper()

	codec := astiav.FindEncoder(codecID)
	if codec == nil {
		t.Skipf("encoder %s not available", codecID)
	}

	output, err := astiav.AllocOutputFormatContext(nil, "", path)
	require.NoError(t, err)
	defer output.Free()

	stream := output.NewStream(nil)
	require.NotNil(t, stream)

	enc := astiav.AllocCodecContext(codec)
	require.NotNil(t, enc)
	defer enc.Free()

	enc.SetWidth(clipWidth)
	enc.SetHeight(clipHeight)
	enc.SetPixelFormat(pixelFormat)
	enc.SetTimeBase(astiav.NewRational(1, 25))
	enc.SetFramerate(astiav.NewRational(25, 1))
	enc.SetGopSize(6)
	enc.SetMaxBFrames(bFrames)
	if output.OutputFormat().Flags().Has(astiav.IOFormatFlagGlobalheader) {
		enc.SetFlags(enc.Flags().Add(astiav.CodecContextFlagGlobalHeader))
	}
	require.NoError(t, enc.Open(codec, nil))

	require.NoError(t, stream.CodecParameters().FromCodecContext(enc))
	stream.SetTimeBase(enc.TimeBase())

	ioCtx, err := astiav.OpenIOContext(path, astiav.NewIOContextFlags(astiav.IOContextFlagWrite), nil, nil)
	require.NoError(t, err)
	defer func() {
		_ = ioCtx.Close()
	}()
	output.SetPb(ioCtx)

	require.NoError(t, output.WriteHeader(nil))

	frame := astiav.AllocFrame()
	defer frame.Free()
	frame.SetWidth(clipWidth)
	frame.SetHeight(clipHeight)
	frame.SetPixelFormat(pixelFormat)
	require.NoError(t, frame.AllocBuffer(0))

	packet := astiav.AllocPacket()
	defer packet.Free()

	encode := func(f *astiav.Frame) {
		require.NoError(t, enc.SendFrame(f))
		for {
			err := enc.ReceivePacket(packet)
			if errors.Is(err, astiav.ErrEagain) || errors.Is(err, astiav.ErrEof) {
				return
			}
			require.NoError(t, err)

			packet.RescaleTs(enc.TimeBase(), stream.TimeBase())
			packet.SetStreamIndex(stream.Index())
			require.NoError(t, output.WriteInterleavedFrame(packet))
		}
	}

	for i := 0; i < frames; i++ {
		require.NoError(t, frame.MakeWritable())
		require.NoError(t, frame.Data().FromImage(clipFrame(pixelFormat, extractortest.FrameColor(i))))
		frame.SetPts(int64(i))
		encode(frame)
	}
	encode(nil)

	require.NoError(t, output.WriteTrailer())
}

func clipFrame(pixelFormat astiav.PixelFormat, c color.RGBA) image.Image {
	rect := image.Rect(0, 0, clipWidth, clipHeight)

	if pixelFormat == astiav.PixelFormatBgr0 {
		// packed B, G, R, padding
		img := image.NewRGBA(rect)
		for i := 0; i < len(img.Pix); i += 4 {
			img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = c.B, c.G, c.R, 0
		}
		return img
	}

	img := image.NewYCbCr(rect, image.YCbCrSubsampleRatio420)
	y, cb, cr := color.RGBToYCbCr(c.R, c.G, c.B)
	for i := range img.Y {
		img.Y[i] = y
	}
	for i := range img.Cb {
		img.Cb[i] = cb
		img.Cr[i] = cr
	}
	return img
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}

func TestAstiavDecodesEveryFrame(t *testing.T) {
	const frames = 13

	// B-frames make the decoder hold frames back until it is drained
	video := filepath.Join(t.TempDir(), "clip.mkv")
	writeClip(t, video, astiav.CodecIDMpeg4, astiav.PixelFormatYuv420P, frames, 2)

	ex := extractor.New(extractor.AstiavOpener{}, zaptest.NewLogger(t))

	for _, stride := range []int{1, 2, 3, 5, 13, 20} {
		t.Run(fmt.Sprintf("stride %d", stride), func(t *testing.T) {
			out := filepath.Join(t.TempDir(), "frames")

			result, err := ex.Extract(context.Background(), video, out, extractor.Options{FrameSkip: stride})
			require.NoError(t, err)

			assert.Equal(t, frames, result.SourceFrames)
			assert.Equal(t, ceilDiv(frames, stride), result.FrameCount)
			assert.Equal(t, clipWidth, result.Width)
			assert.Equal(t, clipHeight, result.Height)

			for i, path := range result.FramePaths {
				assert.Equal(t, extractor.FrameName(i), filepath.Base(path))
			}
		})
	}
}

func TestAstiavConvertsUnmappedPixelFormats(t *testing.T) {
	const frames = 4

	// ffv1 keeps bgr0, which has no Go image type and goes through swscale
	video := filepath.Join(t.TempDir(), "clip.mkv")
	writeClip(t, video, astiav.CodecIDFfv1, astiav.PixelFormatBgr0, frames, 0)

	ex := extractor.New(extractor.AstiavOpener{}, zaptest.NewLogger(t))
	result, err := ex.Extract(context.Background(), video, t.TempDir(), extractor.Options{Quality: 100})
	require.NoError(t, err)
	require.Equal(t, frames, result.FrameCount)

	for i, path := range result.FramePaths {
		f, err := os.Open(path)
		require.NoError(t, err)
		img, err := jpeg.Decode(f)
		require.NoError(t, f.Close())
		require.NoError(t, err)

		assert.Equal(t, clipWidth, img.Bounds().Dx())

		want := extractortest.FrameColor(i)
		r, g, b, _ := img.At(clipWidth/2, clipHeight/2).RGBA()
		assert.InDelta(t, want.R, uint8(r>>8), 6, "red at frame %d", i)
		assert.InDelta(t, want.G, uint8(g>>8), 6, "green at frame %d", i)
		assert.InDelta(t, want.B, uint8(b>>8), 6, "blue at frame %d", i)
	}
}
