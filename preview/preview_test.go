package preview

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestSelect(t *testing.T) {
	names := func(n int) []string {
		out := make([]string, n)
		for i := range out {
			out[i] = fmt.Sprintf("frame_%04d.jpg", i)
		}
		return out
	}

	assert.Empty(t, Select(nil))
	assert.Len(t, Select(names(3)), 3)
	assert.Len(t, Select(names(5)), 5)

	selected := Select(names(120))
	require.Len(t, selected, Limit)
	assert.Equal(t, "frame_0000.jpg", selected[0])
	assert.Equal(t, "frame_0004.jpg", selected[4])
}

func writeJPEG(t *testing.T, path string, width, height int) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{R: 200, G: 10, B: 10, A: 255})
		}
	}
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, jpeg.Encode(f, img, nil))
}

func framesOnDisk(t *testing.T, n, width, height int) []string {
	t.Helper()
	dir := t.TempDir()
	var paths []string
	for i := 0; i < n; i++ {
		path := filepath.Join(dir, fmt.Sprintf("frame_%04d.jpg", i))
		writeJPEG(t, path, width, height)
		paths = append(paths, path)
	}
	return paths
}

func TestThumbnailJPEG(t *testing.T) {
	renderer, err := NewRenderer(Options{Width: 40, Quality: 80, TTL: time.Minute}, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer renderer.Close()

	frames := framesOnDisk(t, 7, 160, 90)

	value, cached, err := renderer.Thumbnail("s1", frames, 2)
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, "image/jpeg", value.ContentType)

	cfg, err := jpeg.DecodeConfig(bytes.NewReader(value.Body))
	require.NoError(t, err)
	assert.Equal(t, 40, cfg.Width)
	assert.LessOrEqual(t, cfg.Height, 23)

	// ristretto applies sets asynchronously
	renderer.cache.Wait()

	again, cached, err := renderer.Thumbnail("s1", frames, 2)
	require.NoError(t, err)
	assert.True(t, cached)
	assert.Equal(t, value.Body, again.Body)
}

func TestThumbnailWebp(t *testing.T) {
	renderer, err := NewRenderer(Options{Width: 32, Webp: true, TTL: time.Minute}, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer renderer.Close()

	value, _, err := renderer.Thumbnail("s1", framesOnDisk(t, 1, 64, 64), 0)
	require.NoError(t, err)
	assert.Equal(t, "image/webp", value.ContentType)
	require.Greater(t, len(value.Body), 12)
	assert.Equal(t, "RIFF", string(value.Body[:4]))
	assert.Equal(t, "WEBP", string(value.Body[8:12]))
}

func TestThumbnailSmallFrameKeepsSize(t *testing.T) {
	renderer, err := NewRenderer(Options{Width: 300, TTL: time.Minute}, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer renderer.Close()

	value, _, err := renderer.Thumbnail("s1", framesOnDisk(t, 1, 50, 20), 0)
	require.NoError(t, err)

	cfg, err := jpeg.DecodeConfig(bytes.NewReader(value.Body))
	require.NoError(t, err)
	assert.Equal(t, 50, cfg.Width)
	assert.Equal(t, 20, cfg.Height)
}

func TestThumbnailOutOfRange(t *testing.T) {
	renderer, err := NewRenderer(Options{Width: 40, TTL: time.Minute}, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer renderer.Close()

	frames := framesOnDisk(t, 8, 16, 16)
	for _, index := range []int{-1, 5, 7} {
		_, _, err := renderer.Thumbnail("s1", frames, index)
		assert.ErrorIs(t, err, ErrOutOfRange, "index %d", index)
	}

	_, _, err = renderer.Thumbnail("s1", frames[:2], 3)
	assert.ErrorIs(t, err, ErrOutOfRange)
}
