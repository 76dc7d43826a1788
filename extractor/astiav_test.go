package extractor_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"frame-extractor/extractor"
)

func TestAstiavOpenerRejectsBrokenFiles(t *testing.T) {
	dir := t.TempDir()

	empty := filepath.Join(dir, "video.mp4")
	require.NoError(t, os.WriteFile(empty, nil, 0o644))

	garbage := filepath.Join(dir, "garbage.mkv")
	require.NoError(t, os.WriteFile(garbage, []byte("definitely not matroska"), 0o644))

	for _, path := range []string{empty, garbage, filepath.Join(dir, "missing.avi")} {
		t.Run(filepath.Base(path), func(t *testing.T) {
			src, err := extractor.AstiavOpener{}.Open(path)
			require.ErrorIs(t, err, extractor.ErrOpenSource)
			assert.Nil(t, src)
		})
	}
}

func TestExtractWithAstiavLeavesNoFrames(t *testing.T) {
	video := filepath.Join(t.TempDir(), "video.mp4")
	require.NoError(t, os.WriteFile(video, nil, 0o644))
	out := filepath.Join(t.TempDir(), "frames")

	ex := extractor.New(extractor.AstiavOpener{}, zaptest.NewLogger(t))
	result, err := ex.Extract(context.Background(), video, out, extractor.Options{FrameSkip: 1})
	require.ErrorIs(t, err, extractor.ErrOpenSource)
	assert.Nil(t, result)

	_, statErr := os.Stat(out)
	assert.True(t, os.IsNotExist(statErr))
}
