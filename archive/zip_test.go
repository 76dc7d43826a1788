package archive

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFrames(t *testing.T, dir string, n int) map[string][]byte {
	t.Helper()
	contents := make(map[string][]byte, n)
	for i := n - 1; i >= 0; i-- {
		name := fmt.Sprintf("frame_%04d.jpg", i)
		data := []byte(fmt.Sprintf("jpeg bytes of frame %d", i))
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), data, 0o644))
		contents[name] = data
	}
	return contents
}

func TestBuild(t *testing.T) {
	dir := t.TempDir()
	want := writeFrames(t, dir, 12)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "video.mp4"), []byte("x"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested"), 0o755))

	out := filepath.Join(t.TempDir(), FileName)
	n, err := Build(context.Background(), dir, out)
	require.NoError(t, err)
	assert.Equal(t, 12, n)

	reader, err := zip.OpenReader(out)
	require.NoError(t, err)
	defer reader.Close()

	require.Len(t, reader.File, 12)
	for i, f := range reader.File {
		assert.Equal(t, fmt.Sprintf("frame_%04d.jpg", i), f.Name)

		rc, err := f.Open()
		require.NoError(t, err)
		got, err := io.ReadAll(rc)
		require.NoError(t, rc.Close())
		require.NoError(t, err)

		assert.Equal(t, want[f.Name], got)
	}
}

func TestBuildEmptyDirectory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))

	out := filepath.Join(t.TempDir(), FileName)
	_, err := Build(context.Background(), dir, out)
	require.ErrorIs(t, err, ErrEmptyDirectory)

	_, statErr := os.Stat(out)
	assert.True(t, os.IsNotExist(statErr))
}

func TestBuildMissingDirectory(t *testing.T) {
	out := filepath.Join(t.TempDir(), FileName)
	_, err := Build(context.Background(), filepath.Join(t.TempDir(), "nope"), out)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrEmptyDirectory)

	_, statErr := os.Stat(out)
	assert.True(t, os.IsNotExist(statErr))
}

func TestBuildCancelledRemovesPartialArchive(t *testing.T) {
	dir := t.TempDir()
	writeFrames(t, dir, 3)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out := filepath.Join(t.TempDir(), FileName)
	_, err := Build(ctx, dir, out)
	require.ErrorIs(t, err, context.Canceled)

	_, statErr := os.Stat(out)
	assert.True(t, os.IsNotExist(statErr))
}

func TestBuildFilesUsesOnlyGivenFiles(t *testing.T) {
	dir := t.TempDir()
	want := writeFrames(t, dir, 5)

	files := []string{
		filepath.Join(dir, "frame_0000.jpg"),
		filepath.Join(dir, "frame_0001.jpg"),
	}
	out := filepath.Join(t.TempDir(), FileName)

	n, err := BuildFiles(context.Background(), files, out)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	reader, err := zip.OpenReader(out)
	require.NoError(t, err)
	defer reader.Close()

	require.Len(t, reader.File, 2)
	for i, f := range reader.File {
		assert.Equal(t, filepath.Base(files[i]), f.Name)

		rc, err := f.Open()
		require.NoError(t, err)
		got, err := io.ReadAll(rc)
		require.NoError(t, rc.Close())
		require.NoError(t, err)
		assert.Equal(t, want[f.Name], got)
	}
}

func TestBuildFilesEmpty(t *testing.T) {
	out := filepath.Join(t.TempDir(), FileName)

	_, err := BuildFiles(context.Background(), nil, out)
	require.ErrorIs(t, err, ErrEmptyDirectory)
	assert.NoFileExists(t, out)
}
