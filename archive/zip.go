package archive

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// FileName is the name the archive is offered under.
const FileName = "extracted_frames.zip"

var ErrEmptyDirectory = errors.New("no frames to archive")

// Build packs every .jpg file of dir into a ZIP at outputPath, in lexicographic order, flat.
// On failure the partial archive is removed.
func Build(ctx context.Context, dir, outputPath string) (entries int, err error) {
	files, err := listFrames(dir)
	if err != nil {
		return 0, err
	}
	return BuildFiles(ctx, files, outputPath)
}

// BuildFiles packs exactly the given files, in the given order, into a flat ZIP at outputPath.
// On failure the partial archive is removed.
func BuildFiles(ctx context.Context, files []string, outputPath string) (entries int, err error) {
	if len(files) == 0 {
		return 0, ErrEmptyDirectory
	}

	zipFile, err := os.Create(outputPath)
	if err != nil {
		return 0, fmt.Errorf("create zip file: %w", err)
	}
	defer func() {
		if err != nil {
			_ = os.Remove(outputPath)
		}
	}()

	zipWriter := zip.NewWriter(zipFile)

	for _, fp := range files {
		if err := ctx.Err(); err != nil {
			_ = zipWriter.Close()
			_ = zipFile.Close()
			return 0, err
		}

		if err := addFileToZip(zipWriter, fp); err != nil {
			_ = zipWriter.Close()
			_ = zipFile.Close()
			return 0, fmt.Errorf("add %s to zip: %w", filepath.Base(fp), err)
		}
	}

	if err := zipWriter.Close(); err != nil {
		_ = zipFile.Close()
		return 0, fmt.Errorf("finalize zip: %w", err)
	}
	if err := zipFile.Close(); err != nil {
		return 0, fmt.Errorf("close zip file: %w", err)
	}

	return len(files), nil
}

func listFrames(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read frames directory: %w", err)
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), ".jpg") {
			continue
		}
		files = append(files, filepath.Join(dir, entry.Name()))
	}

	// ReadDir already sorts by name, zero padded names make that frame order
	sort.Strings(files)

	return files, nil
}

func addFileToZip(zw *zip.Writer, filename string) error {
	file, err := os.Open(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return err
	}

	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return err
	}

	header.Name = filepath.Base(filename)
	header.Method = zip.Deflate

	writer, err := zw.CreateHeader(header)
	if err != nil {
		return err
	}

	_, err = io.Copy(writer, file)
	return err
}
