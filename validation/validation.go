package validation

import (
	"fmt"
	"mime/multipart"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"frame-extractor/config"
	"frame-extractor/mime"
)

// UploadContext is a validated extraction request.
type UploadContext struct {
	File      *multipart.FileHeader
	Extension string // lowercase, with dot
	MimeType  string

	FrameSkip int
	Quality   int
	MaxWidth  int
	Archive   bool
}

func (c *UploadContext) String() string {
	return fmt.Sprintf("ext=%s;frameSkip=%d;quality=%d;maxWidth=%d;archive=%t", c.Extension, c.FrameSkip, c.Quality, c.MaxWidth, c.Archive)
}

// ProcessUpload validates the multipart extraction form.
func ProcessUpload(c *fiber.Ctx, config *config.Config) (ok bool, status int, err error, params *UploadContext) {
	file, err := c.FormFile("video")
	if err != nil {
		return false, fiber.StatusBadRequest, fmt.Errorf("video file is required"), nil
	}

	ext, mimeType, err := ValidateExtension(file.Filename)
	if err != nil {
		return false, fiber.StatusBadRequest, err, nil
	}

	if err := ValidateFileSize(file.Size, config.MaxVideoSize); err != nil {
		return false, fiber.StatusRequestEntityTooLarge, err, nil
	}

	frameSkip, err := formInt(c, "frame_skip", 1)
	if err != nil {
		return false, fiber.StatusBadRequest, err, nil
	}
	if frameSkip < 1 {
		return false, fiber.StatusBadRequest, fmt.Errorf("frame_skip must be at least 1"), nil
	}

	quality, err := formInt(c, "quality", config.JpegQuality)
	if err != nil {
		return false, fiber.StatusBadRequest, err, nil
	}
	if quality < 1 || quality > 100 {
		return false, fiber.StatusBadRequest, fmt.Errorf("quality must be between 1 and 100"), nil
	}

	maxWidth, err := formInt(c, "max_width", 0)
	if err != nil {
		return false, fiber.StatusBadRequest, err, nil
	}
	if maxWidth < 0 {
		return false, fiber.StatusBadRequest, fmt.Errorf("max_width must not be negative"), nil
	}

	archive, err := formBool(c, "archive", true)
	if err != nil {
		return false, fiber.StatusBadRequest, err, nil
	}

	return true, fiber.StatusOK, nil, &UploadContext{
		File:      file,
		Extension: ext,
		MimeType:  mimeType,
		FrameSkip: frameSkip,
		Quality:   quality,
		MaxWidth:  maxWidth,
		Archive:   archive,
	}
}

// ValidateExtension accepts mp4, avi, mov and mkv in any case.
func ValidateExtension(filename string) (ext string, mimeType string, err error) {
	ext = strings.ToLower(filepath.Ext(filename))
	mimeType, ok := mime.VideoMime(ext)
	if !ok {
		return "", "", fmt.Errorf("unsupported video format %q, expected one of %s", ext, strings.Join(mime.VideoExtensions(), ", "))
	}
	return ext, mimeType, nil
}

// ValidateFileSize checks if the file size is within acceptable limits
func ValidateFileSize(size int64, maxSizeMB int) error {
	if maxSizeMB <= 0 {
		return nil // No limit set
	}

	maxSizeBytes := int64(maxSizeMB) * 1024 * 1024
	if size > maxSizeBytes {
		return fmt.Errorf("file size %d bytes exceeds maximum allowed size of %d MB", size, maxSizeMB)
	}

	return nil
}

func formInt(c *fiber.Ctx, key string, defaultValue int) (int, error) {
	value := strings.TrimSpace(c.FormValue(key))
	if value == "" {
		return defaultValue, nil
	}

	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer", key)
	}
	return n, nil
}

func formBool(c *fiber.Ctx, key string, defaultValue bool) (bool, error) {
	value := strings.TrimSpace(c.FormValue(key))
	if value == "" {
		return defaultValue, nil
	}
	if value == "on" {
		return true, nil
	}

	b, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("%s must be a boolean", key)
	}
	return b, nil
}
