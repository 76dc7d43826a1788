package mime

import "strings"

// videoMimeTypes are the accepted upload containers, keyed by lowercase extension
var videoMimeTypes = map[string]string{
	".mp4": "video/mp4",
	".avi": "video/x-msvideo",
	".mov": "video/quicktime",
	".mkv": "video/x-matroska",
}

const (
	JPEG = "image/jpeg"
	WEBP = "image/webp"
	ZIP  = "application/zip"
)

// VideoMime returns the MIME type for an upload extension such as ".MP4".
func VideoMime(ext string) (string, bool) {
	mimeType, ok := videoMimeTypes[strings.ToLower(ext)]
	return mimeType, ok
}

func IsVideoMime(mimeType string) bool {
	for _, videoMimeType := range videoMimeTypes {
		if mimeType == videoMimeType {
			return true
		}
	}

	return false
}

// VideoExtensions lists the accepted extensions without the dot, for the upload form.
func VideoExtensions() []string {
	return []string{"mp4", "avi", "mov", "mkv"}
}
