package preview

import (
	"strconv"
	"strings"
)

type CacheValue struct {
	Body        []byte
	ContentType string
}

func cacheKey(sessionID string, index, width int, webp bool) string {
	var builder strings.Builder
	builder.WriteString(sessionID)
	builder.WriteString(";index=")
	builder.WriteString(strconv.Itoa(index))
	builder.WriteString(";width=")
	builder.WriteString(strconv.Itoa(width))
	builder.WriteString(";webp=")
	builder.WriteString(strconv.FormatBool(webp))
	return builder.String()
}
