package validation

import (
	"net/url"
	"strings"

	"github.com/IGLOU-EU/go-wildcard/v2"
	"go.uber.org/zap"
)

// ValidateOrigin reports whether a CORS Origin header matches the allowed hostnames.
// Entries may use wildcards such as "*.example.com". An empty list allows nothing.
func ValidateOrigin(logger *zap.Logger, origin string, allowed []string) bool {
	if len(allowed) == 0 {
		return false
	}

	parsedUrl, err := url.Parse(origin)
	if err != nil {
		return false
	}

	if parsedUrl.Scheme != "http" && parsedUrl.Scheme != "https" {
		return false
	}

	hostname := parsedUrl.Hostname()
	if hostname == "" {
		return false
	}

	// Early return for exact matches
	for _, entry := range allowed {
		if entry == hostname {
			logger.Debug("origin matched", zap.String("origin", entry), zap.String("hostname", hostname))
			return true
		}
	}

	for _, entry := range allowed {
		if strings.Contains(entry, "*") && wildcard.Match(entry, hostname) {
			logger.Debug("origin matched", zap.String("origin", entry), zap.String("hostname", hostname))
			return true
		}
	}

	return false
}
