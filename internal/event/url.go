// url.go — URL sanitation for segment context.
package event

import (
	"net/url"
	"strings"
)

// SanitizeURL normalizes a URL before it enters segment context.
// Userinfo and fragments are stripped, data: URLs are dropped entirely,
// and blob: URLs reduce to their nested origin.
// Returns empty string when nothing useful remains.
func SanitizeURL(raw string) string {
	if raw == "" || strings.HasPrefix(raw, "data:") {
		return ""
	}

	// blob:https://example.com/uuid -> https://example.com
	if nested, ok := strings.CutPrefix(raw, "blob:"); ok {
		parsed, err := url.Parse(nested)
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			return ""
		}
		return parsed.Scheme + "://" + parsed.Host
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		// Unparseable URLs are kept as-is: context is diagnostic, not strict.
		return raw
	}
	parsed.User = nil
	parsed.Fragment = ""
	return parsed.String()
}
