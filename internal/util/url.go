// url.go - URL trimming for log fields: request URLs often carry tokens in
// their query string, so only origin and path are logged.
package util

import (
	"net/url"
	"strings"
)

// LogURL reduces rawURL to scheme://host/path. Query and fragment are
// dropped. Relative URLs keep their path only. Unparseable input yields
// an empty string rather than the raw text.
func LogURL(rawURL string) string {
	if strings.HasPrefix(rawURL, "data:") {
		return "data:"
	}
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return ""
	}
	path := parsed.EscapedPath()
	if origin := Origin(rawURL); origin != "" {
		if path == "" {
			path = "/"
		}
		return origin + path
	}
	return path
}

// Origin extracts scheme://host[:port]. blob: URLs resolve to their nested
// origin; data: URLs and anything without a host yield "".
func Origin(rawURL string) string {
	if strings.HasPrefix(rawURL, "data:") {
		return ""
	}
	rawURL = strings.TrimPrefix(strings.TrimSpace(rawURL), "blob:")

	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return ""
	}
	return parsed.Scheme + "://" + parsed.Host
}
