// Package safeurl guards playlist source/stream URLs against schemes
// that don't make sense for a network-fetched M3U (file://, ftp://,
// javascript:, and friends) before they ever reach an HTTP client.
package safeurl

import "net/url"

var allowedSchemes = map[string]bool{
	"http":  true,
	"https": true,
}

// IsHTTPOrHTTPS reports whether rawURL parses cleanly and uses the
// http or https scheme. Everything else — unparseable input, relative
// URLs with no scheme, file/ftp/data/javascript — is rejected.
func IsHTTPOrHTTPS(rawURL string) bool {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return allowedSchemes[parsed.Scheme]
}
