package crawler

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrUnsupportedURL is returned for URLs that are not absolute http(s) URLs.
var ErrUnsupportedURL = errors.New("url must be absolute http or https")

// NormalizeURL standardizes a URL so the frontier treats equivalent spellings as one key.
// It lowercases the scheme and host, removes default ports and fragments, and sorts
// query parameters. Only absolute http and https URLs are accepted.
func NormalizeURL(rawURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}

	u.Scheme = strings.ToLower(u.Scheme)
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedURL, rawURL)
	}
	u.Host = strings.ToLower(u.Host)
	if u.Host == "" {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedURL, rawURL)
	}

	if u.Scheme == "http" {
		u.Host = strings.TrimSuffix(u.Host, ":80")
	}
	if u.Scheme == "https" {
		u.Host = strings.TrimSuffix(u.Host, ":443")
	}

	u.Fragment = ""
	u.RawFragment = ""
	if u.RawQuery != "" {
		u.RawQuery = u.Query().Encode()
	}

	return u.String(), nil
}

// HostOf returns the lower-cased host of rawURL, or "" when it cannot be parsed.
func HostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}
