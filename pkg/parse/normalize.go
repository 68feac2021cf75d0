package parse

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// NormalizeURL standardizes a URL for cache keys and de-duplication.
// It lowercases the scheme and host, removes default ports (80 for http, 443 for https),
// removes trailing slashes from paths (unless root "/"), ensures empty path becomes "/",
// drops the fragment, and sorts query parameters. The query itself is kept: two queries
// against the same path are different documents.
// Does not modify the input *url.URL
func NormalizeURL(u *url.URL) string {
	if u == nil {
		return ""
	}
	// Work on a copy
	normalized := *u
	normalized.User = nil

	normalized.Scheme = strings.ToLower(normalized.Scheme)
	normalized.Host = strings.ToLower(normalized.Host)

	host, port, err := net.SplitHostPort(normalized.Host)
	if err == nil {
		if (normalized.Scheme == "http" && port == "80") ||
			(normalized.Scheme == "https" && port == "443") {
			normalized.Host = host
		}
	}

	if normalized.Path == "" {
		normalized.Path = "/"
	} else if len(normalized.Path) > 1 && strings.HasSuffix(normalized.Path, "/") {
		normalized.Path = normalized.Path[:len(normalized.Path)-1]
	}
	normalized.RawPath = ""

	normalized.Fragment = ""
	normalized.RawFragment = ""
	if normalized.RawQuery != "" {
		normalized.RawQuery = normalized.Query().Encode() // Encode sorts by key
	}
	normalized.ForceQuery = false

	return normalized.String()
}

// ParseAndNormalize parses rawURL as a fetchable http(s) URL and returns its
// normalized form (cache key, de-duplication key) along with the parsed URL.
func ParseAndNormalize(rawURL string) (string, *url.URL, error) {
	u, err := ParseFetchURL(rawURL)
	if err != nil {
		return "", nil, err
	}
	return NormalizeURL(u), u, nil
}

// ParseFetchURL parses rawURL and checks that it can be fetched over HTTP(S).
func ParseFetchURL(rawURL string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return nil, err
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
	case "":
		return nil, fmt.Errorf("missing scheme in %q", rawURL)
	default:
		return nil, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Hostname() == "" {
		return nil, fmt.Errorf("missing host in %q", rawURL)
	}
	return u, nil
}

// HostKey returns the lowercased host[:port] used to group requests per origin.
// Default ports are dropped so that http://a.com and http://a.com:80 share a key.
func HostKey(u *url.URL) string {
	host := strings.ToLower(u.Host)
	if h, port, err := net.SplitHostPort(host); err == nil {
		scheme := strings.ToLower(u.Scheme)
		if (scheme == "http" && port == "80") || (scheme == "https" && port == "443") {
			return h
		}
	}
	return host
}
