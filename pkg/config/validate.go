package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/Sriram-PR/webfetch/pkg/utils"
)

// Validate checks AppConfig fields and applies sensible defaults.
// Returns collected warnings and any fatal error.
// Modifies receiver in place to apply defaults.
func (c *AppConfig) Validate() (warnings []string, err error) {
	warnings = append(warnings, c.Fetch.applyDefaults()...)

	if err := c.Fetch.Validate(); err != nil {
		return warnings, err
	}
	if c.Fetch.MaxPerHost > c.Fetch.MaxConcurrent {
		warnings = append(warnings, fmt.Sprintf(
			"max_per_host (%d) > max_concurrent (%d); the global ceiling still applies",
			c.Fetch.MaxPerHost, c.Fetch.MaxConcurrent))
	}

	c.validateHTTPClientSettings()
	warnings = append(warnings, c.validateSearch()...)
	warnings = append(warnings, c.validateExtract()...)

	// Cache
	if c.Cache.Enabled {
		if c.Cache.Dir == "" {
			warnings = append(warnings, "cache.dir is empty, defaulting to './webfetch_cache'")
			c.Cache.Dir = "./webfetch_cache"
		}
		if c.Cache.TTL <= 0 {
			c.Cache.TTL = 1 * time.Hour
		}
	}

	return warnings, nil
}

// applyDefaults replaces unset (zero) fetch settings with documented defaults.
// Negative values are left for Validate to reject.
func (c *FetchConfig) applyDefaults() (warnings []string) {
	if c.MaxConcurrent == 0 {
		warnings = append(warnings, fmt.Sprintf("max_concurrent not set, defaulting to %d", DefaultMaxConcurrent))
		c.MaxConcurrent = DefaultMaxConcurrent
	}
	if c.MaxPerHost == 0 {
		warnings = append(warnings, fmt.Sprintf("max_per_host not set, defaulting to %d", DefaultMaxPerHost))
		c.MaxPerHost = DefaultMaxPerHost
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
	if c.TotalTimeout == 0 {
		c.TotalTimeout = DefaultTotalTimeout
	}
	if c.MaxContentBytes == 0 {
		c.MaxContentBytes = DefaultMaxContentBytes
	}
	if c.MaxAttempts == 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.RetryBaseDelay == 0 {
		c.RetryBaseDelay = DefaultRetryBaseDelay
	}
	if c.RetryMaxDelay == 0 {
		c.RetryMaxDelay = DefaultRetryMaxDelay
	}
	if c.BackoffMultiplier == 0 {
		c.BackoffMultiplier = DefaultBackoffMultiplier
	}
	if len(c.AllowedContentTypes) == 0 {
		c.AllowedContentTypes = append([]string(nil), DefaultAllowedContentTypes...)
	}
	if len(c.BlockedExtensions) == 0 {
		c.BlockedExtensions = append([]string(nil), DefaultBlockedExtensions...)
	}
	if c.HostIdleEviction == 0 {
		c.HostIdleEviction = 5 * time.Minute
	}
	return warnings
}

// Validate rejects settings the fetcher cannot run with. It does not apply defaults:
// every limit must already be positive. Called before any fetch starts.
func (c *FetchConfig) Validate() error {
	if c.MaxConcurrent <= 0 {
		return fmt.Errorf("%w: max_concurrent must be > 0 (got %d)", utils.ErrConfigValidation, c.MaxConcurrent)
	}
	if c.MaxPerHost <= 0 {
		return fmt.Errorf("%w: max_per_host must be > 0 (got %d)", utils.ErrConfigValidation, c.MaxPerHost)
	}
	if c.ConnectTimeout <= 0 {
		return fmt.Errorf("%w: connect_timeout must be > 0 (got %v)", utils.ErrConfigValidation, c.ConnectTimeout)
	}
	if c.TotalTimeout <= 0 {
		return fmt.Errorf("%w: total_timeout must be > 0 (got %v)", utils.ErrConfigValidation, c.TotalTimeout)
	}
	if c.MaxContentBytes <= 0 {
		return fmt.Errorf("%w: max_content_bytes must be > 0 (got %d)", utils.ErrConfigValidation, c.MaxContentBytes)
	}
	if c.MaxAttempts <= 0 {
		return fmt.Errorf("%w: max_attempts must be > 0 (got %d)", utils.ErrConfigValidation, c.MaxAttempts)
	}
	if c.RetryBaseDelay < 0 || c.RetryMaxDelay < 0 {
		return fmt.Errorf("%w: retry delays cannot be negative", utils.ErrConfigValidation)
	}
	if c.BackoffMultiplier < 1 {
		return fmt.Errorf("%w: backoff_multiplier must be >= 1 (got %v)", utils.ErrConfigValidation, c.BackoffMultiplier)
	}
	if c.BatchTimeout < 0 {
		return fmt.Errorf("%w: batch_timeout cannot be negative", utils.ErrConfigValidation)
	}
	if c.MinHostDelay < 0 {
		return fmt.Errorf("%w: min_host_delay cannot be negative", utils.ErrConfigValidation)
	}
	if _, err := ParseProxyURL(c.ProxyURL); err != nil {
		return err
	}
	if _, err := utils.CompileRegexPatterns(c.BlockedURLPatterns); err != nil {
		return err
	}
	return nil
}

// ParseProxyURL parses proxy_url. An empty string means no proxy (nil, nil).
func ParseProxyURL(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid proxy_url: %w", utils.ErrConfigValidation, err)
	}
	switch u.Scheme {
	case "http", "https", "socks5", "socks5h":
	default:
		return nil, fmt.Errorf("%w: proxy_url scheme must be http, https or socks5 (got %q)", utils.ErrConfigValidation, u.Scheme)
	}
	if u.Hostname() == "" {
		return nil, fmt.Errorf("%w: proxy_url has no host", utils.ErrConfigValidation)
	}
	return u, nil
}

// validateHTTPClientSettings applies defaults to HTTP client settings.
func (c *AppConfig) validateHTTPClientSettings() {
	h := &c.HTTPClientSettings
	if h.MaxIdleConns <= 0 {
		h.MaxIdleConns = 100
	}
	if h.MaxIdleConnsPerHost <= 0 {
		h.MaxIdleConnsPerHost = c.Fetch.MaxPerHost
	}
	if h.IdleConnTimeout <= 0 {
		h.IdleConnTimeout = 90 * time.Second
	}
	if h.TLSHandshakeTimeout <= 0 {
		h.TLSHandshakeTimeout = c.Fetch.ConnectTimeout
	}
	if h.ExpectContinueTimeout <= 0 {
		h.ExpectContinueTimeout = 1 * time.Second
	}
	if h.DialerKeepAlive <= 0 {
		h.DialerKeepAlive = 30 * time.Second
	}
	if h.MaxRedirects <= 0 {
		h.MaxRedirects = 10
	}
}

func (c *AppConfig) validateSearch() (warnings []string) {
	s := &c.Search
	if s.Provider == "" {
		s.Provider = "duckduckgo"
	}
	if s.MaxResults <= 0 {
		s.MaxResults = 8
	}
	if s.Timeout <= 0 {
		s.Timeout = 10 * time.Second
	}
	if s.MaxResults > 50 {
		warnings = append(warnings, fmt.Sprintf("search.max_results (%d) capped to 50", s.MaxResults))
		s.MaxResults = 50
	}
	return warnings
}

func (c *AppConfig) validateExtract() (warnings []string) {
	e := &c.Extract
	if e.TokenizerEncoding == "" {
		e.TokenizerEncoding = "cl100k_base"
	}
	if e.ChunkSize <= 0 {
		e.ChunkSize = 512
	}
	if e.ChunkOverlap < 0 || e.ChunkOverlap >= e.ChunkSize {
		fallback := min(50, e.ChunkSize/10)
		warnings = append(warnings, fmt.Sprintf(
			"extract.chunk_overlap (%d) must be in [0, chunk_size), defaulting to %d", e.ChunkOverlap, fallback))
		e.ChunkOverlap = fallback
	}
	if e.MaxLinks <= 0 {
		e.MaxLinks = 200
	}
	return warnings
}
