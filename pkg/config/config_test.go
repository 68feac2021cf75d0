package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetEffectiveUserAgents(t *testing.T) {
	tests := []struct {
		name     string
		cfg      FetchConfig
		expected []string
	}{
		{
			name:     "no rotation uses default",
			cfg:      FetchConfig{},
			expected: []string{DefaultUserAgent},
		},
		{
			name:     "no rotation uses configured agent",
			cfg:      FetchConfig{UserAgent: "custom/1.0", UserAgents: []string{"a", "b"}},
			expected: []string{"custom/1.0"},
		},
		{
			name:     "rotation uses configured pool",
			cfg:      FetchConfig{RotateUserAgent: true, UserAgents: []string{"a", "b"}},
			expected: []string{"a", "b"},
		},
		{
			name:     "rotation without pool uses default pool",
			cfg:      FetchConfig{RotateUserAgent: true},
			expected: DefaultUserAgents,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, GetEffectiveUserAgents(tt.cfg))
		})
	}
}

func TestDefaultFetchConfig(t *testing.T) {
	c := DefaultFetchConfig()

	assert.Equal(t, DefaultMaxConcurrent, c.MaxConcurrent)
	assert.Equal(t, DefaultMaxPerHost, c.MaxPerHost)
	assert.Equal(t, DefaultConnectTimeout, c.ConnectTimeout)
	assert.Equal(t, DefaultTotalTimeout, c.TotalTimeout)
	assert.Equal(t, int64(DefaultMaxContentBytes), c.MaxContentBytes)
	assert.Equal(t, DefaultMaxAttempts, c.MaxAttempts)
	assert.Equal(t, DefaultBackoffMultiplier, c.BackoffMultiplier)
	assert.Equal(t, DefaultAllowedContentTypes, c.AllowedContentTypes)
	assert.Equal(t, DefaultBlockedExtensions, c.BlockedExtensions)
	require.NoError(t, c.Validate())
}

func TestLoad(t *testing.T) {
	content := `
fetch:
  max_concurrent: 10
  max_per_host: 3
  retry_base_delay: 250ms
  blocked_extensions: [".exe"]
  proxy_url: "socks5://127.0.0.1:1080"
search:
  provider: duckduckgo
  exclude_domains: ["pinterest.com"]
cache:
  enabled: true
  ttl: 2h
metrics_addr: ":9090"
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 10, cfg.Fetch.MaxConcurrent)
	assert.Equal(t, 3, cfg.Fetch.MaxPerHost)
	assert.Equal(t, 250*time.Millisecond, cfg.Fetch.RetryBaseDelay)
	assert.Equal(t, []string{".exe"}, cfg.Fetch.BlockedExtensions)
	assert.Equal(t, "socks5://127.0.0.1:1080", cfg.Fetch.ProxyURL)
	assert.Equal(t, []string{"pinterest.com"}, cfg.Search.ExcludeDomains)
	assert.True(t, cfg.Cache.Enabled)
	assert.Equal(t, 2*time.Hour, cfg.Cache.TTL)
	assert.Equal(t, ":9090", cfg.MetricsAddr)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read config")

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("fetch: [unterminated"), 0644))
	_, err = Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse config")
}
