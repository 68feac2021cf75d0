package utils

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- CategorizeError Tests ---

func TestCategorizeError_NilError(t *testing.T) {
	assert.Equal(t, "None", CategorizeError(nil))
}

func TestCategorizeError_SentinelErrors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{"Proxy", ErrProxy, "Network_Proxy"},
		{"Connection", ErrConnection, "Network_Connection"},
		{"Timeout", ErrTimeout, "Network_Timeout"},
		{"ContentTooLarge", ErrContentTooLarge, "Content_TooLarge"},
		{"UnsupportedContentType", ErrUnsupportedContentType, "Content_UnsupportedType"},
		{"BlockedURL", ErrBlockedURL, "Policy_Blocked"},
		{"ServerHTTPError", ErrServerHTTPError, "HTTP_5xx"},
		{"OtherHTTPError", ErrOtherHTTPError, "HTTP_OtherStatus"},
		{"Parsing", ErrParsing, "Content_Parsing"},
		{"Extraction", ErrExtraction, "Content_Extraction"},
		{"Database", ErrDatabase, "Database_Other"},
		{"RequestCreation", ErrRequestCreation, "Internal_RequestCreation"},
		{"ResponseBodyRead", ErrResponseBodyRead, "Network_BodyRead"},
		{"ConfigValidation", ErrConfigValidation, "Config_Validation"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, CategorizeError(tt.err))
		})
	}
}

func TestCategorizeError_WrappedErrors(t *testing.T) {
	err := fmt.Errorf("fetching page: %w", WrapErrorf(ErrConnection, "dial tcp: refused"))
	assert.Equal(t, "Network_Connection", CategorizeError(err))

	// Proxy failures also carry ErrConnection; the proxy category wins
	err = fmt.Errorf("%w: %w", ErrProxy, ErrConnection)
	assert.Equal(t, "Network_Proxy", CategorizeError(err))
}

func TestCategorizeError_ExhaustedRetries(t *testing.T) {
	tests := []struct {
		name     string
		last     error
		expected string
	}{
		{"server", ErrServerHTTPError, "RetryFailed_HTTPServer"},
		{"timeout", ErrTimeout, "RetryFailed_NetworkTimeout"},
		{"proxy", ErrProxy, "RetryFailed_Proxy"},
		{"connection", ErrConnection, "RetryFailed_Connection"},
		{"other", errors.New("weird"), "RetryFailed_NetworkOther"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := fmt.Errorf("%w: %w", ErrExhaustedRetries, tt.last)
			assert.Equal(t, tt.expected, CategorizeError(err))
		})
	}
}

func TestCategorizeError_ClientHTTPCodes(t *testing.T) {
	tests := []struct {
		status   int
		expected string
	}{
		{404, "HTTP_404"},
		{403, "HTTP_403"},
		{401, "HTTP_401"},
		{410, "HTTP_4xx"},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.status), func(t *testing.T) {
			err := WrapErrorf(ErrClientHTTPError, "status %d from https://example.com", tt.status)
			assert.Equal(t, tt.expected, CategorizeError(err))
		})
	}
}

func TestCategorizeError_ContextErrors(t *testing.T) {
	assert.Equal(t, "System_ContextCanceled", CategorizeError(context.Canceled))
	assert.Equal(t, "System_ContextDeadlineExceeded", CategorizeError(fmt.Errorf("op: %w", context.DeadlineExceeded)))
}

func TestCategorizeError_NetworkStrings(t *testing.T) {
	tests := []struct {
		msg      string
		expected string
	}{
		{"i/o timeout while reading", "Network_TimeoutGeneric"},
		{"dial tcp 127.0.0.1:1: connection refused", "Network_ConnectionRefused"},
		{"lookup nope.invalid: no such host", "Network_DNSLookup"},
		{"read: connection reset by peer", "Network_ConnectionReset"},
		{"x509: certificate signed by unknown authority", "Network_TLS"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			assert.Equal(t, tt.expected, CategorizeError(errors.New(tt.msg)))
		})
	}
}

func TestCategorizeError_Unknown(t *testing.T) {
	assert.Equal(t, "Unknown", CategorizeError(errors.New("something odd")))
}

// --- CompileRegexPatterns Tests ---

func TestCompileRegexPatterns_ValidPatterns(t *testing.T) {
	compiled, err := CompileRegexPatterns([]string{`^https://ads\.`, `tracking`})
	require.NoError(t, err)
	require.Len(t, compiled, 2)
	assert.True(t, compiled[0].MatchString("https://ads.example.com/x"))
	assert.True(t, compiled[1].MatchString("https://example.com/tracking/pixel"))
}

func TestCompileRegexPatterns_EmptyStringsSkipped(t *testing.T) {
	compiled, err := CompileRegexPatterns([]string{"", "a+", ""})
	require.NoError(t, err)
	assert.Len(t, compiled, 1)

	compiled, err = CompileRegexPatterns(nil)
	require.NoError(t, err)
	assert.Empty(t, compiled)
}

func TestCompileRegexPatterns_InvalidPattern(t *testing.T) {
	_, err := CompileRegexPatterns([]string{"ok", "(unclosed"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConfigValidation)
	assert.Contains(t, err.Error(), "#2")
}

func TestCompileRegexPatterns_TrimsWhitespace(t *testing.T) {
	compiled, err := CompileRegexPatterns([]string{"  doubleclick\\.net ", "   "})
	require.NoError(t, err)
	require.Len(t, compiled, 1)
	assert.Equal(t, `doubleclick\.net`, compiled[0].String())
}

func TestMatchesAny(t *testing.T) {
	compiled, err := CompileRegexPatterns([]string{`^https?://ads\.`, `/tracking/`})
	require.NoError(t, err)

	assert.True(t, MatchesAny(compiled, "https://ads.example.com/banner"))
	assert.True(t, MatchesAny(compiled, "https://example.com/tracking/pixel.gif"))
	assert.False(t, MatchesAny(compiled, "https://example.com/article"))
	assert.False(t, MatchesAny(nil, "https://ads.example.com"))
}

// --- Hash Tests ---

func TestCalculateStringSHA256(t *testing.T) {
	// Known vectors
	assert.Equal(t, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", CalculateStringSHA256(""))
	assert.Equal(t, "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824", CalculateStringSHA256("hello"))
	assert.Equal(t, CalculateStringSHA256("hello"), CalculateBytesSHA256([]byte("hello")))
}

// --- WrapErrorf Tests ---

func TestWrapErrorf_WrapsSentinel(t *testing.T) {
	err := WrapErrorf(ErrTimeout, "after %d attempts", 3)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Equal(t, "timeout: after 3 attempts", err.Error())
}
