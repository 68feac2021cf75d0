package utils

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// --- Sentinel Errors for Categorization ---
var (
	ErrConnection             = errors.New("connection error")                  // refused, reset, DNS failure
	ErrTimeout                = errors.New("timeout")                           // connect, read or batch deadline
	ErrContentTooLarge        = errors.New("content exceeds size cap")          // streaming cap hit
	ErrUnsupportedContentType = errors.New("unsupported content type")          // allow-list rejection
	ErrBlockedURL             = errors.New("URL blocked by pattern or extension")
	ErrExhaustedRetries       = errors.New("request failed after all attempts") // Wraps the last underlying error
	ErrProxy                  = errors.New("proxy error")
	ErrConfigValidation       = errors.New("configuration validation error")
	ErrClientHTTPError        = errors.New("client HTTP error (4xx)")    // Wraps original status
	ErrServerHTTPError        = errors.New("server HTTP error (5xx)")    // Wraps original status
	ErrOtherHTTPError         = errors.New("other HTTP error (non-2xx)") // Wraps original status
	ErrRequestCreation        = errors.New("failed to create HTTP request")
	ErrResponseBodyRead       = errors.New("failed to read response body")
	ErrParsing                = errors.New("parsing error")  // Wraps specific parsing error (HTML, URL, JSON)
	ErrDatabase               = errors.New("database error") // Wraps badger errors
	ErrExtraction             = errors.New("content extraction error")
)

// WrapErrorf wraps a sentinel with a formatted message so errors.Is keeps working.
func WrapErrorf(sentinel error, format string, args ...any) error {
	return fmt.Errorf("%w: %s", sentinel, fmt.Sprintf(format, args...))
}

// CategorizeError maps an error to a predefined category string for logging/metrics.
func CategorizeError(err error) string {
	if err == nil {
		return "None"
	}

	// Check against sentinel errors first
	switch {
	case errors.Is(err, ErrExhaustedRetries):
		// The last attempt's error is wrapped alongside the sentinel
		switch {
		case errors.Is(err, ErrServerHTTPError):
			return "RetryFailed_HTTPServer"
		case errors.Is(err, ErrTimeout):
			return "RetryFailed_NetworkTimeout"
		case errors.Is(err, ErrProxy):
			return "RetryFailed_Proxy"
		case errors.Is(err, ErrConnection):
			return "RetryFailed_Connection"
		}
		return "RetryFailed_NetworkOther"
	case errors.Is(err, ErrProxy):
		return "Network_Proxy"
	case errors.Is(err, ErrConnection):
		return "Network_Connection"
	case errors.Is(err, ErrTimeout):
		return "Network_Timeout"
	case errors.Is(err, ErrContentTooLarge):
		return "Content_TooLarge"
	case errors.Is(err, ErrUnsupportedContentType):
		return "Content_UnsupportedType"
	case errors.Is(err, ErrBlockedURL):
		return "Policy_Blocked"
	case errors.Is(err, ErrClientHTTPError):
		errMsg := err.Error()
		if strings.Contains(errMsg, " 404 ") {
			return "HTTP_404"
		}
		if strings.Contains(errMsg, " 403 ") {
			return "HTTP_403"
		}
		if strings.Contains(errMsg, " 401 ") {
			return "HTTP_401"
		}
		return "HTTP_4xx"
	case errors.Is(err, ErrServerHTTPError):
		return "HTTP_5xx"
	case errors.Is(err, ErrOtherHTTPError):
		return "HTTP_OtherStatus"
	case errors.Is(err, ErrParsing):
		return "Content_Parsing"
	case errors.Is(err, ErrExtraction):
		return "Content_Extraction"
	case errors.Is(err, ErrDatabase):
		return "Database_Other"
	case errors.Is(err, ErrRequestCreation):
		return "Internal_RequestCreation"
	case errors.Is(err, ErrResponseBodyRead):
		return "Network_BodyRead"
	case errors.Is(err, ErrConfigValidation):
		return "Config_Validation"
	}

	// --- Fallback checks for common underlying error types/strings ---
	if errors.Is(err, context.Canceled) {
		return "System_ContextCanceled"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "System_ContextDeadlineExceeded"
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "Network_Timeout"
	}
	lowerErrMsg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(lowerErrMsg, "timeout"):
		return "Network_TimeoutGeneric"
	case strings.Contains(lowerErrMsg, "connection refused"):
		return "Network_ConnectionRefused"
	case strings.Contains(lowerErrMsg, "no such host"):
		return "Network_DNSLookup"
	case strings.Contains(lowerErrMsg, "reset by peer"):
		return "Network_ConnectionReset"
	case strings.Contains(lowerErrMsg, "tls") || strings.Contains(lowerErrMsg, "certificate"):
		return "Network_TLS"
	}

	return "Unknown"
}
