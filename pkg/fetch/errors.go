package fetch

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"strings"
	"syscall"

	"github.com/Sriram-PR/webfetch/pkg/models"
	"github.com/Sriram-PR/webfetch/pkg/utils"
)

// ClassifyError maps a transport-level error from http.Client.Do or a body read to an
// ErrorKind, and wraps it with the matching sentinel. Proxy failures are reported as
// connection errors so that an unreachable proxy looks the same for every URL.
func ClassifyError(err error) (models.ErrorKind, error) {
	if err == nil {
		return models.ErrorKindNone, nil
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return models.ErrorKindTimeout, fmt.Errorf("%w: %w", utils.ErrTimeout, err)
	case errors.Is(err, context.Canceled):
		return models.ErrorKindTimeout, fmt.Errorf("%w: cancelled: %w", utils.ErrTimeout, err)
	case errors.Is(err, utils.ErrContentTooLarge):
		return models.ErrorKindContentTooLarge, err
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "proxyconnect" {
		return models.ErrorKindConnection, fmt.Errorf("%w: %w: %w", utils.ErrConnection, utils.ErrProxy, err)
	}
	if strings.Contains(err.Error(), "proxyconnect") || strings.Contains(err.Error(), "socks connect") {
		return models.ErrorKindConnection, fmt.Errorf("%w: %w: %w", utils.ErrConnection, utils.ErrProxy, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return models.ErrorKindTimeout, fmt.Errorf("%w: %w", utils.ErrTimeout, err)
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		if dnsErr.IsTimeout {
			return models.ErrorKindTimeout, fmt.Errorf("%w: dns: %w", utils.ErrTimeout, err)
		}
		return models.ErrorKindConnection, fmt.Errorf("%w: dns: %w", utils.ErrConnection, err)
	}

	// Certificate problems do not go away on retry
	var certErr *tls.CertificateVerificationError
	var unknownAuthErr x509.UnknownAuthorityError
	var hostnameErr x509.HostnameError
	if errors.As(err, &certErr) || errors.As(err, &unknownAuthErr) || errors.As(err, &hostnameErr) {
		return models.ErrorKindClientError, fmt.Errorf("%w: tls: %w", utils.ErrClientHTTPError, err)
	}

	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return models.ErrorKindConnection, fmt.Errorf("%w: %w", utils.ErrConnection, err)
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		if strings.Contains(urlErr.Err.Error(), "redirects") {
			return models.ErrorKindClientError, fmt.Errorf("%w: %w", utils.ErrClientHTTPError, err)
		}
		return models.ErrorKindConnection, fmt.Errorf("%w: %w", utils.ErrConnection, err)
	}
	if opErr != nil {
		return models.ErrorKindConnection, fmt.Errorf("%w: %w", utils.ErrConnection, err)
	}

	return models.ErrorKindInternal, err
}

// statusErrorKind maps a non-2xx HTTP status to an ErrorKind. 429 is treated as a
// server-side condition so it is retried with backoff.
func statusErrorKind(statusCode int, status string) (models.ErrorKind, error) {
	switch {
	case statusCode >= 500 || statusCode == 429:
		return models.ErrorKindServerError, fmt.Errorf("%w: status %d %s", utils.ErrServerHTTPError, statusCode, status)
	case statusCode >= 400:
		return models.ErrorKindClientError, fmt.Errorf("%w: status %d %s", utils.ErrClientHTTPError, statusCode, status)
	default:
		return models.ErrorKindClientError, fmt.Errorf("%w: status %d %s", utils.ErrOtherHTTPError, statusCode, status)
	}
}
