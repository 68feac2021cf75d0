package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Sriram-PR/webfetch/pkg/models"
	"github.com/Sriram-PR/webfetch/pkg/utils"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestClassifyError(t *testing.T) {
	urlErr := func(inner error) error {
		return &url.Error{Op: "Get", URL: "http://a.test/", Err: inner}
	}

	tests := []struct {
		name     string
		err      error
		kind     models.ErrorKind
		sentinel error
	}{
		{"deadline", urlErr(context.DeadlineExceeded), models.ErrorKindTimeout, utils.ErrTimeout},
		{"cancelled", context.Canceled, models.ErrorKindTimeout, utils.ErrTimeout},
		{"net timeout", urlErr(&net.OpError{Op: "read", Net: "tcp", Err: timeoutErr{}}), models.ErrorKindTimeout, utils.ErrTimeout},
		{"refused", urlErr(&net.OpError{Op: "dial", Net: "tcp", Err: syscall.ECONNREFUSED}), models.ErrorKindConnection, utils.ErrConnection},
		{"reset", fmt.Errorf("read: %w", syscall.ECONNRESET), models.ErrorKindConnection, utils.ErrConnection},
		{"unexpected eof", io.ErrUnexpectedEOF, models.ErrorKindConnection, utils.ErrConnection},
		{"dns", urlErr(&net.DNSError{Err: "no such host", Name: "nope.invalid", IsNotFound: true}), models.ErrorKindConnection, utils.ErrConnection},
		{"proxy", urlErr(&net.OpError{Op: "proxyconnect", Net: "tcp", Err: syscall.ECONNREFUSED}), models.ErrorKindConnection, utils.ErrProxy},
		{"too many redirects", urlErr(errors.New("stopped after 10 redirects")), models.ErrorKindClientError, utils.ErrClientHTTPError},
		{"too large", utils.WrapErrorf(utils.ErrContentTooLarge, "x"), models.ErrorKindContentTooLarge, utils.ErrContentTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kind, wrapped := ClassifyError(tt.err)
			assert.Equal(t, tt.kind, kind)
			assert.ErrorIs(t, wrapped, tt.sentinel)
		})
	}
}

func TestClassifyError_NilAndUnknown(t *testing.T) {
	kind, err := ClassifyError(nil)
	assert.Equal(t, models.ErrorKindNone, kind)
	assert.NoError(t, err)

	odd := errors.New("something odd")
	kind, err = ClassifyError(odd)
	assert.Equal(t, models.ErrorKindInternal, kind)
	assert.Same(t, odd, err)
}

func TestStatusErrorKind(t *testing.T) {
	tests := []struct {
		code     int
		kind     models.ErrorKind
		sentinel error
	}{
		{500, models.ErrorKindServerError, utils.ErrServerHTTPError},
		{503, models.ErrorKindServerError, utils.ErrServerHTTPError},
		{429, models.ErrorKindServerError, utils.ErrServerHTTPError},
		{404, models.ErrorKindClientError, utils.ErrClientHTTPError},
		{401, models.ErrorKindClientError, utils.ErrClientHTTPError},
		{304, models.ErrorKindClientError, utils.ErrOtherHTTPError},
	}
	for _, tt := range tests {
		kind, err := statusErrorKind(tt.code, fmt.Sprintf("%d X", tt.code))
		assert.Equal(t, tt.kind, kind, "status %d", tt.code)
		assert.ErrorIs(t, err, tt.sentinel, "status %d", tt.code)
	}
}
