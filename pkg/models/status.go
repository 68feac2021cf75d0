package models

// OutcomeStatus is the terminal state recorded for one URL of a batch
type OutcomeStatus string

const (
	OutcomeUnset   OutcomeStatus = ""        // Zero value = not yet recorded
	OutcomeSuccess OutcomeStatus = "success" // Content fetched and accepted
	OutcomeSkipped OutcomeStatus = "skipped" // Filtered by the classifier
	OutcomeFailed  OutcomeStatus = "failed"  // Fetch failed (see ErrorKind)
)

// String implements fmt.Stringer for logging
func (s OutcomeStatus) String() string {
	if s == "" {
		return "unset"
	}
	return string(s)
}

// IsValid returns true if the status is a recorded terminal value
func (s OutcomeStatus) IsValid() bool {
	switch s {
	case OutcomeSuccess, OutcomeSkipped, OutcomeFailed:
		return true
	}
	return false
}

// ErrorKind classifies why a fetch failed
type ErrorKind string

const (
	ErrorKindNone                   ErrorKind = ""
	ErrorKindConnection             ErrorKind = "connection"               // refused, reset, DNS
	ErrorKindTimeout                ErrorKind = "timeout"                  // connect/read timeout or batch deadline
	ErrorKindServerError            ErrorKind = "server_error"             // 5xx and 429
	ErrorKindClientError            ErrorKind = "client_error"             // 4xx and other non-2xx
	ErrorKindContentTooLarge        ErrorKind = "content_too_large"        // byte cap exceeded mid-stream
	ErrorKindUnsupportedContentType ErrorKind = "unsupported_content_type" // allow-list rejection
	ErrorKindBlockedURL             ErrorKind = "blocked_url"
	ErrorKindExhaustedRetries       ErrorKind = "exhausted_retries"
	ErrorKindProxy                  ErrorKind = "proxy"
	ErrorKindConfiguration          ErrorKind = "configuration"
	ErrorKindInternal               ErrorKind = "internal"
)

// String implements fmt.Stringer for logging
func (k ErrorKind) String() string {
	if k == "" {
		return "none"
	}
	return string(k)
}

// SkipReason explains why the classifier declined a URL
type SkipReason string

const (
	SkipReasonNone                   SkipReason = ""
	SkipReasonBlockedExtension       SkipReason = "blocked_extension"
	SkipReasonBlockedURL             SkipReason = "blocked_url"
	SkipReasonUnsupportedContentType SkipReason = "unsupported_content_type"
)

// String implements fmt.Stringer for logging
func (r SkipReason) String() string {
	if r == "" {
		return "none"
	}
	return string(r)
}

// ContentKind is the closed set of content families the extractor understands.
// Resolved once by the classifier; downstream code switches on it.
type ContentKind string

const (
	ContentKindUnsupported ContentKind = "unsupported"
	ContentKindHTML        ContentKind = "html"
	ContentKindPDF         ContentKind = "pdf"
	ContentKindPlainText   ContentKind = "plain_text"
)

// String implements fmt.Stringer for logging
func (k ContentKind) String() string {
	if k == "" {
		return string(ContentKindUnsupported)
	}
	return string(k)
}
