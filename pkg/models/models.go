package models

import "time"

// FetchRequest represents one input URL of a batch.
// Index fixes its position in the final result list.
type FetchRequest struct {
	Index           int
	URL             string
	ContentTypeHint string // Optional caller hint, e.g. "application/pdf"
	Attempt         int    // Incremented by the worker before each attempt
}

// Chunk is a token-bounded slice of extracted text
type Chunk struct {
	Content          string   `json:"content"`
	HeadingHierarchy []string `json:"heading_hierarchy,omitempty"`
	TokenCount       int      `json:"token_count"`
}

// ExtractedContent is what the extractor produces for an accepted response
type ExtractedContent struct {
	Title      string   `json:"title"`
	Text       string   `json:"text"`
	Links      []string `json:"links,omitempty"`
	Headings   []string `json:"headings,omitempty"`
	TokenCount int      `json:"token_count"` // -1 when no tokenizer is available
	Chunks     []Chunk  `json:"chunks,omitempty"`
}

// FetchOutcome is the terminal result recorded for one URL.
// Build it with Success, Skipped or Failed; it is not mutated after recording.
type FetchOutcome struct {
	Status      OutcomeStatus     `json:"status"`
	URL         string            `json:"url"`
	FinalURL    string            `json:"final_url,omitempty"`    // After redirects (success only)
	StatusCode  int               `json:"status_code,omitempty"`  // Last HTTP status seen, if any
	ContentType string            `json:"content_type,omitempty"` // Declared media type (success only)
	Kind        ContentKind       `json:"kind,omitempty"`
	Content     []byte            `json:"-"`
	ByteSize    int64             `json:"byte_size,omitempty"`
	ContentHash string            `json:"content_hash,omitempty"` // SHA-256 of Content (success only)
	Elapsed     time.Duration     `json:"elapsed"`
	SkipReason  SkipReason        `json:"skip_reason,omitempty"`
	ErrorKind   ErrorKind         `json:"error_kind,omitempty"`
	Attempts    int               `json:"attempts"`
	Err         string            `json:"error,omitempty"` // Human-readable detail of the final error
	Extracted   *ExtractedContent `json:"extracted,omitempty"`
	FromCache   bool              `json:"from_cache,omitempty"`
}

// Success builds a successful outcome
func Success(url string, content []byte, contentType string, kind ContentKind, elapsed time.Duration, attempts int) FetchOutcome {
	return FetchOutcome{
		Status:      OutcomeSuccess,
		URL:         url,
		Content:     content,
		ContentType: contentType,
		Kind:        kind,
		ByteSize:    int64(len(content)),
		Elapsed:     elapsed,
		Attempts:    attempts,
	}
}

// Skipped builds a skip outcome
func Skipped(url string, reason SkipReason, elapsed time.Duration, attempts int) FetchOutcome {
	return FetchOutcome{
		Status:     OutcomeSkipped,
		URL:        url,
		SkipReason: reason,
		Elapsed:    elapsed,
		Attempts:   attempts,
	}
}

// Failed builds a failure outcome; err may be nil
func Failed(url string, kind ErrorKind, attempts int, elapsed time.Duration, err error) FetchOutcome {
	o := FetchOutcome{
		Status:    OutcomeFailed,
		URL:       url,
		ErrorKind: kind,
		Attempts:  attempts,
		Elapsed:   elapsed,
	}
	if err != nil {
		o.Err = err.Error()
	}
	return o
}

// IsSuccess reports whether content is available for this URL
func (o FetchOutcome) IsSuccess() bool { return o.Status == OutcomeSuccess }

// IsSkipped reports whether the classifier declined this URL
func (o FetchOutcome) IsSkipped() bool { return o.Status == OutcomeSkipped }

// IsFailed reports whether the fetch failed
func (o FetchOutcome) IsFailed() bool { return o.Status == OutcomeFailed }

// BatchItem pairs an outcome with the position of its request
type BatchItem struct {
	Index   int          `json:"index"`
	URL     string       `json:"url"`
	Outcome FetchOutcome `json:"outcome"`
}

// BatchResult holds one item per input URL, in input order
type BatchResult struct {
	BatchID string        `json:"batch_id,omitempty"`
	Items   []BatchItem   `json:"items"`
	Elapsed time.Duration `json:"elapsed"`
}

// Len returns the number of items (always the input URL count)
func (r BatchResult) Len() int { return len(r.Items) }

// Outcomes returns the outcomes in input order
func (r BatchResult) Outcomes() []FetchOutcome {
	out := make([]FetchOutcome, len(r.Items))
	for i, item := range r.Items {
		out[i] = item.Outcome
	}
	return out
}

// Successes returns only the items that produced content, preserving order
func (r BatchResult) Successes() []BatchItem {
	var out []BatchItem
	for _, item := range r.Items {
		if item.Outcome.IsSuccess() {
			out = append(out, item)
		}
	}
	return out
}

// BatchCounts summarizes a batch by terminal status
type BatchCounts struct {
	Success int `json:"success"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

// Counts tallies outcomes by status
func (r BatchResult) Counts() BatchCounts {
	var c BatchCounts
	for _, item := range r.Items {
		switch item.Outcome.Status {
		case OutcomeSuccess:
			c.Success++
		case OutcomeSkipped:
			c.Skipped++
		case OutcomeFailed:
			c.Failed++
		}
	}
	return c
}
