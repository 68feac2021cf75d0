package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/webfetch/pkg/classify"
	"github.com/Sriram-PR/webfetch/pkg/config"
	"github.com/Sriram-PR/webfetch/pkg/extract"
	"github.com/Sriram-PR/webfetch/pkg/metrics"
	"github.com/Sriram-PR/webfetch/pkg/models"
	"github.com/Sriram-PR/webfetch/pkg/parse"
	"github.com/Sriram-PR/webfetch/pkg/storage"
	"github.com/Sriram-PR/webfetch/pkg/utils"
)

// Fetcher resolves one request to its terminal outcome. Worker is the production
// implementation; tests substitute fakes.
type Fetcher interface {
	Fetch(ctx context.Context, req models.FetchRequest) models.FetchOutcome
}

// WorkerOptions holds the optional collaborators of a Worker
type WorkerOptions struct {
	Extractor   extract.Extractor    // nil: outcomes carry raw bytes only
	Cache       storage.OutcomeCache // nil: always fetch
	RateLimiter *RateLimiter         // nil: no politeness delay
	Policy      *RetryPolicy         // nil: built from the fetch config
}

// Worker performs single-URL fetches under the shared gate and retry policy.
// It is safe for concurrent use; one Worker serves a whole batch.
type Worker struct {
	client          *http.Client
	gate            *Gate
	policy          RetryPolicy
	classifier      *classify.Classifier
	limiter         *RateLimiter
	extractor       extract.Extractor
	cache           storage.OutcomeCache
	userAgents      []string
	uaCounter       atomic.Uint64
	maxContentBytes int64
	log             *logrus.Entry
}

// NewWorker wires a Worker from a validated fetch config.
func NewWorker(cfg config.FetchConfig, client *http.Client, gate *Gate, classifier *classify.Classifier, opts WorkerOptions, log *logrus.Entry) *Worker {
	policy := NewRetryPolicy(cfg)
	if opts.Policy != nil {
		policy = *opts.Policy
	}
	w := &Worker{
		client:          client,
		gate:            gate,
		policy:          policy,
		classifier:      classifier,
		limiter:         opts.RateLimiter,
		cache:           opts.Cache,
		userAgents:      config.GetEffectiveUserAgents(cfg),
		maxContentBytes: cfg.MaxContentBytes,
		log:             log,
	}
	if !cfg.SkipExtraction {
		w.extractor = opts.Extractor
	}
	return w
}

// Policy returns the retry policy in effect.
func (w *Worker) Policy() RetryPolicy { return w.policy }

// Fetch resolves req to exactly one outcome. It never returns an error: every
// per-URL failure is captured in the outcome.
func (w *Worker) Fetch(ctx context.Context, req models.FetchRequest) models.FetchOutcome {
	start := time.Now()
	reqLog := w.log.WithFields(logrus.Fields{"url": req.URL, "index": req.Index})

	outcome := w.fetch(ctx, &req, reqLog, start)
	outcome.Elapsed = time.Since(start)

	switch outcome.Status {
	case models.OutcomeSuccess:
		reqLog.WithFields(logrus.Fields{"bytes": outcome.ByteSize, "attempts": outcome.Attempts, "kind": outcome.Kind}).Debug("Fetched")
		metrics.ObserveOutcome(outcome.Status.String(), "", outcome.Elapsed)
	case models.OutcomeSkipped:
		reqLog.WithField("reason", outcome.SkipReason).Debug("Skipped")
		metrics.ObserveOutcome(outcome.Status.String(), outcome.SkipReason.String(), outcome.Elapsed)
	default:
		reqLog.WithFields(logrus.Fields{"error_kind": outcome.ErrorKind, "attempts": outcome.Attempts}).Warnf("Fetch failed: %s", outcome.Err)
		metrics.ObserveOutcome(outcome.Status.String(), outcome.ErrorKind.String(), outcome.Elapsed)
	}
	return outcome
}

func (w *Worker) fetch(ctx context.Context, req *models.FetchRequest, reqLog *logrus.Entry, start time.Time) models.FetchOutcome {
	// Pre-flight: no connection, no attempt counted
	if d := w.classifier.PreFlight(req.URL, req.ContentTypeHint); !d.Accept {
		o := models.Skipped(req.URL, d.Reason, time.Since(start), 0)
		o.Err = d.Err().Error()
		return o
	}
	u, err := parse.ParseFetchURL(req.URL)
	if err != nil {
		return models.Failed(req.URL, models.ErrorKindClientError, 0, time.Since(start),
			utils.WrapErrorf(utils.ErrRequestCreation, "%v", err))
	}
	host := parse.HostKey(u)

	if cached, ok := w.lookupCache(ctx, req.URL, reqLog); ok {
		return cached
	}

	var lastKind models.ErrorKind
	var lastErr error
	var lastStatus int
	for attempt := 1; attempt <= w.policy.MaxAttempts; attempt++ {
		req.Attempt = attempt
		if ctx.Err() != nil {
			return deadlineOutcome(req.URL, attempt-1, start, ctx, lastErr)
		}

		outcome, kind, err := w.attempt(ctx, req, u, host)
		if err == nil {
			if outcome.IsSuccess() {
				w.finishSuccess(ctx, &outcome, reqLog)
			}
			return outcome
		}
		lastKind, lastErr, lastStatus = kind, err, outcome.StatusCode

		// Batch deadline: stop regardless of kind; the attempt was cut short or never started
		if ctx.Err() != nil {
			attempts := attempt
			if errors.Is(err, errSlotNotAcquired) {
				attempts = attempt - 1
			}
			return deadlineOutcome(req.URL, attempts, start, ctx, err)
		}
		if !w.policy.IsRetryable(kind) {
			return withStatus(models.Failed(req.URL, kind, attempt, time.Since(start), err), outcome.StatusCode)
		}
		if !w.policy.ShouldRetry(attempt, kind) {
			break
		}

		delay := w.policy.NextDelay(attempt)
		reqLog.WithFields(logrus.Fields{
			"attempt":        attempt,
			"max_attempts":   w.policy.MaxAttempts,
			"delay":          delay,
			"error_kind":     kind,
			"error_category": utils.CategorizeError(err),
		}).Warn("Retrying request...")
		if err := sleepCtx(ctx, delay); err != nil {
			return deadlineOutcome(req.URL, attempt, start, ctx, lastErr)
		}
	}

	return withStatus(models.Failed(req.URL, models.ErrorKindExhaustedRetries, req.Attempt, time.Since(start),
		fmt.Errorf("%w (last: %s): %w", utils.ErrExhaustedRetries, lastKind, lastErr)), lastStatus)
}

var errSlotNotAcquired = errors.New("concurrency slot not acquired")

// attempt runs one HTTP exchange while holding a gate token. A nil error means the
// returned outcome is terminal (success or skip). Otherwise kind classifies err.
func (w *Worker) attempt(ctx context.Context, req *models.FetchRequest, u *url.URL, host string) (models.FetchOutcome, models.ErrorKind, error) {
	token, err := w.gate.Acquire(ctx, host)
	if err != nil {
		return models.FetchOutcome{}, models.ErrorKindTimeout, fmt.Errorf("%w: %w: %w", utils.ErrTimeout, errSlotNotAcquired, err)
	}
	defer token.Release()

	if err := w.limiter.Wait(ctx, host); err != nil {
		return models.FetchOutcome{}, models.ErrorKindTimeout, fmt.Errorf("%w: %w: %w", utils.ErrTimeout, errSlotNotAcquired, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return models.FetchOutcome{}, models.ErrorKindClientError, utils.WrapErrorf(utils.ErrRequestCreation, "%v", err)
	}
	httpReq.Header.Set("User-Agent", PickUserAgent(w.userAgents, w.uaCounter.Add(1)-1))
	httpReq.Header.Set("Accept", "text/html,application/xhtml+xml,text/plain;q=0.9,application/pdf;q=0.8,*/*;q=0.5")
	httpReq.Header.Set("Accept-Language", "en-US,en;q=0.9")

	metrics.Attempts.Inc()
	resp, err := w.client.Do(httpReq)
	if err != nil {
		kind, wrapped := ClassifyError(err)
		return models.FetchOutcome{}, kind, wrapped
	}
	// Drain a bounded amount so the connection can be reused, except after the
	// size cap was hit: then nothing more is read and the connection is dropped.
	drain := true
	defer func() {
		if drain {
			_, _ = io.CopyN(io.Discard, resp.Body, 4096)
		}
		resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		kind, statusErr := statusErrorKind(resp.StatusCode, resp.Status)
		return models.FetchOutcome{StatusCode: resp.StatusCode}, kind, statusErr
	}

	contentType := resp.Header.Get("Content-Type")
	decision := w.classifier.PostResponse(req.URL, req.ContentTypeHint, contentType)
	if !decision.Accept {
		o := models.Skipped(req.URL, decision.Reason, 0, req.Attempt)
		o.StatusCode = resp.StatusCode
		o.ContentType = decision.MediaType
		o.Err = decision.Err().Error()
		return o, models.ErrorKindNone, nil
	}

	if resp.ContentLength > w.maxContentBytes {
		drain = false
		return models.FetchOutcome{StatusCode: resp.StatusCode}, models.ErrorKindContentTooLarge,
			utils.WrapErrorf(utils.ErrContentTooLarge, "declared %d bytes, cap %d", resp.ContentLength, w.maxContentBytes)
	}

	body, err := readCapped(resp.Body, w.maxContentBytes)
	if err != nil {
		if errors.Is(err, utils.ErrContentTooLarge) {
			drain = false
			return models.FetchOutcome{StatusCode: resp.StatusCode}, models.ErrorKindContentTooLarge, err
		}
		kind, wrapped := ClassifyError(err)
		if kind == models.ErrorKindInternal {
			kind = models.ErrorKindConnection
		}
		return models.FetchOutcome{StatusCode: resp.StatusCode}, kind, fmt.Errorf("%w: %w", utils.ErrResponseBodyRead, wrapped)
	}

	o := models.Success(req.URL, body, decision.MediaType, decision.Kind, 0, req.Attempt)
	o.StatusCode = resp.StatusCode
	o.FinalURL = resp.Request.URL.String()
	return o, models.ErrorKindNone, nil
}

// finishSuccess runs after the token is released: extraction, then caching.
func (w *Worker) finishSuccess(ctx context.Context, o *models.FetchOutcome, reqLog *logrus.Entry) {
	metrics.BytesFetched.Add(float64(o.ByteSize))
	o.ContentHash = utils.CalculateBytesSHA256(o.Content)

	if w.extractor != nil {
		pageURL := o.FinalURL
		if pageURL == "" {
			pageURL = o.URL
		}
		extracted, err := w.extractor.Extract(ctx, o.Content, o.Kind, pageURL)
		switch {
		case errors.Is(err, extract.ErrUnsupportedKind):
			reqLog.WithField("kind", o.Kind).Debug("No extractor for content kind; returning raw bytes")
		case err != nil:
			reqLog.Warnf("Extraction failed: %v", err)
		default:
			o.Extracted = extracted
		}
	}

	if w.cache != nil {
		if err := w.cache.Put(ctx, o.URL, *o); err != nil {
			reqLog.Warnf("Failed to cache outcome: %v", err)
		}
	}
}

func (w *Worker) lookupCache(ctx context.Context, rawURL string, reqLog *logrus.Entry) (models.FetchOutcome, bool) {
	if w.cache == nil {
		return models.FetchOutcome{}, false
	}
	o, ok, err := w.cache.Get(ctx, rawURL)
	switch {
	case err != nil:
		metrics.CacheLookups.WithLabelValues("error").Inc()
		reqLog.Warnf("Cache lookup failed: %v", err)
		return models.FetchOutcome{}, false
	case !ok:
		metrics.CacheLookups.WithLabelValues("miss").Inc()
		return models.FetchOutcome{}, false
	}
	metrics.CacheLookups.WithLabelValues("hit").Inc()
	o.Attempts = 0
	return o, true
}

// deadlineOutcome records a fetch cut short by the batch deadline or cancellation.
func deadlineOutcome(rawURL string, attempts int, start time.Time, ctx context.Context, cause error) models.FetchOutcome {
	err := fmt.Errorf("%w: batch deadline: %w", utils.ErrTimeout, context.Cause(ctx))
	if cause != nil {
		err = fmt.Errorf("%w (during: %v)", err, cause)
	}
	return models.Failed(rawURL, models.ErrorKindTimeout, attempts, time.Since(start), err)
}

func withStatus(o models.FetchOutcome, statusCode int) models.FetchOutcome {
	o.StatusCode = statusCode
	return o
}

// sleepCtx waits for d or until ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// cappedReader stops with ErrContentTooLarge as soon as more than max bytes arrive.
// Each Read asks the source for at most remaining+1 bytes, so at most one byte past
// the cap is ever read.
type cappedReader struct {
	r   io.Reader
	max int64
	n   int64
}

func (c *cappedReader) Read(p []byte) (int, error) {
	if c.n > c.max {
		return 0, utils.WrapErrorf(utils.ErrContentTooLarge, "exceeded %d bytes", c.max)
	}
	if remaining := c.max - c.n + 1; int64(len(p)) > remaining {
		p = p[:remaining]
	}
	n, err := c.r.Read(p)
	c.n += int64(n)
	if c.n > c.max {
		return n, utils.WrapErrorf(utils.ErrContentTooLarge, "exceeded %d bytes", c.max)
	}
	return n, err
}

func readCapped(r io.Reader, max int64) ([]byte, error) {
	cr := &cappedReader{r: r, max: max}
	body, err := io.ReadAll(cr)
	if err != nil {
		return nil, err
	}
	return body, nil
}
