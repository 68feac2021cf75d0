package batch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/Sriram-PR/webfetch/pkg/classify"
	"github.com/Sriram-PR/webfetch/pkg/config"
	"github.com/Sriram-PR/webfetch/pkg/extract"
	"github.com/Sriram-PR/webfetch/pkg/fetch"
	"github.com/Sriram-PR/webfetch/pkg/metrics"
	"github.com/Sriram-PR/webfetch/pkg/models"
	"github.com/Sriram-PR/webfetch/pkg/storage"
	"github.com/Sriram-PR/webfetch/pkg/utils"
)

// DefaultSettleGrace is how long Run lets workers report their own outcome after
// the deadline before synthesizing timeouts for them.
const DefaultSettleGrace = 200 * time.Millisecond

var errBatchDeadline = errors.New("batch deadline exceeded")

// Options supplies optional collaborators to NewCoordinator.
type Options struct {
	Client    *http.Client         // nil: built from HTTPClientSettings
	Extractor extract.Extractor    // nil: outcomes carry raw bytes only
	Cache     storage.OutcomeCache // nil: no outcome cache
	Fetcher   fetch.Fetcher        // nil: a fetch.Worker over the shared gate
}

// RunOptions tune a single Run call.
type RunOptions struct {
	Deadline         time.Duration // Overrides fetch.batch_timeout; 0 uses the config value
	ContentTypeHints []string      // Optional per-index hints, aligned with urls
	SettleGrace      time.Duration // 0 uses DefaultSettleGrace

	// OnOutcome, if set, is called once per index: from worker goroutines as each
	// fetch reports, then from Run for outcomes synthesized after the deadline.
	OnOutcome func(index int, outcome models.FetchOutcome)
}

// Coordinator runs URL batches against one shared gate, client and retry policy.
type Coordinator struct {
	cfg     config.AppConfig
	fetcher fetch.Fetcher
	gate    *fetch.Gate
	log     *logrus.Entry
}

// NewCoordinator validates cfg and wires the fetch pipeline. Configuration problems
// are returned here, before any request is made.
func NewCoordinator(cfg config.AppConfig, opts Options, log *logrus.Entry) (*Coordinator, error) {
	warnings, err := cfg.Validate()
	for _, w := range warnings {
		log.Warn(w)
	}
	if err != nil {
		return nil, err
	}

	c := &Coordinator{cfg: cfg, fetcher: opts.Fetcher, log: log}
	if c.fetcher != nil {
		return c, nil
	}

	client := opts.Client
	if client == nil {
		client, err = fetch.NewClient(cfg.Fetch, cfg.HTTPClientSettings, log)
		if err != nil {
			return nil, err
		}
	}
	gate, err := fetch.NewGate(cfg.Fetch.MaxConcurrent, cfg.Fetch.MaxPerHost, cfg.Fetch.HostIdleEviction, log)
	if err != nil {
		return nil, err
	}
	classifier, err := classify.New(cfg.Fetch)
	if err != nil {
		return nil, err
	}

	workerOpts := fetch.WorkerOptions{Extractor: opts.Extractor, Cache: opts.Cache}
	if cfg.Fetch.MinHostDelay > 0 {
		workerOpts.RateLimiter = fetch.NewRateLimiter(cfg.Fetch.MinHostDelay, log)
	}
	c.gate = gate
	c.fetcher = fetch.NewWorker(cfg.Fetch, client, gate, classifier, workerOpts, log)
	return c, nil
}

// Config returns the validated configuration in use.
func (c *Coordinator) Config() config.AppConfig { return c.cfg }

// Gate returns the shared gate, or nil when a custom Fetcher was supplied.
func (c *Coordinator) Gate() *fetch.Gate { return c.gate }

// Run fetches every URL and returns one outcome per URL in input order. Per-URL
// failures are reported in the result; the error is non-nil only for invalid options.
func (c *Coordinator) Run(ctx context.Context, urls []string, opts RunOptions) (models.BatchResult, error) {
	if opts.Deadline < 0 {
		return models.BatchResult{}, fmt.Errorf("%w: batch deadline cannot be negative (got %v)", utils.ErrConfigValidation, opts.Deadline)
	}
	deadline := opts.Deadline
	if deadline == 0 {
		deadline = c.cfg.Fetch.BatchTimeout
	}
	grace := opts.SettleGrace
	if grace <= 0 {
		grace = DefaultSettleGrace
	}

	batchID := uuid.NewString()
	batchLog := c.log.WithFields(logrus.Fields{"batch_id": batchID, "urls": len(urls)})
	start := time.Now()
	agg := NewAggregator(urls)

	runCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	if deadline > 0 {
		var cancelTimeout context.CancelFunc
		runCtx, cancelTimeout = context.WithTimeoutCause(runCtx, deadline, errBatchDeadline)
		defer cancelTimeout()
	}
	batchLog.WithField("deadline", deadline).Info("Batch starting")

	var g errgroup.Group
	for i, rawURL := range urls {
		req := models.FetchRequest{Index: i, URL: rawURL}
		if i < len(opts.ContentTypeHints) {
			req.ContentTypeHint = opts.ContentTypeHints[i]
		}
		g.Go(func() error {
			outcome := c.fetcher.Fetch(runCtx, req)
			if err := agg.Record(req.Index, outcome); err != nil {
				batchLog.WithField("index", req.Index).Debugf("Outcome not recorded: %v", err)
				return nil
			}
			if opts.OnOutcome != nil {
				opts.OnOutcome(req.Index, outcome)
			}
			return nil
		})
	}

	done := make(chan struct{})
	go func() {
		_ = g.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-runCtx.Done():
		timer := time.NewTimer(grace)
		select {
		case <-done:
		case <-timer.C:
		}
		timer.Stop()

		cause := context.Cause(runCtx)
		filled := fillUnresolved(agg, opts.OnOutcome, func(rawURL string) models.FetchOutcome {
			return models.Failed(rawURL, models.ErrorKindTimeout, 0, time.Since(start),
				fmt.Errorf("%w: %w", utils.ErrTimeout, cause))
		})
		if filled > 0 {
			batchLog.Warnf("Deadline reached; %d fetch(es) recorded as timeouts (%v)", filled, cause)
		}
		// Structured concurrency: every task is joined before returning
		<-done
	}

	// A fetcher that returned an unusable outcome still gets a slot in the result
	if agg.Pending() > 0 {
		fillUnresolved(agg, opts.OnOutcome, func(rawURL string) models.FetchOutcome {
			return models.Failed(rawURL, models.ErrorKindInternal, 0, time.Since(start), errors.New("no outcome reported"))
		})
	}

	result, err := agg.Finalize()
	if err != nil {
		return models.BatchResult{}, err
	}
	result.BatchID = batchID
	result.Elapsed = time.Since(start)
	metrics.BatchDuration.Observe(result.Elapsed.Seconds())

	counts := result.Counts()
	fields := logrus.Fields{
		"success": counts.Success,
		"skipped": counts.Skipped,
		"failed":  counts.Failed,
		"elapsed": result.Elapsed.Round(time.Millisecond),
	}
	if c.gate != nil {
		fields["peak_in_flight"] = c.gate.Peak()
	}
	batchLog.WithFields(fields).Info("Batch complete")
	return result, nil
}

// fillUnresolved synthesizes outcomes for pending indices and reports them to
// onOutcome outside the aggregator lock.
func fillUnresolved(agg *Aggregator, onOutcome func(int, models.FetchOutcome), synth func(url string) models.FetchOutcome) int {
	type filledOutcome struct {
		index   int
		outcome models.FetchOutcome
	}
	var reported []filledOutcome
	filled := agg.FillUnresolved(func(index int, rawURL string) models.FetchOutcome {
		outcome := synth(rawURL)
		reported = append(reported, filledOutcome{index, outcome})
		return outcome
	})
	if onOutcome != nil {
		for _, r := range reported {
			onOutcome(r.index, r.outcome)
		}
	}
	return filled
}

// FetchBatch validates cfg, runs one batch and returns outcomes in input order.
func FetchBatch(ctx context.Context, cfg config.AppConfig, urls []string, log *logrus.Entry) ([]models.FetchOutcome, error) {
	c, err := NewCoordinator(cfg, Options{Extractor: extract.NewDefaultExtractor(cfg.Extract, log)}, log)
	if err != nil {
		return nil, err
	}
	result, err := c.Run(ctx, urls, RunOptions{})
	if err != nil {
		return nil, err
	}
	return result.Outcomes(), nil
}
