// Package metrics exposes Prometheus instruments for the fetcher.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

const namespace = "webfetch"

var (
	// Outcomes counts terminal per-URL outcomes by status and error kind (or skip reason).
	Outcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "outcomes_total",
		Help:      "Per-URL fetch outcomes by status and reason.",
	}, []string{"status", "reason"})

	// Attempts counts HTTP attempts, including retries.
	Attempts = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "attempts_total",
		Help:      "HTTP attempts issued, including retries.",
	})

	// InFlight tracks currently held gate tokens.
	InFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "in_flight",
		Help:      "Fetches currently holding a concurrency slot.",
	})

	// FetchDuration observes per-URL wall time.
	FetchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "fetch_duration_seconds",
		Help:      "Wall time per URL from first attempt to outcome.",
		Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
	}, []string{"status"})

	// BatchDuration observes whole-batch wall time.
	BatchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "batch_duration_seconds",
		Help:      "Wall time per batch.",
		Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10),
	})

	// BytesFetched counts accepted body bytes.
	BytesFetched = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "bytes_fetched_total",
		Help:      "Body bytes read for successful fetches.",
	})

	// CacheLookups counts outcome cache lookups by result (hit, miss, error).
	CacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cache_lookups_total",
		Help:      "Outcome cache lookups by result.",
	}, []string{"result"})
)

// ObserveOutcome records one terminal outcome.
func ObserveOutcome(status, reason string, elapsed time.Duration) {
	if reason == "" {
		reason = "none"
	}
	Outcomes.WithLabelValues(status, reason).Inc()
	FetchDuration.WithLabelValues(status).Observe(elapsed.Seconds())
}

// Serve exposes /metrics on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string, log *logrus.Entry) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.WithField("addr", addr).Info("Metrics endpoint listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
