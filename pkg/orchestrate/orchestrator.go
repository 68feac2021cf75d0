// Package orchestrate runs search-then-fetch research pipelines over a shared fetcher.
package orchestrate

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/webfetch/pkg/batch"
	"github.com/Sriram-PR/webfetch/pkg/models"
	"github.com/Sriram-PR/webfetch/pkg/search"
)

// Source is one fetched page that produced usable content
type Source struct {
	Index     int                      `json:"index"` // Rank in the search results
	URL       string                   `json:"url"`
	FinalURL  string                   `json:"final_url,omitempty"`
	FromCache bool                     `json:"from_cache,omitempty"`
	Content   *models.ExtractedContent `json:"content"`
}

// QueryResult contains the result of researching a single query
type QueryResult struct {
	Query    string             `json:"query"`
	BatchID  string             `json:"batch_id,omitempty"`
	URLs     []string           `json:"urls"`
	Sources  []Source           `json:"sources"`
	Counts   models.BatchCounts `json:"counts"`
	Error    string             `json:"error,omitempty"`
	Duration time.Duration      `json:"duration"`
	err      error
}

// Err returns the search or configuration error, if any. Per-URL failures are
// reported in Counts instead.
func (r QueryResult) Err() error { return r.err }

// Orchestrator runs research queries in parallel. All queries share one
// Coordinator, so its gate bounds network concurrency across every query.
type Orchestrator struct {
	provider    search.Provider
	coordinator *batch.Coordinator
	filters     search.Filters
	log         *logrus.Entry
}

// NewOrchestrator wires a search provider to a batch coordinator.
func NewOrchestrator(provider search.Provider, coordinator *batch.Coordinator, filters search.Filters, log *logrus.Entry) *Orchestrator {
	return &Orchestrator{
		provider:    provider,
		coordinator: coordinator,
		filters:     filters,
		log:         log,
	}
}

// Research searches for query, fetches the resulting URLs and keeps the pages that
// yielded extracted content, in search rank order.
func (o *Orchestrator) Research(ctx context.Context, query string) QueryResult {
	start := time.Now()
	result := QueryResult{Query: query}
	queryLog := o.log.WithField("query", query)

	count := o.filters.MaxURLs
	if count > 0 {
		// Ask for extra results; some will be filtered or deduplicated
		count *= 2
	}
	resp, err := o.provider.Search(ctx, search.Request{Query: query, Count: count})
	if err != nil {
		queryLog.Errorf("Search failed: %v", err)
		return result.fail(fmt.Errorf("search %q: %w", query, err), start)
	}

	result.URLs = search.URLs(resp.Results, o.filters)
	if len(result.URLs) == 0 {
		queryLog.Warn("Search returned no fetchable URLs")
		result.Duration = time.Since(start)
		return result
	}
	queryLog.Infof("Fetching %d URL(s) from %s", len(result.URLs), resp.Provider)

	batchResult, err := o.coordinator.Run(ctx, result.URLs, batch.RunOptions{})
	if err != nil {
		return result.fail(err, start)
	}
	result.BatchID = batchResult.BatchID
	result.Counts = batchResult.Counts()

	// Mirrors and syndicated copies serve identical bodies; keep the best-ranked one
	seen := make(map[string]bool)
	for _, item := range batchResult.Successes() {
		if item.Outcome.Extracted == nil {
			continue
		}
		if h := item.Outcome.ContentHash; h != "" {
			if seen[h] {
				queryLog.WithField("url", item.URL).Debug("Dropping duplicate content")
				continue
			}
			seen[h] = true
		}
		result.Sources = append(result.Sources, Source{
			Index:     item.Index,
			URL:       item.URL,
			FinalURL:  item.Outcome.FinalURL,
			FromCache: item.Outcome.FromCache,
			Content:   item.Outcome.Extracted,
		})
	}
	result.Duration = time.Since(start)
	return result
}

func (r QueryResult) fail(err error, start time.Time) QueryResult {
	r.err = err
	r.Error = err.Error()
	r.Duration = time.Since(start)
	return r
}

// Run researches every query in parallel and returns results in query order.
func (o *Orchestrator) Run(ctx context.Context, queries []string) []QueryResult {
	startTime := time.Now()
	o.log.Infof("Starting research for %d queries", len(queries))

	results := make([]QueryResult, len(queries))
	var wg sync.WaitGroup
	for i, q := range queries {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = o.Research(ctx, q)
		}()
	}
	wg.Wait()

	o.logSummary(results, time.Since(startTime))
	return results
}

// logSummary logs a summary of all research results
func (o *Orchestrator) logSummary(results []QueryResult, totalDuration time.Duration) {
	o.log.Info("============================================")
	o.log.Infof("Research completed in %v", totalDuration)

	var totalSources int
	failCount := 0
	for _, r := range results {
		status := "OK"
		if r.err != nil {
			status = "FAILED"
			failCount++
		}
		totalSources += len(r.Sources)
		o.log.Infof("  %q: %s - %d source(s) from %d URL(s) in %v", r.Query, status, len(r.Sources), len(r.URLs), r.Duration)
		if r.err != nil {
			o.log.Infof("    Error: %v", r.err)
		}
	}

	o.log.Info("--------------------------------------------")
	o.log.Infof("Total: %d queries (%d failed), %d sources", len(results), failCount, totalSources)
	o.log.Info("============================================")
}

// FormatMarkdown renders a result as a markdown digest. Each source's text is cut
// to maxChars runes (0 = unlimited).
func FormatMarkdown(r QueryResult, maxChars int) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# Research: %s\n\n", r.Query)
	if r.err != nil {
		fmt.Fprintf(&sb, "_Search failed: %v_\n", r.err)
		return sb.String()
	}
	fmt.Fprintf(&sb, "_%d of %d URLs produced content (%d skipped, %d failed)_\n",
		len(r.Sources), len(r.URLs), r.Counts.Skipped, r.Counts.Failed)

	for i, s := range r.Sources {
		title := s.Content.Title
		if title == "" {
			title = s.URL
		}
		fmt.Fprintf(&sb, "\n## [%d] %s\n\nSource: %s\n\n", i+1, title, s.URL)
		sb.WriteString(truncateRunes(s.Content.Text, maxChars))
		sb.WriteString("\n")
	}
	return sb.String()
}

func truncateRunes(s string, max int) string {
	if max <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "…"
}
