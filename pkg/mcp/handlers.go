package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/Sriram-PR/webfetch/pkg/batch"
	"github.com/Sriram-PR/webfetch/pkg/models"
	"github.com/Sriram-PR/webfetch/pkg/orchestrate"
	"github.com/Sriram-PR/webfetch/pkg/search"
)

const (
	defaultMaxChars   = 4000
	defaultMaxResults = 10
	maxMaxResults     = 50
	maxBatchURLs      = 100
)

// handleFetchURLs handles the fetch_urls tool
func (s *Server) handleFetchURLs(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	urls := request.GetStringSlice("urls", nil)
	if len(urls) == 0 {
		return mcp.NewToolResultError("urls parameter is required"), nil
	}
	if len(urls) > maxBatchURLs {
		return mcp.NewToolResultError(fmt.Sprintf("too many urls: %d (max %d)", len(urls), maxBatchURLs)), nil
	}

	deadlineSeconds := request.GetFloat("deadline_seconds", 0)
	if deadlineSeconds < 0 {
		return mcp.NewToolResultError("deadline_seconds cannot be negative"), nil
	}
	opts := batch.RunOptions{Deadline: time.Duration(deadlineSeconds * float64(time.Second))}
	maxChars := request.GetInt("max_chars", defaultMaxChars)

	if request.GetBool("background", false) {
		job := s.jobManager.CreateJob(fmt.Sprintf("%d url(s)", len(urls)), len(urls))
		go s.runFetchJob(job.ID, urls, opts, maxChars)

		result := map[string]interface{}{
			"status":  "started",
			"message": "Batch started in the background",
			"job_id":  job.ID,
			"total":   len(urls),
		}
		return mcp.NewToolResultText(formatJSON(result)), nil
	}

	batchResult, err := s.coordinator.Run(ctx, urls, opts)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("batch failed: %v", err)), nil
	}
	return mcp.NewToolResultText(formatJSON(batchSummary(batchResult, maxChars))), nil
}

// runFetchJob runs a batch in the background and stores its summary on the job
func (s *Server) runFetchJob(jobID string, urls []string, opts batch.RunOptions, maxChars int) {
	s.jobManager.UpdateStatus(jobID, JobStatusRunning, "")
	jobCtx := s.jobManager.Context(jobID)

	opts.OnOutcome = func(int, models.FetchOutcome) {
		s.jobManager.IncrementProgress(jobID)
	}
	batchResult, err := s.coordinator.Run(jobCtx, urls, opts)
	if err != nil {
		s.jobManager.UpdateStatus(jobID, JobStatusFailed, err.Error())
		return
	}
	if errors.Is(jobCtx.Err(), context.Canceled) {
		// Already marked cancelled by CancelJob
		return
	}
	s.jobManager.Complete(jobID, batchSummary(batchResult, maxChars))
}

// handleWebSearch handles the web_search tool
func (s *Server) handleWebSearch(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query := request.GetString("query", "")
	if query == "" {
		return mcp.NewToolResultError("query parameter is required"), nil
	}
	maxResults := request.GetInt("max_results", defaultMaxResults)
	if maxResults <= 0 {
		maxResults = defaultMaxResults
	}
	if maxResults > maxMaxResults {
		maxResults = maxMaxResults
	}

	resp, err := s.provider.Search(ctx, search.Request{Query: query, Count: maxResults})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("search failed: %v", err)), nil
	}

	result := map[string]interface{}{
		"query":         resp.Query,
		"provider":      resp.Provider,
		"results":       resp.Results,
		"total_results": len(resp.Results),
		"took_ms":       resp.TookMs,
	}
	if resp.Answer != "" {
		result["answer"] = resp.Answer
	}
	if resp.Summary != "" {
		result["summary"] = resp.Summary
	}
	return mcp.NewToolResultText(formatJSON(result)), nil
}

// handleResearch handles the research tool
func (s *Server) handleResearch(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query := request.GetString("query", "")
	if query == "" {
		return mcp.NewToolResultError("query parameter is required"), nil
	}
	maxChars := request.GetInt("max_chars", defaultMaxChars)

	result := s.orchestrator.Research(ctx, query)
	if err := result.Err(); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("research failed: %v", err)), nil
	}
	return mcp.NewToolResultText(orchestrate.FormatMarkdown(result, maxChars)), nil
}

// handleGetJobStatus handles the get_job_status tool
func (s *Server) handleGetJobStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	jobID := request.GetString("job_id", "")
	if jobID == "" {
		return mcp.NewToolResultError("job_id parameter is required"), nil
	}

	job, ok := s.jobManager.GetJob(jobID)
	if !ok {
		return mcp.NewToolResultError(fmt.Sprintf("job '%s' not found", jobID)), nil
	}

	result := map[string]interface{}{
		"job_id":     job.ID,
		"label":      job.Label,
		"status":     job.Status,
		"started_at": job.StartedAt.Format(time.RFC3339),
		"completed":  job.Completed,
		"total":      job.Total,
	}
	if !job.CompletedAt.IsZero() {
		result["completed_at"] = job.CompletedAt.Format(time.RFC3339)
		result["duration_seconds"] = job.CompletedAt.Sub(job.StartedAt).Seconds()
	}
	if job.ErrorMessage != "" {
		result["error_message"] = job.ErrorMessage
	}
	if job.Result != nil {
		result["result"] = job.Result
	}

	return mcp.NewToolResultText(formatJSON(result)), nil
}

// handleCancelJob handles the cancel_job tool
func (s *Server) handleCancelJob(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	jobID := request.GetString("job_id", "")
	if jobID == "" {
		return mcp.NewToolResultError("job_id parameter is required"), nil
	}
	if _, ok := s.jobManager.GetJob(jobID); !ok {
		return mcp.NewToolResultError(fmt.Sprintf("job '%s' not found", jobID)), nil
	}

	cancelled := s.jobManager.CancelJob(jobID)
	result := map[string]interface{}{
		"job_id":    jobID,
		"cancelled": cancelled,
	}
	if !cancelled {
		result["message"] = "job already finished"
	}
	return mcp.NewToolResultText(formatJSON(result)), nil
}

// batchSummary flattens a batch result for tool output. Raw bytes are omitted and
// extracted text is truncated to maxChars runes.
func batchSummary(r models.BatchResult, maxChars int) map[string]interface{} {
	items := make([]map[string]interface{}, 0, r.Len())
	for _, item := range r.Items {
		items = append(items, outcomeSummary(item, maxChars))
	}
	counts := r.Counts()
	return map[string]interface{}{
		"batch_id":   r.BatchID,
		"elapsed_ms": r.Elapsed.Milliseconds(),
		"success":    counts.Success,
		"skipped":    counts.Skipped,
		"failed":     counts.Failed,
		"items":      items,
	}
}

func outcomeSummary(item models.BatchItem, maxChars int) map[string]interface{} {
	o := item.Outcome
	out := map[string]interface{}{
		"index":      item.Index,
		"url":        item.URL,
		"status":     o.Status,
		"attempts":   o.Attempts,
		"elapsed_ms": o.Elapsed.Milliseconds(),
	}
	if o.StatusCode != 0 {
		out["status_code"] = o.StatusCode
	}
	switch o.Status {
	case models.OutcomeSuccess:
		out["content_type"] = o.ContentType
		out["byte_size"] = o.ByteSize
		if o.FinalURL != "" && o.FinalURL != item.URL {
			out["final_url"] = o.FinalURL
		}
		if o.FromCache {
			out["from_cache"] = true
		}
		if o.Extracted != nil {
			out["title"] = o.Extracted.Title
			out["content"] = truncate(o.Extracted.Text, maxChars)
			out["token_count"] = o.Extracted.TokenCount
		}
	case models.OutcomeSkipped:
		out["skip_reason"] = o.SkipReason
	case models.OutcomeFailed:
		out["error_kind"] = o.ErrorKind
		out["error"] = o.Err
	}
	return out
}

// truncate cuts s to maxRunes runes on a rune boundary (0 = unlimited)
func truncate(s string, maxRunes int) string {
	if maxRunes <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= maxRunes {
		return s
	}
	return string(runes[:maxRunes]) + "..."
}

// formatJSON formats data as an indented JSON string
func formatJSON(data map[string]interface{}) string {
	b, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("{\"error\": %q}", err.Error())
	}
	return string(b)
}
