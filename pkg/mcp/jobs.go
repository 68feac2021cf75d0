package mcp

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// JobStatus represents the current state of a background batch job
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// maxFinishedJobs bounds how many finished jobs are retained for status queries
const maxFinishedJobs = 100

func (s JobStatus) finished() bool {
	return s == JobStatusCompleted || s == JobStatusFailed || s == JobStatusCancelled
}

// Job represents a background fetch batch. Read it through JobManager, which
// hands out copies.
type Job struct {
	ID           string    `json:"id"`
	Label        string    `json:"label"`
	Status       JobStatus `json:"status"`
	StartedAt    time.Time `json:"started_at"`
	CompletedAt  time.Time `json:"completed_at,omitempty"`
	Total        int       `json:"total"`
	Completed    int       `json:"completed"`
	ErrorMessage string    `json:"error_message,omitempty"`
	Result       any       `json:"result,omitempty"`

	// Internal fields
	ctx    context.Context
	cancel context.CancelFunc
}

// JobManager tracks background batch jobs
type JobManager struct {
	jobs map[string]*Job
	mu   sync.RWMutex
}

// NewJobManager creates a new job manager
func NewJobManager() *JobManager {
	return &JobManager{jobs: make(map[string]*Job)}
}

// CreateJob registers a pending job for total URLs and returns a copy of it
func (m *JobManager) CreateJob(label string, total int) Job {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.pruneLocked()

	ctx, cancel := context.WithCancel(context.Background())
	job := &Job{
		ID:        uuid.New().String(),
		Label:     label,
		Status:    JobStatusPending,
		StartedAt: time.Now(),
		Total:     total,
		ctx:       ctx,
		cancel:    cancel,
	}
	m.jobs[job.ID] = job
	return *job
}

// pruneLocked drops the oldest finished jobs beyond maxFinishedJobs
func (m *JobManager) pruneLocked() {
	var finished []*Job
	for _, j := range m.jobs {
		if j.Status.finished() {
			finished = append(finished, j)
		}
	}
	if len(finished) < maxFinishedJobs {
		return
	}
	sort.Slice(finished, func(a, b int) bool { return finished[a].CompletedAt.Before(finished[b].CompletedAt) })
	for _, j := range finished[:len(finished)-maxFinishedJobs+1] {
		delete(m.jobs, j.ID)
	}
}

// GetJob returns a copy of a job by ID
func (m *JobManager) GetJob(jobID string) (Job, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	job, ok := m.jobs[jobID]
	if !ok {
		return Job{}, false
	}
	return *job, true
}

// UpdateStatus moves a job to status. Finished jobs do not change again, so a
// late completion cannot overwrite a cancellation.
func (m *JobManager) UpdateStatus(jobID string, status JobStatus, errorMsg string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, exists := m.jobs[jobID]
	if !exists || job.Status.finished() {
		return
	}
	job.Status = status
	if status.finished() {
		job.CompletedAt = time.Now()
		job.cancel()
	}
	if errorMsg != "" {
		job.ErrorMessage = errorMsg
	}
}

// Complete stores the job's result and marks it completed; every URL counts as done
func (m *JobManager) Complete(jobID string, result any) {
	m.mu.Lock()
	if job, ok := m.jobs[jobID]; ok && !job.Status.finished() {
		job.Result = result
		job.Completed = job.Total
	}
	m.mu.Unlock()
	m.UpdateStatus(jobID, JobStatusCompleted, "")
}

// IncrementProgress records one more finished URL
func (m *JobManager) IncrementProgress(jobID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if job, exists := m.jobs[jobID]; exists && job.Completed < job.Total {
		job.Completed++
	}
}

// CancelJob cancels a pending or running job
func (m *JobManager) CancelJob(jobID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, exists := m.jobs[jobID]
	if !exists || job.Status.finished() {
		return false
	}
	job.cancel()
	job.Status = JobStatusCancelled
	job.CompletedAt = time.Now()
	return true
}

// CancelAll cancels all unfinished jobs
func (m *JobManager) CancelAll() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, job := range m.jobs {
		if !job.Status.finished() {
			job.cancel()
			job.Status = JobStatusCancelled
			job.CompletedAt = time.Now()
		}
	}
}

// ListJobs returns copies of all jobs, oldest first, without their results
func (m *JobManager) ListJobs() []Job {
	m.mu.RLock()
	defer m.mu.RUnlock()

	jobs := make([]Job, 0, len(m.jobs))
	for _, job := range m.jobs {
		j := *job
		j.Result = nil
		jobs = append(jobs, j)
	}
	sort.Slice(jobs, func(a, b int) bool { return jobs[a].StartedAt.Before(jobs[b].StartedAt) })
	return jobs
}

// Context returns the job's context, which is cancelled when the job finishes or
// is cancelled.
func (m *JobManager) Context(jobID string) context.Context {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if job, exists := m.jobs[jobID]; exists {
		return job.ctx
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	return ctx
}
