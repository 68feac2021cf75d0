package mcp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustGetJob(t *testing.T, jm *JobManager, id string) Job {
	t.Helper()
	job, ok := jm.GetJob(id)
	require.True(t, ok, "job %s not found", id)
	return job
}

func TestNewJobManager(t *testing.T) {
	jm := NewJobManager()
	require.NotNil(t, jm)
	assert.Empty(t, jm.ListJobs())
}

func TestCreateJob(t *testing.T) {
	t.Run("new job fields correct", func(t *testing.T) {
		jm := NewJobManager()
		job := jm.CreateJob("3 url(s)", 3)

		assert.NotEmpty(t, job.ID)
		assert.Equal(t, "3 url(s)", job.Label)
		assert.Equal(t, JobStatusPending, job.Status)
		assert.Equal(t, 3, job.Total)
		assert.Zero(t, job.Completed)
		assert.False(t, job.StartedAt.IsZero())
		assert.True(t, job.CompletedAt.IsZero())
		assert.Empty(t, job.ErrorMessage)
		assert.Nil(t, job.Result)
	})

	t.Run("every call creates a distinct job", func(t *testing.T) {
		jm := NewJobManager()
		job1 := jm.CreateJob("a", 1)
		job2 := jm.CreateJob("a", 1)
		assert.NotEqual(t, job1.ID, job2.ID)
	})

	t.Run("finished jobs are pruned beyond the cap", func(t *testing.T) {
		jm := NewJobManager()
		first := jm.CreateJob("first", 1)
		jm.UpdateStatus(first.ID, JobStatusCompleted, "")
		for i := 0; i < maxFinishedJobs; i++ {
			j := jm.CreateJob("filler", 1)
			jm.UpdateStatus(j.ID, JobStatusCompleted, "")
		}
		running := jm.CreateJob("running", 1)

		_, ok := jm.GetJob(first.ID)
		assert.False(t, ok, "oldest finished job should be pruned")
		_, ok = jm.GetJob(running.ID)
		assert.True(t, ok)
		assert.LessOrEqual(t, len(jm.ListJobs()), maxFinishedJobs+1)
	})
}

func TestGetJob(t *testing.T) {
	jm := NewJobManager()

	t.Run("exists returns copy", func(t *testing.T) {
		job := jm.CreateJob("docs", 1)
		got := mustGetJob(t, jm, job.ID)
		assert.Equal(t, job.ID, got.ID)

		got.Status = JobStatusFailed
		assert.Equal(t, JobStatusPending, mustGetJob(t, jm, job.ID).Status)
	})

	t.Run("missing returns false", func(t *testing.T) {
		_, ok := jm.GetJob("nonexistent-id")
		assert.False(t, ok)
	})
}

func TestUpdateStatus(t *testing.T) {
	t.Run("to running", func(t *testing.T) {
		jm := NewJobManager()
		job := jm.CreateJob("docs", 1)
		jm.UpdateStatus(job.ID, JobStatusRunning, "")
		assert.Equal(t, JobStatusRunning, mustGetJob(t, jm, job.ID).Status)
		assert.NoError(t, jm.Context(job.ID).Err())
	})

	t.Run("to completed sets CompletedAt and releases context", func(t *testing.T) {
		jm := NewJobManager()
		job := jm.CreateJob("docs", 1)
		jm.UpdateStatus(job.ID, JobStatusCompleted, "")

		got := mustGetJob(t, jm, job.ID)
		assert.Equal(t, JobStatusCompleted, got.Status)
		assert.False(t, got.CompletedAt.IsZero())
		assert.Error(t, jm.Context(job.ID).Err())
	})

	t.Run("to failed sets ErrorMessage", func(t *testing.T) {
		jm := NewJobManager()
		job := jm.CreateJob("docs", 1)
		jm.UpdateStatus(job.ID, JobStatusFailed, "invalid deadline")

		got := mustGetJob(t, jm, job.ID)
		assert.Equal(t, JobStatusFailed, got.Status)
		assert.Equal(t, "invalid deadline", got.ErrorMessage)
	})

	t.Run("finished status is final", func(t *testing.T) {
		jm := NewJobManager()
		job := jm.CreateJob("docs", 1)
		require.True(t, jm.CancelJob(job.ID))
		jm.UpdateStatus(job.ID, JobStatusCompleted, "")
		assert.Equal(t, JobStatusCancelled, mustGetJob(t, jm, job.ID).Status)
	})

	t.Run("nonexistent is no-op", func(t *testing.T) {
		jm := NewJobManager()
		jm.UpdateStatus("fake-id", JobStatusRunning, "")
	})
}

func TestComplete(t *testing.T) {
	jm := NewJobManager()
	job := jm.CreateJob("docs", 3)
	jm.UpdateStatus(job.ID, JobStatusRunning, "")
	jm.IncrementProgress(job.ID)
	jm.Complete(job.ID, map[string]interface{}{"success": 1})

	got := mustGetJob(t, jm, job.ID)
	assert.Equal(t, JobStatusCompleted, got.Status)
	assert.Equal(t, 3, got.Completed)
	assert.Equal(t, map[string]interface{}{"success": 1}, got.Result)

	t.Run("ignored after cancel", func(t *testing.T) {
		other := jm.CreateJob("docs", 1)
		jm.CancelJob(other.ID)
		jm.Complete(other.ID, "late")
		got := mustGetJob(t, jm, other.ID)
		assert.Equal(t, JobStatusCancelled, got.Status)
		assert.Nil(t, got.Result)
	})
}

func TestIncrementProgress(t *testing.T) {
	jm := NewJobManager()
	job := jm.CreateJob("docs", 2)
	for i := 0; i < 3; i++ {
		jm.IncrementProgress(job.ID)
	}
	assert.Equal(t, 2, mustGetJob(t, jm, job.ID).Completed, "never exceeds total")

	// Should not panic
	jm.IncrementProgress("fake-id")
}

func TestCancelJob(t *testing.T) {
	t.Run("running job cancelled", func(t *testing.T) {
		jm := NewJobManager()
		job := jm.CreateJob("docs", 1)
		jm.UpdateStatus(job.ID, JobStatusRunning, "")

		assert.True(t, jm.CancelJob(job.ID))

		got := mustGetJob(t, jm, job.ID)
		assert.Equal(t, JobStatusCancelled, got.Status)
		assert.False(t, got.CompletedAt.IsZero())
		assert.Error(t, jm.Context(job.ID).Err())
	})

	t.Run("completed job not cancellable", func(t *testing.T) {
		jm := NewJobManager()
		job := jm.CreateJob("docs", 1)
		jm.UpdateStatus(job.ID, JobStatusCompleted, "")
		assert.False(t, jm.CancelJob(job.ID))
	})

	t.Run("nonexistent returns false", func(t *testing.T) {
		jm := NewJobManager()
		assert.False(t, jm.CancelJob("nope"))
	})
}

func TestCancelAll(t *testing.T) {
	jm := NewJobManager()
	job1 := jm.CreateJob("a", 1)
	job2 := jm.CreateJob("b", 1)
	job3 := jm.CreateJob("c", 1)
	jm.UpdateStatus(job2.ID, JobStatusRunning, "")
	jm.UpdateStatus(job3.ID, JobStatusCompleted, "")

	jm.CancelAll()

	assert.Equal(t, JobStatusCancelled, mustGetJob(t, jm, job1.ID).Status)
	assert.Equal(t, JobStatusCancelled, mustGetJob(t, jm, job2.ID).Status)
	assert.Equal(t, JobStatusCompleted, mustGetJob(t, jm, job3.ID).Status) // completed stays completed
}

func TestListJobs(t *testing.T) {
	jm := NewJobManager()
	job1 := jm.CreateJob("a", 1)
	job2 := jm.CreateJob("b", 1)
	jm.Complete(job2.ID, "payload")

	jobs := jm.ListJobs()
	assert.Len(t, jobs, 2)

	ids := make(map[string]bool)
	for _, j := range jobs {
		ids[j.ID] = true
		assert.Nil(t, j.Result, "results are omitted from listings")
	}
	assert.True(t, ids[job1.ID])
	assert.True(t, ids[job2.ID])
}

func TestContext(t *testing.T) {
	t.Run("valid job returns live context", func(t *testing.T) {
		jm := NewJobManager()
		job := jm.CreateJob("docs", 1)
		assert.NoError(t, jm.Context(job.ID).Err())
	})

	t.Run("nonexistent returns cancelled context", func(t *testing.T) {
		jm := NewJobManager()
		assert.Error(t, jm.Context("nope").Err())
	})
}
