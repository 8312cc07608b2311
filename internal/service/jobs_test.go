package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/raphaelgruber/groundwork/internal/llm"
	"github.com/raphaelgruber/groundwork/internal/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestJobManager() *JobManager {
	return NewJobManager(2, metrics.New(), nil).WithRetry(3, time.Millisecond)
}

func TestJobManagerRetries(t *testing.T) {
	tests := []struct {
		name         string
		failures     int
		err          error
		wantStatus   JobStatus
		wantAttempts int
		wantDead     bool
	}{
		{"succeeds first time", 0, nil, JobStatusCompleted, 1, false},
		{"succeeds after retry", 2, errors.New("timeout"), JobStatusCompleted, 3, false},
		{"exhausts attempts", 5, errors.New("timeout"), JobStatusFailed, 3, true},
		{"fatal error skips retry", 5, fmt.Errorf("%w: invalid api key", llm.ErrFatalAPI), JobStatusFailed, 1, true},
		{"permanent error skips retry", 5, Permanent(errors.New("source gone")), JobStatusFailed, 1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newTestJobManager()
			var calls atomic.Int32

			job := m.Submit(JobEmbedMemory, "mem-1", func(ctx context.Context, job *Job) (any, error) {
				if int(calls.Add(1)) <= tt.failures {
					return nil, tt.err
				}
				return "ok", nil
			})
			m.Wait()

			snap := job.Snapshot()
			assert.Equal(t, tt.wantStatus, snap.Status)
			assert.Equal(t, tt.wantAttempts, snap.Attempts)
			assert.NotNil(t, snap.CompletedAt)
			assert.True(t, job.Done())

			dead := m.DeadLetters()
			if tt.wantDead {
				require.Len(t, dead, 1)
				assert.Equal(t, job.ID, dead[0].ID)
				assert.NotEmpty(t, snap.Error)
			} else {
				assert.Empty(t, dead)
				assert.Equal(t, "ok", snap.Result)
			}
		})
	}
}

func TestJobManagerRequeue(t *testing.T) {
	m := newTestJobManager()
	var healthy atomic.Bool

	job := m.Submit(JobIngest, "src-1", func(ctx context.Context, job *Job) (any, error) {
		if !healthy.Load() {
			return nil, errors.New("wiki down")
		}
		return nil, nil
	})
	m.Wait()
	require.Len(t, m.DeadLetters(), 1)

	_, err := m.Requeue("unknown")
	assert.ErrorIs(t, err, ErrJobNotFound)

	healthy.Store(true)
	again, err := m.Requeue(job.ID)
	require.NoError(t, err)
	m.Wait()

	assert.Same(t, job, again)
	assert.Equal(t, JobStatusCompleted, job.Snapshot().Status)
	assert.Empty(t, m.DeadLetters())

	_, err = m.Requeue(job.ID)
	assert.ErrorIs(t, err, ErrNotDeadLettered)
}

func TestJobManagerProgressAndListing(t *testing.T) {
	m := newTestJobManager()

	first := m.Submit(JobBackfill, "backfill", func(ctx context.Context, job *Job) (any, error) {
		m.UpdateProgress(job, 5, 10)
		return nil, nil
	})
	m.Wait()
	time.Sleep(time.Millisecond)
	second := m.Submit(JobIngest, "src", func(ctx context.Context, job *Job) (any, error) { return nil, nil })
	m.Wait()

	snap := first.Snapshot()
	assert.Equal(t, 5, snap.Progress)
	assert.Equal(t, 10, snap.Total)

	jobs := m.ListJobs()
	require.Len(t, jobs, 2)
	assert.Equal(t, second.ID, jobs[0].ID, "most recent first")
	assert.Same(t, first, m.GetJob(first.ID))
	assert.Nil(t, m.GetJob("missing"))
	assert.Equal(t, 2, m.Concurrency())
}

func TestJobManagerPanicFailsJob(t *testing.T) {
	m := newTestJobManager()
	job := m.Submit(JobIngest, "boom", func(ctx context.Context, job *Job) (any, error) {
		panic("nil map")
	})
	m.Wait()

	snap := job.Snapshot()
	assert.Equal(t, JobStatusFailed, snap.Status)
	assert.Contains(t, snap.Error, "internal panic")
}

func TestJobManagerShutdownCancelsJobs(t *testing.T) {
	m := newTestJobManager()
	started := make(chan struct{})
	job := m.Submit(JobBackfill, "long", func(ctx context.Context, job *Job) (any, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	})
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, m.Shutdown(ctx))
	assert.Equal(t, JobStatusFailed, job.Snapshot().Status)
}

func TestJobSnapshotJSON(t *testing.T) {
	m := newTestJobManager()
	job := m.Submit(JobBackfill, "alice", func(ctx context.Context, job *Job) (any, error) {
		m.UpdateProgress(job, 2, 2)
		return map[string]int{"succeeded": 2}, nil
	})
	m.Wait()

	data, err := json.Marshal(job.Snapshot())
	require.NoError(t, err)

	var view JobView
	require.NoError(t, json.Unmarshal(data, &view))
	assert.Equal(t, job.ID, view.ID)
	assert.Equal(t, JobBackfill, view.Type)
	assert.Equal(t, JobStatusCompleted, view.Status)
	assert.Equal(t, 2, view.Progress)
	assert.Equal(t, map[string]any{"succeeded": float64(2)}, view.Result)
}
