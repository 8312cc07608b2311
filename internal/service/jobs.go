// Package service wires retrieval, generation and ingestion into the Groundwork operations.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/raphaelgruber/groundwork/internal/llm"
	"github.com/raphaelgruber/groundwork/internal/metrics"
)

// JobType names the kind of work a background job does.
type JobType string

const (
	JobIngest      JobType = "ingest"
	JobBackfill    JobType = "backfill"
	JobEmbedMemory JobType = "embed_memory"
)

// JobStatus represents the state of a background job.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusRetrying  JobStatus = "retrying"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

var (
	// ErrJobNotFound is returned for an unknown job ID.
	ErrJobNotFound = errors.New("job not found")

	// ErrNotDeadLettered is returned when requeueing a job that is not in the dead-letter list.
	ErrNotDeadLettered = errors.New("job is not dead-lettered")

	// ErrPermanent marks a job error that is not retried.
	ErrPermanent = errors.New("permanent failure")
)

// Permanent tags err so the job fails without further attempts.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrPermanent, err)
}

// JobFunc does the work of a job. It may report progress through the manager.
// The returned value becomes the job's Result.
type JobFunc func(ctx context.Context, job *Job) (any, error)

// Job represents a background processing job. Read it through Snapshot.
type Job struct {
	ID          string
	Type        JobType
	Name        string
	Status      JobStatus
	Progress    int
	Total       int
	Attempts    int
	Result      any
	Error       string
	StartedAt   time.Time
	CompletedAt *time.Time

	fn JobFunc
	mu sync.RWMutex
}

// JobView is a point-in-time copy of a job's state.
type JobView struct {
	ID          string     `json:"id"`
	Type        JobType    `json:"type"`
	Name        string     `json:"name"`
	Status      JobStatus  `json:"status"`
	Progress    int        `json:"progress"`
	Total       int        `json:"total"`
	Attempts    int        `json:"attempts"`
	Result      any        `json:"result,omitempty"`
	Error       string     `json:"error,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Snapshot returns a thread-safe copy of job state.
func (j *Job) Snapshot() JobView {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return JobView{
		ID:          j.ID,
		Type:        j.Type,
		Name:        j.Name,
		Status:      j.Status,
		Progress:    j.Progress,
		Total:       j.Total,
		Attempts:    j.Attempts,
		Result:      j.Result,
		Error:       j.Error,
		StartedAt:   j.StartedAt,
		CompletedAt: j.CompletedAt,
	}
}

// Done reports whether the job reached a final status.
func (j *Job) Done() bool {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.Status == JobStatusCompleted || j.Status == JobStatusFailed
}

// JobManager runs background jobs on a bounded pool, retries failures with
// exponential backoff and keeps exhausted jobs in a dead-letter list.
type JobManager struct {
	jobs map[string]*Job
	dead []string
	mu   sync.RWMutex

	slots       chan struct{}
	maxAttempts int
	backoff     time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewJobManager creates a manager running at most concurrency jobs at once.
func NewJobManager(concurrency int, m *metrics.Metrics, logger *slog.Logger) *JobManager {
	if concurrency <= 0 {
		concurrency = 4
	}
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &JobManager{
		jobs:        make(map[string]*Job),
		slots:       make(chan struct{}, concurrency),
		maxAttempts: 3,
		backoff:     time.Second,
		ctx:         ctx,
		cancel:      cancel,
		metrics:     m,
		logger:      logger,
	}
}

// WithRetry overrides the attempt count and the first backoff delay.
func (m *JobManager) WithRetry(maxAttempts int, backoff time.Duration) *JobManager {
	if maxAttempts > 0 {
		m.maxAttempts = maxAttempts
	}
	if backoff >= 0 {
		m.backoff = backoff
	}
	return m
}

// Concurrency returns the configured concurrency level.
func (m *JobManager) Concurrency() int {
	return cap(m.slots)
}

// Submit registers a pending job and starts it in the background.
func (m *JobManager) Submit(jobType JobType, name string, fn JobFunc) *Job {
	job := &Job{
		ID:        uuid.New().String()[:8], // Short ID for convenience
		Type:      jobType,
		Name:      name,
		Status:    JobStatusPending,
		StartedAt: time.Now(),
		fn:        fn,
	}

	m.mu.Lock()
	m.jobs[job.ID] = job
	m.mu.Unlock()

	m.logger.Info("job created", "job_id", job.ID, "type", jobType, "name", name)
	m.start(job)
	return job
}

func (m *JobManager) start(job *Job) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.run(job)
	}()
}

func (m *JobManager) run(job *Job) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("job goroutine panicked", "job_id", job.ID, "panic", r)
			m.fail(job, fmt.Errorf("internal panic: %v", r))
		}
	}()

	select {
	case m.slots <- struct{}{}:
	case <-m.ctx.Done():
		m.fail(job, m.ctx.Err())
		return
	}
	defer func() { <-m.slots }()

	for {
		job.mu.Lock()
		job.Attempts++
		attempt := job.Attempts
		job.Status = JobStatusRunning
		job.mu.Unlock()

		result, err := job.fn(m.ctx, job)
		if err == nil {
			m.complete(job, result)
			return
		}

		if llm.IsFatal(err) || errors.Is(err, ErrPermanent) || attempt >= m.maxAttempts || m.ctx.Err() != nil {
			m.fail(job, err)
			return
		}

		delay := m.backoff << (attempt - 1)
		m.logger.Warn("job attempt failed, retrying",
			"job_id", job.ID, "type", job.Type, "attempt", attempt, "delay_ms", delay.Milliseconds(), "error", err)

		job.mu.Lock()
		job.Status = JobStatusRetrying
		job.Error = err.Error()
		job.mu.Unlock()

		select {
		case <-time.After(delay):
		case <-m.ctx.Done():
			m.fail(job, err)
			return
		}
	}
}

// UpdateProgress records how far a job got.
func (m *JobManager) UpdateProgress(job *Job, current, total int) {
	job.mu.Lock()
	job.Progress = current
	job.Total = total
	job.mu.Unlock()
}

func (m *JobManager) complete(job *Job, result any) {
	job.mu.Lock()
	job.Status = JobStatusCompleted
	job.Result = result
	job.Error = ""
	now := time.Now()
	job.CompletedAt = &now
	job.mu.Unlock()

	m.metrics.RecordJob(string(job.Type), string(JobStatusCompleted))
	m.logger.Info("job completed", "job_id", job.ID, "type", job.Type, "attempts", job.Attempts)
}

// fail marks the job failed and moves it to the dead-letter list.
func (m *JobManager) fail(job *Job, err error) {
	job.mu.Lock()
	job.Status = JobStatusFailed
	job.Error = err.Error()
	now := time.Now()
	job.CompletedAt = &now
	job.mu.Unlock()

	m.mu.Lock()
	if !slices.Contains(m.dead, job.ID) {
		m.dead = append(m.dead, job.ID)
	}
	m.mu.Unlock()

	m.metrics.RecordJob(string(job.Type), string(JobStatusFailed))
	m.logger.Error("job failed", "job_id", job.ID, "type", job.Type, "attempts", job.Attempts, "error", err)
}

// GetJob retrieves a job by ID.
func (m *JobManager) GetJob(id string) *Job {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.jobs[id]
}

// ListJobs returns all jobs, most recent first.
func (m *JobManager) ListJobs() []*Job {
	m.mu.RLock()
	defer m.mu.RUnlock()

	jobs := make([]*Job, 0, len(m.jobs))
	for _, job := range m.jobs {
		jobs = append(jobs, job)
	}
	slices.SortFunc(jobs, func(a, b *Job) int {
		return b.StartedAt.Compare(a.StartedAt)
	})
	return jobs
}

// DeadLetters returns the jobs that exhausted their attempts, oldest failure first.
func (m *JobManager) DeadLetters() []*Job {
	m.mu.RLock()
	defer m.mu.RUnlock()

	jobs := make([]*Job, 0, len(m.dead))
	for _, id := range m.dead {
		jobs = append(jobs, m.jobs[id])
	}
	return jobs
}

// Requeue takes a job off the dead-letter list and runs it again with a fresh
// attempt budget.
func (m *JobManager) Requeue(id string) (*Job, error) {
	m.mu.Lock()
	job, ok := m.jobs[id]
	if !ok {
		m.mu.Unlock()
		return nil, ErrJobNotFound
	}
	idx := slices.Index(m.dead, id)
	if idx < 0 {
		m.mu.Unlock()
		return nil, ErrNotDeadLettered
	}
	m.dead = slices.Delete(m.dead, idx, idx+1)
	m.mu.Unlock()

	job.mu.Lock()
	job.Status = JobStatusPending
	job.Attempts = 0
	job.Error = ""
	job.CompletedAt = nil
	job.mu.Unlock()

	m.logger.Info("job requeued", "job_id", id, "type", job.Type)
	m.start(job)
	return job, nil
}

// Wait blocks until every started job has finished.
func (m *JobManager) Wait() {
	m.wg.Wait()
}

// Shutdown cancels running jobs and waits for them until ctx expires.
func (m *JobManager) Shutdown(ctx context.Context) error {
	m.cancel()
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
