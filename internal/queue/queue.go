// Package queue provides an in-memory job queue with a worker pool for
// producing mileage log exports in the background.
package queue

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/stuartshay/otel-mileage/internal/domain"
)

// JobStatus represents the state of an export job
type JobStatus string

// Job status constants define the lifecycle states
const (
	StatusQueued     JobStatus = "queued"
	StatusProcessing JobStatus = "processing"
	StatusCompleted  JobStatus = "completed"
	StatusFailed     JobStatus = "failed"
)

// pendingCapacity bounds the jobs waiting for a worker
const pendingCapacity = 100

var (
	// ErrQueueFull is returned by Enqueue when the pending buffer is exhausted
	ErrQueueFull = errors.New("queue is full")

	// ErrShutdownTimeout is returned when running jobs outlive the shutdown deadline
	ErrShutdownTimeout = errors.New("shutdown timeout exceeded")
)

// JobParams describes the export a caller asked for
type JobParams struct {
	StartDate string `json:"startDate"`
	EndDate   string `json:"endDate"`
	StaffID   string `json:"staffId,omitempty"`
	Format    string `json:"format"`
}

// Job represents an export job
type Job struct {
	ID string `json:"jobId"`
	JobParams
	Status       JobStatus  `json:"status"`
	QueuedAt     time.Time  `json:"queuedAt"`
	StartedAt    *time.Time `json:"startedAt,omitempty"`
	CompletedAt  *time.Time `json:"completedAt,omitempty"`
	ErrorMessage string     `json:"errorMessage,omitempty"`
	Result       *JobResult `json:"result,omitempty"`
}

// JobResult contains the output of a completed export
type JobResult struct {
	FilePath         string  `json:"filePath"`
	TripCount        int     `json:"tripCount"`
	TotalMiles       float64 `json:"totalMiles"`
	TotalCost        float64 `json:"totalCost"`
	TotalDriveTime   int     `json:"totalDriveTime"`
	ProcessingTimeMS int64   `json:"processingTimeMs"`
}

// ProcessFunc is a function that processes a job
type ProcessFunc func(ctx context.Context, job *Job) (*JobResult, error)

// Queue manages export jobs with a worker pool
type Queue struct {
	mu           sync.RWMutex
	jobs         map[string]*Job
	pendingQueue chan *Job
	workers      int
	processor    ProcessFunc
	now          func() time.Time
	ctx          context.Context
	cancel       context.CancelFunc
	wg           sync.WaitGroup
}

// NewQueue creates a new job queue with the specified number of workers
func NewQueue(workers int, processor ProcessFunc) *Queue {
	if workers < 1 {
		workers = 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	q := &Queue{
		jobs:         make(map[string]*Job),
		pendingQueue: make(chan *Job, pendingCapacity),
		workers:      workers,
		processor:    processor,
		now:          time.Now,
		ctx:          ctx,
		cancel:       cancel,
	}

	for i := 0; i < workers; i++ {
		q.wg.Add(1)
		go q.worker(i)
	}

	return q
}

// Enqueue adds a new job to the queue
func (q *Queue) Enqueue(params JobParams) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	job := &Job{
		ID:        uuid.New().String(),
		JobParams: params,
		Status:    StatusQueued,
		QueuedAt:  q.now().UTC(),
	}

	q.jobs[job.ID] = job

	// Non-blocking so a burst of requests cannot stall the caller
	select {
	case q.pendingQueue <- job:
		log.Info().
			Str("job_id", job.ID).
			Str("start_date", params.StartDate).
			Str("end_date", params.EndDate).
			Str("format", params.Format).
			Msg("Export job queued")
		return job.ID, nil
	default:
		job.Status = StatusFailed
		job.ErrorMessage = ErrQueueFull.Error()
		return "", ErrQueueFull
	}
}

// GetJob retrieves a copy of a job by ID
func (q *Queue) GetJob(jobID string) (*Job, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	job, exists := q.jobs[jobID]
	if !exists {
		return nil, domain.NotFoundError{Resource: "export job", ID: jobID}
	}

	return copyJob(job), nil
}

// ListJobs returns jobs filtered by status, newest first
func (q *Queue) ListJobs(status JobStatus, limit, offset int) []*Job {
	q.mu.RLock()
	defer q.mu.RUnlock()

	filtered := make([]*Job, 0, len(q.jobs))
	for _, job := range q.jobs {
		if status == "" || job.Status == status {
			filtered = append(filtered, copyJob(job))
		}
	}

	sort.Slice(filtered, func(i, j int) bool {
		if filtered[i].QueuedAt.Equal(filtered[j].QueuedAt) {
			return filtered[i].ID < filtered[j].ID
		}
		return filtered[i].QueuedAt.After(filtered[j].QueuedAt)
	})

	start := offset
	if start < 0 {
		start = 0
	}
	if start > len(filtered) {
		return []*Job{}
	}

	end := start + limit
	if end > len(filtered) {
		end = len(filtered)
	}

	return filtered[start:end]
}

// Stats counts jobs by status
type Stats struct {
	Total      int `json:"total"`
	Queued     int `json:"queued"`
	Processing int `json:"processing"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
}

// GetStats returns the job counts
func (q *Queue) GetStats() Stats {
	q.mu.RLock()
	defer q.mu.RUnlock()

	stats := Stats{Total: len(q.jobs)}
	for _, job := range q.jobs {
		switch job.Status {
		case StatusQueued:
			stats.Queued++
		case StatusProcessing:
			stats.Processing++
		case StatusCompleted:
			stats.Completed++
		case StatusFailed:
			stats.Failed++
		}
	}

	return stats
}

// Prune forgets finished jobs that completed before cutoff and returns how
// many were removed. Queued and running jobs are never pruned.
func (q *Queue) Prune(cutoff time.Time) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	removed := 0
	for id, job := range q.jobs {
		if job.CompletedAt == nil || !job.CompletedAt.Before(cutoff) {
			continue
		}
		delete(q.jobs, id)
		removed++
	}
	return removed
}

func copyJob(job *Job) *Job {
	jobCopy := *job
	if job.StartedAt != nil {
		startedCopy := *job.StartedAt
		jobCopy.StartedAt = &startedCopy
	}
	if job.CompletedAt != nil {
		completedCopy := *job.CompletedAt
		jobCopy.CompletedAt = &completedCopy
	}
	if job.Result != nil {
		resultCopy := *job.Result
		jobCopy.Result = &resultCopy
	}
	return &jobCopy
}

func (q *Queue) worker(id int) {
	defer q.wg.Done()

	for {
		select {
		case <-q.ctx.Done():
			return
		case job := <-q.pendingQueue:
			q.processJob(id, job)
		}
	}
}

// processJob runs one job and records its outcome. A panicking processor
// fails the job instead of taking the worker down.
func (q *Queue) processJob(workerID int, job *Job) {
	started := q.now()

	q.mu.Lock()
	job.Status = StatusProcessing
	startedAt := started.UTC()
	job.StartedAt = &startedAt
	snapshot := copyJob(job)
	q.mu.Unlock()

	result, err := q.run(snapshot)
	elapsed := q.now().Sub(started)

	q.mu.Lock()
	defer q.mu.Unlock()

	completedAt := q.now().UTC()
	job.CompletedAt = &completedAt

	logger := log.With().Str("job_id", job.ID).Int("worker", workerID).Dur("duration", elapsed).Logger()

	if err != nil {
		job.Status = StatusFailed
		job.ErrorMessage = err.Error()
		logger.Error().Err(err).Msg("Export job failed")
		return
	}

	if result == nil {
		result = &JobResult{}
	}
	result.ProcessingTimeMS = elapsed.Milliseconds()
	job.Status = StatusCompleted
	job.Result = result
	logger.Info().
		Int("trips", result.TripCount).
		Str("file", result.FilePath).
		Msg("Export job completed")
}

func (q *Queue) run(job *Job) (result *JobResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("export panicked: %v", r)
		}
	}()
	return q.processor(q.ctx, job)
}

// Shutdown stops the workers, abandoning queued jobs, and waits up to timeout
// for running ones to return
func (q *Queue) Shutdown(timeout time.Duration) error {
	q.cancel()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return ErrShutdownTimeout
	}
}
