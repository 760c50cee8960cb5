package catalogsync

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/panics"
)

const maxRetainedRuns = 100

var (
	ErrQueueFull    = errors.New("catalog sync queue is full")
	ErrQueueStopped = errors.New("catalog sync queue is stopped")
	ErrRunNotFound  = errors.New("catalog sync run not found")
)

// RunState is the lifecycle state of a queued sync run.
type RunState string

const (
	RunQueued    RunState = "queued"
	RunRunning   RunState = "running"
	RunCompleted RunState = "completed"
	RunFailed    RunState = "failed"
	RunCancelled RunState = "cancelled"
)

// RunStatus is the pollable record of one on-demand sync.
type RunStatus struct {
	ID                string     `json:"id"`
	CatalogID         string     `json:"catalogId"`
	Kind              string     `json:"kind"`
	CollectionName    string     `json:"collectionName,omitempty"`
	CollectionID      int64      `json:"collectionId,omitempty"`
	State             RunState   `json:"state"`
	TotalCatalogItems int        `json:"totalCatalogItems"`
	ExistingCount     int        `json:"existingCount"`
	MissingCount      int        `json:"missingCount"`
	Unidentified      int        `json:"unidentified"`
	SuccessCount      int        `json:"successCount"`
	FailedCount       int        `json:"failedCount"`
	SkippedCount      int        `json:"skippedCount"`
	QueuedAt          time.Time  `json:"queuedAt"`
	StartedAt         *time.Time `json:"startedAt,omitempty"`
	CompletedAt       *time.Time `json:"completedAt,omitempty"`
	Error             string     `json:"error,omitempty"`
}

// RunResult is what a job reports back to the queue.
type RunResult struct {
	CollectionID int64
	Diff         MembershipDiff
	Report       ImportReport
}

// RunRequest describes a job at submission time.
type RunRequest struct {
	CatalogID      string
	Kind           string
	CollectionName string
}

// JobFunc performs the work of one run.
type JobFunc func(ctx context.Context, runID string) (RunResult, error)

type job struct {
	id string
	fn JobFunc
}

// Queue runs submitted sync jobs one at a time on a single worker.
type Queue struct {
	jobs   chan job
	logger zerolog.Logger

	mu      sync.RWMutex
	runs    map[string]*RunStatus
	order   []string
	stopped bool

	wg     conc.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once
}

// NewQueue creates a queue holding at most size pending jobs.
func NewQueue(size int, logger zerolog.Logger) *Queue {
	if size <= 0 {
		size = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Queue{
		jobs:   make(chan job, size),
		logger: logger.With().Str("component", "catalogsync-queue").Logger(),
		runs:   make(map[string]*RunStatus),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start launches the worker. The worker stops when ctx is cancelled or Stop is called.
func (q *Queue) Start(ctx context.Context) {
	q.once.Do(func() {
		go func() {
			select {
			case <-ctx.Done():
				q.cancel()
			case <-q.ctx.Done():
			}
		}()
		q.wg.Go(q.work)
	})
}

// Stop cancels the running job, marks pending jobs cancelled and waits for the worker.
func (q *Queue) Stop() {
	q.mu.Lock()
	q.stopped = true
	q.mu.Unlock()

	q.cancel()
	q.wg.Wait()
	q.drain()
}

// Submit enqueues a job and returns its initial status.
func (q *Queue) Submit(req RunRequest, fn JobFunc) (RunStatus, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.stopped {
		return RunStatus{}, ErrQueueStopped
	}

	status := &RunStatus{
		ID:             uuid.NewString(),
		CatalogID:      req.CatalogID,
		Kind:           req.Kind,
		CollectionName: req.CollectionName,
		State:          RunQueued,
		QueuedAt:       time.Now().UTC(),
	}

	select {
	case q.jobs <- job{id: status.ID, fn: fn}:
	default:
		return RunStatus{}, ErrQueueFull
	}

	q.runs[status.ID] = status
	q.order = append(q.order, status.ID)
	q.evictLocked()

	return *status, nil
}

// Get returns the status of a run.
func (q *Queue) Get(id string) (RunStatus, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	st, ok := q.runs[id]
	if !ok {
		return RunStatus{}, ErrRunNotFound
	}
	return *st, nil
}

// List returns retained runs, newest first.
func (q *Queue) List() []RunStatus {
	q.mu.RLock()
	defer q.mu.RUnlock()
	out := make([]RunStatus, 0, len(q.order))
	for i := len(q.order) - 1; i >= 0; i-- {
		out = append(out, *q.runs[q.order[i]])
	}
	return out
}

func (q *Queue) work() {
	for {
		select {
		case <-q.ctx.Done():
			return
		case j := <-q.jobs:
			q.execute(j)
		}
	}
}

func (q *Queue) execute(j job) {
	if q.ctx.Err() != nil {
		q.finish(j.id, RunResult{}, q.ctx.Err())
		return
	}

	now := time.Now().UTC()
	q.update(j.id, func(st *RunStatus) {
		st.State = RunRunning
		st.StartedAt = &now
	})

	var (
		result RunResult
		err    error
		pc     panics.Catcher
	)
	pc.Try(func() {
		result, err = j.fn(q.ctx, j.id)
	})
	if r := pc.Recovered(); r != nil {
		q.logger.Error().Str("runId", j.id).Str("panic", r.String()).Msg("Catalog sync job panicked")
		err = r.AsError()
	}

	q.finish(j.id, result, err)
}

func (q *Queue) finish(id string, result RunResult, err error) {
	now := time.Now().UTC()
	q.update(id, func(st *RunStatus) {
		st.CompletedAt = &now
		if result.CollectionID != 0 {
			st.CollectionID = result.CollectionID
		}
		st.TotalCatalogItems = result.Diff.TotalCatalogItems
		st.ExistingCount = len(result.Diff.ExistingIDs)
		st.MissingCount = len(result.Diff.MissingIDs)
		st.Unidentified = result.Diff.Unidentified
		st.SuccessCount = result.Report.SuccessCount
		st.FailedCount = result.Report.FailedCount
		st.SkippedCount = result.Report.SkippedCount

		switch {
		case errors.Is(err, context.Canceled) || result.Report.Cancelled:
			st.State = RunCancelled
		case err != nil:
			st.State = RunFailed
			st.Error = err.Error()
		default:
			st.State = RunCompleted
		}
	})
}

// drain marks jobs that never started as cancelled.
func (q *Queue) drain() {
	for {
		select {
		case j := <-q.jobs:
			q.finish(j.id, RunResult{}, context.Canceled)
		default:
			return
		}
	}
}

func (q *Queue) update(id string, fn func(st *RunStatus)) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if st, ok := q.runs[id]; ok {
		fn(st)
	}
}

func (q *Queue) evictLocked() {
	for len(q.order) > maxRetainedRuns {
		oldest := q.order[0]
		if st := q.runs[oldest]; st != nil && (st.State == RunQueued || st.State == RunRunning) {
			return
		}
		q.order = q.order[1:]
		delete(q.runs, oldest)
	}
}
