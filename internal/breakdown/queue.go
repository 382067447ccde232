package breakdown

import (
	"context"
	"errors"
	"sync"
	"time"

	"docbreak/internal/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrQueueClosed is returned by Enqueue after Shutdown.
var ErrQueueClosed = errors.New("queue is shutting down")

// JobState is the polled state of a background job.
type JobState string

const (
	JobQueued  JobState = "queued"
	JobRunning JobState = "running"
	JobDone    JobState = "done"
	JobFailed  JobState = "failed"
)

// Job is a snapshot of one background processing run.
type Job struct {
	ID          string    `json:"id"`
	DocumentID  string    `json:"document_id"`
	State       JobState  `json:"state"`
	Error       string    `json:"error,omitempty"`
	BreakdownID string    `json:"breakdown_id,omitempty"`
	EnqueuedAt  time.Time `json:"enqueued_at"`
	StartedAt   time.Time `json:"started_at,omitempty"`
	FinishedAt  time.Time `json:"finished_at,omitempty"`
}

// Processor runs one document. A nil breakdown with a nil error is a job that
// finished without producing one.
type Processor interface {
	Process(ctx context.Context, docID string) (*store.Breakdown, error)
}

// Queue processes documents on a fixed pool of workers. Callers get a job id
// back immediately and poll Status.
type Queue struct {
	proc    Processor
	log     *zap.Logger
	workers int
	timeout time.Duration

	ch   chan string
	wg   sync.WaitGroup
	once sync.Once

	mu     sync.Mutex
	closed bool

	jobsMu sync.RWMutex
	jobs   map[string]*Job
}

type Option func(*Queue)

func WithWorkers(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.workers = n
		}
	}
}

func WithQueueSize(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.ch = make(chan string, n)
		}
	}
}

func WithProcessTimeout(d time.Duration) Option {
	return func(q *Queue) {
		if d > 0 {
			q.timeout = d
		}
	}
}

// NewQueue starts the workers.
func NewQueue(proc Processor, log *zap.Logger, opts ...Option) *Queue {
	if log == nil {
		log = zap.NewNop()
	}
	q := &Queue{
		proc:    proc,
		log:     log,
		workers: 2,
		timeout: 10 * time.Minute,
		ch:      make(chan string, 256),
		jobs:    make(map[string]*Job),
	}
	for _, o := range opts {
		o(q)
	}
	q.start()
	return q
}

func (q *Queue) start() {
	q.once.Do(func() {
		for i := 0; i < q.workers; i++ {
			q.wg.Add(1)
			go func(workerID int) {
				defer q.wg.Done()
				q.log.Debug("queue.worker_started", zap.Int("worker_id", workerID))
				for id := range q.ch {
					q.run(workerID, id)
				}
				q.log.Debug("queue.worker_stopped", zap.Int("worker_id", workerID))
			}(i + 1)
		}
	})
}

func (q *Queue) run(workerID int, jobID string) {
	docID := q.update(jobID, func(j *Job) {
		j.State = JobRunning
		j.StartedAt = time.Now()
	})

	ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
	b, err := q.proc.Process(ctx, docID)
	cancel()

	q.update(jobID, func(j *Job) {
		j.FinishedAt = time.Now()
		if err != nil {
			j.State = JobFailed
			j.Error = err.Error()
			return
		}
		j.State = JobDone
		if b != nil {
			j.BreakdownID = b.ID
		}
	})
	if err != nil {
		q.log.Error("queue.job_failed", zap.Int("worker_id", workerID), zap.String("job_id", jobID), zap.String("document_id", docID), zap.Error(err))
		return
	}
	q.log.Info("queue.job_done", zap.Int("worker_id", workerID), zap.String("job_id", jobID), zap.String("document_id", docID))
}

func (q *Queue) update(jobID string, fn func(*Job)) string {
	q.jobsMu.Lock()
	defer q.jobsMu.Unlock()
	j := q.jobs[jobID]
	fn(j)
	return j.DocumentID
}

// Enqueue schedules docID and returns the job id. When the buffer is full it
// blocks until a slot frees up or ctx is done.
func (q *Queue) Enqueue(ctx context.Context, docID string) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return "", ErrQueueClosed
	}

	job := &Job{ID: uuid.NewString(), DocumentID: docID, State: JobQueued, EnqueuedAt: time.Now()}
	q.jobsMu.Lock()
	q.jobs[job.ID] = job
	q.jobsMu.Unlock()

	select {
	case q.ch <- job.ID:
	default:
		q.log.Warn("queue.full", zap.String("document_id", docID))
		select {
		case q.ch <- job.ID:
		case <-ctx.Done():
			q.jobsMu.Lock()
			delete(q.jobs, job.ID)
			q.jobsMu.Unlock()
			return "", ctx.Err()
		}
	}
	q.log.Info("queue.enqueued", zap.String("job_id", job.ID), zap.String("document_id", docID))
	return job.ID, nil
}

// Status returns a copy of the job.
func (q *Queue) Status(jobID string) (Job, bool) {
	q.jobsMu.RLock()
	defer q.jobsMu.RUnlock()
	j, ok := q.jobs[jobID]
	if !ok {
		return Job{}, false
	}
	return *j, true
}

// Shutdown stops accepting jobs and waits for queued ones to drain or ctx to
// end.
func (q *Queue) Shutdown(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.ch)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() { defer close(done); q.wg.Wait() }()

	select {
	case <-ctx.Done():
		q.log.Warn("queue.shutdown_interrupted")
		return ctx.Err()
	case <-done:
		q.log.Info("queue.drained")
		return nil
	}
}
