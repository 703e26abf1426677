package overpass

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// ErrQueueClosed is returned by Fetch after Stop.
var ErrQueueClosed = errors.New("fetch queue is shutting down")

// Querier executes one query; *Fetcher satisfies it.
type Querier interface {
	Fetch(ctx context.Context, query string) (*Response, error)
}

// QueueStatus is a snapshot of the queue counters.
type QueueStatus struct {
	// ActiveFetches is the number of currently in-flight queries
	ActiveFetches int `json:"active_fetches"`
	// QueuedFetches is the number of jobs waiting in the queue
	QueuedFetches int `json:"queued_fetches"`
	// TotalCompleted is the total number of successful queries since start
	TotalCompleted int64 `json:"total_completed"`
	// TotalFailed is the total number of failed queries since start
	TotalFailed int64 `json:"total_failed"`
	// TotalElements is the total number of elements received since start
	TotalElements int64 `json:"total_elements"`
}

// QueueConfig configures the fetch queue.
type QueueConfig struct {
	// Workers is the number of concurrent queries (default: 2, the slot
	// count public Overpass instances grant per client)
	Workers int
	// QueueSize is the maximum number of pending queries (default: 100)
	QueueSize int
	// ElementWarningThreshold warns when a response exceeds this many elements (default: 5000)
	ElementWarningThreshold int
	Logger                  *slog.Logger
}

type queueJob struct {
	ctx    context.Context
	query  string
	result chan queueResult
}

type queueResult struct {
	resp *Response
	err  error
}

// Queue bounds the number of concurrent queries that many parallel searches
// send to the mirrors. It implements the same Fetch method as Fetcher.
type Queue struct {
	next      Querier
	jobs      chan queueJob
	cfg       QueueConfig
	done      chan struct{}
	wg        sync.WaitGroup
	startOnce sync.Once
	stopOnce  sync.Once

	// mu guards closed; Fetch enqueues under the read lock.
	mu     sync.RWMutex
	closed bool

	activeFetches  atomic.Int32
	totalCompleted atomic.Int64
	totalFailed    atomic.Int64
	totalElements  atomic.Int64
}

// NewQueue creates a queue in front of next. Call Start before Fetch.
func NewQueue(next Querier, cfg QueueConfig) *Queue {
	if cfg.Workers < 1 {
		cfg.Workers = 2
	}
	if cfg.QueueSize < 1 {
		cfg.QueueSize = 100
	}
	if cfg.ElementWarningThreshold <= 0 {
		cfg.ElementWarningThreshold = 5000
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Queue{
		next: next,
		jobs: make(chan queueJob, cfg.QueueSize),
		cfg:  cfg,
		done: make(chan struct{}),
	}
}

// Start launches the workers.
func (q *Queue) Start() {
	q.startOnce.Do(func() {
		q.cfg.Logger.Debug("starting fetch queue workers", "workers", q.cfg.Workers)
		for i := 0; i < q.cfg.Workers; i++ {
			q.wg.Add(1)
			go q.worker(i)
		}
	})
}

// Stop rejects new queries and waits for in-flight ones to finish.
// Queued queries that have not started fail with ErrQueueClosed.
func (q *Queue) Stop() {
	q.stopOnce.Do(func() {
		q.mu.Lock()
		q.closed = true
		q.mu.Unlock()

		close(q.done)
		q.wg.Wait()
		for {
			select {
			case job := <-q.jobs:
				job.result <- queueResult{err: ErrQueueClosed}
			default:
				return
			}
		}
	})
}

// Fetch enqueues query and blocks until a worker ran it or ctx is done.
func (q *Queue) Fetch(ctx context.Context, query string) (*Response, error) {
	job := queueJob{ctx: ctx, query: query, result: make(chan queueResult, 1)}

	q.mu.RLock()
	if q.closed {
		q.mu.RUnlock()
		return nil, ErrQueueClosed
	}
	select {
	case q.jobs <- job:
		q.mu.RUnlock()
	case <-ctx.Done():
		q.mu.RUnlock()
		return nil, ctx.Err()
	}

	select {
	case r := <-job.result:
		return r.resp, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Status returns the current counters.
func (q *Queue) Status() QueueStatus {
	return QueueStatus{
		ActiveFetches:  int(q.activeFetches.Load()),
		QueuedFetches:  len(q.jobs),
		TotalCompleted: q.totalCompleted.Load(),
		TotalFailed:    q.totalFailed.Load(),
		TotalElements:  q.totalElements.Load(),
	}
}

func (q *Queue) worker(id int) {
	defer q.wg.Done()
	log := q.cfg.Logger.With("worker_id", id)

	for {
		select {
		case <-q.done:
			log.Debug("fetch worker stopping")
			return
		case job := <-q.jobs:
			job.result <- q.run(job, log)
		}
	}
}

func (q *Queue) run(job queueJob, log *slog.Logger) queueResult {
	// The caller gave up while the job was queued.
	if err := job.ctx.Err(); err != nil {
		return queueResult{err: err}
	}

	q.activeFetches.Add(1)
	defer q.activeFetches.Add(-1)

	start := time.Now()
	resp, err := q.next.Fetch(job.ctx, job.query)
	elapsed := time.Since(start)

	if err != nil {
		q.totalFailed.Add(1)
		log.Debug("queued fetch failed", "error", err, "duration_ms", elapsed.Milliseconds())
		return queueResult{err: err}
	}

	q.totalCompleted.Add(1)
	q.totalElements.Add(int64(len(resp.Elements)))

	if len(resp.Elements) > q.cfg.ElementWarningThreshold {
		log.Warn("response exceeds element threshold - consider a smaller radius or fewer categories",
			"threshold", q.cfg.ElementWarningThreshold,
			"elements", len(resp.Elements),
		)
	}
	return queueResult{resp: resp}
}
