// Package worker runs many proximity searches in parallel.
package worker

import (
	"context"
	"sync"
	"time"

	"github.com/MeKo-Tech/proximity/internal/search"
	"github.com/MeKo-Tech/proximity/internal/types"
)

// Searcher runs a single search.
// This matches the signature of search.Coordinator.Search.
type Searcher interface {
	Search(ctx context.Context, req search.Request) (*types.SearchResult, error)
}

// Task is one search of a batch.
type Task struct {
	ID      string
	Request search.Request
}

// Result is the outcome of a task.
type Result struct {
	Task    Task
	Result  *types.SearchResult
	Err     error
	Elapsed time.Duration
}

// ProgressFunc is called after each task completes.
type ProgressFunc func(completed, total, failed int)

// Config configures the worker pool.
type Config struct {
	Workers    int
	Searcher   Searcher
	OnProgress ProgressFunc
}

// Pool runs searches on a bounded number of goroutines. Searches share no
// state, so one slow mirror failover only blocks its own worker.
type Pool struct {
	workers    int
	searcher   Searcher
	onProgress ProgressFunc
}

// New creates a new worker pool.
func New(cfg Config) *Pool {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}

	return &Pool{
		workers:    workers,
		searcher:   cfg.Searcher,
		onProgress: cfg.OnProgress,
	}
}

type indexed struct {
	i int
	Result
}

// Run executes all tasks and returns one result per task, in task order.
// It blocks until all tasks complete or the context is cancelled; tasks that
// never started report the context's error.
func (p *Pool) Run(ctx context.Context, tasks []Task) []Result {
	if len(tasks) == 0 {
		return nil
	}

	taskCh := make(chan int, len(tasks))
	resultCh := make(chan indexed, len(tasks))

	var wg sync.WaitGroup
	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.worker(ctx, tasks, taskCh, resultCh)
		}()
	}

	// Feed tasks
	go func() {
		defer close(taskCh)
		for i := range tasks {
			select {
			case taskCh <- i:
			case <-ctx.Done():
				return
			}
		}
	}()

	results := make([]Result, len(tasks))
	seen := make([]bool, len(tasks))
	done := make(chan struct{})

	go func() {
		completed, failed := 0, 0
		for r := range resultCh {
			results[r.i] = r.Result
			seen[r.i] = true

			completed++
			if r.Err != nil {
				failed++
			}
			if p.onProgress != nil {
				p.onProgress(completed, len(tasks), failed)
			}
		}
		close(done)
	}()

	wg.Wait()
	close(resultCh)
	<-done

	for i := range results {
		if !seen[i] {
			results[i] = Result{Task: tasks[i], Err: ctx.Err()}
		}
	}
	return results
}

// worker processes task indexes until the channel is closed.
func (p *Pool) worker(ctx context.Context, tasks []Task, indexes <-chan int, results chan<- indexed) {
	for i := range indexes {
		task := tasks[i]

		select {
		case <-ctx.Done():
			results <- indexed{i: i, Result: Result{Task: task, Err: ctx.Err()}}
			continue
		default:
		}

		start := time.Now()
		res, err := p.searcher.Search(ctx, task.Request)

		results <- indexed{i: i, Result: Result{
			Task:    task,
			Result:  res,
			Err:     err,
			Elapsed: time.Since(start),
		}}
	}
}
