// Package worker provides bounded concurrency and request pacing for bulk
// verification runs.
package worker

import (
	"context"
	"sync"
)

// Job represents a unit of work to be executed
type Job interface {
	Execute(ctx context.Context) Result
}

// Result represents the result of a job execution
type Result interface {
	GetError() error
}

// Pool manages a pool of workers that execute jobs concurrently
type Pool struct {
	workers    int
	jobQueue   chan Job
	results    chan Result
	wg         sync.WaitGroup
	ctx        context.Context
	cancelFunc context.CancelFunc
}

// NewPool creates a pool bound to parent; cancelling parent stops the workers
func NewPool(parent context.Context, workers int) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if parent == nil {
		parent = context.Background()
	}

	ctx, cancel := context.WithCancel(parent)

	return &Pool{
		workers:    workers,
		jobQueue:   make(chan Job, workers*2),
		results:    make(chan Result, workers*2),
		ctx:        ctx,
		cancelFunc: cancel,
	}
}

// Start starts the worker goroutines
func (p *Pool) Start() {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
}

func (p *Pool) worker() {
	defer p.wg.Done()

	for {
		select {
		case <-p.ctx.Done():
			return
		case job, ok := <-p.jobQueue:
			if !ok {
				return
			}
			result := job.Execute(p.ctx)
			select {
			case p.results <- result:
			case <-p.ctx.Done():
				return
			}
		}
	}
}

// Submit queues a job. It reports false when the pool has been cancelled.
// Results must be drained concurrently once more than the queue capacity
// is submitted.
func (p *Pool) Submit(job Job) bool {
	if p.ctx.Err() != nil {
		return false
	}
	select {
	case <-p.ctx.Done():
		return false
	case p.jobQueue <- job:
		return true
	}
}

// drain collects results until the stream is closed by finish
func (p *Pool) drain() <-chan []Result {
	collected := make(chan []Result, 1)
	go func() {
		var results []Result
		for r := range p.results {
			results = append(results, r)
		}
		collected <- results
	}()
	return collected
}

// finish closes the queue, waits for the workers and closes the result stream
func (p *Pool) finish() {
	close(p.jobQueue)
	p.wg.Wait()
	close(p.results)
	p.cancelFunc()
}

// Run executes every job with the given concurrency and returns all results.
// Submission and collection overlap, so any number of jobs is safe. Once ctx
// ends no further jobs start; running jobs see the cancellation.
func Run(ctx context.Context, workers int, jobs []Job) []Result {
	pool := NewPool(ctx, workers)
	pool.Start()
	collected := pool.drain()

	for _, job := range jobs {
		if !pool.Submit(job) {
			break
		}
	}
	pool.finish()

	return <-collected
}
