package worker

import (
	"context"
	"sync"
)

// Job is a unit of work producing a result of type R
type Job[R any] interface {
	Execute(ctx context.Context) R
}

// Result is implemented by job results that can carry a failure
type Result interface {
	GetError() error
}

// Pool runs jobs on a fixed number of workers. A pool serves a single Run.
type Pool[R any] struct {
	workers    int
	jobQueue   chan Job[R]
	results    chan R
	wg         sync.WaitGroup
	ctx        context.Context
	cancelFunc context.CancelFunc
}

// NewPool creates a pool with the given number of workers (at least one).
// Cancelling ctx stops the workers after their current job.
func NewPool[R any](ctx context.Context, workers int) *Pool[R] {
	if workers <= 0 {
		workers = 1
	}

	ctx, cancel := context.WithCancel(ctx)

	return &Pool[R]{
		workers:    workers,
		jobQueue:   make(chan Job[R], workers*2),
		results:    make(chan R, workers*2),
		ctx:        ctx,
		cancelFunc: cancel,
	}
}

// Start launches the workers
func (p *Pool[R]) Start() {
	for range p.workers {
		p.wg.Add(1)
		go p.worker()
	}
}

func (p *Pool[R]) worker() {
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

// Run feeds jobs from a separate goroutine while draining results, so the
// batch size is not bounded by the channel buffers. onResult, if set, sees
// each result on the calling goroutine in completion order. Results of
// jobs still queued when ctx is cancelled are not returned.
func (p *Pool[R]) Run(jobs []Job[R], onResult func(R)) []R {
	go func() {
		defer close(p.jobQueue)
		for _, job := range jobs {
			select {
			case <-p.ctx.Done():
				return
			case p.jobQueue <- job:
			}
		}
	}()

	go func() {
		p.wg.Wait()
		close(p.results)
	}()

	results := make([]R, 0, len(jobs))
	for r := range p.results {
		results = append(results, r)
		if onResult != nil {
			onResult(r)
		}
	}
	p.cancelFunc()
	return results
}
