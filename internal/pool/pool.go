// Package pool provides the bounded worker pool that runs one proxying job
// per accepted connection.
package pool

import (
	"log/slog"
	"sync"
)

// Pool runs submitted jobs on a fixed number of workers, each executing one
// job at a time with blocking I/O inside it. Submission is fire-and-forget;
// when all workers are busy and the queue is full, Submit blocks, which is
// the backpressure the accept loop relies on.
type Pool struct {
	jobs      chan func()
	wg        sync.WaitGroup
	logger    *slog.Logger
	closeOnce sync.Once
}

// New starts a pool of size workers with a queue of the same depth.
func New(size int, logger *slog.Logger) *Pool {
	if size < 1 {
		size = 1
	}
	p := &Pool{
		jobs:   make(chan func(), size),
		logger: logger.With("component", "pool"),
	}
	p.wg.Add(size)
	for i := 0; i < size; i++ {
		go p.worker(i)
	}
	return p
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()
	for job := range p.jobs {
		p.run(id, job)
	}
}

// run isolates one job so a panic cannot take the worker, the dispatch
// loop, or other in-flight jobs down with it.
func (p *Pool) run(id int, job func()) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("job panicked", "worker", id, "panic", r)
		}
	}()
	job()
}

// Submit queues job for execution. It must not be called after Close.
func (p *Pool) Submit(job func()) {
	p.jobs <- job
}

// Close stops accepting jobs and waits for queued and in-flight jobs to
// finish.
func (p *Pool) Close() {
	p.closeOnce.Do(func() { close(p.jobs) })
	p.wg.Wait()
}
