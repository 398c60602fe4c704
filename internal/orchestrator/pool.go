package orchestrator

import (
	"context"
	"sync"
)

// Default pool sizing.
const (
	DefaultWorkers   = 8
	DefaultQueueSize = 64
)

type task struct {
	name string
	fn   func()
}

// Pool is a fixed set of workers fed by a bounded queue.
//
// Submit never blocks: when the queue is full the task is dropped and a
// warning logged. Event callbacks use it to hand work off without stalling
// the goroutine that fired the event.
type Pool struct {
	queue  chan task
	wg     sync.WaitGroup
	logger Logger

	// mu orders Submit against Close so nothing is sent on a closed queue.
	mu     sync.RWMutex
	closed bool
}

// NewPool starts workers goroutines reading from a queue of queueSize.
func NewPool(workers, queueSize int, logger Logger) *Pool {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	if logger == nil {
		logger = noopLogger{}
	}

	p := &Pool{
		queue:  make(chan task, queueSize),
		logger: logger,
	}
	for i := range workers {
		p.wg.Add(1)
		go p.worker(i)
	}
	logger.Debug("worker pool started", "workers", workers, "queue_size", queueSize)
	return p
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()
	for t := range p.queue {
		if err := Protect(func() error { t.fn(); return nil }); err != nil {
			p.logger.Error("pooled task panicked", "task", t.name, "worker", id, "error", err)
		}
	}
}

// Submit queues fn. It reports false when the task was dropped because the
// queue is full or the pool is closed.
func (p *Pool) Submit(name string, fn func()) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		p.logger.Warn("worker pool closed, dropping task", "task", name)
		return false
	}
	select {
	case p.queue <- task{name: name, fn: fn}:
		return true
	default:
		p.logger.Warn("worker pool queue full, dropping task", "task", name)
		return false
	}
}

// Pending returns the number of queued tasks not yet picked up.
func (p *Pool) Pending() int {
	return len(p.queue)
}

// Close stops accepting tasks and waits for queued ones to finish, or for
// ctx to expire. It is safe to call more than once.
func (p *Pool) Close(ctx context.Context) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.queue)
	}
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		p.logger.Warn("worker pool shutdown timed out, some tasks may not have finished")
		return ctx.Err()
	}
}
