// Package workerpool is a bounded goroutine pool. When every worker is
// busy and the backlog is full, Submit fails fast with ErrPoolFull so the
// caller decides whether to drop, retry or block with SubmitWait.
package workerpool

import (
	"context"
	"errors"
	"runtime/debug"
	"sync"

	"github.com/ourstore/storefront/pkg/logger"
)

var (
	ErrPoolFull   = errors.New("workerpool: pool is full")
	ErrPoolClosed = errors.New("workerpool: pool is closed")
)

// Pool runs submitted tasks on a fixed set of workers.
type Pool struct {
	name  string
	tasks chan func()
	wg    sync.WaitGroup

	// mu guards closed so no send races the close of tasks.
	mu     sync.RWMutex
	closed bool
}

// New starts size workers with a backlog of 2×size tasks. name labels
// panic logs.
func New(name string, size int) *Pool {
	if size <= 0 {
		size = 1
	}
	p := &Pool{name: name, tasks: make(chan func(), size*2)}
	for i := 0; i < size; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	return p
}

// Submit enqueues task without blocking.
func (p *Pool) Submit(task func()) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPoolClosed
	}
	select {
	case p.tasks <- task:
		return nil
	default:
		return ErrPoolFull
	}
}

// SubmitWait blocks until task is enqueued or ctx ends.
func (p *Pool) SubmitWait(ctx context.Context, task func()) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPoolClosed
	}
	select {
	case p.tasks <- task:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown stops accepting tasks and waits for queued ones to finish or
// for ctx to end. Calling it again is a no-op.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.tasks)
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
		return ctx.Err()
	}
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for task := range p.tasks {
		p.run(task)
	}
}

func (p *Pool) run(task func()) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("workerpool: task panicked", "pool", p.name, "panic", r, "stack", string(debug.Stack()))
		}
	}()
	task()
}
