// Package queue runs background jobs such as order e-mails outside the
// request path.
//
//	queue.Register(SendOrderConfirmation{}.Name(), func() queue.Job { return &SendOrderConfirmation{} })
//	queue.Dispatch(ctx, &SendOrderConfirmation{Email: "buyer@example.com"})
//	queue.StartWorkers(ctx, 2)
//
// Jobs are JSON encoded, so a job's exported fields are its payload.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ourstore/storefront/pkg/logger"
	"github.com/ourstore/storefront/pkg/metrics"
)

// Job is a unit of background work.
type Job interface {
	// Name identifies the job type on the wire; it must be registered.
	Name() string
	// Handle executes the job. A non-nil error triggers a retry.
	Handle(ctx context.Context) error
}

// Driver is the queue storage backend.
type Driver interface {
	Push(ctx context.Context, payload []byte) error
	PushDelayed(ctx context.Context, payload []byte, delay time.Duration) error
	// Pop blocks until a payload is available. A nil payload with a nil
	// error means nothing arrived before the driver's poll timeout.
	Pop(ctx context.Context) ([]byte, error)
}

// FailedStore records jobs that exhausted their retries.
type FailedStore interface {
	Save(ctx context.Context, f FailedJob) error
}

var ErrUnknownJob = errors.New("queue: unregistered job type")

type envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Manager dispatches jobs to a driver and runs workers against it.
type Manager struct {
	mu       sync.RWMutex
	driver   Driver
	registry map[string]func() Job
	failed   FailedStore
	recent   []FailedJob
	maxRetry int
	backoff  time.Duration
	wg       sync.WaitGroup
}

type Option func(*Manager)

func WithMaxRetry(n int) Option { return func(m *Manager) { m.maxRetry = n } }

// WithBackoff sets the base delay; attempt n waits n × base.
func WithBackoff(base time.Duration) Option { return func(m *Manager) { m.backoff = base } }

func WithFailedStore(s FailedStore) Option { return func(m *Manager) { m.failed = s } }

func New(driver Driver, opts ...Option) *Manager {
	m := &Manager{
		driver:   driver,
		registry: map[string]func() Job{},
		maxRetry: 3,
		backoff:  time.Second,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Register makes a job type decodable by name.
func (m *Manager) Register(name string, factory func() Job) {
	m.mu.Lock()
	m.registry[name] = factory
	m.mu.Unlock()
}

func (m *Manager) encode(job Job) ([]byte, error) {
	payload, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("queue: marshal job %s: %w", job.Name(), err)
	}
	return json.Marshal(envelope{Type: job.Name(), Payload: payload})
}

func (m *Manager) currentDriver() Driver {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.driver
}

// Dispatch queues job for immediate processing.
func (m *Manager) Dispatch(ctx context.Context, job Job) error {
	raw, err := m.encode(job)
	if err != nil {
		return err
	}
	return m.currentDriver().Push(ctx, raw)
}


// Start launches n workers that run until ctx is cancelled.
func (m *Manager) Start(ctx context.Context, n int) {
	for i := 0; i < n; i++ {
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			m.work(ctx)
		}()
	}
	logger.Info("queue: workers started", "count", n)
}

// Wait blocks until every worker started by Start has returned.
func (m *Manager) Wait() { m.wg.Wait() }

func (m *Manager) work(ctx context.Context) {
	for ctx.Err() == nil {
		raw, err := m.currentDriver().Pop(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Warn("queue: pop failed", "error", err)
			sleep(ctx, 500*time.Millisecond)
			continue
		}
		if raw == nil {
			continue
		}
		m.process(ctx, raw)
	}
}

func (m *Manager) decode(raw []byte) (Job, string, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, "", fmt.Errorf("queue: bad envelope: %w", err)
	}
	m.mu.RLock()
	factory, ok := m.registry[env.Type]
	m.mu.RUnlock()
	if !ok {
		return nil, env.Type, fmt.Errorf("%w: %s", ErrUnknownJob, env.Type)
	}
	job := factory()
	if err := json.Unmarshal(env.Payload, job); err != nil {
		return nil, env.Type, fmt.Errorf("queue: unmarshal %s: %w", env.Type, err)
	}
	return job, env.Type, nil
}

func (m *Manager) process(ctx context.Context, raw []byte) {
	job, typ, err := m.decode(raw)
	if err != nil {
		logger.Error("queue: dropping job", "type", typ, "error", err)
		m.recordFailure(ctx, FailedJob{JobType: typ, Payload: string(raw), Error: err.Error()})
		return
	}
	m.runWithRetry(ctx, job, raw)
}

func (m *Manager) runWithRetry(ctx context.Context, job Job, raw []byte) {
	var lastErr error
	for attempt := 1; attempt <= m.maxRetry; attempt++ {
		start := time.Now()
		err := m.safeHandle(ctx, job)
		if err == nil {
			metrics.RecordQueueJob(job.Name(), "ok", start)
			logger.Debug("queue: job processed", "type", job.Name(), "attempt", attempt)
			return
		}
		lastErr = err
		metrics.RecordQueueJob(job.Name(), "error", start)
		logger.Warn("queue: job failed", "type", job.Name(), "attempt", attempt, "error", err)
		if attempt < m.maxRetry && !sleep(ctx, time.Duration(attempt)*m.backoff) {
			break
		}
	}

	logger.Error("queue: job exhausted retries", "type", job.Name(), "error", lastErr)
	m.recordFailure(ctx, FailedJob{
		JobType:  job.Name(),
		Payload:  string(raw),
		Error:    lastErr.Error(),
		Attempts: m.maxRetry,
	})
}

func (m *Manager) safeHandle(ctx context.Context, job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("queue: job panicked: %v", r)
		}
	}()
	return job.Handle(ctx)
}

const recentFailures = 100

func (m *Manager) recordFailure(ctx context.Context, f FailedJob) {
	f.FailedAt = time.Now().UTC()
	m.mu.Lock()
	m.recent = append(m.recent, f)
	if len(m.recent) > recentFailures {
		m.recent = m.recent[len(m.recent)-recentFailures:]
	}
	store := m.failed
	m.mu.Unlock()

	if store == nil {
		return
	}
	if err := store.Save(context.WithoutCancel(ctx), f); err != nil {
		logger.Error("queue: persist failed job", "type", f.JobType, "error", err)
	}
}

// FailedJobs returns the most recent failures seen by this process.
func (m *Manager) FailedJobs() []FailedJob {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]FailedJob(nil), m.recent...)
}

// Retry re-queues a recorded failure, after delay when it is positive.
func (m *Manager) Retry(ctx context.Context, f FailedJob, delay time.Duration) error {
	if _, _, err := m.decode([]byte(f.Payload)); err != nil {
		return err
	}
	if delay > 0 {
		return m.currentDriver().PushDelayed(ctx, []byte(f.Payload), delay)
	}
	return m.currentDriver().Push(ctx, []byte(f.Payload))
}

// sleep waits for d or until ctx ends, reporting whether d elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
