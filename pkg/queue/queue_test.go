package queue_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ourstore/storefront/pkg/queue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var handled sync.Map // job key → *atomic.Int32

func counter(key string) *atomic.Int32 {
	c, _ := handled.LoadOrStore(key, &atomic.Int32{})
	return c.(*atomic.Int32)
}

type echoJob struct {
	Key string `json:"key"`
}

func (echoJob) Name() string { return "echo" }

func (j *echoJob) Handle(context.Context) error {
	counter(j.Key).Add(1)
	return nil
}

type failJob struct {
	Key string `json:"key"`
}

func (failJob) Name() string { return "fail" }

func (j *failJob) Handle(context.Context) error {
	counter(j.Key).Add(1)
	return errors.New("always fails")
}

type panicJob struct{}

func (panicJob) Name() string                    { return "panic" }
func (*panicJob) Handle(context.Context) error { panic("boom") }

type memoryFailures struct {
	mu   sync.Mutex
	list []queue.FailedJob
}

func (m *memoryFailures) Save(_ context.Context, f queue.FailedJob) error {
	m.mu.Lock()
	m.list = append(m.list, f)
	m.mu.Unlock()
	return nil
}

func (m *memoryFailures) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.list)
}

func newManager(t *testing.T, opts ...queue.Option) (*queue.Manager, *memoryFailures) {
	t.Helper()
	failures := &memoryFailures{}
	opts = append([]queue.Option{queue.WithBackoff(5 * time.Millisecond), queue.WithFailedStore(failures)}, opts...)
	m := queue.New(queue.NewMemoryDriver(), opts...)
	m.Register("echo", func() queue.Job { return &echoJob{} })
	m.Register("fail", func() queue.Job { return &failJob{} })
	m.Register("panic", func() queue.Job { return &panicJob{} })

	ctx, cancel := context.WithCancel(context.Background())
	m.Start(ctx, 2)
	t.Cleanup(func() {
		cancel()
		m.Wait()
	})
	return m, failures
}

func TestDispatchAndProcess(t *testing.T) {
	m, _ := newManager(t)

	require.NoError(t, m.Dispatch(context.Background(), &echoJob{Key: t.Name()}))
	assert.Eventually(t, func() bool { return counter(t.Name()).Load() == 1 }, time.Second, 5*time.Millisecond)
}

func TestFailedJobIsRetriedThenRecorded(t *testing.T) {
	m, failures := newManager(t, queue.WithMaxRetry(3))

	require.NoError(t, m.Dispatch(context.Background(), &failJob{Key: t.Name()}))
	assert.Eventually(t, func() bool { return failures.len() == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(3), counter(t.Name()).Load())

	f := m.FailedJobs()[0]
	assert.Equal(t, "fail", f.JobType)
	assert.Equal(t, 3, f.Attempts)
	assert.Equal(t, "always fails", f.Error)
	assert.Contains(t, f.Payload, t.Name())
}

func TestRetryRequeuesFailure(t *testing.T) {
	m, failures := newManager(t, queue.WithMaxRetry(1))

	require.NoError(t, m.Dispatch(context.Background(), &failJob{Key: t.Name()}))
	require.Eventually(t, func() bool { return failures.len() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, m.Retry(context.Background(), m.FailedJobs()[0], 0))
	assert.Eventually(t, func() bool { return failures.len() == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(2), counter(t.Name()).Load())
}

func TestPanickingJobIsRecorded(t *testing.T) {
	m, failures := newManager(t, queue.WithMaxRetry(1))

	require.NoError(t, m.Dispatch(context.Background(), &panicJob{}))
	assert.Eventually(t, func() bool { return failures.len() == 1 }, time.Second, 5*time.Millisecond)
	assert.Contains(t, m.FailedJobs()[0].Error, "panicked")
}

func TestUnregisteredJobIsRecorded(t *testing.T) {
	failures := &memoryFailures{}
	m := queue.New(queue.NewMemoryDriver(), queue.WithFailedStore(failures))
	ctx, cancel := context.WithCancel(context.Background())
	defer func() { cancel(); m.Wait() }()
	m.Start(ctx, 1)

	require.NoError(t, m.Dispatch(ctx, &echoJob{Key: t.Name()}))
	assert.Eventually(t, func() bool { return failures.len() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(0), counter(t.Name()).Load())
}

func TestRetryAfterDelay(t *testing.T) {
	m, failures := newManager(t, queue.WithMaxRetry(1))

	require.NoError(t, m.Dispatch(context.Background(), &failJob{Key: t.Name()}))
	require.Eventually(t, func() bool { return failures.len() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, m.Retry(context.Background(), m.FailedJobs()[0], 100*time.Millisecond))
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(1), counter(t.Name()).Load(), "not run before the delay")
	assert.Eventually(t, func() bool { return counter(t.Name()).Load() == 2 }, time.Second, 5*time.Millisecond)
}

func TestDispatchConcurrent(t *testing.T) {
	m, _ := newManager(t)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, m.Dispatch(context.Background(), &echoJob{Key: t.Name()}))
		}()
	}
	wg.Wait()
	assert.Eventually(t, func() bool { return counter(t.Name()).Load() == 50 }, 2*time.Second, 5*time.Millisecond)
}

func TestMemoryDriverRejectsWhenFull(t *testing.T) {
	d := queue.NewMemoryDriver()
	for i := 0; i < 1000; i++ {
		require.NoError(t, d.Push(context.Background(), []byte("x")))
	}
	assert.ErrorIs(t, d.Push(context.Background(), []byte("x")), queue.ErrQueueFull)
	assert.Equal(t, 1000, d.Len())
}
