package service

import (
	"context"
	"sync"
	"time"

	"github.com/rl1809/marketplace/internal/logging"
)

// Job is a best-effort side effect. A failing job is retried and then logged, never surfaced.
type Job struct {
	Name string
	Run  func(ctx context.Context) error
}

type DispatcherOption func(*Dispatcher)

func WithRetries(n int) DispatcherOption              { return func(d *Dispatcher) { d.retries = n } }
func WithBackoff(b time.Duration) DispatcherOption    { return func(d *Dispatcher) { d.backoff = b } }
func WithJobTimeout(t time.Duration) DispatcherOption { return func(d *Dispatcher) { d.timeout = t } }

// Dispatcher runs jobs on a fixed worker pool fed by a bounded queue.
type Dispatcher struct {
	queue   chan Job
	retries int
	backoff time.Duration
	timeout time.Duration

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewDispatcher constructs a Dispatcher. Defaults: retries=3, backoff=500ms, timeout=10s.
func NewDispatcher(queueSize int, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		queue:   make(chan Job, queueSize),
		retries: 3,
		backoff: 500 * time.Millisecond,
		timeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Dispatcher) Start(workers int) {
	if workers <= 0 {
		workers = 1
	}
	for i := 0; i < workers; i++ {
		d.wg.Add(1)
		go func(id int) {
			defer d.wg.Done()
			d.workerLoop(id)
		}(i)
	}
	logging.New("dispatcher").Info("workers started", "count", workers)
}

// Submit enqueues job without blocking. It returns false when the job was dropped.
func (d *Dispatcher) Submit(job Job) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		dispatchDropped.Inc()
		logging.New("dispatcher").Warn("job dropped, dispatcher closed", "job", job.Name)
		return false
	}

	select {
	case d.queue <- job:
		return true
	default:
		dispatchDropped.Inc()
		logging.New("dispatcher").Error("job dropped, queue full", "job", job.Name)
		return false
	}
}

// Close stops accepting jobs and waits for queued ones to finish.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	d.wg.Wait()
}

func (d *Dispatcher) workerLoop(id int) {
	l := logging.New("dispatcher").With("worker", id)
	for job := range d.queue {
		var err error
		for attempt := 0; attempt <= d.retries; attempt++ {
			if attempt > 0 {
				time.Sleep(d.backoff * time.Duration(attempt))
			}
			ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
			err = job.Run(ctx)
			cancel()
			if err == nil {
				break
			}
			l.Warn("job attempt failed", "job", job.Name, "attempt", attempt+1, "error", err)
		}

		if err != nil {
			dispatchFailed.WithLabelValues(job.Name).Inc()
			l.Error("job failed", "job", job.Name, "error", err)
			continue
		}
		l.Debug("job done", "job", job.Name)
	}
}
