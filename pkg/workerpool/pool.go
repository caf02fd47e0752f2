// Package workerpool provides a bounded worker pool for controlled concurrency.
package workerpool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// ErrClosed is returned by Submit after Close
var ErrClosed = errors.New("worker pool is closed")

// Task represents a unit of work to be processed
type Task struct {
	ID      string
	Payload any
}

// Result represents the outcome of task processing
type Result struct {
	TaskID   string
	Data     any
	Err      error
	Attempts int
}

// WorkerFunc processes one task
type WorkerFunc func(ctx context.Context, task *Task) (any, error)

// Config holds worker pool configuration
type Config struct {
	// Workers is the number of concurrent workers
	Workers int
	// QueueSize is the size of the task queue
	QueueSize int
	// MaxRetries is the number of extra attempts after a failure
	MaxRetries int
	// RetryDelay is multiplied by the attempt number between retries
	RetryDelay time.Duration
}

// DefaultConfig returns defaults sized for a handful of partner connections
func DefaultConfig() Config {
	return Config{
		Workers:    4,
		QueueSize:  64,
		MaxRetries: 0,
		RetryDelay: time.Second,
	}
}

// Pool runs tasks on a fixed set of goroutines
type Pool struct {
	cfg    Config
	fn     WorkerFunc
	logger *zap.Logger

	queue   chan *Task
	results chan *Result
	wg      sync.WaitGroup

	mu     sync.RWMutex
	closed bool

	submitted, completed, failed, retried atomic.Int64
	busy                                  atomic.Int64
}

// New creates a pool; call Start before submitting
func New(cfg Config, fn WorkerFunc, logger *zap.Logger) (*Pool, error) {
	if fn == nil {
		return nil, errors.New("workerpool: nil worker func")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	def := DefaultConfig()
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}
	cfg.MaxRetries = max(cfg.MaxRetries, 0)

	return &Pool{
		cfg:     cfg,
		fn:      fn,
		logger:  logger,
		queue:   make(chan *Task, cfg.QueueSize),
		results: make(chan *Result, cfg.QueueSize),
	}, nil
}

// Start launches the workers. They stop taking new tasks once ctx is done.
func (p *Pool) Start(ctx context.Context) {
	p.wg.Add(p.cfg.Workers)
	for id := range p.cfg.Workers {
		go func() {
			defer p.wg.Done()
			for task := range p.queue {
				p.busy.Add(1)
				p.results <- p.attempt(ctx, id, task)
				p.busy.Add(-1)
			}
		}()
	}
	p.logger.Debug("worker pool started", zap.Int("workers", p.cfg.Workers))
}

// Submit queues a task, blocking while the queue is full
func (p *Pool) Submit(ctx context.Context, task *Task) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}

	select {
	case p.queue <- task:
		p.submitted.Add(1)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Results is closed after Close once every worker has exited
func (p *Pool) Results() <-chan *Result {
	return p.results
}

// Close stops accepting tasks and waits for queued work to finish
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	p.wg.Wait()
	close(p.results)
}

// attempt runs the task, retrying with a linear backoff
func (p *Pool) attempt(ctx context.Context, workerID int, task *Task) *Result {
	res := &Result{TaskID: task.ID}
retry:
	for n := 1; n <= p.cfg.MaxRetries+1; n++ {
		if res.Err = ctx.Err(); res.Err != nil {
			break
		}
		res.Attempts = n
		if res.Data, res.Err = p.fn(ctx, task); res.Err == nil {
			break
		}
		if n > p.cfg.MaxRetries {
			break
		}

		p.retried.Add(1)
		p.logger.Debug("task will be retried", zap.String("task_id", task.ID), zap.Int("attempt", n), zap.Error(res.Err))
		timer := time.NewTimer(p.cfg.RetryDelay * time.Duration(n))
		select {
		case <-ctx.Done():
			timer.Stop()
			res.Err = ctx.Err()
			break retry
		case <-timer.C:
		}
	}

	if res.Err != nil {
		p.failed.Add(1)
		p.logger.Warn("task failed", zap.String("task_id", task.ID), zap.Int("worker", workerID), zap.Error(res.Err))
	} else {
		p.completed.Add(1)
	}
	return res
}

// Stats is a snapshot of the pool counters
type Stats struct {
	Submitted int64
	Completed int64
	Failed    int64
	Retried   int64
	Busy      int64
	Workers   int
}

// Stats returns the current counters
func (p *Pool) Stats() Stats {
	return Stats{
		Submitted: p.submitted.Load(),
		Completed: p.completed.Load(),
		Failed:    p.failed.Load(),
		Retried:   p.retried.Load(),
		Busy:      p.busy.Load(),
		Workers:   p.cfg.Workers,
	}
}

// Run processes tasks on a temporary pool and returns the results in task order
func Run(ctx context.Context, cfg Config, tasks []*Task, fn WorkerFunc, logger *zap.Logger) ([]*Result, error) {
	pool, err := New(cfg, fn, logger)
	if err != nil {
		return nil, err
	}
	pool.Start(ctx)

	index := make(map[string]int, len(tasks))
	for i, t := range tasks {
		if _, dup := index[t.ID]; dup {
			pool.Close()
			return nil, fmt.Errorf("duplicate task id %q", t.ID)
		}
		index[t.ID] = i
	}

	results := make([]*Result, len(tasks))
	collected := make(chan struct{})
	go func() {
		defer close(collected)
		for r := range pool.Results() {
			results[index[r.TaskID]] = r
		}
	}()

	var submitErr error
	for _, t := range tasks {
		if err := pool.Submit(ctx, t); err != nil {
			submitErr = err
			break
		}
	}
	pool.Close()
	<-collected

	st := pool.Stats()
	pool.logger.Debug("worker pool drained",
		zap.Int64("completed", st.Completed),
		zap.Int64("failed", st.Failed),
		zap.Int64("retried", st.Retried))

	for i, r := range results {
		if r == nil {
			results[i] = &Result{TaskID: tasks[i].ID, Err: submitErr}
		}
	}
	return results, submitErr
}
