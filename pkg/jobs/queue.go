package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrQueueFull is returned by TryEnqueue when the buffer has no room.
var ErrQueueFull = errors.New("queue full")

// Job represents a queued background task.
type Job struct {
	ID       string
	Type     string
	Payload  interface{}
	Attempt  int
	Enqueued time.Time
}

// Handler processes a job.
type Handler func(context.Context, Job) error

// ExhaustedFunc receives a job that will not be attempted again, with its last error.
type ExhaustedFunc func(Job, error)

// QueueConfig configures worker pool behaviour.
type QueueConfig struct {
	Workers    int
	BufferSize int
	MaxRetries int
	// RetryDelay is the first backoff; each further attempt doubles it up to MaxRetryDelay.
	RetryDelay    time.Duration
	MaxRetryDelay time.Duration
	// DrainTimeout bounds the final attempt given to buffered jobs on Stop.
	DrainTimeout time.Duration
	OnExhausted  ExhaustedFunc
	Logger       *zap.Logger
}

// Queue is an in-memory job dispatcher backed by goroutines. Jobs do not survive a restart,
// so Stop gives buffered jobs one last attempt before returning.
type Queue struct {
	name    string
	handler Handler
	cfg     QueueConfig
	logger  *zap.Logger

	jobs    chan Job
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	started bool
}

// NewQueue builds a new queue with the provided handler.
func NewQueue(name string, handler Handler, cfg QueueConfig) *Queue {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = cfg.Workers * 4
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	if cfg.MaxRetryDelay < cfg.RetryDelay {
		cfg.MaxRetryDelay = 30 * cfg.RetryDelay
	}
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = 5 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return &Queue{
		name:    name,
		handler: handler,
		cfg:     cfg,
		logger:  cfg.Logger.With(zap.String("queue", name)),
		jobs:    make(chan Job, cfg.BufferSize),
	}
}

// Start begins worker consumption. Safe to call once.
func (q *Queue) Start(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started {
		return
	}
	q.ctx, q.cancel = context.WithCancel(ctx)
	for i := 0; i < q.cfg.Workers; i++ {
		q.wg.Add(1)
		go q.worker(i + 1)
	}
	q.started = true
	q.logger.Info("queue started", zap.Int("workers", q.cfg.Workers))
}

// Stop cancels workers and pending retries, then drains the buffer.
func (q *Queue) Stop() {
	q.mu.Lock()
	if !q.started {
		q.mu.Unlock()
		return
	}
	q.cancel()
	q.mu.Unlock()
	q.wg.Wait()

	drained := q.drain()
	q.logger.Info("queue stopped", zap.Int("drained", drained))
}

// Enqueue pushes a job onto the queue, waiting for buffer space.
func (q *Queue) Enqueue(job Job) error {
	return q.push(job, true)
}

// TryEnqueue pushes a job without blocking. Request paths use it so a saturated
// queue never stalls the response.
func (q *Queue) TryEnqueue(job Job) error {
	return q.push(job, false)
}

// Pending reports the number of buffered jobs not yet picked up by a worker.
func (q *Queue) Pending() int {
	return len(q.jobs)
}

func (q *Queue) push(job Job, wait bool) error {
	q.mu.Lock()
	ctx := q.ctx
	started := q.started
	q.mu.Unlock()

	if !started {
		return fmt.Errorf("queue %s not started", q.name)
	}
	if job.Enqueued.IsZero() {
		job.Enqueued = time.Now().UTC()
	}

	if !wait {
		select {
		case <-ctx.Done():
			return fmt.Errorf("queue %s stopped: %w", q.name, ctx.Err())
		case q.jobs <- job:
			return nil
		default:
			return fmt.Errorf("queue %s: %w", q.name, ErrQueueFull)
		}
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("queue %s stopped: %w", q.name, ctx.Err())
	case q.jobs <- job:
		return nil
	}
}

func (q *Queue) worker(workerID int) {
	defer q.wg.Done()
	for {
		select {
		case <-q.ctx.Done():
			return
		case job := <-q.jobs:
			if err := q.handler(q.ctx, job); err != nil {
				q.retry(job, err)
				continue
			}
			if job.Attempt > 0 {
				q.logger.Info("job recovered after retry", jobFields(job, zap.Int("worker", workerID))...)
			}
		}
	}
}

func (q *Queue) retry(job Job, err error) {
	job.Attempt++
	if job.Attempt > q.cfg.MaxRetries {
		q.exhausted(job, err)
		return
	}
	delay := q.backoff(job.Attempt)
	q.logger.Warn("job failed, retrying", jobFields(job, zap.Duration("backoff", delay), zap.Error(err))...)

	q.wg.Add(1)
	go func(j Job) {
		defer q.wg.Done()
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-q.ctx.Done():
			// Still handed to the buffer so Stop can drain it.
			select {
			case q.jobs <- j:
			default:
				q.exhausted(j, q.ctx.Err())
			}
		case <-timer.C:
			if err := q.Enqueue(j); err != nil {
				q.exhausted(j, err)
			}
		}
	}(job)
}

// backoff doubles RetryDelay per attempt, capped at MaxRetryDelay.
func (q *Queue) backoff(attempt int) time.Duration {
	delay := q.cfg.RetryDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= q.cfg.MaxRetryDelay {
			return q.cfg.MaxRetryDelay
		}
	}
	return delay
}

func (q *Queue) drain() int {
	ctx, cancel := context.WithTimeout(context.Background(), q.cfg.DrainTimeout)
	defer cancel()

	n := 0
	for {
		select {
		case job := <-q.jobs:
			n++
			if err := q.handler(ctx, job); err != nil {
				q.exhausted(job, err)
			}
		default:
			return n
		}
	}
}

func (q *Queue) exhausted(job Job, err error) {
	q.logger.Error("job abandoned", jobFields(job, zap.Error(err))...)
	if q.cfg.OnExhausted != nil {
		q.cfg.OnExhausted(job, err)
	}
}

func jobFields(job Job, extra ...zap.Field) []zap.Field {
	fields := []zap.Field{
		zap.String("job_id", job.ID),
		zap.String("type", job.Type),
		zap.Int("attempt", job.Attempt),
	}
	return append(fields, extra...)
}
