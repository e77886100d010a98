package queue

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Handler is the consumer side of the bridge contract: the worker pool
// performs jobs through it and consults it on the retry path. *Bridge is
// the production implementation.
type Handler interface {
	// Perform runs one execution attempt of the job.
	Perform(ctx context.Context, job *Job) error

	// RewriteRetryArgs rewrites a job's arguments before re-dispatch so a
	// retried job keeps its deduplication identity.
	RewriteRetryArgs(args map[string]any) map[string]any

	// OnFailure is invoked with the final error of a job that exhausted
	// its retries.
	OnFailure(ctx context.Context, job *Job, cause error) error
}

var _ Handler = (*Bridge)(nil)

// Metrics observes the worker pool. The zero implementation is a no-op;
// internal/metrics provides a Prometheus-backed one.
type Metrics interface {
	JobStarted(queue string)
	JobCompleted(queue string, d time.Duration, err error)
	JobRetried(queue string)
	JobDeadLettered(queue string)
}

type noopMetrics struct{}

func (noopMetrics) JobStarted(string) {}

func (noopMetrics) JobCompleted(string, time.Duration, error) {}

func (noopMetrics) JobRetried(string) {}

func (noopMetrics) JobDeadLettered(string) {}

// WorkerPoolConfig configures a WorkerPool.
type WorkerPoolConfig struct {
	// Workers is the number of concurrent consumers (default: 1).
	Workers int

	// Queues lists the queue names to consume, in priority order. Empty
	// means every queue for backends that support it.
	Queues []string

	// Retry governs re-dispatch of failed jobs.
	Retry RetryConfig
}

// WorkerPool draws jobs from the queue and performs them through the
// handler. Each job attempt runs on exactly one worker; a failed attempt
// is re-dispatched with exponential backoff until the retry budget is
// spent, then dead-lettered.
type WorkerPool struct {
	queue   Queue
	handler Handler
	cfg     WorkerPoolConfig
	logger  *zap.Logger
	metrics Metrics
}

// WorkerPoolOption configures a WorkerPool.
type WorkerPoolOption func(*WorkerPool)

// WithWorkerMetrics installs a metrics sink.
func WithWorkerMetrics(m Metrics) WorkerPoolOption {
	return func(p *WorkerPool) {
		if m != nil {
			p.metrics = m
		}
	}
}

// NewWorkerPool creates a worker pool over the given queue and handler.
func NewWorkerPool(q Queue, h Handler, cfg WorkerPoolConfig, logger *zap.Logger, opts ...WorkerPoolOption) *WorkerPool {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.Retry == (RetryConfig{}) {
		cfg.Retry = DefaultRetryConfig()
	}
	p := &WorkerPool{
		queue:   q,
		handler: h,
		cfg:     cfg,
		logger:  logger.With(zap.String("component", "worker_pool")),
		metrics: noopMetrics{},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run consumes jobs until ctx is done or the queue closes. It blocks
// until every worker has drained.
func (p *WorkerPool) Run(ctx context.Context) error {
	p.logger.Info("worker pool starting",
		zap.Int("workers", p.cfg.Workers),
		zap.Strings("queues", p.cfg.Queues),
	)
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < p.cfg.Workers; i++ {
		worker := i
		g.Go(func() error {
			return p.run(ctx, worker)
		})
	}
	err := g.Wait()
	p.logger.Info("worker pool stopped")
	return err
}

func (p *WorkerPool) run(ctx context.Context, worker int) error {
	logger := p.logger.With(zap.Int("worker", worker))
	for {
		job, err := p.queue.Dequeue(ctx, p.cfg.Queues)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, ErrClosed) {
				return nil
			}
			return err
		}
		p.process(ctx, logger, job)
	}
}

// process runs one attempt and owns the retry decision: the performer
// never retries internally, it only reports the error.
func (p *WorkerPool) process(ctx context.Context, logger *zap.Logger, job *Job) {
	p.metrics.JobStarted(job.Queue)
	started := time.Now()
	err := p.handler.Perform(ctx, job)
	p.metrics.JobCompleted(job.Queue, time.Since(started), err)
	if err == nil {
		return
	}

	if ctx.Err() != nil {
		// Shutting down mid-attempt: hand the job back untouched so
		// another worker picks it up. The attempt does not count.
		p.requeueOnShutdown(logger, job)
		return
	}

	job.Attempts++
	if job.Attempts > p.cfg.Retry.MaxRetries {
		logger.Error("job exhausted retries",
			zap.String("job_id", job.ID),
			zap.Int("attempts", job.Attempts),
			zap.Error(err),
		)
		finalErr := p.handler.OnFailure(ctx, job, err)
		if dlErr := p.queue.DeadLetter(ctx, job, finalErr); dlErr != nil {
			logger.Error("dead letter failed", zap.String("job_id", job.ID), zap.Error(dlErr))
		}
		p.metrics.JobDeadLettered(job.Queue)
		return
	}

	job.Args = p.handler.RewriteRetryArgs(job.Args)
	delay := p.cfg.Retry.Backoff(job.Attempts - 1)
	logger.Warn("job retrying",
		zap.String("job_id", job.ID),
		zap.Int("attempt", job.Attempts),
		zap.Duration("delay", delay),
		zap.Error(err),
	)
	if rqErr := p.queue.Requeue(ctx, job, delay); rqErr != nil {
		logger.Error("requeue failed", zap.String("job_id", job.ID), zap.Error(rqErr))
	}
	p.metrics.JobRetried(job.Queue)
}

// requeueOnShutdown puts a job interrupted by shutdown back on its queue
// using a short detached context, since the worker's own context is
// already done.
func (p *WorkerPool) requeueOnShutdown(logger *zap.Logger, job *Job) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := p.queue.Requeue(ctx, job, 0); err != nil {
		logger.Warn("requeue on shutdown failed", zap.String("job_id", job.ID), zap.Error(err))
	}
}
