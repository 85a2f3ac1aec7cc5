// Package outbox runs persistence writes in the background, one at a time and
// in the order they were enqueued.
package outbox

import (
	"context"
	"time"

	"vox-chat/internal/observability"
	"vox-chat/pkg/logger"

	"go.uber.org/zap"
)

// Job is one queued write.
type Job struct {
	Op         string
	Run        func(ctx context.Context) error
	EnqueuedAt time.Time
}

type Processor struct {
	queue      chan Job
	clock      func() time.Time
	timeout    time.Duration
	retryDelay time.Duration
	maxRetries int
	metrics    *observability.Metrics
	log        *logger.Logger
	done       chan struct{}
}

type Option func(*Processor)

func WithMetrics(m *observability.Metrics) Option {
	return func(p *Processor) { p.metrics = m }
}

func WithLogger(l *logger.Logger) Option {
	return func(p *Processor) { p.log = l }
}

func NewProcessor(queueSize int, timeout, retryDelay time.Duration, maxRetries int, opts ...Option) *Processor {
	p := &Processor{
		queue:      make(chan Job, queueSize),
		clock:      time.Now,
		timeout:    timeout,
		retryDelay: retryDelay,
		maxRetries: maxRetries,
		log:        logger.Nop(),
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Enqueue never blocks. It reports false when the queue is full and the job
// was dropped.
func (p *Processor) Enqueue(op string, run func(ctx context.Context) error) bool {
	select {
	case p.queue <- Job{Op: op, Run: run, EnqueuedAt: p.clock()}:
		p.metrics.QueueDepth(len(p.queue))
		return true
	default:
		p.metrics.PersistenceResult(op, "dropped")
		return false
	}
}

// Run executes jobs until ctx is cancelled, then drains what is still queued.
func (p *Processor) Run(ctx context.Context) {
	defer close(p.done)
	for {
		select {
		case <-ctx.Done():
			p.drain()
			return
		case job := <-p.queue:
			p.process(ctx, job)
		}
	}
}

// Wait blocks until Run has returned.
func (p *Processor) Wait() {
	<-p.done
}

func (p *Processor) drain() {
	ctx := context.Background()
	for {
		select {
		case job := <-p.queue:
			p.attempt(ctx, job)
		default:
			return
		}
	}
}

func (p *Processor) process(ctx context.Context, job Job) {
	defer p.metrics.QueueDepth(len(p.queue))

	for attempt := 1; ; attempt++ {
		err := p.attempt(ctx, job)
		if err == nil {
			return
		}
		if attempt > p.maxRetries {
			p.log.Logger.Error("persistence job failed",
				zap.String("op", job.Op),
				zap.Int("attempts", attempt),
				zap.Duration("age", p.clock().Sub(job.EnqueuedAt)),
				zap.Error(err),
			)
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(p.retryDelay * time.Duration(attempt)):
		}
	}
}

func (p *Processor) attempt(ctx context.Context, job Job) error {
	jobCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	if err := job.Run(jobCtx); err != nil {
		p.metrics.PersistenceResult(job.Op, "error")
		p.log.Logger.Warn("persistence job attempt failed", zap.String("op", job.Op), zap.Error(err))
		return err
	}
	p.metrics.PersistenceResult(job.Op, "success")
	return nil
}
