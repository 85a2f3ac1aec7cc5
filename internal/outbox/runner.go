package outbox

import (
	"context"
	"time"
)

type Runner struct {
	processor *Processor
}

func NewRunner(processor *Processor) *Runner {
	return &Runner{processor: processor}
}

func (r *Runner) Start(ctx context.Context) {
	go r.processor.Run(ctx)
}

// Stop waits for the processor to drain after its context was cancelled.
func (r *Runner) Stop() {
	r.processor.Wait()
}

func DefaultProcessor(queueSize int, timeout time.Duration, opts ...Option) *Processor {
	return NewProcessor(queueSize, timeout, time.Millisecond*200, 3, opts...)
}
