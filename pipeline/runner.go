package pipeline

import (
	"context"
	"log"
	"time"
)

// Runner executes the pipeline immediately and then on a fixed interval
// until the context is cancelled or Stop is called.
type Runner struct {
	pipeline *Pipeline
	interval time.Duration
	logger   *log.Logger
	stopChan chan struct{}
}

// NewRunner creates a runner for the pipeline. A zero interval means the
// runner performs a single run and returns.
func NewRunner(p *Pipeline, interval time.Duration, logger *log.Logger) *Runner {
	if logger == nil {
		logger = log.Default()
	}
	return &Runner{
		pipeline: p,
		interval: interval,
		logger:   logger,
		stopChan: make(chan struct{}),
	}
}

// Run blocks until the context is cancelled or Stop is called. The first
// run starts immediately.
func (r *Runner) Run(ctx context.Context) {
	r.logger.Printf("Runner: running first forecast cycle")
	r.runOnce(ctx)

	if r.interval <= 0 {
		r.logger.Printf("Runner: no interval configured, stopping after single run")
		return
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Printf("Runner: started with interval %v", r.interval)
	for {
		select {
		case <-ticker.C:
			r.runOnce(ctx)
		case <-ctx.Done():
			r.logger.Printf("Runner: stopped due to context cancellation")
			return
		case <-r.stopChan:
			r.logger.Printf("Runner: stopped due to stop signal")
			return
		}
	}
}

// Stop signals the runner to exit after the current cycle.
func (r *Runner) Stop() {
	select {
	case <-r.stopChan:
	default:
		close(r.stopChan)
	}
}

func (r *Runner) runOnce(ctx context.Context) {
	if err := r.pipeline.Run(ctx); err != nil {
		r.logger.Printf("Runner: forecast cycle failed: %v", err)
	}
}
