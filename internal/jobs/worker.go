package jobs

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// JobProcessor runs one pass of background work.
type JobProcessor interface {
	ProcessJobs(ctx context.Context) error
}

// Worker calls a JobProcessor once on start and then every interval until
// stopped. A failed pass is logged and retried on the next tick.
type Worker struct {
	processor JobProcessor
	interval  time.Duration
	logger    *zap.Logger
	stopChan  chan struct{}
	doneChan  chan struct{}
}

func NewWorker(processor JobProcessor, interval time.Duration, logger *zap.Logger) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		processor: processor,
		interval:  interval,
		logger:    logger,
		stopChan:  make(chan struct{}),
		doneChan:  make(chan struct{}),
	}
}

// Start blocks until ctx is cancelled or Stop is called.
func (w *Worker) Start(ctx context.Context) {
	defer close(w.doneChan)

	w.logger.Info("worker started", zap.Duration("interval", w.interval))
	w.runOnce(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("worker stopped", zap.String("reason", "context cancelled"))
			return
		case <-w.stopChan:
			w.logger.Info("worker stopped", zap.String("reason", "stop requested"))
			return
		case <-ticker.C:
			w.runOnce(ctx)
		}
	}
}

func (w *Worker) runOnce(ctx context.Context) {
	start := time.Now()
	if err := w.processor.ProcessJobs(ctx); err != nil {
		w.logger.Error("job pass failed", zap.Error(err), zap.Duration("elapsed", time.Since(start)))
		return
	}
	w.logger.Debug("job pass done", zap.Duration("elapsed", time.Since(start)))
}

// Stop ends the loop and waits for an in-flight pass to return.
func (w *Worker) Stop() {
	close(w.stopChan)
	<-w.doneChan
}
