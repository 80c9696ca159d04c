// Package worker runs background maintenance loops with a shared
// lifecycle: start everything after the fleet is up, stop everything
// with a bounded wait during shutdown.
package worker

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/alexanderselivanov/botfleet/pkg/logger"
)

// Worker is one unit of periodic work. Run executes a single
// iteration; errors are logged and the cadence continues.
type Worker interface {
	// Name returns worker name for logging
	Name() string
	// Run executes one iteration of work
	Run(ctx context.Context) error
}

// PeriodicWorker drives a Worker on a fixed interval. The first
// iteration runs immediately on start.
type PeriodicWorker struct {
	worker   Worker
	interval time.Duration
	wg       sync.WaitGroup
	name     string
}

// NewPeriodicWorker creates new periodic worker
func NewPeriodicWorker(worker Worker, interval time.Duration) *PeriodicWorker {
	return &PeriodicWorker{
		worker:   worker,
		interval: interval,
		name:     worker.Name(),
	}
}

// Start launches the worker goroutine. The worker exits when ctx is
// cancelled.
func (pw *PeriodicWorker) Start(ctx context.Context) {
	pw.wg.Add(1)
	go pw.run(ctx)
}

// Stop waits for the worker goroutine to exit, giving up after the
// timeout. Cancellation itself comes from the Start context.
func (pw *PeriodicWorker) Stop(timeout time.Duration) {
	done := make(chan struct{})
	go func() {
		pw.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info("✅ worker stopped", zap.String("worker", pw.name))
	case <-time.After(timeout):
		logger.Warn("⚠️ worker stop timed out", zap.String("worker", pw.name))
	}
}

func (pw *PeriodicWorker) run(ctx context.Context) {
	defer pw.wg.Done()

	logger.Info("🚀 worker started",
		zap.String("worker", pw.name),
		zap.Duration("interval", pw.interval),
	)

	if err := pw.worker.Run(ctx); err != nil {
		logger.Error("worker iteration failed",
			zap.String("worker", pw.name),
			zap.Error(err),
		)
	}

	ticker := time.NewTicker(pw.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := pw.worker.Run(ctx); err != nil {
				logger.Error("worker iteration failed",
					zap.String("worker", pw.name),
					zap.Error(err),
				)
			}
		}
	}
}

// Group manages a set of periodic workers with one shutdown.
type Group struct {
	workers []*PeriodicWorker
	ctx     context.Context
	cancel  context.CancelFunc
	mu      sync.Mutex
}

// NewGroup creates a worker group tied to the parent context.
func NewGroup(ctx context.Context) *Group {
	ctx, cancel := context.WithCancel(ctx)
	return &Group{ctx: ctx, cancel: cancel}
}

// Add registers a worker with its interval. Call before Start.
func (g *Group) Add(worker Worker, interval time.Duration) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.workers = append(g.workers, NewPeriodicWorker(worker, interval))
}

// Start launches all registered workers.
func (g *Group) Start() {
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, w := range g.workers {
		w.Start(g.ctx)
	}
	logger.Info("🚀 worker group started", zap.Int("workers", len(g.workers)))
}

// Stop cancels the group context and waits for every worker, bounding
// each wait by timeout.
func (g *Group) Stop(timeout time.Duration) {
	g.cancel()

	g.mu.Lock()
	defer g.mu.Unlock()

	for _, w := range g.workers {
		w.Stop(timeout)
	}
	logger.Info("✅ worker group stopped")
}
