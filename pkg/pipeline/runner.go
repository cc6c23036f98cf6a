package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/alphatrawler/statarb/pkg/metrics"
	"github.com/alphatrawler/statarb/pkg/models"
)

// Runner drives the refresh cycle on a fixed cadence and caches the latest
// snapshot for the API. A cycle that errors is reported and abandoned; the
// next tick starts clean because watermarks are store-derived.
type Runner struct {
	pipeline *Pipeline
	session  *Session
	interval time.Duration
	logger   *logrus.Logger

	mu       sync.RWMutex
	latest   *Snapshot
	stopCh   chan struct{}
	stopOnce sync.Once
}

func NewRunner(p *Pipeline, interval time.Duration, logger *logrus.Logger) *Runner {
	return &Runner{
		pipeline: p,
		session:  NewSession(),
		interval: interval,
		logger:   logger,
		stopCh:   make(chan struct{}),
	}
}

// Start launches the refresh loop.
func (r *Runner) Start(ctx context.Context) {
	go r.loop(ctx)
}

func (r *Runner) Stop() {
	r.stopOnce.Do(func() { close(r.stopCh) })
}

func (r *Runner) loop(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stopCh:
			return
		case <-ticker.C:
			r.runCycle()
		}
	}
}

func (r *Runner) runCycle() {
	snap, err := r.pipeline.Evaluate(r.session)
	if err != nil {
		if errors.Is(err, ErrInsufficientData) {
			metrics.CyclesTotal.WithLabelValues("skipped").Inc()
			r.logger.Debug("Refresh cycle skipped: waiting for data")
			return
		}
		metrics.CyclesTotal.WithLabelValues("error").Inc()
		r.logger.WithError(err).Error("Refresh cycle failed")
		return
	}

	metrics.CyclesTotal.WithLabelValues("ok").Inc()

	r.mu.Lock()
	r.latest = snap
	r.mu.Unlock()
}

// Latest returns the most recent snapshot, or nil before the first
// successful cycle.
func (r *Runner) Latest() *Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.latest
}

// Alerts returns the session's alert history.
func (r *Runner) Alerts() []models.Alert {
	return r.session.Alerts()
}
