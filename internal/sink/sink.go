// Package sink fans the current snapshot out to downstream consumers.
// Each push sink runs on its own timer and fails on its own; a dead
// aggregator never slows the sampling loop or a sibling sink.
package sink

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/terradolor/prometheus-enviro-exporter/internal/errors"
	"github.com/terradolor/prometheus-enviro-exporter/internal/logger"
	"github.com/terradolor/prometheus-enviro-exporter/internal/registry"
)

// Pusher delivers one snapshot to an external target. A failed push
// is retried on the runner's next tick, never immediately.
type Pusher interface {
	Name() string
	Push(ctx context.Context, snapshot *registry.Snapshot) error
}

// Runner drives one push sink on its own cadence, reading the
// registry and never mutating it.
type Runner struct {
	pusher   Pusher
	registry *registry.Registry
	interval time.Duration

	consecutiveFailures atomic.Uint64
}

func NewRunner(p Pusher, reg *registry.Registry, interval time.Duration) (*Runner, error) {
	if interval <= 0 {
		return nil, errors.New().WithData(ErrInvalidCadence, interval)
	}

	return &Runner{
		pusher:   p,
		registry: reg,
		interval: interval,
	}, nil
}

// ConsecutiveFailures is an observability hook for external health
// checks. It never gates sampling or other sinks.
func (r *Runner) ConsecutiveFailures() uint64 {
	return r.consecutiveFailures.Load()
}

// Run delivers snapshots until ctx is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	logger.Info().
		Str("sink", r.pusher.Name()).
		Dur("interval", r.interval).
		Msg("Push sink started")

	for {
		select {
		case <-ctx.Done():
			logger.Info().Str("sink", r.pusher.Name()).Msg("Push sink stopped")
			return nil
		case <-ticker.C:
			r.tick(ctx)
		}
	}
}

func (r *Runner) tick(ctx context.Context) {
	snapshot := r.registry.Current()
	if snapshot == nil {
		// nothing sampled yet
		return
	}

	if err := r.pusher.Push(ctx, snapshot); err != nil {
		r.consecutiveFailures.Add(1)
		logger.Warn().
			Str("sink", r.pusher.Name()).
			Uint64("consecutive_failures", r.consecutiveFailures.Load()).
			Err(err).
			Msg("Snapshot delivery failed, retrying on next tick")
		return
	}

	r.consecutiveFailures.Store(0)
	logger.Debug().Str("sink", r.pusher.Name()).Msg("Snapshot delivered")
}
