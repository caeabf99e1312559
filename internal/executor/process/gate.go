package process

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/sakif/runbroker/internal/apperror"
	"github.com/sakif/runbroker/internal/metrics"
)

// Gate caps how many external tool processes run at once.
//
// Without it, every inbound request spawns a process immediately and a burst
// of traffic exhausts the process table and file descriptors. With it, extra
// requests queue for a slot; a request that cannot get one within
// QueueTimeout is turned away with apperror.ErrUnavailable.
type Gate struct {
	sem          *semaphore.Weighted
	capacity     int64
	queueTimeout time.Duration
	inFlight     atomic.Int64
	logger       *slog.Logger
}

// NewGate creates a gate with cfg.MaxConcurrent slots.
func NewGate(cfg Config, logger *slog.Logger) *Gate {
	capacity := int64(cfg.MaxConcurrent)
	if capacity <= 0 {
		capacity = int64(DefaultConfig().MaxConcurrent)
	}
	logger.Info("execution admission gate ready",
		slog.Int64("capacity", capacity),
		slog.Duration("queueTimeout", cfg.QueueTimeout),
	)
	return &Gate{
		sem:          semaphore.NewWeighted(capacity),
		capacity:     capacity,
		queueTimeout: cfg.QueueTimeout,
		logger:       logger,
	}
}

// Acquire blocks until a slot is free, ctx is done, or the queue timeout
// expires. On success the returned release func must be called exactly once.
func (g *Gate) Acquire(ctx context.Context) (release func(), err error) {
	if g.queueTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.queueTimeout)
		defer cancel()
	}

	start := time.Now()
	if err := g.sem.Acquire(ctx, 1); err != nil {
		metrics.AdmissionRejectedTotal.Inc()
		g.logger.Warn("execution slot not available",
			slog.Duration("waited", time.Since(start)),
			slog.String("error", err.Error()),
		)
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, apperror.Unavailable("execution capacity exhausted")
		}
		return nil, apperror.Unavailable(fmt.Sprintf("execution slot wait aborted: %v", err))
	}
	metrics.QueueWait.Observe(time.Since(start).Seconds())
	g.inFlight.Add(1)

	var released atomic.Bool
	return func() {
		if released.CompareAndSwap(false, true) {
			g.inFlight.Add(-1)
			g.sem.Release(1)
		}
	}, nil
}

// Capacity returns the number of slots.
func (g *Gate) Capacity() int {
	return int(g.capacity)
}

// InFlight returns the number of slots currently held.
func (g *Gate) InFlight() int {
	return int(g.inFlight.Load())
}
