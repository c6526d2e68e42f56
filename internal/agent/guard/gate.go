package guard

import (
	"context"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/studyloop-core/server/internal/agent/model"
	errx "github.com/studyloop-core/server/internal/core/error"
	logx "github.com/studyloop-core/server/pkg/logger"
)

// Gate bounds how many model calls are in flight process-wide. Waiters queue
// FIFO (semaphore.Weighted preserves arrival order) and give up once the
// configured wait bound elapses.
type Gate struct {
	sem      *semaphore.Weighted
	timeout  time.Duration
	capacity int
	inFlight atomic.Int64
}

func NewGate(cfg model.GateConfig) *Gate {
	capacity := cfg.MaxConcurrent
	if capacity <= 0 {
		capacity = 1
	}
	return &Gate{
		sem:      semaphore.NewWeighted(int64(capacity)),
		timeout:  cfg.AcquireTimeout,
		capacity: capacity,
	}
}

// Acquire blocks until a slot frees or the wait bound elapses. Callers must
// Release on every exit path after a successful Acquire.
func (g *Gate) Acquire(ctx context.Context) error {
	waitCtx := ctx
	if g.timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}
	if err := g.sem.Acquire(waitCtx, 1); err != nil {
		logx.Warn().
			Int("capacity", g.capacity).
			Dur("timeout", g.timeout).
			Msg("concurrency gate admission failed")
		return errx.NewTimeout("model concurrency gate")
	}
	g.inFlight.Add(1)
	return nil
}

// Release frees one slot; the longest-waiting acquirer is admitted next.
func (g *Gate) Release() {
	g.inFlight.Add(-1)
	g.sem.Release(1)
}

// InFlight reports the number of currently admitted calls.
func (g *Gate) InFlight() int {
	return int(g.inFlight.Load())
}

// Capacity reports the configured ceiling.
func (g *Gate) Capacity() int {
	return g.capacity
}
