package server

import (
	"context"
	"log/slog"
	"math"
	"sync/atomic"
	"time"

	"github.com/df-mc/dragonfly/server/world"
	"github.com/dm-vev/conduit/server/world/conduit"
)

const (
	tpsSampleSize       = 20
	tpsWarningThreshold = 19.0
)

// executor runs functions inside a world transaction. *world.World
// implements it.
type executor interface {
	Exec(f world.ExecFunc) <-chan struct{}
}

// ticker runs the tick procedure at a fixed interval inside world
// transactions.
type ticker struct {
	interval time.Duration
	slow     time.Duration
	log      *slog.Logger
	proc     conduit.Procedure
	// host returns the conduit.World of a transaction.
	host func(tx *world.Tx) conduit.World

	tps  atomic.Uint64
	last atomic.Pointer[conduit.Report]
}

// TPS returns the average rate at which ticks ran over the last sample.
func (t *ticker) TPS() float64 {
	return math.Float64frombits(t.tps.Load())
}

// Last returns the report of the most recent tick.
func (t *ticker) Last() (conduit.Report, bool) {
	if r := t.last.Load(); r != nil {
		return *r, true
	}
	return conduit.Report{}, false
}

// run ticks until ctx is cancelled. done is closed when run returns.
func (t *ticker) run(ctx context.Context, w executor, done chan<- struct{}) {
	defer close(done)

	tc := time.NewTicker(t.interval)
	defer tc.Stop()
	lastTick := time.Now()
	var (
		durationSum time.Duration
		ticksCount  int
		warned      bool
	)
	for {
		select {
		case <-tc.C:
			tickStart := time.Now()
			duration := tickStart.Sub(lastTick)
			lastTick = tickStart
			if duration > 0 {
				durationSum += duration
				ticksCount++
				if ticksCount >= tpsSampleSize {
					tps := 1.0 / (durationSum / time.Duration(ticksCount)).Seconds()
					t.tps.Store(math.Float64bits(tps))
					if tps < tpsWarningThreshold {
						if !warned {
							t.log.Warn("Conduit TPS dropped below threshold.", "tps", tps)
							warned = true
						}
					} else {
						warned = false
					}
					durationSum, ticksCount = 0, 0
				}
			}
			if !t.tick(ctx, w) {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// tick runs the procedure once. It returns false if ctx was cancelled before
// the transaction completed.
func (t *ticker) tick(ctx context.Context, w executor) bool {
	var rep conduit.Report
	select {
	case <-w.Exec(func(tx *world.Tx) { rep = t.proc.Run(t.host(tx)) }):
	case <-ctx.Done():
		return false
	}
	if rep.Tick == 0 {
		// The manager was shut down.
		return true
	}
	t.last.Store(&rep)
	if rep.Duration > t.slow {
		t.log.Warn("Conduit tick took too long.", "tick", rep.Tick, "duration", rep.Duration,
			"processed", rep.Result.Processed, "deferred", rep.Result.Deferred)
	}
	return true
}
