package conduit

import (
	"slices"
	"sync"

	"github.com/df-mc/dragonfly/server/block/cube"
)

// Invalidation is a recorded world change waiting to be processed.
type Invalidation struct {
	Pos    cube.Pos
	Reason Reason
}

// Tracker buffers invalidated positions between ticks. Recording the same
// position more than once before a drain keeps only the latest reason. It is
// safe to record from one goroutine while another drains.
type Tracker struct {
	mu      sync.Mutex
	pending map[cube.Pos]Reason
}

// NewTracker returns an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{pending: make(map[cube.Pos]Reason)}
}

// Record buffers pos with the reason passed.
func (t *Tracker) Record(pos cube.Pos, reason Reason) {
	t.mu.Lock()
	t.pending[pos] = reason
	t.mu.Unlock()
}

// RecordPlacement buffers pos as placed.
func (t *Tracker) RecordPlacement(pos cube.Pos) {
	t.Record(pos, ReasonPlaced)
}

// RecordRemoval buffers pos as broken.
func (t *Tracker) RecordRemoval(pos cube.Pos) {
	t.Record(pos, ReasonBroken)
}

// Len returns the number of buffered positions.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}

// Drain empties the tracker and returns its contents in deterministic order.
// Records made while Drain runs end up in the next drain.
func (t *Tracker) Drain() []Invalidation {
	t.mu.Lock()
	if len(t.pending) == 0 {
		t.mu.Unlock()
		return nil
	}
	pending := t.pending
	t.pending = make(map[cube.Pos]Reason, len(pending))
	t.mu.Unlock()

	out := make([]Invalidation, 0, len(pending))
	for pos, reason := range pending {
		out = append(out, Invalidation{Pos: pos, Reason: reason})
	}
	sortInvalidations(out)
	return out
}

// Requeue puts drained entries back for the next drain. Entries whose
// position was recorded again in the meantime keep the newer reason.
func (t *Tracker) Requeue(entries []Invalidation) {
	if len(entries) == 0 {
		return
	}
	t.mu.Lock()
	for _, e := range entries {
		if _, ok := t.pending[e.Pos]; ok {
			continue
		}
		t.pending[e.Pos] = e.Reason
	}
	t.mu.Unlock()
}

// Reset discards all buffered positions.
func (t *Tracker) Reset() {
	t.mu.Lock()
	clear(t.pending)
	t.mu.Unlock()
}

func sortInvalidations(s []Invalidation) {
	if len(s) < 2 {
		return
	}
	slices.SortFunc(s, func(a, b Invalidation) int {
		return comparePos(a.Pos, b.Pos)
	})
}
