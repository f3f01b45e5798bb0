// Package grid provides an in-memory host world for the conduit engine. It
// backs the simulator and tests that do not need a running server.
package grid

import (
	"fmt"
	"slices"
	"sync"

	"github.com/df-mc/dragonfly/server/block/cube"
	"github.com/dm-vev/conduit/server/world/conduit"
	"github.com/dm-vev/conduit/server/world/conduit/statestore"
)

// Block is the state of a single position.
type Block struct {
	Kind    conduit.NodeKind
	Emitted int
	// Power is the persisted level of a conduit or the delivered level of a
	// consumer.
	Power uint8
}

// World is a map backed conduit.World and conduit.Deliverer. It is safe for
// concurrent use.
type World struct {
	mu         sync.RWMutex
	blocks     map[cube.Pos]Block
	writes     int
	deliveries int
}

// New returns an empty world.
func New() *World {
	return &World{blocks: make(map[cube.Pos]Block)}
}

// Set places b at pos.
func (w *World) Set(pos cube.Pos, b Block) {
	w.mu.Lock()
	w.blocks[pos] = b
	w.mu.Unlock()
}

// Remove clears pos. It reports if a block was present.
func (w *World) Remove(pos cube.Pos) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.blocks[pos]
	delete(w.blocks, pos)
	return ok
}

// Block returns the block at pos.
func (w *World) Block(pos cube.Pos) (Block, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	b, ok := w.blocks[pos]
	return b, ok
}

// Len returns the number of blocks.
func (w *World) Len() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.blocks)
}

// Positions returns every occupied position in y, z, x order.
func (w *World) Positions() []cube.Pos {
	w.mu.RLock()
	out := make([]cube.Pos, 0, len(w.blocks))
	for pos := range w.blocks {
		out = append(out, pos)
	}
	w.mu.RUnlock()
	slices.SortFunc(out, func(a, b cube.Pos) int {
		for _, i := range [3]int{1, 2, 0} {
			if a[i] != b[i] {
				return a[i] - b[i]
			}
		}
		return 0
	})
	return out
}

// Writes returns the number of conduit levels and consumer deliveries the
// engine pushed into the world.
func (w *World) Writes() (levels, deliveries int) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.writes, w.deliveries
}

// NodeAt implements conduit.World.
func (w *World) NodeAt(pos cube.Pos) (conduit.NodeInfo, bool) {
	b, ok := w.Block(pos)
	if !ok {
		return conduit.NodeInfo{}, false
	}
	return conduit.NodeInfo{Kind: b.Kind, Emitted: b.Emitted, Power: b.Power}, true
}

// SetPowerLevel implements conduit.World. Levels for positions that do not
// hold a conduit are dropped.
func (w *World) SetPowerLevel(pos cube.Pos, level uint8) {
	w.setPower(pos, level, conduit.KindConduit, &w.writes)
}

// DeliverPower implements conduit.Deliverer.
func (w *World) DeliverPower(pos cube.Pos, level uint8) {
	w.setPower(pos, level, conduit.KindConsumer, &w.deliveries)
}

func (w *World) setPower(pos cube.Pos, level uint8, kind conduit.NodeKind, counter *int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	b, ok := w.blocks[pos]
	if !ok || b.Kind != kind {
		return
	}
	b.Power = level
	w.blocks[pos] = b
	*counter++
}

// InvalidateAll reports every block of the world to m as placed, which is
// how a freshly loaded world is handed to the engine.
func (w *World) InvalidateAll(m *conduit.Manager) {
	for _, pos := range w.Positions() {
		m.InvalidatePlacement(pos)
	}
}

// Save writes the configuration of every block to s. Derived levels are not
// stored.
func (w *World) Save(s *statestore.Store) error {
	for _, pos := range w.Positions() {
		b, _ := w.Block(pos)
		rec := statestore.Record{
			Name:       KindName(b.Kind),
			Kind:       uint8(b.Kind),
			Emitted:    int32(b.Emitted),
			Configured: b.Kind == conduit.KindSource,
		}
		if err := s.Put(pos, rec); err != nil {
			return fmt.Errorf("save world: %w", err)
		}
	}
	return nil
}

// Load returns a world holding every record of s.
func Load(s *statestore.Store) (*World, error) {
	w := New()
	err := s.Range(func(pos cube.Pos, r statestore.Record) bool {
		w.blocks[pos] = Block{Kind: r.NodeKind(), Emitted: int(r.Emitted)}
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("load world: %w", err)
	}
	return w, nil
}
