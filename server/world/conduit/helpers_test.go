package conduit

import (
	"io"
	"log/slog"
	"testing"

	"github.com/df-mc/dragonfly/server/block/cube"
)

// fakeWorld is a map backed World recording every write.
type fakeWorld struct {
	blocks     map[cube.Pos]NodeInfo
	writes     []Change
	deliveries []Delivery
}

func newFakeWorld() *fakeWorld {
	return &fakeWorld{blocks: make(map[cube.Pos]NodeInfo)}
}

func (w *fakeWorld) NodeAt(pos cube.Pos) (NodeInfo, bool) {
	info, ok := w.blocks[pos]
	return info, ok
}

func (w *fakeWorld) SetPowerLevel(pos cube.Pos, level uint8) {
	info := w.blocks[pos]
	info.Power = level
	w.blocks[pos] = info
	w.writes = append(w.writes, Change{Pos: pos, Level: level})
}

func (w *fakeWorld) DeliverPower(pos cube.Pos, level uint8) {
	info := w.blocks[pos]
	info.Power = level
	w.blocks[pos] = info
	w.deliveries = append(w.deliveries, Delivery{Pos: pos, Level: level})
}

func (w *fakeWorld) conduit(pos cube.Pos) {
	w.blocks[pos] = NodeInfo{Kind: KindConduit}
}

func (w *fakeWorld) source(pos cube.Pos, emitted int) {
	w.blocks[pos] = NodeInfo{Kind: KindSource, Emitted: emitted}
}

func (w *fakeWorld) consumer(pos cube.Pos) {
	w.blocks[pos] = NodeInfo{Kind: KindConsumer}
}

func (w *fakeWorld) remove(pos cube.Pos) {
	delete(w.blocks, pos)
}

func (w *fakeWorld) level(t *testing.T, pos cube.Pos) uint8 {
	t.Helper()
	info, ok := w.blocks[pos]
	if !ok {
		t.Fatalf("no block at %v", pos)
	}
	return info.Power
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestManager(t *testing.T, conf Config) *Manager {
	t.Helper()
	if conf.Log == nil {
		conf.Log = quietLogger()
	}
	m := conf.New()
	t.Cleanup(m.Shutdown)
	return m
}

// line returns n positions along +x starting at start.
func line(start cube.Pos, n int) []cube.Pos {
	out := make([]cube.Pos, n)
	for i := range out {
		out[i] = start.Add(cube.Pos{i, 0, 0})
	}
	return out
}

// placeAll registers every block of w as placed.
func placeAll(m *Manager, w *fakeWorld) {
	for pos := range w.blocks {
		m.InvalidatePlacement(pos)
	}
}

// tick runs one tick of the procedure against w.
func tick(m *Manager, w *fakeWorld) Report {
	return Procedure{Manager: m}.Run(w)
}

func memberSet(m *Manager) map[cube.Pos]NetworkID {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[cube.Pos]NetworkID)
	for id, n := range m.networks {
		for _, node := range n.Palette {
			out[node.Pos] = id
		}
	}
	return out
}

func mustLevel(t *testing.T, m *Manager, pos cube.Pos) uint8 {
	t.Helper()
	level, ok := m.Level(pos)
	if !ok {
		t.Fatalf("expected %v to be a network member", pos)
	}
	return level
}
