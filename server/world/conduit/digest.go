package conduit

import (
	"encoding/binary"
	"slices"

	"github.com/cespare/xxhash/v2"
	"github.com/df-mc/dragonfly/server/block/cube"
)

// Digest hashes the current partition of members into networks together with
// their levels and the delivered consumer levels. Network ids and discovery
// order do not contribute, so two managers that converged on the same world
// state return the same digest.
func (m *Manager) Digest() uint64 {
	if m == nil || m.closed.Load() {
		return 0
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	type member struct {
		pos   cube.Pos
		kind  NodeKind
		level uint8
	}
	groups := make([][]member, 0, len(m.networks))
	for _, n := range m.networks {
		g := make([]member, len(n.Palette))
		for i, node := range n.Palette {
			g[i] = member{pos: node.Pos, kind: node.Kind, level: n.States[i].Power}
		}
		slices.SortFunc(g, func(a, b member) int { return comparePos(a.pos, b.pos) })
		groups = append(groups, g)
	}
	slices.SortFunc(groups, func(a, b []member) int { return comparePos(a[0].pos, b[0].pos) })

	h := xxhash.New()
	var buf [10]byte
	for _, g := range groups {
		binary.LittleEndian.PutUint64(buf[:8], uint64(len(g)))
		_, _ = h.Write(buf[:8])
		for _, mem := range g {
			binary.LittleEndian.PutUint64(buf[:8], uint64(posKey(mem.pos)))
			buf[8], buf[9] = byte(mem.kind), mem.level
			_, _ = h.Write(buf[:])
		}
	}

	consumers := make([]cube.Pos, 0, len(m.delivered))
	for pos := range m.delivered {
		consumers = append(consumers, pos)
	}
	sortPositions(consumers)
	for _, pos := range consumers {
		binary.LittleEndian.PutUint64(buf[:8], uint64(posKey(pos)))
		buf[8], buf[9] = byte(KindConsumer), m.delivered[pos]
		_, _ = h.Write(buf[:])
	}
	return h.Sum64()
}
