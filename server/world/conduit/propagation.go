package conduit

import (
	"github.com/df-mc/dragonfly/server/block/cube"
)

// propagate derives the power level of every member of n. Each source starts
// at its emitted level and every hop away from it costs one level. A member
// reached by several sources keeps the highest level offered, so nodes are
// settled from the top bucket down and each is settled exactly once.
func propagate(n *Network) {
	if n.Empty() {
		return
	}
	for i := range n.States {
		n.States[i].Power = 0
	}
	var buckets [MaxPower + 1][]int
	for i, node := range n.Palette {
		if node.Kind != KindSource || node.Emitted == 0 {
			continue
		}
		n.States[i].Power = node.Emitted
		buckets[node.Emitted] = append(buckets[node.Emitted], i)
	}

	settled := make([]bool, len(n.Palette))
	for level := uint8(MaxPower); level > 0; level-- {
		for j := 0; j < len(buckets[level]); j++ {
			i := buckets[level][j]
			if settled[i] || n.States[i].Power != level {
				continue
			}
			settled[i] = true
			next := level - 1
			if next == 0 {
				continue
			}
			for _, nb := range neighbours(n.Palette[i].Pos) {
				k, ok := n.nodeByPos(nb)
				if !ok || settled[k] || n.States[k].Power >= next {
					continue
				}
				n.States[k].Power = next
				buckets[next] = append(buckets[next], k)
			}
		}
		buckets[level] = nil
	}
}

// deliveredLevel returns the highest level among members adjacent to the
// consumer at pos, across all live networks. The second return value is false
// if no member is adjacent.
func (m *Manager) deliveredLevel(pos cube.Pos) (uint8, bool) {
	var (
		level uint8
		found bool
	)
	for _, nb := range neighbours(pos) {
		id, ok := m.index.get(nb)
		if !ok {
			continue
		}
		n, ok := m.networks[id]
		if !ok {
			continue
		}
		l, ok := n.Level(nb)
		if !ok {
			continue
		}
		found = true
		level = max(level, l)
	}
	return level, found
}
