package conduit

import (
	"github.com/df-mc/dragonfly/server/block/cube"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/segmentio/fasthash/fnv1a"
)

// NetworkID identifies a live network. IDs are never reused within a Manager.
type NetworkID uint64

// Network is a maximal connected component of conduit and source blocks. The
// member palette is fixed once discovery completes; any change in membership
// dissolves the network and produces a new one.
type Network struct {
	ID NetworkID
	// Gen is the manager generation the network was discovered in.
	Gen uint64

	Palette []Node
	States  []NodeState
	// Consumers are positions adjacent to members that receive the level of
	// the network without relaying it.
	Consumers []cube.Pos

	posIndex map[cube.Pos]int
	// truncated is set when discovery stopped at the configured size limit.
	truncated bool
}

func newNetwork() *Network {
	return &Network{posIndex: make(map[cube.Pos]int)}
}

// add appends a member to the palette.
func (n *Network) add(pos cube.Pos, info NodeInfo) {
	node := Node{Pos: pos, Kind: info.Kind, Persisted: info.Power}
	if info.Kind == KindSource {
		node.Emitted = clampLevel(info.Emitted)
	}
	n.posIndex[pos] = len(n.Palette)
	n.Palette = append(n.Palette, node)
	n.States = append(n.States, NodeState{})
}

// Len returns the number of members.
func (n *Network) Len() int {
	if n == nil {
		return 0
	}
	return len(n.Palette)
}

// Empty reports if the network has no members.
func (n *Network) Empty() bool {
	return n.Len() == 0
}

// Contains reports if pos is a member of the network.
func (n *Network) Contains(pos cube.Pos) bool {
	_, ok := n.nodeByPos(pos)
	return ok
}

// Level returns the derived power level of the member at pos.
func (n *Network) Level(pos cube.Pos) (uint8, bool) {
	idx, ok := n.nodeByPos(pos)
	if !ok {
		return 0, false
	}
	return n.States[idx].Power, true
}

// Sources returns the member positions that are sources, in palette order.
func (n *Network) Sources() []cube.Pos {
	var out []cube.Pos
	for _, node := range n.Palette {
		if node.Kind == KindSource {
			out = append(out, node.Pos)
		}
	}
	return out
}

func (n *Network) nodeByPos(pos cube.Pos) (int, bool) {
	if n == nil {
		return -1, false
	}
	idx, ok := n.posIndex[pos]
	if !ok || idx < 0 || idx >= len(n.Palette) {
		return -1, false
	}
	return idx, true
}

// Fingerprint returns a hash of the member set that does not depend on the
// order members were discovered in.
func (n *Network) Fingerprint() uint64 {
	var h uint64
	for _, node := range n.Palette {
		h ^= fnv1a.HashUint64(uint64(posKey(node.Pos)))
	}
	return h
}

// Centre returns the centre of the axis aligned box enclosing all members.
func (n *Network) Centre() mgl64.Vec3 {
	if n.Empty() {
		return mgl64.Vec3{}
	}
	lo, hi := n.Palette[0].Pos, n.Palette[0].Pos
	for _, node := range n.Palette[1:] {
		for i := 0; i < 3; i++ {
			lo[i] = min(lo[i], node.Pos[i])
			hi[i] = max(hi[i], node.Pos[i])
		}
	}
	return lo.Vec3().Add(hi.Vec3()).Add(mgl64.Vec3{1, 1, 1}).Mul(0.5)
}

// Clone returns a deep copy of the network.
func (n *Network) Clone() *Network {
	if n == nil {
		return nil
	}
	out := &Network{
		ID:        n.ID,
		Gen:       n.Gen,
		truncated: n.truncated,
		posIndex:  make(map[cube.Pos]int, len(n.posIndex)),
	}
	if len(n.Palette) > 0 {
		out.Palette = append([]Node(nil), n.Palette...)
	}
	if len(n.States) > 0 {
		out.States = append([]NodeState(nil), n.States...)
	}
	if len(n.Consumers) > 0 {
		out.Consumers = append([]cube.Pos(nil), n.Consumers...)
	}
	for k, v := range n.posIndex {
		out.posIndex[k] = v
	}
	return out
}
