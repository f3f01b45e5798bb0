package conduit

import (
	"github.com/df-mc/dragonfly/server/block/cube"
	"golang.org/x/exp/constraints"
)

//go:generate go run golang.org/x/tools/cmd/stringer -type=NodeKind -trimprefix=Kind
//go:generate go run golang.org/x/tools/cmd/stringer -type=Reason -trimprefix=Reason

// NodeKind classifies a block as far as the engine is concerned. The set is
// closed: hosts map their block states onto one of these values.
type NodeKind uint8

const (
	KindNone NodeKind = iota
	KindConduit
	KindSource
	KindConsumer
)

// relays reports if nodes of the kind are network members that carry power
// to their neighbours.
func (k NodeKind) relays() bool {
	return k == KindConduit || k == KindSource
}

// valid reports if k is one of the declared kinds.
func (k NodeKind) valid() bool {
	return k <= KindConsumer
}

// MaxPower is the highest power level a node can carry.
const MaxPower = 15

// NodeInfo is what the host reports for a single position.
type NodeInfo struct {
	// Kind is the classification of the block at the position.
	Kind NodeKind
	// Emitted is the configured output level of a source. It is clamped to
	// [0, MaxPower] by the engine and ignored for other kinds.
	Emitted int
	// Power is the level currently persisted in the block state. Conduits
	// whose derived level equals Power are not rewritten.
	Power uint8
}

// Node is an immutable member entry of a Network.
type Node struct {
	Pos     cube.Pos
	Kind    NodeKind
	Emitted uint8
	// Persisted is the level the host world holds for the node.
	Persisted uint8
}

// NodeState stores the derived simulation data for a node.
type NodeState struct {
	Power uint8
}

// Reason tags why a position was invalidated.
type Reason uint8

const (
	ReasonPlaced Reason = iota
	ReasonBroken
)

// clampLevel limits v to a valid power level.
func clampLevel[T constraints.Integer](v T) uint8 {
	if v <= 0 {
		return 0
	}
	if v >= MaxPower {
		return MaxPower
	}
	return uint8(v)
}
