package block

import (
	"github.com/df-mc/dragonfly/server/block/cube"
	"github.com/df-mc/dragonfly/server/block/model"
	"github.com/df-mc/dragonfly/server/item"
	"github.com/df-mc/dragonfly/server/world"
	"github.com/go-gl/mathgl/mgl64"
)

// RedstoneDust represents redstone wire laid on the ground. It is a conduit:
// its Power is derived by the conduit engine and written back into the block.
type RedstoneDust struct {
	// Power is the current signal strength carried by the dust (0-15).
	Power uint8
}

// EncodeItem ...
func (RedstoneDust) EncodeItem() (name string, meta int16) {
	return "minecraft:redstone", 0
}

// EncodeBlock ...
func (d RedstoneDust) EncodeBlock() (string, map[string]any) {
	return "minecraft:redstone_wire", map[string]any{"redstone_signal": int32(d.Power)}
}

// UseOnBlock places the dust on top of the clicked block. The dust is always
// placed with zero power.
func (d RedstoneDust) UseOnBlock(pos cube.Pos, face cube.Face, _ mgl64.Vec3, tx *world.Tx, user item.User, ctx *item.UseContext) bool {
	if face != cube.FaceUp {
		return false
	}
	target := pos.Side(face)
	if !replaceable(tx, target, d) {
		return false
	}
	d.Power = 0
	return place(tx, target, d, user, ctx)
}

// Model ...
func (RedstoneDust) Model() world.BlockModel {
	return model.Empty{}
}

// Hash ...
func (d RedstoneDust) Hash() (uint64, uint64) {
	return slowHash()
}

// allRedstoneDust returns all dust block states for registration.
func allRedstoneDust() []world.Block {
	blocks := make([]world.Block, 0, 16)
	for p := 0; p < 16; p++ {
		blocks = append(blocks, RedstoneDust{Power: uint8(p)})
	}
	return blocks
}
