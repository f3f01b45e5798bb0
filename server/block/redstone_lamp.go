package block

import (
	"github.com/df-mc/dragonfly/server/block/model"
	"github.com/df-mc/dragonfly/server/world"
)

// RedstoneLamp is a light-emitting block that toggles based on redstone power.
// It consumes power but never relays it.
type RedstoneLamp struct {
	// Lit specifies whether the lamp currently emits light.
	Lit bool
}

// LightEmissionLevel returns the current light level of the lamp.
func (l RedstoneLamp) LightEmissionLevel() uint8 {
	if l.Lit {
		return 15
	}
	return 0
}

// EncodeItem ...
func (RedstoneLamp) EncodeItem() (name string, meta int16) {
	return "minecraft:redstone_lamp", 0
}

// EncodeBlock ...
func (l RedstoneLamp) EncodeBlock() (string, map[string]any) {
	if l.Lit {
		return "minecraft:lit_redstone_lamp", nil
	}
	return "minecraft:redstone_lamp", nil
}

// Model ...
func (RedstoneLamp) Model() world.BlockModel {
	return model.Solid{}
}

// Hash ...
func (RedstoneLamp) Hash() (uint64, uint64) {
	return slowHash()
}

// allRedstoneLamps returns all lamp block states for registration.
func allRedstoneLamps() []world.Block {
	return []world.Block{
		RedstoneLamp{},
		RedstoneLamp{Lit: true},
	}
}

// RedstoneBlock is a solid block that always emits power.
type RedstoneBlock struct{}

// EncodeItem ...
func (RedstoneBlock) EncodeItem() (name string, meta int16) {
	return "minecraft:redstone_block", 0
}

// EncodeBlock ...
func (RedstoneBlock) EncodeBlock() (string, map[string]any) {
	return "minecraft:redstone_block", nil
}

// Model ...
func (RedstoneBlock) Model() world.BlockModel {
	return model.Solid{}
}

// Hash ...
func (RedstoneBlock) Hash() (uint64, uint64) {
	return slowHash()
}
