package server

import (
	"github.com/df-mc/dragonfly/server/block/cube"
	"github.com/df-mc/dragonfly/server/world"
	"github.com/dm-vev/conduit/server/block"
	"github.com/dm-vev/conduit/server/world/conduit"
	"github.com/dm-vev/conduit/server/world/conduit/statestore"
)

// Block state names the engine recognises.
const (
	nameWire     = "minecraft:redstone_wire"
	nameBlock    = "minecraft:redstone_block"
	nameLever    = "minecraft:lever"
	nameLamp     = "minecraft:redstone_lamp"
	nameLitLamp  = "minecraft:lit_redstone_lamp"
	propSignal   = "redstone_signal"
	propLeverBit = "open_bit"
)

// recognised reports if b is a block the engine cares about, even if it does
// not take part in a network in its current state.
func recognised(b world.Block) bool {
	if b == nil {
		return false
	}
	switch name, _ := b.EncodeBlock(); name {
	case nameWire, nameBlock, nameLever, nameLamp, nameLitLamp:
		return true
	}
	return false
}

// classify maps a block state onto the engine's view of it. Emitted is left
// zero for sources and filled in by the caller.
func classify(b world.Block) (conduit.NodeInfo, bool) {
	if b == nil {
		return conduit.NodeInfo{}, false
	}
	name, props := b.EncodeBlock()
	switch name {
	case nameWire:
		signal, _ := props[propSignal].(int32)
		return conduit.NodeInfo{Kind: conduit.KindConduit, Power: uint8(max(0, min(signal, conduit.MaxPower)))}, true
	case nameBlock:
		return conduit.NodeInfo{Kind: conduit.KindSource}, true
	case nameLever:
		if on, _ := props[propLeverBit].(bool); on {
			return conduit.NodeInfo{Kind: conduit.KindSource}, true
		}
	case nameLamp:
		return conduit.NodeInfo{Kind: conduit.KindConsumer}, true
	case nameLitLamp:
		return conduit.NodeInfo{Kind: conduit.KindConsumer, Power: conduit.MaxPower}, true
	}
	return conduit.NodeInfo{}, false
}

// recordFor returns the state store record of b. Only conduits and sources
// are recorded: levers are sources whether they are on or not. The record
// carries no configured level.
func recordFor(b world.Block) (statestore.Record, bool) {
	if b == nil {
		return statestore.Record{}, false
	}
	switch name, _ := b.EncodeBlock(); name {
	case nameWire:
		return statestore.Record{Name: name, Kind: uint8(conduit.KindConduit)}, true
	case nameBlock, nameLever:
		return statestore.Record{Name: name, Kind: uint8(conduit.KindSource)}, true
	}
	return statestore.Record{}, false
}

// blockAccess is the part of a *world.Tx that txWorld uses.
type blockAccess interface {
	Block(pos cube.Pos) world.Block
	SetBlock(pos cube.Pos, b world.Block, opts *world.SetOpts)
}

// txWorld is a conduit.World and conduit.Deliverer over a world transaction.
// It must not be used after the transaction ends.
type txWorld struct {
	tx             blockAccess
	store          *statestore.Store
	defaultEmitted int
}

// NodeAt ...
func (w txWorld) NodeAt(pos cube.Pos) (conduit.NodeInfo, bool) {
	info, ok := classify(w.tx.Block(pos))
	if !ok {
		return info, false
	}
	if info.Kind == conduit.KindSource {
		info.Emitted = w.defaultEmitted
		if w.store != nil {
			if v, ok := w.store.Emitted(pos); ok {
				info.Emitted = v
			}
		}
	}
	return info, true
}

// SetPowerLevel writes level into the redstone wire at pos. Other blocks are
// left alone, so a level computed before the block was replaced is dropped.
func (w txWorld) SetPowerLevel(pos cube.Pos, level uint8) {
	if name, _ := w.tx.Block(pos).EncodeBlock(); name != nameWire {
		return
	}
	w.tx.SetBlock(pos, block.RedstoneDust{Power: level}, nil)
}

// DeliverPower lights the lamp at pos if level is above zero and turns it off
// otherwise.
func (w txWorld) DeliverPower(pos cube.Pos, level uint8) {
	name, _ := w.tx.Block(pos).EncodeBlock()
	lit := level > 0
	switch {
	case name == nameLamp && lit, name == nameLitLamp && !lit:
		w.tx.SetBlock(pos, block.RedstoneLamp{Lit: lit}, nil)
	}
}
