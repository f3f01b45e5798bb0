// Package block implements the blocks the conduit engine works with: redstone
// dust as conduit, redstone blocks and levers as sources and redstone lamps as
// consumers.
package block

import (
	"errors"
	"fmt"
	"math"
	"sync"

	dfblock "github.com/df-mc/dragonfly/server/block"
	"github.com/df-mc/dragonfly/server/block/cube"
	"github.com/df-mc/dragonfly/server/item"
	"github.com/df-mc/dragonfly/server/world"
)

// slowHash makes the world resolve the block's runtime ID by name and
// properties.
func slowHash() (uint64, uint64) {
	return 0, math.MaxUint64
}

// States returns every block state implemented by the package.
func States() []world.Block {
	var states []world.Block
	states = append(states, allRedstoneDust()...)
	states = append(states, allRedstoneLamps()...)
	states = append(states, allLevers()...)
	return append(states, RedstoneBlock{})
}

var (
	registerOnce sync.Once
	registerErr  error
)

// Register registers all block states and items of the package with the
// world registry. States that are already registered are skipped and
// reported in the returned error. Only the first call has an effect.
func Register() error {
	registerOnce.Do(func() {
		var errs []error
		for _, b := range States() {
			if err := registerBlock(b); err != nil {
				errs = append(errs, err)
			}
		}
		for _, it := range []world.Item{RedstoneDust{}, RedstoneLamp{}, Lever{}, RedstoneBlock{}} {
			if err := registerItem(it); err != nil {
				errs = append(errs, err)
			}
		}
		registerErr = errors.Join(errs...)
	})
	return registerErr
}

func registerBlock(b world.Block) (err error) {
	defer func() {
		if r := recover(); r != nil {
			name, props := b.EncodeBlock()
			err = fmt.Errorf("register block %s %v: %v", name, props, r)
		}
	}()
	world.RegisterBlock(b)
	return nil
}

func registerItem(it world.Item) (err error) {
	defer func() {
		if r := recover(); r != nil {
			name, _ := it.EncodeItem()
			err = fmt.Errorf("register item %s: %v", name, r)
		}
	}()
	world.RegisterItem(it)
	return nil
}

// placer is implemented by users that place blocks through the regular
// placement path, which runs the block place handlers.
type placer interface {
	PlaceBlock(pos cube.Pos, b world.Block, ctx *item.UseContext)
}

// place puts b at pos on behalf of user and reports if it was placed.
func place(tx *world.Tx, pos cube.Pos, b world.Block, user item.User, ctx *item.UseContext) bool {
	if p, ok := user.(placer); ok {
		p.PlaceBlock(pos, b, ctx)
		return ctx.CountSub > 0
	}
	tx.SetBlock(pos, b, nil)
	ctx.SubtractFromCount(1)
	return true
}

// replaceable reports if the block at pos may be replaced by with.
func replaceable(tx *world.Tx, pos cube.Pos, with world.Block) bool {
	switch b := tx.Block(pos).(type) {
	case dfblock.Air:
		return true
	case dfblock.Replaceable:
		return b.ReplaceableBy(with)
	}
	return false
}
