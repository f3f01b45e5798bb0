package server

import (
	"io"
	"log/slog"
	"sync"

	"github.com/df-mc/dragonfly/server/block/cube"
	"github.com/df-mc/dragonfly/server/block/model"
	"github.com/df-mc/dragonfly/server/world"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// air stands in for an empty position.
type air struct{}

func (air) EncodeBlock() (string, map[string]any) { return "minecraft:air", nil }
func (air) Hash() (uint64, uint64)                 { return 0, 0 }
func (air) Model() world.BlockModel                { return model.Empty{} }

// stone is a block the engine does not care about.
type stone struct{}

func (stone) EncodeBlock() (string, map[string]any) { return "minecraft:stone", nil }
func (stone) Hash() (uint64, uint64)                 { return 0, 0 }
func (stone) Model() world.BlockModel                { return model.Solid{} }

// fakeTx is a map backed blockAccess.
type fakeTx struct {
	mu     sync.Mutex
	blocks map[cube.Pos]world.Block
	sets   int
}

func newFakeTx() *fakeTx {
	return &fakeTx{blocks: make(map[cube.Pos]world.Block)}
}

func (f *fakeTx) Block(pos cube.Pos) world.Block {
	f.mu.Lock()
	defer f.mu.Unlock()
	if b, ok := f.blocks[pos]; ok {
		return b
	}
	return air{}
}

func (f *fakeTx) SetBlock(pos cube.Pos, b world.Block, _ *world.SetOpts) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if b == nil {
		delete(f.blocks, pos)
		return
	}
	f.blocks[pos] = b
	f.sets++
}

// put places b without counting it as a write of the engine.
func (f *fakeTx) put(pos cube.Pos, b world.Block) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.blocks[pos] = b
}

func (f *fakeTx) writes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sets
}

// syncExecutor runs functions immediately.
type syncExecutor struct{}

func (syncExecutor) Exec(f world.ExecFunc) <-chan struct{} {
	f(nil)
	c := make(chan struct{})
	close(c)
	return c
}

// stuckExecutor never runs functions.
type stuckExecutor struct{}

func (stuckExecutor) Exec(world.ExecFunc) <-chan struct{} {
	return make(chan struct{})
}
