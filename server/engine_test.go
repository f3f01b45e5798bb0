package server

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/df-mc/dragonfly/server/block/cube"
	"github.com/df-mc/dragonfly/server/world"
	"github.com/dm-vev/conduit/server/block"
	"github.com/dm-vev/conduit/server/world/conduit"
	"github.com/dm-vev/conduit/server/world/conduit/statestore"
)

func newTestEngine(t *testing.T, conf Config, tx *fakeTx) *Engine {
	t.Helper()
	conf.Log = quietLogger()
	e, err := NewEngine(conf)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	e.t.host = func(*world.Tx) conduit.World { return e.world(tx) }
	t.Cleanup(func() { _ = e.Close() })
	return e
}

// circuit places a source at x=0, dust at x=1..3 and a lamp at x=4.
func circuit(tx *fakeTx, e *Engine) {
	tx.put(cube.Pos{0, 64, 0}, block.RedstoneBlock{})
	for x := 1; x <= 3; x++ {
		tx.put(cube.Pos{x, 64, 0}, block.RedstoneDust{})
	}
	tx.put(cube.Pos{4, 64, 0}, block.RedstoneLamp{})
	for x := 0; x <= 4; x++ {
		e.m.InvalidatePlacement(cube.Pos{x, 64, 0})
	}
}

func dustPower(t *testing.T, tx *fakeTx, x int) uint8 {
	t.Helper()
	d, ok := tx.Block(cube.Pos{x, 64, 0}).(block.RedstoneDust)
	if !ok {
		t.Fatalf("expected dust at x=%d, got %T", x, tx.Block(cube.Pos{x, 64, 0}))
	}
	return d.Power
}

func lampLit(tx *fakeTx) bool {
	l, _ := tx.Block(cube.Pos{4, 64, 0}).(block.RedstoneLamp)
	return l.Lit
}

func TestEnginePowersCircuit(t *testing.T) {
	tx := newFakeTx()
	e := newTestEngine(t, Config{}, tx)
	circuit(tx, e)

	if !e.t.tick(context.Background(), syncExecutor{}) {
		t.Fatalf("tick was cancelled")
	}
	for x, want := range map[int]uint8{1: 14, 2: 13, 3: 12} {
		if got := dustPower(t, tx, x); got != want {
			t.Fatalf("dust at x=%d: expected %d, got %d", x, want, got)
		}
	}
	if !lampLit(tx) {
		t.Fatalf("expected lamp to be lit")
	}

	writes := tx.writes()
	e.t.tick(context.Background(), syncExecutor{})
	if tx.writes() != writes {
		t.Fatalf("idle tick wrote %d blocks", tx.writes()-writes)
	}
	if last, ok := e.t.Last(); !ok || last.Tick != 2 {
		t.Fatalf("expected last report of tick 2, got %+v", last)
	}
}

func TestEngineSetEmittedAndBreak(t *testing.T) {
	store, err := statestore.OpenMemory(quietLogger())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	tx := newFakeTx()
	e := newTestEngine(t, Config{Store: store}, tx)
	circuit(tx, e)
	e.t.tick(context.Background(), syncExecutor{})

	if err := e.setEmitted(tx, cube.Pos{0, 64, 0}, 5); err != nil {
		t.Fatalf("set emitted: %v", err)
	}
	e.t.tick(context.Background(), syncExecutor{})
	if got := dustPower(t, tx, 3); got != 2 {
		t.Fatalf("expected dust at x=3 to carry 2, got %d", got)
	}

	e.Handler().blockBroken(tx, cube.Pos{0, 64, 0})
	tx.SetBlock(cube.Pos{0, 64, 0}, nil, nil)
	e.t.tick(context.Background(), syncExecutor{})
	if got := dustPower(t, tx, 1); got != 0 {
		t.Fatalf("expected dust to lose power, got %d", got)
	}
	if lampLit(tx) {
		t.Fatalf("expected lamp to turn off")
	}
	if _, ok, _ := store.Get(cube.Pos{0, 64, 0}); ok {
		t.Fatalf("expected source configuration to be forgotten")
	}
}

func TestHandlerWithoutEngine(t *testing.T) {
	tx := newFakeTx()
	e := newTestEngine(t, Config{}, tx)
	circuit(tx, e)

	h := NewHandler(func() (*Engine, bool) { return nil, false })
	h.blockBroken(tx, cube.Pos{1, 64, 0})
	if e.m.Pending() != 5 {
		t.Fatalf("expected only the circuit placements to be pending, got %d", e.m.Pending())
	}
}

func TestEngineSetEmittedWithoutStore(t *testing.T) {
	tx := newFakeTx()
	e := newTestEngine(t, Config{}, tx)
	tx.put(cube.Pos{}, block.RedstoneBlock{})
	if err := e.setEmitted(tx, cube.Pos{}, 3); !errors.Is(err, ErrNoStore) {
		t.Fatalf("expected ErrNoStore, got %v", err)
	}
}

func TestEngineSetEmittedRecordsBlockName(t *testing.T) {
	store, err := statestore.OpenMemory(quietLogger())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	tx := newFakeTx()
	e := newTestEngine(t, Config{Store: store}, tx)
	lever, dust := cube.Pos{0, 64, 0}, cube.Pos{1, 64, 0}
	tx.put(lever, block.Lever{Face: cube.FaceUp, Powered: true})
	tx.put(dust, block.RedstoneDust{})

	if err := e.setEmitted(tx, lever, 7); err != nil {
		t.Fatalf("set emitted: %v", err)
	}
	rec, ok, err := store.Get(lever)
	if err != nil || !ok {
		t.Fatalf("expected a record for the lever: %v", err)
	}
	if rec.Name != nameLever || !rec.Configured || rec.Emitted != 7 {
		t.Fatalf("unexpected lever record %+v", rec)
	}
	if err := e.setEmitted(tx, dust, 7); !errors.Is(err, ErrNotSource) {
		t.Fatalf("expected ErrNotSource for dust, got %v", err)
	}
	if err := e.setEmitted(tx, lever, 16); !errors.Is(err, ErrLevelOutOfRange) {
		t.Fatalf("expected ErrLevelOutOfRange, got %v", err)
	}
}

func TestEngineRestoresNetworksFromStore(t *testing.T) {
	store, err := statestore.OpenMemory(quietLogger())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	// The world as left by a previous run with the source emitting 15.
	tx := newFakeTx()
	tx.put(cube.Pos{0, 64, 0}, block.RedstoneBlock{})
	tx.put(cube.Pos{1, 64, 0}, block.RedstoneDust{Power: 14})
	src := statestore.Record{Name: nameBlock, Kind: uint8(conduit.KindSource), Emitted: 5, Configured: true}
	if err := store.Put(cube.Pos{0, 64, 0}, src); err != nil {
		t.Fatalf("put source: %v", err)
	}
	if err := store.Put(cube.Pos{1, 64, 0}, statestore.Record{Name: nameWire, Kind: uint8(conduit.KindConduit)}); err != nil {
		t.Fatalf("put dust: %v", err)
	}

	e := newTestEngine(t, Config{Store: store}, tx)
	if e.m.Pending() != 2 {
		t.Fatalf("expected 2 restored positions pending, got %d", e.m.Pending())
	}
	e.t.tick(context.Background(), syncExecutor{})
	if got := dustPower(t, tx, 1); got != 4 {
		t.Fatalf("expected restored dust to carry 4, got %d", got)
	}
}

func TestHandlerRecordsPlacements(t *testing.T) {
	store, err := statestore.OpenMemory(quietLogger())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	tx := newFakeTx()
	e := newTestEngine(t, Config{Store: store}, tx)
	h := e.Handler()
	src, dust, lamp := cube.Pos{0, 64, 0}, cube.Pos{1, 64, 0}, cube.Pos{2, 64, 0}
	tx.put(src, block.RedstoneBlock{})
	h.blockPlaced(src, block.RedstoneBlock{})
	h.blockPlaced(dust, block.RedstoneDust{})
	h.blockPlaced(lamp, block.RedstoneLamp{})

	if rec, ok, _ := store.Get(dust); !ok || rec.NodeKind() != conduit.KindConduit || rec.Name != nameWire {
		t.Fatalf("expected a conduit record for dust, got %+v (found %v)", rec, ok)
	}
	if _, ok, _ := store.Get(lamp); ok {
		t.Fatalf("expected consumers not to be recorded")
	}

	if err := e.setEmitted(tx, src, 3); err != nil {
		t.Fatalf("set emitted: %v", err)
	}
	h.blockPlaced(src, block.RedstoneBlock{})
	if level, ok := store.Emitted(src); !ok || level != 3 {
		t.Fatalf("expected placing the same block to keep level 3, got %d (%v)", level, ok)
	}
	h.blockPlaced(src, block.Lever{Face: cube.FaceUp})
	if _, ok := store.Emitted(src); ok {
		t.Fatalf("expected a different block to reset the configured level")
	}
}

func TestEngineLeverToggle(t *testing.T) {
	tx := newFakeTx()
	e := newTestEngine(t, Config{DefaultEmitted: 9}, tx)
	lever := cube.Pos{0, 64, 0}
	tx.put(lever, block.Lever{Face: cube.FaceUp})
	tx.put(cube.Pos{1, 64, 0}, block.RedstoneDust{})
	e.m.InvalidatePlacement(lever)
	e.m.InvalidatePlacement(cube.Pos{1, 64, 0})
	e.t.tick(context.Background(), syncExecutor{})
	if got := dustPower(t, tx, 1); got != 0 {
		t.Fatalf("expected unpowered dust next to an off lever, got %d", got)
	}

	tx.put(lever, block.Lever{Face: cube.FaceUp, Powered: true})
	e.m.InvalidatePlacement(lever)
	e.t.tick(context.Background(), syncExecutor{})
	if got := dustPower(t, tx, 1); got != 8 {
		t.Fatalf("expected dust to carry 8 from a lever emitting 9, got %d", got)
	}
}

func TestTickerRunStopsOnCancel(t *testing.T) {
	tx := newFakeTx()
	e := newTestEngine(t, Config{TickInterval: time.Millisecond}, tx)
	circuit(tx, e)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go e.t.run(ctx, syncExecutor{}, done)

	deadline := time.Now().Add(2 * time.Second)
	for {
		if last, ok := e.t.Last(); ok && last.Tick >= 3 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("ticker did not tick")
		}
		time.Sleep(time.Millisecond)
	}
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("ticker did not stop")
	}
	if !lampLit(tx) {
		t.Fatalf("expected the ticker to power the circuit")
	}
}

func TestTickerStuckWorld(t *testing.T) {
	e := newTestEngine(t, Config{}, newFakeTx())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if e.t.tick(ctx, stuckExecutor{}) {
		t.Fatalf("expected tick to give up on a cancelled context")
	}
}

func TestEngineClose(t *testing.T) {
	e := newTestEngine(t, Config{}, newFakeTx())
	if err := e.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := e.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if !e.Manager().Closed() {
		t.Fatalf("expected manager to be shut down")
	}
	if e.t.tick(context.Background(), syncExecutor{}); e.m.Metrics().Ticks != 0 {
		t.Fatalf("expected no ticks after close")
	}
}
