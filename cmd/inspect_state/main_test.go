package main

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/df-mc/dragonfly/server/block/cube"
	"github.com/dm-vev/conduit/server/world/conduit"
	"github.com/dm-vev/conduit/server/world/conduit/statestore"
)

func TestDump(t *testing.T) {
	s, err := statestore.OpenMemory(slog.New(slog.DiscardHandler))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	rec := statestore.Record{Name: "minecraft:redstone_block", Kind: uint8(conduit.KindSource), Emitted: 7, Configured: true}
	if err := s.Put(cube.Pos{1, -2, 3}, rec); err != nil {
		t.Fatalf("put: %v", err)
	}

	var out bytes.Buffer
	if err := dump(s, false, &out); err != nil {
		t.Fatalf("dump: %v", err)
	}
	if want := "1 -2 3 minecraft:redstone_block kind=Source emitted=7\n1 records\n"; out.String() != want {
		t.Fatalf("dump = %q, want %q", out.String(), want)
	}

	out.Reset()
	if err := dump(s, true, &out); err != nil {
		t.Fatalf("dump raw: %v", err)
	}
	if !strings.Contains(out.String(), "emitted:7") || !strings.HasSuffix(out.String(), "1 records\n") {
		t.Fatalf("unexpected raw dump %q", out.String())
	}
}
