// Command inspect_state prints the records of a conduit state store. With
// -raw, the NBT payload of every record is decoded as a generic compound,
// which helps with records written by a different version.
package main

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/df-mc/dragonfly/server/block/cube"
	"github.com/dm-vev/conduit/server/world/conduit/statestore"
	"github.com/sandertv/gophertunnel/minecraft/nbt"
)

func main() {
	dir := flag.String("dir", "conduit/state", "state store directory")
	raw := flag.Bool("raw", false, "decode records as generic NBT compounds")
	flag.Parse()

	log := slog.New(slog.NewTextHandler(os.Stderr, nil))
	s, err := statestore.Open(*dir, log)
	if err != nil {
		log.Error("Could not open state store.", "err", err)
		os.Exit(1)
	}
	defer s.Close()
	if err := dump(s, *raw, os.Stdout); err != nil {
		log.Error("Could not inspect state store.", "err", err)
		os.Exit(1)
	}
}

func dump(s *statestore.Store, raw bool, out io.Writer) error {
	count := 0
	if !raw {
		err := s.Range(func(pos cube.Pos, r statestore.Record) bool {
			count++
			fmt.Fprintf(out, "%d %d %d %s kind=%v emitted=%d\n", pos[0], pos[1], pos[2], r.Name, r.NodeKind(), r.Emitted)
			return true
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%d records\n", count)
		return nil
	}

	var decodeErr error
	err := s.RangeRaw(func(pos cube.Pos, data []byte) bool {
		var m map[string]any
		if decodeErr = nbt.UnmarshalEncoding(data, &m, nbt.LittleEndian); decodeErr != nil {
			decodeErr = fmt.Errorf("decode record %v: %w", pos, decodeErr)
			return false
		}
		count++
		fmt.Fprintf(out, "%d %d %d %v\n", pos[0], pos[1], pos[2], m)
		return true
	})
	if err != nil {
		return err
	}
	if decodeErr != nil {
		return decodeErr
	}
	fmt.Fprintf(out, "%d records\n", count)
	return nil
}
