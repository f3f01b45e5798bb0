// Package statestore persists the configuration of conduit blocks, such as
// the emitted level of sources, in a LevelDB database. Derived power levels
// are never stored: they are recomputed by the engine after loading.
package statestore

import (
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"

	"github.com/df-mc/dragonfly/server/block/cube"
	"github.com/df-mc/goleveldb/leveldb"
	"github.com/df-mc/goleveldb/leveldb/opt"
	"github.com/df-mc/goleveldb/leveldb/storage"
	"github.com/df-mc/goleveldb/leveldb/util"
	"github.com/dm-vev/conduit/server/world/conduit"
	"github.com/sandertv/gophertunnel/minecraft/nbt"
)

// Record is the persisted configuration of a single block.
type Record struct {
	// Name is the block state name the record was written for, for example
	// minecraft:redstone_block.
	Name string `nbt:"name"`
	// Kind is the conduit.NodeKind of the block.
	Kind uint8 `nbt:"kind"`
	// Emitted is the configured level of a source. It only applies if
	// Configured is set; otherwise the host default is used.
	Emitted    int32 `nbt:"emitted"`
	Configured bool  `nbt:"configured"`
}

// NodeKind returns the kind of the record.
func (r Record) NodeKind() conduit.NodeKind {
	return conduit.NodeKind(r.Kind)
}

// keyPrefix tags every record key so the database can hold other data.
var keyPrefix = []byte("cnd")

// Store is a LevelDB backed block-state registry. It is safe for concurrent
// use.
type Store struct {
	db  *leveldb.DB
	log *slog.Logger
}

// Open opens or creates the store in dir.
func Open(dir string, log *slog.Logger) (*Store, error) {
	db, err := leveldb.OpenFile(dir, &opt.Options{
		Compression: opt.FlateCompression,
		BlockSize:   16 * opt.KiB,
	})
	if err != nil {
		return nil, fmt.Errorf("open state store: %w", err)
	}
	return newStore(db, log), nil
}

// OpenMemory opens a store that lives in memory only.
func OpenMemory(log *slog.Logger) (*Store, error) {
	db, err := leveldb.Open(storage.NewMemStorage(), nil)
	if err != nil {
		return nil, fmt.Errorf("open memory state store: %w", err)
	}
	return newStore(db, log), nil
}

func newStore(db *leveldb.DB, log *slog.Logger) *Store {
	if log == nil {
		log = slog.Default()
	}
	return &Store{db: db, log: log}
}

// Put stores r for pos, replacing any existing record.
func (s *Store) Put(pos cube.Pos, r Record) error {
	b, err := nbt.MarshalEncoding(r, nbt.LittleEndian)
	if err != nil {
		return fmt.Errorf("encode record %v: %w", pos, err)
	}
	if err := s.db.Put(key(pos), b, nil); err != nil {
		return fmt.Errorf("put record %v: %w", pos, err)
	}
	return nil
}

// Get returns the record stored for pos. The bool is false if there is none.
func (s *Store) Get(pos cube.Pos) (Record, bool, error) {
	b, err := s.db.Get(key(pos), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, fmt.Errorf("get record %v: %w", pos, err)
	}
	var r Record
	if err := nbt.UnmarshalEncoding(b, &r, nbt.LittleEndian); err != nil {
		return Record{}, false, fmt.Errorf("decode record %v: %w", pos, err)
	}
	return r, true, nil
}

// Emitted returns the configured level of the source at pos. Records that
// only mark a position as a network member are reported as missing, as are
// lookup errors, which are logged.
func (s *Store) Emitted(pos cube.Pos) (int, bool) {
	r, ok, err := s.Get(pos)
	if err != nil {
		s.log.Error("Could not read source configuration.", "pos", pos, "err", err)
		return 0, false
	}
	if !ok || !r.Configured || r.NodeKind() != conduit.KindSource {
		return 0, false
	}
	return int(r.Emitted), true
}

// Delete removes the record of pos. Deleting a missing record is not an
// error.
func (s *Store) Delete(pos cube.Pos) error {
	if err := s.db.Delete(key(pos), nil); err != nil {
		return fmt.Errorf("delete record %v: %w", pos, err)
	}
	return nil
}

// Range calls fn for every record in key order until fn returns false.
// Records that fail to decode are logged and skipped.
func (s *Store) Range(fn func(pos cube.Pos, r Record) bool) error {
	return s.RangeRaw(func(pos cube.Pos, data []byte) bool {
		var r Record
		if err := nbt.UnmarshalEncoding(data, &r, nbt.LittleEndian); err != nil {
			s.log.Warn("Skipping undecodable record.", "pos", pos, "err", err)
			return true
		}
		return fn(pos, r)
	})
}

// RangeRaw calls fn with the encoded NBT of every record in key order until
// fn returns false. data is only valid during the call.
func (s *Store) RangeRaw(fn func(pos cube.Pos, data []byte) bool) error {
	it := s.db.NewIterator(util.BytesPrefix(keyPrefix), nil)
	defer it.Release()
	for it.Next() {
		pos, ok := parseKey(it.Key())
		if !ok {
			continue
		}
		if !fn(pos, it.Value()) {
			break
		}
	}
	if err := it.Error(); err != nil {
		return fmt.Errorf("iterate records: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close state store: %w", err)
	}
	return nil
}

func key(pos cube.Pos) []byte {
	b := make([]byte, len(keyPrefix)+12)
	n := copy(b, keyPrefix)
	binary.BigEndian.PutUint32(b[n:], uint32(int32(pos[0])))
	binary.BigEndian.PutUint32(b[n+4:], uint32(int32(pos[1])))
	binary.BigEndian.PutUint32(b[n+8:], uint32(int32(pos[2])))
	return b
}

func parseKey(b []byte) (cube.Pos, bool) {
	if len(b) != len(keyPrefix)+12 {
		return cube.Pos{}, false
	}
	b = b[len(keyPrefix):]
	return cube.Pos{
		int(int32(binary.BigEndian.Uint32(b))),
		int(int32(binary.BigEndian.Uint32(b[4:]))),
		int(int32(binary.BigEndian.Uint32(b[8:]))),
	}, true
}
