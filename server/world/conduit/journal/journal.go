// Package journal records conduit ticks as zstd compressed JSON lines, one
// file per hour, so that recomputations can be inspected and replayed later.
package journal

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/df-mc/dragonfly/server/block/cube"
	"github.com/dm-vev/conduit/server/world/conduit"
	"github.com/klauspost/compress/zstd"
)

// Level is a position paired with a power level.
type Level struct {
	Pos   cube.Pos `json:"pos"`
	Level uint8    `json:"level"`
}

// Entry is a single journal line.
type Entry struct {
	Session    string        `json:"session"`
	Tick       uint64        `json:"tick"`
	Time       time.Time     `json:"time"`
	Duration   time.Duration `json:"duration_ns"`
	Processed  int           `json:"processed"`
	Created    int           `json:"created"`
	Dissolved  int           `json:"dissolved"`
	Deferred   int           `json:"deferred,omitempty"`
	Repaired   int           `json:"repaired,omitempty"`
	Failed     bool          `json:"failed,omitempty"`
	Changes    []Level       `json:"changes,omitempty"`
	Deliveries []Level       `json:"deliveries,omitempty"`
}

// EntryFromReport converts a tick report to a journal entry.
func EntryFromReport(r conduit.Report) Entry {
	e := Entry{
		Session:   r.Session.String(),
		Tick:      r.Tick,
		Time:      r.Start.UTC(),
		Duration:  r.Duration,
		Processed: r.Result.Processed,
		Created:   r.Result.Created,
		Dissolved: r.Result.Dissolved,
		Deferred:  r.Result.Deferred,
		Repaired:  r.Result.Repaired,
		Failed:    r.Failed,
	}
	for _, c := range r.Result.Changes {
		e.Changes = append(e.Changes, Level{Pos: c.Pos, Level: c.Level})
	}
	for _, d := range r.Result.Deliveries {
		e.Deliveries = append(e.Deliveries, Level{Pos: d.Pos, Level: d.Level})
	}
	return e
}

// Writer is a conduit.Observer that appends a line for every tick that did
// any work. Files are named <prefix>-<yyyy-mm-dd-hh>.jsonl.zst and rotated
// when the hour changes.
type Writer struct {
	dir    string
	prefix string
	log    *slog.Logger
	now    func() time.Time

	mu      sync.Mutex
	curHour string
	f       *os.File
	enc     *zstd.Encoder
	w       *bufio.Writer
}

// NewWriter returns a Writer creating files in dir. The directory is created
// on the first write.
func NewWriter(dir, prefix string, log *slog.Logger) *Writer {
	if log == nil {
		log = slog.Default()
	}
	if prefix == "" {
		prefix = "ticks"
	}
	return &Writer{dir: dir, prefix: prefix, log: log, now: time.Now}
}

// ObserveTick writes r unless the tick was idle. Write errors are logged.
func (w *Writer) ObserveTick(r conduit.Report) {
	if r.Result.Empty() && !r.Failed {
		return
	}
	if err := w.Write(EntryFromReport(r)); err != nil {
		w.log.Error("Could not write tick journal.", "tick", r.Tick, "err", err)
	}
}

// Write appends e to the current file.
func (w *Writer) Write(e Entry) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	hour := w.now().UTC().Format("2006-01-02-15")
	if hour != w.curHour {
		if err := w.rotateLocked(hour); err != nil {
			return err
		}
	}
	b, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode entry: %w", err)
	}
	if _, err := w.w.Write(b); err != nil {
		return fmt.Errorf("write entry: %w", err)
	}
	if err := w.w.WriteByte('\n'); err != nil {
		return fmt.Errorf("write entry: %w", err)
	}
	return w.w.Flush()
}

// Close flushes and closes the current file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closeLocked()
}

func (w *Writer) rotateLocked(hour string) error {
	if err := w.closeLocked(); err != nil {
		return err
	}
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return fmt.Errorf("create journal dir: %w", err)
	}
	path := filepath.Join(w.dir, fmt.Sprintf("%s-%s.jsonl.zst", w.prefix, hour))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("create encoder: %w", err)
	}
	w.f, w.enc, w.w = f, enc, bufio.NewWriterSize(enc, 64*1024)
	w.curHour = hour
	return nil
}

func (w *Writer) closeLocked() error {
	var errs []error
	if w.w != nil {
		errs = append(errs, w.w.Flush())
	}
	if w.enc != nil {
		errs = append(errs, w.enc.Close())
		w.enc = nil
	}
	if w.f != nil {
		errs = append(errs, w.f.Close())
		w.f = nil
	}
	w.w = nil
	w.curHour = ""
	return errors.Join(errs...)
}

// Read decodes every entry of a closed journal file.
func Read(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	defer f.Close()
	return decode(f)
}

// ReadDir decodes all journal files with the prefix in dir, oldest first.
func ReadDir(dir, prefix string) ([]Entry, error) {
	if prefix == "" {
		prefix = "ticks"
	}
	paths, err := filepath.Glob(filepath.Join(dir, prefix+"-*.jsonl.zst"))
	if err != nil {
		return nil, fmt.Errorf("list journal: %w", err)
	}
	sort.Strings(paths)
	var out []Entry
	for _, p := range paths {
		entries, err := Read(p)
		if err != nil {
			return out, fmt.Errorf("read %s: %w", filepath.Base(p), err)
		}
		out = append(out, entries...)
	}
	return out, nil
}

func decode(r io.Reader) ([]Entry, error) {
	dec, err := zstd.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("create decoder: %w", err)
	}
	defer dec.Close()

	var out []Entry
	jd := json.NewDecoder(bufio.NewReader(dec))
	for {
		var e Entry
		if err := jd.Decode(&e); err != nil {
			if errors.Is(err, io.EOF) {
				return out, nil
			}
			return out, fmt.Errorf("decode entry %d: %w", len(out), err)
		}
		out = append(out, e)
	}
}
