// Command conduit runs the conduit engine headless against a scripted
// scenario or a persisted state store and prints the resulting networks.
//
//	conduit -scenario merge.yaml
//	conduit -store conduit/state -ticks 4 -journal out
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/dm-vev/conduit/server/world/conduit"
	"github.com/dm-vev/conduit/server/world/conduit/grid"
	"github.com/dm-vev/conduit/server/world/conduit/journal"
	"github.com/dm-vev/conduit/server/world/conduit/statestore"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

type options struct {
	scenario string
	store    string
	save     string
	journal  string
	ticks    int
	perTick  int
	levels   bool
}

func main() {
	var (
		opts    options
		verbose bool
	)
	flag.StringVar(&opts.scenario, "scenario", "", "YAML scenario to run")
	flag.StringVar(&opts.store, "store", "", "state store to load the world from")
	flag.StringVar(&opts.save, "save", "", "state store to save the final world to")
	flag.StringVar(&opts.journal, "journal", "", "directory to journal ticks to")
	flag.IntVar(&opts.ticks, "ticks", 1, "minimum number of ticks to run")
	flag.IntVar(&opts.perTick, "per-tick", 0, "maximum invalidations processed per tick, 0 for no limit")
	flag.BoolVar(&opts.levels, "levels", false, "print the level of every block")
	flag.BoolVar(&verbose, "v", false, "enable debug logging")
	flag.Parse()

	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	if err := run(opts, os.Stdout, log); err != nil {
		log.Error("Simulation failed.", "err", err)
		os.Exit(1)
	}
}

var printer = message.NewPrinter(language.English)

// run loads the world described by opts, ticks the engine until every step
// ran and no invalidations are left, and writes a summary to out.
func run(opts options, out io.Writer, log *slog.Logger) (err error) {
	if (opts.scenario == "") == (opts.store == "") {
		return errors.New("exactly one of -scenario and -store must be set")
	}
	var (
		s grid.Scenario
		w *grid.World
	)
	if opts.scenario != "" {
		if s, err = grid.LoadScenario(opts.scenario); err != nil {
			return err
		}
		if w, err = s.Build(); err != nil {
			return err
		}
	} else if w, err = loadStore(opts.store, log); err != nil {
		return err
	}

	conf := conduit.Config{Log: log, MaxInvalidationsPerTick: opts.perTick}
	if err := conf.Validate(); err != nil {
		return fmt.Errorf("invalid engine config: %w", err)
	}
	m := conf.New()
	defer m.Shutdown()

	proc := conduit.Procedure{Manager: m}
	if opts.journal != "" {
		j := journal.NewWriter(opts.journal, "ticks", log)
		defer func() { err = errors.Join(err, j.Close()) }()
		proc.Observer = j
	}

	w.InvalidateAll(m)
	var ticks int
	for i := 0; ticks < opts.ticks || i < len(s.Steps) || m.Pending() > 0; ticks++ {
		if i < len(s.Steps) && ticks > 0 {
			if err := s.ApplyStep(i, w, m); err != nil {
				return fmt.Errorf("apply step %d: %w", i, err)
			}
			i++
		}
		if rep := proc.Run(w); rep.Failed {
			return fmt.Errorf("tick %d failed", rep.Tick)
		}
	}
	printSummary(out, m, w, ticks, opts.levels)

	if err := m.Verify(); err != nil {
		return fmt.Errorf("verify networks: %w", err)
	}
	if opts.save != "" {
		if err := saveStore(opts.save, w, log); err != nil {
			return err
		}
	}
	if opts.scenario != "" {
		return s.Check(m, w)
	}
	return nil
}

func loadStore(dir string, log *slog.Logger) (*grid.World, error) {
	st, err := statestore.Open(dir, log)
	if err != nil {
		return nil, err
	}
	defer st.Close()
	return grid.Load(st)
}

func saveStore(dir string, w *grid.World, log *slog.Logger) error {
	st, err := statestore.Open(dir, log)
	if err != nil {
		return err
	}
	return errors.Join(w.Save(st), st.Close())
}

func printSummary(out io.Writer, m *conduit.Manager, w *grid.World, ticks int, levels bool) {
	networks := m.Networks()
	printer.Fprintf(out, "%d ticks, %d blocks, %d networks, digest %016x\n", ticks, w.Len(), len(networks), m.Digest())
	for _, n := range networks {
		printer.Fprintf(out, "#%d: %d members, %d sources, %d consumers, max power %d\n",
			n.ID, n.Members, n.Sources, n.Consumers, n.MaxLevel)
	}
	if !levels {
		return
	}
	for _, pos := range w.Positions() {
		b, _ := w.Block(pos)
		level, ok := m.Level(pos)
		if !ok {
			level = b.Power
		}
		fmt.Fprintf(out, "%d %d %d %v %d\n", pos[0], pos[1], pos[2], b.Kind, level)
	}
}
