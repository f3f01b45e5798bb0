package server

import (
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/df-mc/dragonfly/server/block/cube"
	"github.com/df-mc/dragonfly/server/cmd"
	"github.com/df-mc/dragonfly/server/player"
	"github.com/df-mc/dragonfly/server/world"
	"github.com/dm-vev/conduit/server/world/conduit"
	"github.com/go-gl/mathgl/mgl64"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Command returns the /conduit debug command operating on the Engine
// returned by find:
//
//	/conduit [pos]               describes the network at pos
//	/conduit networks            lists all networks
//	/conduit status              prints engine statistics
//	/conduit emit <level> [pos]  configures the level of a source
func Command(find Locator) cmd.Command {
	return cmd.New("conduit", "Inspects conduit power networks.", nil,
		inspectCommand{find: find},
		networksCommand{find: find},
		statusCommand{find: find},
		emitCommand{find: find},
	)
}

// Command returns the /conduit command bound to e.
func (e *Engine) Command() cmd.Command {
	return Command(e.locate)
}

// engine returns the Engine of find or writes an error to o.
func engine(find Locator, o *cmd.Output) (*Engine, bool) {
	e, ok := find()
	if !ok {
		o.Error("The conduit engine is not enabled.")
	}
	return e, ok
}

var printer = message.NewPrinter(language.English)

type inspectCommand struct {
	find Locator
	Pos  cmd.Optional[mgl64.Vec3] `cmd:"pos"`
}

func (c inspectCommand) Run(src cmd.Source, o *cmd.Output, _ *world.Tx) {
	e, ok := engine(c.find, o)
	if !ok {
		return
	}
	pos, ok := targetPos(src, c.Pos)
	if !ok {
		o.Error("A position is required when not run by a player.")
		return
	}
	for _, line := range describePos(e.m, pos) {
		o.Print(line)
	}
}

type networksCommand struct {
	find     Locator
	Networks cmd.SubCommand `cmd:"networks"`
}

func (c networksCommand) Run(_ cmd.Source, o *cmd.Output, _ *world.Tx) {
	e, ok := engine(c.find, o)
	if !ok {
		return
	}
	for _, line := range describeNetworks(e.m) {
		o.Print(line)
	}
}

type statusCommand struct {
	find   Locator
	Status cmd.SubCommand `cmd:"status"`
}

func (c statusCommand) Run(_ cmd.Source, o *cmd.Output, _ *world.Tx) {
	e, ok := engine(c.find, o)
	if !ok {
		return
	}
	last, _ := e.t.Last()
	for _, line := range describeStatus(e.m, e.TPS(), last) {
		o.Print(line)
	}
}

type emitCommand struct {
	find  Locator
	Emit  cmd.SubCommand           `cmd:"emit"`
	Level int                      `cmd:"level"`
	Pos   cmd.Optional[mgl64.Vec3] `cmd:"pos"`
}

func (c emitCommand) Run(src cmd.Source, o *cmd.Output, tx *world.Tx) {
	e, ok := engine(c.find, o)
	if !ok {
		return
	}
	pos, ok := targetPos(src, c.Pos)
	if !ok {
		o.Error("A position is required when not run by a player.")
		return
	}
	switch err := e.SetEmitted(tx, pos, c.Level); {
	case errors.Is(err, ErrNotSource):
		o.Errorf("No power source at %v.", pos)
		return
	case errors.Is(err, ErrLevelOutOfRange):
		o.Errorf("Level must be between 0 and %d.", conduit.MaxPower)
		return
	case err != nil:
		o.Errorf("Could not configure source: %v", err)
		return
	}
	o.Printf("Source at %v now emits %d.", pos, c.Level)
}

// targetPos returns the position passed to a command, falling back to the
// position of the block the player running it stands in.
func targetPos(src cmd.Source, arg cmd.Optional[mgl64.Vec3]) (cube.Pos, bool) {
	if v, ok := arg.Load(); ok {
		return cube.PosFromVec3(v), true
	}
	if p, ok := src.(*player.Player); ok {
		return cube.PosFromVec3(p.Position()), true
	}
	return cube.Pos{}, false
}

func describePos(m *conduit.Manager, pos cube.Pos) []string {
	d, ok := m.Inspect(pos)
	if !ok {
		return []string{fmt.Sprintf("No network at %v.", pos)}
	}
	if d.Network == 0 {
		return []string{fmt.Sprintf("Consumer at %v receives power %d.", pos, d.Level)}
	}
	lines := []string{
		fmt.Sprintf("%v at %v: power %d", d.Kind, pos, d.Level),
		printer.Sprintf("Network #%d (generation %d): %d members, %d sources, %d consumers",
			d.Network, d.Generation, d.Members, d.Sources, d.Consumers),
		fmt.Sprintf("Centre: %.1f, %.1f, %.1f | Fingerprint: %016x", d.Centre[0], d.Centre[1], d.Centre[2], d.Fingerprint),
	}
	if d.Truncated {
		lines = append(lines, "Network exceeds the size limit and is truncated.")
	}
	return lines
}

func describeNetworks(m *conduit.Manager) []string {
	networks := m.Networks()
	if len(networks) == 0 {
		return []string{"No networks."}
	}
	lines := make([]string, 0, len(networks)+1)
	members := 0
	for _, n := range networks {
		members += n.Members
		line := printer.Sprintf("#%d: %d members, %d sources, %d consumers, max power %d, centre %.0f %.0f %.0f",
			n.ID, n.Members, n.Sources, n.Consumers, n.MaxLevel, n.Centre[0], n.Centre[1], n.Centre[2])
		if n.Truncated {
			line += " (truncated)"
		}
		lines = append(lines, line)
	}
	return append(lines, printer.Sprintf("%d networks, %d members, digest %016x", len(networks), members, m.Digest()))
}

func describeStatus(m *conduit.Manager, tps float64, last conduit.Report) []string {
	s := m.Metrics()
	lines := []string{fmt.Sprintf("Session: %s", m.Session())}
	if tps > 0 {
		lines = append(lines, fmt.Sprintf("TPS (avg): %.2f / 20.00", tps))
	} else {
		lines = append(lines, "TPS (avg): collecting samples...")
	}
	lines = append(lines,
		printer.Sprintf("Ticks: %d | Pending: %d | Networks: %d", s.Ticks, m.Pending(), len(m.Networks())),
		printer.Sprintf("Invalidations: %d | Discoveries: %d | Propagations: %d", s.Invalidations, s.Discoveries, s.Propagations),
		printer.Sprintf("Writes: %d | Deliveries: %d | Deferred: %d | Repairs: %d", s.Writes, s.Deliveries, s.Deferred, s.Repairs),
		printer.Sprintf("Ignored: %d out of bounds, %d unrecognized", s.OutOfBounds, s.Unrecognized),
	)
	if last.Tick != 0 {
		lines = append(lines, fmt.Sprintf("Last tick: #%d took %s, processed %d, changed %d",
			last.Tick, last.Duration.Round(time.Microsecond), last.Result.Processed, len(last.Result.Changes)))
	}
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	lines = append(lines, fmt.Sprintf("Memory: %.2f MiB heap used | Goroutines: %d", bytesToMiB(mem.HeapAlloc), runtime.NumGoroutine()))
	return lines
}

func bytesToMiB(v uint64) float64 {
	return float64(v) / (1024 * 1024)
}
