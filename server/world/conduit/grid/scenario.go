package grid

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/df-mc/dragonfly/server/block/cube"
	"github.com/dm-vev/conduit/server/world/conduit"
	"gopkg.in/yaml.v3"
)

// Scenario is a scripted world: an initial layout followed by edits applied
// one step per tick.
type Scenario struct {
	Name   string      `yaml:"name"`
	Blocks []BlockSpec `yaml:"blocks"`
	Steps  []Step      `yaml:"steps"`
	// Expect lists levels that must hold once every step ran.
	Expect []Expectation `yaml:"expect"`
}

// BlockSpec places a single block at Pos, or a box of blocks from Pos to To.
type BlockSpec struct {
	Pos     cube.Pos  `yaml:"pos"`
	To      *cube.Pos `yaml:"to,omitempty"`
	Kind    string    `yaml:"kind"`
	Emitted int       `yaml:"emitted,omitempty"`
}

// Step is the set of edits applied before one tick.
type Step struct {
	Place  []BlockSpec `yaml:"place,omitempty"`
	Remove []cube.Pos  `yaml:"remove,omitempty"`
}

// Expectation is a level a position must hold.
type Expectation struct {
	Pos   cube.Pos `yaml:"pos"`
	Level uint8    `yaml:"level"`
}

var kindNames = map[string]conduit.NodeKind{
	"conduit":  conduit.KindConduit,
	"wire":     conduit.KindConduit,
	"source":   conduit.KindSource,
	"consumer": conduit.KindConsumer,
	"lamp":     conduit.KindConsumer,
}

// ParseKind parses a block kind name as used in scenario files.
func ParseKind(s string) (conduit.NodeKind, error) {
	k, ok := kindNames[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return conduit.KindNone, fmt.Errorf("kind %q: %w", s, conduit.ErrUnrecognizedKind)
	}
	return k, nil
}

// KindName returns the block name used when persisting blocks of kind k.
func KindName(k conduit.NodeKind) string {
	switch k {
	case conduit.KindConduit:
		return "minecraft:redstone_wire"
	case conduit.KindSource:
		return "minecraft:redstone_block"
	case conduit.KindConsumer:
		return "minecraft:redstone_lamp"
	}
	return ""
}

// LoadScenario reads a scenario from a YAML file.
func LoadScenario(path string) (Scenario, error) {
	var s Scenario
	raw, err := os.ReadFile(path)
	if err != nil {
		return s, fmt.Errorf("read scenario: %w", err)
	}
	if err := yaml.Unmarshal(raw, &s); err != nil {
		return s, fmt.Errorf("%s: %w", path, err)
	}
	if err := s.Validate(); err != nil {
		return s, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// Validate checks block kinds and box extents.
func (s Scenario) Validate() error {
	var errs []error
	check := func(where string, b BlockSpec) {
		if _, err := ParseKind(b.Kind); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", where, err))
		}
		if b.To != nil {
			for i := range 3 {
				if b.To[i] < b.Pos[i] {
					errs = append(errs, fmt.Errorf("%s: box %v..%v is inverted", where, b.Pos, *b.To))
					break
				}
			}
		}
	}
	for i, b := range s.Blocks {
		check(fmt.Sprintf("blocks[%d]", i), b)
	}
	for i, st := range s.Steps {
		for j, b := range st.Place {
			check(fmt.Sprintf("steps[%d].place[%d]", i, j), b)
		}
	}
	return errors.Join(errs...)
}

// Build returns a world holding the initial blocks of the scenario.
func (s Scenario) Build() (*World, error) {
	w := New()
	for _, b := range s.Blocks {
		if _, err := place(w, b); err != nil {
			return nil, err
		}
	}
	return w, nil
}

// ApplyStep applies step i to w and reports every edited position to m.
func (s Scenario) ApplyStep(i int, w *World, m *conduit.Manager) error {
	if i < 0 || i >= len(s.Steps) {
		return fmt.Errorf("step %d out of range [0, %d)", i, len(s.Steps))
	}
	st := s.Steps[i]
	for _, pos := range st.Remove {
		if w.Remove(pos) {
			m.InvalidateRemoval(pos)
		}
	}
	for _, b := range st.Place {
		placed, err := place(w, b)
		if err != nil {
			return err
		}
		for _, pos := range placed {
			m.InvalidatePlacement(pos)
		}
	}
	return nil
}

// Check compares the expectations with the levels derived by m, falling
// back to the level held by w for positions that are not network members.
func (s Scenario) Check(m *conduit.Manager, w *World) error {
	var errs []error
	for _, e := range s.Expect {
		level, ok := m.Level(e.Pos)
		if !ok {
			b, found := w.Block(e.Pos)
			if !found {
				errs = append(errs, fmt.Errorf("expected level %d at %v, found no block", e.Level, e.Pos))
				continue
			}
			level = b.Power
		}
		if level != e.Level {
			errs = append(errs, fmt.Errorf("expected level %d at %v, got %d", e.Level, e.Pos, level))
		}
	}
	return errors.Join(errs...)
}

func place(w *World, b BlockSpec) ([]cube.Pos, error) {
	kind, err := ParseKind(b.Kind)
	if err != nil {
		return nil, err
	}
	to := b.Pos
	if b.To != nil {
		to = *b.To
	}
	var placed []cube.Pos
	for x := b.Pos[0]; x <= to[0]; x++ {
		for y := b.Pos[1]; y <= to[1]; y++ {
			for z := b.Pos[2]; z <= to[2]; z++ {
				pos := cube.Pos{x, y, z}
				w.Set(pos, Block{Kind: kind, Emitted: b.Emitted})
				placed = append(placed, pos)
			}
		}
	}
	return placed, nil
}
