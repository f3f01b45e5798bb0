package conduit

import (
	"fmt"
	"log/slog"

	"github.com/df-mc/dragonfly/server/block/cube"
	"github.com/google/uuid"
)

// Config holds the tunable parameters of the network engine. The zero value
// is usable; defaults are applied by withDefaults.
type Config struct {
	// Log is the Logger used for diagnostics. If nil, slog.Default() is used.
	Log *slog.Logger
	// Bounds limits the positions that may be invalidated. Positions outside
	// are dropped with a warning. The zero value selects the overworld build
	// range and the vanilla world border.
	Bounds Bounds
	// MaxInvalidationsPerTick caps how many drained positions are processed
	// in a single call to ProcessPending. The rest is deferred to the next
	// tick. Zero or lower means no limit.
	MaxInvalidationsPerTick int
	// MaxNetworkSize caps the number of members a single discovery run may
	// collect. Defaults to 65536.
	MaxNetworkSize int
	// IndexSizeHint is the initial capacity of the position index.
	IndexSizeHint int
}

func (c Config) withDefaults() Config {
	if c.Log == nil {
		c.Log = slog.Default()
	}
	if c.Bounds == (Bounds{}) {
		c.Bounds = Bounds{Y: cube.Range{-64, 319}, Horizontal: 30_000_000}
	}
	if c.MaxNetworkSize <= 0 {
		c.MaxNetworkSize = 65536
	}
	if c.IndexSizeHint <= 0 {
		c.IndexSizeHint = 1024
	}
	return c
}

// Validate reports configuration that cannot be used.
func (c Config) Validate() error {
	c = c.withDefaults()
	if !c.Bounds.fitsKey() {
		return fmt.Errorf("bounds %v/%d exceed the packable range (|x|,|z| < %d, %d < y < %d)",
			c.Bounds.Y, c.Bounds.Horizontal, maxKeyHorizontal, minKeyVertical, maxKeyVertical)
	}
	return nil
}

// New creates a Manager using the configuration. It panics if the
// configuration does not pass Validate.
func (c Config) New() *Manager {
	if err := c.Validate(); err != nil {
		panic("conduit: " + err.Error())
	}
	c = c.withDefaults()
	session := uuid.New()
	return &Manager{
		conf:      c,
		session:   session,
		log:       c.Log.With("subsystem", "conduit", "session", session.String()),
		tracker:   NewTracker(),
		index:     newPositionIndex(c.IndexSizeHint),
		networks:  make(map[NetworkID]*Network),
		delivered: make(map[cube.Pos]uint8),
		metrics:   NewMetrics(),
	}
}
