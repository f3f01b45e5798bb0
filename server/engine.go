package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/df-mc/dragonfly/server/block/cube"
	"github.com/df-mc/dragonfly/server/world"
	"github.com/dm-vev/conduit/server/plugin"
	"github.com/dm-vev/conduit/server/world/conduit"
	"github.com/dm-vev/conduit/server/world/conduit/statestore"
)

// PluginSource is the key the engine plugin is registered under.
const PluginSource = "builtin/conduit"

const pluginName = "conduit"

var (
	// ErrNoStore is returned when source levels are configured on an Engine
	// without a state store.
	ErrNoStore = errors.New("no state store configured")
	// ErrNotSource is returned when configuring a block that is not a source.
	ErrNotSource = errors.New("not a power source")
	// ErrLevelOutOfRange is returned for levels outside 0..15.
	ErrLevelOutOfRange = errors.New("level out of range")
)

// Host is the part of a Dragonfly server the engine needs. *server.Server
// implements it.
type Host interface {
	World() *world.World
}

// Engine runs the conduit engine on the overworld of a server. It is enabled
// as a plugin. The Store and Journal of its Config stay open when the Engine
// is closed, so that the plugin can be reloaded.
type Engine struct {
	conf Config
	log  *slog.Logger
	m    *conduit.Manager
	t    *ticker

	started   bool
	done      chan struct{}
	closeOnce sync.Once
}

// Locator returns the Engine that is currently enabled, if any.
type Locator func() (*Engine, bool)

// Lookup returns a Locator finding the Engine enabled by plugins. The Locator
// keeps returning the right Engine after the plugin is reloaded.
func Lookup(plugins *plugin.Manager[Host]) Locator {
	return func() (*Engine, bool) {
		p, ok := plugins.Plugin(pluginName)
		if !ok {
			return nil, false
		}
		e, ok := p.(*Engine)
		return e, ok
	}
}

// NewPlugin returns a plugin factory creating an Engine with conf.
func NewPlugin(conf Config) plugin.Factory[Host] {
	return func(api *plugin.API[Host]) (plugin.Plugin, error) {
		w := api.Host().World()
		if w == nil {
			return nil, errors.New("host has no overworld")
		}
		conf.Log = api.Logger()
		e, err := NewEngine(conf)
		if err != nil {
			return nil, err
		}
		e.started = true
		api.Go(func(ctx context.Context) { e.t.run(ctx, w, e.done) })
		return e, nil
	}
}

// NewEngine creates an Engine without starting its ticker. Every position
// recorded in the Store of conf is queued as placed, so the first tick
// rebuilds the networks that existed before a restart and recomputes their
// levels. The Manager may be driven by hand through a conduit.Procedure;
// NewPlugin should be used to run the Engine on a server.
func NewEngine(conf Config) (*Engine, error) {
	conf = conf.withDefaults()
	if err := conf.Engine.Validate(); err != nil {
		return nil, fmt.Errorf("invalid engine config: %w", err)
	}
	m := conf.Engine.New()
	e := &Engine{conf: conf, log: m.Logger(), m: m, done: make(chan struct{})}

	var obs conduit.Observer
	if conf.Journal != nil {
		obs = conf.Journal
	}
	e.t = &ticker{
		interval: conf.TickInterval,
		slow:     conf.SlowTick,
		log:      e.log,
		proc:     conduit.Procedure{Manager: m, Observer: obs},
		host: func(tx *world.Tx) conduit.World {
			return e.world(tx)
		},
	}
	if err := e.restore(); err != nil {
		m.Shutdown()
		return nil, err
	}
	return e, nil
}

// restore queues every position recorded in the store for discovery.
func (e *Engine) restore() error {
	if e.conf.Store == nil {
		return nil
	}
	count := 0
	err := e.conf.Store.Range(func(pos cube.Pos, _ statestore.Record) bool {
		e.m.InvalidatePlacement(pos)
		count++
		return true
	})
	if err != nil {
		return fmt.Errorf("restore networks: %w", err)
	}
	if count > 0 {
		e.log.Info("Restoring conduit networks.", "positions", count)
	}
	return nil
}

// world returns the conduit.World over a transaction.
func (e *Engine) world(tx blockAccess) txWorld {
	return txWorld{tx: tx, store: e.conf.Store, defaultEmitted: e.conf.DefaultEmitted}
}

// Name ...
func (e *Engine) Name() string {
	return pluginName
}

// Version ...
func (e *Engine) Version() string {
	return ConfigVersion
}

// Manager returns the network manager of the engine.
func (e *Engine) Manager() *conduit.Manager {
	return e.m
}

// Handler returns a player handler that reports block edits of the player to
// the engine.
func (e *Engine) Handler() *Handler {
	return NewHandler(e.locate)
}

func (e *Engine) locate() (*Engine, bool) {
	return e, true
}

// TPS returns the average tick rate of the engine.
func (e *Engine) TPS() float64 {
	return e.t.TPS()
}

// SetEmitted configures the output level of the source at pos and schedules
// its network for recomputation. It fails if no store is configured, if the
// block at pos is not a source or if level is out of range.
func (e *Engine) SetEmitted(tx *world.Tx, pos cube.Pos, level int) error {
	return e.setEmitted(tx, pos, level)
}

func (e *Engine) setEmitted(tx blockAccess, pos cube.Pos, level int) error {
	if e.conf.Store == nil {
		return ErrNoStore
	}
	rec, ok := recordFor(tx.Block(pos))
	if !ok || rec.NodeKind() != conduit.KindSource {
		return fmt.Errorf("block at %v: %w", pos, ErrNotSource)
	}
	if level < 0 || level > conduit.MaxPower {
		return fmt.Errorf("level %d: %w", level, ErrLevelOutOfRange)
	}
	rec.Emitted, rec.Configured = int32(level), true
	if err := e.conf.Store.Put(pos, rec); err != nil {
		return fmt.Errorf("set emitted level: %w", err)
	}
	e.m.InvalidatePlacement(pos)
	return nil
}

// remember records the conduit or source b placed at pos, so that its
// network is rebuilt after a restart. An existing record written for the same
// block is kept along with its configured level.
func (e *Engine) remember(pos cube.Pos, b world.Block) {
	rec, ok := recordFor(b)
	if !ok || e.conf.Store == nil {
		return
	}
	old, found, err := e.conf.Store.Get(pos)
	if err != nil {
		e.log.Error("Could not read block record.", "pos", pos, "err", err)
	} else if found && old.Name == rec.Name {
		return
	}
	if err := e.conf.Store.Put(pos, rec); err != nil {
		e.log.Error("Could not record block.", "pos", pos, "err", err)
	}
}

// forget drops the record of pos. Errors are logged.
func (e *Engine) forget(pos cube.Pos) {
	if e.conf.Store == nil {
		return
	}
	if err := e.conf.Store.Delete(pos); err != nil {
		e.log.Error("Could not delete block record.", "pos", pos, "err", err)
	}
}

// Close stops the ticker and shuts the manager down. The plugin context must
// be cancelled before Close is called, which the plugin manager does.
func (e *Engine) Close() error {
	e.closeOnce.Do(func() {
		if e.started {
			<-e.done
		}
		e.m.Shutdown()
	})
	return nil
}
