package server

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/df-mc/dragonfly/server/block/cube"
	"github.com/dm-vev/conduit/server/plugin"
	"github.com/dm-vev/conduit/server/world/conduit"
	"github.com/dm-vev/conduit/server/world/conduit/journal"
	"github.com/dm-vev/conduit/server/world/conduit/statestore"
	"github.com/pelletier/go-toml"
	"golang.org/x/mod/semver"
)

// ConfigVersion is the version written to new configuration files. Files
// with a different major version are rejected.
const ConfigVersion = "v1.0.0"

// ErrUnsupportedVersion is returned when a configuration file was written for
// an incompatible version.
var ErrUnsupportedVersion = errors.New("unsupported config version")

// Config contains options for running the conduit engine inside a Dragonfly
// server.
type Config struct {
	// Log is the Logger to use for logging information. If nil, Log is set to
	// slog.Default().
	Log *slog.Logger
	// Engine configures the conduit engine. Its Log field is overwritten by
	// Log.
	Engine conduit.Config
	// TickInterval is the interval at which pending invalidations are
	// processed. If zero, it is set to 50ms, which matches the world tick.
	TickInterval time.Duration
	// SlowTick is the duration after which a single tick is reported as slow.
	// If zero, it is set to TickInterval.
	SlowTick time.Duration
	// Store persists the configuration of power sources, such as their
	// output level. If nil, every source emits DefaultEmitted.
	Store *statestore.Store
	// Journal, if non-nil, receives a line for every tick that did any work.
	Journal *journal.Writer
	// DefaultEmitted is the output level of sources without a record in
	// Store. If zero, conduit.MaxPower is used. Negative values make such
	// sources emit nothing.
	DefaultEmitted int
	// Plugins configures the plugin manager the engine runs under.
	Plugins plugin.Config
}

// withDefaults returns a copy of conf with unset fields filled out.
func (conf Config) withDefaults() Config {
	if conf.Log == nil {
		conf.Log = slog.Default()
	}
	conf.Engine.Log = conf.Log
	if conf.TickInterval <= 0 {
		conf.TickInterval = time.Second / 20
	}
	if conf.SlowTick <= 0 {
		conf.SlowTick = conf.TickInterval
	}
	if conf.DefaultEmitted == 0 {
		conf.DefaultEmitted = conduit.MaxPower
	} else if conf.DefaultEmitted < 0 {
		conf.DefaultEmitted = 0
	}
	return conf
}

// Close closes the Store and Journal of conf, if set.
func (conf Config) Close() error {
	var errs []error
	if conf.Journal != nil {
		errs = append(errs, conf.Journal.Close())
	}
	if conf.Store != nil {
		errs = append(errs, conf.Store.Close())
	}
	return errors.Join(errs...)
}

// UserConfig is the user configuration of the conduit engine. UserConfig may
// be serialised and can be converted to a Config by calling
// UserConfig.Config().
type UserConfig struct {
	// Version is the version of the configuration format.
	Version string
	Engine  struct {
		// MaxInvalidationsPerTick limits how many positions are processed in a
		// single tick. The rest is carried over to the next tick. Set to 0 to
		// process everything.
		MaxInvalidationsPerTick int
		// MaxNetworkSize limits the number of members of a single network.
		MaxNetworkSize int
		// MinY and MaxY are the vertical bounds of positions the engine
		// accepts.
		MinY, MaxY int
		// Horizontal is the absolute horizontal coordinate limit.
		Horizontal int
	}
	Tick struct {
		// IntervalMillis is the tick interval in milliseconds.
		IntervalMillis int
		// SlowTickMillis is the duration in milliseconds after which a tick is
		// logged as slow.
		SlowTickMillis int
	}
	Store struct {
		// Enabled controls if source configuration is persisted.
		Enabled bool
		// Folder is the folder the LevelDB database is stored in.
		Folder string
		// DefaultEmitted is the output level of sources without a record.
		DefaultEmitted int
	}
	Journal struct {
		// Enabled controls if ticks are journaled.
		Enabled bool
		// Folder is the folder journal files are written to.
		Folder string
		// Prefix is the name prefix of journal files.
		Prefix string
	}
	Plugins struct {
		// Folder is the folder plugin data is stored under.
		Folder string
		// Skip lists plugin sources that should not be enabled.
		Skip []string
	}
}

// Config converts a UserConfig to a Config. An error is returned if the
// version is unsupported, the engine settings are invalid or opening the
// state store failed.
func (uc UserConfig) Config(log *slog.Logger) (Config, error) {
	if log == nil {
		log = slog.Default()
	}
	if err := checkVersion(uc.Version); err != nil {
		return Config{}, err
	}
	conf := Config{
		Log:            log,
		TickInterval:   time.Duration(uc.Tick.IntervalMillis) * time.Millisecond,
		SlowTick:       time.Duration(uc.Tick.SlowTickMillis) * time.Millisecond,
		DefaultEmitted: uc.Store.DefaultEmitted,
		Engine: conduit.Config{
			Log:                     log,
			MaxInvalidationsPerTick: uc.Engine.MaxInvalidationsPerTick,
			MaxNetworkSize:          uc.Engine.MaxNetworkSize,
			Bounds: conduit.Bounds{
				Y:          cube.Range{uc.Engine.MinY, uc.Engine.MaxY},
				Horizontal: uc.Engine.Horizontal,
			},
		},
		Plugins: plugin.Config{
			Enabled:   true,
			Directory: uc.Plugins.Folder,
			Skip:      uc.Plugins.Skip,
		},
	}
	if uc.Store.DefaultEmitted == 0 {
		// An explicit zero in the file means sources without a record are off.
		conf.DefaultEmitted = -1
	}
	if err := conf.Engine.Validate(); err != nil {
		return conf, fmt.Errorf("invalid engine config: %w", err)
	}
	if uc.Store.Enabled {
		s, err := statestore.Open(uc.Store.Folder, log)
		if err != nil {
			return conf, fmt.Errorf("create state store: %w", err)
		}
		conf.Store = s
	}
	if uc.Journal.Enabled {
		conf.Journal = journal.NewWriter(uc.Journal.Folder, uc.Journal.Prefix, log)
	}
	return conf, nil
}

// checkVersion returns an error if v is not a valid semantic version with the
// same major version as ConfigVersion.
func checkVersion(v string) error {
	v = strings.TrimSpace(v)
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	if !semver.IsValid(v) {
		return fmt.Errorf("config version %q: %w", v, ErrUnsupportedVersion)
	}
	if semver.Major(v) != semver.Major(ConfigVersion) {
		return fmt.Errorf("config version %s, expected %s.x: %w", v, semver.Major(ConfigVersion), ErrUnsupportedVersion)
	}
	return nil
}

// DefaultConfig returns a configuration with the default values filled out.
func DefaultConfig() UserConfig {
	c := UserConfig{}
	c.Version = ConfigVersion
	c.Engine.MaxInvalidationsPerTick = 4096
	c.Engine.MaxNetworkSize = 65536
	c.Engine.MinY, c.Engine.MaxY = -64, 319
	c.Engine.Horizontal = 30_000_000
	c.Tick.IntervalMillis = 50
	c.Tick.SlowTickMillis = 50
	c.Store.Enabled = true
	c.Store.Folder = "conduit/state"
	c.Store.DefaultEmitted = conduit.MaxPower
	c.Journal.Enabled = false
	c.Journal.Folder = "conduit/journal"
	c.Journal.Prefix = "ticks"
	c.Plugins.Folder = "plugins"
	return c
}

// LoadConfig reads the user configuration stored in the file at path. If the
// file does not exist yet, it is created with the default configuration.
// Settings missing from the file keep their default values.
func LoadConfig(path string) (UserConfig, error) {
	c := DefaultConfig()
	contents, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return c, fmt.Errorf("read config: %w", err)
		}
		data, err := toml.Marshal(c)
		if err != nil {
			return c, fmt.Errorf("encode default config: %w", err)
		}
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0777); err != nil {
				return c, fmt.Errorf("create config dir: %w", err)
			}
		}
		if err := os.WriteFile(path, data, 0644); err != nil {
			return c, fmt.Errorf("write default config: %w", err)
		}
		return c, nil
	}
	if err := toml.Unmarshal(contents, &c); err != nil {
		return c, fmt.Errorf("decode config: %w", err)
	}
	return c, nil
}
