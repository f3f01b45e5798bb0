package plugin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"runtime/debug"
	"slices"
	"strings"
	"sync"
)

// loaded is a plugin enabled by a Manager.
type loaded struct {
	info   Info
	plugin Plugin
	cancel context.CancelFunc
}

// Manager enables statically linked plugins and manages their lifecycle. H is
// the host value handed to plugins through their API.
type Manager[H any] struct {
	host H
	cfg  Config
	log  *slog.Logger

	once      sync.Once
	mu        sync.RWMutex
	order     []string
	factories map[string]Factory[H]
	plugins   []loaded
}

// NewManager constructs a Manager using the provided host and configuration
// snapshot. A nil logger is replaced with slog.Default().
func NewManager[H any](host H, log *slog.Logger, cfg Config) *Manager[H] {
	if log == nil {
		log = slog.Default()
	}
	cfg.Skip = slices.Clone(cfg.Skip)
	return &Manager[H]{host: host, cfg: cfg, log: log, factories: map[string]Factory[H]{}}
}

// Register adds a factory under source. Registering the same source twice
// replaces the earlier factory but keeps its position in the load order.
func (m *Manager[H]) Register(source string, f Factory[H]) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.factories[source]; !ok {
		m.order = append(m.order, source)
	}
	m.factories[source] = f
}

// Enabled reports whether the plugin subsystem should run.
func (m *Manager[H]) Enabled() bool {
	return m.cfg.Enabled
}

// DataRoot returns the directory the data directories of plugins are created
// in.
func (m *Manager[H]) DataRoot() string {
	base, data := m.cfg.Directory, m.cfg.DataDirectory
	if base == "" {
		base = "plugins"
	}
	if data == "" {
		data = "data"
	}
	if filepath.IsAbs(data) {
		return filepath.Clean(data)
	}
	return filepath.Join(base, data)
}

// LoadConfigured enables every registered plugin that is not skipped, in
// registration order. It only has an effect the first time it is called.
func (m *Manager[H]) LoadConfigured() {
	m.once.Do(func() {
		if !m.cfg.Enabled {
			m.log.Debug("Plugin system disabled.")
			return
		}
		m.mu.RLock()
		sources := slices.DeleteFunc(slices.Clone(m.order), func(s string) bool {
			return slices.Contains(m.cfg.Skip, s)
		})
		m.mu.RUnlock()

		for _, source := range sources {
			if _, err := m.Enable(source); err != nil {
				m.log.Error("Enable plugin.", "error", err, "source", source)
			}
		}
	})
}

// Infos returns metadata for all loaded plugins in load order.
func (m *Manager[H]) Infos() []Info {
	m.mu.RLock()
	defer m.mu.RUnlock()
	infos := make([]Info, len(m.plugins))
	for i, p := range m.plugins {
		infos[i] = p.info
	}
	return infos
}

// Plugin returns a loaded plugin by its case-insensitive name.
func (m *Manager[H]) Plugin(name string) (Plugin, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if i := m.index(byName(name)); i >= 0 {
		return m.plugins[i].plugin, true
	}
	return nil, false
}

// Enable constructs and enables the plugin registered under source.
func (m *Manager[H]) Enable(source string) (Info, error) {
	if !m.Enabled() {
		return Info{}, ErrDisabled
	}
	m.mu.RLock()
	factory, registered := m.factories[source]
	if i := m.index(bySource(source)); i >= 0 {
		info := m.plugins[i].info
		m.mu.RUnlock()
		return info, ErrAlreadyLoaded
	}
	m.mu.RUnlock()
	if !registered {
		return Info{}, fmt.Errorf("%w: %s", ErrNotFound, source)
	}

	dir := filepath.Join(m.DataRoot(), dirName(source))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Info{}, fmt.Errorf("create plugin data directory: %w", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	api := &API[H]{m: m, ctx: ctx, source: source, dir: dir}
	p, err := m.construct(factory, api)
	if err != nil {
		cancel()
		return Info{}, fmt.Errorf("initialise plugin %s: %w", source, err)
	}

	l := loaded{info: Info{Name: p.Name(), Source: source}, plugin: p, cancel: cancel}
	if l.info.Name == "" {
		l.info.Name = pluginBaseName(source)
	}
	if v, ok := p.(VersionedPlugin); ok {
		l.info.Version = v.Version()
	}
	api.name.Store(&l.info.Name)

	m.mu.Lock()
	if m.index(byName(l.info.Name)) >= 0 {
		m.mu.Unlock()
		if err := m.stop(l); err != nil {
			m.log.Error("Close conflicting plugin instance.", "error", err, "name", l.info.Name, "source", source)
		}
		return Info{}, fmt.Errorf("%w: %s", ErrNameConflict, l.info.Name)
	}
	m.plugins = append(m.plugins, l)
	m.mu.Unlock()

	m.log.Info("Plugin enabled.", l.info.attrs()...)
	return l.info, nil
}

// construct runs factory, turning a panic or a nil plugin into an error.
func (m *Manager[H]) construct(factory Factory[H], api *API[H]) (p Plugin, err error) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Error("Plugin panic.", "plugin", api.label(), "panic", r, "stack", string(debug.Stack()))
			p, err = nil, fmt.Errorf("factory panicked: %v", r)
		}
	}()
	if p, err = factory(api); err == nil && p == nil {
		err = errors.New("factory returned nil")
	}
	return p, err
}

// Disable disables a plugin by its case-insensitive name and removes it from
// the manager.
func (m *Manager[H]) Disable(name string) (Info, error) {
	if !m.Enabled() {
		return Info{}, ErrDisabled
	}
	return m.disable(byName(name))
}

// Reload disables and then re-enables a plugin by name.
func (m *Manager[H]) Reload(name string) (Info, error) {
	info, err := m.Disable(name)
	if err != nil {
		return Info{}, err
	}
	if info, err = m.Enable(info.Source); err != nil {
		return Info{}, err
	}
	m.log.Info("Plugin reloaded.", info.attrs()...)
	return info, nil
}

// DisableAll disables all loaded plugins in reverse load order and returns
// them in the order they were disabled. It stops at the first plugin that
// fails to close.
func (m *Manager[H]) DisableAll() ([]Info, error) {
	if !m.Enabled() {
		return nil, ErrDisabled
	}
	sources := make([]string, 0)
	for _, info := range m.Infos() {
		sources = append(sources, info.Source)
	}
	infos := make([]Info, 0, len(sources))
	for _, source := range slices.Backward(sources) {
		info, err := m.disable(bySource(source))
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return infos, err
		}
		infos = append(infos, info)
	}
	return infos, nil
}

// Shutdown disables all plugins in reverse load order. Close errors are
// logged and do not stop the remaining plugins from being closed.
func (m *Manager[H]) Shutdown() {
	m.mu.Lock()
	plugins := m.plugins
	m.plugins = nil
	m.mu.Unlock()

	for _, l := range slices.Backward(plugins) {
		if err := m.stop(l); err != nil {
			m.log.Error("Disable plugin.", "error", err, "name", l.info.Name, "source", l.info.Source)
			continue
		}
		m.log.Info("Plugin disabled.", "name", l.info.Name, "source", l.info.Source)
	}
}

// disable removes the first plugin matching f and stops it.
func (m *Manager[H]) disable(f func(loaded) bool) (Info, error) {
	m.mu.Lock()
	i := m.index(f)
	if i < 0 {
		m.mu.Unlock()
		return Info{}, ErrNotFound
	}
	l := m.plugins[i]
	m.plugins = slices.Delete(m.plugins, i, i+1)
	m.mu.Unlock()

	if err := m.stop(l); err != nil {
		return l.info, fmt.Errorf("close plugin: %w", err)
	}
	m.log.Info("Plugin disabled.", "name", l.info.Name, "source", l.info.Source)
	return l.info, nil
}

func (m *Manager[H]) stop(l loaded) error {
	l.cancel()
	return l.plugin.Close()
}

// index returns the index of the first plugin matching f or -1. m.mu must be
// held.
func (m *Manager[H]) index(f func(loaded) bool) int {
	return slices.IndexFunc(m.plugins, f)
}

// recovered handles a panic in a goroutine started through the API of the
// plugin registered under source. The plugin is disabled asynchronously, as
// Close may wait for the goroutine that panicked.
func (m *Manager[H]) recovered(source, name string, reason any, stack []byte) {
	m.log.Error("Plugin panic.", "plugin", name, "panic", reason, "stack", string(stack))
	go func() {
		info, err := m.disable(bySource(source))
		switch {
		case errors.Is(err, ErrNotFound):
		case err != nil:
			m.log.Error("Disable panic plugin.", "plugin", name, "error", err)
		default:
			m.log.Warn("Plugin disabled after panic.", info.attrs()...)
		}
	}()
}

func byName(name string) func(loaded) bool {
	return func(l loaded) bool { return strings.EqualFold(l.info.Name, name) }
}

func bySource(source string) func(loaded) bool {
	return func(l loaded) bool { return l.info.Source == source }
}

// pluginBaseName derives a default plugin name from the last element of a
// source key such as "builtin/conduit".
func pluginBaseName(source string) string {
	base := path.Base(strings.TrimRight(strings.TrimSpace(source), "/"))
	base = strings.TrimSpace(strings.TrimSuffix(base, path.Ext(base)))
	if base == "" || base == "." || base == "/" {
		return "plugin"
	}
	return base
}

var unsafeDirRunes = regexp.MustCompile(`[^a-z0-9._-]+`)

// dirName returns the name of the data directory of the plugin registered
// under source.
func dirName(source string) string {
	name := unsafeDirRunes.ReplaceAllString(strings.ToLower(pluginBaseName(source)), "-")
	if name = strings.Trim(name, "-_."); name == "" {
		return "plugin"
	}
	return name
}
