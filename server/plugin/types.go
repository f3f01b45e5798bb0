package plugin

import "errors"

// Plugin is an extension enabled by the Manager that may hook into the
// server it is handed through its API.
type Plugin interface {
	// Name returns the display name of the plugin. It should be unique for the
	// lifetime of the server process.
	Name() string
	// Close releases all resources held by the plugin. It is called once when
	// the server shuts down or when the plugin is disabled.
	Close() error
}

// VersionedPlugin may be implemented by plugins to expose a version string.
type VersionedPlugin interface {
	Version() string
}

// Factory constructs a plugin. The returned Plugin is enabled immediately and
// must be ready to handle callbacks.
type Factory[H any] func(api *API[H]) (Plugin, error)

// Info describes a plugin currently loaded by the manager.
type Info struct {
	Name    string
	Version string
	// Source is the key the plugin's factory was registered under.
	Source string
}

func (i Info) attrs() []any {
	attrs := []any{"name", i.Name, "source", i.Source}
	if i.Version != "" {
		attrs = append(attrs, "version", i.Version)
	}
	return attrs
}

var (
	// ErrDisabled is returned when the plugin subsystem is disabled.
	ErrDisabled = errors.New("plugin subsystem disabled")
	// ErrAlreadyLoaded is returned when attempting to enable a plugin that has
	// already been loaded.
	ErrAlreadyLoaded = errors.New("plugin already loaded")
	// ErrNameConflict is returned when another loaded plugin already uses the
	// same case-insensitive name.
	ErrNameConflict = errors.New("plugin name already registered")
	// ErrNotFound is returned when attempting to disable or reload a plugin that
	// is not currently loaded, or to enable a source that was never registered.
	ErrNotFound = errors.New("plugin not found")
	// ErrDataPath is returned for paths that would leave the data directory of
	// a plugin.
	ErrDataPath = errors.New("data path outside plugin directory")
)
