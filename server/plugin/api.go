package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime/debug"
	"sync/atomic"
)

// API is handed to a plugin factory. It gives the plugin access to the host
// and to resources that live as long as the plugin is enabled.
type API[H any] struct {
	m      *Manager[H]
	ctx    context.Context
	source string
	dir    string
	// name is set once the factory returned the plugin.
	name atomic.Pointer[string]
}

func (api *API[H]) label() string {
	if name := api.name.Load(); name != nil {
		return *name
	}
	return pluginBaseName(api.source)
}

// Host returns the value the manager was created with.
func (api *API[H]) Host() H {
	return api.m.host
}

// Context returns a context that is cancelled when the plugin is disabled.
func (api *API[H]) Context() context.Context {
	return api.ctx
}

// Logger returns the manager's logger with the plugin's name attached.
func (api *API[H]) Logger() *slog.Logger {
	return api.m.log.With("plugin", api.label())
}

// DataDirectory returns the directory the plugin may keep its files in. It is
// named after the source the plugin was registered under and exists by the
// time the factory runs.
func (api *API[H]) DataDirectory() string {
	return api.dir
}

// EnsureDataSubdir creates the directory name inside the data directory if it
// does not exist yet and returns its path. name must be local: absolute paths
// and paths leaving the data directory are rejected with ErrDataPath.
func (api *API[H]) EnsureDataSubdir(name string) (string, error) {
	if name == "" {
		return api.dir, nil
	}
	if !filepath.IsLocal(name) {
		return "", fmt.Errorf("%w: %q", ErrDataPath, name)
	}
	dir := filepath.Join(api.dir, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create data directory: %w", err)
	}
	return dir, nil
}

// Go runs fn on a new goroutine with the plugin's context. A panic in fn is
// logged and disables the plugin.
func (api *API[H]) Go(fn func(context.Context)) {
	if fn == nil {
		return
	}
	go func() {
		defer func() {
			if r := recover(); r != nil {
				api.m.recovered(api.source, api.label(), r, debug.Stack())
			}
		}()
		fn(api.ctx)
	}()
}
