package builtin

import "github.com/dm-vev/conduit/server/plugin"

// pluginHost is the part of a plugin.Manager the /plugin command drives.
type pluginHost interface {
	Enabled() bool
	Infos() []plugin.Info
	Enable(source string) (plugin.Info, error)
	Disable(name string) (plugin.Info, error)
	DisableAll() ([]plugin.Info, error)
	Reload(name string) (plugin.Info, error)
}

// stopper is closed by /stop. *server.Server implements it.
type stopper interface {
	Close() error
}
