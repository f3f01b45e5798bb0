// Package builtin implements the administrative commands of a conduit
// server.
package builtin

import (
	"github.com/df-mc/dragonfly/server/cmd"
)

// Register registers the built-in command set. plugins is usually a
// *plugin.Manager and srv the server stopped by /stop.
func Register(plugins pluginHost, srv stopper) {
	cmd.Register(newHelpCommand())
	cmd.Register(newPluginCommand(plugins))
	cmd.Register(newStopCommand(srv))
}
