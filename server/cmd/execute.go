// Package cmd runs textual command lines against the Dragonfly command
// registry, for sources that do not go through a player session such as the
// server console.
package cmd

import (
	"strings"

	dfcmd "github.com/df-mc/dragonfly/server/cmd"
	"github.com/df-mc/dragonfly/server/world"
)

// ExecuteLine executes a command line on behalf of the Source passed. A
// leading slash is optional. If the command cannot be found, an error is sent
// back to the Source. The optional before function may be supplied to
// intercept execution; returning false from it stops execution. ExecuteLine
// reports whether a command was run.
func ExecuteLine(source dfcmd.Source, commandLine string, tx *world.Tx, before func(dfcmd.Command, []string) bool) bool {
	if source == nil {
		panic("cmd.ExecuteLine: source must not be nil")
	}
	name, args, ok := Split(commandLine)
	if !ok {
		return false
	}
	command, ok := dfcmd.ByAlias(name)
	if !ok {
		output := &dfcmd.Output{}
		output.Errorf("Unknown command: %v. Use /help for a list of commands.", name)
		source.SendCommandOutput(output)
		return false
	}
	if before != nil && !before(command, args) {
		return false
	}
	command.Execute(strings.Join(args, " "), source, tx)
	return true
}

// Split splits a command line into the lower-cased command name and its
// arguments. It returns false for blank lines.
func Split(commandLine string) (name string, args []string, ok bool) {
	fields := strings.Fields(commandLine)
	if len(fields) == 0 {
		return "", nil, false
	}
	name = strings.ToLower(strings.TrimPrefix(fields[0], "/"))
	if name == "" {
		return "", nil, false
	}
	return name, fields[1:], true
}
