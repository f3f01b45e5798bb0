package builtin

import (
	"sort"
	"strings"

	"github.com/df-mc/dragonfly/server/cmd"
	"github.com/df-mc/dragonfly/server/world"
)

type helpCommand struct {
	Command cmd.Optional[string] `cmd:"command"`
}

func newHelpCommand() cmd.Command {
	return cmd.New("help", "Shows available commands and their usage.", []string{"?"}, helpCommand{})
}

func (h helpCommand) Run(src cmd.Source, o *cmd.Output, _ *world.Tx) {
	if commandName, ok := h.Command.Load(); ok {
		name := strings.ToLower(strings.TrimPrefix(commandName, "/"))
		command, found := cmd.ByAlias(name)
		if !found || len(command.Runnables(src)) == 0 {
			o.Errorf("Unknown command: %v.", name)
			return
		}
		if desc := command.Description(); desc != "" {
			o.Print(desc)
		}
		for _, line := range strings.Split(command.Usage(), "\n") {
			o.Print(line)
		}
		return
	}

	lines := helpLines(cmd.Commands(), src)
	if len(lines) == 0 {
		o.Print("No commands available.")
		return
	}
	o.Printf("Available commands (%d):", len(lines))
	for _, line := range lines {
		o.Print(line)
	}
}

// helpLines returns a sorted line for every command in commands that src may
// run. Aliases are skipped.
func helpLines(commands map[string]cmd.Command, src cmd.Source) []string {
	names := make([]string, 0, len(commands))
	for alias, command := range commands {
		if command.Name() != alias || len(command.Runnables(src)) == 0 {
			continue
		}
		names = append(names, alias)
	}
	sort.Strings(names)

	lines := make([]string, 0, len(names))
	for _, name := range names {
		line := "/" + name
		if desc := commands[name].Description(); desc != "" {
			line += " - " + desc
		}
		lines = append(lines, line)
	}
	return lines
}
