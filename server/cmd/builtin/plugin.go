package builtin

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/df-mc/dragonfly/server/cmd"
	"github.com/df-mc/dragonfly/server/world"
	"github.com/dm-vev/conduit/server/plugin"
)

var errPluginsDisabled = errors.New("plugin subsystem disabled")

type pluginListCommand struct {
	List    cmd.SubCommand `cmd:"list"`
	plugins pluginHost
}

type pluginEnableCommand struct {
	Enable  cmd.SubCommand `cmd:"enable"`
	Source  string         `cmd:"source"`
	plugins pluginHost
}

type pluginDisableCommand struct {
	Disable cmd.SubCommand `cmd:"disable"`
	Name    string         `cmd:"name"`
	plugins pluginHost
}

type pluginDisableAllCommand struct {
	Disable cmd.SubCommand `cmd:"disable"`
	All     cmd.SubCommand `cmd:"all"`
	plugins pluginHost
}

type pluginReloadCommand struct {
	Reload  cmd.SubCommand `cmd:"reload"`
	Name    string         `cmd:"name"`
	plugins pluginHost
}

func newPluginCommand(plugins pluginHost) cmd.Command {
	return cmd.New(
		"plugin",
		"Manages the plugins of the server.",
		nil,
		pluginListCommand{plugins: plugins},
		pluginEnableCommand{plugins: plugins},
		pluginDisableAllCommand{plugins: plugins},
		pluginDisableCommand{plugins: plugins},
		pluginReloadCommand{plugins: plugins},
	)
}

func (p pluginListCommand) Run(_ cmd.Source, o *cmd.Output, _ *world.Tx) {
	for _, line := range listPlugins(p.plugins) {
		o.Print(line)
	}
}

func (pluginListCommand) Allow(src cmd.Source) bool {
	return !isPlayer(src)
}

func (p pluginEnableCommand) Run(_ cmd.Source, o *cmd.Output, _ *world.Tx) {
	msg, err := enablePlugin(p.plugins, p.Source)
	if err != nil {
		o.Error(err)
		return
	}
	o.Print(msg)
}

func (pluginEnableCommand) Allow(src cmd.Source) bool {
	return !isPlayer(src)
}

func (p pluginDisableCommand) Run(_ cmd.Source, o *cmd.Output, _ *world.Tx) {
	msg, err := disablePlugin(p.plugins, p.Name)
	if err != nil {
		o.Error(err)
		return
	}
	o.Print(msg)
}

func (pluginDisableCommand) Allow(src cmd.Source) bool {
	return !isPlayer(src)
}

func (p pluginDisableAllCommand) Run(_ cmd.Source, o *cmd.Output, _ *world.Tx) {
	lines, err := disableAllPlugins(p.plugins)
	for _, line := range lines {
		o.Print(line)
	}
	if err != nil {
		o.Error(err)
	}
}

func (pluginDisableAllCommand) Allow(src cmd.Source) bool {
	return !isPlayer(src)
}

func (p pluginReloadCommand) Run(_ cmd.Source, o *cmd.Output, _ *world.Tx) {
	msg, err := reloadPlugin(p.plugins, p.Name)
	if err != nil {
		o.Error(err)
		return
	}
	o.Print(msg)
}

func (pluginReloadCommand) Allow(src cmd.Source) bool {
	return !isPlayer(src)
}

// listPlugins returns a line for every loaded plugin, sorted by name.
func listPlugins(plugins pluginHost) []string {
	if !plugins.Enabled() {
		return []string{"Plugin subsystem disabled."}
	}
	infos := plugins.Infos()
	if len(infos) == 0 {
		return []string{"No plugins loaded."}
	}
	sort.SliceStable(infos, func(i, j int) bool {
		return strings.ToLower(infos[i].Name) < strings.ToLower(infos[j].Name)
	})
	lines := make([]string, 0, len(infos))
	for _, info := range infos {
		lines = append(lines, fmt.Sprintf("%s (%s)", describePlugin(info), info.Source))
	}
	return lines
}

func enablePlugin(plugins pluginHost, source string) (string, error) {
	if !plugins.Enabled() {
		return "", errPluginsDisabled
	}
	source = strings.TrimSpace(source)
	if source == "" {
		return "", errors.New("plugin source is required")
	}
	info, err := plugins.Enable(source)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Enabled %s from %s.", describePlugin(info), info.Source), nil
}

func disablePlugin(plugins pluginHost, name string) (string, error) {
	if !plugins.Enabled() {
		return "", errPluginsDisabled
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.New("plugin name is required")
	}
	info, err := plugins.Disable(name)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Disabled %s.", info.Name), nil
}

// disableAllPlugins disables every loaded plugin, returning a line for each
// plugin that was disabled before an error occurred.
func disableAllPlugins(plugins pluginHost) ([]string, error) {
	if !plugins.Enabled() {
		return nil, errPluginsDisabled
	}
	infos, err := plugins.DisableAll()
	lines := make([]string, 0, len(infos)+1)
	for _, info := range infos {
		lines = append(lines, fmt.Sprintf("Disabled %s.", info.Name))
	}
	if err == nil && len(infos) == 0 {
		lines = append(lines, "No plugins loaded.")
	}
	return lines, err
}

func reloadPlugin(plugins pluginHost, name string) (string, error) {
	if !plugins.Enabled() {
		return "", errPluginsDisabled
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.New("plugin name is required")
	}
	info, err := plugins.Reload(name)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Reloaded %s.", describePlugin(info)), nil
}

// describePlugin formats the name and, if set, version of a plugin.
func describePlugin(info plugin.Info) string {
	if info.Version != "" {
		return fmt.Sprintf("%s v%s", info.Name, strings.TrimPrefix(info.Version, "v"))
	}
	return info.Name
}
