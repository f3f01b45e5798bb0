// Command server runs a Dragonfly server with the conduit engine enabled.
// The Dragonfly settings are read from config.toml and the engine settings
// from conduit.toml. Both files are created with defaults if missing.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"time"

	dfserver "github.com/df-mc/dragonfly/server"
	"github.com/df-mc/dragonfly/server/cmd"
	"github.com/df-mc/dragonfly/server/player/chat"
	"github.com/dm-vev/conduit/examples/plugins/reporter"
	"github.com/dm-vev/conduit/server"
	"github.com/dm-vev/conduit/server/block"
	"github.com/dm-vev/conduit/server/cmd/builtin"
	"github.com/dm-vev/conduit/server/console"
	"github.com/dm-vev/conduit/server/plugin"
	"github.com/pelletier/go-toml"
)

func main() {
	log := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	if err := run(log); err != nil {
		log.Error("Server stopped with an error.", "err", err)
		os.Exit(1)
	}
}

func run(log *slog.Logger) error {
	chat.Global.Subscribe(chat.StdoutSubscriber{})
	if err := block.Register(); err != nil {
		log.Warn("Some conduit blocks could not be registered.", "err", err)
	}

	dfConf, err := readConfig(log)
	if err != nil {
		return err
	}
	uc, err := server.LoadConfig("conduit.toml")
	if err != nil {
		return err
	}
	conf, err := uc.Config(log)
	if err != nil {
		return err
	}
	defer func() {
		if err := conf.Close(); err != nil {
			log.Error("Could not close engine storage.", "err", err)
		}
	}()

	srv := dfConf.New()
	srv.CloseOnProgramEnd()

	plugins := plugin.NewManager[server.Host](srv, log, conf.Plugins)
	find := server.Lookup(plugins)
	plugins.Register(server.PluginSource, server.NewPlugin(conf))
	plugins.Register(reporter.Source, reporter.Factory(find, time.Minute))
	plugins.LoadConfigured()
	defer plugins.Shutdown()

	cmd.Register(server.Command(find))
	builtin.Register(plugins, srv)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go console.New(srv.World(), log).Run(ctx)

	srv.Listen()
	h := server.NewHandler(find)
	for p := range srv.Accept() {
		p.Handle(h)
	}
	return nil
}

// readConfig reads the Dragonfly configuration from config.toml, creating
// the file with default values if it does not exist yet.
func readConfig(log *slog.Logger) (dfserver.Config, error) {
	c := dfserver.DefaultConfig()
	data, err := os.ReadFile("config.toml")
	if errors.Is(err, fs.ErrNotExist) {
		if data, err = toml.Marshal(c); err != nil {
			return dfserver.Config{}, fmt.Errorf("encode default config: %w", err)
		}
		if err := os.WriteFile("config.toml", data, 0644); err != nil {
			return dfserver.Config{}, fmt.Errorf("create default config: %w", err)
		}
		return c.Config(log)
	}
	if err != nil {
		return dfserver.Config{}, fmt.Errorf("read config: %w", err)
	}
	if err := toml.Unmarshal(data, &c); err != nil {
		return dfserver.Config{}, fmt.Errorf("decode config: %w", err)
	}
	return c.Config(log)
}
