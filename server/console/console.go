// Package console reads command lines from a terminal and runs them inside
// world transactions.
package console

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"os"

	dfcmd "github.com/df-mc/dragonfly/server/cmd"
	"github.com/df-mc/dragonfly/server/world"
	"github.com/dm-vev/conduit/server/cmd"
	"github.com/go-gl/mathgl/mgl64"
)

// Executor runs functions inside a world transaction. *world.World implements
// it.
type Executor interface {
	Exec(f world.ExecFunc) <-chan struct{}
}

// Console is a command source that reads commands from an io.Reader
// (defaulting to os.Stdin) and executes them in the transactions of an
// Executor. Command output is written to a logger.
type Console struct {
	exec   Executor
	log    *slog.Logger
	reader io.Reader
}

// New returns a Console executing commands through exec.
func New(exec Executor, log *slog.Logger) *Console {
	if log == nil {
		log = slog.Default()
	}
	return &Console{exec: exec, log: log, reader: os.Stdin}
}

// WithReader sets a custom reader for the console input.
func (c *Console) WithReader(r io.Reader) *Console {
	if r != nil {
		c.reader = r
	}
	return c
}

// Run starts consuming commands from the console. It blocks until the context
// is cancelled or the underlying reader reaches EOF.
func (c *Console) Run(ctx context.Context) {
	scanner := bufio.NewScanner(c.reader)
	src := &source{log: c.log}

	for scanner.Scan() {
		line := scanner.Text()
		if _, _, ok := cmd.Split(line); !ok {
			continue
		}
		select {
		case <-c.exec.Exec(func(tx *world.Tx) { cmd.ExecuteLine(src, line, tx, nil) }):
		case <-ctx.Done():
			return
		}
		if ctx.Err() != nil {
			return
		}
	}
	if err := scanner.Err(); err != nil {
		c.log.Error("Could not read console input.", "err", err)
	}
}

// source is the dfcmd.Source of commands run from the console.
type source struct {
	log *slog.Logger
}

// Position ...
func (*source) Position() mgl64.Vec3 { return mgl64.Vec3{} }

// Name ...
func (*source) Name() string { return "Console" }

// SendCommandOutput ...
func (s *source) SendCommandOutput(o *dfcmd.Output) {
	for _, msg := range o.Messages() {
		s.log.Info(msg.String())
	}
	for _, err := range o.Errors() {
		s.log.Error(err.Error())
	}
}
