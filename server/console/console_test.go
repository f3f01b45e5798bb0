package console

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/df-mc/dragonfly/server/world"
)

type countingExecutor struct {
	calls int
}

func (e *countingExecutor) Exec(f world.ExecFunc) <-chan struct{} {
	e.calls++
	f(nil)
	c := make(chan struct{})
	close(c)
	return c
}

func TestConsoleRunsLines(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, nil))
	exec := &countingExecutor{}

	New(exec, log).WithReader(strings.NewReader("\n  \nconsole-test-missing\n/console-test-other arg\n")).Run(context.Background())
	if exec.calls != 2 {
		t.Fatalf("expected 2 commands to be executed, got %d", exec.calls)
	}
	if n := strings.Count(buf.String(), "Unknown command"); n != 2 {
		t.Fatalf("expected 2 unknown command errors to be logged, got %d: %s", n, buf.String())
	}
}

func TestConsoleStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	exec := &countingExecutor{}
	New(exec, slog.New(slog.DiscardHandler)).WithReader(strings.NewReader("a\nb\n")).Run(ctx)
	if exec.calls > 1 {
		t.Fatalf("expected console to stop after cancellation, got %d calls", exec.calls)
	}
}
