package server

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dm-vev/conduit/server/world/conduit"
)

func TestLoadConfigCreatesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "conduit.toml")
	c, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.Version != ConfigVersion || c.Tick.IntervalMillis != 50 {
		t.Fatalf("expected defaults, got %+v", c)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected default config to be written: %v", err)
	}

	again, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if again.Engine != c.Engine || again.Store != c.Store || again.Journal != c.Journal {
		t.Fatalf("round trip changed the config: %+v vs %+v", again, c)
	}
}

func TestLoadConfigKeepsMissingDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conduit.toml")
	contents := "Version = \"v1.2.0\"\n\n[Engine]\nMaxNetworkSize = 128\n"
	if err := os.WriteFile(path, []byte(contents), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	c, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.Engine.MaxNetworkSize != 128 {
		t.Fatalf("expected MaxNetworkSize 128, got %d", c.Engine.MaxNetworkSize)
	}
	if c.Engine.MaxY != 319 || c.Store.Folder != "conduit/state" {
		t.Fatalf("expected missing settings to keep defaults, got %+v", c)
	}
}

func TestLoadConfigInvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conduit.toml")
	if err := os.WriteFile(path, []byte("Version = [\n"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := LoadConfig(path); err == nil || !strings.Contains(err.Error(), "decode config") {
		t.Fatalf("expected decode error, got %v", err)
	}
}

func TestUserConfigConversion(t *testing.T) {
	dir := t.TempDir()
	uc := DefaultConfig()
	uc.Store.Folder = filepath.Join(dir, "state")
	uc.Journal.Enabled = true
	uc.Journal.Folder = filepath.Join(dir, "journal")
	uc.Tick.IntervalMillis = 100

	conf, err := uc.Config(quietLogger())
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	t.Cleanup(func() { _ = conf.Close() })
	if conf.Store == nil || conf.Journal == nil {
		t.Fatalf("expected store and journal to be opened")
	}
	if conf.TickInterval != 100*time.Millisecond {
		t.Fatalf("unexpected tick interval %v", conf.TickInterval)
	}
	if conf.DefaultEmitted != conduit.MaxPower {
		t.Fatalf("unexpected default emitted level %d", conf.DefaultEmitted)
	}
	if conf.Engine.Bounds.Y != [2]int{-64, 319} {
		t.Fatalf("unexpected bounds %v", conf.Engine.Bounds.Y)
	}
}

func TestUserConfigZeroEmittedTurnsSourcesOff(t *testing.T) {
	uc := DefaultConfig()
	uc.Store.Enabled = false
	uc.Store.DefaultEmitted = 0
	conf, err := uc.Config(quietLogger())
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	if got := conf.withDefaults().DefaultEmitted; got != 0 {
		t.Fatalf("expected sources without a record to emit 0, got %d", got)
	}
}

func TestUserConfigVersion(t *testing.T) {
	for _, v := range []string{"v2.0.0", "banana", ""} {
		uc := DefaultConfig()
		uc.Store.Enabled = false
		uc.Version = v
		if _, err := uc.Config(quietLogger()); !errors.Is(err, ErrUnsupportedVersion) {
			t.Fatalf("version %q: expected ErrUnsupportedVersion, got %v", v, err)
		}
	}
	uc := DefaultConfig()
	uc.Store.Enabled = false
	uc.Version = "1.4.2"
	if _, err := uc.Config(quietLogger()); err != nil {
		t.Fatalf("expected version without prefix to be accepted: %v", err)
	}
}

func TestUserConfigInvalidBounds(t *testing.T) {
	uc := DefaultConfig()
	uc.Store.Enabled = false
	uc.Engine.Horizontal = 1 << 30
	if _, err := uc.Config(quietLogger()); err == nil {
		t.Fatalf("expected bounds outside the packable range to be rejected")
	}
}
