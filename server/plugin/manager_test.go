package plugin

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

type testHost struct{ name string }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func newTestManager(t *testing.T, cfg Config) *Manager[*testHost] {
	t.Helper()
	if cfg.Directory == "" {
		cfg.Directory = t.TempDir()
	}
	return NewManager(&testHost{name: "host"}, testLogger(), cfg)
}

type closingPlugin struct {
	name    string
	version string
	closed  chan struct{}
	order   *[]string
}

func newClosingPlugin(name string, order *[]string) *closingPlugin {
	return &closingPlugin{name: name, closed: make(chan struct{}), order: order}
}

func (p *closingPlugin) Name() string    { return p.name }
func (p *closingPlugin) Version() string { return p.version }

func (p *closingPlugin) Close() error {
	select {
	case <-p.closed:
	default:
		close(p.closed)
		if p.order != nil {
			*p.order = append(*p.order, p.name)
		}
	}
	return nil
}

func factoryFor(p Plugin) Factory[*testHost] {
	return func(*API[*testHost]) (Plugin, error) { return p, nil }
}

func TestDirName(t *testing.T) {
	cases := map[string]string{
		"":                         "plugin",
		"builtin/   ":              "builtin",
		"examples/Example Plugin":  "example-plugin",
		"x/Example_Plugin":         "example_plugin",
		"x/Example@@Plugin#":       "example-plugin",
		"x/--Already-Safe--":       "already-safe",
		"builtin/conduit":          "conduit",
		"x/MiXeD CaSe Name.v2":     "mixed-case-name",
		"x/    dots...here.json  ": "dots...here",
	}

	for input, want := range cases {
		if got := dirName(input); got != want {
			t.Fatalf("dirName(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestPluginBaseName(t *testing.T) {
	cases := map[string]string{
		"":                "plugin",
		"conduit":         "conduit",
		"builtin/conduit": "conduit",
		"builtin/demo.v2": "demo",
		"builtin/":        "builtin",
	}

	for input, want := range cases {
		if got := pluginBaseName(input); got != want {
			t.Fatalf("pluginBaseName(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestManagerDataRoot(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	manager := newTestManager(t, Config{Enabled: true, Directory: root})
	if got, want := manager.DataRoot(), filepath.Join(root, "data"); got != want {
		t.Fatalf("DataRoot() = %q, want %q", got, want)
	}

	manager.cfg.DataDirectory = "custom"
	if got, want := manager.DataRoot(), filepath.Join(root, "custom"); got != want {
		t.Fatalf("DataRoot() with relative data directory = %q, want %q", got, want)
	}

	abs := t.TempDir()
	manager.cfg.DataDirectory = abs
	if got := manager.DataRoot(); got != abs {
		t.Fatalf("DataRoot() with absolute data directory = %q, want %q", got, abs)
	}
}

func TestManagerEnableUsesPluginName(t *testing.T) {
	t.Parallel()

	manager := newTestManager(t, Config{Enabled: true})
	var (
		dataDir string
		host    *testHost
	)
	manager.Register("builtin/temp", func(api *API[*testHost]) (Plugin, error) {
		host, dataDir = api.Host(), api.DataDirectory()
		return &closingPlugin{name: "Conduit Engine", version: "v1.0.0", closed: make(chan struct{})}, nil
	})

	info, err := manager.Enable("builtin/temp")
	if err != nil {
		t.Fatalf("Enable() error = %v", err)
	}
	if info.Name != "Conduit Engine" || info.Version != "v1.0.0" || info.Source != "builtin/temp" {
		t.Fatalf("unexpected info %+v", info)
	}
	if host == nil || host.name != "host" {
		t.Fatalf("factory did not receive the host")
	}
	if want := filepath.Join(manager.DataRoot(), "temp"); dataDir != want {
		t.Fatalf("data directory = %q, want %q", dataDir, want)
	}
	if st, err := os.Stat(dataDir); err != nil || !st.IsDir() {
		t.Fatalf("data directory was not created before the factory ran: %v", err)
	}
	if p, ok := manager.Plugin("conduit engine"); !ok || p.Name() != "Conduit Engine" {
		t.Fatalf("Plugin() did not find the plugin by its display name")
	}

	if _, err := manager.Enable("builtin/temp"); !errors.Is(err, ErrAlreadyLoaded) {
		t.Fatalf("expected ErrAlreadyLoaded, got %v", err)
	}
	if _, err := manager.Enable("builtin/missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestManagerDataSurvivesReload(t *testing.T) {
	t.Parallel()

	manager := newTestManager(t, Config{Enabled: true})
	var dirs []string
	manager.Register("builtin/store", func(api *API[*testHost]) (Plugin, error) {
		dir, err := api.EnsureDataSubdir("state")
		if err != nil {
			return nil, err
		}
		dirs = append(dirs, dir)
		return newClosingPlugin("Store", nil), nil
	})
	if _, err := manager.Enable("builtin/store"); err != nil {
		t.Fatalf("Enable() error = %v", err)
	}
	if err := os.WriteFile(filepath.Join(dirs[0], "level"), []byte("5"), 0o644); err != nil {
		t.Fatalf("write data: %v", err)
	}
	if _, err := manager.Reload("store"); err != nil {
		t.Fatalf("Reload() error = %v", err)
	}
	if len(dirs) != 2 || dirs[0] != dirs[1] {
		t.Fatalf("expected the same data directory after reload, got %v", dirs)
	}
	if data, err := os.ReadFile(filepath.Join(dirs[1], "level")); err != nil || string(data) != "5" {
		t.Fatalf("data lost across reload: %q, %v", data, err)
	}
}

func TestManagerNameConflict(t *testing.T) {
	t.Parallel()

	manager := newTestManager(t, Config{Enabled: true})
	second := newClosingPlugin("same", nil)
	manager.Register("a/one", factoryFor(newClosingPlugin("same", nil)))
	manager.Register("a/two", factoryFor(second))

	if _, err := manager.Enable("a/one"); err != nil {
		t.Fatalf("Enable() error = %v", err)
	}
	if _, err := manager.Enable("a/two"); !errors.Is(err, ErrNameConflict) {
		t.Fatalf("expected ErrNameConflict, got %v", err)
	}
	select {
	case <-second.closed:
	default:
		t.Fatalf("conflicting instance was not closed")
	}
}

func TestManagerFactoryPanic(t *testing.T) {
	t.Parallel()

	manager := newTestManager(t, Config{Enabled: true})
	manager.Register("bad", func(*API[*testHost]) (Plugin, error) { panic("boom") })

	if _, err := manager.Enable("bad"); err == nil {
		t.Fatalf("expected factory panic to surface as an error")
	}
	if len(manager.Infos()) != 0 {
		t.Fatalf("panicking plugin was loaded")
	}
}

func TestLoadConfiguredShutdownOrder(t *testing.T) {
	t.Parallel()

	var order []string
	manager := newTestManager(t, Config{Enabled: true, Skip: []string{"x/skipped"}})
	manager.Register("x/first", factoryFor(newClosingPlugin("first", &order)))
	manager.Register("x/skipped", factoryFor(newClosingPlugin("skipped", &order)))
	manager.Register("x/second", factoryFor(newClosingPlugin("second", &order)))

	manager.LoadConfigured()
	manager.LoadConfigured()

	infos := manager.Infos()
	if len(infos) != 2 || infos[0].Name != "first" || infos[1].Name != "second" {
		t.Fatalf("unexpected loaded plugins %+v", infos)
	}
	manager.Shutdown()
	if len(order) != 2 || order[0] != "second" || order[1] != "first" {
		t.Fatalf("expected reverse shutdown order, got %v", order)
	}
	if len(manager.Infos()) != 0 {
		t.Fatalf("Shutdown() left plugins loaded")
	}
}

func TestManagerDisableAll(t *testing.T) {
	t.Parallel()

	manager := newTestManager(t, Config{Enabled: true})
	first := newClosingPlugin("first", nil)
	second := newClosingPlugin("second", nil)
	manager.Register("x/first", factoryFor(first))
	manager.Register("x/second", factoryFor(second))
	manager.LoadConfigured()

	infos, err := manager.DisableAll()
	if err != nil {
		t.Fatalf("DisableAll() error = %v", err)
	}
	if len(infos) != 2 || infos[0].Name != "second" || infos[1].Name != "first" {
		t.Fatalf("DisableAll() order = %v", infos)
	}
	if got := manager.Infos(); len(got) != 0 {
		t.Fatalf("DisableAll() left %d plugins loaded", len(got))
	}
}

func TestManagerDisabled(t *testing.T) {
	t.Parallel()

	manager := newTestManager(t, Config{Enabled: false})
	manager.Register("x", factoryFor(newClosingPlugin("x", nil)))
	manager.LoadConfigured()

	if infos, err := manager.DisableAll(); !errors.Is(err, ErrDisabled) || infos != nil {
		t.Fatalf("DisableAll() = (%v, %v), want (nil, ErrDisabled)", infos, err)
	}
	if _, err := manager.Enable("x"); !errors.Is(err, ErrDisabled) {
		t.Fatalf("Enable() error = %v, want ErrDisabled", err)
	}
}

func TestAPIGoPanicDisablesPlugin(t *testing.T) {
	t.Parallel()

	manager := newTestManager(t, Config{Enabled: true})
	p := newClosingPlugin("worker", nil)
	cancelled := make(chan struct{})
	release := make(chan struct{})
	manager.Register("x/worker", func(api *API[*testHost]) (Plugin, error) {
		api.Go(func(ctx context.Context) {
			<-release
			go func() {
				<-ctx.Done()
				close(cancelled)
			}()
			panic("boom")
		})
		return p, nil
	})
	if _, err := manager.Enable("x/worker"); err != nil {
		t.Fatalf("Enable() error = %v", err)
	}
	close(release)

	select {
	case <-p.closed:
	case <-time.After(2 * time.Second):
		t.Fatalf("plugin close was not invoked after panic")
	}
	select {
	case <-cancelled:
	case <-time.After(2 * time.Second):
		t.Fatalf("plugin context was not cancelled")
	}
}

func TestAPIDataPaths(t *testing.T) {
	t.Parallel()

	manager := newTestManager(t, Config{Enabled: true})
	var api *API[*testHost]
	manager.Register("x/paths", func(a *API[*testHost]) (Plugin, error) {
		api = a
		return newClosingPlugin("paths", nil), nil
	})
	if _, err := manager.Enable("x/paths"); err != nil {
		t.Fatalf("Enable() error = %v", err)
	}

	dir, err := api.EnsureDataSubdir("reports/daily")
	if err != nil {
		t.Fatalf("EnsureDataSubdir() error = %v", err)
	}
	if want := filepath.Join(manager.DataRoot(), "paths", "reports", "daily"); dir != want {
		t.Fatalf("EnsureDataSubdir() = %q, want %q", dir, want)
	}
	if st, err := os.Stat(dir); err != nil || !st.IsDir() {
		t.Fatalf("EnsureDataSubdir() did not create %q: %v", dir, err)
	}
	if dir, err := api.EnsureDataSubdir(""); err != nil || dir != api.DataDirectory() {
		t.Fatalf("EnsureDataSubdir(\"\") = %q, %v", dir, err)
	}
	for _, bad := range []string{"../escape", "a/../../escape", filepath.Join(t.TempDir(), "abs")} {
		if _, err := api.EnsureDataSubdir(bad); !errors.Is(err, ErrDataPath) {
			t.Fatalf("EnsureDataSubdir(%q) error = %v, want ErrDataPath", bad, err)
		}
	}
}
