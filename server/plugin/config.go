package plugin

// Config controls the behaviour of the plugin manager.
type Config struct {
	// Enabled specifies if the plugin subsystem should be initialised. When
	// false, no plugins will be enabled.
	Enabled bool
	// Directory is the base directory plugin data is stored under.
	Directory string
	// DataDirectory controls where plugin data folders should be created. If
	// empty, a `data` directory inside Directory will be used. Relative
	// paths are resolved against Directory.
	DataDirectory string
	// Skip lists registered sources that LoadConfigured should not enable.
	Skip []string
}
