package config

import "time"

// Config is the root configuration for the service.
type Config struct {
	Service  ServiceConfig  `yaml:"service"`
	Builtins BuiltinsConfig `yaml:"builtins"`
	Plugins  PluginsConfig  `yaml:"plugins"`
	History  HistoryConfig  `yaml:"history"`
	API      APIConfig      `yaml:"api"`
}

// ServiceConfig holds service-wide settings.
type ServiceConfig struct {
	Name     string `yaml:"name"`
	LogLevel string `yaml:"log_level"`
	// Timeout bounds each execution stage (compile and run separately).
	Timeout time.Duration `yaml:"timeout"`
	// TickThrottle is the minimum interval between background plugin scans.
	TickThrottle time.Duration `yaml:"tick_throttle"`
}

// BuiltinsConfig controls the built-in language set.
type BuiltinsConfig struct {
	// Disabled lists builtin language names to skip at startup.
	Disabled []string `yaml:"disabled"`
}

// PluginsConfig controls manifest-based plugin discovery.
type PluginsConfig struct {
	Dir string `yaml:"dir"`
}

// HistoryConfig controls the execution journal.
type HistoryConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// APIConfig controls the HTTP API.
type APIConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
	// APIKey, when set, is required as a bearer token on every request.
	// Supports ${ENV_VAR} interpolation so the key stays out of the file.
	APIKey string `yaml:"api_key"`
}

// Defaults returns a config with built-in defaults applied.
func Defaults() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:         "runlet",
			LogLevel:     "info",
			Timeout:      5 * time.Second,
			TickThrottle: 250 * time.Millisecond,
		},
		Plugins: PluginsConfig{
			Dir: "./plugins",
		},
		History: HistoryConfig{
			Enabled: true,
			Path:    "./runlet.db",
		},
		API: APIConfig{
			Enabled: false,
			Listen:  "127.0.0.1:8080",
		},
	}
}
