package config

import "time"

// Config represents the complete lexstat configuration.
type Config struct {
	Service  ServiceConfig `yaml:"service"`
	Sources  SourcesConfig `yaml:"sources"`
	Commands []string      `yaml:"commands"`
	State    StateConfig   `yaml:"state"`
	API      APIConfig     `yaml:"api,omitempty"`
}

// ServiceConfig defines core service settings.
type ServiceConfig struct {
	Name     string          `yaml:"name"`
	LogLevel string          `yaml:"log_level"`
	Schedule *ScheduleConfig `yaml:"schedule,omitempty"`
}

// ScheduleConfig defines when serve mode re-runs the batch.
type ScheduleConfig struct {
	Every  string        `yaml:"every"` // e.g., "5m", "hourly", "daily"
	Jitter time.Duration `yaml:"jitter,omitempty"`
}

// SourcesConfig defines where folder text comes from.
type SourcesConfig struct {
	// Mode selects the text source implementation: "stub" or "fs".
	Mode    string   `yaml:"mode"`
	BaseDir string   `yaml:"base_dir,omitempty"`
	Folders []string `yaml:"folders"`
}

// StateConfig defines state storage settings.
type StateConfig struct {
	Path string `yaml:"path"`
}

// APIConfig defines HTTP API server settings.
type APIConfig struct {
	Enabled bool          `yaml:"enabled"`
	Listen  string        `yaml:"listen"`
	Auth    APIAuthConfig `yaml:"auth"`
}

// APIAuthConfig defines API authentication settings.
type APIAuthConfig struct {
	// APIKey is the legacy single bearer token (admin/full access).
	// Prefer Tokens for scoped access.
	APIKey string     `yaml:"api_key"`
	Tokens []APIToken `yaml:"tokens,omitempty"`
}

// APIToken defines a bearer token and its scopes.
type APIToken struct {
	Token  string   `yaml:"token"`
	Scopes []string `yaml:"scopes"`
}

// SourceModeStub and SourceModeFS are the supported sources.mode values.
const (
	SourceModeStub = "stub"
	SourceModeFS   = "fs"
)

// Defaults returns a Config with sensible defaults.
func Defaults() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:     "lexstat",
			LogLevel: "info",
		},
		Sources: SourcesConfig{
			Mode: SourceModeStub,
		},
		Commands: []string{"count", "average"},
		State: StateConfig{
			Path: "./data/lexstat.db",
		},
		API: APIConfig{
			Enabled: false,
			Listen:  "127.0.0.1:8080",
			Auth: APIAuthConfig{
				APIKey: "",
			},
		},
	}
}
