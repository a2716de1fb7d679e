package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"gopkg.in/yaml.v3"

	"github.com/mattjoyce/lexstat/internal/stats"
)

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Load reads and parses configuration from a file. A directory path is
// resolved to config.yaml inside it. When a .checksums manifest exists next to
// the config file, the file is hash-verified before use.
func Load(configPath string) (*Config, error) {
	absPath, err := filepath.Abs(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path %q: %w", configPath, err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("config file not found: %s\n"+
			"Hint: Check the path or run with --config flag", absPath)
	}
	if info.IsDir() {
		absPath = filepath.Join(absPath, "config.yaml")
		if _, err := os.Stat(absPath); err != nil {
			return nil, fmt.Errorf("directory provided but config.yaml not found: %s", absPath)
		}
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	data = expandEnvVars(data)

	cfg := Defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", absPath, err)
	}

	if err := VerifyChecksums(absPath); err != nil {
		return nil, err
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// DiscoverConfig finds the config file by checking standard locations.
// Priority order: $LEXSTAT_CONFIG, ~/.config/lexstat/config.yaml, ./config.yaml
func DiscoverConfig() (string, error) {
	if path := os.Getenv("LEXSTAT_CONFIG"); path != "" {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	if homeDir, err := os.UserHomeDir(); err == nil {
		userConfig := filepath.Join(homeDir, ".config", "lexstat", "config.yaml")
		if _, err := os.Stat(userConfig); err == nil {
			return userConfig, nil
		}
	}

	if _, err := os.Stat("config.yaml"); err == nil {
		return "config.yaml", nil
	}

	return "", fmt.Errorf("no config found: set $LEXSTAT_CONFIG, create ~/.config/lexstat/config.yaml, or place config.yaml in the working directory")
}

// expandEnvVars substitutes ${VAR} references with environment values.
// Unset variables expand to the empty string.
func expandEnvVars(data []byte) []byte {
	return envVarPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		name := envVarPattern.FindSubmatch(match)[1]
		return []byte(os.Getenv(string(name)))
	})
}

func validate(cfg *Config) error {
	switch cfg.Sources.Mode {
	case SourceModeStub:
		// No further requirements.
	case SourceModeFS:
		if cfg.Sources.BaseDir == "" {
			return fmt.Errorf("sources.base_dir is required when sources.mode is %q", SourceModeFS)
		}
	default:
		return fmt.Errorf("sources.mode must be %q or %q, got %q", SourceModeStub, SourceModeFS, cfg.Sources.Mode)
	}

	if _, err := stats.ParseCommandTypes(cfg.Commands); err != nil {
		return fmt.Errorf("commands: %w", err)
	}

	if cfg.State.Path == "" {
		return fmt.Errorf("state.path is empty")
	}

	if cfg.API.Enabled {
		if cfg.API.Listen == "" {
			return fmt.Errorf("api.listen is required when api.enabled is true")
		}
		if cfg.API.Auth.APIKey == "" && len(cfg.API.Auth.Tokens) == 0 {
			return fmt.Errorf("api.auth requires api_key or at least one token when api.enabled is true")
		}
		for i, tok := range cfg.API.Auth.Tokens {
			if tok.Token == "" {
				return fmt.Errorf("api.auth.tokens[%d].token is empty", i)
			}
		}
	}

	if sched := cfg.Service.Schedule; sched != nil && sched.Every == "" {
		return fmt.Errorf("service.schedule.every is empty")
	}
	return nil
}
