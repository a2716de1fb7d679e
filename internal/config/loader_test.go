package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
sources:
  mode: stub
  folders: [essays]
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "lexstat", cfg.Service.Name)
	assert.Equal(t, "info", cfg.Service.LogLevel)
	assert.Equal(t, []string{"count", "average"}, cfg.Commands)
	assert.Equal(t, []string{"essays"}, cfg.Sources.Folders)
	assert.False(t, cfg.API.Enabled)
}

func TestLoadDirectoryResolvesConfigYAML(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(`
sources:
  mode: stub
  folders: [a]
`), 0o644))

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, cfg.Sources.Folders)
}

func TestLoadExpandsEnvVars(t *testing.T) {
	t.Setenv("LEXSTAT_TEST_BASE", "/srv/corpora")

	path := writeConfig(t, `
sources:
  mode: fs
  base_dir: ${LEXSTAT_TEST_BASE}
  folders: [a]
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/srv/corpora", cfg.Sources.BaseDir)
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidateRejectsBadConfig(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"unknown source mode", `
sources:
  mode: carrier-pigeon
`},
		{"fs without base_dir", `
sources:
  mode: fs
`},
		{"unknown command", `
commands: [count, sparkle]
`},
		{"empty state path", `
state:
  path: ""
`},
		{"api enabled without auth", `
api:
  enabled: true
  listen: "127.0.0.1:0"
`},
		{"api enabled without listen", `
api:
  enabled: true
  listen: ""
  auth:
    api_key: secret
`},
		{"schedule without every", `
service:
  schedule:
    jitter: 5s
`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			assert.Error(t, err)
		})
	}
}

func TestLoadVerifiesChecksumManifest(t *testing.T) {
	path := writeConfig(t, `
sources:
  mode: stub
  folders: [a]
`)
	require.NoError(t, GenerateChecksums(path))

	// Untampered config loads fine.
	_, err := Load(path)
	require.NoError(t, err)

	// Tampering after lock is rejected.
	require.NoError(t, os.WriteFile(path, []byte(`
sources:
  mode: stub
  folders: [b]
`), 0o644))
	_, err = Load(path)
	assert.ErrorContains(t, err, "hash mismatch")
}

func TestDiscoverConfigEnvOverride(t *testing.T) {
	path := writeConfig(t, "sources:\n  mode: stub\n")
	t.Setenv("LEXSTAT_CONFIG", path)

	found, err := DiscoverConfig()
	require.NoError(t, err)
	assert.Equal(t, path, found)
}
