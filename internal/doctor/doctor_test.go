package doctor

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mattjoyce/lexstat/internal/config"
)

func validConfig() *config.Config {
	return &config.Config{
		Service: config.ServiceConfig{
			Name:     "lexstat",
			LogLevel: "info",
			Schedule: &config.ScheduleConfig{Every: "5m"},
		},
		Sources: config.SourcesConfig{
			Mode:    config.SourceModeStub,
			Folders: []string{"essays"},
		},
		Commands: []string{"count", "average"},
		State:    config.StateConfig{Path: "/tmp/lexstat.db"},
	}
}

func TestValidate_ValidConfig(t *testing.T) {
	t.Parallel()
	r := New(validConfig()).Validate()
	if !r.Valid {
		t.Fatalf("expected valid, got errors: %v", r.Errors)
	}
	if len(r.Warnings) != 0 {
		t.Fatalf("expected no warnings, got: %v", r.Warnings)
	}
}

func TestValidate_MissingStatePath(t *testing.T) {
	t.Parallel()
	cfg := validConfig()
	cfg.State.Path = ""
	r := New(cfg).Validate()
	if r.Valid {
		t.Fatal("expected invalid")
	}
	assertHasError(t, r, "service", "state.path")
}

func TestValidate_FSModeMissingBaseDir(t *testing.T) {
	t.Parallel()
	cfg := validConfig()
	cfg.Sources.Mode = config.SourceModeFS
	cfg.Sources.BaseDir = "/nonexistent/base/dir"
	r := New(cfg).Validate()
	if r.Valid {
		t.Fatal("expected invalid")
	}
	assertHasError(t, r, "sources", "sources.base_dir")
}

func TestValidate_FSModeWarnsOnMissingFolder(t *testing.T) {
	base := t.TempDir()
	if err := os.Mkdir(filepath.Join(base, "essays"), 0o755); err != nil {
		t.Fatal(err)
	}

	cfg := validConfig()
	cfg.Sources.Mode = config.SourceModeFS
	cfg.Sources.BaseDir = base
	cfg.Sources.Folders = []string{"essays", "ghost"}

	r := New(cfg).Validate()
	if !r.Valid {
		t.Fatalf("expected valid, got errors: %v", r.Errors)
	}
	assertHasWarning(t, r, "sources", "sources.folders[1]")
}

func TestValidate_DuplicateCommandWarns(t *testing.T) {
	t.Parallel()
	cfg := validConfig()
	cfg.Commands = []string{"count", "count"}
	r := New(cfg).Validate()
	if !r.Valid {
		t.Fatalf("expected valid, got errors: %v", r.Errors)
	}
	assertHasWarning(t, r, "commands", "commands[1]")
}

func TestValidate_UnknownCommand(t *testing.T) {
	t.Parallel()
	cfg := validConfig()
	cfg.Commands = []string{"sparkle"}
	r := New(cfg).Validate()
	if r.Valid {
		t.Fatal("expected invalid")
	}
	assertHasError(t, r, "commands", "commands")
}

func TestValidate_APIEnabledWithoutAuth(t *testing.T) {
	t.Parallel()
	cfg := validConfig()
	cfg.API.Enabled = true
	cfg.API.Listen = "127.0.0.1:8080"
	r := New(cfg).Validate()
	if r.Valid {
		t.Fatal("expected invalid")
	}
	assertHasError(t, r, "api", "api.auth")
}

func TestValidate_UnknownScope(t *testing.T) {
	t.Parallel()
	cfg := validConfig()
	cfg.API.Enabled = true
	cfg.API.Listen = "127.0.0.1:8080"
	cfg.API.Auth.Tokens = []config.APIToken{{Token: "tok", Scopes: []string{"fleet:admin"}}}
	r := New(cfg).Validate()
	if r.Valid {
		t.Fatal("expected invalid")
	}
	assertHasError(t, r, "token_scopes", "api.auth.tokens[0].scopes[0]")
}

func TestValidate_LegacyAPIKeyWarns(t *testing.T) {
	t.Parallel()
	cfg := validConfig()
	cfg.API.Enabled = true
	cfg.API.Listen = "127.0.0.1:8080"
	cfg.API.Auth.APIKey = "secret"
	r := New(cfg).Validate()
	if !r.Valid {
		t.Fatalf("expected valid, got errors: %v", r.Errors)
	}
	assertHasWarning(t, r, "deprecated", "api.auth.api_key")
}

func TestValidate_ShortScheduleWarns(t *testing.T) {
	t.Parallel()
	cfg := validConfig()
	cfg.Service.Schedule = &config.ScheduleConfig{Every: "10s", Jitter: time.Second}
	r := New(cfg).Validate()
	if !r.Valid {
		t.Fatalf("expected valid, got errors: %v", r.Errors)
	}
	assertHasWarning(t, r, "schedule", "service.schedule.every")
}

func TestValidate_BadScheduleInterval(t *testing.T) {
	t.Parallel()
	cfg := validConfig()
	cfg.Service.Schedule = &config.ScheduleConfig{Every: "whenever"}
	r := New(cfg).Validate()
	if r.Valid {
		t.Fatal("expected invalid")
	}
	assertHasError(t, r, "schedule", "service.schedule.every")
}

func TestFormatHuman(t *testing.T) {
	t.Parallel()

	r := New(validConfig()).Validate()
	if got := FormatHuman(r); got != "Configuration valid.\n" {
		t.Fatalf("FormatHuman = %q", got)
	}

	cfg := validConfig()
	cfg.State.Path = ""
	out := FormatHuman(New(cfg).Validate())
	if !strings.Contains(out, "Configuration invalid") || !strings.Contains(out, "state.path") {
		t.Fatalf("unexpected report:\n%s", out)
	}
}

func TestFormatJSON(t *testing.T) {
	t.Parallel()

	out, err := FormatJSON(New(validConfig()).Validate())
	if err != nil {
		t.Fatalf("FormatJSON: %v", err)
	}
	if !strings.Contains(out, `"valid": true`) {
		t.Fatalf("unexpected JSON:\n%s", out)
	}
}

func assertHasError(t *testing.T, r *Result, category, field string) {
	t.Helper()
	for _, e := range r.Errors {
		if e.Category == category && e.Field == field {
			return
		}
	}
	t.Fatalf("expected error [%s] %s, got: %v", category, field, r.Errors)
}

func assertHasWarning(t *testing.T, r *Result, category, field string) {
	t.Helper()
	for _, w := range r.Warnings {
		if w.Category == category && w.Field == field {
			return
		}
	}
	t.Fatalf("expected warning [%s] %s, got: %v", category, field, r.Warnings)
}
