// Package doctor validates lexstat configuration beyond the basic load checks.
package doctor

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mattjoyce/lexstat/internal/batch"
	"github.com/mattjoyce/lexstat/internal/config"
	"github.com/mattjoyce/lexstat/internal/stats"
)

// Result holds the outcome of a validation run.
type Result struct {
	Valid    bool    `json:"valid"`
	Errors   []Issue `json:"errors,omitempty"`
	Warnings []Issue `json:"warnings,omitempty"`
}

// Issue describes a single validation error or warning.
type Issue struct {
	Category string `json:"category"`
	Message  string `json:"message"`
	Field    string `json:"field,omitempty"`
}

// Doctor runs advisory checks against a loaded configuration.
type Doctor struct {
	cfg *config.Config
}

// New creates a Doctor from a loaded config.
func New(cfg *config.Config) *Doctor {
	return &Doctor{cfg: cfg}
}

// Validate runs all checks and returns a result.
func (d *Doctor) Validate() *Result {
	r := &Result{Valid: true}

	d.validateServiceConfig(r)
	d.validateSources(r)
	d.validateCommands(r)
	d.validateAPIConfig(r)
	d.validateTokenScopes(r)
	d.warnDeprecatedAuth(r)
	d.warnSuspiciousSchedule(r)

	r.Valid = len(r.Errors) == 0
	return r
}

func (d *Doctor) addError(r *Result, category, field, msg string) {
	r.Errors = append(r.Errors, Issue{Category: category, Field: field, Message: msg})
}

func (d *Doctor) addWarning(r *Result, category, field, msg string) {
	r.Warnings = append(r.Warnings, Issue{Category: category, Field: field, Message: msg})
}

// validateServiceConfig checks required service fields.
func (d *Doctor) validateServiceConfig(r *Result) {
	if d.cfg.State.Path == "" {
		d.addError(r, "service", "state.path", "state.path is required")
	}

	switch strings.ToLower(d.cfg.Service.LogLevel) {
	case "debug", "info", "warn", "error", "":
	default:
		d.addWarning(r, "service", "service.log_level",
			fmt.Sprintf("unknown log level %q, will fall back to info", d.cfg.Service.LogLevel))
	}
}

// validateSources checks the text source configuration against the filesystem.
func (d *Doctor) validateSources(r *Result) {
	src := d.cfg.Sources

	switch src.Mode {
	case config.SourceModeStub:
	case config.SourceModeFS:
		if src.BaseDir == "" {
			d.addError(r, "sources", "sources.base_dir", "base_dir is required for fs mode")
			return
		}
		info, err := os.Stat(src.BaseDir)
		if err != nil || !info.IsDir() {
			d.addError(r, "sources", "sources.base_dir",
				fmt.Sprintf("base_dir %q is not an existing directory", src.BaseDir))
			return
		}
		for i, folder := range src.Folders {
			path := src.BaseDir + string(os.PathSeparator) + folder
			if info, err := os.Stat(path); err != nil || !info.IsDir() {
				d.addWarning(r, "sources", fmt.Sprintf("sources.folders[%d]", i),
					fmt.Sprintf("folder %q not found under base_dir; runs will fail fast on it", folder))
			}
		}
	default:
		d.addError(r, "sources", "sources.mode",
			fmt.Sprintf("unknown source mode %q (expected stub or fs)", src.Mode))
	}

	if len(src.Folders) == 0 {
		d.addWarning(r, "sources", "sources.folders",
			"no folders configured; batches will complete without doing any work")
	}
}

// validateCommands checks the configured stats commands.
func (d *Doctor) validateCommands(r *Result) {
	if len(d.cfg.Commands) == 0 {
		d.addWarning(r, "commands", "commands",
			"no commands configured; batches will only resolve folder text")
		return
	}

	if _, err := stats.ParseCommandTypes(d.cfg.Commands); err != nil {
		d.addError(r, "commands", "commands", err.Error())
	}

	seen := make(map[string]int)
	for i, c := range d.cfg.Commands {
		if prev, dup := seen[c]; dup {
			d.addWarning(r, "commands", fmt.Sprintf("commands[%d]", i),
				fmt.Sprintf("command %q repeats commands[%d]; it will run twice per folder", c, prev))
			continue
		}
		seen[c] = i
	}
}

// validateAPIConfig checks API server settings.
func (d *Doctor) validateAPIConfig(r *Result) {
	if !d.cfg.API.Enabled {
		return
	}
	if d.cfg.API.Listen == "" {
		d.addError(r, "api", "api.listen", "api.listen is required when API is enabled")
	}
	if d.cfg.API.Auth.APIKey == "" && len(d.cfg.API.Auth.Tokens) == 0 {
		d.addError(r, "api", "api.auth", "API enabled but no authentication configured")
	}
}

// validateTokenScopes checks that scopes are drawn from the known set.
func (d *Doctor) validateTokenScopes(r *Result) {
	known := map[string]bool{
		"*":          true,
		"runs:ro":    true,
		"runs:rw":    true,
		"results:ro": true,
		"results:rw": true,
		"events:ro":  true,
		"events:rw":  true,
	}

	for i, token := range d.cfg.API.Auth.Tokens {
		if token.Token == "" {
			d.addWarning(r, "token_scopes", fmt.Sprintf("api.auth.tokens[%d].token", i),
				"token value is empty (possibly unresolved environment variable)")
		}
		for j, scope := range token.Scopes {
			if !known[scope] {
				d.addError(r, "token_scopes", fmt.Sprintf("api.auth.tokens[%d].scopes[%d]", i, j),
					fmt.Sprintf("unknown scope %q", scope))
			}
		}
	}
}

// warnDeprecatedAuth warns about legacy auth patterns.
func (d *Doctor) warnDeprecatedAuth(r *Result) {
	if d.cfg.API.Auth.APIKey != "" && len(d.cfg.API.Auth.Tokens) > 0 {
		d.addWarning(r, "deprecated", "api.auth",
			"both api_key and tokens configured; prefer tokens array only")
	}
	if d.cfg.API.Auth.APIKey != "" && len(d.cfg.API.Auth.Tokens) == 0 {
		d.addWarning(r, "deprecated", "api.auth.api_key",
			"legacy api_key grants full access; migrate to tokens array with scopes")
	}
}

// warnSuspiciousSchedule flags intervals that seem too short.
func (d *Doctor) warnSuspiciousSchedule(r *Result) {
	sched := d.cfg.Service.Schedule
	if sched == nil {
		return
	}

	interval, err := batch.ParseEvery(sched.Every)
	if err != nil {
		d.addError(r, "schedule", "service.schedule.every", err.Error())
		return
	}
	if interval < time.Minute {
		d.addWarning(r, "schedule", "service.schedule.every",
			fmt.Sprintf("schedule interval %q is very short (< 1m)", sched.Every))
	}
	if sched.Jitter < 0 {
		d.addError(r, "schedule", "service.schedule.jitter", "jitter must not be negative")
	}
}

// FormatHuman returns a human-readable validation report.
func FormatHuman(r *Result) string {
	var b strings.Builder

	if r.Valid && len(r.Warnings) == 0 {
		b.WriteString("Configuration valid.\n")
		return b.String()
	}

	if r.Valid && len(r.Warnings) > 0 {
		b.WriteString("Configuration valid")
		fmt.Fprintf(&b, " (%d warning(s))\n", len(r.Warnings))
	}

	if !r.Valid {
		fmt.Fprintf(&b, "Configuration invalid (%d error(s), %d warning(s))\n", len(r.Errors), len(r.Warnings))
	}

	for _, e := range r.Errors {
		if e.Field != "" {
			fmt.Fprintf(&b, "  ERROR [%s] %s: %s\n", e.Category, e.Field, e.Message)
		} else {
			fmt.Fprintf(&b, "  ERROR [%s] %s\n", e.Category, e.Message)
		}
	}
	for _, w := range r.Warnings {
		if w.Field != "" {
			fmt.Fprintf(&b, "  WARN  [%s] %s: %s\n", w.Category, w.Field, w.Message)
		} else {
			fmt.Fprintf(&b, "  WARN  [%s] %s\n", w.Category, w.Message)
		}
	}

	return b.String()
}

// FormatJSON returns the result as indented JSON.
func FormatJSON(r *Result) (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}
