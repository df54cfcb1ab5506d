package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"quarterplan/internal/allocation"
	"quarterplan/internal/quarter"
	"quarterplan/internal/reconcile"
	"quarterplan/internal/targets"
)

// FileName is the workspace config file.
const FileName = "quarterplan.yml"

const defaultConfigYAML = `# quarterplan workspace configuration
business_id: %s

# fiscal years end June 30; calendar years end December 31.
year_type: %s

# 0 picks the plan year containing today.
plan_year: 0

capacity:
  per_quarter: 5
  per_assignee: 3

sync:
  debounce: 500ms

log_level: info
`

// SyncConfig controls execution write-back.
type SyncConfig struct {
	Debounce string `yaml:"debounce"`
}

// Config models quarterplan.yml.
type Config struct {
	BusinessID  string            `yaml:"business_id"`
	YearType    string            `yaml:"year_type"`
	PlanYear    int               `yaml:"plan_year"`
	Capacity    allocation.Config `yaml:"capacity"`
	Sync        SyncConfig        `yaml:"sync"`
	LogLevel    string            `yaml:"log_level"`
	TargetLinks []targets.Link    `yaml:"target_links,omitempty"`
}

// ValidationError captures a single config problem.
type ValidationError struct {
	File    string
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s: %s", e.File, e.Field, e.Message)
}

// ValidationErrors aggregates config problems.
type ValidationErrors []ValidationError

func (errs ValidationErrors) Error() string {
	parts := make([]string, 0, len(errs))
	for _, e := range errs {
		parts = append(parts, e.Error())
	}
	return strings.Join(parts, "\n")
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		YearType: string(quarter.Calendar),
		Capacity: allocation.DefaultConfig(),
		Sync:     SyncConfig{Debounce: reconcile.DefaultDelay.String()},
		LogLevel: "info",
	}
}

// Load reads path over the defaults. A missing file yields the defaults.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Default(), nil
		}
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	return Parse(data, path)
}

// Parse decodes data over the defaults and validates the result.
func Parse(data []byte, source string) (Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, ValidationErrors{{File: source, Field: "yaml", Message: err.Error()}}
	}
	if err := cfg.validate(source); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate(source string) error {
	var errs ValidationErrors
	add := func(field, format string, args ...any) {
		errs = append(errs, ValidationError{File: source, Field: field, Message: fmt.Sprintf(format, args...)})
	}

	if _, err := quarter.ParseYearType(c.YearType); err != nil {
		add("year_type", "%s", err.Error())
	}
	if c.PlanYear < 0 {
		add("plan_year", "must not be negative")
	}
	if c.Capacity.PerQuarter <= 0 {
		add("capacity.per_quarter", "must be positive")
	}
	if c.Capacity.PerAssignee <= 0 {
		add("capacity.per_assignee", "must be positive")
	}
	if d, err := time.ParseDuration(c.Sync.Debounce); err != nil {
		add("sync.debounce", "invalid duration %q", c.Sync.Debounce)
	} else if d <= 0 {
		add("sync.debounce", "must be positive")
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		add("log_level", "%s", err.Error())
	}
	for idx, link := range c.TargetLinks {
		if link.Percent == "" || link.Absolute == "" || link.Base == "" {
			add(fmt.Sprintf("target_links[%d]", idx), "percent, absolute, and base are required")
		}
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// Year returns the parsed year type.
func (c Config) Year() quarter.YearType {
	yt, err := quarter.ParseYearType(c.YearType)
	if err != nil {
		return quarter.Calendar
	}
	return yt
}

// DebounceDelay returns the parsed write-back debounce.
func (c Config) DebounceDelay() time.Duration {
	d, err := time.ParseDuration(c.Sync.Debounce)
	if err != nil || d <= 0 {
		return reconcile.DefaultDelay
	}
	return d
}

// Links returns the configured target links, or the default margin/profit pairs.
func (c Config) Links() []targets.Link {
	if len(c.TargetLinks) == 0 {
		return targets.DefaultLinks
	}
	return c.TargetLinks
}

// WriteDefault creates a commented config file for businessID unless one exists.
// An empty yearType writes calendar. It reports whether a file was written.
func WriteDefault(path, businessID string, yearType quarter.YearType) (bool, error) {
	if yearType == "" {
		yearType = quarter.Calendar
	}
	if _, err := os.Stat(path); err == nil {
		return false, nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return false, fmt.Errorf("stat config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return false, fmt.Errorf("ensure config dir: %w", err)
	}
	contents := fmt.Sprintf(defaultConfigYAML, businessID, yearType)
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		return false, fmt.Errorf("write config: %w", err)
	}
	return true, nil
}
