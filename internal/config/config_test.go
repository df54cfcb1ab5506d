package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"quarterplan/internal/quarter"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), FileName))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Year() != quarter.Calendar {
		t.Fatalf("expected calendar default, got %s", cfg.Year())
	}
	if cfg.Capacity.PerQuarter != 5 || cfg.Capacity.PerAssignee != 3 {
		t.Fatalf("unexpected capacity %+v", cfg.Capacity)
	}
	if cfg.DebounceDelay() != 500*time.Millisecond {
		t.Fatalf("unexpected debounce %s", cfg.DebounceDelay())
	}
	if len(cfg.Links()) != 2 {
		t.Fatalf("expected default links")
	}
}

func TestParseOverridesDefaults(t *testing.T) {
	yml := `
business_id: acme
year_type: fiscal
capacity:
  per_quarter: 4
sync:
  debounce: 2s
target_links:
  - {percent: ebitda_margin, absolute: ebitda, base: revenue}
`
	cfg, err := Parse([]byte(yml), "quarterplan.yml")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.BusinessID != "acme" || cfg.Year() != quarter.Fiscal {
		t.Fatalf("unexpected header %+v", cfg)
	}
	if cfg.Capacity.PerQuarter != 4 || cfg.Capacity.PerAssignee != 3 {
		t.Fatalf("expected per_quarter override with per_assignee default, got %+v", cfg.Capacity)
	}
	if cfg.DebounceDelay() != 2*time.Second {
		t.Fatalf("unexpected debounce %s", cfg.DebounceDelay())
	}
	if links := cfg.Links(); len(links) != 1 || links[0].Absolute != "ebitda" {
		t.Fatalf("unexpected links %+v", links)
	}
}

func TestParseAggregatesErrors(t *testing.T) {
	yml := `
year_type: lunar
capacity:
  per_quarter: 0
  per_assignee: -1
sync:
  debounce: soon
log_level: loud
target_links:
  - {percent: margin}
`
	_, err := Parse([]byte(yml), "bad.yml")
	var ves ValidationErrors
	if !errors.As(err, &ves) {
		t.Fatalf("expected ValidationErrors, got %v", err)
	}
	want := map[string]bool{
		"year_type":             false,
		"capacity.per_quarter":  false,
		"capacity.per_assignee": false,
		"sync.debounce":         false,
		"log_level":             false,
		"target_links[0]":       false,
	}
	for _, ve := range ves {
		if _, ok := want[ve.Field]; ok {
			want[ve.Field] = true
		}
	}
	for field, seen := range want {
		if !seen {
			t.Fatalf("expected error on %s, got %v", field, err)
		}
	}
}

func TestWriteDefaultRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ws", FileName)

	wrote, err := WriteDefault(path, "acme", quarter.Fiscal)
	if err != nil || !wrote {
		t.Fatalf("write default: wrote=%v err=%v", wrote, err)
	}
	wrote, err = WriteDefault(path, "other", "")
	if err != nil || wrote {
		t.Fatalf("expected existing file to be kept: wrote=%v err=%v", wrote, err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.BusinessID != "acme" {
		t.Fatalf("expected business acme, got %q", cfg.BusinessID)
	}
	if cfg.Year() != quarter.Fiscal {
		t.Fatalf("expected fiscal year type, got %q", cfg.YearType)
	}

	if err := os.WriteFile(path, []byte("capacity: ["), 0o644); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("expected yaml error")
	}
}
