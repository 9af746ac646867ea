package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestFromYAML(t *testing.T) {
	cfg, err := FromYAML([]byte(`
scheduling:
  max_hours_per_day: 5
  default_algorithm: balanced
calendar:
  holidays: ["2026-12-25"]
`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Scheduling.MaxHoursPerDay != 5 {
		t.Fatalf("expected 5 hours per day, got %v", cfg.Scheduling.MaxHoursPerDay)
	}
	if cfg.Scheduling.DefaultAlgorithm != "balanced" {
		t.Fatalf("expected balanced, got %s", cfg.Scheduling.DefaultAlgorithm)
	}
	// Omitted fields keep their defaults.
	if cfg.Scheduling.EndOfDayHour != 17 {
		t.Fatalf("expected default end of day 17, got %d", cfg.Scheduling.EndOfDayHour)
	}
	if cfg.Holidays() == nil {
		t.Fatal("expected a holiday checker")
	}
}

func TestFromYAMLValidation(t *testing.T) {
	cases := []struct {
		name string
		yaml string
		want string
	}{
		{"bad algorithm", "scheduling:\n  default_algorithm: fastest\n", "unknown algorithm"},
		{"bad hours", "scheduling:\n  max_hours_per_day: -1\n", "max_hours_per_day"},
		{"bad end of day", "scheduling:\n  end_of_day_hour: 25\n", "end_of_day_hour"},
		{"bad holiday", "calendar:\n  holidays: [\"christmas\"]\n", "holidays"},
		{"bad yaml", "scheduling: [", "invalid config yaml"},
	}
	for _, tc := range cases {
		_, err := FromYAML([]byte(tc.yaml))
		if err == nil || !strings.Contains(err.Error(), tc.want) {
			t.Fatalf("%s: expected error containing %q, got %v", tc.name, tc.want, err)
		}
	}
}

func TestDefaultValidates(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("default config must validate: %v", err)
	}
	if _, err := FromYAML([]byte(GenerateDefault())); err != nil {
		t.Fatalf("generated template must parse: %v", err)
	}
}

func TestLoadOptional(t *testing.T) {
	dir := t.TempDir()
	cfg, err := LoadOptional(dir)
	if err != nil {
		t.Fatalf("missing file must fall back to defaults: %v", err)
	}
	if cfg.Scheduling.MaxHoursPerDay != 6 {
		t.Fatalf("unexpected default %v", cfg.Scheduling.MaxHoursPerDay)
	}

	if err := os.WriteFile(filepath.Join(dir, "planline.yml"), []byte("scheduling:\n  max_hours_per_day: 3\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err = LoadOptional(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Scheduling.MaxHoursPerDay != 3 {
		t.Fatalf("expected 3 hours per day, got %v", cfg.Scheduling.MaxHoursPerDay)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(t.TempDir())
	if err == nil || !strings.Contains(err.Error(), "config init") {
		t.Fatalf("expected pointer to config init, got %v", err)
	}
}
