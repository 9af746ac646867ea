package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"planline/internal/schedule"
)

// Config models planline.yml.
type Config struct {
	Scheduling struct {
		MaxHoursPerDay   float64 `yaml:"max_hours_per_day"`
		EndOfDayHour     int     `yaml:"end_of_day_hour"`
		DefaultAlgorithm string  `yaml:"default_algorithm"`
	} `yaml:"scheduling"`
	Calendar struct {
		// Holidays are YYYY-MM-DD dates excluded from scheduling along with
		// weekends.
		Holidays []string `yaml:"holidays"`
	} `yaml:"calendar"`
}

// Load reads and validates config from the workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with pl config init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns defaults if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Scheduling.MaxHoursPerDay <= 0 {
		return fmt.Errorf("config.scheduling.max_hours_per_day must be positive")
	}
	if c.Scheduling.EndOfDayHour < 1 || c.Scheduling.EndOfDayHour > 23 {
		return fmt.Errorf("config.scheduling.end_of_day_hour must be between 1 and 23")
	}
	if _, err := schedule.New(c.Scheduling.DefaultAlgorithm, schedule.Options{}); err != nil {
		return fmt.Errorf("config.scheduling.default_algorithm: %w", err)
	}
	for _, d := range c.Calendar.Holidays {
		if _, err := schedule.ParseDayKey(d); err != nil {
			return fmt.Errorf("config.calendar.holidays entry %q is not a YYYY-MM-DD date", d)
		}
	}
	return nil
}

// Holidays builds the holiday checker used by the optimizer.
func (c *Config) Holidays() schedule.HolidayChecker {
	if len(c.Calendar.Holidays) == 0 {
		return nil
	}
	return schedule.NewHolidayList(c.Calendar.Holidays)
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "planline.yml")
}

// Default returns the default Config struct.
func Default() *Config {
	var cfg Config
	_ = yaml.Unmarshal([]byte(defaultTemplate), &cfg)
	return &cfg
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

const defaultTemplate = `scheduling:
  max_hours_per_day: 6
  end_of_day_hour: 17
  default_algorithm: greedy

calendar:
  holidays: []
`
