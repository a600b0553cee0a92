package config

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config is the cdevd daemon configuration.
type Config struct {
	// Rules configures where rule files are loaded from.
	Rules RulesConfig `yaml:"rules"`

	// Sysfs is the sysfs mount point. Overridden in tests.
	Sysfs string `yaml:"sysfs"`

	// Store configures the auxiliary per-device state store.
	Store StoreConfig `yaml:"store"`

	// CGroups configures container control-group integration.
	CGroups CGroupsConfig `yaml:"cgroups"`

	// Log configures logging.
	Log LogConfig `yaml:"log"`

	// Metrics configures the Prometheus endpoint.
	Metrics MetricsConfig `yaml:"metrics"`

	// Tracing configures OpenTelemetry export.
	Tracing TracingConfig `yaml:"tracing"`
}

// RulesConfig locates and controls rule files.
type RulesConfig struct {
	// FilterPaths are files or directories with filter rules, loaded in
	// order (directory contents in lexical filename order).
	FilterPaths []string `yaml:"filter_paths" validate:"required,min=1"`

	// NodePaths are files or directories with node rules.
	NodePaths []string `yaml:"node_paths"`

	// Watch reloads rules when the files change.
	Watch bool `yaml:"watch"`
}

// StoreConfig selects the CENV state backend.
type StoreConfig struct {
	// Backend is "memory" or "sqlite".
	Backend string `yaml:"backend" validate:"oneof=memory sqlite"`

	// Path is the database file, required for the sqlite backend.
	Path string `yaml:"path" validate:"required_if=Backend sqlite"`
}

// CGroupsConfig configures control-group managers.
type CGroupsConfig struct {
	// LXCRoot is the devices-controller directory for LXC containers.
	// Empty selects the default location.
	LXCRoot string `yaml:"lxc_root"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" validate:"omitempty,oneof=trace debug info warn error fatal"`
	Format string `yaml:"format" validate:"omitempty,oneof=console json"`
	Output string `yaml:"output"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled       bool   `yaml:"enabled"`
	ListenAddress string `yaml:"listen_address" validate:"required_if=Enabled true"`
}

// TracingConfig configures OpenTelemetry export.
type TracingConfig struct {
	Enabled      bool    `yaml:"enabled"`
	Exporter     string  `yaml:"exporter" validate:"omitempty,oneof=otlp stdout none"`
	Endpoint     string  `yaml:"endpoint"`
	SamplingRate float64 `yaml:"sampling_rate" validate:"gte=0,lte=1"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Rules: RulesConfig{
			FilterPaths: []string{"/etc/cdev/rules.d"},
			NodePaths:   []string{"/etc/cdev/node-rules.d"},
			Watch:       true,
		},
		Store: StoreConfig{
			Backend: "memory",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
			Output: "stderr",
		},
		Metrics: MetricsConfig{
			Enabled:       false,
			ListenAddress: ":9090",
		},
		Tracing: TracingConfig{
			Exporter:     "none",
			SamplingRate: 1,
		},
	}
}

// Load reads a YAML config file over the defaults and validates the
// result.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the configuration against its struct constraints.
func (c *Config) Validate() error {
	return validator.New().Struct(c)
}
