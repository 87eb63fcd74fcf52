package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/san-kum/drop/internal/integrators"
	"github.com/san-kum/drop/internal/metrics"
	"github.com/san-kum/drop/internal/physics"
)

const (
	DefaultStepTime      = 0.003
	DefaultODEMethod     = "rk4"
	DefaultListen        = "127.0.0.1:5555"
	DefaultStatePath     = "/state"
	DefaultControlPath   = "/control"
	DefaultMetricsPath   = "/metrics"
	DefaultRecordEvery   = 10
	DefaultLogLevel      = "info"
	DefaultPublishBuffer = 64
	DefaultMaxSpeed      = 1e4
	DefaultMaxRange      = 1e6
)

var ErrInvalidConfig = errors.New("invalid config")

type Config struct {
	StepTime      float64 `yaml:"step_time"`
	ODEMethod     string  `yaml:"ode_method"`
	Gravity       float64 `yaml:"gravity"`
	AirDensity    float64 `yaml:"air_density"`
	GentlyPush    float64 `yaml:"gently_push"`
	FrictionEps   float64 `yaml:"friction_eps"`
	Listen        string  `yaml:"listen"`
	StatePath     string  `yaml:"state_path"`
	ControlPath   string  `yaml:"control_path"`
	MetricsPath   string  `yaml:"metrics_path"`
	RecordDir     string  `yaml:"record_dir"`
	RecordEvery   int     `yaml:"record_every"`
	LogLevel      string  `yaml:"log_level"`
	PublishBuffer int     `yaml:"publish_buffer"`
	MaxSpeed      float64 `yaml:"stability_max_speed"`
	MaxRange      float64 `yaml:"stability_max_range"`
}

func DefaultConfig() *Config {
	return &Config{
		StepTime:      DefaultStepTime,
		ODEMethod:     DefaultODEMethod,
		Gravity:       physics.DefaultGravity,
		AirDensity:    physics.DefaultAirDensity,
		GentlyPush:    physics.DefaultGentlyPush,
		FrictionEps:   physics.DefaultFrictionEps,
		Listen:        DefaultListen,
		StatePath:     DefaultStatePath,
		ControlPath:   DefaultControlPath,
		MetricsPath:   DefaultMetricsPath,
		RecordEvery:   DefaultRecordEvery,
		LogLevel:      DefaultLogLevel,
		PublishBuffer: DefaultPublishBuffer,
		MaxSpeed:      DefaultMaxSpeed,
		MaxRange:      DefaultMaxRange,
	}
}

// Load reads a yaml file over base. Fields the file leaves out keep the base
// value; a nil base means DefaultConfig. base itself is not modified.
func Load(path string, base *Config) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if base != nil {
		cfg = base.Clone()
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes cfg as yaml. The result is loadable with Load.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Clone returns an independent copy, so presets are never mutated by flag
// overrides.
func (c *Config) Clone() *Config {
	cp := *c
	return &cp
}

func (c *Config) Validate() error {
	switch {
	case c.StepTime <= 0:
		return fmt.Errorf("%w: step_time %g must be positive", ErrInvalidConfig, c.StepTime)
	case c.Gravity < 0:
		return fmt.Errorf("%w: gravity %g is negative", ErrInvalidConfig, c.Gravity)
	case c.AirDensity < 0:
		return fmt.Errorf("%w: air_density %g is negative", ErrInvalidConfig, c.AirDensity)
	case c.GentlyPush < 0:
		return fmt.Errorf("%w: gently_push %g is negative", ErrInvalidConfig, c.GentlyPush)
	case c.FrictionEps < 0:
		return fmt.Errorf("%w: friction_eps %g is negative", ErrInvalidConfig, c.FrictionEps)
	case c.RecordEvery < 1:
		return fmt.Errorf("%w: record_every %d must be at least 1", ErrInvalidConfig, c.RecordEvery)
	case c.PublishBuffer < 1:
		return fmt.Errorf("%w: publish_buffer %d must be at least 1", ErrInvalidConfig, c.PublishBuffer)
	case c.MaxSpeed < 0 || c.MaxRange < 0:
		return fmt.Errorf("%w: stability bounds must not be negative", ErrInvalidConfig)
	}
	if _, err := integrators.Get(c.ODEMethod); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	return nil
}

// Level parses log_level (debug, info, warn, error).
func (c *Config) Level() (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(c.LogLevel))); err != nil {
		return 0, fmt.Errorf("%w: log_level %q", ErrInvalidConfig, c.LogLevel)
	}
	return lvl, nil
}

func (c *Config) Model() *physics.Model {
	return &physics.Model{Gravity: c.Gravity, AirDensity: c.AirDensity}
}

// Bounds is the stability envelope; zero disables a bound.
func (c *Config) Bounds() metrics.Bounds {
	return metrics.Bounds{MaxSpeed: c.MaxSpeed, MaxRange: c.MaxRange}
}

func (c *Config) Resolver() physics.Resolver {
	return physics.Resolver{GentlyPush: c.GentlyPush, FrictionEps: c.FrictionEps}
}
