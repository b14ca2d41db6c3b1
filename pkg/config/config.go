// Package config provides configuration loading and management for margincalc.
// It handles loading configuration from YAML files and provides default values.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"margincalc/internal/models"
)

// Evaluator kinds accepted in Evaluator.Kind
const (
	EvaluatorAnalytic = "analytic"
	EvaluatorCommand  = "command"
)

// Config represents the application configuration loaded from YAML
type Config struct {
	// Sweep parameters
	Sweep struct {
		// SystematicErrorMax is the exclusive upper bound of the systematic error sweep in mm
		SystematicErrorMax float64 `yaml:"systematicErrorMax"`

		// RandomErrorMax is the exclusive upper bound of the random error sweep in mm
		RandomErrorMax float64 `yaml:"randomErrorMax"`

		// GrowthMax is the exclusive upper bound of the dose growth sweep in mm
		GrowthMax float64 `yaml:"growthMax"`

		// Step sizes in mm, resolved to 0.1mm
		SystematicStep float64 `yaml:"systematicStep"`
		RandomStep     float64 `yaml:"randomStep"`
		GrowthStep     float64 `yaml:"growthStep"`

		// GrowthMode is Dilation or Scaling
		GrowthMode models.GrowthMode `yaml:"growthMode"`

		// ROIRadius is the region of interest radius per axis in mm, used by Scaling
		ROIRadius struct {
			X float64 `yaml:"x"`
			Y float64 `yaml:"y"`
			Z float64 `yaml:"z"`
		} `yaml:"roiRadius"`

		// NumberOfSimulations is forwarded to the coverage evaluator
		NumberOfSimulations int `yaml:"numberOfSimulations"`

		// NumberOfFractions is forwarded to the coverage evaluator
		NumberOfFractions int `yaml:"numberOfFractions"`
	} `yaml:"sweep"`

	// Processing parameters
	Processing struct {
		// Workers is how many (systematic, random) pairs are swept at once
		Workers int `yaml:"workers"`
	} `yaml:"processing"`

	// Evaluator selects how coverage is computed
	Evaluator struct {
		// Kind is "analytic" or "command"
		Kind string `yaml:"kind"`

		// Command and Args run the external dose pipeline when Kind is "command"
		Command string   `yaml:"command"`
		Args    []string `yaml:"args"`

		// Cache memoizes repeated queries
		Cache bool `yaml:"cache"`
	} `yaml:"evaluator"`

	// Output parameters
	Output struct {
		// File is where the result table is exported; empty disables export
		File string `yaml:"file"`

		// Verbose controls the level of logging output
		Verbose bool `yaml:"verbose"`
	} `yaml:"output"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}
	sweep := models.DefaultSweepConfiguration()

	// Set default sweep parameters
	cfg.Sweep.SystematicErrorMax = sweep.SystematicErrorMax
	cfg.Sweep.RandomErrorMax = sweep.RandomErrorMax
	cfg.Sweep.GrowthMax = sweep.GrowthMax
	cfg.Sweep.SystematicStep = sweep.SystematicStep
	cfg.Sweep.RandomStep = sweep.RandomStep
	cfg.Sweep.GrowthStep = sweep.GrowthStep
	cfg.Sweep.GrowthMode = sweep.GrowthMode
	cfg.Sweep.ROIRadius.X = sweep.ROIRadius.X
	cfg.Sweep.ROIRadius.Y = sweep.ROIRadius.Y
	cfg.Sweep.ROIRadius.Z = sweep.ROIRadius.Z
	cfg.Sweep.NumberOfSimulations = sweep.NumberOfSimulations
	cfg.Sweep.NumberOfFractions = sweep.NumberOfFractions

	// Sweep sequentially; the dose pipeline is rarely safe to run in parallel
	cfg.Processing.Workers = 1

	cfg.Evaluator.Kind = EvaluatorAnalytic
	cfg.Evaluator.Cache = false

	cfg.Output.File = "margins.csv"
	cfg.Output.Verbose = false

	return cfg
}

// SweepConfiguration converts the sweep section into the engine's input
func (c *Config) SweepConfiguration() models.SweepConfiguration {
	return models.SweepConfiguration{
		SystematicErrorMax: c.Sweep.SystematicErrorMax,
		RandomErrorMax:     c.Sweep.RandomErrorMax,
		GrowthMax:          c.Sweep.GrowthMax,
		SystematicStep:     c.Sweep.SystematicStep,
		RandomStep:         c.Sweep.RandomStep,
		GrowthStep:         c.Sweep.GrowthStep,
		GrowthMode:         c.Sweep.GrowthMode,
		ROIRadius: models.ROIRadius{
			X: c.Sweep.ROIRadius.X,
			Y: c.Sweep.ROIRadius.Y,
			Z: c.Sweep.ROIRadius.Z,
		},
		NumberOfSimulations: c.Sweep.NumberOfSimulations,
		NumberOfFractions:   c.Sweep.NumberOfFractions,
	}
}

// Validate checks the settings that are not part of the sweep itself.
// Sweep ranges are validated by the engine.
func (c *Config) Validate() error {
	switch c.Evaluator.Kind {
	case EvaluatorAnalytic:
	case EvaluatorCommand:
		if c.Evaluator.Command == "" {
			return fmt.Errorf("evaluator kind %q requires a command", c.Evaluator.Kind)
		}
	default:
		return fmt.Errorf("unknown evaluator kind %q", c.Evaluator.Kind)
	}
	if c.Processing.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", c.Processing.Workers)
	}
	return nil
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	// Check if config file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	// Read config file
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	// Parse YAML
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	// Marshal config to YAML
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	// Write to file
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	cfg := DefaultConfig()
	return SaveConfig(cfg, configPath)
}
