// Package config provides configuration loading and management for pifs.
// It handles loading configuration from YAML files and provides default values.
package config

import (
	"fmt"
	"os"
	"runtime"

	"gopkg.in/yaml.v3"

	"pifs/internal/atomicfile"
	"pifs/pkg/fractal"
)

// Config represents the application configuration loaded from YAML
type Config struct {
	// Encoding parameters
	Encoding struct {
		// NumCores specifies how many workers search target blocks in parallel
		NumCores int `yaml:"numCores"`

		// SmallBlock is the side of the target blocks in pixels
		SmallBlock int `yaml:"smallBlock"`

		// LargeBlock is the side of the candidate blocks in pixels
		LargeBlock int `yaml:"largeBlock"`

		// InputScale shrinks the input image by this integer factor before encoding
		InputScale int `yaml:"inputScale"`
	} `yaml:"encoding"`

	// Decoding parameters
	Decoding struct {
		// Iterations is the number of fixed-point steps
		Iterations int `yaml:"iterations"`

		// Quality is the supersampling factor used while decoding
		Quality int `yaml:"quality"`
	} `yaml:"decoding"`

	// Output parameters
	Output struct {
		// Compress zstd-compresses the container body
		Compress bool `yaml:"compress"`

		// Verbose controls the level of logging output
		Verbose bool `yaml:"verbose"`

		// DebugDir receives the partition grid images when set
		DebugDir string `yaml:"debugDir"`
	} `yaml:"output"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Encoding.NumCores = runtime.NumCPU()
	cfg.Encoding.SmallBlock = 8
	cfg.Encoding.LargeBlock = 16
	cfg.Encoding.InputScale = 1

	cfg.Decoding.Iterations = 15
	cfg.Decoding.Quality = 5

	cfg.Output.Compress = false
	cfg.Output.Verbose = true
	cfg.Output.DebugDir = ""

	return cfg
}

// Validate reports the first setting the encoder or decoder cannot work with
func (c *Config) Validate() error {
	if err := c.EncoderOptions().Validate(); err != nil {
		return fmt.Errorf("invalid encoding settings: %w", err)
	}
	if c.Encoding.InputScale < 1 {
		return fmt.Errorf("invalid encoding settings: inputScale must be at least 1, got %d", c.Encoding.InputScale)
	}
	if err := c.DecodeOptions().Validate(); err != nil {
		return fmt.Errorf("invalid decoding settings: %w", err)
	}
	return nil
}

// EncoderOptions returns the encoder parameters held by c
func (c *Config) EncoderOptions() fractal.EncoderOptions {
	return fractal.EncoderOptions{
		NumCores:   c.Encoding.NumCores,
		SmallBlock: c.Encoding.SmallBlock,
		LargeBlock: c.Encoding.LargeBlock,
	}
}

// DecodeOptions returns the decoder parameters held by c
func (c *Config) DecodeOptions() fractal.DecodeOptions {
	return fractal.DecodeOptions{
		Iterations: c.Decoding.Iterations,
		Quality:    c.Decoding.Quality,
	}
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	// Check if config file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("error in config file %s: %w", configPath, err)
	}
	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	if err := atomicfile.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	cfg := DefaultConfig()
	return SaveConfig(cfg, configPath)
}
