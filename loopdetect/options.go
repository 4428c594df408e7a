package loopdetect

import (
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Options configures an analysis run.
type Options struct {
	// Dispatch
	Threshold       int // First history length that is analyzed; later checks double it (default: 20)
	StreamThreshold int // Consecutive null tests on a stream before stream mode (default: 100)

	// Budget
	Timeout  time.Duration // Wall-clock budget for the whole run (default: 4s)
	MaxSteps int           // Hook boundary budget, 0 for none (default: 0)

	// Limits
	MaxExprDepth int // Symbolic expressions deeper than this become unknown (default: 32)
	MaxCallDepth int // Host call depth before a stack overflow error (default: 50000)

	// Logging configuration
	LogLevel  string    // "error", "warn", "info", "debug" (default: "warn")
	LogWriter io.Writer // Destination for logs, os.Stderr when nil
}

// DefaultOptions returns the default configuration for analysis.
func DefaultOptions() Options {
	return Options{
		Threshold:       20,
		StreamThreshold: 100,
		Timeout:         4 * time.Second,
		MaxSteps:        0,
		MaxExprDepth:    32,
		MaxCallDepth:    50000,
		LogLevel:        "warn",
	}
}

// Validate reports the first option that cannot drive an analysis.
func (o Options) Validate() error {
	switch {
	case o.Threshold < 1:
		return fmt.Errorf("threshold must be positive, got %d", o.Threshold)
	case o.StreamThreshold < 1:
		return fmt.Errorf("stream threshold must be positive, got %d", o.StreamThreshold)
	case o.Timeout <= 0:
		return fmt.Errorf("timeout must be positive, got %s", o.Timeout)
	case o.MaxSteps < 0:
		return fmt.Errorf("max steps must not be negative, got %d", o.MaxSteps)
	case o.MaxExprDepth < 1:
		return fmt.Errorf("max expression depth must be positive, got %d", o.MaxExprDepth)
	case o.MaxCallDepth < 1:
		return fmt.Errorf("max call depth must be positive, got %d", o.MaxCallDepth)
	}
	return nil
}

// fileOptions is the YAML form of Options. Unset keys keep their defaults.
type fileOptions struct {
	Threshold       *int    `yaml:"threshold"`
	StreamThreshold *int    `yaml:"streamThreshold"`
	Timeout         *string `yaml:"timeout"`
	MaxSteps        *int    `yaml:"maxSteps"`
	MaxExprDepth    *int    `yaml:"maxExprDepth"`
	MaxCallDepth    *int    `yaml:"maxCallDepth"`
	LogLevel        *string `yaml:"logLevel"`
}

// ParseOptions reads YAML configuration on top of DefaultOptions.
// Durations use Go syntax, for example "1500ms".
func ParseOptions(data []byte) (Options, error) {
	opts := DefaultOptions()
	var f fileOptions
	if err := yaml.Unmarshal(data, &f); err != nil {
		return opts, fmt.Errorf("failed to parse options: %w", err)
	}
	setInt(&opts.Threshold, f.Threshold)
	setInt(&opts.StreamThreshold, f.StreamThreshold)
	setInt(&opts.MaxSteps, f.MaxSteps)
	setInt(&opts.MaxExprDepth, f.MaxExprDepth)
	setInt(&opts.MaxCallDepth, f.MaxCallDepth)
	if f.LogLevel != nil {
		opts.LogLevel = *f.LogLevel
	}
	if f.Timeout != nil {
		d, err := time.ParseDuration(*f.Timeout)
		if err != nil {
			return opts, fmt.Errorf("invalid timeout %q: %w", *f.Timeout, err)
		}
		opts.Timeout = d
	}
	if err := opts.Validate(); err != nil {
		return opts, fmt.Errorf("invalid options: %w", err)
	}
	return opts, nil
}

// LoadOptions reads a YAML configuration file.
func LoadOptions(path string) (Options, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return DefaultOptions(), fmt.Errorf("failed to read options: %w", err)
	}
	return ParseOptions(data)
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}
