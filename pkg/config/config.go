// Package config provides YAML-based configuration loading with environment
// variable expansion and an environment overlay.
package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/caarlos0/env/v11"
	"github.com/mitchellh/go-homedir"
	"gopkg.in/yaml.v3"
)

// Validator is an interface for configuration validation.
type Validator interface {
	Validate() error
}

// PathExpander is implemented by configurations holding filesystem paths
// that may start with "~".
type PathExpander interface {
	ExpandPaths() error
}

// Load loads configuration from a YAML file with environment variable
// expansion, then applies `env` struct tags, expands paths and validates.
func Load[T any](filename string, target *T) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", filename, err)
	}

	expandedData := os.ExpandEnv(string(data))

	if err := yaml.Unmarshal([]byte(expandedData), target); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", filename, err)
	}

	return finish(target)
}

// LoadIfExists is Load for an optional file: when filename does not exist
// target keeps its defaults and only the environment overlay is applied.
func LoadIfExists[T any](filename string, target *T) error {
	if _, err := os.Stat(filename); errors.Is(err, os.ErrNotExist) {
		return finish(target)
	}
	return Load(filename, target)
}

func finish[T any](target *T) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("failed to parse environment: %w", err)
	}

	if expander, ok := any(target).(PathExpander); ok {
		if err := expander.ExpandPaths(); err != nil {
			return fmt.Errorf("failed to expand paths: %w", err)
		}
	}

	if validator, ok := any(target).(Validator); ok {
		if err := validator.Validate(); err != nil {
			return fmt.Errorf("config validation failed: %w", err)
		}
	}

	return nil
}

// ExpandPath replaces a leading "~" with the current user's home directory.
func ExpandPath(p string) (string, error) {
	return homedir.Expand(p)
}
