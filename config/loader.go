// Package config loads access policy configuration files and watches them
// for changes.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/vyrodovalexey/avaccess/policy"
)

// Load loads and validates a YAML policy configuration file.
func Load(path string) (*policy.Config, error) {
	if path == "" {
		return nil, fmt.Errorf("policy file path is empty")
	}

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("policy file does not exist: %s", path)
		}
		return nil, fmt.Errorf("failed to stat policy file: %w", err)
	}

	if info.IsDir() {
		return nil, fmt.Errorf("policy path is a directory, not a file: %s", path)
	}

	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("failed to read policy file: %w", err)
	}

	var cfg policy.Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse policy file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid policy file: %w", err)
	}

	return &cfg, nil
}
