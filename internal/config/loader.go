package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// loadYAMLInto reads path, expands ${VAR}/$VAR references against the
// process environment (matching the teacher's pre-expansion convention
// in internal/config/loader.go), and unmarshals the result over cfg. File
// values set fields; applyEnv runs afterward and always takes precedence.
func loadYAMLInto(cfg *Config, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	expanded := os.ExpandEnv(string(raw))
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}
