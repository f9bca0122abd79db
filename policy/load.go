package policy

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadFile reads a Config from a YAML file. Environment variables in the file
// are expanded before decoding. Durations use Go syntax ("1s", "250ms").
func LoadFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read retry config: %w", err)
	}
	return Parse(data)
}

// Parse decodes a YAML document into a normalized Config.
func Parse(data []byte) (Config, error) {
	var cfg Config
	expanded := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse retry config: %w", err)
	}
	cfg.Meta.Source = SourceFile

	normalized, err := cfg.Normalize()
	if err != nil {
		return Config{}, err
	}
	return normalized, nil
}
