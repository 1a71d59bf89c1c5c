package framework

import (
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the explicit configuration a host passes when constructing a
// Framework — the highest-precedence source in the properties store.
type Config struct {
	// SymbolicName names the system bundle, for diagnostics.
	SymbolicName string `yaml:"symbolicName"`

	// Properties seeds the property store and takes precedence over the
	// process environment for any name also listed in EnvNames.
	Properties map[string]string `yaml:"properties"`

	// EnvNames lists property names that should fall back to the process
	// environment when not present in Properties.
	EnvNames []string `yaml:"envNames"`
}

// LoadConfig reads and parses a YAML config file in the shape Config
// declares.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
