package forwardauth

import (
	"fmt"
	"os"

	"sigs.k8s.io/yaml"
)

// fileConfig is the optional YAML config file. It only carries the values
// that are awkward to pass through a single environment variable.
type fileConfig struct {
	BaseURL        string   `json:"baseURL,omitempty"`
	LoginPath      string   `json:"loginPath,omitempty"`
	TrustedDomains []string `json:"trustedDomains,omitempty"`
}

// loadConfigFile reads the config file at path. An empty path is not an error.
func loadConfigFile(path string) (*fileConfig, error) {
	if path == "" {
		return nil, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s %q: %w", EnvConfigFile, path, err)
	}

	var cfg fileConfig
	if err := yaml.UnmarshalStrict(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s %q: %w", EnvConfigFile, path, err)
	}
	return &cfg, nil
}
