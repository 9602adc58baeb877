package config

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/nao1215/scopecrawl/internal/model"
)

// DefaultConfigFile is the default configuration file name.
const DefaultConfigFile = ".scopecrawl"

// LoadConfigFile loads a YAML configuration file. Options absent from the
// file keep the values of base.
// If the file does not exist, it returns ErrConfigNotFound.
func LoadConfigFile(path string, base model.Options) (*File, error) {
	data, err := os.ReadFile(path) //nolint:gosec // User-provided config path is intentional
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrConfigNotFound
		}
		return nil, err
	}

	cf := File{Options: base.Clone()}
	if err := yaml.Unmarshal(data, &cf); err != nil {
		return nil, err
	}

	allowed, err := cf.BuildAllowedResources()
	if err != nil {
		return nil, err
	}
	if allowed != nil {
		cf.Options.AllowedResources = allowed
	}

	return &cf, nil
}

// FindConfigFile searches for the configuration file in the following order:
// 1. If configPath is specified, use it directly
// 2. Look for .scopecrawl in the current directory
// 3. Look for .scopecrawl in the user's home directory
// 4. Look for config.yaml in the XDG config directory
//
// Returns the path to the configuration file if found, or empty string if not found.
func FindConfigFile(configPath string) string {
	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}
		return ""
	}

	var candidates []string
	if cwd, err := os.Getwd(); err == nil {
		candidates = append(candidates, filepath.Join(cwd, DefaultConfigFile))
	}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, DefaultConfigFile))
	}
	candidates = append(candidates, filepath.Join(XDGConfigDir(), "config.yaml"))

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}
