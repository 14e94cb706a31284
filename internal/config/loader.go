package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// expandEnvVars expands environment variables in the format ${VAR} or $VAR
func expandEnvVars(data []byte) []byte {
	return []byte(os.ExpandEnv(string(data)))
}

// DefaultConfigPaths defines the default locations to search for configuration files
var DefaultConfigPaths = []string{
	"./arachnid.yaml",
	"./configs/bot.yaml",
	"./configs/dev-bot.yaml",
	"/etc/arachnid/bot.yaml",
}

// LoadYAML decodes the file at path into out after expanding environment
// variables. Fields missing from the file keep the values already in out.
// An empty path searches DefaultConfigPaths.
func LoadYAML(path string, out any) (string, error) {
	if path == "" {
		path = FindConfigFile()
		if path == "" {
			return "", fmt.Errorf("no config file found in %v", DefaultConfigPaths)
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return path, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(expandEnvVars(data), out); err != nil {
		return path, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return path, nil
}

// FindConfigFile searches for a configuration file in default locations
func FindConfigFile() string {
	for _, path := range DefaultConfigPaths {
		if fileExists(path) {
			return path
		}
	}
	return ""
}

// fileExists checks if a file exists and is not a directory
func fileExists(filename string) bool {
	info, err := os.Stat(filename)
	if os.IsNotExist(err) {
		return false
	}
	return err == nil && !info.IsDir()
}
