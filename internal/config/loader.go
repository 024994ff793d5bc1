package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"stevedore/pkg/logging"

	"gopkg.in/yaml.v3"
)

const (
	userConfigDir  = ".config/stevedore"
	configFileName = "config.yaml"
)

// GetDefaultConfigPathOrPanic returns the user-level configuration directory.
func GetDefaultConfigPathOrPanic() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		panic(fmt.Errorf("could not determine user config directory: %w", err))
	}

	return filepath.Join(homeDir, userConfigDir)
}

// LoadConfig loads configuration from a single specified directory.
// The directory should contain config.yaml and optionally a servers/
// subdirectory with declarative server definitions. Defaults are applied
// first, then the file, then environment overrides.
func LoadConfig(configPath string) (Config, error) {
	configFilePath := filepath.Join(configPath, configFileName)
	config := GetDefaultConfig()

	data, err := os.ReadFile(configFilePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logging.Info("ConfigLoader", "No config.yaml found at %s, using defaults", configFilePath)
			applyEnvOverrides(&config)
			return config, nil
		}
		logging.Info("ConfigLoader", "Error loading config.yaml from %s: %s", configFilePath, err)
		return Config{}, err
	}
	err = yaml.Unmarshal(data, &config)
	if err != nil {
		// config malformed
		return Config{}, fmt.Errorf("error loading config from %s: %w", configFilePath, err)
	}
	applyEnvOverrides(&config)
	logging.Info("ConfigLoader", "Loaded configuration from %s", configFilePath)
	return config, nil
}

// applyEnvOverrides layers the environment surface over the loaded file.
// DOCKER_HOST is the same variable the docker CLI honors.
func applyEnvOverrides(config *Config) {
	if v := os.Getenv("DOCKER_HOST"); v != "" {
		config.Docker.Host = v
	}
	if v := os.Getenv("DOCKER_TIMEOUT"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			config.Docker.TimeoutSeconds = secs
		}
	}
	if v := os.Getenv("MCP_PYTHON_IMAGE"); v != "" {
		config.Docker.PythonImage = v
	}
	if v := os.Getenv("MCP_NODE_IMAGE"); v != "" {
		config.Docker.NodeImage = v
	}
	if v := os.Getenv("DATA_DIR"); v != "" {
		config.Storage.DataDir = v
	}
	if v := os.Getenv("WEB_HOST"); v != "" {
		config.Gateway.Host = v
	}
	if v := os.Getenv("WEB_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil && port > 0 {
			config.Gateway.Port = port
		}
	}
	if v := os.Getenv("MCP_PATH"); v != "" {
		config.Gateway.Path = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		config.Logging.Level = v
	}
}
