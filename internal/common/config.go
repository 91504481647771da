package common

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/jo-hoe/gengallery/internal/core"
)

// ConfigPath returns CONFIG_PATH or config.yaml in the working directory.
func ConfigPath() string {
	// First check if config path is provided via environment variable
	if configPath := os.Getenv("CONFIG_PATH"); configPath != "" {
		return configPath
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "config.yaml"
	}
	return filepath.Join(cwd, "config.yaml")
}

// LoadServiceConfig loads configPath, falling back to defaults and
// environment when the file does not exist.
func LoadServiceConfig(configPath string) (*core.ServiceConfig, error) {
	if _, err := os.Stat(configPath); errors.Is(err, fs.ErrNotExist) {
		slog.Info("config file not found, using defaults and environment", "path", configPath)
		return core.LoadConfigFromEnv()
	}
	return core.LoadConfig(configPath)
}
