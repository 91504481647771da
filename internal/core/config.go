package core

import (
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/docker/go-units"
	"gopkg.in/yaml.v3"

	"github.com/jo-hoe/gengallery/internal/backend/database"
	"github.com/jo-hoe/gengallery/internal/backend/imageprocessing"
	"github.com/jo-hoe/gengallery/internal/generation"
)

const (
	envPrefix = "GALLERY_"

	ThumbnailStoreNone  = "none"
	ThumbnailStoreRedis = "redis"
)

// CommandConfig represents a generic command configuration
type CommandConfig struct {
	Name   string         `yaml:"name"`
	Params map[string]any `yaml:",inline"`
}

type Database struct {
	Type             string `yaml:"type" env:"DATABASE_TYPE"`
	ConnectionString string `yaml:"connectionString" env:"DATABASE_CONNECTION_STRING"`
}

type ThumbnailStore struct {
	Type    string        `yaml:"type" env:"THUMBNAIL_STORE_TYPE"`
	Address string        `yaml:"address" env:"REDIS_ADDRESS"`
	TTL     time.Duration `yaml:"ttl"`
}

type Load struct {
	Concurrency int `yaml:"concurrency" env:"LOAD_CONCURRENCY"`
}

type Model struct {
	Name     string        `yaml:"name"`
	Path     string        `yaml:"path"`
	ModelURL string        `yaml:"modelUrl"`
	Timeout  time.Duration `yaml:"timeout"`
}

type Generation struct {
	Token           string  `yaml:"token" env:"GENERATION_TOKEN"`
	MaxResponseSize string  `yaml:"maxResponseSize" env:"GENERATION_MAX_RESPONSE_SIZE"`
	Models          []Model `yaml:"models"`
}

type ServiceConfig struct {
	Port           int            `yaml:"port" env:"PORT"`
	LogLevel       string         `yaml:"logLevel" env:"LOG_LEVEL"`
	MaxUploadSize  string         `yaml:"maxUploadSize" env:"MAX_UPLOAD_SIZE"`
	Database       Database       `yaml:"database"`
	Thumbnail      CommandConfig  `yaml:"thumbnail"`
	ThumbnailStore ThumbnailStore `yaml:"thumbnailStore"`
	Load           Load           `yaml:"load"`
	Generation     Generation     `yaml:"generation"`
}

// DefaultConfig returns the configuration used when no file is present
func DefaultConfig() *ServiceConfig {
	return &ServiceConfig{
		Port:          8080,
		LogLevel:      "info",
		MaxUploadSize: "20MB",
		Database: Database{
			Type:             database.TypeSQLite,
			ConnectionString: "gallery.db",
		},
		Thumbnail: CommandConfig{
			Name: imageprocessing.ThumbnailCommandName,
		},
		ThumbnailStore: ThumbnailStore{
			Type: ThumbnailStoreNone,
		},
		Load: Load{
			Concurrency: runtime.GOMAXPROCS(0),
		},
		Generation: Generation{
			MaxResponseSize: "20MB",
		},
	}
}

// LoadConfig loads configuration from the specified YAML file on top of the
// defaults, then applies GALLERY_* environment overrides
func LoadConfig(configPath string) (*ServiceConfig, error) {
	// Read the config file
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	// Parse YAML
	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", configPath, err)
	}

	return finalize(config)
}

// LoadConfigFromEnv builds the configuration from defaults and environment only
func LoadConfigFromEnv() (*ServiceConfig, error) {
	return finalize(DefaultConfig())
}

func finalize(config *ServiceConfig) (*ServiceConfig, error) {
	if err := env.ParseWithOptions(config, env.Options{Prefix: envPrefix}); err != nil {
		return nil, fmt.Errorf("failed to parse environment overrides: %w", err)
	}

	if config.Thumbnail.Name == "" {
		config.Thumbnail.Name = imageprocessing.ThumbnailCommandName
	}
	if config.ThumbnailStore.Type == "" {
		config.ThumbnailStore.Type = ThumbnailStoreNone
	}
	if config.Load.Concurrency <= 0 {
		config.Load.Concurrency = runtime.GOMAXPROCS(0)
	}

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return config, nil
}

func (config *ServiceConfig) validate() error {
	switch config.Database.Type {
	case database.TypeSQLite, database.TypeBbolt:
	default:
		return fmt.Errorf("%w: %s", database.ErrUnsupportedDatabase, config.Database.Type)
	}
	if strings.TrimSpace(config.Database.ConnectionString) == "" {
		return fmt.Errorf("database connection string is required")
	}

	if _, err := config.ThumbnailCommand(); err != nil {
		return err
	}

	switch config.ThumbnailStore.Type {
	case ThumbnailStoreNone:
	case ThumbnailStoreRedis:
		if config.ThumbnailStore.Address == "" {
			return fmt.Errorf("thumbnail store address is required for type %s", ThumbnailStoreRedis)
		}
	default:
		return fmt.Errorf("unsupported thumbnail store type: %s", config.ThumbnailStore.Type)
	}

	if _, err := config.MaxResponseSizeBytes(); err != nil {
		return err
	}
	if _, err := config.MaxUploadSizeBytes(); err != nil {
		return err
	}

	switch strings.ToLower(config.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unsupported log level: %s", config.LogLevel)
	}

	return validateModels(config.Generation.Models)
}

// validateModels ensures all model configurations have required fields
func validateModels(models []Model) error {
	seenNames := make(map[string]bool)
	seenPaths := make(map[string]bool)

	for i, model := range models {
		// Validate name is not empty
		if model.Name == "" {
			return fmt.Errorf("model at index %d has empty name", i)
		}
		if model.ModelURL == "" {
			return fmt.Errorf("model %s has empty modelUrl", model.Name)
		}

		// Validate name and path are unique
		if seenNames[model.Name] {
			return fmt.Errorf("duplicate model name: %s", model.Name)
		}
		seenNames[model.Name] = true
		if model.Path != "" {
			if seenPaths[model.Path] {
				return fmt.Errorf("duplicate model path: %s", model.Path)
			}
			seenPaths[model.Path] = true
		}
	}

	return nil
}

// ThumbnailCommand creates the configured thumbnail command from the registry
func (config *ServiceConfig) ThumbnailCommand() (*imageprocessing.ThumbnailCommand, error) {
	command, err := imageprocessing.DefaultRegistry.Create(config.Thumbnail.Name, config.Thumbnail.Params)
	if err != nil {
		return nil, fmt.Errorf("invalid thumbnail configuration: %w", err)
	}
	thumbnail, ok := command.(*imageprocessing.ThumbnailCommand)
	if !ok {
		return nil, fmt.Errorf("command %s does not produce thumbnails", config.Thumbnail.Name)
	}
	return thumbnail, nil
}

// MaxResponseSizeBytes parses the human readable generation size limit, e.g. "20MB"
func (config *ServiceConfig) MaxResponseSizeBytes() (int64, error) {
	return parseSize("generation maxResponseSize", config.Generation.MaxResponseSize)
}

// MaxUploadSizeBytes parses the human readable request body limit for uploads
func (config *ServiceConfig) MaxUploadSizeBytes() (int64, error) {
	return parseSize("maxUploadSize", config.MaxUploadSize)
}

func parseSize(name string, value string) (int64, error) {
	size, err := units.FromHumanSize(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", name, value, err)
	}
	if size <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %q", name, value)
	}
	return size, nil
}

// GenerationModels converts the configured models for the generation client
func (config *ServiceConfig) GenerationModels() []generation.Model {
	models := make([]generation.Model, 0, len(config.Generation.Models))
	for _, m := range config.Generation.Models {
		models = append(models, generation.Model{
			Name:     m.Name,
			Path:     m.Path,
			ModelURL: m.ModelURL,
			Timeout:  m.Timeout,
		})
	}
	return models
}
