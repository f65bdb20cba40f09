package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// ServerConfig contains HTTP listener configuration
type ServerConfig struct {
	Port            int           `yaml:"port" validate:"required,min=1,max=65535"`
	ReadTimeout     time.Duration `yaml:"read_timeout" validate:"min=0"`
	WriteTimeout    time.Duration `yaml:"write_timeout" validate:"min=0"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" validate:"min=0"`
	MaxBodyBytes    int64         `yaml:"max_body_bytes" validate:"min=1024"`
	MaxBatchSize    int           `yaml:"max_batch_size" validate:"min=1,max=1000"`
}

// StorageConfig points at the SQLite database holding received entries
type StorageConfig struct {
	Path string `yaml:"path" validate:"required"`
}

// SearchConfig controls the full-text index. An empty IndexPath keeps the
// index in memory.
type SearchConfig struct {
	Enabled   bool   `yaml:"enabled"`
	IndexPath string `yaml:"index_path"`
}

type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled"`
	RequestsPerMinute int  `yaml:"requests_per_minute" validate:"min=1"`
	BurstSize         int  `yaml:"burst_size" validate:"min=1"`
}

type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins" validate:"min=1"`
}

// RetentionConfig contains pruning policies. Zero days keeps entries forever.
type RetentionConfig struct {
	DefaultDays   int            `yaml:"default_days" validate:"min=0,max=3650"`
	ByLevel       map[string]int `yaml:"by_level" validate:"dive,keys,oneof=debug info warn error,endkeys,min=0"`
	SweepInterval time.Duration  `yaml:"sweep_interval" validate:"min=0"`
}

// Config is the complete collector configuration
type Config struct {
	Server    ServerConfig    `yaml:"server" validate:"required"`
	Storage   StorageConfig   `yaml:"storage" validate:"required"`
	Search    SearchConfig    `yaml:"search"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	CORS      CORSConfig      `yaml:"cors"`
	Retention RetentionConfig `yaml:"retention"`
}

// Validate validates the configuration using struct tags
func (c *Config) Validate() error {
	return validator.New().Struct(c)
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			MaxBodyBytes:    10 << 20,
			MaxBatchSize:    1000,
		},
		Storage: StorageConfig{
			Path: "./clientlog.db",
		},
		Search: SearchConfig{
			Enabled: true,
		},
		RateLimit: RateLimitConfig{
			Enabled:           true,
			RequestsPerMinute: 1000,
			BurstSize:         100,
		},
		CORS: CORSConfig{
			AllowedOrigins: []string{"*"},
		},
		Retention: RetentionConfig{
			DefaultDays: 30,
			ByLevel: map[string]int{
				"debug": 7,
				"info":  30,
				"warn":  90,
				"error": 365,
			},
			SweepInterval: time.Hour,
		},
	}
}

// Load reads configuration from path, or from CLIENTLOG_COLLECTOR_CONFIG or
// a well-known location when path is empty, then applies environment
// overrides and validates the result.
func Load(path string) (*Config, error) {
	config := DefaultConfig()

	if path == "" {
		path = os.Getenv("CLIENTLOG_COLLECTOR_CONFIG")
	}
	if path == "" {
		possiblePaths := []string{
			"./collector.yaml",
			"./collector.yml",
			"/etc/clientlog/collector.yaml",
			filepath.Join(os.Getenv("HOME"), ".clientlog", "collector.yaml"),
		}
		for _, p := range possiblePaths {
			if _, err := os.Stat(p); err == nil {
				path = p
				break
			}
		}
	}

	if path != "" {
		if err := loadFromFile(config, path); err != nil {
			return nil, fmt.Errorf("failed to load config from file %s: %w", path, err)
		}
	}

	if err := loadFromEnv(config); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}

func loadFromFile(config *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	return yaml.Unmarshal(data, config)
}

func loadFromEnv(config *Config) error {
	if port := os.Getenv("CLIENTLOG_COLLECTOR_PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return fmt.Errorf("CLIENTLOG_COLLECTOR_PORT: %w", err)
		}
		config.Server.Port = p
	}

	if path := os.Getenv("CLIENTLOG_COLLECTOR_DB"); path != "" {
		config.Storage.Path = path
	}

	if indexPath := os.Getenv("CLIENTLOG_COLLECTOR_INDEX"); indexPath != "" {
		config.Search.Enabled = true
		config.Search.IndexPath = indexPath
	}

	if rpm := os.Getenv("CLIENTLOG_COLLECTOR_RATE_LIMIT"); rpm != "" {
		n, err := strconv.Atoi(rpm)
		if err != nil {
			return fmt.Errorf("CLIENTLOG_COLLECTOR_RATE_LIMIT: %w", err)
		}
		config.RateLimit.Enabled = n > 0
		if n > 0 {
			config.RateLimit.RequestsPerMinute = n
		}
	}

	if origins := os.Getenv("CLIENTLOG_COLLECTOR_CORS_ORIGINS"); origins != "" {
		config.CORS.AllowedOrigins = strings.Split(origins, ",")
	}

	return nil
}

// SaveToFile saves the configuration to a YAML file
func (c *Config) SaveToFile(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}
