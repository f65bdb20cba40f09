package logger

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Level           Level         `json:"level" yaml:"level" validate:"min=0,max=3"`
	ReportToServer  bool          `json:"report_to_server" yaml:"report_to_server"`
	ServerURL       string        `json:"server_url" yaml:"server_url" validate:"omitempty,url"`
	UseLocalStorage bool          `json:"use_local_storage" yaml:"use_local_storage"`
	MaxLocalLogs    int           `json:"max_local_logs" yaml:"max_local_logs" validate:"min=0"`
	BatchReport     bool          `json:"batch_report" yaml:"batch_report"`
	BatchSize       int           `json:"batch_size" yaml:"batch_size" validate:"min=0"`
	AppVersion      string        `json:"app_version" yaml:"app_version"`
	HTTPTimeout     time.Duration `json:"http_timeout" yaml:"http_timeout" validate:"min=0"`
	Console         bool          `json:"console" yaml:"console"`
}

const (
	defaultMaxLocalLogs = 100
	defaultBatchSize    = 10
	defaultHTTPTimeout  = 10 * time.Second
	unknownAppVersion   = "unknown"
)

func DefaultConfig() Config {
	appVersion := os.Getenv("APP_VERSION")
	if appVersion == "" {
		appVersion = unknownAppVersion
	}
	return Config{
		Level:        LevelInfo,
		MaxLocalLogs: defaultMaxLocalLogs,
		BatchSize:    defaultBatchSize,
		AppVersion:   appVersion,
		HTTPTimeout:  defaultHTTPTimeout,
		Console:      true,
	}
}

var configValidator = validator.New()

func (c *Config) Validate() error {
	if err := configValidator.Struct(c); err != nil {
		return ErrInvalidConfig(err.Error())
	}
	if c.MaxLocalLogs <= 0 {
		c.MaxLocalLogs = defaultMaxLocalLogs
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaultBatchSize
	}
	if c.HTTPTimeout <= 0 {
		c.HTTPTimeout = defaultHTTPTimeout
	}
	if c.AppVersion == "" {
		c.AppVersion = unknownAppVersion
	}
	return nil
}

// LoadConfig reads a YAML file over DefaultConfig, applies CLIENTLOG_*
// environment overrides and validates the result. An empty path skips the file.
func LoadConfig(path string) (Config, error) {
	config := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return config, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &config); err != nil {
			return config, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := config.applyEnv(); err != nil {
		return config, err
	}

	if err := config.Validate(); err != nil {
		return config, err
	}
	return config, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("CLIENTLOG_LEVEL"); v != "" {
		level, err := ParseLevel(v)
		if err != nil {
			return err
		}
		c.Level = level
	}
	if v := os.Getenv("CLIENTLOG_SERVER_URL"); v != "" {
		c.ServerURL = v
		c.ReportToServer = true
	}
	if v := os.Getenv("CLIENTLOG_BATCH_REPORT"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return ErrInvalidConfig(fmt.Sprintf("CLIENTLOG_BATCH_REPORT: %v", err))
		}
		c.BatchReport = b
	}
	if v := os.Getenv("CLIENTLOG_BATCH_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return ErrInvalidConfig(fmt.Sprintf("CLIENTLOG_BATCH_SIZE: %v", err))
		}
		c.BatchSize = n
	}
	if v := os.Getenv("CLIENTLOG_LOCAL_STORAGE"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return ErrInvalidConfig(fmt.Sprintf("CLIENTLOG_LOCAL_STORAGE: %v", err))
		}
		c.UseLocalStorage = b
	}
	if v := os.Getenv("CLIENTLOG_MAX_LOCAL_LOGS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return ErrInvalidConfig(fmt.Sprintf("CLIENTLOG_MAX_LOCAL_LOGS: %v", err))
		}
		c.MaxLocalLogs = n
	}
	return nil
}
