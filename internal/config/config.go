package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

const (
	defaultPort           = 8080
	defaultDataDir        = "data"
	defaultLogLevel       = "info"
	defaultPublishTimeout = 2 * time.Minute
	defaultUploadTimeout  = 30 * time.Second

	StorageFile   = "file"
	StorageSQLite = "sqlite"

	UploaderSimulated = "simulated"
	UploaderWebhook   = "webhook"
)

// Config describes runtime configuration for the service.
type Config struct {
	Port     int      `yaml:"port"`
	DataDir  string   `yaml:"data_dir"`
	LogLevel string   `yaml:"log_level"`
	Storage  string   `yaml:"storage"`
	Agent    Agent    `yaml:"agent"`
	Uploader Uploader `yaml:"uploader"`
}

// Agent configures the automation engine.
type Agent struct {
	// Interval between automatic runs; zero means runs are only triggered manually.
	Interval       time.Duration `yaml:"interval"`
	PublishTimeout time.Duration `yaml:"publish_timeout"`
	// ChapterSpacing is the gap between generated chapter markers.
	ChapterSpacing time.Duration `yaml:"chapter_spacing"`
}

// Uploader selects where due tasks are published.
type Uploader struct {
	Kind       string        `yaml:"kind"`
	WebhookURL string        `yaml:"webhook_url"`
	Timeout    time.Duration `yaml:"timeout"`
}

// Default returns defaults for a local single-node setup.
func Default() Config {
	return Config{
		Port:     defaultPort,
		DataDir:  defaultDataDir,
		LogLevel: defaultLogLevel,
		Storage:  StorageFile,
		Agent: Agent{
			PublishTimeout: defaultPublishTimeout,
			ChapterSpacing: time.Minute,
		},
		Uploader: Uploader{
			Kind:    UploaderSimulated,
			Timeout: defaultUploadTimeout,
		},
	}
}

// Load reads YAML config from the provided path. If the file does not exist
// or is empty, defaults are returned with no error.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, errors.New("empty config path")
	}
	fileData, err := os.ReadFile(path) //nolint:gosec // config path is controlled by deployment
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if len(fileData) == 0 {
		return cfg, nil
	}
	if err := yaml.Unmarshal(fileData, &cfg); err != nil {
		return cfg, fmt.Errorf("parse yaml: %w", err)
	}
	normalize(&cfg)
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func normalize(cfg *Config) {
	if cfg.Port == 0 {
		cfg.Port = defaultPort
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = defaultDataDir
	}
	cfg.LogLevel = strings.ToLower(strings.TrimSpace(cfg.LogLevel))
	if cfg.LogLevel == "" {
		cfg.LogLevel = defaultLogLevel
	}
	cfg.Storage = strings.ToLower(strings.TrimSpace(cfg.Storage))
	if cfg.Storage == "" {
		cfg.Storage = StorageFile
	}
	cfg.Uploader.Kind = strings.ToLower(strings.TrimSpace(cfg.Uploader.Kind))
	if cfg.Uploader.Kind == "" {
		cfg.Uploader.Kind = UploaderSimulated
	}
	if cfg.Uploader.Timeout == 0 {
		cfg.Uploader.Timeout = defaultUploadTimeout
	}
}

// Validate rejects values the service cannot start with.
func (c Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log_level %q: %w", c.LogLevel, err)
	}
	switch c.Storage {
	case StorageFile, StorageSQLite:
	default:
		return fmt.Errorf("invalid storage %q (want %s or %s)", c.Storage, StorageFile, StorageSQLite)
	}
	if c.Agent.Interval < 0 || c.Agent.PublishTimeout < 0 || c.Agent.ChapterSpacing < 0 {
		return errors.New("agent durations must not be negative")
	}
	switch c.Uploader.Kind {
	case UploaderSimulated:
	case UploaderWebhook:
		if strings.TrimSpace(c.Uploader.WebhookURL) == "" {
			return errors.New("uploader.webhook_url is required for the webhook uploader")
		}
	default:
		return fmt.Errorf("invalid uploader.kind %q", c.Uploader.Kind)
	}
	if c.Uploader.Timeout < 0 {
		return errors.New("uploader.timeout must not be negative")
	}
	return nil
}

// Level returns the configured zerolog level, falling back to info.
func (c Config) Level() zerolog.Level {
	level, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil || c.LogLevel == "" {
		return zerolog.InfoLevel
	}
	return level
}
