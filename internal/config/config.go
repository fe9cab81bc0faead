// Package config loads server configuration from a YAML file with .env and
// environment-variable overrides. Environment always wins so container
// deployments can override the file without rebuilding it.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the catalog server.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Storage  StorageConfig  `yaml:"storage"`
	Ingest   IngestConfig   `yaml:"ingest"`
	Log      LogConfig      `yaml:"log"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// GetHost returns the listen host, with container detection: inside ECS or
// any AWS execution environment we bind all interfaces.
func (c ServerConfig) GetHost() string {
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return "0.0.0.0"
	}
	if host := os.Getenv("SERVER_HOST"); host != "" {
		return host
	}
	return c.Host
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	URL          string `yaml:"url"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
}

// RedisConfig holds Redis settings for progress snapshots and locks.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Enabled  bool   `yaml:"enabled"`
}

// StorageConfig selects the file store backend for uploaded catalogs and
// extracted images. Backend is "local" or "s3".
type StorageConfig struct {
	Backend  string `yaml:"backend"`
	LocalDir string `yaml:"local_dir"`
	S3Bucket string `yaml:"s3_bucket"`
	S3Region string `yaml:"s3_region"`
	S3Prefix string `yaml:"s3_prefix"`
}

// IngestConfig tunes the ingestion pipeline.
type IngestConfig struct {
	RetentionDays        int   `yaml:"retention_days"`
	PollIntervalSeconds  int   `yaml:"poll_interval_seconds"`
	PageSize             int   `yaml:"page_size"`
	MaxUploadBytes       int64 `yaml:"max_upload_bytes"`
	ImportTimeoutSeconds int   `yaml:"import_timeout_seconds"`
	CleanupIntervalMin   int   `yaml:"cleanup_interval_minutes"`
}

// Retention returns the staged-data retention window.
func (c IngestConfig) Retention() time.Duration {
	days := c.RetentionDays
	if days <= 0 {
		days = 7
	}
	return time.Duration(days) * 24 * time.Hour
}

// PollInterval returns the client status-poll interval.
func (c IngestConfig) PollInterval() time.Duration {
	if c.PollIntervalSeconds <= 0 {
		return 2 * time.Second
	}
	return time.Duration(c.PollIntervalSeconds) * time.Second
}

// ImportTimeout returns the bound on a production import call.
func (c IngestConfig) ImportTimeout() time.Duration {
	if c.ImportTimeoutSeconds <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(c.ImportTimeoutSeconds) * time.Second
}

// CleanupInterval returns how often the expiry worker sweeps.
func (c IngestConfig) CleanupInterval() time.Duration {
	if c.CleanupIntervalMin <= 0 {
		return time.Hour
	}
	return time.Duration(c.CleanupIntervalMin) * time.Minute
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `yaml:"level"`
}

// Load reads configuration from the given YAML file. A missing file is not
// an error; defaults plus environment overrides still apply.
func Load(path string) (*Config, error) {
	cfg := &Config{
		Server:   ServerConfig{Host: "127.0.0.1", Port: 8080},
		Database: DatabaseConfig{MaxOpenConns: 25, MaxIdleConns: 5},
		Storage:  StorageConfig{Backend: "local", LocalDir: "data/files"},
		Ingest: IngestConfig{
			RetentionDays:       7,
			PollIntervalSeconds: 2,
			PageSize:            200,
			MaxUploadBytes:      200 << 20,
		},
		Log: LogConfig{Level: "info"},
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// LoadFromEnv loads the YAML config and applies .env plus environment
// overrides.
func LoadFromEnv(path string) (*Config, error) {
	// Load .env file if it exists (no error if missing)
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
		cfg.Redis.Enabled = true
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("STORAGE_BACKEND"); v != "" {
		cfg.Storage.Backend = v
	}
	if v := os.Getenv("STORAGE_LOCAL_DIR"); v != "" {
		cfg.Storage.LocalDir = v
	}
	if v := os.Getenv("S3_BUCKET"); v != "" {
		cfg.Storage.S3Bucket = v
	}
	if v := os.Getenv("S3_REGION"); v != "" {
		cfg.Storage.S3Region = v
	}
	if v := os.Getenv("SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("RETENTION_DAYS"); v != "" {
		if days, err := strconv.Atoi(v); err == nil && days > 0 {
			cfg.Ingest.RetentionDays = days
		}
	}

	return cfg, nil
}
