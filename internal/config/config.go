package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Database    DatabaseConfig    `yaml:"database"`
	Redis       RedisConfig       `yaml:"redis"`
	ObjectStore ObjectStoreConfig `yaml:"object_store"`
	Cache       CacheConfig       `yaml:"cache"`
	Notify      NotifyConfig      `yaml:"notify"`
	Import      ImportConfig      `yaml:"import"`
	Reconciler  ReconcilerConfig  `yaml:"reconciler"`
	Log         LogConfig         `yaml:"log"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port           int      `yaml:"port" env:"SERVER_PORT"`
	Host           string   `yaml:"host" env:"SERVER_HOST"`
	AllowedOrigins []string `yaml:"allowed_origins" env:"CORS_ALLOWED_ORIGINS" envSeparator:","`
}

// Addr returns host:port for net/http.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// DatabaseConfig holds PostgreSQL connection settings
type DatabaseConfig struct {
	URL                    string `yaml:"url" env:"DATABASE_URL"`
	MaxOpenConns           int    `yaml:"max_open_conns" env:"DATABASE_MAX_OPEN_CONNS"`
	MaxIdleConns           int    `yaml:"max_idle_conns" env:"DATABASE_MAX_IDLE_CONNS"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
}

// ConnMaxLifetime returns the pool connection lifetime.
func (c DatabaseConfig) ConnMaxLifetime() time.Duration {
	return time.Duration(c.ConnMaxLifetimeMinutes) * time.Minute
}

// RedisConfig holds the shared cache/lock Redis settings. An empty URL
// disables the entity cache and makes leader election use PostgreSQL.
type RedisConfig struct {
	URL string `yaml:"url" env:"REDIS_URL"`
}

// ObjectStoreConfig holds S3-compatible storage settings. Endpoint and
// UsePathStyle allow MinIO; empty credentials use the default AWS chain.
type ObjectStoreConfig struct {
	Endpoint     string `yaml:"endpoint" env:"OBJECT_STORE_ENDPOINT"`
	Region       string `yaml:"region" env:"OBJECT_STORE_REGION"`
	Bucket       string `yaml:"bucket" env:"OBJECT_STORE_BUCKET"`
	AccessKey    string `yaml:"access_key" env:"OBJECT_STORE_ACCESS_KEY"`
	SecretKey    string `yaml:"secret_key" env:"OBJECT_STORE_SECRET_KEY"`
	UsePathStyle bool   `yaml:"use_path_style" env:"OBJECT_STORE_PATH_STYLE"`
	AWSProfile   string `yaml:"aws_profile" env:"AWS_PROFILE_OVERRIDE"`
}

// CacheConfig holds entity cache settings
type CacheConfig struct {
	TTLSeconds int  `yaml:"ttl_seconds" env:"CACHE_TTL_SECONDS"`
	LogStats   bool `yaml:"log_stats" env:"CACHE_LOG_STATS"`
}

// TTL returns the entry time-to-live.
func (c CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLSeconds) * time.Second
}

// NotifyConfig holds change notifier settings
type NotifyConfig struct {
	BufferSize       int    `yaml:"buffer_size"`
	KeepAliveSeconds int    `yaml:"keepalive_seconds"`
	RelayEnabled     bool   `yaml:"relay_enabled" env:"NOTIFY_RELAY_ENABLED"`
	RelayChannel     string `yaml:"relay_channel" env:"NOTIFY_RELAY_CHANNEL"`
}

// KeepAlive returns the SSE ping interval.
func (c NotifyConfig) KeepAlive() time.Duration {
	return time.Duration(c.KeepAliveSeconds) * time.Second
}

// ImportConfig holds bulk import settings
type ImportConfig struct {
	MaxUploadMB int `yaml:"max_upload_mb" env:"IMPORT_MAX_UPLOAD_MB"`
}

// MaxUploadBytes returns the multipart size limit.
func (c ImportConfig) MaxUploadBytes() int64 {
	return int64(c.MaxUploadMB) << 20
}

// ReconcilerConfig holds the storage reconciler schedule
type ReconcilerConfig struct {
	Enabled         bool `yaml:"enabled" env:"RECONCILER_ENABLED"`
	IntervalMinutes int  `yaml:"interval_minutes"`
	GraceMinutes    int  `yaml:"grace_minutes"`
}

// Interval returns the pause between reconciliation passes.
func (c ReconcilerConfig) Interval() time.Duration {
	return time.Duration(c.IntervalMinutes) * time.Minute
}

// Grace returns the minimum object age considered abandoned.
func (c ReconcilerConfig) Grace() time.Duration {
	return time.Duration(c.GraceMinutes) * time.Minute
}

// LogConfig holds logging settings
type LogConfig struct {
	Level string `yaml:"level" env:"LOG_LEVEL"`
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg.setDefaults()
	return &cfg, nil
}

func (cfg *Config) setDefaults() {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if len(cfg.Server.AllowedOrigins) == 0 {
		cfg.Server.AllowedOrigins = []string{"http://localhost:3000"}
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 20
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetimeMinutes == 0 {
		cfg.Database.ConnMaxLifetimeMinutes = 30
	}
	if cfg.ObjectStore.Region == "" {
		cfg.ObjectStore.Region = "us-east-1"
	}
	if cfg.ObjectStore.Bucket == "" {
		cfg.ObjectStore.Bucket = "imports"
	}
	if cfg.Cache.TTLSeconds == 0 {
		cfg.Cache.TTLSeconds = 600
	}
	if cfg.Notify.BufferSize == 0 {
		cfg.Notify.BufferSize = 64
	}
	if cfg.Notify.KeepAliveSeconds == 0 {
		cfg.Notify.KeepAliveSeconds = 25
	}
	if cfg.Notify.RelayChannel == "" {
		cfg.Notify.RelayChannel = "registry_events"
	}
	if cfg.Import.MaxUploadMB == 0 {
		cfg.Import.MaxUploadMB = 10
	}
	if cfg.Reconciler.IntervalMinutes == 0 {
		cfg.Reconciler.IntervalMinutes = 15
	}
	if cfg.Reconciler.GraceMinutes == 0 {
		cfg.Reconciler.GraceMinutes = 60
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
}

// LoadFromEnv loads configuration with environment variable overrides.
// It automatically loads a .env file (if present) before reading env vars,
// so secrets can live in .env locally and in real env vars in containers.
// An empty path skips the YAML file and starts from defaults.
func LoadFromEnv(path string) (*Config, error) {
	// Load .env file if it exists (no error if missing)
	_ = godotenv.Load()

	cfg := &Config{}
	if path != "" {
		loaded, err := Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	// Only variables that are set override the file.
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	cfg.setDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks settings the server cannot start without.
func (cfg *Config) Validate() error {
	if cfg.Database.URL == "" {
		return fmt.Errorf("config: database.url (DATABASE_URL) is required")
	}
	if (cfg.ObjectStore.AccessKey == "") != (cfg.ObjectStore.SecretKey == "") {
		return fmt.Errorf("config: object_store access_key and secret_key must be set together")
	}
	return nil
}
