package config

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/furiosa-ai/furiosa-client-go/pkg/furiosa"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix namespaces every environment variable the CLI reads.
const EnvPrefix = "FURIOSA"

// Config holds the CLI configuration loaded from $HOME/.furiosa/config and environment variables.
// The API endpoint is not part of it; it is fixed when the binary is built.
type Config struct {
	AppName               string        `mapstructure:"app_name"`
	LogLevel              string        `mapstructure:"log_level"`
	RequestTimeoutSeconds int64         `mapstructure:"request_timeout_seconds"`
	RequestTimeout        time.Duration `mapstructure:"-"`
	Parallelism           int           `mapstructure:"parallelism"`
	PublishersFile        string        `mapstructure:"publishers_file"`

	CacheType            string        `mapstructure:"cache_type"`
	CachePath            string        `mapstructure:"cache_path"`
	CacheTTLSeconds      int64         `mapstructure:"cache_ttl_seconds"`
	CacheCleanupSeconds  int64         `mapstructure:"cache_cleanup_interval_seconds"`
	CacheTTL             time.Duration `mapstructure:"-"`
	CacheCleanupInterval time.Duration `mapstructure:"-"`
}

// Load reads configuration from the per-user config file and environment variables.
func Load() (*Config, error) {
	if path, err := furiosa.ConfigFilePath("config"); err == nil {
		_ = godotenv.Load(path)
	}

	v := viper.New()

	v.SetDefault("app_name", "furiosa")
	v.SetDefault("log_level", "info")
	v.SetDefault("request_timeout_seconds", int64(furiosa.DefaultTimeout/time.Second))
	v.SetDefault("parallelism", 4)
	v.SetDefault("publishers_file", "")
	v.SetDefault("cache_type", "none")
	v.SetDefault("cache_path", defaultCachePath())
	v.SetDefault("cache_ttl_seconds", int64((7*24*time.Hour)/time.Second))
	v.SetDefault("cache_cleanup_interval_seconds", int64((12*time.Hour)/time.Second))

	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.RequestTimeoutSeconds <= 0 {
		return nil, fmt.Errorf("invalid request_timeout_seconds (must be positive seconds)")
	}
	cfg.RequestTimeout = time.Duration(cfg.RequestTimeoutSeconds) * time.Second

	if cfg.Parallelism <= 0 {
		return nil, fmt.Errorf("invalid parallelism (must be positive)")
	}

	if cfg.CacheTTLSeconds <= 0 {
		return nil, fmt.Errorf("invalid cache_ttl_seconds (must be positive seconds)")
	}
	if cfg.CacheCleanupSeconds <= 0 {
		return nil, fmt.Errorf("invalid cache_cleanup_interval_seconds (must be positive seconds)")
	}
	cfg.CacheTTL = time.Duration(cfg.CacheTTLSeconds) * time.Second
	cfg.CacheCleanupInterval = time.Duration(cfg.CacheCleanupSeconds) * time.Second

	return &cfg, nil
}

func defaultCachePath() string {
	path, err := furiosa.ConfigFilePath("artifacts.db")
	if err != nil {
		return filepath.Join(".", furiosa.ConfigDirName, "artifacts.db")
	}
	return path
}
