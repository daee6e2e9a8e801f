// Package config loads runtime settings from the environment and an
// optional config.yaml. Environment variables always win over the file.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	vercelUploadMB  = 50
	defaultUploadMB = 200
)

// MinerU configures the engine chain.
type MinerU struct {
	Binary     string        `mapstructure:"binary"`
	Backend    string        `mapstructure:"backend"`
	Timeout    time.Duration `mapstructure:"timeout"`
	APIURL     string        `mapstructure:"api_url"`
	APIKey     string        `mapstructure:"api_key"`
	APITimeout time.Duration `mapstructure:"api_timeout"`
	// DisableBasic drops the text-layer fallback engine.
	DisableBasic bool `mapstructure:"disable_basic"`
}

// Storage selects where job outputs are archived.
type Storage struct {
	Backend string `mapstructure:"backend"`
	Dir     string `mapstructure:"dir"`
	Bucket  string `mapstructure:"bucket"`
}

// Jobs tunes the background job manager.
type Jobs struct {
	Workers   int    `mapstructure:"workers"`
	QueueSize int    `mapstructure:"queue_size"`
	DBPath    string `mapstructure:"db_path"`
	// MaxKept bounds the in-memory history when no database is used.
	MaxKept int `mapstructure:"max_kept"`
}

type Config struct {
	Port        string  `mapstructure:"port"`
	APIKey      string  `mapstructure:"api_key"`
	Mode        string  `mapstructure:"mode"`
	LogLevel    string  `mapstructure:"log_level"`
	Vercel      bool    `mapstructure:"vercel"`
	MaxUploadMB int     `mapstructure:"max_upload_mb"`
	Workers     int     `mapstructure:"workers"`
	MinerU      MinerU  `mapstructure:"mineru"`
	Storage     Storage `mapstructure:"storage"`
	Jobs        Jobs    `mapstructure:"jobs"`
}

// Load reads configuration. When path is empty, ./config.yaml is used if
// it exists; a missing default file is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("storage.bucket", "GCS_BUCKET", "STORAGE_BUCKET"); err != nil {
		return nil, fmt.Errorf("bind env: %w", err)
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if cfg.MaxUploadMB <= 0 {
		cfg.MaxUploadMB = defaultUploadMB
		if cfg.Vercel {
			cfg.MaxUploadMB = vercelUploadMB
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", "8080")
	v.SetDefault("api_key", "")
	v.SetDefault("mode", "dev")
	v.SetDefault("log_level", "info")
	v.SetDefault("vercel", false)
	v.SetDefault("max_upload_mb", 0)
	v.SetDefault("workers", 2)

	v.SetDefault("mineru.binary", "mineru")
	v.SetDefault("mineru.backend", "")
	v.SetDefault("mineru.timeout", 10*time.Minute)
	v.SetDefault("mineru.api_url", "")
	v.SetDefault("mineru.api_key", "")
	v.SetDefault("mineru.api_timeout", 300*time.Second)
	v.SetDefault("mineru.disable_basic", false)

	v.SetDefault("storage.backend", "none")
	v.SetDefault("storage.dir", "results")
	v.SetDefault("storage.bucket", "")

	v.SetDefault("jobs.workers", 1)
	v.SetDefault("jobs.queue_size", 32)
	v.SetDefault("jobs.db_path", "")
	v.SetDefault("jobs.max_kept", 200)
}

// Validate rejects settings the server cannot start with.
func (c *Config) Validate() error {
	if c.Port == "" {
		return errors.New("config: port must not be empty")
	}
	if c.Workers <= 0 {
		return fmt.Errorf("config: workers must be positive, got %d", c.Workers)
	}
	switch strings.ToLower(c.Storage.Backend) {
	case "", "none", "local", "gcs":
	default:
		return fmt.Errorf("config: unknown storage backend %q", c.Storage.Backend)
	}
	return nil
}

// MaxUploadBytes is the upload limit for one request.
func (c *Config) MaxUploadBytes() int64 {
	return int64(c.MaxUploadMB) << 20
}

// Production reports whether MODE selects release behaviour.
func (c *Config) Production() bool {
	return c.Mode == "prod"
}
