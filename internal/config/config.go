package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Version is injected at build time via ldflags.
var Version = "dev"

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Catalog  CatalogConfig  `mapstructure:"catalog"`
	Sync     SyncConfig     `mapstructure:"sync"`
	Importer ImporterConfig `mapstructure:"importer"`
	Metadata MetadataConfig `mapstructure:"metadata"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// DatabaseConfig holds database configuration.
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Path       string `mapstructure:"path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// CatalogConfig holds settings for the upstream catalog addon.
type CatalogConfig struct {
	BaseURL   string        `mapstructure:"base_url"`
	Timeout   time.Duration `mapstructure:"timeout"`
	MaxItems  int           `mapstructure:"max_items"`
	UserAgent string        `mapstructure:"user_agent"`
}

// SyncConfig holds settings for on-demand and periodic catalog synchronization.
type SyncConfig struct {
	Enabled             bool          `mapstructure:"enabled"`
	Interval            time.Duration `mapstructure:"interval"`
	RunOnStart          bool          `mapstructure:"run_on_start"`
	InteractiveCooldown time.Duration `mapstructure:"interactive_cooldown"`
	SweepCooldown       time.Duration `mapstructure:"sweep_cooldown"`
	QueueSize           int           `mapstructure:"queue_size"`
	SeedFile            string        `mapstructure:"seed_file"`
}

// ImporterConfig holds settings for the .strm media importer.
type ImporterConfig struct {
	LibraryPath string `mapstructure:"library_path"`
}

// MetadataConfig holds metadata provider configuration.
type MetadataConfig struct {
	TMDB TMDBConfig `mapstructure:"tmdb"`
}

// TMDBConfig holds TMDB API configuration.
type TMDBConfig struct {
	APIKey   string        `mapstructure:"api_key"`
	BaseURL  string        `mapstructure:"base_url"`
	Timeout  int           `mapstructure:"timeout"` // seconds
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8484,
		},
		Database: DatabaseConfig{
			Path: "./data/catalogsync.db",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Catalog: CatalogConfig{
			Timeout:   5 * time.Minute,
			MaxItems:  500,
			UserAgent: "catalogsync/" + Version,
		},
		Sync: SyncConfig{
			Enabled:             true,
			Interval:            12 * time.Hour,
			InteractiveCooldown: 500 * time.Millisecond,
			SweepCooldown:       2 * time.Second,
			QueueSize:           32,
		},
		Importer: ImporterConfig{
			LibraryPath: "./data/library",
		},
		Metadata: MetadataConfig{
			TMDB: TMDBConfig{
				BaseURL:  "https://api.themoviedb.org/3",
				Timeout:  15,
				CacheTTL: 24 * time.Hour,
			},
		},
	}
}

// Load reads configuration from file and environment variables.
// Priority: environment variables > config file > defaults
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("$HOME/.catalogsync")
	}

	v.SetEnvPrefix("CATALOGSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found, using defaults + env vars
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// setDefaults sets default values in viper
func setDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.port", d.Server.Port)

	v.SetDefault("database.path", d.Database.Path)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("logging.path", "")
	v.SetDefault("logging.max_size_mb", 10)
	v.SetDefault("logging.max_backups", 5)
	v.SetDefault("logging.max_age_days", 30)
	v.SetDefault("logging.compress", true)

	v.SetDefault("catalog.base_url", "")
	v.SetDefault("catalog.timeout", d.Catalog.Timeout)
	v.SetDefault("catalog.max_items", d.Catalog.MaxItems)
	v.SetDefault("catalog.user_agent", d.Catalog.UserAgent)

	v.SetDefault("sync.enabled", d.Sync.Enabled)
	v.SetDefault("sync.interval", d.Sync.Interval)
	v.SetDefault("sync.run_on_start", false)
	v.SetDefault("sync.interactive_cooldown", d.Sync.InteractiveCooldown)
	v.SetDefault("sync.sweep_cooldown", d.Sync.SweepCooldown)
	v.SetDefault("sync.queue_size", d.Sync.QueueSize)
	v.SetDefault("sync.seed_file", "")

	v.SetDefault("importer.library_path", d.Importer.LibraryPath)

	v.SetDefault("metadata.tmdb.api_key", "")
	v.SetDefault("metadata.tmdb.base_url", d.Metadata.TMDB.BaseURL)
	v.SetDefault("metadata.tmdb.timeout", d.Metadata.TMDB.Timeout)
	v.SetDefault("metadata.tmdb.cache_ttl", d.Metadata.TMDB.CacheTTL)
}

// Validate checks configuration values that cannot be defaulted sensibly.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database path must not be empty")
	}
	if c.Sync.Interval < time.Minute {
		return fmt.Errorf("sync interval must be at least one minute, got %s", c.Sync.Interval)
	}
	if c.Catalog.Timeout <= 0 {
		return fmt.Errorf("catalog timeout must be positive, got %s", c.Catalog.Timeout)
	}
	return nil
}

// Address returns the server address string.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
