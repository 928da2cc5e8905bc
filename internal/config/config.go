// Package config loads the typed application configuration from viper.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/Veraticus/tierkeeper/internal/classification"
	"github.com/Veraticus/tierkeeper/internal/common"
	"github.com/Veraticus/tierkeeper/internal/engine"
	"github.com/Veraticus/tierkeeper/internal/lifecycle"
	"github.com/Veraticus/tierkeeper/internal/llm"
	"github.com/Veraticus/tierkeeper/internal/model"
	"github.com/Veraticus/tierkeeper/internal/storage"
)

// Config is the whole application configuration.
type Config struct {
	DisplayCategories map[string]string  `mapstructure:"display_categories"`
	Logging           LoggingConfig      `mapstructure:"logging"`
	Database          DatabaseConfig     `mapstructure:"database"`
	Redis             RedisConfig        `mapstructure:"redis"`
	Server            ServerConfig       `mapstructure:"server"`
	LLM               llm.Config         `mapstructure:"llm"`
	Rebalance         RebalanceConfig    `mapstructure:"rebalance"`
	ArchiveQueue      engine.QueueConfig `mapstructure:"archive_queue"`
	VisionQueue       engine.QueueConfig `mapstructure:"vision_queue"`
	Lifecycle         lifecycle.Settings `mapstructure:"lifecycle"`
}

// LoggingConfig selects the slog handler.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// DatabaseConfig selects the storage backend.
type DatabaseConfig struct {
	Driver   string `mapstructure:"driver"`
	Path     string `mapstructure:"path"`
	DSN      string `mapstructure:"dsn"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// RedisConfig enables the progress event publisher when Addr is set.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	Channel  string `mapstructure:"channel"`
	DB       int    `mapstructure:"db"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Addr    string `mapstructure:"addr"`
	CertDir string `mapstructure:"cert_dir"`
	// TLSHosts are the names the self-signed certificate covers.
	TLSHosts        []string      `mapstructure:"tls_hosts"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	TLS             bool          `mapstructure:"tls"`
}

// RebalanceConfig is the raw rebalance section. Tier names are parsed by Engine.
type RebalanceConfig struct {
	Capacities map[string]int `mapstructure:"capacities"`
	Protected  []string       `mapstructure:"protected"`
	// SnapshotKeep is how many automatic pre-rebalance snapshots are kept.
	SnapshotKeep int `mapstructure:"snapshot_keep"`
}

// SetDefaults registers every default on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")

	v.SetDefault("database.driver", storage.DriverSQLite)
	v.SetDefault("database.path", DefaultDatabasePath())
	v.SetDefault("database.max_conns", 10)

	life := lifecycle.DefaultSettings()
	v.SetDefault("lifecycle.new_max_days", life.NewMaxDays)
	v.SetDefault("lifecycle.curated_max_days", life.CuratedMaxDays)
	v.SetDefault("lifecycle.archive_max_days", life.ArchiveMaxDays)

	// One default per tier so a file that sets a few capacities keeps the rest.
	for _, t := range engine.BoundTiers() {
		v.SetDefault("rebalance.capacities."+strings.ToLower(string(t)), engine.DefaultCapacity)
	}
	v.SetDefault("rebalance.protected", []string{string(model.TierKids)})
	v.SetDefault("rebalance.snapshot_keep", 5)

	setQueueDefaults(v, "archive_queue", engine.DefaultArchiveQueueConfig())
	setQueueDefaults(v, "vision_queue", engine.DefaultVisionQueueConfig())

	v.SetDefault("llm.provider", "gemini")
	v.SetDefault("llm.rate_limit", 60)
	v.SetDefault("llm.max_tokens", 1024)
	v.SetDefault("llm.temperature", 0.2)
	v.SetDefault("llm.request_timeout", 90*time.Second)
	v.SetDefault("llm.image_cache_ttl", 15*time.Minute)

	v.SetDefault("display_categories", classification.DefaultDisplayCategories())

	v.SetDefault("redis.channel", "tierkeeper:events")
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.tls", false)
	v.SetDefault("server.cert_dir", "~/.config/tierkeeper/certs")
}

func setQueueDefaults(v *viper.Viper, key string, q engine.QueueConfig) {
	v.SetDefault(key+".concurrency", q.Concurrency)
	v.SetDefault(key+".batch_delay", q.BatchDelay)
	v.SetDefault(key+".item_timeout", q.ItemTimeout)
	v.SetDefault(key+".run_budget", q.RunBudget)
	v.SetDefault(key+".max_window", q.MaxWindow)
}

// Load reads the configuration from v, which must already have its
// defaults, config file and environment wired up.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode configuration: %w", err)
	}

	cfg.Database.Path = ExpandPath(cfg.Database.Path)
	cfg.Server.CertDir = ExpandPath(cfg.Server.CertDir)
	if cfg.LLM.APIKey == "" {
		cfg.LLM.APIKey = providerKeyFromEnv(cfg.LLM.Provider)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// providerKeyFromEnv falls back to the provider's conventional variable.
func providerKeyFromEnv(provider string) string {
	switch provider {
	case "anthropic":
		return os.Getenv("ANTHROPIC_API_KEY")
	case "gemini", "":
		if key := os.Getenv("GEMINI_API_KEY"); key != "" {
			return key
		}
		return os.Getenv("GOOGLE_API_KEY")
	}
	return ""
}

// Validate checks the sections that can be checked without connecting anywhere.
func (c *Config) Validate() error {
	if _, err := common.ParseLevel(c.Logging.Level); err != nil {
		return err
	}
	if !c.Lifecycle.Valid() {
		return fmt.Errorf("%w: lifecycle thresholds must be positive and increasing", common.ErrInvalidConfig)
	}
	switch c.Database.Driver {
	case storage.DriverSQLite, "":
		if c.Database.Path == "" {
			return fmt.Errorf("%w: database.path", common.ErrMissingConfig)
		}
	case storage.DriverPostgres:
		if c.Database.DSN == "" {
			return fmt.Errorf("%w: database.dsn", common.ErrMissingConfig)
		}
	default:
		return fmt.Errorf("%w: unknown database driver %q", common.ErrInvalidConfig, c.Database.Driver)
	}
	if err := c.ArchiveQueue.Validate(); err != nil {
		return fmt.Errorf("archive_queue: %w", err)
	}
	if err := c.VisionQueue.Validate(); err != nil {
		return fmt.Errorf("vision_queue: %w", err)
	}
	if _, err := c.Engine(); err != nil {
		return err
	}
	if _, err := classification.NewDisplayCategories(c.DisplayCategories); err != nil {
		return err
	}
	return nil
}

// Engine converts the rebalance section into engine form. Tiers the section
// leaves out keep the default capacity.
func (c *Config) Engine() (engine.RebalanceConfig, error) {
	out := engine.RebalanceConfig{Capacities: engine.DefaultRebalanceConfig().Capacities}
	for name, n := range c.Rebalance.Capacities {
		tier, err := model.ParseTier(name)
		if err != nil {
			return engine.RebalanceConfig{}, fmt.Errorf("%w: rebalance.capacities: %w", common.ErrInvalidConfig, err)
		}
		out.Capacities[tier] = n
	}
	for _, name := range c.Rebalance.Protected {
		tier, err := model.ParseTier(name)
		if err != nil {
			return engine.RebalanceConfig{}, fmt.Errorf("%w: rebalance.protected: %w", common.ErrInvalidConfig, err)
		}
		out.Protected = append(out.Protected, tier)
	}
	if err := out.Validate(); err != nil {
		return engine.RebalanceConfig{}, err
	}
	return out, nil
}

// StorageOptions returns the options for storage.Open.
func (c *Config) StorageOptions() storage.Options {
	return storage.Options{
		Driver:   c.Database.Driver,
		Path:     c.Database.Path,
		DSN:      c.Database.DSN,
		MaxConns: c.Database.MaxConns,
	}
}
