package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	Version     string `koanf:"version"`
	Environment string `koanf:"environment"`
	LogLevel    string `koanf:"log_level"`

	Server   ServerConfig   `koanf:"server"`
	Database DatabaseConfig `koanf:"database"`
	Redis    RedisConfig    `koanf:"redis"`
	Appetite AppetiteConfig `koanf:"appetite"`
}

type ServerConfig struct {
	Port            int           `koanf:"port"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

type DatabaseConfig struct {
	URL             string        `koanf:"url"`
	MaxOpenConns    int           `koanf:"max_open_conns"`
	MaxIdleConns    int           `koanf:"max_idle_conns"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
}

type RedisConfig struct {
	Enabled  bool          `koanf:"enabled"`
	URL      string        `koanf:"url"`
	Password string        `koanf:"password"`
	DB       int           `koanf:"db"`
	BadgeTTL time.Duration `koanf:"badge_ttl"`
}

// AppetiteConfig carries the tolerance-evaluation policy knobs.
type AppetiteConfig struct {
	// BreachWindow is the trailing number of periods used for the windowed
	// breach count.
	BreachWindow int `koanf:"breach_window"`

	// LockStaleness is how long a running recalculation may hold the
	// per-organization lock before the next acquirer may reclaim it.
	LockStaleness time.Duration `koanf:"lock_staleness"`

	// SweepParallelism bounds how many tolerance limits one sweep
	// evaluates concurrently.
	SweepParallelism int `koanf:"sweep_parallelism"`

	// SnapshotHistoryDepth caps how much status history is loaded per
	// limit during a sweep.
	SnapshotHistoryDepth int `koanf:"snapshot_history_depth"`
}

func Load(path string) (*Config, error) {
	k := koanf.New(".")

	// Load defaults
	defaults := &Config{
		Version:     "dev",
		Environment: "development",
		LogLevel:    "info",
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Redis: RedisConfig{
			Enabled:  false,
			URL:      "localhost:6379",
			BadgeTTL: 10 * time.Minute,
		},
		Appetite: AppetiteConfig{
			BreachWindow:         12,
			LockStaleness:        15 * time.Minute,
			SweepParallelism:     4,
			SnapshotHistoryDepth: 64,
		},
	}

	if err := k.Load(structs.Provider(defaults, "koanf"), nil); err != nil {
		return nil, fmt.Errorf("loading defaults: %w", err)
	}

	// Load from config file if it exists; the file is optional.
	if path == "" {
		path = "configs/config.yaml"
	}
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		// Config file is optional.
	}

	// Override with environment variables
	if err := k.Load(env.Provider("RAF_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(
			strings.TrimPrefix(s, "RAF_")), "_", ".", -1)
	}), nil); err != nil {
		return nil, fmt.Errorf("loading environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Appetite.BreachWindow <= 0 {
		return fmt.Errorf("appetite.breach_window must be positive")
	}
	if c.Appetite.LockStaleness <= 0 {
		return fmt.Errorf("appetite.lock_staleness must be positive")
	}
	if c.Appetite.SweepParallelism <= 0 {
		return fmt.Errorf("appetite.sweep_parallelism must be positive")
	}
	if c.Appetite.SnapshotHistoryDepth < c.Appetite.BreachWindow {
		return fmt.Errorf("appetite.snapshot_history_depth must cover the breach window")
	}
	return nil
}
