// Package config handles configuration loading for the batch MAST orchestrator.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the orchestrator configuration.
type Config struct {
	Batch   BatchConfig   `yaml:"batch"`
	Storage StorageConfig `yaml:"storage"`
	Collect CollectConfig `yaml:"collect"`
	Filter  FilterConfig  `yaml:"filter"`
	Ledger  LedgerConfig  `yaml:"ledger"`
}

// BatchConfig contains job backend settings.
type BatchConfig struct {
	Endpoint      string `yaml:"endpoint"`
	JobQueue      string `yaml:"job_queue"`
	JobDefinition string `yaml:"job_definition"`
}

// StorageConfig contains blob store settings.
type StorageConfig struct {
	Backend         string `yaml:"backend"` // "fs" or "redis"
	Bucket          string `yaml:"bucket"`
	FSRoot          string `yaml:"fs_root"`
	RedisAddr       string `yaml:"redis_addr"`
	CacheSizeMB     int    `yaml:"cache_size_mb"`
	CacheTTLMinutes int    `yaml:"cache_ttl_minutes"`
}

// CollectConfig contains job collection settings.
type CollectConfig struct {
	PollIntervalSeconds int `yaml:"poll_interval_seconds"`
	StatusWaitSeconds   int `yaml:"status_wait_seconds"`
	Jobs                int `yaml:"jobs"` // parallelism hint passed to the worker image
}

// FilterConfig contains significance filtering thresholds.
type FilterConfig struct {
	FDR float64 `yaml:"fdr"`
	LFC float64 `yaml:"lfc"`
}

// LedgerConfig contains run ledger settings.
type LedgerConfig struct {
	SQLitePath string `yaml:"sqlite_path"`
}

// PollInterval returns the collection poll interval as a duration.
func (c CollectConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSeconds) * time.Second
}

// StatusWait returns the blocking-compute poll interval as a duration.
func (c CollectConfig) StatusWait() time.Duration {
	return time.Duration(c.StatusWaitSeconds) * time.Second
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		// Return default config if file doesn't exist
		return DefaultConfig(), nil
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	// Apply defaults for missing values
	applyDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Batch: BatchConfig{
			Endpoint:      "http://localhost:8480",
			JobQueue:      "mast-queue",
			JobDefinition: "mast-worker",
		},
		Storage: StorageConfig{
			Backend:         "fs",
			Bucket:          "mast-scratch",
			FSRoot:          "./data/blobs",
			RedisAddr:       "localhost:6379",
			CacheSizeMB:     64,
			CacheTTLMinutes: 10,
		},
		Collect: CollectConfig{
			PollIntervalSeconds: 30,
			StatusWaitSeconds:   60,
			Jobs:                1,
		},
		Filter: FilterConfig{
			FDR: 0.05,
			LFC: 0.5,
		},
		Ledger: LedgerConfig{
			SQLitePath: "./data/mast_jobs.sqlite",
		},
	}
}

func applyDefaults(cfg *Config) {
	defaults := DefaultConfig()

	if cfg.Batch.Endpoint == "" {
		cfg.Batch.Endpoint = defaults.Batch.Endpoint
	}
	if cfg.Batch.JobQueue == "" {
		cfg.Batch.JobQueue = defaults.Batch.JobQueue
	}
	if cfg.Batch.JobDefinition == "" {
		cfg.Batch.JobDefinition = defaults.Batch.JobDefinition
	}
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = defaults.Storage.Backend
	}
	if cfg.Storage.Bucket == "" {
		cfg.Storage.Bucket = defaults.Storage.Bucket
	}
	if cfg.Storage.FSRoot == "" {
		cfg.Storage.FSRoot = defaults.Storage.FSRoot
	}
	if cfg.Storage.RedisAddr == "" {
		cfg.Storage.RedisAddr = defaults.Storage.RedisAddr
	}
	if cfg.Storage.CacheSizeMB == 0 {
		cfg.Storage.CacheSizeMB = defaults.Storage.CacheSizeMB
	}
	if cfg.Storage.CacheTTLMinutes == 0 {
		cfg.Storage.CacheTTLMinutes = defaults.Storage.CacheTTLMinutes
	}
	if cfg.Collect.StatusWaitSeconds == 0 {
		cfg.Collect.StatusWaitSeconds = defaults.Collect.StatusWaitSeconds
	}
	if cfg.Collect.Jobs == 0 {
		cfg.Collect.Jobs = defaults.Collect.Jobs
	}
	if cfg.Filter.FDR == 0 {
		cfg.Filter.FDR = defaults.Filter.FDR
	}
	if cfg.Filter.LFC == 0 {
		cfg.Filter.LFC = defaults.Filter.LFC
	}
	// PollIntervalSeconds keeps an explicit zero: zero means "do not wait" and
	// collection yields nothing. Ledger path keeps an explicit empty value:
	// empty disables the ledger.
}

func validate(cfg *Config) error {
	switch cfg.Storage.Backend {
	case "fs", "redis":
	default:
		return fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
	if cfg.Collect.PollIntervalSeconds < 0 {
		return fmt.Errorf("poll_interval_seconds must not be negative")
	}
	return nil
}
