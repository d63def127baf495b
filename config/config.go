package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Dexflow    DexflowConfig    `yaml:"dexflow"`
	Chains     []string         `yaml:"chains"`
	Data       DataConfig       `yaml:"data"`
	Time       TimeConfig       `yaml:"time"`
	Logging    LoggingConfig    `yaml:"logging"`
	Exclusions ExclusionsConfig `yaml:"exclusions"`
	Init       InitConfig       `yaml:"init"`
	Report     ReportConfig     `yaml:"report"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Storage    StorageConfig    `yaml:"storage"`

	// path the config was loaded from, kept so init mode can rewrite it
	path string
}

type DexflowConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

type DataConfig struct {
	DatabasePath string `yaml:"database_path"`
	ParquetRoot  string `yaml:"parquet_root"`
	ReportsPath  string `yaml:"reports_path"`
}

// TimeConfig carries the scheduled run time. It is display-only: scheduling
// itself lives in cron, not in this process.
type TimeConfig struct {
	DailyRunHour   int `yaml:"daily_run_hour"`
	DailyRunMinute int `yaml:"daily_run_minute"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
	MaxAge int    `yaml:"max_age"`
}

type ExclusionsConfig struct {
	Tokens []string `yaml:"tokens"`
}

// InitConfig controls one-time backfill mode. After a successful backfill the
// pipeline rewrites the config file with Enabled set to false.
type InitConfig struct {
	Enabled            bool `yaml:"enabled"`
	Days               int  `yaml:"days"`
	AutoGenerateReport bool `yaml:"auto_generate_report"`
}

type ReportConfig struct {
	Title string `yaml:"title"`
}

type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Region    string `yaml:"region"`
	Namespace string `yaml:"namespace"`
}

type StorageConfig struct {
	S3 S3Config `yaml:"s3"`
}

type S3Config struct {
	Enabled         bool   `yaml:"enabled"`
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	Prefix          string `yaml:"prefix"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

func LoadConfig(path string) (*Config, error) {
	path = resolveEnvSpecificPath(path, "config/config.yml", map[string]string{
		environmentProduction: "config/config.production.yml",
		environmentStaging:    "config/config.staging.yml",
	})

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Config{
		Init: InitConfig{
			Days:               7,
			AutoGenerateReport: true,
		},
		Report: ReportConfig{
			Title: "DEX Analytics Dashboard",
		},
	}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	config.path = path

	// Override S3 settings from environment variables if available
	if config.Storage.S3.Enabled {
		if v := os.Getenv("AWS_ACCESS_KEY_ID"); v != "" {
			config.Storage.S3.AccessKeyID = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_SECRET_ACCESS_KEY"); v != "" {
			config.Storage.S3.SecretAccessKey = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_REGION"); v != "" {
			config.Storage.S3.Region = strings.TrimSpace(v)
		}
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &config, nil
}

func validateConfig(cfg *Config) error {
	if cfg.Dexflow.Name == "" {
		return fmt.Errorf("dexflow.name is required")
	}

	if cfg.Dexflow.Version == "" {
		return fmt.Errorf("dexflow.version is required")
	}

	if len(cfg.Chains) == 0 {
		return fmt.Errorf("chains must list at least one chain id")
	}
	for _, chain := range cfg.Chains {
		if strings.TrimSpace(chain) == "" {
			return fmt.Errorf("chains must not contain empty entries")
		}
	}

	if cfg.Data.DatabasePath == "" {
		return fmt.Errorf("data.database_path is required")
	}
	if cfg.Data.ParquetRoot == "" {
		return fmt.Errorf("data.parquet_root is required")
	}
	if cfg.Data.ReportsPath == "" {
		return fmt.Errorf("data.reports_path is required")
	}

	if cfg.Time.DailyRunHour < 0 || cfg.Time.DailyRunHour > 23 {
		return fmt.Errorf("time.daily_run_hour must be between 0 and 23")
	}
	if cfg.Time.DailyRunMinute < 0 || cfg.Time.DailyRunMinute > 59 {
		return fmt.Errorf("time.daily_run_minute must be between 0 and 59")
	}

	if cfg.Init.Enabled && cfg.Init.Days <= 0 {
		return fmt.Errorf("init.days must be greater than 0 when init mode is enabled")
	}

	// Development runs tolerate half-configured metrics; the publisher just
	// degrades to a no-op. Deployed environments must fail fast instead.
	if cfg.Metrics.Enabled && isProductionLike(getAppEnvironment()) {
		if cfg.Metrics.Region == "" {
			return fmt.Errorf("metrics.region is required when metrics are enabled in a deployed environment")
		}
		if cfg.Metrics.Namespace == "" {
			return fmt.Errorf("metrics.namespace is required when metrics are enabled in a deployed environment")
		}
	}

	if cfg.Storage.S3.Enabled {
		if cfg.Storage.S3.Bucket == "" {
			return fmt.Errorf("storage.s3.bucket is required when S3 is enabled")
		}
		if cfg.Storage.S3.Region == "" {
			return fmt.Errorf("storage.s3.region is required when S3 is enabled")
		}
	}

	return nil
}

// Path returns the file the configuration was loaded from.
func (c *Config) Path() string {
	return c.path
}

// DisableInit turns off backfill mode and persists the change back to the
// config file. The write goes through a temp file in the same directory
// followed by a rename so a crash mid-write never truncates the live config.
func (c *Config) DisableInit() error {
	c.Init.Enabled = false
	return c.save()
}

func (c *Config) save() error {
	if c.path == "" {
		return fmt.Errorf("config has no source path; cannot save")
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	dir := filepath.Dir(c.path)
	tmp, err := os.CreateTemp(dir, ".config-*.yml")
	if err != nil {
		return fmt.Errorf("failed to create temp config file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write temp config file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to flush temp config file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp config file: %w", err)
	}

	if err := os.Rename(tmp.Name(), c.path); err != nil {
		return fmt.Errorf("failed to replace config file: %w", err)
	}
	return nil
}
