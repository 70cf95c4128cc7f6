package startup

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"atelier/internal/bulk"
	"atelier/internal/filesystem"
	"atelier/internal/indexer"
	"atelier/internal/logging"
	"atelier/internal/media"
	"atelier/internal/memory"
	"atelier/internal/probe"
	"atelier/internal/query"
)

// EnvPrefix namespaces environment overrides: log.level is read from
// ATELIER_LOG_LEVEL.
const EnvPrefix = "ATELIER"

// Config holds all application configuration
type Config struct {
	Listen          string        `mapstructure:"listen" yaml:"listen"`
	CacheDir        string        `mapstructure:"cache_dir" yaml:"cache_dir"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`

	Database   DatabaseConfig   `mapstructure:"database" yaml:"database"`
	Log        LogConfig        `mapstructure:"log" yaml:"log"`
	Scan       ScanConfig       `mapstructure:"scan" yaml:"scan"`
	Bulk       BulkConfig       `mapstructure:"bulk" yaml:"bulk"`
	Library    query.Settings   `mapstructure:"library" yaml:"library"`
	Thumbnails media.Config     `mapstructure:"thumbnails" yaml:"thumbnails"`
	Metrics    MetricsConfig    `mapstructure:"metrics" yaml:"metrics"`
	Memory     memory.Config    `mapstructure:"memory" yaml:"memory"`
	Probe      probe.Config     `mapstructure:"probe" yaml:"probe"`
	Filesystem FilesystemConfig `mapstructure:"filesystem" yaml:"filesystem"`

	// Derived by Prepare
	ThumbnailDir      string `mapstructure:"-" yaml:"-"`
	ThumbnailsEnabled bool   `mapstructure:"-" yaml:"-"`
}

// DatabaseConfig locates the SQLite catalog.
type DatabaseConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// LogConfig mirrors logging.Options.
type LogConfig struct {
	Level      string `mapstructure:"level" yaml:"level"`
	File       string `mapstructure:"file" yaml:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days" yaml:"max_age_days"`
	Compress   bool   `mapstructure:"compress" yaml:"compress"`
}

// ScanConfig tunes reconciliation scans.
type ScanConfig struct {
	BatchSize  int           `mapstructure:"batch_size" yaml:"batch_size"`
	BatchDelay time.Duration `mapstructure:"batch_delay" yaml:"batch_delay"`
	Workers    int           `mapstructure:"workers" yaml:"workers"`
}

// BulkConfig tunes chunked bulk edits and imports.
type BulkConfig struct {
	ChunkSize  int           `mapstructure:"chunk_size" yaml:"chunk_size"`
	ChunkDelay time.Duration `mapstructure:"chunk_delay" yaml:"chunk_delay"`
}

// MetricsConfig controls the /metrics endpoint and the stats collector.
type MetricsConfig struct {
	Enabled  bool          `mapstructure:"enabled" yaml:"enabled"`
	Interval time.Duration `mapstructure:"interval" yaml:"interval"`
}

// FilesystemConfig controls stale handle retries. Volumes maps a label used
// in metrics to a path prefix.
type FilesystemConfig struct {
	Retries        int               `mapstructure:"retries" yaml:"retries"`
	InitialBackoff time.Duration     `mapstructure:"initial_backoff" yaml:"initial_backoff"`
	MaxBackoff     time.Duration     `mapstructure:"max_backoff" yaml:"max_backoff"`
	Volumes        map[string]string `mapstructure:"volumes" yaml:"volumes,omitempty"`
}

// DefaultConfig returns the configuration used when nothing overrides it.
func DefaultConfig() Config {
	scan := indexer.DefaultConfig()
	chunks := bulk.DefaultConfig()
	retry := filesystem.DefaultRetryConfig()

	return Config{
		Listen:          ":8080",
		CacheDir:        "./data/cache",
		ShutdownTimeout: 10 * time.Second,
		Database:        DatabaseConfig{Path: "./data/atelier.db"},
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  100,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
		Scan: ScanConfig{
			BatchSize:  scan.BatchSize,
			BatchDelay: scan.BatchDelay,
		},
		Bulk: BulkConfig{
			ChunkSize:  chunks.ChunkSize,
			ChunkDelay: chunks.ChunkDelay,
		},
		Library:    query.DefaultSettings(),
		Thumbnails: media.DefaultConfig(),
		Metrics: MetricsConfig{
			Enabled:  true,
			Interval: time.Minute,
		},
		Memory: memory.DefaultConfig(),
		Probe:  probe.DefaultConfig(),
		Filesystem: FilesystemConfig{
			Retries:        retry.MaxRetries,
			InitialBackoff: retry.InitialBackoff,
			MaxBackoff:     retry.MaxBackoff,
		},
	}
}

// SetDefaults registers every key with its default so environment overrides
// apply even when no config file mentions the key.
func SetDefaults(v *viper.Viper) {
	d := DefaultConfig()

	v.SetDefault("listen", d.Listen)
	v.SetDefault("cache_dir", d.CacheDir)
	v.SetDefault("shutdown_timeout", d.ShutdownTimeout)

	v.SetDefault("database.path", d.Database.Path)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.file", d.Log.File)
	v.SetDefault("log.max_size_mb", d.Log.MaxSizeMB)
	v.SetDefault("log.max_backups", d.Log.MaxBackups)
	v.SetDefault("log.max_age_days", d.Log.MaxAgeDays)
	v.SetDefault("log.compress", d.Log.Compress)

	v.SetDefault("scan.batch_size", d.Scan.BatchSize)
	v.SetDefault("scan.batch_delay", d.Scan.BatchDelay)
	v.SetDefault("scan.workers", d.Scan.Workers)

	v.SetDefault("bulk.chunk_size", d.Bulk.ChunkSize)
	v.SetDefault("bulk.chunk_delay", d.Bulk.ChunkDelay)

	v.SetDefault("library.pinned_tags", d.Library.PinnedTags)
	v.SetDefault("library.default_sort", string(d.Library.DefaultSort))
	v.SetDefault("library.filter_mode", string(d.Library.DefaultTagMode))
	v.SetDefault("library.tag_sort", string(d.Library.TagSort))
	v.SetDefault("library.page_sizes", d.Library.PageSizes)
	v.SetDefault("library.default_page_size", d.Library.DefaultPageSize)

	v.SetDefault("thumbnails.width", d.Thumbnails.Width)
	v.SetDefault("thumbnails.height", d.Thumbnails.Height)
	v.SetDefault("thumbnails.quality", d.Thumbnails.Quality)

	v.SetDefault("metrics.enabled", d.Metrics.Enabled)
	v.SetDefault("metrics.interval", d.Metrics.Interval)

	v.SetDefault("memory.limit_bytes", d.Memory.LimitBytes)
	v.SetDefault("memory.ratio", d.Memory.Ratio)
	v.SetDefault("memory.high_water_mark", d.Memory.HighWaterMark)
	v.SetDefault("memory.critical_water_mark", d.Memory.CriticalWaterMark)
	v.SetDefault("memory.check_interval", d.Memory.CheckInterval)

	v.SetDefault("probe.binary", d.Probe.Binary)
	v.SetDefault("probe.timeout", d.Probe.Timeout)
	v.SetDefault("probe.workers", d.Probe.Workers)

	v.SetDefault("filesystem.retries", d.Filesystem.Retries)
	v.SetDefault("filesystem.initial_backoff", d.Filesystem.InitialBackoff)
	v.SetDefault("filesystem.max_backoff", d.Filesystem.MaxBackoff)
}

var envFiles = []string{".env", ".env.local"}

// InitConfig wires the config sources into v: .env files, then the YAML
// file at path (or atelier.yaml in the working directory or /etc/atelier),
// then ATELIER_* environment variables. A missing config file is not an
// error when path is empty.
func InitConfig(v *viper.Viper, path string) error {
	for _, f := range envFiles {
		// missing .env files are fine
		_ = godotenv.Load(f)
	}

	if path != "" {
		v.SetConfigFile(path)
		dir := filepath.Dir(path)
		for _, f := range envFiles {
			_ = godotenv.Load(filepath.Join(dir, f))
		}
	} else {
		v.SetConfigName("atelier")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/atelier")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) || path != "" {
			return fmt.Errorf("error reading config file: %w", err)
		}
		logging.Debug("No config file found, using defaults and environment")
		return nil
	}
	logging.Debug("Using config file %s", v.ConfigFileUsed())
	return nil
}

// Load applies defaults, decodes v into a Config and validates it.
func Load(v *viper.Viper) (*Config, error) {
	SetDefaults(v)

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects values that cannot work and normalizes the library
// preferences.
func (c *Config) Validate() error {
	var errs []error
	if c.Listen == "" {
		errs = append(errs, errors.New("listen address is empty"))
	}
	if c.Database.Path == "" {
		errs = append(errs, errors.New("database.path is empty"))
	}
	if _, ok := logging.ParseLevel(c.Log.Level); !ok {
		errs = append(errs, fmt.Errorf("log.level %q is not one of debug, info, warn, error", c.Log.Level))
	}
	if c.Scan.BatchSize < 0 {
		errs = append(errs, fmt.Errorf("scan.batch_size must not be negative, got %d", c.Scan.BatchSize))
	}
	if c.Scan.Workers < 0 {
		errs = append(errs, fmt.Errorf("scan.workers must not be negative, got %d", c.Scan.Workers))
	}
	if c.Bulk.ChunkSize < 0 {
		errs = append(errs, fmt.Errorf("bulk.chunk_size must not be negative, got %d", c.Bulk.ChunkSize))
	}
	if c.Thumbnails.Quality < 0 || c.Thumbnails.Quality > 100 {
		errs = append(errs, fmt.Errorf("thumbnails.quality must be within 0..100, got %d", c.Thumbnails.Quality))
	}
	if c.Metrics.Enabled && c.Metrics.Interval <= 0 {
		errs = append(errs, errors.New("metrics.interval must be positive when metrics are enabled"))
	}
	if c.Memory.LimitBytes < 0 {
		errs = append(errs, fmt.Errorf("memory.limit_bytes must not be negative, got %d", c.Memory.LimitBytes))
	}
	if c.Memory.Ratio <= 0 || c.Memory.Ratio > 1 {
		errs = append(errs, fmt.Errorf("memory.ratio must be within (0, 1], got %v", c.Memory.Ratio))
	}
	if c.Memory.HighWaterMark >= c.Memory.CriticalWaterMark {
		errs = append(errs, errors.New("memory.high_water_mark must be below memory.critical_water_mark"))
	}
	if c.Probe.Timeout < 0 {
		errs = append(errs, fmt.Errorf("probe.timeout must not be negative, got %s", c.Probe.Timeout))
	}
	if c.Probe.Workers < 0 {
		errs = append(errs, fmt.Errorf("probe.workers must not be negative, got %d", c.Probe.Workers))
	}
	if c.Filesystem.MaxBackoff < c.Filesystem.InitialBackoff {
		errs = append(errs, errors.New("filesystem.max_backoff is smaller than filesystem.initial_backoff"))
	}
	c.Library = c.Library.Normalize()
	return errors.Join(errs...)
}

// LoggingOptions converts the log section for logging.Configure.
func (c *Config) LoggingOptions() logging.Options {
	return logging.Options{
		Level:      c.Log.Level,
		File:       c.Log.File,
		MaxSizeMB:  c.Log.MaxSizeMB,
		MaxBackups: c.Log.MaxBackups,
		MaxAgeDays: c.Log.MaxAgeDays,
		Compress:   c.Log.Compress,
	}
}

// IndexerConfig converts the scan section.
func (c *Config) IndexerConfig() indexer.Config {
	return indexer.Config{
		BatchSize:  c.Scan.BatchSize,
		BatchDelay: c.Scan.BatchDelay,
		Workers:    c.Scan.Workers,
	}
}

// EditorConfig converts the bulk section.
func (c *Config) EditorConfig() bulk.Config {
	return bulk.Config{ChunkSize: c.Bulk.ChunkSize, ChunkDelay: c.Bulk.ChunkDelay}
}

// RetryConfig converts the filesystem section.
func (c *Config) RetryConfig() filesystem.RetryConfig {
	cfg := filesystem.RetryConfig{
		MaxRetries:     c.Filesystem.Retries,
		InitialBackoff: c.Filesystem.InitialBackoff,
		MaxBackoff:     c.Filesystem.MaxBackoff,
	}
	if len(c.Filesystem.Volumes) > 0 {
		cfg.VolumeResolver = filesystem.NewVolumeResolver(c.Filesystem.Volumes)
	}
	return cfg
}

// WriteYAML renders cfg as a config file.
func WriteYAML(w io.Writer, cfg Config) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode configuration: %w", err)
	}
	return enc.Close()
}
