package startup

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"

	"atelier/internal/query"
)

// unsetEnv clears key for the duration of the test and restores it after.
func unsetEnv(t *testing.T, key string) {
	t.Helper()
	t.Setenv(key, "")
	os.Unsetenv(key)
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
}

func TestDefaultConfigIsValid(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if cfg.Library.DefaultPageSize != 20 {
		t.Errorf("DefaultPageSize = %d, want 20", cfg.Library.DefaultPageSize)
	}
	if cfg.Scan.BatchSize != 200 {
		t.Errorf("Scan.BatchSize = %d, want 200", cfg.Scan.BatchSize)
	}
	if cfg.Bulk.ChunkSize != 50 {
		t.Errorf("Bulk.ChunkSize = %d, want 50", cfg.Bulk.ChunkSize)
	}
}

func TestLoadWithoutSourcesUsesDefaults(t *testing.T) {
	unsetEnv(t, "ATELIER_LISTEN")

	cfg, err := Load(viper.New())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	def := DefaultConfig()
	if cfg.Listen != def.Listen {
		t.Errorf("Listen = %q, want %q", cfg.Listen, def.Listen)
	}
	if cfg.ShutdownTimeout != def.ShutdownTimeout {
		t.Errorf("ShutdownTimeout = %v, want %v", cfg.ShutdownTimeout, def.ShutdownTimeout)
	}
	if cfg.Metrics.Interval != time.Minute {
		t.Errorf("Metrics.Interval = %v, want 1m", cfg.Metrics.Interval)
	}
	if cfg.Library.DefaultTagMode != query.TagModeAll {
		t.Errorf("DefaultTagMode = %q, want ALL", cfg.Library.DefaultTagMode)
	}
}

func TestInitConfigReadsYAML(t *testing.T) {
	unsetEnv(t, "ATELIER_LISTEN")
	unsetEnv(t, "ATELIER_SCAN_BATCH_SIZE")

	dir := t.TempDir()
	path := filepath.Join(dir, "atelier.yaml")
	writeFile(t, path, `
listen: ":9999"
scan:
  batch_size: 50
  batch_delay: 25ms
library:
  pinned_tags: ["Live", "demo"]
  filter_mode: any
  page_sizes: [10, 25]
  default_page_size: 25
`)

	v := viper.New()
	if err := InitConfig(v, path); err != nil {
		t.Fatalf("InitConfig() error = %v", err)
	}
	cfg, err := Load(v)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Listen != ":9999" {
		t.Errorf("Listen = %q, want :9999", cfg.Listen)
	}
	if cfg.Scan.BatchSize != 50 || cfg.Scan.BatchDelay != 25*time.Millisecond {
		t.Errorf("Scan = %+v, want batch 50 delay 25ms", cfg.Scan)
	}
	if cfg.Library.DefaultTagMode != query.TagModeAny {
		t.Errorf("DefaultTagMode = %q, want ANY", cfg.Library.DefaultTagMode)
	}
	if got := strings.Join(cfg.Library.PinnedTags, ","); got != "demo,live" {
		t.Errorf("PinnedTags = %q, want normalized demo,live", got)
	}
	if cfg.Library.DefaultPageSize != 25 || !cfg.Library.AllowsPageSize(10) {
		t.Errorf("page sizes = %v default %d", cfg.Library.PageSizes, cfg.Library.DefaultPageSize)
	}
	if cfg.Bulk.ChunkSize != 50 {
		t.Errorf("unset Bulk.ChunkSize = %d, want default 50", cfg.Bulk.ChunkSize)
	}
}

func TestEnvironmentOverridesFile(t *testing.T) {
	t.Setenv("ATELIER_LISTEN", ":7000")
	t.Setenv("ATELIER_METRICS_ENABLED", "false")

	dir := t.TempDir()
	path := filepath.Join(dir, "atelier.yaml")
	writeFile(t, path, "listen: \":9999\"\n")

	v := viper.New()
	if err := InitConfig(v, path); err != nil {
		t.Fatalf("InitConfig() error = %v", err)
	}
	cfg, err := Load(v)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Listen != ":7000" {
		t.Errorf("Listen = %q, want env override :7000", cfg.Listen)
	}
	if cfg.Metrics.Enabled {
		t.Error("Metrics.Enabled should be false from environment")
	}
}

func TestDotEnvNextToConfigFile(t *testing.T) {
	unsetEnv(t, "ATELIER_DATABASE_PATH")

	dir := t.TempDir()
	path := filepath.Join(dir, "atelier.yaml")
	writeFile(t, path, "listen: \":8181\"\n")
	writeFile(t, filepath.Join(dir, ".env"), "ATELIER_DATABASE_PATH=/srv/atelier/catalog.db\n")

	v := viper.New()
	if err := InitConfig(v, path); err != nil {
		t.Fatalf("InitConfig() error = %v", err)
	}
	cfg, err := Load(v)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Database.Path != "/srv/atelier/catalog.db" {
		t.Errorf("Database.Path = %q, want value from .env", cfg.Database.Path)
	}
}

func TestInitConfigMissingExplicitFile(t *testing.T) {
	t.Parallel()

	v := viper.New()
	if err := InitConfig(v, filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("InitConfig() should fail for a missing explicit config file")
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty listen", func(c *Config) { c.Listen = "" }},
		{"empty database path", func(c *Config) { c.Database.Path = "" }},
		{"unknown log level", func(c *Config) { c.Log.Level = "verbose" }},
		{"negative batch size", func(c *Config) { c.Scan.BatchSize = -1 }},
		{"negative workers", func(c *Config) { c.Scan.Workers = -2 }},
		{"negative chunk size", func(c *Config) { c.Bulk.ChunkSize = -5 }},
		{"quality above 100", func(c *Config) { c.Thumbnails.Quality = 101 }},
		{"zero metrics interval", func(c *Config) { c.Metrics.Interval = 0 }},
		{"negative memory limit", func(c *Config) { c.Memory.LimitBytes = -1 }},
		{"memory ratio above one", func(c *Config) { c.Memory.Ratio = 1.5 }},
		{"negative probe timeout", func(c *Config) { c.Probe.Timeout = -time.Second }},
		{"negative probe workers", func(c *Config) { c.Probe.Workers = -1 }},
		{"water marks inverted", func(c *Config) { c.Memory.HighWaterMark = 0.9 }},
		{"backoff inverted", func(c *Config) {
			c.Filesystem.InitialBackoff = time.Second
			c.Filesystem.MaxBackoff = time.Millisecond
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate() should fail")
			}
		})
	}
}

func TestValidateNormalizesLibrary(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.Library.PageSizes = []int{40, 0, 12, 40}
	cfg.Library.DefaultPageSize = 7
	cfg.Library.DefaultSort = "sideways"

	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if len(cfg.Library.PageSizes) != 2 || cfg.Library.PageSizes[0] != 12 {
		t.Errorf("PageSizes = %v, want [12 40]", cfg.Library.PageSizes)
	}
	if cfg.Library.DefaultPageSize != 12 {
		t.Errorf("DefaultPageSize = %d, want 12", cfg.Library.DefaultPageSize)
	}
	if cfg.Library.DefaultSort != query.SortNewest {
		t.Errorf("DefaultSort = %q, want newest", cfg.Library.DefaultSort)
	}
}

func TestWriteYAMLLoadsBack(t *testing.T) {
	unsetEnv(t, "ATELIER_LISTEN")
	unsetEnv(t, "ATELIER_METRICS_ENABLED")

	want := DefaultConfig()
	want.Listen = ":8088"
	want.Scan.Workers = 3
	want.Filesystem.Volumes = map[string]string{"library": "/mnt/library"}

	var buf bytes.Buffer
	if err := WriteYAML(&buf, want); err != nil {
		t.Fatalf("WriteYAML() error = %v", err)
	}
	if !strings.Contains(buf.String(), "shutdown_timeout: 10s") {
		t.Errorf("durations should render as strings:\n%s", buf.String())
	}

	path := filepath.Join(t.TempDir(), "atelier.yaml")
	writeFile(t, path, buf.String())

	v := viper.New()
	if err := InitConfig(v, path); err != nil {
		t.Fatalf("InitConfig() error = %v", err)
	}
	got, err := Load(v)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if got.Listen != want.Listen || got.Scan.Workers != 3 {
		t.Errorf("got listen %q workers %d", got.Listen, got.Scan.Workers)
	}
	if got.ShutdownTimeout != want.ShutdownTimeout || got.Filesystem.MaxBackoff != want.Filesystem.MaxBackoff {
		t.Errorf("durations did not survive: %v %v", got.ShutdownTimeout, got.Filesystem.MaxBackoff)
	}
	if got.Filesystem.Volumes["library"] != "/mnt/library" {
		t.Errorf("Volumes = %v", got.Filesystem.Volumes)
	}
	if got.Thumbnails != want.Thumbnails {
		t.Errorf("Thumbnails = %+v, want %+v", got.Thumbnails, want.Thumbnails)
	}
}

func TestConversions(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.Scan.Workers = 4
	cfg.Filesystem.Volumes = map[string]string{"nas": "/mnt/nas"}

	if ic := cfg.IndexerConfig(); ic.BatchSize != cfg.Scan.BatchSize || ic.Workers != 4 {
		t.Errorf("IndexerConfig() = %+v", ic)
	}
	if bc := cfg.EditorConfig(); bc.ChunkSize != cfg.Bulk.ChunkSize || bc.ChunkDelay != cfg.Bulk.ChunkDelay {
		t.Errorf("EditorConfig() = %+v", bc)
	}
	rc := cfg.RetryConfig()
	if rc.MaxRetries != cfg.Filesystem.Retries || rc.VolumeResolver == nil {
		t.Errorf("RetryConfig() = %+v", rc)
	}
	if got := rc.VolumeResolver.Resolve("/mnt/nas/movies/a.mp4"); got != "nas" {
		t.Errorf("Resolve() = %q, want nas", got)
	}
	if lo := cfg.LoggingOptions(); lo.Level != cfg.Log.Level || lo.MaxSizeMB != cfg.Log.MaxSizeMB {
		t.Errorf("LoggingOptions() = %+v", lo)
	}
}
