package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/spf13/viper"
	"golang.org/x/term"

	"atelier/internal/backup"
	"atelier/internal/database"
	"atelier/internal/indexer"
	"atelier/internal/logging"
	"atelier/internal/memory"
	"atelier/internal/query"
	"atelier/internal/startup"
)

// app carries what every subcommand needs once the config is loaded.
type app struct {
	v       *viper.Viper
	cfgPath string
	cfg     *startup.Config
	out     io.Writer
	asJSON  bool
}

func newApp() *app {
	return &app{v: viper.New(), out: os.Stdout}
}

// load reads the config sources and applies the log settings.
func (a *app) load() error {
	if err := startup.InitConfig(a.v, a.cfgPath); err != nil {
		return err
	}
	cfg, err := startup.Load(a.v)
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if err := logging.Configure(cfg.LoggingOptions()); err != nil {
		return err
	}
	a.cfg = cfg
	return nil
}

// openCatalog opens the configured database, creating its directory.
func (a *app) openCatalog(ctx context.Context) (*database.Database, error) {
	path, err := filepath.Abs(a.cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve database path: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}
	return database.New(ctx, path)
}

func closeCatalog(db *database.Database) {
	if err := db.Close(); err != nil {
		logging.Warn("failed to close database: %v", err)
	}
}

// newIndexer builds an indexer over db. A non-nil gate holds scans back
// between batches.
func (a *app) newIndexer(db *database.Database, gate *memory.Monitor) *indexer.Indexer {
	cfg := a.cfg.IndexerConfig()
	if gate != nil {
		cfg.Gate = gate
	}
	return indexer.New(db, indexer.OSOpener(a.cfg.RetryConfig()), cfg)
}

// startMemoryGate applies the configured memory limit and starts sampling
// against it. The caller stops the returned monitor.
func (a *app) startMemoryGate() *memory.Monitor {
	memory.ApplyLimit(a.cfg.Memory.LimitBytes, a.cfg.Memory.Ratio)
	m := memory.NewMonitor(a.cfg.Memory, 0)
	m.Start()
	return m
}

// settings returns the library settings, preferring ones stored by an
// import over the config file.
func (a *app) settings(ctx context.Context, db *database.Database) query.Settings {
	return backup.StoredSettings(ctx, db, a.cfg.Library)
}

// terminal reports whether output goes to an interactive terminal.
func (a *app) terminal() bool {
	f, ok := a.out.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// structured selects JSON output: on request, or when piped.
func (a *app) structured() bool {
	return a.asJSON || !a.terminal()
}

// width is the terminal width, or 0 when unknown.
func (a *app) width() int {
	f, ok := a.out.(*os.File)
	if !ok {
		return 0
	}
	w, _, err := term.GetSize(int(f.Fd()))
	if err != nil {
		return 0
	}
	return w
}

func (a *app) printJSON(v any) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// emit writes v as JSON or, on a terminal, as the table built by rows.
func (a *app) emit(v any, header []string, rows func() [][]string) error {
	if a.structured() {
		return a.printJSON(v)
	}
	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(header, "\t"))
	for _, row := range rows() {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	return tw.Flush()
}

// truncate shortens s to n runes with an ellipsis; n <= 0 leaves s alone.
func truncate(s string, n int) string {
	r := []rune(s)
	if n <= 0 || len(r) <= n {
		return s
	}
	if n == 1 {
		return "…"
	}
	return string(r[:n-1]) + "…"
}
