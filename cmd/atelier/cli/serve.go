package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"atelier/internal/filesystem"
	"atelier/internal/handlers"
	"atelier/internal/logging"
	"atelier/internal/media"
	"atelier/internal/metrics"
	"atelier/internal/middleware"
	"atelier/internal/startup"
)

func newServeCommand(a *app) *cobra.Command {
	var scanOnStart bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long: `Run the HTTP API until SIGINT or SIGTERM. In-flight requests get
shutdown_timeout to finish; running scans are cancelled.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.serve(cmd.Context(), scanOnStart)
		},
	}

	cmd.Flags().String("listen", "", "listen address (default from config, :8080)")
	cmd.Flags().BoolVar(&scanOnStart, "scan", false, "scan every directory mount after starting")
	_ = a.v.BindPFlag("listen", cmd.Flags().Lookup("listen"))

	return cmd
}

func (a *app) serve(ctx context.Context, scanOnStart bool) error {
	startTime := time.Now()
	cfg := a.cfg

	filesystem.SetObserver(metrics.NewFilesystemObserver())
	if err := cfg.Prepare(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}
	metrics.InitializeMetrics()
	metrics.SetAppInfo(startup.Version, startup.Commit, startup.GoVersion)

	dbStart := time.Now()
	db, err := a.openCatalog(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	mounts, err := db.ListMounts(ctx)
	if err != nil {
		closeCatalog(db)
		return fmt.Errorf("failed to read mounts: %w", err)
	}
	startup.LogDatabaseInit(time.Since(dbStart), len(mounts))

	var thumbs *media.ThumbnailStore
	if cfg.ThumbnailsEnabled {
		thumbs, err = media.NewThumbnailStore(cfg.ThumbnailDir, cfg.Thumbnails)
		if err != nil {
			logging.Warn("Thumbnails disabled: %v", err)
			thumbs = nil
		}
	}

	gate := a.startMemoryGate()
	idx := a.newIndexer(db, gate)
	h := handlers.New(db, idx, thumbs, handlers.Config{
		Settings: a.settings(ctx, db),
		Bulk:     cfg.EditorConfig(),
		Retry:    cfg.RetryConfig(),
		Metrics:  cfg.Metrics.Enabled,
	})

	router := h.Router()
	startup.LogHTTPRoutes(router)
	handler := middleware.Logger(middleware.DefaultLoggingConfig())(router)

	// runCtx outlives a cancelled parent so shutdown stays orderly; it is
	// cancelled once the server begins shutting down.
	runCtx, cancelRun := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelRun()

	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return runCtx },
	}
	srv.RegisterOnShutdown(cancelRun)

	ln, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		gate.Stop()
		closeCatalog(db)
		return fmt.Errorf("failed to listen on %s: %w", cfg.Listen, err)
	}

	var collector *metrics.Collector
	if cfg.Metrics.Enabled {
		collector = metrics.NewCollector(db, cfg.Metrics.Interval)
		collector.Start()
	}

	var scans sync.WaitGroup
	if scanOnStart {
		scans.Go(func() {
			results, err := idx.ScanAll(runCtx)
			if err != nil {
				logging.Error("Startup scan failed: %v", err)
				return
			}
			for _, r := range results {
				if r.Error != "" {
					logging.Warn("Startup scan of %s failed: %s", r.MountID, r.Error)
				}
			}
		})
	}

	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.Serve(ln) }()

	startup.LogServerStarted(startup.ServerConfig{
		Listen:          ln.Addr().String(),
		MetricsEnabled:  cfg.Metrics.Enabled,
		StartupDuration: time.Since(startTime),
	})

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	var runErr error
	select {
	case sig := <-sigChan:
		startup.LogShutdownInitiated(sig.String())
	case <-ctx.Done():
		startup.LogShutdownInitiated("context cancelled")
	case err := <-serveErr:
		runErr = fmt.Errorf("server error: %w", err)
		startup.LogShutdownInitiated("server error")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	startup.LogShutdownStep("Shutting down HTTP server")
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logging.Warn("Server shutdown error: %v", err)
	} else {
		startup.LogShutdownStepComplete("HTTP server stopped")
	}
	cancelRun()
	gate.Stop()

	startup.LogShutdownStep("Waiting for scans")
	scans.Wait()
	startup.LogShutdownStepComplete("Scans stopped")

	if collector != nil {
		startup.LogShutdownStep("Stopping metrics collector")
		collector.Stop()
		startup.LogShutdownStepComplete("Metrics collector stopped")
	}

	startup.LogShutdownStep("Closing database")
	if err := db.Close(); err != nil {
		logging.Warn("Database close error: %v", err)
	} else {
		startup.LogShutdownStepComplete("Database closed")
	}

	startup.LogShutdownComplete()
	return runErr
}
