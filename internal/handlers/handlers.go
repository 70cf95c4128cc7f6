package handlers

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"atelier/internal/backup"
	"atelier/internal/bulk"
	"atelier/internal/catalog"
	"atelier/internal/filesystem"
	"atelier/internal/filterstate"
	"atelier/internal/indexer"
	"atelier/internal/logging"
	"atelier/internal/media"
	"atelier/internal/middleware"
	"atelier/internal/query"
)

// Config carries the parts of the application configuration the handlers
// need.
type Config struct {
	Settings query.Settings
	Bulk     bulk.Config
	Retry    filesystem.RetryConfig
	Metrics  bool
}

// Handlers serves the HTTP API over one catalog.
type Handlers struct {
	store   catalog.Store
	indexer *indexer.Indexer
	editor  *bulk.Editor
	thumbs  *media.ThumbnailStore
	cfg     Config
	now     func() time.Time

	// view is swapped when an import brings new settings.
	view atomic.Pointer[view]
}

// view bundles the components derived from the library settings.
type view struct {
	engine *query.Engine
	codec  *filterstate.Codec
}

// New creates the handlers. thumbs may be nil when the thumbnail directory
// is unavailable.
func New(store catalog.Store, idx *indexer.Indexer, thumbs *media.ThumbnailStore, cfg Config) *Handlers {
	h := &Handlers{
		store:   store,
		indexer: idx,
		editor:  bulk.New(store, cfg.Bulk),
		thumbs:  thumbs,
		cfg:     cfg,
		now:     time.Now,
	}
	h.applySettings(cfg.Settings)
	return h
}

func (h *Handlers) applySettings(s query.Settings) {
	s = s.Normalize()
	h.view.Store(&view{
		engine: query.New(h.store, s),
		codec:  filterstate.NewCodec(s),
	})
}

func (h *Handlers) current() *view {
	return h.view.Load()
}

// reloadSettings picks up settings stored by an import.
func (h *Handlers) reloadSettings(ctx context.Context) {
	s := backup.StoredSettings(ctx, h.store, h.current().engine.Settings())
	h.applySettings(s)
	logging.Info("Library settings reloaded: page sizes %v, filter mode %s", s.PageSizes, s.DefaultTagMode)
}

// Router registers every route with its middleware.
func (h *Handlers) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(middleware.Metrics(middleware.DefaultMetricsConfig()))
	r.Use(middleware.Compression(middleware.CompressibleTypes))

	r.HandleFunc("/health", h.HealthCheck).Methods(http.MethodGet).Name("health")
	r.HandleFunc("/livez", h.LivenessCheck).Methods(http.MethodGet, http.MethodHead).Name("livez")
	r.HandleFunc("/readyz", h.ReadinessCheck).Methods(http.MethodGet).Name("readyz")
	r.HandleFunc("/version", h.GetVersion).Methods(http.MethodGet).Name("version")
	if h.cfg.Metrics {
		r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet).Name("metrics")
	}

	api := r.PathPrefix("/api").Subrouter()

	api.HandleFunc("/entries", h.ListEntries).Methods(http.MethodGet)
	api.HandleFunc("/entries", h.AddURLEntry).Methods(http.MethodPost)
	api.HandleFunc("/entries/watch", h.WatchEntries).Methods(http.MethodGet)

	api.HandleFunc("/entry", h.GetEntry).Methods(http.MethodGet)
	api.HandleFunc("/entry", h.PatchEntry).Methods(http.MethodPatch)
	api.HandleFunc("/entry", h.DeleteEntry).Methods(http.MethodDelete)
	api.HandleFunc("/entry/play", h.RecordPlay).Methods(http.MethodPost)
	api.HandleFunc("/entry/file", h.ServeEntryFile).Methods(http.MethodGet, http.MethodHead)
	api.HandleFunc("/entry/thumbnail", h.GetThumbnail).Methods(http.MethodGet)
	api.HandleFunc("/entry/thumbnail", h.PutThumbnail).Methods(http.MethodPut)
	api.HandleFunc("/entry/thumbnail", h.DeleteThumbnail).Methods(http.MethodDelete)

	api.HandleFunc("/tags", h.GetTags).Methods(http.MethodGet)
	api.HandleFunc("/tags/all", h.GetAllTags).Methods(http.MethodGet)
	api.HandleFunc("/tags/{tag}", h.RenameTag).Methods(http.MethodPut)
	api.HandleFunc("/tags/{tag}", h.DeleteTag).Methods(http.MethodDelete)

	api.HandleFunc("/bulk", h.ApplyBulk).Methods(http.MethodPost)
	api.HandleFunc("/bulk/undo", h.GetUndo).Methods(http.MethodGet)
	api.HandleFunc("/bulk/undo", h.Undo).Methods(http.MethodPost)

	api.HandleFunc("/mounts", h.ListMounts).Methods(http.MethodGet)
	api.HandleFunc("/mounts", h.CreateMount).Methods(http.MethodPost)
	api.HandleFunc("/mounts/{id}", h.GetMount).Methods(http.MethodGet)
	api.HandleFunc("/mounts/{id}", h.DeleteMount).Methods(http.MethodDelete)
	api.HandleFunc("/mounts/{id}/scan", h.ScanMount).Methods(http.MethodPost)
	api.HandleFunc("/scan", h.ScanAll).Methods(http.MethodPost)

	api.HandleFunc("/playlist.wpl", h.ExportPlaylist).Methods(http.MethodGet)
	api.HandleFunc("/playlist.wpl", h.ImportPlaylist).Methods(http.MethodPost)

	api.HandleFunc("/backup", h.ExportBackup).Methods(http.MethodGet)
	api.HandleFunc("/backup", h.ImportBackup).Methods(http.MethodPost)

	api.HandleFunc("/stats", h.GetStats).Methods(http.MethodGet)
	api.HandleFunc("/settings", h.GetSettings).Methods(http.MethodGet)

	return r
}
