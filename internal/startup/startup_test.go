package startup

import (
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/gorilla/mux"
)

func TestGetBuildInfo(t *testing.T) {
	info := GetBuildInfo()

	if info.Version == "" {
		t.Error("Expected Version to be set")
	}
	if info.OS == "" || info.Arch == "" {
		t.Error("Expected OS and Arch to be set")
	}
	if info.GoVersion != GoVersion {
		t.Errorf("Expected GoVersion=%s, got %s", GoVersion, info.GoVersion)
	}
}

func TestGetRouteGroup(t *testing.T) {
	t.Parallel()

	tests := []struct {
		path string
		want string
	}{
		{"/health", "health"},
		{"/metrics", "metrics"},
		{"/api/entries", "api/entries"},
		{"/api/entries/watch", "api/entries"},
		{"/api/mounts/{id}/scan", "api/mounts"},
		{"/api/playlist.wpl", "api/playlist"},
		{"/", ""},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			t.Parallel()
			if got := getRouteGroup(tt.path); got != tt.want {
				t.Errorf("getRouteGroup(%q) = %q, want %q", tt.path, got, tt.want)
			}
		})
	}
}

func TestGetRoutes(t *testing.T) {
	t.Parallel()

	noop := func(http.ResponseWriter, *http.Request) {}
	r := mux.NewRouter()
	r.HandleFunc("/health", noop).Methods(http.MethodGet).Name("health")
	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/mounts/{id}", noop).Methods(http.MethodGet, http.MethodDelete)
	r.Handle("/metrics", http.HandlerFunc(noop))

	routes, err := GetRoutes(r)
	if err != nil {
		t.Fatalf("GetRoutes() error = %v", err)
	}

	want := map[string]bool{
		"GET /health":             false,
		"GET /api/mounts/{id}":    false,
		"DELETE /api/mounts/{id}": false,
		"* /metrics":              false,
	}
	for _, rt := range routes {
		key := rt.Method + " " + rt.Path
		if _, ok := want[key]; ok {
			want[key] = true
		}
		if rt.Path == "/health" && rt.Name != "health" {
			t.Errorf("health route name = %q", rt.Name)
		}
	}
	for key, seen := range want {
		if !seen {
			t.Errorf("route %s not reported", key)
		}
	}
}

func TestPrepareCreatesDirectories(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	cfg := DefaultConfig()
	cfg.Database.Path = filepath.Join(root, "db", "atelier.db")
	cfg.CacheDir = filepath.Join(root, "cache")

	if err := cfg.Prepare(); err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}

	if info, err := os.Stat(filepath.Join(root, "db")); err != nil || !info.IsDir() {
		t.Errorf("database directory not created: %v", err)
	}
	if !cfg.ThumbnailsEnabled {
		t.Error("thumbnails should be enabled for a writable cache dir")
	}
	if want := filepath.Join(root, "cache", "thumbnails"); cfg.ThumbnailDir != want {
		t.Errorf("ThumbnailDir = %q, want %q", cfg.ThumbnailDir, want)
	}
	if _, err := os.Stat(filepath.Join(root, "db", ".write-test")); !os.IsNotExist(err) {
		t.Error("write test file left behind")
	}
}

func TestPrepareFailsWhenDatabaseParentIsFile(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	blocker := filepath.Join(root, "file")
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := DefaultConfig()
	cfg.Database.Path = filepath.Join(blocker, "atelier.db")
	cfg.CacheDir = filepath.Join(root, "cache")

	if err := cfg.Prepare(); err == nil {
		t.Error("Prepare() should fail when the database directory is a file")
	}
}

func TestPrepareDisablesThumbnailsWhenCacheUnusable(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	cache := filepath.Join(root, "cache")
	if err := os.WriteFile(cache, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := DefaultConfig()
	cfg.Database.Path = filepath.Join(root, "atelier.db")
	cfg.CacheDir = cache

	if err := cfg.Prepare(); err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}
	if cfg.ThumbnailsEnabled {
		t.Error("thumbnails should be disabled when the cache dir is a file")
	}
}
