package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"atelier/internal/backup"
	"atelier/internal/bulk"
	"atelier/internal/catalog"
	"atelier/internal/indexer"
	"atelier/internal/probe"
	"atelier/internal/query"
	"atelier/internal/startup"
)

// setupConfig writes a config keeping all state under a temp dir and
// returns its path along with that dir.
func setupConfig(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()
	cfg := startup.DefaultConfig()
	cfg.Database.Path = filepath.Join(dir, "data", "atelier.db")
	cfg.CacheDir = filepath.Join(dir, "cache")
	cfg.Log.Level = "error"
	cfg.Metrics.Enabled = false
	cfg.Filesystem.Retries = 0

	var buf bytes.Buffer
	if err := startup.WriteYAML(&buf, cfg); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, "atelier.yaml")
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
	return path, dir
}

func run(t *testing.T, ctx context.Context, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := NewRootCommand()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(ctx)
	return out.String(), err
}

func mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := run(t, context.Background(), args...)
	if err != nil {
		t.Fatalf("atelier %s: %v\n%s", strings.Join(args, " "), err, out)
	}
	return out
}

func decode[T any](t *testing.T, out string) T {
	t.Helper()
	var v T
	if err := json.Unmarshal([]byte(out), &v); err != nil {
		t.Fatalf("decode %T: %v\n%s", v, err, out)
	}
	return v
}

func touch(t *testing.T, root string, names ...string) {
	t.Helper()
	for _, name := range names {
		p := filepath.Join(root, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte("media"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func TestConfigGenerate(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "conf", "atelier.yaml")

	out := mustRun(t, "config", "generate", "--output", path)
	if !strings.Contains(out, "Generated") {
		t.Errorf("output = %q", out)
	}
	if _, err := run(t, context.Background(), "config", "generate", "--output", path); err == nil {
		t.Error("expected an error when the file exists")
	}
	mustRun(t, "config", "generate", "--output", path, "--overwrite")

	cfg := decode[startup.Config](t, mustRun(t, "--config", path, "config", "show", "--json"))
	if cfg.Listen != ":8080" || cfg.Library.DefaultPageSize != 20 {
		t.Errorf("loaded config = %+v", cfg)
	}
	if cfg.ShutdownTimeout != 10*time.Second {
		t.Errorf("ShutdownTimeout = %v, want 10s", cfg.ShutdownTimeout)
	}
}

func TestConfigGenerateStdout(t *testing.T) {
	t.Parallel()
	out := mustRun(t, "config", "generate", "-o", "-")
	for _, key := range []string{"listen:", "database:", "library:", "page_sizes:"} {
		if !strings.Contains(out, key) {
			t.Errorf("generated config lacks %q", key)
		}
	}
}

func TestVersionSkipsConfig(t *testing.T) {
	t.Parallel()
	missing := filepath.Join(t.TempDir(), "missing.yaml")

	out := mustRun(t, "--config", missing, "version")
	if !strings.Contains(out, "atelier "+startup.Version) {
		t.Errorf("output = %q", out)
	}

	if _, err := run(t, context.Background(), "--config", missing, "mount", "list"); err == nil {
		t.Error("expected a missing explicit config file to fail")
	}
}

func TestInvalidConfigRejected(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "atelier.yaml")
	if err := os.WriteFile(path, []byte("log:\n  level: loud\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := run(t, context.Background(), "--config", path, "mount", "list")
	if err == nil || !strings.Contains(err.Error(), "log.level") {
		t.Errorf("err = %v, want a log.level complaint", err)
	}
}

func TestLibraryWorkflow(t *testing.T) {
	t.Parallel()
	cfgPath, dir := setupConfig(t)
	media := filepath.Join(dir, "media")
	touch(t, media, "a.mp4", "b.mkv", "notes.txt", "sub/c.mp3", "skip/d.mp4")

	m := decode[catalog.Mount](t, mustRun(t, "--config", cfgPath, "mount", "add", media, "--ignore", "**/skip/**"))
	if m.ID == "" || m.Name != "media" || m.Root != media {
		t.Fatalf("mount = %+v", m)
	}
	if _, err := run(t, context.Background(), "--config", cfgPath, "mount", "add", filepath.Join(dir, "nope")); err == nil {
		t.Error("expected a missing directory to be rejected")
	}

	results := decode[[]indexer.ScanResult](t, mustRun(t, "--config", cfgPath, "scan"))
	if len(results) != 1 || results[0].Stats.Added != 3 || results[0].Error != "" {
		t.Fatalf("scan results = %+v", results)
	}

	mounts := decode[[]mountView](t, mustRun(t, "--config", cfgPath, "mount", "list"))
	if len(mounts) != 1 || mounts[0].LastScan == nil || mounts[0].LastScan.Stats.Added != 3 {
		t.Fatalf("mounts = %+v", mounts)
	}

	page := decode[queryOutput](t, mustRun(t, "--config", cfgPath, "query", "sort=oldest&ps=12"))
	if page.TotalCount != 3 || page.PageSize != 12 || page.State != "sort=oldest&ps=12" {
		t.Fatalf("query = %+v", page)
	}

	wpl := filepath.Join(dir, "live.wpl")
	playlistBody := `<?wpl version="1.0"?>
<smil><body><seq>
<media src="D:\Videos\a.mp4"/>
<media src="E:\sub\c.mp3"/>
<media src="missing.mp4"/>
</seq></body></smil>`
	if err := os.WriteFile(wpl, []byte(playlistBody), 0o644); err != nil {
		t.Fatal(err)
	}
	imported := decode[playlistImport](t, mustRun(t, "--config", cfgPath, "playlist", "import", wpl, "--tag", "Live Set"))
	if imported.Tag != "live-set" || imported.Matched != 2 || len(imported.Unmatched) != 1 || imported.Outcome.Changed != 2 {
		t.Fatalf("playlist import = %+v", imported)
	}

	tagged := decode[queryOutput](t, mustRun(t, "--config", cfgPath, "query", "tag=live-set"))
	if tagged.TotalCount != 2 {
		t.Errorf("tagged count = %d, want 2", tagged.TotalCount)
	}

	tags := decode[[]query.TagCount](t, mustRun(t, "--config", cfgPath, "tags"))
	if len(tags) != 1 || tags[0] != (query.TagCount{Tag: "live-set", Count: 2}) {
		t.Errorf("tags = %+v", tags)
	}

	renamed := decode[bulk.Outcome](t, mustRun(t, "--config", cfgPath, "tags", "rename", "live-set", "concert"))
	if renamed.Changed != 2 {
		t.Errorf("rename = %+v", renamed)
	}

	exported := mustRun(t, "--config", cfgPath, "playlist", "export", "tag=concert")
	if !strings.Contains(exported, "<title>concert</title>") || strings.Count(exported, "<media ") != 2 {
		t.Errorf("exported playlist:\n%s", exported)
	}

	backupPath := filepath.Join(dir, "backup.json")
	mustRun(t, "--config", cfgPath, "backup", "export", "-o", backupPath)

	deleted := decode[bulk.Outcome](t, mustRun(t, "--config", cfgPath, "tags", "delete", "concert"))
	if deleted.Changed != 2 {
		t.Errorf("delete = %+v", deleted)
	}
	mustRun(t, "--config", cfgPath, "mount", "remove", m.ID)

	res := decode[backup.Result](t, mustRun(t, "--config", cfgPath, "backup", "import", backupPath, "--mode", "replace"))
	if res.Mounts != 1 || res.Entries != 3 || res.Removed != 3 || !res.SettingsApplied {
		t.Fatalf("import = %+v", res)
	}
	restored := decode[queryOutput](t, mustRun(t, "--config", cfgPath, "query", "tag=concert"))
	if restored.TotalCount != 2 {
		t.Errorf("restored tagged count = %d, want 2", restored.TotalCount)
	}

	if _, err := run(t, context.Background(), "--config", cfgPath, "backup", "import", backupPath, "--mode", "overwrite"); err == nil {
		t.Error("expected an unknown mode to fail")
	}
}

func TestScanUnknownMountFails(t *testing.T) {
	t.Parallel()
	cfgPath, _ := setupConfig(t)

	out, err := run(t, context.Background(), "--config", cfgPath, "scan", "nope")
	if err == nil || !strings.Contains(err.Error(), "1 of 1 scans failed") {
		t.Fatalf("err = %v", err)
	}
	results := decode[[]indexer.ScanResult](t, out)
	if len(results) != 1 || results[0].Error == "" {
		t.Errorf("results = %+v", results)
	}
}

func TestThumbnailsPrune(t *testing.T) {
	t.Parallel()
	cfgPath, dir := setupConfig(t)

	thumbDir := filepath.Join(dir, "cache", "thumbnails")
	stale := strings.Repeat("ab", 32) + ".jpg"
	touch(t, thumbDir, stale, "keep.txt")

	out := mustRun(t, "--config", cfgPath, "thumbnails", "prune")
	if !strings.Contains(out, "Removed 1 unused thumbnails") {
		t.Errorf("output = %q", out)
	}
	if _, err := os.Stat(filepath.Join(thumbDir, stale)); !os.IsNotExist(err) {
		t.Errorf("stale thumbnail still present: %v", err)
	}
	if _, err := os.Stat(filepath.Join(thumbDir, "keep.txt")); err != nil {
		t.Errorf("unrelated file removed: %v", err)
	}
}

func freePort(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	ln.Close()
	return addr
}

func TestServeStopsOnCancel(t *testing.T) {
	cfgPath, dir := setupConfig(t)
	addr := freePort(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() {
		_, err := run(t, ctx, "--config", cfgPath, "serve", "--listen", addr)
		done <- err
	}()

	base := fmt.Sprintf("http://%s", addr)
	deadline := time.Now().Add(10 * time.Second)
	for {
		resp, err := http.Get(base + "/livez")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				break
			}
		}
		if time.Now().After(deadline) {
			t.Fatalf("server did not come up: %v", err)
		}
		time.Sleep(20 * time.Millisecond)
	}

	resp, err := http.Get(base + "/api/entries")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("GET /api/entries = %d", resp.StatusCode)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("serve returned %v", err)
		}
	case <-time.After(15 * time.Second):
		t.Fatal("serve did not stop")
	}

	if _, err := os.Stat(filepath.Join(dir, "data", "atelier.db")); err != nil {
		t.Errorf("database not created: %v", err)
	}
}

func TestProbeRecordsDurations(t *testing.T) {
	t.Parallel()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts are not executable on windows")
	}
	cfgPath, dir := setupConfig(t)
	media := filepath.Join(dir, "media")
	touch(t, media, "a.mp4", "b.mp3")

	fake := filepath.Join(dir, "ffprobe")
	script := "#!/bin/sh\necho '{\"format\":{\"duration\":\"42.5\"}}'\n"
	if err := os.WriteFile(fake, []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}

	m := decode[catalog.Mount](t, mustRun(t, "--config", cfgPath, "mount", "add", media))
	mustRun(t, "--config", cfgPath, "scan")

	if _, err := run(t, context.Background(), "--config", cfgPath, "probe", "--binary", filepath.Join(dir, "absent")); err == nil {
		t.Error("expected a missing ffprobe to fail")
	}
	if _, err := run(t, context.Background(), "--config", cfgPath, "probe", "--binary", fake, "no-such-mount"); err == nil {
		t.Error("expected an unknown mount to fail")
	}

	res := decode[probe.FillResult](t, mustRun(t, "--config", cfgPath, "probe", "--binary", fake, m.ID))
	if res != (probe.FillResult{Candidates: 2, Updated: 2}) {
		t.Fatalf("probe = %+v", res)
	}
	page := decode[queryOutput](t, mustRun(t, "--config", cfgPath, "query"))
	for _, e := range page.Entries {
		if e.DurationSec == nil || *e.DurationSec != 42.5 {
			t.Errorf("%s duration = %v, want 42.5", e.Filename, e.DurationSec)
		}
	}

	again := decode[probe.FillResult](t, mustRun(t, "--config", cfgPath, "probe", "--binary", fake))
	if again.Candidates != 0 {
		t.Errorf("second probe candidates = %d, want 0", again.Candidates)
	}
}

func TestTruncate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"hello", 0, "hello"},
		{"hello", 5, "hello"},
		{"hello", 4, "hel…"},
		{"héllo", 2, "h…"},
		{"hello", 1, "…"},
	}
	for _, tt := range tests {
		if got := truncate(tt.in, tt.n); got != tt.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
		}
	}
}
